package port

import (
	"context"
	"encoding/json"
	"net/url"
)

// Backend is the REST backend. Every call returns the envelope's data field
// untouched; callers normalize it with entity.DecodeRows or entity.DecodeRow.
type Backend interface {
	Get(ctx context.Context, resource string, query url.Values) (json.RawMessage, error)
	Post(ctx context.Context, resource string, body any) (json.RawMessage, error)
	Put(ctx context.Context, resource string, body any) (json.RawMessage, error)
	Delete(ctx context.Context, resource string) (json.RawMessage, error)
}
