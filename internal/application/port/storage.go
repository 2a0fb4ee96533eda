package port

import "context"

// FileStorage keeps archived exports under a root directory. Names are
// slash-separated and relative to the root.
type FileStorage interface {
	Save(ctx context.Context, name string, content []byte) error
	Exists(ctx context.Context, name string) bool
	// Locate returns where name lives on disk
	Locate(name string) string
}
