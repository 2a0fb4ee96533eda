package backend

import (
	"bytes"
	"encoding/json"
	"fmt"
)

// envelope is the backend's standard response body
type envelope struct {
	Success *bool           `json:"success"`
	Data    json.RawMessage `json:"data"`
	Message string          `json:"message"`
}

// decodeEnvelope parses a response body. A body that is not an envelope at
// all is returned whole as data so bare JSON responses still work.
func decodeEnvelope(body []byte) (envelope, error) {
	trimmed := bytes.TrimSpace(body)
	if len(trimmed) == 0 {
		return envelope{}, nil
	}

	if trimmed[0] != '{' {
		if !json.Valid(trimmed) {
			return envelope{}, fmt.Errorf("response is not json")
		}
		return envelope{Data: json.RawMessage(trimmed)}, nil
	}

	var probe map[string]json.RawMessage
	if err := json.Unmarshal(trimmed, &probe); err != nil {
		return envelope{}, fmt.Errorf("decode envelope: %w", err)
	}
	_, hasSuccess := probe["success"]
	_, hasData := probe["data"]
	if !hasSuccess && !hasData {
		return envelope{Data: json.RawMessage(trimmed)}, nil
	}

	var env envelope
	if err := json.Unmarshal(trimmed, &env); err != nil {
		return envelope{}, fmt.Errorf("decode envelope: %w", err)
	}
	return env, nil
}

func (e envelope) failed() bool {
	return e.Success != nil && !*e.Success
}
