package handlers

import (
	"context"
	"encoding/json"

	"github.com/nullgarden/pasd"
)

type listKeysAns struct {
	Keys  []pasd.KeyInfo `json:"keys"`
	Error string         `json:"error,omitempty"`
}

// ListKeys ignores its request body and returns every key's public
// info record.
func ListKeys(db *pasd.DB) func(ctx context.Context, body json.RawMessage) (json.RawMessage, error) {
	return func(_ context.Context, _ json.RawMessage) (json.RawMessage, error) {
		keys, err := db.ListKeys()
		if err != nil {
			return encodeReply(listKeysAns{Keys: []pasd.KeyInfo{}, Error: errKind(err)})
		}
		return encodeReply(listKeysAns{Keys: keys})
	}
}
