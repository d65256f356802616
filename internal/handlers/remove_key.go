package handlers

import (
	"context"
	"encoding/json"

	"github.com/nullgarden/pasd"
)

type removeKeyArgs struct {
	Name      string         `json:"name"`
	Passwords pasd.Passwords `json:"passwords"`
}

type removeKeyAns struct {
	Error string `json:"error,omitempty"`
}

// RemoveKey decodes a removeKeyArgs request body and removes the named
// key from db, re-encrypting every secret under the reduced group set.
func RemoveKey(db *pasd.DB) func(ctx context.Context, body json.RawMessage) (json.RawMessage, error) {
	return func(_ context.Context, body json.RawMessage) (json.RawMessage, error) {
		var args removeKeyArgs
		if err := json.Unmarshal(body, &args); err != nil {
			return encodeReply(removeKeyAns{Error: string(pasd.KindJSON)})
		}

		err := db.RmKey(args.Name, args.Passwords)
		return encodeReply(removeKeyAns{Error: errKind(err)})
	}
}
