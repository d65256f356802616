package handlers

import (
	"context"
	"encoding/json"

	"github.com/nullgarden/pasd"
)

type removeSecretArgs struct {
	Name      string         `json:"name"`
	Passwords pasd.Passwords `json:"passwords"`
}

type removeSecretAns struct {
	Error string `json:"error,omitempty"`
}

// RemoveSecret decodes a removeSecretArgs request body and removes the
// named secret from db.
func RemoveSecret(db *pasd.DB) func(ctx context.Context, body json.RawMessage) (json.RawMessage, error) {
	return func(_ context.Context, body json.RawMessage) (json.RawMessage, error) {
		var args removeSecretArgs
		if err := json.Unmarshal(body, &args); err != nil {
			return encodeReply(removeSecretAns{Error: string(pasd.KindJSON)})
		}

		err := db.RmSecret(args.Name, args.Passwords)
		return encodeReply(removeSecretAns{Error: errKind(err)})
	}
}
