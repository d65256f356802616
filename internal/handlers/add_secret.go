package handlers

import (
	"context"
	"encoding/json"

	"github.com/nullgarden/pasd"
)

type addSecretAns struct {
	Error string `json:"error,omitempty"`
}

// AddSecret decodes an AddSecretArgs request body and adds it to db.
func AddSecret(db *pasd.DB) func(ctx context.Context, body json.RawMessage) (json.RawMessage, error) {
	return func(_ context.Context, body json.RawMessage) (json.RawMessage, error) {
		var args pasd.AddSecretArgs
		if err := json.Unmarshal(body, &args); err != nil {
			return encodeReply(addSecretAns{Error: string(pasd.KindJSON)})
		}

		err := db.AddSecret(args, args.Passwords)
		return encodeReply(addSecretAns{Error: errKind(err)})
	}
}
