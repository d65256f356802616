package handlers

import (
	"context"
	"encoding/json"

	"github.com/nullgarden/pasd"
)

type getSecretArgs struct {
	Query     []string       `json:"query"`
	Passwords pasd.Passwords `json:"passwords"`
}

type getSecretAns struct {
	Secret []byte          `json:"secret,omitempty"`
	Type   pasd.SecretType `json:"type,omitempty"`
	Error  string          `json:"error,omitempty"`
}

// GetSecret decodes a getSecretArgs request body, finds the first
// secret matching Query, and returns its decrypted value and type.
func GetSecret(db *pasd.DB) func(ctx context.Context, body json.RawMessage) (json.RawMessage, error) {
	return func(_ context.Context, body json.RawMessage) (json.RawMessage, error) {
		var args getSecretArgs
		if err := json.Unmarshal(body, &args); err != nil {
			return encodeReply(getSecretAns{Error: string(pasd.KindJSON)})
		}

		value, secretType, err := db.GetSecret(args.Query, args.Passwords)
		if err != nil {
			return encodeReply(getSecretAns{Error: errKind(err)})
		}
		return encodeReply(getSecretAns{Secret: value, Type: secretType})
	}
}
