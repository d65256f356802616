package handlers

import (
	"context"
	"encoding/json"

	"github.com/nullgarden/pasd"
)

type listSecretsAns struct {
	Secrets []pasd.SecretInfo `json:"secrets"`
	Error   string            `json:"error,omitempty"`
}

// ListSecrets ignores its request body and returns every secret's
// public info record.
func ListSecrets(db *pasd.DB) func(ctx context.Context, body json.RawMessage) (json.RawMessage, error) {
	return func(_ context.Context, _ json.RawMessage) (json.RawMessage, error) {
		secrets, err := db.ListSecrets()
		if err != nil {
			return encodeReply(listSecretsAns{Secrets: []pasd.SecretInfo{}, Error: errKind(err)})
		}
		return encodeReply(listSecretsAns{Secrets: secrets})
	}
}
