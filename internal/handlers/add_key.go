package handlers

import (
	"context"
	"encoding/json"

	"github.com/nullgarden/pasd"
)

type addKeyAns struct {
	Error string `json:"error,omitempty"`
}

// AddKey decodes an AddKeyArgs request body, builds the Key, and adds
// it to db.
func AddKey(db *pasd.DB) func(ctx context.Context, body json.RawMessage) (json.RawMessage, error) {
	return func(_ context.Context, body json.RawMessage) (json.RawMessage, error) {
		var args pasd.AddKeyArgs
		if err := json.Unmarshal(body, &args); err != nil {
			return encodeReply(addKeyAns{Error: string(pasd.KindJSON)})
		}

		key, err := pasd.KeyFromArgs(args)
		if err != nil {
			return encodeReply(addKeyAns{Error: errKind(err)})
		}

		err = db.AddKey(key, args.Passwords)
		return encodeReply(addKeyAns{Error: errKind(err)})
	}
}
