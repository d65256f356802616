// Package handlers adapts the pasd engine's DB operations to the IPC
// wire protocol: each file below decodes one request body, calls the
// matching DB method, and encodes a reply carrying either the
// operation's result or an error's wire Kind string.
package handlers

import (
	"encoding/json"

	"github.com/nullgarden/pasd"
)

// errKind returns the wire string for err's Kind, or "" for a nil
// error — the same shape the reply's omitempty "error" field needs.
func errKind(err error) string {
	if err == nil {
		return ""
	}
	if e, ok := err.(*pasd.Error); ok {
		return string(e.Kind())
	}
	return string(pasd.KindUnknown)
}

func encodeReply(v any) (json.RawMessage, error) {
	return json.Marshal(v)
}
