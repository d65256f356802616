package main

import (
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/nullgarden/pasd/internal/ipc"
)

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Check whether a pasd daemon is reachable on its IPC socket",
	RunE:  runStatus,
}

func init() {
	rootCmd.AddCommand(statusCmd)
}

type listKeysReply struct {
	Keys  []json.RawMessage `json:"keys"`
	Error string            `json:"error,omitempty"`
}

func runStatus(cmd *cobra.Command, _ []string) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}

	conn, err := ipc.Dial(cfg.IPCSocketPath)
	if err != nil {
		return fmt.Errorf("pasd is not reachable at %s: %w", cfg.IPCSocketPath, err)
	}
	defer conn.Close()

	reply, err := ipc.Call(conn, "list-keys", nil)
	if err != nil {
		return fmt.Errorf("request failed: %w", err)
	}

	var ans listKeysReply
	if err := json.Unmarshal(reply.Body, &ans); err != nil {
		return fmt.Errorf("decoding reply: %w", err)
	}
	if ans.Error != "" {
		return fmt.Errorf("pasd returned an error: %s", ans.Error)
	}

	fmt.Printf("pasd is up, %d key(s) stored\n", len(ans.Keys))
	return nil
}
