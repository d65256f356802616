package main

import (
	"context"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/nullgarden/pasd"
	"github.com/nullgarden/pasd/config"
	"github.com/nullgarden/pasd/internal/handlers"
	"github.com/nullgarden/pasd/internal/ipc"
	"github.com/nullgarden/pasd/internal/pasdlog"
)

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Load the database and serve IPC requests until terminated",
	RunE:  runRun,
}

func init() {
	rootCmd.AddCommand(runCmd)
}

func runRun(cmd *cobra.Command, _ []string) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}

	pasdlog.Init(pasdlog.Config{Level: cfg.LogLevel, JSONOutput: cfg.LogJSON})
	log := pasdlog.WithComponent("run")

	db := pasd.NewDB(pasd.Config{
		DBPath:        cfg.DBPath,
		DBKey:         cfg.DBKey,
		BackupsPath:   cfg.BackupsPath,
		IPCSocketPath: cfg.IPCSocketPath,
	})

	config.Watch(viper.GetViper(), func(backupsPath, ipcSocketPath string) {
		db.SetBackupsPath(backupsPath)
		log.Info().Str("backups_path", backupsPath).Msg("backups path reloaded")
		if ipcSocketPath != cfg.IPCSocketPath {
			log.Warn().Str("socket", ipcSocketPath).Msg("ipc socket path changed; restart pasd to rebind")
		}
	})

	server := ipc.NewServer(cfg.IPCSocketPath)
	server.On("add-key", handlers.AddKey(db))
	server.On("add-secret", handlers.AddSecret(db))
	server.On("remove-key", handlers.RemoveKey(db))
	server.On("remove-secret", handlers.RemoveSecret(db))
	server.On("list-keys", handlers.ListKeys(db))
	server.On("list-secrets", handlers.ListSecrets(db))
	server.On("get-secret", handlers.GetSecret(db))

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	log.Info().Str("db_path", cfg.DBPath).Str("socket", cfg.IPCSocketPath).Msg("pasd starting")
	return server.Listen(ctx)
}
