package commands

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/avolokita/fileholder/internal/logger"
	"github.com/avolokita/fileholder/pkg/config"
	"github.com/avolokita/fileholder/pkg/metastore"
	"github.com/avolokita/fileholder/pkg/service"
	"github.com/avolokita/fileholder/pkg/uow"
)

var syncCmd = &cobra.Command{
	Use:   "sync",
	Short: "Reconcile blob storage with the metadata database",
	Long: `Run one reconciliation pass without starting the server.

Blobs with no metadata row are deleted from storage, and metadata rows
with no blob are deleted from the database. Useful after a crash or when
the storage directory was modified out of band.`,
	RunE: runSync,
}

func runSync(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load(GetConfigFile())
	if err != nil {
		return err
	}
	if err := initLogger(cfg); err != nil {
		return err
	}

	store, err := metastore.Open(metaConfig(cfg))
	if err != nil {
		return fmt.Errorf("failed to open metadata store: %w", err)
	}
	defer func() {
		if err := store.Close(); err != nil {
			logger.Error("metadata store close error", "error", err)
		}
	}()

	factory := &uow.Factory{
		Meta: store,
		Blob: blobConfig(cfg),
	}

	ctx := context.Background()
	u, err := factory.Begin(ctx)
	if err != nil {
		return fmt.Errorf("failed to begin unit of work: %w", err)
	}
	defer u.Rollback()

	if err := service.New(u).SyncStorageWithDB(); err != nil {
		return fmt.Errorf("reconciliation failed: %w", err)
	}
	if err := u.Commit(ctx); err != nil {
		return fmt.Errorf("failed to commit reconciliation: %w", err)
	}

	fmt.Println("Storage and database reconciled.")
	return nil
}
