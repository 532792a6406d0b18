package cli

import (
	"context"
	"fmt"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"github.com/algoease/backend/internal/infra/algorand"
	"github.com/algoease/backend/internal/infra/storage/postgres"
	"github.com/algoease/backend/internal/reconcile"
)

var reconcileCmd = &cobra.Command{
	Use:   "reconcile [bounty_row_id]",
	Short: "Run one reconciliation pass, or force one bounty",
	Args:  cobra.MaximumNArgs(1),
	Run:   runReconcile,
}

func init() {
	rootCmd.AddCommand(reconcileCmd)
}

func runReconcile(cmd *cobra.Command, args []string) {
	cfg, err := loadConfig()
	if err != nil {
		slog.Error("Failed to load config", "error", err)
		os.Exit(1)
	}
	if cfg.Database.URL == "" {
		slog.Error("reconcile requires a configured database")
		os.Exit(1)
	}

	ctx := context.Background()
	db, err := postgres.NewDB(ctx, cfg.Database)
	if err != nil {
		slog.Error("Failed to connect to database", "error", err)
		os.Exit(1)
	}
	defer func() {
		_ = db.Close()
	}()

	providers := make([]*algorand.Provider, 0, len(cfg.Algorand.Indexers))
	for _, p := range cfg.Algorand.Indexers {
		providers = append(providers,
			algorand.NewProvider(p.Name, p.URL, p.Token, cfg.Algorand.RequestTimeout))
	}
	client := algorand.NewClient(providers, algorand.DefaultRetryConfig)

	r := reconcile.NewReconciler(reconcile.Config{
		ApplicationID: cfg.Algorand.ApplicationID,
		MaxAttempts:   cfg.Reconcile.MaxAttempts,
		InitialDelay:  cfg.Reconcile.InitialDelay,
		MaxDelay:      cfg.Reconcile.MaxDelay,
	}, postgres.NewBountyRepo(db), postgres.NewReconcileQueueRepo(db), client, nil)

	if len(args) == 1 {
		b, err := r.ReconcileNow(ctx, args[0])
		if err != nil {
			slog.Error("Reconciliation failed", "bounty", args[0], "error", err)
			os.Exit(1)
		}
		if b.BountyID != nil {
			fmt.Printf("bounty %s bound to on-chain id %d\n", b.ID, *b.BountyID)
		} else {
			fmt.Printf("bounty %s still unbound\n", b.ID)
		}
		return
	}

	if err := r.RunOnce(ctx); err != nil {
		slog.Error("Reconcile pass failed", "error", err)
		os.Exit(1)
	}
	fmt.Println("reconcile pass complete")
}
