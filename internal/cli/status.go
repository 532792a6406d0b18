package cli

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/algoease/backend/internal/core/domain"
	"github.com/algoease/backend/internal/infra/storage"
	"github.com/algoease/backend/internal/infra/storage/postgres"
)

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show bounty counts by status and the sweep cursor",
	Run:   runStatus,
}

func init() {
	rootCmd.AddCommand(statusCmd)
}

func runStatus(cmd *cobra.Command, args []string) {
	cfg, err := loadConfig()
	if err != nil {
		slog.Error("Failed to load config", "error", err)
		os.Exit(1)
	}
	if cfg.Database.URL == "" {
		slog.Error("status requires a configured database")
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

	bounties := postgres.NewBountyRepo(db)
	counts, err := bounties.CountByStatus(ctx)
	if err != nil {
		slog.Error("Failed to count bounties", "error", err)
		os.Exit(1)
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 0, 3, ' ', tabwriter.Debug)
	_, _ = fmt.Fprintln(w, "STATUS\tCOUNT")
	total := 0
	for _, s := range domain.Statuses {
		_, _ = fmt.Fprintf(w, "%s\t%d\n", s, counts[s])
		total += counts[s]
	}
	_, _ = fmt.Fprintf(w, "total\t%d\n", total)
	_ = w.Flush()

	cursors := postgres.NewCursorRepo(db)
	cursor, err := cursors.Get(ctx, cfg.Algorand.ApplicationID)
	switch {
	case errors.Is(err, storage.ErrCursorNotFound):
		fmt.Println("\nsweep cursor: not started")
	case err != nil:
		slog.Error("Failed to read sweep cursor", "error", err)
	default:
		fmt.Printf("\nsweep cursor: round %d (updated %s)\n",
			cursor.Round, cursor.UpdatedAt.Format("2006-01-02 15:04:05"))
	}
}
