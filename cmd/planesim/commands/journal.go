package commands

import (
	"errors"
	"fmt"

	"github.com/redis/go-redis/v9"
	"github.com/spf13/cobra"

	"planes_maxsum/internal/domain"
	"planes_maxsum/internal/journal"
	sqlitestore "planes_maxsum/internal/store/sqlite"
)

func newJournalCmd() *cobra.Command {
	var (
		dbPath string
		runID  string
		taskID string
		limit  int
	)
	cmd := &cobra.Command{
		Use:   "journal",
		Short: "List the journaled decisions of a run",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			store, err := sqlitestore.Open(dbPath)
			if err != nil {
				return err
			}
			defer func() { _ = store.Close() }()
			ctx := cmd.Context()
			if err := store.Migrate(ctx); err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			run, err := store.GetRun(ctx, runID)
			switch {
			case errors.Is(err, sqlitestore.ErrRunNotFound):
				yellow.Fprintf(out, "run %s has no summary\n", runID)
			case err != nil:
				return err
			default:
				printRun(out, run)
			}

			var entries []domain.DecisionLog
			if taskID != "" {
				entries, err = store.ListTaskDecisions(ctx, runID, domain.TaskID(taskID), limit)
			} else {
				entries, err = store.ListRunDecisions(ctx, runID, limit)
			}
			if err != nil {
				return err
			}
			printDecisions(out, entries)
			return nil
		},
	}
	cmd.Flags().StringVar(&dbPath, "db", "", "Journal database")
	cmd.Flags().StringVar(&runID, "run", "", "Run identifier")
	cmd.Flags().StringVar(&taskID, "task", "", "Only show decisions about this task")
	cmd.Flags().IntVar(&limit, "limit", 0, "Maximum number of entries")
	_ = cmd.MarkFlagRequired("db")
	_ = cmd.MarkFlagRequired("run")
	return cmd
}

func newWatchCmd() *cobra.Command {
	var (
		addr    string
		runID   string
		channel string
	)
	cmd := &cobra.Command{
		Use:   "watch",
		Short: "Stream the decisions of a running simulation from redis",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			sub := journal.NewRedis(&redis.Options{Addr: addr}, channel)
			defer func() { _ = sub.Close() }()

			entries, err := sub.Subscribe(cmd.Context(), runID)
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			for e := range entries {
				fmt.Fprintf(out, "%d\t%s\t%s\t%s\t%s\n", e.Tick, e.PlaneID, e.TaskID, e.Action, e.Reason)
			}
			return cmd.Context().Err()
		},
	}
	cmd.Flags().StringVar(&addr, "redis", "localhost:6379", "Redis address")
	cmd.Flags().StringVar(&runID, "run", "", "Run identifier")
	cmd.Flags().StringVar(&channel, "channel", "", "Channel override (default planes:<run>:decisions)")
	_ = cmd.MarkFlagRequired("run")
	return cmd
}
