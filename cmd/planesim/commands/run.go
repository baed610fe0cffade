package commands

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/redis/go-redis/v9"
	"github.com/spf13/cobra"

	"planes_maxsum/internal/config"
	"planes_maxsum/internal/domain"
	"planes_maxsum/internal/journal"
	"planes_maxsum/internal/maxsum"
	"planes_maxsum/internal/messaging/inproc"
	"planes_maxsum/internal/sim"
	sqlitestore "planes_maxsum/internal/store/sqlite"
)

type runOptions struct {
	*rootOptions
	configPath string
	ticks      int64
	dbPath     string
	redisAddr  string
	runID      string
	parallel   bool
}

func newRunCmd(root *rootOptions) *cobra.Command {
	opts := &runOptions{rootOptions: root}
	cmd := &cobra.Command{
		Use:   "run",
		Short: "Run a scenario and print the final assignment",
		Long: `Run loads a TOML or YAML scenario, lets the planes negotiate for the
configured number of ticks and prints which plane ended up with each task.

Decisions are journaled to sqlite (--db) and/or published on redis
(--redis) when configured.

Examples:
  planesim run --config scenario.toml
  planesim run --config scenario.yaml --ticks 200 --db runs.db`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runScenario(cmd, opts)
		},
	}
	cmd.Flags().StringVarP(&opts.configPath, "config", "c", "", "Scenario file (.toml, .yaml)")
	cmd.Flags().Int64Var(&opts.ticks, "ticks", 0, "Override simulation.ticks")
	cmd.Flags().StringVar(&opts.dbPath, "db", "", "Override journal.db_path")
	cmd.Flags().StringVar(&opts.redisAddr, "redis", "", "Override journal.redis_addr")
	cmd.Flags().StringVar(&opts.runID, "run-id", "", "Run identifier (random when empty)")
	cmd.Flags().BoolVar(&opts.parallel, "parallel", false, "Run planes concurrently within each phase")
	_ = cmd.MarkFlagRequired("config")
	return cmd
}

func runScenario(cmd *cobra.Command, opts *runOptions) error {
	logger, err := opts.logger(cmd)
	if err != nil {
		return err
	}
	cfg, err := config.Load(opts.configPath)
	if err != nil {
		return err
	}
	if opts.ticks > 0 {
		cfg.Simulation.Ticks = opts.ticks
	}
	if opts.dbPath != "" {
		cfg.Journal.DBPath = filepath.Clean(opts.dbPath)
	}
	if opts.redisAddr != "" {
		cfg.Journal.RedisAddr = opts.redisAddr
	}
	if opts.parallel {
		cfg.Simulation.Parallel = true
	}

	ctx, cancel := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	var (
		sinks journal.Multi
		store *sqlitestore.Store
	)
	if cfg.Journal.DBPath != "" {
		if dir := filepath.Dir(cfg.Journal.DBPath); dir != "." {
			if err := os.MkdirAll(dir, 0o755); err != nil {
				return fmt.Errorf("create db directory: %w", err)
			}
		}
		store, err = sqlitestore.Open(cfg.Journal.DBPath)
		if err != nil {
			return err
		}
		defer func() { _ = store.Close() }()
		if err := store.Migrate(ctx); err != nil {
			return err
		}
		sinks = append(sinks, store)
	}
	if cfg.Journal.RedisAddr != "" {
		pub := journal.NewRedis(&redis.Options{Addr: cfg.Journal.RedisAddr}, cfg.Journal.RedisChannel)
		defer func() { _ = pub.Close() }()
		if err := pub.Ping(ctx); err != nil {
			return fmt.Errorf("redis %s: %w", cfg.Journal.RedisAddr, err)
		}
		sinks = append(sinks, pub)
	}
	var sink maxsum.Journal = journal.Nop{}
	if len(sinks) > 0 {
		sink = sinks
	}

	bus := inproc.New(cfg.Simulation.Mailbox)
	world, err := sim.New(sim.Config{
		Schedule: maxsum.Schedule{
			StartEvery: cfg.MaxSum.StartEvery,
			Iterations: *cfg.MaxSum.Iterations,
		},
		FullRefresh:  cfg.MaxSum.FullRefresh,
		Parallel:     cfg.Simulation.Parallel,
		Range:        cfg.Simulation.Range,
		TickInterval: cfg.Simulation.TickInterval(),
		RunID:        opts.runID,
	}, bus, sim.WithJournal(sink), sim.WithLogger(logger))
	if err != nil {
		return err
	}
	if err := populate(world, cfg); err != nil {
		return err
	}

	if store != nil {
		if err := store.CreateRun(ctx, sqlitestore.Run{
			ID:         world.RunID(),
			StartEvery: cfg.MaxSum.StartEvery,
			Iterations: *cfg.MaxSum.Iterations,
			Planes:     len(cfg.Planes),
			Tasks:      len(cfg.Tasks),
		}); err != nil {
			return err
		}
	}

	if err := world.Run(ctx, cfg.Simulation.Ticks); err != nil {
		return err
	}

	assignments := world.Assignments()
	if store != nil {
		// The run context may be canceled by now; the summary is still worth keeping.
		if err := store.FinishRun(context.WithoutCancel(ctx), world.RunID(), world.Now(), assignments); err != nil {
			return err
		}
	}
	printAssignments(cmd.OutOrStdout(), world.RunID(), world.Now(), assignments, len(cfg.Tasks))
	return nil
}

func populate(world *sim.World, cfg config.Config) error {
	for _, p := range cfg.Planes {
		id := domain.PlaneID(p.ID)
		if err := world.AddPlane(id, domain.Location{X: p.X, Y: p.Y}); err != nil {
			return err
		}
		if p.Inactive {
			if err := world.SetInactive(id, true); err != nil {
				return err
			}
		}
	}
	for _, t := range cfg.Tasks {
		if err := world.AddTask(t.Task(), domain.PlaneID(t.Owner)); err != nil {
			return err
		}
	}
	return nil
}
