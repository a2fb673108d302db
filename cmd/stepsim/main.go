package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"github.com/stepsim/stepsim/internal/component"
	"github.com/stepsim/stepsim/internal/config"
	"github.com/stepsim/stepsim/internal/core/ecs"
	"github.com/stepsim/stepsim/internal/data"
	"github.com/stepsim/stepsim/internal/persist"
	"github.com/stepsim/stepsim/internal/scripting"
	"github.com/stepsim/stepsim/internal/server"
	"github.com/stepsim/stepsim/internal/system"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

var version = "0.1.0-dev"

const defaultConfigPath = "config/sim.toml"

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "fatal: %v\n", err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	rootCmd := &cobra.Command{
		Use:           "stepsim",
		Short:         "Step-driven ECS simulation server",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	rootCmd.PersistentFlags().String("config", "", "Config file (default $STEPSIM_CONFIG or "+defaultConfigPath+")")

	rootCmd.AddCommand(
		newRunCmd(),
		newCheckWorldCmd(),
		newVersionCmd(),
	)
	return rootCmd
}

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Fprintf(cmd.OutOrStdout(), "stepsim version %s\n", version)
		},
	}
}

func newRunCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "run",
		Short: "Load a world and step the simulation",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(cmd)
			if err != nil {
				return err
			}
			if cmd.Flags().Changed("iterations") {
				cfg.Sim.Iterations, _ = cmd.Flags().GetUint64("iterations")
			}
			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()
			return run(ctx, cmd.OutOrStdout(), cfg)
		},
	}
	cmd.Flags().Uint64("iterations", 0, "Steps to run, 0 = until interrupted (overrides sim.iterations)")
	return cmd
}

func newCheckWorldCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "check-world <file>",
		Short: "Validate a world fixture and print what it spawns",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			w, err := data.LoadWorld(args[0])
			if err != nil {
				return err
			}
			ecm := ecs.NewManager()
			if _, err := w.Spawn(ecm); err != nil {
				return fmt.Errorf("spawn %s: %w", args[0], err)
			}
			out := cmd.OutOrStdout()
			printSection(out, w.Name)
			printStat(out, "entities", ecm.EntityCount())
			printStat(out, "with pose", ecs.StoreOf[component.Pose](ecm).Len())
			printStat(out, "with velocity", ecs.StoreOf[component.LinearVelocity](ecm).Len())
			return nil
		},
	}
}

func loadConfig(cmd *cobra.Command) (*config.Config, error) {
	path, _ := cmd.Flags().GetString("config")
	if path == "" {
		path = defaultConfigPath
		if p := os.Getenv("STEPSIM_CONFIG"); p != "" {
			path = p
		}
	}
	cfg, err := config.Load(path)
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}
	return cfg, nil
}

// ── Main server logic ─────────────────────────────────────────────

func run(ctx context.Context, out io.Writer, cfg *config.Config) error {
	log, err := newLogger(cfg.Logging)
	if err != nil {
		return fmt.Errorf("init logger: %w", err)
	}
	defer log.Sync()

	printBanner(out, cfg.Sim.Name)

	srv := server.New(cfg.Sim, log)

	// 1. World fixture
	printSection(out, "world")
	if cfg.World.Fixture != "" {
		w, err := data.LoadWorld(cfg.World.Fixture)
		if err != nil {
			return fmt.Errorf("load world: %w", err)
		}
		if _, err := w.Spawn(srv.ECM()); err != nil {
			return fmt.Errorf("spawn world: %w", err)
		}
	}
	printStat(out, "entities", srv.ECM().EntityCount())
	fmt.Fprintln(out)

	// 2. Scripted systems, in config order
	printSection(out, "systems")
	for _, sc := range cfg.Scripts {
		sys, err := scripting.NewSystem(sc.Name, sc.Path, log)
		if err != nil {
			return fmt.Errorf("script %s: %w", sc.Name, err)
		}
		defer sys.Close()
		if err := srv.AddSystem(sys); err != nil {
			return err
		}
		printOK(out, "lua "+sc.Name)
	}

	// 3. State recorder
	if cfg.Recorder.Enabled {
		db, err := persist.NewDB(ctx, cfg.Database, log)
		if err != nil {
			return fmt.Errorf("database: %w", err)
		}
		defer db.Close()
		if _, err := persist.RunMigrations(ctx, db.Pool, log); err != nil {
			return fmt.Errorf("migrations: %w", err)
		}
		repo := persist.NewStateRepo(db)
		last, err := repo.LatestIteration(ctx, cfg.Recorder.RunID)
		if err != nil {
			return err
		}
		if last > 0 {
			log.Warn("run id already has recorded steps",
				zap.String("run_id", cfg.Recorder.RunID),
				zap.Uint64("latest_iteration", last),
			)
		}
		rec := system.NewStateRecorder(repo, cfg.Recorder.RunID, cfg.Recorder.Every, log)
		if err := srv.AddSystem(rec); err != nil {
			return err
		}
		printOK(out, fmt.Sprintf("recorder (every %d)", cfg.Recorder.Every))
	}
	printStat(out, "systems", srv.SystemCount())
	fmt.Fprintln(out)

	// 4. Step loop
	printReady(out, fmt.Sprintf("simulation started (step: %s)", cfg.Sim.StepSize))
	start := time.Now()
	if err := srv.Run(ctx, cfg.Sim.Iterations); err != nil {
		return fmt.Errorf("simulation: %w", err)
	}
	log.Info("simulation ended",
		zap.Uint64("iterations", srv.IterationCount()),
		zap.Duration("sim_time", srv.SimTime()),
		zap.Duration("wall_time", time.Since(start)),
	)
	return nil
}

func newLogger(cfg config.LoggingConfig) (*zap.Logger, error) {
	var level zapcore.Level
	if err := level.UnmarshalText([]byte(cfg.Level)); err != nil {
		level = zapcore.InfoLevel
	}

	var zapCfg zap.Config
	if cfg.Format == "json" {
		zapCfg = zap.NewProductionConfig()
	} else {
		zapCfg = zap.NewDevelopmentConfig()
		zapCfg.EncoderConfig.EncodeLevel = zapcore.CapitalColorLevelEncoder
		zapCfg.EncoderConfig.EncodeTime = zapcore.TimeEncoderOfLayout("15:04:05")
		zapCfg.EncoderConfig.ConsoleSeparator = "  "
		zapCfg.DisableCaller = true
		zapCfg.DisableStacktrace = true
	}
	zapCfg.Level = zap.NewAtomicLevelAt(level)

	return zapCfg.Build()
}
