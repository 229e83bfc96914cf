package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"

	"github.com/bamsammich/swarm/internal/config"
	"github.com/bamsammich/swarm/internal/cred"
	"github.com/bamsammich/swarm/internal/event"
	"github.com/bamsammich/swarm/internal/logging"
	"github.com/bamsammich/swarm/internal/port"
	"github.com/bamsammich/swarm/internal/process"
	"github.com/bamsammich/swarm/internal/runtime"
	"github.com/bamsammich/swarm/internal/spawn"
)

// quitGrace bounds how long shutdown waits for children to honor QUIT
// before escalating to SIGTERM.
const quitGrace = 5 * time.Second

// levelFlag is a pflag.Value that rejects unknown log levels at parse time
// instead of silently falling back to info.
type levelFlag struct {
	level *string
}

var _ pflag.Value = levelFlag{}

func (f levelFlag) String() string { return *f.level }
func (levelFlag) Type() string     { return "string" }

func (f levelFlag) Set(v string) error {
	switch v {
	case "debug", "info", "warn", "error":
		*f.level = v
		return nil
	}
	return fmt.Errorf("unknown log level %q", v)
}

func run() int {
	var (
		configPath  string
		daemonFlag  bool
		engineName  string
		logLevel    string
		verbose     bool
		quiet       bool
		showVersion bool
	)

	rootCmd := &cobra.Command{
		Use:   "swarm",
		Short: "Multi-process server runtime with privilege separation",
		Long: `Run the swarm main process.

The main process spawns one child per configured role, resolves and drops
credentials for roles that declare a user, and supervises the children over
a shared control port. Children announce readiness back on that port; a
child that dies is detected and retired from the process registry.`,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if showVersion {
				fmt.Fprintf(os.Stdout, "swarm %s\n", version)
				return nil
			}
			return runMain(cmd, configPath, daemonFlag, engineName, logLevel, verbose, quiet)
		},
	}

	rootCmd.Flags().StringVarP(&configPath, "config", "c", "", "path to configuration file")
	rootCmd.Flags().BoolVar(&daemonFlag, "daemon", false, "detach from the terminal")
	rootCmd.Flags().StringVar(&engineName, "engine", "", "event engine backend")
	rootCmd.Flags().Var(levelFlag{&logLevel}, "log-level", "log level (debug, info, warn, error)")
	rootCmd.Flags().BoolVarP(&verbose, "verbose", "v", false, "debug logging")
	rootCmd.Flags().BoolVarP(&quiet, "quiet", "q", false, "warnings and errors only")
	rootCmd.Flags().BoolVar(&showVersion, "version", false, "print version and exit")
	rootCmd.AddCommand(docsCmd)

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "swarm: %v\n", err)
		return 1
	}
	return 0
}

//nolint:gocyclo,revive // cyclomatic: startup orchestrates config, daemonizing, logging and spawning
func runMain(cmd *cobra.Command, configPath string, daemonFlag bool, engineName, logLevel string, verbose, quiet bool) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}
	if cmd.Flags().Changed("daemon") {
		cfg.Daemon = daemonFlag
	}
	if cmd.Flags().Changed("engine") {
		cfg.Engine = engineName
	}
	if cmd.Flags().Changed("log-level") {
		cfg.Log.Level = logLevel
	}

	if cfg.Daemon {
		if err := spawn.Daemonize(); err != nil {
			return err
		}
	}

	if err := setupLogging(cfg.Log, verbose, quiet); err != nil {
		return err
	}

	rt := runtime.New()
	rt.AuxThreads = cfg.AuxThreads
	if cfg.Engine != "" {
		rt.EngineName = cfg.Engine
	}
	if _, err := rt.Services.GetEngine(rt.EngineName); err != nil {
		return fmt.Errorf("engine %q: %w", rt.EngineName, err)
	}

	events := make(chan event.Event, 256)
	rt.Events = events
	go logEvents(events)

	registerRoles()
	runtime.SetTitle("swarm: main")

	if _, err := spawn.SetupMain(rt, &process.Init{Name: "main", Type: process.Main}); err != nil {
		return err
	}

	disc, err := config.WriteDiscovery(config.Discovery{PID: rt.PID, Engine: rt.EngineName})
	if err != nil {
		slog.Warn("discovery file not written", "err", err)
	} else {
		defer config.RemoveDiscovery()
	}

	rt.Events.Emit(event.Event{Type: event.RuntimeStarted, Role: "main", PID: rt.PID})
	slog.Info("runtime started", "pid", rt.PID, "engine", rt.EngineName, "run_id", disc.RunID)
	if cfg.Daemon {
		rt.Events.Emit(event.Event{Type: event.Daemonized, PID: rt.PID})
	}

	if err := spawnRoles(rt, cfg.Roles); err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()
	<-ctx.Done()
	stop()

	slog.Info("shutting down")
	shutdown(rt)
	return nil
}

// spawnRoles resolves credentials and starts every configured role.
// Resolution happens here, in the privileged parent, so a bad user or
// group fails the whole startup before any process exists.
func spawnRoles(rt *runtime.Runtime, roles []config.RoleConfig) error {
	resolver := cred.NewResolver()

	for _, rc := range roles {
		typ, err := roleType(rc.Name)
		if err != nil {
			return err
		}

		var uc *cred.UserCred
		if rc.User != "" {
			uc, err = resolver.Resolve(rc.User, rc.Group)
			if err != nil {
				rt.Stats.AddCredResolveFails(1)
				return fmt.Errorf("role %q: %w", rc.Name, err)
			}
			rt.Stats.AddCredResolves(1)
		}

		for i := 0; i < rc.Count; i++ {
			init := &process.Init{
				Name: rc.Name,
				Type: typ,
				Cred: uc,
			}
			if _, err := spawn.Create(rt, init); err != nil {
				return err
			}
		}
	}
	return nil
}

// shutdown asks every child to quit, then escalates to SIGTERM for the
// stragglers still registered after the grace period.
func shutdown(rt *runtime.Runtime) {
	rt.Registry.Each(func(rec *process.Record) {
		if rec.PID == rt.PID {
			return
		}
		if p := rec.FirstPort(); p != nil {
			p.WriteEnable()
			if err := p.Write(port.Frame{MsgType: port.MsgQuit}); err != nil {
				slog.Debug("quit not delivered", "pid", rec.PID, "err", err)
			}
		}
	})

	deadline := time.Now().Add(quitGrace)
	for time.Now().Before(deadline) {
		if rt.Registry.Len() <= 1 {
			return
		}
		time.Sleep(50 * time.Millisecond)
	}

	rt.Registry.Each(func(rec *process.Record) {
		if rec.PID == rt.PID {
			return
		}
		slog.Warn("escalating to SIGTERM", "role", rec.Name(), "pid", rec.PID)
		_ = syscall.Kill(rec.PID, syscall.SIGTERM) //nolint:errcheck // child may already be gone
	})
}

// setupLogging configures slog: text on stderr, optionally teed with a
// JSON stream into the configured log file.
func setupLogging(lc config.LogConfig, verbose, quiet bool) error {
	level := parseLevel(lc.Level)
	if verbose {
		level = slog.LevelDebug
	} else if quiet {
		level = slog.LevelWarn
	}

	textHandler := slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level})
	var handler slog.Handler = textHandler
	if lc.File != "" {
		lf, err := os.OpenFile(lc.File, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o640)
		if err != nil {
			return fmt.Errorf("open log file: %w", err)
		}
		fileHandler := slog.NewJSONHandler(lf, &slog.HandlerOptions{Level: slog.LevelDebug})
		if lc.Format == "json" {
			handler = fileHandler
		} else {
			handler = logging.NewMultiHandler(textHandler, fileHandler)
		}
	}
	slog.SetDefault(slog.New(handler))
	return nil
}

func parseLevel(s string) slog.Level {
	switch s {
	case "debug":
		return slog.LevelDebug
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// logEvents writes structured records for every lifecycle event.
func logEvents(events <-chan event.Event) {
	for ev := range events {
		attrs := []slog.Attr{
			slog.String("type", ev.Type.String()),
			slog.String("role", ev.Role),
			slog.Int("pid", ev.PID),
		}
		if ev.Error != nil {
			attrs = append(attrs, slog.String("error", ev.Error.Error()))
		}
		slog.LogAttrs(context.Background(), slog.LevelInfo, "swarm.event", attrs...)
	}
}
