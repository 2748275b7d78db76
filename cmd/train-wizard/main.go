// train-wizard walks through connecting to a training host, uploading a
// dataset, running a training script and reading its evaluation.
package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/acolita/train-wizard/internal/adapters/realprompt"
	"github.com/acolita/train-wizard/internal/config"
	"github.com/acolita/train-wizard/internal/logging"
	"github.com/acolita/train-wizard/internal/security"
	"github.com/acolita/train-wizard/internal/session"
	"github.com/acolita/train-wizard/internal/ssh"
	"github.com/acolita/train-wizard/internal/wizard"
	"github.com/acolita/train-wizard/internal/workflow"
)

// Version information - set at build time.
var (
	Version   = "0.4.0"
	BuildTime = "unknown"
	GitCommit = "unknown"
)

type options struct {
	configPath string
	debug      bool
	logFile    io.Closer
}

func main() {
	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	opts := &options{}
	root := &cobra.Command{
		Use:          "train-wizard",
		Short:        "Step-by-step model training on a remote accelerator host",
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runWizard(cmd.Context(), opts)
		},
		PersistentPostRun: func(cmd *cobra.Command, args []string) {
			if opts.logFile != nil {
				opts.logFile.Close()
			}
		},
	}
	root.PersistentFlags().StringVar(&opts.configPath, "config", "", "Path to configuration file (default "+config.DefaultConfigPath()+")")
	root.PersistentFlags().BoolVar(&opts.debug, "debug", false, "Enable debug logging")

	root.AddCommand(newValidateCmd(opts), newResultsCmd(opts), newVersionCmd())
	return root
}

// resolvePath returns the explicit config path, or the default one when that
// file exists.
func (o *options) resolvePath() string {
	if o.configPath != "" {
		return o.configPath
	}
	if p := config.DefaultConfigPath(); p != "" {
		if _, err := os.Stat(p); err == nil {
			return p
		}
	}
	return ""
}

func (o *options) apply(cfg *config.Config) {
	if o.debug {
		cfg.Logging.Level = "debug"
	}
}

// load reads and validates the configuration and installs the logger.
func (o *options) load() (*config.Config, string, error) {
	path := o.resolvePath()
	cfg, err := config.Load(path)
	if err != nil {
		return nil, "", err
	}
	o.apply(cfg)
	if err := cfg.Validate(); err != nil {
		return nil, "", fmt.Errorf("invalid configuration: %w", err)
	}

	var w io.Writer = os.Stderr
	if cfg.Logging.File != "" {
		f, err := os.OpenFile(cfg.Logging.File, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0600)
		if err != nil {
			return nil, "", fmt.Errorf("open log file: %w", err)
		}
		o.logFile = f
		w = f
	}
	logging.Setup(cfg.Logging.Level, cfg.Logging.Format, cfg.Logging.Sanitize, w)
	return cfg, path, nil
}

func runWizard(parent context.Context, o *options) error {
	if parent == nil {
		parent = context.Background()
	}
	ctx, stop := signal.NotifyContext(parent, os.Interrupt, syscall.SIGTERM)
	defer stop()

	cfg, path, err := o.load()
	if err != nil {
		return err
	}

	hostKeys, err := ssh.BuildHostKeyCallback(cfg.Connection.KnownHostsPath)
	if err != nil {
		return fmt.Errorf("known hosts: %w", err)
	}

	var wiz *wizard.Wizard
	mgr := ssh.NewManager(
		ssh.WithHostKeyCallback(hostKeys),
		ssh.WithKeepalive(cfg.Connection.KeepaliveInterval),
		ssh.WithStatus(func(msg string) { wiz.Notify(msg) }),
	)

	deps := wizard.Deps{
		Config: cfg,
		State:  session.NewState(),
		Gate:   workflow.NewGate(),
		Conn:   mgr,
	}
	if cfg.Security.UseKeyring {
		if ks, err := security.OpenKeyring(); err == nil {
			deps.Credentials = ks
		} else {
			slog.Warn("password recall disabled", slog.String("error", err.Error()))
		}
	}
	wiz = wizard.New(deps)

	if path != "" {
		watcher, err := config.NewWatcher(path, func(newCfg *config.Config) {
			o.apply(newCfg)
			if cb, err := ssh.BuildHostKeyCallback(newCfg.Connection.KnownHostsPath); err == nil {
				mgr.SetHostKeyCallback(cb)
			}
			wiz.UpdateConfig(newCfg)
		})
		if err != nil {
			slog.Warn("config hot-reload disabled", slog.String("error", err.Error()))
		} else {
			slog.Info("config hot-reload enabled", slog.String("path", path))
			defer watcher.Close()
		}
	}

	slog.Info("starting train-wizard",
		slog.String("version", Version),
		slog.String("mode", cfg.Training.Mode),
	)

	err = wiz.Run(ctx, realprompt.New())
	if errors.Is(err, context.Canceled) {
		slog.Info("received shutdown signal")
		return nil
	}
	return err
}

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Show version information",
		Run: func(cmd *cobra.Command, args []string) {
			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "train-wizard version %s\n", Version)
			fmt.Fprintf(out, "  Build time: %s\n", BuildTime)
			fmt.Fprintf(out, "  Git commit: %s\n", GitCommit)
		},
	}
}
