package cmd

import (
	"context"
	"errors"
	"os"
	"os/signal"
	"syscall"

	"pybridge/internal/compute"
	"pybridge/internal/config"
	"pybridge/internal/gateway"
	"pybridge/internal/interp"
	"pybridge/internal/logging"

	"github.com/spf13/cobra"
)

func NewRunCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "run",
		Short: "Start the interpreter and bring the bridge session up",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			return runBridge(ctx, GetConfigFileFlag())
		},
	}
}

func runBridge(ctx context.Context, configFile string) error {
	cfg, err := config.Load(config.LoadOptions{ConfigFile: configFile})
	if err != nil {
		return err
	}
	if err := cfg.Validate(); err != nil {
		return err
	}

	logger, err := logging.NewLogger(logging.Options{Level: cfg.Log.Level, Format: cfg.Log.Format})
	if err != nil {
		return err
	}
	ctx = logging.WithLogger(ctx, logger)

	// The interpreter's lifetime is managed by Close, not by the signal
	// context: teardown must run its exit hooks before the process goes away.
	proc, err := interp.StartProcess(context.Background(), interp.ProcessOptions{
		Command: cfg.Interpreter.Command,
		Args:    cfg.Interpreter.Args,
		Env:     cfg.Interpreter.Env,
		Logger:  logger,
	})
	if err != nil {
		return err
	}
	defer func() { _ = proc.Close() }()

	mode, err := compute.ParseMode(cfg.Session.Mode)
	if err != nil {
		return err
	}
	sess := compute.NewLocalSession(mode, compute.NewConfig(cfg.Session.Conf))

	session, err := gateway.StartSession(ctx, gateway.SetupOptions{
		Interpreter: proc,
		Compute:     sess,
		EntryPoint:  gateway.NewSessionEntryPoint(sess),
		Logger:      logger,
		Progress: func(fraction float64) {
			logger.Debug("bridge setup progress", "fraction", fraction)
		},
	})
	if err != nil {
		var setupErr *gateway.SetupError
		if errors.As(err, &setupErr) && setupErr.ObjectID != "" {
			logger.Error("bridge setup failed",
				"step", setupErr.Step,
				"object_id", setupErr.ObjectID,
				"err", setupErr.Err.Error())
		}
		return err
	}
	defer func() { _ = session.Close() }()

	logger.Info("bridge running",
		"port", session.Handle().Port(),
		"auth", session.Handle().AuthEnabled(),
		"mode", mode.String())

	<-ctx.Done()
	return nil
}
