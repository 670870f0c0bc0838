package main

import (
	"context"
	"fmt"
	"io"
	"log/slog"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"qrattend/internal/app"
	"qrattend/internal/config"
	"qrattend/internal/utils"
)

// env is shared by every subcommand once the root pre-run has loaded the
// configuration and opened storage.
type env struct {
	v      *viper.Viper
	cfg    *config.Config
	app    *app.App
	logger *utils.Logger
}

// execute runs one command line and releases storage afterwards, whether
// or not the command succeeded.
func execute(ctx context.Context, v *viper.Viper, args []string, in io.Reader, out, errOut io.Writer) error {
	root, e := rootCommand(v)
	root.SetArgs(args)
	root.SetIn(in)
	root.SetOut(out)
	root.SetErr(errOut)
	err := root.ExecuteContext(ctx)
	if cerr := e.close(); err == nil {
		err = cerr
	}
	return err
}

func rootCommand(v *viper.Viper) (*cobra.Command, *env) {
	e := &env{v: v}

	root := &cobra.Command{
		Use:           "attend",
		Short:         "QR attendance tracker",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return e.open(cmd)
		},
	}

	flags := root.PersistentFlags()
	flags.String("data-dir", "", "directory holding the attendance and registry files")
	flags.String("section", "", "active section for this run")
	flags.String("backend", "", "storage backend: file, redis or memory")
	flags.BoolP("debug", "d", false, "enable debug logging")
	_ = v.BindPFlag("data.dir", flags.Lookup("data-dir"))
	_ = v.BindPFlag("section.default", flags.Lookup("section"))
	_ = v.BindPFlag("storage.backend", flags.Lookup("backend"))
	_ = v.BindPFlag("debug", flags.Lookup("debug"))

	root.AddCommand(
		scanCommand(e),
		scanImageCommand(e),
		listenCommand(e),
		uploadCommand(e),
		registerCommand(e),
		registryCommand(e),
		ledgerCommand(e),
		generateCommand(e),
		sectionCommand(e),
	)
	return root, e
}

func (e *env) open(cmd *cobra.Command) error {
	cfg, err := config.Load(e.v)
	if err != nil {
		return err
	}
	logger, err := utils.NewLogger(cfg.Log.File, cfg.Log.Level)
	if err != nil {
		return err
	}
	if e.v.GetBool("debug") {
		logger.SetLevel("debug")
	}
	a, err := app.New(cmd.Context(), cfg, logger.Slog(), prometheus.NewRegistry())
	if err != nil {
		logger.Close()
		return err
	}
	e.cfg, e.app, e.logger = cfg, a, logger
	return nil
}

func (e *env) close() error {
	if e.app == nil {
		return nil
	}
	err := e.app.Close()
	e.logger.Close()
	e.app = nil
	return err
}

func (e *env) log() *slog.Logger { return e.logger.Slog() }

func printf(w io.Writer, format string, args ...any) {
	_, _ = fmt.Fprintf(w, format, args...)
}
