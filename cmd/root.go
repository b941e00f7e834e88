// Package cmd wires configuration, logging and the engine into the
// triageboard command line.
package cmd

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/lit-response/triageboard/config"
)

var (
	cfgFile  string
	logLevel string

	conf *config.Root
	log  = logrus.New()
)

func newRoot() *cobra.Command {
	root := &cobra.Command{
		Use:           "triageboard",
		Short:         "Real-time emergency call triage dashboard",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			v := viper.New()
			if logLevel != "" {
				v.Set("log.level", logLevel)
			}
			c, err := config.Load(v, cfgFile)
			if err != nil {
				return err
			}
			conf = c
			return setupLogging(log, c.Log, cmd.ErrOrStderr())
		},
	}
	root.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default config/$CONFIG_ENV/config.yaml)")
	root.PersistentFlags().StringVar(&logLevel, "log-level", "", "override log.level")

	root.AddCommand(
		newDashboardCmd(),
		newWatchCmd(),
		newMockServerCmd(),
		newSendTestCmd(),
		newHealthCmd(),
		newVersionCmd(),
	)
	return root
}

func setupLogging(l *logrus.Logger, c config.Log, out io.Writer) error {
	lvl, err := logrus.ParseLevel(c.Level)
	if err != nil {
		return fmt.Errorf("%w: log.level: %v", config.ErrInvalidConfig, err)
	}
	l.SetLevel(lvl)
	l.SetOutput(out)
	if c.Format == "json" {
		l.SetFormatter(&logrus.JSONFormatter{})
	} else {
		l.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})
	}
	return nil
}

// signalContext is cancelled on SIGINT or SIGTERM.
func signalContext(parent context.Context) (context.Context, context.CancelFunc) {
	return signal.NotifyContext(parent, os.Interrupt, syscall.SIGTERM)
}

func Execute() {
	if err := newRoot().Execute(); err != nil {
		log.WithError(err).Error("triageboard failed")
		os.Exit(1)
	}
}
