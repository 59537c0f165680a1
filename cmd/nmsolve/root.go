package main

import (
	"github.com/spf13/cobra"

	"github.com/copyleftdev/simplex/internal/logging"
)

var version = "0.1.0"

type rootOptions struct {
	logLevel  string
	logFormat string
}

// logger builds the CLI logger. Logs go to the command's error stream so
// stdout carries only results.
func (o *rootOptions) logger(cmd *cobra.Command, debug bool) (*logging.Logger, error) {
	level := o.logLevel
	if debug {
		level = "debug"
	}
	logger, err := logging.NewLogger(&logging.Config{
		Level:  level,
		Format: o.logFormat,
		Writer: cmd.ErrOrStderr(),
	})
	if err != nil {
		return nil, err
	}
	return logger.WithField("command", cmd.Name()), nil
}

func newRootCmd() *cobra.Command {
	opts := &rootOptions{}

	rootCmd := &cobra.Command{
		Use:   "nmsolve",
		Short: "Bounded Nelder-Mead simplex solver",
		Long: `nmsolve minimizes or maximizes an objective over a box-bounded region
with the Nelder-Mead downhill simplex method. The objective is an arithmetic
expression or one of the builtin benchmark functions.`,
		SilenceUsage:  true,
		SilenceErrors: true,
		Version:       version,
	}

	rootCmd.PersistentFlags().StringVar(&opts.logLevel, "log-level", "warn", "Log level (debug, info, warn, error)")
	rootCmd.PersistentFlags().StringVar(&opts.logFormat, "log-format", "text", "Log format (json, text)")

	rootCmd.AddCommand(newSolveCmd(opts), newFunctionsCmd())
	return rootCmd
}
