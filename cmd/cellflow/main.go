// ©Hayabusa Cloud Co., Ltd. 2026. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

// Command cellflow runs the combinator demos and prints the effective
// configuration.
package main

import (
	"fmt"
	"log/slog"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"code.hybscloud.com/cellflow"
)

type flags struct {
	configPath string
	noJIT      bool
	logLevel   string
}

func newRootCmd() *cobra.Command {
	f := &flags{}
	root := &cobra.Command{
		Use:           "cellflow",
		Short:         "Thread mutable variables through traced control flow",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			return f.install(cmd)
		},
	}
	root.PersistentFlags().StringVar(&f.configPath, "config", "", "YAML configuration file")
	root.PersistentFlags().BoolVar(&f.noJIT, "no-jit", false, "run combinators in interpreted mode")
	root.PersistentFlags().StringVar(&f.logLevel, "log-level", "", "log level: debug, info, warn, error")
	root.AddCommand(newDemoCmd(), newConfigCmd())
	return root
}

// install loads the configuration, applies flag overrides and sets up logging.
func (f *flags) install(cmd *cobra.Command) error {
	cfg, err := cellflow.LoadConfig(f.configPath)
	if err != nil {
		return err
	}
	if f.noJIT {
		cfg.DisableJIT = true
	}
	if f.logLevel != "" {
		cfg.LogLevel = strings.ToLower(f.logLevel)
	}
	level, err := cfg.Level()
	if err != nil {
		return err
	}
	cellflow.SetLogger(slog.New(slog.NewTextHandler(cmd.ErrOrStderr(), &slog.HandlerOptions{Level: level})))
	return cellflow.Configure(cfg)
}

func newConfigCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "config",
		Short: "Print the effective configuration as YAML",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			data, err := cellflow.CurrentConfig().Marshal()
			if err != nil {
				return err
			}
			_, err = cmd.OutOrStdout().Write(data)
			return err
		},
	}
}

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "cellflow:", err)
		os.Exit(1)
	}
}
