// Package cli implements the image-redactor command line.
package cli

import (
	"fmt"
	"io"
	"os"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	imageredactor "github.com/menta2k/image-redactor"
	"github.com/menta2k/image-redactor/internal/config"
	"github.com/menta2k/image-redactor/internal/utils"
	"github.com/menta2k/image-redactor/pkg/log"
)

// Exit codes
const (
	ExitSuccess      = 0
	ExitPartial      = 1 // some inputs of a batch failed
	ExitUsageError   = 2
	ExitRuntimeError = 4
)

type globalOptions struct {
	configFile string
	logLevel   string
	stdout     io.Writer
	stderr     io.Writer
	exitCode   int
}

// Run executes the command line with the process arguments and returns an
// exit code.
func Run() int {
	return Execute(os.Args[1:], os.Stdout, os.Stderr)
}

// Execute runs the command line with args
func Execute(args []string, stdout, stderr io.Writer) int {
	g := &globalOptions{stdout: stdout, stderr: stderr}

	root := newRootCmd(g)
	root.SetArgs(args)
	root.SetOut(stdout)
	root.SetErr(stderr)

	if err := root.Execute(); err != nil {
		// Cobra already prints the error
		return ExitUsageError
	}
	return g.exitCode
}

func newRootCmd(g *globalOptions) *cobra.Command {
	root := &cobra.Command{
		Use:   "image-redactor",
		Short: "Hide faces, plates and other sensitive regions in images",
		Long: "image-redactor runs a detector over images and pixelates every detected region " +
			"or covers it with a replacement image.",
		SilenceUsage: true,
	}

	root.PersistentFlags().StringVarP(&g.configFile, "config", "c", "", "Config file (yaml or json, default "+config.GetConfigPath()+")")
	root.PersistentFlags().StringVar(&g.logLevel, "log-level", "", "Log level (debug, info, warn, error)")

	root.AddCommand(newRedactCmd(g))
	root.AddCommand(newServeCmd(g))
	root.AddCommand(newConfigCmd(g))
	root.AddCommand(newVersionCmd(g))

	return root
}

func newVersionCmd(g *globalOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print image-redactor version",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Fprintf(g.stdout, "image-redactor version %s\n", imageredactor.Version)
		},
	}
}

// loadConfig returns the effective configuration. Without --config the
// default path is used when it exists.
func (g *globalOptions) loadConfig() (*config.Config, error) {
	path := g.configFile
	if path == "" && utils.FileExists(config.GetConfigPath()) {
		path = config.GetConfigPath()
	}
	if g.configFile != "" && !utils.FileExists(g.configFile) {
		return nil, fmt.Errorf("config file %s not found", g.configFile)
	}

	cfg, err := config.Load(path)
	if err != nil {
		return nil, err
	}
	if g.logLevel != "" {
		cfg.Log.Level = g.logLevel
	}
	return cfg, nil
}

func (g *globalOptions) newLogger(cfg *config.Config) *logrus.Logger {
	return log.New(log.Options{
		Level:  cfg.Log.Level,
		File:   cfg.Log.File,
		Output: g.stderr,
	})
}
