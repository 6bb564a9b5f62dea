package main

import (
	"fmt"
	"log/slog"
	"os"

	"github.com/spf13/cobra"
	"github.com/tendant/simple-molecule/pkg/simplemolecule/config"
)

var (
	version = "dev"
	commit  = "none"
	date    = "unknown"
)

func main() {
	rootCmd := NewRootCommand()
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func NewRootCommand() *cobra.Command {
	rootCmd := &cobra.Command{
		Use:   "molecule",
		Short: "Inspect, resolve and edit molecular files",
		Long: `Molecule command line interface

Runs the molecule cache and resolver in-process against a local input tree.
Configuration is read from the same MOLECULE_* environment variables as the
server; --root overrides MOLECULE_INPUT_ROOT.`,
		Version:       fmt.Sprintf("%s (commit: %s, built: %s)", version, commit, date),
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	rootCmd.PersistentFlags().String("root", "", "input root of the filesystem fallback")
	rootCmd.PersistentFlags().BoolP("verbose", "v", false, "verbose output")

	rootCmd.AddCommand(NewInspectCommand())
	rootCmd.AddCommand(NewResolveCommand())
	rootCmd.AddCommand(NewEditCommand())

	return rootCmd
}

// NewServiceClientFromFlags builds an in-process stack from the environment
// and the global flags. Mirroring is always off so the CLI never writes into
// the input tree.
func NewServiceClientFromFlags(cmd *cobra.Command) (*ServiceClient, error) {
	verbose, _ := cmd.Flags().GetBool("verbose")
	root, _ := cmd.Flags().GetString("root")

	level := slog.LevelWarn
	if verbose {
		level = slog.LevelDebug
	}
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level}))

	opts := []config.Option{config.WithEnv(), config.WithMirrorWrites(false)}
	switch {
	case root != "":
		opts = append(opts, config.WithFilesystemFallback(root))
	case os.Getenv("MOLECULE_FALLBACK") == "":
		// no tree named, nothing to fall back to
		opts = append(opts, config.WithoutFallback())
	}
	cfg, err := config.Load(opts...)
	if err != nil {
		return nil, err
	}

	if verbose {
		logger.Debug("Configuration",
			"fallback", cfg.Fallback,
			"input_root", cfg.InputRoot,
			"default_folder", cfg.DefaultFolder,
			"fallback_timeout", cfg.FallbackTimeout,
		)
	}

	stack, err := cfg.BuildStack(logger, nil)
	if err != nil {
		return nil, err
	}
	return NewServiceClient(stack, verbose), nil
}
