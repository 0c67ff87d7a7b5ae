package main

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/eichs/unitypack/asset"
	"github.com/eichs/unitypack/internal/config"
)

var (
	// Global flags
	configPath string
	keyHex     string
	logLevel   string
	strict     bool

	cfg    *config.Config
	logger *slog.Logger
)

var rootCmd = &cobra.Command{
	Use:   "unitypack",
	Short: "Inspect and rebuild Unity asset containers",
	Long: `unitypack reads Unity asset bundles (UnityFS, UnityRaw, UnityWeb), WebGL
data archives and serialized files. It lists and extracts their members,
decodes objects through their type trees, follows object pointers across
files and writes archives back with a different compression or without
Unity-China encryption.

Settings are read from the YAML file named by --config or $UNITYPACK_CONFIG.
Flags override file values.`,
	Version:           "0.1.0",
	SilenceUsage:      true,
	SilenceErrors:     true,
	PersistentPreRunE: setup,
}

func init() {
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "", "Path to a YAML config file")
	rootCmd.PersistentFlags().StringVar(&keyHex, "key", "", "Hex Unity-China decryption key")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "", "Log level: debug, info, warn or error")
	rootCmd.PersistentFlags().BoolVar(&strict, "strict", false, "Fail on the first malformed archive member")
}

func execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

// setup loads the config file and applies the global flag overrides.
func setup(cmd *cobra.Command, _ []string) error {
	var err error
	if cfg, err = config.Load(configPath); err != nil {
		return err
	}
	if keyHex != "" {
		cfg.Key = keyHex
	}
	if logLevel != "" {
		cfg.LogLevel = logLevel
	}
	if strict {
		cfg.Strict = true
	}
	if err := cfg.Validate(); err != nil {
		return err
	}
	level, _ := cfg.Level()
	logger = slog.New(slog.NewTextHandler(cmd.ErrOrStderr(), &slog.HandlerOptions{Level: level}))
	return nil
}

// openFile parses the file at path into a fresh graph.
func openFile(path string) (*asset.Container, error) {
	opts, err := cfg.Options(logger)
	if err != nil {
		return nil, err
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	c, err := asset.Load(filepath.Base(path), data, opts)
	if err != nil {
		return nil, fmt.Errorf("failed to load %s: %w", path, err)
	}
	logger.Debug("loaded", "path", path, "kind", c.Kind())
	return c, nil
}
