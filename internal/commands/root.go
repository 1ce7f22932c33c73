// internal/commands/root.go
package kernelbench

import (
	"errors"
	"fmt"
	"os"

	"github.com/mwiater/kernelbench/internal/appconfig"
	"github.com/mwiater/kernelbench/internal/logging"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

var (
	cfgFile          string
	loadedConfigPath string
	currentConfig    *appconfig.Config
	appVersion       = "dev"
	appCommit        = "none"
	appDate          = "unknown"
)

// rootCmd represents the base command when called without any subcommands
var rootCmd = &cobra.Command{
	Use:           "kernelbench",
	Short:         "Micro-benchmarks for tensor kernels and small models",
	SilenceUsage:  true,
	SilenceErrors: false,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		if err := ensureConfigLoaded(); err != nil {
			return err
		}

		cfg := appconfig.Defaults()
		if err := viper.Unmarshal(&cfg); err != nil {
			return fmt.Errorf("unmarshal config: %w", err)
		}
		cfg.ConfigPath = loadedConfigPath
		currentConfig = &cfg

		logging.SetDebug(cfg.Debug)
		if err := logging.Init(cfg.LogFilePath(), cfg.Debug && !cfg.JSONMode); err != nil {
			return fmt.Errorf("failed to initialize logger: %w", err)
		}
		return nil
	},
}

// Execute adds all child commands to the root command and sets flags appropriately.
// This is called by main.main(). It only needs to happen once to the rootCmd.
func Execute() {
	rootCmd.Version = fmt.Sprintf("%s (commit: %s, built: %s)", appVersion, appCommit, appDate)

	defer logging.Close()
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func init() {
	cobra.OnInitialize(initConfig)

	flags := rootCmd.PersistentFlags()
	flags.StringVarP(&cfgFile, "config", "c", appconfig.DefaultConfigPath, "config file (e.g., config/config.json)")

	flags.Bool("debug", false, "enable debug logging")
	flags.Bool("jsonMode", false, "print reports as JSON")
	flags.String("logFile", "", "path to the log file")
	flags.String("backend", appconfig.DefaultBackend, "engine backend (cpu, parallel)")
	flags.Int("warmupRounds", appconfig.DefaultWarmupRounds, "untimed iterations before measurement")
	flags.Int("epochRounds", appconfig.DefaultEpochRounds, "measured iterations")
	flags.Int64("seed", appconfig.DefaultSeed, "random seed for inputs and weights")
	flags.String("export", "", "directory to write run reports to")

	for _, name := range []string{"debug", "jsonMode", "logFile", "backend", "warmupRounds", "epochRounds", "seed", "export"} {
		_ = viper.BindPFlag(name, flags.Lookup(name))
	}
}

// initConfig points viper at the config file, falling back to the legacy
// location when the default one is missing.
func initConfig() {
	path := cfgFile
	if path == appconfig.DefaultConfigPath {
		if _, err := os.Stat(path); errors.Is(err, os.ErrNotExist) {
			if _, legacyErr := os.Stat("config.json"); legacyErr == nil {
				path = "config.json"
			}
		}
	}
	if path != "" {
		viper.SetConfigFile(path)
	}
}

// ensureConfigLoaded validates and reads the config file. A missing default
// file is not an error; every value then comes from flags and defaults.
func ensureConfigLoaded() error {
	loadedConfigPath = ""
	path := viper.ConfigFileUsed()
	if path == "" {
		return nil
	}
	if _, err := os.Stat(path); errors.Is(err, os.ErrNotExist) {
		if cfgFile != appconfig.DefaultConfigPath {
			return fmt.Errorf("config file %q not found", path)
		}
		return nil
	}
	if err := appconfig.ValidateFile(path); err != nil {
		return err
	}
	if err := viper.ReadInConfig(); err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}
	loadedConfigPath = path
	return nil
}

// GetConfig returns the loaded application configuration for other packages.
func GetConfig() *appconfig.Config {
	if currentConfig == nil {
		cfg := appconfig.Defaults()
		return &cfg
	}
	return currentConfig
}

// SetVersionInfo allows the main package to inject build-time variables.
func SetVersionInfo(version, commit, date string) {
	appVersion = version
	appCommit = commit
	appDate = date
}
