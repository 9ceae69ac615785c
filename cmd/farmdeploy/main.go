package main

import (
	"errors"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/compose-network/farm-deployer/configs"
	"github.com/compose-network/farm-deployer/internal/farm"
	"github.com/compose-network/farm-deployer/internal/logger"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

const (
	appName     = "farmdeploy"
	dotEnvFile  = ".env"
	configName  = "config"
	configsPath = "./configs"
)

var rootCmd = &cobra.Command{
	Use:           appName,
	Short:         "Deploys the farm contract suite to an EVM network",
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		logger.Initialize(slog.LevelInfo, logger.FormatJSON)

		if loaded, err := configs.LoadDotEnv(dotEnvFile); err != nil {
			return err
		} else if loaded > 0 {
			slog.With("file", dotEnvFile).With("variables", loaded).Debug("environment file loaded")
		}

		if err := configs.ReadDefaults(viper.GetViper()); err != nil {
			return err
		}

		viper.SetConfigName(configName)
		viper.SetConfigType("yaml")

		if execPath, err := os.Executable(); err == nil {
			execDir := filepath.Dir(execPath)
			viper.AddConfigPath(execDir)
		}
		viper.AddConfigPath(".")
		viper.AddConfigPath(configsPath)

		// The embedded defaults are complete, a config file only overrides them.
		if err := viper.MergeInConfig(); err != nil {
			var notFound viper.ConfigFileNotFoundError
			if errors.As(err, &notFound) {
				slog.Debug("no config file found, will rely on flags and defaults")
			} else {
				const errMsg = "error reading config file"
				slog.With("err", err.Error()).Error(errMsg)
				return errors.Join(err, errors.New(errMsg))
			}
		} else {
			slog.With("config_file", viper.ConfigFileUsed()).Debug("config file loaded")
		}

		if err := viper.Unmarshal(&configs.Values); err != nil {
			const errMsg = "unable to decode application config"
			slog.With("err", err.Error()).Error(errMsg)
			return errors.Join(err, errors.New(errMsg))
		}

		level, err := logger.ParseLevel(configs.Values.LogLevel)
		if err != nil {
			return err
		}
		logger.Initialize(level, configs.Values.LogFormat)

		slog.
			With("network", configs.Values.Network).
			With("deployments_dir", configs.Values.DeploymentsDir).
			Debug("configuration loaded")

		return nil
	},
}

func main() {
	if err := farm.DeclarePersistentFlags(rootCmd); err != nil {
		panic(err)
	}
	rootCmd.AddCommand(farm.Commands()...)

	if err := rootCmd.Execute(); err != nil {
		slog.With("err", err.Error()).Error("failed to execute command")
		os.Exit(1)
	}
}
