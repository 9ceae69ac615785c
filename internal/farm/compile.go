package farm

import (
	"fmt"
	"log/slog"
	"os"

	"github.com/compose-network/farm-deployer/configs"
	"github.com/compose-network/farm-deployer/internal/contracts"
	"github.com/compose-network/farm-deployer/internal/infra/docker"
	"github.com/compose-network/farm-deployer/internal/infra/filesystem/json"
	"github.com/go-git/go-billy/v5/osfs"
	"github.com/spf13/cobra"
)

var compileCmd = &cobra.Command{
	Use:   "compile",
	Short: "Compile the Solidity sources with solc running in docker",
	Long:  "Compiles every .sol file of the sources directory and generates contracts.json with ABIs and bytecodes",
	RunE: func(cmd *cobra.Command, args []string) error {
		slog.Info("running contract compilation command")

		cfg := configs.Values.Compiler
		if err := cfg.Validate(); err != nil {
			return err
		}

		rootDir, err := os.Getwd()
		if err != nil {
			return fmt.Errorf("failed to get working directory: %w", err)
		}

		dockerClient, err := docker.New()
		if err != nil {
			return fmt.Errorf("failed to create docker client: %w", err)
		}
		defer dockerClient.Close()

		compiler := contracts.NewCompiler(dockerClient, json.NewWriter(osfs.New(rootDir)), contracts.CompilerConfig{
			Image:         cfg.Image,
			RootDir:       rootDir,
			SourcesDir:    cfg.SourcesDir,
			OutputPath:    cfg.Output,
			OptimizerRuns: cfg.OptimizerRuns,
			Remappings:    cfg.Remappings,
		})

		names, err := compiler.Compile(cmd.Context())
		if err != nil {
			return fmt.Errorf("contract compilation failed: %w", err)
		}

		if err := contracts.Require(toSet(names), contracts.ContractNameFarmFactory, contracts.ContractNameFarmGenerator01); err != nil {
			slog.With("err", err.Error()).Warn("compiled output is missing farm contracts")
		}

		slog.With("contracts", names).Info("contract compilation completed successfully")

		return nil
	},
}

func toSet(names []string) map[string]contracts.CompiledContract {
	set := make(map[string]contracts.CompiledContract, len(names))
	for _, name := range names {
		set[name] = contracts.CompiledContract{}
	}
	return set
}
