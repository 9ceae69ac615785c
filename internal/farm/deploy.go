package farm

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"maps"
	"os"
	"path/filepath"

	"github.com/compose-network/farm-deployer/configs"
	"github.com/compose-network/farm-deployer/internal/chain"
	"github.com/compose-network/farm-deployer/internal/contracts"
	"github.com/compose-network/farm-deployer/internal/deployment"
	"github.com/compose-network/farm-deployer/internal/deployment/plan"
	"github.com/compose-network/farm-deployer/internal/deployment/store"
	"github.com/go-git/go-billy/v5/osfs"
	"github.com/spf13/cobra"
)

type deployOptions struct {
	rpcURL         string
	fresh          bool
	discardPending bool
}

var deployCmd = &cobra.Command{
	Use:   "deploy",
	Short: "Deploy FarmFactory and FarmGenerator01 and register the generator",
	Long: "Deploys FarmFactory, deploys FarmGenerator01 with the factory address, then calls " +
		"adminAllowFarmGenerator on the factory. Every confirmed address is merged into " +
		"<deployments-dir>/<network>.json before the next step starts.",
	RunE: func(cmd *cobra.Command, args []string) error {
		rpcURL, _ := cmd.Flags().GetString(flagRPCURL)
		fresh, _ := cmd.Flags().GetBool(flagFresh)
		discardPending, _ := cmd.Flags().GetBool(flagDiscardPending)

		cfg := configs.Values
		cfg.Networks = maps.Clone(cfg.Networks)
		cfg.ApplyEnv(os.LookupEnv)

		return deploy(cmd.Context(), cfg, deployOptions{
			rpcURL:         rpcURL,
			fresh:          fresh,
			discardPending: discardPending,
		}, cmd.OutOrStdout())
	},
}

func deploy(ctx context.Context, cfg configs.Config, opts deployOptions, out io.Writer) error {
	cfg.Networks = maps.Clone(cfg.Networks)
	if opts.rpcURL != "" {
		if network, ok := cfg.Networks[cfg.Network]; ok {
			network.RPCURL = opts.rpcURL
			cfg.Networks[cfg.Network] = network
		}
	}

	slog.With("network", cfg.Network).Info("validating deployment configuration")
	if err := cfg.ValidateDeploy(); err != nil {
		return err
	}

	network, err := cfg.ActiveNetwork()
	if err != nil {
		return err
	}

	rpc, err := chain.Dial(ctx, chain.DialConfig{
		URL:      network.RPCURL,
		ChainID:  network.ChainID,
		Attempts: cfg.RPC.DialAttempts,
		Delay:    cfg.RPC.DialDelay,
	})
	if err != nil {
		return err
	}
	defer rpc.Close()

	return runDeployment(ctx, cfg, rpc, opts, out)
}

// runDeployment loads the artifacts and runs the farm plan against backend.
func runDeployment(ctx context.Context, cfg configs.Config, backend chain.Backend, opts deployOptions, out io.Writer) error {
	key, err := chain.ParsePrivateKey(cfg.PrivateKey)
	if err != nil {
		return err
	}

	compiled, err := loadArtifacts(cfg.Artifacts)
	if err != nil {
		return err
	}
	if err := contracts.Require(compiled, contracts.ContractNameFarmFactory, contracts.ContractNameFarmGenerator01); err != nil {
		return err
	}

	farmPlan, err := plan.Farm()
	if err != nil {
		return fmt.Errorf("failed to build deployment plan: %w", err)
	}

	client, err := chain.NewClient(ctx, cfg.Network, backend, key, compiled,
		chain.WithGasLimit(uint64(cfg.Deploy.GasLimit)),
		chain.WithPollInterval(cfg.Deploy.PollInterval),
	)
	if err != nil {
		return err
	}

	records := store.NewFileStore(cfg.DeploymentsDir)
	if opts.discardPending {
		if err := records.DiscardPending(cfg.Network); err != nil {
			return fmt.Errorf("failed to discard pending transactions: %w", err)
		}
		slog.With("network", cfg.Network).Warn("pending transactions discarded")
	}

	slog.
		With("network", cfg.Network).
		With("deployer", client.From().Hex()).
		With("document", filepath.Join(cfg.DeploymentsDir, records.Path(cfg.Network))).
		Info("starting farm deployment")

	orchestrator := deployment.NewOrchestrator(client, records,
		deployment.WithConfirmationTimeout(cfg.Deploy.ConfirmationTimeout),
		deployment.WithResume(cfg.Deploy.Resume && !opts.fresh),
		deployment.WithReporter(deployment.NewConsoleReporter(out)),
	)

	result, err := orchestrator.Run(ctx, farmPlan)
	if err != nil {
		return fmt.Errorf("farm deployment failed: %w", err)
	}

	slog.
		With("network", result.Network).
		With("factory", result.Addresses[plan.StepDeployFactory].Hex()).
		With("generator", result.Addresses[plan.StepDeployGenerator].Hex()).
		With("skipped", result.Skipped).
		Info("farm deployment completed")

	return nil
}

// loadArtifacts loads compiled contracts from a file or directory path.
func loadArtifacts(path string) (map[string]contracts.CompiledContract, error) {
	abs, err := filepath.Abs(path)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve artifacts path '%s': %w", path, err)
	}

	return contracts.Load(osfs.New(filepath.Dir(abs)), filepath.Base(abs))
}
