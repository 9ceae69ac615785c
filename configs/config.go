package configs

import (
	"errors"
	"fmt"
	"maps"
	"slices"
	"strings"
	"time"

	"github.com/compose-network/farm-deployer/internal/logger"
)

var Values Config

// EnvPrivateKey is the environment variable holding the deployer key when private-key is unset.
const EnvPrivateKey = "privateKey"

type (
	Config struct {
		Network        string             `mapstructure:"network"`
		PrivateKey     string             `mapstructure:"private-key"`
		DeploymentsDir string             `mapstructure:"deployments-dir"`
		Artifacts      string             `mapstructure:"artifacts"`
		LogLevel       string             `mapstructure:"log-level"`
		LogFormat      string             `mapstructure:"log-format"`
		Networks       map[string]Network `mapstructure:"networks"`
		Deploy         Deploy             `mapstructure:"deploy"`
		RPC            RPC                `mapstructure:"rpc"`
		Compiler       Compiler           `mapstructure:"compiler"`
	}

	Network struct {
		RPCURL string `mapstructure:"rpc-url"`
		// RPCEnv names an environment variable that overrides RPCURL when set.
		RPCEnv  string `mapstructure:"rpc-env"`
		ChainID uint64 `mapstructure:"chain-id"`
	}

	Deploy struct {
		ConfirmationTimeout time.Duration `mapstructure:"confirmation-timeout"`
		PollInterval        time.Duration `mapstructure:"poll-interval"`
		GasLimit            int64         `mapstructure:"gas-limit"`
		Resume              bool          `mapstructure:"resume"`
	}

	RPC struct {
		DialAttempts uint          `mapstructure:"dial-attempts"`
		DialDelay    time.Duration `mapstructure:"dial-delay"`
	}

	Compiler struct {
		Image         string   `mapstructure:"image"`
		SourcesDir    string   `mapstructure:"sources-dir"`
		Output        string   `mapstructure:"output"`
		OptimizerRuns int      `mapstructure:"optimizer-runs"`
		Remappings    []string `mapstructure:"remappings"`
	}
)

// ApplyEnv resolves environment overrides: per-network RPC variables and the deployer key.
func (c *Config) ApplyEnv(lookup func(string) (string, bool)) {
	for name, network := range c.Networks {
		if network.RPCEnv == "" {
			continue
		}
		if value, ok := lookup(network.RPCEnv); ok && strings.TrimSpace(value) != "" {
			network.RPCURL = strings.TrimSpace(value)
			c.Networks[name] = network
		}
	}

	if c.PrivateKey == "" {
		if value, ok := lookup(EnvPrivateKey); ok {
			c.PrivateKey = strings.TrimSpace(value)
		}
	}
}

// ActiveNetwork returns the settings of the selected network.
func (c *Config) ActiveNetwork() (Network, error) {
	if c.Network == "" {
		return Network{}, errors.New("network is required")
	}

	network, ok := c.Networks[c.Network]
	if !ok {
		return Network{}, fmt.Errorf("unknown network '%s', known networks: %s", c.Network, strings.Join(c.NetworkNames(), ", "))
	}

	return network, nil
}

func (c *Config) NetworkNames() []string {
	return slices.Sorted(maps.Keys(c.Networks))
}

// Validate checks the settings every command needs.
func (c *Config) Validate() error {
	var errs []error

	if _, err := c.ActiveNetwork(); err != nil {
		errs = append(errs, err)
	}
	if c.DeploymentsDir == "" {
		errs = append(errs, errors.New("deployments-dir is required"))
	}
	if _, err := logger.ParseLevel(c.LogLevel); err != nil {
		errs = append(errs, err)
	}
	if c.LogFormat != "" && c.LogFormat != logger.FormatJSON && c.LogFormat != logger.FormatText {
		errs = append(errs, fmt.Errorf("log-format must be '%s' or '%s'", logger.FormatJSON, logger.FormatText))
	}

	return errors.Join(errs...)
}

// ValidateDeploy checks the settings required to submit transactions.
func (c *Config) ValidateDeploy() error {
	errs := []error{c.Validate()}

	if network, err := c.ActiveNetwork(); err == nil {
		if network.RPCURL == "" {
			errs = append(errs, fmt.Errorf("networks.%s.rpc-url is required", c.Network))
		}
	}
	if c.PrivateKey == "" {
		errs = append(errs, fmt.Errorf("private-key is required (set it in the config or the %s environment variable)", EnvPrivateKey))
	}
	if c.Artifacts == "" {
		errs = append(errs, errors.New("artifacts is required"))
	}
	if c.Deploy.ConfirmationTimeout <= 0 {
		errs = append(errs, errors.New("deploy.confirmation-timeout must be positive"))
	}
	if c.Deploy.PollInterval <= 0 {
		errs = append(errs, errors.New("deploy.poll-interval must be positive"))
	}
	if c.Deploy.GasLimit < 0 {
		errs = append(errs, errors.New("deploy.gas-limit must not be negative"))
	}
	if c.RPC.DialAttempts == 0 {
		errs = append(errs, errors.New("rpc.dial-attempts must be at least 1"))
	}

	return errors.Join(errs...)
}

func (c *Compiler) Validate() error {
	var errs []error

	if c.Image == "" {
		errs = append(errs, errors.New("compiler.image is required"))
	}
	if c.SourcesDir == "" {
		errs = append(errs, errors.New("compiler.sources-dir is required"))
	}
	if c.Output == "" {
		errs = append(errs, errors.New("compiler.output is required"))
	}
	if c.OptimizerRuns < 0 {
		errs = append(errs, errors.New("compiler.optimizer-runs must not be negative"))
	}

	return errors.Join(errs...)
}
