// Package chain submits contract deployments and calls to an EVM network
// and waits for their receipts.
package chain

import (
	"context"
	"crypto/ecdsa"
	"errors"
	"fmt"
	"log/slog"
	"math/big"
	"time"

	"github.com/compose-network/farm-deployer/internal/contracts"
	"github.com/compose-network/farm-deployer/internal/logger"
	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/accounts/abi/bind"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/crypto"
)

const DefaultPollInterval = 2 * time.Second

type (
	// Backend is the subset of an RPC client needed to deploy and call contracts.
	Backend interface {
		bind.ContractBackend
		bind.DeployBackend
		ChainID(ctx context.Context) (*big.Int, error)
	}

	Client struct {
		network      string
		backend      Backend
		key          *ecdsa.PrivateKey
		from         common.Address
		chainID      *big.Int
		contracts    map[string]contracts.CompiledContract
		gasLimit     uint64
		pollInterval time.Duration
		logger       *slog.Logger
	}

	Option func(*Client)
)

// WithGasLimit fixes the gas limit of every transaction. Zero means estimate.
func WithGasLimit(limit uint64) Option {
	return func(c *Client) {
		c.gasLimit = limit
	}
}

// WithPollInterval sets how often receipts are polled.
func WithPollInterval(interval time.Duration) Option {
	return func(c *Client) {
		if interval > 0 {
			c.pollInterval = interval
		}
	}
}

// NewClient creates a client signing with key on the backend's chain.
func NewClient(
	ctx context.Context,
	network string,
	backend Backend,
	key *ecdsa.PrivateKey,
	compiled map[string]contracts.CompiledContract,
	opts ...Option,
) (*Client, error) {
	if key == nil {
		return nil, errors.New("signing key is required")
	}

	chainID, err := backend.ChainID(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to get chain ID: %w", err)
	}

	c := &Client{
		network:      network,
		backend:      backend,
		key:          key,
		from:         crypto.PubkeyToAddress(key.PublicKey),
		chainID:      chainID,
		contracts:    compiled,
		pollInterval: DefaultPollInterval,
		logger: logger.Named("chain_client").
			With("network", network).
			With("chain_id", chainID.String()),
	}
	for _, opt := range opts {
		opt(c)
	}

	return c, nil
}

func (c *Client) Network() string {
	return c.network
}

// From returns the address transactions are sent from.
func (c *Client) From() common.Address {
	return c.from
}

// SubmitDeployment signs and broadcasts the creation transaction for contract.
// It does not wait for the transaction to be mined.
func (c *Client) SubmitDeployment(ctx context.Context, contract string, args ...any) (*types.Transaction, common.Address, error) {
	compiled, err := c.contract(contract)
	if err != nil {
		return nil, common.Address{}, err
	}

	auth, err := c.transactor(ctx)
	if err != nil {
		return nil, common.Address{}, err
	}

	address, tx, _, err := bind.DeployContract(auth, compiled.ABI, compiled.Bytecode, c.backend, args...)
	if err != nil {
		return nil, common.Address{}, fmt.Errorf("failed to deploy %s: %w", contract, err)
	}

	c.logger.
		With("contract", contract).
		With("tx", tx.Hash().Hex()).
		With("address", address.Hex()).
		Info("deployment submitted")

	return tx, address, nil
}

// SubmitTransaction signs and broadcasts a call of method on the contract at to.
func (c *Client) SubmitTransaction(ctx context.Context, contract string, to common.Address, method string, args ...any) (*types.Transaction, error) {
	compiled, err := c.contract(contract)
	if err != nil {
		return nil, err
	}
	if _, ok := compiled.ABI.Methods[method]; !ok {
		return nil, fmt.Errorf("contract %s has no method %s", contract, method)
	}

	auth, err := c.transactor(ctx)
	if err != nil {
		return nil, err
	}

	bound := bind.NewBoundContract(to, compiled.ABI, c.backend, c.backend, c.backend)
	tx, err := bound.Transact(auth, method, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to call %s.%s: %w", contract, method, err)
	}

	c.logger.
		With("contract", contract).
		With("method", method).
		With("to", to.Hex()).
		With("tx", tx.Hash().Hex()).
		Info("transaction submitted")

	return tx, nil
}

// WaitForReceipt polls for the receipt of hash until it is mined or ctx is done.
// Transient RPC errors are logged and polling continues.
func (c *Client) WaitForReceipt(ctx context.Context, hash common.Hash) (*types.Receipt, error) {
	ticker := time.NewTicker(c.pollInterval)
	defer ticker.Stop()

	log := c.logger.With("tx", hash.Hex())
	for {
		receipt, err := c.backend.TransactionReceipt(ctx, hash)
		if err == nil {
			log.
				With("block", receipt.BlockNumber.String()).
				With("status", receipt.Status).
				Debug("receipt received")
			return receipt, nil
		}
		if !errors.Is(err, ethereum.NotFound) {
			if ctx.Err() != nil {
				return nil, ctx.Err()
			}
			log.With("err", err.Error()).Warn("failed to fetch receipt, retrying")
		}

		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-ticker.C:
		}
	}
}

func (c *Client) contract(name string) (contracts.CompiledContract, error) {
	compiled, ok := c.contracts[name]
	if !ok {
		return contracts.CompiledContract{}, fmt.Errorf("%w: %s", contracts.ErrContractNotFound, name)
	}

	return compiled, nil
}

func (c *Client) transactor(ctx context.Context) (*bind.TransactOpts, error) {
	auth, err := bind.NewKeyedTransactorWithChainID(c.key, c.chainID)
	if err != nil {
		return nil, fmt.Errorf("failed to create transactor: %w", err)
	}

	auth.Context = ctx
	auth.GasLimit = c.gasLimit

	return auth, nil
}
