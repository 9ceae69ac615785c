package chain

import (
	"context"
	"crypto/ecdsa"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/avast/retry-go/v4"
	"github.com/compose-network/farm-deployer/internal/logger"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/ethereum/go-ethereum/ethclient"
)

const (
	DefaultDialAttempts = 3
	DefaultDialDelay    = time.Second
)

// ErrChainIDMismatch is returned when the endpoint serves a different chain than configured.
var ErrChainIDMismatch = errors.New("chain id mismatch")

type DialConfig struct {
	URL string
	// ChainID is the expected chain id. Zero disables the check.
	ChainID  uint64
	Attempts uint
	Delay    time.Duration
}

// Dial connects to an RPC endpoint, retrying transient failures, and verifies its chain id.
func Dial(ctx context.Context, cfg DialConfig) (*ethclient.Client, error) {
	if cfg.URL == "" {
		return nil, errors.New("rpc url is empty")
	}

	attempts := cfg.Attempts
	if attempts == 0 {
		attempts = DefaultDialAttempts
	}
	delay := cfg.Delay
	if delay <= 0 {
		delay = DefaultDialDelay
	}

	log := logger.Named("chain_dial")

	var client *ethclient.Client
	err := retry.Do(
		func() error {
			c, err := ethclient.DialContext(ctx, cfg.URL)
			if err != nil {
				return err
			}

			chainID, err := c.ChainID(ctx)
			if err != nil {
				c.Close()
				return fmt.Errorf("failed to get chain ID: %w", err)
			}
			if cfg.ChainID != 0 && chainID.Uint64() != cfg.ChainID {
				c.Close()
				return retry.Unrecoverable(fmt.Errorf("%w: expected %d, endpoint reports %d", ErrChainIDMismatch, cfg.ChainID, chainID.Uint64()))
			}

			client = c
			return nil
		},
		retry.Context(ctx),
		retry.Attempts(attempts),
		retry.Delay(delay),
		retry.LastErrorOnly(true),
		retry.OnRetry(func(n uint, err error) {
			log.With("attempt", n+1).With("err", err.Error()).Warn("failed to dial rpc, retrying")
		}),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to rpc endpoint: %w", err)
	}

	return client, nil
}

// ParsePrivateKey parses a hex encoded secp256k1 key, with or without 0x prefix.
func ParsePrivateKey(value string) (*ecdsa.PrivateKey, error) {
	value = strings.TrimPrefix(strings.TrimSpace(value), "0x")
	if value == "" {
		return nil, errors.New("private key is empty")
	}

	key, err := crypto.HexToECDSA(value)
	if err != nil {
		return nil, fmt.Errorf("failed to parse private key: %w", err)
	}

	return key, nil
}
