// Package deployment runs a deployment plan against one network, step by step,
// persisting every confirmed contract address before moving on.
package deployment

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/compose-network/farm-deployer/internal/deployment/plan"
	"github.com/compose-network/farm-deployer/internal/deployment/store"
	"github.com/compose-network/farm-deployer/internal/logger"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
)

const DefaultConfirmationTimeout = 5 * time.Minute

type (
	// ChainClient submits transactions to the active network.
	ChainClient interface {
		Network() string
		SubmitDeployment(ctx context.Context, contract string, args ...any) (*types.Transaction, common.Address, error)
		SubmitTransaction(ctx context.Context, contract string, to common.Address, method string, args ...any) (*types.Transaction, error)
		WaitForReceipt(ctx context.Context, hash common.Hash) (*types.Receipt, error)
	}

	// RecordStore persists deployed addresses and in-flight transactions per network.
	RecordStore interface {
		Read(network string) (store.Document, error)
		Write(network, name, address string) error
		Pending(network string) (store.Pending, error)
		SetPending(network, step, txHash string) error
		ClearPending(network, step string) error
	}

	Orchestrator struct {
		client              ChainClient
		store               RecordStore
		reporter            Reporter
		confirmationTimeout time.Duration
		resume              bool
		logger              *slog.Logger
	}

	Option func(*Orchestrator)

	// Result summarises a completed run.
	Result struct {
		Network string
		// Addresses maps deploy step names to contract addresses, including skipped steps.
		Addresses map[string]common.Address
		// Transactions maps step names to the transactions confirmed in this run.
		Transactions map[string]common.Hash
		// Skipped lists deploy steps whose record already existed.
		Skipped []string
	}

	// run holds the state of one Run call.
	run struct {
		network  string
		document store.Document
		pending  store.Pending
		result   *Result
	}
)

// WithConfirmationTimeout bounds the wait for each receipt.
func WithConfirmationTimeout(timeout time.Duration) Option {
	return func(o *Orchestrator) {
		if timeout > 0 {
			o.confirmationTimeout = timeout
		}
	}
}

// WithResume controls whether deploy steps already recorded in the document are skipped.
func WithResume(resume bool) Option {
	return func(o *Orchestrator) {
		o.resume = resume
	}
}

func WithReporter(reporter Reporter) Option {
	return func(o *Orchestrator) {
		if reporter != nil {
			o.reporter = reporter
		}
	}
}

func WithLogger(l *slog.Logger) Option {
	return func(o *Orchestrator) {
		if l != nil {
			o.logger = l
		}
	}
}

func NewOrchestrator(client ChainClient, recordStore RecordStore, opts ...Option) *Orchestrator {
	o := &Orchestrator{
		client:              client,
		store:               recordStore,
		reporter:            nopReporter{},
		confirmationTimeout: DefaultConfirmationTimeout,
		resume:              true,
		logger:              logger.Named("orchestrator"),
	}
	for _, opt := range opts {
		opt(o)
	}

	return o
}

// Run executes the steps of p in order. The first failing step aborts the run
// with a *StepError; records persisted by earlier steps are kept.
func (o *Orchestrator) Run(ctx context.Context, p *plan.Plan) (*Result, error) {
	network := o.client.Network()
	r := &run{
		network: network,
		result: &Result{
			Network:      network,
			Addresses:    make(map[string]common.Address),
			Transactions: make(map[string]common.Hash),
		},
		document: store.Document{},
		pending:  store.Pending{},
	}

	// Both files must be readable before anything is submitted.
	// Their contents only drive skipping when resuming.
	document, err := o.store.Read(network)
	if err != nil {
		return nil, fmt.Errorf("failed to read deployment document: %w", err)
	}
	pending, err := o.store.Pending(network)
	if err != nil {
		return nil, fmt.Errorf("failed to read pending transactions: %w", err)
	}
	if o.resume {
		r.document, r.pending = document, pending
	}

	steps := p.Steps()
	o.logger.
		With("network", network).
		With("steps", len(steps)).
		With("resume", o.resume).
		Info("starting deployment")

	for _, step := range steps {
		if err := ctx.Err(); err != nil {
			return r.result, &StepError{Step: step.Name, Err: err}
		}

		var err error
		switch step.Kind {
		case plan.KindDeploy:
			err = o.deploy(ctx, r, step)
		case plan.KindTransact:
			err = o.transact(ctx, r, step)
		default:
			err = fmt.Errorf("%w: unsupported kind %s", plan.ErrInvalidStep, step.Kind)
		}
		if err != nil {
			o.logger.
				With("network", network).
				With("step", step.Name).
				With("err", err.Error()).
				Error("deployment step failed")
			return r.result, &StepError{Step: step.Name, Err: err}
		}
	}

	o.logger.
		With("network", network).
		With("deployed", len(r.result.Addresses)-len(r.result.Skipped)).
		With("skipped", len(r.result.Skipped)).
		Info("deployment completed")

	return r.result, nil
}

func (o *Orchestrator) deploy(ctx context.Context, r *run, step plan.Step) error {
	log := o.logger.With("network", r.network).With("step", step.Name).With("contract", step.Contract)
	record := step.RecordName()

	if existing, ok := r.document[record]; ok && o.resume {
		if !common.IsHexAddress(existing) {
			return fmt.Errorf("%w: record %s holds '%s', not an address", store.ErrCorruptDocument, record, existing)
		}
		address := common.HexToAddress(existing)
		r.result.Addresses[step.Name] = address
		r.result.Skipped = append(r.result.Skipped, step.Name)
		o.reporter.Skipped(step, address)
		log.With("address", address.Hex()).Info("contract already deployed, skipping")

		if _, ok := r.pending[step.Name]; ok {
			delete(r.pending, step.Name)
			if err := o.store.ClearPending(r.network, step.Name); err != nil {
				log.With("err", err.Error()).Warn("failed to clear pending transaction")
			}
		}
		return nil
	}

	args, err := r.resolveArgs(step)
	if err != nil {
		return err
	}

	var predicted common.Address
	hash, submitted, err := o.pendingOr(ctx, r, step, func() (common.Hash, error) {
		tx, address, err := o.client.SubmitDeployment(ctx, step.Contract, args...)
		if err != nil {
			return common.Hash{}, err
		}
		predicted = address
		return tx.Hash(), nil
	})
	if err != nil {
		return err
	}

	receipt, err := o.confirm(ctx, r, step, hash)
	if err != nil {
		return err
	}

	address := receipt.ContractAddress
	if address == (common.Address{}) {
		address = predicted
	}
	if address == (common.Address{}) {
		return fmt.Errorf("%w: receipt of %s has no contract address", ErrChainConfirmation, hash.Hex())
	}

	r.result.Addresses[step.Name] = address
	r.result.Transactions[step.Name] = hash
	o.reporter.Deployed(step, address)

	if err := o.store.Write(r.network, record, address.Hex()); err != nil {
		return fmt.Errorf("failed to persist %s deployed at %s in tx %s: %w", record, address.Hex(), hash.Hex(), err)
	}
	if err := o.store.ClearPending(r.network, step.Name); err != nil {
		log.With("err", err.Error()).Warn("failed to clear pending transaction")
	}

	r.document[record] = address.Hex()
	log.
		With("address", address.Hex()).
		With("tx", hash.Hex()).
		With("resumed", !submitted).
		Info("contract deployed")

	return nil
}

func (o *Orchestrator) transact(ctx context.Context, r *run, step plan.Step) error {
	log := o.logger.With("network", r.network).With("step", step.Name).With("method", step.Method)

	target, ok := r.result.Addresses[step.Target]
	if !ok {
		return fmt.Errorf("%w: target %s has no address", ErrUnresolvedDependency, step.Target)
	}

	args, err := r.resolveArgs(step)
	if err != nil {
		return err
	}

	hash, submitted, err := o.pendingOr(ctx, r, step, func() (common.Hash, error) {
		tx, err := o.client.SubmitTransaction(ctx, step.Contract, target, step.Method, args...)
		if err != nil {
			return common.Hash{}, err
		}
		return tx.Hash(), nil
	})
	if err != nil {
		return err
	}

	if _, err := o.confirm(ctx, r, step, hash); err != nil {
		return err
	}
	if err := o.store.ClearPending(r.network, step.Name); err != nil {
		log.With("err", err.Error()).Warn("failed to clear pending transaction")
	}

	r.result.Transactions[step.Name] = hash
	o.reporter.Confirmed(step, hash)
	log.
		With("to", target.Hex()).
		With("tx", hash.Hex()).
		With("resumed", !submitted).
		Info("transaction confirmed")

	return nil
}

// pendingOr returns the journaled transaction of step when resuming, otherwise it
// calls submit and journals the new hash. submitted reports whether submit ran.
func (o *Orchestrator) pendingOr(ctx context.Context, r *run, step plan.Step, submit func() (common.Hash, error)) (common.Hash, bool, error) {
	if journaled, ok := r.pending[step.Name]; ok && o.resume {
		hash := common.HexToHash(journaled)
		o.logger.
			With("network", r.network).
			With("step", step.Name).
			With("tx", hash.Hex()).
			Info("waiting for previously submitted transaction")
		return hash, false, nil
	}

	hash, err := submit()
	if err != nil {
		return common.Hash{}, false, fmt.Errorf("%w: %w", ErrChainSubmission, err)
	}

	o.reporter.Submitted(step, hash)
	if err := o.store.SetPending(r.network, step.Name, hash.Hex()); err != nil {
		return common.Hash{}, false, fmt.Errorf("failed to journal transaction %s: %w", hash.Hex(), err)
	}
	r.pending[step.Name] = hash.Hex()

	return hash, true, nil
}

// confirm waits for the receipt of hash within the confirmation timeout.
func (o *Orchestrator) confirm(ctx context.Context, r *run, step plan.Step, hash common.Hash) (*types.Receipt, error) {
	waitCtx, cancel := context.WithTimeout(ctx, o.confirmationTimeout)
	defer cancel()

	receipt, err := o.client.WaitForReceipt(waitCtx, hash)
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) && ctx.Err() == nil {
			return nil, fmt.Errorf("%w: no receipt for %s after %s", ErrConfirmationTimeout, hash.Hex(), o.confirmationTimeout)
		}
		return nil, fmt.Errorf("%w: %w", ErrChainConfirmation, err)
	}

	if receipt.Status != types.ReceiptStatusSuccessful {
		// A mined failure is final, the next run must resubmit.
		delete(r.pending, step.Name)
		if err := o.store.ClearPending(r.network, step.Name); err != nil {
			o.logger.With("step", step.Name).With("err", err.Error()).Warn("failed to clear pending transaction")
		}
		return nil, fmt.Errorf("%w: transaction %s reverted in block %s", ErrChainConfirmation, hash.Hex(), receipt.BlockNumber)
	}

	return receipt, nil
}

func (r *run) resolveArgs(step plan.Step) ([]any, error) {
	args := make([]any, 0, len(step.Args))
	for _, arg := range step.Args {
		if !arg.IsRef() {
			args = append(args, arg.Literal())
			continue
		}

		address, ok := r.result.Addresses[arg.RefName()]
		if !ok {
			return nil, fmt.Errorf("%w: %s has no address", ErrUnresolvedDependency, arg.RefName())
		}
		args = append(args, address)
	}

	return args, nil
}
