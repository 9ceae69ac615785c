package deployment

import (
	"bytes"
	"context"
	"errors"
	"math/big"
	"testing"
	"time"

	"github.com/compose-network/farm-deployer/internal/deployment/plan"
	"github.com/compose-network/farm-deployer/internal/deployment/store"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/fatih/color"
	"github.com/go-git/go-billy/v5/memfs"
	"github.com/go-git/go-billy/v5/util"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testNetwork = "bsc"

type (
	deployCall struct {
		contract string
		args     []any
	}

	txCall struct {
		contract string
		to       common.Address
		method   string
		args     []any
	}

	fakeClient struct {
		nonce        uint64
		deployErr    map[string]error
		txErr        error
		reverted     map[string]bool
		block        bool
		receipts     map[common.Hash]*types.Receipt
		deployments  []deployCall
		transactions []txCall
	}

	event struct {
		kind string
		step string
		arg  string
	}

	recordingReporter struct {
		events []event
	}
)

func newFakeClient() *fakeClient {
	return &fakeClient{
		deployErr: make(map[string]error),
		reverted:  make(map[string]bool),
		receipts:  make(map[common.Hash]*types.Receipt),
	}
}

func (c *fakeClient) Network() string {
	return testNetwork
}

func (c *fakeClient) next(contractAddress common.Address, key string) *types.Transaction {
	c.nonce++
	tx := types.NewTx(&types.LegacyTx{Nonce: c.nonce})
	status := types.ReceiptStatusSuccessful
	if c.reverted[key] {
		status = types.ReceiptStatusFailed
	}
	c.receipts[tx.Hash()] = &types.Receipt{
		Status:          status,
		TxHash:          tx.Hash(),
		ContractAddress: contractAddress,
		BlockNumber:     new(big.Int).SetUint64(c.nonce),
	}

	return tx
}

func (c *fakeClient) SubmitDeployment(_ context.Context, contract string, args ...any) (*types.Transaction, common.Address, error) {
	if err := c.deployErr[contract]; err != nil {
		return nil, common.Address{}, err
	}
	c.deployments = append(c.deployments, deployCall{contract: contract, args: args})
	address := common.BigToAddress(new(big.Int).SetUint64(0x1000 + c.nonce + 1))

	return c.next(address, contract), address, nil
}

func (c *fakeClient) SubmitTransaction(_ context.Context, contract string, to common.Address, method string, args ...any) (*types.Transaction, error) {
	if c.txErr != nil {
		return nil, c.txErr
	}
	c.transactions = append(c.transactions, txCall{contract: contract, to: to, method: method, args: args})

	return c.next(common.Address{}, method), nil
}

func (c *fakeClient) WaitForReceipt(ctx context.Context, hash common.Hash) (*types.Receipt, error) {
	if c.block {
		<-ctx.Done()
		return nil, ctx.Err()
	}
	receipt, ok := c.receipts[hash]
	if !ok {
		return nil, errors.New("unknown transaction")
	}

	return receipt, nil
}

func (r *recordingReporter) Submitted(step plan.Step, tx common.Hash) {
	r.events = append(r.events, event{"submitted", step.Name, tx.Hex()})
}

func (r *recordingReporter) Deployed(step plan.Step, address common.Address) {
	r.events = append(r.events, event{"deployed", step.Name, address.Hex()})
}

func (r *recordingReporter) Confirmed(step plan.Step, tx common.Hash) {
	r.events = append(r.events, event{"confirmed", step.Name, tx.Hex()})
}

func (r *recordingReporter) Skipped(step plan.Step, address common.Address) {
	r.events = append(r.events, event{"skipped", step.Name, address.Hex()})
}

func (r *recordingReporter) kinds() []string {
	kinds := make([]string, 0, len(r.events))
	for _, e := range r.events {
		kinds = append(kinds, e.kind+":"+e.step)
	}
	return kinds
}

func farmPlan(t *testing.T) *plan.Plan {
	t.Helper()
	p, err := plan.Farm()
	require.NoError(t, err)
	return p
}

func TestOrchestrator_DeploysFarm(t *testing.T) {
	client := newFakeClient()
	records := store.NewStore(memfs.New())
	reporter := &recordingReporter{}

	result, err := NewOrchestrator(client, records, WithReporter(reporter)).Run(context.Background(), farmPlan(t))
	require.NoError(t, err)

	factory := result.Addresses[plan.StepDeployFactory]
	generator := result.Addresses[plan.StepDeployGenerator]
	require.NotEqual(t, common.Address{}, factory)
	require.NotEqual(t, common.Address{}, generator)

	require.Len(t, client.deployments, 2)
	assert.Equal(t, "FarmFactory", client.deployments[0].contract)
	assert.Empty(t, client.deployments[0].args)
	assert.Equal(t, "FarmGenerator01", client.deployments[1].contract)
	assert.Equal(t, []any{factory}, client.deployments[1].args)

	require.Len(t, client.transactions, 1)
	assert.Equal(t, txCall{
		contract: "FarmFactory",
		to:       factory,
		method:   "adminAllowFarmGenerator",
		args:     []any{generator, true},
	}, client.transactions[0])

	doc, err := records.Read(testNetwork)
	require.NoError(t, err)
	assert.Equal(t, store.Document{
		"FarmFactory":     factory.Hex(),
		"FarmGenerator01": generator.Hex(),
	}, doc)

	pending, err := records.Pending(testNetwork)
	require.NoError(t, err)
	assert.Empty(t, pending)

	assert.Equal(t, testNetwork, result.Network)
	assert.Len(t, result.Transactions, 3)
	assert.Empty(t, result.Skipped)
	assert.Equal(t, []string{
		"submitted:DeployFarmFactory", "deployed:DeployFarmFactory",
		"submitted:DeployFarmGenerator01", "deployed:DeployFarmGenerator01",
		"submitted:RegisterFarmGenerator", "confirmed:RegisterFarmGenerator",
	}, reporter.kinds())
}

func TestOrchestrator_AbortsOnFailure(t *testing.T) {
	tests := []struct {
		name        string
		setup       func(c *fakeClient)
		wantStep    string
		wantErr     error
		wantRecords []string
	}{
		{
			name:        "generator deployment rejected",
			setup:       func(c *fakeClient) { c.deployErr["FarmGenerator01"] = errors.New("insufficient funds") },
			wantStep:    plan.StepDeployGenerator,
			wantErr:     ErrChainSubmission,
			wantRecords: []string{"FarmFactory"},
		},
		{
			name:     "factory deployment reverted",
			setup:    func(c *fakeClient) { c.reverted["FarmFactory"] = true },
			wantStep: plan.StepDeployFactory,
			wantErr:  ErrChainConfirmation,
		},
		{
			name:        "registration rejected",
			setup:       func(c *fakeClient) { c.txErr = errors.New("execution reverted: only admin") },
			wantStep:    plan.StepRegisterGenerator,
			wantErr:     ErrChainSubmission,
			wantRecords: []string{"FarmFactory", "FarmGenerator01"},
		},
		{
			name:        "registration reverted",
			setup:       func(c *fakeClient) { c.reverted["adminAllowFarmGenerator"] = true },
			wantStep:    plan.StepRegisterGenerator,
			wantErr:     ErrChainConfirmation,
			wantRecords: []string{"FarmFactory", "FarmGenerator01"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			client := newFakeClient()
			tt.setup(client)
			records := store.NewStore(memfs.New())

			_, err := NewOrchestrator(client, records).Run(context.Background(), farmPlan(t))
			require.Error(t, err)
			assert.ErrorIs(t, err, tt.wantErr)

			var stepErr *StepError
			require.ErrorAs(t, err, &stepErr)
			assert.Equal(t, tt.wantStep, stepErr.Step)

			doc, err := records.Read(testNetwork)
			require.NoError(t, err)
			names := make([]string, 0, len(doc))
			for name := range doc {
				names = append(names, name)
			}
			assert.ElementsMatch(t, tt.wantRecords, names)

			pending, err := records.Pending(testNetwork)
			require.NoError(t, err)
			assert.Empty(t, pending)
		})
	}
}

func TestOrchestrator_NoRegistrationWhenGeneratorFails(t *testing.T) {
	client := newFakeClient()
	client.deployErr["FarmGenerator01"] = errors.New("nonce too low")

	_, err := NewOrchestrator(client, store.NewStore(memfs.New())).Run(context.Background(), farmPlan(t))
	require.Error(t, err)
	assert.Empty(t, client.transactions)
}

func TestOrchestrator_ConfirmationTimeout(t *testing.T) {
	client := newFakeClient()
	client.block = true
	records := store.NewStore(memfs.New())

	_, err := NewOrchestrator(client, records, WithConfirmationTimeout(20*time.Millisecond)).
		Run(context.Background(), farmPlan(t))
	require.ErrorIs(t, err, ErrConfirmationTimeout)

	doc, err := records.Read(testNetwork)
	require.NoError(t, err)
	assert.Empty(t, doc)

	pending, err := records.Pending(testNetwork)
	require.NoError(t, err)
	assert.Contains(t, pending, plan.StepDeployFactory)
}

func TestOrchestrator_CancelledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	client := newFakeClient()
	_, err := NewOrchestrator(client, store.NewStore(memfs.New())).Run(ctx, farmPlan(t))
	require.ErrorIs(t, err, context.Canceled)
	assert.Empty(t, client.deployments)
}

func TestOrchestrator_ResumeSkipsRecordedContracts(t *testing.T) {
	factory := common.HexToAddress("0x00000000000000000000000000000000000000fa")
	records := store.NewStore(memfs.New())
	require.NoError(t, records.Write(testNetwork, "FarmFactory", factory.Hex()))

	client := newFakeClient()
	reporter := &recordingReporter{}
	result, err := NewOrchestrator(client, records, WithReporter(reporter)).Run(context.Background(), farmPlan(t))
	require.NoError(t, err)

	assert.Equal(t, []string{plan.StepDeployFactory}, result.Skipped)
	require.Len(t, client.deployments, 1)
	assert.Equal(t, []any{factory}, client.deployments[0].args)
	assert.Equal(t, factory, client.transactions[0].to)
	assert.Equal(t, "skipped:DeployFarmFactory", reporter.kinds()[0])

	doc, err := records.Read(testNetwork)
	require.NoError(t, err)
	assert.Equal(t, factory.Hex(), doc["FarmFactory"])
}

func TestOrchestrator_FreshRunRedeploys(t *testing.T) {
	records := store.NewStore(memfs.New())
	require.NoError(t, records.Write(testNetwork, "FarmFactory", "0x00000000000000000000000000000000000000fa"))

	client := newFakeClient()
	result, err := NewOrchestrator(client, records, WithResume(false)).Run(context.Background(), farmPlan(t))
	require.NoError(t, err)

	assert.Empty(t, result.Skipped)
	assert.Len(t, client.deployments, 2)

	doc, err := records.Read(testNetwork)
	require.NoError(t, err)
	assert.Equal(t, result.Addresses[plan.StepDeployFactory].Hex(), doc["FarmFactory"])
}

func TestOrchestrator_ResumeWaitsForPendingTransaction(t *testing.T) {
	records := store.NewStore(memfs.New())
	client := newFakeClient()

	factory := common.HexToAddress("0x00000000000000000000000000000000000000fb")
	journaled := common.HexToHash("0xabc")
	client.receipts[journaled] = &types.Receipt{
		Status:          types.ReceiptStatusSuccessful,
		TxHash:          journaled,
		ContractAddress: factory,
		BlockNumber:     big.NewInt(7),
	}
	require.NoError(t, records.SetPending(testNetwork, plan.StepDeployFactory, journaled.Hex()))

	result, err := NewOrchestrator(client, records).Run(context.Background(), farmPlan(t))
	require.NoError(t, err)

	require.Len(t, client.deployments, 1)
	assert.Equal(t, "FarmGenerator01", client.deployments[0].contract)
	assert.Equal(t, factory, result.Addresses[plan.StepDeployFactory])
	assert.Equal(t, journaled, result.Transactions[plan.StepDeployFactory])

	doc, err := records.Read(testNetwork)
	require.NoError(t, err)
	assert.Equal(t, factory.Hex(), doc["FarmFactory"])

	pending, err := records.Pending(testNetwork)
	require.NoError(t, err)
	assert.Empty(t, pending)
}

func TestOrchestrator_RejectsCorruptDocument(t *testing.T) {
	fs := memfs.New()
	f, err := fs.Create("bsc.json")
	require.NoError(t, err)
	_, err = f.Write([]byte("{not json"))
	require.NoError(t, err)
	require.NoError(t, f.Close())

	client := newFakeClient()
	_, err = NewOrchestrator(client, store.NewStore(fs)).Run(context.Background(), farmPlan(t))
	require.ErrorIs(t, err, store.ErrCorruptDocument)
	assert.Empty(t, client.deployments)
}

func TestOrchestrator_FreshRunRejectsCorruptDocument(t *testing.T) {
	tests := []struct {
		name string
		file string
	}{
		{name: "document", file: "bsc.json"},
		{name: "pending journal", file: "bsc.pending.json"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			fs := memfs.New()
			require.NoError(t, util.WriteFile(fs, tt.file, []byte("{not json"), 0644))

			client := newFakeClient()
			_, err := NewOrchestrator(client, store.NewStore(fs), WithResume(false)).Run(context.Background(), farmPlan(t))
			require.ErrorIs(t, err, store.ErrCorruptDocument)
			assert.Empty(t, client.deployments)
			assert.Empty(t, client.transactions)
		})
	}
}

type failingWriteStore struct {
	*store.Store
}

func (s failingWriteStore) Write(string, string, string) error {
	return errors.New("disk full")
}

func TestOrchestrator_PersistFailureKeepsConfirmedAddress(t *testing.T) {
	client := newFakeClient()
	reporter := &recordingReporter{}

	result, err := NewOrchestrator(client, failingWriteStore{store.NewStore(memfs.New())}, WithReporter(reporter)).
		Run(context.Background(), farmPlan(t))
	require.Error(t, err)

	var stepErr *StepError
	require.ErrorAs(t, err, &stepErr)
	assert.Equal(t, plan.StepDeployFactory, stepErr.Step)

	factory := result.Addresses[plan.StepDeployFactory]
	require.NotEqual(t, common.Address{}, factory)
	assert.Contains(t, err.Error(), factory.Hex())
	assert.Contains(t, err.Error(), result.Transactions[plan.StepDeployFactory].Hex())
	assert.Equal(t, []string{"submitted:DeployFarmFactory", "deployed:DeployFarmFactory"}, reporter.kinds())
}

func TestOrchestrator_ResumeClearsJournalOfRecordedContract(t *testing.T) {
	records := store.NewStore(memfs.New())
	require.NoError(t, records.Write(testNetwork, "FarmFactory", "0x00000000000000000000000000000000000000fa"))
	require.NoError(t, records.SetPending(testNetwork, plan.StepDeployFactory, common.HexToHash("0xabc").Hex()))

	client := newFakeClient()
	result, err := NewOrchestrator(client, records).Run(context.Background(), farmPlan(t))
	require.NoError(t, err)
	assert.Equal(t, []string{plan.StepDeployFactory}, result.Skipped)

	pending, err := records.Pending(testNetwork)
	require.NoError(t, err)
	assert.Empty(t, pending)
}

func TestOrchestrator_RejectsNonAddressRecord(t *testing.T) {
	records := store.NewStore(memfs.New())
	require.NoError(t, records.Write(testNetwork, "FarmFactory", "pending"))

	_, err := NewOrchestrator(newFakeClient(), records).Run(context.Background(), farmPlan(t))
	require.ErrorIs(t, err, store.ErrCorruptDocument)
}

func TestRun_ResolveArgs(t *testing.T) {
	known := common.HexToAddress("0x01")
	r := &run{result: &Result{Addresses: map[string]common.Address{"A": known}}}

	args, err := r.resolveArgs(plan.Step{Args: []plan.Arg{plan.Ref("A"), plan.Value(true)}})
	require.NoError(t, err)
	assert.Equal(t, []any{known, true}, args)

	_, err = r.resolveArgs(plan.Step{Args: []plan.Arg{plan.Ref("B")}})
	require.ErrorIs(t, err, ErrUnresolvedDependency)
}

func TestConsoleReporter(t *testing.T) {
	noColor := color.NoColor
	color.NoColor = true
	t.Cleanup(func() { color.NoColor = noColor })

	var out bytes.Buffer
	reporter := NewConsoleReporter(&out)

	factory := plan.Step{Name: plan.StepDeployFactory, Kind: plan.KindDeploy, Contract: "FarmFactory"}
	register := plan.Step{Name: plan.StepRegisterGenerator, Kind: plan.KindTransact, Contract: "FarmFactory"}
	address := common.HexToAddress("0x00000000000000000000000000000000000000fa")
	hash := common.HexToHash("0x01")

	reporter.Deployed(factory, address)
	reporter.Confirmed(register, hash)
	reporter.Skipped(factory, address)

	assert.Equal(t,
		"FarmFactory deployed to: "+address.Hex()+"\n"+
			"RegisterFarmGenerator confirmed in txn: "+hash.Hex()+"\n"+
			"FarmFactory already deployed at: "+address.Hex()+" (skipped)\n",
		out.String())
}

func TestStepError(t *testing.T) {
	err := &StepError{Step: plan.StepDeployGenerator, Err: ErrChainSubmission}
	assert.Equal(t, "step DeployFarmGenerator01 failed: chain submission failed", err.Error())
	assert.ErrorIs(t, err, ErrChainSubmission)
}
