package contracts

import "github.com/ethereum/go-ethereum/accounts/abi"

type CompiledContract struct {
	ABI      abi.ABI
	RawABI   string
	Bytecode []byte
}

const (
	ContractNameFarmFactory     = "FarmFactory"
	ContractNameFarmGenerator01 = "FarmGenerator01"

	contractsFileName = "contracts.json"
)

// Names lists the contracts this tool deploys. Artifacts for other contracts are ignored.
var Names = map[string]struct{}{
	ContractNameFarmFactory:     {},
	ContractNameFarmGenerator01: {},
}
