// Package contractstest provides small compiled contracts for tests.
package contractstest

import (
	"strings"

	"github.com/compose-network/farm-deployer/internal/contracts"
	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common/hexutil"
)

const (
	FarmFactoryABI = `[
		{"inputs":[],"stateMutability":"nonpayable","type":"constructor"},
		{"inputs":[{"internalType":"address","name":"_address","type":"address"},{"internalType":"bool","name":"_allow","type":"bool"}],"name":"adminAllowFarmGenerator","outputs":[],"stateMutability":"nonpayable","type":"function"}
	]`

	FarmGeneratorABI = `[
		{"inputs":[{"internalType":"address","name":"_factory","type":"address"}],"stateMutability":"nonpayable","type":"constructor"}
	]`

	// AcceptingBytecode deploys a contract whose code returns 42 for any call.
	// Constructor arguments appended to it are ignored.
	AcceptingBytecode = "0x600a600c600039600a6000f3602a60005260206000f3"

	// RevertingBytecode deploys a contract whose code reverts on every call.
	RevertingBytecode = "0x6005600c60003960056000f360006000fd"
)

// Contract builds a CompiledContract from an ABI and hex bytecode, panicking on bad input.
func Contract(rawABI, bytecode string) contracts.CompiledContract {
	parsed, err := abi.JSON(strings.NewReader(rawABI))
	if err != nil {
		panic(err)
	}

	return contracts.CompiledContract{
		ABI:      parsed,
		RawABI:   rawABI,
		Bytecode: hexutil.MustDecode(bytecode),
	}
}

// Farm returns the farm contracts backed by AcceptingBytecode.
func Farm() map[string]contracts.CompiledContract {
	return map[string]contracts.CompiledContract{
		contracts.ContractNameFarmFactory:     Contract(FarmFactoryABI, AcceptingBytecode),
		contracts.ContractNameFarmGenerator01: Contract(FarmGeneratorABI, AcceptingBytecode),
	}
}
