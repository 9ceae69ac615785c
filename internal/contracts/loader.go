package contracts

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/go-git/go-billy/v5"
	"github.com/go-git/go-billy/v5/util"
)

// ErrContractNotFound is returned when a required contract has no loaded artifact.
var ErrContractNotFound = errors.New("contract artifact not found")

type artifact struct {
	ABI      json.RawMessage `json:"abi"`
	Bytecode string          `json:"bytecode"`
}

// Load reads compiled contracts from path, which is either a compiled contracts.json
// ({"Name": {"abi": [...], "bytecode": "0x..."}}) or a directory of per-contract
// artifacts named <Name>.json with the same abi and bytecode fields.
// Only contracts listed in Names are kept.
func Load(fs billy.Filesystem, path string) (map[string]CompiledContract, error) {
	info, err := fs.Stat(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, fmt.Errorf("artifacts not found at '%s'. Run the compile command first", path)
		}
		return nil, fmt.Errorf("failed to stat '%s': %w", path, err)
	}

	if info.IsDir() {
		return loadArtifactsDir(fs, path)
	}

	data, err := util.ReadFile(fs, path)
	if err != nil {
		return nil, fmt.Errorf("failed to read compiled contracts: %w", err)
	}

	return parseContracts(data)
}

// Require checks that every named contract was loaded.
func Require(loaded map[string]CompiledContract, names ...string) error {
	var errs []error
	for _, name := range names {
		if _, ok := loaded[name]; !ok {
			errs = append(errs, fmt.Errorf("%w: %s", ErrContractNotFound, name))
		}
	}

	return errors.Join(errs...)
}

// parseContracts parses contract JSON data into CompiledContract map
func parseContracts(data []byte) (map[string]CompiledContract, error) {
	var result map[string]artifact
	if err := json.Unmarshal(data, &result); err != nil {
		return nil, fmt.Errorf("failed to parse compiled contracts: %w", err)
	}

	loadedContracts := make(map[string]CompiledContract)
	for name, contract := range result {
		if _, ok := Names[name]; !ok {
			continue
		}

		compiled, err := contract.compile(name)
		if err != nil {
			return nil, err
		}
		loadedContracts[name] = compiled
	}

	return loadedContracts, nil
}

func loadArtifactsDir(fs billy.Filesystem, root string) (map[string]CompiledContract, error) {
	loadedContracts := make(map[string]CompiledContract)
	sources := make(map[string]string)

	err := util.Walk(fs, root, func(path string, info os.FileInfo, err error) error {
		if err != nil {
			return err
		}
		if info.IsDir() || !strings.HasSuffix(path, ".json") || strings.HasSuffix(path, ".dbg.json") {
			return nil
		}

		name := strings.TrimSuffix(filepath.Base(path), ".json")
		if _, ok := Names[name]; !ok {
			return nil
		}
		if previous, ok := sources[name]; ok {
			return fmt.Errorf("contract %s has two artifacts: '%s' and '%s'", name, previous, path)
		}

		data, err := util.ReadFile(fs, path)
		if err != nil {
			return fmt.Errorf("failed to read artifact '%s': %w", path, err)
		}

		var a artifact
		if err := json.Unmarshal(data, &a); err != nil {
			return fmt.Errorf("failed to parse artifact '%s': %w", path, err)
		}

		compiled, err := a.compile(name)
		if err != nil {
			return err
		}

		sources[name] = path
		loadedContracts[name] = compiled

		return nil
	})
	if err != nil {
		return nil, err
	}

	return loadedContracts, nil
}

func (a artifact) compile(name string) (CompiledContract, error) {
	parsedABI, err := abi.JSON(strings.NewReader(string(a.ABI)))
	if err != nil {
		return CompiledContract{}, fmt.Errorf("failed to parse ABI for %s: %w", name, err)
	}

	bytecodeHex := strings.TrimSpace(a.Bytecode)
	if !strings.HasPrefix(bytecodeHex, "0x") {
		bytecodeHex = "0x" + bytecodeHex
	}
	if bytecodeHex == "0x" {
		return CompiledContract{}, fmt.Errorf("contract %s has no bytecode", name)
	}

	bytecode, err := hexutil.Decode(bytecodeHex)
	if err != nil {
		return CompiledContract{}, fmt.Errorf("failed to decode bytecode for %s: %w", name, err)
	}

	return CompiledContract{
		ABI:      parsedABI,
		RawABI:   string(a.ABI),
		Bytecode: bytecode,
	}, nil
}
