package contracts

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"io/fs"
	"log/slog"
	"path/filepath"
	"sort"
	"strconv"
	"strings"

	"github.com/compose-network/farm-deployer/internal/infra/docker"
	"github.com/compose-network/farm-deployer/internal/infra/filesystem"
	"github.com/compose-network/farm-deployer/internal/logger"
	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/moby/go-archive"
)

const containerSourcesDir = "/sources"

type (
	// Runner runs a container to completion and returns its stdout.
	Runner interface {
		EnsureImage(ctx context.Context, imageName string) error
		Run(ctx context.Context, opts docker.RunOptions) (string, error)
	}

	CompilerConfig struct {
		// Image is the solc image, e.g. ethereum/solc:0.6.12.
		Image string
		// RootDir is shipped into the container; imports resolve relative to it.
		RootDir string
		// SourcesDir holds the .sol files to compile, relative to RootDir.
		SourcesDir string
		// OutputPath is where contracts.json is written, relative to the writer root.
		OutputPath    string
		OptimizerRuns int
		Remappings    []string
	}

	// Compiler compiles Solidity contracts with solc running in docker
	Compiler struct {
		runner Runner
		writer filesystem.Writer
		cfg    CompilerConfig
		logger *slog.Logger
	}

	combinedOutput struct {
		Contracts map[string]struct {
			ABI json.RawMessage `json:"abi"`
			Bin string          `json:"bin"`
		} `json:"contracts"`
		Version string `json:"version"`
	}
)

// NewCompiler creates a new contract compiler
func NewCompiler(runner Runner, writer filesystem.Writer, cfg CompilerConfig) *Compiler {
	return &Compiler{
		runner: runner,
		writer: writer,
		cfg:    cfg,
		logger: logger.Named("contracts_compiler"),
	}
}

// Compile compiles every .sol file under the sources directory and writes contracts.json.
// It returns the names of the contracts written.
func (c *Compiler) Compile(ctx context.Context) ([]string, error) {
	c.logger.
		With("image", c.cfg.Image).
		With("root_dir", c.cfg.RootDir).
		With("sources_dir", c.cfg.SourcesDir).
		Info("starting contract compilation")

	sources, err := listSources(c.cfg.RootDir, c.cfg.SourcesDir)
	if err != nil {
		return nil, err
	}
	if len(sources) == 0 {
		return nil, fmt.Errorf("no .sol files found in '%s'", filepath.Join(c.cfg.RootDir, c.cfg.SourcesDir))
	}

	if err := c.runner.EnsureImage(ctx, c.cfg.Image); err != nil {
		return nil, fmt.Errorf("failed to ensure compiler image: %w", err)
	}

	tarball, err := archive.TarWithOptions(c.cfg.RootDir, &archive.TarOptions{
		ExcludePatterns: []string{".git", "deployments", "artifacts", "cache"},
	})
	if err != nil {
		return nil, fmt.Errorf("failed to archive sources: %w", err)
	}
	defer tarball.Close()

	output, err := c.runner.Run(ctx, docker.RunOptions{
		Image:      c.cfg.Image,
		Cmd:        c.solcArgs(sources),
		WorkDir:    containerSourcesDir,
		Archives:   map[string]io.Reader{containerSourcesDir: tarball},
		StreamLogs: true,
	})
	if err != nil {
		return nil, fmt.Errorf("solc failed: %w", err)
	}

	compiled, err := parseCombinedJSON([]byte(output))
	if err != nil {
		return nil, err
	}

	if err := c.writer.WriteJSON(c.cfg.OutputPath, compiled); err != nil {
		return nil, fmt.Errorf("failed to write %s: %w", contractsFileName, err)
	}

	names := make([]string, 0, len(compiled))
	for name := range compiled {
		names = append(names, name)
	}
	sort.Strings(names)

	c.logger.
		With("output", c.cfg.OutputPath).
		With("contracts", names).
		Info("contracts compiled successfully")

	return names, nil
}

func (c *Compiler) solcArgs(sources []string) []string {
	args := append([]string{}, c.cfg.Remappings...)
	args = append(args, "--combined-json", "abi,bin")
	if c.cfg.OptimizerRuns > 0 {
		args = append(args, "--optimize", "--optimize-runs", strconv.Itoa(c.cfg.OptimizerRuns))
	}

	return append(args, sources...)
}

// listSources returns the .sol files under root/sourcesDir as slash paths relative to root.
func listSources(root, sourcesDir string) ([]string, error) {
	var sources []string
	err := filepath.WalkDir(filepath.Join(root, sourcesDir), func(p string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() || filepath.Ext(p) != ".sol" {
			return nil
		}

		rel, err := filepath.Rel(root, p)
		if err != nil {
			return err
		}
		sources = append(sources, filepath.ToSlash(rel))

		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("failed to list sources: %w", err)
	}

	sort.Strings(sources)

	return sources, nil
}

// parseCombinedJSON converts solc --combined-json output into the contracts.json layout.
// Contracts without bytecode (interfaces, abstract contracts) are skipped.
func parseCombinedJSON(data []byte) (map[string]map[string]any, error) {
	var out combinedOutput
	if err := json.Unmarshal(data, &out); err != nil {
		return nil, fmt.Errorf("failed to parse solc output: %w", err)
	}

	result := make(map[string]map[string]any)
	origins := make(map[string]string)
	for key, contract := range out.Contracts {
		if contract.Bin == "" {
			continue
		}

		name := key
		if idx := strings.LastIndex(key, ":"); idx >= 0 {
			name = key[idx+1:]
		}
		if previous, ok := origins[name]; ok {
			return nil, fmt.Errorf("contract %s is defined twice: '%s' and '%s'", name, previous, key)
		}

		rawABI := contract.ABI
		// solc before 0.8 emits the ABI as a JSON encoded string.
		var encoded string
		if err := json.Unmarshal(rawABI, &encoded); err == nil {
			rawABI = json.RawMessage(encoded)
		}
		if _, err := abi.JSON(strings.NewReader(string(rawABI))); err != nil {
			return nil, fmt.Errorf("failed to parse ABI for %s: %w", name, err)
		}

		origins[name] = key
		result[name] = map[string]any{
			"abi":      rawABI,
			"bytecode": "0x" + strings.TrimPrefix(contract.Bin, "0x"),
		}
	}

	return result, nil
}
