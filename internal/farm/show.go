package farm

import (
	"encoding/json"
	"fmt"
	"io"

	"github.com/compose-network/farm-deployer/configs"
	"github.com/compose-network/farm-deployer/internal/deployment/store"
	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"
)

const (
	formatJSON = "json"
	formatYAML = "yaml"
)

var showCmd = &cobra.Command{
	Use:   "show",
	Short: "Print the deployment document of the selected network",
	RunE: func(cmd *cobra.Command, args []string) error {
		format, _ := cmd.Flags().GetString(flagFormat)
		return show(configs.Values, format, cmd.OutOrStdout())
	},
}

func show(cfg configs.Config, format string, out io.Writer) error {
	if err := cfg.Validate(); err != nil {
		return err
	}

	doc, err := store.NewFileStore(cfg.DeploymentsDir).Read(cfg.Network)
	if err != nil {
		return err
	}

	var data []byte
	switch format {
	case formatJSON, "":
		data, err = json.MarshalIndent(doc, "", "  ")
		data = append(data, '\n')
	case formatYAML:
		data, err = yaml.Marshal(doc)
	default:
		return fmt.Errorf("unsupported format '%s', expected %s or %s", format, formatJSON, formatYAML)
	}
	if err != nil {
		return fmt.Errorf("failed to encode deployment document: %w", err)
	}

	_, err = out.Write(data)
	return err
}
