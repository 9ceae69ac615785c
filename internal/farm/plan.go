package farm

import (
	"fmt"
	"io"
	"strings"
	"text/tabwriter"

	"github.com/compose-network/farm-deployer/configs"
	"github.com/compose-network/farm-deployer/internal/deployment/plan"
	"github.com/compose-network/farm-deployer/internal/deployment/store"
	"github.com/spf13/cobra"
)

var planCmd = &cobra.Command{
	Use:   "plan",
	Short: "Print the deployment steps in execution order",
	Long:  "Prints every step with its dependencies and, for deployments, the address already recorded for the selected network.",
	RunE: func(cmd *cobra.Command, args []string) error {
		return printPlan(configs.Values, cmd.OutOrStdout())
	},
}

func printPlan(cfg configs.Config, out io.Writer) error {
	if err := cfg.Validate(); err != nil {
		return err
	}

	farmPlan, err := plan.Farm()
	if err != nil {
		return fmt.Errorf("failed to build deployment plan: %w", err)
	}

	doc, err := store.NewFileStore(cfg.DeploymentsDir).Read(cfg.Network)
	if err != nil {
		return err
	}

	w := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "#\tSTEP\tKIND\tCALL\tDEPENDS ON\tRECORDED")
	for i, step := range farmPlan.Steps() {
		deps := "-"
		if d := farmPlan.DependenciesOf(step.Name); len(d) > 0 {
			deps = strings.Join(d, ",")
		}

		recorded := "-"
		if step.Kind == plan.KindDeploy {
			if address, ok := doc[step.RecordName()]; ok {
				recorded = address
			}
		}

		fmt.Fprintf(w, "%d\t%s\t%s\t%s\t%s\t%s\n", i+1, step.Name, step.Kind, describeCall(step), deps, recorded)
	}

	return w.Flush()
}

func describeCall(step plan.Step) string {
	args := make([]string, 0, len(step.Args))
	for _, arg := range step.Args {
		args = append(args, arg.String())
	}

	if step.Kind == plan.KindTransact {
		return fmt.Sprintf("@%s.%s(%s)", step.Target, step.Method, strings.Join(args, ", "))
	}
	return fmt.Sprintf("new %s(%s)", step.Contract, strings.Join(args, ", "))
}
