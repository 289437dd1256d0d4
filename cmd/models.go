package cmd

import (
	"fmt"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/spigell/resume-autofill/internal/llm"
)

var modelsCmd = &cobra.Command{
	Use:   "models",
	Short: "Print the configured model lists with their declared limits",
	Run: func(cmd *cobra.Command, _ []string) {
		listModels(cmd)
	},
}

func init() {
	rootCmd.AddCommand(modelsCmd)
}

func listModels(cmd *cobra.Command) {
	e := newEnv()
	defer e.close()

	table := e.config.limitsTable()

	w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "LIST\tPRIORITY\tMODEL\tCONTEXT\tMAX OUTPUT\tKNOWN")

	lists := []struct {
		name       string
		capability llm.Capability
	}{
		{name: "extraction", capability: llm.CapabilityChat},
		{name: "text", capability: llm.CapabilityCompletion},
		{name: "vision", capability: llm.CapabilityVision},
	}
	for _, l := range lists {
		for i, m := range e.config.models(l.capability) {
			id := llm.ModelID(m)
			limits := table.Lookup(id)
			fmt.Fprintf(w, "%s\t%d\t%s\t%d\t%d\t%t\n", l.name, i+1, id, limits.ContextWindow, limits.MaxOutputTokens, table.Has(id))
		}
	}

	w.Flush()
}
