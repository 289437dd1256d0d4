package cmd

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

var showCmd = &cobra.Command{
	Use:   "show [name]",
	Short: "List stored results or print one of them",
	Args:  cobra.MaximumNArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		show(cmd, args)
	},
}

func init() {
	rootCmd.AddCommand(showCmd)

	showCmd.Flags().Bool("raw", false, "print only the model answer text")
}

func show(cmd *cobra.Command, args []string) {
	ctx := context.Background()
	e := newEnv()
	defer e.close()

	results, err := e.results(ctx)
	if err != nil {
		e.fatal("opening result store", zap.Error(err))
	}

	out := cmd.OutOrStdout()

	if len(args) == 0 {
		names, err := results.List(ctx)
		if err != nil {
			e.fatal("listing results", zap.Error(err))
		}
		for _, n := range names {
			fmt.Fprintln(out, n)
		}
		return
	}

	rec, err := results.Load(ctx, args[0])
	if err != nil {
		e.fatal("loading result", zap.String("name", args[0]), zap.Error(err))
	}

	if raw, _ := cmd.Flags().GetBool("raw"); raw {
		fmt.Fprintln(out, rec.Text)
		return
	}

	// do not bother error since the record was decoded from json
	pretty, _ := json.MarshalIndent(rec, "", "  ")
	fmt.Fprintln(out, string(pretty))
}
