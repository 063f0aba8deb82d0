package main

import (
	"fmt"

	"github.com/aixgo-dev/synode/internal/graph"
	"github.com/spf13/cobra"
)

var validateCmd = &cobra.Command{
	Use:   "validate [graph...]",
	Short: "Check graph documents for consistency",
	Long: `Loads the named graphs, or every synod.*.yaml below --dir, and reports
validation errors. Chains that can recurse without bound are reported as warnings.`,
	RunE: runValidate,
}

func init() {
	rootCmd.AddCommand(validateCmd)
}

func runValidate(cmd *cobra.Command, args []string) error {
	env, err := newEnv(cmd)
	if err != nil {
		return err
	}
	defer env.Close()

	refs := args
	if len(refs) == 0 {
		n, err := env.catalog.ImportDir(env.dir)
		if err != nil {
			return err
		}
		env.log.Info("imported graphs", "count", n, "dir", env.dir)
		refs = env.catalog.Names()
	}

	failed := 0
	for _, ref := range refs {
		def, err := env.catalog.Definition(ref)
		if err != nil {
			failed++
			fmt.Printf("FAIL %s: %v\n", ref, err)
			continue
		}
		if err := graph.ChainGraphOf(def).Validate(); err != nil {
			fmt.Printf("WARN %s: %v\n", ref, err)
		}
		fmt.Printf("ok   %s (%d agents, %d operators)\n", ref, len(def.Agents), len(def.Operators))
	}
	if failed > 0 {
		return fmt.Errorf("%d of %d graphs failed validation", failed, len(refs))
	}
	return nil
}
