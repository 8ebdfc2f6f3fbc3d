package main

import (
	"fmt"

	"github.com/cockroachdb/errors"
	"github.com/spf13/cobra"

	"github.com/querypipe/querypipe/pkg/querypipe"
)

func newDisasmCmd() *cobra.Command {
	var query int
	cmd := &cobra.Command{
		Use:   "disasm",
		Short: "compile a showcase query and print its bytecode",
		RunE: func(cmd *cobra.Command, args []string) error {
			plans := demoPlans()
			if query < 0 || query >= len(plans) {
				return errors.Newf("query index %d out of range [0,%d)", query, len(plans))
			}
			q := plans[query]
			prog, err := querypipe.Compile(q.plan)
			if err != nil {
				return err
			}
			fmt.Printf("-- %s\n", q.title)
			fmt.Print(querypipe.Disassemble(prog))
			return nil
		},
	}
	cmd.Flags().IntVarP(&query, "query", "q", 0, "showcase query index")
	return cmd
}
