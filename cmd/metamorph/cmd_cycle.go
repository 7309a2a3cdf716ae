package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"metamorph/internal/types"
)

// =============================================================================
// CYCLE COMMAND - Manual evolution cycles
// =============================================================================

var cycleCount int

var cycleCmd = &cobra.Command{
	Use:   "cycle",
	Short: "Run one or more evolution cycles and exit",
	Long: `Runs the full pipeline synchronously, without the deliberation
layer: evaluate metrics, generate hypotheses, transform the source for
the top hypothesis, gate the candidate, and apply it if it passes.`,
	RunE: runCycles,
}

func init() {
	cycleCmd.Flags().IntVarP(&cycleCount, "count", "n", 1, "number of cycles to run")
}

func runCycles(cmd *cobra.Command, args []string) error {
	if cycleCount < 1 {
		return fmt.Errorf("count must be at least 1")
	}

	led, err := openLedger()
	if err != nil {
		return err
	}
	defer led.Close()

	eng, err := buildEngine(cmd.Context(), led)
	if err != nil {
		return err
	}

	applied := 0
	for i := 0; i < cycleCount; i++ {
		result := eng.RunCycle(cmd.Context())
		printCycleResult(result)
		if result.Applied {
			applied++
		}
	}
	fmt.Printf("\n%d/%d cycles applied a modification\n", applied, cycleCount)
	return nil
}

func printCycleResult(r types.CycleResult) {
	fmt.Println(r.Summary())
	for _, e := range r.Errors {
		fmt.Printf("  ! %s\n", e)
	}
}
