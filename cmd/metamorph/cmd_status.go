package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

// =============================================================================
// STATUS COMMAND - Current state of the managed system
// =============================================================================

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show the managed source and recorded history at a glance",
	RunE:  runStatus,
}

func runStatus(cmd *cobra.Command, args []string) error {
	led, err := openLedger()
	if err != nil {
		return err
	}
	defer led.Close()

	fmt.Printf("managed source: %s", cfg.Paths.ManagedSource)
	if info, err := os.Stat(cfg.Paths.ManagedSource); err == nil {
		fmt.Printf(" (%d bytes)", info.Size())
	} else {
		fmt.Printf(" (missing: %v)", err)
	}
	fmt.Println()
	fmt.Printf("work dir:       %s\n", cfg.Paths.WorkDir)
	fmt.Printf("ledger:         %s\n", cfg.DatabasePath())

	results, err := led.CycleResults()
	if err != nil {
		return err
	}
	records := led.Records()

	applied := 0
	for _, r := range results {
		if r.Applied {
			applied++
		}
	}
	fmt.Printf("\ncycles recorded:       %d (%d applied)\n", len(results), applied)
	fmt.Printf("modification records:  %d\n", len(records))

	if len(results) > 0 {
		last := results[len(results)-1]
		fmt.Printf("\nlast cycle: %s\n", last.Summary())
		for _, e := range last.Errors {
			fmt.Printf("  ! %s\n", e)
		}
	}
	return nil
}
