package main

import (
	"fmt"

	"github.com/spf13/cobra"
)

// =============================================================================
// HISTORY COMMAND - Recorded cycles and modifications
// =============================================================================

var (
	historyLimit int
	historyMods  bool
)

var historyCmd = &cobra.Command{
	Use:   "history",
	Short: "List recorded evolution cycles",
	Long: `Prints the persisted per-cycle results, newest last. With --mods,
prints the applied modification records instead, including content
hashes and size deltas.`,
	RunE: runHistory,
}

func init() {
	historyCmd.Flags().IntVarP(&historyLimit, "limit", "l", 20, "maximum entries to show (0 for all)")
	historyCmd.Flags().BoolVar(&historyMods, "mods", false, "show modification records instead of cycles")
}

func runHistory(cmd *cobra.Command, args []string) error {
	led, err := openLedger()
	if err != nil {
		return err
	}
	defer led.Close()

	if historyMods {
		records := led.Records()
		if historyLimit > 0 && len(records) > historyLimit {
			records = records[len(records)-historyLimit:]
		}
		if len(records) == 0 {
			fmt.Println("no modifications recorded")
			return nil
		}
		for _, r := range records {
			fmt.Printf("%s  cycle %-4d %-20s %+6d bytes  %s -> %s  %s\n",
				r.Timestamp.Format("2006-01-02 15:04:05"),
				r.CycleID, r.Component, r.SizeDelta,
				r.HashBefore[:8], r.HashAfter[:8], r.Description)
		}
		return nil
	}

	results, err := led.CycleResults()
	if err != nil {
		return err
	}
	if historyLimit > 0 && len(results) > historyLimit {
		results = results[len(results)-historyLimit:]
	}
	if len(results) == 0 {
		fmt.Println("no cycles recorded")
		return nil
	}
	for _, r := range results {
		fmt.Println(r.Summary())
	}
	return nil
}
