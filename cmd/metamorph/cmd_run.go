package main

import (
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"metamorph/internal/autonomy"
	"metamorph/internal/memory"
)

// =============================================================================
// RUN COMMAND - Autonomous initiative loop
// =============================================================================

var stopTimeout time.Duration

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Run the autonomous evolution loop until interrupted",
	Long: `Starts the initiative loop: the worker repeatedly observes the
managed source, deliberates over candidate actions, executes the chosen
one, and records the outcome in episodic memory. The loop adapts its
pace to pending work and backs off after errors. Stop with Ctrl-C; the
iteration in progress completes before shutdown.`,
	RunE: runLoop,
}

func init() {
	runCmd.Flags().DurationVar(&stopTimeout, "stop-timeout", 10*time.Second, "how long to wait for the worker on shutdown")
}

func runLoop(cmd *cobra.Command, args []string) error {
	led, err := openLedger()
	if err != nil {
		return err
	}
	defer led.Close()

	eng, err := buildEngine(cmd.Context(), led)
	if err != nil {
		return err
	}

	mem := memory.NewEpisodicMemory(cfg.Deliberation.EpisodeCapacity)
	loop := autonomy.NewLoop(cfg.Deliberation, eng, mem, nil)

	loop.Start()
	logger.Info("initiative loop running",
		zap.String("source", cfg.Paths.ManagedSource),
		zap.Duration("base_interval", cfg.Deliberation.BaseInterval))
	fmt.Printf("metamorph is evolving %s (Ctrl-C to stop)\n", cfg.Paths.ManagedSource)

	sig := make(chan os.Signal, 1)
	signal.Notify(sig, syscall.SIGINT, syscall.SIGTERM)
	<-sig
	fmt.Println("\nstopping...")

	if err := loop.Stop(stopTimeout); err != nil {
		return fmt.Errorf("shutdown incomplete: %w", err)
	}

	fmt.Printf("stopped after %d cycles, %d episodes recorded\n", eng.CycleCount(), mem.Len())

	decisions := loop.Decisions()
	if n := len(decisions); n > 0 {
		const show = 5
		if n > show {
			decisions = decisions[n-show:]
		}
		fmt.Println("recent decisions:")
		for _, d := range decisions {
			status := "ok"
			if d.Result.Failed(d.Action.Kind) {
				status = "failed"
			}
			fmt.Printf("  %s  %-22s consulted=%-5t %s\n",
				d.Timestamp.Format("15:04:05"), d.Action.Kind, d.Augmented, status)
		}
	}
	return nil
}
