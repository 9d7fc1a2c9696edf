// forensiccopy: evidence ingest tool built on the forensiccopy copy/move
// engine. Copies or moves files and folders onto an evidence drive while
// hashing source-during-copy and re-hashing the destination from disk, and
// records every run to a local SQLite ledger for later review.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"forensiccopy"
	"forensiccopy/internal/ledger"
)

func main() {
	var (
		destDir           string
		preserveStructure bool
		calculateHash     bool
		hashAlgo          string
		bufferKiB         int
		policy            string
		workers           int
		interactive       bool
		ledgerPath        string
	)

	runCmd := &cobra.Command{
		Use:   "run [selections...]",
		Short: "Copy or move evidence from source selections onto the destination",
		Long: `forensiccopy run ingests one or more files and/or folders onto an
evidence destination, hashing the source while it streams to disk and
re-hashing the destination from disk afterward so the two can be compared.

Without selection arguments and --dest, forensiccopy falls back to an
interactive prompt (promptui, with a native folder picker when a display is
available).`,
		Example: `  forensiccopy run --dest /evidence/case-114 ~/DCIM
  forensiccopy run --dest /evidence/case-114 --preserve-structure --policy always-move file1.jpg file2.jpg
  forensiccopy run   # interactive mode`,
		RunE: func(cmd *cobra.Command, args []string) error {
			selections := args
			if interactive || (len(selections) == 0 && destDir == "") {
				var err error
				selections, destDir, preserveStructure, err = runInteractivePrompt()
				if err != nil {
					return err
				}
			}
			if destDir == "" {
				return fmt.Errorf("--dest is required")
			}
			if ledgerPath == "" {
				ledgerPath = filepath.Join(destDir, "forensiccopy.db")
			}

			opts := forensiccopy.Options{
				PreserveStructure:  preserveStructure,
				CalculateHash:      calculateHash,
				HashAlgorithm:      parseHashAlgorithm(hashAlgo),
				BufferSizeBytes:    bufferKiB * 1024,
				SameDrivePolicy:    parsePolicy(policy),
				MaxParallelWorkers: workers,
			}

			return runIngest(selections, destDir, opts, ledgerPath)
		},
	}
	runCmd.Flags().StringVarP(&destDir, "dest", "d", "", "Destination evidence root")
	runCmd.Flags().BoolVar(&preserveStructure, "preserve-structure", true, "Preserve source directory structure under the destination")
	runCmd.Flags().BoolVar(&calculateHash, "calculate-hash", true, "Hash source while copying and re-hash the destination from disk")
	runCmd.Flags().StringVar(&hashAlgo, "hash", "sha256", "Hash algorithm: sha256 or md5")
	runCmd.Flags().IntVar(&bufferKiB, "buffer-kib", 1024, "Copy buffer size in KiB (clamped to [8, 10240])")
	runCmd.Flags().StringVar(&policy, "policy", "always-copy", "Same-drive policy: always-copy, always-move, or ask")
	runCmd.Flags().IntVar(&workers, "workers", 0, "Max parallel copy workers (0 = derive from CPU count, capped at 8)")
	runCmd.Flags().BoolVar(&interactive, "interactive", false, "Force interactive prompts even with arguments supplied")
	runCmd.Flags().StringVar(&ledgerPath, "ledger", "", "Path to the SQLite evidence ledger (default: <dest>/forensiccopy.db)")

	historyCmd := &cobra.Command{
		Use:   "history",
		Short: "Show recent ingest operations recorded in the evidence ledger",
		RunE: func(cmd *cobra.Command, args []string) error {
			if ledgerPath == "" {
				return fmt.Errorf("--ledger is required for history")
			}
			return printHistory(ledgerPath)
		},
	}
	historyCmd.Flags().StringVar(&ledgerPath, "ledger", "", "Path to the SQLite evidence ledger")
	historyCmd.MarkFlagRequired("ledger")

	root := &cobra.Command{
		Use:   "forensiccopy",
		Short: "Forensic evidence-copy engine CLI",
		Long: `forensiccopy ingests files and folders onto an evidence drive, producing
cryptographic proof that the destination's bytes match the source's bytes
as they existed on source media at copy time.`,
	}
	root.AddCommand(runCmd, historyCmd)

	if err := root.Execute(); err != nil {
		color.New(color.FgRed, color.Bold).Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func parseHashAlgorithm(s string) forensiccopy.HashAlgorithm {
	if strings.EqualFold(s, "md5") {
		return forensiccopy.MD5
	}
	return forensiccopy.SHA256
}

func parsePolicy(s string) forensiccopy.SameDrivePolicy {
	switch strings.ToLower(s) {
	case "always-move":
		return forensiccopy.AlwaysMove
	case "ask":
		return forensiccopy.Ask
	default:
		return forensiccopy.AlwaysCopy
	}
}

func runIngest(selections []string, destDir string, opts forensiccopy.Options, ledgerPath string) error {
	led, err := ledger.Open(ledgerPath)
	if err != nil {
		return fmt.Errorf("open evidence ledger: %w", err)
	}
	defer led.Close()

	opID, err := led.BeginOperation(destDir, opts)
	if err != nil {
		return fmt.Errorf("begin ledger operation: %w", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	interrupt := make(chan os.Signal, 1)
	signal.Notify(interrupt, os.Interrupt, syscall.SIGTERM)
	go func() {
		<-interrupt
		color.New(color.FgRed, color.Bold).Println("\nInterrupted. Stopping at the next chunk of the current file.")
		cancel()
	}()

	reporter := newProgressReporter(len(selections))
	cb := forensiccopy.Callbacks{
		Progress:        reporter.onProgress,
		MetricsSnapshot: reporter.onMetrics,
		Log:             func(format string, args ...any) { color.New(color.FgYellow).Printf("  "+format+"\n", args...) },
		DecideSameDrive: promptSameDriveDecision,
	}

	outcome, runErr := forensiccopy.Run(ctx, selections, destDir, opts, cb)
	reporter.finish()

	for rel, fo := range outcome.PerFile {
		if recErr := led.RecordFile(opID, fo); recErr != nil {
			color.New(color.FgRed).Printf("warning: could not record %s to ledger: %v\n", rel, recErr)
		}
	}
	if finErr := led.FinishOperation(opID, outcome); finErr != nil {
		color.New(color.FgRed).Printf("warning: could not finalize ledger operation: %v\n", finErr)
	}

	printSummary(outcome)
	if runErr != nil {
		return runErr
	}
	return nil
}

func printHistory(ledgerPath string) error {
	led, err := ledger.Open(ledgerPath)
	if err != nil {
		return fmt.Errorf("open evidence ledger: %w", err)
	}
	defer led.Close()

	ops, err := led.RecentOperations(25)
	if err != nil {
		return fmt.Errorf("read ledger history: %w", err)
	}
	if len(ops) == 0 {
		fmt.Println("No recorded operations.")
		return nil
	}
	for _, op := range ops {
		status := color.New(color.FgGreen).Sprint("ok")
		if !op.Success {
			status = color.New(color.FgRed).Sprint("failed")
		}
		fmt.Printf("#%d  %s  %s  %s  files=%d bytes=%d duration=%dms\n",
			op.ID, op.StartedAt, status, op.DestinationRoot, op.FilesProcessed, op.BytesProcessed, op.DurationMS)
		if op.ErrorMessage != "" {
			fmt.Printf("      error: %s\n", op.ErrorMessage)
		}
	}
	return nil
}
