package main

import (
	"flag"
	"fmt"
	"os"
	"path/filepath"

	"github.com/provara-protocol/provara/cmd/provara/verifyreport"
	"github.com/provara-protocol/provara/internal/redaction"
	"github.com/provara-protocol/provara/internal/vault"
)

func runVerify(args []string) error {
	fs := flag.NewFlagSet("verify", flag.ContinueOnError)
	verbose := fs.Bool("verbose", false, "print every failure, not just the count")
	showRedacted := fs.Bool("show-redacted", false, "list tombstoned (redacted) event ids after the result")
	historical := fs.Bool("historical", false, "resolve signer keys historically instead of strictly")
	ci := fs.Bool("ci", false, "emit CI key=value lines on stdout instead of human-readable output")
	summaryOut := fs.String("summary-out", "", "write a Markdown summary table to this file")
	if err := fs.Parse(args); err != nil {
		return usageError(err.Error())
	}
	if fs.NArg() < 1 {
		return usageError("verify requires a vault path")
	}
	path := fs.Arg(0)

	opts := vault.VerifyOptions{Historical: *historical}

	if *ci || *summaryOut != "" {
		result := verifyreport.Run(path, opts)
		if *ci {
			verifyreport.WriteKeyValue(os.Stdout, result)
		}
		if *summaryOut != "" {
			f, err := os.Create(*summaryOut)
			if err != nil {
				return usageError(fmt.Sprintf("creating --summary-out file: %v", err))
			}
			defer f.Close()
			verifyreport.WriteSummaryMarkdown(f, result)
		}
		if result.Status != "PASS" {
			return fmt.Errorf("verification failed, see key=value/summary output above")
		}
		return nil
	}

	report, err := vault.Verify(path, opts)
	if err != nil {
		return err
	}
	if report.OK {
		fmt.Println("OK: all integrity checks passed")
		if *showRedacted {
			printRedactedEvents(path)
		}
		return nil
	}

	fmt.Printf("FAIL: %d integrity check(s) failed\n", len(report.Failures))
	if *verbose {
		for _, f := range report.Failures {
			if f.EventID != "" {
				fmt.Printf("  event %s: [%s] %s\n", f.EventID, f.Err.Section, f.Err.Message)
			} else {
				fmt.Printf("  [%s] %s\n", f.Err.Section, f.Err.Message)
			}
		}
	}
	if *showRedacted {
		printRedactedEvents(path)
	}
	return report.Failures[0].Err
}

func printRedactedEvents(path string) {
	events, err := vault.ReadEvents(filepath.Join(path, vault.EventsFile))
	if err != nil {
		return
	}
	for _, e := range events {
		if redaction.IsTombstoned(e.Payload) {
			fmt.Printf("  redacted: %s\n", e.EventID)
		}
	}
}
