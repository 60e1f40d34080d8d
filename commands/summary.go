// Package commands holds the operator batch tools that maintain derived
// photo assets outside the upload job.
package commands

import (
	"fmt"
	"io"
	"strconv"
	"text/tabwriter"
)

type Outcome string

const (
	OutcomeProcessed Outcome = "processed"
	OutcomeSkipped   Outcome = "skipped"
	OutcomeError     Outcome = "error"
)

// ItemResult is what happened to one photo, or to one file when PhotoID
// is zero
type ItemResult struct {
	PhotoID uint
	Outcome Outcome
	Detail  string
}

// Summary counts the outcomes of a batch run. Skips are neither successes
// nor errors.
type Summary struct {
	Command   string
	DryRun    bool
	Processed int
	Skipped   int
	Errors    int
	Items     []ItemResult
}

func (s *Summary) record(photoID uint, outcome Outcome, detail string) {
	switch outcome {
	case OutcomeProcessed:
		s.Processed++
	case OutcomeSkipped:
		s.Skipped++
	case OutcomeError:
		s.Errors++
	}
	s.Items = append(s.Items, ItemResult{PhotoID: photoID, Outcome: outcome, Detail: detail})
}

// ExitCode is non-zero when any item failed, even if others succeeded
func (s Summary) ExitCode() int {
	if s.Errors > 0 {
		return 1
	}
	return 0
}

// Render writes the per-item lines (when verbose) and the count table
func (s Summary) Render(w io.Writer, verbose bool) error {
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	if verbose && len(s.Items) > 0 {
		fmt.Fprintln(tw, "PHOTO\tOUTCOME\tDETAIL")
		for _, item := range s.Items {
			id := "-"
			if item.PhotoID != 0 {
				id = strconv.FormatUint(uint64(item.PhotoID), 10)
			}
			fmt.Fprintf(tw, "%s\t%s\t%s\n", id, item.Outcome, item.Detail)
		}
		fmt.Fprintln(tw)
	}
	fmt.Fprintln(tw, "METRIC\tCOUNT")
	fmt.Fprintf(tw, "Processed\t%d\n", s.Processed)
	fmt.Fprintf(tw, "Skipped\t%d\n", s.Skipped)
	fmt.Fprintf(tw, "Errors\t%d\n", s.Errors)
	if err := tw.Flush(); err != nil {
		return err
	}
	if s.DryRun {
		_, err := fmt.Fprintf(w, "%s: dry run, nothing was written\n", s.Command)
		return err
	}
	return nil
}
