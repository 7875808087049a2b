package cli

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/vhoang/ingest/internal/core/domain"
	"github.com/vhoang/ingest/internal/ingest/source"
	"github.com/vhoang/ingest/internal/ingest/validate"
)

var checkCmd = &cobra.Command{
	Use:   "check [file]",
	Short: "Validate a CSV batch without persisting anything",
	Args:  cobra.ExactArgs(1),
	Run:   runCheck,
}

func init() {
	rootCmd.AddCommand(checkCmd)
}

func runCheck(cmd *cobra.Command, args []string) {
	src, err := source.OpenCSV(args[0])
	if err != nil {
		slog.Error("Failed to open input", "error", err)
		os.Exit(exitFatal)
	}
	defer src.Close()

	v := validate.New()
	ctx := context.Background()

	w := tabwriter.NewWriter(os.Stdout, 0, 0, 3, ' ', 0)
	_, _ = fmt.Fprintln(w, "ROW\tID\tSTATUS")

	var total, bad int
	for row := 1; ; row++ {
		rec, err := src.Next(ctx)
		if err == io.EOF {
			break
		}
		total++
		if err != nil {
			bad++
			var pe *domain.ParseError
			if errors.As(err, &pe) {
				_, _ = fmt.Fprintf(w, "%d\t-\tparse error: %v\n", row, pe.Err)
				continue
			}
			slog.Error("Failed to read input", "error", err)
			os.Exit(exitFatal)
		}

		u, err := v.Validate(rec)
		if err != nil {
			bad++
			_, _ = fmt.Fprintf(w, "%d\t%s\t%v\n", row, rec["id"], err)
			continue
		}
		_, _ = fmt.Fprintf(w, "%d\t%s\tok\n", row, u.ID)
	}
	_ = w.Flush()

	fmt.Printf("\n%d records, %d invalid\n", total, bad)
	if bad > 0 {
		os.Exit(exitErrors)
	}
}
