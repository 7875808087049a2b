package pipeline

import (
	"fmt"
	"strings"

	"github.com/vhoang/ingest/internal/core/domain"
)

// buildReport renders the human-readable terminal report.
func buildReport(res *RunResult, topDomains, maxItems int) string {
	var b strings.Builder

	fmt.Fprintf(&b, "Ingestion report (run %s)\n", res.RunID)
	b.WriteString(strings.Repeat("=", 40) + "\n")
	fmt.Fprintf(&b, "Total records:  %d\n", res.Stats.Total)
	fmt.Fprintf(&b, "Validated:      %d\n", res.Stats.Validated)
	fmt.Fprintf(&b, "Persisted:      %d\n", res.Stats.Persisted)
	fmt.Fprintf(&b, "Skipped:        %d\n", res.Stats.Skipped)
	fmt.Fprintf(&b, "Failed:         %d\n", res.Stats.Failed)

	if res.Stats.Persisted > 0 {
		fmt.Fprintf(&b, "\nAverage age of persisted users: %.1f\n", res.Stats.AverageAge)

		domains := res.Stats.Domains
		if len(domains) > topDomains {
			domains = domains[:topDomains]
		}
		if len(domains) > 0 {
			b.WriteString("Top email domains:\n")
			for _, d := range domains {
				fmt.Fprintf(&b, "  %s: %d\n", d.Domain, d.Count)
			}
		}
	}

	if len(res.Skipped) > 0 {
		b.WriteString("\nSkipped:\n")
		for i, s := range res.Skipped {
			if i == maxItems {
				fmt.Fprintf(&b, "  ... and %d more\n", len(res.Skipped)-maxItems)
				break
			}
			fmt.Fprintf(&b, "  - %s (%s): %s: %s\n", s.User.ID, s.User.Email, s.Reason, s.Detail)
		}
	}

	if len(res.Errors) > 0 {
		b.WriteString("\nFailures:\n")
		for i, err := range res.Errors {
			if i == maxItems {
				fmt.Fprintf(&b, "  ... and %d more\n", len(res.Errors)-maxItems)
				break
			}
			fmt.Fprintf(&b, "  - [%s] %v\n", domain.CodeOf(err), err)
		}
	}

	return b.String()
}
