package pipeline

import (
	"sort"

	"github.com/vhoang/ingest/internal/core/domain"
)

// DomainCount is one entry in the email-domain distribution.
type DomainCount struct {
	Domain string
	Count  int
}

// Stats are the derived counts for one run. Failed combines validation,
// parse and persistence failures.
type Stats struct {
	Total      int
	Validated  int
	Persisted  int
	Skipped    int
	Failed     int
	AverageAge float64
	Domains    []DomainCount
}

// computeStats derives every count from the accumulated decisions and
// the bulk result. Nothing here is tracked incrementally.
func computeStats(acc *accumulator, bulk domain.BulkResult) Stats {
	s := Stats{
		Total:     acc.total,
		Validated: len(acc.accepted) + len(acc.skipped),
		Persisted: len(bulk.Successes),
		Skipped:   len(acc.skipped),
		Failed:    len(acc.errors),
	}

	if len(bulk.Successes) > 0 {
		var sum int
		for _, u := range bulk.Successes {
			sum += u.Age
		}
		s.AverageAge = float64(sum) / float64(len(bulk.Successes))
	}

	s.Domains = domainDistribution(acc.accepted, bulk.Successes)
	return s
}

// domainDistribution tallies email domains among persisted users.
// Counting walks the accepted (input) order restricted to ids that
// persisted, so the first-seen tie-break stays deterministic even when
// concurrent persistence settles out of order. Sorting is stable:
// descending count, ties broken by first-seen domain order.
func domainDistribution(accepted []domain.User, persisted []domain.User) []DomainCount {
	persistedIDs := make(map[string]struct{}, len(persisted))
	for _, u := range persisted {
		persistedIDs[u.ID] = struct{}{}
	}

	counts := make(map[string]int)
	var order []string
	for _, u := range accepted {
		if _, ok := persistedIDs[u.ID]; !ok {
			continue
		}
		d := u.EmailDomain()
		if d == "" {
			continue
		}
		if _, seen := counts[d]; !seen {
			order = append(order, d)
		}
		counts[d]++
	}

	dist := make([]DomainCount, 0, len(order))
	for _, d := range order {
		dist = append(dist, DomainCount{Domain: d, Count: counts[d]})
	}
	sort.SliceStable(dist, func(i, j int) bool {
		return dist[i].Count > dist[j].Count
	})
	return dist
}
