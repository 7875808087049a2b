package domain

// SkipReason classifies a policy skip
type SkipReason string

const (
	SkipDisposableEmail SkipReason = "disposable-email"
	SkipStaleUpdate     SkipReason = "stale-update"
	SkipDuplicate       SkipReason = "duplicate"
)

// PolicyOutcome is the decision for one validated user: accepted for
// persistence, or skipped with a reason. Produced once, never mutated.
type PolicyOutcome struct {
	User     User
	Accepted bool
	Reason   SkipReason // set only when !Accepted
	Detail   string     // human-readable context for the report
}

// Accept marks a user for persistence.
func Accept(u User) PolicyOutcome {
	return PolicyOutcome{User: u, Accepted: true}
}

// Skip excludes a user for a business-rule reason. Skips are not failures.
func Skip(u User, reason SkipReason, detail string) PolicyOutcome {
	return PolicyOutcome{User: u, Reason: reason, Detail: detail}
}

// BulkFailure pairs an entity with the error that kept it out of the store.
type BulkFailure struct {
	User User
	Err  error
}

// BulkResult partitions a batch write. Successes and failures together
// cover the whole input batch. In concurrent mode the ordering of both
// slices follows completion order, not submission order.
type BulkResult struct {
	Successes []User
	Failures  []BulkFailure
}
