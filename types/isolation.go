package types

// IsolationLevel selects how often a transaction re-captures its snapshot.
//
// ReadCommitted builds a fresh snapshot per statement: non-repeatable and
// phantom reads are permitted. RepeatableRead holds one snapshot for the
// whole transaction: those anomalies disappear but write skew and
// read-only-transaction anomalies remain. Serializable additionally surfaces
// ErrSerializationFailure instead of permitting any anomaly.
type IsolationLevel uint8

const (
	ReadCommitted IsolationLevel = iota
	RepeatableRead
	Serializable
)

// UsesTransactionSnapshot reports whether the level holds a single snapshot
// for the transaction's lifetime rather than one per statement.
func (l IsolationLevel) UsesTransactionSnapshot() bool {
	return l == RepeatableRead || l == Serializable
}

func (l IsolationLevel) String() string {
	switch l {
	case ReadCommitted:
		return "read committed"
	case RepeatableRead:
		return "repeatable read"
	case Serializable:
		return "serializable"
	}
	return "unknown"
}
