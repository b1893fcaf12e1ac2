package domain

// LineRecord is the fact derived from one message payload, keyed by (Name, Line).
// Applying the same message twice yields the same record, never a second row.
type LineRecord struct {
	Name   string
	Line   int64
	Length int64
}

// Checkpoint tracks the last durably applied log offset for one partition.
// LastOffset never decreases; a message whose offset is <= LastOffset has
// already been applied in a prior attempt.
type Checkpoint struct {
	PartitionID int64
	LastOffset  int64
}
