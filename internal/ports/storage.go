package ports

// RetainedLog is the part of an operation log that compaction needs. It matches
// the index methods of raft.LogStore.
type RetainedLog interface {
	FirstIndex() (uint64, error)
	LastIndex() (uint64, error)
	DeleteRange(min, max uint64) error
}
