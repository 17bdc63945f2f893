package transaction

// TransactStage is the state of a SharedGroup.
type TransactStage int

const (
	// StageReady means no transaction is active.
	StageReady TransactStage = iota
	// StageReading means the session is bound to an immutable snapshot.
	StageReading
	// StageWriting means the session holds the write mutex.
	StageWriting
	// StageReadFailed follows a failed advance; only EndRead and Close
	// are allowed.
	StageReadFailed
	// StageWriteFailed follows a failed commit; only Rollback and Close
	// are allowed.
	StageWriteFailed
)

func (s TransactStage) String() string {
	switch s {
	case StageReady:
		return "READY"
	case StageReading:
		return "READING"
	case StageWriting:
		return "WRITING"
	case StageReadFailed:
		return "READ_FAILED"
	case StageWriteFailed:
		return "WRITE_FAILED"
	default:
		return "UNKNOWN"
	}
}

func (s TransactStage) reading() bool {
	return s == StageReading || s == StageReadFailed
}

func (s TransactStage) writing() bool {
	return s == StageWriting || s == StageWriteFailed
}
