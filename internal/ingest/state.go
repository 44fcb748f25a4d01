package ingest

import "time"

// State is a file's position in the ingest state machine:
//
//	Pending → Fetched → Read → Chunked → Parsed → Resolved → Persisted → Done
//	                     ↘ Failed
//
// Only a read error fails a file. A file with zero valid games still
// reaches Done.
type State int

const (
	StatePending State = iota
	StateFetched
	StateRead
	StateChunked
	StateParsed
	StateResolved
	StatePersisted
	StateDone
	StateFailed
)

var stateNames = [...]string{
	StatePending:   "pending",
	StateFetched:   "fetched",
	StateRead:      "read",
	StateChunked:   "chunked",
	StateParsed:    "parsed",
	StateResolved:  "resolved",
	StatePersisted: "persisted",
	StateDone:      "done",
	StateFailed:    "failed",
}

func (s State) String() string {
	if s < 0 || int(s) >= len(stateNames) {
		return "unknown"
	}
	return stateNames[s]
}

// advance moves to next if it is further along. Batches of one file go
// through the same stages repeatedly; the state records the furthest.
func (o *FileOutcome) advance(next State) {
	if o.State == StateFailed {
		return
	}
	if next > o.State {
		o.State = next
	}
}

// FileOutcome reports what happened to one file.
type FileOutcome struct {
	Path      string        `json:"path"`
	State     State         `json:"state"`
	Processed int           `json:"processed"` // games persisted
	Failed    int           `json:"failed"`    // malformed, unresolved, unencodable or unwritten games
	Malformed int           `json:"malformed"` // subset of Failed rejected by the parser
	Chunks    int           `json:"chunks"`
	Bytes     int64         `json:"bytes"`
	Retries   int           `json:"retries"`
	Elapsed   time.Duration `json:"elapsed"`
	Err       error         `json:"-"`
}
