package conversation

import "time"

// Error kinds classify every failure a conversation can hit. Kinds
// feed the per-type counters and the bounded ring of recent errors;
// none of them is ever surfaced to the caller as a Go error.
// Decrypt failures (silent session absence) and teardown failures are
// handled where they occur, in the session store and the browser
// manager, and never reach this log.
const (
	errNavigation      = "navigation_failure"
	errElementNotFound = "element_not_found"
	errAuthRequired    = "auth_required"
	errInput           = "input_failure"
	errResponseTimeout = "response_timeout"
)

// maxRecentErrors bounds the ring of retained error records.
const maxRecentErrors = 10

// ErrorRecord is one classified failure.
type ErrorRecord struct {
	Kind      string    `json:"type"`
	Message   string    `json:"message"`
	Timestamp time.Time `json:"timestamp"`
}

// ErrorStats is the observable error summary for one handler.
type ErrorStats struct {
	TotalErrors int            `json:"total_errors"`
	ErrorTypes  map[string]int `json:"error_types"`
	LastErrors  []ErrorRecord  `json:"last_errors"`
}

// errorLog accumulates classified failures: a total, a per-kind
// counter, and the most recent records with the oldest evicted first.
type errorLog struct {
	total  int
	byKind map[string]int
	recent []ErrorRecord
}

func newErrorLog() *errorLog {
	return &errorLog{byKind: make(map[string]int)}
}

func (l *errorLog) record(kind, message string, at time.Time) {
	l.total++
	l.byKind[kind]++

	l.recent = append(l.recent, ErrorRecord{Kind: kind, Message: message, Timestamp: at})
	if len(l.recent) > maxRecentErrors {
		l.recent = l.recent[1:]
	}
}

func (l *errorLog) snapshot() ErrorStats {
	types := make(map[string]int, len(l.byKind))
	for kind, count := range l.byKind {
		types[kind] = count
	}
	recent := make([]ErrorRecord, len(l.recent))
	copy(recent, l.recent)
	return ErrorStats{TotalErrors: l.total, ErrorTypes: types, LastErrors: recent}
}
