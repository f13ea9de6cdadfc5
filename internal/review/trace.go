package review

import (
	"encoding/json"
	"fmt"
	"maps"
	"slices"
	"sync"
	"time"
)

type Status string

const (
	StatusCompleted Status = "completed"
	StatusFailed    Status = "failed"
	StatusSkipped   Status = "skipped"
)

// TraceEntry records one attempted stage. Snapshot holds the stage's snapshot
// fields once it finished: after its delta for completed stages, unchanged
// for failed ones. Skipped stages have none.
type TraceEntry struct {
	StageName  string
	Status     Status
	Snapshot   map[Field]any
	Error      string
	StartedAt  time.Time
	DurationMs int64
}

type entryBody struct {
	Status     Status                    `json:"status"`
	StartedAt  time.Time                 `json:"started_at"`
	DurationMs int64                     `json:"duration_ms"`
	Error      string                    `json:"error,omitempty"`
	State      map[Field]json.RawMessage `json:"state,omitempty"`
}

// MarshalJSON emits the entry keyed by stage name:
//
//	{"analyze_risks": {"status": "completed", ..., "state": {"risks": [...]}}}
func (e TraceEntry) MarshalJSON() ([]byte, error) {
	body := entryBody{
		Status:     e.Status,
		StartedAt:  e.StartedAt,
		DurationMs: e.DurationMs,
		Error:      e.Error,
	}
	if len(e.Snapshot) > 0 {
		body.State = make(map[Field]json.RawMessage, len(e.Snapshot))
		for f, v := range e.Snapshot {
			raw, err := json.Marshal(v)
			if err != nil {
				return nil, fmt.Errorf("marshal snapshot field %s: %w", f, err)
			}
			body.State[f] = raw
		}
	}
	return json.Marshal(map[string]entryBody{e.StageName: body})
}

func (e *TraceEntry) UnmarshalJSON(data []byte) error {
	var wrapper map[string]entryBody
	if err := json.Unmarshal(data, &wrapper); err != nil {
		return err
	}
	if len(wrapper) != 1 {
		return fmt.Errorf("trace entry must have exactly one stage key, got %d", len(wrapper))
	}

	for name, body := range wrapper {
		*e = TraceEntry{
			StageName:  name,
			Status:     body.Status,
			Error:      body.Error,
			StartedAt:  body.StartedAt,
			DurationMs: body.DurationMs,
		}
		if len(body.State) == 0 {
			continue
		}
		e.Snapshot = make(map[Field]any, len(body.State))
		for f, raw := range body.State {
			v, err := decodeField(f, raw)
			if err != nil {
				return fmt.Errorf("snapshot field %s: %w", f, err)
			}
			e.Snapshot[f] = v
		}
	}
	return nil
}

func decodeField(f Field, raw json.RawMessage) (any, error) {
	var (
		v   any
		err error
	)
	switch f {
	case FieldText, FieldSummary:
		var s string
		err = json.Unmarshal(raw, &s)
		v = s
	case FieldRisks:
		var r []RiskItem
		err = json.Unmarshal(raw, &r)
		v = nonNil(r)
	case FieldCompliance:
		var c []string
		err = json.Unmarshal(raw, &c)
		v = nonNil(c)
	case FieldKnowledge:
		var k []KnowledgeSnippet
		err = json.Unmarshal(raw, &k)
		v = nonNil(k)
	case FieldScore:
		var n *int
		err = json.Unmarshal(raw, &n)
		if n != nil {
			v = *n
		}
	default:
		err = json.Unmarshal(raw, &v)
	}
	return v, err
}

func (e TraceEntry) clone() TraceEntry {
	out := e
	if e.Snapshot != nil {
		out.Snapshot = make(map[Field]any, len(e.Snapshot))
		for f, v := range e.Snapshot {
			out.Snapshot[f] = cloneValue(v)
		}
	}
	return out
}

func cloneValue(v any) any {
	switch t := v.(type) {
	case []RiskItem:
		return slices.Clone(t)
	case []string:
		return slices.Clone(t)
	case []KnowledgeSnippet:
		return slices.Clone(t)
	case map[string]any:
		return maps.Clone(t)
	default:
		return v
	}
}

// Recorder is the append-only trace of one review. Entries are copied on the
// way in and on the way out, so neither stages nor readers can alter history.
type Recorder struct {
	mu      sync.Mutex
	entries []TraceEntry
}

func NewRecorder() *Recorder {
	return &Recorder{}
}

func (r *Recorder) Append(e TraceEntry) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.entries = append(r.entries, e.clone())
}

func (r *Recorder) Entries() []TraceEntry {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]TraceEntry, len(r.entries))
	for i, e := range r.entries {
		out[i] = e.clone()
	}
	return out
}

func (r *Recorder) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.entries)
}
