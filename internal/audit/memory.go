package audit

import (
	"context"
	"sync"
)

// Memory keeps records in process. Used by tests and as a fallback when no
// broker is configured.
type Memory struct {
	mu      sync.Mutex
	records []Record
	Err     error
}

func (m *Memory) Record(ctx context.Context, r Record) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.Err != nil {
		return m.Err
	}
	if r.Request == (RequestMeta{}) {
		r.Request = RequestMetaFrom(ctx)
	}
	m.records = append(m.records, r)
	return nil
}

func (m *Memory) Append(ctx context.Context, r Record) error { return m.Record(ctx, r) }

func (m *Memory) Records() []Record {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]Record(nil), m.records...)
}

// ByAction filters recorded entries.
func (m *Memory) ByAction(action string) []Record {
	var out []Record
	for _, r := range m.Records() {
		if r.Action == action {
			out = append(out, r)
		}
	}
	return out
}
