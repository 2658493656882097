package metrics

import (
	"encoding/json"
	"net/http"
	"sync/atomic"
)

// Metrics keeps the dispatch engine's counters in memory.
type Metrics struct {
	prepared       atomic.Int64
	dispatched     atomic.Int64
	scheduled      atomic.Int64
	blocked        atomic.Int64
	advisories     atomic.Int64
	balanceDenied  atomic.Int64
	lockViolations atomic.Int64
	delivered      atomic.Int64
	failed         atomic.Int64
	testSends      atomic.Int64
}

// New returns a zeroed Metrics collector.
func New() *Metrics {
	return &Metrics{}
}

func (m *Metrics) IncPrepared()       { m.prepared.Add(1) }
func (m *Metrics) IncDispatched()     { m.dispatched.Add(1) }
func (m *Metrics) IncScheduled()      { m.scheduled.Add(1) }
func (m *Metrics) IncBlocked()        { m.blocked.Add(1) }
func (m *Metrics) IncAdvisory()       { m.advisories.Add(1) }
func (m *Metrics) IncBalanceDenied()  { m.balanceDenied.Add(1) }
func (m *Metrics) IncLockViolation()  { m.lockViolations.Add(1) }
func (m *Metrics) IncDelivered()      { m.delivered.Add(1) }
func (m *Metrics) IncFailed()         { m.failed.Add(1) }
func (m *Metrics) IncTestSent()       { m.testSends.Add(1) }
func (m *Metrics) Dispatched() int64  { return m.dispatched.Load() }
func (m *Metrics) Delivered() int64   { return m.delivered.Load() }

// Snapshot copies the counters.
func (m *Metrics) Snapshot() map[string]int64 {
	return map[string]int64{
		"prepared":        m.prepared.Load(),
		"dispatched":      m.dispatched.Load(),
		"scheduled":       m.scheduled.Load(),
		"blocked":         m.blocked.Load(),
		"advisories":      m.advisories.Load(),
		"balance_denied":  m.balanceDenied.Load(),
		"lock_violations": m.lockViolations.Load(),
		"delivered":       m.delivered.Load(),
		"failed":          m.failed.Load(),
		"test_sends":      m.testSends.Load(),
	}
}

// Handler exposes the counters as JSON.
func (m *Metrics) Handler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(m.Snapshot())
	})
}
