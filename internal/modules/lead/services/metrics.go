package services

import "sync/atomic"

// Metrics keeps in-process counters for the operator dashboard. Counters
// are cumulative since process start; ratios are derived at read time.
type Metrics struct {
	turnsProcessed atomic.Int64
	turnErrors     atomic.Int64
	toolCalls      atomic.Int64
	toolFailures   atomic.Int64
}

func NewMetrics() *Metrics {
	return &Metrics{}
}

func (m *Metrics) RecordTurn(failed bool) {
	m.turnsProcessed.Add(1)
	if failed {
		m.turnErrors.Add(1)
	}
}

func (m *Metrics) RecordToolCall(failed bool) {
	m.toolCalls.Add(1)
	if failed {
		m.toolFailures.Add(1)
	}
}

// ToolSuccessRate is 1.0 when no tool has been called yet.
func (m *Metrics) ToolSuccessRate() float64 {
	calls := m.toolCalls.Load()
	if calls == 0 {
		return 1.0
	}
	return 1.0 - float64(m.toolFailures.Load())/float64(calls)
}

// ErrorRate is the fraction of turns that ended in a fallback reply.
func (m *Metrics) ErrorRate() float64 {
	turns := m.turnsProcessed.Load()
	if turns == 0 {
		return 0
	}
	return float64(m.turnErrors.Load()) / float64(turns)
}

func (m *Metrics) TurnsProcessed() int64 { return m.turnsProcessed.Load() }
func (m *Metrics) ToolCalls() int64      { return m.toolCalls.Load() }
