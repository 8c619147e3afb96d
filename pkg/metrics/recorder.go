// Package metrics provides metrics recording for context buffer operations.
package metrics

import "time"

const (
	StatusSuccess = "success"
	StatusError   = "error"

	OutcomePromoted  = "promoted"
	OutcomeDiscarded = "discarded"
)

// Recorder defines the interface for recording context buffer metrics.
// Labels are plain strings so this package stays independent of the buffer types.
type Recorder interface {
	// ObserveAdd records an Add call. status is "success" or an error kind
	// such as "tokenization" or "capacity".
	ObserveAdd(category, priority, status string, tokens int)

	// ObserveEviction records one evicted item.
	ObserveEviction(priority, outcome string, tokens int)

	// ObserveArchiveWrite records the result of one archive write.
	ObserveArchiveWrite(success bool)

	// ObserveTokenize records tokenizer latency.
	ObserveTokenize(modelID string, success bool, duration time.Duration)

	// SetUsage publishes the current and usable token totals.
	SetUsage(current, usable int)
}

// NoopRecorder implements Recorder with no-op behavior for when metrics are disabled.
type NoopRecorder struct{}

// Nop returns a no-op metrics recorder that discards all metrics.
func Nop() Recorder {
	return &NoopRecorder{}
}

func (n *NoopRecorder) ObserveAdd(_, _, _ string, _ int) {}
func (n *NoopRecorder) ObserveEviction(_, _ string, _ int) {}
func (n *NoopRecorder) ObserveArchiveWrite(_ bool) {}
func (n *NoopRecorder) ObserveTokenize(_ string, _ bool, _ time.Duration) {}
func (n *NoopRecorder) SetUsage(_, _ int) {}
