// Package metrics holds the metric names and tag conventions shared by the job manager,
// session pool and transaction state machine.
package metrics

import (
	"time"

	obserrors "github.com/target/cashier/internal/observability/errors"
	"github.com/target/cashier/internal/observability/statsd"
)

// Result constants for metric tagging.
const (
	ResultSuccess = "success"
	ResultError   = "error"
	ResultNoop    = "noop"
)

// JobMetric captures details about a job lifecycle event for metric emission.
type JobMetric struct {
	Kind       string
	Transition string
	Result     string
	Duration   time.Duration
	Err        error
}

// EmitJobLifecycle emits standardised job lifecycle metrics.
func EmitJobLifecycle(sink statsd.Sink, in JobMetric) {
	if sink == nil {
		return
	}

	tags := map[string]string{
		"kind":       in.Kind,
		"transition": in.Transition,
		"result":     in.Result,
	}
	addErrorClass(tags, in.Result, in.Err)

	sink.Count("job.transition", 1, tags)

	if in.Duration > 0 {
		sink.Timing("job.duration", in.Duration, CloneTags(tags))
	}
}

// PoolEvent names a session pool occurrence.
type PoolEvent string

const (
	PoolEventReused   PoolEvent = "reused"
	PoolEventCreated  PoolEvent = "created"
	PoolEventIsolated PoolEvent = "isolated"
	PoolEventExpired  PoolEvent = "expired"
	PoolEventEvicted  PoolEvent = "evicted"
	PoolEventDead     PoolEvent = "dead"
	PoolEventInvalid  PoolEvent = "invalidated"
)

// EmitPoolEvent counts a pool event and records the lock wait when known.
func EmitPoolEvent(sink statsd.Sink, event PoolEvent, lockWait time.Duration) {
	if sink == nil {
		return
	}
	tags := map[string]string{"event": string(event)}
	sink.Count("pool.event", 1, tags)
	if lockWait > 0 {
		sink.Timing("pool.lock_wait", lockWait, CloneTags(tags))
	}
}

// EmitPoolSize reports the number of pooled sessions.
func EmitPoolSize(sink statsd.Sink, size int) {
	if sink == nil {
		return
	}
	sink.Gauge("pool.size", float64(size), nil)
}

// StepMetric describes one finished state machine step.
type StepMetric struct {
	Kind     string
	Step     string
	Result   string
	Duration time.Duration
	Err      error
}

// EmitStep records a state machine step outcome.
func EmitStep(sink statsd.Sink, in StepMetric) {
	if sink == nil {
		return
	}
	tags := map[string]string{
		"kind":   in.Kind,
		"step":   in.Step,
		"result": in.Result,
	}
	addErrorClass(tags, in.Result, in.Err)
	sink.Count("txn.step", 1, tags)
	if in.Duration > 0 {
		sink.Timing("txn.step_duration", in.Duration, CloneTags(tags))
	}
}

func addErrorClass(tags map[string]string, result string, err error) {
	if err == nil || result != ResultError {
		return
	}
	if class := obserrors.Classify(err); class != "" {
		tags["error_class"] = class
	}
}

// CloneTags creates a shallow copy of a tag map.
func CloneTags(src map[string]string) map[string]string {
	if len(src) == 0 {
		return nil
	}
	out := make(map[string]string, len(src))
	for k, v := range src {
		out[k] = v
	}
	return out
}
