package metrics

import (
	"time"

	obserrors "github.com/srbenoit/mathops-sub032/internal/observability/errors"
	"github.com/srbenoit/mathops-sub032/internal/observability/statsd"
)

// Result constants for metric tagging.
const (
	ResultSuccess = "success"
	ResultError   = "error"
	ResultSkipped = "skipped"
	ResultNoop    = "noop"
)

// ReconcileMetric captures one reconciliation attempt for metric emission.
type ReconcileMetric struct {
	Result    string
	Reason    string
	Mutations int
	Anomalies int
	Duration  time.Duration
	Err       error
}

// EmitReconcile emits standardised reconciliation metrics.
func EmitReconcile(sink statsd.Sink, in ReconcileMetric) {
	if sink == nil {
		return
	}

	tags := map[string]string{"result": in.Result}
	if in.Reason != "" {
		tags["reason"] = in.Reason
	}
	if in.Err != nil && in.Result == ResultError {
		if class := obserrors.Classify(in.Err); class != "" {
			tags["error_class"] = class
		}
	}

	sink.Count("reconcile.run", 1, tags)
	if in.Mutations > 0 {
		sink.Count("reconcile.mutations", int64(in.Mutations), CloneTags(tags))
	}
	if in.Anomalies > 0 {
		sink.Count("reconcile.anomalies", int64(in.Anomalies), CloneTags(tags))
	}
	if in.Duration > 0 {
		sink.Timing("reconcile.duration", in.Duration, CloneTags(tags))
	}
}

// EmitHoldChange counts holds added or removed by hold id.
func EmitHoldChange(sink statsd.Sink, holdID, action string) {
	if sink == nil {
		return
	}
	sink.Count("holds.change", 1, map[string]string{"hold_id": holdID, "action": action})
}

// EmitGateState records the external source gate state (1 up, 0 down).
func EmitGateState(sink statsd.Sink, up bool) {
	if sink == nil {
		return
	}
	v := 0.0
	if up {
		v = 1
	}
	sink.Gauge("livereg.gate_up", v, nil)
}

// EmitSessionGauge records the number of live sessions.
func EmitSessionGauge(sink statsd.Sink, count int) {
	if sink == nil {
		return
	}
	sink.Gauge("sessions.live", float64(count), nil)
}

// CloneTags creates a shallow copy of a tag map, filtering out empty keys.
func CloneTags(src map[string]string) map[string]string {
	if len(src) == 0 {
		return nil
	}
	out := make(map[string]string, len(src))
	for k, v := range src {
		if k == "" {
			continue
		}
		out[k] = v
	}
	return out
}
