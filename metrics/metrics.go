// Package metrics instruments the engine: lookup latency, bucket fill
// levels, and RPC success/failure counts, collected with
// github.com/rcrowley/go-metrics (the registry the teacher's go.mod
// already carries) and optionally pushed to a Prometheus remote-write
// endpoint. Additive only — a reporter push failure is logged and
// ignored, never surfaced to the caller, per SPEC_FULL.md §4.
package metrics

import (
	"encoding/json"
	"net/http"
	"time"

	gometrics "github.com/rcrowley/go-metrics"
	"github.com/rs/cors"

	"github.com/MOACChain/knode/klog"
)

// Collector holds the engine's live metric handles. All methods are
// safe for concurrent use (go-metrics types are internally
// synchronized).
type Collector struct {
	registry gometrics.Registry

	lookupLatency gometrics.Histogram
	rpcSuccess    gometrics.Counter
	rpcFailure    gometrics.Counter
	bucketFill    gometrics.GaugeFloat64
	nodesKnown    gometrics.Gauge
}

// New creates a Collector with a fresh go-metrics registry and
// pre-registers every named metric the engine reports.
func New() *Collector {
	reg := gometrics.NewRegistry()
	return &Collector{
		registry:      reg,
		lookupLatency: gometrics.GetOrRegisterHistogram("knode/lookup/latency_ms", reg, gometrics.NewExpDecaySample(1028, 0.015)),
		rpcSuccess:    gometrics.GetOrRegisterCounter("knode/rpc/success", reg),
		rpcFailure:    gometrics.GetOrRegisterCounter("knode/rpc/failure", reg),
		bucketFill:    gometrics.GetOrRegisterGaugeFloat64("knode/routing/bucket_fill_ratio", reg),
		nodesKnown:    gometrics.GetOrRegisterGauge("knode/routing/nodes_known", reg),
	}
}

// RecordLookup records how long one iterative lookup took.
func (c *Collector) RecordLookup(d time.Duration) {
	c.lookupLatency.Update(d.Milliseconds())
}

// RecordRPCResult increments the success or failure counter.
func (c *Collector) RecordRPCResult(ok bool) {
	if ok {
		c.rpcSuccess.Inc(1)
	} else {
		c.rpcFailure.Inc(1)
	}
}

// SetBucketFill records the fraction of live-slot capacity in use
// across the routing table (liveNodes / (bucketCount * K)).
func (c *Collector) SetBucketFill(ratio float64) {
	c.bucketFill.Update(ratio)
}

// SetNodesKnown records the total number of nodes currently tracked by
// the routing table.
func (c *Collector) SetNodesKnown(n int) {
	c.nodesKnown.Update(int64(n))
}

// Snapshot returns a flat name->value map suitable for JSON
// serialization on the /status endpoint.
func (c *Collector) Snapshot() map[string]interface{} {
	out := map[string]interface{}{}
	c.registry.Each(func(name string, i interface{}) {
		switch m := i.(type) {
		case gometrics.Counter:
			out[name] = m.Count()
		case gometrics.Gauge:
			out[name] = m.Value()
		case gometrics.GaugeFloat64:
			out[name] = m.Value()
		case gometrics.Histogram:
			out[name+"_p50"] = m.Percentile(0.5)
			out[name+"_p99"] = m.Percentile(0.99)
			out[name+"_count"] = m.Count()
		}
	})
	return out
}

// StatusHandler serves the Collector's snapshot as CORS-enabled JSON,
// for the local /status endpoint SPEC_FULL.md §3 describes.
func (c *Collector) StatusHandler(log *klog.Logger) http.Handler {
	if log == nil {
		log = klog.Nop()
	}
	mux := http.NewServeMux()
	mux.HandleFunc("/status", func(w http.ResponseWriter, r *http.Request) {
		writeJSONSnapshot(w, c.Snapshot(), log)
	})
	return cors.Default().Handler(mux)
}

func writeJSONSnapshot(w http.ResponseWriter, snapshot map[string]interface{}, log *klog.Logger) {
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(snapshot); err != nil {
		log.Debugf("metrics: failed to encode status snapshot: %v", err)
	}
}
