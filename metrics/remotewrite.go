package metrics

import (
	"bytes"
	"fmt"
	"net/http"
	"time"

	"github.com/golang/snappy"
	"github.com/prometheus/prometheus/prompb"

	"github.com/MOACChain/knode/klog"
)

// RemoteWriter pushes a Collector's snapshot to a Prometheus
// remote-write endpoint on demand. Grounded on the standard
// remote-write wire contract: a snappy-compressed, protobuf-encoded
// prompb.WriteRequest POSTed with the X-Prometheus-Remote-Write-Version
// header.
type RemoteWriter struct {
	url    string
	client *http.Client
	log    *klog.Logger
}

// NewRemoteWriter targets url (e.g. "http://localhost:9090/api/v1/write").
func NewRemoteWriter(url string, log *klog.Logger) *RemoteWriter {
	if log == nil {
		log = klog.Nop()
	}
	return &RemoteWriter{url: url, client: &http.Client{Timeout: 10 * time.Second}, log: log}
}

// Push encodes c's current snapshot as a single-sample-per-series
// write request and POSTs it. A failure is logged and returned, never
// panicked on — pushing metrics must never destabilize the engine.
func (rw *RemoteWriter) Push(c *Collector) error {
	now := time.Now().UnixNano() / int64(time.Millisecond)
	snapshot := c.Snapshot()

	req := &prompb.WriteRequest{}
	for name, value := range snapshot {
		v, ok := toFloat64(value)
		if !ok {
			continue
		}
		req.Timeseries = append(req.Timeseries, prompb.TimeSeries{
			Labels: []*prompb.Label{
				{Name: "__name__", Value: sanitizeMetricName(name)},
			},
			Samples: []prompb.Sample{
				{Value: v, Timestamp: now},
			},
		})
	}

	data, err := req.Marshal()
	if err != nil {
		return fmt.Errorf("metrics: marshal write request: %w", err)
	}
	compressed := snappy.Encode(nil, data)

	httpReq, err := http.NewRequest(http.MethodPost, rw.url, bytes.NewReader(compressed))
	if err != nil {
		return fmt.Errorf("metrics: build remote-write request: %w", err)
	}
	httpReq.Header.Set("Content-Encoding", "snappy")
	httpReq.Header.Set("Content-Type", "application/x-protobuf")
	httpReq.Header.Set("X-Prometheus-Remote-Write-Version", "0.1.0")

	resp, err := rw.client.Do(httpReq)
	if err != nil {
		rw.log.Debugf("metrics: remote-write push failed: %v", err)
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode/100 != 2 {
		err := fmt.Errorf("metrics: remote-write endpoint returned %s", resp.Status)
		rw.log.Debugf("%v", err)
		return err
	}
	return nil
}

func toFloat64(v interface{}) (float64, bool) {
	switch n := v.(type) {
	case int64:
		return float64(n), true
	case float64:
		return n, true
	default:
		return 0, false
	}
}

// sanitizeMetricName replaces the path-separator style names the
// go-metrics registry uses ("knode/rpc/success") with the
// underscore-joined form Prometheus metric names require.
func sanitizeMetricName(name string) string {
	out := make([]byte, len(name))
	for i := 0; i < len(name); i++ {
		if name[i] == '/' {
			out[i] = '_'
		} else {
			out[i] = name[i]
		}
	}
	return string(out)
}
