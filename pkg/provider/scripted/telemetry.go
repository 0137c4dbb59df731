package scripted

import (
	"context"
	"sync"
	"time"

	"github.com/chromedp/cdproto/network"
	"github.com/chromedp/chromedp"

	"pressgate/pkg/types"
)

// Telemetry aggregates low-level network activity observed over the
// browser protocol while the scripted provider drives the target.
// The summary rides along on the attempt result for diagnosis.
type Telemetry struct {
	mu             sync.Mutex
	started        time.Time
	requests       int
	responses      int
	failedRequests int
	bytesReceived  int64
}

// NewTelemetry subscribes to browser-protocol network events on the
// given chromedp context. network.Enable must have been run on the
// session for events to flow.
func NewTelemetry(browserCtx context.Context) *Telemetry {
	t := &Telemetry{started: time.Now()}
	chromedp.ListenTarget(browserCtx, func(ev any) {
		switch e := ev.(type) {
		case *network.EventRequestWillBeSent:
			t.mu.Lock()
			t.requests++
			t.mu.Unlock()
		case *network.EventResponseReceived:
			t.mu.Lock()
			t.responses++
			t.mu.Unlock()
		case *network.EventLoadingFailed:
			t.mu.Lock()
			t.failedRequests++
			t.mu.Unlock()
		case *network.EventDataReceived:
			t.mu.Lock()
			t.bytesReceived += int64(e.DataLength)
			t.mu.Unlock()
		}
	})
	return t
}

// Summary returns the totals observed so far.
func (t *Telemetry) Summary() types.TelemetrySummary {
	t.mu.Lock()
	defer t.mu.Unlock()
	return types.TelemetrySummary{
		Requests:       t.requests,
		Responses:      t.responses,
		FailedRequests: t.failedRequests,
		BytesReceived:  t.bytesReceived,
		Elapsed:        time.Since(t.started),
	}
}
