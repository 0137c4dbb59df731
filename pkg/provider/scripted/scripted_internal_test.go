package scripted

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"pressgate/pkg/faults"
	"pressgate/pkg/provider"
)

func TestPostIDRe(t *testing.T) {
	tests := []struct {
		href string
		want string
	}{
		{"https://blog.example.test/?p=42", "42"},
		{"https://blog.example.test/?page_id=1&post=7", "7"},
		{"https://blog.example.test/2026/08/launch-post/", ""},
	}

	for _, tt := range tests {
		t.Run(tt.href, func(t *testing.T) {
			m := postIDRe.FindStringSubmatch(tt.href)
			if tt.want == "" {
				assert.Nil(t, m)
				return
			}
			assert.Equal(t, tt.want, m[1])
		})
	}
}

func TestAbsoluteURL(t *testing.T) {
	s := &Scripted{cfg: provider.Config{BaseURL: "https://blog.example.test/"}}

	assert.Equal(t, "https://blog.example.test/wp-login.php", s.absoluteURL("/wp-login.php"))
	assert.Equal(t, "https://other.test/page", s.absoluteURL("https://other.test/page"))
}

func TestExecuteInstruction_Unsupported(t *testing.T) {
	s := &Scripted{}

	_, err := s.ExecuteInstruction(context.Background(), "do something clever", provider.InstructionContext{})
	assert.True(t, errors.Is(err, faults.ErrUnsupportedInstruction))
	assert.Equal(t, faults.PermanentProvider, faults.Classify(err))
}

func TestSession_AfterCleanup(t *testing.T) {
	s := &Scripted{}

	// A provider whose session was never opened (or already released)
	// surfaces a typed fault from every primitive.
	_, err := s.Click(context.Background(), "#publish")
	assert.Equal(t, faults.PermanentProvider, faults.Classify(err))
}

func TestOpCtx_AppliesConfiguredTimeout(t *testing.T) {
	s := &Scripted{cfg: provider.Config{Timeout: 30 * time.Second}}

	ctx, cancel := s.opCtx(context.Background())
	defer cancel()
	deadline, ok := ctx.Deadline()
	require.True(t, ok)
	assert.WithinDuration(t, time.Now().Add(30*time.Second), deadline, time.Second)

	s.cfg.Timeout = 0
	ctx, cancel = s.opCtx(context.Background())
	defer cancel()
	_, ok = ctx.Deadline()
	assert.False(t, ok)
}

func TestTelemetrySummary(t *testing.T) {
	tel := &Telemetry{started: time.Now().Add(-2 * time.Second)}
	tel.requests = 10
	tel.responses = 9
	tel.failedRequests = 1
	tel.bytesReceived = 4096

	sum := tel.Summary()
	assert.Equal(t, 10, sum.Requests)
	assert.Equal(t, 9, sum.Responses)
	assert.Equal(t, 1, sum.FailedRequests)
	assert.Equal(t, int64(4096), sum.BytesReceived)
	assert.GreaterOrEqual(t, sum.Elapsed, 2*time.Second)
}
