package browser

import (
	"context"
	"fmt"
	"sync"

	"github.com/chromedp/cdproto/network"
	"github.com/chromedp/chromedp"
)

// Cookie is the session-state subset both provider kinds can agree on.
// Expiry is intentionally dropped: transferred cookies live only for
// the remainder of one task.
type Cookie struct {
	Name     string `json:"name"`
	Value    string `json:"value"`
	Domain   string `json:"domain"`
	Path     string `json:"path"`
	Secure   bool   `json:"secure"`
	HTTPOnly bool   `json:"http_only"`
}

// SessionState is the durable part of an authenticated browser session
// that may be carried forward during provider fallback.
type SessionState struct {
	Cookies []Cookie
}

// Options configures a browser session.
type Options struct {
	Headless  bool
	UserAgent string
}

// Session owns one headless browser. A session is owned exclusively by
// the provider attempt that created it; ownership moves only through
// SessionState export/import during fallback.
type Session struct {
	gate        *Gate
	browserCtx  context.Context
	ctxCancel   context.CancelFunc
	allocCancel context.CancelFunc
	closeOnce   sync.Once
}

// NewSession acquires a slot from the gate and starts a browser.
// The slot is held until Close. A nil gate means the caller already
// holds a slot on the session's behalf.
func NewSession(parent context.Context, opts Options, gate *Gate) (*Session, error) {
	if gate != nil {
		if err := gate.Acquire(parent); err != nil {
			return nil, err
		}
	}

	allocOpts := append(chromedp.DefaultExecAllocatorOptions[:],
		chromedp.Flag("headless", opts.Headless),
		chromedp.Flag("disable-gpu", true),
	)
	if opts.UserAgent != "" {
		allocOpts = append(allocOpts, chromedp.UserAgent(opts.UserAgent))
	}

	allocCtx, allocCancel := chromedp.NewExecAllocator(parent, allocOpts...)
	browserCtx, ctxCancel := chromedp.NewContext(allocCtx)

	// Start the browser process eagerly so the gate slot maps onto a
	// real session, not a lazy one.
	if err := chromedp.Run(browserCtx); err != nil {
		ctxCancel()
		allocCancel()
		if gate != nil {
			gate.Release()
		}
		return nil, fmt.Errorf("starting browser session: %w", err)
	}

	return &Session{
		gate:        gate,
		browserCtx:  browserCtx,
		ctxCancel:   ctxCancel,
		allocCancel: allocCancel,
	}, nil
}

// Context exposes the underlying chromedp context for event listeners.
func (s *Session) Context() context.Context {
	return s.browserCtx
}

// Run executes chromedp actions against this session, honoring the
// caller context's deadline and cancellation.
func (s *Session) Run(ctx context.Context, actions ...chromedp.Action) error {
	runCtx, cancel := context.WithCancel(s.browserCtx)
	defer cancel()
	if dl, ok := ctx.Deadline(); ok {
		runCtx, cancel = context.WithDeadline(runCtx, dl)
		defer cancel()
	}

	done := make(chan struct{})
	defer close(done)
	go func() {
		select {
		case <-ctx.Done():
			cancel()
		case <-done:
		}
	}()

	return chromedp.Run(runCtx, actions...)
}

// Screenshot captures the current viewport as PNG bytes.
func (s *Session) Screenshot(ctx context.Context) ([]byte, error) {
	var buf []byte
	if err := s.Run(ctx, chromedp.CaptureScreenshot(&buf)); err != nil {
		return nil, fmt.Errorf("capturing screenshot: %w", err)
	}
	return buf, nil
}

// ExportCookies reads the browser's cookie jar into transferable
// session state.
func (s *Session) ExportCookies(ctx context.Context) (*SessionState, error) {
	var cookies []*network.Cookie
	err := s.Run(ctx, chromedp.ActionFunc(func(ctx context.Context) error {
		var err error
		cookies, err = network.GetCookies().Do(ctx)
		return err
	}))
	if err != nil {
		return nil, fmt.Errorf("exporting cookies: %w", err)
	}

	state := &SessionState{}
	for _, c := range cookies {
		state.Cookies = append(state.Cookies, Cookie{
			Name:     c.Name,
			Value:    c.Value,
			Domain:   c.Domain,
			Path:     c.Path,
			Secure:   c.Secure,
			HTTPOnly: c.HTTPOnly,
		})
	}
	return state, nil
}

// ImportCookies loads transferred session state into this browser.
func (s *Session) ImportCookies(ctx context.Context, state *SessionState) error {
	if state == nil || len(state.Cookies) == 0 {
		return nil
	}
	return s.Run(ctx, chromedp.ActionFunc(func(ctx context.Context) error {
		for _, c := range state.Cookies {
			err := network.SetCookie(c.Name, c.Value).
				WithDomain(c.Domain).
				WithPath(c.Path).
				WithSecure(c.Secure).
				WithHTTPOnly(c.HTTPOnly).
				Do(ctx)
			if err != nil {
				return fmt.Errorf("importing cookie %q: %w", c.Name, err)
			}
		}
		return nil
	}))
}

// Close shuts the browser down and releases the gate slot. Idempotent;
// safe to call after a failure mid-sequence.
func (s *Session) Close() error {
	s.closeOnce.Do(func() {
		s.ctxCancel()
		s.allocCancel()
		if s.gate != nil {
			s.gate.Release()
		}
	})
	return nil
}
