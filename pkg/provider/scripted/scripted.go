package scripted

import (
	"context"
	"fmt"
	"regexp"
	"strings"
	"sync"
	"time"

	"pressgate/pkg/browser"
	"pressgate/pkg/faults"
	"pressgate/pkg/provider"
	"pressgate/pkg/types"

	"github.com/chromedp/cdproto/network"
	"github.com/chromedp/chromedp"
)

func init() {
	provider.Register(provider.KindScripted, func(ctx context.Context, cfg provider.Config, deps provider.Deps) (provider.Provider, error) {
		return New(ctx, cfg, deps)
	})
}

var postIDRe = regexp.MustCompile(`[?&](?:p|post)=(\d+)`)

// Scripted drives the target CMS with a fixed selector table. It is
// the cheap, deterministic provider: no model calls, but brittle
// against UI changes, which the visual baseline check detects.
type Scripted struct {
	cfg  provider.Config
	deps provider.Deps
	log  types.Logger

	table          SelectorTable
	baselineDir    string
	driftThreshold float64

	mu     sync.Mutex
	sess   *browser.Session
	editor EditorVariant

	telemetry *Telemetry
}

// New constructs a scripted provider and opens its browser session.
// The session slot is held until Cleanup.
func New(ctx context.Context, cfg provider.Config, deps provider.Deps) (*Scripted, error) {
	table := DefaultTable()
	if path := cfg.Option("selector_table", ""); path != "" {
		var err error
		table, err = LoadSelectorTable(path)
		if err != nil {
			return nil, err
		}
	}

	sess, err := browser.NewSession(ctx, browser.Options{Headless: cfg.Headless}, deps.Gate)
	if err != nil {
		return nil, fmt.Errorf("scripted provider %q: %w", cfg.Name, err)
	}
	if err := sess.Run(ctx, network.Enable()); err != nil {
		sess.Close()
		return nil, fmt.Errorf("scripted provider %q: enabling network domain: %w", cfg.Name, err)
	}

	threshold := DefaultDriftThreshold
	if v := cfg.IntOption("drift_threshold_pct", 0); v > 0 {
		threshold = float64(v) / 100
	}

	s := &Scripted{
		cfg:            cfg,
		deps:           deps,
		log:            deps.Logger.With().Str("provider", cfg.Name).Logger(),
		table:          table,
		baselineDir:    cfg.Option("baseline_dir", ""),
		driftThreshold: threshold,
		sess:           sess,
		editor:         EditorBlock,
		telemetry:      NewTelemetry(sess.Context()),
	}
	return s, nil
}

func (s *Scripted) Name() string        { return s.cfg.Name }
func (s *Scripted) Kind() provider.Kind { return provider.KindScripted }

func (s *Scripted) session() (*browser.Session, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.sess == nil {
		return nil, faults.NewPermanentProvider("session", fmt.Errorf("browser session already released"))
	}
	return s.sess, nil
}

// opCtx caps a single browser operation at the configured per-operation
// timeout. Zero means operations run under the caller's deadline alone.
func (s *Scripted) opCtx(ctx context.Context) (context.Context, context.CancelFunc) {
	if s.cfg.Timeout <= 0 {
		return ctx, func() {}
	}
	return context.WithTimeout(ctx, s.cfg.Timeout)
}

// absoluteURL resolves a selector-table path against the target base
// URL.
func (s *Scripted) absoluteURL(path string) string {
	if strings.Contains(path, "://") {
		return path
	}
	return strings.TrimRight(s.cfg.BaseURL, "/") + path
}

func (s *Scripted) Navigate(ctx context.Context, url string) (types.ExecutionStep, error) {
	url = s.absoluteURL(url)
	sess, err := s.session()
	if err != nil {
		return provider.FailureStep("", types.ActionNavigate, url, err), err
	}
	opCtx, cancel := s.opCtx(ctx)
	defer cancel()
	if err := sess.Run(opCtx, chromedp.Navigate(url), chromedp.WaitReady("body")); err != nil {
		err = fmt.Errorf("navigating to %s: %w", url, err)
		return provider.FailureStep("", types.ActionNavigate, url, err), err
	}
	return provider.SuccessStep("", types.ActionNavigate, url, nil), nil
}

func (s *Scripted) TypeText(ctx context.Context, target, text string) (types.ExecutionStep, error) {
	sess, err := s.session()
	if err != nil {
		return provider.FailureStep("", types.ActionType, target, err), err
	}
	opCtx, cancel := s.opCtx(ctx)
	defer cancel()
	if err := sess.Run(opCtx, chromedp.WaitVisible(target), chromedp.SendKeys(target, text)); err != nil {
		err = fmt.Errorf("typing into %s: %w", target, err)
		return provider.FailureStep("", types.ActionType, target, err), err
	}
	return provider.SuccessStep("", types.ActionType, target, map[string]string{"text": text}), nil
}

func (s *Scripted) Click(ctx context.Context, target string) (types.ExecutionStep, error) {
	sess, err := s.session()
	if err != nil {
		return provider.FailureStep("", types.ActionClick, target, err), err
	}
	opCtx, cancel := s.opCtx(ctx)
	defer cancel()
	if err := sess.Run(opCtx, chromedp.WaitVisible(target), chromedp.Click(target)); err != nil {
		err = fmt.Errorf("clicking %s: %w", target, err)
		return provider.FailureStep("", types.ActionClick, target, err), err
	}
	return provider.SuccessStep("", types.ActionClick, target, nil), nil
}

func (s *Scripted) UploadFile(ctx context.Context, target, path string) (types.ExecutionStep, error) {
	sess, err := s.session()
	if err != nil {
		return provider.FailureStep("", types.ActionUpload, target, err), err
	}
	opCtx, cancel := s.opCtx(ctx)
	defer cancel()
	if err := sess.Run(opCtx, chromedp.SetUploadFiles(target, []string{path})); err != nil {
		err = fmt.Errorf("uploading %s via %s: %w", path, target, err)
		return provider.FailureStep("", types.ActionUpload, target, err), err
	}
	return provider.SuccessStep("", types.ActionUpload, target, map[string]string{"file": path}), nil
}

func (s *Scripted) Screenshot(ctx context.Context, name string) (string, error) {
	sess, err := s.session()
	if err != nil {
		return "", err
	}
	shot, err := sess.Screenshot(ctx)
	if err != nil {
		return "", err
	}
	key := fmt.Sprintf("%s/%s-%d.png", s.deps.TaskID, name, time.Now().UnixNano())
	locator, err := s.deps.Shots.Put(ctx, key, shot)
	if err != nil {
		return "", fmt.Errorf("storing screenshot %q: %w", name, err)
	}
	return locator, nil
}

// ExecuteInstruction is not supported by the scripted provider.
func (s *Scripted) ExecuteInstruction(ctx context.Context, instructions string, ic provider.InstructionContext) (*types.ExecutionResult, error) {
	return nil, faults.NewPermanentProvider("execute instruction", faults.ErrUnsupportedInstruction)
}

// RunPhase performs one workflow phase using the selector table.
func (s *Scripted) RunPhase(ctx context.Context, phase types.Phase, content *types.ContentPayload) (provider.PhaseReport, error) {
	var report provider.PhaseReport
	var err error

	switch phase {
	case types.PhaseLogin:
		report, err = s.login(ctx)
	case types.PhaseCreateDraft:
		report, err = s.createDraft(ctx)
	case types.PhaseFillContent:
		report, err = s.fillContent(ctx, content)
	case types.PhaseUploadMedia:
		report, err = s.uploadMedia(ctx, content)
	case types.PhaseSetMetadata:
		report, err = s.setMetadata(ctx, content)
	case types.PhasePublish:
		report, err = s.publish(ctx)
	default:
		return report, faults.NewPermanentTask(string(phase), fmt.Errorf("unknown phase"))
	}

	summary := s.telemetry.Summary()
	report.Telemetry = &summary

	if err != nil {
		return report, err
	}

	if s.baselineDir != "" {
		if driftErr := s.checkDrift(ctx, phase); driftErr != nil {
			return report, driftErr
		}
	}
	return report, nil
}

// checkDrift compares the page after a phase against the stored visual
// baseline. High drift means the static selectors probably no longer
// describe this UI, so the fault is permanent for this provider and
// routes the task to the agentic fallback.
func (s *Scripted) checkDrift(ctx context.Context, phase types.Phase) error {
	sess, err := s.session()
	if err != nil {
		return err
	}
	shot, err := sess.Screenshot(ctx)
	if err != nil {
		return fmt.Errorf("capturing drift-check screenshot: %w", err)
	}
	delta, err := baselineCheck(s.baselineDir, string(phase), shot, s.driftThreshold)
	if err != nil {
		// Baseline bookkeeping problems are not page failures.
		s.log.Warn().Err(err).Str("phase", string(phase)).Msg("visual baseline check skipped")
		return nil
	}
	if delta > s.driftThreshold {
		s.log.Warn().
			Str("phase", string(phase)).
			Interface("delta", delta).
			Msg("rendered page drifted from baseline")
		return faults.NewPermanentProvider(string(phase), faults.ErrVisualDrift)
	}
	return nil
}

func (s *Scripted) login(ctx context.Context) (provider.PhaseReport, error) {
	var report provider.PhaseReport
	creds, err := s.deps.Creds.Resolve(ctx, s.cfg.CredentialRef)
	if err != nil {
		return report, faults.NewPermanentProvider("resolve credentials", err)
	}

	step, err := s.Navigate(ctx, s.table.Login.Path)
	step.Phase = types.PhaseLogin
	report.Steps = append(report.Steps, step)
	if err != nil {
		return report, err
	}

	step, err = s.TypeText(ctx, s.table.Login.Username, creds.Username)
	step.Phase = types.PhaseLogin
	report.Steps = append(report.Steps, step)
	if err != nil {
		return report, err
	}

	step, err = s.TypeText(ctx, s.table.Login.Password, creds.Password)
	step.Phase = types.PhaseLogin
	// Keyed so the audit redactor masks it even if it leaks downstream.
	step.Payload = map[string]string{"password": creds.Password}
	report.Steps = append(report.Steps, step)
	if err != nil {
		return report, err
	}

	step, err = s.Click(ctx, s.table.Login.Submit)
	step.Phase = types.PhaseLogin
	report.Steps = append(report.Steps, step)
	if err != nil {
		return report, err
	}

	sess, err := s.session()
	if err != nil {
		return report, err
	}
	verifyCtx, cancel := context.WithTimeout(ctx, 15*time.Second)
	defer cancel()
	if err := sess.Run(verifyCtx, chromedp.WaitVisible(s.table.Login.LoggedInMark)); err != nil {
		// No admin bar after submit means the target rejected us.
		fault := faults.NewPermanentProvider("verify login", faults.ErrInvalidCredentials)
		report.Steps = append(report.Steps, provider.FailureStep(types.PhaseLogin, types.ActionVerify, s.table.Login.LoggedInMark, fault))
		return report, fault
	}
	report.Steps = append(report.Steps, provider.SuccessStep(types.PhaseLogin, types.ActionVerify, s.table.Login.LoggedInMark, nil))
	return report, nil
}

func (s *Scripted) createDraft(ctx context.Context) (provider.PhaseReport, error) {
	var report provider.PhaseReport

	step, err := s.Navigate(ctx, s.table.NewPostPath)
	step.Phase = types.PhaseCreateDraft
	report.Steps = append(report.Steps, step)
	if err != nil {
		return report, err
	}

	sess, err := s.session()
	if err != nil {
		return report, err
	}

	// The probe selector exists only in the block editor; its absence
	// means the target runs the legacy flat editor.
	var isBlock bool
	probe := fmt.Sprintf("document.querySelector(%q) !== null", s.table.BlockProbe)
	if err := sess.Run(ctx, chromedp.Evaluate(probe, &isBlock)); err != nil {
		err = fmt.Errorf("probing editor variant: %w", err)
		report.Steps = append(report.Steps, provider.FailureStep(types.PhaseCreateDraft, types.ActionVerify, s.table.BlockProbe, err))
		return report, err
	}
	s.mu.Lock()
	if isBlock {
		s.editor = EditorBlock
	} else {
		s.editor = EditorClassic
	}
	variant := s.editor
	s.mu.Unlock()
	s.log.Info().Str("editor", string(variant)).Msg("detected editor variant")

	if err := sess.Run(ctx, chromedp.WaitVisible(s.table.Editor(variant).Title)); err != nil {
		err = fmt.Errorf("waiting for editor: %w", err)
		report.Steps = append(report.Steps, provider.FailureStep(types.PhaseCreateDraft, types.ActionVerify, s.table.Editor(variant).Title, err))
		return report, err
	}
	report.Steps = append(report.Steps, provider.SuccessStep(types.PhaseCreateDraft, types.ActionVerify, s.table.Editor(variant).Title,
		map[string]string{"editor": string(variant)}))
	return report, nil
}

func (s *Scripted) fillContent(ctx context.Context, content *types.ContentPayload) (provider.PhaseReport, error) {
	var report provider.PhaseReport
	s.mu.Lock()
	ed := s.table.Editor(s.editor)
	variant := s.editor
	s.mu.Unlock()

	step, err := s.TypeText(ctx, ed.Title, content.Title)
	step.Phase = types.PhaseFillContent
	report.Steps = append(report.Steps, step)
	if err != nil {
		return report, err
	}

	// The block editor needs the empty paragraph appender focused
	// before it accepts keystrokes.
	if variant == EditorBlock {
		step, err = s.Click(ctx, ed.Body)
		step.Phase = types.PhaseFillContent
		report.Steps = append(report.Steps, step)
		if err != nil {
			return report, err
		}
		sess, sessErr := s.session()
		if sessErr != nil {
			return report, sessErr
		}
		if err := sess.Run(ctx, chromedp.SendKeys(`.block-editor-writing-flow [contenteditable="true"]`, content.Body, chromedp.ByQuery)); err != nil {
			err = fmt.Errorf("typing body into block editor: %w", err)
			report.Steps = append(report.Steps, provider.FailureStep(types.PhaseFillContent, types.ActionType, ed.Body, err))
			return report, err
		}
		report.Steps = append(report.Steps, provider.SuccessStep(types.PhaseFillContent, types.ActionType, ed.Body, nil))
		return report, nil
	}

	step, err = s.TypeText(ctx, ed.Body, content.Body)
	step.Phase = types.PhaseFillContent
	report.Steps = append(report.Steps, step)
	return report, err
}

func (s *Scripted) uploadMedia(ctx context.Context, content *types.ContentPayload) (provider.PhaseReport, error) {
	var report provider.PhaseReport
	for _, path := range content.MediaPaths {
		step, err := s.Click(ctx, s.table.Media.AddButton)
		step.Phase = types.PhaseUploadMedia
		report.Steps = append(report.Steps, step)
		if err != nil {
			return report, err
		}

		step, err = s.UploadFile(ctx, s.table.Media.FileInput, path)
		step.Phase = types.PhaseUploadMedia
		report.Steps = append(report.Steps, step)
		if err != nil {
			return report, err
		}

		if s.table.Media.Confirm != "" {
			step, err = s.Click(ctx, s.table.Media.Confirm)
			step.Phase = types.PhaseUploadMedia
			report.Steps = append(report.Steps, step)
			if err != nil {
				return report, err
			}
		}
	}
	return report, nil
}

func (s *Scripted) setMetadata(ctx context.Context, content *types.ContentPayload) (provider.PhaseReport, error) {
	var report provider.PhaseReport
	sess, err := s.session()
	if err != nil {
		return report, err
	}

	if s.table.Metadata.PanelToggle != "" {
		step, err := s.Click(ctx, s.table.Metadata.PanelToggle)
		step.Phase = types.PhaseSetMetadata
		report.Steps = append(report.Steps, step)
		if err != nil {
			// The panel never rendering means the SEO plugin is not
			// installed on this target.
			fault := faults.NewPermanentProvider("open seo panel", faults.ErrMissingCapability)
			return report, fault
		}
	}

	fields := []struct {
		selector string
		key      string
	}{
		{s.table.Metadata.Slug, "slug"},
		{s.table.Metadata.MetaDescription, "meta_description"},
		{s.table.Metadata.FocusKeyword, "focus_keyword"},
	}
	for _, f := range fields {
		value := content.Metadata[f.key]
		if f.selector == "" || value == "" {
			continue
		}
		fieldCtx, cancel := context.WithTimeout(ctx, 15*time.Second)
		err := sess.Run(fieldCtx, chromedp.WaitVisible(f.selector), chromedp.SendKeys(f.selector, value))
		cancel()
		if err != nil {
			fault := faults.NewPermanentProvider("set "+f.key, faults.ErrMissingCapability)
			report.Steps = append(report.Steps, provider.FailureStep(types.PhaseSetMetadata, types.ActionType, f.selector, fault))
			return report, fault
		}
		report.Steps = append(report.Steps, provider.SuccessStep(types.PhaseSetMetadata, types.ActionType, f.selector,
			map[string]string{f.key: value}))
	}
	return report, nil
}

func (s *Scripted) publish(ctx context.Context) (provider.PhaseReport, error) {
	var report provider.PhaseReport

	step, err := s.Click(ctx, s.table.Publish.PublishButton)
	step.Phase = types.PhasePublish
	report.Steps = append(report.Steps, step)
	if err != nil {
		return report, err
	}

	if s.table.Publish.Confirm != "" {
		step, err = s.Click(ctx, s.table.Publish.Confirm)
		step.Phase = types.PhasePublish
		report.Steps = append(report.Steps, step)
		if err != nil {
			return report, err
		}
	}

	sess, err := s.session()
	if err != nil {
		return report, err
	}

	var href string
	var found bool
	if err := sess.Run(ctx,
		chromedp.WaitVisible(s.table.Publish.ViewLink),
		chromedp.AttributeValue(s.table.Publish.ViewLink, "href", &href, &found),
	); err != nil || !found {
		if err == nil {
			err = fmt.Errorf("published post link has no href")
		}
		err = fmt.Errorf("resolving published URL: %w", err)
		report.Steps = append(report.Steps, provider.FailureStep(types.PhasePublish, types.ActionVerify, s.table.Publish.ViewLink, err))
		return report, err
	}

	report.PublishedURL = href
	if m := postIDRe.FindStringSubmatch(href); m != nil {
		report.PublishedID = m[1]
	}
	report.Steps = append(report.Steps, provider.SuccessStep(types.PhasePublish, types.ActionVerify, s.table.Publish.ViewLink,
		map[string]string{"published_url": href}))
	return report, nil
}

// ExportSession hands the authenticated cookie jar to a fallback
// successor.
func (s *Scripted) ExportSession(ctx context.Context) (*browser.SessionState, error) {
	sess, err := s.session()
	if err != nil {
		return nil, err
	}
	return sess.ExportCookies(ctx)
}

// ImportSession assumes session state exported by a predecessor.
func (s *Scripted) ImportSession(ctx context.Context, state *browser.SessionState) error {
	sess, err := s.session()
	if err != nil {
		return err
	}
	return sess.ImportCookies(ctx, state)
}

// Telemetry returns the network activity summary for this attempt.
func (s *Scripted) Telemetry() types.TelemetrySummary {
	return s.telemetry.Summary()
}

// Cleanup releases the browser session. Idempotent.
func (s *Scripted) Cleanup() error {
	s.mu.Lock()
	sess := s.sess
	s.sess = nil
	s.mu.Unlock()
	if sess == nil {
		return nil
	}
	summary := s.telemetry.Summary()
	s.log.Info().
		Int("requests", summary.Requests).
		Int("failed_requests", summary.FailedRequests).
		Interface("bytes_received", summary.BytesReceived).
		Msg("closing scripted browser session")
	return sess.Close()
}
