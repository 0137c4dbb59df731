package agentic

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"sync"
	"time"

	"pressgate/pkg/browser"
	"pressgate/pkg/faults"
	"pressgate/pkg/provider"
	"pressgate/pkg/types"

	"github.com/chromedp/cdproto/input"
	"github.com/chromedp/chromedp"
)

const (
	// DefaultStepBudget bounds the tool-use loop per instruction.
	// Exceeding it is a permanent failure for this attempt.
	DefaultStepBudget = 20

	// maxConsecutiveFailures aborts a loop that keeps planning actions
	// the page rejects.
	maxConsecutiveFailures = 3
)

func init() {
	provider.Register(provider.KindAgentic, func(ctx context.Context, cfg provider.Config, deps provider.Deps) (provider.Provider, error) {
		return New(ctx, cfg, deps, nil)
	})
}

// pageSession is the slice of browser.Session the agent needs. Tests
// substitute a fake so the loop runs without a real browser.
type pageSession interface {
	Run(ctx context.Context, actions ...chromedp.Action) error
	Screenshot(ctx context.Context) ([]byte, error)
	ExportCookies(ctx context.Context) (*browser.SessionState, error)
	ImportCookies(ctx context.Context, state *browser.SessionState) error
	Close() error
}

// Agentic wraps a vision-capable model tool-use loop: screenshot in,
// structured action out, executed against the browser, repeated until
// the model signals completion or the step budget runs out.
type Agentic struct {
	cfg  provider.Config
	deps provider.Deps
	log  types.Logger

	planner Planner
	budget  int
	inRate  float64 // USD per 1k input tokens
	outRate float64 // USD per 1k output tokens

	mu   sync.Mutex
	sess pageSession
}

// New constructs an agentic provider. A nil planner wires the
// HTTP vision client from config options; tests pass their own.
func New(ctx context.Context, cfg provider.Config, deps provider.Deps, planner Planner) (*Agentic, error) {
	if planner == nil {
		apiKey := cfg.Option("api_key", "")
		if apiKey == "" {
			return nil, fmt.Errorf("agentic provider %q: option api_key is required", cfg.Name)
		}
		planner = NewVisionClient(
			cfg.Option("endpoint", ""),
			apiKey,
			cfg.Option("model", "gpt-4o"),
		)
	}

	sess, err := browser.NewSession(ctx, browser.Options{Headless: cfg.Headless}, deps.Gate)
	if err != nil {
		return nil, fmt.Errorf("agentic provider %q: %w", cfg.Name, err)
	}

	return &Agentic{
		cfg:     cfg,
		deps:    deps,
		log:     deps.Logger.With().Str("provider", cfg.Name).Logger(),
		planner: planner,
		budget:  cfg.IntOption("max_steps", DefaultStepBudget),
		inRate:  floatOption(cfg, "usd_per_1k_input", 0.0025),
		outRate: floatOption(cfg, "usd_per_1k_output", 0.01),
		sess:    sess,
	}, nil
}

func floatOption(cfg provider.Config, key string, def float64) float64 {
	v, ok := cfg.Options[key]
	if !ok {
		return def
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil {
		return def
	}
	return f
}

func (a *Agentic) Name() string        { return a.cfg.Name }
func (a *Agentic) Kind() provider.Kind { return provider.KindAgentic }

// newWithSession wires an existing session; test seam.
func newWithSession(cfg provider.Config, deps provider.Deps, planner Planner, sess pageSession) *Agentic {
	return &Agentic{
		cfg:     cfg,
		deps:    deps,
		log:     deps.Logger.With().Str("provider", cfg.Name).Logger(),
		planner: planner,
		budget:  cfg.IntOption("max_steps", DefaultStepBudget),
		inRate:  floatOption(cfg, "usd_per_1k_input", 0.0025),
		outRate: floatOption(cfg, "usd_per_1k_output", 0.01),
		sess:    sess,
	}
}

func (a *Agentic) session() (pageSession, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.sess == nil {
		return nil, faults.NewPermanentProvider("session", fmt.Errorf("browser session already released"))
	}
	return a.sess, nil
}

// opCtx caps a single browser operation at the configured per-operation
// timeout. Zero means operations run under the caller's deadline alone.
func (a *Agentic) opCtx(ctx context.Context) (context.Context, context.CancelFunc) {
	if a.cfg.Timeout <= 0 {
		return ctx, func() {}
	}
	return context.WithTimeout(ctx, a.cfg.Timeout)
}

func (a *Agentic) absoluteURL(url string) string {
	if strings.Contains(url, "://") {
		return url
	}
	return strings.TrimRight(a.cfg.BaseURL, "/") + url
}

func (a *Agentic) Navigate(ctx context.Context, url string) (types.ExecutionStep, error) {
	url = a.absoluteURL(url)
	sess, err := a.session()
	if err != nil {
		return provider.FailureStep("", types.ActionNavigate, url, err), err
	}
	opCtx, cancel := a.opCtx(ctx)
	defer cancel()
	if err := sess.Run(opCtx, chromedp.Navigate(url), chromedp.WaitReady("body")); err != nil {
		err = fmt.Errorf("navigating to %s: %w", url, err)
		return provider.FailureStep("", types.ActionNavigate, url, err), err
	}
	return provider.SuccessStep("", types.ActionNavigate, url, nil), nil
}

func (a *Agentic) TypeText(ctx context.Context, target, text string) (types.ExecutionStep, error) {
	sess, err := a.session()
	if err != nil {
		return provider.FailureStep("", types.ActionType, target, err), err
	}
	opCtx, cancel := a.opCtx(ctx)
	defer cancel()
	if err := sess.Run(opCtx, chromedp.WaitVisible(target), chromedp.SendKeys(target, text)); err != nil {
		err = fmt.Errorf("typing into %s: %w", target, err)
		return provider.FailureStep("", types.ActionType, target, err), err
	}
	return provider.SuccessStep("", types.ActionType, target, map[string]string{"text": text}), nil
}

func (a *Agentic) Click(ctx context.Context, target string) (types.ExecutionStep, error) {
	sess, err := a.session()
	if err != nil {
		return provider.FailureStep("", types.ActionClick, target, err), err
	}
	opCtx, cancel := a.opCtx(ctx)
	defer cancel()
	if err := sess.Run(opCtx, chromedp.WaitVisible(target), chromedp.Click(target)); err != nil {
		err = fmt.Errorf("clicking %s: %w", target, err)
		return provider.FailureStep("", types.ActionClick, target, err), err
	}
	return provider.SuccessStep("", types.ActionClick, target, nil), nil
}

func (a *Agentic) UploadFile(ctx context.Context, target, path string) (types.ExecutionStep, error) {
	sess, err := a.session()
	if err != nil {
		return provider.FailureStep("", types.ActionUpload, target, err), err
	}
	opCtx, cancel := a.opCtx(ctx)
	defer cancel()
	if err := sess.Run(opCtx, chromedp.SetUploadFiles(target, []string{path})); err != nil {
		err = fmt.Errorf("uploading %s via %s: %w", path, target, err)
		return provider.FailureStep("", types.ActionUpload, target, err), err
	}
	return provider.SuccessStep("", types.ActionUpload, target, map[string]string{"file": path}), nil
}

func (a *Agentic) Screenshot(ctx context.Context, name string) (string, error) {
	sess, err := a.session()
	if err != nil {
		return "", err
	}
	shot, err := sess.Screenshot(ctx)
	if err != nil {
		return "", err
	}
	key := fmt.Sprintf("%s/%s-%d.png", a.deps.TaskID, name, time.Now().UnixNano())
	locator, err := a.deps.Shots.Put(ctx, key, shot)
	if err != nil {
		return "", fmt.Errorf("storing screenshot %q: %w", name, err)
	}
	return locator, nil
}

// ExecuteInstruction runs the bounded tool-use loop. Termination is
// explicit: the model signals done or abort, the consecutive-failure
// cap trips, or the step budget is exhausted.
func (a *Agentic) ExecuteInstruction(ctx context.Context, instructions string, ic provider.InstructionContext) (*types.ExecutionResult, error) {
	start := time.Now()
	result := &types.ExecutionResult{
		Provider: a.cfg.Name,
		Cost:     &types.CostEstimate{},
	}
	var history []HistoryItem
	consecutiveFailures := 0

	for i := 0; i < a.budget; i++ {
		if err := ctx.Err(); err != nil {
			result.Duration = time.Since(start)
			fault := faults.NewTransient("agent loop", err)
			result.Err = fault.Error()
			return result, fault
		}

		sess, err := a.session()
		if err != nil {
			result.Duration = time.Since(start)
			result.Err = err.Error()
			return result, err
		}
		shot, err := sess.Screenshot(ctx)
		if err != nil {
			a.log.Warn().Err(err).Msg("screenshot for planning failed, sending text-only turn")
			shot = nil
		}

		action, usage, err := a.planner.NextAction(ctx, PlanRequest{
			Instructions:  instructions,
			ScreenshotPNG: shot,
			History:       history,
		})
		result.Cost.Add(types.CostEstimate{
			InputTokens:  usage.InputTokens,
			OutputTokens: usage.OutputTokens,
			USD:          float64(usage.InputTokens)/1000*a.inRate + float64(usage.OutputTokens)/1000*a.outRate,
		})
		if err != nil {
			result.Duration = time.Since(start)
			fault := faults.NewTransient("plan next action", err)
			result.Err = fault.Error()
			return result, fault
		}

		a.log.Debug().
			Str("action", string(action.Type)).
			Str("reason", action.Reason).
			Int("turn", i+1).
			Msg("model planned action")

		switch action.Type {
		case ActionDone:
			result.Success = true
			result.PublishedURL = action.PublishedURL
			result.PublishedID = action.PublishedID
			result.Steps = append(result.Steps, provider.SuccessStep(ic.Phase, types.ActionVerify, "",
				map[string]string{"reason": action.Reason}))
			result.Duration = time.Since(start)
			return result, nil
		case ActionAbort:
			fault := faults.NewPermanentProvider("agent abort", fmt.Errorf("model aborted: %s", action.Reason))
			result.Steps = append(result.Steps, provider.FailureStep(ic.Phase, types.ActionVerify, "", fault))
			result.Err = fault.Error()
			result.Duration = time.Since(start)
			return result, fault
		}

		step, execErr := a.applyAction(ctx, ic.Phase, action)
		result.Steps = append(result.Steps, step)
		if execErr != nil {
			consecutiveFailures++
			history = append(history, HistoryItem{Action: action, Error: execErr.Error()})
			if consecutiveFailures >= maxConsecutiveFailures {
				fault := faults.NewPermanentProvider("agent loop",
					fmt.Errorf("%d consecutive action failures, last: %w", consecutiveFailures, execErr))
				result.Err = fault.Error()
				result.Duration = time.Since(start)
				return result, fault
			}
			continue
		}
		consecutiveFailures = 0
		history = append(history, HistoryItem{Action: action})
	}

	result.Duration = time.Since(start)
	fault := faults.NewPermanentProvider("agent loop", faults.ErrStepBudgetExhausted)
	result.Err = fault.Error()
	return result, fault
}

// applyAction executes one planned action against the browser.
func (a *Agentic) applyAction(ctx context.Context, phase types.Phase, action PlannedAction) (types.ExecutionStep, error) {
	switch action.Type {
	case ActionClick:
		step, err := a.Click(ctx, action.Selector)
		step.Phase = phase
		return step, err
	case ActionClickAt:
		sess, err := a.session()
		if err != nil {
			return provider.FailureStep(phase, types.ActionClick, "", err), err
		}
		target := fmt.Sprintf("(%d,%d)", action.X, action.Y)
		if err := sess.Run(ctx, chromedp.MouseClickXY(float64(action.X), float64(action.Y))); err != nil {
			err = fmt.Errorf("clicking at %s: %w", target, err)
			return provider.FailureStep(phase, types.ActionClick, target, err), err
		}
		return provider.SuccessStep(phase, types.ActionClick, target, nil), nil
	case ActionType_:
		if action.Selector != "" {
			step, err := a.TypeText(ctx, action.Selector, action.Text)
			step.Phase = phase
			return step, err
		}
		sess, err := a.session()
		if err != nil {
			return provider.FailureStep(phase, types.ActionType, "", err), err
		}
		err = sess.Run(ctx, chromedp.ActionFunc(func(ctx context.Context) error {
			return input.InsertText(action.Text).Do(ctx)
		}))
		if err != nil {
			err = fmt.Errorf("typing into focused element: %w", err)
			return provider.FailureStep(phase, types.ActionType, "", err), err
		}
		return provider.SuccessStep(phase, types.ActionType, "", map[string]string{"text": action.Text}), nil
	case ActionNavigate:
		step, err := a.Navigate(ctx, action.URL)
		step.Phase = phase
		return step, err
	case ActionUpload:
		step, err := a.UploadFile(ctx, action.Selector, action.Path)
		step.Phase = phase
		return step, err
	case ActionScroll:
		sess, err := a.session()
		if err != nil {
			return provider.FailureStep(phase, types.ActionWait, "scroll", err), err
		}
		amount := action.Y
		if amount == 0 {
			amount = 600
		}
		if err := sess.Run(ctx, chromedp.Evaluate(fmt.Sprintf("window.scrollBy(0, %d)", amount), nil)); err != nil {
			err = fmt.Errorf("scrolling: %w", err)
			return provider.FailureStep(phase, types.ActionWait, "scroll", err), err
		}
		return provider.SuccessStep(phase, types.ActionWait, "scroll", nil), nil
	case ActionWait:
		sess, err := a.session()
		if err != nil {
			return provider.FailureStep(phase, types.ActionWait, "", err), err
		}
		if err := sess.Run(ctx, chromedp.Sleep(2*time.Second)); err != nil {
			return provider.FailureStep(phase, types.ActionWait, "", err), err
		}
		return provider.SuccessStep(phase, types.ActionWait, "", nil), nil
	default:
		err := fmt.Errorf("model planned unknown action type %q", action.Type)
		return provider.FailureStep(phase, types.ActionVerify, "", err), err
	}
}

// RunPhase translates one workflow phase into natural-language
// instructions and lets the model drive.
func (a *Agentic) RunPhase(ctx context.Context, phase types.Phase, content *types.ContentPayload) (provider.PhaseReport, error) {
	var report provider.PhaseReport

	instructions, err := a.phaseInstructions(ctx, phase, content)
	if err != nil {
		return report, err
	}

	res, err := a.ExecuteInstruction(ctx, instructions, provider.InstructionContext{
		TaskID:  a.deps.TaskID,
		Phase:   phase,
		Content: content,
	})
	if res != nil {
		report.Steps = res.Steps
		report.PublishedURL = res.PublishedURL
		report.PublishedID = res.PublishedID
		report.Cost = res.Cost
	}
	return report, err
}

func (a *Agentic) phaseInstructions(ctx context.Context, phase types.Phase, content *types.ContentPayload) (string, error) {
	base := strings.TrimRight(a.cfg.BaseURL, "/")
	switch phase {
	case types.PhaseLogin:
		c, err := a.deps.Creds.Resolve(ctx, a.cfg.CredentialRef)
		if err != nil {
			return "", faults.NewPermanentProvider("resolve credentials", err)
		}
		return fmt.Sprintf(
			"Log in to the CMS admin at %s. Username: %s Password: %s. You are done when the admin dashboard is visible.",
			base, c.Username, c.Password), nil
	case types.PhaseCreateDraft:
		return fmt.Sprintf(
			"Open the new-post editor on %s (usually under Posts > Add New). You are done when an empty post editor is visible.",
			base), nil
	case types.PhaseFillContent:
		return fmt.Sprintf(
			"In the open post editor, set the title to %q and paste the following into the post body, then stop:\n\n%s",
			content.Title, content.Body), nil
	case types.PhaseUploadMedia:
		return fmt.Sprintf(
			"Upload these files into the open post using the media tools, in order: %s. You are done when all appear in the post.",
			strings.Join(content.MediaPaths, ", ")), nil
	case types.PhaseSetMetadata:
		parts := make([]string, 0, len(content.Metadata))
		for k, v := range content.Metadata {
			parts = append(parts, fmt.Sprintf("%s=%q", k, v))
		}
		return fmt.Sprintf(
			"In the post editor's SEO settings, set these fields: %s. You are done when they are saved.",
			strings.Join(parts, ", ")), nil
	case types.PhasePublish:
		return "Publish the open post. Confirm any publish dialog. When the post is live, respond done with published_url set to the public link.", nil
	default:
		return "", faults.NewPermanentTask(string(phase), fmt.Errorf("unknown phase"))
	}
}

// ExportSession hands the authenticated cookie jar to a fallback
// successor.
func (a *Agentic) ExportSession(ctx context.Context) (*browser.SessionState, error) {
	sess, err := a.session()
	if err != nil {
		return nil, err
	}
	return sess.ExportCookies(ctx)
}

// ImportSession assumes session state exported by a predecessor.
func (a *Agentic) ImportSession(ctx context.Context, state *browser.SessionState) error {
	sess, err := a.session()
	if err != nil {
		return err
	}
	return sess.ImportCookies(ctx, state)
}

// Cleanup releases the browser session. Idempotent.
func (a *Agentic) Cleanup() error {
	a.mu.Lock()
	sess := a.sess
	a.sess = nil
	a.mu.Unlock()
	if sess == nil {
		return nil
	}
	return sess.Close()
}
