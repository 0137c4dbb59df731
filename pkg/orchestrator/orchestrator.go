package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"pressgate/pkg/audit"
	"pressgate/pkg/browser"
	"pressgate/pkg/creds"
	"pressgate/pkg/faults"
	"pressgate/pkg/provider"
	"pressgate/pkg/security"
	"pressgate/pkg/storage"
	"pressgate/pkg/types"
)

const (
	DefaultPhaseTimeout = 2 * time.Minute
	DefaultTaskTimeout  = 20 * time.Minute
)

// Deps are the external collaborators the orchestrator consumes.
type Deps struct {
	Logger   types.Logger
	Creds    creds.Resolver
	Shots    storage.ObjectStore
	Audit    *audit.Recorder
	Notifier Notifier
	Redactor *security.Redactor

	// Factory overrides provider construction. Tests inject doubles;
	// nil means the registry-backed provider.New.
	Factory provider.Factory
}

// Options tune retry, timeout, and concurrency behavior.
type Options struct {
	Retry        RetryPolicy
	PhaseTimeout time.Duration
	TaskTimeout  time.Duration
	SessionLimit int
}

// Orchestrator drives a PublishTask through the phase sequence under
// its provider priority chain. It holds no cross-task mutable state
// beyond the session gate, so Publish may run on as many goroutines as
// there are tasks.
type Orchestrator struct {
	configs map[string]provider.Config
	deps    Deps
	opts    Options
	gate    *browser.Gate
	log     types.Logger
}

// New builds an orchestrator over the given provider configurations.
func New(configs []provider.Config, deps Deps, opts Options) (*Orchestrator, error) {
	if len(configs) == 0 {
		return nil, fmt.Errorf("orchestrator needs at least one provider config")
	}
	byName := make(map[string]provider.Config, len(configs))
	for _, cfg := range configs {
		if cfg.Name == "" {
			return nil, fmt.Errorf("provider config missing name")
		}
		if _, dup := byName[cfg.Name]; dup {
			return nil, fmt.Errorf("duplicate provider config %q", cfg.Name)
		}
		byName[cfg.Name] = cfg
	}

	if deps.Notifier == nil {
		deps.Notifier = NopNotifier{}
	}
	if deps.Redactor == nil {
		deps.Redactor = security.NewRedactor()
	}
	if deps.Factory == nil {
		deps.Factory = provider.New
	}
	opts.Retry = opts.Retry.normalized()
	if opts.PhaseTimeout <= 0 {
		opts.PhaseTimeout = DefaultPhaseTimeout
	}
	if opts.TaskTimeout <= 0 {
		opts.TaskTimeout = DefaultTaskTimeout
	}

	return &Orchestrator{
		configs: byName,
		deps:    deps,
		opts:    opts,
		gate:    browser.NewGate(opts.SessionLimit),
		log:     deps.Logger,
	}, nil
}

// Gate exposes the session gate for observability.
func (o *Orchestrator) Gate() *browser.Gate {
	return o.gate
}

type attemptVerdict int

const (
	verdictSuccess attemptVerdict = iota
	verdictFallback
	verdictFailTask
	verdictCancelled
)

type attemptOutcome struct {
	result    types.ExecutionResult
	verdict   attemptVerdict
	fault     error
	resumeIdx int
	carried   *browser.SessionState
}

// Publish is the sole entry point: it runs the task to a terminal
// state and returns the final result. The returned error covers only
// caller mistakes; publishing failures are reported in the result.
func (o *Orchestrator) Publish(ctx context.Context, task *types.PublishTask) (*types.PublishResult, error) {
	if task == nil {
		return nil, fmt.Errorf("nil task")
	}
	if len(task.Chain) == 0 {
		return nil, fmt.Errorf("task %s has an empty provider chain", task.ID)
	}
	chain := make([]provider.Config, 0, len(task.Chain))
	for _, name := range task.Chain {
		cfg, ok := o.configs[name]
		if !ok {
			return nil, fmt.Errorf("task %s references unknown provider %q", task.ID, name)
		}
		chain = append(chain, cfg)
	}
	if !task.Start() {
		return nil, fmt.Errorf("task %s is not pending", task.ID)
	}

	taskCtx, cancel := context.WithTimeout(ctx, o.opts.TaskTimeout)
	defer cancel()

	logger := o.log.With().Str("task_id", task.ID).Logger()
	logger.Info().Int("providers", len(chain)).Msg("starting publishing task")

	resumeIdx := 0
	var carried *browser.SessionState
	var lastFault error

	for i, cfg := range chain {
		out := o.runAttempt(taskCtx, task, cfg, resumeIdx, carried, logger)
		task.AppendAttempt(out.result)
		if out.fault != nil {
			lastFault = out.fault
		}

		switch out.verdict {
		case verdictSuccess:
			task.Finish(types.StateCompleted)
			logger.Info().
				Str("provider", cfg.Name).
				Str("published_url", out.result.PublishedURL).
				Msg("task published")
			return o.finalResult(task, true, out.result.PublishedID, out.result.PublishedURL, ""), nil

		case verdictFailTask:
			task.Finish(types.StateFailed)
			logger.Error().Err(out.fault).Msg("task failed, no provider can recover")
			return o.finalResult(task, false, "", "", failureReason(out.fault)), nil

		case verdictCancelled:
			task.Finish(types.StateFailed)
			logger.Warn().Err(out.fault).Msg("task cancelled")
			return o.finalResult(task, false, "", "", "cancelled: "+failureReason(out.fault)), nil

		case verdictFallback:
			resumeIdx = out.resumeIdx
			carried = out.carried
			if i < len(chain)-1 {
				logger.Warn().
					Err(out.fault).
					Str("provider", cfg.Name).
					Str("next_provider", chain[i+1].Name).
					Str("resume_phase", string(types.PhaseOrder()[resumeIdx])).
					Msg("falling back to next provider")
			}
		}
	}

	task.Finish(types.StateManualIntervention)
	reason := failureReason(lastFault)
	logger.Error().Err(lastFault).Msg("provider chain exhausted, manual intervention required")
	// The task timeout must not suppress the operator alert.
	if err := o.deps.Notifier.Notify(context.WithoutCancel(ctx), task.ID, types.StateManualIntervention, reason); err != nil {
		logger.Error().Err(err).Msg("operator notification failed")
	}
	return o.finalResult(task, false, "", "", reason), nil
}

func (o *Orchestrator) finalResult(task *types.PublishTask, success bool, id, url, reason string) *types.PublishResult {
	return &types.PublishResult{
		Success:      success,
		PublishedID:  id,
		PublishedURL: url,
		Attempts:     task.Attempts(),
		FinalState:   task.State(),
		Reason:       reason,
	}
}

// runAttempt runs one provider through the phase sequence starting at
// resumeIdx. It owns the provider's whole lifecycle: gate slot,
// construction, cleanup.
func (o *Orchestrator) runAttempt(ctx context.Context, task *types.PublishTask, cfg provider.Config, resumeIdx int, carried *browser.SessionState, logger types.Logger) attemptOutcome {
	start := time.Now()
	result := types.ExecutionResult{Provider: cfg.Name}
	outResume := resumeIdx
	var outCarried *browser.SessionState

	finish := func(verdict attemptVerdict, fault error) attemptOutcome {
		result.Duration = time.Since(start)
		if fault != nil && result.Err == "" {
			result.Err = fault.Error()
		}
		return attemptOutcome{
			result:    result,
			verdict:   verdict,
			fault:     fault,
			resumeIdx: outResume,
			carried:   outCarried,
		}
	}

	plog := logger.With().Str("provider", cfg.Name).Logger()

	// Register credential material with the redactor before any step
	// can leak it into a sink.
	if c, err := o.deps.Creds.Resolve(ctx, cfg.CredentialRef); err == nil {
		o.deps.Redactor.AddSecret(c.Password)
	}

	if err := o.gate.Acquire(ctx); err != nil {
		return finish(verdictCancelled, err)
	}
	defer o.gate.Release()

	prov, err := o.deps.Factory(ctx, cfg, provider.Deps{
		TaskID: task.ID,
		Logger: plog,
		Creds:  o.deps.Creds,
		Shots:  o.deps.Shots,
	})
	if err != nil {
		return finish(verdictFallback, faults.NewPermanentProvider("construct provider "+cfg.Name, err))
	}

	var cleanupOnce sync.Once
	cleanup := func() {
		cleanupOnce.Do(func() {
			if err := prov.Cleanup(); err != nil {
				plog.Warn().Err(err).Msg("provider cleanup failed")
			}
		})
	}
	defer cleanup()

	phases := types.PhaseOrder()
	seq := phases[resumeIdx:]

	// Best-effort session carry-forward: when it does not cleanly
	// transfer, replay login on this provider instead of guessing.
	imported := false
	if carried != nil {
		if imp, ok := prov.(provider.SessionImporter); ok {
			if err := imp.ImportSession(ctx, carried); err != nil {
				plog.Warn().Err(err).Msg("session carry-forward failed, replaying login")
			} else {
				imported = true
				plog.Info().Msg("session state carried forward from previous provider")
			}
		}
	}
	if resumeIdx > 0 && !imported && seq[0] != types.PhaseLogin {
		seq = append([]types.Phase{types.PhaseLogin}, seq...)
	}

	for _, ph := range seq {
		// Tasks cancel between phases, never mid-phase, so the target
		// is not left half-filled inside an action sequence.
		if err := ctx.Err(); err != nil {
			cleanup()
			return finish(verdictCancelled, faults.NewTransient("between phases", err))
		}

		if ph == types.PhaseUploadMedia && len(task.Content.MediaPaths) == 0 {
			plog.Info().Str("phase", string(ph)).Msg("no media attached, skipping phase")
			continue
		}

		task.SetPhase(ph)
		decision, fault := o.runPhase(ctx, task, prov, ph, plog, &result)
		if fault != nil {
			switch decision {
			case DecisionFailTask:
				if errors.Is(fault, context.Canceled) || errors.Is(fault, context.DeadlineExceeded) {
					return finish(verdictCancelled, fault)
				}
				return finish(verdictFailTask, fault)
			default:
				outResume = phaseIndex(ph)
				outCarried = o.exportSession(ctx, prov, plog)
				cleanup()
				return finish(verdictFallback, fault)
			}
		}
	}

	if fault := o.verifyLive(ctx, task, prov, &result, plog); fault != nil {
		outResume = phaseIndex(types.PhasePublish)
		outCarried = o.exportSession(ctx, prov, plog)
		cleanup()
		return finish(verdictFallback, fault)
	}

	result.Success = true
	return finish(verdictSuccess, nil)
}

// runPhase runs one phase under the per-phase retry state machine.
// On success it captures the mandatory phase screenshot and audit
// entry; evidence failures fail the phase, they are never dropped
// silently.
func (o *Orchestrator) runPhase(ctx context.Context, task *types.PublishTask, prov provider.Provider, ph types.Phase, plog types.Logger, result *types.ExecutionResult) (Decision, error) {
	retry := newPhaseRetry(o.opts.Retry)

	for {
		phaseCtx, cancel := context.WithTimeout(ctx, o.opts.PhaseTimeout)
		report, err := prov.RunPhase(phaseCtx, ph, &task.Content)
		cancel()

		if report.Cost != nil {
			if result.Cost == nil {
				result.Cost = &types.CostEstimate{}
			}
			result.Cost.Add(*report.Cost)
		}
		if report.Telemetry != nil {
			// Totals are cumulative per session, the latest snapshot wins.
			result.Telemetry = report.Telemetry
		}

		if err == nil {
			result.Steps = append(result.Steps, report.Steps...)
			report.Steps = nil
			if report.PublishedURL != "" {
				result.PublishedURL = report.PublishedURL
			}
			if report.PublishedID != "" {
				result.PublishedID = report.PublishedID
			}

			locator, shotErr := prov.Screenshot(ctx, string(ph))
			if shotErr != nil {
				err = fmt.Errorf("capturing %s evidence: %w", ph, shotErr)
			} else {
				// The evidence locator rides on the phase's closing step;
				// an extra step would inflate the action record.
				if n := len(result.Steps); n > 0 && result.Steps[n-1].Phase == ph && result.Steps[n-1].Outcome == types.OutcomeSuccess {
					result.Steps[n-1].Screenshot = locator
				} else {
					shotStep := provider.SuccessStep(ph, types.ActionScreenshot, "", nil)
					shotStep.Screenshot = locator
					result.Steps = append(result.Steps, shotStep)
				}
				o.deps.Audit.RecordLocator(task.ID, string(ph), locator, "info",
					fmt.Sprintf("phase %s completed", ph),
					map[string]any{"provider": prov.Name(), "tries": retry.Attempts() + 1})
				plog.Info().Str("phase", string(ph)).Msg("phase completed")
				return DecisionRetry, nil
			}
		}

		class := faults.Classify(err)
		decision := retry.Next(class)

		steps := report.Steps
		if decision == DecisionRetry {
			// These steps are superseded by the upcoming try.
			for i := range steps {
				if steps[i].Outcome == types.OutcomeFailure {
					steps[i].Outcome = types.OutcomeRetried
				}
			}
		}
		result.Steps = append(result.Steps, steps...)

		if _, aerr := o.deps.Audit.Record(ctx, task.ID, string(ph)+"_failure", nil, "error",
			fmt.Sprintf("phase %s failed: %v", ph, err),
			map[string]any{"class": class.String(), "decision": decision.String(), "try": retry.Attempts()}); aerr != nil {
			plog.Error().Err(aerr).Msg("recording failure audit entry failed")
		}
		plog.Warn().
			Err(err).
			Str("phase", string(ph)).
			Str("class", class.String()).
			Str("decision", decision.String()).
			Msg("phase failed")

		if decision != DecisionRetry {
			return decision, err
		}

		timer := time.NewTimer(retry.Delay())
		select {
		case <-ctx.Done():
			timer.Stop()
			return DecisionFailTask, faults.NewTransient("backoff interrupted", ctx.Err())
		case <-timer.C:
		}
	}
}

// verifyLive captures the post-publish evidence: the live post itself
// plus a final checkpoint of the admin state.
func (o *Orchestrator) verifyLive(ctx context.Context, task *types.PublishTask, prov provider.Provider, result *types.ExecutionResult, plog types.Logger) error {
	if result.PublishedURL != "" {
		step, err := prov.Navigate(ctx, result.PublishedURL)
		step.Phase = types.PhasePublish
		step.Action = types.ActionVerify
		result.Steps = append(result.Steps, step)
		if err != nil {
			return faults.NewPermanentProvider("verify live post", err)
		}
	}

	for _, name := range []string{"live_verification", "final_checkpoint"} {
		locator, err := prov.Screenshot(ctx, name)
		if err != nil {
			return faults.NewPermanentProvider("capture "+name, err)
		}
		step := provider.SuccessStep(types.PhasePublish, types.ActionScreenshot, "", nil)
		step.Screenshot = locator
		result.Steps = append(result.Steps, step)
		o.deps.Audit.RecordLocator(task.ID, name, locator, "info", name+" captured",
			map[string]any{"provider": prov.Name()})
	}
	plog.Info().Str("published_url", result.PublishedURL).Msg("live post verified")
	return nil
}

// exportSession pulls transferable session state out of a provider
// that is about to be cleaned up. Best effort.
func (o *Orchestrator) exportSession(ctx context.Context, prov provider.Provider, plog types.Logger) *browser.SessionState {
	exp, ok := prov.(provider.SessionExporter)
	if !ok {
		return nil
	}
	state, err := exp.ExportSession(ctx)
	if err != nil {
		plog.Warn().Err(err).Msg("session export failed, successor will log in fresh")
		return nil
	}
	return state
}

func phaseIndex(ph types.Phase) int {
	for i, p := range types.PhaseOrder() {
		if p == ph {
			return i
		}
	}
	return 0
}

// failureReason maps a terminal fault to the specific, actionable text
// surfaced to operators.
func failureReason(err error) string {
	if err == nil {
		return "unknown failure"
	}
	switch {
	case errors.Is(err, faults.ErrInvalidCredentials):
		return "credentials rejected by target CMS"
	case errors.Is(err, faults.ErrVisualDrift):
		return "target UI unrecognized, manual review required"
	case errors.Is(err, faults.ErrAlreadyPublished):
		return "content already published on target"
	case errors.Is(err, faults.ErrMissingCapability):
		return "required plugin or capability missing on target CMS"
	case errors.Is(err, faults.ErrTargetUnreachable):
		return "target CMS unreachable"
	case errors.Is(err, faults.ErrStepBudgetExhausted):
		return "automation step budget exhausted"
	default:
		return err.Error()
	}
}
