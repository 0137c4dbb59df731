package provider

import (
	"context"
	"strconv"
	"time"

	"pressgate/pkg/browser"
	"pressgate/pkg/creds"
	"pressgate/pkg/storage"
	"pressgate/pkg/types"
)

// Kind selects a provider implementation.
type Kind string

const (
	// KindAgentic delegates step sequencing to a vision-capable model.
	KindAgentic Kind = "agentic"
	// KindScripted drives the target with fixed element selectors.
	KindScripted Kind = "scripted"
)

// Config declares everything needed to construct a provider. Immutable
// once constructed; the orchestrator never reads ambient global state.
type Config struct {
	Name          string        `yaml:"name"`
	Kind          Kind          `yaml:"kind"`
	BaseURL       string        `yaml:"base_url"`
	CredentialRef string        `yaml:"credential_ref"`
	Headless      bool          `yaml:"headless"`
	Timeout       time.Duration `yaml:"timeout"`
	// Options carries provider-specific tuning (selector table path,
	// model endpoint, step budget). String-valued so configs stay
	// declarative.
	Options map[string]string `yaml:"options,omitempty"`
}

// Option returns a tuning option or the given default.
func (c Config) Option(key, def string) string {
	if v, ok := c.Options[key]; ok && v != "" {
		return v
	}
	return def
}

// IntOption returns a tuning option parsed as int, or the default when
// missing or malformed.
func (c Config) IntOption(key string, def int) int {
	v, ok := c.Options[key]
	if !ok {
		return def
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return def
	}
	return n
}

// Deps are the collaborators a factory wires into a provider. A
// provider instance serves exactly one task attempt, so the task ID is
// part of its construction.
type Deps struct {
	TaskID   string
	Logger   types.Logger
	Gate     *browser.Gate
	Creds    creds.Resolver
	Shots    storage.ObjectStore
	WorkDir  string
}

// InstructionContext accompanies a natural-language instruction so the
// agentic provider can ground its actions.
type InstructionContext struct {
	TaskID  string
	Phase   types.Phase
	Content *types.ContentPayload
}

// PhaseReport is what a provider hands back for one workflow phase.
type PhaseReport struct {
	Steps        []types.ExecutionStep
	PublishedID  string
	PublishedURL string
	Cost         *types.CostEstimate
	Telemetry    *types.TelemetrySummary
}

// Provider is the capability contract every automation back-end
// implements. Mutating operations return the ExecutionStep that
// records the action; a failure is both a failure-outcome step and a
// typed error for classification, never a silent throw.
type Provider interface {
	Name() string
	Kind() Kind

	Navigate(ctx context.Context, url string) (types.ExecutionStep, error)
	TypeText(ctx context.Context, target, text string) (types.ExecutionStep, error)
	Click(ctx context.Context, target string) (types.ExecutionStep, error)
	UploadFile(ctx context.Context, target, path string) (types.ExecutionStep, error)

	// Screenshot captures the current page and returns a durable
	// locator from the screenshot sink.
	Screenshot(ctx context.Context, name string) (string, error)

	// ExecuteInstruction runs a bounded natural-language tool-use
	// loop. The scripted provider rejects it with a typed
	// permanent-provider fault.
	ExecuteInstruction(ctx context.Context, instructions string, ic InstructionContext) (*types.ExecutionResult, error)

	// RunPhase performs one workflow phase against the target CMS,
	// keeping the target's UI structure fully encapsulated here.
	RunPhase(ctx context.Context, phase types.Phase, content *types.ContentPayload) (PhaseReport, error)

	// Cleanup releases the underlying browser/session resource.
	// Idempotent; must succeed even after a failure mid-sequence.
	Cleanup() error
}

// SessionExporter is implemented by providers whose session state can
// be handed to a successor during fallback.
type SessionExporter interface {
	ExportSession(ctx context.Context) (*browser.SessionState, error)
}

// SessionImporter is implemented by providers that can assume
// transferred session state instead of logging in again.
type SessionImporter interface {
	ImportSession(ctx context.Context, state *browser.SessionState) error
}

// SuccessStep builds a success-outcome step for an executed action.
func SuccessStep(phase types.Phase, action types.ActionKind, target string, payload map[string]string) types.ExecutionStep {
	return types.ExecutionStep{
		Phase:     phase,
		Action:    action,
		Target:    target,
		Payload:   payload,
		Outcome:   types.OutcomeSuccess,
		Timestamp: time.Now(),
	}
}

// FailureStep builds a failure-outcome step carrying the triggering
// error.
func FailureStep(phase types.Phase, action types.ActionKind, target string, err error) types.ExecutionStep {
	detail := ""
	if err != nil {
		detail = err.Error()
	}
	return types.ExecutionStep{
		Phase:     phase,
		Action:    action,
		Target:    target,
		Outcome:   types.OutcomeFailure,
		ErrDetail: detail,
		Timestamp: time.Now(),
	}
}
