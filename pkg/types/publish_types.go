package types

import (
	"sync"
	"time"
)

// Phase is one ordered step of the publishing workflow.
type Phase string

const (
	PhaseLogin       Phase = "login"
	PhaseCreateDraft Phase = "create_draft"
	PhaseFillContent Phase = "fill_content"
	PhaseUploadMedia Phase = "upload_media"
	PhaseSetMetadata Phase = "set_metadata"
	PhasePublish     Phase = "publish"
)

// PhaseOrder returns every workflow phase in execution order.
func PhaseOrder() []Phase {
	return []Phase{
		PhaseLogin,
		PhaseCreateDraft,
		PhaseFillContent,
		PhaseUploadMedia,
		PhaseSetMetadata,
		PhasePublish,
	}
}

// ActionKind identifies one atomic UI action a provider can perform.
type ActionKind string

const (
	ActionNavigate   ActionKind = "navigate"
	ActionType       ActionKind = "type"
	ActionClick      ActionKind = "click"
	ActionUpload     ActionKind = "upload"
	ActionScreenshot ActionKind = "screenshot"
	ActionWait       ActionKind = "wait"
	ActionVerify     ActionKind = "verify"
)

// StepOutcome is the terminal status of one ExecutionStep.
type StepOutcome string

const (
	OutcomePending StepOutcome = "pending"
	OutcomeSuccess StepOutcome = "success"
	OutcomeFailure StepOutcome = "failure"
	OutcomeRetried StepOutcome = "retried"
)

// ExecutionStep records one atomic UI action and its outcome. Steps are
// append-only: a retried action is captured as a new step, the original
// is never mutated.
type ExecutionStep struct {
	Phase      Phase             `json:"phase"`
	Action     ActionKind        `json:"action"`
	Target     string            `json:"target,omitempty"`
	Payload    map[string]string `json:"payload,omitempty"`
	Outcome    StepOutcome       `json:"outcome"`
	Screenshot string            `json:"screenshot,omitempty"`
	ErrDetail  string            `json:"error,omitempty"`
	Timestamp  time.Time         `json:"timestamp"`
}

// CostEstimate accumulates provider spend for one attempt. Only the
// agentic provider reports token usage; the scripted provider leaves
// this nil.
type CostEstimate struct {
	InputTokens  int64   `json:"input_tokens"`
	OutputTokens int64   `json:"output_tokens"`
	USD          float64 `json:"usd"`
}

// Add folds another estimate into this one.
func (c *CostEstimate) Add(other CostEstimate) {
	c.InputTokens += other.InputTokens
	c.OutputTokens += other.OutputTokens
	c.USD += other.USD
}

// TelemetrySummary aggregates the network activity a provider observed
// while driving the target. Only the scripted provider reports it.
type TelemetrySummary struct {
	Requests       int           `json:"requests"`
	Responses      int           `json:"responses"`
	FailedRequests int           `json:"failed_requests"`
	BytesReceived  int64         `json:"bytes_received"`
	Elapsed        time.Duration `json:"elapsed"`
}

// ExecutionResult is produced exactly once per provider attempt.
type ExecutionResult struct {
	Provider     string            `json:"provider"`
	Success      bool              `json:"success"`
	Steps        []ExecutionStep   `json:"steps"`
	PublishedID  string            `json:"published_id,omitempty"`
	PublishedURL string            `json:"published_url,omitempty"`
	Duration     time.Duration     `json:"duration"`
	Cost         *CostEstimate     `json:"cost,omitempty"`
	Telemetry    *TelemetrySummary `json:"telemetry,omitempty"`
	Err          string            `json:"error,omitempty"`
}

// TaskState is the lifecycle state of a PublishTask. States only ever
// advance forward.
type TaskState string

const (
	StatePending            TaskState = "pending"
	StateRunning            TaskState = "running"
	StateCompleted          TaskState = "completed"
	StateFailed             TaskState = "failed"
	StateManualIntervention TaskState = "manual_intervention_required"
)

// terminal reports whether no further transition is allowed out of s.
func (s TaskState) terminal() bool {
	return s == StateCompleted || s == StateFailed || s == StateManualIntervention
}

// ContentPayload is the fully-prepared content item handed to the
// orchestrator. Validation and sanitization happen upstream.
type ContentPayload struct {
	Title      string            `yaml:"title" json:"title"`
	Body       string            `yaml:"body" json:"body"`
	MediaPaths []string          `yaml:"media,omitempty" json:"media,omitempty"`
	Metadata   map[string]string `yaml:"metadata,omitempty" json:"metadata,omitempty"`
}

// PublishTask is one unit of publishing work. The task owns its attempt
// history exclusively: only the orchestrator goroutine running the task
// appends to it. Snapshot is safe for concurrent callers polling
// progress.
type PublishTask struct {
	ID      string
	Content ContentPayload

	// Chain is the ordered provider priority chain, first entry tried first.
	Chain []string

	mu           sync.RWMutex
	state        TaskState
	currentPhase Phase
	attempts     []ExecutionResult
	createdAt    time.Time
	startedAt    time.Time
	completedAt  time.Time
}

// NewPublishTask builds a pending task for the given content and
// provider chain.
func NewPublishTask(id string, content ContentPayload, chain []string) *PublishTask {
	return &PublishTask{
		ID:        id,
		Content:   content,
		Chain:     chain,
		state:     StatePending,
		createdAt: time.Now(),
	}
}

// Start transitions the task from pending to running.
func (t *PublishTask) Start() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.state != StatePending {
		return false
	}
	t.state = StateRunning
	t.startedAt = time.Now()
	return true
}

// Finish moves the task into a terminal state. A task that is already
// terminal stays where it is; states never revert.
func (t *PublishTask) Finish(state TaskState) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.state.terminal() || !state.terminal() {
		return false
	}
	t.state = state
	t.completedAt = time.Now()
	return true
}

// SetPhase records the phase the orchestrator is currently executing.
func (t *PublishTask) SetPhase(p Phase) {
	t.mu.Lock()
	t.currentPhase = p
	t.mu.Unlock()
}

// AppendAttempt records a finished provider attempt.
func (t *PublishTask) AppendAttempt(r ExecutionResult) {
	t.mu.Lock()
	t.attempts = append(t.attempts, r)
	t.mu.Unlock()
}

// State returns the current lifecycle state.
func (t *PublishTask) State() TaskState {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.state
}

// Attempts returns a copy of the attempt history.
func (t *PublishTask) Attempts() []ExecutionResult {
	t.mu.RLock()
	defer t.mu.RUnlock()
	out := make([]ExecutionResult, len(t.attempts))
	copy(out, t.attempts)
	return out
}

// TaskSnapshot is a point-in-time view of task progress for callers
// polling state.
type TaskSnapshot struct {
	TaskID       string    `json:"task_id"`
	State        TaskState `json:"state"`
	CurrentPhase Phase     `json:"current_phase,omitempty"`
	Attempts     int       `json:"attempts"`
	CreatedAt    time.Time `json:"created_at"`
	StartedAt    time.Time `json:"started_at,omitempty"`
	CompletedAt  time.Time `json:"completed_at,omitempty"`
}

// Snapshot returns the task's current phase/state view.
func (t *PublishTask) Snapshot() TaskSnapshot {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return TaskSnapshot{
		TaskID:       t.ID,
		State:        t.state,
		CurrentPhase: t.currentPhase,
		Attempts:     len(t.attempts),
		CreatedAt:    t.createdAt,
		StartedAt:    t.startedAt,
		CompletedAt:  t.completedAt,
	}
}

// PublishResult is the terminal outcome handed back to the caller of
// Orchestrator.Publish.
type PublishResult struct {
	Success      bool              `json:"success"`
	PublishedID  string            `json:"published_id,omitempty"`
	PublishedURL string            `json:"published_url,omitempty"`
	Attempts     []ExecutionResult `json:"attempts"`
	FinalState   TaskState         `json:"final_state"`
	Reason       string            `json:"reason,omitempty"`
}

// AuditEntry is one write-once record in the audit trail. The
// screenshot itself lives in external storage; the entry only holds the
// locator.
type AuditEntry struct {
	TaskID            string         `json:"task_id"`
	StepName          string         `json:"step_name"`
	ScreenshotLocator string         `json:"screenshot_locator,omitempty"`
	Level             string         `json:"level"`
	Message           string         `json:"message"`
	Details           map[string]any `json:"details,omitempty"`
	Timestamp         time.Time      `json:"timestamp"`
}
