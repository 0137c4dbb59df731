package audit

import (
	"context"
	"fmt"
	"sync"
	"time"

	"pressgate/pkg/security"
	"pressgate/pkg/storage"
	"pressgate/pkg/types"
)

// Recorder persists per-step evidence: the screenshot goes to external
// object storage, the structured log entry references the returned
// locator. Entries are write-once; the recorder only appends.
//
// Every entry passes through the redactor before it is persisted, so a
// credential that leaks into a step payload never reaches a sink or
// the trail.
type Recorder struct {
	store    storage.ObjectStore
	logger   types.Logger
	redactor *security.Redactor

	mu      sync.RWMutex
	entries []types.AuditEntry
}

func NewRecorder(store storage.ObjectStore, logger types.Logger, redactor *security.Redactor) *Recorder {
	return &Recorder{
		store:    store,
		logger:   logger,
		redactor: redactor,
	}
}

// Record stores the screenshot, appends the audit entry, and returns
// the screenshot locator. A storage failure is returned to the caller:
// audit evidence is never dropped silently, the owning phase must fail
// instead.
func (r *Recorder) Record(ctx context.Context, taskID, stepName string, screenshot []byte, level, message string, details map[string]any) (string, error) {
	var locator string
	if len(screenshot) > 0 {
		key := fmt.Sprintf("%s/%s-%d.png", taskID, stepName, time.Now().UnixNano())
		var err error
		locator, err = r.store.Put(ctx, key, screenshot)
		if err != nil {
			return "", fmt.Errorf("storing screenshot for step %q: %w", stepName, err)
		}
	}

	redacted := r.redactor.RedactDetails(details)
	entry := types.AuditEntry{
		TaskID:            taskID,
		StepName:          stepName,
		ScreenshotLocator: locator,
		Level:             level,
		Message:           r.redactor.Redact(message),
		Details:           redacted,
		Timestamp:         time.Now(),
	}

	r.mu.Lock()
	r.entries = append(r.entries, entry)
	r.mu.Unlock()

	evt := r.logger.Info()
	if level == "error" {
		evt = r.logger.Error()
	}
	evt.Str("task_id", taskID).
		Str("step", stepName).
		Str("screenshot", locator).
		Interface("details", redacted).
		Msg(entry.Message)

	return locator, nil
}

// RecordLocator appends an entry for evidence a provider already
// stored, referencing the locator it returned.
func (r *Recorder) RecordLocator(taskID, stepName, locator, level, message string, details map[string]any) {
	redacted := r.redactor.RedactDetails(details)
	entry := types.AuditEntry{
		TaskID:            taskID,
		StepName:          stepName,
		ScreenshotLocator: locator,
		Level:             level,
		Message:           r.redactor.Redact(message),
		Details:           redacted,
		Timestamp:         time.Now(),
	}

	r.mu.Lock()
	r.entries = append(r.entries, entry)
	r.mu.Unlock()

	evt := r.logger.Info()
	if level == "error" {
		evt = r.logger.Error()
	}
	evt.Str("task_id", taskID).
		Str("step", stepName).
		Str("screenshot", locator).
		Interface("details", redacted).
		Msg(entry.Message)
}

// Entries returns a copy of all entries recorded for a task.
func (r *Recorder) Entries(taskID string) []types.AuditEntry {
	r.mu.RLock()
	defer r.mu.RUnlock()
	var out []types.AuditEntry
	for _, e := range r.entries {
		if e.TaskID == taskID {
			out = append(out, e)
		}
	}
	return out
}

// ScreenshotCount reports how many entries for a task carry a
// screenshot locator.
func (r *Recorder) ScreenshotCount(taskID string) int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	n := 0
	for _, e := range r.entries {
		if e.TaskID == taskID && e.ScreenshotLocator != "" {
			n++
		}
	}
	return n
}
