package types_test

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"pressgate/pkg/types"
)

func TestPhaseOrder(t *testing.T) {
	order := types.PhaseOrder()

	assert.Equal(t, []types.Phase{
		types.PhaseLogin,
		types.PhaseCreateDraft,
		types.PhaseFillContent,
		types.PhaseUploadMedia,
		types.PhaseSetMetadata,
		types.PhasePublish,
	}, order)

	// Callers may mutate the returned slice without corrupting the
	// canonical ordering.
	order[0] = types.PhasePublish
	assert.Equal(t, types.PhaseLogin, types.PhaseOrder()[0])
}

func TestPublishTask_Lifecycle(t *testing.T) {
	task := types.NewPublishTask("task-1", types.ContentPayload{Title: "Hello"}, []string{"wp-main"})

	assert.Equal(t, types.StatePending, task.State())

	assert.True(t, task.Start())
	assert.Equal(t, types.StateRunning, task.State())

	// Starting twice is rejected.
	assert.False(t, task.Start())

	assert.True(t, task.Finish(types.StateCompleted))
	assert.Equal(t, types.StateCompleted, task.State())

	// Terminal states never revert.
	assert.False(t, task.Finish(types.StateFailed))
	assert.Equal(t, types.StateCompleted, task.State())
}

func TestPublishTask_FinishRejectsNonTerminal(t *testing.T) {
	task := types.NewPublishTask("task-2", types.ContentPayload{}, nil)
	task.Start()

	assert.False(t, task.Finish(types.StateRunning))
	assert.Equal(t, types.StateRunning, task.State())

	assert.True(t, task.Finish(types.StateManualIntervention))
	assert.Equal(t, types.StateManualIntervention, task.State())
}

func TestPublishTask_AttemptsAreCopied(t *testing.T) {
	task := types.NewPublishTask("task-3", types.ContentPayload{}, []string{"a", "b"})
	task.AppendAttempt(types.ExecutionResult{Provider: "a"})
	task.AppendAttempt(types.ExecutionResult{Provider: "b", Success: true})

	attempts := task.Attempts()
	assert.Len(t, attempts, 2)

	attempts[0].Provider = "mutated"
	assert.Equal(t, "a", task.Attempts()[0].Provider)
}

func TestPublishTask_Snapshot(t *testing.T) {
	task := types.NewPublishTask("task-4", types.ContentPayload{Title: "Post"}, []string{"wp"})

	snap := task.Snapshot()
	assert.Equal(t, "task-4", snap.TaskID)
	assert.Equal(t, types.StatePending, snap.State)
	assert.Zero(t, snap.Attempts)

	task.Start()
	task.SetPhase(types.PhaseFillContent)
	task.AppendAttempt(types.ExecutionResult{Provider: "wp"})

	snap = task.Snapshot()
	assert.Equal(t, types.StateRunning, snap.State)
	assert.Equal(t, types.PhaseFillContent, snap.CurrentPhase)
	assert.Equal(t, 1, snap.Attempts)
	assert.False(t, snap.StartedAt.IsZero())
}

func TestCostEstimate_Add(t *testing.T) {
	total := types.CostEstimate{InputTokens: 100, OutputTokens: 50, USD: 0.01}
	total.Add(types.CostEstimate{InputTokens: 400, OutputTokens: 150, USD: 0.04})

	assert.Equal(t, int64(500), total.InputTokens)
	assert.Equal(t, int64(200), total.OutputTokens)
	assert.InDelta(t, 0.05, total.USD, 1e-9)
}
