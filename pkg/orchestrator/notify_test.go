package orchestrator_test

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"pressgate/pkg/orchestrator"
	"pressgate/pkg/types"
)

func TestWebhookNotifier_Notify(t *testing.T) {
	var received map[string]string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "application/json", r.Header.Get("Content-Type"))
		require.NoError(t, json.NewDecoder(r.Body).Decode(&received))
		w.WriteHeader(http.StatusNoContent)
	}))
	defer srv.Close()

	n := orchestrator.NewWebhookNotifier(srv.URL)
	err := n.Notify(context.Background(), "task-1", types.StateManualIntervention, "credentials rejected by target CMS")
	require.NoError(t, err)

	assert.Equal(t, "task-1", received["task_id"])
	assert.Equal(t, "manual_intervention_required", received["state"])
	assert.Equal(t, "credentials rejected by target CMS", received["reason"])
}

func TestWebhookNotifier_ErrorStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer srv.Close()

	err := orchestrator.NewWebhookNotifier(srv.URL).
		Notify(context.Background(), "task-1", types.StateManualIntervention, "reason")
	assert.ErrorContains(t, err, "status 502")
}
