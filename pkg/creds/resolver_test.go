package creds_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"pressgate/pkg/creds"
)

func TestEnvResolver_Resolve(t *testing.T) {
	t.Setenv("WP_MAIN_USERNAME", "editor")
	t.Setenv("WP_MAIN_PASSWORD", "secret123")

	r := creds.NewEnvResolver()
	c, err := r.Resolve(context.Background(), "env:WP_MAIN")
	require.NoError(t, err)
	assert.Equal(t, "editor", c.Username)
	assert.Equal(t, "secret123", c.Password)
}

func TestEnvResolver_Errors(t *testing.T) {
	r := creds.NewEnvResolver()

	_, err := r.Resolve(context.Background(), "vault:WP_MAIN")
	assert.ErrorContains(t, err, "expected env:PREFIX form")

	_, err = r.Resolve(context.Background(), "env:PRESSGATE_TEST_UNSET")
	assert.ErrorContains(t, err, "not set")
}

func TestStaticResolver(t *testing.T) {
	r := creds.NewStaticResolver()
	r.Set("env:WP", creds.Credentials{Username: "admin", Password: "hunter2"})

	c, err := r.Resolve(context.Background(), "env:WP")
	require.NoError(t, err)
	assert.Equal(t, "admin", c.Username)

	_, err = r.Resolve(context.Background(), "env:OTHER")
	assert.Error(t, err)
}
