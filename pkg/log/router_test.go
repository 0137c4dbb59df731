package log_test

import (
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"pressgate/pkg/log"
	"pressgate/pkg/security"
	"pressgate/pkg/types"
)

// captureSink records events in memory.
type captureSink struct {
	events []*log.LogEvent
	closed bool
}

func (s *captureSink) Write(event *log.LogEvent) error {
	s.events = append(s.events, event)
	return nil
}

func (s *captureSink) Close() error {
	s.closed = true
	return nil
}

func newRouterLogger(sink log.Sink, redactor *security.Redactor) types.Logger {
	router := log.NewRouter(sink)
	router.Redactor = redactor
	return log.NewZerologAdapter(zerolog.New(router).With().Timestamp().Logger())
}

func TestRouter_FansOutEvents(t *testing.T) {
	sink := &captureSink{}
	logger := newRouterLogger(sink, nil)

	logger.Info().Str("task_id", "task-1").Int("attempt", 2).Msg("phase completed")

	require.Len(t, sink.events, 1)
	evt := sink.events[0]
	assert.Equal(t, types.InfoLevel, evt.Level)
	assert.Equal(t, "phase completed", evt.Message)
	assert.Equal(t, "task-1", evt.Fields["task_id"])
	assert.EqualValues(t, 2, evt.Fields["attempt"])
	assert.False(t, evt.Timestamp.IsZero())
}

func TestRouter_RedactsBeforeSinks(t *testing.T) {
	sink := &captureSink{}
	logger := newRouterLogger(sink, security.NewRedactor("secret123"))

	logger.Info().
		Str("password", "secret123").
		Str("detail", "typed secret123 into the form").
		Msg("logging in with secret123")

	require.Len(t, sink.events, 1)
	evt := sink.events[0]
	assert.Equal(t, "logging in with ********", evt.Message)
	assert.Equal(t, security.Mask, evt.Fields["password"])
	assert.Equal(t, "typed ******** into the form", evt.Fields["detail"])
}

func TestRouter_LevelMapping(t *testing.T) {
	sink := &captureSink{}
	logger := newRouterLogger(sink, nil)

	logger.Debug().Msg("d")
	logger.Warn().Msg("w")
	logger.Error().Msg("e")

	require.Len(t, sink.events, 3)
	assert.Equal(t, types.DebugLevel, sink.events[0].Level)
	assert.Equal(t, types.WarnLevel, sink.events[1].Level)
	assert.Equal(t, types.ErrorLevel, sink.events[2].Level)
}

func TestRouter_WithContextFields(t *testing.T) {
	sink := &captureSink{}
	base := newRouterLogger(sink, nil)

	scoped := base.With().Str("provider", "wp-main").Logger()
	scoped.Info().Msg("scoped event")

	require.Len(t, sink.events, 1)
	assert.Equal(t, "wp-main", sink.events[0].Fields["provider"])
}

func TestRouter_CloseClosesSinks(t *testing.T) {
	sink := &captureSink{}
	router := log.NewRouter(sink)

	require.NoError(t, router.Close())
	assert.True(t, sink.closed)
}

func TestRouter_MalformedLineIsSwallowed(t *testing.T) {
	sink := &captureSink{}
	router := log.NewRouter(sink)

	n, err := router.Write([]byte("not json"))
	require.NoError(t, err)
	assert.Equal(t, len("not json"), n)
	assert.Empty(t, sink.events)
}
