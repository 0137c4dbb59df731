package log

import (
	"pressgate/pkg/types"

	"github.com/rs/zerolog"
)

// ZerologAdapter bridges zerolog to the types.Logger interface so the
// rest of the codebase never imports zerolog directly.
type ZerologAdapter struct {
	logger zerolog.Logger
}

func NewZerologAdapter(logger zerolog.Logger) *ZerologAdapter {
	return &ZerologAdapter{logger: logger}
}

// Nop returns a logger that discards everything. Used by provider
// factories when no logger is wired, and by tests.
func Nop() types.Logger {
	return &ZerologAdapter{logger: zerolog.New(zerolog.Nop())}
}

func (z *ZerologAdapter) Debug() types.Event {
	return &zerologEvent{event: z.logger.Debug()}
}

func (z *ZerologAdapter) Info() types.Event {
	return &zerologEvent{event: z.logger.Info()}
}

func (z *ZerologAdapter) Warn() types.Event {
	return &zerologEvent{event: z.logger.Warn()}
}

func (z *ZerologAdapter) Error() types.Event {
	return &zerologEvent{event: z.logger.Error()}
}

func (z *ZerologAdapter) Fatal() types.Event {
	return &zerologEvent{event: z.logger.Fatal()}
}

func (z *ZerologAdapter) With() types.Context {
	return &zerologContext{ctx: z.logger.With()}
}

type zerologEvent struct {
	event *zerolog.Event
}

func (e *zerologEvent) Msg(msg string) {
	e.event.Msg(msg)
}

func (e *zerologEvent) Msgf(format string, v ...any) {
	e.event.Msgf(format, v...)
}

func (e *zerologEvent) Err(err error) types.Event {
	e.event = e.event.Err(err)
	return e
}

func (e *zerologEvent) Interface(key string, value any) types.Event {
	e.event = e.event.Interface(key, value)
	return e
}

func (e *zerologEvent) Str(key, value string) types.Event {
	e.event = e.event.Str(key, value)
	return e
}

func (e *zerologEvent) Int(key string, value int) types.Event {
	e.event = e.event.Int(key, value)
	return e
}

type zerologContext struct {
	ctx zerolog.Context
}

func (c *zerologContext) Str(key, value string) types.Context {
	return &zerologContext{ctx: c.ctx.Str(key, value)}
}

func (c *zerologContext) Int(key string, value int) types.Context {
	return &zerologContext{ctx: c.ctx.Int(key, value)}
}

func (c *zerologContext) Interface(key string, value any) types.Context {
	return &zerologContext{ctx: c.ctx.Interface(key, value)}
}

func (c *zerologContext) Timestamp() types.Context {
	return &zerologContext{ctx: c.ctx.Timestamp()}
}

func (c *zerologContext) Logger() types.Logger {
	return &ZerologAdapter{logger: c.ctx.Logger()}
}
