package sinks

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"pressgate/pkg/log"
	"pressgate/pkg/types"

	"github.com/fatih/color"
)

// ConsoleSink renders log events for an operator watching a publishing
// run, prefixed by task and phase so interleaved tasks stay readable.
type ConsoleSink struct{}

func NewConsoleSink() *ConsoleSink {
	return &ConsoleSink{}
}

func (c *ConsoleSink) Write(event *log.LogEvent) error {
	taskID := getStringField(event.Fields, "task_id")
	phase := getStringField(event.Fields, "phase")
	provider := getStringField(event.Fields, "provider")
	errorMsg := getStringField(event.Fields, "error")
	levelStr := strings.ToUpper(levelToString(event.Level))
	timestampStr := event.Timestamp.Format(time.RFC3339)

	levelColorMap := map[types.Level]*color.Color{
		types.DebugLevel: color.New(color.FgCyan),
		types.InfoLevel:  color.New(color.FgGreen),
		types.WarnLevel:  color.New(color.FgYellow),
		types.ErrorLevel: color.New(color.FgRed),
		types.FatalLevel: color.New(color.FgRed, color.Bold),
	}

	levelFmt := color.New(color.FgWhite).SprintFunc()
	if lc, ok := levelColorMap[event.Level]; ok {
		levelFmt = lc.SprintFunc()
	}

	scope := taskID
	if scope == "" {
		scope = "orchestrator"
	}
	if phase != "" {
		scope = scope + "/" + phase
	}

	prefix := fmt.Sprintf("[%s %s] %s: ",
		levelFmt(levelStr),
		color.New(color.FgWhite).Sprint(timestampStr),
		color.CyanString(scope),
	)

	var output string
	switch {
	case provider != "" && errorMsg != "":
		output = fmt.Sprintf("%s[%s] %s: %s", prefix, color.BlueString(provider), event.Message, errorMsg)
	case provider != "":
		output = fmt.Sprintf("%s[%s] %s", prefix, color.BlueString(provider), event.Message)
	case errorMsg != "":
		output = fmt.Sprintf("%s%s: %s", prefix, event.Message, errorMsg)
	case event.Message != "":
		output = prefix + event.Message
	default:
		fieldsStr, _ := json.MarshalIndent(event.Fields, "", "  ")
		output = fmt.Sprintf("%s%s", prefix, string(fieldsStr))
	}
	fmt.Println(output)
	return nil
}

func (c *ConsoleSink) Close() error {
	return nil // Console doesn't need closing
}

func getStringField(fields map[string]any, key string) string {
	if val, ok := fields[key]; ok {
		if strVal, isStr := val.(string); isStr {
			return strVal
		}
	}
	return ""
}

func levelToString(l types.Level) string {
	switch l {
	case types.DebugLevel:
		return "debug"
	case types.InfoLevel:
		return "info"
	case types.WarnLevel:
		return "warn"
	case types.ErrorLevel:
		return "error"
	case types.FatalLevel:
		return "fatal"
	default:
		return "unknown"
	}
}
