package usage

import (
	"context"

	log "github.com/sirupsen/logrus"
)

func init() {
	RegisterPlugin(NewLoggerPlugin())
}

// LoggerPlugin writes every usage record to the application log at
// debug level.
type LoggerPlugin struct{}

// NewLoggerPlugin constructs a new logger plugin instance.
func NewLoggerPlugin() *LoggerPlugin { return &LoggerPlugin{} }

// HandleUsage implements Plugin.
func (p *LoggerPlugin) HandleUsage(ctx context.Context, record Record) {
	log.Debugf("usage: kind=%s name=%s provider=%s success=%t duration=%s",
		record.Kind, record.Name, record.Provider, record.Success, record.Duration)
}
