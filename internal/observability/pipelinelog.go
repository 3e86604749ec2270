package observability

import (
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// PipelineLogger adapts the global zerolog logger to the narrow Info/Error
// capability internal/pipeline.Logger requires, so the pipeline package
// never imports zerolog directly.
type PipelineLogger struct {
	logger zerolog.Logger
}

// NewPipelineLogger wraps the process-wide zerolog logger (configured by
// InitLogger) for use as a pipeline.Logger.
func NewPipelineLogger() PipelineLogger {
	return PipelineLogger{logger: log.Logger}
}

func (l PipelineLogger) Info(msg string, fields map[string]any) {
	l.logger.Info().Fields(fields).Msg(msg)
}

func (l PipelineLogger) Error(msg string, err error, fields map[string]any) {
	l.logger.Error().Err(err).Fields(fields).Msg(msg)
}
