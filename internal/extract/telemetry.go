package extract

import (
	"time"

	"github.com/rs/zerolog"

	"docextract/internal/logger"
	"docextract/pkg/models"
)

// Telemetry receives session lifecycle events. The pipeline emits
// session-start, stage-start/stage-end, and final-result events; aggregation
// and alerting live behind this interface.
type Telemetry interface {
	SessionStarted(sessionID, pdfPath string)
	StageStarted(sessionID, stage string)
	StageEnded(sessionID, stage string, success bool, duration time.Duration, errMessage string)
	SessionFinished(sessionID string, result *models.ExtractionResult, err error)
}

// LogTelemetry writes telemetry events to the structured log.
type LogTelemetry struct {
	log zerolog.Logger
}

// NewLogTelemetry returns the default zerolog-backed telemetry sink.
func NewLogTelemetry() *LogTelemetry {
	return &LogTelemetry{log: logger.WithComponent("telemetry")}
}

func (t *LogTelemetry) SessionStarted(sessionID, pdfPath string) {
	t.log.Info().
		Str("session_id", sessionID).
		Str("pdf", pdfPath).
		Msg("Extraction session started")
}

func (t *LogTelemetry) StageStarted(sessionID, stage string) {
	t.log.Debug().
		Str("session_id", sessionID).
		Str("stage", stage).
		Msg("Stage started")
}

func (t *LogTelemetry) StageEnded(sessionID, stage string, success bool, duration time.Duration, errMessage string) {
	evt := t.log.Debug()
	if !success {
		evt = t.log.Warn().Str("error", errMessage)
	}
	evt.
		Str("session_id", sessionID).
		Str("stage", stage).
		Bool("success", success).
		Dur("duration", duration).
		Msg("Stage ended")
}

func (t *LogTelemetry) SessionFinished(sessionID string, result *models.ExtractionResult, err error) {
	if err != nil {
		t.log.Error().
			Str("session_id", sessionID).
			Err(err).
			Msg("Extraction session failed")
		return
	}
	t.log.Info().
		Str("session_id", sessionID).
		Str("method", string(result.Method)).
		Float64("confidence", result.Confidence).
		Bool("scanned", result.IsScannedPDF).
		Bool("fallback", result.Diagnostics.FallbackUsed).
		Int("pages", len(result.PageSummaries)).
		Msg("Extraction session finished")
}

// NopTelemetry discards all events.
type NopTelemetry struct{}

func (NopTelemetry) SessionStarted(string, string)                             {}
func (NopTelemetry) StageStarted(string, string)                               {}
func (NopTelemetry) StageEnded(string, string, bool, time.Duration, string)    {}
func (NopTelemetry) SessionFinished(string, *models.ExtractionResult, error)   {}
