package extract

import (
	"time"

	"github.com/google/uuid"
)

// Pipeline stage names, in execution order.
const (
	StageParse    = "parse"
	StageClassify = "classify"
	StageDirect   = "direct"
	StageConvert  = "convert"
	StageOCR      = "ocr"
	StageFallback = "fallback"
	StageCleanup  = "cleanup"
)

// StageRecord captures one pipeline stage execution.
type StageRecord struct {
	Name         string
	StartedAt    time.Time
	EndedAt      time.Time
	Success      bool
	ErrorMessage string
}

// Session is one end-to-end extraction request. It is the unit of resource
// tracking (via its ID) and of telemetry. Stage records are appended in order
// and frozen once the session is finalized.
type Session struct {
	ID        string
	PDFPath   string
	PageCount int
	StartedAt time.Time

	stages    []StageRecord
	finalized bool
}

// NewSession starts a session for the given input PDF.
func NewSession(pdfPath string) *Session {
	return &Session{
		ID:        uuid.NewString(),
		PDFPath:   pdfPath,
		StartedAt: time.Now(),
	}
}

// RecordStage appends a stage record. Records after finalization are dropped.
func (s *Session) RecordStage(rec StageRecord) {
	if s.finalized {
		return
	}
	s.stages = append(s.stages, rec)
}

// Finalize freezes the session. Safe to call more than once; only the first
// call has an effect.
func (s *Session) Finalize() {
	s.finalized = true
}

// Finalized reports whether the session has been frozen.
func (s *Session) Finalized() bool { return s.finalized }

// Stages returns a copy of the recorded stage history.
func (s *Session) Stages() []StageRecord {
	out := make([]StageRecord, len(s.stages))
	copy(out, s.stages)
	return out
}

// shortID returns the first uuid segment for temp-file prefixes.
func (s *Session) shortID() string {
	if len(s.ID) >= 8 {
		return s.ID[:8]
	}
	return s.ID
}
