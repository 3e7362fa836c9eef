// Package provider defines the capability contracts of external inference
// services and a registry selecting one active implementation per capability.
package provider

import (
	"context"
	"iter"

	"github.com/raphaelgruber/voxrecon/internal/models"
)

// Kind names a provider capability.
type Kind string

const (
	KindTranscription       Kind = "transcription"
	KindDiarization         Kind = "diarization"
	KindSpeakerVerification Kind = "speaker_verification"
	KindNarrativeSynthesis  Kind = "narrative_synthesis"
)

// Kinds lists every capability in a stable order.
var Kinds = []Kind{KindTranscription, KindDiarization, KindSpeakerVerification, KindNarrativeSynthesis}

// Audio references audio either by location or by inline bytes.
type Audio struct {
	URL        string `json:"url,omitempty"`
	Data       []byte `json:"-"`
	Format     string `json:"format,omitempty"`
	SampleRate int    `json:"sample_rate,omitempty"`
	Channels   int    `json:"channels,omitempty"`
	StartMs    int64  `json:"start_ms,omitempty"`
	EndMs      int64  `json:"end_ms,omitempty"`
}

// StreamOptions configures a streaming transcription session.
type StreamOptions struct {
	SessionID  string
	StreamRole models.StreamRole
	Language   string
	// Chunks delivers audio windows; the stream ends when it is closed.
	Chunks <-chan Audio
}

// Transcriber turns audio into utterances.
type Transcriber interface {
	TranscribeBatch(ctx context.Context, audio Audio) ([]models.Utterance, error)
	// StartStreaming returns a lazy sequence of utterances. The sequence may be empty.
	StartStreaming(ctx context.Context, opts StreamOptions) (iter.Seq2[models.Utterance, error], error)
}

// DiarizationResult holds speaker turns and per-segment voice embeddings.
type DiarizationResult struct {
	Turns      []models.DiarizationTurn `json:"turns"`
	Embeddings []models.CachedEmbedding `json:"embeddings"`
	DurationMs int64                    `json:"duration_ms"`
}

// Diarizer segments audio by speaker.
type Diarizer interface {
	Diarize(ctx context.Context, audio Audio) (*DiarizationResult, error)
}

// SpeakerVerifier extracts and compares voice embeddings.
type SpeakerVerifier interface {
	ExtractEmbedding(ctx context.Context, audio Audio) ([]float32, error)
	ScoreEmbeddings(a, b []float32) (float64, error)
}

// Synthesizer writes narrative reports.
type Synthesizer interface {
	SynthesizeReport(ctx context.Context, rc models.ReportContext) (*models.Report, error)
	RegenerateClaim(ctx context.Context, claim models.Claim, rc models.ReportContext) (*models.Claim, error)
}
