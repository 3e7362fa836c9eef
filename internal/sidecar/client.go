// Package sidecar talks to the local inference service for transcription,
// diarization, and voice embeddings.
package sidecar

import (
	"context"
	"encoding/base64"
	"fmt"
	"iter"
	"log/slog"
	"net/http"
	"slices"
	"strings"
	"time"

	"github.com/raphaelgruber/voxrecon/internal/models"
	"github.com/raphaelgruber/voxrecon/internal/provider"
)

// DefaultTimeout bounds a single sidecar request.
const DefaultTimeout = 5 * time.Minute

// Client implements Transcriber, Diarizer and SpeakerVerifier against the sidecar HTTP API.
type Client struct {
	baseURL string
	token   string
	http    *http.Client
	logger  *slog.Logger
}

var (
	_ provider.Transcriber     = (*Client)(nil)
	_ provider.Diarizer        = (*Client)(nil)
	_ provider.SpeakerVerifier = (*Client)(nil)
)

// Option configures a Client.
type Option func(*Client)

// WithHTTPClient replaces the default HTTP client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) { c.http = hc }
}

// WithToken sets the bearer token sent with each request.
func WithToken(token string) Option {
	return func(c *Client) { c.token = token }
}

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(c *Client) { c.logger = l }
}

// New creates a client for the sidecar at baseURL.
func New(baseURL string, opts ...Option) (*Client, error) {
	if baseURL == "" {
		return nil, fmt.Errorf("sidecar url is required")
	}
	c := &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		http:    &http.Client{Timeout: DefaultTimeout},
		logger:  slog.Default(),
	}
	for _, o := range opts {
		o(c)
	}
	return c, nil
}

func (c *Client) post(ctx context.Context, path string, req, resp any) error {
	start := time.Now()
	err := provider.PostJSON(ctx, c.http, c.baseURL+path, c.token, req, resp)
	c.logger.Debug("sidecar request", "path", path, "duration_ms", time.Since(start).Milliseconds(), "error", err)
	return err
}

type wordOut struct {
	Word       string  `json:"word"`
	StartMs    int64   `json:"start_ms"`
	EndMs      int64   `json:"end_ms"`
	Confidence float64 `json:"confidence"`
}

type utteranceOut struct {
	ID         string    `json:"id"`
	Text       string    `json:"text"`
	StartMs    int64     `json:"start_ms"`
	EndMs      int64     `json:"end_ms"`
	Words      []wordOut `json:"words"`
	Language   string    `json:"language"`
	Confidence float64   `json:"confidence"`
}

func (u utteranceOut) toModel(role models.StreamRole, offsetMs int64) models.Utterance {
	words := make([]models.Word, len(u.Words))
	for i, w := range u.Words {
		words[i] = models.Word{Word: w.Word, StartMs: w.StartMs + offsetMs, EndMs: w.EndMs + offsetMs, Confidence: w.Confidence}
	}
	return models.Utterance{
		ID:         u.ID,
		StreamRole: role,
		Text:       u.Text,
		StartMs:    u.StartMs + offsetMs,
		EndMs:      u.EndMs + offsetMs,
		DurationMs: u.EndMs - u.StartMs,
		Words:      words,
		Language:   u.Language,
		Confidence: u.Confidence,
	}
}

type batchTranscribeRequest struct {
	AudioURL string `json:"audio_url"`
	Language string `json:"language"`
}

type batchTranscribeResponse struct {
	Utterances []utteranceOut `json:"utterances"`
	Language   string         `json:"language"`
	DurationMs int64          `json:"duration_ms"`
}

// TranscribeBatch transcribes a complete recording referenced by audio.URL.
func (c *Client) TranscribeBatch(ctx context.Context, audio provider.Audio) ([]models.Utterance, error) {
	if audio.URL == "" {
		return nil, fmt.Errorf("transcribe batch: audio url is required")
	}
	var resp batchTranscribeResponse
	if err := c.post(ctx, "/batch/transcribe", batchTranscribeRequest{AudioURL: audio.URL, Language: "auto"}, &resp); err != nil {
		return nil, fmt.Errorf("transcribe batch: %w", err)
	}
	out := make([]models.Utterance, len(resp.Utterances))
	for i, u := range resp.Utterances {
		out[i] = u.toModel(models.StreamMixed, 0)
	}
	return out, nil
}

type windowRequest struct {
	PCMBase64  string `json:"pcm_base64"`
	SampleRate int    `json:"sample_rate"`
	Language   string `json:"language"`
}

type windowResponse struct {
	Utterances []utteranceOut `json:"utterances"`
}

// StartStreaming transcribes each chunk from opts.Chunks as it arrives. Nothing
// is sent until the returned sequence is iterated.
func (c *Client) StartStreaming(ctx context.Context, opts provider.StreamOptions) (iter.Seq2[models.Utterance, error], error) {
	if opts.Chunks == nil {
		return nil, fmt.Errorf("start streaming: chunk channel is required")
	}
	lang := opts.Language
	if lang == "" {
		lang = "auto"
	}
	return func(yield func(models.Utterance, error) bool) {
		for {
			var chunk provider.Audio
			var ok bool
			select {
			case <-ctx.Done():
				yield(models.Utterance{}, ctx.Err())
				return
			case chunk, ok = <-opts.Chunks:
				if !ok {
					return
				}
			}

			rate := chunk.SampleRate
			if rate == 0 {
				rate = 16000
			}
			var resp windowResponse
			err := c.post(ctx, "/asr/transcribe-window", windowRequest{
				PCMBase64:  base64.StdEncoding.EncodeToString(chunk.Data),
				SampleRate: rate,
				Language:   lang,
			}, &resp)
			if err != nil {
				if !yield(models.Utterance{}, fmt.Errorf("transcribe window: %w", err)) {
					return
				}
				continue
			}
			for _, u := range resp.Utterances {
				if !yield(u.toModel(opts.StreamRole, chunk.StartMs), nil) {
					return
				}
			}
		}
	}, nil
}

type batchDiarizeRequest struct {
	AudioURL string `json:"audio_url"`
}

type segmentOut struct {
	ID        string `json:"id"`
	SpeakerID string `json:"speaker_id"`
	StartMs   int64  `json:"start_ms"`
	EndMs     int64  `json:"end_ms"`
}

type batchDiarizeResponse struct {
	Segments []segmentOut `json:"segments"`
	// Embeddings maps speaker id to the speaker's centroid embedding.
	Embeddings map[string][]float32 `json:"embeddings"`
	DurationMs int64                `json:"duration_ms"`
}

// Diarize runs batch diarization. Every segment whose speaker has a centroid
// becomes a cache entry carrying that centroid, labelled with the local
// speaker id.
func (c *Client) Diarize(ctx context.Context, audio provider.Audio) (*provider.DiarizationResult, error) {
	if audio.URL == "" {
		return nil, fmt.Errorf("diarize: audio url is required")
	}
	var resp batchDiarizeResponse
	if err := c.post(ctx, "/batch/diarize", batchDiarizeRequest{AudioURL: audio.URL}, &resp); err != nil {
		return nil, fmt.Errorf("diarize: %w", err)
	}

	res := &provider.DiarizationResult{DurationMs: resp.DurationMs}
	for i, s := range resp.Segments {
		res.Turns = append(res.Turns, models.DiarizationTurn{StartMs: s.StartMs, EndMs: s.EndMs, ClusterID: s.SpeakerID})
		v, ok := resp.Embeddings[s.SpeakerID]
		if !ok {
			continue
		}
		id := s.ID
		if id == "" {
			id = fmt.Sprintf("seg_%04d", i)
		}
		res.Embeddings = append(res.Embeddings, models.CachedEmbedding{
			SegmentID:       id,
			Embedding:       slices.Clone(v),
			StartMs:         s.StartMs,
			EndMs:           s.EndMs,
			WindowClusterID: s.SpeakerID,
			StreamRole:      models.StreamStudents,
		})
	}
	return res, nil
}

type audioPayload struct {
	ContentB64 string `json:"content_b64"`
	Format     string `json:"format"`
	SampleRate int    `json:"sample_rate,omitempty"`
	Channels   int    `json:"channels,omitempty"`
}

func payload(a provider.Audio) audioPayload {
	format := a.Format
	if format == "" {
		format = "wav"
	}
	return audioPayload{
		ContentB64: base64.StdEncoding.EncodeToString(a.Data),
		Format:     format,
		SampleRate: a.SampleRate,
		Channels:   a.Channels,
	}
}

type extractRequest struct {
	Audio audioPayload `json:"audio"`
}

type extractResponse struct {
	ModelID      string    `json:"model_id"`
	EmbeddingDim int       `json:"embedding_dim"`
	Embedding    []float32 `json:"embedding"`
}

// ExtractEmbedding returns the voice embedding of inline audio.
func (c *Client) ExtractEmbedding(ctx context.Context, audio provider.Audio) ([]float32, error) {
	if len(audio.Data) == 0 {
		return nil, fmt.Errorf("extract embedding: audio data is required")
	}
	var resp extractResponse
	if err := c.post(ctx, "/sv/extract_embedding", extractRequest{Audio: payload(audio)}, &resp); err != nil {
		return nil, fmt.Errorf("extract embedding: %w", err)
	}
	if resp.EmbeddingDim > 0 && len(resp.Embedding) != resp.EmbeddingDim {
		return nil, fmt.Errorf("extract embedding: dimension mismatch: got %d, want %d", len(resp.Embedding), resp.EmbeddingDim)
	}
	return resp.Embedding, nil
}

// ScoreEmbeddings compares two embeddings locally by cosine similarity.
func (c *Client) ScoreEmbeddings(a, b []float32) (float64, error) {
	return scoreCosine(a, b)
}
