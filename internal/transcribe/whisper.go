package transcribe

import (
	"context"
	"fmt"
	"io"
	"path"
	"strings"
	"time"

	openai "github.com/sashabaranov/go-openai"
	"go.uber.org/zap"

	"github.com/aura-notes/backend/internal/models"
)

// AudioOpener opens stored audio by the path recorded on a meeting.
type AudioOpener interface {
	Open(ctx context.Context, storagePath string) (io.ReadCloser, error)
}

// Config selects the Whisper endpoint.
type Config struct {
	Provider   string // openai | azure
	APIKey     string
	Endpoint   string
	APIVersion string
	Model      string
	Timeout    time.Duration
}

// Whisper transcribes meeting audio through an OpenAI-compatible audio API.
type Whisper struct {
	client  *openai.Client
	audio   AudioOpener
	model   string
	timeout time.Duration
	logger  *zap.Logger
}

// NewWhisper builds a client for OpenAI or an Azure OpenAI deployment.
func NewWhisper(cfg Config, audio AudioOpener, logger *zap.Logger) (*Whisper, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("transcription api key is not set")
	}
	if cfg.Model == "" {
		cfg.Model = openai.Whisper1
	}

	var clientCfg openai.ClientConfig
	switch strings.ToLower(cfg.Provider) {
	case "", "openai":
		clientCfg = openai.DefaultConfig(cfg.APIKey)
		if cfg.Endpoint != "" {
			clientCfg.BaseURL = strings.TrimRight(cfg.Endpoint, "/")
		}
	case "azure":
		if cfg.Endpoint == "" {
			return nil, fmt.Errorf("azure transcription endpoint is not set")
		}
		clientCfg = openai.DefaultAzureConfig(cfg.APIKey, cfg.Endpoint)
		if cfg.APIVersion != "" {
			clientCfg.APIVersion = cfg.APIVersion
		}
	default:
		return nil, fmt.Errorf("unsupported transcription provider %q", cfg.Provider)
	}

	return &Whisper{
		client:  openai.NewClientWithConfig(clientCfg),
		audio:   audio,
		model:   cfg.Model,
		timeout: cfg.Timeout,
		logger:  logger,
	}, nil
}

// Transcribe uploads the audio at audioPath and returns the segmented transcript.
func (w *Whisper) Transcribe(ctx context.Context, audioPath string) (*models.Transcript, error) {
	if w.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, w.timeout)
		defer cancel()
	}

	rc, err := w.audio.Open(ctx, audioPath)
	if err != nil {
		return nil, fmt.Errorf("open audio: %w", err)
	}
	defer rc.Close()

	start := time.Now()
	resp, err := w.client.CreateTranscription(ctx, openai.AudioRequest{
		Model:                  w.model,
		FilePath:               path.Base(audioPath),
		Reader:                 rc,
		Format:                 openai.AudioResponseFormatVerboseJSON,
		TimestampGranularities: []openai.TranscriptionTimestampGranularity{openai.TranscriptionTimestampGranularitySegment},
	})
	if err != nil {
		return nil, fmt.Errorf("create transcription: %w", err)
	}

	t := &models.Transcript{
		Text:     strings.TrimSpace(resp.Text),
		Language: resp.Language,
		Duration: resp.Duration,
		Segments: make([]models.Segment, 0, len(resp.Segments)),
	}
	for _, s := range resp.Segments {
		t.Segments = append(t.Segments, models.Segment{
			Start: s.Start,
			End:   s.End,
			Text:  strings.TrimSpace(s.Text),
		})
	}
	w.logger.Info("audio transcribed",
		zap.String("path", audioPath),
		zap.Int("segments", len(t.Segments)),
		zap.Float64("audio_seconds", t.Duration),
		zap.Duration("elapsed", time.Since(start)),
	)
	return t, nil
}
