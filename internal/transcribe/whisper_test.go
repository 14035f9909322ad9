package transcribe

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aura-notes/backend/pkg/storage"
)

type memAudio map[string]string

func (m memAudio) Open(_ context.Context, p string) (io.ReadCloser, error) {
	data, ok := m[p]
	if !ok {
		return nil, storage.ErrNotFound
	}
	return io.NopCloser(strings.NewReader(data)), nil
}

func whisperServer(t *testing.T, status int, body any) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v1/audio/transcriptions", r.URL.Path)
		assert.Equal(t, "Bearer sk-test", r.Header.Get("Authorization"))
		if !assert.NoError(t, r.ParseMultipartForm(1<<20)) {
			return
		}
		assert.Equal(t, "whisper-1", r.FormValue("model"))
		assert.Equal(t, "verbose_json", r.FormValue("response_format"))

		f, hdr, err := r.FormFile("file")
		if !assert.NoError(t, err) {
			return
		}
		defer f.Close()
		data, _ := io.ReadAll(f)
		assert.Equal(t, "standup.mp3", hdr.Filename)
		assert.Equal(t, "fake-audio", string(data))

		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(status)
		_ = json.NewEncoder(w).Encode(body)
	}))
	t.Cleanup(srv.Close)
	return srv
}

func TestWhisperTranscribe(t *testing.T) {
	srv := whisperServer(t, http.StatusOK, map[string]any{
		"task":     "transcribe",
		"language": "english",
		"duration": 12.5,
		"text":     " Alice will send the report. ",
		"segments": []map[string]any{
			{"id": 0, "start": 0.0, "end": 4.2, "text": " Alice will send"},
			{"id": 1, "start": 4.2, "end": 12.5, "text": " the report. "},
		},
	})

	w, err := NewWhisper(Config{APIKey: "sk-test", Endpoint: srv.URL + "/v1"}, memAudio{"uploads/standup.mp3": "fake-audio"}, nil)
	require.NoError(t, err)

	tr, err := w.Transcribe(context.Background(), "uploads/standup.mp3")
	require.NoError(t, err)
	assert.Equal(t, "Alice will send the report.", tr.Text)
	assert.Equal(t, "english", tr.Language)
	assert.InDelta(t, 12.5, tr.Duration, 0.001)
	require.Len(t, tr.Segments, 2)
	assert.Equal(t, "Alice will send", tr.Segments[0].Text)
	assert.InDelta(t, 4.2, tr.Segments[1].Start, 0.001)
}

func TestWhisperNoSegments(t *testing.T) {
	srv := whisperServer(t, http.StatusOK, map[string]any{"text": ""})

	w, err := NewWhisper(Config{APIKey: "sk-test", Endpoint: srv.URL + "/v1"}, memAudio{"standup.mp3": "fake-audio"}, nil)
	require.NoError(t, err)

	tr, err := w.Transcribe(context.Background(), "standup.mp3")
	require.NoError(t, err)
	assert.NotNil(t, tr.Segments)
	assert.Empty(t, tr.Segments)
}

func TestWhisperAPIError(t *testing.T) {
	srv := whisperServer(t, http.StatusTooManyRequests, map[string]any{
		"error": map[string]any{"message": "quota exceeded", "type": "insufficient_quota"},
	})

	w, err := NewWhisper(Config{APIKey: "sk-test", Endpoint: srv.URL + "/v1"}, memAudio{"standup.mp3": "fake-audio"}, nil)
	require.NoError(t, err)

	_, err = w.Transcribe(context.Background(), "standup.mp3")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "quota exceeded")
}

func TestWhisperMissingAudio(t *testing.T) {
	w, err := NewWhisper(Config{APIKey: "sk-test"}, memAudio{}, nil)
	require.NoError(t, err)

	_, err = w.Transcribe(context.Background(), "gone.wav")
	assert.ErrorIs(t, err, storage.ErrNotFound)
}

func TestNewWhisperConfigErrors(t *testing.T) {
	_, err := NewWhisper(Config{}, memAudio{}, nil)
	assert.ErrorContains(t, err, "api key")

	_, err = NewWhisper(Config{APIKey: "k", Provider: "azure"}, memAudio{}, nil)
	assert.ErrorContains(t, err, "endpoint")

	_, err = NewWhisper(Config{APIKey: "k", Provider: "deepgram"}, memAudio{}, nil)
	assert.ErrorContains(t, err, "unsupported")
}
