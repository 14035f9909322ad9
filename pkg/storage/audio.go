package storage

import (
	"context"
	"errors"
	"io"
	"path"
	"strings"

	"github.com/google/uuid"
)

// FolderMeetings is the key prefix for uploaded meeting audio.
const FolderMeetings = "meetings"

// ErrNotFound is returned by Open when no object exists at the path.
var ErrNotFound = errors.New("audio not found")

// Allowed audio MIME types and extensions.
var (
	AllowedAudioTypes = map[string]string{
		"audio/mpeg":   ".mp3",
		"audio/mp3":    ".mp3",
		"audio/mp4":    ".m4a",
		"audio/x-m4a":  ".m4a",
		"audio/wav":    ".wav",
		"audio/x-wav":  ".wav",
		"audio/wave":   ".wav",
		"audio/webm":   ".webm",
		"audio/ogg":    ".ogg",
		"audio/flac":   ".flac",
		"video/mp4":    ".mp4",
		"video/webm":   ".webm",
		"audio/mpga":   ".mpga",
		"audio/x-flac": ".flac",
	}
	AllowedAudioExtensions = map[string]string{
		".mp3":  "audio/mpeg",
		".mpga": "audio/mpeg",
		".mpeg": "audio/mpeg",
		".m4a":  "audio/mp4",
		".mp4":  "video/mp4",
		".wav":  "audio/wav",
		".webm": "audio/webm",
		".ogg":  "audio/ogg",
		".flac": "audio/flac",
	}
)

// AudioStore persists uploaded audio and reopens it for transcription.
// Save returns the storage path recorded on the meeting; Open accepts that path.
type AudioStore interface {
	Save(ctx context.Context, key string, body io.Reader, size int64, contentType string) (string, error)
	Open(ctx context.Context, storagePath string) (io.ReadCloser, error)
}

// ValidateAudioFileType returns true if the content type or the extension is an accepted audio format.
func ValidateAudioFileType(contentType, filename string) bool {
	if contentType != "" {
		ct := strings.ToLower(strings.TrimSpace(strings.SplitN(contentType, ";", 2)[0]))
		if _, ok := AllowedAudioTypes[ct]; ok {
			return true
		}
	}
	_, ok := AllowedAudioExtensions[strings.ToLower(path.Ext(filename))]
	return ok
}

// AudioContentType returns the MIME type for an audio filename extension.
func AudioContentType(filename string) string {
	if ct, ok := AllowedAudioExtensions[strings.ToLower(path.Ext(filename))]; ok {
		return ct
	}
	return "application/octet-stream"
}

// MeetingAudioKey returns the object key for a meeting's audio: meetings/{meeting_id}{ext}.
// The extension comes from the original filename, falling back to the content type.
func MeetingAudioKey(meetingID uuid.UUID, filename, contentType string) string {
	ext := strings.ToLower(path.Ext(filename))
	if _, ok := AllowedAudioExtensions[ext]; !ok {
		ext = AllowedAudioTypes[strings.ToLower(contentType)]
	}
	return path.Join(FolderMeetings, meetingID.String()+ext)
}
