package models

import (
	"time"

	"github.com/google/uuid"
)

// MeetingStatus is the pipeline stage a meeting has reached.
type MeetingStatus string

// Meeting lifecycle, in pipeline order. Failed is reachable from any non-terminal status.
const (
	MeetingStatusUploaded    MeetingStatus = "uploaded"
	MeetingStatusTranscribed MeetingStatus = "transcribed"
	MeetingStatusSummarized  MeetingStatus = "summarized"
	MeetingStatusDone        MeetingStatus = "done"
	MeetingStatusFailed      MeetingStatus = "failed"
)

// Valid reports whether s is a known status.
func (s MeetingStatus) Valid() bool {
	switch s {
	case MeetingStatusUploaded, MeetingStatusTranscribed, MeetingStatusSummarized, MeetingStatusDone, MeetingStatusFailed:
		return true
	}
	return false
}

// Terminal reports whether no further stage runs from s.
func (s MeetingStatus) Terminal() bool {
	return s == MeetingStatusDone || s == MeetingStatusFailed
}

// PendingStatuses are the statuses a resumed pipeline still has work for.
var PendingStatuses = []MeetingStatus{MeetingStatusUploaded, MeetingStatusTranscribed, MeetingStatusSummarized}

// Segment is one time-aligned piece of a transcript, in seconds.
type Segment struct {
	Start float64 `json:"start"`
	End   float64 `json:"end"`
	Text  string  `json:"text"`
}

// Transcript is the output of the transcription stage.
type Transcript struct {
	Text     string    `json:"text"`
	Language string    `json:"language,omitempty"`
	Duration float64   `json:"duration,omitempty"`
	Segments []Segment `json:"segments"`
}

// Summary is the output of the summarization stage.
type Summary struct {
	Agenda    []string `json:"agenda"`
	Decisions []string `json:"decisions"`
	Risks     []string `json:"risks"`
}

// ActionItem is one follow-up extracted from a transcript. Optional fields are omitted when the
// transcript does not state them.
type ActionItem struct {
	Text     string `json:"text"`
	Owner    string `json:"owner,omitempty"`
	DueDate  string `json:"due_date,omitempty"`
	Priority string `json:"priority,omitempty"`
}

// Meeting is an uploaded recording and everything the pipeline has produced for it.
type Meeting struct {
	ID            uuid.UUID     `json:"id"`
	Filename      string        `json:"filename"`
	StoragePath   string        `json:"storage_path"`
	Status        MeetingStatus `json:"status"`
	Transcript    *Transcript   `json:"transcript"`
	Summary       *Summary      `json:"summary"`
	ActionItems   []ActionItem  `json:"action_items"`
	FailureReason *string       `json:"failure_reason"`
	CreatedAt     time.Time     `json:"created_at"`
	UpdatedAt     time.Time     `json:"updated_at"`
}

// MeetingUpdate is a partial update. Nil fields are left untouched. A non-nil ActionItems
// (even empty) is written. When FromStatus is set the update only applies if the stored
// status still equals it.
type MeetingUpdate struct {
	FromStatus    MeetingStatus
	Status        *MeetingStatus
	Transcript    *Transcript
	Summary       *Summary
	ActionItems   []ActionItem
	FailureReason *string
}

// Empty reports whether the update would change nothing.
func (u MeetingUpdate) Empty() bool {
	return u.Status == nil && u.Transcript == nil && u.Summary == nil && u.ActionItems == nil && u.FailureReason == nil
}

// Apply writes the update onto m in place. It ignores FromStatus; callers check the guard.
func (u MeetingUpdate) Apply(m *Meeting) {
	if u.Status != nil {
		m.Status = *u.Status
	}
	if u.Transcript != nil {
		m.Transcript = u.Transcript
	}
	if u.Summary != nil {
		m.Summary = u.Summary
	}
	if u.ActionItems != nil {
		m.ActionItems = u.ActionItems
	}
	if u.FailureReason != nil {
		m.FailureReason = u.FailureReason
	}
}

// StatusPtr returns a pointer to s, for building updates.
func StatusPtr(s MeetingStatus) *MeetingStatus { return &s }
