package pipeline

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/aura-notes/backend/internal/models"
)

// memStore is an in-memory Store that checks the meeting invariants on every write.
type memStore struct {
	mu       sync.Mutex
	t        *testing.T
	meetings map[uuid.UUID]models.Meeting
	updates  []models.MeetingUpdate
	statuses []models.MeetingStatus
}

func newMemStore(t *testing.T) *memStore {
	return &memStore{t: t, meetings: make(map[uuid.UUID]models.Meeting)}
}

func (s *memStore) put(m models.Meeting) uuid.UUID {
	s.mu.Lock()
	defer s.mu.Unlock()
	if m.ID == uuid.Nil {
		m.ID = uuid.New()
	}
	if m.Filename == "" {
		m.Filename = "standup.mp3"
		m.StoragePath = "uploads/" + m.ID.String() + ".mp3"
	}
	m.CreatedAt = time.Now()
	m.UpdatedAt = m.CreatedAt
	s.meetings[m.ID] = m
	return m.ID
}

func (s *memStore) get(id uuid.UUID) models.Meeting {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.meetings[id]
}

func (s *memStore) GetByID(_ context.Context, id uuid.UUID) (*models.Meeting, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	m, ok := s.meetings[id]
	if !ok {
		return nil, nil
	}
	return &m, nil
}

func (s *memStore) Update(_ context.Context, id uuid.UUID, upd models.MeetingUpdate) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	m, ok := s.meetings[id]
	if !ok {
		return nil
	}
	if upd.FromStatus != "" && m.Status != upd.FromStatus {
		return nil
	}
	prev := m.Status
	upd.Apply(&m)
	m.UpdatedAt = time.Now()
	if err := checkInvariants(prev, m); err != nil {
		s.t.Errorf("invariant violated by update %+v: %v", upd, err)
	}
	s.meetings[id] = m
	s.updates = append(s.updates, upd)
	s.statuses = append(s.statuses, m.Status)
	return nil
}

var statusOrder = map[models.MeetingStatus]int{
	models.MeetingStatusUploaded:    0,
	models.MeetingStatusTranscribed: 1,
	models.MeetingStatusSummarized:  2,
	models.MeetingStatusDone:        3,
}

func checkInvariants(prev models.MeetingStatus, m models.Meeting) error {
	if m.Status == models.MeetingStatusFailed {
		if m.FailureReason == nil || *m.FailureReason == "" {
			return fmt.Errorf("failed without reason")
		}
		return nil
	}
	if statusOrder[m.Status] != statusOrder[prev]+1 {
		return fmt.Errorf("status moved from %s to %s", prev, m.Status)
	}
	if statusOrder[m.Status] >= 1 && m.Transcript == nil {
		return fmt.Errorf("%s without transcript", m.Status)
	}
	if statusOrder[m.Status] >= 2 && m.Summary == nil {
		return fmt.Errorf("%s without summary", m.Status)
	}
	if m.Status == models.MeetingStatusDone && m.ActionItems == nil {
		return fmt.Errorf("done without action items")
	}
	return nil
}

type reply struct {
	raw string
	err error
}

type call struct {
	system   string
	user     string
	jsonMode bool
}

// scriptedGenerator answers with replies in order and repeats the last one once exhausted.
type scriptedGenerator struct {
	mu      sync.Mutex
	replies []reply
	calls   []call
}

func newGenerator(replies ...reply) *scriptedGenerator {
	return &scriptedGenerator{replies: replies}
}

func (g *scriptedGenerator) Complete(_ context.Context, system, user string, jsonMode bool) (string, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.calls = append(g.calls, call{system: system, user: user, jsonMode: jsonMode})
	r := g.replies[len(g.replies)-1]
	if len(g.calls) <= len(g.replies) {
		r = g.replies[len(g.calls)-1]
	}
	return r.raw, r.err
}

func (g *scriptedGenerator) callCount() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return len(g.calls)
}

type stubTranscriber struct {
	mu         sync.Mutex
	transcript *models.Transcript
	err        error
	paths      []string
}

func (s *stubTranscriber) Transcribe(_ context.Context, audioPath string) (*models.Transcript, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.paths = append(s.paths, audioPath)
	if s.err != nil {
		return nil, s.err
	}
	t := *s.transcript
	return &t, nil
}

func (s *stubTranscriber) callCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.paths)
}

type recordingPublisher struct {
	mu       sync.Mutex
	statuses []models.MeetingStatus
}

func (p *recordingPublisher) PublishStatus(_ context.Context, m *models.Meeting) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.statuses = append(p.statuses, m.Status)
}
