package meetings

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/aura-notes/backend/internal/models"
)

// MaxListLimit caps List and ListByStatus.
const MaxListLimit = 100

const meetingColumns = `id, filename, storage_path, status, transcript, summary, action_items, failure_reason, created_at, updated_at`

// Repository handles meeting persistence.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository creates a meetings repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

// Create inserts a new meeting in status uploaded.
func (r *Repository) Create(ctx context.Context, filename, storagePath string) (*models.Meeting, error) {
	const q = `INSERT INTO meetings (filename, storage_path, status)
		VALUES ($1, $2, $3)
		RETURNING ` + meetingColumns
	m, err := scanMeeting(r.pool.QueryRow(ctx, q, filename, storagePath, string(models.MeetingStatusUploaded)))
	if err != nil {
		return nil, fmt.Errorf("insert meeting: %w", err)
	}
	return m, nil
}

// GetByID returns a meeting by ID, or (nil, nil) if it does not exist.
func (r *Repository) GetByID(ctx context.Context, id uuid.UUID) (*models.Meeting, error) {
	const q = `SELECT ` + meetingColumns + ` FROM meetings WHERE id = $1`
	m, err := scanMeeting(r.pool.QueryRow(ctx, q, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("get meeting: %w", err)
	}
	return m, nil
}

// Update writes the non-nil fields of upd in one statement. With upd.FromStatus set, the row is only
// touched if its status still matches. Unknown ids and guard mismatches are not errors.
func (r *Repository) Update(ctx context.Context, id uuid.UUID, upd models.MeetingUpdate) error {
	if upd.Empty() {
		return nil
	}
	var (
		sets []string
		args []any
	)
	add := func(col string, v any) {
		args = append(args, v)
		sets = append(sets, fmt.Sprintf("%s = $%d", col, len(args)))
	}
	if upd.Status != nil {
		add("status", string(*upd.Status))
	}
	if upd.Transcript != nil {
		raw, err := json.Marshal(upd.Transcript)
		if err != nil {
			return fmt.Errorf("marshal transcript: %w", err)
		}
		add("transcript", string(raw))
	}
	if upd.Summary != nil {
		raw, err := json.Marshal(upd.Summary)
		if err != nil {
			return fmt.Errorf("marshal summary: %w", err)
		}
		add("summary", string(raw))
	}
	if upd.ActionItems != nil {
		raw, err := json.Marshal(upd.ActionItems)
		if err != nil {
			return fmt.Errorf("marshal action items: %w", err)
		}
		add("action_items", string(raw))
	}
	if upd.FailureReason != nil {
		add("failure_reason", *upd.FailureReason)
	}

	args = append(args, id)
	q := fmt.Sprintf(`UPDATE meetings SET %s, updated_at = NOW() WHERE id = $%d`, strings.Join(sets, ", "), len(args))
	if upd.FromStatus != "" {
		args = append(args, string(upd.FromStatus))
		q += fmt.Sprintf(` AND status = $%d`, len(args))
	}
	if _, err := r.pool.Exec(ctx, q, args...); err != nil {
		return fmt.Errorf("update meeting: %w", err)
	}
	return nil
}

// List returns the most recent meetings, optionally filtered by status. Pipeline outputs are not loaded.
func (r *Repository) List(ctx context.Context, status models.MeetingStatus, limit int) ([]models.Meeting, error) {
	limit = clampLimit(limit)
	q := `SELECT id, filename, storage_path, status, NULL::jsonb, NULL::jsonb, NULL::jsonb, failure_reason, created_at, updated_at
		FROM meetings`
	args := []any{}
	if status != "" {
		args = append(args, string(status))
		q += ` WHERE status = $1`
	}
	args = append(args, limit)
	q += fmt.Sprintf(` ORDER BY created_at DESC LIMIT $%d`, len(args))
	return r.query(ctx, q, args...)
}

// ListByStatus returns the oldest meetings in any of the given statuses, for resuming work.
func (r *Repository) ListByStatus(ctx context.Context, statuses []models.MeetingStatus, limit int) ([]models.Meeting, error) {
	names := make([]string, len(statuses))
	for i, s := range statuses {
		names[i] = string(s)
	}
	const q = `SELECT ` + meetingColumns + ` FROM meetings WHERE status = ANY($1) ORDER BY created_at ASC LIMIT $2`
	return r.query(ctx, q, names, clampLimit(limit))
}

func (r *Repository) query(ctx context.Context, q string, args ...any) ([]models.Meeting, error) {
	rows, err := r.pool.Query(ctx, q, args...)
	if err != nil {
		return nil, fmt.Errorf("list meetings: %w", err)
	}
	defer rows.Close()
	list := []models.Meeting{}
	for rows.Next() {
		m, err := scanMeeting(rows)
		if err != nil {
			return nil, fmt.Errorf("scan meeting: %w", err)
		}
		list = append(list, *m)
	}
	return list, rows.Err()
}

func scanMeeting(row pgx.Row) (*models.Meeting, error) {
	var (
		m                                   models.Meeting
		status                              string
		transcript, summary, actionItemsRaw []byte
	)
	err := row.Scan(&m.ID, &m.Filename, &m.StoragePath, &status, &transcript, &summary, &actionItemsRaw,
		&m.FailureReason, &m.CreatedAt, &m.UpdatedAt)
	if err != nil {
		return nil, err
	}
	m.Status = models.MeetingStatus(status)
	if transcript != nil {
		m.Transcript = &models.Transcript{}
		if err := json.Unmarshal(transcript, m.Transcript); err != nil {
			return nil, fmt.Errorf("decode transcript: %w", err)
		}
	}
	if summary != nil {
		m.Summary = &models.Summary{}
		if err := json.Unmarshal(summary, m.Summary); err != nil {
			return nil, fmt.Errorf("decode summary: %w", err)
		}
	}
	if actionItemsRaw != nil {
		m.ActionItems = []models.ActionItem{}
		if err := json.Unmarshal(actionItemsRaw, &m.ActionItems); err != nil {
			return nil, fmt.Errorf("decode action items: %w", err)
		}
	}
	return &m, nil
}

func clampLimit(limit int) int {
	if limit <= 0 {
		return 20
	}
	if limit > MaxListLimit {
		return MaxListLimit
	}
	return limit
}
