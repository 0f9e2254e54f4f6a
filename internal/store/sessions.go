package store

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/jackc/pgx/v5"

	"github.com/MikeSquared-Agency/moniker/internal/interview"
	"github.com/MikeSquared-Agency/moniker/internal/profile"
	"github.com/MikeSquared-Agency/moniker/internal/sentinel"
)

const sessionColumns = `id, group_id, participant_id, stage, question_index, answers, scores,
	trigger_response, assigned_identifier, alternate_path, delivery_failed, closed,
	created_at, updated_at, completed_at`

// CreateSession inserts a new session. A second open session for the same
// participant trips the partial unique index and returns sentinel.ErrConflict.
func (s *Store) CreateSession(ctx context.Context, sess *interview.Session) error {
	answers, scores, err := encodeProgress(sess)
	if err != nil {
		return err
	}
	_, err = s.pool.Exec(ctx, `
		INSERT INTO interview_sessions (`+sessionColumns+`)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15)`,
		sess.ID, sess.GroupID, sess.ParticipantID, string(sess.Stage), sess.QuestionIndex, answers, scores,
		sess.TriggerResponse, sess.AssignedIdentifier, sess.AlternatePath, sess.DeliveryFailed, sess.Closed,
		sess.CreatedAt, sess.UpdatedAt, sess.CompletedAt,
	)
	if isUniqueViolation(err) {
		return fmt.Errorf("create session: %w", sentinel.ErrConflict)
	}
	if err != nil {
		return fmt.Errorf("create session: %w", err)
	}
	return nil
}

// SaveSession overwrites the mutable columns of an existing session.
func (s *Store) SaveSession(ctx context.Context, sess *interview.Session) error {
	answers, scores, err := encodeProgress(sess)
	if err != nil {
		return err
	}
	tag, err := s.pool.Exec(ctx, `
		UPDATE interview_sessions SET
			stage = $2,
			question_index = $3,
			answers = $4,
			scores = $5,
			trigger_response = $6,
			assigned_identifier = $7,
			alternate_path = $8,
			delivery_failed = $9,
			closed = $10,
			updated_at = $11,
			completed_at = $12
		WHERE id = $1`,
		sess.ID, string(sess.Stage), sess.QuestionIndex, answers, scores,
		sess.TriggerResponse, sess.AssignedIdentifier, sess.AlternatePath, sess.DeliveryFailed, sess.Closed,
		sess.UpdatedAt, sess.CompletedAt,
	)
	if err != nil {
		return fmt.Errorf("save session: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("save session %s: %w", sess.ID, sentinel.ErrNotFound)
	}
	return nil
}

// OpenSession returns the pair's session that has not reached completed.
func (s *Store) OpenSession(ctx context.Context, groupID, participantID string) (*interview.Session, error) {
	row := s.pool.QueryRow(ctx, `
		SELECT `+sessionColumns+`
		FROM interview_sessions
		WHERE group_id = $1 AND participant_id = $2 AND stage <> 'completed'`,
		groupID, participantID,
	)
	return scanSession(row)
}

// LatestSession returns the pair's most recently created session.
func (s *Store) LatestSession(ctx context.Context, groupID, participantID string) (*interview.Session, error) {
	row := s.pool.QueryRow(ctx, `
		SELECT `+sessionColumns+`
		FROM interview_sessions
		WHERE group_id = $1 AND participant_id = $2
		ORDER BY created_at DESC
		LIMIT 1`,
		groupID, participantID,
	)
	return scanSession(row)
}

// StalledSessions lists open sessions whose opening prompt never arrived.
func (s *Store) StalledSessions(ctx context.Context, groupID string) ([]*interview.Session, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT `+sessionColumns+`
		FROM interview_sessions
		WHERE group_id = $1 AND delivery_failed AND stage <> 'completed'
		ORDER BY created_at`,
		groupID,
	)
	if err != nil {
		return nil, fmt.Errorf("query stalled sessions: %w", err)
	}
	defer rows.Close()

	var out []*interview.Session
	for rows.Next() {
		sess, err := scanSession(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, sess)
	}
	return out, rows.Err()
}

func encodeProgress(sess *interview.Session) ([]byte, []byte, error) {
	answers := sess.Answers
	if answers == nil {
		answers = []profile.Answer{}
	}
	a, err := json.Marshal(answers)
	if err != nil {
		return nil, nil, fmt.Errorf("marshal answers: %w", err)
	}
	sc, err := json.Marshal(sess.Scores)
	if err != nil {
		return nil, nil, fmt.Errorf("marshal scores: %w", err)
	}
	return a, sc, nil
}

func scanSession(row pgx.Row) (*interview.Session, error) {
	var (
		sess    interview.Session
		stage   string
		answers []byte
		scores  []byte
	)
	err := row.Scan(
		&sess.ID, &sess.GroupID, &sess.ParticipantID, &stage, &sess.QuestionIndex, &answers, &scores,
		&sess.TriggerResponse, &sess.AssignedIdentifier, &sess.AlternatePath, &sess.DeliveryFailed, &sess.Closed,
		&sess.CreatedAt, &sess.UpdatedAt, &sess.CompletedAt,
	)
	if err != nil {
		return nil, notFound(err)
	}
	sess.Stage = interview.Stage(stage)
	if err := json.Unmarshal(answers, &sess.Answers); err != nil {
		return nil, fmt.Errorf("decode answers: %w", err)
	}
	if err := json.Unmarshal(scores, &sess.Scores); err != nil {
		return nil, fmt.Errorf("decode scores: %w", err)
	}
	return &sess, nil
}

// Sessions adapts the store to interview.SessionStore.
type Sessions struct{ *Store }

func (s Sessions) Create(ctx context.Context, sess *interview.Session) error {
	return s.CreateSession(ctx, sess)
}

func (s Sessions) Save(ctx context.Context, sess *interview.Session) error {
	return s.SaveSession(ctx, sess)
}

func (s Sessions) Open(ctx context.Context, groupID, participantID string) (*interview.Session, error) {
	return s.OpenSession(ctx, groupID, participantID)
}

func (s Sessions) Latest(ctx context.Context, groupID, participantID string) (*interview.Session, error) {
	return s.LatestSession(ctx, groupID, participantID)
}
