package store

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/google/uuid"

	"github.com/MikeSquared-Agency/moniker/internal/callsign"
)

const recordColumns = `identifier, group_id, participant_id, session_id, scores, answers, source, attempts, assigned_at`

// InsertIfAbsent records an identifier unless it already exists anywhere in
// the system. It reports whether this call claimed it.
func (s *Store) InsertIfAbsent(ctx context.Context, rec callsign.Record) (bool, error) {
	scores, err := json.Marshal(rec.Profile.Scores)
	if err != nil {
		return false, fmt.Errorf("marshal scores: %w", err)
	}
	answers, err := json.Marshal(rec.Profile.Answers)
	if err != nil {
		return false, fmt.Errorf("marshal answers: %w", err)
	}
	if rec.Profile.Answers == nil {
		answers = []byte("[]")
	}

	tag, err := s.pool.Exec(ctx, `
		INSERT INTO identifier_records (`+recordColumns+`)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		ON CONFLICT (identifier) DO NOTHING`,
		rec.Identifier, rec.GroupID, rec.ParticipantID, nullableUUID(rec.SessionID), scores, answers,
		string(rec.Source), rec.Attempts, rec.AssignedAt,
	)
	if err != nil {
		return false, fmt.Errorf("insert identifier record: %w", err)
	}
	return tag.RowsAffected() == 1, nil
}

// BySession returns the record allocated for a session.
func (s *Store) BySession(ctx context.Context, sessionID uuid.UUID) (callsign.Record, error) {
	row := s.pool.QueryRow(ctx, `
		SELECT `+recordColumns+`
		FROM identifier_records
		WHERE session_id = $1`,
		sessionID,
	)
	return scanRecord(row)
}

// ByIdentifier returns the record that owns an identifier.
func (s *Store) ByIdentifier(ctx context.Context, identifier string) (callsign.Record, error) {
	row := s.pool.QueryRow(ctx, `
		SELECT `+recordColumns+`
		FROM identifier_records
		WHERE identifier = $1`,
		identifier,
	)
	return scanRecord(row)
}

func scanRecord(row interface{ Scan(...any) error }) (callsign.Record, error) {
	var (
		rec       callsign.Record
		sessionID *uuid.UUID
		scores    []byte
		answers   []byte
		source    string
	)
	err := row.Scan(&rec.Identifier, &rec.GroupID, &rec.ParticipantID, &sessionID, &scores, &answers,
		&source, &rec.Attempts, &rec.AssignedAt)
	if err != nil {
		return callsign.Record{}, notFound(err)
	}
	if sessionID != nil {
		rec.SessionID = *sessionID
	}
	rec.Source = callsign.Source(source)
	if err := json.Unmarshal(scores, &rec.Profile.Scores); err != nil {
		return callsign.Record{}, fmt.Errorf("decode scores: %w", err)
	}
	if err := json.Unmarshal(answers, &rec.Profile.Answers); err != nil {
		return callsign.Record{}, fmt.Errorf("decode answers: %w", err)
	}
	return rec, nil
}

func nullableUUID(id uuid.UUID) *uuid.UUID {
	if id == uuid.Nil {
		return nil
	}
	return &id
}
