package notify

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

var ErrJobNotFound = errors.New("notification job not found")

// PGStore persists notification jobs. Rows are inserted by the order store in
// the same transaction as the transition that triggered them (outbox); this
// side only reads and advances them.
type PGStore struct{ DB *pgxpool.Pool }

const jobColumns = `id, order_id, seq, event_kind, channel, recipient, payload,
	attempts, last_attempt_at, state, created_at`

func (s *PGStore) Get(ctx context.Context, id string) (Job, error) {
	row := s.DB.QueryRow(ctx, `SELECT `+jobColumns+` FROM notification_jobs WHERE id=$1`, id)
	j, err := scanJob(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return Job{}, fmt.Errorf("%w: %s", ErrJobNotFound, id)
	}
	return j, err
}

func (s *PGStore) RecordAttempt(ctx context.Context, id string, attempts int, at time.Time) error {
	_, err := s.DB.Exec(ctx, `
		UPDATE notification_jobs SET attempts=$2, last_attempt_at=$3 WHERE id=$1`,
		id, attempts, at)
	return err
}

func (s *PGStore) MarkTerminal(ctx context.Context, id string, state State) error {
	_, err := s.DB.Exec(ctx, `
		UPDATE notification_jobs SET state=$2 WHERE id=$1 AND state=$3`,
		id, state, StatePending)
	return err
}

func (s *PGStore) ListActive(ctx context.Context) ([]Job, error) {
	rows, err := s.DB.Query(ctx, `
		SELECT `+jobColumns+` FROM notification_jobs WHERE state=$1 ORDER BY seq`,
		StatePending)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Job
	for rows.Next() {
		j, err := scanJob(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, j)
	}
	return out, rows.Err()
}

func scanJob(row pgx.Row) (Job, error) {
	var j Job
	var payload []byte
	var lastAttempt sql.NullTime
	err := row.Scan(&j.ID, &j.OrderID, &j.Seq, &j.Kind, &j.Channel, &j.Recipient,
		&payload, &j.Attempts, &lastAttempt, &j.State, &j.CreatedAt)
	if err != nil {
		return Job{}, err
	}
	if lastAttempt.Valid {
		j.LastAttempt = lastAttempt.Time
	}
	if err := json.Unmarshal(payload, &j.Payload); err != nil {
		return Job{}, fmt.Errorf("decode job payload: %w", err)
	}
	return j, nil
}
