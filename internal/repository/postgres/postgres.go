package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"checkin-sync/internal/logger"
	"checkin-sync/internal/repository"

	"github.com/lib/pq"
)

// uniqueViolation is the SQLSTATE postgres reports for unique constraint failures.
const uniqueViolation = "23505"

const schema = `
CREATE TABLE IF NOT EXISTS members (
	id             BIGSERIAL PRIMARY KEY,
	display_key    TEXT NOT NULL DEFAULT '',
	name           TEXT NOT NULL,
	organization   TEXT NOT NULL DEFAULT '',
	former_role    TEXT NOT NULL DEFAULT '',
	join_year      TEXT NOT NULL DEFAULT '',
	department     TEXT NOT NULL DEFAULT '',
	lottery_number INTEGER UNIQUE,
	state          TEXT NOT NULL DEFAULT 'NOT_CHECKED_IN',
	checkin_time   TIMESTAMPTZ,
	version        BIGINT NOT NULL DEFAULT 1
);
CREATE INDEX IF NOT EXISTS members_display_key_idx ON members (LOWER(display_key));
CREATE TABLE IF NOT EXISTS staff_users (
	id            SERIAL PRIMARY KEY,
	username      TEXT NOT NULL UNIQUE,
	password_hash TEXT NOT NULL,
	display_key   TEXT NOT NULL DEFAULT '',
	created_on    DATE NOT NULL DEFAULT CURRENT_DATE
);`

type Store struct {
	db *sql.DB
	repository.MemberRepository
	repository.UserRepository
}

func NewStore(db *sql.DB) *Store {
	return &Store{
		db:               db,
		MemberRepository: NewMemberRepository(db),
		UserRepository:   NewUserRepository(db),
	}
}

// EnsureSchema creates the tables the member service needs if they are missing.
func (s *Store) EnsureSchema(ctx context.Context) error {
	logger.DatabaseCall("ensure_schema", "CREATE TABLE IF NOT EXISTS members, staff_users")
	_, err := s.db.ExecContext(ctx, schema)
	logger.DatabaseResult("ensure_schema", 0, err)
	if err != nil {
		return fmt.Errorf("failed to ensure schema: %w", err)
	}
	return nil
}

// translateError maps driver errors onto the repository sentinels.
func translateError(err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, sql.ErrNoRows) {
		return fmt.Errorf("%w: %v", repository.ErrNotFound, err)
	}
	var pqErr *pq.Error
	if errors.As(err, &pqErr) && string(pqErr.Code) == uniqueViolation {
		return fmt.Errorf("%w: %s", repository.ErrDuplicate, pqErr.Constraint)
	}
	return err
}
