package postgres

import (
	"context"
	"database/sql"
	"time"

	"checkin-sync/internal/domain"
	"checkin-sync/internal/repository"
)

type userRepository struct {
	db *sql.DB
}

func NewUserRepository(db *sql.DB) repository.UserRepository {
	return &userRepository{db: db}
}

func (r *userRepository) Create(ctx context.Context, u *domain.User) error {
	query := `INSERT INTO staff_users (username, password_hash, display_key, created_on)
	          VALUES ($1, $2, $3, $4) RETURNING id`
	u.CreatedOn = time.Now().Format("2006-01-02")
	err := r.db.QueryRowContext(ctx, query, u.Username, u.PasswordHash, u.DisplayKey, u.CreatedOn).Scan(&u.ID)
	return translateError(err)
}

func (r *userRepository) GetByUsername(ctx context.Context, username string) (*domain.User, error) {
	u := &domain.User{}
	query := `SELECT id, username, password_hash, display_key, created_on FROM staff_users WHERE LOWER(username) = LOWER($1)`
	var createdOn time.Time
	err := r.db.QueryRowContext(ctx, query, username).Scan(&u.ID, &u.Username, &u.PasswordHash, &u.DisplayKey, &createdOn)
	if err != nil {
		return nil, translateError(err)
	}
	u.CreatedOn = createdOn.Format("2006-01-02")
	return u, nil
}
