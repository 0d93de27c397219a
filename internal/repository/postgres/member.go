package postgres

import (
	"context"
	"database/sql"
	"time"

	"checkin-sync/internal/domain"
	"checkin-sync/internal/logger"
	"checkin-sync/internal/repository"
)

const memberColumns = `id, display_key, name, organization, former_role, join_year, department, lottery_number, state, checkin_time, version`

type memberRepository struct {
	db *sql.DB
}

func NewMemberRepository(db *sql.DB) repository.MemberRepository {
	return &memberRepository{db: db}
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanMember(row rowScanner) (*domain.Member, error) {
	m := &domain.Member{}
	var lottery sql.NullInt32
	var checkinTime sql.NullTime
	var state string
	err := row.Scan(&m.ID, &m.DisplayKey, &m.Name, &m.Organization, &m.FormerRole, &m.JoinYear, &m.Department,
		&lottery, &state, &checkinTime, &m.Version)
	if err != nil {
		return nil, err
	}
	m.State = domain.MemberState(state)
	if lottery.Valid {
		n := lottery.Int32
		m.LotteryNumber = &n
	}
	if checkinTime.Valid {
		t := checkinTime.Time.UTC()
		m.CheckinTime = &t
	}
	return m, nil
}

func nullableLottery(n *int32) any {
	if n == nil {
		return nil
	}
	return *n
}

func nullableTime(t *time.Time) any {
	if t == nil {
		return nil
	}
	return *t
}

func (r *memberRepository) Create(ctx context.Context, m *domain.Member) error {
	query := `INSERT INTO members (display_key, name, organization, former_role, join_year, department, lottery_number, state, checkin_time, version)
	          VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, 1) RETURNING id, version`
	if m.State == "" {
		m.State = domain.MemberStateNotCheckedIn
	}
	logger.DatabaseCall("members.create", "INSERT INTO members", "display_key", m.DisplayKey)
	err := r.db.QueryRowContext(ctx, query, m.DisplayKey, m.Name, m.Organization, m.FormerRole, m.JoinYear, m.Department,
		nullableLottery(m.LotteryNumber), string(m.State), nullableTime(m.CheckinTime)).Scan(&m.ID, &m.Version)
	err = translateError(err)
	logger.DatabaseResult("members.create", 1, err, "id", m.ID)
	return err
}

func (r *memberRepository) GetByID(ctx context.Context, id int64) (*domain.Member, error) {
	query := `SELECT ` + memberColumns + ` FROM members WHERE id = $1`
	m, err := scanMember(r.db.QueryRowContext(ctx, query, id))
	if err != nil {
		return nil, translateError(err)
	}
	return m, nil
}

func (r *memberRepository) GetByDisplayKey(ctx context.Context, key string) (*domain.Member, error) {
	query := `SELECT ` + memberColumns + ` FROM members WHERE LOWER(display_key) = LOWER($1) OR (display_key = '' AND LOWER(name) = LOWER($1)) ORDER BY id LIMIT 1`
	m, err := scanMember(r.db.QueryRowContext(ctx, query, key))
	if err != nil {
		return nil, translateError(err)
	}
	return m, nil
}

func (r *memberRepository) GetByLotteryNumber(ctx context.Context, lotteryNumber int32) (*domain.Member, error) {
	query := `SELECT ` + memberColumns + ` FROM members WHERE lottery_number = $1`
	m, err := scanMember(r.db.QueryRowContext(ctx, query, lotteryNumber))
	if err != nil {
		return nil, translateError(err)
	}
	return m, nil
}

func (r *memberRepository) List(ctx context.Context) ([]domain.Member, error) {
	query := `SELECT ` + memberColumns + ` FROM members ORDER BY id`
	logger.DatabaseCall("members.list", query)
	rows, err := r.db.QueryContext(ctx, query)
	if err != nil {
		logger.DatabaseResult("members.list", 0, err)
		return nil, err
	}
	defer rows.Close()

	members := []domain.Member{}
	for rows.Next() {
		m, err := scanMember(rows)
		if err != nil {
			return nil, err
		}
		members = append(members, *m)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	logger.DatabaseResult("members.list", int64(len(members)), nil)
	return members, nil
}

func (r *memberRepository) Update(ctx context.Context, m *domain.Member) error {
	query := `UPDATE members SET display_key=$1, name=$2, organization=$3, former_role=$4, join_year=$5, department=$6,
	          lottery_number=$7, state=$8, checkin_time=$9, version=version+1 WHERE id=$10 RETURNING version`
	logger.DatabaseCall("members.update", "UPDATE members", "id", m.ID)
	err := r.db.QueryRowContext(ctx, query, m.DisplayKey, m.Name, m.Organization, m.FormerRole, m.JoinYear, m.Department,
		nullableLottery(m.LotteryNumber), string(m.State), nullableTime(m.CheckinTime), m.ID).Scan(&m.Version)
	err = translateError(err)
	logger.DatabaseResult("members.update", 1, err, "id", m.ID)
	return err
}

func (r *memberRepository) Delete(ctx context.Context, id int64) error {
	logger.DatabaseCall("members.delete", "DELETE FROM members", "id", id)
	res, err := r.db.ExecContext(ctx, `DELETE FROM members WHERE id = $1`, id)
	if err != nil {
		logger.DatabaseResult("members.delete", 0, err)
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	logger.DatabaseResult("members.delete", n, nil, "id", id)
	if n == 0 {
		return repository.ErrNotFound
	}
	return nil
}
