package postgres_test

import (
	"context"
	"testing"
	"time"

	"checkin-sync/internal/domain"
	"checkin-sync/internal/repository"
	"checkin-sync/internal/repository/postgres"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/lib/pq"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var memberRowColumns = []string{"id", "display_key", "name", "organization", "former_role", "join_year", "department", "lottery_number", "state", "checkin_time", "version"}

func TestMemberRepository_Create(t *testing.T) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("an error '%s' was not expected when opening a stub database connection", err)
	}
	defer db.Close()

	repo := postgres.NewMemberRepository(db)
	ctx := context.Background()

	t.Run("Success", func(t *testing.T) {
		m := &domain.Member{Name: "Alice", DisplayKey: "A-1", Department: "Physics"}

		mock.ExpectQuery("INSERT INTO members").
			WithArgs("A-1", "Alice", "", "", "", "Physics", nil, "NOT_CHECKED_IN", nil).
			WillReturnRows(sqlmock.NewRows([]string{"id", "version"}).AddRow(5, 1))

		err := repo.Create(ctx, m)
		assert.NoError(t, err)
		assert.Equal(t, int64(5), m.ID)
		assert.Equal(t, int64(1), m.Version)
		assert.Equal(t, domain.MemberStateNotCheckedIn, m.State)
	})

	t.Run("DuplicateLottery", func(t *testing.T) {
		m := &domain.Member{Name: "Bob", LotteryNumber: domain.Int32Ptr(3), State: domain.MemberStateCheckedIn}

		mock.ExpectQuery("INSERT INTO members").
			WithArgs("", "Bob", "", "", "", "", int32(3), "CHECKED_IN", nil).
			WillReturnError(&pq.Error{Code: "23505", Constraint: "members_lottery_number_key"})

		err := repo.Create(ctx, m)
		assert.ErrorIs(t, err, repository.ErrDuplicate)
	})

	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestMemberRepository_GetByID(t *testing.T) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("an error '%s' was not expected when opening a stub database connection", err)
	}
	defer db.Close()

	repo := postgres.NewMemberRepository(db)
	ctx := context.Background()
	checkedAt := time.Date(2026, 5, 4, 9, 30, 0, 0, time.UTC)

	t.Run("Success", func(t *testing.T) {
		rows := sqlmock.NewRows(memberRowColumns).
			AddRow(1, "A-1", "Alice", "Acme", "Engineer", "2019", "Physics", 12, "CHECKED_IN", checkedAt, 3)

		mock.ExpectQuery("SELECT (.+) FROM members WHERE id = \\$1").
			WithArgs(int64(1)).
			WillReturnRows(rows)

		m, err := repo.GetByID(ctx, 1)
		require.NoError(t, err)
		assert.Equal(t, "Alice", m.Name)
		assert.Equal(t, domain.MemberStateCheckedIn, m.State)
		require.NotNil(t, m.LotteryNumber)
		assert.Equal(t, int32(12), *m.LotteryNumber)
		require.NotNil(t, m.CheckinTime)
		assert.True(t, checkedAt.Equal(*m.CheckinTime))
		assert.Equal(t, int64(3), m.Version)
	})

	t.Run("NullableColumns", func(t *testing.T) {
		rows := sqlmock.NewRows(memberRowColumns).
			AddRow(2, "", "Bob", "", "", "", "", nil, "NOT_CHECKED_IN", nil, 1)

		mock.ExpectQuery("SELECT (.+) FROM members WHERE id = \\$1").
			WithArgs(int64(2)).
			WillReturnRows(rows)

		m, err := repo.GetByID(ctx, 2)
		require.NoError(t, err)
		assert.Nil(t, m.LotteryNumber)
		assert.Nil(t, m.CheckinTime)
	})

	t.Run("NotFound", func(t *testing.T) {
		mock.ExpectQuery("SELECT (.+) FROM members WHERE id = \\$1").
			WithArgs(int64(9)).
			WillReturnRows(sqlmock.NewRows(memberRowColumns))

		m, err := repo.GetByID(ctx, 9)
		assert.ErrorIs(t, err, repository.ErrNotFound)
		assert.Nil(t, m)
	})

	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestMemberRepository_List(t *testing.T) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("an error '%s' was not expected when opening a stub database connection", err)
	}
	defer db.Close()

	repo := postgres.NewMemberRepository(db)
	ctx := context.Background()

	t.Run("Success", func(t *testing.T) {
		rows := sqlmock.NewRows(memberRowColumns).
			AddRow(1, "A-1", "Alice", "", "", "", "", nil, "NOT_CHECKED_IN", nil, 1).
			AddRow(2, "B-2", "Bob", "", "", "", "", 4, "CHECKED_IN", time.Now(), 2)

		mock.ExpectQuery("SELECT (.+) FROM members ORDER BY id").WillReturnRows(rows)

		members, err := repo.List(ctx)
		require.NoError(t, err)
		require.Len(t, members, 2)
		assert.Equal(t, int64(1), members[0].ID)
		assert.Equal(t, "Bob", members[1].Name)
	})

	t.Run("Empty", func(t *testing.T) {
		mock.ExpectQuery("SELECT (.+) FROM members ORDER BY id").WillReturnRows(sqlmock.NewRows(memberRowColumns))

		members, err := repo.List(ctx)
		require.NoError(t, err)
		assert.NotNil(t, members)
		assert.Empty(t, members)
	})

	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestMemberRepository_Update(t *testing.T) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("an error '%s' was not expected when opening a stub database connection", err)
	}
	defer db.Close()

	repo := postgres.NewMemberRepository(db)
	ctx := context.Background()
	checkedAt := time.Date(2026, 5, 4, 9, 30, 0, 0, time.UTC)

	t.Run("Success", func(t *testing.T) {
		m := &domain.Member{ID: 1, Name: "Alice", DisplayKey: "A-1", LotteryNumber: domain.Int32Ptr(12),
			State: domain.MemberStateCheckedIn, CheckinTime: &checkedAt, Version: 1}

		mock.ExpectQuery("UPDATE members SET").
			WithArgs("A-1", "Alice", "", "", "", "", int32(12), "CHECKED_IN", checkedAt, int64(1)).
			WillReturnRows(sqlmock.NewRows([]string{"version"}).AddRow(2))

		require.NoError(t, repo.Update(ctx, m))
		assert.Equal(t, int64(2), m.Version)
	})

	t.Run("NotFound", func(t *testing.T) {
		m := &domain.Member{ID: 8, Name: "Ghost", State: domain.MemberStateNotCheckedIn}

		mock.ExpectQuery("UPDATE members SET").
			WithArgs("", "Ghost", "", "", "", "", nil, "NOT_CHECKED_IN", nil, int64(8)).
			WillReturnRows(sqlmock.NewRows([]string{"version"}))

		assert.ErrorIs(t, repo.Update(ctx, m), repository.ErrNotFound)
	})

	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestMemberRepository_Delete(t *testing.T) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("an error '%s' was not expected when opening a stub database connection", err)
	}
	defer db.Close()

	repo := postgres.NewMemberRepository(db)
	ctx := context.Background()

	mock.ExpectExec("DELETE FROM members WHERE id = \\$1").
		WithArgs(int64(1)).
		WillReturnResult(sqlmock.NewResult(0, 1))
	assert.NoError(t, repo.Delete(ctx, 1))

	mock.ExpectExec("DELETE FROM members WHERE id = \\$1").
		WithArgs(int64(2)).
		WillReturnResult(sqlmock.NewResult(0, 0))
	assert.ErrorIs(t, repo.Delete(ctx, 2), repository.ErrNotFound)

	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestUserRepository(t *testing.T) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("an error '%s' was not expected when opening a stub database connection", err)
	}
	defer db.Close()

	repo := postgres.NewUserRepository(db)
	ctx := context.Background()

	t.Run("Create", func(t *testing.T) {
		u := &domain.User{Username: "desk", PasswordHash: "hash", DisplayKey: "Front desk"}

		mock.ExpectQuery("INSERT INTO staff_users").
			WithArgs("desk", "hash", "Front desk", sqlmock.AnyArg()).
			WillReturnRows(sqlmock.NewRows([]string{"id"}).AddRow(3))

		require.NoError(t, repo.Create(ctx, u))
		assert.Equal(t, int32(3), u.ID)
		assert.NotEmpty(t, u.CreatedOn)
	})

	t.Run("CreateDuplicate", func(t *testing.T) {
		mock.ExpectQuery("INSERT INTO staff_users").
			WithArgs("desk", "hash", "", sqlmock.AnyArg()).
			WillReturnError(&pq.Error{Code: "23505", Constraint: "staff_users_username_key"})

		err := repo.Create(ctx, &domain.User{Username: "desk", PasswordHash: "hash"})
		assert.ErrorIs(t, err, repository.ErrDuplicate)
	})

	t.Run("GetByUsername", func(t *testing.T) {
		rows := sqlmock.NewRows([]string{"id", "username", "password_hash", "display_key", "created_on"}).
			AddRow(3, "desk", "hash", "Front desk", time.Date(2026, 5, 1, 0, 0, 0, 0, time.UTC))

		mock.ExpectQuery("SELECT (.+) FROM staff_users WHERE LOWER\\(username\\) = LOWER\\(\\$1\\)").
			WithArgs("DESK").
			WillReturnRows(rows)

		u, err := repo.GetByUsername(ctx, "DESK")
		require.NoError(t, err)
		assert.Equal(t, "desk", u.Username)
		assert.Equal(t, "2026-05-01", u.CreatedOn)
	})

	t.Run("GetByUsernameMissing", func(t *testing.T) {
		mock.ExpectQuery("SELECT (.+) FROM staff_users").
			WithArgs("ghost").
			WillReturnRows(sqlmock.NewRows([]string{"id", "username", "password_hash", "display_key", "created_on"}))

		_, err := repo.GetByUsername(ctx, "ghost")
		assert.ErrorIs(t, err, repository.ErrNotFound)
	})

	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestStore_EnsureSchema(t *testing.T) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("an error '%s' was not expected when opening a stub database connection", err)
	}
	defer db.Close()

	mock.ExpectExec("CREATE TABLE IF NOT EXISTS members").WillReturnResult(sqlmock.NewResult(0, 0))

	require.NoError(t, postgres.NewStore(db).EnsureSchema(context.Background()))
	assert.NoError(t, mock.ExpectationsWereMet())
}
