package transport_test

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"checkin-sync/internal/domain"
	"checkin-sync/internal/roster"
	"checkin-sync/internal/transport"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func replyError(status int, kind, msg string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(status)
		_ = json.NewEncoder(w).Encode(map[string]string{"error": msg, "kind": kind})
	}
}

func TestClient_FailureMapping(t *testing.T) {
	tests := []struct {
		name   string
		status int
		kind   string
		want   error
	}{
		{"BadRequest", http.StatusBadRequest, "validation", domain.ErrValidation},
		{"NotFound", http.StatusNotFound, "not_found", domain.ErrNotFound},
		{"Conflict", http.StatusConflict, "conflict", domain.ErrConflict},
		{"Unauthorized", http.StatusUnauthorized, "unauthorized", transport.ErrUnauthorized},
		{"ServerError", http.StatusInternalServerError, "", domain.ErrTransport},
		{"UnknownStatusKnownKind", http.StatusUnprocessableEntity, "validation", domain.ErrValidation},
		{"UnknownStatusUnknownKind", http.StatusTeapot, "", domain.ErrTransport},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv := httptest.NewServer(replyError(tt.status, tt.kind, "nope"))
			defer srv.Close()

			_, err := transport.NewClient(srv.URL, time.Second).List(context.Background())
			require.Error(t, err)
			assert.ErrorIs(t, err, tt.want)
			assert.Equal(t, "nope", domain.Message(err))
		})
	}
}

func TestClient_UnauthorizedIsValidation(t *testing.T) {
	srv := httptest.NewServer(replyError(http.StatusUnauthorized, "unauthorized", "token expired"))
	defer srv.Close()

	_, err := transport.NewClient(srv.URL, time.Second).SetState(context.Background(), 1, domain.MemberStateCheckedIn)
	assert.ErrorIs(t, err, domain.ErrValidation)
	assert.ErrorIs(t, err, transport.ErrUnauthorized)
}

func TestClient_UnreachableIsTransport(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	url := srv.URL
	srv.Close()

	_, err := transport.NewClient(url, time.Second).List(context.Background())
	assert.ErrorIs(t, err, domain.ErrTransport)
}

func TestClient_LocalValidation(t *testing.T) {
	hits := make(chan struct{}, 8)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) { hits <- struct{}{} }))
	defer srv.Close()
	c := transport.NewClient(srv.URL, time.Second)
	ctx := context.Background()

	_, err := c.Checkin(ctx, "", 3)
	assert.ErrorIs(t, err, domain.ErrValidation)
	_, err = c.Checkin(ctx, "A-1", 0)
	assert.ErrorIs(t, err, domain.ErrValidation)
	_, err = c.SetState(ctx, 1, "ASLEEP")
	assert.ErrorIs(t, err, domain.ErrValidation)
	_, err = c.Update(ctx, domain.Member{Name: "No id"})
	assert.ErrorIs(t, err, domain.ErrValidation)
	assert.ErrorIs(t, c.Delete(ctx, 0), domain.ErrValidation)
	assert.Empty(t, hits)
}

func TestClient_LoginStoresToken(t *testing.T) {
	seen := make(chan string, 1)
	mux := http.NewServeMux()
	mux.HandleFunc("POST /api/v1/login", func(w http.ResponseWriter, r *http.Request) {
		var body map[string]string
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		assert.Equal(t, "desk1", body["username"])
		_ = json.NewEncoder(w).Encode(map[string]any{
			"access_token": "tok-123",
			"user":         map[string]any{"id": 4, "username": "desk1"},
		})
	})
	mux.HandleFunc("GET /api/v1/members", func(w http.ResponseWriter, r *http.Request) {
		seen <- r.Header.Get("Authorization")
		_, _ = w.Write([]byte(`[]`))
	})
	srv := httptest.NewServer(mux)
	defer srv.Close()

	c := transport.NewClient(srv.URL, time.Second)
	user, err := c.Login(context.Background(), "desk1", "pass")
	require.NoError(t, err)
	assert.Equal(t, int32(4), user.ID)

	members, err := c.List(context.Background())
	require.NoError(t, err)
	assert.Empty(t, members)
	assert.Equal(t, "Bearer tok-123", <-seen)
}

// A rejected delete must leave the local roster untouched.
func TestTransport_DeleteConflictKeepsRoster(t *testing.T) {
	srv := httptest.NewServer(replyError(http.StatusConflict, "conflict", "member is being interviewed"))
	defer srv.Close()

	r := roster.New()
	alice := domain.Member{ID: 1, Name: "Alice", State: domain.MemberStateInterviewInProgress}
	r.ApplySnapshot([]domain.Member{alice})

	tr := transport.New(transport.NewClient(srv.URL, time.Second), r, nil)
	err := tr.Delete(context.Background(), 1)
	assert.ErrorIs(t, err, domain.ErrConflict)
	assert.Equal(t, []domain.Member{alice}, r.Read())
}

func TestTransport_SuccessfulCallsFeedRoster(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("POST /api/v1/checkin", func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewEncoder(w).Encode(domain.Member{
			ID: 1, Name: "Alice", DisplayKey: "A-1",
			State: domain.MemberStateCheckedIn, LotteryNumber: domain.Int32Ptr(12),
		})
	})
	mux.HandleFunc("DELETE /api/v1/members/2", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	})
	srv := httptest.NewServer(mux)
	defer srv.Close()

	r := roster.New()
	r.ApplySnapshot([]domain.Member{
		{ID: 1, Name: "Alice", DisplayKey: "A-1", State: domain.MemberStateNotCheckedIn},
		{ID: 2, Name: "Bob", State: domain.MemberStateNotCheckedIn},
	})
	tr := transport.New(transport.NewClient(srv.URL, time.Second), r, nil)
	ctx := context.Background()

	_, err := tr.Checkin(ctx, "A-1", 12)
	require.NoError(t, err)
	got, ok := r.Get(1)
	require.True(t, ok)
	assert.Equal(t, domain.MemberStateCheckedIn, got.State)
	assert.Equal(t, int32(12), *got.LotteryNumber)

	require.NoError(t, tr.Delete(ctx, 2))
	assert.Equal(t, 1, r.Len())
}
