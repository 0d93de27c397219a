package transport_test

import (
	"context"
	"net/http/httptest"
	"testing"
	"time"

	httpapi "checkin-sync/internal/api/http"
	"checkin-sync/internal/domain"
	"checkin-sync/internal/hub"
	"checkin-sync/internal/repository/memory"
	"checkin-sync/internal/roster"
	"checkin-sync/internal/security"
	"checkin-sync/internal/service"
	"checkin-sync/internal/transport"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const (
	e2eSecret   = "e2e-secret-0123456789abcdef0123456789"
	pollTimeout = 200 * time.Millisecond
	waitFor     = 5 * time.Second
	tick        = 10 * time.Millisecond
)

type memberServer struct {
	*httptest.Server
	members service.MemberService
	auth    service.AuthService
}

func newMemberServer(t *testing.T) *memberServer {
	t.Helper()
	store := memory.NewStore()
	h := hub.New(64, prometheus.NewRegistry())
	members := service.NewMemberService(store.MemberRepository, h)
	tm := security.NewTokenManager(e2eSecret, time.Hour)
	auth := service.NewAuthService(store.UserRepository, tm)

	router := httpapi.NewRouter(httpapi.Handlers{
		Members:    httpapi.NewMemberHandler(members),
		Auth:       httpapi.NewAuthHandler(auth),
		Push:       httpapi.NewPushHandler(members, h, pollTimeout),
		Middleware: httpapi.NewAuthMiddleware(tm, true),
	})
	srv := &memberServer{Server: httptest.NewServer(router), members: members, auth: auth}
	t.Cleanup(srv.Close)
	return srv
}

type station struct {
	roster    *roster.Store
	transport *transport.Transport
}

func newStation(t *testing.T, srv *memberServer, polling bool) *station {
	t.Helper()
	client := transport.NewClient(srv.URL, 2*time.Second)
	_, err := client.Login(context.Background(), "desk", "secret")
	require.NoError(t, err)

	var dialer transport.Dialer = transport.NewWebsocketDialer(client)
	if polling {
		dialer = transport.NewPollingDialer(client, pollTimeout)
	}
	r := roster.New()
	tr := transport.New(client, r, []transport.Dialer{dialer})
	tr.Start(context.Background())
	t.Cleanup(tr.Close)
	return &station{roster: r, transport: tr}
}

func (s *station) has(id int64, check func(domain.Member) bool) func() bool {
	return func() bool {
		m, ok := s.roster.Get(id)
		return ok && check(m)
	}
}

func TestStationsConverge(t *testing.T) {
	srv := newMemberServer(t)
	ctx := context.Background()
	_, err := srv.auth.Register(ctx, "desk", "secret", "Front desk")
	require.NoError(t, err)

	alice, err := srv.members.CreateMember(ctx, &domain.Member{Name: "Alice", DisplayKey: "A-1"})
	require.NoError(t, err)

	ws := newStation(t, srv, false)
	poll := newStation(t, srv, true)
	present := func(domain.Member) bool { return true }

	require.Eventually(t, ws.has(alice.ID, present), waitFor, tick)
	require.Eventually(t, poll.has(alice.ID, present), waitFor, tick)
	assert.Equal(t, "websocket", ws.transport.ActiveTransport())
	assert.Equal(t, "polling", poll.transport.ActiveTransport())

	// check in at the websocket station
	checked, err := ws.transport.Checkin(ctx, "A-1", 12)
	require.NoError(t, err)
	got, _ := ws.roster.Get(alice.ID)
	assert.Equal(t, domain.MemberStateCheckedIn, got.State)
	require.Eventually(t, poll.has(alice.ID, func(m domain.Member) bool {
		return m.State == domain.MemberStateCheckedIn && m.LotteryNumber != nil && *m.LotteryNumber == 12
	}), waitFor, tick)

	// add at the polling station
	bob, err := poll.transport.Create(ctx, domain.Member{Name: "Bob", DisplayKey: "B-2"})
	require.NoError(t, err)
	require.Eventually(t, ws.has(bob.ID, present), waitFor, tick)

	// delete at the websocket station
	require.NoError(t, ws.transport.Delete(ctx, bob.ID))
	require.Eventually(t, func() bool { return poll.roster.Len() == 1 }, waitFor, tick)

	// a move into the interview stage blocks deletion everywhere
	_, err = poll.transport.SetState(ctx, checked.ID, domain.MemberStateInterviewInProgress)
	require.NoError(t, err)
	require.Eventually(t, ws.has(alice.ID, func(m domain.Member) bool {
		return m.State == domain.MemberStateInterviewInProgress
	}), waitFor, tick)
	err = ws.transport.Delete(ctx, alice.ID)
	assert.ErrorIs(t, err, domain.ErrConflict)
	assert.Equal(t, 1, ws.roster.Len())

	assert.Equal(t, ws.roster.Read(), poll.roster.Read())
}

func TestProtectedCallNeedsLogin(t *testing.T) {
	srv := newMemberServer(t)
	client := transport.NewClient(srv.URL, 2*time.Second)

	_, err := client.Create(context.Background(), domain.Member{Name: "Carol"})
	assert.ErrorIs(t, err, domain.ErrValidation)
	assert.ErrorIs(t, err, transport.ErrUnauthorized)

	members, err := client.List(context.Background())
	require.NoError(t, err)
	assert.Empty(t, members)
}

func TestWrongPasswordIsRejected(t *testing.T) {
	srv := newMemberServer(t)
	_, err := srv.auth.Register(context.Background(), "desk", "secret", "")
	require.NoError(t, err)

	_, err = transport.NewClient(srv.URL, 2*time.Second).Login(context.Background(), "desk", "wrong")
	assert.ErrorIs(t, err, transport.ErrUnauthorized)
}
