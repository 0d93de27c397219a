package transport

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"sync"
	"time"

	"checkin-sync/internal/domain"
	"checkin-sync/internal/logger"
)

const serviceName = "member-service"

// Client issues the imperative REST calls of the member service. It never
// touches the roster; Transport does that on success.
type Client struct {
	baseURL    string
	httpClient *http.Client

	mu    sync.RWMutex
	token string
}

// NewClient creates a client for baseURL (scheme, host and optional path
// prefix, without /api/v1).
func NewClient(baseURL string, timeout time.Duration) *Client {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &Client{
		baseURL:    baseURL,
		httpClient: &http.Client{Timeout: timeout},
	}
}

// SetToken sets the bearer token attached to every request.
func (c *Client) SetToken(token string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.token = token
}

func (c *Client) bearer() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.token
}

type checkinRequest struct {
	DisplayKey    string `json:"display_key"`
	LotteryNumber int32  `json:"lottery_number"`
}

type stateRequest struct {
	State domain.MemberState `json:"state"`
}

type loginRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

type loginResponse struct {
	AccessToken string       `json:"access_token"`
	User        *domain.User `json:"user"`
}

type registerRequest struct {
	Username   string `json:"username"`
	Password   string `json:"password"`
	DisplayKey string `json:"display_key"`
}

type errorEnvelope struct {
	Error string `json:"error"`
	Kind  string `json:"kind"`
}

func (c *Client) List(ctx context.Context) ([]domain.Member, error) {
	var members []domain.Member
	if err := c.do(ctx, http.MethodGet, "/members", nil, &members); err != nil {
		return nil, err
	}
	return members, nil
}

func (c *Client) Create(ctx context.Context, m domain.Member) (*domain.Member, error) {
	var created domain.Member
	if err := c.do(ctx, http.MethodPost, "/members", m, &created); err != nil {
		return nil, err
	}
	return &created, nil
}

func (c *Client) Update(ctx context.Context, m domain.Member) (*domain.Member, error) {
	if m.ID <= 0 {
		return nil, domain.NewFailure(domain.ErrValidation, "member id is required")
	}
	var updated domain.Member
	if err := c.do(ctx, http.MethodPut, "/members/"+strconv.FormatInt(m.ID, 10), m, &updated); err != nil {
		return nil, err
	}
	return &updated, nil
}

func (c *Client) Delete(ctx context.Context, id int64) error {
	if id <= 0 {
		return domain.NewFailure(domain.ErrValidation, "member id is required")
	}
	return c.do(ctx, http.MethodDelete, "/members/"+strconv.FormatInt(id, 10), nil, nil)
}

func (c *Client) Checkin(ctx context.Context, displayKey string, lotteryNumber int32) (*domain.Member, error) {
	if displayKey == "" {
		return nil, domain.NewFailure(domain.ErrValidation, "display key is required")
	}
	if lotteryNumber <= 0 {
		return nil, domain.NewFailure(domain.ErrValidation, "lottery number must be positive")
	}
	var m domain.Member
	if err := c.do(ctx, http.MethodPost, "/checkin", checkinRequest{DisplayKey: displayKey, LotteryNumber: lotteryNumber}, &m); err != nil {
		return nil, err
	}
	return &m, nil
}

func (c *Client) SetState(ctx context.Context, id int64, state domain.MemberState) (*domain.Member, error) {
	if !state.Valid() {
		return nil, domain.NewFailure(domain.ErrValidation, "unknown member state %q", state)
	}
	var m domain.Member
	if err := c.do(ctx, http.MethodPut, "/members/"+strconv.FormatInt(id, 10)+"/state", stateRequest{State: state}, &m); err != nil {
		return nil, err
	}
	return &m, nil
}

// Login authenticates against the stub login and keeps the token for
// subsequent requests.
func (c *Client) Login(ctx context.Context, username, password string) (*domain.User, error) {
	var resp loginResponse
	if err := c.do(ctx, http.MethodPost, "/login", loginRequest{Username: username, Password: password}, &resp); err != nil {
		return nil, err
	}
	c.SetToken(resp.AccessToken)
	return resp.User, nil
}

func (c *Client) Register(ctx context.Context, username, password, displayKey string) (*domain.User, error) {
	var user domain.User
	if err := c.do(ctx, http.MethodPost, "/register", registerRequest{Username: username, Password: password, DisplayKey: displayKey}, &user); err != nil {
		return nil, err
	}
	return &user, nil
}

func (c *Client) do(ctx context.Context, method, path string, body, out any) (err error) {
	operation := method + " " + path
	logger.ExternalServiceCall(serviceName, operation)
	defer func() { logger.ExternalServiceResult(serviceName, operation, err) }()

	var reader io.Reader
	if body != nil {
		payload, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("encode request: %w", err)
		}
		reader = bytes.NewReader(payload)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+"/api/v1"+path, reader)
	if err != nil {
		return domain.WrapFailure(domain.ErrTransport, err, "build request")
	}
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if token := c.bearer(); token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return domain.WrapFailure(domain.ErrTransport, err, "%s failed", operation)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return decodeFailure(resp)
	}
	if out == nil || resp.StatusCode == http.StatusNoContent {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return domain.WrapFailure(domain.ErrTransport, err, "malformed response to %s", operation)
	}
	return nil
}

// ErrUnauthorized is returned for 401 responses.
var ErrUnauthorized = errors.New("unauthorized")

func decodeFailure(resp *http.Response) error {
	var env errorEnvelope
	raw, _ := io.ReadAll(io.LimitReader(resp.Body, 64<<10))
	if err := json.Unmarshal(raw, &env); err != nil || env.Error == "" {
		env.Error = http.StatusText(resp.StatusCode)
	}

	var kind error
	switch {
	case resp.StatusCode == http.StatusBadRequest:
		kind = domain.ErrValidation
	case resp.StatusCode == http.StatusNotFound:
		kind = domain.ErrNotFound
	case resp.StatusCode == http.StatusConflict:
		kind = domain.ErrConflict
	case resp.StatusCode == http.StatusUnauthorized:
		return domain.WrapFailure(domain.ErrValidation, ErrUnauthorized, "%s", env.Error)
	case resp.StatusCode >= 500:
		kind = domain.ErrTransport
	default:
		kind = domain.KindFromName(env.Kind)
		if kind == nil {
			kind = domain.ErrTransport
		}
	}
	return &domain.Failure{Kind: kind, Message: env.Error}
}

// pollURL returns the long-poll URL for cursor after. A negative cursor
// asks for a snapshot.
func (c *Client) pollURL(after int64) string {
	if after < 0 {
		return c.baseURL + "/api/v1/events"
	}
	return c.baseURL + "/api/v1/events?after=" + url.QueryEscape(strconv.FormatInt(after, 10))
}

// socketURL returns the websocket URL derived from the base URL.
func (c *Client) socketURL() (string, error) {
	u, err := url.Parse(c.baseURL + "/api/v1/ws")
	if err != nil {
		return "", err
	}
	switch u.Scheme {
	case "https":
		u.Scheme = "wss"
	default:
		u.Scheme = "ws"
	}
	return u.String(), nil
}
