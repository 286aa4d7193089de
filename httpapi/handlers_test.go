package httpapi

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"casebattle/domain/entities"
	"casebattle/domain/interfaces"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// Stub services returning canned results, so the tests pin the HTTP layer
// alone: routing, request validation, and the error-to-status mapping.

type stubUsers struct {
	user *entities.User
	err  error
}

func (s *stubUsers) GetOrCreateUser(ctx context.Context, id int64, username string) (*entities.User, error) {
	if s.err != nil {
		return nil, s.err
	}
	return s.user, nil
}

func (s *stubUsers) GetUser(ctx context.Context, id int64) (*entities.User, error) {
	if s.err != nil {
		return nil, s.err
	}
	return s.user, nil
}

type stubBattles struct {
	detail *entities.BattleDetail
	view   *entities.BattleView
	err    error
}

func (s *stubBattles) CreateBattle(ctx context.Context, params interfaces.CreateBattleParams) (*entities.BattleDetail, error) {
	if s.err != nil {
		return nil, s.err
	}
	return s.detail, nil
}

func (s *stubBattles) GetBattleView(ctx context.Context, battleID uuid.UUID) (*entities.BattleView, error) {
	if s.err != nil {
		return nil, s.err
	}
	return s.view, nil
}

type stubRoster struct {
	participant *entities.Participant
	err         error
}

func (s *stubRoster) Join(ctx context.Context, battleID uuid.UUID, userID int64) (*entities.Participant, error) {
	if s.err != nil {
		return nil, s.err
	}
	return s.participant, nil
}

func (s *stubRoster) AddBot(ctx context.Context, battleID uuid.UUID, requesterID int64) (*entities.Participant, error) {
	if s.err != nil {
		return nil, s.err
	}
	return s.participant, nil
}

func (s *stubRoster) AutoFillBots(ctx context.Context, battleID uuid.UUID) error {
	return s.err
}

type stubLifecycle struct{}

func (s *stubLifecycle) Reconcile(ctx context.Context, battleID uuid.UUID) (interfaces.Action, error) {
	return interfaces.ActionNone, nil
}

type stubReveals struct {
	err error
}

func (s *stubReveals) EnsureSession(ctx context.Context, battleID uuid.UUID) error {
	return s.err
}

func (s *stubReveals) ReportRevealComplete(battleID uuid.UUID, participantID int64, round int) error {
	return s.err
}

func (s *stubReveals) Shutdown() {}

type handlerFixture struct {
	users   *stubUsers
	battles *stubBattles
	roster  *stubRoster
	reveals *stubReveals
	server  http.Handler
}

func newHandlerFixture() *handlerFixture {
	f := &handlerFixture{
		users:   &stubUsers{},
		battles: &stubBattles{},
		roster:  &stubRoster{},
		reveals: &stubReveals{},
	}
	h := NewHandlers(f.users, f.battles, f.roster, &stubLifecycle{}, f.reveals, nil)
	f.server = SetupRoutes(h, nil)
	return f
}

func (f *handlerFixture) do(t *testing.T, method, path, body string) *httptest.ResponseRecorder {
	t.Helper()
	var req *http.Request
	if body == "" {
		req = httptest.NewRequest(method, path, nil)
	} else {
		req = httptest.NewRequest(method, path, strings.NewReader(body))
		req.Header.Set("Content-Type", "application/json")
	}
	rec := httptest.NewRecorder()
	f.server.ServeHTTP(rec, req)
	return rec
}

func TestErrorStatusMapping(t *testing.T) {
	battleID := uuid.New()
	joinBody := `{"user_id":42}`
	botBody := `{"requester_id":42}`

	cases := []struct {
		name   string
		err    error
		method string
		path   string
		body   string
		want   int
	}{
		{"battle not found", entities.ErrBattleNotFound, http.MethodPost, "/battles/" + battleID.String() + "/join", joinBody, http.StatusNotFound},
		{"already joined", entities.ErrAlreadyJoined, http.MethodPost, "/battles/" + battleID.String() + "/join", joinBody, http.StatusConflict},
		{"not joinable", entities.ErrBattleNotJoinable, http.MethodPost, "/battles/" + battleID.String() + "/join", joinBody, http.StatusUnprocessableEntity},
		{"insufficient balance", entities.ErrInsufficientBalance, http.MethodPost, "/battles/" + battleID.String() + "/join", joinBody, http.StatusUnprocessableEntity},
		{"bots not allowed", entities.ErrBotsNotAllowed, http.MethodPost, "/battles/" + battleID.String() + "/bots", botBody, http.StatusUnprocessableEntity},
		{"not creator", entities.ErrNotCreator, http.MethodPost, "/battles/" + battleID.String() + "/bots", botBody, http.StatusUnprocessableEntity},
		{"validation", entities.NewValidationError("bad input"), http.MethodPost, "/battles/" + battleID.String() + "/join", joinBody, http.StatusBadRequest},
		{"transient", entities.NewTransientError("join", errors.New("db down")), http.MethodPost, "/battles/" + battleID.String() + "/join", joinBody, http.StatusServiceUnavailable},
		{"invariant violation", entities.NewInvariantViolation(battleID, "guard bypassed"), http.MethodPost, "/battles/" + battleID.String() + "/join", joinBody, http.StatusInternalServerError},
		{"unknown error", errors.New("boom"), http.MethodPost, "/battles/" + battleID.String() + "/join", joinBody, http.StatusInternalServerError},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			f := newHandlerFixture()
			f.roster.err = tc.err

			rec := f.do(t, tc.method, tc.path, tc.body)

			assert.Equal(t, tc.want, rec.Code)
			var resp errorResponse
			require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
			assert.Equal(t, tc.err.Error(), resp.Error)
		})
	}
}

func TestGetUser_StatusMapping(t *testing.T) {
	f := newHandlerFixture()
	f.users.err = entities.ErrUserNotFound

	rec := f.do(t, http.MethodGet, "/users/42", "")

	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestGetBattle_NotFound(t *testing.T) {
	f := newHandlerFixture()
	f.battles.err = entities.ErrBattleNotFound

	rec := f.do(t, http.MethodGet, "/battles/"+uuid.NewString(), "")

	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestJoinBattle_InvalidBattleID(t *testing.T) {
	f := newHandlerFixture()

	rec := f.do(t, http.MethodPost, "/battles/not-a-uuid/join", `{"user_id":42}`)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestJoinBattle_MalformedBody(t *testing.T) {
	f := newHandlerFixture()

	rec := f.do(t, http.MethodPost, "/battles/"+uuid.NewString()+"/join", `{"user_id":`)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestJoinBattle_MissingUserID(t *testing.T) {
	f := newHandlerFixture()

	rec := f.do(t, http.MethodPost, "/battles/"+uuid.NewString()+"/join", `{}`)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestJoinBattle_Created(t *testing.T) {
	f := newHandlerFixture()
	userID := int64(42)
	f.roster.participant = &entities.Participant{
		ID:       7,
		UserID:   &userID,
		Position: 2,
	}

	rec := f.do(t, http.MethodPost, "/battles/"+uuid.NewString()+"/join", `{"user_id":42}`)

	require.Equal(t, http.StatusCreated, rec.Code)
	var resp participantJSON
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, int64(7), resp.ID)
	assert.Equal(t, "player-42", resp.Name)
	assert.Equal(t, 2, resp.Position)
	assert.False(t, resp.IsBot)
}

func TestRegisterUser_ReturnsAccount(t *testing.T) {
	f := newHandlerFixture()
	f.users.user = &entities.User{ID: 42, Username: "casey", Balance: 10000}

	rec := f.do(t, http.MethodPost, "/users", `{"user_id":42,"username":"casey"}`)

	require.Equal(t, http.StatusOK, rec.Code)
	var resp userJSON
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, int64(42), resp.ID)
	assert.Equal(t, "casey", resp.Username)
	assert.Equal(t, int64(10000), resp.Balance)
}

func TestReportRevealComplete_Accepted(t *testing.T) {
	f := newHandlerFixture()

	rec := f.do(t, http.MethodPost, "/battles/"+uuid.NewString()+"/reveals/2/complete", `{"participant_id":7}`)

	assert.Equal(t, http.StatusAccepted, rec.Code)
}

func TestReportRevealComplete_RejectsBadRound(t *testing.T) {
	f := newHandlerFixture()

	rec := f.do(t, http.MethodPost, "/battles/"+uuid.NewString()+"/reveals/0/complete", `{"participant_id":7}`)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestHealthz(t *testing.T) {
	f := newHandlerFixture()

	rec := f.do(t, http.MethodGet, "/healthz", "")

	assert.Equal(t, http.StatusOK, rec.Code)
}
