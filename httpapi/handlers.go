package httpapi

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"casebattle/domain/entities"
	"casebattle/domain/interfaces"
	"casebattle/infrastructure"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	log "github.com/sirupsen/logrus"
)

// Handlers serves the battle HTTP API
type Handlers struct {
	users     interfaces.UserService
	battles   interfaces.BattleService
	roster    interfaces.RosterService
	lifecycle interfaces.LifecycleService
	reveals   interfaces.RevealCoordinator
	metrics   *infrastructure.Metrics
	validate  *validator.Validate
}

// NewHandlers creates the battle HTTP handlers
func NewHandlers(
	users interfaces.UserService,
	battles interfaces.BattleService,
	roster interfaces.RosterService,
	lifecycle interfaces.LifecycleService,
	reveals interfaces.RevealCoordinator,
	metrics *infrastructure.Metrics,
) *Handlers {
	return &Handlers{
		users:     users,
		battles:   battles,
		roster:    roster,
		lifecycle: lifecycle,
		reveals:   reveals,
		metrics:   metrics,
		validate:  validator.New(),
	}
}

type boxRequest struct {
	BoxID    int64  `json:"box_id" validate:"required"`
	BoxName  string `json:"box_name" validate:"required"`
	BoxPrice int64  `json:"box_price" validate:"min=0"`
	Quantity int    `json:"quantity" validate:"min=1"`
}

type createBattleRequest struct {
	CreatorID  int64        `json:"creator_id" validate:"required"`
	Mode       string       `json:"mode" validate:"required,oneof=duel group"`
	MaxPlayers int          `json:"max_players" validate:"min=2,max=8"`
	AllowsBots bool         `json:"allows_bots"`
	Boxes      []boxRequest `json:"boxes" validate:"required,min=1,dive"`
}

type joinRequest struct {
	UserID int64 `json:"user_id" validate:"required"`
}

type addBotRequest struct {
	RequesterID int64 `json:"requester_id" validate:"required"`
}

type revealCompleteRequest struct {
	ParticipantID int64 `json:"participant_id" validate:"required"`
}

type registerUserRequest struct {
	UserID   int64  `json:"user_id" validate:"required"`
	Username string `json:"username" validate:"required,max=64"`
}

// RegisterUser creates a player account, or returns the existing one
func (h *Handlers) RegisterUser(w http.ResponseWriter, r *http.Request) {
	var req registerUserRequest
	if !h.decode(w, r, &req) {
		return
	}

	user, err := h.users.GetOrCreateUser(r.Context(), req.UserID, req.Username)
	if err != nil {
		h.writeError(w, err)
		return
	}

	h.writeJSON(w, http.StatusOK, userResponse(user))
}

// GetUser returns a player account with its current balance
func (h *Handlers) GetUser(w http.ResponseWriter, r *http.Request) {
	userID, err := strconv.ParseInt(chi.URLParam(r, "userID"), 10, 64)
	if err != nil {
		h.writeError(w, entities.NewValidationError("invalid user ID"))
		return
	}

	user, err := h.users.GetUser(r.Context(), userID)
	if err != nil {
		h.writeError(w, err)
		return
	}

	h.writeJSON(w, http.StatusOK, userResponse(user))
}

// CreateBattle creates a battle and seats the creator
func (h *Handlers) CreateBattle(w http.ResponseWriter, r *http.Request) {
	var req createBattleRequest
	if !h.decode(w, r, &req) {
		return
	}

	params := interfaces.CreateBattleParams{
		CreatorID:  req.CreatorID,
		Mode:       entities.BattleMode(req.Mode),
		MaxPlayers: req.MaxPlayers,
		AllowsBots: req.AllowsBots,
	}
	for _, box := range req.Boxes {
		params.Boxes = append(params.Boxes, interfaces.BoxParams{
			BoxID:    box.BoxID,
			BoxName:  box.BoxName,
			BoxPrice: box.BoxPrice,
			Quantity: box.Quantity,
		})
	}

	detail, err := h.battles.CreateBattle(r.Context(), params)
	if err != nil {
		h.writeError(w, err)
		return
	}

	if h.metrics != nil {
		h.metrics.BattlesCreated.Inc()
	}
	h.reconcileAsync(detail.Battle.ID)

	h.writeJSON(w, http.StatusCreated, detailResponse(detail))
}

// GetBattle returns a snapshot of the battle including revealed outcomes
func (h *Handlers) GetBattle(w http.ResponseWriter, r *http.Request) {
	battleID, ok := h.battleID(w, r)
	if !ok {
		return
	}

	view, err := h.battles.GetBattleView(r.Context(), battleID)
	if err != nil {
		h.writeError(w, err)
		return
	}

	h.writeJSON(w, http.StatusOK, viewResponse(view))
}

// JoinBattle admits a user into a waiting battle
func (h *Handlers) JoinBattle(w http.ResponseWriter, r *http.Request) {
	battleID, ok := h.battleID(w, r)
	if !ok {
		return
	}

	var req joinRequest
	if !h.decode(w, r, &req) {
		return
	}

	participant, err := h.roster.Join(r.Context(), battleID, req.UserID)
	if err != nil {
		h.writeError(w, err)
		return
	}

	if h.metrics != nil {
		h.metrics.ParticipantJoins.Inc()
	}
	h.reconcileAsync(battleID)

	h.writeJSON(w, http.StatusCreated, participantResponse(participant))
}

// AddBot inserts a single bot on behalf of the creator
func (h *Handlers) AddBot(w http.ResponseWriter, r *http.Request) {
	battleID, ok := h.battleID(w, r)
	if !ok {
		return
	}

	var req addBotRequest
	if !h.decode(w, r, &req) {
		return
	}

	participant, err := h.roster.AddBot(r.Context(), battleID, req.RequesterID)
	if err != nil {
		h.writeError(w, err)
		return
	}

	if h.metrics != nil {
		h.metrics.BotsFilled.Inc()
	}
	h.reconcileAsync(battleID)

	h.writeJSON(w, http.StatusCreated, participantResponse(participant))
}

// ReportRevealComplete records that a lane finished animating a round
func (h *Handlers) ReportRevealComplete(w http.ResponseWriter, r *http.Request) {
	battleID, ok := h.battleID(w, r)
	if !ok {
		return
	}

	round, err := strconv.Atoi(chi.URLParam(r, "round"))
	if err != nil || round < 1 {
		h.writeError(w, entities.NewValidationError("round must be a positive integer"))
		return
	}

	var req revealCompleteRequest
	if !h.decode(w, r, &req) {
		return
	}

	if err := h.reveals.ReportRevealComplete(battleID, req.ParticipantID, round); err != nil {
		h.writeError(w, err)
		return
	}

	w.WriteHeader(http.StatusAccepted)
}

// battleID parses the battle ID path parameter
func (h *Handlers) battleID(w http.ResponseWriter, r *http.Request) (uuid.UUID, bool) {
	id, err := uuid.Parse(chi.URLParam(r, "battleID"))
	if err != nil {
		h.writeError(w, entities.NewValidationError("invalid battle ID"))
		return uuid.Nil, false
	}
	return id, true
}

// decode unmarshals and validates a JSON request body
func (h *Handlers) decode(w http.ResponseWriter, r *http.Request, dst any) bool {
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		h.writeError(w, entities.NewValidationError("invalid JSON body"))
		return false
	}
	if err := h.validate.Struct(dst); err != nil {
		h.writeError(w, entities.NewValidationError(err.Error()))
		return false
	}
	return true
}

// reconcileAsync nudges the state machine after a roster mutation. The request
// has already committed; reconciliation failures are retried by the event
// subscriber, so here they are only logged.
func (h *Handlers) reconcileAsync(battleID uuid.UUID) {
	go func() {
		if _, err := h.lifecycle.Reconcile(context.Background(), battleID); err != nil {
			log.WithFields(log.Fields{
				"battleID": battleID,
				"error":    err,
			}).Error("Reconcile after HTTP mutation failed")
		}
	}()
}

type errorResponse struct {
	Error string `json:"error"`
}

// writeError maps domain errors onto HTTP status codes
func (h *Handlers) writeError(w http.ResponseWriter, err error) {
	status := http.StatusInternalServerError

	switch {
	case errors.Is(err, entities.ErrBattleNotFound), errors.Is(err, entities.ErrUserNotFound):
		status = http.StatusNotFound
	case errors.Is(err, entities.ErrAlreadyJoined):
		status = http.StatusConflict
	case errors.Is(err, entities.ErrBattleNotJoinable),
		errors.Is(err, entities.ErrInsufficientBalance),
		errors.Is(err, entities.ErrBotsNotAllowed),
		errors.Is(err, entities.ErrNotCreator):
		status = http.StatusUnprocessableEntity
	case entities.IsRejected(err):
		status = http.StatusBadRequest
	case entities.IsTransient(err):
		status = http.StatusServiceUnavailable
	case entities.IsInvariantViolation(err):
		log.WithError(err).Error("Invariant violation surfaced to HTTP")
		status = http.StatusInternalServerError
	default:
		log.WithError(err).Error("Unhandled error in HTTP handler")
	}

	h.writeJSON(w, status, errorResponse{Error: err.Error()})
}

func (h *Handlers) writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(body); err != nil {
		log.WithError(err).Error("Failed to encode response body")
	}
}

// Response shapes

type battleJSON struct {
	ID             uuid.UUID  `json:"id"`
	CreatorID      int64      `json:"creator_id"`
	Mode           string     `json:"mode"`
	Status         string     `json:"status"`
	MaxPlayers     int        `json:"max_players"`
	EntryCost      int64      `json:"entry_cost"`
	TotalPrize     int64      `json:"total_prize"`
	AllowsBots     bool       `json:"allows_bots"`
	RevealedRounds int        `json:"revealed_rounds"`
	TotalRounds    int        `json:"total_rounds"`
	CreatedAt      time.Time  `json:"created_at"`
	StartedAt      *time.Time `json:"started_at,omitempty"`
	FinishedAt     *time.Time `json:"finished_at,omitempty"`
}

type boxJSON struct {
	BoxID    int64  `json:"box_id"`
	BoxName  string `json:"box_name"`
	BoxPrice int64  `json:"box_price"`
	Quantity int    `json:"quantity"`
	Position int    `json:"position"`
}

type participantJSON struct {
	ID         int64  `json:"id"`
	UserID     *int64 `json:"user_id,omitempty"`
	IsBot      bool   `json:"is_bot"`
	Name       string `json:"name"`
	Position   int    `json:"position"`
	TotalValue int64  `json:"total_value"`
	IsWinner   bool   `json:"is_winner"`
}

type outcomeJSON struct {
	ParticipantID int64  `json:"participant_id"`
	BoxID         int64  `json:"box_id"`
	Round         int    `json:"round"`
	ItemID        int64  `json:"item_id"`
	ItemName      string `json:"item_name"`
	ItemValue     int64  `json:"item_value"`
	Proof         string `json:"proof"`
	Seed          string `json:"seed,omitempty"`
}

type settlementJSON struct {
	WinnerParticipantID int64     `json:"winner_participant_id"`
	WinningValue        int64     `json:"winning_value"`
	PotValue            int64     `json:"pot_value"`
	ItemCount           int       `json:"item_count"`
	TieBroken           bool      `json:"tie_broken"`
	CreatedAt           time.Time `json:"created_at"`
}

type detailJSON struct {
	Battle       battleJSON        `json:"battle"`
	Boxes        []boxJSON         `json:"boxes"`
	Participants []participantJSON `json:"participants"`
}

type viewJSON struct {
	Battle           battleJSON        `json:"battle"`
	Boxes            []boxJSON         `json:"boxes"`
	Participants     []participantJSON `json:"participants"`
	RevealedOutcomes []outcomeJSON     `json:"revealed_outcomes"`
	Settlement       *settlementJSON   `json:"settlement,omitempty"`
}

type userJSON struct {
	ID       int64  `json:"id"`
	Username string `json:"username"`
	Balance  int64  `json:"balance"`
}

func userResponse(u *entities.User) userJSON {
	return userJSON{ID: u.ID, Username: u.Username, Balance: u.Balance}
}

func battleResponse(b *entities.Battle, totalRounds int) battleJSON {
	return battleJSON{
		ID:             b.ID,
		CreatorID:      b.CreatorID,
		Mode:           string(b.Mode),
		Status:         string(b.Status),
		MaxPlayers:     b.MaxPlayers,
		EntryCost:      b.EntryCost,
		TotalPrize:     b.TotalPrize,
		AllowsBots:     b.AllowsBots,
		RevealedRounds: b.RevealedRounds,
		TotalRounds:    totalRounds,
		CreatedAt:      b.CreatedAt,
		StartedAt:      b.StartedAt,
		FinishedAt:     b.FinishedAt,
	}
}

func boxesResponse(boxes []*entities.BattleBox) []boxJSON {
	out := make([]boxJSON, 0, len(boxes))
	for _, b := range boxes {
		out = append(out, boxJSON{
			BoxID:    b.BoxID,
			BoxName:  b.BoxName,
			BoxPrice: b.BoxPrice,
			Quantity: b.Quantity,
			Position: b.Position,
		})
	}
	return out
}

func participantResponse(p *entities.Participant) participantJSON {
	return participantJSON{
		ID:         p.ID,
		UserID:     p.UserID,
		IsBot:      p.IsBot,
		Name:       p.DisplayName(),
		Position:   p.Position,
		TotalValue: p.TotalValue,
		IsWinner:   p.IsWinner,
	}
}

func participantsResponse(participants []*entities.Participant) []participantJSON {
	out := make([]participantJSON, 0, len(participants))
	for _, p := range participants {
		out = append(out, participantResponse(p))
	}
	return out
}

func detailResponse(d *entities.BattleDetail) detailJSON {
	return detailJSON{
		Battle:       battleResponse(d.Battle, d.TotalRounds()),
		Boxes:        boxesResponse(d.Boxes),
		Participants: participantsResponse(d.Participants),
	}
}

func viewResponse(v *entities.BattleView) viewJSON {
	resp := viewJSON{
		Battle:           battleResponse(v.Battle, entities.TotalRounds(v.Boxes)),
		Boxes:            boxesResponse(v.Boxes),
		Participants:     participantsResponse(v.Participants),
		RevealedOutcomes: make([]outcomeJSON, 0, len(v.RevealedOutcomes)),
	}

	finished := v.Battle.IsFinished()
	for _, o := range v.RevealedOutcomes {
		oj := outcomeJSON{
			ParticipantID: o.ParticipantID,
			BoxID:         o.BoxID,
			Round:         o.Round,
			ItemID:        o.ItemID,
			ItemName:      o.ItemName,
			ItemValue:     o.ItemValue,
			Proof:         o.Proof,
		}
		// The server seed stays hidden until the battle ends so future
		// rounds cannot be predicted from a snapshot.
		if finished {
			oj.Seed = o.Seed
		}
		resp.RevealedOutcomes = append(resp.RevealedOutcomes, oj)
	}

	if v.Settlement != nil {
		resp.Settlement = &settlementJSON{
			WinnerParticipantID: v.Settlement.WinnerParticipantID,
			WinningValue:        v.Settlement.WinningValue,
			PotValue:            v.Settlement.PotValue,
			ItemCount:           v.Settlement.ItemCount,
			TieBroken:           v.Settlement.TieBroken,
			CreatedAt:           v.Settlement.CreatedAt,
		}
	}

	return resp
}
