package http

import (
	"encoding/json"
	"net/http"
	"strconv"

	"checkin-sync/internal/domain"
	"checkin-sync/internal/logger"
	"checkin-sync/internal/service"

	"github.com/gorilla/mux"
)

// MemberHandler serves the member REST endpoints
type MemberHandler struct {
	memberSvc service.MemberService
}

// NewMemberHandler creates a new member handler
func NewMemberHandler(memberSvc service.MemberService) *MemberHandler {
	return &MemberHandler{memberSvc: memberSvc}
}

type CheckinRequest struct {
	DisplayKey    string `json:"display_key"`
	LotteryNumber int32  `json:"lottery_number"`
}

type StateRequest struct {
	State string `json:"state"`
}

func (h *MemberHandler) ListMembers(w http.ResponseWriter, r *http.Request) {
	members, err := h.memberSvc.ListMembers(r.Context())
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, members)
}

func (h *MemberHandler) CreateMember(w http.ResponseWriter, r *http.Request) {
	var m domain.Member
	if err := json.NewDecoder(r.Body).Decode(&m); err != nil {
		writeStatus(w, http.StatusBadRequest, "validation", "invalid member payload")
		return
	}
	m.ID = 0
	created, err := h.memberSvc.CreateMember(r.Context(), &m)
	if err != nil {
		writeError(w, r, err)
		return
	}
	audit(r, "Member created", "id", created.ID)
	writeJSON(w, http.StatusCreated, created)
}

func (h *MemberHandler) UpdateMember(w http.ResponseWriter, r *http.Request) {
	id, ok := memberID(w, r)
	if !ok {
		return
	}
	var m domain.Member
	if err := json.NewDecoder(r.Body).Decode(&m); err != nil {
		writeStatus(w, http.StatusBadRequest, "validation", "invalid member payload")
		return
	}
	updated, err := h.memberSvc.UpdateMember(r.Context(), id, &m)
	if err != nil {
		writeError(w, r, err)
		return
	}
	audit(r, "Member updated", "id", id)
	writeJSON(w, http.StatusOK, updated)
}

func (h *MemberHandler) DeleteMember(w http.ResponseWriter, r *http.Request) {
	id, ok := memberID(w, r)
	if !ok {
		return
	}
	if err := h.memberSvc.DeleteMember(r.Context(), id); err != nil {
		writeError(w, r, err)
		return
	}
	audit(r, "Member deleted", "id", id)
	w.WriteHeader(http.StatusNoContent)
}

func (h *MemberHandler) Checkin(w http.ResponseWriter, r *http.Request) {
	var req CheckinRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeStatus(w, http.StatusBadRequest, "validation", "invalid check-in payload")
		return
	}
	m, err := h.memberSvc.Checkin(r.Context(), req.DisplayKey, req.LotteryNumber)
	if err != nil {
		writeError(w, r, err)
		return
	}
	audit(r, "Member checked in", "id", m.ID, "lottery_number", req.LotteryNumber)
	writeJSON(w, http.StatusOK, m)
}

func (h *MemberHandler) SetState(w http.ResponseWriter, r *http.Request) {
	id, ok := memberID(w, r)
	if !ok {
		return
	}
	var req StateRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeStatus(w, http.StatusBadRequest, "validation", "invalid state payload")
		return
	}
	state, valid := domain.ParseMemberState(req.State)
	if !valid {
		writeStatus(w, http.StatusBadRequest, "validation", "unknown member state "+strconv.Quote(req.State))
		return
	}
	m, err := h.memberSvc.SetState(r.Context(), id, state)
	if err != nil {
		writeError(w, r, err)
		return
	}
	audit(r, "Member state set", "id", id, "state", state)
	writeJSON(w, http.StatusOK, m)
}

func memberID(w http.ResponseWriter, r *http.Request) (int64, bool) {
	id, err := strconv.ParseInt(mux.Vars(r)["id"], 10, 64)
	if err != nil || id <= 0 {
		writeStatus(w, http.StatusBadRequest, "validation", "invalid member id")
		return 0, false
	}
	return id, true
}

// audit logs a staff action, attributed to the token holder when there is one.
func audit(r *http.Request, msg string, args ...any) {
	staff := "anonymous"
	if claims, ok := GetStaffFromContext(r.Context()); ok {
		staff = claims.Username
	}
	args = append(args, "staff", staff, "request_id", GetRequestIDFromContext(r.Context()))
	logger.InfoContext(r.Context(), msg, args...)
}
