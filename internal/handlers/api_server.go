package handlers

import (
	"encoding/json"
	"net/http"

	"github.com/sirupsen/logrus"

	"github.com/rokuhara/jinrou/internal/auth"
	"github.com/rokuhara/jinrou/internal/engine"
)

// APIServer exposes the engine verbs over HTTP for gateway processes that
// bridge a chat platform. Every mutating endpoint authenticates through the
// session cookie and answers with the engine Outcome as JSON.
type APIServer struct {
	Engine *engine.Engine
	Logger *logrus.Logger
}

func NewAPIServer(e *engine.Engine, logger *logrus.Logger) *APIServer {
	return &APIServer{Engine: e, Logger: logger}
}

// sessionRequest opens a session for a platform user. The gateway proves the
// platform identity out of band; this service only binds it to a token.
type sessionRequest struct {
	PlatformID string `json:"platformId"`
}

// SessionHandler issues the auth_token cookie for a platform user.
func (s *APIServer) SessionHandler(w http.ResponseWriter, r *http.Request) {
	var req sessionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.PlatformID == "" {
		http.Error(w, "invalid payload", http.StatusBadRequest)
		return
	}

	token, err := auth.CreateSessionToken(req.PlatformID)
	if err != nil {
		s.Logger.Warnf("failed to create session token: %v", err)
		http.Error(w, "failed to create session", http.StatusInternalServerError)
		return
	}

	http.SetCookie(w, &http.Cookie{
		Name:     "auth_token",
		Value:    token,
		HttpOnly: true,
		Path:     "/",
	})
	w.WriteHeader(http.StatusOK)
}

// caller resolves the authenticated platform user from the session cookie.
// A failed resolution has already written the HTTP error.
func (s *APIServer) caller(w http.ResponseWriter, r *http.Request) (string, bool) {
	token := extractCookieToken(r.Header.Get("Cookie"), "auth_token")
	if token == "" {
		http.Error(w, "missing session", http.StatusUnauthorized)
		return "", false
	}
	platformID, err := auth.VerifySessionToken(token)
	if err != nil {
		http.Error(w, "invalid session", http.StatusForbidden)
		return "", false
	}
	return platformID, true
}

// writeOutcome maps an engine Outcome onto the HTTP response. Rejections are
// 409 so the gateway can relay the reason verbatim without retrying.
func (s *APIServer) writeOutcome(w http.ResponseWriter, out engine.Outcome, err error) {
	if err != nil {
		s.Logger.Errorf("engine verb failed: %v", err)
		http.Error(w, "internal error", http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	if out.Rejected {
		w.WriteHeader(http.StatusConflict)
	}
	if encErr := json.NewEncoder(w).Encode(out); encErr != nil {
		s.Logger.Warnf("failed to encode outcome: %v", encErr)
	}
}

// RegisterHandler creates the caller's registration record.
func (s *APIServer) RegisterHandler(w http.ResponseWriter, r *http.Request) {
	platformID, ok := s.caller(w, r)
	if !ok {
		return
	}
	out, err := s.Engine.Register(r.Context(), platformID)
	s.writeOutcome(w, out, err)
}

type createRoomRequest struct {
	TopRef   string `json:"topRef"`
	Passcode string `json:"passcode"`
}

// CreateRoomHandler opens a room owned by the caller.
func (s *APIServer) CreateRoomHandler(w http.ResponseWriter, r *http.Request) {
	platformID, ok := s.caller(w, r)
	if !ok {
		return
	}
	var req createRoomRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid payload", http.StatusBadRequest)
		return
	}
	out, err := s.Engine.CreateRoom(r.Context(), platformID, req.TopRef, req.Passcode)
	s.writeOutcome(w, out, err)
}

type joinRoomRequest struct {
	RoomID   string `json:"roomId"`
	Passcode string `json:"passcode"`
}

// JoinRoomHandler adds the caller to a recruiting room.
func (s *APIServer) JoinRoomHandler(w http.ResponseWriter, r *http.Request) {
	platformID, ok := s.caller(w, r)
	if !ok {
		return
	}
	var req joinRoomRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.RoomID == "" {
		http.Error(w, "invalid payload", http.StatusBadRequest)
		return
	}
	out, err := s.Engine.JoinRoom(r.Context(), req.RoomID, platformID, req.Passcode)
	s.writeOutcome(w, out, err)
}

// LeaveRoomHandler removes the caller from their room.
func (s *APIServer) LeaveRoomHandler(w http.ResponseWriter, r *http.Request) {
	platformID, ok := s.caller(w, r)
	if !ok {
		return
	}
	out, err := s.Engine.LeaveRoom(r.Context(), platformID)
	s.writeOutcome(w, out, err)
}

// DeleteRoomHandler soft-deletes the caller's room.
func (s *APIServer) DeleteRoomHandler(w http.ResponseWriter, r *http.Request) {
	platformID, ok := s.caller(w, r)
	if !ok {
		return
	}
	out, err := s.Engine.DeleteRoom(r.Context(), platformID)
	s.writeOutcome(w, out, err)
}

// ConfigHandler applies partial room settings from the owner.
func (s *APIServer) ConfigHandler(w http.ResponseWriter, r *http.Request) {
	platformID, ok := s.caller(w, r)
	if !ok {
		return
	}
	var changes map[string]interface{}
	if err := json.NewDecoder(r.Body).Decode(&changes); err != nil {
		http.Error(w, "invalid payload", http.StatusBadRequest)
		return
	}
	out, err := s.Engine.UpdateConfig(r.Context(), platformID, changes)
	s.writeOutcome(w, out, err)
}

// StartHandler launches the round in the caller's room.
func (s *APIServer) StartHandler(w http.ResponseWriter, r *http.Request) {
	platformID, ok := s.caller(w, r)
	if !ok {
		return
	}
	out, err := s.Engine.StartGame(r.Context(), platformID)
	s.writeOutcome(w, out, err)
}

type targetRequest struct {
	TargetID string `json:"targetId"`
}

// VoteHandler records a day vote from the caller.
func (s *APIServer) VoteHandler(w http.ResponseWriter, r *http.Request) {
	platformID, ok := s.caller(w, r)
	if !ok {
		return
	}
	var req targetRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.TargetID == "" {
		http.Error(w, "invalid payload", http.StatusBadRequest)
		return
	}
	out, err := s.Engine.CastVote(r.Context(), platformID, req.TargetID)
	s.writeOutcome(w, out, err)
}

// NightHandler records a night-only ability use from the caller.
func (s *APIServer) NightHandler(w http.ResponseWriter, r *http.Request) {
	platformID, ok := s.caller(w, r)
	if !ok {
		return
	}
	var req targetRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.TargetID == "" {
		http.Error(w, "invalid payload", http.StatusBadRequest)
		return
	}
	out, err := s.Engine.CastNightAction(r.Context(), platformID, req.TargetID)
	s.writeOutcome(w, out, err)
}

// SkillHandler records a role ability use during the voting or night windows.
func (s *APIServer) SkillHandler(w http.ResponseWriter, r *http.Request) {
	platformID, ok := s.caller(w, r)
	if !ok {
		return
	}
	var req targetRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.TargetID == "" {
		http.Error(w, "invalid payload", http.StatusBadRequest)
		return
	}
	out, err := s.Engine.UseSkill(r.Context(), platformID, req.TargetID)
	s.writeOutcome(w, out, err)
}

// RoleHandler tells the caller their secretly assigned role.
func (s *APIServer) RoleHandler(w http.ResponseWriter, r *http.Request) {
	platformID, ok := s.caller(w, r)
	if !ok {
		return
	}
	out, err := s.Engine.QueryOwnRole(r.Context(), platformID)
	s.writeOutcome(w, out, err)
}

// ChatPolicyHandler reports whether the caller may currently chat; the
// gateway consults it before relaying (or deleting) platform messages.
func (s *APIServer) ChatPolicyHandler(w http.ResponseWriter, r *http.Request) {
	platformID, ok := s.caller(w, r)
	if !ok {
		return
	}
	allowed, reason, err := s.Engine.ChatPolicy(r.Context(), platformID)
	if err != nil {
		s.Logger.Errorf("chat policy check failed: %v", err)
		http.Error(w, "internal error", http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]interface{}{
		"allowed": allowed,
		"reason":  reason,
	})
}
