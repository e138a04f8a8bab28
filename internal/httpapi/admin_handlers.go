package httpapi

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"time"

	"talentgate.io/internal/access"
	"talentgate.io/internal/audit"
)

type createConversationRequest struct {
	CandidateID string `json:"candidate_id"`
	AdminID     string `json:"admin_id"`
	Opportunity string `json:"opportunity"`
}

type conversationResponse struct {
	ID             string    `json:"id"`
	CandidateID    string    `json:"candidate_id"`
	AdminID        string    `json:"admin_id"`
	Opportunity    string    `json:"opportunity,omitempty"`
	Status         string    `json:"status"`
	AccessToken    string    `json:"access_token"`
	TokenExpiresAt time.Time `json:"token_expires_at"`
	CreatedAt      time.Time `json:"created_at"`
}

type lockRequest struct {
	Reason string `json:"reason,omitempty"`
}

type unlockResponse struct {
	Unlocked bool `json:"unlocked"`
}

func (a *API) handleConversationsCollection(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodPost:
		a.createConversation(w, r)
	default:
		methodNotAllowed(w, r, http.MethodPost)
	}
}

func (a *API) handleConversationResource(w http.ResponseWriter, r *http.Request) {
	path := strings.TrimPrefix(r.URL.Path, "/v1/admin/conversations/")
	if path == "" || strings.Count(path, "/") != 1 {
		writeError(w, r, http.StatusNotFound, "resource not found")
		return
	}
	if r.Method != http.MethodPost {
		methodNotAllowed(w, r, http.MethodPost)
		return
	}

	id, action, _ := strings.Cut(path, "/")
	if id == "" {
		writeError(w, r, http.StatusNotFound, "conversation not found")
		return
	}
	switch action {
	case "lock":
		a.lockConversation(w, r, id)
	case "unlock":
		a.unlockConversation(w, r, id)
	case "resend":
		a.resendToken(w, r, id)
	default:
		writeError(w, r, http.StatusNotFound, "resource not found")
	}
}

func (a *API) createConversation(w http.ResponseWriter, r *http.Request) {
	var req createConversationRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, http.StatusBadRequest, err.Error())
		return
	}

	conv, err := a.svc.CreateConversation(r.Context(), req.CandidateID, req.AdminID, req.Opportunity)
	if err != nil {
		handleAccessError(w, r, err)
		return
	}

	a.audit(r.Context(), "conversation.create", conv.ID, map[string]any{
		"candidate_id": conv.CandidateID,
		"admin_id":     conv.AdminID,
	})

	w.Header().Set("Location", "/v1/admin/conversations/"+conv.ID)
	writeJSON(w, http.StatusCreated, toConversationResponse(conv))
}

func (a *API) lockConversation(w http.ResponseWriter, r *http.Request, id string) {
	var req lockRequest
	if err := decodeJSONOptional(w, r, &req); err != nil {
		writeError(w, r, http.StatusBadRequest, err.Error())
		return
	}

	if err := a.svc.Lock(r.Context(), id, req.Reason); err != nil {
		handleAccessError(w, r, err)
		return
	}

	a.audit(r.Context(), "conversation.lock", id, map[string]any{
		"reason": req.Reason,
	})
	writeJSON(w, http.StatusOK, map[string]any{"locked": true})
}

func (a *API) unlockConversation(w http.ResponseWriter, r *http.Request, id string) {
	var req lockRequest
	if err := decodeJSONOptional(w, r, &req); err != nil {
		writeError(w, r, http.StatusBadRequest, err.Error())
		return
	}

	unlocked, err := a.svc.Unlock(r.Context(), id)
	if err != nil {
		handleAccessError(w, r, err)
		return
	}

	a.audit(r.Context(), "conversation.unlock", id, map[string]any{
		"reason":   req.Reason,
		"unlocked": unlocked,
	})
	writeJSON(w, http.StatusOK, unlockResponse{Unlocked: unlocked})
}

func (a *API) resendToken(w http.ResponseWriter, r *http.Request, id string) {
	conv, err := a.svc.ResendToken(r.Context(), id)
	if err != nil {
		handleAccessError(w, r, err)
		return
	}

	a.audit(r.Context(), "conversation.token.resend", id, nil)
	writeJSON(w, http.StatusOK, toConversationResponse(conv))
}

func (a *API) handleSecuritySummary(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		methodNotAllowed(w, r, http.MethodGet)
		return
	}

	window := 24 * time.Hour
	if raw := strings.TrimSpace(r.URL.Query().Get("window")); raw != "" {
		d, err := time.ParseDuration(raw)
		if err != nil || d <= 0 {
			writeError(w, r, http.StatusBadRequest, "window must be a positive duration")
			return
		}
		window = d
	}

	items, err := a.svc.SecuritySummary(r.Context(), window)
	if err != nil {
		handleAccessError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"items": items,
		"as_of": time.Now().UTC(),
	})
}

func (a *API) audit(ctx context.Context, event, conversationID string, fields map[string]any) {
	if fields == nil {
		fields = map[string]any{}
	}
	fields["conversation_id"] = conversationID
	_ = audit.LogEvent(ctx, event, fields)
}

func toConversationResponse(conv *access.Conversation) conversationResponse {
	return conversationResponse{
		ID:             conv.ID,
		CandidateID:    conv.CandidateID,
		AdminID:        conv.AdminID,
		Opportunity:    conv.Opportunity,
		Status:         conv.Status,
		AccessToken:    conv.AccessToken,
		TokenExpiresAt: conv.TokenExpiresAt,
		CreatedAt:      conv.CreatedAt,
	}
}

func handleAccessError(w http.ResponseWriter, r *http.Request, err error) {
	switch {
	case errors.Is(err, access.ErrInvalidInput):
		writeError(w, r, http.StatusBadRequest, err.Error())
	case errors.Is(err, access.ErrNotFound):
		writeError(w, r, http.StatusNotFound, err.Error())
	default:
		writeError(w, r, http.StatusInternalServerError, "internal error")
	}
}
