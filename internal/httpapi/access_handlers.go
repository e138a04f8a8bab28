package httpapi

import (
	"net/http"

	"talentgate.io/internal/access"
)

type validateRequest struct {
	Token       string              `json:"token"`
	Fingerprint *access.Fingerprint `json:"fingerprint,omitempty"`
}

func (a *API) handleValidate(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		methodNotAllowed(w, r, http.MethodPost)
		return
	}

	var req validateRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, http.StatusBadRequest, err.Error())
		return
	}

	result, err := a.svc.Validate(r.Context(), access.ValidationRequest{
		Token:       req.Token,
		IPAddress:   ClientIP(r),
		UserAgent:   r.UserAgent(),
		Fingerprint: req.Fingerprint,
	})
	if err != nil {
		writeError(w, r, http.StatusInternalServerError, "internal error")
		return
	}

	writeJSON(w, statusForResult(result), result)
}

// statusForResult maps denial codes onto HTTP status codes. Callers must
// not retry on 429/403; retrying reproduces the abuse pattern being
// guarded against.
func statusForResult(result access.ValidationResult) int {
	if result.Success {
		return http.StatusOK
	}
	switch result.Code {
	case access.CodeRateLimited, access.CodeDailyLimitExceeded:
		return http.StatusTooManyRequests
	case access.CodeTokenExpired:
		return http.StatusGone
	case access.CodeConversationLocked, access.CodeSuspiciousActivity:
		return http.StatusForbidden
	default:
		return http.StatusNotFound
	}
}
