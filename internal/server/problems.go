package server

import (
	"encoding/json"
	"net/http"

	"github.com/google/uuid"

	"github.com/hyprcat/gateway/internal/linkeddata"
)

// Problem kinds. Every error body is a linked-data document carrying one
// of these fixed kinds.
const (
	KindInvalidRequest     = "InvalidRequest"
	KindAuthRequired       = "AuthenticationRequired"
	KindAuthFailed         = "AuthenticationFailed"
	KindPaymentRequired    = "PaymentRequired"
	KindAccessDenied       = "AccessDenied"
	KindNotFound           = "NotFound"
	KindMethodNotAllowed   = "MethodNotAllowed"
	KindNotAcceptable      = "NotAcceptable"
	KindConflict           = "Conflict"
	KindValidationError    = "ValidationError"
	KindRateLimited        = "RateLimited"
	KindInternalError      = "InternalError"
	KindFederationError    = "FederationError"
	KindServiceUnavailable = "ServiceUnavailable"
)

var problemStatus = map[string]int{
	KindInvalidRequest:     http.StatusBadRequest,
	KindAuthRequired:       http.StatusUnauthorized,
	KindAuthFailed:         http.StatusUnauthorized,
	KindPaymentRequired:    http.StatusPaymentRequired,
	KindAccessDenied:       http.StatusForbidden,
	KindNotFound:           http.StatusNotFound,
	KindMethodNotAllowed:   http.StatusMethodNotAllowed,
	KindNotAcceptable:      http.StatusNotAcceptable,
	KindConflict:           http.StatusConflict,
	KindValidationError:    http.StatusUnprocessableEntity,
	KindRateLimited:        http.StatusTooManyRequests,
	KindInternalError:      http.StatusInternalServerError,
	KindFederationError:    http.StatusBadGateway,
	KindServiceUnavailable: http.StatusServiceUnavailable,
}

// problem builds the JSON-LD error envelope. extra keys are merged into
// the document so callers can attach invoices, path lists, or the failed
// federation source.
func (s *Server) problem(w http.ResponseWriter, r *http.Request, kind, detail string, extra map[string]any) {
	status, ok := problemStatus[kind]
	if !ok {
		status = http.StatusInternalServerError
		kind = KindInternalError
	}
	body := map[string]any{
		"@context":   linkeddata.ContextURL,
		"@type":      "hyprcat:" + kind,
		"type":       kind,
		"id":         "urn:uuid:" + uuid.NewString(),
		"statusCode": status,
		"title":      http.StatusText(status),
		"detail":     detail,
		"instance":   r.URL.Path,
	}
	for k, v := range extra {
		body[k] = v
	}
	if kind == KindAuthRequired {
		body["hyprcat:challengeEndpoint"] = s.cfg.BaseURL + "/auth/challenge"
	}
	s.writeHeaders(w)
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(body)
}
