package server

import (
	"context"
	"net"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

type contextKey int

const (
	ctxIdentity contextKey = iota
	ctxTraceID
)

// AuthMethod names how a request identity was established, in precedence
// order.
type AuthMethod string

const (
	AuthBearer  AuthMethod = "bearer"   // verified session token
	AuthDIDAuth AuthMethod = "did-auth" // challenge/response on this request
	AuthHeader  AuthMethod = "header"   // X-Agent-DID, weakly attributed
)

// Identity is the per-request principal.
type Identity struct {
	DID    string
	Scope  string
	Method AuthMethod
}

// identityFrom returns the request identity, if any.
func identityFrom(ctx context.Context) (*Identity, bool) {
	id, ok := ctx.Value(ctxIdentity).(*Identity)
	return id, ok
}

func traceIDFrom(ctx context.Context) string {
	s, _ := ctx.Value(ctxTraceID).(string)
	return s
}

// recoverMiddleware turns panics into opaque 500s; the detail stays in
// the server log.
func (s *Server) recoverMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		defer func() {
			if rec := recover(); rec != nil {
				s.log.Error("handler panic",
					zap.Any("panic", rec),
					zap.String("path", r.URL.Path))
				s.problem(w, r, KindInternalError, "internal error", nil)
			}
		}()
		next.ServeHTTP(w, r)
	})
}

// traceMiddleware assigns or propagates X-Trace-Id and applies the
// request deadline.
func (s *Server) traceMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		trace := r.Header.Get(HeaderTraceID)
		if trace == "" {
			trace = uuid.NewString()
		}
		w.Header().Set(HeaderTraceID, trace)
		ctx, cancel := context.WithTimeout(r.Context(), s.cfg.RequestTimeout)
		defer cancel()
		ctx = context.WithValue(ctx, ctxTraceID, trace)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (sr *statusRecorder) WriteHeader(code int) {
	sr.status = code
	sr.ResponseWriter.WriteHeader(code)
}

func (s *Server) loggingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(rec, r)
		elapsed := time.Since(start)

		s.metrics.RequestsTotal.WithLabelValues(r.Method, routeTemplate(r), strconv.Itoa(rec.status)).Inc()
		s.metrics.RequestDuration.WithLabelValues(r.Method, routeTemplate(r)).Observe(elapsed.Seconds())

		if s.cfg.EnableLogging {
			s.log.Info("request",
				zap.String("method", r.Method),
				zap.String("path", r.URL.Path),
				zap.Int("status", rec.status),
				zap.Duration("duration", elapsed),
				zap.String("trace", traceIDFrom(r.Context())))
		}
	})
}

func (s *Server) corsMiddleware(next http.Handler) http.Handler {
	origins := strings.Join(s.cfg.CORSOrigins, ", ")
	if origins == "" {
		origins = "*"
	}
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", origins)
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, PUT, PATCH, DELETE, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers",
			"Content-Type, Authorization, X-Agent-DID, X-Payment-Proof, X-Payment-Invoice, X-Trace-Id")
		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusOK)
			return
		}
		next.ServeHTTP(w, r)
	})
}

func (s *Server) securityHeadersMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if s.cfg.EnableSecurityHeaders {
			w.Header().Set("X-Content-Type-Options", "nosniff")
			w.Header().Set("X-Frame-Options", "DENY")
			w.Header().Set("Referrer-Policy", "no-referrer")
		}
		next.ServeHTTP(w, r)
	})
}

// negotiateMiddleware rejects clients that cannot accept JSON-LD.
func (s *Server) negotiateMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		accept := r.Header.Get("Accept")
		if accept == "" || acceptsLD(accept) {
			next.ServeHTTP(w, r)
			return
		}
		s.problem(w, r, KindNotAcceptable, "acceptable representations: application/ld+json, application/json", nil)
	})
}

func acceptsLD(accept string) bool {
	for _, part := range strings.Split(accept, ",") {
		mediaType := strings.TrimSpace(strings.SplitN(part, ";", 2)[0])
		switch mediaType {
		case contentTypeLD, "application/json", "*/*", "application/*":
			return true
		}
	}
	return false
}

// rateLimitMiddleware keys the window on the authenticated DID when
// present, else the client IP, and emits the standard header triple.
func (s *Server) rateLimitMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		key := clientIP(r)
		if id, ok := identityFrom(r.Context()); ok {
			key = id.DID
		}
		allowed, remaining, reset := s.limiter.Allow(key)
		w.Header().Set("X-RateLimit-Limit", strconv.Itoa(s.cfg.RateLimitMax))
		w.Header().Set("X-RateLimit-Remaining", strconv.Itoa(remaining))
		w.Header().Set("X-RateLimit-Reset", strconv.FormatInt(reset.Unix(), 10))
		if !allowed {
			s.metrics.RateLimited.Inc()
			w.Header().Set("Retry-After", retryAfterSeconds(reset))
			s.problem(w, r, KindRateLimited, "rate limit exceeded", map[string]any{
				"retryAfter": retryAfterSeconds(reset),
			})
			return
		}
		next.ServeHTTP(w, r)
	})
}

// authMiddleware resolves the request identity in precedence order:
// Bearer session token, DID-Auth challenge response, then the weakly
// attributed X-Agent-DID header. Routes that require authentication
// check the resolved method themselves.
func (s *Server) authMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		header := r.Header.Get("Authorization")
		switch {
		case strings.HasPrefix(header, "Bearer "):
			principal, err := s.identity.VerifyToken(strings.TrimPrefix(header, "Bearer "))
			if err != nil {
				s.problem(w, r, KindAuthFailed, "session token rejected", nil)
				return
			}
			r = r.WithContext(context.WithValue(r.Context(), ctxIdentity,
				&Identity{DID: principal.DID, Scope: principal.Scope, Method: AuthBearer}))
		case strings.HasPrefix(header, "DID-Auth "):
			id, err := s.verifyDIDAuth(r, strings.TrimPrefix(header, "DID-Auth "))
			if err != nil {
				s.problem(w, r, KindAuthFailed, err.Error(), nil)
				return
			}
			r = r.WithContext(context.WithValue(r.Context(), ctxIdentity, id))
		default:
			if did := r.Header.Get(HeaderAgentDID); did != "" {
				r = r.WithContext(context.WithValue(r.Context(), ctxIdentity,
					&Identity{DID: did, Method: AuthHeader}))
			}
		}
		next.ServeHTTP(w, r)
	})
}

// verifyDIDAuth parses "did;sig=...;nonce=..." and verifies the
// challenge. The nonce is consumed, so each DID-Auth request needs a
// fresh challenge.
func (s *Server) verifyDIDAuth(r *http.Request, value string) (*Identity, error) {
	parts := strings.Split(value, ";")
	did := strings.TrimSpace(parts[0])
	var sig, nonce string
	for _, part := range parts[1:] {
		k, v, _ := strings.Cut(strings.TrimSpace(part), "=")
		switch k {
		case "sig":
			sig = v
		case "nonce":
			nonce = v
		}
	}
	if err := s.identity.VerifyChallenge(r.Context(), did, sig, nonce); err != nil {
		return nil, err
	}
	return &Identity{DID: did, Method: AuthDIDAuth}, nil
}

// requireIdentity returns the identity or writes a 401 with the
// challenge endpoint pointer. strong restricts to verified methods.
func (s *Server) requireIdentity(w http.ResponseWriter, r *http.Request, strong bool) (*Identity, bool) {
	id, ok := identityFrom(r.Context())
	if !ok || (strong && id.Method == AuthHeader) {
		s.problem(w, r, KindAuthRequired, "authentication required", nil)
		return nil, false
	}
	return id, true
}

func clientIP(r *http.Request) string {
	if fwd := r.Header.Get("X-Forwarded-For"); fwd != "" {
		return strings.TrimSpace(strings.Split(fwd, ",")[0])
	}
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}

func routeTemplate(r *http.Request) string {
	// mux.CurrentRoute is nil for unmatched requests.
	if route := muxCurrentRoute(r); route != "" {
		return route
	}
	return "unmatched"
}
