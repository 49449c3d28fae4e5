package main

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strings"
	"time"

	"go.uber.org/zap"

	"famwatch/auth"
	"famwatch/check"
	"famwatch/disagreement"
	"famwatch/logging"
	"famwatch/response"
)

type ctxKey string

const (
	ctxKeyUserID   ctxKey = "user_id"
	ctxKeyFamilyID ctxKey = "family_id"
	ctxKeyRole     ctxKey = "role"
)

type authService interface {
	Register(ctx context.Context, req auth.RegisterRequest) (*auth.Member, error)
	AddFamilyMember(ctx context.Context, inviter auth.Identity, req auth.RegisterRequest) (*auth.Member, error)
	GetMemberByID(ctx context.Context, memberID string) (*auth.Member, error)
	Login(ctx context.Context, req auth.LoginRequest) (auth.LoginResult, error)
	VerifyToken(token string) (auth.Identity, error)
	FamilyMembers(ctx context.Context, familyID string) (children, parents []string, err error)
}

type checkService interface {
	IsEligible(childID string, monitoringStart, now time.Time) bool
	EnsureAnnualCheck(ctx context.Context, params check.CreateParams) (*check.Check, bool, error)
	GetCheck(ctx context.Context, id string) (*check.Check, error)
	ListForChild(ctx context.Context, childID string) ([]check.Check, error)
	MarkInProgress(ctx context.Context, id string) (*check.Check, error)
	MarkCompleted(ctx context.Context, id string) (*check.Check, error)
}

type responseService interface {
	SubmitResponse(ctx context.Context, params response.SubmitParams) (response.Response, error)
	VisibleResponses(ctx context.Context, checkID, viewerID string) ([]response.Response, error)
	GetResponseSummary(ctx context.Context, checkID string) (response.Summary, error)
	HasAllPartiesResponded(ctx context.Context, checkID string, expectedChildIDs, expectedParentIDs []string) (bool, error)
}

type disagreementService interface {
	SurfaceForCheck(ctx context.Context, checkID string) (*disagreement.Record, error)
	GetDisagreement(ctx context.Context, id string) (*disagreement.Record, error)
	GetUnresolvedDisagreements(ctx context.Context, familyID string) ([]disagreement.Record, error)
	MarkDisagreementResolved(ctx context.Context, id, resolution string) (disagreement.Record, error)
}

// Server exposes the review workflow over JSON/HTTP.
type Server struct {
	authService         authService
	checkService        checkService
	responseService     responseService
	disagreementService disagreementService
	logger              *zap.Logger
	now                 func() time.Time
}

func NewServer(a authService, c checkService, r responseService, d disagreementService, logger *zap.Logger) *Server {
	return &Server{
		authService:         a,
		checkService:        c,
		responseService:     r,
		disagreementService: d,
		logger:              logging.OrNop(logger),
		now:                 time.Now,
	}
}

func (s *Server) routes() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/healthz", s.handleHealth)
	mux.HandleFunc("/api/auth/register", s.handleRegister)
	mux.HandleFunc("/api/auth/login", s.handleLogin)
	mux.HandleFunc("/api/me", s.requireAuth(s.handleMe))
	mux.HandleFunc("/api/family/members", s.requireAuth(s.handleAddFamilyMember))
	mux.HandleFunc("/api/children/", s.requireAuth(s.handleChildDetail))
	mux.HandleFunc("/api/checks", s.requireAuth(s.handleChecks))
	mux.HandleFunc("/api/checks/", s.requireAuth(s.handleCheckDetail))
	mux.HandleFunc("/api/disagreements", s.requireAuth(s.handleDisagreements))
	mux.HandleFunc("/api/disagreements/", s.requireAuth(s.handleDisagreementDetail))
	return s.logRequests(mux)
}

func (s *Server) logRequests(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(rec, r)
		s.logger.Debug("http request",
			zap.String("method", r.Method),
			zap.String("path", r.URL.Path),
			zap.Int("status", rec.status),
			zap.Duration("duration", time.Since(start)),
		)
	})
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(code int) {
	r.status = code
	r.ResponseWriter.WriteHeader(code)
}

// requireAuth resolves the bearer token into the request context. Handlers
// read the caller's identity from there and never from the request body.
func (s *Server) requireAuth(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		header := r.Header.Get("Authorization")
		token, ok := strings.CutPrefix(header, "Bearer ")
		if !ok || strings.TrimSpace(token) == "" {
			writeError(w, http.StatusUnauthorized, "missing bearer token")
			return
		}

		id, err := s.authService.VerifyToken(strings.TrimSpace(token))
		if err != nil {
			writeError(w, http.StatusUnauthorized, "invalid token")
			return
		}

		ctx := context.WithValue(r.Context(), ctxKeyUserID, id.UserID)
		ctx = context.WithValue(ctx, ctxKeyFamilyID, id.FamilyID)
		ctx = context.WithValue(ctx, ctxKeyRole, id.Role)
		next(w, r.WithContext(ctx))
	}
}

func identityFromContext(ctx context.Context) (auth.Identity, bool) {
	userID, _ := ctx.Value(ctxKeyUserID).(string)
	familyID, _ := ctx.Value(ctxKeyFamilyID).(string)
	role, _ := ctx.Value(ctxKeyRole).(auth.Role)
	if userID == "" || familyID == "" || role == "" {
		return auth.Identity{}, false
	}
	return auth.Identity{UserID: userID, FamilyID: familyID, Role: role}, true
}

func (s *Server) internalError(w http.ResponseWriter, r *http.Request, err error) {
	s.logger.Error("request failed",
		zap.String("method", r.Method),
		zap.String("path", r.URL.Path),
		zap.Error(err),
	)
	writeError(w, http.StatusInternalServerError, "internal error")
}

func decodeJSON(r *http.Request, dst any) error {
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil {
		return err
	}
	if dec.More() {
		return errors.New("unexpected trailing data")
	}
	return nil
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]string{"error": message})
}

// splitPath returns the non-empty segments of path after prefix.
func splitPath(path, prefix string) []string {
	rest := strings.Trim(strings.TrimPrefix(path, prefix), "/")
	if rest == "" {
		return nil
	}
	return strings.Split(rest, "/")
}

func formatTime(t time.Time) string {
	return t.UTC().Format(time.RFC3339)
}

func formatTimePtr(t *time.Time) *string {
	if t == nil {
		return nil
	}
	s := formatTime(*t)
	return &s
}

// parseDate accepts RFC 3339 timestamps and plain YYYY-MM-DD dates.
func parseDate(v string) (time.Time, error) {
	if t, err := time.Parse(time.RFC3339, v); err == nil {
		return t, nil
	}
	return time.Parse(time.DateOnly, v)
}
