package chi

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/oapi-codegen/runtime"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/keymeterhq/keymeter/internal/domain"
	domcred "github.com/keymeterhq/keymeter/internal/domain/credential"
	domreport "github.com/keymeterhq/keymeter/internal/domain/report"
	authuc "github.com/keymeterhq/keymeter/internal/usecase/auth"
	healthuc "github.com/keymeterhq/keymeter/internal/usecase/health"
	keysuc "github.com/keymeterhq/keymeter/internal/usecase/keys"
	reportuc "github.com/keymeterhq/keymeter/internal/usecase/report"
)

const maxBatchSize = 100

// Error codes returned in JSON error bodies.
const (
	codeBadRequest        = "bad_request"
	codeNotFound          = "not_found"
	codeAlreadyExists     = "already_exists"
	codeInvalidCredential = "invalid_credential"
	codeUnauthorized      = "unauthorized"
	codeLoginDisabled     = "login_disabled"
	codeInternalError     = "internal_error"
)

// ErrorResponse is the JSON body of every non-2xx response.
type ErrorResponse struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// errorHandler tries to handle a domain error. Returns true if handled.
type errorHandler func(w http.ResponseWriter, err error, msg string) bool

// Server exposes the report, key management, auth and health services
// over HTTP.
type Server struct {
	reports       *reportuc.Service
	keys          *keysuc.Service
	auth          *authuc.Service
	health        *healthuc.Service
	logger        *zap.Logger
	errorHandlers []errorHandler
}

// NewServer creates an HTTP API server.
func NewServer(
	reports *reportuc.Service,
	keys *keysuc.Service,
	auth *authuc.Service,
	health *healthuc.Service,
	logger *zap.Logger,
) *Server {
	s := &Server{
		reports: reports,
		keys:    keys,
		auth:    auth,
		health:  health,
		logger:  logger,
	}
	s.errorHandlers = []errorHandler{
		sentinelHandler(domain.ErrNotFound, http.StatusNotFound, codeNotFound),
		sentinelHandler(domain.ErrAlreadyExists, http.StatusConflict, codeAlreadyExists),
		sentinelHandler(domain.ErrInvalidCredential, http.StatusUnprocessableEntity, codeInvalidCredential),
		sentinelHandler(domain.ErrUnauthorized, http.StatusUnauthorized, codeUnauthorized),
		sentinelHandler(domain.ErrLoginDisabled, http.StatusForbidden, codeLoginDisabled),
	}
	return s
}

// Routes registers all handlers on the router.
func (s *Server) Routes(r chi.Router) {
	r.Get("/", s.Dashboard)
	r.Get("/health", s.HealthCheck)
	r.Get("/metrics", s.Metrics)

	r.Post("/api/login", s.Login)
	r.Post("/api/logout", s.Logout)

	r.Get("/api/report", s.GetReport)

	r.Get("/api/keys", s.ListKeys)
	r.Post("/api/keys", s.AddKeys)
	r.Delete("/api/keys/{id}", s.DeleteKey)
	r.Post("/api/keys/batch-delete", s.BatchDeleteKeys)
	r.Post("/api/keys/{id}/refresh", s.RefreshKey)
}

// Login handles POST /api/login.
func (s *Server) Login(w http.ResponseWriter, r *http.Request) {
	var req loginRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, codeBadRequest, "Invalid request body: "+err.Error())
		return
	}

	if req.Password == "" {
		writeError(w, http.StatusBadRequest, codeBadRequest, "Password is required")
		return
	}

	token, err := s.auth.Login(r.Context(), req.Password)
	if err != nil {
		s.handleDomainError(w, err)
		return
	}

	http.SetCookie(w, &http.Cookie{
		Name:     SessionCookie,
		Value:    token,
		Path:     "/",
		MaxAge:   int(s.auth.SessionTTL().Seconds()),
		HttpOnly: true,
		SameSite: http.SameSiteLaxMode,
	})
	w.WriteHeader(http.StatusNoContent)
}

// Logout handles POST /api/logout.
func (s *Server) Logout(w http.ResponseWriter, r *http.Request) {
	token := ""
	if c, err := r.Cookie(SessionCookie); err == nil {
		token = c.Value
	}

	if err := s.auth.Logout(r.Context(), token); err != nil {
		s.handleDomainError(w, err)
		return
	}

	http.SetCookie(w, &http.Cookie{
		Name:     SessionCookie,
		Value:    "",
		Path:     "/",
		MaxAge:   -1,
		HttpOnly: true,
		SameSite: http.SameSiteLaxMode,
	})
	w.WriteHeader(http.StatusNoContent)
}

// GetReport handles GET /api/report. The refresh query parameter forces
// a recompute instead of serving the cached report.
func (s *Server) GetReport(w http.ResponseWriter, r *http.Request) {
	var refresh bool
	if err := runtime.BindQueryParameter("form", true, false, "refresh", r.URL.Query(), &refresh); err != nil {
		writeError(w, http.StatusBadRequest, codeBadRequest, "Invalid refresh parameter")
		return
	}

	var (
		rep domreport.Report
		err error
	)
	if refresh {
		rep, err = s.reports.Recompute(r.Context())
	} else {
		rep, err = s.reports.GetReport(r.Context())
	}
	if err != nil {
		s.handleDomainError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, reportToJSON(rep))
}

// ListKeys handles GET /api/keys.
func (s *Server) ListKeys(w http.ResponseWriter, r *http.Request) {
	creds, err := s.keys.List(r.Context())
	if err != nil {
		s.handleDomainError(w, err)
		return
	}

	items := make([]keyItem, len(creds))
	for i, c := range creds {
		items[i] = credentialToItem(c)
	}

	writeJSON(w, http.StatusOK, keyListResponse{
		Items: items,
		Count: len(items),
	})
}

// AddKeys handles POST /api/keys. A single key is stored directly; a
// keys array runs the bulk import with per-item outcomes.
func (s *Server) AddKeys(w http.ResponseWriter, r *http.Request) {
	var req addKeysRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, codeBadRequest, "Invalid request body: "+err.Error())
		return
	}

	if len(req.Keys) > 0 {
		if len(req.Keys) > maxBatchSize {
			writeError(w, http.StatusBadRequest, codeBadRequest,
				fmt.Sprintf("keys count must be between 1 and %d", maxBatchSize))
			return
		}

		sum, err := s.keys.Import(r.Context(), req.Keys)
		if err != nil {
			s.handleDomainError(w, err)
			return
		}

		writeJSON(w, http.StatusOK, importResponse{
			Success:    sum.Added,
			Failed:     sum.Failed,
			Duplicates: sum.Duplicates,
		})
		return
	}

	if req.Key == "" {
		writeError(w, http.StatusBadRequest, codeBadRequest, "key or keys is required")
		return
	}

	cred, err := s.keys.Add(r.Context(), req.Key)
	if err != nil {
		s.handleDomainError(w, err)
		return
	}

	writeJSON(w, http.StatusCreated, credentialToItem(cred))
}

// DeleteKey handles DELETE /api/keys/{id}.
func (s *Server) DeleteKey(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	if err := s.keys.Delete(r.Context(), id); err != nil {
		s.handleDomainError(w, err)
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

// BatchDeleteKeys handles POST /api/keys/batch-delete.
func (s *Server) BatchDeleteKeys(w http.ResponseWriter, r *http.Request) {
	var req batchDeleteRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, codeBadRequest, "Invalid request body: "+err.Error())
		return
	}

	if len(req.IDs) == 0 || len(req.IDs) > maxBatchSize {
		writeError(w, http.StatusBadRequest, codeBadRequest,
			fmt.Sprintf("ids count must be between 1 and %d", maxBatchSize))
		return
	}

	sum, err := s.keys.BatchDelete(r.Context(), req.IDs)
	if err != nil {
		s.handleDomainError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, batchDeleteResponse{
		Success: sum.Deleted,
		Failed:  sum.Failed,
	})
}

// RefreshKey handles POST /api/keys/{id}/refresh. It fetches usage for
// one credential immediately, bypassing the report cache.
func (s *Server) RefreshKey(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	res, err := s.reports.RefreshOne(r.Context(), id)
	if err != nil {
		s.handleDomainError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, resultToEntry(res))
}

// HealthCheck handles GET /health.
func (s *Server) HealthCheck(w http.ResponseWriter, r *http.Request) {
	report := s.health.Check(r.Context())

	// Degraded still serves cached and stored data, so only a dead
	// key-value store takes the service out of rotation.
	httpStatus := http.StatusOK
	if report.Status == healthuc.Unhealthy {
		httpStatus = http.StatusServiceUnavailable
	}

	writeJSON(w, httpStatus, healthResponse{
		Status: string(report.Status),
		Checks: report.Checks,
	})
}

// Metrics handles GET /metrics.
func (s *Server) Metrics(w http.ResponseWriter, r *http.Request) {
	promhttp.Handler().ServeHTTP(w, r)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, code string, message string) {
	writeJSON(w, status, ErrorResponse{
		Code:    code,
		Message: message,
	})
}

// safeDomainMessage returns a sentinel error message for the client without exposing internals.
func safeDomainMessage(err error) string {
	sentinels := []error{
		domain.ErrNotFound,
		domain.ErrAlreadyExists,
		domain.ErrInvalidCredential,
		domain.ErrUnauthorized,
		domain.ErrLoginDisabled,
	}
	for _, s := range sentinels {
		if errors.Is(err, s) {
			return s.Error()
		}
	}
	return "internal error"
}

// sentinelHandler returns an errorHandler that matches a single sentinel error.
func sentinelHandler(sentinel error, status int, code string) errorHandler {
	return func(w http.ResponseWriter, err error, msg string) bool {
		if !errors.Is(err, sentinel) {
			return false
		}
		writeError(w, status, code, msg)
		return true
	}
}

func (s *Server) handleDomainError(w http.ResponseWriter, err error) {
	s.logger.Warn("domain error", zap.Error(err))
	msg := safeDomainMessage(err)
	for _, h := range s.errorHandlers {
		if h(w, err, msg) {
			return
		}
	}
	s.logger.Error("internal error", zap.Error(err))
	writeError(w, http.StatusInternalServerError, codeInternalError, "internal error")
}

// --- Wire types ---

type loginRequest struct {
	Password string `json:"password"`
}

type addKeysRequest struct {
	Key  string   `json:"key"`
	Keys []string `json:"keys"`
}

type batchDeleteRequest struct {
	IDs []string `json:"ids"`
}

type keyItem struct {
	ID        string    `json:"id"`
	Key       string    `json:"key"`
	CreatedAt time.Time `json:"created_at"`
}

type keyListResponse struct {
	Items []keyItem `json:"items"`
	Count int       `json:"count"`
}

type importResponse struct {
	Success    int `json:"success"`
	Failed     int `json:"failed"`
	Duplicates int `json:"duplicates"`
}

type batchDeleteResponse struct {
	Success int `json:"success"`
	Failed  int `json:"failed"`
}

type reportResponse struct {
	UpdateTime string        `json:"update_time"`
	TotalCount int           `json:"total_count"`
	Totals     reportTotals  `json:"totals"`
	Data       []reportEntry `json:"data"`
}

type reportTotals struct {
	Used      float64 `json:"total_orgTotalTokensUsed"`
	Allowance float64 `json:"total_totalAllowance"`
	Remaining float64 `json:"totalRemaining"`
}

// reportEntry renders one per-credential outcome. Successful entries
// carry the usage fields; failed entries carry only the error message.
// The key is always the masked rendering.
type reportEntry struct {
	ID        string   `json:"id"`
	Key       string   `json:"key"`
	StartDate string   `json:"startDate,omitempty"`
	EndDate   string   `json:"endDate,omitempty"`
	Used      *float64 `json:"orgTotalTokensUsed,omitempty"`
	Allowance *float64 `json:"totalAllowance,omitempty"`
	UsedRatio *float64 `json:"usedRatio,omitempty"`
	Error     string   `json:"error,omitempty"`
}

type healthResponse struct {
	Status string                          `json:"status"`
	Checks map[string]healthuc.CheckResult `json:"checks"`
}

// --- Converters ---

func reportToJSON(rep domreport.Report) reportResponse {
	data := make([]reportEntry, len(rep.Results()))
	for i, res := range rep.Results() {
		data[i] = resultToEntry(res)
	}

	return reportResponse{
		UpdateTime: rep.GeneratedAt(),
		TotalCount: rep.KeyCount(),
		Totals: reportTotals{
			Used:      rep.Totals().Used(),
			Allowance: rep.Totals().Allowance(),
			Remaining: rep.Totals().Remaining(),
		},
		Data: data,
	}
}

func resultToEntry(res domreport.Result) reportEntry {
	if !res.OK() {
		return reportEntry{
			ID:    res.ID(),
			Key:   res.MaskedKey(),
			Error: res.Message(),
		}
	}

	used := res.Used()
	allowance := res.Allowance()
	ratio := res.UsedRatio()
	return reportEntry{
		ID:        res.ID(),
		Key:       res.MaskedKey(),
		StartDate: res.WindowStart(),
		EndDate:   res.WindowEnd(),
		Used:      &used,
		Allowance: &allowance,
		UsedRatio: &ratio,
	}
}

func credentialToItem(c domcred.Credential) keyItem {
	return keyItem{
		ID:        c.ID(),
		Key:       c.Masked(),
		CreatedAt: time.UnixMilli(c.CreatedAt()).UTC(),
	}
}
