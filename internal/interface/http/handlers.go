package http

import (
	"context"
	"crypto/subtle"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strings"

	"github.com/kuccps-hub/course-match-hub/internal/application/command"
	"github.com/kuccps-hub/course-match-hub/internal/application/query"
	"github.com/kuccps-hub/course-match-hub/internal/domain/candidate"
	"github.com/kuccps-hub/course-match-hub/internal/domain/catalog"
	"github.com/kuccps-hub/course-match-hub/internal/domain/shared"
	"github.com/kuccps-hub/course-match-hub/pkg/logger"
)

// ══════════════════════════════════════════════════════════════════════════════
// HEALTH & STATUS HANDLERS
// ══════════════════════════════════════════════════════════════════════════════

// handleRoot serves the root endpoint with basic API information.
func (s *Server) handleRoot(w http.ResponseWriter, r *http.Request) {
	info := map[string]interface{}{
		"name":        "Course Match Hub API",
		"version":     "v1",
		"description": "KCSE course qualification matching for KUCCPS placement categories",
		"endpoints": map[string]string{
			"health":     "/health",
			"grades":     "/api/v1/grades",
			"payments":   "/api/v1/payments",
			"status":     "/api/v1/status",
			"results":    "/api/v1/results",
			"categories": "/api/v1/categories",
		},
	}

	writeJSON(w, http.StatusOK, info)
}

// handleHealth handles the health check endpoint.
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	if s.deps.HealthChecker != nil {
		status := s.deps.HealthChecker.Check(r.Context())
		if !status.Healthy {
			writeJSON(w, http.StatusServiceUnavailable, status)
			return
		}
		writeJSON(w, http.StatusOK, status)
		return
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"status":  "healthy",
		"uptime":  s.Uptime().String(),
		"version": "v1",
	})
}

// handleReady handles the readiness probe endpoint (for Kubernetes).
func (s *Server) handleReady(w http.ResponseWriter, r *http.Request) {
	if s.deps.HealthChecker != nil {
		status := s.deps.HealthChecker.Check(r.Context())
		if !status.Ready {
			writeJSON(w, http.StatusServiceUnavailable, map[string]string{
				"status": "not_ready",
				"reason": status.Message,
			})
			return
		}
	}

	writeJSON(w, http.StatusOK, map[string]string{"status": "ready"})
}

// handleLive handles the liveness probe endpoint (for Kubernetes).
func (s *Server) handleLive(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "alive"})
}

// handleListCategories lists the matchable categories and their partitions.
func (s *Server) handleListCategories(w http.ResponseWriter, r *http.Request) {
	type categoryInfo struct {
		Category   string   `json:"category"`
		Partitions []string `json:"partitions"`
	}

	categories := make([]categoryInfo, 0, 6)
	for _, c := range candidate.Categories() {
		categories = append(categories, categoryInfo{
			Category:   c.String(),
			Partitions: catalog.PartitionsFor(c),
		})
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{"categories": categories})
}

// ══════════════════════════════════════════════════════════════════════════════
// GRADE SUBMISSION HANDLER
// ══════════════════════════════════════════════════════════════════════════════

// submitGradesRequest is the grade submission request body.
type submitGradesRequest struct {
	Email         string             `json:"email"`
	IndexNumber   string             `json:"index_number"`
	Category      string             `json:"category"`
	SubjectGrades map[string]string  `json:"subject_grades"`
	MeanGrade     string             `json:"mean_grade,omitempty"`
	ClusterPoints map[string]float64 `json:"cluster_points,omitempty"`
	Phone         string             `json:"phone,omitempty"`
}

// handleSubmitGrades handles POST /api/v1/grades
func (s *Server) handleSubmitGrades(w http.ResponseWriter, r *http.Request) {
	if s.deps.SubmitGradesHandler == nil {
		writeJSONError(w, http.StatusNotImplemented, "not_implemented", "Grade submission not configured")
		return
	}

	var req submitGradesRequest
	if !decodeJSONBody(w, r, &req) {
		return
	}

	cmd := command.SubmitGradesCommand{
		Email:         req.Email,
		IndexNumber:   req.IndexNumber,
		Category:      req.Category,
		SubjectGrades: req.SubjectGrades,
		MeanGrade:     req.MeanGrade,
		ClusterPoints: req.ClusterPoints,
		Phone:         req.Phone,
		CorrelationID: getRequestID(r.Context()),
	}

	result, err := s.deps.SubmitGradesHandler.Handle(r.Context(), cmd)
	if err != nil {
		s.writeCommandError(w, r, err, "grade submission failed")
		return
	}

	writeJSON(w, http.StatusCreated, map[string]interface{}{
		"email":         result.Key.Email,
		"index_number":  result.Key.IndexNumber.String(),
		"category":      result.Key.Category.String(),
		"subject_count": result.SubjectCount,
		"expires_at":    result.ExpiresAt,
	})
}

// ══════════════════════════════════════════════════════════════════════════════
// PAYMENT HANDLERS
// ══════════════════════════════════════════════════════════════════════════════

// initiatePaymentRequest is the payment initiation request body.
type initiatePaymentRequest struct {
	Email       string `json:"email"`
	IndexNumber string `json:"index_number"`
	Category    string `json:"category"`
	Phone       string `json:"phone,omitempty"`
}

// handleInitiatePayment handles POST /api/v1/payments
func (s *Server) handleInitiatePayment(w http.ResponseWriter, r *http.Request) {
	if s.deps.InitiatePaymentHandler == nil {
		writeJSONError(w, http.StatusNotImplemented, "not_implemented", "Payments not configured")
		return
	}

	var req initiatePaymentRequest
	if !decodeJSONBody(w, r, &req) {
		return
	}

	key, err := buildKey(req.Email, req.IndexNumber, req.Category)
	if err != nil {
		writeJSONError(w, http.StatusBadRequest, "invalid_request", err.Error())
		return
	}

	cmd := command.InitiatePaymentCommand{
		Key:           key,
		Phone:         req.Phone,
		CorrelationID: getRequestID(r.Context()),
	}

	result, err := s.deps.InitiatePaymentHandler.Handle(r.Context(), cmd)
	if err != nil {
		s.writeCommandError(w, r, err, "payment initiation failed")
		return
	}

	status := http.StatusAccepted
	if result.AlreadyConfirmed {
		status = http.StatusOK
	}

	s.observePayment("initiated")
	writeJSON(w, status, map[string]interface{}{
		"payment_id":          result.PaymentID,
		"checkout_request_id": result.CheckoutRequestID,
		"amount":              result.Amount,
		"already_confirmed":   result.AlreadyConfirmed,
	})
}

// ══════════════════════════════════════════════════════════════════════════════
// STATUS & RESULTS HANDLERS
// ══════════════════════════════════════════════════════════════════════════════

// handleGetStatus handles GET /api/v1/status
func (s *Server) handleGetStatus(w http.ResponseWriter, r *http.Request) {
	if s.deps.GetResultStatusHandler == nil {
		writeJSONError(w, http.StatusNotImplemented, "not_implemented", "Status polling not configured")
		return
	}

	key, err := keyFromQuery(r)
	if err != nil {
		writeJSONError(w, http.StatusBadRequest, "invalid_request", err.Error())
		return
	}

	result, err := s.deps.GetResultStatusHandler.Handle(r.Context(), query.GetResultStatusQuery{Key: key})
	if err != nil {
		s.writeCommandError(w, r, err, "status poll failed")
		return
	}

	if s.deps.Metrics != nil {
		s.deps.Metrics.StatusChecksTotal.WithLabelValues(string(result.View.State)).Inc()
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"state":      result.View.State,
		"ready":      result.View.Ready,
		"count":      result.View.Count,
		"checked_at": result.CheckedAt,
	})
}

// handleGetResults handles GET /api/v1/results
func (s *Server) handleGetResults(w http.ResponseWriter, r *http.Request) {
	if s.deps.GetResultsHandler == nil {
		writeJSONError(w, http.StatusNotImplemented, "not_implemented", "Results not configured")
		return
	}

	key, err := keyFromQuery(r)
	if err != nil {
		writeJSONError(w, http.StatusBadRequest, "invalid_request", err.Error())
		return
	}

	result, err := s.deps.GetResultsHandler.Handle(r.Context(), query.GetResultsQuery{Key: key})
	if err != nil {
		switch {
		case errors.Is(err, shared.ErrPaymentNotConfirmed):
			writeJSONError(w, http.StatusPaymentRequired, "payment_required", "A confirmed payment is required to view results")
		case errors.Is(err, shared.ErrResultNotFound):
			writeJSONError(w, http.StatusNotFound, "result_not_ready", "The qualification result is not ready yet")
		default:
			s.writeCommandError(w, r, err, "result fetch failed")
		}
		return
	}

	writeJSON(w, http.StatusOK, result)
}

// ══════════════════════════════════════════════════════════════════════════════
// PAYMENT WEBHOOK HANDLERS
// ══════════════════════════════════════════════════════════════════════════════

// paymentWebhookPayload is the gateway's STK push callback envelope.
type paymentWebhookPayload struct {
	Body struct {
		StkCallback struct {
			MerchantRequestID string `json:"MerchantRequestID"`
			CheckoutRequestID string `json:"CheckoutRequestID"`
			ResultCode        int    `json:"ResultCode"`
			ResultDesc        string `json:"ResultDesc"`
			CallbackMetadata  struct {
				Item []struct {
					Name  string      `json:"Name"`
					Value interface{} `json:"Value,omitempty"`
				} `json:"Item"`
			} `json:"CallbackMetadata,omitempty"`
		} `json:"stkCallback"`
	} `json:"Body"`
}

// handlePaymentWebhook handles POST /webhook/payments
func (s *Server) handlePaymentWebhook(w http.ResponseWriter, r *http.Request) {
	s.processPaymentWebhook(w, r, "")
}

// handlePaymentWebhookWithToken handles POST /webhook/payments/{token}
func (s *Server) handlePaymentWebhookWithToken(w http.ResponseWriter, r *http.Request) {
	token := r.PathValue("token")
	s.processPaymentWebhook(w, r, token)
}

// processPaymentWebhook applies one gateway callback. The gateway retries
// non-200 answers, so everything past authentication and parsing is
// acknowledged: an unknown reference or duplicate delivery is logged and
// answered 200.
func (s *Server) processPaymentWebhook(w http.ResponseWriter, r *http.Request, token string) {
	if s.config.WebhookSecret != "" &&
		subtle.ConstantTimeCompare([]byte(token), []byte(s.config.WebhookSecret)) != 1 {
		s.logger.Warn("invalid webhook token", logger.String("ip", getClientIP(r)))
		s.observeWebhook("rejected")
		writeJSONError(w, http.StatusUnauthorized, "unauthorized", "Invalid webhook token")
		return
	}

	body, err := io.ReadAll(io.LimitReader(r.Body, 1<<20)) // 1MB limit
	if err != nil {
		s.observeWebhook("invalid")
		writeJSONError(w, http.StatusBadRequest, "invalid_request", "Failed to read request body")
		return
	}
	defer r.Body.Close()

	var payload paymentWebhookPayload
	if err := json.Unmarshal(body, &payload); err != nil {
		s.observeWebhook("invalid")
		writeJSONError(w, http.StatusBadRequest, "invalid_request", "Invalid JSON payload")
		return
	}

	callback := payload.Body.StkCallback
	if callback.CheckoutRequestID == "" {
		s.observeWebhook("invalid")
		writeJSONError(w, http.StatusBadRequest, "invalid_request", "Missing checkout request ID")
		return
	}

	s.logger.Info("received payment webhook",
		logger.Reference(callback.CheckoutRequestID),
		logger.Int("result_code", callback.ResultCode),
		logger.String("request_id", getRequestID(r.Context())),
	)

	if s.deps.ConfirmPaymentHandler == nil {
		s.observeWebhook("dropped")
		writeJSON(w, http.StatusOK, map[string]string{"status": "received"})
		return
	}

	cmd := command.ConfirmPaymentCommand{
		CheckoutRequestID: callback.CheckoutRequestID,
		Succeeded:         callback.ResultCode == 0,
		FailureReason:     callback.ResultDesc,
		CorrelationID:     getRequestID(r.Context()),
	}

	result, err := s.deps.ConfirmPaymentHandler.Handle(r.Context(), cmd)
	switch {
	case err == nil && result.Duplicate:
		s.observeWebhook("duplicate")
	case err == nil:
		s.observeWebhook("applied")
		if result.Dispatched {
			s.observePayment("confirmed")
		} else if !cmd.Succeeded {
			s.observePayment("failed")
		}
	case errors.Is(err, shared.ErrPaymentNotFound):
		// A reference this instance never issued; the verdict cannot be
		// applied, and a retry will not help.
		s.logger.Warn("webhook for unknown payment reference",
			logger.Reference(callback.CheckoutRequestID))
		s.observeWebhook("unknown_reference")
	default:
		s.logger.Error("webhook processing failed",
			logger.Reference(callback.CheckoutRequestID),
			logger.Err(err))
		s.observeWebhook("error")
		// A transient failure here is worth a gateway retry.
		writeJSONError(w, http.StatusInternalServerError, "internal_error", "Failed to process callback")
		return
	}

	writeJSON(w, http.StatusOK, map[string]string{"status": "received"})
}

// ══════════════════════════════════════════════════════════════════════════════
// CATALOG IMPORT HANDLER
// ══════════════════════════════════════════════════════════════════════════════

// CatalogImporter replaces the contents of one catalog partition.
type CatalogImporter interface {
	ReplacePartition(ctx context.Context, category candidate.Category, partition string, entries []catalog.Entry) error
}

// importCatalogRequest is the catalog import request body.
type importCatalogRequest struct {
	Entries []catalog.Entry `json:"entries"`
}

// handleImportCatalogPartition handles PUT /api/v1/admin/catalog/{category}/{partition}
func (s *Server) handleImportCatalogPartition(w http.ResponseWriter, r *http.Request) {
	if s.deps.CatalogImporter == nil {
		writeJSONError(w, http.StatusNotImplemented, "not_implemented", "Catalog import not configured")
		return
	}

	category, err := candidate.ParseCategory(r.PathValue("category"))
	if err != nil {
		writeJSONError(w, http.StatusBadRequest, "invalid_request", "Unknown category")
		return
	}

	partition := r.PathValue("partition")
	if !catalog.IsRegisteredPartition(category, partition) {
		writeJSONError(w, http.StatusBadRequest, "invalid_request",
			"Partition is not registered for category "+category.String())
		return
	}

	var req importCatalogRequest
	if !decodeJSONBody(w, r, &req) {
		return
	}

	for i := range req.Entries {
		if req.Entries[i].ProgrammeCode == "" {
			writeJSONError(w, http.StatusBadRequest, "invalid_request", "Every entry needs a programme code")
			return
		}
		req.Entries[i].Partition = partition
	}

	if err := s.deps.CatalogImporter.ReplacePartition(r.Context(), category, partition, req.Entries); err != nil {
		s.logger.Error("catalog import failed",
			logger.Category(category.String()),
			logger.String("partition", partition),
			logger.Err(err))
		writeJSONError(w, http.StatusInternalServerError, "internal_error", "Failed to import catalog partition")
		return
	}

	s.logger.Info("catalog partition imported",
		logger.Category(category.String()),
		logger.String("partition", partition),
		logger.Int("entries", len(req.Entries)))

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"category":  category.String(),
		"partition": partition,
		"entries":   len(req.Entries),
	})
}

// ══════════════════════════════════════════════════════════════════════════════
// REQUEST HELPERS
// ══════════════════════════════════════════════════════════════════════════════

// decodeJSONBody decodes a JSON body, writing a 400 on failure.
func decodeJSONBody(w http.ResponseWriter, r *http.Request, dst interface{}) bool {
	defer r.Body.Close()

	dec := json.NewDecoder(r.Body)
	if err := dec.Decode(dst); err != nil {
		writeJSONError(w, http.StatusBadRequest, "invalid_request", "Invalid JSON body")
		return false
	}
	return true
}

// buildKey assembles a candidate key from raw request fields, normalized the
// same way profile creation normalizes them.
func buildKey(email, indexNumber, category string) (candidate.Key, error) {
	parsed, err := candidate.ParseCategory(category)
	if err != nil {
		return candidate.Key{}, errors.New("unknown category")
	}

	key := candidate.Key{
		Email:       strings.ToLower(strings.TrimSpace(email)),
		IndexNumber: candidate.IndexNumber(indexNumber).Normalize(),
		Category:    parsed,
	}
	if !key.IsValid() {
		return candidate.Key{}, errors.New("email, index_number and category must all be well formed")
	}
	return key, nil
}

// keyFromQuery assembles a candidate key from query parameters.
func keyFromQuery(r *http.Request) (candidate.Key, error) {
	q := r.URL.Query()
	return buildKey(q.Get("email"), q.Get("index_number"), q.Get("category"))
}

// writeCommandError maps application errors onto HTTP responses.
func (s *Server) writeCommandError(w http.ResponseWriter, r *http.Request, err error, logMsg string) {
	switch {
	case shared.IsValidation(err):
		writeJSONError(w, http.StatusBadRequest, "invalid_request", err.Error())
	case shared.IsNotFound(err):
		writeJSONError(w, http.StatusNotFound, "not_found", err.Error())
	case errors.Is(err, shared.ErrExpired):
		writeJSONError(w, http.StatusGone, "expired", "The grade submission expired; please resubmit")
	case errors.Is(err, shared.ErrGatewayRejected):
		s.observePayment("rejected")
		writeJSONError(w, http.StatusBadGateway, "gateway_rejected", "The payment gateway rejected the charge request")
	case errors.Is(err, shared.ErrGatewayUnavailable), errors.Is(err, shared.ErrGatewayTimeout):
		writeJSONError(w, http.StatusServiceUnavailable, "gateway_unavailable", "The payment gateway is unavailable, please retry")
	default:
		s.logger.Error(logMsg,
			logger.Err(err),
			logger.String("request_id", getRequestID(r.Context())))
		writeJSONError(w, http.StatusInternalServerError, "internal_error", "An unexpected error occurred")
	}
}

// observeWebhook records a webhook disposition.
func (s *Server) observeWebhook(disposition string) {
	if s.deps.Metrics != nil {
		s.deps.Metrics.WebhookDelivered.WithLabelValues(disposition).Inc()
	}
}

// observePayment records a payment outcome.
func (s *Server) observePayment(outcome string) {
	if s.deps.Metrics != nil {
		s.deps.Metrics.PaymentsTotal.WithLabelValues(outcome).Inc()
	}
}
