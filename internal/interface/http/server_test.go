package http

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	nethttp "net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kuccps-hub/course-match-hub/internal/application/command"
	"github.com/kuccps-hub/course-match-hub/internal/application/fulfillment"
	"github.com/kuccps-hub/course-match-hub/internal/application/query"
	"github.com/kuccps-hub/course-match-hub/internal/domain/candidate"
	"github.com/kuccps-hub/course-match-hub/internal/domain/catalog"
	"github.com/kuccps-hub/course-match-hub/internal/domain/payment"
	"github.com/kuccps-hub/course-match-hub/internal/infrastructure/persistence/memory"
	"github.com/kuccps-hub/course-match-hub/pkg/logger"
)

// ══════════════════════════════════════════════════════════════════════════════
// TEST FIXTURE
// ══════════════════════════════════════════════════════════════════════════════

// chargeStub answers charge requests without a real gateway.
type chargeStub struct {
	charges int
}

func (g *chargeStub) RequestCharge(ctx context.Context, req payment.ChargeRequest) (*payment.ChargeResponse, error) {
	g.charges++
	return &payment.ChargeResponse{
		MerchantRequestID: fmt.Sprintf("mr-%d", g.charges),
		CheckoutRequestID: fmt.Sprintf("ws_CO_%d", g.charges),
	}, nil
}

func (g *chargeStub) QueryStatus(ctx context.Context, checkoutRequestID string) (*payment.ChargeOutcome, error) {
	return &payment.ChargeOutcome{Reference: checkoutRequestID, Pending: true}, nil
}

// importerStub records catalog import calls.
type importerStub struct {
	category  candidate.Category
	partition string
	entries   []catalog.Entry
}

func (i *importerStub) ReplacePartition(ctx context.Context, category candidate.Category, partition string, entries []catalog.Entry) error {
	i.category = category
	i.partition = partition
	i.entries = entries
	return nil
}

type serverFixture struct {
	server   *Server
	gateway  *chargeStub
	importer *importerStub
	results  *memory.ResultRepository
}

func newServerFixture(t *testing.T, mutate func(*Config)) *serverFixture {
	t.Helper()

	log := logger.New(logger.Options{Level: logger.LevelError})
	profiles := memory.NewProfileStore()
	payments := memory.NewPaymentRepository()
	results := memory.NewResultRepository()
	leases := memory.NewLeaseStore()
	statusCache := memory.NewStatusCache()

	coordinator := fulfillment.NewCoordinator(
		results, leases, statusCache, profiles,
		fulfillment.NewScanner(memory.NewCatalogSource(), log), nil, log,
		fulfillment.DefaultCoordinatorConfig(),
	)
	dispatcher := fulfillment.NewDispatcher(coordinator, log, fulfillment.DefaultDispatcherConfig())
	t.Cleanup(dispatcher.Close)

	gateway := &chargeStub{}
	importer := &importerStub{}

	config := DefaultConfig()
	config.RateLimitPerSecond = 0
	config.APIKeys = []string{"admin-key"}
	config.WebhookSecret = "hook-token"
	if mutate != nil {
		mutate(&config)
	}

	server := NewServer(config, Dependencies{
		SubmitGradesHandler:    command.NewSubmitGradesHandler(profiles, nil, log, time.Minute),
		InitiatePaymentHandler: command.NewInitiatePaymentHandler(payments, profiles, gateway, nil, log, 200),
		ConfirmPaymentHandler:  command.NewConfirmPaymentHandler(payments, dispatcher, nil, log),
		GetResultStatusHandler: query.NewGetResultStatusHandler(statusCache, results, leases, payments, dispatcher, log, time.Minute),
		GetResultsHandler:      query.NewGetResultsHandler(results, payments),
		CatalogImporter:        importer,
		Logger:                 log,
	})
	t.Cleanup(func() {
		if server.rateLimiter != nil {
			server.rateLimiter.Close()
		}
	})

	return &serverFixture{server: server, gateway: gateway, importer: importer, results: results}
}

func (f *serverFixture) do(method, path string, body interface{}, headers map[string]string) *httptest.ResponseRecorder {
	var buf bytes.Buffer
	if body != nil {
		_ = json.NewEncoder(&buf).Encode(body)
	}

	req := httptest.NewRequest(method, path, &buf)
	for k, v := range headers {
		req.Header.Set(k, v)
	}

	rec := httptest.NewRecorder()
	f.server.Handler().ServeHTTP(rec, req)
	return rec
}

func gradesBody() map[string]interface{} {
	return map[string]interface{}{
		"email":        "jane@example.com",
		"index_number": "12345678901",
		"category":     "diploma",
		"subject_grades": map[string]string{
			"MAT": "B",
			"ENG": "B+",
		},
		"mean_grade": "C+",
		"phone":      "0712345678",
	}
}

func decodeData(t *testing.T, rec *httptest.ResponseRecorder) map[string]interface{} {
	t.Helper()
	var resp struct {
		Success bool                   `json:"success"`
		Data    map[string]interface{} `json:"data"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	return resp.Data
}

// ══════════════════════════════════════════════════════════════════════════════
// TESTS
// ══════════════════════════════════════════════════════════════════════════════

func TestServer_SubmitGrades(t *testing.T) {
	f := newServerFixture(t, nil)

	rec := f.do(nethttp.MethodPost, "/api/v1/grades", gradesBody(), nil)
	require.Equal(t, nethttp.StatusCreated, rec.Code, rec.Body.String())

	data := decodeData(t, rec)
	assert.Equal(t, "jane@example.com", data["email"])
	assert.Equal(t, "diploma", data["category"])
	assert.EqualValues(t, 2, data["subject_count"])
}

func TestServer_SubmitGradesRejectsBadInput(t *testing.T) {
	f := newServerFixture(t, nil)

	rec := f.do(nethttp.MethodPost, "/api/v1/grades", map[string]interface{}{
		"email": "jane@example.com",
	}, nil)
	assert.Equal(t, nethttp.StatusBadRequest, rec.Code)

	body := gradesBody()
	body["subject_grades"] = map[string]string{"MAT": "Z"}
	rec = f.do(nethttp.MethodPost, "/api/v1/grades", body, nil)
	assert.Equal(t, nethttp.StatusBadRequest, rec.Code)

	req := httptest.NewRequest(nethttp.MethodPost, "/api/v1/grades", bytes.NewBufferString("{not json"))
	raw := httptest.NewRecorder()
	f.server.Handler().ServeHTTP(raw, req)
	assert.Equal(t, nethttp.StatusBadRequest, raw.Code)
}

func TestServer_CandidateFlow(t *testing.T) {
	f := newServerFixture(t, nil)

	// Submit grades.
	rec := f.do(nethttp.MethodPost, "/api/v1/grades", gradesBody(), nil)
	require.Equal(t, nethttp.StatusCreated, rec.Code, rec.Body.String())

	// Initiate the payment.
	rec = f.do(nethttp.MethodPost, "/api/v1/payments", map[string]interface{}{
		"email":        "jane@example.com",
		"index_number": "12345678901",
		"category":     "diploma",
	}, nil)
	require.Equal(t, nethttp.StatusAccepted, rec.Code, rec.Body.String())
	checkoutRequestID := decodeData(t, rec)["checkout_request_id"].(string)
	require.NotEmpty(t, checkoutRequestID)

	// Before confirmation the poll reports the initiated payment.
	statusPath := "/api/v1/status?email=jane@example.com&index_number=12345678901&category=diploma"
	rec = f.do(nethttp.MethodGet, statusPath, nil, nil)
	require.Equal(t, nethttp.StatusOK, rec.Code)
	assert.Equal(t, "payment_initiated", decodeData(t, rec)["state"])

	// Results are gated until the payment confirms.
	resultsPath := "/api/v1/results?email=jane@example.com&index_number=12345678901&category=diploma"
	rec = f.do(nethttp.MethodGet, resultsPath, nil, nil)
	assert.Equal(t, nethttp.StatusPaymentRequired, rec.Code)

	// The gateway confirms through the webhook.
	rec = f.do(nethttp.MethodPost, "/webhook/payments/hook-token", map[string]interface{}{
		"Body": map[string]interface{}{
			"stkCallback": map[string]interface{}{
				"MerchantRequestID": "mr-1",
				"CheckoutRequestID": checkoutRequestID,
				"ResultCode":        0,
				"ResultDesc":        "The service request is processed successfully.",
			},
		},
	}, nil)
	require.Equal(t, nethttp.StatusOK, rec.Code, rec.Body.String())

	// The computation lands asynchronously; polling converges on ready.
	require.Eventually(t, func() bool {
		rec := f.do(nethttp.MethodGet, statusPath, nil, nil)
		return rec.Code == nethttp.StatusOK && decodeData(t, rec)["state"] == "ready"
	}, 5*time.Second, 20*time.Millisecond)

	rec = f.do(nethttp.MethodGet, resultsPath, nil, nil)
	require.Equal(t, nethttp.StatusOK, rec.Code, rec.Body.String())
}

func TestServer_WebhookDuplicateDeliveryIsAcknowledged(t *testing.T) {
	f := newServerFixture(t, nil)

	f.do(nethttp.MethodPost, "/api/v1/grades", gradesBody(), nil)
	rec := f.do(nethttp.MethodPost, "/api/v1/payments", map[string]interface{}{
		"email":        "jane@example.com",
		"index_number": "12345678901",
		"category":     "diploma",
	}, nil)
	require.Equal(t, nethttp.StatusAccepted, rec.Code)
	checkoutRequestID := decodeData(t, rec)["checkout_request_id"].(string)

	callback := map[string]interface{}{
		"Body": map[string]interface{}{
			"stkCallback": map[string]interface{}{
				"CheckoutRequestID": checkoutRequestID,
				"ResultCode":        1032,
				"ResultDesc":        "Request cancelled by user",
			},
		},
	}

	rec = f.do(nethttp.MethodPost, "/webhook/payments/hook-token", callback, nil)
	assert.Equal(t, nethttp.StatusOK, rec.Code)

	// Replaying the same verdict is acknowledged, not errored.
	rec = f.do(nethttp.MethodPost, "/webhook/payments/hook-token", callback, nil)
	assert.Equal(t, nethttp.StatusOK, rec.Code)

	statusPath := "/api/v1/status?email=jane@example.com&index_number=12345678901&category=diploma"
	rec = f.do(nethttp.MethodGet, statusPath, nil, nil)
	assert.Equal(t, "payment_failed", decodeData(t, rec)["state"])
}

func TestServer_WebhookRejectsBadToken(t *testing.T) {
	f := newServerFixture(t, nil)

	rec := f.do(nethttp.MethodPost, "/webhook/payments/wrong-token", map[string]interface{}{}, nil)
	assert.Equal(t, nethttp.StatusUnauthorized, rec.Code)

	rec = f.do(nethttp.MethodPost, "/webhook/payments", map[string]interface{}{}, nil)
	assert.Equal(t, nethttp.StatusUnauthorized, rec.Code, "missing token must not pass when a secret is set")
}

func TestServer_WebhookAcknowledgesUnknownReference(t *testing.T) {
	f := newServerFixture(t, nil)

	rec := f.do(nethttp.MethodPost, "/webhook/payments/hook-token", map[string]interface{}{
		"Body": map[string]interface{}{
			"stkCallback": map[string]interface{}{
				"CheckoutRequestID": "ws_CO_never_issued",
				"ResultCode":        0,
			},
		},
	}, nil)
	assert.Equal(t, nethttp.StatusOK, rec.Code, "an unknown reference is logged, not retried")
}

func TestServer_StatusRejectsMalformedKey(t *testing.T) {
	f := newServerFixture(t, nil)

	rec := f.do(nethttp.MethodGet, "/api/v1/status?email=not-an-email&index_number=123&category=diploma", nil, nil)
	assert.Equal(t, nethttp.StatusBadRequest, rec.Code)

	rec = f.do(nethttp.MethodGet, "/api/v1/status?email=jane@example.com&index_number=12345678901&category=phd", nil, nil)
	assert.Equal(t, nethttp.StatusBadRequest, rec.Code)
}

func TestServer_CatalogImport(t *testing.T) {
	f := newServerFixture(t, nil)

	entries := map[string]interface{}{
		"entries": []map[string]interface{}{
			{
				"programme_code":  "2525101",
				"programme_name":  "Diploma in Civil Engineering",
				"institution":     "Kenya Technical Trainers College",
				"minimum_subject_requirements": map[string]string{"MAT/PHY": "C-"},
				"minimum_mean_grade": "C-",
			},
		},
	}

	// No API key.
	rec := f.do(nethttp.MethodPut, "/api/v1/admin/catalog/diploma/engineering", entries, nil)
	assert.Equal(t, nethttp.StatusUnauthorized, rec.Code)

	auth := map[string]string{"X-API-Key": "admin-key"}

	// Unregistered partition.
	rec = f.do(nethttp.MethodPut, "/api/v1/admin/catalog/diploma/astrology", entries, auth)
	assert.Equal(t, nethttp.StatusBadRequest, rec.Code)

	// Valid import.
	rec = f.do(nethttp.MethodPut, "/api/v1/admin/catalog/diploma/engineering", entries, auth)
	require.Equal(t, nethttp.StatusOK, rec.Code, rec.Body.String())

	assert.Equal(t, candidate.CategoryDiploma, f.importer.category)
	assert.Equal(t, "engineering", f.importer.partition)
	require.Len(t, f.importer.entries, 1)
	assert.Equal(t, "engineering", f.importer.entries[0].Partition, "the path partition wins over the body")
}

func TestServer_RateLimit(t *testing.T) {
	f := newServerFixture(t, func(c *Config) {
		c.RateLimitPerSecond = 1
		c.RateLimitBurst = 1
	})

	headers := map[string]string{"X-Real-IP": "203.0.113.9"}

	rec := f.do(nethttp.MethodGet, "/api/v1/categories", nil, headers)
	require.Equal(t, nethttp.StatusOK, rec.Code)

	rec = f.do(nethttp.MethodGet, "/api/v1/categories", nil, headers)
	assert.Equal(t, nethttp.StatusTooManyRequests, rec.Code)

	// Webhooks bypass the per-IP limit; the gateway is not a candidate.
	rec = f.do(nethttp.MethodPost, "/webhook/payments/hook-token", map[string]interface{}{
		"Body": map[string]interface{}{
			"stkCallback": map[string]interface{}{"CheckoutRequestID": "ws_CO_x", "ResultCode": 0},
		},
	}, headers)
	assert.Equal(t, nethttp.StatusOK, rec.Code)
}

func TestServer_HealthEndpoints(t *testing.T) {
	f := newServerFixture(t, nil)

	for _, path := range []string{"/health", "/healthz", "/ready", "/live"} {
		rec := f.do(nethttp.MethodGet, path, nil, nil)
		assert.Equal(t, nethttp.StatusOK, rec.Code, path)
	}

	rec := f.do(nethttp.MethodGet, "/", nil, nil)
	assert.Equal(t, nethttp.StatusOK, rec.Code)
}

func TestServer_ListCategories(t *testing.T) {
	f := newServerFixture(t, nil)

	rec := f.do(nethttp.MethodGet, "/api/v1/categories", nil, nil)
	require.Equal(t, nethttp.StatusOK, rec.Code)

	var resp struct {
		Data struct {
			Categories []struct {
				Category   string   `json:"category"`
				Partitions []string `json:"partitions"`
			} `json:"categories"`
		} `json:"data"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	require.Len(t, resp.Data.Categories, 6)
	assert.Equal(t, "degree", resp.Data.Categories[0].Category)
	assert.Len(t, resp.Data.Categories[0].Partitions, 20)
}
