package gateway

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kuccps-hub/course-match-hub/internal/domain/payment"
	"github.com/kuccps-hub/course-match-hub/internal/domain/shared"
)

func testClient(t *testing.T, handler http.Handler) *Client {
	t.Helper()
	server := httptest.NewServer(handler)
	t.Cleanup(server.Close)

	config := DefaultClientConfig(server.URL)
	config.ConsumerKey = "key"
	config.ConsumerSecret = "secret"
	config.ShortCode = "174379"
	config.Passkey = "passkey"
	config.CallbackURL = "https://hub.example.com/api/v1/payments/callback"
	config.RequestsPerSecond = 1000

	return NewClient(config)
}

func writeToken(w http.ResponseWriter) {
	_ = json.NewEncoder(w).Encode(tokenDTO{
		AccessToken: "test-token",
		ExpiresIn:   "3599",
	})
}

func TestClient_RequestCharge(t *testing.T) {
	var tokenFetches atomic.Int32

	mux := http.NewServeMux()
	mux.HandleFunc("/oauth/v1/generate", func(w http.ResponseWriter, r *http.Request) {
		tokenFetches.Add(1)
		assert.NotEmpty(t, r.Header.Get("Authorization"))
		writeToken(w)
	})
	mux.HandleFunc("/mpesa/stkpush/v1/processrequest", func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "Bearer test-token", r.Header.Get("Authorization"))

		var req stkPushRequestDTO
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		assert.Equal(t, "174379", req.BusinessShortCode)
		assert.Equal(t, "254712345678", req.PhoneNumber)
		assert.Equal(t, "150", req.Amount)
		assert.NotEmpty(t, req.Password)

		_ = json.NewEncoder(w).Encode(stkPushResponseDTO{
			MerchantRequestID: "mr-1",
			CheckoutRequestID: "ws_CO_123",
			ResponseCode:      "0",
		})
	})

	client := testClient(t, mux)

	resp, err := client.RequestCharge(context.Background(), payment.ChargeRequest{
		Phone:            "254712345678",
		Amount:           150,
		AccountReference: "CMH-12345678901",
		Description:      "Course match results",
	})
	require.NoError(t, err)
	assert.Equal(t, "ws_CO_123", resp.CheckoutRequestID)
	assert.Equal(t, "mr-1", resp.MerchantRequestID)

	// A second charge reuses the cached token.
	_, err = client.RequestCharge(context.Background(), payment.ChargeRequest{
		Phone:  "254712345678",
		Amount: 150,
	})
	require.NoError(t, err)
	assert.Equal(t, int32(1), tokenFetches.Load())
}

func TestClient_RequestChargeRejected(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/oauth/v1/generate", func(w http.ResponseWriter, r *http.Request) {
		writeToken(w)
	})
	mux.HandleFunc("/mpesa/stkpush/v1/processrequest", func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewEncoder(w).Encode(stkPushResponseDTO{
			ResponseCode:        "1",
			ResponseDescription: "invalid shortcode",
		})
	})

	client := testClient(t, mux)

	_, err := client.RequestCharge(context.Background(), payment.ChargeRequest{
		Phone:  "254712345678",
		Amount: 150,
	})
	assert.ErrorIs(t, err, shared.ErrGatewayRejected)
}

func TestClient_QueryStatusOutcomes(t *testing.T) {
	var result stkQueryResponseDTO

	mux := http.NewServeMux()
	mux.HandleFunc("/oauth/v1/generate", func(w http.ResponseWriter, r *http.Request) {
		writeToken(w)
	})
	mux.HandleFunc("/mpesa/stkpushquery/v1/query", func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewEncoder(w).Encode(result)
	})

	client := testClient(t, mux)

	result = stkQueryResponseDTO{
		CheckoutRequestID: "ws_CO_123",
		ResultCode:        "0",
		ResultDesc:        "The service request is processed successfully.",
	}
	outcome, err := client.QueryStatus(context.Background(), "ws_CO_123")
	require.NoError(t, err)
	assert.True(t, outcome.Succeeded)
	assert.False(t, outcome.Pending)

	result = stkQueryResponseDTO{
		CheckoutRequestID: "ws_CO_123",
		ResultCode:        "1032",
		ResultDesc:        "Request cancelled by user",
	}
	outcome, err = client.QueryStatus(context.Background(), "ws_CO_123")
	require.NoError(t, err)
	assert.False(t, outcome.Succeeded)
	assert.Equal(t, "Request cancelled by user", outcome.Reason)
}

func TestClient_QueryStatusPending(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/oauth/v1/generate", func(w http.ResponseWriter, r *http.Request) {
		writeToken(w)
	})
	mux.HandleFunc("/mpesa/stkpushquery/v1/query", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
		_ = json.NewEncoder(w).Encode(errorDTO{
			ErrorCode:    errorCodePending,
			ErrorMessage: "The transaction is being processed",
		})
	})

	client := testClient(t, mux)

	outcome, err := client.QueryStatus(context.Background(), "ws_CO_123")
	require.NoError(t, err)
	assert.True(t, outcome.Pending)
	assert.False(t, outcome.Succeeded)
}

func TestClient_BadCredentials(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/oauth/v1/generate", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
	})

	client := testClient(t, mux)

	_, err := client.RequestCharge(context.Background(), payment.ChargeRequest{
		Phone:  "254712345678",
		Amount: 150,
	})
	assert.ErrorIs(t, err, shared.ErrGatewayRejected)
}
