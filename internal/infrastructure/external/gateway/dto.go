package gateway

import (
	"fmt"
	"time"
)

// ══════════════════════════════════════════════════════════════════════════════
// WIRE TYPES
// The shapes below mirror the provider's STK push API. Field names and
// casing follow the provider, not this codebase.
// ══════════════════════════════════════════════════════════════════════════════

// tokenDTO is the OAuth token response.
type tokenDTO struct {
	AccessToken string `json:"access_token"`
	ExpiresIn   string `json:"expires_in"`

	// fetchedAt is set client-side to compute expiry.
	fetchedAt time.Time
	lifetime  time.Duration
}

// isExpired reports whether the token needs refreshing. A 30s safety margin
// keeps a token from expiring mid-request.
func (t *tokenDTO) isExpired() bool {
	if t == nil || t.AccessToken == "" {
		return true
	}
	return time.Since(t.fetchedAt) > t.lifetime-30*time.Second
}

// stkPushRequestDTO is the charge request body.
type stkPushRequestDTO struct {
	BusinessShortCode string `json:"BusinessShortCode"`
	Password          string `json:"Password"`
	Timestamp         string `json:"Timestamp"`
	TransactionType   string `json:"TransactionType"`
	Amount            string `json:"Amount"`
	PartyA            string `json:"PartyA"`
	PartyB            string `json:"PartyB"`
	PhoneNumber       string `json:"PhoneNumber"`
	CallBackURL       string `json:"CallBackURL"`
	AccountReference  string `json:"AccountReference"`
	TransactionDesc   string `json:"TransactionDesc"`
}

// stkPushResponseDTO is the charge acceptance response.
type stkPushResponseDTO struct {
	MerchantRequestID   string `json:"MerchantRequestID"`
	CheckoutRequestID   string `json:"CheckoutRequestID"`
	ResponseCode        string `json:"ResponseCode"`
	ResponseDescription string `json:"ResponseDescription"`
	CustomerMessage     string `json:"CustomerMessage"`
}

// stkQueryRequestDTO is the status query body.
type stkQueryRequestDTO struct {
	BusinessShortCode string `json:"BusinessShortCode"`
	Password          string `json:"Password"`
	Timestamp         string `json:"Timestamp"`
	CheckoutRequestID string `json:"CheckoutRequestID"`
}

// stkQueryResponseDTO is the status query response. ResultCode "0" is a
// completed charge; any other code is a terminal failure. A query made
// before the payer acts comes back as an errorDTO with a "pending" code
// instead.
type stkQueryResponseDTO struct {
	ResponseCode      string `json:"ResponseCode"`
	MerchantRequestID string `json:"MerchantRequestID"`
	CheckoutRequestID string `json:"CheckoutRequestID"`
	ResultCode        string `json:"ResultCode"`
	ResultDesc        string `json:"ResultDesc"`
}

// errorDTO is the provider's error envelope.
type errorDTO struct {
	RequestID    string `json:"requestId"`
	ErrorCode    string `json:"errorCode"`
	ErrorMessage string `json:"errorMessage"`
}

func (e *errorDTO) Error() string {
	return fmt.Sprintf("gateway error %s: %s", e.ErrorCode, e.ErrorMessage)
}

// The provider reports "results not yet available" for in-flight charges.
const errorCodePending = "500.001.1001"
