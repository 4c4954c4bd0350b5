package services

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"math"
	"net/http"
	"strconv"
	"sync"
	"time"

	"chamapesa/internal/config"

	"go.uber.org/zap"
)

// tokenSkew is how early a cached token is refreshed, to absorb clock
// skew between us and the rail.
const tokenSkew = 60 * time.Second

// STKPushRequest asks the rail to prompt a payer's device
type STKPushRequest struct {
	PhoneNumber      string
	Amount           float64
	AccountReference string
	Description      string
}

// STKPushResponse is the rail's synchronous answer to a push request.
// Success only means the prompt reached the device, not that payment
// completed.
type STKPushResponse struct {
	MerchantRequestID   string `json:"MerchantRequestID"`
	CheckoutRequestID   string `json:"CheckoutRequestID"`
	ResponseCode        string `json:"ResponseCode"`
	ResponseDescription string `json:"ResponseDescription"`
	CustomerMessage     string `json:"CustomerMessage"`
}

// STKQueryResponse is the rail's raw answer to a push status poll
type STKQueryResponse struct {
	ResponseCode        string `json:"ResponseCode"`
	ResponseDescription string `json:"ResponseDescription"`
	ResultCode          string `json:"ResultCode"`
	ResultDesc          string `json:"ResultDesc"`
}

// B2CRequest sends funds out to a member's phone-linked account
type B2CRequest struct {
	PhoneNumber string
	Amount      float64
	Remarks     string
}

// B2CResponse is the rail's synchronous answer to a disbursement request
type B2CResponse struct {
	ConversationID           string `json:"ConversationID"`
	OriginatorConversationID string `json:"OriginatorConversationID"`
	ResponseCode             string `json:"ResponseCode"`
	ResponseDescription      string `json:"ResponseDescription"`
}

// MpesaClient is the gateway surface consumed by the loan and
// contribution services
type MpesaClient interface {
	InitiateSTKPush(ctx context.Context, req STKPushRequest) (*STKPushResponse, error)
	QuerySTKStatus(ctx context.Context, checkoutRequestID string) (*STKQueryResponse, error)
	InitiateDisbursement(ctx context.Context, req B2CRequest) (*B2CResponse, error)
}

// MpesaService talks to the Daraja API. It caches the OAuth bearer token
// in-process with its own expiry. Token fields are mutex-guarded for race
// freedom, but the refresh fetch runs outside the lock: two goroutines
// seeing an expired token may both fetch, the second write wins, and both
// tokens are valid. That duplicate fetch is accepted instead of
// serializing every request behind a refresh lock.
type MpesaService struct {
	cfg        config.MpesaConfig
	httpClient *http.Client
	logger     *zap.Logger
	now        func() time.Time

	mu             sync.Mutex
	token          string
	tokenExpiresAt time.Time
}

// NewMpesaService creates a new M-Pesa gateway client
func NewMpesaService(cfg config.MpesaConfig, logger *zap.Logger) *MpesaService {
	return &MpesaService{
		cfg:        cfg,
		httpClient: &http.Client{Timeout: 10 * time.Second},
		logger:     logger,
		now:        time.Now,
	}
}

type accessTokenResponse struct {
	AccessToken string `json:"access_token"`
	ExpiresIn   string `json:"expires_in"`
}

// getAccessToken returns the cached bearer token, fetching a fresh one
// when the cached token is within tokenSkew of expiry
func (s *MpesaService) getAccessToken(ctx context.Context) (string, error) {
	s.mu.Lock()
	if s.token != "" && s.now().Before(s.tokenExpiresAt.Add(-tokenSkew)) {
		token := s.token
		s.mu.Unlock()
		return token, nil
	}
	s.mu.Unlock()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet,
		s.cfg.BaseURL+"/oauth/v1/generate?grant_type=client_credentials", nil)
	if err != nil {
		return "", err
	}
	req.SetBasicAuth(s.cfg.ConsumerKey, s.cfg.ConsumerSecret)

	resp, err := s.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("mpesa token request failed: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", err
	}
	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("mpesa token error: %s", string(body))
	}

	var tokenResp accessTokenResponse
	if err := json.Unmarshal(body, &tokenResp); err != nil {
		return "", fmt.Errorf("mpesa token decode failed: %w", err)
	}

	expiresIn, err := strconv.Atoi(tokenResp.ExpiresIn)
	if err != nil || expiresIn <= 0 {
		expiresIn = 3600
	}

	s.mu.Lock()
	s.token = tokenResp.AccessToken
	s.tokenExpiresAt = s.now().Add(time.Duration(expiresIn) * time.Second)
	s.mu.Unlock()

	return tokenResp.AccessToken, nil
}

// stkPassword builds the timestamped password for STK requests
func (s *MpesaService) stkPassword(ts string) string {
	return base64.StdEncoding.EncodeToString([]byte(s.cfg.ShortCode + s.cfg.Passkey + ts))
}

// postJSON submits an authorized JSON request and returns the raw body.
// Non-2xx answers come back as errors carrying the rail's raw payload.
func (s *MpesaService) postJSON(ctx context.Context, path string, payload interface{}) ([]byte, error) {
	token, err := s.getAccessToken(ctx)
	if err != nil {
		return nil, err
	}

	data, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.cfg.BaseURL+path, bytes.NewReader(data))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+token)

	resp, err := s.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("mpesa request failed: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, err
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("mpesa error [%s]: %s", path, string(body))
	}
	return body, nil
}

// InitiateSTKPush prompts the payer's device to authorize a payment
func (s *MpesaService) InitiateSTKPush(ctx context.Context, req STKPushRequest) (*STKPushResponse, error) {
	ts := s.now().Format("20060102150405")
	payload := map[string]interface{}{
		"BusinessShortCode": s.cfg.ShortCode,
		"Password":          s.stkPassword(ts),
		"Timestamp":         ts,
		"TransactionType":   "CustomerPayBillOnline",
		"Amount":            int(math.Round(req.Amount)),
		"PartyA":            req.PhoneNumber,
		"PartyB":            s.cfg.ShortCode,
		"PhoneNumber":       req.PhoneNumber,
		"CallBackURL":       s.cfg.CallbackBaseURL + "/api/v1/payments/callback",
		"AccountReference":  req.AccountReference,
		"TransactionDesc":   req.Description,
	}

	body, err := s.postJSON(ctx, "/mpesa/stkpush/v1/processrequest", payload)
	if err != nil {
		return nil, err
	}

	var pushResp STKPushResponse
	if err := json.Unmarshal(body, &pushResp); err != nil {
		return nil, fmt.Errorf("mpesa stk push decode failed: %w", err)
	}
	if pushResp.ResponseCode != "0" {
		return nil, fmt.Errorf("mpesa stk push rejected: %s", string(body))
	}

	s.logger.Info("stk push accepted",
		zap.String("checkout_request_id", pushResp.CheckoutRequestID),
		zap.String("phone", req.PhoneNumber),
	)
	return &pushResp, nil
}

// QuerySTKStatus polls a push payment's outcome
func (s *MpesaService) QuerySTKStatus(ctx context.Context, checkoutRequestID string) (*STKQueryResponse, error) {
	ts := s.now().Format("20060102150405")
	payload := map[string]interface{}{
		"BusinessShortCode": s.cfg.ShortCode,
		"Password":          s.stkPassword(ts),
		"Timestamp":         ts,
		"CheckoutRequestID": checkoutRequestID,
	}

	body, err := s.postJSON(ctx, "/mpesa/stkpushquery/v1/query", payload)
	if err != nil {
		return nil, err
	}

	var queryResp STKQueryResponse
	if err := json.Unmarshal(body, &queryResp); err != nil {
		return nil, fmt.Errorf("mpesa stk query decode failed: %w", err)
	}
	return &queryResp, nil
}

// InitiateDisbursement sends a B2C payment. Disbursements use the
// initiator/security-credential pair, never the STK passkey.
func (s *MpesaService) InitiateDisbursement(ctx context.Context, req B2CRequest) (*B2CResponse, error) {
	payload := map[string]interface{}{
		"InitiatorName":      s.cfg.InitiatorName,
		"SecurityCredential": s.cfg.SecurityCredential,
		"CommandID":          "BusinessPayment",
		"Amount":             int(math.Round(req.Amount)),
		"PartyA":             s.cfg.B2CShortCode,
		"PartyB":             req.PhoneNumber,
		"Remarks":            req.Remarks,
		"QueueTimeOutURL":    s.cfg.CallbackBaseURL + "/api/v1/payments/b2c/timeout",
		"ResultURL":          s.cfg.CallbackBaseURL + "/api/v1/payments/b2c/result",
		"Occasion":           "loan disbursement",
	}

	body, err := s.postJSON(ctx, "/mpesa/b2c/v1/paymentrequest", payload)
	if err != nil {
		return nil, err
	}

	var b2cResp B2CResponse
	if err := json.Unmarshal(body, &b2cResp); err != nil {
		return nil, fmt.Errorf("mpesa b2c decode failed: %w", err)
	}
	if b2cResp.ResponseCode != "0" {
		return nil, fmt.Errorf("mpesa b2c rejected: %s", string(body))
	}

	s.logger.Info("b2c disbursement accepted",
		zap.String("conversation_id", b2cResp.ConversationID),
		zap.String("phone", req.PhoneNumber),
	)
	return &b2cResp, nil
}
