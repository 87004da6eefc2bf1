// Package flutterwave implements the payment gateway against the Flutterwave
// v3 API.
package flutterwave

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-faster/errors"

	"github.com/baminaj/storefront/internal/domain/payment"
)

// Config holds the gateway settings.
type Config struct {
	BaseURL   string
	SecretKey string
	Timeout   time.Duration
}

var _ payment.Gateway = (*Gateway)(nil)

// Gateway charges customers through Flutterwave.
type Gateway struct {
	cfg    Config
	client *http.Client
}

// New creates a Gateway. The configured timeout bounds every charge call so
// a stalled provider cannot hold a checkout open indefinitely.
func New(cfg Config) *Gateway {
	return &Gateway{
		cfg:    cfg,
		client: &http.Client{Timeout: cfg.Timeout},
	}
}

type chargeRequest struct {
	TxRef    string         `json:"tx_ref"`
	Amount   string         `json:"amount"`
	Currency string         `json:"currency"`
	Customer chargeCustomer `json:"customer"`
}

type chargeCustomer struct {
	Email       string `json:"email"`
	Name        string `json:"name,omitempty"`
	PhoneNumber string `json:"phone_number,omitempty"`
}

type chargeResponse struct {
	Status  string `json:"status"`
	Message string `json:"message"`
	Data    struct {
		ID     int64  `json:"id"`
		TxRef  string `json:"tx_ref"`
		Status string `json:"status"`
	} `json:"data"`
}

// Charge submits the payment and returns the provider's verdict. Provider
// status strings are normalized to payment.Status; anything unrecognized is
// treated as failed rather than successful.
func (g *Gateway) Charge(ctx context.Context, req payment.ChargeRequest) (*payment.ChargeResult, error) {
	ctx, cancel := context.WithTimeout(ctx, g.cfg.Timeout)
	defer cancel()

	body, err := json.Marshal(chargeRequest{
		TxRef:    req.Reference,
		Amount:   req.Amount.StringFixed(2),
		Currency: req.Currency,
		Customer: chargeCustomer{
			Email:       req.Customer.Email,
			Name:        req.Customer.Name,
			PhoneNumber: req.Customer.Phone,
		},
	})
	if err != nil {
		return nil, errors.Wrap(err, "marshal charge request")
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost,
		g.cfg.BaseURL+"/v3/charges", bytes.NewReader(body))
	if err != nil {
		return nil, errors.Wrap(err, "create charge request")
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Authorization", "Bearer "+g.cfg.SecretKey)

	resp, err := g.client.Do(httpReq)
	if err != nil {
		return nil, errors.Wrap(err, "charge request")
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return nil, errors.Wrap(err, "read charge response")
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, errors.Errorf("provider returned status %d: %s", resp.StatusCode, truncate(raw, 256))
	}

	var out chargeResponse
	if err := json.Unmarshal(raw, &out); err != nil {
		return nil, errors.Wrap(err, "decode charge response")
	}
	if !strings.EqualFold(out.Status, "success") {
		return nil, errors.Errorf("provider rejected charge: %s", out.Message)
	}

	return &payment.ChargeResult{
		Status:        normalizeStatus(out.Data.Status),
		TxRef:         out.Data.TxRef,
		TransactionID: strconv.FormatInt(out.Data.ID, 10),
	}, nil
}

func normalizeStatus(s string) payment.Status {
	switch strings.ToLower(s) {
	case "successful":
		return payment.StatusSuccessful
	case "cancelled":
		return payment.StatusCancelled
	default:
		return payment.StatusFailed
	}
}

func truncate(b []byte, n int) string {
	if len(b) <= n {
		return string(b)
	}
	return string(b[:n]) + "..."
}
