package gateway

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/angelmondragon/orderflow-backend/pkg/config"
	pkgerrors "github.com/angelmondragon/orderflow-backend/pkg/errors"
)

const (
	sandboxSnapURL          = "https://app.sandbox.midtrans.com/snap/v1"
	productionSnapURL       = "https://app.midtrans.com/snap/v1"
	defaultTimeout          = 15 * time.Second
	responseBodyLimit int64 = 4096
	maxItemNameLen          = 50
)

var errServerKeyRequired = errors.New("gateway server key is required")

// Charger creates gateway transactions. Payment orchestration depends on this
// rather than on Client so tests can stub the gateway.
type Charger interface {
	CreateTransaction(ctx context.Context, req ChargeRequest) (*ChargeResponse, error)
}

// Client talks to the Snap transactions API.
type Client struct {
	httpClient *http.Client
	baseURL    string
	serverKey  string
	finishURL  string
}

// Option configures optional client behavior.
type Option func(*Client)

// WithHTTPClient overrides the default HTTP client.
func WithHTTPClient(client *http.Client) Option {
	return func(c *Client) {
		if client != nil {
			c.httpClient = client
		}
	}
}

// WithBaseURL overrides the Snap base URL.
func WithBaseURL(baseURL string) Option {
	return func(c *Client) {
		if trimmed := strings.TrimSpace(baseURL); trimmed != "" {
			c.baseURL = trimmed
		}
	}
}

// NewClient builds the gateway client from configuration.
func NewClient(cfg config.GatewayConfig, opts ...Option) (*Client, error) {
	key := strings.TrimSpace(cfg.ServerKey)
	if key == "" {
		return nil, errServerKeyRequired
	}

	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = defaultTimeout
	}
	baseURL := strings.TrimSpace(cfg.SnapURL)
	if baseURL == "" {
		baseURL = sandboxSnapURL
		if cfg.IsProduction {
			baseURL = productionSnapURL
		}
	}

	client := &Client{
		httpClient: &http.Client{Timeout: timeout},
		baseURL:    baseURL,
		serverKey:  key,
		finishURL:  strings.TrimSpace(cfg.FinishURL),
	}
	for _, opt := range opts {
		if opt != nil {
			opt(client)
		}
	}
	return client, nil
}

// CustomerDetails is forwarded to the hosted payment page.
type CustomerDetails struct {
	FirstName string `json:"first_name,omitempty"`
	Email     string `json:"email,omitempty"`
	Phone     string `json:"phone,omitempty"`
}

// ChargeRequest describes one payment attempt.
type ChargeRequest struct {
	TransactionID string
	Amount        int64
	ItemName      string
	Customer      CustomerDetails
}

// ChargeResponse carries what the client needs to open the payment page.
type ChargeResponse struct {
	Token       string `json:"token"`
	RedirectURL string `json:"redirect_url"`
}

type transactionDetails struct {
	OrderID     string      `json:"order_id"`
	GrossAmount json.Number `json:"gross_amount"`
}

type itemDetail struct {
	ID       string      `json:"id"`
	Price    json.Number `json:"price"`
	Quantity int         `json:"quantity"`
	Name     string      `json:"name"`
}

type snapRequest struct {
	TransactionDetails transactionDetails `json:"transaction_details"`
	ItemDetails        []itemDetail       `json:"item_details"`
	CustomerDetails    CustomerDetails    `json:"customer_details"`
	Callbacks          *snapCallbacks     `json:"callbacks,omitempty"`
}

type snapCallbacks struct {
	Finish string `json:"finish"`
}

type snapError struct {
	ErrorMessages []string `json:"error_messages"`
}

// CreateTransaction registers the attempt with the gateway. The request carries
// a single synthetic item whose price equals the charged amount, so the item
// sum always matches gross_amount.
func (c *Client) CreateTransaction(ctx context.Context, req ChargeRequest) (*ChargeResponse, error) {
	if c == nil {
		return nil, pkgerrors.New(pkgerrors.CodeGateway, "gateway client not configured")
	}
	if strings.TrimSpace(req.TransactionID) == "" {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "transaction id is required")
	}
	if req.Amount <= 0 {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "charge amount must be positive")
	}

	amount := json.Number(decimal.NewFromInt(req.Amount).String())
	body := snapRequest{
		TransactionDetails: transactionDetails{
			OrderID:     req.TransactionID,
			GrossAmount: amount,
		},
		ItemDetails: []itemDetail{{
			ID:       req.TransactionID,
			Price:    amount,
			Quantity: 1,
			Name:     itemName(req.ItemName, req.TransactionID),
		}},
		CustomerDetails: req.Customer,
	}
	if c.finishURL != "" {
		body.Callbacks = &snapCallbacks{Finish: c.finishURL}
	}

	payload, err := json.Marshal(body)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "marshal charge request")
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.buildURL("transactions"), bytes.NewReader(payload))
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeGateway, err, "build charge request")
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Accept", "application/json")
	httpReq.SetBasicAuth(c.serverKey, "")

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeGateway, err, "execute charge request")
	}
	defer func() { _ = resp.Body.Close() }()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, responseBodyLimit))
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeGateway, err, "read charge response")
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		var apiErr snapError
		_ = json.Unmarshal(raw, &apiErr)
		messages := apiErr.ErrorMessages
		if len(messages) == 0 {
			messages = []string{strings.TrimSpace(string(raw))}
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeGateway,
			fmt.Errorf("status %d: %s", resp.StatusCode, strings.Join(messages, "; ")),
			"charge request rejected").
			WithDetails(map[string]any{"gatewayStatus": resp.StatusCode, "messages": messages})
	}

	var out ChargeResponse
	if err := json.Unmarshal(raw, &out); err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeGateway, err, "decode charge response")
	}
	if out.Token == "" {
		return nil, pkgerrors.New(pkgerrors.CodeGateway, "gateway returned no token")
	}
	return &out, nil
}

// ServerKey exposes the key notifications are signed with.
func (c *Client) ServerKey() string {
	if c == nil {
		return ""
	}
	return c.serverKey
}

func (c *Client) buildURL(path string) string {
	return fmt.Sprintf("%s/%s", strings.TrimRight(c.baseURL, "/"), strings.TrimLeft(path, "/"))
}

func itemName(name, fallback string) string {
	name = strings.TrimSpace(name)
	if name == "" {
		name = "Order " + fallback
	}
	if len(name) > maxItemNameLen {
		name = name[:maxItemNameLen]
	}
	return name
}
