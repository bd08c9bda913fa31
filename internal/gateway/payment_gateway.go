package gateway

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"checkout-service/internal/models"
	"checkout-service/internal/util"

	"go.uber.org/zap"
)

// HTTPPaymentGateway talks to the external payment provider over REST.
type HTTPPaymentGateway struct {
	baseURL string
	apiKey  string
	client  *http.Client
	logger  *zap.Logger
}

// NewHTTPPaymentGateway creates a payment gateway client
func NewHTTPPaymentGateway(baseURL, apiKey string, timeout time.Duration) *HTTPPaymentGateway {
	return &HTTPPaymentGateway{
		baseURL: baseURL,
		apiKey:  apiKey,
		client:  &http.Client{Timeout: timeout},
		logger:  util.GetLogger(),
	}
}

type initiateRequest struct {
	OrderID int64  `json:"order_id"`
	Method  string `json:"method"`
	Amount  int64  `json:"amount"`
}

type paymentResponse struct {
	ID        int64  `json:"id"`
	OrderID   int64  `json:"order_id"`
	Method    string `json:"method"`
	Status    string `json:"status"`
	Amount    int64  `json:"amount"`
	Reference string `json:"reference"`
	QRPayload string `json:"qr_payload"`
}

// Initiate asks the provider to create a payment for the order. For bank
// transfers the response carries the transfer reference and QR payload.
func (g *HTTPPaymentGateway) Initiate(ctx context.Context, orderID int64, method string, amount int64) (*models.Payment, error) {
	ctx, span := util.StartSpan(ctx, "HTTPPaymentGateway.Initiate")
	defer span.End()

	start := time.Now()
	defer func() {
		util.GatewayRequestLatency.WithLabelValues("payment", "initiate").Observe(time.Since(start).Seconds())
	}()

	body, err := json.Marshal(initiateRequest{OrderID: orderID, Method: method, Amount: amount})
	if err != nil {
		return nil, &PaymentInitiationError{OrderID: orderID, Err: err}
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, g.baseURL+"/v1/payments", bytes.NewReader(body))
	if err != nil {
		return nil, &PaymentInitiationError{OrderID: orderID, Err: err}
	}
	g.setHeaders(req)

	resp, err := g.client.Do(req)
	if err != nil {
		return nil, &PaymentInitiationError{OrderID: orderID, Err: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusCreated && resp.StatusCode != http.StatusOK {
		return nil, &PaymentInitiationError{OrderID: orderID, Err: fmt.Errorf("provider returned status %d", resp.StatusCode)}
	}

	var pr paymentResponse
	if err := json.NewDecoder(resp.Body).Decode(&pr); err != nil {
		return nil, &PaymentInitiationError{OrderID: orderID, Err: err}
	}

	g.logger.Info("Payment initiated",
		zap.Int64("order_id", orderID),
		zap.Int64("payment_id", pr.ID),
		zap.String("reference", pr.Reference))

	return pr.toModel(), nil
}

// GetByOrder looks up the payment for an order. Network failures and 5xx
// responses map to TransportError; a 404 maps to NotFoundError.
func (g *HTTPPaymentGateway) GetByOrder(ctx context.Context, orderID int64) (*models.Payment, error) {
	ctx, span := util.StartSpan(ctx, "HTTPPaymentGateway.GetByOrder")
	defer span.End()

	start := time.Now()
	defer func() {
		util.PaymentLookupLatency.Observe(time.Since(start).Seconds())
	}()

	url := fmt.Sprintf("%s/v1/payments/by-order/%d", g.baseURL, orderID)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, &TransportError{Err: err}
	}
	g.setHeaders(req)

	resp, err := g.client.Do(req)
	if err != nil {
		return nil, &TransportError{Err: err}
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusNotFound:
		return nil, &NotFoundError{OrderID: orderID}
	case resp.StatusCode != http.StatusOK:
		return nil, &TransportError{Err: fmt.Errorf("provider returned status %d", resp.StatusCode)}
	}

	var pr paymentResponse
	if err := json.NewDecoder(resp.Body).Decode(&pr); err != nil {
		return nil, &TransportError{Err: err}
	}

	return pr.toModel(), nil
}

func (g *HTTPPaymentGateway) setHeaders(req *http.Request) {
	req.Header.Set("Content-Type", "application/json")
	if g.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+g.apiKey)
	}
}

func (pr *paymentResponse) toModel() *models.Payment {
	return &models.Payment{
		ID:        pr.ID,
		OrderID:   pr.OrderID,
		Method:    pr.Method,
		Status:    pr.Status,
		Amount:    pr.Amount,
		Reference: pr.Reference,
		QRPayload: pr.QRPayload,
	}
}
