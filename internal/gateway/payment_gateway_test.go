package gateway

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"checkout-service/internal/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestInitiateReturnsReferenceAndQR(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, http.MethodPost, r.Method)
		require.Equal(t, "/v1/payments", r.URL.Path)
		require.Equal(t, "Bearer test-key", r.Header.Get("Authorization"))

		var req initiateRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		assert.Equal(t, int64(42), req.OrderID)
		assert.Equal(t, models.PaymentMethodBankTransfer, req.Method)

		w.WriteHeader(http.StatusCreated)
		json.NewEncoder(w).Encode(paymentResponse{
			ID:        200,
			OrderID:   req.OrderID,
			Method:    req.Method,
			Status:    models.PaymentStatusUnpaid,
			Amount:    req.Amount,
			Reference: "TRX-42",
			QRPayload: "qr-data",
		})
	}))
	defer srv.Close()

	gw := NewHTTPPaymentGateway(srv.URL, "test-key", time.Second)
	payment, err := gw.Initiate(context.Background(), 42, models.PaymentMethodBankTransfer, 2500)
	require.NoError(t, err)

	assert.Equal(t, int64(200), payment.ID)
	assert.Equal(t, "TRX-42", payment.Reference)
	assert.Equal(t, "qr-data", payment.QRPayload)
	assert.Equal(t, models.PaymentStatusUnpaid, payment.Status)
}

func TestInitiateErrorStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
	}))
	defer srv.Close()

	gw := NewHTTPPaymentGateway(srv.URL, "", time.Second)
	_, err := gw.Initiate(context.Background(), 42, models.PaymentMethodBankTransfer, 2500)

	var initErr *PaymentInitiationError
	require.True(t, errors.As(err, &initErr))
	assert.Equal(t, int64(42), initErr.OrderID)
}

func TestGetByOrderReturnsPayment(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/v1/payments/by-order/42", r.URL.Path)
		json.NewEncoder(w).Encode(paymentResponse{
			ID:      200,
			OrderID: 42,
			Status:  models.PaymentStatusPaid,
			Amount:  2500,
		})
	}))
	defer srv.Close()

	gw := NewHTTPPaymentGateway(srv.URL, "", time.Second)
	payment, err := gw.GetByOrder(context.Background(), 42)
	require.NoError(t, err)
	assert.Equal(t, models.PaymentStatusPaid, payment.Status)
}

func TestGetByOrderNotFound(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	}))
	defer srv.Close()

	gw := NewHTTPPaymentGateway(srv.URL, "", time.Second)
	_, err := gw.GetByOrder(context.Background(), 42)

	var notFound *NotFoundError
	require.True(t, errors.As(err, &notFound))
	assert.Equal(t, int64(42), notFound.OrderID)
}

func TestGetByOrderServerErrorIsTransport(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	gw := NewHTTPPaymentGateway(srv.URL, "", time.Second)
	_, err := gw.GetByOrder(context.Background(), 42)

	var transport *TransportError
	assert.True(t, errors.As(err, &transport))
}

func TestGetByOrderConnectionRefusedIsTransport(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	srv.Close()

	gw := NewHTTPPaymentGateway(srv.URL, "", time.Second)
	_, err := gw.GetByOrder(context.Background(), 42)

	var transport *TransportError
	assert.True(t, errors.As(err, &transport))
}
