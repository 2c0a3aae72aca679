package health

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/payflow-hq/payflow/pkg/auth"
	"github.com/payflow-hq/payflow/pkg/circuitbreaker"
	"github.com/payflow-hq/payflow/pkg/models"
	"github.com/payflow-hq/payflow/pkg/provider"
	"github.com/payflow-hq/payflow/pkg/session"
)

// stubProvider satisfies session.ProviderClient with fixed answers.
type stubProvider struct{}

func (stubProvider) GetExchangeRate(_, _ string, _ float64) (*provider.RateQuote, error) {
	return &provider.RateQuote{DestinationAmount: 0.62}, nil
}

func (stubProvider) GetTransferFee(_ float64) (*provider.TransferFee, error) {
	return &provider.TransferFee{}, nil
}

func (stubProvider) GetCollectionAccount(_ float64) (*models.CollectionAccount, error) {
	return &models.CollectionAccount{}, nil
}

func (stubProvider) ResolveAccount(_, _ string) (string, error) {
	return "", nil
}

func (stubProvider) InitiateTransferPayout(_ models.TransferPayload) (*provider.PayoutReceipt, error) {
	return &provider.PayoutReceipt{}, nil
}

type stubBanks struct{}

func (stubBanks) Lookup(_ string) (models.Bank, bool) { return models.Bank{}, false }

func newTestManager(t *testing.T) *session.Manager {
	t.Helper()
	manager := session.NewManager(stubProvider{}, stubBanks{}, session.Options{
		SessionTimeout:       time.Minute,
		SessionWarnThreshold: 10 * time.Second,
		QuoteValidity:        time.Minute,
		QuoteWarnThreshold:   10 * time.Second,
		MinAmount:            100,
		AccountNumberLen:     10,
	}, nil)
	t.Cleanup(manager.CloseAll)
	return manager
}

func TestHealthAndStatus(t *testing.T) {
	manager := newTestManager(t)
	manager.Create()
	breaker := circuitbreaker.NewCircuitBreaker(true, 1, time.Minute, time.Minute, nil)
	handler := NewServer("0", manager, breaker, nil, nil).Handler()

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/health", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "OK", rec.Body.String())

	breaker.RecordFailure()
	rec = httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/status", nil))
	require.Equal(t, http.StatusOK, rec.Code)

	var status map[string]interface{}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &status))
	assert.Equal(t, float64(1), status["active_sessions"])
	assert.Equal(t, "open", status["circuit"])
}

func TestCircuitResetEndpoint(t *testing.T) {
	breaker := circuitbreaker.NewCircuitBreaker(true, 1, time.Minute, time.Minute, nil)
	breaker.RecordFailure()
	require.True(t, breaker.IsOpen())
	handler := NewServer("0", newTestManager(t), breaker, nil, nil).Handler()

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/circuit/reset", nil))
	assert.Equal(t, http.StatusMethodNotAllowed, rec.Code)
	assert.True(t, breaker.IsOpen())

	rec = httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/circuit/reset", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.False(t, breaker.IsOpen())
}

func TestBankRefreshEndpoint(t *testing.T) {
	var fetches atomic.Int64
	bankServer := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		fetches.Add(1)
		json.NewEncoder(w).Encode([]models.Bank{{BankCode: "044", BankName: "Access Bank"}})
	}))
	defer bankServer.Close()

	client := provider.New(bankServer.URL, bankServer.URL, auth.StaticTokenProvider("test-token"), nil, nil)
	directory := provider.NewBankDirectory(client, time.Hour)
	handler := NewServer("0", newTestManager(t), nil, directory, nil).Handler()

	_, err := directory.Banks()
	require.NoError(t, err)
	_, err = directory.Banks()
	require.NoError(t, err)
	require.Equal(t, int64(1), fetches.Load())

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/banks/refresh", nil))
	require.Equal(t, http.StatusOK, rec.Code)

	// The next lookup refetches the directory
	_, err = directory.Banks()
	require.NoError(t, err)
	assert.Equal(t, int64(2), fetches.Load())
}
