// Package provider implements the HTTP clients for the external
// collaborators: the rate/fee service, the collection-account service,
// the bank directory with account resolution, and the payout service.
package provider

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/payflow-hq/payflow/pkg/auth"
	"github.com/payflow-hq/payflow/pkg/circuitbreaker"
	"github.com/payflow-hq/payflow/pkg/logger"
	"github.com/payflow-hq/payflow/pkg/metrics"
	"github.com/payflow-hq/payflow/pkg/models"
	"github.com/payflow-hq/payflow/pkg/payerr"
)

// RateQuote is the rate service's answer for a conversion request.
type RateQuote struct {
	DestinationAmount float64 `json:"amount"`
	ProviderName      string  `json:"provider_name"`
}

// TransferFee is the fee service's answer for a gross amount.
type TransferFee struct {
	Fee float64 `json:"fee"`
	VAT float64 `json:"vat"`
}

// PayoutReceipt is returned by the payout service on success.
type PayoutReceipt struct {
	ProviderReference string `json:"provider_reference"`
}

// errorBody is the structured error payload providers return on non-2xx.
type errorBody struct {
	Message string            `json:"message"`
	Errors  map[string]string `json:"errors,omitempty"`
}

// Client talks to the payment provider APIs.
type Client struct {
	endpoint       string
	payoutEndpoint string
	httpClient     *http.Client
	tokens         auth.TokenProvider
	breaker        *circuitbreaker.CircuitBreaker
	logger         logger.Logger
}

// New creates a new provider client.
func New(endpoint, payoutEndpoint string, tokens auth.TokenProvider, breaker *circuitbreaker.CircuitBreaker, log logger.Logger) *Client {
	if log == nil {
		log = &logger.EmptyLogger{}
	}
	return &Client{
		endpoint:       endpoint,
		payoutEndpoint: payoutEndpoint,
		httpClient:     createHTTPClient(),
		tokens:         tokens,
		breaker:        breaker,
		logger:         log,
	}
}

// GetExchangeRate asks the rate service how much destination currency the
// given source amount buys.
func (c *Client) GetExchangeRate(source, destination string, amount float64) (*RateQuote, error) {
	query := url.Values{}
	query.Set("source", source)
	query.Set("destination", destination)
	query.Set("amount", formatAmount(amount))
	var quote RateQuote
	if err := c.doJSON("get_exchange_rate", http.MethodGet, c.endpoint+"/api/v1/rates?"+query.Encode(), nil, &quote); err != nil {
		return nil, err
	}
	return &quote, nil
}

// GetTransferFee asks the fee service for the fee and VAT on a gross amount.
func (c *Client) GetTransferFee(amount float64) (*TransferFee, error) {
	query := url.Values{}
	query.Set("amount", formatAmount(amount))
	var fee TransferFee
	if err := c.doJSON("get_transfer_fee", http.MethodGet, c.endpoint+"/api/v1/fees?"+query.Encode(), nil, &fee); err != nil {
		return nil, err
	}
	return &fee, nil
}

// GetCollectionAccount requests a deposit account for the gross amount.
func (c *Client) GetCollectionAccount(amount float64) (*models.CollectionAccount, error) {
	url := c.endpoint + "/api/v1/collection-accounts"
	body := map[string]interface{}{"amount": amount}
	var account models.CollectionAccount
	if err := c.doJSON("get_collection_account", http.MethodPost, url, body, &account); err != nil {
		return nil, err
	}
	return &account, nil
}

// GetBankList fetches the payout-side bank directory.
func (c *Client) GetBankList() ([]models.Bank, error) {
	url := c.endpoint + "/api/v1/banks"
	var banks []models.Bank
	if err := c.doJSON("get_bank_list", http.MethodGet, url, nil, &banks); err != nil {
		return nil, err
	}
	return banks, nil
}

// ResolveAccount looks up the account holder name for a bank and account number.
func (c *Client) ResolveAccount(bankCode, accountNumber string) (string, error) {
	target := fmt.Sprintf("%s/api/v1/banks/%s/accounts/%s", c.endpoint, url.PathEscape(bankCode), url.PathEscape(accountNumber))
	var resolved struct {
		AccountName string `json:"account_name"`
	}
	if err := c.doJSON("resolve_account", http.MethodGet, target, nil, &resolved); err != nil {
		return "", err
	}
	return resolved.AccountName, nil
}

// InitiateTransferPayout submits the final payout request.
func (c *Client) InitiateTransferPayout(payload models.TransferPayload) (*PayoutReceipt, error) {
	url := c.payoutEndpoint + "/api/v1/payouts"
	var receipt PayoutReceipt
	if err := c.doJSON("initiate_payout", http.MethodPost, url, payload, &receipt); err != nil {
		return nil, err
	}
	return &receipt, nil
}

// doJSON performs an authenticated request and decodes the JSON response,
// converting every failure into a payerr kind.
func (c *Client) doJSON(operation, method, url string, body interface{}, out interface{}) error {
	if c.breaker != nil && c.breaker.IsOpen() {
		metrics.ProviderErrors.WithLabelValues(operation).Inc()
		return payerr.Provider("provider temporarily unavailable", nil)
	}

	token, err := c.tokens.Token()
	if err != nil {
		return err
	}

	var reqBody io.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		if err != nil {
			return payerr.Provider("failed to encode request", err)
		}
		reqBody = bytes.NewReader(raw)
	}

	req, err := http.NewRequest(method, url, reqBody)
	if err != nil {
		return payerr.Provider("failed to build request", err)
	}
	req.Header.Set("Authorization", "Bearer "+token)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	start := time.Now()
	resp, err := c.httpClient.Do(req)
	metrics.ProviderLatency.WithLabelValues(operation).Observe(time.Since(start).Seconds())
	if err != nil {
		c.recordFailure(operation)
		return payerr.Provider("provider request failed", err)
	}
	defer func(body io.ReadCloser) {
		if err := body.Close(); err != nil {
			c.logger.Error("Failed to close response body: %v", err)
		}
	}(resp.Body)

	bodyBytes, err := io.ReadAll(resp.Body)
	if err != nil {
		c.recordFailure(operation)
		return payerr.Provider("failed to read response body", err)
	}

	if resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden {
		return payerr.AuthRequired("provider rejected credential")
	}

	if resp.StatusCode >= 400 {
		var apiErr errorBody
		if err := json.Unmarshal(bodyBytes, &apiErr); err != nil || apiErr.Message == "" {
			apiErr.Message = fmt.Sprintf("unexpected status code: %d", resp.StatusCode)
		}
		if resp.StatusCode == http.StatusUnprocessableEntity || len(apiErr.Errors) > 0 {
			return payerr.ValidationFailed(apiErr.Message, apiErr.Errors)
		}
		c.recordFailure(operation)
		return payerr.Provider(apiErr.Message, nil)
	}

	if c.breaker != nil {
		c.breaker.RecordSuccess()
	}

	if out == nil {
		return nil
	}
	if err := json.Unmarshal(bodyBytes, out); err != nil {
		return payerr.Provider("failed to decode response", err)
	}
	return nil
}

func formatAmount(amount float64) string {
	return strconv.FormatFloat(amount, 'f', -1, 64)
}

func (c *Client) recordFailure(operation string) {
	metrics.ProviderErrors.WithLabelValues(operation).Inc()
	if c.breaker != nil {
		c.breaker.RecordFailure()
	}
}

// Helper function to create an HTTP client with timeouts
func createHTTPClient() *http.Client {
	return &http.Client{
		Timeout: 10 * time.Second,
		Transport: &http.Transport{
			MaxIdleConns:        100,
			MaxIdleConnsPerHost: 100,
			IdleConnTimeout:     90 * time.Second,
		},
	}
}
