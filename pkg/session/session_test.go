package session

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/payflow-hq/payflow/pkg/models"
	"github.com/payflow-hq/payflow/pkg/payerr"
)

// mockProviderClient bundles the per-component mocks into a full
// ProviderClient implementation
type mockProviderClient struct {
	*mockRateClient
	*mockCollectionClient
	*mockResolverClient
	*mockPayoutClient
}

// mockBankLookup is a static bank directory
type mockBankLookup map[string]string

func (m mockBankLookup) Lookup(bankCode string) (models.Bank, bool) {
	name, ok := m[bankCode]
	return models.Bank{BankCode: bankCode, BankName: name}, ok
}

func newMockProviderClient() *mockProviderClient {
	return &mockProviderClient{
		mockRateClient: &mockRateClient{destinationAmount: 0.62, providerName: "acme-fx"},
		mockCollectionClient: &mockCollectionClient{account: models.CollectionAccount{
			AccountName:   "PayFlow Collections",
			AccountNumber: "9876543210",
			BankName:      "Prime Bank",
			Reference:     "PF-REF-1",
		}},
		mockResolverClient: &mockResolverClient{names: map[string]string{"0123456789": "ADA OBI"}},
		mockPayoutClient:   &mockPayoutClient{reference: "PROV-777"},
	}
}

func defaultOptions() Options {
	return Options{
		SessionTimeout:       time.Minute,
		SessionWarnThreshold: 10 * time.Second,
		QuoteValidity:        time.Minute,
		QuoteWarnThreshold:   10 * time.Second,
		DebounceSettle:       20 * time.Millisecond,
		CheckInterval:        10 * time.Millisecond,
		MinAmount:            100,
		AccountNumberLen:     10,
		Environment:          "sandbox",
	}
}

func newTestSession(t *testing.T, client *mockProviderClient, opts Options) *Session {
	t.Helper()
	banks := mockBankLookup{"044": "Access Bank", "058": "GTBank"}
	s := New(client, banks, opts, nil)
	s.Start()
	t.Cleanup(s.Stop)
	return s
}

func TestSessionHappyPath(t *testing.T) {
	client := newMockProviderClient()
	s := newTestSession(t, client, defaultOptions())

	require.NoError(t, s.SetAmount(1000))
	require.NoError(t, s.SetCurrencies("NGN", "USD"))
	require.NoError(t, s.SetDestinationCountry("US"))
	require.NoError(t, s.SetTransferDetails("FAMILY_SUPPORT", "salary"))

	quote, err := s.CalculateQuote()
	require.NoError(t, err)
	assert.InEpsilon(t, 1000.0/0.62, quote.Rate, 1e-9)

	_, err = s.Advance() // quoting -> collecting_funds
	require.NoError(t, err)
	_, err = s.Advance() // collecting_funds -> verifying
	require.NoError(t, err)

	snap := s.Snapshot()
	require.NotNil(t, snap.CollectionAccount)
	assert.Equal(t, "9876543210", snap.CollectionAccount.AccountNumber)

	require.NoError(t, s.ConfirmDeposit())
	_, err = s.Advance() // verifying -> resolving_recipient
	require.NoError(t, err)

	require.NoError(t, s.RecipientFieldChange("044", "0123456789"))
	require.Eventually(t, func() bool {
		return s.Snapshot().Recipient.ResolvedAccountName == "ADA OBI"
	}, time.Second, 5*time.Millisecond)
	assert.Equal(t, "Access Bank", s.Snapshot().Recipient.BankName)

	_, err = s.Advance() // resolving_recipient -> submitting
	require.NoError(t, err)

	submission, err := s.Submit()
	require.NoError(t, err)
	assert.Equal(t, models.SubmissionSucceeded, submission.Status)
	assert.Equal(t, "PROV-777", submission.ProviderReference)

	// A successful payout tears down all payment state
	snap = s.Snapshot()
	assert.Equal(t, "done", snap.Stage)
	assert.Nil(t, snap.Quote)
	assert.Nil(t, snap.CollectionAccount)
	assert.Empty(t, snap.Recipient.BankCode)
	assert.Nil(t, snap.Submission.Payload)
}

func TestSessionInputChangeInvalidatesQuote(t *testing.T) {
	client := newMockProviderClient()
	s := newTestSession(t, client, defaultOptions())

	require.NoError(t, s.SetAmount(1000))
	require.NoError(t, s.SetCurrencies("NGN", "USD"))

	_, err := s.CalculateQuote()
	require.NoError(t, err)
	_, err = s.Advance()
	require.NoError(t, err)
	_, err = s.Advance()
	require.NoError(t, err)
	require.NotNil(t, s.Snapshot().CollectionAccount)

	// Changing the amount discards the quote and everything built on it
	require.NoError(t, s.SetAmount(2000))
	snap := s.Snapshot()
	assert.Equal(t, "quoting", snap.Stage)
	assert.Nil(t, snap.Quote)
	assert.Nil(t, snap.CollectionAccount)

	// Re-setting the same value is a no-op
	require.NoError(t, s.SetAmount(2000))
	assert.Equal(t, "quoting", s.Snapshot().Stage)
}

func TestSessionAmountChangeAllowsReresolution(t *testing.T) {
	client := newMockProviderClient()
	s := newTestSession(t, client, defaultOptions())

	walkToRecipient := func() {
		_, err := s.CalculateQuote()
		require.NoError(t, err)
		_, err = s.Advance()
		require.NoError(t, err)
		_, err = s.Advance()
		require.NoError(t, err)
		require.NoError(t, s.ConfirmDeposit())
		_, err = s.Advance()
		require.NoError(t, err)
	}

	require.NoError(t, s.SetAmount(1000))
	require.NoError(t, s.SetCurrencies("NGN", "USD"))
	walkToRecipient()

	require.NoError(t, s.RecipientFieldChange("044", "0123456789"))
	require.Eventually(t, func() bool {
		return s.Snapshot().Recipient.ResolvedAccountName == "ADA OBI"
	}, time.Second, 5*time.Millisecond)

	// An amount edit resets the pipeline and clears the recipient
	require.NoError(t, s.SetAmount(2000))
	assert.Empty(t, s.Snapshot().Recipient.AccountNumber)

	// Re-entering the same recipient after the reset must resolve again
	walkToRecipient()
	require.NoError(t, s.RecipientFieldChange("044", "0123456789"))
	require.Eventually(t, func() bool {
		return s.Snapshot().Recipient.ResolvedAccountName == "ADA OBI"
	}, time.Second, 5*time.Millisecond)
	assert.Equal(t, 2, client.mockResolverClient.callCount())
}

func TestSessionQuoteExpiryCascades(t *testing.T) {
	client := newMockProviderClient()
	opts := defaultOptions()
	opts.QuoteValidity = 150 * time.Millisecond
	opts.QuoteWarnThreshold = 50 * time.Millisecond
	s := newTestSession(t, client, opts)

	require.NoError(t, s.SetAmount(1000))
	require.NoError(t, s.SetCurrencies("NGN", "USD"))

	_, err := s.CalculateQuote()
	require.NoError(t, err)
	_, err = s.Advance()
	require.NoError(t, err)
	_, err = s.Advance()
	require.NoError(t, err)
	require.NotNil(t, s.Snapshot().CollectionAccount)

	// Once the validity window passes, no downstream state survives
	require.Eventually(t, func() bool {
		return s.Snapshot().QuoteState == "expired"
	}, time.Second, 5*time.Millisecond)

	snap := s.Snapshot()
	assert.Equal(t, "quoting", snap.Stage)
	assert.Nil(t, snap.Quote)
	assert.Nil(t, snap.CollectionAccount)

	// Forward progress is blocked until a fresh quote exists
	_, err = s.Advance()
	require.Error(t, err)
	assert.True(t, payerr.IsKind(err, payerr.KindExpired))
}

func TestSessionInactivityExpiry(t *testing.T) {
	client := newMockProviderClient()
	opts := defaultOptions()
	opts.SessionTimeout = 100 * time.Millisecond
	opts.SessionWarnThreshold = 30 * time.Millisecond
	s := newTestSession(t, client, opts)

	require.NoError(t, s.SetAmount(1000))
	require.NoError(t, s.SetCurrencies("NGN", "USD"))
	_, err := s.CalculateQuote()
	require.NoError(t, err)

	require.Eventually(t, s.Expired, time.Second, 5*time.Millisecond)

	snap := s.Snapshot()
	assert.True(t, snap.Expired)
	assert.Equal(t, "quoting", snap.Stage)
	assert.Nil(t, snap.Quote)

	// Every user operation is rejected after expiry
	err = s.SetAmount(500)
	require.Error(t, err)
	assert.True(t, payerr.IsKind(err, payerr.KindExpired))
	_, err = s.CalculateQuote()
	require.Error(t, err)
	_, err = s.Submit()
	require.Error(t, err)
}

func TestSessionActivityKeepsAlive(t *testing.T) {
	client := newMockProviderClient()
	opts := defaultOptions()
	opts.SessionTimeout = 100 * time.Millisecond
	opts.SessionWarnThreshold = 30 * time.Millisecond
	s := newTestSession(t, client, opts)

	// Interactions just before the deadline keep the session alive
	for i := 0; i < 6; i++ {
		time.Sleep(60 * time.Millisecond)
		s.RecordActivity()
	}
	assert.False(t, s.Expired())

	// Silence expires it
	require.Eventually(t, s.Expired, time.Second, 5*time.Millisecond)
}

func TestSessionSubmitGuards(t *testing.T) {
	client := newMockProviderClient()
	s := newTestSession(t, client, defaultOptions())

	require.NoError(t, s.SetAmount(1000))
	require.NoError(t, s.SetCurrencies("NGN", "USD"))
	_, err := s.CalculateQuote()
	require.NoError(t, err)

	// Submission is only accepted at the submitting stage
	_, err = s.Submit()
	require.Error(t, err)
	assert.True(t, payerr.IsKind(err, payerr.KindValidationFailed))
	assert.Equal(t, 0, client.mockPayoutClient.callCount())
}

func TestSessionCancel(t *testing.T) {
	client := newMockProviderClient()
	s := newTestSession(t, client, defaultOptions())

	require.NoError(t, s.SetAmount(1000))
	require.NoError(t, s.SetCurrencies("NGN", "USD"))
	_, err := s.CalculateQuote()
	require.NoError(t, err)
	_, err = s.Advance()
	require.NoError(t, err)

	require.NoError(t, s.Cancel())

	snap := s.Snapshot()
	assert.Equal(t, "quoting", snap.Stage)
	assert.Nil(t, snap.Quote)
	assert.Nil(t, snap.CollectionAccount)
}

func TestManager(t *testing.T) {
	client := newMockProviderClient()
	banks := mockBankLookup{}
	opts := defaultOptions()
	manager := NewManager(client, banks, opts, nil)

	s1 := manager.Create()
	s2 := manager.Create()
	assert.Equal(t, 2, manager.Count())

	got, err := manager.Get(s1.ID)
	require.NoError(t, err)
	assert.Same(t, s1, got)

	manager.Close(s1.ID)
	assert.Equal(t, 1, manager.Count())
	_, err = manager.Get(s1.ID)
	require.Error(t, err)

	manager.CloseAll()
	assert.Equal(t, 0, manager.Count())
	_, err = manager.Get(s2.ID)
	require.Error(t, err)
}

func TestManagerReap(t *testing.T) {
	client := newMockProviderClient()
	opts := defaultOptions()
	opts.SessionTimeout = 30 * time.Millisecond
	opts.SessionWarnThreshold = 10 * time.Millisecond
	manager := NewManager(client, mockBankLookup{}, opts, nil)
	defer manager.CloseAll()

	s := manager.Create()
	require.Eventually(t, s.Expired, time.Second, 5*time.Millisecond)

	assert.Equal(t, 1, manager.Reap())
	assert.Equal(t, 0, manager.Count())
}
