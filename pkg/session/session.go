// Package session implements the payment-session state machine: a
// perishable exchange-rate quote, an independent inactivity countdown,
// debounced recipient resolution, a guarded stage pipeline and an
// at-most-once transfer submission gate.
package session

import (
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/payflow-hq/payflow/pkg/logger"
	"github.com/payflow-hq/payflow/pkg/models"
	"github.com/payflow-hq/payflow/pkg/payerr"
)

// ProviderClient bundles the provider operations a session depends on.
type ProviderClient interface {
	RateClient
	CollectionClient
	ResolverClient
	PayoutClient
}

// BankLookup resolves a bank code to a directory entry.
type BankLookup interface {
	Lookup(bankCode string) (models.Bank, bool)
}

// Options configures a session's timing and validation parameters.
type Options struct {
	SessionTimeout       time.Duration
	SessionWarnThreshold time.Duration
	QuoteValidity        time.Duration
	QuoteWarnThreshold   time.Duration
	DebounceSettle       time.Duration
	CheckInterval        time.Duration
	MinAmount            float64
	AccountNumberLen     int
	Environment          string
}

// Session is one user's payment flow. All mutation goes through its
// methods; the embedded components never mutate each other's data
// directly, cross-stage invalidation runs through the sequencer.
type Session struct {
	ID string

	mu                 sync.Mutex
	amount             float64
	sourceCurrency     string
	destCurrency       string
	destCountry        string
	purposeCode        string
	sourceOfFunds      string
	sessionWarnPending bool
	quoteWarnPending   bool

	activity  *ActivityTracker
	quotes    *QuoteManager
	resolver  *Resolver
	sequencer *Sequencer
	gate      *SubmissionGate

	banks       BankLookup
	environment string
	logger      logger.Logger
}

// Snapshot is a read-only view of the full session state.
type Snapshot struct {
	ID                  string                    `json:"id"`
	Stage               string                    `json:"stage"`
	Expired             bool                      `json:"expired"`
	SessionRemainingSec float64                   `json:"session_remaining_seconds"`
	SessionWarning      bool                      `json:"session_warning"`
	QuoteState          string                    `json:"quote_state"`
	QuoteRemainingSec   float64                   `json:"quote_remaining_seconds"`
	QuoteWarning        bool                      `json:"quote_warning"`
	Quote               *models.Quote             `json:"quote,omitempty"`
	CollectionAccount   *models.CollectionAccount `json:"collection_account,omitempty"`
	Recipient           models.RecipientCandidate `json:"recipient"`
	Submission          models.TransferSubmission `json:"submission"`
	Amount              float64                   `json:"amount"`
	SourceCurrency      string                    `json:"source_currency"`
	DestinationCurrency string                    `json:"destination_currency"`
	DestinationCountry  string                    `json:"destination_country"`
}

// New creates and wires a session. Call Start to launch the countdown
// watchers and Stop to tear them down.
func New(client ProviderClient, banks BankLookup, opts Options, log logger.Logger) *Session {
	if log == nil {
		log = &logger.EmptyLogger{}
	}
	if opts.CheckInterval <= 0 {
		opts.CheckInterval = time.Second
	}

	s := &Session{
		ID:          uuid.NewString(),
		banks:       banks,
		environment: opts.Environment,
		logger:      log,
	}

	s.activity = NewActivityTracker(opts.SessionTimeout, opts.SessionWarnThreshold, opts.CheckInterval, log)
	s.quotes = NewQuoteManager(client, opts.QuoteValidity, opts.QuoteWarnThreshold, opts.CheckInterval, opts.MinAmount, log)
	s.resolver = NewResolver(client, opts.DebounceSettle, opts.AccountNumberLen, log)
	s.sequencer = NewSequencer(s.quotes, s.activity, client, log)
	s.gate = NewSubmissionGate(client, log)

	s.activity.OnWarn(func(time.Duration) {
		s.mu.Lock()
		s.sessionWarnPending = true
		s.mu.Unlock()
	})
	s.activity.OnExpire(func() {
		s.quotes.Invalidate()
		s.sequencer.ForceReset("session expired")
		s.resolver.Reset()
		s.gate.Reset()
	})

	s.quotes.OnWarn(func(time.Duration) {
		s.mu.Lock()
		s.quoteWarnPending = true
		s.mu.Unlock()
	})
	s.quotes.OnExpire(func() {
		s.sequencer.ForceReset("rate expired")
		s.resolver.Reset()
		s.gate.Reset()
	})

	s.resolver.OnClear(s.sequencer.ClearResolvedName)
	s.resolver.OnResult(s.sequencer.ApplyResolution)

	s.gate.OnSuccess(func(string) {
		s.sequencer.MarkDone()
		s.sequencer.ClearAll()
		s.quotes.Invalidate()
		s.resolver.Reset()
	})

	return s
}

// Start launches the activity and quote countdown watchers.
func (s *Session) Start() {
	s.activity.Start()
	s.quotes.Start()
}

// Stop halts all watchers and pending timers so no orphaned timer acts
// on stale state after teardown.
func (s *Session) Stop() {
	s.activity.Stop()
	s.quotes.Stop()
	s.resolver.Stop()
}

// RecordActivity registers a user interaction.
func (s *Session) RecordActivity() {
	s.activity.RecordActivity()
	s.mu.Lock()
	s.sessionWarnPending = false
	s.mu.Unlock()
}

// Expired reports whether the session expired due to inactivity.
func (s *Session) Expired() bool {
	return s.activity.Expired()
}

// guard rejects every user-driven operation once the session is expired.
func (s *Session) guard() error {
	if s.activity.Expired() {
		return payerr.Expired("session expired, restart the transfer")
	}
	return nil
}

// SetAmount records a new source amount. Changing the amount while a
// quote exists discards the quote and everything built on it.
func (s *Session) SetAmount(amount float64) error {
	if err := s.guard(); err != nil {
		return err
	}
	s.RecordActivity()

	s.mu.Lock()
	changed := s.amount != amount
	s.amount = amount
	s.mu.Unlock()

	if changed {
		s.invalidateQuoteState()
	}
	return nil
}

// SetCurrencies records the currency pair.
func (s *Session) SetCurrencies(source, destination string) error {
	if err := s.guard(); err != nil {
		return err
	}
	s.RecordActivity()

	s.mu.Lock()
	changed := s.sourceCurrency != source || s.destCurrency != destination
	s.sourceCurrency = source
	s.destCurrency = destination
	s.mu.Unlock()

	if changed {
		s.invalidateQuoteState()
	}
	return nil
}

// SetDestinationCountry records the destination country.
func (s *Session) SetDestinationCountry(country string) error {
	if err := s.guard(); err != nil {
		return err
	}
	s.RecordActivity()

	s.mu.Lock()
	changed := s.destCountry != country
	s.destCountry = country
	s.mu.Unlock()

	if changed {
		s.invalidateQuoteState()
	}
	return nil
}

// SetTransferDetails records the compliance fields carried into the
// payout payload.
func (s *Session) SetTransferDetails(purposeCode, sourceOfFunds string) error {
	if err := s.guard(); err != nil {
		return err
	}
	s.RecordActivity()

	s.mu.Lock()
	s.purposeCode = purposeCode
	s.sourceOfFunds = sourceOfFunds
	s.mu.Unlock()
	return nil
}

// invalidateQuoteState discards the quote and cascades the invalidation
// through the sequencer. Idempotent: a no-op when no quote exists.
func (s *Session) invalidateQuoteState() {
	if s.quotes.Invalidate() {
		s.sequencer.ForceReset("quote inputs changed")
		s.resolver.Reset()
		s.gate.Reset()
	}
}

// CalculateQuote requests a fresh quote for the recorded inputs.
func (s *Session) CalculateQuote() (*models.Quote, error) {
	if err := s.guard(); err != nil {
		return nil, err
	}
	s.RecordActivity()

	s.mu.Lock()
	amount := s.amount
	source := s.sourceCurrency
	dest := s.destCurrency
	s.quoteWarnPending = false
	s.mu.Unlock()

	return s.quotes.CalculateQuote(amount, source, dest)
}

// Advance moves the pipeline forward one stage.
func (s *Session) Advance() (Stage, error) {
	if err := s.guard(); err != nil {
		return s.sequencer.Stage(), err
	}
	s.RecordActivity()
	return s.sequencer.Advance()
}

// Back navigates to an earlier stage.
func (s *Session) Back(target Stage) error {
	if err := s.guard(); err != nil {
		return err
	}
	s.RecordActivity()
	return s.sequencer.Back(target)
}

// Cancel abandons the flow and returns the pipeline to quoting.
func (s *Session) Cancel() error {
	if err := s.guard(); err != nil {
		return err
	}
	s.RecordActivity()
	s.quotes.Invalidate()
	s.sequencer.ForceReset("user cancelled")
	s.resolver.Reset()
	s.gate.Reset()
	return nil
}

// ConfirmDeposit records the user's attestation that the collection
// account was funded.
func (s *Session) ConfirmDeposit() error {
	if err := s.guard(); err != nil {
		return err
	}
	s.RecordActivity()
	return s.sequencer.ConfirmDeposit()
}

// RecipientFieldChange records edited recipient fields, clears any stale
// resolved name and feeds the debouncer.
func (s *Session) RecipientFieldChange(bankCode, accountNumber string) error {
	if err := s.guard(); err != nil {
		return err
	}
	s.RecordActivity()

	bankName := ""
	if s.banks != nil {
		if bank, ok := s.banks.Lookup(bankCode); ok {
			bankName = bank.BankName
		}
	}
	s.sequencer.SetRecipientFields(bankCode, bankName, accountNumber)
	s.resolver.OnFieldChange(bankCode, accountNumber)
	return nil
}

// Submit assembles the payout payload from the accumulated stage outputs
// and dispatches it through the submission gate.
func (s *Session) Submit() (models.TransferSubmission, error) {
	if err := s.guard(); err != nil {
		return s.gate.Submission(), err
	}
	s.RecordActivity()

	if stage := s.sequencer.Stage(); stage != StageSubmitting {
		return s.gate.Submission(), payerr.ValidationFailed("the transfer is not ready to submit", map[string]string{
			"stage": "complete the earlier steps first",
		})
	}

	quote := s.quotes.Quote()
	if quote == nil || !s.quotes.Valid() {
		return s.gate.Submission(), payerr.Expired("rate expired, recalculate")
	}
	recipient := s.sequencer.Recipient()

	s.mu.Lock()
	purposeCode := s.purposeCode
	sourceOfFunds := s.sourceOfFunds
	s.mu.Unlock()

	payload := models.TransferPayload{
		Amount:            quote.DestinationAmount,
		Currency:          quote.DestinationCurrency,
		BeneficiaryBank:   recipient.BankCode,
		BeneficiaryNumber: recipient.AccountNumber,
		BeneficiaryName:   recipient.ResolvedAccountName,
		PurposeCode:       purposeCode,
		SourceOfFunds:     sourceOfFunds,
		Reference:         uuid.NewString(),
		Environment:       s.environment,
	}

	return s.gate.Submit(payload)
}

// Snapshot returns a consistent view of the session for display.
func (s *Session) Snapshot() Snapshot {
	now := time.Now()
	quoteState := s.quotes.State()

	s.mu.Lock()
	snap := Snapshot{
		ID:                  s.ID,
		Amount:              s.amount,
		SourceCurrency:      s.sourceCurrency,
		DestinationCurrency: s.destCurrency,
		DestinationCountry:  s.destCountry,
		SessionWarning:      s.sessionWarnPending,
		QuoteWarning:        s.quoteWarnPending && quoteState == QuoteExpiringSoon,
	}
	s.mu.Unlock()

	snap.Stage = s.sequencer.Stage().String()
	snap.Expired = s.activity.Expired()
	snap.SessionRemainingSec = s.activity.Remaining(now).Seconds()
	snap.QuoteState = quoteState.String()
	snap.QuoteRemainingSec = s.quotes.Remaining(now).Seconds()
	snap.Quote = s.quotes.Quote()
	snap.CollectionAccount = s.sequencer.CollectionAccount()
	snap.Recipient = s.sequencer.Recipient()
	snap.Submission = s.gate.Submission()
	return snap
}
