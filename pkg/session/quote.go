package session

import (
	"strings"
	"sync"
	"time"

	"github.com/payflow-hq/payflow/pkg/logger"
	"github.com/payflow-hq/payflow/pkg/metrics"
	"github.com/payflow-hq/payflow/pkg/models"
	"github.com/payflow-hq/payflow/pkg/payerr"
	"github.com/payflow-hq/payflow/pkg/provider"
)

// QuoteState is the lifecycle state of the exchange-rate quote.
type QuoteState int

const (
	// QuoteNone means no quote exists.
	QuoteNone QuoteState = iota
	// QuotePending means a rate calculation is in progress.
	QuotePending
	// QuoteValid means a quote exists and is inside its validity window.
	QuoteValid
	// QuoteExpiringSoon means the quote is valid but close to expiry.
	QuoteExpiringSoon
	// QuoteExpired means the quote passed its validity window.
	QuoteExpired
)

func (s QuoteState) String() string {
	switch s {
	case QuoteNone:
		return "no_quote"
	case QuotePending:
		return "pending"
	case QuoteValid:
		return "valid"
	case QuoteExpiringSoon:
		return "expiring_soon"
	case QuoteExpired:
		return "expired"
	default:
		return "unknown"
	}
}

// RateClient is the slice of the provider client the quote manager needs.
type RateClient interface {
	GetExchangeRate(source, destination string, amount float64) (*provider.RateQuote, error)
	GetTransferFee(amount float64) (*provider.TransferFee, error)
}

// QuoteManager owns the perishable quote. Every quote carries a generation
// number; async results (the secondary fee lookup) are applied only when
// their generation still matches, otherwise they are dropped.
type QuoteManager struct {
	mu         sync.Mutex
	state      QuoteState
	quote      *models.Quote
	generation uint64
	warned     bool

	validity      time.Duration
	warnThreshold time.Duration
	checkInterval time.Duration
	minAmount     float64

	client RateClient

	onWarn   func(remaining time.Duration)
	onExpire func()

	stopChan chan struct{}
	running  bool
	logger   logger.Logger
}

// NewQuoteManager creates a quote manager.
func NewQuoteManager(client RateClient, validity, warnThreshold, checkInterval time.Duration, minAmount float64, log logger.Logger) *QuoteManager {
	if log == nil {
		log = &logger.EmptyLogger{}
	}
	return &QuoteManager{
		state:         QuoteNone,
		client:        client,
		validity:      validity,
		warnThreshold: warnThreshold,
		checkInterval: checkInterval,
		minAmount:     minAmount,
		logger:        log,
	}
}

// OnWarn registers the renewable low-time warning callback.
func (m *QuoteManager) OnWarn(fn func(remaining time.Duration)) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.onWarn = fn
}

// OnExpire registers the expiry callback. The session wires this to the
// sequencer's cascading clear so no downstream state outlives the quote.
func (m *QuoteManager) OnExpire(fn func()) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.onExpire = fn
}

// CalculateQuote requests a rate for the amount and currency pair, stores
// the resulting quote and kicks off the secondary fee lookup. The stored
// rate is gross local amount divided by destination amount; the division
// is never inverted.
func (m *QuoteManager) CalculateQuote(amount float64, sourceCurrency, destinationCurrency string) (*models.Quote, error) {
	if err := m.validateInput(amount, sourceCurrency, destinationCurrency); err != nil {
		return nil, err
	}

	m.mu.Lock()
	m.state = QuotePending
	m.quote = nil
	m.warned = false
	m.generation++
	generation := m.generation
	m.mu.Unlock()

	rate, err := m.client.GetExchangeRate(sourceCurrency, destinationCurrency, amount)
	if err != nil {
		m.mu.Lock()
		if m.generation == generation {
			m.state = QuoteNone
		}
		m.mu.Unlock()
		return nil, err
	}
	if rate.DestinationAmount <= 0 {
		m.mu.Lock()
		if m.generation == generation {
			m.state = QuoteNone
		}
		m.mu.Unlock()
		return nil, payerr.Provider("rate service returned a non-positive destination amount", nil)
	}

	quote := &models.Quote{
		SourceAmount:        amount,
		DestinationAmount:   rate.DestinationAmount,
		SourceCurrency:      sourceCurrency,
		DestinationCurrency: destinationCurrency,
		ProviderName:        rate.ProviderName,
		CreatedAt:           time.Now(),
	}
	quote.Rate = quote.GrossAmount() / quote.DestinationAmount

	m.mu.Lock()
	if m.generation != generation {
		// Inputs changed while the rate call was outstanding.
		m.mu.Unlock()
		return nil, payerr.Stale("quote inputs changed during rate calculation")
	}
	m.quote = quote
	m.state = QuoteValid
	m.mu.Unlock()

	metrics.QuotesCreated.WithLabelValues(sourceCurrency, destinationCurrency).Inc()
	m.logger.InfoWithStage(logger.Quote, "Quote created: %v %s -> %v %s via %s",
		amount, sourceCurrency, rate.DestinationAmount, destinationCurrency, rate.ProviderName)

	go m.fetchFee(generation, quote.GrossAmount())

	snapshot := *quote
	return &snapshot, nil
}

// fetchFee runs the secondary fee lookup and merges the result into the
// quote only if the quote generation has not moved on.
func (m *QuoteManager) fetchFee(generation uint64, grossAmount float64) {
	fee, err := m.client.GetTransferFee(grossAmount)
	if err != nil {
		m.logger.ErrorWithStage(logger.Quote, "Fee lookup failed: %v", err)
		return
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	if m.generation != generation || m.quote == nil {
		metrics.StaleFeeResults.Inc()
		m.logger.DebugWithStage(logger.Quote, "Dropping stale fee result for generation %d", generation)
		return
	}
	m.quote.Fee = fee.Fee
	m.quote.VAT = fee.VAT
	m.quote.Rate = m.quote.GrossAmount() / m.quote.DestinationAmount
}

func (m *QuoteManager) validateInput(amount float64, sourceCurrency, destinationCurrency string) error {
	fields := map[string]string{}
	if amount < m.minAmount {
		fields["amount"] = "amount is below the minimum"
	}
	if strings.TrimSpace(sourceCurrency) == "" {
		fields["source_currency"] = "source currency is required"
	}
	if strings.TrimSpace(destinationCurrency) == "" {
		fields["destination_currency"] = "destination currency is required"
	}
	if len(fields) > 0 {
		return payerr.ValidationFailed("invalid quote request", fields)
	}
	return nil
}

// Invalidate discards the current quote in response to an input change.
// Returns true if a quote or pending calculation was actually discarded,
// so re-setting the same value twice invalidates exactly once.
func (m *QuoteManager) Invalidate() bool {
	m.mu.Lock()
	if m.state == QuoteNone {
		m.mu.Unlock()
		return false
	}
	m.state = QuoteNone
	m.quote = nil
	m.warned = false
	m.generation++
	m.mu.Unlock()

	metrics.QuotesInvalidated.Inc()
	m.logger.DebugWithStage(logger.Quote, "Quote invalidated by input change")
	return true
}

// State returns the current lifecycle state.
func (m *QuoteManager) State() QuoteState {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state
}

// Quote returns a copy of the current quote, or nil when absent.
func (m *QuoteManager) Quote() *models.Quote {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.quote == nil {
		return nil
	}
	snapshot := *m.quote
	return &snapshot
}

// Valid reports whether a usable, non-expired quote exists.
func (m *QuoteManager) Valid() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state == QuoteValid || m.state == QuoteExpiringSoon
}

// Remaining returns the time left in the quote's validity window.
func (m *QuoteManager) Remaining(now time.Time) time.Duration {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.quote == nil {
		return 0
	}
	remaining := m.validity - now.Sub(m.quote.CreatedAt)
	if remaining < 0 {
		return 0
	}
	return remaining
}

// Start launches the countdown watcher.
func (m *QuoteManager) Start() {
	m.mu.Lock()
	if m.running {
		m.mu.Unlock()
		return
	}
	m.running = true
	m.stopChan = make(chan struct{})
	stopChan := m.stopChan
	m.mu.Unlock()

	go m.watch(stopChan)
}

// Stop halts the countdown watcher.
func (m *QuoteManager) Stop() {
	m.mu.Lock()
	defer m.mu.Unlock()
	if !m.running {
		return
	}
	close(m.stopChan)
	m.stopChan = nil
	m.running = false
}

func (m *QuoteManager) watch(stopChan chan struct{}) {
	ticker := time.NewTicker(m.checkInterval)
	defer ticker.Stop()

	for {
		select {
		case <-stopChan:
			return
		case <-ticker.C:
			m.tick()
		}
	}
}

// tick evaluates the countdown once, entering ExpiringSoon at most once
// per quote and hard-expiring the quote at the end of its window.
func (m *QuoteManager) tick() {
	m.mu.Lock()
	if m.quote == nil || (m.state != QuoteValid && m.state != QuoteExpiringSoon) {
		m.mu.Unlock()
		return
	}

	remaining := m.validity - time.Since(m.quote.CreatedAt)

	var warnFn func(time.Duration)
	var expireFn func()

	switch {
	case remaining <= 0:
		m.state = QuoteExpired
		m.quote = nil
		m.warned = false
		m.generation++
		expireFn = m.onExpire
	case remaining <= m.warnThreshold && !m.warned:
		m.state = QuoteExpiringSoon
		m.warned = true
		warnFn = m.onWarn
	}
	m.mu.Unlock()

	if warnFn != nil {
		m.logger.NoticeWithStage(logger.Quote, "Quote expiring soon: %v remaining", remaining)
		warnFn(remaining)
	}
	if expireFn != nil {
		metrics.QuotesExpired.Inc()
		m.logger.NoticeWithStage(logger.Quote, "Quote expired")
		expireFn()
	}
}
