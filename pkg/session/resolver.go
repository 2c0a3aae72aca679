package session

import (
	"sync"
	"time"

	"github.com/payflow-hq/payflow/pkg/logger"
	"github.com/payflow-hq/payflow/pkg/metrics"
)

// ResolverClient is the slice of the provider client the debouncer needs.
type ResolverClient interface {
	ResolveAccount(bankCode, accountNumber string) (string, error)
}

// accountPair is a (bank code, account number) pair.
type accountPair struct {
	bankCode      string
	accountNumber string
}

func (p accountPair) empty() bool {
	return p.bankCode == "" || p.accountNumber == ""
}

// Resolver debounces recipient field edits and issues at most one account
// resolution call per stable (bank, account) pair. Each field settles
// independently; a result is applied only if the pair it was requested for
// still matches the current settled pair, otherwise it is dropped.
type Resolver struct {
	mu          sync.Mutex
	settle      time.Duration
	requiredLen int
	client      ResolverClient

	raw     accountPair // values as currently typed
	settled accountPair // values after their settle delay

	bankTimer    *time.Timer
	accountTimer *time.Timer

	inFlight     bool
	lastResolved accountPair

	// onClear fires as soon as either field changes, so a previously
	// resolved name is never shown against new input.
	onClear  func()
	onResult func(bankCode, accountNumber, accountName string, err error)

	stopped bool
	logger  logger.Logger
}

// NewResolver creates a resolver with the given settle delay and required
// account number length.
func NewResolver(client ResolverClient, settle time.Duration, requiredLen int, log logger.Logger) *Resolver {
	if log == nil {
		log = &logger.EmptyLogger{}
	}
	return &Resolver{
		settle:      settle,
		requiredLen: requiredLen,
		client:      client,
		logger:      log,
	}
}

// OnClear registers the callback fired when either field changes.
func (r *Resolver) OnClear(fn func()) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.onClear = fn
}

// OnResult registers the callback fired with a still-current resolution
// result or a recoverable resolution error.
func (r *Resolver) OnResult(fn func(bankCode, accountNumber, accountName string, err error)) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.onResult = fn
}

// OnFieldChange records the latest values of the recipient fields. Each
// changed field restarts its own settle timer; unchanged fields keep
// their running timer.
func (r *Resolver) OnFieldChange(bankCode, accountNumber string) {
	r.mu.Lock()
	if r.stopped {
		r.mu.Unlock()
		return
	}

	bankChanged := bankCode != r.raw.bankCode
	accountChanged := accountNumber != r.raw.accountNumber
	if !bankChanged && !accountChanged {
		r.mu.Unlock()
		return
	}

	r.raw.bankCode = bankCode
	r.raw.accountNumber = accountNumber
	// The edited pair must be resolvable again even if it settles back to
	// a previously resolved value; the memo only suppresses re-lookups of
	// an unchanged pair.
	r.lastResolved = accountPair{}
	clearFn := r.onClear

	if bankChanged {
		if r.bankTimer != nil {
			r.bankTimer.Stop()
		}
		r.bankTimer = time.AfterFunc(r.settle, r.settleBank)
	}
	if accountChanged {
		if r.accountTimer != nil {
			r.accountTimer.Stop()
		}
		r.accountTimer = time.AfterFunc(r.settle, r.settleAccount)
	}
	r.mu.Unlock()

	if clearFn != nil {
		clearFn()
	}
}

func (r *Resolver) settleBank() {
	r.mu.Lock()
	r.settled.bankCode = r.raw.bankCode
	r.mu.Unlock()
	r.maybeResolve()
}

func (r *Resolver) settleAccount() {
	r.mu.Lock()
	r.settled.accountNumber = r.raw.accountNumber
	r.mu.Unlock()
	r.maybeResolve()
}

// maybeResolve issues a resolution call when both settled values are
// usable and nothing is in flight.
func (r *Resolver) maybeResolve() {
	r.mu.Lock()
	if r.stopped || r.inFlight {
		r.mu.Unlock()
		return
	}
	pair := r.settled
	if pair.empty() || len(pair.accountNumber) < r.requiredLen {
		r.mu.Unlock()
		return
	}
	if pair == r.lastResolved {
		r.mu.Unlock()
		return
	}
	r.inFlight = true
	r.mu.Unlock()

	metrics.ResolutionCalls.Inc()
	r.logger.DebugWithStage(logger.Recipient, "Resolving account %s at bank %s", pair.accountNumber, pair.bankCode)

	go r.resolve(pair)
}

func (r *Resolver) resolve(pair accountPair) {
	accountName, err := r.client.ResolveAccount(pair.bankCode, pair.accountNumber)

	r.mu.Lock()
	r.inFlight = false

	if r.stopped {
		r.mu.Unlock()
		return
	}

	if pair != r.settled {
		// The user moved on while the call was outstanding.
		metrics.StaleResolutions.Inc()
		r.logger.DebugWithStage(logger.Recipient, "Dropping stale resolution for %s/%s", pair.bankCode, pair.accountNumber)
		r.mu.Unlock()
		// The newer settled pair still needs a resolution.
		r.maybeResolve()
		return
	}

	if err == nil {
		r.lastResolved = pair
	}
	resultFn := r.onResult
	r.mu.Unlock()

	if resultFn != nil {
		resultFn(pair.bankCode, pair.accountNumber, accountName, err)
	}
}

// Reset clears the debounced state so a fresh recipient entry starts
// from scratch.
func (r *Resolver) Reset() {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.bankTimer != nil {
		r.bankTimer.Stop()
		r.bankTimer = nil
	}
	if r.accountTimer != nil {
		r.accountTimer.Stop()
		r.accountTimer = nil
	}
	r.raw = accountPair{}
	r.settled = accountPair{}
	r.lastResolved = accountPair{}
}

// Stop cancels pending timers and discards any in-flight result.
func (r *Resolver) Stop() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.stopped = true
	if r.bankTimer != nil {
		r.bankTimer.Stop()
		r.bankTimer = nil
	}
	if r.accountTimer != nil {
		r.accountTimer.Stop()
		r.accountTimer = nil
	}
}
