package session

import (
	"sync"
	"time"

	"github.com/payflow-hq/payflow/pkg/logger"
	"github.com/payflow-hq/payflow/pkg/metrics"
	"github.com/payflow-hq/payflow/pkg/models"
	"github.com/payflow-hq/payflow/pkg/payerr"
)

// Stage is one step of the linear payment pipeline.
type Stage int

const (
	StageQuoting Stage = iota
	StageCollectingFunds
	StageVerifying
	StageResolvingRecipient
	StageSubmitting
	StageDone
)

func (s Stage) String() string {
	switch s {
	case StageQuoting:
		return "quoting"
	case StageCollectingFunds:
		return "collecting_funds"
	case StageVerifying:
		return "verifying"
	case StageResolvingRecipient:
		return "resolving_recipient"
	case StageSubmitting:
		return "submitting"
	case StageDone:
		return "done"
	default:
		return "unknown"
	}
}

// CollectionClient is the slice of the provider client the sequencer needs.
type CollectionClient interface {
	GetCollectionAccount(amount float64) (*models.CollectionAccount, error)
}

// Sequencer drives the linear pipeline. It is the single writer for the
// collection account, the deposit attestation and the recipient candidate;
// all cross-stage invalidation goes through its cascading clear.
type Sequencer struct {
	mu    sync.Mutex
	stage Stage

	quotes   *QuoteManager
	activity *ActivityTracker
	client   CollectionClient

	collection    *models.CollectionAccount
	collectionFor float64 // gross amount the collection account was fetched for

	depositConfirmed bool
	recipient        models.RecipientCandidate

	logger logger.Logger
}

// NewSequencer creates a sequencer at the quoting stage.
func NewSequencer(quotes *QuoteManager, activity *ActivityTracker, client CollectionClient, log logger.Logger) *Sequencer {
	if log == nil {
		log = &logger.EmptyLogger{}
	}
	return &Sequencer{
		stage:    StageQuoting,
		quotes:   quotes,
		activity: activity,
		client:   client,
		logger:   log,
	}
}

// Stage returns the current pipeline stage.
func (s *Sequencer) Stage() Stage {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.stage
}

// Advance moves the pipeline forward by one stage if the current stage's
// exit guard is satisfied.
func (s *Sequencer) Advance() (Stage, error) {
	s.mu.Lock()
	stage := s.stage
	s.mu.Unlock()

	if s.activity.Expired() || s.activity.Remaining(time.Now()) <= 0 {
		return stage, payerr.Expired("session expired, restart the transfer")
	}

	switch stage {
	case StageQuoting:
		if !s.quotes.Valid() {
			return stage, payerr.Expired("no valid quote, recalculate the rate")
		}
		return s.transition(StageQuoting, StageCollectingFunds)

	case StageCollectingFunds:
		if !s.quotes.Valid() {
			return stage, payerr.Expired("rate expired, recalculate")
		}
		if err := s.ensureCollectionAccount(); err != nil {
			return stage, err
		}
		return s.transition(StageCollectingFunds, StageVerifying)

	case StageVerifying:
		s.mu.Lock()
		confirmed := s.depositConfirmed
		s.mu.Unlock()
		if !confirmed {
			return stage, payerr.ValidationFailed("deposit not confirmed", map[string]string{
				"deposit": "confirm the deposit before continuing",
			})
		}
		return s.transition(StageVerifying, StageResolvingRecipient)

	case StageResolvingRecipient:
		s.mu.Lock()
		resolved := s.recipient.ResolvedAccountName != ""
		s.mu.Unlock()
		if !resolved {
			return stage, payerr.ValidationFailed("recipient not resolved", map[string]string{
				"account_number": "the recipient account has not been verified",
			})
		}
		return s.transition(StageResolvingRecipient, StageSubmitting)

	case StageSubmitting:
		return stage, payerr.ValidationFailed("submission pending", map[string]string{
			"submission": "complete the transfer submission to finish",
		})

	default:
		return stage, payerr.ValidationFailed("pipeline already complete", nil)
	}
}

// transition moves from one stage to the next if the stage has not changed
// under us in the meantime.
func (s *Sequencer) transition(from, to Stage) (Stage, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.stage != from {
		return s.stage, payerr.Stale("stage changed during transition")
	}
	s.stage = to
	metrics.StageTransitions.WithLabelValues(to.String()).Inc()
	s.logger.Info("Stage advanced: %s -> %s", from, to)
	return to, nil
}

// ensureCollectionAccount fetches the deposit account for the quote's
// gross amount, memoized per amount so repeated entries into the stage do
// not duplicate the request.
func (s *Sequencer) ensureCollectionAccount() error {
	quote := s.quotes.Quote()
	if quote == nil {
		return payerr.Expired("rate expired, recalculate")
	}
	gross := quote.GrossAmount()

	s.mu.Lock()
	if s.collection != nil && s.collectionFor == gross {
		s.mu.Unlock()
		return nil
	}
	s.mu.Unlock()

	account, err := s.client.GetCollectionAccount(gross)
	if err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	// The quote may have been torn down while the fetch was outstanding;
	// a collection account must never outlive its quote.
	if !s.quotes.Valid() {
		return payerr.Expired("rate expired, recalculate")
	}
	s.collection = account
	s.collectionFor = gross
	s.logger.InfoWithStage(logger.Funds, "Collection account %s at %s ready for %v", account.AccountNumber, account.BankName, gross)
	return nil
}

// CollectionAccount returns the current collection account, or nil.
func (s *Sequencer) CollectionAccount() *models.CollectionAccount {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.collection == nil {
		return nil
	}
	snapshot := *s.collection
	return &snapshot
}

// ConfirmDeposit records the user's attestation that the funds were
// deposited. Only meaningful at the verifying stage; this gate does not
// poll actual settlement.
func (s *Sequencer) ConfirmDeposit() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.stage != StageVerifying {
		return payerr.ValidationFailed("deposit confirmation is only accepted at the verification step", nil)
	}
	s.depositConfirmed = true
	s.logger.InfoWithStage(logger.Verify, "User confirmed deposit")
	return nil
}

// SetRecipientFields records edited recipient fields and clears the
// resolved name, which may only return through a matching resolution.
func (s *Sequencer) SetRecipientFields(bankCode, bankName, accountNumber string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if bankCode == s.recipient.BankCode && accountNumber == s.recipient.AccountNumber {
		s.recipient.BankName = bankName
		return
	}
	s.recipient.BankCode = bankCode
	s.recipient.BankName = bankName
	s.recipient.AccountNumber = accountNumber
	s.recipient.ResolvedAccountName = ""
	s.recipient.ResolutionError = ""
}

// ClearResolvedName drops the resolved name without touching the fields.
func (s *Sequencer) ClearResolvedName() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.recipient.ResolvedAccountName = ""
	s.recipient.ResolutionError = ""
}

// ApplyResolution stores a resolution outcome if it matches the current
// recipient fields.
func (s *Sequencer) ApplyResolution(bankCode, accountNumber, accountName string, resolutionErr error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if bankCode != s.recipient.BankCode || accountNumber != s.recipient.AccountNumber {
		metrics.StaleResolutions.Inc()
		return
	}
	if resolutionErr != nil {
		s.recipient.ResolvedAccountName = ""
		s.recipient.ResolutionError = resolutionErr.Error()
		return
	}
	s.recipient.ResolvedAccountName = accountName
	s.recipient.ResolutionError = ""
	s.logger.InfoWithStage(logger.Recipient, "Recipient resolved: %s", accountName)
}

// Recipient returns a copy of the recipient candidate.
func (s *Sequencer) Recipient() models.RecipientCandidate {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.recipient
}

// MarkDone moves the pipeline to its terminal stage after a successful
// submission.
func (s *Sequencer) MarkDone() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.stage = StageDone
	metrics.StageTransitions.WithLabelValues(StageDone.String()).Inc()
}

// Back navigates to an earlier stage, clearing all state strictly
// downstream of the target.
func (s *Sequencer) Back(target Stage) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if target >= s.stage {
		return payerr.ValidationFailed("can only navigate to an earlier stage", nil)
	}
	s.clearDownstreamLocked(target)
	s.logger.Info("Stage back: %s -> %s", s.stage, target)
	s.stage = target
	return nil
}

// ForceReset returns the pipeline to the quoting stage, discarding all
// stage outputs. Used on quote expiry, session expiry and cancellation.
func (s *Sequencer) ForceReset(reason string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.clearDownstreamLocked(StageQuoting)
	if s.stage != StageQuoting {
		s.logger.Notice("Pipeline reset to quoting: %s", reason)
	}
	s.stage = StageQuoting
}

// ClearAll discards every stage output without changing the stage. Used
// by the post-success teardown, where the pipeline lands on done with no
// payment state left behind.
func (s *Sequencer) ClearAll() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.clearDownstreamLocked(StageQuoting)
}

// clearDownstreamLocked clears every stage output strictly downstream of
// the target stage. Caller holds the lock.
func (s *Sequencer) clearDownstreamLocked(target Stage) {
	if target < StageCollectingFunds {
		s.collection = nil
		s.collectionFor = 0
	}
	if target < StageVerifying {
		// Re-entering the deposit step always requires a fresh attestation.
		s.depositConfirmed = false
	}
	if target < StageResolvingRecipient {
		s.recipient = models.RecipientCandidate{}
	}
}
