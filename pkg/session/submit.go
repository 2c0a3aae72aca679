package session

import (
	"errors"
	"strings"
	"sync"

	"github.com/payflow-hq/payflow/pkg/logger"
	"github.com/payflow-hq/payflow/pkg/metrics"
	"github.com/payflow-hq/payflow/pkg/models"
	"github.com/payflow-hq/payflow/pkg/payerr"
	"github.com/payflow-hq/payflow/pkg/provider"
)

// PayoutClient is the slice of the provider client the gate needs.
type PayoutClient interface {
	InitiateTransferPayout(payload models.TransferPayload) (*provider.PayoutReceipt, error)
}

// SubmissionGate is the final commit step. It guarantees at most one
// in-flight submission, validates the assembled payload immediately
// before dispatch, and maps provider responses onto the fixed submission
// outcomes.
type SubmissionGate struct {
	mu         sync.Mutex
	submission models.TransferSubmission
	client     PayoutClient

	// onSuccess fires after a successful payout so the session can tear
	// down all payment state before a fresh transfer begins.
	onSuccess func(providerReference string)

	logger logger.Logger
}

// NewSubmissionGate creates an idle gate.
func NewSubmissionGate(client PayoutClient, log logger.Logger) *SubmissionGate {
	if log == nil {
		log = &logger.EmptyLogger{}
	}
	return &SubmissionGate{
		submission: models.TransferSubmission{Status: models.SubmissionIdle},
		client:     client,
		logger:     log,
	}
}

// OnSuccess registers the post-success teardown callback.
func (g *SubmissionGate) OnSuccess(fn func(providerReference string)) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.onSuccess = fn
}

// Submission returns a copy of the current submission state.
func (g *SubmissionGate) Submission() models.TransferSubmission {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.submission
}

// Submit validates and dispatches the payload. Concurrent calls while a
// submission is in flight are rejected without side effects.
func (g *SubmissionGate) Submit(payload models.TransferPayload) (models.TransferSubmission, error) {
	g.mu.Lock()
	if g.submission.Status == models.SubmissionInFlight {
		g.mu.Unlock()
		metrics.SubmissionRejected.Inc()
		return models.TransferSubmission{Status: models.SubmissionInFlight},
			payerr.ValidationFailed("a submission is already in flight", nil)
	}

	if err := validatePayload(payload); err != nil {
		g.mu.Unlock()
		return models.TransferSubmission{Status: models.SubmissionIdle}, err
	}

	g.submission = models.TransferSubmission{
		Status:  models.SubmissionInFlight,
		Payload: &payload,
	}
	g.mu.Unlock()

	g.logger.InfoWithStage(logger.Payout, "Submitting payout %s for %v %s", payload.Reference, payload.Amount, payload.Currency)

	receipt, err := g.client.InitiateTransferPayout(payload)

	g.mu.Lock()
	if err != nil {
		g.submission.Status = models.SubmissionFailed
		g.submission.ErrorMessage = userMessage(err)
		g.submission.ErrorKind = errorKind(err)
		result := g.submission
		g.mu.Unlock()

		metrics.Submissions.WithLabelValues("failed").Inc()
		g.logger.ErrorWithStage(logger.Payout, "Payout submission failed: %v", err)
		return result, err
	}

	g.submission = models.TransferSubmission{
		Status:            models.SubmissionSucceeded,
		ProviderReference: receipt.ProviderReference,
	}
	result := g.submission
	successFn := g.onSuccess
	g.mu.Unlock()

	metrics.Submissions.WithLabelValues("succeeded").Inc()
	g.logger.InfoWithStage(logger.Payout, "Payout submitted, provider reference %s", receipt.ProviderReference)

	if successFn != nil {
		successFn(receipt.ProviderReference)
	}
	return result, nil
}

// Reset returns the gate to idle, discarding any held payload. A
// submission that is in flight keeps its status; the eventual result is
// recorded when the dispatch returns.
func (g *SubmissionGate) Reset() {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.submission.Status == models.SubmissionInFlight {
		g.submission.Payload = nil
		return
	}
	g.submission = models.TransferSubmission{Status: models.SubmissionIdle}
}

// validatePayload checks the fully assembled payload against the declared
// schema and reports every failing field.
func validatePayload(payload models.TransferPayload) error {
	fields := map[string]string{}
	if payload.Amount <= 0 {
		fields["amount"] = "amount must be greater than zero"
	}
	if strings.TrimSpace(payload.Currency) == "" {
		fields["currency"] = "currency is required"
	}
	if strings.TrimSpace(payload.BeneficiaryBank) == "" {
		fields["beneficiary_bank"] = "beneficiary bank is required"
	}
	if strings.TrimSpace(payload.BeneficiaryNumber) == "" {
		fields["beneficiary_number"] = "beneficiary account number is required"
	}
	if strings.TrimSpace(payload.BeneficiaryName) == "" {
		fields["beneficiary_name"] = "beneficiary name is required"
	}
	if strings.TrimSpace(payload.PurposeCode) == "" {
		fields["purpose_code"] = "purpose code is required"
	}
	if strings.TrimSpace(payload.SourceOfFunds) == "" {
		fields["source_of_funds"] = "source of funds is required"
	}
	if strings.TrimSpace(payload.Reference) == "" {
		fields["reference"] = "reference is required"
	}
	if strings.TrimSpace(payload.Environment) == "" {
		fields["environment"] = "environment flag is required"
	}
	if len(fields) > 0 {
		return payerr.ValidationFailed("transfer payload is incomplete", fields)
	}
	return nil
}

func userMessage(err error) string {
	var pe *payerr.Error
	if errors.As(err, &pe) {
		return pe.Message
	}
	return "the transfer could not be completed, try again"
}

func errorKind(err error) string {
	var pe *payerr.Error
	if errors.As(err, &pe) {
		return pe.Kind.String()
	}
	return "provider_error"
}
