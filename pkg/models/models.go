package models

import (
	"time"
)

// Quote represents a perishable exchange-rate snapshot for a specific
// amount and currency pair. A quote is valid only while
// now - CreatedAt < the configured validity window.
type Quote struct {
	SourceAmount        float64   `json:"source_amount"`
	DestinationAmount   float64   `json:"destination_amount"`
	SourceCurrency      string    `json:"source_currency"`
	DestinationCurrency string    `json:"destination_currency"`
	Rate                float64   `json:"rate"`
	Fee                 float64   `json:"fee"`
	VAT                 float64   `json:"vat"`
	ProviderName        string    `json:"provider_name"`
	CreatedAt           time.Time `json:"created_at"`
}

// GrossAmount is the total local-currency amount the user must deposit.
func (q Quote) GrossAmount() float64 {
	return q.SourceAmount + q.Fee + q.VAT
}

// CollectionAccount is the temporary deposit account generated for a quote.
// Its lifetime is bounded by the lifetime of the quote it was issued for.
type CollectionAccount struct {
	AccountName   string `json:"account_name"`
	AccountNumber string `json:"account_number"`
	BankName      string `json:"bank_name"`
	Reference     string `json:"reference"`
}

// Bank is a payout-side bank directory entry.
type Bank struct {
	BankCode string `json:"bank_code"`
	BankName string `json:"bank_name"`
}

// RecipientCandidate holds the payout recipient fields as the user edits
// them. ResolvedAccountName is cleared the moment BankCode or AccountNumber
// changes and re-populated only by a matching, still-current resolution.
type RecipientCandidate struct {
	BankCode            string `json:"bank_code"`
	BankName            string `json:"bank_name"`
	AccountNumber       string `json:"account_number"`
	ResolvedAccountName string `json:"resolved_account_name,omitempty"`
	ResolutionError     string `json:"resolution_error,omitempty"`
}

// SubmissionStatus tracks the lifecycle of a transfer submission.
type SubmissionStatus string

const (
	SubmissionIdle      SubmissionStatus = "idle"
	SubmissionInFlight  SubmissionStatus = "in_flight"
	SubmissionSucceeded SubmissionStatus = "succeeded"
	SubmissionFailed    SubmissionStatus = "failed"
)

// TransferPayload is the fully assembled payout request.
type TransferPayload struct {
	Amount            float64 `json:"amount"`
	Currency          string  `json:"currency"`
	BeneficiaryBank   string  `json:"beneficiary_bank"`
	BeneficiaryNumber string  `json:"beneficiary_number"`
	BeneficiaryName   string  `json:"beneficiary_name"`
	PurposeCode       string  `json:"purpose_code"`
	SourceOfFunds     string  `json:"source_of_funds"`
	Reference         string  `json:"reference"`
	Environment       string  `json:"environment"`
}

// TransferSubmission tracks the final commit step. Terminal states are
// reachable only from in_flight, and at most one submission may be in
// flight at a time.
type TransferSubmission struct {
	Status            SubmissionStatus `json:"status"`
	Payload           *TransferPayload `json:"payload,omitempty"`
	ProviderReference string           `json:"provider_reference,omitempty"`
	ErrorKind         string           `json:"error_kind,omitempty"`
	ErrorMessage      string           `json:"error_message,omitempty"`
}
