// Package api exposes the payment session engine over a small JSON HTTP
// surface. The front end drives the state machine through these
// endpoints; no rendering or navigation lives here.
package api

import (
	"encoding/json"
	"net/http"
	"strings"

	"github.com/payflow-hq/payflow/pkg/logger"
	"github.com/payflow-hq/payflow/pkg/payerr"
	"github.com/payflow-hq/payflow/pkg/session"
)

// Server maps HTTP requests onto session operations.
type Server struct {
	manager *session.Manager
	logger  logger.Logger
}

// NewServer creates an API server backed by the session manager.
func NewServer(manager *session.Manager, log logger.Logger) *Server {
	if log == nil {
		log = &logger.EmptyLogger{}
	}
	return &Server{manager: manager, logger: log}
}

// Handler returns the HTTP handler for the session API.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("POST /api/v1/sessions", s.handleCreate)
	mux.HandleFunc("GET /api/v1/sessions/{id}", s.handleSnapshot)
	mux.HandleFunc("DELETE /api/v1/sessions/{id}", s.handleClose)
	mux.HandleFunc("POST /api/v1/sessions/{id}/activity", s.handleActivity)
	mux.HandleFunc("POST /api/v1/sessions/{id}/inputs", s.handleInputs)
	mux.HandleFunc("POST /api/v1/sessions/{id}/quote", s.handleQuote)
	mux.HandleFunc("POST /api/v1/sessions/{id}/advance", s.handleAdvance)
	mux.HandleFunc("POST /api/v1/sessions/{id}/back", s.handleBack)
	mux.HandleFunc("POST /api/v1/sessions/{id}/cancel", s.handleCancel)
	mux.HandleFunc("POST /api/v1/sessions/{id}/deposit", s.handleDeposit)
	mux.HandleFunc("POST /api/v1/sessions/{id}/recipient", s.handleRecipient)
	mux.HandleFunc("POST /api/v1/sessions/{id}/submit", s.handleSubmit)
	return mux
}

func (s *Server) handleCreate(w http.ResponseWriter, _ *http.Request) {
	sess := s.manager.Create()
	writeJSON(w, http.StatusCreated, sess.Snapshot())
}

func (s *Server) handleSnapshot(w http.ResponseWriter, r *http.Request) {
	sess, _ := s.session(w, r)
	if sess == nil {
		return
	}
	writeJSON(w, http.StatusOK, sess.Snapshot())
}

func (s *Server) handleClose(w http.ResponseWriter, r *http.Request) {
	s.manager.Close(r.PathValue("id"))
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleActivity(w http.ResponseWriter, r *http.Request) {
	sess, _ := s.session(w, r)
	if sess == nil {
		return
	}
	sess.RecordActivity()
	writeJSON(w, http.StatusOK, sess.Snapshot())
}

type inputsRequest struct {
	Amount              *float64 `json:"amount,omitempty"`
	SourceCurrency      *string  `json:"source_currency,omitempty"`
	DestinationCurrency *string  `json:"destination_currency,omitempty"`
	DestinationCountry  *string  `json:"destination_country,omitempty"`
	PurposeCode         *string  `json:"purpose_code,omitempty"`
	SourceOfFunds       *string  `json:"source_of_funds,omitempty"`
}

func (s *Server) handleInputs(w http.ResponseWriter, r *http.Request) {
	sess, _ := s.session(w, r)
	if sess == nil {
		return
	}
	var req inputsRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.writeError(w, payerr.ValidationFailed("invalid request body", nil))
		return
	}

	var err error
	if req.Amount != nil {
		err = sess.SetAmount(*req.Amount)
	}
	if err == nil && (req.SourceCurrency != nil || req.DestinationCurrency != nil) {
		snap := sess.Snapshot()
		source := snap.SourceCurrency
		dest := snap.DestinationCurrency
		if req.SourceCurrency != nil {
			source = *req.SourceCurrency
		}
		if req.DestinationCurrency != nil {
			dest = *req.DestinationCurrency
		}
		err = sess.SetCurrencies(source, dest)
	}
	if err == nil && req.DestinationCountry != nil {
		err = sess.SetDestinationCountry(*req.DestinationCountry)
	}
	if err == nil && (req.PurposeCode != nil || req.SourceOfFunds != nil) {
		purpose := ""
		funds := ""
		if req.PurposeCode != nil {
			purpose = *req.PurposeCode
		}
		if req.SourceOfFunds != nil {
			funds = *req.SourceOfFunds
		}
		err = sess.SetTransferDetails(purpose, funds)
	}
	if err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, sess.Snapshot())
}

func (s *Server) handleQuote(w http.ResponseWriter, r *http.Request) {
	sess, _ := s.session(w, r)
	if sess == nil {
		return
	}
	if _, err := sess.CalculateQuote(); err != nil && !payerr.IsKind(err, payerr.KindStaleResult) {
		s.writeError(w, err)
		return
	}
	// A stale result means newer inputs won the race; the snapshot already
	// reflects them, so there is nothing for the caller to retry.
	writeJSON(w, http.StatusOK, sess.Snapshot())
}

func (s *Server) handleAdvance(w http.ResponseWriter, r *http.Request) {
	sess, _ := s.session(w, r)
	if sess == nil {
		return
	}
	if _, err := sess.Advance(); err != nil && !payerr.IsKind(err, payerr.KindStaleResult) {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, sess.Snapshot())
}

type backRequest struct {
	Target string `json:"target"`
}

func (s *Server) handleBack(w http.ResponseWriter, r *http.Request) {
	sess, _ := s.session(w, r)
	if sess == nil {
		return
	}
	var req backRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.writeError(w, payerr.ValidationFailed("invalid request body", nil))
		return
	}
	target, ok := parseStage(req.Target)
	if !ok {
		s.writeError(w, payerr.ValidationFailed("unknown stage", map[string]string{"target": "unknown stage name"}))
		return
	}
	if err := sess.Back(target); err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, sess.Snapshot())
}

func (s *Server) handleCancel(w http.ResponseWriter, r *http.Request) {
	sess, _ := s.session(w, r)
	if sess == nil {
		return
	}
	if err := sess.Cancel(); err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, sess.Snapshot())
}

func (s *Server) handleDeposit(w http.ResponseWriter, r *http.Request) {
	sess, _ := s.session(w, r)
	if sess == nil {
		return
	}
	if err := sess.ConfirmDeposit(); err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, sess.Snapshot())
}

type recipientRequest struct {
	BankCode      string `json:"bank_code"`
	AccountNumber string `json:"account_number"`
}

func (s *Server) handleRecipient(w http.ResponseWriter, r *http.Request) {
	sess, _ := s.session(w, r)
	if sess == nil {
		return
	}
	var req recipientRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.writeError(w, payerr.ValidationFailed("invalid request body", nil))
		return
	}
	if err := sess.RecipientFieldChange(req.BankCode, req.AccountNumber); err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, sess.Snapshot())
}

func (s *Server) handleSubmit(w http.ResponseWriter, r *http.Request) {
	sess, _ := s.session(w, r)
	if sess == nil {
		return
	}
	if _, err := sess.Submit(); err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, sess.Snapshot())
}

// session resolves the session from the request path, writing the error
// response itself when the session is gone.
func (s *Server) session(w http.ResponseWriter, r *http.Request) (*session.Session, error) {
	sess, err := s.manager.Get(r.PathValue("id"))
	if err != nil {
		s.writeError(w, err)
		return nil, err
	}
	return sess, nil
}

type errorResponse struct {
	Kind    string            `json:"kind"`
	Message string            `json:"message"`
	Fields  map[string]string `json:"fields,omitempty"`
}

func (s *Server) writeError(w http.ResponseWriter, err error) {
	resp := errorResponse{Kind: "provider_error", Message: "something went wrong"}
	status := http.StatusBadGateway

	switch {
	case payerr.IsKind(err, payerr.KindAuthRequired):
		resp = errorResponse{Kind: payerr.KindAuthRequired.String(), Message: "authentication required"}
		status = http.StatusUnauthorized
	case payerr.IsKind(err, payerr.KindValidationFailed):
		resp = errorResponse{Kind: payerr.KindValidationFailed.String(), Message: errMessage(err), Fields: payerr.FieldErrors(err)}
		status = http.StatusUnprocessableEntity
	case payerr.IsKind(err, payerr.KindExpired):
		resp = errorResponse{Kind: payerr.KindExpired.String(), Message: errMessage(err)}
		status = http.StatusGone
	case payerr.IsKind(err, payerr.KindProviderError):
		resp = errorResponse{Kind: payerr.KindProviderError.String(), Message: errMessage(err)}
		status = http.StatusBadGateway
	}

	s.logger.Debug("Request failed: %v", err)
	writeJSON(w, status, resp)
}

func errMessage(err error) string {
	msg := err.Error()
	// Trim the kind prefix the taxonomy adds for logs.
	if idx := strings.Index(msg, ": "); idx >= 0 {
		return msg[idx+2:]
	}
	return msg
}

func writeJSON(w http.ResponseWriter, status int, body interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}

func parseStage(name string) (session.Stage, bool) {
	switch name {
	case "quoting":
		return session.StageQuoting, true
	case "collecting_funds":
		return session.StageCollectingFunds, true
	case "verifying":
		return session.StageVerifying, true
	case "resolving_recipient":
		return session.StageResolvingRecipient, true
	case "submitting":
		return session.StageSubmitting, true
	default:
		return session.StageQuoting, false
	}
}
