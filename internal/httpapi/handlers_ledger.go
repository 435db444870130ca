package httpapi

import (
	"net/http"

	"github.com/kudos-hq/kudos-server/internal/domain/authz"
	apperrors "github.com/kudos-hq/kudos-server/internal/errors"
)

type ledgerAwardRequest struct {
	GroupID       string `json:"group_id"`
	UserID        string `json:"user_id"`
	BonusTypeCode string `json:"bonus_type_code"`
	Amount        string `json:"amount"`
	SourceType    string `json:"source_type"`
	SourceID      string `json:"source_id"`
}

func (s *Server) handleLedgerAward(w http.ResponseWriter, r *http.Request) {
	actor, ok := requireAuth(w, r)
	if !ok {
		return
	}
	var req ledgerAwardRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	if err := s.authzResolver.Allow(r.Context(), authz.Request{Actor: actor, Scope: authz.ScopeGroupAdmin, GroupID: &req.GroupID}); err != nil {
		writeError(w, r, err)
		return
	}
	amount, ok := decimalField(w, r, "amount", req.Amount)
	if !ok {
		return
	}
	tx, err := s.ledgerSvc.Award(r.Context(), req.GroupID, req.UserID, req.BonusTypeCode, amount, req.SourceType, req.SourceID)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, transactionDTO(tx))
}

type ledgerPenaltyRequest struct {
	GroupID       string   `json:"group_id"`
	UserID        string   `json:"user_id"`
	BonusTypeCode string   `json:"bonus_type_code"`
	Amount        string   `json:"amount"`
	MaxDebt       *float64 `json:"max_debt,omitempty"`
	SourceType    string   `json:"source_type"`
	SourceID      string   `json:"source_id"`
}

func (s *Server) handleLedgerPenalty(w http.ResponseWriter, r *http.Request) {
	actor, ok := requireAuth(w, r)
	if !ok {
		return
	}
	var req ledgerPenaltyRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	if err := s.authzResolver.Allow(r.Context(), authz.Request{Actor: actor, Scope: authz.ScopeGroupAdmin, GroupID: &req.GroupID}); err != nil {
		writeError(w, r, err)
		return
	}
	amount, ok := decimalField(w, r, "amount", req.Amount)
	if !ok {
		return
	}
	tx, err := s.ledgerSvc.Penalty(r.Context(), req.GroupID, req.UserID, req.BonusTypeCode, amount, req.MaxDebt, req.SourceType, req.SourceID)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, transactionDTO(tx))
}

type ledgerAdjustmentRequest struct {
	GroupID       string  `json:"group_id"`
	UserID        string  `json:"user_id"`
	BonusTypeCode string  `json:"bonus_type_code"`
	Amount        string  `json:"amount"`
	Reason        *string `json:"reason,omitempty"`
}

func (s *Server) handleLedgerAdjustment(w http.ResponseWriter, r *http.Request) {
	actor, ok := requireAuth(w, r)
	if !ok {
		return
	}
	var req ledgerAdjustmentRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	if err := s.authzResolver.Allow(r.Context(), authz.Request{Actor: actor, Scope: authz.ScopeGroupAdmin, GroupID: &req.GroupID}); err != nil {
		writeError(w, r, err)
		return
	}
	amount, ok := decimalField(w, r, "amount", req.Amount)
	if !ok {
		return
	}
	tx, err := s.ledgerSvc.ManualAdjustment(r.Context(), req.GroupID, req.UserID, req.BonusTypeCode, amount, actor.UserID, req.Reason)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, transactionDTO(tx))
}

type ledgerPurchaseRequest struct {
	GroupID       string   `json:"group_id"`
	UserID        string   `json:"user_id"`
	BonusTypeCode string   `json:"bonus_type_code"`
	Cost          string   `json:"cost"`
	MaxDebt       *float64 `json:"max_debt,omitempty"`
	RewardID      string   `json:"reward_id"`
}

func (s *Server) handleLedgerPurchase(w http.ResponseWriter, r *http.Request) {
	actor, ok := requireAuth(w, r)
	if !ok {
		return
	}
	var req ledgerPurchaseRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	if err := s.authzResolver.Allow(r.Context(), authz.Request{Actor: actor, Scope: authz.ScopeSelf, OwnerUserID: &req.UserID}); err != nil {
		writeError(w, r, err)
		return
	}
	cost, ok := decimalField(w, r, "cost", req.Cost)
	if !ok {
		return
	}
	tx, err := s.ledgerSvc.PurchaseReward(r.Context(), req.GroupID, req.UserID, req.BonusTypeCode, cost, req.MaxDebt, req.RewardID)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, transactionDTO(tx))
}

type ledgerTransferRequest struct {
	FromAccountID string `json:"from_account_id"`
	ToAccountID   string `json:"to_account_id"`
	Amount        string `json:"amount"`
	SourceType    string `json:"source_type"`
	SourceID      string `json:"source_id"`
}

func (s *Server) handleLedgerTransfer(w http.ResponseWriter, r *http.Request) {
	actor, ok := requireAuth(w, r)
	if !ok {
		return
	}
	if !actor.IsSuperadmin() {
		writeError(w, r, apperrors.Forbidden("superadmin_only", "account transfers are restricted to superadmins"))
		return
	}
	var req ledgerTransferRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	amount, ok := decimalField(w, r, "amount", req.Amount)
	if !ok {
		return
	}
	if err := s.ledgerSvc.TransferBetweenAccounts(r.Context(), req.FromAccountID, req.ToAccountID, amount, req.SourceType, req.SourceID); err != nil {
		writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
