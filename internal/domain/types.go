// Package domain defines the persistent entities of the statement-ingestion
// pipeline and the closed status enums that govern their lifecycles.
package domain

import (
	"fmt"
	"time"

	"github.com/shopspring/decimal"
)

// StatementStatus tracks a bank statement through ingestion.
// Use ValidateStatementStatus to ensure validity before use.
type StatementStatus string

const (
	StatementUploaded   StatementStatus = "uploaded"
	StatementProcessing StatementStatus = "processing"
	StatementCompleted  StatementStatus = "completed"
	StatementFailed     StatementStatus = "failed"
)

// AssignmentStatus is the lifecycle state of a transaction's attribution
// to a member. Writes must go through CanTransition.
type AssignmentStatus string

const (
	AssignmentUnassigned     AssignmentStatus = "unassigned"
	AssignmentAutoAssigned   AssignmentStatus = "auto_assigned"
	AssignmentManualAssigned AssignmentStatus = "manual_assigned"
	AssignmentDraft          AssignmentStatus = "draft"
	AssignmentFlagged        AssignmentStatus = "flagged"
	AssignmentDuplicate      AssignmentStatus = "duplicate"
	AssignmentTransferred    AssignmentStatus = "transferred"
)

// DuplicateReason classifies why a transaction was demoted to duplicate.
type DuplicateReason string

const (
	DuplicateCrossStatement DuplicateReason = "cross_statement"
	DuplicateIntraStatement DuplicateReason = "intra_statement"
)

// MatchSource identifies who produced a match-log entry.
type MatchSource string

const (
	MatchSourceAuto   MatchSource = "auto"
	MatchSourceManual MatchSource = "manual"
)

// TransferMode distinguishes whole-transaction transfers from split transfers.
type TransferMode string

const (
	TransferSingle TransferMode = "single"
	TransferSplit  TransferMode = "split"
)

var (
	validStatementStatuses = map[StatementStatus]struct{}{
		StatementUploaded: {}, StatementProcessing: {},
		StatementCompleted: {}, StatementFailed: {},
	}

	validAssignmentStatuses = map[AssignmentStatus]struct{}{
		AssignmentUnassigned: {}, AssignmentAutoAssigned: {},
		AssignmentManualAssigned: {}, AssignmentDraft: {},
		AssignmentFlagged: {}, AssignmentDuplicate: {},
		AssignmentTransferred: {},
	}

	validDuplicateReasons = map[DuplicateReason]struct{}{
		DuplicateCrossStatement: {}, DuplicateIntraStatement: {},
	}

	validMatchSources = map[MatchSource]struct{}{
		MatchSourceAuto: {}, MatchSourceManual: {},
	}

	validTransferModes = map[TransferMode]struct{}{
		TransferSingle: {}, TransferSplit: {},
	}
)

// ValidateStatementStatus checks if the statement status is valid.
func ValidateStatementStatus(s StatementStatus) bool {
	_, ok := validStatementStatuses[s]
	return ok
}

// ValidateAssignmentStatus checks if the assignment status is valid.
func ValidateAssignmentStatus(s AssignmentStatus) bool {
	_, ok := validAssignmentStatuses[s]
	return ok
}

// ValidateDuplicateReason checks if the duplicate reason is valid.
func ValidateDuplicateReason(r DuplicateReason) bool {
	_, ok := validDuplicateReasons[r]
	return ok
}

// ValidateMatchSource checks if the match source is valid.
func ValidateMatchSource(s MatchSource) bool {
	_, ok := validMatchSources[s]
	return ok
}

// ValidateTransferMode checks if the transfer mode is valid.
func ValidateTransferMode(m TransferMode) bool {
	_, ok := validTransferModes[m]
	return ok
}

// assignmentTransitions is the closed transition table for AssignmentStatus.
// Unassigned, draft and flagged transactions can be re-evaluated freely;
// duplicate transactions can only be rehabilitated by the reanalyzer (back
// to unassigned); assigned and transferred transactions move between
// attribution states but never silently back to draft.
var assignmentTransitions = map[AssignmentStatus]map[AssignmentStatus]struct{}{
	AssignmentUnassigned: {
		AssignmentAutoAssigned: {}, AssignmentManualAssigned: {},
		AssignmentDraft: {}, AssignmentFlagged: {},
		AssignmentDuplicate: {}, AssignmentTransferred: {},
	},
	AssignmentDraft: {
		AssignmentAutoAssigned: {}, AssignmentManualAssigned: {},
		AssignmentFlagged: {}, AssignmentDuplicate: {},
		AssignmentUnassigned: {}, AssignmentTransferred: {},
	},
	AssignmentFlagged: {
		AssignmentAutoAssigned: {}, AssignmentManualAssigned: {},
		AssignmentDraft: {}, AssignmentDuplicate: {},
		AssignmentUnassigned: {}, AssignmentTransferred: {},
	},
	AssignmentAutoAssigned: {
		AssignmentManualAssigned: {}, AssignmentTransferred: {},
		AssignmentDuplicate: {}, AssignmentUnassigned: {},
		AssignmentFlagged: {},
	},
	AssignmentManualAssigned: {
		AssignmentManualAssigned: {}, AssignmentTransferred: {},
		AssignmentDuplicate: {}, AssignmentUnassigned: {},
		AssignmentFlagged: {},
	},
	AssignmentTransferred: {
		AssignmentManualAssigned: {}, AssignmentTransferred: {},
		AssignmentDuplicate: {}, AssignmentUnassigned: {},
	},
	AssignmentDuplicate: {
		AssignmentUnassigned: {},
	},
}

// CanTransition reports whether moving a transaction from one assignment
// status to another is allowed. Same-state writes are allowed only where
// the table lists them (re-running a manual assignment or transfer is
// legitimate; re-drafting a committed assignment is not).
func CanTransition(from, to AssignmentStatus) bool {
	targets, ok := assignmentTransitions[from]
	if !ok {
		return false
	}
	_, ok = targets[to]
	return ok
}

// BankStatement is one uploaded source document.
type BankStatement struct {
	ID            int64
	Filename      string
	FilePath      string
	FileHash      string
	StatementDate *time.Time
	AccountNumber string
	Status        StatementStatus
	ErrorMessage  string
	Metadata      map[string]any
	CreatedAt     time.Time
}

// Transaction is one bank-statement line item after normalization.
type Transaction struct {
	ID              int64
	StatementID     int64
	TranDate        time.Time
	ValueDate       *time.Time
	Particulars     string
	TransactionType string
	Credit          decimal.Decimal
	Debit           decimal.Decimal
	Balance         *decimal.Decimal
	TransactionCode string
	Phones          []string
	RowHash         string
	MemberID        *int64
	Status          AssignmentStatus
	MatchConfidence *float64
	DraftMemberIDs  []int64
	RawText         string
	RawJSON         []byte
	IsArchived      bool
	ArchivedAt      *time.Time
	ArchiveReason   string
	CreatedAt       time.Time
}

// Amount returns the monetary value of the transaction: the credit when
// present, otherwise the debit.
func (t *Transaction) Amount() decimal.Decimal {
	if t.Credit.IsPositive() {
		return t.Credit
	}
	return t.Debit
}

// EffectiveDate returns the value date when the statement carried one,
// falling back to the transaction date. Fingerprinting keys off this date.
func (t *Transaction) EffectiveDate() time.Time {
	if t.ValueDate != nil {
		return *t.ValueDate
	}
	return t.TranDate
}

// StatementDuplicate is an audit record created whenever a transaction is
// demoted to duplicate. TransactionID references the kept transaction; the
// demoted transaction is identified in Metadata.
type StatementDuplicate struct {
	ID                  int64
	StatementID         int64
	TransactionID       int64
	TranDate            time.Time
	TransactionCode     string
	Credit              decimal.Decimal
	Reason              DuplicateReason
	ParticularsSnapshot string
	Metadata            map[string]any
	CreatedAt           time.Time
}

// TransactionMatchLog is one scoring record per candidate match evaluated
// between a transaction and a member. Append-only.
type TransactionMatchLog struct {
	ID            int64
	TransactionID int64
	MemberID      *int64
	Confidence    float64
	MatchTokens   []string
	MatchReason   string
	Source        MatchSource
	UserID        *int64
	CreatedAt     time.Time
}

// TransactionSplit is one slice of a transaction's credit attributed to one
// member.
type TransactionSplit struct {
	ID            int64
	TransactionID int64
	MemberID      int64
	Amount        decimal.Decimal
	Notes         string
	TransferID    *int64
	CreatedAt     time.Time
}

// TransactionTransfer is one re-attribution event. Immutable once created.
type TransactionTransfer struct {
	ID            int64
	TransactionID int64
	FromMemberID  *int64
	InitiatedBy   *int64
	Mode          TransferMode
	TotalAmount   decimal.Decimal
	Notes         string
	Metadata      map[string]any
	CreatedAt     time.Time
}

// Member is a read-only projection of the member directory. The pipeline
// never mutates members; it reads name, phone and codes for matching.
type Member struct {
	ID           int64
	Name         string
	Phone        string
	MemberCode   string
	MemberNumber string
	IsActive     bool
}

// NewStatementDuplicate creates a validated duplicate audit record.
func NewStatementDuplicate(statementID, keptTransactionID int64, reason DuplicateReason) (*StatementDuplicate, error) {
	if statementID <= 0 {
		return nil, fmt.Errorf("statement ID must be positive, got %d", statementID)
	}
	if keptTransactionID <= 0 {
		return nil, fmt.Errorf("kept transaction ID must be positive, got %d", keptTransactionID)
	}
	if !ValidateDuplicateReason(reason) {
		return nil, fmt.Errorf("invalid duplicate reason: %s", reason)
	}

	return &StatementDuplicate{
		StatementID:   statementID,
		TransactionID: keptTransactionID,
		Reason:        reason,
		Metadata:      map[string]any{},
	}, nil
}

// NewMatchLog creates a validated match-log entry.
func NewMatchLog(transactionID int64, memberID *int64, confidence float64, source MatchSource) (*TransactionMatchLog, error) {
	if transactionID <= 0 {
		return nil, fmt.Errorf("transaction ID must be positive, got %d", transactionID)
	}
	if confidence < 0 || confidence > 1 {
		return nil, fmt.Errorf("confidence must be in [0,1], got %f", confidence)
	}
	if !ValidateMatchSource(source) {
		return nil, fmt.Errorf("invalid match source: %s", source)
	}

	return &TransactionMatchLog{
		TransactionID: transactionID,
		MemberID:      memberID,
		Confidence:    confidence,
		Source:        source,
	}, nil
}
