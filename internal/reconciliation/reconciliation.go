package reconciliation

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	paymentmodel "github.com/amacgov/revenue-collection/internal/core/datamodel/payment"
	recmodel "github.com/amacgov/revenue-collection/internal/core/datamodel/reconciliation"
)

// PaymentStoreAPI is the slice of the payment store the engine needs. The
// engine owns bank_confirmed/reconciled and the audit log; it never writes
// the status column.
type PaymentStoreAPI interface {
	UnreconciledConfirmed(since time.Time) ([]*paymentmodel.Payment, error)
	StaleInFlight(olderThan time.Time) ([]*paymentmodel.Payment, error)
	MarkReconciled(id int64, bankTransactionID string, autoResolve bool) error
}

// LogAPI appends reconciliation outcomes. Entries are never updated or
// deleted.
type LogAPI interface {
	Append(entry *recmodel.LogEntry) error
}

// SettlementFeedAPI delivers externally observed settlement transactions
// for a window.
type SettlementFeedAPI interface {
	Transactions(ctx context.Context, from, to time.Time) ([]recmodel.SettlementTransaction, error)
}

// Summary is the outcome of one reconciliation pass.
type Summary struct {
	TotalChecked  int `json:"totalChecked"`
	Matched       int `json:"matched"`
	Discrepancies int `json:"discrepancies"`
	Unresolved    int `json:"unresolved"`
	NewMatches    int `json:"newMatches"`
}

// Engine cross-checks recorded payments against the settlement feed. Runs
// are deterministic and safe to repeat: already reconciled payments count
// as matched without new writes.
type Engine struct {
	payments    PaymentStoreAPI
	log         LogAPI
	feed        SettlementFeedAPI
	graceWindow time.Duration
	epsilon     int64
	now         func() time.Time
	logger      *slog.Logger
}

type EngineConfig struct {
	GraceWindow   time.Duration
	AmountEpsilon int64
}

func NewEngine(payments PaymentStoreAPI, log LogAPI, feed SettlementFeedAPI, cfg EngineConfig, logger *slog.Logger) *Engine {
	graceWindow := cfg.GraceWindow
	if graceWindow <= 0 {
		graceWindow = 24 * time.Hour
	}

	return &Engine{
		payments:    payments,
		log:         log,
		feed:        feed,
		graceWindow: graceWindow,
		epsilon:     cfg.AmountEpsilon,
		now:         time.Now,
		logger:      logger,
	}
}

// Run reconciles all unsettled confirmed payments created within daysBack
// days. With autoResolve the engine also closes exact matches by setting
// reconciled=true; otherwise matches stay open for a manual sign-off.
func (e *Engine) Run(ctx context.Context, daysBack int, autoResolve bool) (*Summary, error) {
	if daysBack <= 0 {
		daysBack = 30
	}

	end := e.now().UTC()
	start := end.AddDate(0, 0, -daysBack)

	payments, err := e.payments.UnreconciledConfirmed(start)
	if err != nil {
		return nil, fmt.Errorf("failed to load payments for reconciliation: %w", err)
	}

	settlements, err := e.feed.Transactions(ctx, start, end)
	if err != nil {
		return nil, fmt.Errorf("failed to load settlement transactions: %w", err)
	}

	e.logger.Info("reconciliation pass started",
		"payments", len(payments),
		"settlements", len(settlements),
		"days_back", daysBack,
		"auto_resolve", autoResolve)

	summary := &Summary{TotalChecked: len(payments)}

	for _, p := range payments {
		outcome := e.reconcile(p, settlements, autoResolve)
		switch outcome.kind {
		case outcomeMatched:
			summary.Matched++
			if outcome.isNew {
				summary.NewMatches++
			}
		case outcomeDiscrepancy:
			summary.Discrepancies++
		case outcomeUnresolved:
			summary.Unresolved++
		}
	}

	if err := e.sweepStale(summary); err != nil {
		e.logger.Error("stale payment sweep failed", "error", err)
	}

	e.logger.Info("reconciliation pass finished",
		"total_checked", summary.TotalChecked,
		"matched", summary.Matched,
		"discrepancies", summary.Discrepancies,
		"unresolved", summary.Unresolved,
		"new_matches", summary.NewMatches)

	return summary, nil
}

type outcomeKind int

const (
	outcomeMatched outcomeKind = iota
	outcomeDiscrepancy
	outcomeUnresolved
)

type outcome struct {
	kind  outcomeKind
	isNew bool
}

func (e *Engine) reconcile(p *paymentmodel.Payment, settlements []recmodel.SettlementTransaction, autoResolve bool) outcome {
	// Idempotency guard: a payment both bank-confirmed and reconciled is
	// done; repeating the pass adds nothing.
	if p.BankConfirmed && p.Reconciled {
		return outcome{kind: outcomeMatched}
	}

	tx, ambiguous := e.findMatch(p, settlements)

	if tx != nil {
		if diff(p.Amount, tx.Amount) <= e.epsilon {
			if err := e.acceptMatch(p, tx, autoResolve); err != nil {
				e.logger.Error("failed to record match", "error", err, "reference", p.Reference)
				return outcome{kind: outcomeUnresolved}
			}
			return outcome{kind: outcomeMatched, isNew: true}
		}

		// A settlement clearly belonging to this payment carries a
		// different amount. Never auto-confirmed; left for manual
		// resolution.
		e.appendDiscrepancy(p, tx, recmodel.ReasonAmountMismatch,
			fmt.Sprintf("payment amount %d, settlement amount %d", p.Amount, tx.Amount))
		return outcome{kind: outcomeDiscrepancy}
	}

	if ambiguous {
		return outcome{kind: outcomeUnresolved}
	}

	if e.now().UTC().Sub(p.CreatedAt) < e.graceWindow {
		// Settlement may simply not have landed in the feed yet.
		return outcome{kind: outcomeUnresolved}
	}

	e.appendDiscrepancy(p, nil, recmodel.ReasonNoBankTransaction,
		fmt.Sprintf("no settlement transaction found for amount %d", p.Amount))
	return outcome{kind: outcomeDiscrepancy}
}

// findMatch applies the matching rules in priority order: amount within
// epsilon first, then narrowing by reference when several settlements share
// the amount. The second return value marks an ambiguous amount match that
// no reference hint could resolve.
func (e *Engine) findMatch(p *paymentmodel.Payment, settlements []recmodel.SettlementTransaction) (*recmodel.SettlementTransaction, bool) {
	var amountMatches []*recmodel.SettlementTransaction
	for i := range settlements {
		if diff(p.Amount, settlements[i].Amount) <= e.epsilon {
			amountMatches = append(amountMatches, &settlements[i])
		}
	}

	if len(amountMatches) == 1 {
		return amountMatches[0], false
	}

	if len(amountMatches) > 1 {
		var refMatches []*recmodel.SettlementTransaction
		for _, tx := range amountMatches {
			if e.referencesPayment(p, tx) {
				refMatches = append(refMatches, tx)
			}
		}
		if len(refMatches) == 1 {
			return refMatches[0], false
		}
		// Two or more settlements of the same amount and no unique
		// reference hint: picking one arbitrarily would be a guess.
		return nil, true
	}

	// No amount match. A settlement that names this payment's reference
	// with a different amount is still its settlement, and the caller
	// flags the amount mismatch.
	for i := range settlements {
		if e.referencesPayment(p, &settlements[i]) {
			return &settlements[i], false
		}
	}

	return nil, false
}

func (e *Engine) referencesPayment(p *paymentmodel.Payment, tx *recmodel.SettlementTransaction) bool {
	if p.RRR != "" && (strings.Contains(tx.Description, p.RRR) || tx.Reference == p.RRR) {
		return true
	}
	if p.Reference != "" && (strings.Contains(tx.Description, p.Reference) || tx.Reference == p.Reference) {
		return true
	}
	return false
}

func (e *Engine) acceptMatch(p *paymentmodel.Payment, tx *recmodel.SettlementTransaction, autoResolve bool) error {
	if err := e.payments.MarkReconciled(p.ID, tx.Reference, autoResolve); err != nil {
		return err
	}

	now := e.now().UTC()
	notes := "auto-reconciled against settlement feed"
	entry := &recmodel.LogEntry{
		PaymentID:     p.ID,
		PaymentAmount: p.Amount,
		BankAmount:    tx.Amount,
		PaymentRRR:    p.RRR,
		BankReference: &tx.Reference,
		Matched:       true,
		Notes:         &notes,
		Resolved:      autoResolve,
	}
	if autoResolve {
		entry.ResolvedAt = &now
	}

	if err := e.log.Append(entry); err != nil {
		// The payment flags are durable; a lost audit row is logged, not
		// fatal to the pass.
		e.logger.Error("failed to append reconciliation log entry", "error", err, "payment_id", p.ID)
	}

	e.logger.Info("payment reconciled",
		"payment_id", p.ID,
		"reference", p.Reference,
		"bank_reference", tx.Reference,
		"auto_resolve", autoResolve)

	return nil
}

func (e *Engine) appendDiscrepancy(p *paymentmodel.Payment, tx *recmodel.SettlementTransaction, reason, notes string) {
	entry := &recmodel.LogEntry{
		PaymentID:         p.ID,
		PaymentAmount:     p.Amount,
		PaymentRRR:        p.RRR,
		DiscrepancyReason: &reason,
		Notes:             &notes,
	}
	if tx != nil {
		entry.BankAmount = tx.Amount
		entry.BankReference = &tx.Reference
	}

	if err := e.log.Append(entry); err != nil {
		e.logger.Error("failed to append discrepancy entry", "error", err, "payment_id", p.ID)
		return
	}

	e.logger.Warn("reconciliation discrepancy",
		"payment_id", p.ID,
		"reference", p.Reference,
		"reason", reason)
}

// sweepStale flags in-flight payments older than the grace window so a
// payment whose settlement never arrives is surfaced instead of silently
// lost. Status stays untouched; closing the record is a manual decision.
func (e *Engine) sweepStale(summary *Summary) error {
	cutoff := e.now().UTC().Add(-e.graceWindow)

	stale, err := e.payments.StaleInFlight(cutoff)
	if err != nil {
		return err
	}

	for _, p := range stale {
		e.appendDiscrepancy(p, nil, recmodel.ReasonStalePayment,
			fmt.Sprintf("payment still %s after grace window", p.Status))
		summary.Discrepancies++
	}

	return nil
}

func diff(a, b int64) int64 {
	if a > b {
		return a - b
	}
	return b - a
}
