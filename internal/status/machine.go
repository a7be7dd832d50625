// Package status implements the order status machine: pure transition
// functions driven by research outcomes and operator actions. All persistence
// is the caller's responsibility.
package status

import (
	"time"

	"github.com/rotisserie/eris"

	"github.com/milestone-prints/raceday/internal/model"
)

// primaryTransitions lists the legal moves of the primary machine. Completed
// is re-enterable only via design-status reversal, which bypasses this table.
var primaryTransitions = map[model.OrderStatus][]model.OrderStatus{
	model.OrderStatusPending:     {model.OrderStatusMissingYear, model.OrderStatusReady, model.OrderStatusFlagged},
	model.OrderStatusMissingYear: {model.OrderStatusReady, model.OrderStatusFlagged},
	model.OrderStatusReady:       {model.OrderStatusCompleted, model.OrderStatusFlagged},
	model.OrderStatusFlagged:     {model.OrderStatusCompleted},
	model.OrderStatusCompleted:   {model.OrderStatusFlagged},
}

// designOrder is the forward sequence of the design sub-machine. Reverse
// moves are legal (revisions reopen earlier stages).
var designOrder = []model.DesignStatus{
	model.DesignStatusNotStarted,
	model.DesignStatusInProgress,
	model.DesignStatusConceptsDone,
	model.DesignStatusInRevision,
	model.DesignStatusApprovedByCustomer,
	model.DesignStatusSentToProduction,
}

// CanTransition reports whether the primary machine allows from → to.
func CanTransition(from, to model.OrderStatus) bool {
	for _, next := range primaryTransitions[from] {
		if next == to {
			return true
		}
	}
	return false
}

// MarkNeedsAttention routes an order whose extraction or research left a
// required field unresolved to missing_year.
func MarkNeedsAttention(o *model.Order) error {
	if o.Status == model.OrderStatusMissingYear {
		return nil
	}
	return transition(o, model.OrderStatusMissingYear)
}

// MarkReady promotes an order after research found a match, or after an
// operator accepted an ambiguous candidate.
func MarkReady(o *model.Order) error {
	if o.Status == model.OrderStatusReady {
		return nil
	}
	return transition(o, model.OrderStatusReady)
}

// Flag is operator-initiated and independent of research outcome.
func Flag(o *model.Order) error {
	if o.Status == model.OrderStatusFlagged {
		return nil
	}
	o.Status = model.OrderStatusFlagged
	return nil
}

// Complete marks an order done and stamps researchedAt. Only ready and
// flagged orders can be completed directly.
func Complete(o *model.Order, now time.Time) error {
	if err := transition(o, model.OrderStatusCompleted); err != nil {
		return err
	}
	t := now.UTC()
	o.ResearchedAt = &t
	return nil
}

// SetDesignStatus moves the design sub-machine and applies its coupling to
// the primary machine: entering sent_to_production forces completed and
// stamps researchedAt; leaving it resets the order to pending and clears
// researchedAt so the production queue reflects design readiness.
func SetDesignStatus(o *model.Order, ds model.DesignStatus, now time.Time) error {
	if !validDesignStatus(ds) {
		return eris.Errorf("status: unknown design status %q", ds)
	}

	wasProduction := o.DesignStatus != nil && *o.DesignStatus == model.DesignStatusSentToProduction
	o.DesignStatus = &ds

	switch {
	case ds == model.DesignStatusSentToProduction:
		o.Status = model.OrderStatusCompleted
		t := now.UTC()
		o.ResearchedAt = &t
	case wasProduction:
		o.Status = model.OrderStatusPending
		o.ResearchedAt = nil
	}
	return nil
}

func transition(o *model.Order, to model.OrderStatus) error {
	if !CanTransition(o.Status, to) {
		return eris.Errorf("status: illegal transition %s -> %s for order %s", o.Status, to, o.OrderNumber)
	}
	o.Status = to
	return nil
}

func validDesignStatus(ds model.DesignStatus) bool {
	for _, d := range designOrder {
		if d == ds {
			return true
		}
	}
	return false
}
