package model

import (
	"time"
)

// OrderStatus represents where an order sits in the research workflow.
type OrderStatus string

const (
	OrderStatusPending     OrderStatus = "pending"
	OrderStatusMissingYear OrderStatus = "missing_year"
	OrderStatusReady       OrderStatus = "ready"
	OrderStatusFlagged     OrderStatus = "flagged"
	OrderStatusCompleted   OrderStatus = "completed"
)

// DesignStatus tracks the design sub-workflow for custom orders.
type DesignStatus string

const (
	DesignStatusNotStarted         DesignStatus = "not_started"
	DesignStatusInProgress         DesignStatus = "in_progress"
	DesignStatusConceptsDone       DesignStatus = "concepts_done"
	DesignStatusInRevision         DesignStatus = "in_revision"
	DesignStatusApprovedByCustomer DesignStatus = "approved_by_customer"
	DesignStatusSentToProduction   DesignStatus = "sent_to_production"
)

// OrderSource identifies the marketplace an order was imported from.
type OrderSource string

const (
	OrderSourceEtsy    OrderSource = "etsy"
	OrderSourceShopify OrderSource = "shopify"
	OrderSourceAmazon  OrderSource = "amazon"
	OrderSourceManual  OrderSource = "manual"
)

// Order is one imported print order. RunnerName and RaceYear are nil when
// extraction could not resolve them; such orders route to missing_year.
type Order struct {
	ID           string        `json:"id"`
	OrderNumber  string        `json:"order_number"`
	Source       OrderSource   `json:"source"`
	RaceName     string        `json:"race_name"`
	RaceYear     *int          `json:"race_year,omitempty"`
	RunnerName   *string       `json:"runner_name,omitempty"`
	HadNoTime    bool          `json:"had_no_time"`
	Status       OrderStatus   `json:"status"`
	DesignStatus *DesignStatus `json:"design_status,omitempty"`
	Notes        string        `json:"notes,omitempty"`
	CreatedAt    time.Time     `json:"created_at"`
	ResearchedAt *time.Time    `json:"researched_at,omitempty"`
}

// RaceKey identifies the race an order is logically associated with.
// Year is zero when the order is still missing its race year.
func (o *Order) RaceKey() (name string, year int) {
	if o.RaceYear != nil {
		year = *o.RaceYear
	}
	return o.RaceName, year
}

// IsCustom reports whether the order carries the design sub-workflow.
func (o *Order) IsCustom() bool {
	return o.DesignStatus != nil
}
