package model

import (
	"time"
)

// ResearchStatus is the four-state outcome of a runner search. Adapters never
// surface provider errors directly; every failure collapses into one of these.
type ResearchStatus string

const (
	ResearchFound     ResearchStatus = "found"
	ResearchAmbiguous ResearchStatus = "ambiguous"
	ResearchNotFound  ResearchStatus = "not_found"
	ResearchError     ResearchStatus = "error"
)

// RunnerResearch is the runner-tier cache: one logical record per order,
// append-only with latest-wins.
type RunnerResearch struct {
	ID                string         `json:"id"`
	OrderID           string         `json:"order_id"`
	RaceID            string         `json:"race_id,omitempty"`
	BibNumber         string         `json:"bib_number,omitempty"`
	OfficialTime      string         `json:"official_time,omitempty"`
	OfficialPace      string         `json:"official_pace,omitempty"`
	EventType         string         `json:"event_type,omitempty"`
	ResearchStatus    ResearchStatus `json:"research_status"`
	ResearchNotes     string         `json:"research_notes,omitempty"`
	RawProviderRecord []byte         `json:"raw_provider_record,omitempty"`
	CreatedAt         time.Time      `json:"created_at"`
}

// CandidateMatch is a provider search-result row normalized for matching.
// Ephemeral: used during matching and serialized into research notes for
// ambiguous outcomes, never persisted as its own row.
type CandidateMatch struct {
	Name  string `json:"name"`
	Bib   string `json:"bib,omitempty"`
	Time  string `json:"time,omitempty"`
	Event string `json:"event,omitempty"`
}

// ResearchPayload is the outcome shape consumed by the status API surface.
type ResearchPayload struct {
	Found     bool            `json:"found"`
	Ambiguous bool            `json:"ambiguous"`
	Race      *Race           `json:"race,omitempty"`
	Results   *RunnerResearch `json:"results,omitempty"`
}
