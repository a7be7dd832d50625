package source

import (
	"encoding/json"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/milestone-prints/raceday/internal/match"
	"github.com/milestone-prints/raceday/internal/model"
)

// classify delegates candidate selection to the name matcher and shapes the
// adapter outcome: one passing candidate becomes found with normalized
// time/pace, several become ambiguous with the full list in the notes, none
// becomes not_found. The system never auto-picks among ambiguous matches.
// event is the venue default; a candidate row carrying its own event (multi
// event weekends) overrides it, so pace is derived on that runner's distance.
func classify(venue, query, event string, candidates []model.CandidateMatch, raw []byte) Outcome {
	res := match.Match(query, candidates)

	switch res.Outcome {
	case match.OutcomeFound:
		if res.Candidate.Event != "" {
			event = res.Candidate.Event
		}
		return foundOutcome(venue, event, *res.Candidate, raw)

	case match.OutcomeAmbiguous:
		notes, err := json.Marshal(res.Candidates)
		if err != nil {
			notes = []byte("[]")
		}
		return Outcome{
			Status:     model.ResearchAmbiguous,
			EventType:  event,
			Notes:      fmt.Sprintf("%d candidates for %q: %s", len(res.Candidates), query, notes),
			RawRecord:  raw,
			Candidates: res.Candidates,
		}

	default:
		return notFoundOutcome(query)
	}
}

// foundOutcome normalizes the single passing candidate's time and derives
// pace when the event distance is known.
func foundOutcome(venue, event string, c model.CandidateMatch, raw []byte) Outcome {
	out := Outcome{
		Status:    model.ResearchFound,
		BibNumber: c.Bib,
		EventType: event,
		RawRecord: raw,
	}

	if strings.TrimSpace(c.Time) != "" {
		canonical, err := NormalizeTime(c.Time)
		if err != nil {
			zap.L().Warn("unparseable finish time from provider",
				zap.String("venue", venue),
				zap.String("raw_time", c.Time),
				zap.Error(err),
			)
			out.Notes = "finish time unparseable: " + c.Time
		} else {
			out.OfficialTime = canonical
			if miles := DistanceForEvent(event); miles > 0 {
				if pace, paceErr := DerivePace(canonical, miles); paceErr == nil {
					out.OfficialPace = pace
				}
			}
		}
	}

	if out.BibNumber == "" && out.OfficialTime == "" {
		// A found record with neither bib nor time is useless for the
		// print; demote it so the operator looks at the raw row.
		out.Status = model.ResearchNotFound
		out.Notes = "provider row had no bib or finish time"
	}
	return out
}
