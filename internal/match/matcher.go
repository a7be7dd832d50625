// Package match compares a queried runner name against provider result rows.
// Comparison tolerates case, diacritics, extra whitespace and token order
// ("Last, First" vs "First Last") but is deliberately not an edit-distance
// matcher: the same set of name tokens must be present on both sides.
// Ambiguity is a first-class outcome left to operator adjudication.
package match

import (
	"sort"
	"strings"
	"unicode"

	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"

	"github.com/milestone-prints/raceday/internal/model"
)

// Outcome classifies a match attempt.
type Outcome string

const (
	OutcomeFound     Outcome = "found"
	OutcomeAmbiguous Outcome = "ambiguous"
	OutcomeNotFound  Outcome = "not_found"
)

// Result carries the classified outcome. Candidate is set for Found;
// Candidates lists every passing row for Ambiguous, sorted so the result is
// independent of provider row order.
type Result struct {
	Outcome    Outcome
	Candidate  *model.CandidateMatch
	Candidates []model.CandidateMatch
}

// accent folding: NFD decompose, drop combining marks, recompose.
var foldTransformer = transform.Chain(norm.NFD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)

// Match classifies query against candidates: zero tolerant matches is
// NotFound, exactly one is Found, two or more is Ambiguous.
func Match(query string, candidates []model.CandidateMatch) Result {
	queryKey := nameKey(query)
	if queryKey == "" {
		return Result{Outcome: OutcomeNotFound}
	}

	var passing []model.CandidateMatch
	for _, c := range candidates {
		if nameKey(c.Name) == queryKey {
			passing = append(passing, c)
		}
	}

	switch len(passing) {
	case 0:
		return Result{Outcome: OutcomeNotFound}
	case 1:
		return Result{Outcome: OutcomeFound, Candidate: &passing[0]}
	default:
		sort.Slice(passing, func(i, j int) bool {
			if passing[i].Name != passing[j].Name {
				return passing[i].Name < passing[j].Name
			}
			if passing[i].Bib != passing[j].Bib {
				return passing[i].Bib < passing[j].Bib
			}
			return passing[i].Time < passing[j].Time
		})
		return Result{Outcome: OutcomeAmbiguous, Candidates: passing}
	}
}

// nameKey reduces a name to its canonical token-set form: accents folded,
// punctuation dropped, lower-cased, tokens sorted and re-joined.
func nameKey(name string) string {
	folded, _, err := transform.String(foldTransformer, name)
	if err != nil {
		folded = name
	}

	cleaned := strings.Map(func(r rune) rune {
		switch {
		case unicode.IsLetter(r) || unicode.IsDigit(r):
			return unicode.ToLower(r)
		default:
			return ' '
		}
	}, folded)

	tokens := strings.Fields(cleaned)
	if len(tokens) == 0 {
		return ""
	}
	sort.Strings(tokens)
	return strings.Join(tokens, " ")
}
