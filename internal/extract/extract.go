// Package extract parses marketplace line-item property bags into structured
// race and runner facts. Extraction is pure: it never errors and always
// returns a fully-shaped result with nils for what it could not resolve.
package extract

import (
	"regexp"
	"strconv"
	"strings"
)

// LineItem is one line of an imported order as supplied by the
// personalization source.
type LineItem struct {
	Title      string     `json:"title"`
	Properties []Property `json:"properties"`
}

// Property is a single name/value personalization entry.
type Property struct {
	Name  string `json:"name"`
	Value string `json:"value"`
}

// Result is the extraction outcome for one order.
type Result struct {
	RaceName   string
	RunnerName *string
	RaceYear   *int

	// HadNoTime records that the buyer wrote a "no time" placeholder,
	// independent of whether any name text remained around it.
	HadNoTime bool

	// NeedsAttention is set when runner name or race year is still missing
	// after every rule has run.
	NeedsAttention bool

	// RawRunnerValue preserves the property value before cleaning, for
	// operator review of odd inputs.
	RawRunnerValue string
}

// Title suffixes stripped from race names, longest first so that
// "Personalized Race Print" wins over "Race Print".
var titleSuffixes = []string{
	"Personalized Race Print",
	"Race Print",
	"Print",
}

// Property-name aliases, matched after normalization (lower-case,
// underscores to spaces, collapsed whitespace). Marketplace templates have
// drifted over the years; every historical spelling stays here.
var (
	runnerNameAliases = []string{
		"runner name (first & last)",
		"runner name",
	}
	raceYearAliases = []string{"race year"}
	raceNameAliases = []string{"race name"}
)

var (
	noTimeRe       = regexp.MustCompile(`(?i)\bno\s+time\b`)
	multiSpaceRe   = regexp.MustCompile(`\s{2,}`)
	trailingYearRe = regexp.MustCompile(`\s+(20\d{2})$`)
)

// Extract runs the ordered extraction rules over the order's line items:
//
//  1. race name from the first line item's title, suffix-stripped
//  2. explicit "Race Name" property override (last non-empty match wins)
//  3. runner name from the alias set, cleaned of "no time" placeholders
//  4. race year from the explicit "Race Year" property
//  5. legacy fallback: trailing 4-digit year inside the runner-name string,
//     only when no explicit year property exists anywhere
func Extract(lineItems []LineItem) Result {
	var res Result

	if len(lineItems) > 0 {
		res.RaceName = ParseRaceName(lineItems[0].Title)
	}

	if name, ok := findProperty(lineItems, raceNameAliases); ok && strings.TrimSpace(name) != "" {
		res.RaceName = strings.TrimSpace(name)
	}

	if raw, ok := findProperty(lineItems, runnerNameAliases); ok {
		res.RawRunnerValue = raw
		cleaned, hadNoTime := CleanRunnerName(raw)
		res.RunnerName = cleaned
		res.HadNoTime = hadNoTime
	}

	yearValue, hasYearProp := findProperty(lineItems, raceYearAliases)
	if hasYearProp {
		if year, err := strconv.Atoi(strings.TrimSpace(yearValue)); err == nil {
			res.RaceYear = &year
		}
	}

	// Legacy combined "Name 2023" format, still seen when reprocessing old
	// orders. Runs only when no explicit year property exists at all: when
	// both formats appear, the explicit property wins and the runner name is
	// kept verbatim.
	if !hasYearProp && res.RunnerName != nil {
		if name, year, ok := splitTrailingYear(*res.RunnerName); ok {
			res.RaceYear = &year
			if name == "" {
				res.RunnerName = nil
			} else {
				res.RunnerName = &name
			}
		}
	}

	res.NeedsAttention = res.RunnerName == nil || res.RaceYear == nil
	return res
}

// ParseRaceName strips known product-title suffixes from a line-item title,
// case-insensitively, first (longest) match wins.
func ParseRaceName(title string) string {
	title = strings.TrimSpace(title)
	lower := strings.ToLower(title)
	for _, suffix := range titleSuffixes {
		if strings.HasSuffix(lower, strings.ToLower(suffix)) {
			return strings.TrimSpace(title[:len(title)-len(suffix)])
		}
	}
	return title
}

// CleanRunnerName trims a raw runner-name value and strips a whole-word
// "no time" token. The returned name is nil when nothing remains. hadNoTime
// records the placeholder independent of leftover text.
func CleanRunnerName(raw string) (cleaned *string, hadNoTime bool) {
	name := strings.TrimSpace(raw)
	if noTimeRe.MatchString(name) {
		hadNoTime = true
		name = noTimeRe.ReplaceAllString(name, " ")
	}
	name = strings.TrimSpace(multiSpaceRe.ReplaceAllString(name, " "))
	if name == "" {
		return nil, hadNoTime
	}
	return &name, hadNoTime
}

// findProperty scans every line item's properties against an alias set.
// The last matching non-empty value wins, mirroring how later marketplace
// rows override earlier template defaults.
func findProperty(lineItems []LineItem, aliases []string) (string, bool) {
	var (
		value string
		found bool
	)
	for _, li := range lineItems {
		for _, p := range li.Properties {
			if matchesAlias(p.Name, aliases) && strings.TrimSpace(p.Value) != "" {
				value = p.Value
				found = true
			}
		}
	}
	return value, found
}

func matchesAlias(name string, aliases []string) bool {
	norm := normalizePropertyName(name)
	for _, a := range aliases {
		if norm == a {
			return true
		}
	}
	return false
}

func normalizePropertyName(name string) string {
	name = strings.ToLower(strings.TrimSpace(name))
	name = strings.ReplaceAll(name, "_", " ")
	return multiSpaceRe.ReplaceAllString(name, " ")
}

// splitTrailingYear detects a trailing 4-digit year in the 2000–2099 range
// and returns the name without it.
func splitTrailingYear(name string) (string, int, bool) {
	m := trailingYearRe.FindStringSubmatchIndex(name)
	if m == nil {
		// A bare year with no name ahead of it still counts.
		if year, err := strconv.Atoi(name); err == nil && year >= 2000 && year <= 2099 {
			return "", year, true
		}
		return name, 0, false
	}
	year, err := strconv.Atoi(name[m[2]:m[3]])
	if err != nil || year < 2000 || year > 2099 {
		return name, 0, false
	}
	return strings.TrimSpace(name[:m[0]]), year, true
}
