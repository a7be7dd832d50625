package source

import (
	_ "embed"
	"regexp"
	"sort"
	"strings"

	"github.com/rotisserie/eris"
	"gopkg.in/yaml.v3"
)

//go:embed aliases.yaml
var aliasesYAML []byte

// ErrNoAdapter is returned when a race name resolves to no known venue.
// Permanent: callers should offer the operator the supported list rather
// than retry.
var ErrNoAdapter = eris.New("source: no adapter available for race")

// venueSpec is one entry of the embedded alias table.
type venueSpec struct {
	Canonical  string   `yaml:"canonical"`
	AdapterID  string   `yaml:"adapter"`
	Aliases    []string `yaml:"aliases"`
	Keywords   []string `yaml:"keywords"`
	Standalone []string `yaml:"standalone"`
}

type adapterCtor func(env *Env, year int) Adapter

// adapterCtors maps alias-table adapter ids to venue constructors.
var adapterCtors = map[string]adapterCtor{
	"nyc":          newNYCAdapter,
	"chicago":      newChicagoAdapter,
	"boston":       newBostonAdapter,
	"marinecorps":  newMarineCorpsAdapter,
	"philadelphia": newPhiladelphiaAdapter,
}

// Registry resolves race names to venue adapters. Adapters are constructed
// fresh per request (they are cheap, and per-instance state must not leak
// across years); the registry itself is immutable after construction.
type Registry struct {
	env        *Env
	venues     []venueSpec
	exact      map[string]int // alias -> venues index
	exactLower map[string]int
}

// NewRegistry parses the embedded alias table and wires adapter
// constructors.
func NewRegistry(env *Env) (*Registry, error) {
	var table struct {
		Venues []venueSpec `yaml:"venues"`
	}
	if err := yaml.Unmarshal(aliasesYAML, &table); err != nil {
		return nil, eris.Wrap(err, "source: parse alias table")
	}

	r := &Registry{
		env:        env,
		venues:     table.Venues,
		exact:      make(map[string]int),
		exactLower: make(map[string]int),
	}
	for i, v := range table.Venues {
		if _, ok := adapterCtors[v.AdapterID]; !ok {
			return nil, eris.Errorf("source: alias table references unknown adapter %q", v.AdapterID)
		}
		names := append([]string{v.Canonical}, v.Aliases...)
		for _, name := range names {
			r.exact[name] = i
			r.exactLower[strings.ToLower(name)] = i
		}
	}
	return r, nil
}

// Resolve maps a race name to a freshly-constructed adapter for the given
// year. Resolution tries, in order: exact alias match, case-insensitive
// alias match, then the keyword heuristic.
func (r *Registry) Resolve(raceName string, year int) (Adapter, error) {
	idx, ok := r.lookup(raceName)
	if !ok {
		return nil, eris.Wrapf(ErrNoAdapter, "race %q", raceName)
	}
	spec := r.venues[idx]
	return adapterCtors[spec.AdapterID](r.env, year), nil
}

// Supports reports whether a race name routes to any adapter.
func (r *Registry) Supports(raceName string) bool {
	_, ok := r.lookup(raceName)
	return ok
}

// ListSupported returns the canonical venue names, aliases collapsed,
// sorted for stable operator-facing output.
func (r *Registry) ListSupported() []string {
	names := make([]string, 0, len(r.venues))
	for _, v := range r.venues {
		names = append(names, v.Canonical)
	}
	sort.Strings(names)
	return names
}

// Aliases returns every known spelling for a canonical venue name.
func (r *Registry) Aliases(canonical string) []string {
	for _, v := range r.venues {
		if v.Canonical == canonical {
			return append([]string(nil), v.Aliases...)
		}
	}
	return nil
}

var nonAlnumRe = regexp.MustCompile(`[^a-z0-9 ]+`)

func (r *Registry) lookup(raceName string) (int, bool) {
	name := strings.TrimSpace(raceName)
	if name == "" {
		return 0, false
	}

	if idx, ok := r.exact[name]; ok {
		return idx, true
	}
	if idx, ok := r.exactLower[strings.ToLower(name)]; ok {
		return idx, true
	}

	// Keyword heuristic, for sponsor prefixes and punctuation drift the
	// alias table has not caught up with. A venue keyword alone is not
	// enough: the name must also say "marathon", so a print for the
	// "Chicago Lakefront 10K" never routes to the marathon adapter.
	norm := nonAlnumRe.ReplaceAllString(strings.ToLower(name), " ")
	norm = strings.Join(strings.Fields(norm), " ")
	hasMarathon := strings.Contains(norm, "marathon")

	for i, v := range r.venues {
		for _, kw := range v.Standalone {
			if norm == kw {
				return i, true
			}
		}
		if !hasMarathon {
			continue
		}
		for _, kw := range v.Keywords {
			if strings.Contains(norm, kw) {
				return i, true
			}
		}
	}
	return 0, false
}
