// Package categorization labels transaction descriptions with spending
// categories. Exact keyword matching runs through an Aho-Corasick state
// machine so the whole vocabulary is matched in one pass over the text;
// a fuzzy pass catches misspelled or truncated merchant names.
package categorization

import (
	"strings"
	"sync"

	"github.com/cloudflare/ahocorasick"
	"github.com/lithammer/fuzzysearch/fuzzy"
)

// DefaultCategory labels rows no rule recognizes.
const DefaultCategory = "sin categoria"

// Rule binds a set of description keywords to one category.
type Rule struct {
	Category string
	Keywords []string
}

// DefaultRules is the built-in vocabulary for Mexican statements. Earlier
// rules win when several keywords hit the same description.
var DefaultRules = []Rule{
	{Category: "despensa", Keywords: []string{
		"OXXO", "SUPER", "SORIANA", "WALMART", "WAL-MART", "CHEDRAUI",
		"BODEGA AURRERA", "COSTCO", "SAMS", "LA COMER", "HEB",
	}},
	{Category: "servicios", Keywords: []string{
		"CFE", "TELMEX", "TELCEL", "AT&T", "IZZI", "TOTALPLAY",
		"MEGACABLE", "NETFLIX", "SPOTIFY", "AGUA Y DRENAJE", "GAS NATURAL",
	}},
	{Category: "combustible", Keywords: []string{
		"GASOLINERA", "PEMEX", "GASOL", "ESTACION DE SERVICIO", "SHELL", "MOBIL",
	}},
	{Category: "restaurantes", Keywords: []string{
		"RESTAURANT", "RAPPI", "UBER EATS", "DIDI FOOD", "STARBUCKS",
		"MCDONALD", "BURGER", "TACOS", "CAFE",
	}},
	{Category: "transporte", Keywords: []string{
		"UBER", "DIDI", "CABIFY", "METRO", "AUTOBUS", "CASETA", "TAG",
	}},
	{Category: "transferencias", Keywords: []string{
		"SPEI", "TRANSFERENCIA", "TRASPASO", "DEPOSITO A TERCEROS",
	}},
	{Category: "retiros", Keywords: []string{
		"RETIRO", "CAJERO", "DISPOSICION DE EFECTIVO",
	}},
	{Category: "comisiones", Keywords: []string{
		"COMISION", "ANUALIDAD", "MANEJO DE CUENTA",
	}},
	{Category: "nomina", Keywords: []string{
		"NOMINA", "PAGO DE NOMINA", "SUELDO",
	}},
}

// Engine matches descriptions against the keyword vocabulary. It is safe for
// concurrent use; Build may be called to swap the rule set at runtime.
type Engine struct {
	mu       sync.RWMutex
	matcher  *ahocorasick.Matcher
	keywords []string
	category []string // category per keyword index
	minFuzzy int      // minimum keyword length for the fuzzy pass
}

// NewEngine builds an engine over the given rules, or DefaultRules when none
// are passed.
func NewEngine(rules []Rule) *Engine {
	if len(rules) == 0 {
		rules = DefaultRules
	}
	e := &Engine{minFuzzy: 5}
	e.Build(rules)
	return e
}

// Build recompiles the matcher from a rule set.
func (e *Engine) Build(rules []Rule) {
	var keywords []string
	var category []string
	for _, r := range rules {
		for _, kw := range r.Keywords {
			kw = strings.ToUpper(strings.TrimSpace(kw))
			if kw == "" {
				continue
			}
			keywords = append(keywords, kw)
			category = append(category, r.Category)
		}
	}

	e.mu.Lock()
	defer e.mu.Unlock()
	e.keywords = keywords
	e.category = category
	if len(keywords) == 0 {
		e.matcher = nil
		return
	}
	e.matcher = ahocorasick.NewStringMatcher(keywords)
}

// Categorize returns the category for one description. Exact keyword hits
// win; a fuzzy pass over the longer keywords catches near-misses. Unmatched
// descriptions get DefaultCategory.
func (e *Engine) Categorize(description string) string {
	text := strings.ToUpper(strings.TrimSpace(description))
	if text == "" {
		return DefaultCategory
	}

	e.mu.RLock()
	defer e.mu.RUnlock()
	if e.matcher == nil {
		return DefaultCategory
	}

	hits := e.matcher.Match([]byte(text))
	if len(hits) > 0 {
		// Hits arrive unordered; the lowest pattern index is the earliest,
		// highest-priority rule.
		best := hits[0]
		for _, h := range hits[1:] {
			if h < best {
				best = h
			}
		}
		return e.category[best]
	}

	return e.fuzzyCategory(text)
}

// fuzzyCategory ranks the longer keywords by edit distance against every
// word of the description. Short keywords are excluded: at three or four
// characters almost anything is one edit away.
func (e *Engine) fuzzyCategory(text string) string {
	words := strings.Fields(text)
	bestRank := -1
	bestIdx := -1
	for i, kw := range e.keywords {
		if len(kw) < e.minFuzzy || strings.ContainsRune(kw, ' ') {
			continue
		}
		for _, w := range words {
			rank := fuzzy.RankMatchFold(kw, w)
			if rank < 0 || rank > len(kw)/3 {
				continue
			}
			if bestRank == -1 || rank < bestRank {
				bestRank = rank
				bestIdx = i
			}
		}
	}
	if bestIdx >= 0 {
		return e.category[bestIdx]
	}
	return DefaultCategory
}
