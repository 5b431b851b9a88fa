package graph

import (
	"fmt"
	"regexp"
	"strings"
)

// ExtractionContext is the (key, value, category) triple entities are
// extracted from — typically a memory's content plus its tags.
type ExtractionContext struct {
	Key      string
	Value    string
	Category string
}

// ExtractedEntity is one entity surfaced by the extractor, not yet written
// to the graph store.
type ExtractedEntity struct {
	ID         string
	Type       EntityType
	Name       string
	Properties map[string]string
	Priority   string
}

// ExtractionResult is the extractor's full output for one context.
type ExtractionResult struct {
	Entities   []ExtractedEntity
	Confidence float64
}

// entityPattern is one default rule the extractor applies: any match of
// Regex against the context value yields an entity of Type, named from the
// first capture group (or the whole match if there is none).
type entityPattern struct {
	Type  EntityType
	Regex *regexp.Regexp
}

// DefaultEntityPatterns returns the built-in, language-agnostic pattern
// table, one or more regexes per entry of the entity-type enum.
func DefaultEntityPatterns() []entityPattern {
	return []entityPattern{
		{Type: EntityError, Regex: regexp.MustCompile(`(?i)\b(?:error|exception|panic|failure)s?\s*[:\-]\s*([^\n.]{3,80})`)},
		{Type: EntityTask, Regex: regexp.MustCompile(`(?i)\b(?:TODO|FIXME|task)\s*[:\-]?\s*([^\n.]{3,80})`)},
		{Type: EntityDecision, Regex: regexp.MustCompile(`(?i)\b(?:decided to|we will|chose to|going with)\s+([^\n.]{3,80})`)},
		{Type: EntityEvent, Regex: regexp.MustCompile(`(?i)\bon\s+(\d{4}-\d{2}-\d{2})\b`)},
		{Type: EntityCodeFile, Regex: regexp.MustCompile(`\b([\w\-./]+\.(?:go|ts|tsx|js|py|rs|java|rb|md|json|yaml|yml))\b`)},
		{Type: EntityCodeFunction, Regex: regexp.MustCompile(`\b([a-zA-Z_][a-zA-Z0-9_]*)\s*\(\)`)},
		{Type: EntityCodeClass, Regex: regexp.MustCompile(`\b([A-Z][a-zA-Z0-9]*[a-z][A-Z][a-zA-Z0-9]*)\b`)},
		{Type: EntityOrganization, Regex: regexp.MustCompile(`\b([A-Z][\w&]*(?:\s[A-Z][\w&]*)*\s(?:Inc|Corp|LLC|Ltd|Co)\.?)\b`)},
		{Type: EntityPerson, Regex: regexp.MustCompile(`\b([A-Z][a-z]+\s[A-Z][a-z]+)\b`)},
		{Type: EntityConcept, Regex: regexp.MustCompile("`([a-zA-Z0-9_\\-]{2,40})`")},
	}
}

// priorityForCategory derives a coarse priority from a memory category; it
// is a heuristic, not part of any closed enum.
func priorityForCategory(category string) string {
	switch strings.ToLower(category) {
	case "error", "decision":
		return "high"
	case "task", "event":
		return "medium"
	default:
		return "low"
	}
}

// Extractor pulls entities out of free text using a fixed pattern table.
type Extractor struct {
	patterns []entityPattern
}

func NewExtractor() *Extractor {
	return &Extractor{patterns: DefaultEntityPatterns()}
}

// ExtractFromContext scans ctx.Value (falling back to ctx.Key when Value is
// empty) against the pattern table and returns every match as a candidate
// entity, with properties recording the source span.
func (x *Extractor) ExtractFromContext(ctx ExtractionContext) ExtractionResult {
	text := ctx.Value
	if text == "" {
		text = ctx.Key
	}
	priority := priorityForCategory(ctx.Category)

	entities := make([]ExtractedEntity, 0)
	seen := make(map[string]struct{})
	for _, p := range x.patterns {
		for _, loc := range p.Regex.FindAllStringSubmatchIndex(text, -1) {
			name, start, end := matchSpan(text, loc)
			if name == "" {
				continue
			}
			key := string(p.Type) + "|" + strings.ToLower(name)
			if _, dup := seen[key]; dup {
				continue
			}
			seen[key] = struct{}{}
			entities = append(entities, ExtractedEntity{
				ID:   GenerateID(string(p.Type), name),
				Type: p.Type,
				Name: name,
				Properties: map[string]string{
					"source-key":    ctx.Key,
					"source-start":  fmt.Sprintf("%d", start),
					"source-end":    fmt.Sprintf("%d", end),
					"source-category": ctx.Category,
				},
				Priority: priority,
			})
		}
	}

	return ExtractionResult{
		Entities:   entities,
		Confidence: extractionConfidence(entities, text),
	}
}

// matchSpan resolves a regex match's captured name and byte span, preferring
// the first capture group when one exists.
func matchSpan(text string, loc []int) (name string, start, end int) {
	if len(loc) >= 4 && loc[2] >= 0 {
		return strings.TrimSpace(text[loc[2]:loc[3]]), loc[2], loc[3]
	}
	if len(loc) >= 2 && loc[0] >= 0 {
		return strings.TrimSpace(text[loc[0]:loc[1]]), loc[0], loc[1]
	}
	return "", 0, 0
}

// extractionConfidence grows with how much of the text produced matches,
// saturating well below 1 so extraction never claims certainty a pattern
// match alone cannot justify.
func extractionConfidence(entities []ExtractedEntity, text string) float64 {
	if len(text) == 0 {
		return 0
	}
	density := float64(len(entities)) / (float64(len(text))/40 + 1)
	confidence := 0.2 + 0.5*density
	if confidence > 0.9 {
		confidence = 0.9
	}
	if len(entities) == 0 {
		confidence = 0
	}
	return confidence
}
