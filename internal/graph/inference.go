package graph

import (
	"regexp"
	"sort"
	"strings"
)

// Rule is one relationship-inference rule: if the source/target entity
// types match and enough patterns hit the context, a relationship of Type
// is proposed with the given base Weight.
type Rule struct {
	Type        RelationshipType
	SourceTypes []EntityType // empty means any type
	TargetTypes []EntityType // empty means any type
	Patterns    []*regexp.Regexp
	Weight      float64
}

func typeMatches(t EntityType, allowed []EntityType) bool {
	if len(allowed) == 0 {
		return true
	}
	for _, a := range allowed {
		if a == t {
			return true
		}
	}
	return false
}

// DefaultRules is the built-in rule table, one rule per relationship type.
func DefaultRules() []Rule {
	codeTypes := []EntityType{EntityCodeFile, EntityCodeFunction, EntityCodeClass}
	return []Rule{
		{
			Type:     RelDependsOn,
			Patterns: compileAll(`\bdepends on\b`, `\brequires\b`, `\bneeds\b`),
			Weight:   0.7,
		},
		{
			Type:        RelImplements,
			SourceTypes: codeTypes,
			TargetTypes: codeTypes,
			Patterns:    compileAll(`\bimplements\b`, `\bfulfills\b`, `\bsatisfies\b`),
			Weight:      0.8,
		},
		{
			Type:     RelUses,
			Patterns: compileAll(`\buses\b`, `\butilizes\b`, `\bleverages\b`, `\bcalls\b`),
			Weight:   0.6,
		},
		{
			Type:     RelReferences,
			Patterns: compileAll(`\breferences\b`, `\brefers to\b`, `\bsee also\b`, `\bsee\b`),
			Weight:   0.5,
		},
		{
			Type:     RelCauses,
			Patterns: compileAll(`\bcauses\b`, `\bleads to\b`, `\bresults in\b`, `\btriggers\b`),
			Weight:   0.7,
		},
		{
			Type:     RelBlocks,
			Patterns: compileAll(`\bblocks\b`, `\bblocked by\b`, `\bprevents\b`),
			Weight:   0.7,
		},
		{
			Type:     RelRelatedTo,
			Patterns: compileAll(`\brelated to\b`, `\bassociated with\b`, `\bconnected to\b`),
			Weight:   0.4,
		},
		{
			Type:        RelContains,
			SourceTypes: codeTypes,
			Patterns:    compileAll(`\bcontains\b`, `\bincludes\b`, `\bcomprises\b`),
			Weight:      0.6,
		},
		{
			Type:     RelFollows,
			Patterns: compileAll(`\bfollows\b`, `\bafter\b`, `\bsucceeds\b`),
			Weight:   0.5,
		},
		{
			Type:     RelDerivedFrom,
			Patterns: compileAll(`\bderived from\b`, `\bbased on\b`, `\boriginates from\b`),
			Weight:   0.6,
		},
	}
}

func compileAll(patterns ...string) []*regexp.Regexp {
	out := make([]*regexp.Regexp, 0, len(patterns))
	for _, p := range patterns {
		out = append(out, regexp.MustCompile(`(?i)`+p))
	}
	return out
}

// InferredRelationship is one candidate relationship surfaced by Infer.
type InferredRelationship struct {
	SourceID string
	TargetID string
	Type     RelationshipType
	Weight   float64
}

// InferenceOptions bounds Infer's output.
type InferenceOptions struct {
	MaxPerPair    int
	MinConfidence float64
}

// DefaultInferenceOptions matches the defaults a caller gets when it does
// not override them.
func DefaultInferenceOptions() InferenceOptions {
	return InferenceOptions{MaxPerPair: 3, MinConfidence: 0.3}
}

// InferenceResult is Infer's full output: the surviving relationships plus
// an overall confidence in the batch.
type InferenceResult struct {
	Relationships []InferredRelationship
	Confidence    float64
}

// Inferencer proposes relationships between entities from a rule table and
// the surrounding text they were extracted from.
type Inferencer struct {
	rules []Rule
}

func NewInferencer(rules []Rule) *Inferencer {
	if rules == nil {
		rules = DefaultRules()
	}
	return &Inferencer{rules: rules}
}

type pairKey struct {
	source string
	target string
}

// Infer proposes relationships for every ordered pair of distinct entities
// in entities, scored against context.
func (inf *Inferencer) Infer(entities []ExtractedEntity, context string, opts InferenceOptions) InferenceResult {
	if opts.MaxPerPair <= 0 {
		opts.MaxPerPair = DefaultInferenceOptions().MaxPerPair
	}
	lowerContext := strings.ToLower(context)

	// best[pairKey][relType] = highest-weight candidate for that pair+type.
	best := make(map[pairKey]map[RelationshipType]InferredRelationship)

	for _, source := range entities {
		for _, target := range entities {
			if source.ID == target.ID {
				continue
			}
			pk := pairKey{source: source.ID, target: target.ID}

			for _, rule := range inf.rules {
				if !typeMatches(source.Type, rule.SourceTypes) || !typeMatches(target.Type, rule.TargetTypes) {
					continue
				}

				sourcePresent := strings.Contains(lowerContext, strings.ToLower(source.Name))
				targetPresent := strings.Contains(lowerContext, strings.ToLower(target.Name))
				if !sourcePresent && !targetPresent {
					continue
				}

				matches := 0
				for _, pattern := range rule.Patterns {
					if pattern.MatchString(context) {
						matches++
					}
				}
				if matches == 0 {
					continue
				}

				proximityBonus := 0.0
				if sourcePresent && targetPresent {
					proximityBonus = 0.2
				}
				matchScore := float64(matches)/float64(len(rule.Patterns)) + proximityBonus
				if matchScore > 1 {
					matchScore = 1
				}
				if matchScore <= 0 {
					continue
				}

				weight := 0.6*matchScore + 0.4*rule.Weight
				if weight > 1 {
					weight = 1
				}
				if weight < 0.3 {
					weight = 0.3
				}

				if best[pk] == nil {
					best[pk] = make(map[RelationshipType]InferredRelationship)
				}
				if existing, ok := best[pk][rule.Type]; !ok || weight > existing.Weight {
					best[pk][rule.Type] = InferredRelationship{
						SourceID: source.ID,
						TargetID: target.ID,
						Type:     rule.Type,
						Weight:   weight,
					}
				}
			}
		}
	}

	all := make([]InferredRelationship, 0)
	for _, byType := range best {
		candidates := make([]InferredRelationship, 0, len(byType))
		for _, r := range byType {
			candidates = append(candidates, r)
		}
		sort.Slice(candidates, func(i, j int) bool { return candidates[i].Weight > candidates[j].Weight })
		if len(candidates) > opts.MaxPerPair {
			candidates = candidates[:opts.MaxPerPair]
		}
		all = append(all, candidates...)
	}

	minConfidence := opts.MinConfidence
	filtered := make([]InferredRelationship, 0, len(all))
	dedup := make(map[pairTypeKey]InferredRelationship)
	for _, r := range all {
		if r.Weight < minConfidence {
			continue
		}
		key := pairTypeKey{source: r.SourceID, target: r.TargetID, relType: r.Type}
		if existing, ok := dedup[key]; !ok || r.Weight > existing.Weight {
			dedup[key] = r
		}
	}
	for _, r := range dedup {
		filtered = append(filtered, r)
	}
	sort.Slice(filtered, func(i, j int) bool {
		if filtered[i].Weight != filtered[j].Weight {
			return filtered[i].Weight > filtered[j].Weight
		}
		if filtered[i].SourceID != filtered[j].SourceID {
			return filtered[i].SourceID < filtered[j].SourceID
		}
		return filtered[i].TargetID < filtered[j].TargetID
	})

	n := len(entities)
	confidence := 0.0
	if n >= 2 && len(filtered) > 0 {
		pairCount := float64(n*(n-1)) / 2
		quantityScore := float64(len(filtered)) / (0.25 * pairCount)
		if quantityScore > 1 {
			quantityScore = 1
		}
		sum := 0.0
		for _, r := range filtered {
			sum += r.Weight
		}
		qualityScore := sum / float64(len(filtered))
		confidence = 0.4*quantityScore + 0.6*qualityScore
		if confidence > 0.95 {
			confidence = 0.95
		}
	}

	return InferenceResult{Relationships: filtered, Confidence: confidence}
}

type pairTypeKey struct {
	source  string
	target  string
	relType RelationshipType
}
