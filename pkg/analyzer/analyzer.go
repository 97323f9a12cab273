// Package analyzer turns a raw user query into a structured analysis
// that drives retrieval strategy selection: intent, keywords, topics,
// entities, time references, and which memory types to search.
package analyzer

import (
	"context"
	"math"
	"regexp"
	"sort"
	"strings"

	"github.com/jyntrix/memctx-go/pkg/storage"
)

// Intent classifies what the user is trying to do with a query.
type Intent string

const (
	IntentRecall       Intent = "recall"
	IntentQuestion     Intent = "question"
	IntentCommand      Intent = "command"
	IntentConversation Intent = "conversation"
)

// MaxKeywords caps the number of keywords extracted from a query.
const MaxKeywords = 10

// maxTopics and maxEntities cap the respective extracted lists.
const (
	maxTopics   = 10
	maxEntities = 10
)

// Analysis is the structured result of analyzing a query.
type Analysis struct {
	OriginalQuery  string               `json:"original_query"`
	Intent         Intent               `json:"intent"`
	Keywords       []string             `json:"keywords"`
	Topics         []string             `json:"topics"`
	Entities       []string             `json:"entities"`
	TimeReference  string               `json:"time_reference,omitempty"`
	RequiresMemory bool                 `json:"requires_memory"`
	MemoryTypes    []storage.MemoryType `json:"memory_types"`
	Confidence     float64              `json:"confidence"`
}

// Analyzer produces an Analysis for a query.
type Analyzer interface {
	Analyze(ctx context.Context, query string) (*Analysis, error)
}

// Fallback returns a conservative analysis used when analysis fails:
// memory is assumed required and all memory types are searched.
func Fallback(query string) *Analysis {
	return &Analysis{
		OriginalQuery:  query,
		Intent:         IntentConversation,
		RequiresMemory: true,
		MemoryTypes:    storage.AllTypes,
		Confidence:     0.0,
	}
}

var (
	recallPatterns = []*regexp.Regexp{
		regexp.MustCompile(`\b(remember|recall|told|said|mentioned|discussed|talked about)\b`),
		regexp.MustCompile(`\b(last time|before|previously|earlier|when did)\b`),
		regexp.MustCompile(`\b(what was|what were|what did)\b`),
		regexp.MustCompile(`\b(my|our) (favorite|preference|choice)\b`),
	}

	questionPatterns = []*regexp.Regexp{
		regexp.MustCompile(`^(what|who|where|when|why|how|which|can|could|would|should|is|are|do|does)\b`),
		regexp.MustCompile(`\?$`),
		regexp.MustCompile(`\b(explain|describe|tell me about|define)\b`),
	}

	commandPatterns = []*regexp.Regexp{
		regexp.MustCompile(`^(create|make|build|write|generate|add|update|delete|remove)\b`),
		regexp.MustCompile(`^(set|configure|change|modify|fix|solve|help)\b`),
		regexp.MustCompile(`^(please|can you|could you|would you)\s+(create|make|write|help)\b`),
	}

	timePatterns = []struct {
		re   *regexp.Regexp
		kind string
	}{
		{regexp.MustCompile(`\b(today|now|currently)\b`), "present"},
		{regexp.MustCompile(`\b(yesterday|last night)\b`), "recent"},
		{regexp.MustCompile(`\b(last week|past week)\b`), "week"},
		{regexp.MustCompile(`\b(last month|past month)\b`), "month"},
		{regexp.MustCompile(`\b(last year|past year)\b`), "year"},
		{regexp.MustCompile(`\b(\d{1,2}[/-]\d{1,2}[/-]\d{2,4})\b`), "specific_date"},
		{regexp.MustCompile(`\b(january|february|march|april|may|june|july|august|september|october|november|december)\b`), "month_name"},
	}

	entityPatterns = []*regexp.Regexp{
		regexp.MustCompile(`\b([A-Z][a-z]+ [A-Z][a-z]+)\b`),
		regexp.MustCompile(`\b([A-Z][a-z]+'s)\b`),
		regexp.MustCompile(`\b(Mr\.|Mrs\.|Ms\.|Dr\.) ([A-Z][a-z]+)\b`),
		regexp.MustCompile(`(@\w+)\b`),
		regexp.MustCompile(`\b([A-Z][A-Z]+)\b`),
	}

	wordPattern      = regexp.MustCompile(`\b\w+\b`)
	quotedPattern    = regexp.MustCompile(`"([^"]+)"`)
	aboutPattern     = regexp.MustCompile(`\babout\s+(\w+(?:\s+\w+)?)\b`)
	regardingPattern = regexp.MustCompile(`\bregarding\s+(\w+(?:\s+\w+)?)\b`)
)

var stopwords = map[string]struct{}{}

func init() {
	for _, w := range strings.Fields(
		"a an and are as at be by for from has he in is it its of on that the " +
			"to was were will with this they their what when where which while who " +
			"whom why would could should have had been being can do does did done " +
			"i me my myself we our ours you your yours him his she her hers them " +
			"theirs please thanks thank hello hi hey") {
		stopwords[w] = struct{}{}
	}
}

// RuleAnalyzer performs lightweight rule-based query analysis with no
// external dependencies. It is always safe to call and never fails.
type RuleAnalyzer struct{}

// NewRuleAnalyzer creates a rule-based query analyzer.
func NewRuleAnalyzer() *RuleAnalyzer {
	return &RuleAnalyzer{}
}

// Analyze analyzes the query using pattern matching.
func (a *RuleAnalyzer) Analyze(_ context.Context, query string) (*Analysis, error) {
	lower := strings.ToLower(strings.TrimSpace(query))

	intent := detectIntent(lower)
	keywords := extractKeywords(query)
	topics := extractTopics(query)
	entities := detectEntities(query)
	timeRef := detectTimeReference(lower)

	return &Analysis{
		OriginalQuery:  query,
		Intent:         intent,
		Keywords:       keywords,
		Topics:         topics,
		Entities:       entities,
		TimeReference:  timeRef,
		RequiresMemory: requiresMemory(intent, lower),
		MemoryTypes:    determineMemoryTypes(intent, lower),
		Confidence:     calculateConfidence(intent, keywords, lower),
	}, nil
}

func detectIntent(lower string) Intent {
	for _, p := range recallPatterns {
		if p.MatchString(lower) {
			return IntentRecall
		}
	}
	for _, p := range commandPatterns {
		if p.MatchString(lower) {
			return IntentCommand
		}
	}
	for _, p := range questionPatterns {
		if p.MatchString(lower) {
			return IntentQuestion
		}
	}
	return IntentConversation
}

func extractKeywords(query string) []string {
	words := wordPattern.FindAllString(strings.ToLower(query), -1)

	seen := make(map[string]struct{}, len(words))
	keywords := make([]string, 0, len(words))
	for _, w := range words {
		if len(w) <= 2 {
			continue
		}
		if _, stop := stopwords[w]; stop {
			continue
		}
		if _, dup := seen[w]; dup {
			continue
		}
		seen[w] = struct{}{}
		keywords = append(keywords, w)
		if len(keywords) == MaxKeywords {
			break
		}
	}
	return keywords
}

func extractTopics(query string) []string {
	var raw []string
	for _, m := range quotedPattern.FindAllStringSubmatch(query, -1) {
		raw = append(raw, m[1])
	}
	lower := strings.ToLower(query)
	for _, m := range aboutPattern.FindAllStringSubmatch(lower, -1) {
		raw = append(raw, m[1])
	}
	for _, m := range regardingPattern.FindAllStringSubmatch(lower, -1) {
		raw = append(raw, m[1])
	}

	seen := make(map[string]struct{}, len(raw))
	topics := make([]string, 0, len(raw))
	for _, t := range raw {
		t = strings.ToLower(strings.TrimSpace(t))
		if len(t) <= 2 {
			continue
		}
		if _, dup := seen[t]; dup {
			continue
		}
		seen[t] = struct{}{}
		topics = append(topics, t)
		if len(topics) == maxTopics {
			break
		}
	}
	sort.Strings(topics)
	return topics
}

func detectEntities(query string) []string {
	seen := make(map[string]struct{})
	var entities []string
	for _, p := range entityPatterns {
		for _, m := range p.FindAllStringSubmatch(query, -1) {
			entity := strings.TrimSpace(strings.Join(m[1:], " "))
			if len(entity) <= 1 {
				continue
			}
			if _, dup := seen[entity]; dup {
				continue
			}
			seen[entity] = struct{}{}
			entities = append(entities, entity)
		}
	}
	sort.Strings(entities)
	if len(entities) > maxEntities {
		entities = entities[:maxEntities]
	}
	return entities
}

func detectTimeReference(lower string) string {
	for _, tp := range timePatterns {
		if tp.re.MatchString(lower) {
			return tp.kind
		}
	}
	return ""
}

func requiresMemory(intent Intent, lower string) bool {
	switch intent {
	case IntentRecall:
		return true
	case IntentCommand:
		for _, hint := range []string{"my", "prefer", "usual", "always", "like"} {
			if strings.Contains(lower, hint) {
				return true
			}
		}
		return false
	case IntentQuestion:
		words := strings.Fields(lower)
		for _, hint := range []string{"my", "i", "me", "we", "our"} {
			for _, w := range words {
				if w == hint {
					return true
				}
			}
		}
		return false
	default:
		return true
	}
}

func determineMemoryTypes(intent Intent, lower string) []storage.MemoryType {
	switch intent {
	case IntentRecall:
		return storage.AllTypes
	case IntentQuestion:
		types := []storage.MemoryType{storage.TypeSemantic, storage.TypeProfile}
		if strings.Contains(lower, "how") || strings.Contains(lower, "process") || strings.Contains(lower, "step") {
			types = append(types, storage.TypeProcedural)
		}
		return types
	case IntentCommand:
		return []storage.MemoryType{storage.TypeProcedural, storage.TypeProfile}
	default:
		return []storage.MemoryType{storage.TypeEpisodic, storage.TypeSemantic, storage.TypeProfile}
	}
}

func calculateConfidence(intent Intent, keywords []string, lower string) float64 {
	confidence := 0.5

	if len(keywords) >= 3 {
		confidence += 0.1
	}
	if len(keywords) >= 5 {
		confidence += 0.1
	}

	switch intent {
	case IntentRecall:
		confidence += 0.2
	case IntentQuestion, IntentCommand:
		confidence += 0.15
	}

	words := len(strings.Fields(lower))
	if words >= 5 && words <= 30 {
		confidence += 0.1
	} else if words > 30 {
		confidence -= 0.1
	}

	return math.Min(1.0, math.Max(0.0, confidence))
}
