package analyzer

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/rs/zerolog"

	"github.com/jyntrix/memctx-go/pkg/llm"
	"github.com/jyntrix/memctx-go/pkg/storage"
)

// refineThreshold is the rule-based confidence below which the LLM is
// consulted for a second opinion.
const refineThreshold = 0.6

const refinePrompt = `You analyze user queries for a memory retrieval system.
Given a query, respond with a JSON object containing:
  "intent": one of "recall", "question", "command", "conversation"
  "keywords": up to %d important keywords (lowercase)
  "entities": named entities mentioned (people, places, products)
  "requires_memory": whether answering needs stored user memories
  "memory_types": subset of ["profile", "semantic", "episodic", "procedural"]

Respond with only the JSON object.`

// LLMAnalyzer wraps a RuleAnalyzer and refines low-confidence analyses
// with an LLM. LLM failures are logged and the rule-based result is
// returned, so Analyze never fails.
type LLMAnalyzer struct {
	rules    *RuleAnalyzer
	provider llm.Provider
	logger   zerolog.Logger
}

// NewLLMAnalyzer creates an analyzer that refines rule-based results
// with the given LLM provider.
func NewLLMAnalyzer(provider llm.Provider, logger zerolog.Logger) *LLMAnalyzer {
	return &LLMAnalyzer{
		rules:    NewRuleAnalyzer(),
		provider: provider,
		logger:   logger.With().Str("component", "analyzer").Logger(),
	}
}

// Analyze analyzes the query, consulting the LLM when the rule-based
// confidence is low.
func (a *LLMAnalyzer) Analyze(ctx context.Context, query string) (*Analysis, error) {
	base, err := a.rules.Analyze(ctx, query)
	if err != nil {
		return nil, err
	}
	if base.Confidence >= refineThreshold || a.provider == nil {
		return base, nil
	}

	refined, err := a.refine(ctx, query, base)
	if err != nil {
		a.logger.Warn().Err(err).Str("query", query).Msg("llm refinement failed, using rule-based analysis")
		return base, nil
	}
	return refined, nil
}

type refineResponse struct {
	Intent         string   `json:"intent"`
	Keywords       []string `json:"keywords"`
	Entities       []string `json:"entities"`
	RequiresMemory bool     `json:"requires_memory"`
	MemoryTypes    []string `json:"memory_types"`
}

func (a *LLMAnalyzer) refine(ctx context.Context, query string, base *Analysis) (*Analysis, error) {
	messages := []llm.Message{
		{Role: "system", Content: fmt.Sprintf(refinePrompt, MaxKeywords)},
		{Role: "user", Content: query},
	}

	raw, err := a.provider.Generate(ctx, messages, llm.GenerateOptions{
		Temperature: 0,
		MaxTokens:   500,
		JSONMode:    true,
	})
	if err != nil {
		return nil, err
	}

	var resp refineResponse
	if err := json.Unmarshal([]byte(extractJSON(raw)), &resp); err != nil {
		return nil, fmt.Errorf("invalid llm analysis response: %w", err)
	}

	refined := *base
	if intent := Intent(resp.Intent); validIntent(intent) {
		refined.Intent = intent
	}
	if len(resp.Keywords) > 0 {
		if len(resp.Keywords) > MaxKeywords {
			resp.Keywords = resp.Keywords[:MaxKeywords]
		}
		refined.Keywords = resp.Keywords
	}
	if len(resp.Entities) > 0 {
		refined.Entities = resp.Entities
	}
	refined.RequiresMemory = resp.RequiresMemory
	if types := parseMemoryTypes(resp.MemoryTypes); len(types) > 0 {
		refined.MemoryTypes = types
	}
	refined.Confidence = refineThreshold

	return &refined, nil
}

func validIntent(i Intent) bool {
	switch i {
	case IntentRecall, IntentQuestion, IntentCommand, IntentConversation:
		return true
	}
	return false
}

func parseMemoryTypes(raw []string) []storage.MemoryType {
	var types []storage.MemoryType
	for _, r := range raw {
		t := storage.MemoryType(strings.ToLower(strings.TrimSpace(r)))
		switch t {
		case storage.TypeProfile, storage.TypeSemantic, storage.TypeEpisodic, storage.TypeProcedural:
			types = append(types, t)
		}
	}
	return types
}

// extractJSON strips markdown code fences some models wrap around JSON.
func extractJSON(raw string) string {
	raw = strings.TrimSpace(raw)
	if strings.HasPrefix(raw, "```") {
		raw = strings.TrimPrefix(raw, "```json")
		raw = strings.TrimPrefix(raw, "```")
		raw = strings.TrimSuffix(raw, "```")
		raw = strings.TrimSpace(raw)
	}
	if start := strings.Index(raw, "{"); start > 0 {
		if end := strings.LastIndex(raw, "}"); end > start {
			raw = raw[start : end+1]
		}
	}
	return raw
}
