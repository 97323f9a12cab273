package contextpack

import (
	"github.com/jyntrix/memctx-go/pkg/ranking"
	"github.com/jyntrix/memctx-go/pkg/retrieval"
	"github.com/jyntrix/memctx-go/pkg/storage"
	"github.com/jyntrix/memctx-go/pkg/tokenizer"
)

// Builder assembles ranked memories into a MemoryContext, filling each
// category greedily in ranked order up to its token budget.
type Builder struct {
	budget  TokenBudget
	counter tokenizer.Counter
}

// NewBuilder creates a context builder. The budget must already be
// validated.
func NewBuilder(budget TokenBudget, counter tokenizer.Counter) *Builder {
	return &Builder{budget: budget, counter: counter}
}

// Build packs the ranked memories and trailing conversation history
// into a budgeted context.
//
// Memories are grouped by declared type, except memories reached only
// through the entity graph, which go to the entity section. Each
// section is filled greedily in ranked order: the first memory whose
// cost would overflow the section's budget stops the fill and marks
// the section truncated. A hard total cap applies on top of the
// per-section caps.
//
// Empty input yields a valid empty context.
func (b *Builder) Build(ranked []ranking.RankedMemory, history []string) *MemoryContext {
	buckets := map[storage.MemoryType][]ranking.RankedMemory{}
	var entityBucket []ranking.RankedMemory

	for _, m := range ranked {
		if m.Memory == nil {
			continue
		}
		if graphOnly(m) {
			entityBucket = append(entityBucket, m)
			continue
		}
		buckets[m.Memory.Type] = append(buckets[m.Memory.Type], m)
	}

	ctx := &MemoryContext{}
	total := 0

	fill := func(candidates []ranking.RankedMemory, budget int) Section {
		var s Section
		for _, m := range candidates {
			cost := b.counter.Count(m.Memory.Content)
			if s.Tokens+cost > budget || total+cost > b.budget.MaxTotal {
				s.Truncated = true
				break
			}
			s.Memories = append(s.Memories, m)
			s.Tokens += cost
			total += cost
		}
		return s
	}

	ctx.Profile = fill(buckets[storage.TypeProfile], b.budget.Profile)
	ctx.Semantic = fill(buckets[storage.TypeSemantic], b.budget.Semantic)
	ctx.Episodic = fill(buckets[storage.TypeEpisodic], b.budget.Episodic)
	ctx.Procedural = fill(buckets[storage.TypeProcedural], b.budget.Procedural)
	ctx.Entities = fill(entityBucket, b.budget.Entity)
	ctx.History = b.fillHistory(history, &total)

	ctx.TotalTokens = total
	ctx.Truncated = ctx.Profile.Truncated || ctx.Semantic.Truncated ||
		ctx.Episodic.Truncated || ctx.Procedural.Truncated ||
		ctx.Entities.Truncated || ctx.History.Truncated

	return ctx
}

// fillHistory packs conversation turns newest-last, walking backward
// from the end so the most recent turns survive truncation.
func (b *Builder) fillHistory(history []string, total *int) HistorySection {
	var s HistorySection
	for i := len(history) - 1; i >= 0; i-- {
		cost := b.counter.Count(history[i])
		if s.Tokens+cost > b.budget.History || *total+cost > b.budget.MaxTotal {
			s.Truncated = true
			break
		}
		s.Entries = append([]string{history[i]}, s.Entries...)
		s.Tokens += cost
		*total += cost
	}
	return s
}

// graphOnly reports whether the memory was matched exclusively by the
// entity graph strategy.
func graphOnly(m ranking.RankedMemory) bool {
	if len(m.MatchTypes) != 1 {
		return false
	}
	return m.MatchTypes[0] == retrieval.MatchEntity
}
