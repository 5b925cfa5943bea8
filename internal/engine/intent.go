package engine

import (
	"context"
	"strings"

	"go.uber.org/zap"

	"github.com/lazypower/recall/internal/cache"
	"github.com/lazypower/recall/internal/llm"
)

// SearchTermsNamespace prefixes the per-owner cache of generated search terms.
const SearchTermsNamespace = "search-terms"

// LLMExpander asks the generation backend for associative search terms and
// caches them per owner.
type LLMExpander struct {
	LLM    llm.Client
	Cache  *cache.Cache // optional
	Policy llm.Policy
	log    *zap.Logger
}

// NewLLMExpander creates an expander. A nil client makes Expand a no-op.
func NewLLMExpander(client llm.Client, c *cache.Cache, policy llm.Policy, log *zap.Logger) *LLMExpander {
	if log == nil {
		log = zap.NewNop()
	}
	return &LLMExpander{LLM: client, Cache: c, Policy: policy, log: log}
}

// Expand returns search terms for question, or nil on any failure.
func (x *LLMExpander) Expand(ctx context.Context, question, owner string) []string {
	if x == nil || x.LLM == nil {
		return nil
	}
	ns := SearchTermsNamespace + ":" + owner

	if x.Cache != nil {
		if res := x.Cache.Lookup(ctx, ns, question); res.Hit {
			return llm.ParseSearchTerms(res.Value)
		}
	}

	resp, err := llm.CompleteWithRetry(ctx, x.LLM, llm.SearchTermsPrompt(question), x.Policy)
	if err != nil {
		x.log.Warn("intent expansion failed", zap.Error(err))
		return nil
	}
	if resp == nil {
		return nil
	}
	terms := llm.ParseSearchTerms(resp.Content)
	if len(terms) == 0 {
		return nil
	}

	if x.Cache != nil {
		if err := x.Cache.Store(ctx, ns, question, strings.Join(terms, "|"), 1.0); err != nil {
			x.log.Warn("cache search terms", zap.Error(err))
		}
	}
	return terms
}
