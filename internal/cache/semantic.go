package cache

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/lazypower/recall/internal/nlp"
)

// Lookup returns the stored entry whose keyword set is most similar to the
// question's, provided the similarity reaches the threshold. Backend errors
// are logged and reported as a miss.
func (c *Cache) Lookup(ctx context.Context, ns, question string) Result {
	if !c.Enabled() {
		return Result{}
	}
	keywords := Normalize(question)
	if len(keywords) == 0 {
		c.metrics.CacheLookup("miss")
		return Result{}
	}
	tokens := keywords.Sorted()

	postings := make([]string, len(tokens))
	for i, tok := range tokens {
		postings[i] = postingKey(ns, tok)
	}
	candidates, err := c.rdb.SUnion(ctx, postings...).Result()
	if err != nil {
		c.warn("sunion", err, zap.String("namespace", ns))
		c.metrics.CacheLookup("error")
		return Result{}
	}
	sort.Strings(candidates)
	if len(candidates) > c.cfg.MaxCandidates {
		candidates = candidates[:c.cfg.MaxCandidates]
	}

	found := make([]*Entry, len(candidates))
	var missing []int
	for i, key := range candidates {
		if e, ok := c.l1.Get(key); ok {
			c.l1Hits.Add(1)
			found[i] = &e
			continue
		}
		c.l1Misses.Add(1)
		missing = append(missing, i)
	}

	if len(missing) > 0 {
		keys := make([]string, len(missing))
		for j, i := range missing {
			keys[j] = candidates[i]
		}
		vals, err := c.rdb.MGet(ctx, keys...).Result()
		if err != nil {
			c.warn("mget", err, zap.String("namespace", ns))
		} else {
			var stale []string
			for j, v := range vals {
				s, ok := v.(string)
				if !ok {
					stale = append(stale, keys[j])
					continue
				}
				var e Entry
				if err := json.Unmarshal([]byte(s), &e); err != nil {
					c.warn("decode", err, zap.String("key", keys[j]))
					continue
				}
				c.l1.Add(keys[j], e)
				found[missing[j]] = &e
			}
			if len(stale) > 0 {
				c.dropStale(ctx, ns, tokens, stale)
			}
		}
	}

	best := -1.0
	var bestEntry *Entry
	for _, e := range found {
		if e == nil {
			continue
		}
		sim := nlp.Jaccard(keywords, nlp.NewKeywordSet(e.Keywords...))
		if sim > best {
			best, bestEntry = sim, e
		}
	}
	if bestEntry == nil || best < c.cfg.Threshold {
		c.metrics.CacheLookup("miss")
		return Result{}
	}
	c.metrics.CacheLookup("hit")
	c.log.Debug("semantic hit",
		zap.String("namespace", ns),
		zap.Float64("similarity", best),
		zap.String("original", bestEntry.OriginalQuestion))
	return Result{Hit: true, Value: bestEntry.Value, Similarity: best, Entry: bestEntry}
}

// dropStale removes expired entry keys from the query's postings in the
// background. The cleanup outlives the request but not Close.
func (c *Cache) dropStale(ctx context.Context, ns string, tokens, stale []string) {
	members := make([]any, len(stale))
	for i, k := range stale {
		members[i] = k
	}
	c.wg.Add(1)
	go func() {
		defer c.wg.Done()
		ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), cleanupTimeout)
		defer cancel()

		_, err := c.rdb.Pipelined(ctx, func(p redis.Pipeliner) error {
			for _, tok := range tokens {
				p.SRem(ctx, postingKey(ns, tok), members...)
			}
			return nil
		})
		c.warn("srem", err, zap.String("namespace", ns))
	}()
}

// Store writes an entry for question along with its postings. Storing the
// same normalized question again overwrites the entry.
func (c *Cache) Store(ctx context.Context, ns, question, value string, relevance float64) error {
	if !c.Enabled() {
		return nil
	}
	keywords := Normalize(question)
	if len(keywords) == 0 {
		return nil
	}
	tokens := keywords.Sorted()
	key := entryKey(ns, tokens)

	e := Entry{
		OriginalQuestion: question,
		Keywords:         tokens,
		Value:            value,
		CreatedAt:        time.Now().UTC(),
		RelevanceScore:   relevance,
	}
	data, err := json.Marshal(e)
	if err != nil {
		return fmt.Errorf("encode entry: %w", err)
	}

	_, err = c.rdb.TxPipelined(ctx, func(p redis.Pipeliner) error {
		p.Set(ctx, key, data, c.cfg.TTL)
		for _, tok := range tokens {
			pk := postingKey(ns, tok)
			p.SAdd(ctx, pk, key)
			p.Expire(ctx, pk, c.cfg.TTL)
		}
		return nil
	})
	if err != nil {
		c.metrics.CacheStore("error")
		return fmt.Errorf("store %s: %w", key, err)
	}
	c.l1.Add(key, e)
	c.metrics.CacheStore("ok")
	return nil
}

// Clear deletes every entry and posting in ns, including sub-namespaces
// (ns "answers" also clears "answers:alice"). It returns the number of entry
// keys removed.
func (c *Cache) Clear(ctx context.Context, ns string) (int64, error) {
	prefix := entryPrefix(ns)
	for _, key := range c.l1.Keys() {
		if strings.HasPrefix(key, prefix) {
			c.l1.Remove(key)
		}
	}
	if !c.Enabled() {
		return 0, nil
	}

	escaped := escapeGlob(ns)
	entries, err := c.deleteMatching(ctx, keyPrefix+":entry:"+escaped+":*")
	if err != nil {
		return entries, err
	}
	if _, err := c.deleteMatching(ctx, keyPrefix+":inverted:"+escaped+":*"); err != nil {
		return entries, err
	}
	c.log.Info("namespace cleared", zap.String("namespace", ns), zap.Int64("entries", entries))
	return entries, nil
}

func (c *Cache) deleteMatching(ctx context.Context, pattern string) (int64, error) {
	var removed int64
	batch := make([]string, 0, scanBatch)
	flush := func() error {
		if len(batch) == 0 {
			return nil
		}
		n, err := c.rdb.Del(ctx, batch...).Result()
		removed += n
		batch = batch[:0]
		return err
	}

	iter := c.rdb.Scan(ctx, 0, pattern, scanBatch).Iterator()
	for iter.Next(ctx) {
		batch = append(batch, iter.Val())
		if len(batch) == scanBatch {
			if err := flush(); err != nil {
				return removed, fmt.Errorf("delete %s: %w", pattern, err)
			}
		}
	}
	if err := iter.Err(); err != nil {
		return removed, fmt.Errorf("scan %s: %w", pattern, err)
	}
	if err := flush(); err != nil {
		return removed, fmt.Errorf("delete %s: %w", pattern, err)
	}
	return removed, nil
}

// Stats reports entry counts for ns and process-wide L1 hit rate.
func (c *Cache) Stats(ctx context.Context, ns string) (Stats, error) {
	st := Stats{
		Namespace: ns,
		Enabled:   c.Enabled(),
		Threshold: c.cfg.Threshold,
	}
	prefix := entryPrefix(ns)
	for _, key := range c.l1.Keys() {
		if strings.HasPrefix(key, prefix) {
			st.L1Size++
		}
	}
	hits, misses := c.l1Hits.Load(), c.l1Misses.Load()
	if total := hits + misses; total > 0 {
		st.L1HitRate = float64(hits) / float64(total)
	}
	if !st.Enabled {
		return st, nil
	}

	iter := c.rdb.Scan(ctx, 0, keyPrefix+":entry:"+escapeGlob(ns)+":*", scanBatch).Iterator()
	for iter.Next(ctx) {
		st.EntryCount++
	}
	if err := iter.Err(); err != nil {
		return st, fmt.Errorf("scan entries: %w", err)
	}
	return st, nil
}
