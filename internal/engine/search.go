package engine

import (
	"context"

	"go.uber.org/zap"
)

// SearchHit is one ranked note.
type SearchHit struct {
	NoteID     int64   `json:"note_id"`
	Title      string  `json:"title"`
	Body       string  `json:"body"`
	Importance int     `json:"importance"`
	Score      float64 `json:"score"`
}

// SearchResult lists the notes retrieval found for a query, without graph
// expansion or synthesis.
type SearchResult struct {
	Query    string      `json:"query"`
	Strategy string      `json:"strategy"`
	Count    int         `json:"count"`
	Results  []SearchHit `json:"results"`
}

// Search runs retrieval alone. Like Ask, the only error it returns is
// *ValidationError.
func (e *Engine) Search(ctx context.Context, req SearchRequest) (*SearchResult, error) {
	req, err := req.normalize()
	if err != nil {
		return nil, err
	}
	limit := e.limit
	if req.Limit > 0 {
		limit = req.Limit
	}

	ranked, strategy := e.Ranker.Retrieve(ctx, req.Query, req.OwnerID, limit)
	res := &SearchResult{
		Query:    req.Query,
		Strategy: strategy,
		Count:    len(ranked),
		Results:  make([]SearchHit, 0, len(ranked)),
	}
	for _, sn := range ranked {
		res.Results = append(res.Results, SearchHit{
			NoteID:     sn.Note.ID,
			Title:      sn.Note.Title,
			Body:       sn.Note.Body,
			Importance: sn.Note.Importance,
			Score:      sn.Score,
		})
	}
	e.log.Debug("search",
		zap.String("owner", req.OwnerID),
		zap.String("strategy", strategy),
		zap.Int("results", res.Count))
	return res, nil
}
