package embedder

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"sort"
	"time"
)

// RerankResult scores one document against the query.
type RerankResult struct {
	Index int     `json:"index"`
	Score float64 `json:"relevance_score"`
}

// instructAwareModels lists rerank models that honor the instruct field.
// Other models silently ignore it; that quirk is part of the collaborator's
// contract and is preserved here rather than papered over.
var instructAwareModels = map[string]bool{
	"qwen3-reranker":  true,
	"bge-reranker-v2": true,
}

// Reranker reorders retrieved chunks by relevance to a query via an
// OpenAI-style /rerank endpoint.
type Reranker struct {
	baseURL string
	model   string
	client  *http.Client
}

// NewReranker creates a rerank client. It fails fast when unconfigured.
func NewReranker(baseURL, model string) (*Reranker, error) {
	if baseURL == "" || model == "" {
		return nil, fmt.Errorf("%w: rerank url and model are required", ErrNoEmbedder)
	}
	return &Reranker{
		baseURL: baseURL,
		model:   model,
		client:  &http.Client{Timeout: 60 * time.Second},
	}, nil
}

type rerankRequest struct {
	Model     string   `json:"model"`
	Query     string   `json:"query"`
	Documents []string `json:"documents"`
	Instruct  string   `json:"instruct,omitempty"`
}

type rerankResponse struct {
	Results []RerankResult `json:"results"`
}

// Rerank scores documents against query and returns the results sorted back
// into input-index order. Backends may answer sorted by score, so the index
// field is authoritative for mapping results to documents.
func (r *Reranker) Rerank(ctx context.Context, query string, documents []string, instruct string) ([]RerankResult, error) {
	if len(documents) == 0 {
		return nil, nil
	}

	req := rerankRequest{
		Model:     r.model,
		Query:     query,
		Documents: documents,
	}
	if instructAwareModels[r.model] {
		req.Instruct = instruct
	}

	body, err := json.Marshal(req)
	if err != nil {
		return nil, fmt.Errorf("marshal rerank request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, r.baseURL+"/rerank", bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := r.client.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("rerank request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		respBody, _ := io.ReadAll(resp.Body)
		return nil, fmt.Errorf("rerank returned %d: %s", resp.StatusCode, string(respBody))
	}

	var result rerankResponse
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return nil, fmt.Errorf("decode rerank response: %w", err)
	}
	if len(result.Results) != len(documents) {
		return nil, fmt.Errorf("expected %d rerank results, got %d", len(documents), len(result.Results))
	}

	sort.Slice(result.Results, func(i, j int) bool {
		return result.Results[i].Index < result.Results[j].Index
	})
	return result.Results, nil
}
