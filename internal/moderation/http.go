package moderation

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"

	"moments/internal/moments"
)

// HTTPGate asks a remote classifier whether an optimized asset may be shown.
//
// The classifier receives the moderation request as JSON and answers
// {"valid": bool, "message": string}. Any transport error, non-2xx status or
// undecodable body is returned as an error without retrying.
type HTTPGate struct {
	endpoint string
	apiKey   string
	client   *http.Client
}

type classifyResponse struct {
	Valid   *bool  `json:"valid"`
	Message string `json:"message"`
}

// NewHTTPGate creates an HTTPGate. A nil client uses a default one.
func NewHTTPGate(endpoint, apiKey string, client *http.Client) *HTTPGate {
	if client == nil {
		client = &http.Client{}
	}
	return &HTTPGate{endpoint: endpoint, apiKey: apiKey, client: client}
}

func (g *HTTPGate) Classify(ctx context.Context, r moments.ModerationRequest) (moments.Verdict, error) {
	body, err := json.Marshal(r)
	if err != nil {
		return moments.Verdict{}, fmt.Errorf("encoding moderation request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, g.endpoint, bytes.NewReader(body))
	if err != nil {
		return moments.Verdict{}, fmt.Errorf("building moderation request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if g.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+g.apiKey)
	}

	resp, err := g.client.Do(req)
	if err != nil {
		return moments.Verdict{}, fmt.Errorf("calling moderation service: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 64*1024))
		return moments.Verdict{}, fmt.Errorf("moderation service returned %s: %s", resp.Status, strings.TrimSpace(string(msg)))
	}

	var cr classifyResponse
	if err := json.NewDecoder(resp.Body).Decode(&cr); err != nil {
		return moments.Verdict{}, fmt.Errorf("decoding moderation response: %w", err)
	}
	if cr.Valid == nil {
		return moments.Verdict{}, fmt.Errorf("moderation response has no verdict")
	}

	if *cr.Valid {
		return moments.Accepted(cr.Message), nil
	}
	return moments.Rejected(cr.Message), nil
}

var _ moments.ModerationGate = (*HTTPGate)(nil)
