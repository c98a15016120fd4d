package summarize

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/njmarshall/techstream/internal/logging"
	"github.com/njmarshall/techstream/internal/model"
)

const summaryPrompt = `Summarize this article for a tech-industry reader.
Respond with JSON only, no prose around it:
{"post_summary": "...", "community_gist": "...", "key_topics": ["..."], "target_audience": "..."}

Title: %s
Source: %s
Content: %s`

// OllamaProvider talks to a local Ollama-compatible endpoint. An empty
// model auto-detects the first installed one.
type OllamaProvider struct {
	endpoint string
	model    string
	client   *http.Client
}

// NewOllama creates an OllamaProvider.
func NewOllama(endpoint, model string) *OllamaProvider {
	if endpoint == "" {
		endpoint = "http://localhost:11434"
	}
	return &OllamaProvider{
		endpoint: endpoint,
		model:    model,
		client: &http.Client{
			Timeout: 120 * time.Second, // local inference is slow
		},
	}
}

func (o *OllamaProvider) Name() string { return "ollama" }

// Available checks that the endpoint is up and has at least one model.
func (o *OllamaProvider) Available() bool {
	if o.getModel() == "" {
		logging.Debug("ollama not available", "endpoint", o.endpoint)
		return false
	}
	return true
}

func (o *OllamaProvider) getModel() string {
	if o.model != "" {
		return o.model
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, "GET", o.endpoint+"/api/tags", nil)
	if err != nil {
		return ""
	}
	resp, err := o.client.Do(req)
	if err != nil {
		return ""
	}
	defer resp.Body.Close()

	var result struct {
		Models []struct {
			Name string `json:"name"`
		} `json:"models"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return ""
	}
	if len(result.Models) > 0 {
		logging.Debug("ollama auto-detected model", "model", result.Models[0].Name)
		return result.Models[0].Name
	}
	return ""
}

func (o *OllamaProvider) Summarize(ctx context.Context, item model.ContentItem) (model.Summary, error) {
	mdl := o.getModel()
	if mdl == "" {
		return model.Summary{}, fmt.Errorf("ollama not available at %s", o.endpoint)
	}

	content := item.Body
	if content == "" {
		content = item.Summary
	}
	if len(content) > 4000 {
		content = content[:4000]
	}

	body := map[string]any{
		"model":  mdl,
		"prompt": fmt.Sprintf(summaryPrompt, item.Title, item.SourceName, content),
		"stream": false,
		"format": "json",
	}
	jsonBody, err := json.Marshal(body)
	if err != nil {
		return model.Summary{}, fmt.Errorf("failed to marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, "POST", o.endpoint+"/api/generate", bytes.NewReader(jsonBody))
	if err != nil {
		return model.Summary{}, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := o.client.Do(req)
	if err != nil {
		return model.Summary{}, fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return model.Summary{}, fmt.Errorf("failed to read response: %w", err)
	}
	if resp.StatusCode == http.StatusTooManyRequests {
		return model.Summary{}, ErrRateLimited
	}
	if resp.StatusCode != http.StatusOK {
		return model.Summary{}, fmt.Errorf("API error (status %d): %s", resp.StatusCode, respBody)
	}

	var result struct {
		Response string `json:"response"`
	}
	if err := json.Unmarshal(respBody, &result); err != nil {
		return model.Summary{}, fmt.Errorf("failed to parse response: %w", err)
	}

	return parseSummary(result.Response, item)
}

// parseSummary extracts the structured summary from the model's output,
// tolerating prose before or after the JSON object.
func parseSummary(raw string, item model.ContentItem) (model.Summary, error) {
	start := strings.Index(raw, "{")
	end := strings.LastIndex(raw, "}")
	if start < 0 || end <= start {
		return model.Summary{}, fmt.Errorf("no JSON object in model output")
	}

	var parsed struct {
		PostSummary    string   `json:"post_summary"`
		CommunityGist  string   `json:"community_gist"`
		KeyTopics      []string `json:"key_topics"`
		TargetAudience string   `json:"target_audience"`
	}
	if err := json.Unmarshal([]byte(raw[start:end+1]), &parsed); err != nil {
		return model.Summary{}, fmt.Errorf("failed to parse summary JSON: %w", err)
	}
	if parsed.PostSummary == "" {
		return model.Summary{}, fmt.Errorf("model returned empty summary")
	}

	return model.Summary{
		PostSummary:    parsed.PostSummary,
		CommunityGist:  parsed.CommunityGist,
		KeyTopics:      parsed.KeyTopics,
		ReadingTime:    item.ReadingMinutes,
		TargetAudience: parsed.TargetAudience,
	}, nil
}
