package summary

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"
)

const systemPrompt = `You are an AI Meeting Summarizer. You receive a meeting transcript and produce a clear, structured summary.

Rules:
1. Start with a short overall summary (2-3 sentences).
2. List key decisions, action items, and important topics.
3. If the transcript is unclear, infer context but never invent facts.
4. End with a short next-steps list.

Respond with a single JSON object and nothing else, using exactly these keys:
{"overallSummary": string, "keyPoints": [string], "actionItems": [string], "nextSteps": [string], "topics": [string]}`

// Client calls an Anthropic-compatible messages API to summarize meeting
// transcripts. It is stateless: transcript text in, structured summary out.
type Client struct {
	apiURL     string
	apiKey     string
	model      string
	maxTokens  int
	httpClient *http.Client
}

// NewClient builds a summarizer client. apiURL defaults to the Anthropic
// messages endpoint when empty.
func NewClient(apiURL, apiKey, model string) *Client {
	if apiURL == "" {
		apiURL = "https://api.anthropic.com/v1/messages"
	}
	if model == "" {
		model = "claude-haiku-4-5"
	}
	return &Client{
		apiURL:     apiURL,
		apiKey:     apiKey,
		model:      model,
		maxTokens:  4096,
		httpClient: &http.Client{Timeout: 60 * time.Second},
	}
}

type apiRequest struct {
	Model     string       `json:"model"`
	MaxTokens int          `json:"max_tokens"`
	System    string       `json:"system"`
	Messages  []apiMessage `json:"messages"`
}

type apiMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type apiResponse struct {
	Content []struct {
		Type string `json:"type"`
		Text string `json:"text"`
	} `json:"content"`
}

// GenerateSummary summarizes a transcript. An empty transcript short-circuits
// to a fixed result so callers never pay for an API round trip on silence.
func (c *Client) GenerateSummary(ctx context.Context, transcript, meetingTitle string) (*Result, error) {
	if len(bytes.TrimSpace([]byte(transcript))) == 0 {
		return emptyResult(), nil
	}
	if c.apiKey == "" {
		return nil, fmt.Errorf("summarizer API key not set")
	}

	reqBody := apiRequest{
		Model:     c.model,
		MaxTokens: c.maxTokens,
		System:    systemPrompt,
		Messages: []apiMessage{
			{
				Role:    "user",
				Content: fmt.Sprintf("Meeting title: %s\n\nTranscript to summarize:\n\n%s", meetingTitle, transcript),
			},
		},
	}
	jsonBody, err := json.Marshal(reqBody)
	if err != nil {
		return nil, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.apiURL, bytes.NewReader(jsonBody))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("x-api-key", c.apiKey)
	req.Header.Set("anthropic-version", "2023-06-01")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("calling summarizer API: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("reading summarizer response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("summarizer API error (HTTP %d): %s", resp.StatusCode, string(respBody))
	}

	var apiResp apiResponse
	if err := json.Unmarshal(respBody, &apiResp); err != nil {
		return nil, fmt.Errorf("parsing summarizer response: %w", err)
	}

	var text string
	for _, block := range apiResp.Content {
		if block.Type == "text" {
			text += block.Text
		}
	}
	if text == "" {
		return nil, fmt.Errorf("empty response from summarizer API")
	}

	return parseResult(text)
}

// parseResult decodes the model's JSON answer. Models occasionally wrap the
// object in prose, so scan for the outermost braces before unmarshaling.
func parseResult(text string) (*Result, error) {
	start := bytes.IndexByte([]byte(text), '{')
	end := bytes.LastIndexByte([]byte(text), '}')
	if start < 0 || end <= start {
		// Not JSON at all; keep the answer rather than drop it.
		return &Result{OverallSummary: text}, nil
	}

	var result Result
	if err := json.Unmarshal([]byte(text[start:end+1]), &result); err != nil {
		return &Result{OverallSummary: text}, nil
	}
	return &result, nil
}

func emptyResult() *Result {
	return &Result{
		OverallSummary: "No transcript available for summary generation. Please ensure the meeting was properly recorded and transcribed.",
		KeyPoints:      []string{"Meeting recording or transcription was not available"},
		ActionItems:    []string{"Verify meeting capture settings for future sessions"},
		NextSteps:      []string{"Ensure proper setup for next meeting recording"},
	}
}
