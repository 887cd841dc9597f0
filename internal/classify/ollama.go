package classify

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/vthunder/acuity/internal/types"
)

// Request is what the vision classifier is asked about
type Request struct {
	Task   string
	Images []types.Image
	Hints  []string // optional process names visible to the user
}

// Classifier returns the raw model reply for a request. Detecting malformed
// replies is the pipeline's job, not the classifier's.
type Classifier interface {
	Classify(ctx context.Context, req Request) (string, error)
}

// Generator is a text-only completion, used for categorizing activities
type Generator interface {
	Generate(ctx context.Context, prompt string) (string, error)
}

// OllamaClient talks to a local Ollama server running a vision model
type OllamaClient struct {
	baseURL string
	model   string
	client  *http.Client
}

// NewOllamaClient creates a client. Per-call deadlines come from the caller's
// context; the http.Client timeout is only a backstop.
func NewOllamaClient(baseURL, model string) *OllamaClient {
	if baseURL == "" {
		baseURL = "http://localhost:11434"
	}
	if model == "" {
		model = "llava" // small, vision capable
	}
	return &OllamaClient{
		baseURL: strings.TrimRight(baseURL, "/"),
		model:   model,
		client: &http.Client{
			Timeout: 2 * time.Minute,
		},
	}
}

// Model returns the model name
func (c *OllamaClient) Model() string {
	return c.model
}

// generateRequest is the Ollama API request format for generation
type generateRequest struct {
	Model  string   `json:"model"`
	Prompt string   `json:"prompt"`
	Images []string `json:"images,omitempty"`
	Stream bool     `json:"stream"`
}

// generateResponse is the Ollama API response format for generation
type generateResponse struct {
	Response string `json:"response"`
	Done     bool   `json:"done"`
}

const classifyPrompt = `You are checking if a user is actively working on their stated task.

Task: %q
%s
Determine if the user's current activity matches their task:
- Match SEMANTICALLY, not literally (task "watching youtube" matches activity "viewing a YouTube video")
- Look at: window titles, URLs, visible content, applications in use
- No motion between frames = READING/THINKING (on-task if content is relevant)
- When ambiguous, lean toward on-task
- IGNORE any overlay showing "ACUITY" or a lock icon - that is the focus app itself, not the user's work

Return ONLY raw JSON:
{
  "on": 1 if activity matches task, 0 if clearly unrelated,
  "activity": "specific description with quoted text from screen"
}

Examples:
- Task "watch youtube" + YouTube open = on:1
- Task "write code" + VS Code with code visible = on:1
- Task "write code" + browsing Reddit = on:0`

// Classify sends the screenshots and task to the vision model
func (c *OllamaClient) Classify(ctx context.Context, req Request) (string, error) {
	if len(req.Images) == 0 {
		return "", fmt.Errorf("no images to classify")
	}

	hints := ""
	if len(req.Hints) > 0 {
		hints = "Busiest applications right now: " + strings.Join(req.Hints, ", ") + "\n"
	}

	images := make([]string, 0, len(req.Images))
	for _, img := range req.Images {
		images = append(images, base64.StdEncoding.EncodeToString(img.Data))
	}

	return c.generate(ctx, generateRequest{
		Model:  c.model,
		Prompt: fmt.Sprintf(classifyPrompt, req.Task, hints),
		Images: images,
	})
}

// Generate creates a text-only completion
func (c *OllamaClient) Generate(ctx context.Context, prompt string) (string, error) {
	if prompt == "" {
		return "", fmt.Errorf("empty prompt")
	}
	return c.generate(ctx, generateRequest{Model: c.model, Prompt: prompt})
}

func (c *OllamaClient) generate(ctx context.Context, reqBody generateRequest) (string, error) {
	jsonBody, err := json.Marshal(reqBody)
	if err != nil {
		return "", fmt.Errorf("marshal request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/api/generate", bytes.NewReader(jsonBody))
	if err != nil {
		return "", fmt.Errorf("build request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := c.client.Do(httpReq)
	if err != nil {
		return "", fmt.Errorf("ollama request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return "", fmt.Errorf("ollama error (status %d): %s", resp.StatusCode, string(body))
	}

	var result generateResponse
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return "", fmt.Errorf("decode response: %w", err)
	}

	return result.Response, nil
}
