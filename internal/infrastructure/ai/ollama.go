// Package ai implements the language-model backend client. The contract is
// narrow: submit prompt plus context, receive text or time out.
package ai

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/doeshing/aiosd/internal/domain"
	"github.com/doeshing/aiosd/internal/ports"
)

const (
	unsafeSentinel  = "UNSAFE_COMMAND"
	unclearSentinel = "UNCLEAR_COMMAND"
)

// OllamaClient talks to an Ollama-compatible HTTP API.
type OllamaClient struct {
	apiURL     string
	httpClient *http.Client
	maxRetries int
	logger     ports.Logger
}

// Options configures an OllamaClient.
type Options struct {
	APIURL     string
	MaxRetries int
	Logger     ports.Logger
}

// NewOllamaClient builds a client. The per-request timeout comes from the
// model profile, so the underlying http.Client carries none.
func NewOllamaClient(opts Options) *OllamaClient {
	apiURL := strings.TrimRight(opts.APIURL, "/")
	if apiURL == "" {
		apiURL = "http://localhost:11434/api"
	}
	retries := opts.MaxRetries
	if retries <= 0 {
		retries = 3
	}
	return &OllamaClient{
		apiURL:     apiURL,
		httpClient: &http.Client{},
		maxRetries: retries,
		logger:     opts.Logger,
	}
}

type generateRequest struct {
	Model   string          `json:"model"`
	System  string          `json:"system"`
	Prompt  string          `json:"prompt"`
	Stream  bool            `json:"stream"`
	Options generateOptions `json:"options"`
}

type generateOptions struct {
	Temperature float64 `json:"temperature"`
	NumPredict  int     `json:"num_predict"`
}

type generateResponse struct {
	Response string `json:"response"`
}

type tagsResponse struct {
	Models []struct {
		Name string `json:"name"`
	} `json:"models"`
}

// Generate implements ports.Interpreter. Transient transport failures are
// retried with capped exponential backoff; sentinel outcomes surface as
// domain.ErrUnsafeRequest / domain.ErrUnclearRequest.
func (c *OllamaClient) Generate(ctx context.Context, profile domain.ModelProfile, prompt, contextSummary string) (string, error) {
	payload := generateRequest{
		Model:  profile.Name,
		System: systemPrompt(contextSummary),
		Prompt: prompt,
		Options: generateOptions{
			Temperature: profile.Temperature,
			NumPredict:  profile.MaxTokens,
		},
	}
	body, err := json.Marshal(payload)
	if err != nil {
		return "", err
	}

	text, err := c.generateWithRetry(ctx, profile, body)
	if err != nil {
		return "", err
	}
	return c.interpretSentinels(text)
}

// generateWithRetry submits one prepared payload, retrying transport and
// server failures with capped exponential backoff.
func (c *OllamaClient) generateWithRetry(ctx context.Context, profile domain.ModelProfile, body []byte) (string, error) {
	timeout := time.Duration(profile.TimeoutSeconds) * time.Second
	if timeout <= 0 {
		timeout = 30 * time.Second
	}

	backoff := time.Second
	const maxBackoff = 8 * time.Second

	var lastErr error
	for attempt := 1; attempt <= c.maxRetries; attempt++ {
		text, err := c.generateOnce(ctx, body, timeout)
		if err == nil {
			return text, nil
		}
		lastErr = err
		if ctx.Err() != nil {
			return "", ctx.Err()
		}
		if c.logger != nil {
			c.logger.Warn("backend request failed, retrying", map[string]interface{}{
				"attempt": attempt,
				"model":   profile.Name,
				"backoff": backoff.String(),
				"error":   err.Error(),
			})
		}
		if attempt == c.maxRetries {
			break
		}
		select {
		case <-ctx.Done():
			return "", ctx.Err()
		case <-time.After(backoff):
		}
		backoff *= 2
		if backoff > maxBackoff {
			backoff = maxBackoff
		}
	}
	return "", fmt.Errorf("backend unavailable after %d attempts: %w", c.maxRetries, lastErr)
}

func (c *OllamaClient) generateOnce(ctx context.Context, body []byte, timeout time.Duration) (string, error) {
	cctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(cctx, http.MethodPost, c.apiURL+"/generate", bytes.NewReader(body))
	if err != nil {
		return "", err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		return "", fmt.Errorf("backend: %s", resp.Status)
	}

	var decoded generateResponse
	if err := json.NewDecoder(resp.Body).Decode(&decoded); err != nil {
		return "", err
	}
	return strings.TrimRight(decoded.Response, "\r\n"), nil
}

func (c *OllamaClient) interpretSentinels(text string) (string, error) {
	if strings.Contains(text, unsafeSentinel) {
		return "", domain.ErrUnsafeRequest
	}
	if strings.Contains(text, unclearSentinel) {
		return "", domain.ErrUnclearRequest
	}
	return text, nil
}

// Chat submits a conversational message. Same transport and retry policy
// as Generate, but the system prompt asks for prose instead of a shell
// command, and no sentinel interpretation applies.
func (c *OllamaClient) Chat(ctx context.Context, profile domain.ModelProfile, message, contextSummary string) (string, error) {
	payload := generateRequest{
		Model:  profile.Name,
		System: chatSystemPrompt(contextSummary),
		Prompt: message,
		Options: generateOptions{
			Temperature: profile.Temperature,
			NumPredict:  profile.MaxTokens,
		},
	}
	body, err := json.Marshal(payload)
	if err != nil {
		return "", err
	}
	return c.generateWithRetry(ctx, profile, body)
}

// CheckStatus probes backend reachability via the tags endpoint.
func (c *OllamaClient) CheckStatus(ctx context.Context) error {
	cctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	req, err := http.NewRequestWithContext(cctx, http.MethodGet, c.apiURL+"/tags", nil)
	if err != nil {
		return err
	}
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("backend: %s", resp.Status)
	}
	return nil
}

// ListModels returns the model names the backend reports.
func (c *OllamaClient) ListModels(ctx context.Context) ([]string, error) {
	cctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	req, err := http.NewRequestWithContext(cctx, http.MethodGet, c.apiURL+"/tags", nil)
	if err != nil {
		return nil, err
	}
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("backend: %s", resp.Status)
	}

	var decoded tagsResponse
	if err := json.NewDecoder(resp.Body).Decode(&decoded); err != nil {
		return nil, err
	}
	names := make([]string, 0, len(decoded.Models))
	for _, m := range decoded.Models {
		names = append(names, m.Name)
	}
	return names, nil
}

// systemPrompt instructs the model to emit exactly one shell command, or a
// sentinel when the request is unsafe or ambiguous.
func systemPrompt(contextSummary string) string {
	if contextSummary == "" {
		contextSummary = "Current directory, standard user permissions"
	}
	return fmt.Sprintf(
		"You are an AI assistant that translates natural language commands into Linux shell commands. "+
			"Rules:\n"+
			"1. Only output the shell command, no explanations\n"+
			"2. If unsafe, output '%s'\n"+
			"3. If unclear, output '%s'\n"+
			"4. Consider the context: %s\n"+
			"5. Be precise and safe\n\n"+
			"Examples:\n"+
			"Input: 'git push and add all files'\n"+
			"Output: git add . && git push\n\n"+
			"Input: 'install python package numpy'\n"+
			"Output: pip install numpy\n\n"+
			"Input: 'list files in current directory'\n"+
			"Output: ls -la\n",
		unsafeSentinel, unclearSentinel, contextSummary)
}

// chatSystemPrompt frames conversational replies.
func chatSystemPrompt(contextSummary string) string {
	if contextSummary == "" {
		contextSummary = "Current directory, standard user permissions"
	}
	return fmt.Sprintf(
		"You are a helpful assistant running on the user's Linux machine. "+
			"Answer conversationally and concisely. Do not output shell commands "+
			"unless the user explicitly asks for one. Context: %s",
		contextSummary)
}

var _ ports.Interpreter = (*OllamaClient)(nil)
