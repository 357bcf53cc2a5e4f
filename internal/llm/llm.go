// Package llm provides the element editor and skill writer collaborators:
// an HTTP client for OpenAI-compatible chat completions and a deterministic
// stub for running without a model.
package llm

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/Hamiltonwise/signalsai-sub006/internal/editsession"
	"github.com/Hamiltonwise/signalsai-sub006/internal/logging"
	"github.com/Hamiltonwise/signalsai-sub006/internal/pages"
)

var (
	ErrUpstream      = errors.New("llm request failed")
	ErrEmptyResponse = errors.New("llm returned no choices")
)

// rejectPrefix marks an answer that declines the instruction.
const rejectPrefix = "REJECT:"

const editSystemPrompt = `You edit one HTML element of a website page.
Reply with the complete replacement HTML for the element and nothing else.
If the instruction cannot be applied to this element, reply with "REJECT: " followed by a short reason.`

const skillSystemPrompt = `You write reusable content skills for small business websites.
Reply in markdown.`

var (
	_ editsession.Editor = (*HTTPEditor)(nil)
	_ editsession.Editor = (*StaticEditor)(nil)
)

type HTTPEditor struct {
	cfg    Config
	client *http.Client
	logger logging.Logger
}

// NewHTTPEditor builds an editor. A nil httpClient gets one with cfg.Timeout.
func NewHTTPEditor(cfg Config, httpClient *http.Client, logger logging.Logger) (*HTTPEditor, error) {
	def := DefaultConfig()
	if cfg.BaseURL == "" {
		cfg.BaseURL = def.BaseURL
	}
	if cfg.Model == "" {
		cfg.Model = def.Model
	}
	if cfg.MaxTokens <= 0 {
		cfg.MaxTokens = def.MaxTokens
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = def.Timeout
	}
	if !strings.HasPrefix(cfg.BaseURL, "http://") && !strings.HasPrefix(cfg.BaseURL, "https://") {
		return nil, fmt.Errorf("llm: invalid base url %q", cfg.BaseURL)
	}
	if httpClient == nil {
		httpClient = &http.Client{Timeout: cfg.Timeout}
	}
	logger = logging.OrNop(logger).With(logging.Field{Key: "component", Value: "llm"}, logging.Field{Key: "model", Value: cfg.Model})
	return &HTTPEditor{cfg: cfg, client: httpClient, logger: logger}, nil
}

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type chatRequest struct {
	Model     string        `json:"model"`
	Messages  []chatMessage `json:"messages"`
	MaxTokens int           `json:"max_tokens,omitempty"`
}

type chatResponse struct {
	Model   string `json:"model"`
	Choices []struct {
		Message chatMessage `json:"message"`
	} `json:"choices"`
	Usage struct {
		PromptTokens     int `json:"prompt_tokens"`
		CompletionTokens int `json:"completion_tokens"`
	} `json:"usage"`
}

// EditElement asks the model to rewrite req.CurrentHTML.
func (e *HTTPEditor) EditElement(ctx context.Context, pageID string, req editsession.EditRequest) (*editsession.EditResult, error) {
	msgs := []chatMessage{{Role: "system", Content: editSystemPrompt}}
	for _, m := range req.ChatHistory {
		if m.IsError {
			continue
		}
		msgs = append(msgs, chatMessage{Role: m.Role, Content: m.Content})
	}
	prompt := editPrompt(req)
	msgs = append(msgs, chatMessage{Role: pages.RoleUser, Content: prompt})

	start := time.Now()
	resp, err := e.complete(ctx, msgs)
	if err != nil {
		return nil, err
	}
	answer := stripFences(resp.Choices[0].Message.Content)
	dbg := editsession.DebugInfo{
		Model:        resp.Model,
		Prompt:       prompt,
		InputTokens:  resp.Usage.PromptTokens,
		OutputTokens: resp.Usage.CompletionTokens,
		Latency:      time.Since(start),
	}
	if dbg.Model == "" {
		dbg.Model = e.cfg.Model
	}
	e.logger.Debug("edit answered",
		logging.Field{Key: "page_id", Value: pageID},
		logging.Field{Key: "input_tokens", Value: dbg.InputTokens},
		logging.Field{Key: "output_tokens", Value: dbg.OutputTokens})

	if reason, ok := strings.CutPrefix(answer, rejectPrefix); ok {
		return &editsession.EditResult{Rejected: true, Message: strings.TrimSpace(reason), Debug: dbg}, nil
	}
	if answer == "" {
		return nil, ErrEmptyResponse
	}
	return &editsession.EditResult{EditedHTML: answer, Debug: dbg}, nil
}

// WriteSkill generates a skill artifact from prompt.
func (e *HTTPEditor) WriteSkill(ctx context.Context, prompt string) (string, error) {
	resp, err := e.complete(ctx, []chatMessage{
		{Role: "system", Content: skillSystemPrompt},
		{Role: pages.RoleUser, Content: prompt},
	})
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(resp.Choices[0].Message.Content), nil
}

func (e *HTTPEditor) complete(ctx context.Context, msgs []chatMessage) (*chatResponse, error) {
	body, err := json.Marshal(chatRequest{Model: e.cfg.Model, Messages: msgs, MaxTokens: e.cfg.MaxTokens})
	if err != nil {
		return nil, fmt.Errorf("encode chat request: %w", err)
	}
	url := strings.TrimRight(e.cfg.BaseURL, "/") + "/chat/completions"
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	if e.cfg.APIKey != "" {
		httpReq.Header.Set("Authorization", "Bearer "+e.cfg.APIKey)
	}

	res, err := e.client.Do(httpReq)
	if err != nil {
		e.logger.Warn("llm request failed", logging.Field{Key: "error", Value: err.Error()})
		return nil, fmt.Errorf("%w: %v", ErrUpstream, err)
	}
	defer res.Body.Close()
	raw, err := io.ReadAll(io.LimitReader(res.Body, 4<<20))
	if err != nil {
		return nil, fmt.Errorf("read body: %w", err)
	}
	if res.StatusCode/100 != 2 {
		return nil, fmt.Errorf("%w: status %d: %s", ErrUpstream, res.StatusCode, truncate(string(raw), 200))
	}

	var out chatResponse
	if err := json.Unmarshal(raw, &out); err != nil {
		return nil, fmt.Errorf("decode chat response: %w", err)
	}
	if len(out.Choices) == 0 {
		return nil, ErrEmptyResponse
	}
	return &out, nil
}

func editPrompt(req editsession.EditRequest) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Element %s", req.Selector)
	if req.Kind != "" {
		fmt.Fprintf(&b, " (%s)", req.Kind)
	}
	fmt.Fprintf(&b, ":\n%s\n\nInstruction: %s", req.CurrentHTML, req.Instruction)
	return b.String()
}

// stripFences removes a surrounding markdown code fence.
func stripFences(s string) string {
	s = strings.TrimSpace(s)
	if !strings.HasPrefix(s, "```") {
		return s
	}
	s = strings.TrimPrefix(s, "```")
	if nl := strings.IndexByte(s, '\n'); nl >= 0 {
		s = s[nl+1:]
	}
	s = strings.TrimSuffix(strings.TrimSpace(s), "```")
	return strings.TrimSpace(s)
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
