// Package llm provides a client for the Gemini generateContent API.
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

	"lostfound-go/internal/config"
	"lostfound-go/pkg/log"
)

// 对话角色，Gemini 只接受 user 与 model。
const (
	RoleUser  = "user"
	RoleModel = "model"
)

// ErrNoCandidate 表示响应中没有可用的回答文本。
var ErrNoCandidate = errors.New("llm response contained no candidate text")

// APIError 是 Gemini 返回的结构化错误 {"error":{"code","message","status"}}。
type APIError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
	Status  string `json:"status"`
}

func (e *APIError) Error() string {
	return fmt.Sprintf("gemini api error %d (%s): %s", e.Code, e.Status, e.Message)
}

// IsRateLimited 对应 429。
func (e *APIError) IsRateLimited() bool { return e.Code == http.StatusTooManyRequests }

// IsBadRequest 对应 400。
func (e *APIError) IsBadRequest() bool { return e.Code == http.StatusBadRequest }

// Message 表示一条角色消息
type Message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// GenerationParams 控制生成行为
type GenerationParams struct {
	Temperature *float64
	TopP        *float64
	MaxTokens   *int
}

// Client defines the interface for an LLM client.
type Client interface {
	// GenerateContent 以完整的有序历史调用一次接口，返回回答原文。
	// 结构化错误以 *APIError 返回，其余错误均视为传输失败。
	GenerateContent(ctx context.Context, messages []Message, gen *GenerationParams) (string, error)
}

type geminiClient struct {
	cfg    config.LLMConfig
	client *http.Client
}

// NewClient creates a new Gemini client from the config.
func NewClient(cfg config.LLMConfig) Client {
	return NewClientWithHTTP(cfg, &http.Client{})
}

// NewClientWithHTTP 允许注入自定义的 http.Client。
func NewClientWithHTTP(cfg config.LLMConfig, httpClient *http.Client) Client {
	return &geminiClient{cfg: cfg, client: httpClient}
}

type part struct {
	Text string `json:"text"`
}

type content struct {
	Role  string `json:"role,omitempty"`
	Parts []part `json:"parts"`
}

type generationConfig struct {
	Temperature     *float64 `json:"temperature,omitempty"`
	TopP            *float64 `json:"topP,omitempty"`
	MaxOutputTokens *int     `json:"maxOutputTokens,omitempty"`
}

type generateRequest struct {
	Contents         []content         `json:"contents"`
	GenerationConfig *generationConfig `json:"generationConfig,omitempty"`
}

type generateResponse struct {
	Candidates []struct {
		Content content `json:"content"`
	} `json:"candidates"`
	Error *APIError `json:"error"`
}

func (c *geminiClient) GenerateContent(ctx context.Context, messages []Message, gen *GenerationParams) (string, error) {
	reqBody := generateRequest{Contents: make([]content, 0, len(messages))}
	for _, m := range messages {
		reqBody.Contents = append(reqBody.Contents, content{Role: m.Role, Parts: []part{{Text: m.Content}}})
	}
	if gc := c.generationConfig(gen); gc != nil {
		reqBody.GenerationConfig = gc
	}

	reqBytes, err := json.Marshal(reqBody)
	if err != nil {
		return "", fmt.Errorf("failed to marshal generate request: %w", err)
	}

	url := fmt.Sprintf("%s/models/%s:generateContent", strings.TrimRight(c.cfg.BaseURL, "/"), c.cfg.Model)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(reqBytes))
	if err != nil {
		return "", fmt.Errorf("failed to create generate request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("x-goog-api-key", c.cfg.APIKey)

	log.Infof("[LLMClient] 调用 Gemini, model: %s, turns: %d", c.cfg.Model, len(messages))
	resp, err := c.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("failed to call gemini api: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", fmt.Errorf("failed to read gemini response: %w", err)
	}

	// 错误对象不论 HTTP 状态码都优先处理
	var parsed generateResponse
	if err := json.Unmarshal(body, &parsed); err != nil {
		return "", fmt.Errorf("failed to decode gemini response (status %s): %w", resp.Status, err)
	}
	if parsed.Error != nil {
		if parsed.Error.Code == 0 {
			parsed.Error.Code = resp.StatusCode
		}
		return "", parsed.Error
	}

	if len(parsed.Candidates) == 0 || len(parsed.Candidates[0].Content.Parts) == 0 {
		return "", ErrNoCandidate
	}
	return parsed.Candidates[0].Content.Parts[0].Text, nil
}

// generationConfig 传参优先，否则从全局配置注入非零值。
func (c *geminiClient) generationConfig(gen *GenerationParams) *generationConfig {
	var gc generationConfig
	if gen != nil {
		gc.Temperature = gen.Temperature
		gc.TopP = gen.TopP
		gc.MaxOutputTokens = gen.MaxTokens
	} else {
		if c.cfg.Generation.Temperature != 0 {
			t := c.cfg.Generation.Temperature
			gc.Temperature = &t
		}
		if c.cfg.Generation.TopP != 0 {
			p := c.cfg.Generation.TopP
			gc.TopP = &p
		}
		if c.cfg.Generation.MaxTokens != 0 {
			m := c.cfg.Generation.MaxTokens
			gc.MaxOutputTokens = &m
		}
	}
	if gc.Temperature == nil && gc.TopP == nil && gc.MaxOutputTokens == nil {
		return nil
	}
	return &gc
}
