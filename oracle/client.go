// Package oracle 实现基于 Claude messages API 的 LLM 相关性评分。
package oracle

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/contextiq/contextiq/core"
)

const defaultAPI = "https://api.anthropic.com/v1/messages"

// DefaultTimeout 是单次评分调用的超时上限。
const DefaultTimeout = 10 * time.Second

// descriptionLimit 是提示词中内容描述的截断长度。
const descriptionLimit = 200

// Client 调用 Claude messages API 为 (用户画像, 内容) 给出相关性分数。
//
// 容错契约（见 core.RelevanceOracle）：
//   - 凭证未配置 → Available() 为 false，Score 永远返回 ok=false
//   - 超时/网络错误/非 2xx → 记日志，返回 ok=false
//   - 响应文本无法解析为数字 → 记日志，返回 ok=false
//   - 数字越界 → clamp 到 [0,1]
//
// 任何失败都不会向上传播为错误，纯 ML 评分始终是安全回退。
type Client struct {
	apiKey  string
	model   string
	baseURL string
	http    *http.Client
	log     *zap.Logger
}

// New 创建评分客户端。apiKey 为空时客户端不可用（但可安全持有）。
func New(apiKey, model string, timeout time.Duration, logger *zap.Logger) *Client {
	if model == "" {
		model = "claude-sonnet-4-20250514"
	}
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Client{
		apiKey:  apiKey,
		model:   model,
		baseURL: defaultAPI,
		http:    &http.Client{Timeout: timeout},
		log:     logger,
	}
}

// WithBaseURL 覆盖 API 地址（测试用）。
func (c *Client) WithBaseURL(url string) *Client {
	c.baseURL = url
	return c
}

func (c *Client) Name() string { return "claude" }

// Available 返回凭证是否已配置。
func (c *Client) Available() bool { return c.apiKey != "" }

// Score 对 (用户画像, 内容) 给出 [0,1] 相关性分数。
func (c *Client) Score(ctx context.Context, profile *core.UserProfile, content *core.Content) (float64, bool) {
	if !c.Available() || content == nil {
		return 0, false
	}

	prompt := buildPrompt(profile, content)
	text, err := c.invoke(ctx, prompt)
	if err != nil {
		c.log.Warn("oracle call failed", zap.String("content_id", content.ID), zap.Error(err))
		return 0, false
	}

	score, ok := extractScore(text)
	if !ok {
		c.log.Warn("oracle returned unparseable score",
			zap.String("content_id", content.ID), zap.String("text", text))
		return 0, false
	}
	return score, true
}

// buildPrompt 构建评分提示词：用户兴趣 + 活跃度，内容标题/类目/标签/截断描述。
func buildPrompt(profile *core.UserProfile, content *core.Content) string {
	var interests string
	interactionCount := 0
	if profile != nil {
		interests = strings.Join(profile.Interests, ", ")
		interactionCount = profile.InteractionCount
	}

	// 按字符数截断，不能把多字节字符切成半个
	description := content.Description
	if runes := []rune(description); len(runes) > descriptionLimit {
		description = string(runes[:descriptionLimit])
	}

	var sb strings.Builder
	sb.WriteString("You are a content recommendation system. Score how relevant this content is to the user.\n\n")
	sb.WriteString("USER PROFILE:\n")
	sb.WriteString("- Interests: " + interests + "\n")
	sb.WriteString(fmt.Sprintf("- Interaction count: %d\n\n", interactionCount))
	sb.WriteString("CONTENT:\n")
	sb.WriteString("- Title: " + content.Title + "\n")
	sb.WriteString("- Category: " + content.Category + "\n")
	sb.WriteString("- Tags: " + strings.Join(content.Tags, ", ") + "\n")
	sb.WriteString("- Description: " + description + "\n\n")
	sb.WriteString("Provide a relevance score as a single number between 0 and 1 (e.g., 0.75).\n")
	sb.WriteString("Only respond with the numeric score, nothing else.")
	return sb.String()
}

type apiRequest struct {
	Model     string       `json:"model"`
	MaxTokens int          `json:"max_tokens"`
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
	Error *struct {
		Message string `json:"message"`
	} `json:"error,omitempty"`
}

func (c *Client) invoke(ctx context.Context, prompt string) (string, error) {
	reqBody := apiRequest{
		Model:     c.model,
		MaxTokens: 100,
		Messages: []apiMessage{
			{Role: "user", Content: prompt},
		},
	}

	jsonBody, err := json.Marshal(reqBody)
	if err != nil {
		return "", fmt.Errorf("marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL, bytes.NewReader(jsonBody))
	if err != nil {
		return "", fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("x-api-key", c.apiKey)
	req.Header.Set("anthropic-version", "2023-06-01")

	resp, err := c.http.Do(req)
	if err != nil {
		return "", fmt.Errorf("http request: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", fmt.Errorf("read response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("api error (status %d): %s", resp.StatusCode, string(body))
	}

	var apiResp apiResponse
	if err := json.Unmarshal(body, &apiResp); err != nil {
		return "", fmt.Errorf("unmarshal response: %w", err)
	}
	if apiResp.Error != nil {
		return "", fmt.Errorf("api error: %s", apiResp.Error.Message)
	}
	if len(apiResp.Content) == 0 {
		return "", fmt.Errorf("empty response")
	}
	return apiResp.Content[0].Text, nil
}

// extractScore 从响应文本解析分数：可解析时 clamp 到 [0,1]，否则视为无分数。
func extractScore(text string) (float64, bool) {
	text = strings.TrimSpace(text)
	text = strings.TrimPrefix(text, "```")
	text = strings.TrimSuffix(text, "```")
	text = strings.TrimSpace(text)

	score, err := strconv.ParseFloat(text, 64)
	if err != nil {
		return 0, false
	}
	if score < 0 {
		return 0, true
	}
	if score > 1 {
		return 1, true
	}
	return score, true
}

// 确保 Client 实现了 core.RelevanceOracle 接口
var _ core.RelevanceOracle = (*Client)(nil)
