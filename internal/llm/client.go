package llm

import (
	"context"
	"errors"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/openai/openai-go/v3"
	"github.com/openai/openai-go/v3/option"
	"github.com/stemsi/exstem-examgen/internal/model"
)

const (
	defaultChatModel      = "qwen-plus"
	defaultEmbeddingModel = "text-embedding-v3"
)

// ClientConfig configures the OpenAI-compatible client.
type ClientConfig struct {
	BaseURL        string
	APIKey         string
	Model          string
	EmbeddingModel string
	// EnableThinking is forwarded as enable_thinking for providers that
	// understand it (DashScope compatible mode).
	EnableThinking bool
	MaxRetries     int
	// Timeout bounds each non-streaming call. Streams are bounded only by
	// the caller's context.
	Timeout    time.Duration
	HTTPClient *http.Client // Optional (tests)
}

// Client implements Model and Embedder using the official OpenAI SDK.
type Client struct {
	client         openai.Client
	model          string
	embeddingModel string
	timeout        time.Duration
	extra          []option.RequestOption
}

// NewClient creates a new Client.
func NewClient(cfg ClientConfig) *Client {
	if cfg.Model == "" {
		cfg.Model = defaultChatModel
	}
	if cfg.EmbeddingModel == "" {
		cfg.EmbeddingModel = defaultEmbeddingModel
	}
	if cfg.MaxRetries < 0 {
		cfg.MaxRetries = 0
	}
	if cfg.Timeout == 0 {
		cfg.Timeout = 5 * time.Minute
	}

	httpClient := cfg.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{}
	}

	opts := []option.RequestOption{
		option.WithAPIKey(cfg.APIKey),
		option.WithHTTPClient(httpClient),
		option.WithMaxRetries(cfg.MaxRetries),
	}
	if cfg.BaseURL != "" {
		opts = append(opts, option.WithBaseURL(cfg.BaseURL))
	}

	var extra []option.RequestOption
	if strings.Contains(cfg.BaseURL, "dashscope") {
		extra = append(extra, option.WithJSONSet("enable_thinking", cfg.EnableThinking))
	}

	return &Client{
		client:         openai.NewClient(opts...),
		model:          cfg.Model,
		embeddingModel: cfg.EmbeddingModel,
		timeout:        cfg.Timeout,
		extra:          extra,
	}
}

func (c *Client) chatParams(messages []Message) openai.ChatCompletionNewParams {
	params := openai.ChatCompletionNewParams{
		Model:    openai.ChatModel(c.model),
		Messages: make([]openai.ChatCompletionMessageParamUnion, 0, len(messages)),
	}
	for _, m := range messages {
		switch m.Role {
		case RoleSystem:
			params.Messages = append(params.Messages, openai.SystemMessage(m.Content))
		case RoleAssistant:
			params.Messages = append(params.Messages, openai.AssistantMessage(m.Content))
		default:
			params.Messages = append(params.Messages, openai.UserMessage(m.Content))
		}
	}
	return params
}

// Complete runs one non-streaming chat completion.
func (c *Client) Complete(ctx context.Context, prompt string) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	resp, err := c.client.Chat.Completions.New(ctx, c.chatParams([]Message{{Role: RoleUser, Content: prompt}}), c.extra...)
	if err != nil {
		return "", mapOpenAIError("complete", err)
	}
	if len(resp.Choices) == 0 {
		return "", &UpstreamError{Op: "complete", Err: ErrEmptyResponse}
	}
	return resp.Choices[0].Message.Content, nil
}

// Stream runs one streaming chat completion, handing each content delta to
// onDelta before reading the next one.
func (c *Client) Stream(ctx context.Context, prompt string, onDelta func(string) error) (*model.Usage, error) {
	return c.StreamChat(ctx, []Message{{Role: RoleUser, Content: prompt}}, onDelta)
}

// StreamChat streams a reply to a multi-turn conversation.
func (c *Client) StreamChat(ctx context.Context, messages []Message, onDelta func(string) error) (*model.Usage, error) {
	params := c.chatParams(messages)
	params.StreamOptions = openai.ChatCompletionStreamOptionsParam{
		IncludeUsage: openai.Bool(true),
	}

	stream := c.client.Chat.Completions.NewStreaming(ctx, params, c.extra...)
	defer stream.Close()

	var usage *model.Usage
	for stream.Next() {
		chunk := stream.Current()
		if chunk.Usage.TotalTokens > 0 {
			usage = &model.Usage{
				InputTokens:  chunk.Usage.PromptTokens,
				OutputTokens: chunk.Usage.CompletionTokens,
				TotalTokens:  chunk.Usage.TotalTokens,
			}
		}
		for _, choice := range chunk.Choices {
			if choice.Delta.Content == "" {
				continue
			}
			if err := onDelta(choice.Delta.Content); err != nil {
				return usage, err
			}
		}
	}

	if err := stream.Err(); err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return usage, ctxErr
		}
		return usage, mapOpenAIError("stream", err)
	}
	return usage, nil
}

// Embed returns one vector per text.
func (c *Client) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return nil, nil
	}
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	resp, err := c.client.Embeddings.New(ctx, openai.EmbeddingNewParams{
		Input:          openai.EmbeddingNewParamsInputUnion{OfArrayOfStrings: texts},
		Model:          openai.EmbeddingModel(c.embeddingModel),
		EncodingFormat: openai.EmbeddingNewParamsEncodingFormatFloat,
	})
	if err != nil {
		return nil, mapOpenAIError("embed", err)
	}

	out := make([][]float32, len(texts))
	for _, d := range resp.Data {
		idx := int(d.Index)
		if idx < 0 || idx >= len(out) {
			continue
		}
		vec := make([]float32, len(d.Embedding))
		for i, f := range d.Embedding {
			vec[i] = float32(f)
		}
		out[idx] = vec
	}
	for i, v := range out {
		if v == nil {
			return nil, &UpstreamError{Op: "embed", Err: errors.New("missing embedding for input " + strconv.Itoa(i))}
		}
	}
	return out, nil
}

func mapOpenAIError(op string, err error) error {
	var apiErr *openai.Error
	if errors.As(err, &apiErr) {
		ue := &UpstreamError{Op: op, StatusCode: apiErr.StatusCode, Err: err}
		if apiErr.Response != nil {
			ue.RetryAfter = parseRetryAfter(apiErr.Response.Header.Get("Retry-After"))
		}
		if apiErr.Message != "" {
			ue.Err = errors.New(apiErr.Message)
		}
		return ue
	}
	return &UpstreamError{Op: op, Err: err}
}

func parseRetryAfter(v string) time.Duration {
	if v == "" {
		return 0
	}
	if secs, err := strconv.Atoi(strings.TrimSpace(v)); err == nil && secs > 0 {
		return time.Duration(secs) * time.Second
	}
	if t, err := http.ParseTime(v); err == nil {
		if d := time.Until(t); d > 0 {
			return d
		}
	}
	return 0
}

var (
	_ Model    = (*Client)(nil)
	_ Chatter  = (*Client)(nil)
	_ Embedder = (*Client)(nil)
)
