package llm

import (
	"context"
	"path/filepath"
	"strings"
	"sync"
	"time"

	openai "github.com/sashabaranov/go-openai"

	"github.com/haasonsaas/relay/internal/intent"
	"github.com/haasonsaas/relay/internal/observability"
	"github.com/haasonsaas/relay/pkg/models"
)

// Config configures the adapter.
type Config struct {
	// BackendURL is the inference backend base URL (OpenAI-compatible /v1).
	BackendURL string `yaml:"backend_url"`

	// GatewayURL proxies backend calls when UseGatewayProxy is set.
	GatewayURL      string `yaml:"gateway_url"`
	UseGatewayProxy bool   `yaml:"use_gateway_proxy"`

	// ModelDir holds the GGUF files for discovery.
	ModelDir string `yaml:"model_dir"`

	// TalkerModel / WorkerModel override discovery when set.
	TalkerModel string `yaml:"talker_model"`
	WorkerModel string `yaml:"worker_model"`

	NCtx    int `yaml:"n_ctx"`
	Threads int `yaml:"threads"`

	// WarmTalker starts a background warmup of the talker at init.
	WarmTalker bool `yaml:"warm_talker"`
}

// DefaultConfig returns the standard local setup.
func DefaultConfig() Config {
	return Config{
		BackendURL: "http://127.0.0.1:11434",
		NCtx:       4096,
		Threads:    8,
		WarmTalker: true,
	}
}

// Options are per-call sampling knobs.
type Options struct {
	Temperature float64
	MaxTokens   int
	ForceWorker bool
	Mode        Mode
	Tools       []ToolSummary
}

// Usage mirrors backend token accounting.
type Usage struct {
	PromptTokens     int `json:"prompt_tokens"`
	CompletionTokens int `json:"completion_tokens"`
	TotalTokens      int `json:"total_tokens"`
}

// ChatResult is one completed chat turn.
type ChatResult struct {
	Response  string           `json:"response"`
	ToolCall  *models.ToolCall `json:"tool_call,omitempty"`
	ModelUsed Role             `json:"model_used"`
	ModelName string           `json:"model_name"`
	Usage     Usage            `json:"usage"`
}

// StreamChunk is one item of a streaming chat.
type StreamChunk struct {
	Token        string           `json:"token,omitempty"`
	Done         bool             `json:"done"`
	ToolCall     *models.ToolCall `json:"tool_call,omitempty"`
	FullResponse string           `json:"full_response,omitempty"`
}

// completionClient is the slice of the OpenAI client the adapter uses;
// narrowed for testability.
type completionClient interface {
	CreateChatCompletion(ctx context.Context, req openai.ChatCompletionRequest) (openai.ChatCompletionResponse, error)
	CreateChatCompletionStream(ctx context.Context, req openai.ChatCompletionRequest) (*openai.ChatCompletionStream, error)
}

// Adapter routes between the talker and worker tiers.
type Adapter struct {
	config  Config
	client  completionClient
	logger  *observability.Logger
	metrics *observability.Metrics

	// inference is serialised per model instance.
	inferMu map[Role]*sync.Mutex

	mu     sync.Mutex
	loaded map[Role]string
}

// New builds an adapter against the configured backend.
func New(config Config, logger *observability.Logger, metrics *observability.Metrics) *Adapter {
	if config.NCtx <= 0 {
		config.NCtx = 4096
	}
	base := config.BackendURL
	if config.UseGatewayProxy && config.GatewayURL != "" {
		base = config.GatewayURL
	}
	clientConfig := openai.DefaultConfig("")
	clientConfig.BaseURL = strings.TrimRight(base, "/") + "/v1"

	a := &Adapter{
		config:  config,
		client:  openai.NewClientWithConfig(clientConfig),
		logger:  logger,
		metrics: metrics,
		inferMu: map[Role]*sync.Mutex{RoleTalker: {}, RoleWorker: {}},
		loaded:  map[Role]string{},
	}
	if config.WarmTalker {
		go a.warmup()
	}
	return a
}

// warmup loads the talker and runs a one-token generation so the first real
// request does not pay the load cost.
func (a *Adapter) warmup() {
	ctx, cancel := context.WithTimeout(context.Background(), 60*time.Second)
	defer cancel()
	if _, err := a.LoadModel(RoleTalker); err != nil {
		if a.logger != nil {
			a.logger.Warn(ctx, "talker warmup skipped", "error", err)
		}
		return
	}
	_, _ = a.Generate(ctx, "ok", Options{MaxTokens: 1})
}

// LoadModel resolves the model for a role, lazily, and caches the name.
func (a *Adapter) LoadModel(role Role) (string, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if name, ok := a.loaded[role]; ok && name != "" {
		return name, nil
	}

	name := a.config.TalkerModel
	if role == RoleWorker {
		name = a.config.WorkerModel
	}
	if name == "" && a.config.ModelDir != "" {
		talker, worker := DiscoverModels(a.config.ModelDir)
		if role == RoleWorker {
			name = modelName(worker)
		} else {
			name = modelName(talker)
		}
	}
	if name == "" {
		// Fall back to the other tier before giving up.
		for other, loaded := range a.loaded {
			if other != role && loaded != "" {
				name = loaded
			}
		}
	}
	if name == "" {
		return "", &models.Error{
			Kind: models.ErrLLMUnavailable,
			Msg:  "no model available for role " + string(role),
			Hint: "set talker_model/worker_model or point model_dir at a directory with .gguf files",
		}
	}
	a.loaded[role] = name
	return name, nil
}

func modelName(path string) string {
	if path == "" {
		return ""
	}
	return strings.TrimSuffix(filepath.Base(path), ".gguf")
}

// IsModelAvailable reports whether at least one tier resolves.
func (a *Adapter) IsModelAvailable() bool {
	if _, err := a.LoadModel(RoleTalker); err == nil {
		return true
	}
	_, err := a.LoadModel(RoleWorker)
	return err == nil
}

// ModelInfo describes the resolved tiers for status surfaces.
func (a *Adapter) ModelInfo() map[string]any {
	a.mu.Lock()
	defer a.mu.Unlock()
	return map[string]any{
		"talker":     a.loaded[RoleTalker],
		"worker":     a.loaded[RoleWorker],
		"n_ctx":      a.config.NCtx,
		"threads":    a.config.Threads,
		"gpu_layers": GPULayers(),
		"backend":    a.config.BackendURL,
	}
}

// Chat runs one chat turn, selecting the tier from the last user message,
// truncating history to the context budget, and extracting any tool call.
func (a *Adapter) Chat(ctx context.Context, messages []models.Message, opts Options) (*ChatResult, error) {
	lastUser := ""
	for i := len(messages) - 1; i >= 0; i-- {
		if messages[i].Role == models.RoleUser {
			lastUser = messages[i].Content
			break
		}
	}
	role := SelectRole(lastUser, opts.ForceWorker)

	name, err := a.LoadModel(role)
	if err != nil {
		// Prefer degrading to the other tier over failing.
		fallback := RoleTalker
		if role == RoleTalker {
			fallback = RoleWorker
		}
		if name, err = a.LoadModel(fallback); err != nil {
			return nil, err
		}
		role = fallback
	}

	history := TruncateHistory(messages, a.config.NCtx)
	req := openai.ChatCompletionRequest{
		Model:    name,
		Messages: make([]openai.ChatCompletionMessage, 0, len(history)+1),
	}
	req.Messages = append(req.Messages, openai.ChatCompletionMessage{
		Role:    openai.ChatMessageRoleSystem,
		Content: SystemPrompt(opts.Mode, opts.Tools),
	})
	for _, m := range history {
		req.Messages = append(req.Messages, openai.ChatCompletionMessage{
			Role:    string(m.Role),
			Content: m.Content,
		})
	}
	if opts.Temperature > 0 {
		req.Temperature = float32(opts.Temperature)
	}
	if opts.MaxTokens > 0 {
		req.MaxTokens = opts.MaxTokens
	}

	mu := a.inferMu[role]
	mu.Lock()
	start := time.Now()
	resp, err := a.client.CreateChatCompletion(ctx, req)
	elapsed := time.Since(start)
	mu.Unlock()

	if a.metrics != nil {
		status := "ok"
		if err != nil {
			status = "error"
		}
		a.metrics.InferenceCounter.WithLabelValues(string(role), name, status).Inc()
		a.metrics.InferenceDuration.WithLabelValues(string(role), name).Observe(elapsed.Seconds())
	}
	if err != nil {
		return nil, &models.Error{Kind: models.ErrDependencyFailed, Msg: "inference backend call failed", Err: err}
	}
	if len(resp.Choices) == 0 {
		return nil, &models.Error{Kind: models.ErrLLMUnavailable, Msg: "backend returned no choices"}
	}

	raw := resp.Choices[0].Message.Content
	call, cleaned := ExtractToolCall(raw)
	result := &ChatResult{
		Response:  cleaned,
		ToolCall:  call,
		ModelUsed: role,
		ModelName: name,
		Usage: Usage{
			PromptTokens:     resp.Usage.PromptTokens,
			CompletionTokens: resp.Usage.CompletionTokens,
			TotalTokens:      resp.Usage.TotalTokens,
		},
	}
	if call == nil {
		result.Response = raw
	}
	return result, nil
}

// Generate runs a single-prompt completion.
func (a *Adapter) Generate(ctx context.Context, prompt string, opts Options) (string, error) {
	res, err := a.Chat(ctx, []models.Message{{Role: models.RoleUser, Content: prompt}}, opts)
	if err != nil {
		return "", err
	}
	return res.Response, nil
}

// StreamChat yields tokens on a channel closed after the final done chunk.
func (a *Adapter) StreamChat(ctx context.Context, messages []models.Message, opts Options) (<-chan StreamChunk, error) {
	lastUser := ""
	for i := len(messages) - 1; i >= 0; i-- {
		if messages[i].Role == models.RoleUser {
			lastUser = messages[i].Content
			break
		}
	}
	role := SelectRole(lastUser, opts.ForceWorker)
	name, err := a.LoadModel(role)
	if err != nil {
		return nil, err
	}

	history := TruncateHistory(messages, a.config.NCtx)
	req := openai.ChatCompletionRequest{Model: name, Stream: true}
	req.Messages = append(req.Messages, openai.ChatCompletionMessage{
		Role:    openai.ChatMessageRoleSystem,
		Content: SystemPrompt(opts.Mode, opts.Tools),
	})
	for _, m := range history {
		req.Messages = append(req.Messages, openai.ChatCompletionMessage{Role: string(m.Role), Content: m.Content})
	}

	stream, err := a.client.CreateChatCompletionStream(ctx, req)
	if err != nil {
		return nil, &models.Error{Kind: models.ErrDependencyFailed, Msg: "inference stream failed", Err: err}
	}

	out := make(chan StreamChunk)
	go func() {
		defer close(out)
		defer stream.Close()
		var full strings.Builder
		for {
			chunk, err := stream.Recv()
			if err != nil {
				break
			}
			if len(chunk.Choices) == 0 {
				continue
			}
			token := chunk.Choices[0].Delta.Content
			if token != "" {
				full.WriteString(token)
				select {
				case out <- StreamChunk{Token: token}:
				case <-ctx.Done():
					return
				}
			}
		}
		call, cleaned := ExtractToolCall(full.String())
		final := StreamChunk{Done: true, ToolCall: call, FullResponse: full.String()}
		if call != nil {
			final.FullResponse = cleaned
		}
		select {
		case out <- final:
		case <-ctx.Done():
		}
	}()
	return out, nil
}

// IntentGenerator adapts the talker tier to the intent classifier's
// Generator contract.
func (a *Adapter) IntentGenerator() intent.Generator {
	return intentGen{a}
}

type intentGen struct {
	a *Adapter
}

func (g intentGen) Generate(ctx context.Context, prompt string, opts intent.GenerateOptions) (string, error) {
	return g.a.Generate(ctx, prompt, Options{
		Temperature: opts.Temperature,
		MaxTokens:   opts.MaxTokens,
	})
}
