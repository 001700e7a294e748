package llm

import (
	"context"
	"errors"
	"testing"

	openai "github.com/sashabaranov/go-openai"

	"github.com/haasonsaas/relay/internal/intent"
	"github.com/haasonsaas/relay/pkg/models"
)

type fakeClient struct {
	resp   openai.ChatCompletionResponse
	err    error
	gotReq openai.ChatCompletionRequest
}

func (f *fakeClient) CreateChatCompletion(_ context.Context, req openai.ChatCompletionRequest) (openai.ChatCompletionResponse, error) {
	f.gotReq = req
	return f.resp, f.err
}

func (f *fakeClient) CreateChatCompletionStream(_ context.Context, _ openai.ChatCompletionRequest) (*openai.ChatCompletionStream, error) {
	return nil, errors.New("not implemented")
}

func newTestAdapter(fake *fakeClient) *Adapter {
	a := New(Config{
		BackendURL:  "http://127.0.0.1:11434",
		TalkerModel: "talker-model",
		WorkerModel: "worker-model",
		NCtx:        4096,
		WarmTalker:  false,
	}, nil, nil)
	a.client = fake
	return a
}

func respWith(content string) openai.ChatCompletionResponse {
	return openai.ChatCompletionResponse{
		Choices: []openai.ChatCompletionChoice{
			{Message: openai.ChatCompletionMessage{Content: content}},
		},
	}
}

func TestChatSelectsTalker(t *testing.T) {
	fake := &fakeClient{resp: respWith("hi there")}
	a := newTestAdapter(fake)

	res, err := a.Chat(context.Background(), []models.Message{
		{Role: models.RoleUser, Content: "what's the weather like"},
	}, Options{})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if res.ModelUsed != RoleTalker {
		t.Errorf("ModelUsed = %s, want talker", res.ModelUsed)
	}
	if fake.gotReq.Model != "talker-model" {
		t.Errorf("request model = %q, want talker-model", fake.gotReq.Model)
	}
}

func TestChatSelectsWorkerByKeyword(t *testing.T) {
	fake := &fakeClient{resp: respWith("def search(): ...")}
	a := newTestAdapter(fake)

	res, err := a.Chat(context.Background(), []models.Message{
		{Role: models.RoleUser, Content: "implement a binary search in Python"},
	}, Options{})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if res.ModelUsed != RoleWorker {
		t.Errorf("ModelUsed = %s, want worker", res.ModelUsed)
	}
	if fake.gotReq.Model != "worker-model" {
		t.Errorf("request model = %q, want worker-model", fake.gotReq.Model)
	}
}

func TestChatForceWorker(t *testing.T) {
	fake := &fakeClient{resp: respWith("ok")}
	a := newTestAdapter(fake)

	res, err := a.Chat(context.Background(), []models.Message{
		{Role: models.RoleUser, Content: "hello"},
	}, Options{ForceWorker: true})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if res.ModelUsed != RoleWorker {
		t.Errorf("ModelUsed = %s, want worker", res.ModelUsed)
	}
}

func TestChatExtractsToolCall(t *testing.T) {
	fake := &fakeClient{resp: respWith(
		"Let me check.\n```tool_call\n{\"name\": \"check_health\", \"arguments\": {}}\n```\n")}
	a := newTestAdapter(fake)

	res, err := a.Chat(context.Background(), []models.Message{
		{Role: models.RoleUser, Content: "is everything healthy"},
	}, Options{})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if res.ToolCall == nil || res.ToolCall.Name != "check_health" {
		t.Fatalf("ToolCall = %+v, want check_health", res.ToolCall)
	}
	if res.Response != "Let me check." {
		t.Errorf("Response = %q, want fence removed", res.Response)
	}
}

func TestChatBackendError(t *testing.T) {
	fake := &fakeClient{err: errors.New("connection refused")}
	a := newTestAdapter(fake)

	_, err := a.Chat(context.Background(), []models.Message{
		{Role: models.RoleUser, Content: "hello"},
	}, Options{})
	if err == nil {
		t.Fatal("expected an error")
	}
	if models.KindOf(err) != models.ErrDependencyFailed {
		t.Errorf("kind = %s, want dependency_failed", models.KindOf(err))
	}
}

func TestChatSystemPromptFirst(t *testing.T) {
	fake := &fakeClient{resp: respWith("ok")}
	a := newTestAdapter(fake)

	_, err := a.Chat(context.Background(), []models.Message{
		{Role: models.RoleUser, Content: "hello"},
	}, Options{Mode: ModeDebug, Tools: []ToolSummary{{Name: "check_health", Description: "ping services"}}})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(fake.gotReq.Messages) < 2 {
		t.Fatalf("messages = %d, want system + user", len(fake.gotReq.Messages))
	}
	if fake.gotReq.Messages[0].Role != openai.ChatMessageRoleSystem {
		t.Errorf("first message role = %s, want system", fake.gotReq.Messages[0].Role)
	}
}

func TestLoadModelUnavailable(t *testing.T) {
	a := New(Config{WarmTalker: false}, nil, nil)
	_, err := a.LoadModel(RoleTalker)
	if err == nil {
		t.Fatal("expected an error with no models configured")
	}
	if models.KindOf(err) != models.ErrLLMUnavailable {
		t.Errorf("kind = %s, want llm_unavailable", models.KindOf(err))
	}
}

func TestIntentGenerator(t *testing.T) {
	fake := &fakeClient{resp: respWith(`{"tag":"general-chat","parameters":{}}`)}
	a := newTestAdapter(fake)

	out, err := a.IntentGenerator().Generate(context.Background(), "classify this",
		intent.GenerateOptions{Temperature: 0.1, MaxTokens: 100})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if out == "" {
		t.Error("empty generation")
	}
}
