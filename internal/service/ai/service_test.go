package ai

import (
	"context"
	"errors"
	"strings"
	"testing"
	"unicode/utf8"

	"rhema/internal/config"
	"rhema/internal/stream"

	"github.com/cloudwego/eino/components/model"
	"github.com/cloudwego/eino/schema"
)

type mockChatModel struct {
	parts     []string
	failAfter error
	reply     string
	prompts   []string
}

func (m *mockChatModel) Generate(ctx context.Context, input []*schema.Message, opts ...model.Option) (*schema.Message, error) {
	m.prompts = append(m.prompts, input[len(input)-1].Content)
	return schema.AssistantMessage(m.reply, nil), nil
}

func (m *mockChatModel) Stream(ctx context.Context, input []*schema.Message, opts ...model.Option) (*schema.StreamReader[*schema.Message], error) {
	m.prompts = append(m.prompts, input[len(input)-1].Content)
	sr, sw := schema.Pipe[*schema.Message](len(m.parts) + 1)
	go func() {
		defer sw.Close()
		for _, p := range m.parts {
			sw.Send(schema.AssistantMessage(p, nil), nil)
		}
		if m.failAfter != nil {
			sw.Send(nil, m.failAfter)
		}
	}()
	return sr, nil
}

func TestStreamYieldsIncrementsInOrder(t *testing.T) {
	mock := &mockChatModel{parts: []string{"Faith ", "", "comes ", "by hearing."}}
	svc := newService(mock, "gemini", "gemini-2.5-flash-lite")
	reader, err := svc.Stream(context.Background(), "prompt")
	if err != nil {
		t.Fatalf("Stream error: %v", err)
	}
	text, status, err := stream.Collect(context.Background(), reader)
	if err != nil || status != stream.Completed {
		t.Fatalf("status=%s err=%v", status, err)
	}
	if text != "Faith comes by hearing." {
		t.Fatalf("got %q", text)
	}
	if len(mock.prompts) != 1 || mock.prompts[0] != "prompt" {
		t.Fatalf("prompt not forwarded: %v", mock.prompts)
	}
}

func TestStreamSurfacesMidStreamFailure(t *testing.T) {
	boom := errors.New("connection reset")
	svc := newService(&mockChatModel{parts: []string{"Faith "}, failAfter: boom}, "gemini", "m")
	reader, err := svc.Stream(context.Background(), "prompt")
	if err != nil {
		t.Fatalf("Stream error: %v", err)
	}
	text, status, err := stream.Collect(context.Background(), reader)
	if status != stream.Failed || !errors.Is(err, boom) {
		t.Fatalf("expected failure, got status=%s err=%v", status, err)
	}
	if text != "Faith " {
		t.Fatalf("partial text lost: %q", text)
	}
}

func TestGenerateJSONStripsFences(t *testing.T) {
	svc := newService(&mockChatModel{reply: "```json\n{\"scripture_ref\":\"John 3:16 (KJV)\"}\n```"}, "gemini", "m")
	var out struct {
		ScriptureRef string `json:"scripture_ref"`
	}
	if err := svc.GenerateJSON(context.Background(), "p", &out); err != nil {
		t.Fatalf("GenerateJSON error: %v", err)
	}
	if out.ScriptureRef != "John 3:16 (KJV)" {
		t.Fatalf("unexpected ref %q", out.ScriptureRef)
	}
	bad := newService(&mockChatModel{reply: "not json"}, "gemini", "m")
	if err := bad.GenerateJSON(context.Background(), "p", &out); err == nil {
		t.Fatalf("expected parse error")
	}
}

func TestGenerateJSONErrorKeepsRunesWhole(t *testing.T) {
	svc := newService(&mockChatModel{reply: "x" + strings.Repeat("é", 150)}, "gemini", "m")
	var out map[string]string
	err := svc.GenerateJSON(context.Background(), "p", &out)
	if err == nil {
		t.Fatalf("expected parse error")
	}
	msg := err.Error()
	if !utf8.ValidString(msg) || strings.Contains(msg, `\x`) {
		t.Fatalf("error text split a rune: %q", msg)
	}
	if !strings.Contains(msg, "x"+strings.Repeat("é", 99)+`"`) {
		t.Fatalf("expected a 100 rune preview, got %q", msg)
	}
}

func TestNewServiceRejectsMissingKeyAndUnknownProvider(t *testing.T) {
	if _, err := NewService(context.Background(), "gemini", config.ProviderConfig{}); !errors.Is(err, config.ErrConfiguration) {
		t.Fatalf("expected ErrConfiguration for missing key, got %v", err)
	}
	if _, err := NewService(context.Background(), "llama", config.ProviderConfig{APIKey: "k"}); !errors.Is(err, config.ErrConfiguration) {
		t.Fatalf("expected ErrConfiguration for unknown provider, got %v", err)
	}
}
