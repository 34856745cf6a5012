package ai

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strings"
	"unicode/utf8"

	"rhema/internal/config"
	"rhema/internal/stream"

	"github.com/cloudwego/eino-ext/components/model/claude"
	"github.com/cloudwego/eino-ext/components/model/gemini"
	"github.com/cloudwego/eino-ext/components/model/openai"
	"github.com/cloudwego/eino/components/model"
	"github.com/cloudwego/eino/schema"
	"google.golang.org/genai"
)

// Service generates completions for assembled prompts through an eino chat model.
type Service struct {
	chat     model.BaseChatModel
	provider string
	model    string
}

// NewService builds the chat model for provider. An empty model in cfg falls
// back to the provider default.
func NewService(ctx context.Context, provider string, cfg config.ProviderConfig) (*Service, error) {
	if strings.TrimSpace(cfg.APIKey) == "" {
		return nil, fmt.Errorf("%w: api key for %s", config.ErrConfiguration, provider)
	}
	modelName := cfg.Model
	var (
		chatModel model.BaseChatModel
		err       error
	)

	switch provider {
	case "openai":
		if modelName == "" {
			modelName = "gpt-4o-mini"
		}
		chatModel, err = openai.NewChatModel(ctx, &openai.ChatModelConfig{
			BaseURL: cfg.BaseURL,
			Model:   modelName,
			APIKey:  cfg.APIKey,
		})
	case "gemini":
		if modelName == "" {
			modelName = config.DefaultChatModel
		}
		client, cerr := genai.NewClient(ctx, &genai.ClientConfig{
			APIKey:  cfg.APIKey,
			Backend: genai.BackendGeminiAPI,
		})
		if cerr != nil {
			return nil, fmt.Errorf("create gemini client: %w", cerr)
		}
		chatModel, err = gemini.NewChatModel(ctx, &gemini.Config{
			Client: client,
			Model:  modelName,
		})
	case "claude":
		if modelName == "" {
			modelName = "claude-3-5-haiku-latest"
		}
		var baseURLPtr *string
		if cfg.BaseURL != "" {
			baseURLPtr = &cfg.BaseURL
		}
		chatModel, err = claude.NewChatModel(ctx, &claude.Config{
			APIKey:    cfg.APIKey,
			Model:     modelName,
			BaseURL:   baseURLPtr,
			MaxTokens: 3000,
		})
	default:
		return nil, fmt.Errorf("%w: invalid provider: %s", config.ErrConfiguration, provider)
	}
	if err != nil {
		return nil, fmt.Errorf("start %s chat model: %w", provider, err)
	}
	return newService(chatModel, provider, modelName), nil
}

func newService(chat model.BaseChatModel, provider, modelName string) *Service {
	return &Service{chat: chat, provider: provider, model: modelName}
}

// Model reports the configured model name.
func (s *Service) Model() string { return s.model }

// Stream starts a streamed completion. The returned reader yields text
// increments in order and io.EOF once the model finished.
func (s *Service) Stream(ctx context.Context, prompt string) (stream.Reader, error) {
	sr, err := s.chat.Stream(ctx, []*schema.Message{schema.UserMessage(prompt)})
	if err != nil {
		return nil, fmt.Errorf("generate %s stream failed: %w", s.provider, err)
	}
	return &messageReader{sr: sr}, nil
}

// Generate returns the whole completion at once.
func (s *Service) Generate(ctx context.Context, prompt string) (string, error) {
	msg, err := s.chat.Generate(ctx, []*schema.Message{schema.UserMessage(prompt)})
	if err != nil {
		return "", fmt.Errorf("generate %s failed: %w", s.provider, err)
	}
	if msg == nil {
		return "", errors.New("empty completion")
	}
	return msg.Content, nil
}

// GenerateJSON asks for a completion and decodes it into dst. Markdown code
// fences around the object are tolerated.
func (s *Service) GenerateJSON(ctx context.Context, prompt string, dst interface{}) error {
	text, err := s.Generate(ctx, prompt)
	if err != nil {
		return err
	}
	raw := stripFence(text)
	if err := json.Unmarshal([]byte(raw), dst); err != nil {
		return fmt.Errorf("failed to parse AI response %q: %w", truncateRunes(raw, 100), err)
	}
	return nil
}

// truncateRunes cuts s to at most n runes.
func truncateRunes(s string, n int) string {
	if utf8.RuneCountInString(s) <= n {
		return s
	}
	r := []rune(s)
	return string(r[:n])
}

func stripFence(text string) string {
	t := strings.TrimSpace(text)
	if !strings.HasPrefix(t, "```") {
		return t
	}
	t = strings.TrimPrefix(t, "```")
	if nl := strings.IndexByte(t, '\n'); nl >= 0 {
		t = t[nl+1:]
	}
	t = strings.TrimSuffix(strings.TrimSpace(t), "```")
	return strings.TrimSpace(t)
}

// messageReader adapts an eino message stream to stream.Reader.
type messageReader struct {
	sr *schema.StreamReader[*schema.Message]
}

func (r *messageReader) Recv() (string, error) {
	for {
		msg, err := r.sr.Recv()
		if err != nil {
			if errors.Is(err, io.EOF) {
				return "", io.EOF
			}
			return "", err
		}
		if msg == nil || msg.Content == "" {
			// flow control or reasoning-only chunk
			continue
		}
		return msg.Content, nil
	}
}

func (r *messageReader) Close() error {
	r.sr.Close()
	return nil
}
