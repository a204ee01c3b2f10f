package llm

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"
	"unicode/utf8"

	openai "github.com/sashabaranov/go-openai"
	"go.uber.org/zap"
)

const (
	DefaultModel           = "gpt-4o-mini"
	DefaultModerationModel = "omni-moderation-latest"
	DefaultMaxTokens       = 700
	DefaultTemperature     = 0.2

	// RefusalReply is returned without calling the API for off-topic chats.
	RefusalReply = "I only provide general health information — please ask a health-related question."

	moderationInputLimit = 3000
)

const systemPrompt = `You are a concise, careful, evidence-informed medical-information assistant called "Guardian".
- Only answer QUESTIONS DIRECTLY RELATED TO HEALTH, SYMPTOMS, PREVENTION, OR NEXT STEPS.
- If the user asks anything NOT ABOUT HEALTH, refuse in one short sentence: "` + RefusalReply + `"
- Do NOT provide definitive diagnoses or prescribe medications.
- For urgent or red-flag symptoms (difficulty breathing, chest pain, fainting, severe bleeding), clearly advise to seek immediate emergency care.
- Keep replies concise and end with: "This is educational information only."`

var (
	ErrNoMessages = errors.New("messages array required")
	ErrFlagged    = errors.New("content flagged by moderation")
	ErrNoReply    = errors.New("no reply from AI")
)

type GuardianConfig struct {
	APIKey          string
	Model           string
	ModerationModel string
	BaseURL         string
	MaxTokens       int
	Temperature     float32
	Timeout         time.Duration
}

// ChatMessage is one turn as the web client sends it.
type ChatMessage struct {
	Role string `json:"role"`
	Text string `json:"text"`
}

// Guardian answers general health questions through an OpenAI-compatible
// chat API.
type Guardian struct {
	client          *openai.Client
	model           string
	moderationModel string
	maxTokens       int
	temperature     float32
	timeout         time.Duration
	logger          *zap.Logger
}

func NewGuardian(cfg GuardianConfig, logger *zap.Logger) (*Guardian, error) {
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("openai API key is required")
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	config := openai.DefaultConfig(cfg.APIKey)
	if cfg.BaseURL != "" {
		config.BaseURL = cfg.BaseURL
	}

	g := &Guardian{
		client:          openai.NewClientWithConfig(config),
		model:           cfg.Model,
		moderationModel: cfg.ModerationModel,
		maxTokens:       cfg.MaxTokens,
		temperature:     cfg.Temperature,
		timeout:         cfg.Timeout,
		logger:          logger,
	}
	if g.model == "" {
		g.model = DefaultModel
	}
	if g.moderationModel == "" {
		g.moderationModel = DefaultModerationModel
	}
	if g.maxTokens <= 0 {
		g.maxTokens = DefaultMaxTokens
	}
	if g.temperature <= 0 {
		g.temperature = DefaultTemperature
	}
	return g, nil
}

// Reply returns the assistant's answer to the conversation. Off-topic
// conversations get RefusalReply without any API call.
func (g *Guardian) Reply(ctx context.Context, messages []ChatMessage) (string, error) {
	if len(messages) == 0 {
		return "", ErrNoMessages
	}
	if g.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, g.timeout)
		defer cancel()
	}

	var userText []string
	for _, m := range messages {
		if m.Role == openai.ChatMessageRoleUser {
			userText = append(userText, m.Text)
		}
	}
	if !IsHealthRelated(strings.TrimSpace(strings.Join(userText, "\n"))) {
		g.logger.Info("non-health question, skipping completion")
		return RefusalReply, nil
	}

	flagged, err := g.moderate(ctx, messages)
	if err != nil {
		g.logger.Warn("moderation call failed", zap.Error(err))
	}
	if flagged {
		return "", ErrFlagged
	}

	chat := make([]openai.ChatCompletionMessage, 0, len(messages)+1)
	chat = append(chat, openai.ChatCompletionMessage{Role: openai.ChatMessageRoleSystem, Content: systemPrompt})
	for _, m := range messages {
		chat = append(chat, openai.ChatCompletionMessage{Role: m.Role, Content: m.Text})
	}

	resp, err := g.client.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model:       g.model,
		Messages:    chat,
		MaxTokens:   g.maxTokens,
		Temperature: g.temperature,
	})
	if err != nil {
		return "", fmt.Errorf("chat completion: %w", err)
	}
	if len(resp.Choices) == 0 || resp.Choices[0].Message.Content == "" {
		return "", ErrNoReply
	}
	return resp.Choices[0].Message.Content, nil
}

func (g *Guardian) moderate(ctx context.Context, messages []ChatMessage) (bool, error) {
	lines := make([]string, len(messages))
	for i, m := range messages {
		lines[i] = m.Role + ": " + m.Text
	}
	input := truncateUTF8(strings.Join(lines, "\n"), moderationInputLimit)

	resp, err := g.client.Moderations(ctx, openai.ModerationRequest{
		Model: g.moderationModel,
		Input: input,
	})
	if err != nil {
		return false, err
	}
	return len(resp.Results) > 0 && resp.Results[0].Flagged, nil
}

// truncateUTF8 cuts s to at most n bytes without splitting a rune.
func truncateUTF8(s string, n int) string {
	if len(s) <= n {
		return s
	}
	for n > 0 && !utf8.RuneStart(s[n]) {
		n--
	}
	return s[:n]
}
