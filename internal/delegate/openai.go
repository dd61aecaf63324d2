package delegate

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/rs/zerolog"
	"github.com/sashabaranov/go-openai"

	"invoicebot/internal/logger"
	"invoicebot/pkg/models"
)

// ErrDelegateFailed is returned when the completion API call fails or
// returns an unusable response. Callers must never surface the raw failure
// to end users.
var ErrDelegateFailed = errors.New("insight delegate call failed")

const systemPrompt = "You are a finance assistant. Given invoice data or a question about " +
	"accounts payable, reply with concise, actionable payment insights in plain prose."

// InsightService forwards invoice context to a chat-completion API and
// returns prose insights as an alternative to the local engine.
type InsightService interface {
	// Insights answers a free-text question from the conversation.
	Insights(ctx context.Context, text string) (string, error)

	// InvoiceInsights summarizes a batch of invoices.
	InvoiceInsights(ctx context.Context, invoices []models.Invoice) (string, error)
}

// OpenAIInsightService implements InsightService using the OpenAI chat
// completion API.
type OpenAIInsightService struct {
	client *openai.Client
	model  string
	log    zerolog.Logger
}

// NewOpenAIInsightService creates the delegate with an existing client.
func NewOpenAIInsightService(client *openai.Client, model string) *OpenAIInsightService {
	if model == "" {
		model = openai.GPT4oMini
	}
	return &OpenAIInsightService{
		client: client,
		model:  model,
		log:    logger.WithComponent("delegate"),
	}
}

// Insights sends the user's text as-is and returns the model's reply.
func (s *OpenAIInsightService) Insights(ctx context.Context, text string) (string, error) {
	const op = "Insights"
	return s.complete(ctx, op, text)
}

// InvoiceInsights renders the batch into a compact textual summary and asks
// the model for prioritization advice over it.
func (s *OpenAIInsightService) InvoiceInsights(ctx context.Context, invoices []models.Invoice) (string, error) {
	const op = "InvoiceInsights"

	var sb strings.Builder
	sb.WriteString("Analyze these invoices and suggest a payment order:\n")
	for _, inv := range invoices {
		fmt.Fprintf(&sb, "- Invoice %s from %s: $%s due %s, %s%% discount, terms %q, status %s\n",
			inv.ID, inv.Supplier, inv.Amount.String(),
			inv.DueDate.Format(models.DateLayout),
			strings.TrimRight(strings.TrimRight(fmt.Sprintf("%.2f", inv.Discount), "0"), "."),
			inv.PaymentTerms, inv.Status)
	}

	return s.complete(ctx, op, sb.String())
}

func (s *OpenAIInsightService) complete(ctx context.Context, op, userContent string) (string, error) {
	resp, err := s.client.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model: s.model,
		Messages: []openai.ChatCompletionMessage{
			{
				Role:    openai.ChatMessageRoleSystem,
				Content: systemPrompt,
			},
			{
				Role:    openai.ChatMessageRoleUser,
				Content: userContent,
			},
		},
		Temperature: 0.2,
		MaxTokens:   800,
	})
	if err != nil {
		s.log.Warn().Err(err).Str("model", s.model).Msg("Completion request failed")
		return "", fmt.Errorf("%s: %w: %v", op, ErrDelegateFailed, err)
	}

	if len(resp.Choices) == 0 {
		return "", fmt.Errorf("%s: %w: no response choices", op, ErrDelegateFailed)
	}

	content := strings.TrimSpace(resp.Choices[0].Message.Content)
	if content == "" {
		return "", fmt.Errorf("%s: %w: empty completion", op, ErrDelegateFailed)
	}

	s.log.Debug().
		Str("model", s.model).
		Int("prompt_tokens", resp.Usage.PromptTokens).
		Int("completion_tokens", resp.Usage.CompletionTokens).
		Msg("Completion received")

	return content, nil
}
