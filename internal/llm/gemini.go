package llm

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/generative-ai-go/genai"
	"github.com/rs/zerolog"
	"google.golang.org/api/option"

	"gwi.com/conversation-assistant/internal/store"
)

const (
	providerGemini  = "gemini"
	geminiRoleUser  = "user"
	geminiRoleModel = "model"
)

// GeminiClient serves completions from Gemini and derives the flag check from
// Gemini's safety feedback, since the API has no standalone moderation endpoint.
type GeminiClient struct {
	client          *genai.Client
	moderationModel string
	log             zerolog.Logger
}

func NewGeminiClient(ctx context.Context, apiKey, moderationModel string, log zerolog.Logger) (*GeminiClient, error) {
	client, err := genai.NewClient(ctx, option.WithAPIKey(apiKey))
	if err != nil {
		return nil, fmt.Errorf("failed to create GenAI client: %w", err)
	}
	return &GeminiClient{
		client:          client,
		moderationModel: moderationModel,
		log:             log.With().Str("provider", providerGemini).Logger(),
	}, nil
}

func (c *GeminiClient) Close() error {
	if c.client == nil {
		return nil
	}
	if err := c.client.Close(); err != nil {
		return fmt.Errorf("failed to close GenAI client: %w", err)
	}
	return nil
}

func (c *GeminiClient) IsFlagged(ctx context.Context, text string) (flagged bool, err error) {
	defer func(start time.Time) { observe(providerGemini, OperationModeration, start, err) }(time.Now())

	model := c.client.GenerativeModel(c.moderationModel)
	model.SetMaxOutputTokens(1)

	resp, err := model.GenerateContent(ctx, genai.Text(text))
	if err != nil {
		var blocked *genai.BlockedError
		if errors.As(err, &blocked) {
			return true, nil
		}
		return false, fmt.Errorf("gemini safety check failed: %w", err)
	}
	return unsafeResponse(resp), nil
}

// unsafeResponse reports whether any safety rating is blocked or at least MEDIUM.
func unsafeResponse(resp *genai.GenerateContentResponse) bool {
	if resp == nil {
		return false
	}
	var ratings []*genai.SafetyRating
	if resp.PromptFeedback != nil {
		if resp.PromptFeedback.BlockReason != genai.BlockReasonUnspecified {
			return true
		}
		ratings = append(ratings, resp.PromptFeedback.SafetyRatings...)
	}
	for _, cand := range resp.Candidates {
		if cand != nil {
			ratings = append(ratings, cand.SafetyRatings...)
		}
	}
	for _, r := range ratings {
		if r != nil && (r.Blocked || r.Probability >= genai.HarmProbabilityMedium) {
			return true
		}
	}
	return false
}

func (c *GeminiClient) Complete(ctx context.Context, req CompletionRequest) (reply *string, err error) {
	defer func(start time.Time) { observe(providerGemini, OperationCompletion, start, err) }(time.Now())

	history := PromptHistory(req.History)
	if len(history) == 0 {
		return nil, ErrEmptyPrompt
	}

	model := c.client.GenerativeModel(req.Model)
	model.SystemInstruction = &genai.Content{
		Parts: []genai.Part{genai.Text(req.System)},
	}
	if req.MaxTokens > 0 {
		model.SetMaxOutputTokens(int32(req.MaxTokens))
	}

	chatSession := model.StartChat()
	var last genai.Part
	if final := history[len(history)-1]; final.Role == store.RoleUser {
		chatSession.History = geminiContents(history[:len(history)-1])
		last = genai.Text(final.Content)
	} else {
		// Gemini expects the last turn to come from the user, so the
		// whole exchange is handed over as a transcript.
		last = genai.Text(transcript(history))
	}

	resp, err := chatSession.SendMessage(ctx, last)
	if err != nil {
		var blocked *genai.BlockedError
		if errors.As(err, &blocked) {
			c.log.Warn().Str("model", req.Model).Msg("completion blocked by safety settings")
			return nil, nil
		}
		return nil, fmt.Errorf("gemini chat SendMessage failed: %w", err)
	}

	if resp == nil || len(resp.Candidates) == 0 || resp.Candidates[0].Content == nil {
		c.log.Warn().Str("model", req.Model).Msg("gemini response had no candidates")
		return nil, nil
	}

	var responseText strings.Builder
	for _, part := range resp.Candidates[0].Content.Parts {
		if txt, ok := part.(genai.Text); ok {
			responseText.WriteString(string(txt))
		} else {
			c.log.Debug().Msgf("gemini response part was not text: %T", part)
		}
	}
	if responseText.Len() == 0 {
		return nil, nil
	}
	content := responseText.String()
	return &content, nil
}

func geminiContents(turns []Turn) []*genai.Content {
	contents := make([]*genai.Content, 0, len(turns))
	for _, turn := range turns {
		role := geminiRoleUser
		if turn.Role == store.RoleAssistant {
			role = geminiRoleModel
		}
		contents = append(contents, &genai.Content{
			Role:  role,
			Parts: []genai.Part{genai.Text(turn.Content)},
		})
	}
	return contents
}

func transcript(turns []Turn) string {
	var b strings.Builder
	for i, turn := range turns {
		if i > 0 {
			b.WriteString("\n")
		}
		b.WriteString(string(turn.Role))
		b.WriteString(": ")
		b.WriteString(turn.Content)
	}
	return b.String()
}
