package aigen

import (
	"context"
	"errors"
	"fmt"
	"log"
	"time"

	"github.com/google/generative-ai-go/genai"
	"google.golang.org/api/option"

	creditsservice "meishi/internal/credits/service"
	"meishi/internal/metrics"
)

// GenerationCost — стоимость одной генерации профиля в баллах.
const GenerationCost = 10

const defaultModel = "gemini-1.5-flash"

var ErrEmptyPrompt = errors.New("prompt is empty")

// Generator абстрагирует вызов модели, чтобы сервис можно было
// тестировать без сети.
type Generator interface {
	Generate(ctx context.Context, prompt string) (string, error)
}

// GeminiGenerator вызывает Gemini через официальный SDK.
type GeminiGenerator struct {
	Client *genai.Client
	Model  string
}

func NewGeminiGenerator(ctx context.Context, apiKey string) (*GeminiGenerator, error) {
	client, err := genai.NewClient(ctx, option.WithAPIKey(apiKey))
	if err != nil {
		return nil, fmt.Errorf("failed to create Gemini client: %w", err)
	}
	return &GeminiGenerator{Client: client, Model: defaultModel}, nil
}

func (g *GeminiGenerator) Generate(ctx context.Context, prompt string) (string, error) {
	model := g.Client.GenerativeModel(g.Model)
	model.SystemInstruction = &genai.Content{
		Parts: []genai.Part{genai.Text(
			"You write short, polished self-introductions for digital business cards. " +
				"Answer with the introduction text only, no preamble.")},
	}

	res, err := model.GenerateContent(ctx, genai.Text(prompt))
	if err != nil {
		return "", fmt.Errorf("error sending message: %w", err)
	}
	if len(res.Candidates) == 0 || len(res.Candidates[0].Content.Parts) == 0 {
		return "", errors.New("empty model response")
	}

	text, ok := res.Candidates[0].Content.Parts[0].(genai.Text)
	if !ok {
		return "", errors.New("unexpected response part type")
	}
	return string(text), nil
}

// Service — платная генерация текста профиля. Баллы списываются до вызова
// модели; если модель не ответила, списание возвращается refund-транзакцией,
// так что леджер остаётся сведённым.
type Service struct {
	gen     Generator
	credits *creditsservice.Service
	cost    int64
}

func NewService(gen Generator, credits *creditsservice.Service) *Service {
	return &Service{gen: gen, credits: credits, cost: GenerationCost}
}

func (s *Service) Cost() int64 { return s.cost }

func (s *Service) GenerateProfile(ctx context.Context, subjectID, prompt string, now time.Time) (string, int64, error) {
	if prompt == "" {
		return "", 0, ErrEmptyPrompt
	}

	balance, err := s.credits.Consume(ctx, subjectID, s.cost, "AI profile generation", now)
	if err != nil {
		metrics.AIGenerationsTotal.WithLabelValues("rejected").Inc()
		return "", 0, err
	}

	text, err := s.gen.Generate(ctx, prompt)
	if err != nil {
		log.Printf("aigen: generation failed for %s, refunding %d points: %v", subjectID, s.cost, err)
		refunded, refundErr := s.credits.Refund(ctx, subjectID, s.cost, "AI generation failed", now)
		if refundErr != nil {
			log.Printf("aigen: refund failed for %s: %v", subjectID, refundErr)
			metrics.AIGenerationsTotal.WithLabelValues("refund_failed").Inc()
			return "", balance, fmt.Errorf("generation failed and refund failed: %w", refundErr)
		}
		metrics.AIGenerationsTotal.WithLabelValues("failed").Inc()
		return "", refunded, fmt.Errorf("generation failed: %w", err)
	}

	metrics.AIGenerationsTotal.WithLabelValues("ok").Inc()
	return text, balance, nil
}
