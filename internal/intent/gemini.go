// File: internal/intent/gemini.go
package intent

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v4"
	"go.uber.org/zap"
	"google.golang.org/genai"

	"github.com/snabbsalud/agendabot/internal/config"
)

const systemPrompt = `Eres un clasificador de intenciones para un asistente de agendamiento medico.
Lee el mensaje del paciente y responde SOLO un objeto JSON con esta forma:
{"intencion":"agendar|borrar|modificar|hablar","especialidad":"","ubicacion":"","fecha":"","hora":""}
Deja vacios los campos no mencionados. No agregues texto fuera del JSON.`

// GeminiExtractor asks Gemini for a JSON-constrained intent reading and falls
// back to the keyword extractor when the model is unreachable or answers
// garbage. A misread intent costs one clarifying turn; an error would end the
// conversation.
type GeminiExtractor struct {
	client   *genai.Client
	model    string
	fallback *KeywordExtractor
	log      *zap.Logger
}

// NewGeminiExtractor builds the extractor. The API key is required; deployments
// without one wire the keyword extractor directly.
func NewGeminiExtractor(ctx context.Context, cfg config.IntentConfig, fallback *KeywordExtractor, logger *zap.Logger) (*GeminiExtractor, error) {
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("gemini API key is required")
	}
	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:  cfg.APIKey,
		Backend: genai.BackendGeminiAPI,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create genai client: %w", err)
	}
	return &GeminiExtractor{
		client:   client,
		model:    cfg.Model,
		fallback: fallback,
		log:      logger.Named("intent.gemini"),
	}, nil
}

func (e *GeminiExtractor) Extract(ctx context.Context, message string) (Intent, error) {
	b := backoff.NewExponentialBackOff()
	b.MaxElapsedTime = 30 * time.Second
	b.MaxInterval = 10 * time.Second

	var raw string
	operation := func() error {
		resp, err := e.client.Models.GenerateContent(ctx, e.model,
			genai.Text(message),
			&genai.GenerateContentConfig{
				SystemInstruction: genai.NewContentFromText(systemPrompt, genai.RoleUser),
				ResponseMIMEType:  "application/json",
				Temperature:       genai.Ptr[float32](0),
			})
		if err != nil {
			e.log.Warn("Intent generation failed, retrying.", zap.Error(err))
			return err
		}
		raw = resp.Text()
		if raw == "" {
			return backoff.Permanent(fmt.Errorf("model returned empty content"))
		}
		return nil
	}

	if err := backoff.Retry(operation, backoff.WithContext(b, ctx)); err != nil {
		e.log.Warn("Falling back to keyword extraction.", zap.Error(err))
		return e.fallback.Extract(ctx, message)
	}

	out, err := ParseIntentJSON(raw)
	if err != nil {
		e.log.Warn("Model answer was not valid intent JSON; falling back.",
			zap.String("answer", raw), zap.Error(err))
		return e.fallback.Extract(ctx, message)
	}
	return out, nil
}

// ParseIntentJSON decodes a model answer, tolerating markdown code fences, and
// normalizes unknown intent kinds to "hablar".
func ParseIntentJSON(raw string) (Intent, error) {
	cleaned := strings.TrimSpace(raw)
	cleaned = strings.TrimPrefix(cleaned, "```json")
	cleaned = strings.TrimPrefix(cleaned, "```")
	cleaned = strings.TrimSuffix(cleaned, "```")
	cleaned = strings.TrimSpace(cleaned)

	var out Intent
	if err := json.Unmarshal([]byte(cleaned), &out); err != nil {
		return Intent{}, fmt.Errorf("failed to decode intent answer: %w", err)
	}
	switch out.Kind {
	case KindSchedule, KindCancel, KindReschedule, KindTalk:
	default:
		out.Kind = KindTalk
	}
	return out, nil
}
