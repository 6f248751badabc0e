package infra

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"sync"

	"go.uber.org/zap"
	"google.golang.org/genai"

	"flowengine/internal/domain"
)

const defaultClassifierModel = "gemini-2.0-flash"

// GenAIClassifier resolves search-query intent through the Gemini API. Used
// only when keyword matching misses; results are cached per normalized query
// so the same search is never billed twice.
type GenAIClassifier struct {
	client *genai.Client
	model  string
	logger *zap.Logger

	mu    sync.Mutex
	cache map[string]domain.Classification
}

// NewGenAIClassifier creates the AI query classifier.
func NewGenAIClassifier(ctx context.Context, apiKey, model string, logger *zap.Logger) (*GenAIClassifier, error) {
	if apiKey == "" {
		return nil, fmt.Errorf("GenAI API key is required")
	}
	if model == "" {
		model = defaultClassifierModel
	}

	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey: apiKey,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create GenAI client: %w", err)
	}

	return &GenAIClassifier{
		client: client,
		model:  model,
		logger: logger,
		cache:  make(map[string]domain.Classification),
	}, nil
}

type classifierReply struct {
	Classification string  `json:"classification"`
	Confidence     float64 `json:"confidence"`
	Reasoning      string  `json:"reasoning"`
}

// ClassifyQuery asks the model whether a search query signals a distraction.
func (c *GenAIClassifier) ClassifyQuery(ctx context.Context, query, engine string) (domain.Classification, error) {
	key := strings.ToLower(strings.TrimSpace(query))

	c.mu.Lock()
	if cached, ok := c.cache[key]; ok {
		c.mu.Unlock()
		return cached, nil
	}
	c.mu.Unlock()

	prompt := fmt.Sprintf(`A user working at their computer searched %q on %s.
Classify the intent of this search as exactly one of: "productive", "distracting", "neutral".
"distracting" means entertainment, social media, gaming or shopping.
"productive" means work, study or technical research.
Respond with JSON only, no markdown fences:
{"classification": "...", "confidence": 0.0, "reasoning": "one short sentence"}`, query, engine)

	resp, err := c.client.Models.GenerateContent(ctx, c.model, genai.Text(prompt), nil)
	if err != nil {
		return domain.Classification{}, fmt.Errorf("GenAI classification failed: %w", err)
	}

	text := strings.TrimSpace(resp.Text())
	text = strings.TrimPrefix(text, "```json")
	text = strings.TrimPrefix(text, "```")
	text = strings.TrimSuffix(text, "```")

	var reply classifierReply
	if err := json.Unmarshal([]byte(strings.TrimSpace(text)), &reply); err != nil {
		return domain.Classification{}, fmt.Errorf("failed to parse classification response: %w", err)
	}

	result := domain.Classification{
		Verdict:    parseVerdict(reply.Classification),
		Confidence: reply.Confidence,
		Reasoning:  reply.Reasoning,
		Source:     "ai",
	}

	c.mu.Lock()
	c.cache[key] = result
	c.mu.Unlock()

	c.logger.Debug("query classified by AI",
		zap.String("query", query),
		zap.String("verdict", string(result.Verdict)),
		zap.Float64("confidence", result.Confidence))

	return result, nil
}

func parseVerdict(s string) domain.Verdict {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "productive":
		return domain.VerdictProductive
	case "distracting":
		return domain.VerdictDistracting
	default:
		return domain.VerdictNeutral
	}
}

var _ domain.Classifier = (*GenAIClassifier)(nil)
