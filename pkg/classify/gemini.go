package classify

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"time"

	"google.golang.org/genai"
)

// Gemini classifies topics with a Gemini model. Replies outside the
// configured category set fall back to keyword matching rather than
// inventing categories.
type Gemini struct {
	client   *genai.Client
	model    string
	allowed  []string
	fallback *Keyword
}

// NewGemini creates a model-backed classifier over the given category set.
func NewGemini(client *genai.Client, model string, categories map[string][]string) *Gemini {
	if model == "" {
		model = "gemini-2.0-flash"
	}

	allowed := make([]string, 0, len(categories))
	for name := range categories {
		allowed = append(allowed, name)
	}
	sort.Strings(allowed)

	return &Gemini{
		client:   client,
		model:    model,
		allowed:  allowed,
		fallback: NewKeyword(categories),
	}
}

func (g *Gemini) Classify(ctx context.Context, topic string) (string, error) {
	if g.client == nil {
		return g.fallback.Classify(ctx, topic)
	}

	ctx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	prompt := fmt.Sprintf(
		"Classify the trending topic %q into exactly one of these category keys: %s. Reply with the category key only, nothing else.",
		topic, strings.Join(g.allowed, ", "))

	content := genai.NewContentFromText(prompt, genai.RoleUser)
	resp, err := g.client.Models.GenerateContent(ctx, g.model, []*genai.Content{content}, nil)
	if err != nil {
		return "", fmt.Errorf("classify %q: %w", topic, err)
	}

	text := resp.Text()
	if text == "" {
		return "", fmt.Errorf("classify %q: empty model response", topic)
	}

	reply := strings.ToLower(strings.TrimSpace(text))
	for _, cat := range g.allowed {
		if reply == strings.ToLower(cat) {
			return cat, nil
		}
	}

	// Model answered off-list; keywords decide instead.
	return g.fallback.Classify(ctx, topic)
}
