package gemini

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"strings"
	"unicode/utf8"

	"github.com/google/generative-ai-go/genai"
	"google.golang.org/api/option"

	"github.com/deusflow/newsflow/internal/news"
)

const (
	defaultModel  = "gemini-1.5-flash"
	maxPromptBody = 6000
)

var ErrEmptyResponse = errors.New("no response from Gemini")

// generateFunc sends one prompt and returns the text of the first candidate.
type generateFunc func(ctx context.Context, prompt string) (string, error)

type Client struct {
	client   *genai.Client
	generate generateFunc
}

func NewClient(ctx context.Context, apiKey, model string) (*Client, error) {
	client, err := genai.NewClient(ctx, option.WithAPIKey(apiKey))
	if err != nil {
		return nil, fmt.Errorf("failed to create Gemini client: %w", err)
	}
	if model == "" {
		model = defaultModel
	}

	gm := client.GenerativeModel(model)
	gm.SetTemperature(0.2)

	return &Client{
		client: client,
		generate: func(ctx context.Context, prompt string) (string, error) {
			resp, err := gm.GenerateContent(ctx, genai.Text(prompt))
			if err != nil {
				return "", fmt.Errorf("failed to generate content: %w", err)
			}
			if len(resp.Candidates) == 0 || resp.Candidates[0].Content == nil || len(resp.Candidates[0].Content.Parts) == 0 {
				return "", ErrEmptyResponse
			}
			return fmt.Sprintf("%v", resp.Candidates[0].Content.Parts[0]), nil
		},
	}, nil
}

func (c *Client) Close() {
	if c.client != nil {
		c.client.Close()
	}
}

// Summarize asks the model for a short summary of the article in its own
// language. The result never exceeds news.MaxSummaryLength runes.
func (c *Client) Summarize(ctx context.Context, title, content, lang string) (string, error) {
	content = prepareContent(content)
	if content == "" {
		return "", fmt.Errorf("nothing to summarize")
	}

	if lang == "" {
		lang = "the same language as the article"
	}
	prompt := fmt.Sprintf(`Summarize this news article in two or three sentences.

TITLE: %s
TEXT: %s

Requirements:
- Write in %s.
- At most %d characters.
- Keep names of people, brands and organizations unchanged.
- Do not start with phrases like "The article says".

Answer strictly in this format:
SUMMARY: <summary>
`, title, content, lang, news.MaxSummaryLength)

	response, err := c.generate(ctx, prompt)
	if err != nil {
		return "", err
	}
	summary, err := parseSummary(response)
	if err != nil {
		return "", err
	}
	return news.Truncate(summary, news.MaxSummaryLength), nil
}

// prepareContent collapses whitespace and limits the prompt body, preferring
// to cut at a sentence end.
func prepareContent(content string) string {
	content = strings.Join(strings.Fields(strings.ReplaceAll(content, "\r", "")), " ")
	if utf8.RuneCountInString(content) <= maxPromptBody {
		return content
	}
	trimmed := string([]rune(content)[:maxPromptBody])
	if idx := strings.LastIndex(trimmed, ". "); idx > 1200 {
		trimmed = trimmed[:idx+1]
	}
	return trimmed + "\n[TRUNCATED]"
}

var summaryLabel = regexp.MustCompile(`(?i)^\**\s*SUMMARY\s*\**\s*: ?`)

func parseSummary(response string) (string, error) {
	var b strings.Builder
	labelled := false

	for _, raw := range strings.Split(response, "\n") {
		line := strings.TrimSpace(raw)
		if line == "" {
			continue
		}
		if summaryLabel.MatchString(line) {
			labelled = true
			line = strings.TrimSpace(summaryLabel.ReplaceAllString(line, ""))
		}
		if !labelled {
			continue
		}
		if b.Len() > 0 {
			b.WriteString(" ")
		}
		b.WriteString(line)
	}

	summary := strings.Join(strings.Fields(b.String()), " ")
	if summary == "" {
		// unlabelled answers are used as-is
		summary = strings.Join(strings.Fields(response), " ")
	}
	if summary == "" {
		return "", ErrEmptyResponse
	}
	return summary, nil
}
