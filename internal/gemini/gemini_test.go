package gemini

import (
	"context"
	"errors"
	"strings"
	"testing"
	"unicode/utf8"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/deusflow/newsflow/internal/news"
)

func fakeClient(response string, err error, prompts *[]string) *Client {
	return &Client{generate: func(ctx context.Context, prompt string) (string, error) {
		if prompts != nil {
			*prompts = append(*prompts, prompt)
		}
		return response, err
	}}
}

func TestParseSummary(t *testing.T) {
	tests := map[string]string{
		"SUMMARY: India won the series.":                "India won the series.",
		"summary:India won.\nThe final was in Chennai.": "India won. The final was in Chennai.",
		"Sure!\n**SUMMARY**: India won.":                "India won.",
		"India won the series without a label.":         "India won the series without a label.",
		"  SUMMARY:   spaced   out  ":                   "spaced out",
	}
	for in, want := range tests {
		got, err := parseSummary(in)
		require.NoError(t, err, in)
		assert.Equal(t, want, got, in)
	}

	_, err := parseSummary("  \n ")
	assert.ErrorIs(t, err, ErrEmptyResponse)
}

func TestSummarize(t *testing.T) {
	var prompts []string
	c := fakeClient("SUMMARY: Markets rallied after the announcement.", nil, &prompts)

	got, err := c.Summarize(context.Background(), "Markets", "Stocks rose\r\n sharply   today.", "te")
	require.NoError(t, err)
	assert.Equal(t, "Markets rallied after the announcement.", got)
	require.Len(t, prompts, 1)
	assert.Contains(t, prompts[0], "TEXT: Stocks rose sharply today.")
	assert.Contains(t, prompts[0], "Write in te.")
}

func TestSummarizeTruncates(t *testing.T) {
	c := fakeClient("SUMMARY: "+strings.Repeat("word ", 200), nil, nil)

	got, err := c.Summarize(context.Background(), "t", "body", "en")
	require.NoError(t, err)
	assert.LessOrEqual(t, utf8.RuneCountInString(got), news.MaxSummaryLength)
	assert.True(t, strings.HasSuffix(got, "…"))
}

func TestSummarizeErrors(t *testing.T) {
	c := fakeClient("", errors.New("quota exceeded"), nil)
	_, err := c.Summarize(context.Background(), "t", "body", "en")
	assert.EqualError(t, err, "quota exceeded")

	_, err = c.Summarize(context.Background(), "t", "   ", "en")
	assert.Error(t, err)
}

func TestPrepareContent(t *testing.T) {
	long := strings.Repeat("A sentence that goes on. ", 400)
	got := prepareContent(long)
	assert.True(t, strings.HasSuffix(got, ".\n[TRUNCATED]"))
	assert.LessOrEqual(t, utf8.RuneCountInString(got), maxPromptBody+len("\n[TRUNCATED]"))

	assert.Equal(t, "short text", prepareContent("short\r\n  text"))
}
