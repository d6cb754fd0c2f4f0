// Package summary produces a short prose summary of extracted document text.
// Summarization is best-effort: extraction results are complete without it.
package summary

import (
	"context"
	"fmt"
	"strings"

	"github.com/rs/zerolog"
	"github.com/sashabaranov/go-openai"

	"docextract/internal/logger"
)

// Summarizer condenses extracted text into a few sentences.
type Summarizer interface {
	Summarize(ctx context.Context, text string) (string, error)
}

// Config tunes the ChatGPT summarizer.
type Config struct {
	Model       string
	Temperature float32
	MaxRetries  int

	// MaxInputChars truncates the text sent to the model. Zero means the
	// default.
	MaxInputChars int
}

// ChatGPTSummarizer summarizes via the OpenAI chat completion API.
type ChatGPTSummarizer struct {
	client *openai.Client
	config Config
	log    zerolog.Logger
}

// NewChatGPTSummarizer creates a summarizer with an explicit client.
func NewChatGPTSummarizer(client *openai.Client, config Config) *ChatGPTSummarizer {
	if config.Model == "" {
		config.Model = "gpt-4o-mini"
	}
	if config.MaxRetries <= 0 {
		config.MaxRetries = 3
	}
	if config.MaxInputChars <= 0 {
		config.MaxInputChars = 12000
	}
	return &ChatGPTSummarizer{
		client: client,
		config: config,
		log:    logger.WithComponent("summary"),
	}
}

const systemPrompt = `You summarize documents for a document processing pipeline.
Write 2-4 plain sentences describing what the document is and what it covers.
Do not repeat numbers verbatim unless they identify the document.
Return only the summary text, no preamble.`

// Summarize sends the text to the chat completion API, retrying transient
// failures.
func (s *ChatGPTSummarizer) Summarize(ctx context.Context, text string) (string, error) {
	const op = "Summarize"

	text = strings.TrimSpace(text)
	if text == "" {
		return "", fmt.Errorf("%s: no text to summarize", op)
	}
	if len(text) > s.config.MaxInputChars {
		text = text[:s.config.MaxInputChars]
	}

	var lastErr error
	for attempt := 1; attempt <= s.config.MaxRetries; attempt++ {
		resp, err := s.client.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
			Model:       s.config.Model,
			Temperature: s.config.Temperature,
			Messages: []openai.ChatCompletionMessage{
				{Role: openai.ChatMessageRoleSystem, Content: systemPrompt},
				{Role: openai.ChatMessageRoleUser, Content: text},
			},
			MaxTokens: 300,
		})
		if err != nil {
			lastErr = err
			s.log.Warn().
				Err(err).
				Int("attempt", attempt).
				Int("max_retries", s.config.MaxRetries).
				Msg("Summary request failed, retrying")
			continue
		}
		if len(resp.Choices) == 0 {
			lastErr = fmt.Errorf("no response choices")
			continue
		}
		return strings.TrimSpace(resp.Choices[0].Message.Content), nil
	}

	return "", fmt.Errorf("%s: all %d attempts failed, last error: %w", op, s.config.MaxRetries, lastErr)
}

// ExtractiveSummarizer is the offline fallback used when no API key is
// configured: it returns the leading sentences of the text.
type ExtractiveSummarizer struct {
	// MaxSentences caps the summary length. Zero means 3.
	MaxSentences int
}

func (e *ExtractiveSummarizer) Summarize(ctx context.Context, text string) (string, error) {
	text = strings.TrimSpace(text)
	if text == "" {
		return "", fmt.Errorf("no text to summarize")
	}

	max := e.MaxSentences
	if max <= 0 {
		max = 3
	}

	sentences := splitSentences(text)
	if len(sentences) > max {
		sentences = sentences[:max]
	}
	return strings.Join(sentences, " "), nil
}

// splitSentences splits on terminal punctuation. Good enough for a preview;
// this is not a linguistic sentence splitter.
func splitSentences(text string) []string {
	var sentences []string
	var current strings.Builder
	for _, r := range text {
		current.WriteRune(r)
		if r == '.' || r == '!' || r == '?' {
			if s := strings.TrimSpace(current.String()); s != "" {
				sentences = append(sentences, s)
			}
			current.Reset()
		}
	}
	if s := strings.TrimSpace(current.String()); s != "" {
		sentences = append(sentences, s)
	}
	return sentences
}
