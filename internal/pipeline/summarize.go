package pipeline

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/imalyk/go-meeting-insights/internal/config"
)

const failedSummary = "Summary generation failed"

// Summarizer turns a transcript into a bullet-point summary through the
// OpenAI chat completions API. A summarizer failure is not a job failure:
// the transcript is still worth keeping, so errors degrade to a
// placeholder summary.
type Summarizer struct {
	cfg    config.Config
	logger *slog.Logger
	client *http.Client
}

func NewSummarizer(cfg config.Config, logger *slog.Logger) *Summarizer {
	return &Summarizer{
		cfg:    cfg,
		logger: logger,
		client: &http.Client{Timeout: 2 * time.Minute},
	}
}

type chatRequest struct {
	Model       string        `json:"model"`
	Messages    []chatMessage `json:"messages"`
	Temperature float64       `json:"temperature"`
	MaxTokens   int           `json:"max_tokens"`
}

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type chatResponse struct {
	Choices []struct {
		Message chatMessage `json:"message"`
	} `json:"choices"`
}

func (s *Summarizer) Summarize(ctx context.Context, transcript string) string {
	if len(transcript) == 0 {
		return ""
	}

	prompt := "Summarize the following meeting transcript in bullet points, " +
		"highlight action items, key decisions, and follow-up tasks. " +
		"Use clear English. Transcript:\n" + transcript

	summary, err := s.complete(ctx, prompt)
	if err != nil {
		s.logger.Error("summary generation failed", "error", err)
		return failedSummary
	}
	s.logger.Info("summary generated", "chars", len(summary))
	return summary
}

func (s *Summarizer) complete(ctx context.Context, prompt string) (string, error) {
	body, err := json.Marshal(chatRequest{
		Model: s.cfg.OpenAIModel,
		Messages: []chatMessage{
			{Role: "system", Content: "You are a meeting assistant."},
			{Role: "user", Content: prompt},
		},
		Temperature: 0.2,
		MaxTokens:   512,
	})
	if err != nil {
		return "", err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.cfg.OpenAIBaseURL+"/chat/completions", bytes.NewReader(body))
	if err != nil {
		return "", err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+s.cfg.OpenAIAPIKey)

	resp, err := s.client.Do(req)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()

	payload, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return "", err
	}
	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("completions status %d: %s", resp.StatusCode, bytes.TrimSpace(payload))
	}

	var parsed chatResponse
	if err := json.Unmarshal(payload, &parsed); err != nil {
		return "", fmt.Errorf("decode completions response: %w", err)
	}
	if len(parsed.Choices) == 0 {
		return "", fmt.Errorf("completions response had no choices")
	}
	return parsed.Choices[0].Message.Content, nil
}
