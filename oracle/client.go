// Package oracle implements battle.QuestionOracle against an
// OpenAI-compatible chat-completions endpoint.
package oracle

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"strings"

	"github.com/shiquanshi/haikedasai/battle"
)

type Client struct {
	baseURL string
	apiKey  string
	model   string
	http    *http.Client
	logger  *slog.Logger
}

func NewClient(baseURL, apiKey, model string, logger *slog.Logger) *Client {
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		apiKey:  apiKey,
		model:   model,
		http:    &http.Client{},
		logger:  logger,
	}
}

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type chatRequest struct {
	Model       string        `json:"model"`
	Messages    []chatMessage `json:"messages"`
	Temperature float64       `json:"temperature"`
}

type chatResponse struct {
	Choices []struct {
		Message struct {
			Content string `json:"content"`
		} `json:"message"`
	} `json:"choices"`
}

func (c *Client) complete(ctx context.Context, system, user string, temperature float64) (string, error) {
	body, err := json.Marshal(chatRequest{
		Model: c.model,
		Messages: []chatMessage{
			{Role: "system", Content: system},
			{Role: "user", Content: user},
		},
		Temperature: temperature,
	})
	if err != nil {
		return "", err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/chat/completions", bytes.NewReader(body))
	if err != nil {
		return "", err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+c.apiKey)

	resp, err := c.http.Do(req)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("chat completion: unexpected status %d", resp.StatusCode)
	}

	var parsed chatResponse
	if err := json.NewDecoder(resp.Body).Decode(&parsed); err != nil {
		return "", err
	}
	if len(parsed.Choices) == 0 {
		return "", fmt.Errorf("chat completion: empty choices")
	}
	return parsed.Choices[0].Message.Content, nil
}

type generatedQuestion struct {
	Question        string `json:"question"`
	ScoringCriteria string `json:"scoring_criteria"`
	ReferenceAnswer string `json:"reference_answer"`
}

// GenerateQuestion asks the model for an open-ended question with its
// grading criteria and reference answer.
func (c *Client) GenerateQuestion(ctx context.Context, topic, difficulty string, round int, scenario string) (*battle.Question, error) {
	prompt := fmt.Sprintf(`Generate one open-ended question.

Topic: %s
Difficulty: %s
Round: %d
`, topic, difficulty, round)
	if scenario != "" {
		prompt += fmt.Sprintf("Learning scenario: %s\n", scenario)
	}
	prompt += `
Requirements:
1. The question must be open-ended and call for reasoning and opinion.
2. It must match the requested difficulty and stay close to the topic.
3. It must be answerable within 60 seconds.
4. It should have enough depth to separate strong answers from weak ones.

Reply as JSON with exactly these fields:
{
    "question": "the question text",
    "scoring_criteria": "grading criteria on a 100-point scale",
    "reference_answer": "key points of a reference answer"
}`

	raw, err := c.complete(ctx, "You are an expert question writer producing high-quality open-ended questions for a given topic and difficulty.", prompt, 0.8)
	if err != nil {
		return nil, err
	}

	var gen generatedQuestion
	if err := json.Unmarshal([]byte(stripCodeFence(raw)), &gen); err != nil {
		c.logger.Warn("unparseable question response", "err", err)
		return nil, fmt.Errorf("parse question response: %w", err)
	}
	return &battle.Question{
		Content:         gen.Question,
		ScoringCriteria: gen.ScoringCriteria,
		ReferenceAnswer: gen.ReferenceAnswer,
		Topic:           topic,
		Difficulty:      difficulty,
		Round:           round,
	}, nil
}

type scoredAnswer struct {
	Score    int    `json:"score"`
	Feedback string `json:"feedback"`
}

// ScoreAnswer grades one answer against the question's criteria.
func (c *Client) ScoreAnswer(ctx context.Context, q *battle.Question, answer string) (battle.ScoreResult, error) {
	prompt := fmt.Sprintf(`Score the following answer.

Question: %s

Grading criteria:
%s

Reference answer key points:
%s

Student answer:
%s

Requirements:
1. Full marks are 100.
2. Grade on completeness, accuracy and depth.
3. Give short feedback (at most 50 words).
4. An empty or entirely off-topic answer scores 0.

Reply as JSON:
{
    "score": 0-100,
    "feedback": "short feedback"
}`, q.Content, q.ScoringCriteria, q.ReferenceAnswer, answer)

	raw, err := c.complete(ctx, "You are a fair and strict grader scoring answers objectively against the question and its criteria.", prompt, 0.3)
	if err != nil {
		return battle.ScoreResult{}, err
	}

	var scored scoredAnswer
	if err := json.Unmarshal([]byte(stripCodeFence(raw)), &scored); err != nil {
		c.logger.Warn("unparseable score response", "err", err)
		return battle.ScoreResult{}, fmt.Errorf("parse score response: %w", err)
	}
	if scored.Score < 0 || scored.Score > 100 {
		c.logger.Warn("score out of range, clamping", "score", scored.Score)
		scored.Score = min(max(scored.Score, 0), 100)
	}
	return battle.ScoreResult{Score: scored.Score, Feedback: scored.Feedback}, nil
}

// stripCodeFence unwraps a JSON body the model wrapped in a markdown
// code block.
func stripCodeFence(s string) string {
	if i := strings.Index(s, "```json"); i >= 0 {
		if j := strings.LastIndex(s, "```"); j > i {
			return strings.TrimSpace(s[i+len("```json") : j])
		}
	}
	if i := strings.Index(s, "```"); i >= 0 {
		if j := strings.LastIndex(s, "```"); j > i+2 {
			return strings.TrimSpace(s[i+3 : j])
		}
	}
	return strings.TrimSpace(s)
}
