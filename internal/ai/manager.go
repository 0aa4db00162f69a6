package ai

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/xxxsen/common/logutil"
	"go.uber.org/zap"
)

// NotFoundAnswer is returned for document questions without any context.
const NotFoundAnswer = "I couldn't find that in the document."

type ManagerConfig struct {
	Timeout       int
	MaxInputChars int
}

type Manager struct {
	generator IGenerator
	cfg       ManagerConfig
}

func NewManager(generator IGenerator, cfg ManagerConfig) *Manager {
	return &Manager{generator: generator, cfg: cfg}
}

const tutorInstructions = `You are a helpful and precise AI tutor.
1. Answer the question in detail, covering every important point of the topic.
2. Generate a 5-question multiple choice quiz based on the answer.

CRITICAL: Output ONLY valid JSON. Do not add any text before or after the JSON.

The JSON structure must be exactly this:
{
    "question": "The user's question",
    "answer": "Your detailed explanation (markdown supported)",
    "topic": "The specific topic",
    "field": "The general field of study",
    "quiz": {
        "1": {
            "question": "Question text",
            "options": {"1": "Option A", "2": "Option B", "3": "Option C", "4": "Option D"},
            "answer": "2",
            "difficulty": "easy"
        }
    }
}
Repeat the quiz entry for questions "2" to "5".`

const quickInstructions = `You are a helpful AI tutor. Provide a clear, concise answer in plain text.
Keep it under 3-4 sentences. Do NOT use JSON.`

const advisorInstructions = `You are an AI Academic Advisor. Analyze the student's quiz history provided below.

Generate a JSON report with the following structure:
{
    "average_score": "Approximate percentage (0-100) based on CORRECT/WRONG status",
    "strong_topics": ["2-3 topics where they answered mostly CORRECT"],
    "weak_topics": ["2-3 topics where they answered WRONG"],
    "advice": "A paragraph (3-4 sentences) giving specific study advice based on their mistakes."
}

Output ONLY valid JSON.`

const documentInstructions = `You are a helpful AI tutor. Answer the user's question ONLY based on the provided Context.
Study the context carefully and answer only if the information is present in the context,
otherwise say "I couldn't find that in the document." and suggest related topics found in the context.
Keep the answer concise.`

// AskTutor returns a detailed answer with a quiz. Output that is not valid
// JSON yields a fallback answer rather than an error.
func (m *Manager) AskTutor(ctx context.Context, question string) (*TutorAnswer, error) {
	raw, err := m.generate(ctx, Prompt{System: tutorInstructions, User: m.clip(question), JSON: true})
	if err != nil {
		return nil, err
	}
	answer := ParseTutorAnswer(raw, question)
	if answer.Fallback {
		logutil.GetLogger(ctx).Warn("tutor response is not valid json", zap.Int("size", len(raw)))
	}
	return answer, nil
}

func (m *Manager) AskQuick(ctx context.Context, question string) (string, error) {
	return m.generate(ctx, Prompt{System: quickInstructions, User: m.clip(question)})
}

// AnalyzePerformance degrades to a fallback report when the model fails.
func (m *Manager) AnalyzePerformance(ctx context.Context, history string) *PerformanceReport {
	raw, err := m.generate(ctx, Prompt{
		System: advisorInstructions,
		User:   "Here is the student's recent performance:\n" + m.clip(history),
		JSON:   true,
	})
	if err != nil {
		logutil.GetLogger(ctx).Error("performance analysis failed", zap.Error(err))
		return FallbackPerformanceReport()
	}
	return ParsePerformanceReport(raw)
}

// AskDocument answers from retrieved document context only. Empty context
// is answered without calling the model.
func (m *Manager) AskDocument(ctx context.Context, question, docContext string) (string, error) {
	if strings.TrimSpace(docContext) == "" {
		return NotFoundAnswer, nil
	}
	prompt := fmt.Sprintf("Context:\n%s\n\nQuestion:\n%s", docContext, m.clip(question))
	return m.generate(ctx, Prompt{System: documentInstructions, User: prompt})
}

func (m *Manager) generate(ctx context.Context, prompt Prompt) (string, error) {
	if m.generator == nil {
		return "", fmt.Errorf("generator not configured: %w", ErrUnavailable)
	}
	if m.cfg.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, time.Duration(m.cfg.Timeout)*time.Second)
		defer cancel()
	}
	resp, err := m.generator.Generate(ctx, prompt)
	if err != nil {
		return "", err
	}
	text := strings.TrimSpace(resp)
	if text == "" {
		return "", fmt.Errorf("empty ai response")
	}
	return text, nil
}

func (m *Manager) clip(text string) string {
	if m.cfg.MaxInputChars <= 0 {
		return text
	}
	runes := []rune(text)
	if len(runes) <= m.cfg.MaxInputChars {
		return text
	}
	return string(runes[:m.cfg.MaxInputChars])
}

func (m *Manager) MaxInputChars() int {
	return m.cfg.MaxInputChars
}
