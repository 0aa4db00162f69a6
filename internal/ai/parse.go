package ai

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
)

// FlexInt accepts 2, 2.0 and "2".
type FlexInt int

func (f *FlexInt) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if len(data) == 0 || string(data) == "null" {
		*f = 0
		return nil
	}
	if data[0] == '"' {
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
		s = strings.TrimSuffix(strings.TrimSpace(s), "%")
		if s == "" {
			*f = 0
			return nil
		}
		v, err := strconv.ParseFloat(s, 64)
		if err != nil {
			return fmt.Errorf("parse %q as number: %w", s, err)
		}
		*f = FlexInt(int(v + 0.5))
		return nil
	}
	var v float64
	if err := json.Unmarshal(data, &v); err != nil {
		return err
	}
	*f = FlexInt(int(v + 0.5))
	return nil
}

type QuizItem struct {
	Question   string            `json:"question"`
	Options    map[string]string `json:"options"`
	Answer     FlexInt           `json:"answer"`
	Difficulty string            `json:"difficulty"`
}

type TutorAnswer struct {
	Question string              `json:"question"`
	Answer   string              `json:"answer"`
	Topic    string              `json:"topic"`
	Field    string              `json:"field"`
	Quiz     map[string]QuizItem `json:"quiz"`
	// Fallback is set when the model output could not be parsed.
	Fallback bool `json:"-"`
}

type PerformanceReport struct {
	AverageScore FlexInt  `json:"average_score"`
	StrongTopics []string `json:"strong_topics"`
	WeakTopics   []string `json:"weak_topics"`
	Advice       string   `json:"advice"`
	Fallback     bool     `json:"-"`
}

// StripFences removes a surrounding markdown code fence, with or without a
// language tag, and any prose outside the outermost JSON object.
func StripFences(raw string) string {
	clean := strings.TrimSpace(raw)
	if idx := strings.Index(clean, "```"); idx >= 0 {
		rest := clean[idx+3:]
		if nl := strings.IndexByte(rest, '\n'); nl >= 0 && !strings.HasPrefix(strings.TrimSpace(rest[:nl]), "{") {
			rest = rest[nl+1:]
		}
		if end := strings.Index(rest, "```"); end >= 0 {
			rest = rest[:end]
		}
		clean = strings.TrimSpace(rest)
	}
	start := strings.Index(clean, "{")
	end := strings.LastIndex(clean, "}")
	if start >= 0 && end > start {
		clean = clean[start : end+1]
	}
	return clean
}

// ParseTutorAnswer never fails: unusable output becomes a fallback answer
// carrying the raw text and an empty quiz.
func ParseTutorAnswer(raw, question string) *TutorAnswer {
	out := &TutorAnswer{}
	if err := json.Unmarshal([]byte(StripFences(raw)), out); err != nil || strings.TrimSpace(out.Answer) == "" {
		answer := strings.TrimSpace(raw)
		if answer == "" {
			answer = "The AI generated a response that could not be parsed. Please try again."
		}
		return &TutorAnswer{
			Question: question,
			Answer:   answer,
			Topic:    "Error",
			Field:    "General",
			Quiz:     map[string]QuizItem{},
			Fallback: true,
		}
	}
	if out.Question == "" {
		out.Question = question
	}
	if out.Quiz == nil {
		out.Quiz = map[string]QuizItem{}
	}
	return out
}

func FallbackPerformanceReport() *PerformanceReport {
	return &PerformanceReport{
		StrongTopics: []string{},
		WeakTopics:   []string{},
		Advice:       "Could not generate analysis at this time.",
		Fallback:     true,
	}
}

func ParsePerformanceReport(raw string) *PerformanceReport {
	out := &PerformanceReport{}
	if err := json.Unmarshal([]byte(StripFences(raw)), out); err != nil {
		return FallbackPerformanceReport()
	}
	if out.StrongTopics == nil {
		out.StrongTopics = []string{}
	}
	if out.WeakTopics == nil {
		out.WeakTopics = []string{}
	}
	if out.AverageScore < 0 {
		out.AverageScore = 0
	}
	if out.AverageScore > 100 {
		out.AverageScore = 100
	}
	return out
}
