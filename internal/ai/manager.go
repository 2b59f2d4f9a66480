package ai

import (
	"context"
	"fmt"
	"regexp"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/xxxsen/common/logutil"
	"go.uber.org/zap"

	"github.com/pathweaver/pathweaver/internal/model"
)

type ManagerConfig struct {
	Timeout       int
	MaxInputChars int
}

// Manager owns prompt construction and reply parsing for the engine. The
// generator it holds is expected to be a ResilientGenerator sharing the
// process-wide breaker.
type Manager struct {
	generator IGenerator
	embedder  IEmbedder
	cfg       ManagerConfig
}

func NewManager(generator IGenerator, embedder IEmbedder, cfg ManagerConfig) *Manager {
	return &Manager{
		generator: generator,
		embedder:  embedder,
		cfg:       cfg,
	}
}

func (m *Manager) Embed(ctx context.Context, text string, taskType string) ([]float32, error) {
	if m.embedder == nil {
		return nil, fmt.Errorf("embedder not configured")
	}
	text = strings.TrimSpace(text)
	if text == "" {
		return nil, fmt.Errorf("empty embed input")
	}
	// Truncate instead of failing; the provider rejects oversized input.
	text = truncateText(text, m.cfg.MaxInputChars)
	return m.embedder.Embed(ctx, text, taskType)
}

// truncateText cuts text to at most max bytes without splitting a rune.
func truncateText(text string, max int) string {
	if max <= 0 || len(text) <= max {
		return text
	}
	cut := max
	for cut > 0 && !utf8.RuneStart(text[cut]) {
		cut--
	}
	return text[:cut]
}

// ExpandQuery enriches a short query with academic-register sentences and
// embeds the combined text. Expansion is best effort: a partial parse keeps
// whatever sentences came through, and a failed generation falls back to
// embedding the raw query alone.
func (m *Manager) ExpandQuery(ctx context.Context, query string, sentenceCount int) (*model.ExpandedQuery, error) {
	query = strings.TrimSpace(query)
	if query == "" {
		return nil, fmt.Errorf("empty query")
	}
	if sentenceCount <= 0 {
		sentenceCount = 5
	}
	expanded := &model.ExpandedQuery{
		OriginalText: query,
		CombinedText: query,
	}
	if m.generator != nil {
		prompt := fmt.Sprintf(`You are an academic curriculum assistant.
Write exactly %d sentences, in a formal academic register, describing the broader field, sub-disciplines, key theories, techniques and terminology related to the topic below.
- One sentence per line, numbered 1 to %d.
- Output ONLY the numbered sentences.

TOPIC:
%s`, sentenceCount, sentenceCount, query)
		reply, err := m.generateText(ctx, prompt)
		if err != nil {
			// Quality enhancement only, never a hard failure.
			logutil.GetLogger(ctx).Warn("query expansion failed, embedding raw query", zap.Error(err))
		} else {
			expanded.GeneratedSentences = parseSentences(reply, sentenceCount)
			if len(expanded.GeneratedSentences) > 0 {
				expanded.CombinedText = query + " " + strings.Join(expanded.GeneratedSentences, " ")
			}
		}
	}
	embedding, err := m.Embed(ctx, expanded.CombinedText, "RETRIEVAL_QUERY")
	if err != nil {
		return nil, err
	}
	expanded.Embedding = embedding
	return expanded, nil
}

type Question struct {
	Question       string
	ExpectedAnswer string
	Difficulty     int
}

var difficultyHints = map[int]string{
	1: "basic recall of a single fact or definition",
	2: "comprehension, restating the idea in one's own words",
	3: "application of the idea to a straightforward example",
	4: "analysis comparing or decomposing the idea",
	5: "synthesis or evaluation across related ideas",
}

// GenerateQuestion asks for one question and one model answer about the
// chunk. Parsing tolerates casing and whitespace drift but fails closed: an
// unparseable reply surfaces as GenerationError, never empty fields.
func (m *Manager) GenerateQuestion(ctx context.Context, chunk *model.ContentChunk, difficulty int) (*Question, error) {
	if m.generator == nil {
		return nil, fmt.Errorf("generator not configured")
	}
	if difficulty < 1 {
		difficulty = 1
	}
	if difficulty > 5 {
		difficulty = 5
	}
	content := truncateText(chunk.Content, m.cfg.MaxInputChars)
	prompt := fmt.Sprintf(`You are a teaching assistant writing an assessment item.
Based on the passage below, write one question at difficulty %d of 5 (%s) and one model answer.
Reply in EXACTLY this format, nothing else:
QUESTION: <the question>
ANSWER: <the model answer>

PASSAGE (%s / %s):
%s`, difficulty, difficultyHints[difficulty], chunk.Subject, chunk.Concept, content)
	reply, err := m.generateText(ctx, prompt)
	if err != nil {
		return nil, err
	}
	question, answer, err := parseQuestionReply(reply)
	if err != nil {
		return nil, err
	}
	return &Question{
		Question:       question,
		ExpectedAnswer: answer,
		Difficulty:     difficulty,
	}, nil
}

func (m *Manager) generateText(ctx context.Context, prompt string) (string, error) {
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
		return "", &GenerationError{Reason: "empty ai response"}
	}
	return text, nil
}

var sentencePrefix = regexp.MustCompile(`^\s*(?:\d+[.):]|[-*])\s*`)

// parseSentences accepts numbered or bulleted lines and keeps at most max of
// them. Fewer than requested is acceptable.
func parseSentences(reply string, max int) []string {
	var out []string
	for _, line := range strings.Split(reply, "\n") {
		line = strings.TrimSpace(sentencePrefix.ReplaceAllString(line, ""))
		if line == "" {
			continue
		}
		out = append(out, line)
		if len(out) >= max {
			break
		}
	}
	return out
}

var questionLabel = regexp.MustCompile(`(?im)^\s*question\s*:\s*(.+)$`)
var answerLabel = regexp.MustCompile(`(?im)^\s*answer\s*:\s*([\s\S]+)$`)

func parseQuestionReply(reply string) (string, string, error) {
	qm := questionLabel.FindStringSubmatch(reply)
	am := answerLabel.FindStringSubmatch(reply)
	if qm == nil || am == nil {
		return "", "", &GenerationError{Reason: "missing question/answer labels", Raw: reply}
	}
	question := strings.TrimSpace(qm[1])
	answer := strings.TrimSpace(am[1])
	// The answer match is greedy across lines; cut anything that restates
	// the question label below it.
	if idx := questionLabel.FindStringIndex(answer); idx != nil {
		answer = strings.TrimSpace(answer[:idx[0]])
	}
	if question == "" || answer == "" {
		return "", "", &GenerationError{Reason: "blank question or answer", Raw: reply}
	}
	return question, answer, nil
}
