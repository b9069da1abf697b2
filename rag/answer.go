package rag

import (
	"context"
	"fmt"
	"strings"
	"unicode/utf8"

	"github.com/google/uuid"
	"github.com/poiesic/minutes/core"
	"github.com/poiesic/minutes/prompts"
	"github.com/poiesic/minutes/vector"
)

// SearchResult is one transcript chunk matched by a question.
type SearchResult struct {
	ID           string
	Score        float32
	MeetingID    string
	SpeakerID    string
	SpeakerName  string
	Text         string
	Timestamp    int64
	SegmentCount int
}

// Content is the chunk as it was embedded, prefixed with the speaker.
func (r SearchResult) Content() string {
	return r.SpeakerName + ": " + r.Text
}

// Answer is the outcome of GenerateAnswer.
type Answer struct {
	Text    string
	Sources []string
}

func resultFromVector(r vector.Result) SearchResult {
	return SearchResult{
		ID:           r.ID,
		Score:        r.Score,
		MeetingID:    vector.PayloadString(r.Payload, vector.FieldMeetingID),
		SpeakerID:    vector.PayloadString(r.Payload, vector.FieldSpeakerID),
		SpeakerName:  vector.PayloadString(r.Payload, vector.FieldSpeakerName),
		Text:         vector.PayloadString(r.Payload, vector.FieldText),
		Timestamp:    vector.PayloadInt(r.Payload, vector.FieldTimestamp),
		SegmentCount: int(vector.PayloadInt(r.Payload, vector.FieldSegmentCount)),
	}
}

// SearchSimilarContent returns the meeting's chunks closest to the question.
// A limit <= 0 uses the configured search limit.
func (e *Engine) SearchSimilarContent(ctx context.Context, meetingID, question string, limit int) ([]SearchResult, error) {
	if meetingID == "" {
		return nil, core.ErrEmptyMeetingID
	}
	if limit <= 0 {
		limit = e.config.SearchLimit
	}
	query, err := e.embedder.EmbedText(ctx, question)
	if err != nil {
		return nil, fmt.Errorf("embed question: %w", err)
	}
	filter := vector.MeetingFilter(meetingID)
	hits, err := e.store.Search(ctx, e.config.Collection, vector.SearchRequest{
		Vector:         query,
		Limit:          limit,
		Filter:         &filter,
		ScoreThreshold: e.config.ScoreThreshold,
	})
	if err != nil {
		return nil, fmt.Errorf("search meeting %s: %w", meetingID, err)
	}
	results := make([]SearchResult, len(hits))
	for i, h := range hits {
		results[i] = resultFromVector(h)
	}
	return results, nil
}

// GenerateAnswer asks the answer model to answer question from results.
func (e *Engine) GenerateAnswer(ctx context.Context, question string, results []SearchResult) (*Answer, error) {
	prompt, err := e.templates.Render(prompts.Answer, map[string]string{
		prompts.KeyContext:  formatContext(results),
		prompts.KeyQuestion: question,
	})
	if err != nil {
		return nil, err
	}
	gen, err := e.model.Generate(ctx, prompt, e.config.Generate)
	if err != nil {
		return nil, fmt.Errorf("generate answer: %w", err)
	}
	e.logger.Debug("generated answer",
		"results", len(results),
		"finish_reason", gen.FinishReason,
		"prompt_tokens", gen.Usage.PromptTokens,
		"completion_tokens", gen.Usage.CompletionTokens)

	sources := make([]string, len(results))
	for i, r := range results {
		sources[i] = truncate(r.Content(), e.config.SourceLen)
	}
	return &Answer{Text: strings.TrimSpace(gen.Text), Sources: sources}, nil
}

// AskQuestion answers a question about a meeting and records the exchange.
// The returned entry is the persisted record. When answering fails the
// entry is stored with QAStatusError and a generic answer, and the error is
// returned alongside it.
func (e *Engine) AskQuestion(ctx context.Context, meetingID, userID, question string) (*core.QAEntry, error) {
	if meetingID == "" {
		return nil, core.ErrEmptyMeetingID
	}
	question = strings.TrimSpace(question)
	if question == "" {
		return nil, ErrEmptyQuestion
	}

	entry := &core.QAEntry{
		Id:        uuid.NewString(),
		UserID:    userID,
		MeetingID: meetingID,
		Question:  question,
		Status:    core.QAStatusAsking,
		CreatedAt: e.now().UTC(),
	}
	if err := e.qa.SaveQAEntry(ctx, entry); err != nil {
		return nil, fmt.Errorf("record question: %w", err)
	}

	answer, err := e.answer(ctx, meetingID, question)
	if err != nil {
		e.logger.Error("failed to answer question", "meeting", meetingID, "qa", entry.Id, "err", err)
		e.recordFailure(ctx, entry)
		return entry, fmt.Errorf("answer question %s: %w", entry.Id, err)
	}

	entry.Status = core.QAStatusAnswered
	entry.Answer = answer.Text
	entry.Sources = answer.Sources
	if err := e.qa.SaveQAEntry(ctx, entry); err != nil {
		e.logger.Error("failed to record answer", "meeting", meetingID, "qa", entry.Id, "err", err)
		e.recordFailure(ctx, entry)
		return entry, fmt.Errorf("record answer: %w", err)
	}
	return entry, nil
}

// recordFailure rewrites entry as an ERROR record so a failed question never
// stays ASKING.
func (e *Engine) recordFailure(ctx context.Context, entry *core.QAEntry) {
	entry.Status = core.QAStatusError
	entry.Answer = ErrorAnswer
	entry.Sources = nil
	if err := e.qa.SaveQAEntry(context.WithoutCancel(ctx), entry); err != nil {
		e.logger.Error("failed to record question error", "qa", entry.Id, "err", err)
	}
}

func (e *Engine) answer(ctx context.Context, meetingID, question string) (*Answer, error) {
	results, err := e.SearchSimilarContent(ctx, meetingID, question, e.config.SearchLimit)
	if err != nil {
		return nil, err
	}
	if len(results) == 0 {
		e.logger.Debug("no transcript matches", "meeting", meetingID)
		return &Answer{Text: NoDataAnswer, Sources: []string{}}, nil
	}
	return e.GenerateAnswer(ctx, question, results)
}

// History returns up to limit questions asked about a meeting, newest first.
func (e *Engine) History(ctx context.Context, meetingID string, limit int) ([]*core.QAEntry, error) {
	if meetingID == "" {
		return nil, core.ErrEmptyMeetingID
	}
	return e.qa.GetQAHistory(ctx, meetingID, limit)
}

// formatContext numbers each result as "[i] speaker (mm:ss): content".
func formatContext(results []SearchResult) string {
	var b strings.Builder
	for i, r := range results {
		if i > 0 {
			b.WriteByte('\n')
		}
		fmt.Fprintf(&b, "[%d] %s (%s): %s", i+1, r.SpeakerName, FormatOffset(r.Timestamp), r.Text)
	}
	return b.String()
}

// FormatOffset renders a millisecond offset as mm:ss.
func FormatOffset(ms int64) string {
	if ms < 0 {
		ms = 0
	}
	secs := ms / 1000
	return fmt.Sprintf("%02d:%02d", secs/60, secs%60)
}

func truncate(s string, n int) string {
	if utf8.RuneCountInString(s) <= n {
		return s
	}
	runes := []rune(s)
	return string(runes[:n]) + "..."
}
