package rag

import (
	"context"
	"fmt"
	"slices"
	"strings"

	"github.com/poiesic/minutes/core"
	"github.com/poiesic/minutes/prompts"
)

// RefreshSummary regenerates the rolling summary of a meeting from its most
// recent transcript entries and stores it.
func (e *Engine) RefreshSummary(ctx context.Context, meetingID string) (*core.Summary, error) {
	if meetingID == "" {
		return nil, core.ErrEmptyMeetingID
	}
	entries, err := e.transcripts.GetRecentTranscriptEntries(ctx, meetingID, e.config.SummaryEntries)
	if err != nil {
		return nil, fmt.Errorf("load transcript of meeting %s: %w", meetingID, err)
	}
	if len(entries) == 0 {
		return nil, ErrNoTranscript
	}
	slices.Reverse(entries)

	conversation, count := formatConversation(entries)
	prompt, err := e.templates.Render(prompts.Summary, map[string]string{
		prompts.KeyConversation: conversation,
	})
	if err != nil {
		return nil, err
	}
	gen, err := e.model.Generate(ctx, prompt, e.config.Generate)
	if err != nil {
		return nil, fmt.Errorf("generate summary: %w", err)
	}

	summary := &core.Summary{
		MeetingID:     meetingID,
		Content:       strings.TrimSpace(gen.Text),
		FragmentCount: count,
		UpdatedAt:     e.now().UTC(),
	}
	if err := e.summaries.SaveSummary(ctx, summary); err != nil {
		return nil, fmt.Errorf("save summary: %w", err)
	}
	e.logger.Debug("refreshed summary", "meeting", meetingID, "fragments", count)
	return summary, nil
}

// Summary returns the stored summary of a meeting.
func (e *Engine) Summary(ctx context.Context, meetingID string) (*core.Summary, error) {
	return e.summaries.GetSummary(ctx, meetingID)
}

func formatConversation(entries []*core.TranscriptEntry) (string, int) {
	var b strings.Builder
	count := 0
	for _, entry := range entries {
		for _, f := range entry.Fragments {
			if count > 0 {
				b.WriteByte('\n')
			}
			name := f.SpeakerName
			if name == "" {
				name = f.SpeakerID
			}
			fmt.Fprintf(&b, "[%s] %s: %s", FormatOffset(f.StartOffset), name, f.Text)
			count++
		}
	}
	return b.String(), count
}
