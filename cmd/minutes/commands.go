// Copyright 2025 Poiesic Systems
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"

	"github.com/goccy/go-json"
	"github.com/poiesic/minutes"
	"github.com/poiesic/minutes/core"
	"github.com/poiesic/minutes/rag"
	"github.com/poiesic/minutes/storage"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/urfave/cli/v2"
)

// decodeFragments streams JSON-encoded fragments from r, one value at a time.
// Whitespace between values is ignored, so JSON lines work as input.
func decodeFragments(r io.Reader, fn func(core.Fragment) error) error {
	dec := json.NewDecoder(r)
	for n := 1; ; n++ {
		var f core.Fragment
		if err := dec.Decode(&f); err != nil {
			if errors.Is(err, io.EOF) {
				return nil
			}
			return fmt.Errorf("fragment %d: %w", n, err)
		}
		if err := fn(f); err != nil {
			return err
		}
	}
}

func openInput(c *cli.Context) (io.ReadCloser, error) {
	path := c.Args().First()
	if path == "" || path == "-" {
		return io.NopCloser(c.App.Reader), nil
	}
	return os.Open(path)
}

func ingestCommand(c *cli.Context) error {
	ctx := c.Context
	meetingID := c.String("meeting")

	in, err := openInput(c)
	if err != nil {
		return fmt.Errorf("failed to open input: %w", err)
	}
	defer in.Close()

	reg := prometheus.NewRegistry()
	svc, err := openService(c, reg)
	if err != nil {
		return err
	}

	title := c.String("title")
	if title == "" {
		title = meetingID
	}
	if _, err := svc.CreateMeeting(ctx, meetingID, title); err != nil && !errors.Is(err, minutes.ErrMeetingExists) {
		svc.Close()
		return fmt.Errorf("failed to create meeting: %w", err)
	}
	if res := svc.Transition(ctx, meetingID, core.MeetingLive); !res.OK() {
		svc.Close()
		return fmt.Errorf("failed to start meeting: %w", res.Err)
	}

	errOut := c.App.ErrWriter
	fmt.Fprintf(errOut, "Meeting: %s\n\n", heading(meetingID))

	tracker := newProgress(errOut, "fragments", 0, c.Int("report-interval"))
	skipped := 0
	err = decodeFragments(in, func(f core.Fragment) error {
		if err := ctx.Err(); err != nil {
			return err
		}
		if err := svc.AddFragment(ctx, meetingID, f); err != nil {
			if errors.Is(err, core.ErrInvalidFragment) {
				slog.Warn("skipping fragment", "meeting", meetingID, "err", err)
				skipped++
				return nil
			}
			return err
		}
		tracker.Add(1)
		return nil
	})
	tracker.Finish()

	if err == nil && !c.Bool("keep-live") {
		if res := svc.Transition(ctx, meetingID, core.MeetingPast); !res.OK() {
			err = fmt.Errorf("failed to end meeting: %w", res.Err)
		}
	}
	if cerr := svc.Close(); cerr != nil {
		err = errors.Join(err, cerr)
	}
	if err != nil {
		return fmt.Errorf("ingest failed: %w", err)
	}

	if path := c.String("metrics-file"); path != "" {
		if err := prometheus.WriteToTextfile(path, reg); err != nil {
			return fmt.Errorf("failed to write metrics: %w", err)
		}
	}
	if skipped > 0 {
		fmt.Fprintf(errOut, "Skipped %d invalid fragments\n", skipped)
	}
	return nil
}

func askCommand(c *cli.Context) error {
	question := strings.TrimSpace(strings.Join(c.Args().Slice(), " "))
	if question == "" {
		return fmt.Errorf("a question is required")
	}
	return withService(c, func(ctx context.Context, svc *minutes.Service) error {
		entry, err := svc.AskQuestion(ctx, c.String("meeting"), c.String("user"), question)
		if entry != nil {
			printQA(c.App.Writer, entry)
		}
		return err
	})
}

func historyCommand(c *cli.Context) error {
	return withService(c, func(ctx context.Context, svc *minutes.Service) error {
		entries, err := svc.History(ctx, c.String("meeting"), c.Int("limit"))
		if err != nil {
			return err
		}
		if len(entries) == 0 {
			fmt.Fprintln(c.App.Writer, "No questions yet.")
			return nil
		}
		for _, e := range entries {
			printQA(c.App.Writer, e)
		}
		return nil
	})
}

func summaryCommand(c *cli.Context) error {
	return withService(c, func(ctx context.Context, svc *minutes.Service) error {
		meetingID := c.String("meeting")
		var (
			summary *core.Summary
			err     error
		)
		if c.Bool("refresh") {
			summary, err = svc.RefreshSummary(ctx, meetingID)
		} else {
			summary, err = svc.Summary(ctx, meetingID)
		}
		switch {
		case errors.Is(err, storage.ErrNotFound), errors.Is(err, rag.ErrNoTranscript):
			fmt.Fprintln(c.App.Writer, "No summary yet.")
			return nil
		case err != nil:
			return err
		}
		fmt.Fprintf(c.App.Writer, "%s %s\n%s\n",
			heading("Summary of "+meetingID),
			faint(fmt.Sprintf("(%d fragments, %s)", summary.FragmentCount, summary.UpdatedAt.Format("2006-01-02 15:04:05"))),
			summary.Content)
		return nil
	})
}

func reindexCommand(c *cli.Context) error {
	return withService(c, func(ctx context.Context, svc *minutes.Service) error {
		ids := []string{}
		if id := c.String("meeting"); id != "" {
			ids = append(ids, id)
		} else {
			meetings, err := svc.Meetings(ctx)
			if err != nil {
				return err
			}
			for _, m := range meetings {
				ids = append(ids, m.Id)
			}
		}

		tracker := newProgress(c.App.ErrWriter, "meetings", len(ids), 1)
		entries := 0
		for _, id := range ids {
			n, err := svc.Reindex(ctx, id)
			if err != nil {
				return fmt.Errorf("reindexing failed: %w", err)
			}
			entries += n
			tracker.Add(1)
		}
		tracker.Finish()
		fmt.Fprintf(c.App.Writer, "%s %d transcript entries in %d meetings\n", success("Reindexed"), entries, len(ids))
		return nil
	})
}

func meetingsCommand(c *cli.Context) error {
	return withService(c, func(ctx context.Context, svc *minutes.Service) error {
		meetings, err := svc.Meetings(ctx)
		if err != nil {
			return err
		}
		if len(meetings) == 0 {
			fmt.Fprintln(c.App.Writer, "No meetings.")
			return nil
		}
		for _, m := range meetings {
			fmt.Fprintf(c.App.Writer, "%s\t%s\t%s\n", heading(m.Id), m.Status, m.Title)
		}
		return nil
	})
}

func withService(c *cli.Context, fn func(context.Context, *minutes.Service) error) (err error) {
	svc, err := openService(c, nil)
	if err != nil {
		return err
	}
	defer func() {
		if cerr := svc.Close(); cerr != nil {
			err = errors.Join(err, cerr)
		}
	}()
	return fn(c.Context, svc)
}

func printQA(w io.Writer, e *core.QAEntry) {
	status := success(string(e.Status))
	if e.Status != core.QAStatusAnswered {
		status = failure(string(e.Status))
	}
	fmt.Fprintf(w, "%s %s %s\n", heading("Q:"), e.Question, faint(e.CreatedAt.Format("15:04:05")))
	fmt.Fprintf(w, "%s %s [%s]\n", heading("A:"), e.Answer, status)
	for _, src := range e.Sources {
		fmt.Fprintf(w, "   %s %s\n", faint("-"), src)
	}
	fmt.Fprintln(w)
}
