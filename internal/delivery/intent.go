package delivery

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"remindbot/internal/planner"
	"remindbot/internal/storage"
)

// JobType is the scheduler job type served by Job.
const JobType = "reminder.deliver"

// Job-data keys.
const (
	KeyChatID       = "chatId"
	KeyText         = "text"
	KeyFormatMode   = "formatMode"
	KeyNoPreview    = "noPreview"
	KeyThreadID     = "threadId"
	KeyTimeLeftSec  = "timeLeftSec"
	KeyPoll         = "poll"
	KeyPollQuestion = "pollQuestion"
	KeyPollOptions  = "pollOptions"
	KeyTag          = "tag"
)

const (
	pollOptionSep      = "|"
	defaultPollOptions = "Going|Maybe|Can't make it"
)

var ErrMalformed = errors.New("delivery: malformed job data")

// Target is where a reminder is delivered. A nil ThreadID is the chat's
// main thread.
type Target struct {
	ChatID   int64
	ThreadID *int
}

// Intent is either a TextIntent or a PollIntent.
type Intent interface {
	Destination() Target
	isIntent()
}

type TextIntent struct {
	Target
	Text       string
	FormatMode string
	NoPreview  bool
	// TimeLeft is the time until the event when the trigger fires; nil for
	// non-event reminders.
	TimeLeft *time.Duration
	Tag      string
}

type PollIntent struct {
	Target
	Text     string
	Question string
	Options  []string
	Tag      string
}

func (i TextIntent) Destination() Target { return i.Target }
func (i PollIntent) Destination() Target { return i.Target }
func (TextIntent) isIntent()             {}
func (PollIntent) isIntent()             {}

// DefaultPollQuestion is asked when the job-data carries no question.
func DefaultPollQuestion(text string) string {
	return fmt.Sprintf("Who is coming to %q?", strings.TrimSpace(text))
}

// FromPlan builds the intent for one planned trigger of r.
func FromPlan(r storage.Reminder, t planner.Trigger, tag string) Intent {
	dst := Target{ChatID: r.ChatID, ThreadID: r.ThreadID}
	if t.Poll {
		return PollIntent{
			Target:   dst,
			Text:     r.Text,
			Question: DefaultPollQuestion(r.Text),
			Options:  strings.Split(defaultPollOptions, pollOptionSep),
			Tag:      tag,
		}
	}
	ti := TextIntent{Target: dst, Text: r.Text, FormatMode: r.FormatMode, NoPreview: r.NoPreview, Tag: tag}
	if t.Kind == planner.KindEvent {
		left := t.TimeLeft()
		ti.TimeLeft = &left
	}
	return ti
}

// Encode flattens an intent into scheduler job-data.
func Encode(i Intent) map[string]string {
	m := map[string]string{}
	dst := i.Destination()
	m[KeyChatID] = strconv.FormatInt(dst.ChatID, 10)
	if dst.ThreadID != nil {
		m[KeyThreadID] = strconv.Itoa(*dst.ThreadID)
	}

	switch v := i.(type) {
	case TextIntent:
		m[KeyText] = v.Text
		m[KeyFormatMode] = v.FormatMode
		m[KeyNoPreview] = strconv.FormatBool(v.NoPreview)
		m[KeyTag] = v.Tag
		if v.TimeLeft != nil {
			m[KeyTimeLeftSec] = strconv.FormatInt(int64(*v.TimeLeft/time.Second), 10)
		}
	case PollIntent:
		m[KeyText] = v.Text
		m[KeyPoll] = "1"
		m[KeyPollQuestion] = v.Question
		m[KeyPollOptions] = strings.Join(v.Options, pollOptionSep)
		m[KeyTag] = v.Tag
	}
	return m
}

// Decode parses job-data. A missing or invalid chat id is ErrMalformed;
// other fields fall back to defaults.
func Decode(m map[string]string) (Intent, error) {
	raw := strings.TrimSpace(m[KeyChatID])
	chatID, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		return nil, fmt.Errorf("%w: chat id %q", ErrMalformed, raw)
	}
	dst := Target{ChatID: chatID}
	if v, err := strconv.Atoi(strings.TrimSpace(m[KeyThreadID])); err == nil {
		dst.ThreadID = &v
	}

	text := m[KeyText]
	if truthy(m[KeyPoll]) {
		q := strings.TrimSpace(m[KeyPollQuestion])
		if q == "" {
			q = DefaultPollQuestion(text)
		}
		opts := strings.TrimSpace(m[KeyPollOptions])
		if opts == "" {
			opts = defaultPollOptions
		}
		return PollIntent{
			Target:   dst,
			Text:     text,
			Question: q,
			Options:  strings.Split(opts, pollOptionSep),
			Tag:      m[KeyTag],
		}, nil
	}

	ti := TextIntent{
		Target:     dst,
		Text:       text,
		FormatMode: m[KeyFormatMode],
		NoPreview:  truthy(m[KeyNoPreview]),
		Tag:        m[KeyTag],
	}
	if sec, err := strconv.ParseInt(strings.TrimSpace(m[KeyTimeLeftSec]), 10, 64); err == nil {
		left := time.Duration(sec) * time.Second
		ti.TimeLeft = &left
	}
	return ti, nil
}

func truthy(s string) bool {
	s = strings.TrimSpace(s)
	return s == "1" || strings.EqualFold(s, "true")
}
