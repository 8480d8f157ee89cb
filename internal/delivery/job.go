package delivery

import (
	"context"
	"errors"

	"remindbot/internal/sender"
	"remindbot/internal/task/scheduler"
	logx "remindbot/pkg/logx"
)

// Sender is the delivery surface Job needs; *sender.Sender implements it.
type Sender interface {
	SendText(ctx context.Context, chatID int64, text, formatMode string, threadID *int, suppressPreview bool) (sender.SendReport, error)
	SendPoll(ctx context.Context, chatID int64, question string, options []string, threadID *int, anonymous, multiAnswer bool) (sender.SendReport, error)
}

type Job struct {
	sender Sender
	log    logx.Logger
}

func NewJob(s Sender, log logx.Logger) *Job {
	if log.IsZero() {
		log = logx.Nop()
	}
	return &Job{sender: s, log: log}
}

// Run is the scheduler handler for JobType. Delivery failures are logged and
// swallowed: the trigger is considered handled either way.
func (j *Job) Run(ctx context.Context, f scheduler.Firing) error {
	log := j.log.With(
		logx.String("reminder", f.ReminderID),
		logx.String("trigger", f.Trigger.String()),
	)
	intent, err := Decode(f.Data)
	if err != nil {
		log.Error("dropping trigger with malformed job data", logx.Err(err))
		return nil
	}
	if f.Misfired {
		log.Info("delivering late trigger", logx.Duration("late", f.FiredAt.Sub(f.ScheduledAt)))
	}

	var rep sender.SendReport
	switch v := intent.(type) {
	case PollIntent:
		rep, err = j.sender.SendPoll(ctx, v.ChatID, v.Question, v.Options, v.ThreadID, false, false)
	case TextIntent:
		text := v.Text
		if v.TimeLeft != nil {
			text += TimeLeftSuffix(*v.TimeLeft)
		}
		rep, err = j.sender.SendText(ctx, v.ChatID, text, v.FormatMode, v.ThreadID, v.NoPreview)
	}
	if err != nil {
		fields := []logx.Field{
			logx.Int64("chat_id", intent.Destination().ChatID),
			logx.Int("delivered", rep.Delivered),
			logx.Int("chunks", rep.Chunks),
			logx.Int("attempts", rep.Attempts),
			logx.Err(err),
		}
		if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
			log.Warn("delivery interrupted", fields...)
		} else {
			log.Error("delivery failed", fields...)
		}
		return nil
	}
	log.Debug("delivered", logx.Int("chunks", rep.Chunks), logx.Int("attempts", rep.Attempts))
	return nil
}
