package dispatch

import (
	"context"

	"blinkbrain/pkg/logx"
)

// LogSink writes fired notifications to the log. It never fails.
type LogSink struct {
	Log logx.Logger
}

func (LogSink) Name() string { return "log" }

func (s LogSink) Deliver(_ context.Context, n Notification) error {
	s.Log.Info("reminder due",
		logx.String("handle", n.Handle),
		logx.String("title", n.Title),
		logx.String("body", n.Body),
		logx.Time("fire_at", n.FireAt),
	)
	return nil
}
