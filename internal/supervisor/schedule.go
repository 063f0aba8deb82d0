package supervisor

import (
	"log/slog"
	"time"

	"github.com/robfig/cron/v3"
)

// interval fires every d. Unlike cron.Every it keeps sub-second precision.
type interval time.Duration

func (i interval) Next(t time.Time) time.Time {
	return t.Add(time.Duration(i))
}

// cronLogger routes cron's own logging to slog.
type cronLogger struct {
	log *slog.Logger
}

func (l cronLogger) Info(msg string, keysAndValues ...any) {
	l.log.Debug("cron: "+msg, keysAndValues...)
}

func (l cronLogger) Error(err error, msg string, keysAndValues ...any) {
	l.log.Error("cron: "+msg, append(keysAndValues, "err", err)...)
}

// newTicker returns a started scheduler running job every d. Overlapping runs
// are skipped and panics are recovered.
func newTicker(d time.Duration, log *slog.Logger, job func()) *cron.Cron {
	logger := cronLogger{log: log}
	c := cron.New(
		cron.WithLogger(logger),
		cron.WithChain(cron.Recover(logger), cron.SkipIfStillRunning(logger)),
	)
	c.Schedule(interval(d), cron.FuncJob(job))
	c.Start()
	return c
}
