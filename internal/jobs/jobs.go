// Package jobs runs periodic maintenance on a cron schedule.
package jobs

import (
	"context"
	"fmt"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/sirupsen/logrus"
)

type TokenPurger interface {
	PurgeRefreshTokens(ctx context.Context, cutoff time.Time) (int64, error)
}

type PurgeRecorder interface {
	RecordTokensPurged(n int64)
}

type Scheduler struct {
	cron *cron.Cron
	log  logrus.FieldLogger
}

func NewScheduler(log logrus.FieldLogger) *Scheduler {
	return &Scheduler{
		cron: cron.New(cron.WithChain(cron.Recover(cronLogger{log}))),
		log:  log,
	}
}

// PurgeExpiredTokens returns the job body; exposed so it can run once
// outside the schedule.
func PurgeExpiredTokens(st TokenPurger, rec PurgeRecorder, log logrus.FieldLogger, timeout time.Duration) func() {
	return func() {
		ctx, cancel := context.WithTimeout(context.Background(), timeout)
		defer cancel()

		n, err := st.PurgeRefreshTokens(ctx, time.Now())
		if err != nil {
			log.WithError(err).Error("refresh token purge failed")
			return
		}
		if rec != nil {
			rec.RecordTokensPurged(n)
		}
		log.WithField("deleted", n).Info("refresh token purge done")
	}
}

func (s *Scheduler) Add(spec, name string, job func()) error {
	if _, err := s.cron.AddFunc(spec, job); err != nil {
		return fmt.Errorf("schedule %s (%q): %w", name, spec, err)
	}
	s.log.WithFields(logrus.Fields{"job": name, "schedule": spec}).Info("job scheduled")
	return nil
}

func (s *Scheduler) Start() { s.cron.Start() }

// Stop waits for running jobs or until ctx is done.
func (s *Scheduler) Stop(ctx context.Context) {
	select {
	case <-s.cron.Stop().Done():
	case <-ctx.Done():
	}
}

// cronLogger adapts logrus to cron.Logger.
type cronLogger struct {
	log logrus.FieldLogger
}

func (l cronLogger) Info(msg string, kv ...any) {
	l.log.WithFields(fields(kv)).Debug(msg)
}

func (l cronLogger) Error(err error, msg string, kv ...any) {
	l.log.WithError(err).WithFields(fields(kv)).Error(msg)
}

func fields(kv []any) logrus.Fields {
	f := logrus.Fields{}
	for i := 0; i+1 < len(kv); i += 2 {
		f[fmt.Sprint(kv[i])] = kv[i+1]
	}
	return f
}
