// Package lynx supervises the long-running pieces of a pipeline host process:
// one or more Jobs are started together, the process blocks until an OS
// signal arrives, then every Job is stopped and any accumulated errors are
// joined and returned.
package lynx

import (
	"context"
	"errors"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
)

// Job is anything with an explicit start/stop lifecycle that should run for
// the life of the host process. A pipeline engine instance bound to a
// long-lived inbox dispatcher, or a trace sink background flusher, are both
// Jobs.
type Job interface {
	Start(ctx context.Context) error
	Stop() error
}

type Options struct {
	Jobs []Job
}

// Lynx runs Jobs to completion of the process lifetime: start all, wait for
// a termination signal, stop all.
type Lynx struct {
	stopChan chan os.Signal
	jobs     []Job
}

func New(opt *Options) *Lynx {
	return &Lynx{
		jobs:     opt.Jobs,
		stopChan: make(chan os.Signal, 1),
	}
}

func (l *Lynx) start(ctx context.Context) error {
	slog.Info("lynx starting", slog.Int("jobs", len(l.jobs)))
	errs := make([]error, 0, len(l.jobs))
	for _, j := range l.jobs {
		errs = append(errs, j.Start(ctx))
	}
	return errors.Join(errs...)
}

func (l *Lynx) wait() {
	signal.Notify(l.stopChan, syscall.SIGHUP, syscall.SIGQUIT, syscall.SIGTERM, syscall.SIGINT)
	slog.Info("lynx waiting for termination signal")
	<-l.stopChan
	close(l.stopChan)
}

func (l *Lynx) stop() error {
	slog.Info("lynx stopping", slog.Int("jobs", len(l.jobs)))
	errs := make([]error, 0, len(l.jobs))
	for _, j := range l.jobs {
		errs = append(errs, j.Stop())
	}
	return errors.Join(errs...)
}

// Run starts every Job, blocks until a termination signal arrives, then
// stops every Job and returns the joined start/stop errors.
func (l *Lynx) Run(ctx context.Context) error {
	startErr := l.start(ctx)
	l.wait()
	stopErr := l.stop()
	return errors.Join(startErr, stopErr)
}
