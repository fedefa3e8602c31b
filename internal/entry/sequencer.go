// SPDX-License-Identifier: MPL-2.0

package entry

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"
	"strings"
	"syscall"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/charmbracelet/log"
	"mvdan.cc/sh/v3/shell"
)

const (
	// DefaultReadyTimeout bounds the readiness wait.
	DefaultReadyTimeout = 2 * time.Minute
	// DefaultStopGrace is how long a process gets between SIGTERM and SIGKILL.
	DefaultStopGrace = 10 * time.Second
)

type (
	// ExecCommandFunc creates commands. Tests inject a helper process.
	ExecCommandFunc func(ctx context.Context, name string, arg ...string) *exec.Cmd

	// Option configures a Sequencer.
	Option func(*Sequencer)

	// Sequencer runs the startup sequence.
	Sequencer struct {
		background   []string
		foreground   []string
		probe        Probe
		readyTimeout time.Duration
		interval     time.Duration
		maxInterval  time.Duration
		stopGrace    time.Duration
		execCommand  ExecCommandFunc
		getenv       func(string) string
		logger       *log.Logger
		stdout       io.Writer
		stderr       io.Writer
	}
)

// WithProbe sets the readiness probe. Without one the foreground process
// starts as soon as the background process has been started.
func WithProbe(p Probe) Option {
	return func(s *Sequencer) { s.probe = p }
}

// WithReadyTimeout bounds the total readiness wait.
func WithReadyTimeout(d time.Duration) Option {
	return func(s *Sequencer) { s.readyTimeout = d }
}

// WithPollInterval sets the first and the largest interval between probes.
func WithPollInterval(initial, maxInterval time.Duration) Option {
	return func(s *Sequencer) {
		s.interval = initial
		s.maxInterval = maxInterval
	}
}

// WithStopGrace sets the time between SIGTERM and SIGKILL when stopping.
func WithStopGrace(d time.Duration) Option {
	return func(s *Sequencer) { s.stopGrace = d }
}

// WithExecCommand sets the function used to create commands.
func WithExecCommand(fn ExecCommandFunc) Option {
	return func(s *Sequencer) { s.execCommand = fn }
}

// WithGetenv sets the lookup used to expand $VARS in command lines.
func WithGetenv(fn func(string) string) Option {
	return func(s *Sequencer) { s.getenv = fn }
}

// WithLogger sets the logger.
func WithLogger(logger *log.Logger) Option {
	return func(s *Sequencer) { s.logger = logger }
}

// WithOutput sets where both processes write.
func WithOutput(stdout, stderr io.Writer) Option {
	return func(s *Sequencer) {
		s.stdout = stdout
		s.stderr = stderr
	}
}

// New parses the background and foreground command lines. Lines are split
// with shell quoting rules and $VARS are expanded; no shell runs them.
func New(background, foreground string, opts ...Option) (*Sequencer, error) {
	s := &Sequencer{
		readyTimeout: DefaultReadyTimeout,
		interval:     250 * time.Millisecond,
		maxInterval:  5 * time.Second,
		stopGrace:    DefaultStopGrace,
		execCommand:  exec.CommandContext,
		getenv:       os.Getenv,
		logger:       log.New(io.Discard),
		stdout:       os.Stdout,
		stderr:       os.Stderr,
	}
	for _, opt := range opts {
		opt(s)
	}

	var err error
	if s.background, err = ParseCommand(background, s.getenv); err != nil {
		return nil, fmt.Errorf("background command: %w", err)
	}
	if s.foreground, err = ParseCommand(foreground, s.getenv); err != nil {
		return nil, fmt.Errorf("foreground command: %w", err)
	}
	return s, nil
}

// ParseCommand splits line into arguments, expanding variables through getenv.
func ParseCommand(line string, getenv func(string) string) ([]string, error) {
	fields, err := shell.Fields(line, getenv)
	if err != nil {
		return nil, fmt.Errorf("failed to parse %q: %w", line, err)
	}
	if len(fields) == 0 {
		return nil, errors.New("command is empty")
	}
	return fields, nil
}

// Run starts the background process, waits for readiness, runs the
// foreground process and then blocks until ctx ends. Ending ctx is a shutdown:
// running processes get SIGTERM, then SIGKILL after the stop grace, and Run
// returns nil.
func (s *Sequencer) Run(ctx context.Context) error {
	bgCtx, stopBackground := context.WithCancel(ctx)
	defer stopBackground()

	bg := s.command(bgCtx, s.background)
	bg.Cancel = func() error { return bg.Process.Signal(syscall.SIGTERM) }
	bg.WaitDelay = s.stopGrace

	s.logger.Info("starting background process", "cmd", strings.Join(s.background, " "))
	if err := bg.Start(); err != nil {
		return &StartupFailureError{Phase: PhaseBackground, Command: s.background[0], Err: err}
	}

	var bgErr error
	bgExited := make(chan struct{})
	go func() {
		bgErr = bg.Wait()
		close(bgExited)
	}()

	// stop ends the background process and waits for it.
	stop := func() {
		stopBackground()
		<-bgExited
	}

	exited := func() error {
		select {
		case <-bgExited:
			return exitErr(bgErr)
		default:
			return nil
		}
	}

	if err := s.waitReady(ctx, exited); err != nil {
		stop()
		if ctx.Err() != nil {
			s.logger.Info("stopped while waiting for readiness")
			return nil
		}
		return &StartupFailureError{Phase: PhaseReadiness, Command: s.background[0], Err: err}
	}

	s.logger.Info("running foreground process", "cmd", strings.Join(s.foreground, " "))
	fg := s.command(ctx, s.foreground)
	fg.Cancel = func() error { return fg.Process.Signal(syscall.SIGTERM) }
	fg.WaitDelay = s.stopGrace
	if err := fg.Run(); err != nil || ctx.Err() != nil {
		stop()
		// A stop while the foreground runs is a shutdown, whatever the exit status.
		if ctx.Err() != nil {
			s.logger.Info("stopped while the foreground process was running", "err", err)
			return nil
		}
		return &StartupFailureError{Phase: PhaseForeground, Command: s.foreground[0], Err: err}
	}

	s.logger.Info("startup complete, keeping container alive")
	select {
	case <-ctx.Done():
		stop()
		return nil
	case <-bgExited:
		s.logger.Warn("background process exited", "err", exitErr(bgErr))
		<-ctx.Done()
		return nil
	}
}

func (s *Sequencer) command(ctx context.Context, args []string) *exec.Cmd {
	cmd := s.execCommand(ctx, args[0], args[1:]...)
	cmd.Stdout = s.stdout
	cmd.Stderr = s.stderr
	return cmd
}

// waitReady polls the probe with exponential backoff until it succeeds, the
// budget is spent or exited reports that the background process is gone.
func (s *Sequencer) waitReady(ctx context.Context, exited func() error) error {
	if s.probe == nil {
		return nil
	}

	b := backoff.NewExponentialBackOff()
	b.InitialInterval = s.interval
	b.MaxInterval = s.maxInterval
	b.MaxElapsedTime = s.readyTimeout

	attempt := 0
	op := func() error {
		if err := exited(); err != nil {
			return backoff.Permanent(fmt.Errorf("background process exited before becoming ready: %w", err))
		}
		attempt++
		return s.probe.Ready(ctx)
	}
	notify := func(err error, next time.Duration) {
		s.logger.Debug("background process not ready", "probe", s.probe.String(), "attempt", attempt, "err", err, "retry_in", next)
	}

	s.logger.Info("waiting for readiness", "probe", s.probe.String(), "timeout", s.readyTimeout)
	if err := backoff.RetryNotify(op, backoff.WithContext(b, ctx), notify); err != nil {
		return err
	}
	return nil
}

// exitErr turns a clean exit into an error value for reporting.
func exitErr(err error) error {
	if err == nil {
		return errors.New("exit status 0")
	}
	return err
}
