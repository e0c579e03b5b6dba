/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

package supervisor

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"sync"
	"syscall"
	"time"

	"github.com/friendsincode/grimnir_jukebox/internal/logging"
	"github.com/mattn/go-isatty"
	"github.com/rs/zerolog"
	"golang.org/x/sys/unix"
)

// ErrNoExecutable is returned when a player command cannot be resolved.
var ErrNoExecutable = errors.New("player executable not found")

// Process is a running (or about to run) player process group.
type Process interface {
	Pid() int
	Signal(sig syscall.Signal) error
}

// Command describes one player or decoder invocation for a queue entry.
type Command struct {
	EntryID string
	Tag     string // log tag, usually the command name
	Argv    []string
	Env     []string // added to the server's environment
	Options Options

	// Stdout, when set, is called just before the process starts and the
	// returned file becomes its standard output.
	Stdout func(ctx context.Context) (*os.File, error)
}

// Supervisor starts player processes in their own process groups and
// reports their exits on a single channel.
type Supervisor struct {
	logger zerolog.Logger
	device string

	deviceRetries int
	deviceDelay   time.Duration
	stderrIsTTY   bool

	exits    chan Exit
	stop     chan struct{}
	stopOnce sync.Once
	wg       sync.WaitGroup
}

// New creates a supervisor. device is the output device waited for by
// --wait-for-device when no device name is given.
func New(logger zerolog.Logger, device string) *Supervisor {
	fd := os.Stderr.Fd()
	return &Supervisor{
		logger:        logger.With().Str("component", "supervisor").Logger(),
		device:        device,
		deviceRetries: 20,
		deviceDelay:   100 * time.Millisecond,
		stderrIsTTY:   isatty.IsTerminal(fd) || isatty.IsCygwinTerminal(fd),
		exits:         make(chan Exit, 16),
		stop:          make(chan struct{}),
	}
}

// Exits delivers one Exit per started command.
func (s *Supervisor) Exits() <-chan Exit {
	return s.exits
}

// Start launches cmd asynchronously. Only command resolution errors are
// returned here; everything after that is reported through Exits.
func (s *Supervisor) Start(ctx context.Context, cmd Command) (Process, error) {
	if len(cmd.Argv) == 0 {
		return nil, fmt.Errorf("%w: empty command", ErrNoExecutable)
	}
	path, err := exec.LookPath(cmd.Argv[0])
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrNoExecutable, err)
	}

	h := &Handle{}
	s.wg.Add(1)
	go s.run(ctx, h, path, cmd)
	return h, nil
}

func (s *Supervisor) run(ctx context.Context, h *Handle, path string, cmd Command) {
	defer s.wg.Done()

	logger := s.logger.With().Str("entry", cmd.EntryID).Str("tag", cmd.Tag).Logger()

	if cmd.Options.WaitForDevice {
		device := cmd.Options.Device
		if device == "" {
			device = s.device
		}
		s.waitForDevice(ctx, logger, device)
	}

	c := &exec.Cmd{
		Path:        path,
		Args:        cmd.Argv,
		Env:         append(os.Environ(), cmd.Env...),
		SysProcAttr: &syscall.SysProcAttr{Setpgid: true},
	}

	var lw *logging.LineWriter
	if s.stderrIsTTY {
		c.Stdout = os.Stdout
		c.Stderr = os.Stderr
	} else {
		lw = logging.NewLineWriter(logger, cmd.Tag)
		c.Stdout = lw
		c.Stderr = lw
	}

	var out *os.File
	if cmd.Stdout != nil && !h.cancelled() {
		f, err := cmd.Stdout(ctx)
		if err != nil {
			s.report(Exit{EntryID: cmd.EntryID, Process: h, Err: fmt.Errorf("open output: %w", err)})
			return
		}
		out = f
		c.Stdout = out
	}

	// Holding the handle lock across Start means a concurrent Signal either
	// prevents the start or sees the pid.
	h.mu.Lock()
	if h.killed != 0 {
		sig := h.killed
		h.done = true
		h.mu.Unlock()
		if out != nil {
			out.Close()
		}
		logger.Debug().Int("signal", int(sig)).Msg("cancelled before start")
		s.report(Exit{EntryID: cmd.EntryID, Process: h, Signal: sig})
		return
	}
	err := c.Start()
	if err == nil {
		h.pid = c.Process.Pid
	} else {
		h.done = true
	}
	h.mu.Unlock()
	if out != nil {
		out.Close()
	}
	if err != nil {
		s.report(Exit{EntryID: cmd.EntryID, Process: h, Err: err})
		return
	}
	logger.Debug().Int("pid", h.pid).Strs("argv", cmd.Argv).Msg("player started")

	waitErr := c.Wait()
	if lw != nil {
		lw.Close()
	}

	h.mu.Lock()
	h.done = true
	h.mu.Unlock()

	ex := Exit{EntryID: cmd.EntryID, Process: h}
	if ws, ok := c.ProcessState.Sys().(syscall.WaitStatus); ok {
		if ws.Signaled() {
			ex.Signal = ws.Signal()
		} else {
			ex.Code = ws.ExitStatus()
		}
	} else if waitErr != nil {
		ex.Err = waitErr
	}
	s.report(ex)
}

func (s *Supervisor) waitForDevice(ctx context.Context, logger zerolog.Logger, device string) {
	if device == "" {
		return
	}
	for i := 0; i < s.deviceRetries; i++ {
		f, err := os.OpenFile(device, os.O_WRONLY|syscall.O_NONBLOCK, 0)
		if err == nil {
			f.Close()
			return
		}
		select {
		case <-ctx.Done():
			return
		case <-time.After(s.deviceDelay):
		}
	}
	logger.Debug().Str("device", device).Msg("device still unavailable, starting anyway")
}

func (s *Supervisor) report(ex Exit) {
	select {
	case s.exits <- ex:
	case <-s.stop:
	}
}

// Close stops delivering exits and waits up to ctx for supervised
// goroutines to finish. Running processes are not signalled.
func (s *Supervisor) Close(ctx context.Context) error {
	s.stopOnce.Do(func() { close(s.stop) })
	done := make(chan struct{})
	go func() {
		s.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Handle is the Process for one supervised command.
type Handle struct {
	mu     sync.Mutex
	pid    int
	done   bool
	killed syscall.Signal
}

// Pid returns the process group leader, or zero if it has not started yet.
func (h *Handle) Pid() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.pid
}

// Signal sends sig to the whole process group. Signalling a handle that has
// not started yet prevents it from starting.
func (h *Handle) Signal(sig syscall.Signal) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.done {
		return nil
	}
	if h.pid == 0 {
		h.killed = sig
		return nil
	}
	if err := unix.Kill(-h.pid, sig); err != nil && !errors.Is(err, unix.ESRCH) {
		return fmt.Errorf("signal process group %d: %w", h.pid, err)
	}
	return nil
}

func (h *Handle) cancelled() bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.killed != 0
}
