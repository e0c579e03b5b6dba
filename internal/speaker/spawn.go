/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

package speaker

import (
	"context"
	"errors"
	"fmt"
	"net"
	"os"
	"os/exec"
	"syscall"
	"time"

	"github.com/friendsincode/grimnir_jukebox/internal/logging"
	"github.com/rs/zerolog"
	"golang.org/x/sys/unix"
)

// ControlFD is the descriptor number on which a spawned speaker finds its
// end of the control socket.
const ControlFD = 3

// Spawned is a speaker process started by the server together with the
// link to it.
type Spawned struct {
	*Link
	cmd    *exec.Cmd
	stderr *logging.LineWriter
	exited chan struct{}
}

// Spawn starts argv as the speaker. It gets one end of a socketpair as
// descriptor 3 and SPEAKER_FD=3 in its environment.
func Spawn(argv []string, env []string, logger zerolog.Logger) (*Spawned, error) {
	if len(argv) == 0 {
		return nil, errors.New("spawn speaker: empty command")
	}
	fds, err := unix.Socketpair(unix.AF_UNIX, unix.SOCK_STREAM|unix.SOCK_CLOEXEC, 0)
	if err != nil {
		return nil, fmt.Errorf("spawn speaker: socketpair: %w", err)
	}
	ours := os.NewFile(uintptr(fds[0]), "speaker-control")
	theirs := os.NewFile(uintptr(fds[1]), "speaker-control-child")
	defer theirs.Close()

	stderr := logging.NewLineWriter(logger.With().Str("component", "speaker").Logger(), "speaker")
	cmd := exec.Command(argv[0], argv[1:]...)
	cmd.Env = append(append(os.Environ(), env...), fmt.Sprintf("SPEAKER_FD=%d", ControlFD))
	cmd.ExtraFiles = []*os.File{theirs}
	cmd.Stderr = stderr
	cmd.SysProcAttr = &syscall.SysProcAttr{Setpgid: true}
	if err := cmd.Start(); err != nil {
		ours.Close()
		return nil, fmt.Errorf("spawn speaker: %w", err)
	}

	conn, err := net.FileConn(ours)
	ours.Close()
	if err != nil {
		_ = cmd.Process.Kill()
		_ = cmd.Wait()
		return nil, fmt.Errorf("spawn speaker: wrap socket: %w", err)
	}

	s := &Spawned{
		Link:   NewLink(conn, logger),
		cmd:    cmd,
		stderr: stderr,
		exited: make(chan struct{}),
	}
	go func() {
		err := cmd.Wait()
		stderr.Close()
		if err != nil {
			s.logger.Error().Err(err).Msg("speaker exited")
		} else {
			s.logger.Warn().Msg("speaker exited")
		}
		close(s.exited)
	}()
	s.logger.Info().Int("pid", cmd.Process.Pid).Strs("argv", argv).Msg("speaker started")
	return s, nil
}

// Pid returns the speaker's process ID.
func (s *Spawned) Pid() int {
	return s.cmd.Process.Pid
}

// Shutdown closes the link, which tells the speaker to exit, and waits for
// it. If ctx ends first the process group is killed.
func (s *Spawned) Shutdown(ctx context.Context) error {
	_ = s.Link.Close()
	grace := time.NewTimer(2 * time.Second)
	defer grace.Stop()
	select {
	case <-s.exited:
		return nil
	case <-grace.C:
		_ = unix.Kill(-s.cmd.Process.Pid, unix.SIGTERM)
	case <-ctx.Done():
	}
	select {
	case <-s.exited:
		return nil
	case <-ctx.Done():
		_ = unix.Kill(-s.cmd.Process.Pid, unix.SIGKILL)
		<-s.exited
		return ctx.Err()
	}
}
