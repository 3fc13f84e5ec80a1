package job

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"
	"strings"
	"time"
	"unicode/utf8"

	"go.uber.org/zap"
	"golang.org/x/sys/unix"
)

// invalidUTF8Marker is emitted in place of a line the child wrote that
// could not be decoded as UTF-8. This is the fixed behavior spec.md's
// open question settles on: emit the sentinel and keep reading.
const invalidUTF8Marker = "###INVALID UTF8###"

// exitResult is what the Process Manager publishes on the job's exit
// channel: either the process's wait outcome, or an I/O error that
// occurred while waiting for it.
type exitResult struct {
	state   *os.ProcessState
	waitErr error
}

// manager owns one spawned child: it drains stdout/stderr into line
// channels, waits for exit or a kill signal, and publishes the terminal
// exit result exactly once. It runs as its own goroutine and never
// restarts.
type manager struct {
	id     uint64
	cmd    *exec.Cmd
	log    *zap.SugaredLogger
	stdout io.ReadCloser
	stderr io.ReadCloser
}

// newManager wires a manager to an already-started child. cmd must have
// been started with Stdout/Stderr obtained via StdoutPipe/StderrPipe
// before Start was called.
func newManager(id uint64, cmd *exec.Cmd, stdout, stderr io.ReadCloser, log *zap.SugaredLogger) *manager {
	return &manager{id: id, cmd: cmd, log: log, stdout: stdout, stderr: stderr}
}

// run drives the manager's state machine to completion:
// reading -> (child-exited | kill-received) -> send-exit -> done.
// cmd.Wait closes the stdout/stderr pipes once the child exits, so it is
// only called after both stream readers have reached EOF; child-exited is
// therefore observed after every line the child wrote has been emitted.
// stdoutTx/stderrTx are closed once both stream readers finish, so a
// blocking drain-all on the paired receive ends is guaranteed to
// terminate. exitTx is buffered and sent at most once.
func (m *manager) run(stdoutTx chan<- line, stderrTx chan<- line, exitTx chan<- exitResult, killRx <-chan struct{}) {
	// Closing exitTx here, after an attempted send, means the channel is
	// only ever observed closed-without-a-value if this goroutine panics
	// before reaching the send below -- the pool treats that as a fatal
	// violation of the manager contract.
	defer close(exitTx)

	streamDone := make(chan struct{}, 2)
	go func() {
		defer func() { streamDone <- struct{}{} }()
		m.readStream(m.stdout, stdoutTx, "stdout")
	}()
	go func() {
		defer func() { streamDone <- struct{}{} }()
		m.readStream(m.stderr, stderrTx, "stderr")
	}()

	waitDone := make(chan error, 1)
	go func() {
		<-streamDone
		<-streamDone
		waitDone <- m.cmd.Wait()
	}()

	var waitErr error
	select {
	case waitErr = <-waitDone:
	case <-killRx:
		if err := m.cmd.Process.Signal(unix.SIGKILL); err != nil && !strings.Contains(err.Error(), "process already finished") {
			m.log.Warnw("kill child process", "job", m.id, "error", err)
		}
		waitErr = <-waitDone
	}

	close(stdoutTx)
	close(stderrTx)

	exitTx <- exitResult{state: m.cmd.ProcessState, waitErr: waitErr}
}

// readStream reads name line-by-line from r until EOF, emitting
// (line, arrival-timestamp) pairs on tx. A read error that isn't EOF is
// logged and ends the stream early without affecting the other stream or
// the manager's overall lifecycle. Invalid UTF-8 is replaced with a
// sentinel marker so the stream keeps going.
func (m *manager) readStream(r io.ReadCloser, tx chan<- line, name string) {
	reader := bufio.NewReader(r)
	for {
		text, err := reader.ReadString('\n')
		if len(text) > 0 {
			if !utf8.ValidString(text) {
				text = invalidUTF8Marker
			}
			tx <- line{text: text, at: time.Now()}
		}
		if err != nil {
			if !errors.Is(err, io.EOF) {
				m.log.Warnw("read job stream", "job", m.id, "stream", name, "error", err)
			}
			return
		}
	}
}

// spawn starts cmd with piped stdout/stderr, returning the manager ready
// to run, or a spawn error that the caller surfaces as a terminal Error
// status rather than failing submission.
func spawn(ctx context.Context, id uint64, spec Spec, log *zap.SugaredLogger) (*manager, int, error) {
	cmd := exec.CommandContext(ctx, spec.Command, spec.Arguments...)
	cmd.Cancel = func() error {
		return cmd.Process.Signal(unix.SIGTERM)
	}

	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return nil, 0, fmt.Errorf("attach stdout pipe: %w", err)
	}
	stderr, err := cmd.StderrPipe()
	if err != nil {
		return nil, 0, fmt.Errorf("attach stderr pipe: %w", err)
	}

	if err := cmd.Start(); err != nil {
		return nil, 0, fmt.Errorf("start process: %w", err)
	}

	return newManager(id, cmd, stdout, stderr, log), cmd.Process.Pid, nil
}
