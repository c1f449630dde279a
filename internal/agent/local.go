// Package agent provides a local, in-process upstream agent: a collaborator
// responsible for actually running shells and feeding their output back into
// a Session. It drains a Session's agent-bound queue and turns each command
// into a real PTY-backed process, one goroutine per shell.
package agent

import (
	"bufio"
	"context"
	"io"
	"os"
	"os/exec"
	"runtime"
	"sync"
	"sync/atomic"
	"syscall"

	"github.com/creack/pty"
	"github.com/sirupsen/logrus"

	"github.com/blaxel-ai/session-core/internal/session"
)

// readChunkSize bounds how much PTY output is batched into a single AddData
// call; it has no bearing on correctness, only on fragment granularity.
const readChunkSize = 4096

// shellProc is the local agent's handle on one running shell.
type shellProc struct {
	ptmx *os.File
	cmd  *exec.Cmd
	seq  atomic.Uint64
	done chan struct{}
}

// LocalAgent drains a session's outbound queue and satisfies it by spawning
// and driving real PTY processes. It exists so this repository has a runnable
// upstream collaborator; a production deployment would instead bridge the
// queue to a remote agent over whatever transport that agent speaks.
type LocalAgent struct {
	sess  *session.Session
	shell string
	log   *logrus.Entry

	mu     sync.Mutex
	shells map[uint32]*shellProc
}

// New builds a local agent bound to sess. shell is the command spawned for
// every created shell; an empty string falls back to $SHELL, then /bin/sh.
func New(sess *session.Session, shell string, log *logrus.Entry) *LocalAgent {
	return &LocalAgent{
		sess:   sess,
		shell:  shell,
		log:    log,
		shells: make(map[uint32]*shellProc),
	}
}

// Run drains the session's outbound queue until the session shuts down or
// ctx is cancelled, then kills every shell it started. It blocks until then.
func (a *LocalAgent) Run(ctx context.Context) {
	defer a.closeAll()
	for {
		select {
		case <-ctx.Done():
			return
		case <-a.sess.Done():
			return
		case msg := <-a.sess.Outbound():
			a.handle(ctx, msg)
		}
	}
}

func (a *LocalAgent) handle(ctx context.Context, msg session.ServerMessage) {
	switch msg.Kind {
	case session.CreateShell:
		if err := a.spawn(ctx, msg.ShellID); err != nil {
			a.log.Errorf("shell %d: failed to start: %v", msg.ShellID, err)
			_ = a.sess.CloseShell(msg.ShellID)
		}

	case session.CloseShell:
		a.kill(msg.ShellID)

	case session.Resize:
		a.resize(msg.ShellID, msg.Cols, msg.Rows)

	case session.Input:
		a.write(msg.ShellID, msg.Data)
	}
}

func (a *LocalAgent) spawn(ctx context.Context, id uint32) error {
	shellCmd := a.shell
	if shellCmd == "" {
		shellCmd = os.Getenv("SHELL")
	}
	if shellCmd == "" {
		shellCmd = "/bin/sh"
	}

	cmd := exec.CommandContext(ctx, shellCmd)
	cmd.Env = append(os.Environ(), "TERM=xterm-256color")
	if runtime.GOOS == "linux" {
		cmd.SysProcAttr = &syscall.SysProcAttr{Setpgid: true}
	}

	size := session.DefaultWindowSize
	ptmx, err := pty.StartWithSize(cmd, &pty.Winsize{Cols: uint16(size.Cols), Rows: uint16(size.Rows)})
	if err != nil {
		return err
	}

	proc := &shellProc{ptmx: ptmx, cmd: cmd, done: make(chan struct{})}

	a.mu.Lock()
	a.shells[id] = proc
	a.mu.Unlock()

	if err := a.sess.AddShell(id); err != nil {
		_ = ptmx.Close()
		_ = cmd.Process.Kill()
		a.mu.Lock()
		delete(a.shells, id)
		a.mu.Unlock()
		return err
	}

	go a.pump(id, proc)
	return nil
}

// pump copies PTY output into the session until the process exits or the
// PTY is closed, then marks the shell closed.
func (a *LocalAgent) pump(id uint32, proc *shellProc) {
	defer close(proc.done)
	defer func() { _ = a.sess.CloseShell(id) }()

	r := bufio.NewReaderSize(proc.ptmx, readChunkSize)
	buf := make([]byte, readChunkSize)
	for {
		n, err := r.Read(buf)
		if n > 0 {
			seq := proc.seq.Load()
			if addErr := a.sess.AddData(id, buf[:n], seq); addErr != nil {
				a.log.Warnf("shell %d: dropped %d bytes: %v", id, n, addErr)
			} else {
				proc.seq.Add(uint64(n))
			}
		}
		if err != nil {
			if err != io.EOF {
				a.log.Debugf("shell %d: pty read ended: %v", id, err)
			}
			return
		}
	}
}

func (a *LocalAgent) resize(id uint32, cols, rows uint16) {
	proc, ok := a.get(id)
	if !ok {
		return
	}
	if err := pty.Setsize(proc.ptmx, &pty.Winsize{Cols: cols, Rows: rows}); err != nil {
		a.log.Warnf("shell %d: resize failed: %v", id, err)
	}
}

func (a *LocalAgent) write(id uint32, data []byte) {
	proc, ok := a.get(id)
	if !ok {
		return
	}
	if _, err := proc.ptmx.Write(data); err != nil {
		a.log.Warnf("shell %d: write failed: %v", id, err)
	}
}

func (a *LocalAgent) kill(id uint32) {
	a.mu.Lock()
	proc, ok := a.shells[id]
	if ok {
		delete(a.shells, id)
	}
	a.mu.Unlock()
	if !ok {
		return
	}
	a.terminate(proc)
	_ = a.sess.CloseShell(id)
}

func (a *LocalAgent) terminate(proc *shellProc) {
	_ = proc.ptmx.Close()
	if proc.cmd.Process != nil {
		if runtime.GOOS == "linux" {
			_ = syscall.Kill(-proc.cmd.Process.Pid, syscall.SIGKILL)
		} else {
			_ = proc.cmd.Process.Kill()
		}
	}
	<-proc.done
	_ = proc.cmd.Wait()
}

func (a *LocalAgent) get(id uint32) (*shellProc, bool) {
	a.mu.Lock()
	defer a.mu.Unlock()
	proc, ok := a.shells[id]
	return proc, ok
}

func (a *LocalAgent) closeAll() {
	a.mu.Lock()
	procs := make([]*shellProc, 0, len(a.shells))
	for _, proc := range a.shells {
		procs = append(procs, proc)
	}
	a.shells = make(map[uint32]*shellProc)
	a.mu.Unlock()

	for _, proc := range procs {
		a.terminate(proc)
	}
}
