package hexdump

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os/exec"
	"syscall"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/mattjoyce/hexview/internal/log"
)

const (
	// maxStderrBytes caps the amount of stderr captured per stage.
	maxStderrBytes = 64 * 1024

	// defaultKillGrace is the time we wait after SIGTERM before sending SIGKILL.
	defaultKillGrace = 2 * time.Second
)

// Stage is one process in a pipeline.
type Stage struct {
	Name string
	Args []string
}

func (s Stage) String() string {
	return fmt.Sprintf("%s %v", s.Name, s.Args)
}

// Runner executes a pipeline of stages, feeding each stage's stdout into the
// next stage's stdin, and returns the last stage's stdout.
type Runner interface {
	Run(ctx context.Context, stages ...Stage) ([]byte, error)
}

// ExecRunner runs stages as OS processes.
type ExecRunner struct {
	// KillGrace is the delay between SIGTERM and SIGKILL once ctx is done.
	KillGrace time.Duration

	logger *slog.Logger
}

var _ Runner = (*ExecRunner)(nil)

// NewExecRunner creates an ExecRunner with the given kill grace period.
func NewExecRunner(killGrace time.Duration) *ExecRunner {
	if killGrace <= 0 {
		killGrace = defaultKillGrace
	}
	return &ExecRunner{
		KillGrace: killGrace,
		logger:    log.WithComponent("runner"),
	}
}

// Run starts every stage, waits for all of them and returns the captured
// stdout of the final stage. A failure to start any stage is SpawnFailed;
// a non-zero exit or stream error is ProcessError.
func (r *ExecRunner) Run(ctx context.Context, stages ...Stage) ([]byte, error) {
	if len(stages) == 0 {
		return nil, fmt.Errorf("run: no stages")
	}
	logger := r.logger
	if logger == nil {
		logger = log.WithComponent("runner")
	}

	cmds := make([]*exec.Cmd, len(stages))
	stderrs := make([]*cappedBuffer, len(stages))
	for i, st := range stages {
		cmd := exec.CommandContext(ctx, st.Name, st.Args...)
		cmd.Cancel = func() error {
			return cmd.Process.Signal(syscall.SIGTERM)
		}
		cmd.WaitDelay = r.grace()
		stderrs[i] = &cappedBuffer{limit: maxStderrBytes}
		cmd.Stderr = stderrs[i]
		cmds[i] = cmd
	}

	for i := 0; i < len(cmds)-1; i++ {
		pipe, err := cmds[i].StdoutPipe()
		if err != nil {
			return nil, &Error{Kind: KindSpawnFailed, Op: stages[i].Name, Err: fmt.Errorf("create stdout pipe: %w", err)}
		}
		cmds[i+1].Stdin = pipe
	}
	var stdout bytes.Buffer
	cmds[len(cmds)-1].Stdout = &stdout

	for i, cmd := range cmds {
		logger.Debug("starting stage", "stage", stages[i].String())
		if err := cmd.Start(); err != nil {
			// Reap whatever already started so nothing is left behind.
			for _, started := range cmds[:i] {
				_ = started.Process.Kill()
				_ = started.Wait()
			}
			if ctxErr := ctx.Err(); ctxErr != nil {
				return nil, contextError(stages[i].Name, ctxErr)
			}
			return nil, &Error{Kind: KindSpawnFailed, Op: stages[i].Name, Err: err}
		}
	}

	var g errgroup.Group
	for i, cmd := range cmds {
		g.Go(func() error {
			if err := cmd.Wait(); err != nil {
				return stageError(stages[i].Name, err, stderrs[i].String())
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			logger.Warn("pipeline interrupted", "error", ctxErr)
			return nil, contextError(stages[0].Name, ctxErr)
		}
		return nil, err
	}

	return stdout.Bytes(), nil
}

func (r *ExecRunner) grace() time.Duration {
	if r.KillGrace <= 0 {
		return defaultKillGrace
	}
	return r.KillGrace
}

func stageError(name string, err error, stderr string) error {
	var exitErr *exec.ExitError
	if errors.As(err, &exitErr) {
		return &Error{
			Kind:     KindProcessError,
			Op:       name,
			Err:      err,
			Stderr:   stderr,
			ExitCode: exitErr.ExitCode(),
		}
	}
	return &Error{Kind: KindProcessError, Op: name, Err: err, Stderr: stderr, ExitCode: -1}
}

func contextError(name string, err error) error {
	if errors.Is(err, context.DeadlineExceeded) {
		return &Error{Kind: KindTimeout, Op: name, Err: err}
	}
	return &Error{Kind: KindCanceled, Op: name, Err: err}
}

// cappedBuffer keeps the first limit bytes written and drops the rest.
type cappedBuffer struct {
	buf   bytes.Buffer
	limit int
}

func (b *cappedBuffer) Write(p []byte) (int, error) {
	if room := b.limit - b.buf.Len(); room > 0 {
		if len(p) > room {
			b.buf.Write(p[:room])
		} else {
			b.buf.Write(p)
		}
	}
	return len(p), nil
}

func (b *cappedBuffer) String() string {
	return b.buf.String()
}
