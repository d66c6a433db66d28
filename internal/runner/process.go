package runner

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"os/exec"
	"strings"
	"sync"
	"time"

	"updatr/internal/logging"
)

type spawnOptions struct {
	capture   bool
	stream    bool
	timeout   time.Duration
	heartbeat time.Duration
	tool      string
}

type outputLine struct {
	stderr bool
	text   string
}

// spawn runs one child process to completion. The child and both pipe readers
// report back over channels; this goroutine alone decides when to kill.
func (r *Runner) spawn(ctx context.Context, args []string, env map[string]string, opts spawnOptions) (Result, error) {
	logger := logging.WithContext(ctx, r.logger)
	if err := ctx.Err(); err != nil {
		return Result{}, err
	}

	cmd := exec.Command(args[0], args[1:]...)
	cmd.Env = renderEnv(env)
	configureProcessGroup(cmd)

	var stdoutPipe, stderrPipe io.ReadCloser
	if opts.capture {
		var err error
		if stdoutPipe, err = cmd.StdoutPipe(); err != nil {
			return Result{}, fmt.Errorf("stdout pipe: %w", err)
		}
		if stderrPipe, err = cmd.StderrPipe(); err != nil {
			return Result{}, fmt.Errorf("stderr pipe: %w", err)
		}
	} else {
		cmd.Stdout = r.stdout
		cmd.Stderr = r.stderr
	}

	logger.Debug("starting command",
		logging.String("command", DisplayCommand(args)),
		logging.Duration("timeout", opts.timeout))

	started := time.Now()
	if err := cmd.Start(); err != nil {
		return Result{}, fmt.Errorf("start %s: %w", args[0], err)
	}

	lines := make(chan outputLine, 256)
	waitDone := make(chan error, 1)
	var readers sync.WaitGroup
	if opts.capture {
		readers.Add(2)
		go readLines(stdoutPipe, false, lines, &readers)
		go readLines(stderrPipe, true, lines, &readers)
	}
	go func() {
		readers.Wait()
		close(lines)
		waitDone <- cmd.Wait()
	}()

	var timeoutC <-chan time.Time
	if opts.timeout > 0 {
		timer := time.NewTimer(opts.timeout)
		defer timer.Stop()
		timeoutC = timer.C
	}
	var tickC <-chan time.Time
	if opts.heartbeat > 0 {
		interval := r.pollInterval
		if opts.heartbeat < interval {
			interval = opts.heartbeat
		}
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		tickC = ticker.C
	}

	var (
		stdout, stderr strings.Builder
		timedOut       bool
		canceled       error
		graceC         <-chan time.Time
		lastActivity   = started
		linesC         = (<-chan outputLine)(lines)
		ctxDone        = ctx.Done()
	)

	collect := func(line outputLine) {
		if line.stderr {
			stderr.WriteString(line.text)
			stderr.WriteByte('\n')
		} else {
			stdout.WriteString(line.text)
			stdout.WriteByte('\n')
		}
		if !opts.stream || strings.TrimSpace(line.text) == "" {
			return
		}
		logged := Truncate(line.text, MaxLoggedOutput)
		if line.stderr {
			logger.Warn(logged, logging.String("tool", opts.tool), logging.String("stream", "stderr"))
		} else {
			logger.Info(logged, logging.String("tool", opts.tool), logging.String("stream", "stdout"))
		}
	}

	kill := func(reason string) {
		if err := killProcessGroup(cmd); err != nil {
			logger.Warn("kill command failed", logging.String("reason", reason), logging.Error(err))
		}
		grace := time.NewTimer(r.killGrace)
		graceC = grace.C
	}

	var waitErr error
loop:
	for {
		select {
		case line, ok := <-linesC:
			if !ok {
				linesC = nil
				continue
			}
			collect(line)
			lastActivity = time.Now()
		case waitErr = <-waitDone:
			break loop
		case <-timeoutC:
			timeoutC = nil
			timedOut = true
			logging.WarnWithContext(logger, "command timed out; killing", "command_timeout",
				logging.String("tool", opts.tool),
				logging.Duration("timeout", opts.timeout),
				logging.String(logging.FieldImpact, "partial output is kept and the call is reported as timed out"))
			kill("timeout")
		case <-ctxDone:
			ctxDone = nil
			canceled = ctx.Err()
			logger.Warn("command canceled; killing", logging.String("tool", opts.tool))
			kill("canceled")
		case <-graceC:
			// A descendant outside the process group still holds the pipes.
			graceC = nil
			closeQuietly(stdoutPipe)
			closeQuietly(stderrPipe)
		case now := <-tickC:
			if now.Sub(lastActivity) >= opts.heartbeat {
				logger.Info("still running",
					logging.String("tool", opts.tool),
					logging.Duration("elapsed", now.Sub(started).Truncate(time.Second)))
				lastActivity = now
			}
		}
	}
	for line := range lines {
		collect(line)
	}

	res := Result{
		Stdout:   stdout.String(),
		Stderr:   stderr.String(),
		Duration: time.Since(started),
	}
	if timedOut {
		res.TimedOut = true
		res.ExitCode = ExitTimedOut
	} else {
		res.ExitCode = exitCode(cmd, waitErr)
	}

	logger.Debug("command finished",
		logging.String("tool", opts.tool),
		logging.Int("exit_code", res.ExitCode),
		logging.Duration("duration", res.Duration))
	if r.observer != nil {
		r.observer(opts.tool, res)
	}
	if canceled != nil && !timedOut {
		return res, canceled
	}
	return res, nil
}

func readLines(src io.Reader, isStderr bool, out chan<- outputLine, wg *sync.WaitGroup) {
	defer wg.Done()
	reader := bufio.NewReader(src)
	for {
		text, err := reader.ReadString('\n')
		if text != "" {
			out <- outputLine{stderr: isStderr, text: strings.TrimRight(text, "\r\n")}
		}
		if err != nil {
			return
		}
	}
}

// exitCode maps the wait outcome to a status. Signals we did not send count
// as a plain failure.
func exitCode(cmd *exec.Cmd, waitErr error) int {
	if cmd.ProcessState == nil {
		if waitErr != nil {
			return 1
		}
		return 0
	}
	if code := cmd.ProcessState.ExitCode(); code >= 0 {
		return code
	}
	return 1
}

func closeQuietly(c io.Closer) {
	if c != nil {
		_ = c.Close()
	}
}
