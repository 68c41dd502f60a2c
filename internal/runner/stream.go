package runner

import (
	"bufio"
	"context"
	"errors"
	"io"
	"os"
	"strings"
	"sync"
	"time"
)

type line struct {
	role Role
	text string
}

// collector accumulates streamed lines while forwarding them to emit.
type collector struct {
	emit   EmitFunc
	stdout []string
	stderr []string
}

func (c *collector) record(l line) {
	switch l.role {
	case RoleStdout:
		c.stdout = append(c.stdout, l.text)
	case RoleStderr:
		c.stderr = append(c.stderr, l.text)
	}
	c.emit(outputEvent(l.role, l.text))
}

// ExecuteStreaming runs req and reports it through emit as it happens: the
// source, a progress marker, one event per output line in arrival order, a
// JSON summary and finally a completion event. The buffered Result is
// returned as well so callers can post-process the run.
//
// As with Execute, the error is non-nil only when nothing was spawned and no
// event was emitted.
func (r *Runner) ExecuteStreaming(ctx context.Context, req Request, emit EmitFunc) (Result, error) {
	start := time.Now()

	p, err := r.prepare(req)
	if err != nil {
		return Result{ExitCode: -1, Elapsed: time.Since(start)}, err
	}
	defer p.cleanup()

	emit(codeEvent(req.Code, p.desc.MimeType))
	emit(progressEvent(p.desc.ID, time.Now().UTC()))

	c := &collector{emit: emit}
	exitCode, failure := r.stream(ctx, p.desc.Argv(p.path), p.dir, c)

	switch {
	case errors.Is(failure, ErrSpawn):
		emit(contentEvent(Content{Role: RoleError, Text: failure.Error()}))
	case failure != nil:
		emit(contentEvent(Content{
			Role:    RoleStderr,
			Text:    failureMessage(failure),
			Timeout: errors.Is(failure, ErrTimeout),
		}))
	}

	now := time.Now().UTC()
	emit(resultEvent(Summary{
		ExitCode:        exitCode,
		OutputLineCount: len(c.stdout),
		ErrorLineCount:  len(c.stderr),
		Timestamp:       now.Format(time.RFC3339),
	}))
	emit(completeEvent(exitCode, now))

	res := Result{
		Stdout:   strings.TrimSpace(strings.Join(c.stdout, "\n")),
		Stderr:   strings.TrimSpace(strings.Join(c.stderr, "\n")),
		ExitCode: exitCode,
		Failure:  failure,
		Elapsed:  time.Since(start),
	}
	if failure != nil {
		res.Stderr = failureMessage(failure)
	}
	if req.Filename != "" && req.Dir != "" {
		res.SavedPath = p.path
	}
	return res, nil
}

// stream runs argv with both output streams attached to line readers and
// forwards lines to c until the process exits or the deadline passes.
func (r *Runner) stream(ctx context.Context, argv []string, dir string, c *collector) (int, error) {
	outR, outW, err := os.Pipe()
	if err != nil {
		return -1, &SpawnError{Err: err}
	}
	errR, errW, err := os.Pipe()
	if err != nil {
		outR.Close()
		outW.Close()
		return -1, &SpawnError{Err: err}
	}

	cmd := r.command(argv, dir)
	cmd.Stdout = outW
	cmd.Stderr = errW
	startErr := cmd.Start()
	// The child owns the write ends now; readers see EOF once it and its
	// descendants exit.
	outW.Close()
	errW.Close()
	if startErr != nil {
		outR.Close()
		errR.Close()
		return -1, &SpawnError{Err: startErr}
	}

	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	lines := make(chan line)
	stop := make(chan struct{})
	var wg sync.WaitGroup
	wg.Add(2)
	go r.scanOutput(outR, RoleStdout, lines, stop, &wg)
	go r.scanOutput(errR, RoleStderr, lines, stop, &wg)
	readersDone := make(chan struct{})
	go func() {
		wg.Wait()
		close(readersDone)
	}()

	done := make(chan error, 1)
	go func() {
		done <- cmd.Wait()
	}()

	exitCode := -1
	var failure error
wait:
	for {
		select {
		case l := <-lines:
			c.record(l)
		case err := <-done:
			if err != nil && !isExitError(err) {
				r.logf("wait %s: %v", cmd.Path, err)
			}
			exitCode = exitStatus(cmd.ProcessState)
			break wait
		case <-ctx.Done():
			failure = r.abort(ctx, cmd, done)
			break wait
		}
	}

	timer := time.NewTimer(r.drain)
	defer timer.Stop()
drain:
	for {
		select {
		case l := <-lines:
			c.record(l)
		case <-readersDone:
			break drain
		case <-timer.C:
			r.logf("output readers for %s did not finish within %s", cmd.Path, r.drain)
			break drain
		}
	}
	close(stop)
	outR.Close()
	errR.Close()

	return exitCode, failure
}

// scanOutput reads lines from rd and sends them on lines until EOF or stop.
// Lines have no length limit, and a final line without a newline is still
// delivered.
func (r *Runner) scanOutput(rd io.Reader, role Role, lines chan<- line, stop <-chan struct{}, wg *sync.WaitGroup) {
	defer wg.Done()

	br := bufio.NewReaderSize(rd, readerBufSize)
	for {
		text, err := br.ReadString('\n')
		if text != "" {
			text = strings.TrimSuffix(strings.TrimSuffix(text, "\n"), "\r")
			select {
			case lines <- line{role: role, text: text}:
			case <-stop:
				return
			}
		}
		if err != nil {
			if err != io.EOF && !errors.Is(err, os.ErrClosed) {
				r.logf("read error (%s): %v", role, err)
			}
			return
		}
	}
}
