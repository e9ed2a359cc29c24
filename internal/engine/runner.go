package engine

import (
	"bufio"
	"context"
	"fmt"
	"os"
	"os/exec"
	"strings"
)

// RunSpec describes one invocation of a wrapped framework process.
type RunSpec struct {
	Command string
	Args    []string
	Dir     string
	Env     map[string]string
}

// Runner starts the wrapped framework and delivers its stdout lines
// until the process exits. Run blocks; a non-zero exit or start failure
// is returned as an error after the last line was delivered. Adapters
// hold the blocking call inside their producer goroutine so the
// orchestrating loop is never blocked by framework-internal work.
type Runner interface {
	Run(ctx context.Context, spec RunSpec, lines chan<- string) error
}

// ExecRunner runs the framework as a subprocess.
type ExecRunner struct{}

func (ExecRunner) Run(ctx context.Context, spec RunSpec, lines chan<- string) error {
	cmd := exec.CommandContext(ctx, spec.Command, spec.Args...)
	cmd.Dir = spec.Dir
	cmd.Env = os.Environ()
	for key, value := range spec.Env {
		cmd.Env = append(cmd.Env, key+"="+value)
	}

	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return fmt.Errorf("stdout pipe: %w", err)
	}
	cmd.Stderr = cmd.Stdout

	if err := cmd.Start(); err != nil {
		return fmt.Errorf("start %s: %w", spec.Command, err)
	}

	scanner := bufio.NewScanner(stdout)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for scanner.Scan() {
		line := strings.TrimRight(scanner.Text(), "\r")
		if line == "" {
			continue
		}
		select {
		case lines <- line:
		case <-ctx.Done():
			_ = cmd.Wait()
			return ctx.Err()
		}
	}

	if err := cmd.Wait(); err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		return fmt.Errorf("%s exited: %w", spec.Command, err)
	}
	return scanner.Err()
}
