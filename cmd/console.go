package cmd

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"sync"

	"github.com/xkilldash9x/droidpilot/internal/agent"
)

// console serializes terminal output across concurrent runs and routes
// stdin lines to whichever run is asking a question.
type console struct {
	out io.Writer

	mu     sync.Mutex    // Guards out.
	prompt chan struct{} // Held by the one question awaiting stdin.
	once   sync.Once
	in     io.Reader
	lines  chan string
}

func newConsole(in io.Reader, out io.Writer) *console {
	return &console{in: in, out: out, prompt: make(chan struct{}, 1), lines: make(chan string)}
}

// readLines starts the single stdin reader. It exits at EOF.
func (c *console) readLines() {
	c.once.Do(func() {
		go func() {
			defer close(c.lines)
			scanner := bufio.NewScanner(c.in)
			for scanner.Scan() {
				c.lines <- strings.TrimSpace(scanner.Text())
			}
		}()
	})
}

func (c *console) printf(format string, args ...any) {
	c.mu.Lock()
	defer c.mu.Unlock()
	fmt.Fprintf(c.out, format, args...)
}

// Ask prints a prompt for device and waits for one line of input. Questions
// from different devices queue for stdin; ctx bounds the wait for both the
// turn and the line.
func (c *console) Ask(ctx context.Context, device, prompt string) (string, error) {
	c.readLines()

	select {
	case c.prompt <- struct{}{}:
	case <-ctx.Done():
		return "", ctx.Err()
	}
	defer func() { <-c.prompt }()

	c.printf("[%s] ? %s\n> ", device, prompt)
	select {
	case line, ok := <-c.lines:
		if !ok {
			return "", errors.New("input closed")
		}
		return line, nil
	case <-ctx.Done():
		return "", ctx.Err()
	}
}

// Confirm asks a yes/no question. Anything but y or yes declines.
func (c *console) Confirm(ctx context.Context, device, message string) bool {
	answer, err := c.Ask(ctx, device, "Allow sensitive action: "+message+" [y/N]")
	if err != nil {
		return false
	}
	switch strings.ToLower(answer) {
	case "y", "yes":
		return true
	}
	return false
}

// Step prints one progress line.
func (c *console) Step(device string, r agent.StepResult) {
	switch {
	case r.Step == 0 && r.Err != nil:
		c.printf("[%s] retry: %v\n", device, r.Err)
		return
	case r.Step == 0:
		return
	}

	status := "ok"
	if !r.Outcome.Success {
		status = "failed"
		if r.Outcome.Message != "" {
			status += ": " + r.Outcome.Message
		}
	}
	line := fmt.Sprintf("[%s] step %d  %s  %s", device, r.Step, r.Action.Describe(), status)
	if r.Substituted {
		line += "  (substituted)"
	}
	if r.SubGoalID > 0 {
		line += fmt.Sprintf("  [sub-goal %d]", r.SubGoalID)
	}
	c.printf("%s\n", line)
	if r.LoopWarning != "" {
		c.printf("[%s] warning: %s\n", device, r.LoopWarning)
	}
}

// Result prints the final line of a run.
func (c *console) Result(device string, res agent.RunResult) {
	mark := "done"
	if !res.Success {
		mark = string(res.StopReason)
	}
	c.printf("[%s] %s after %d steps: %s (run %s)\n", device, mark, res.StepCount, res.Message, res.RunID)
}
