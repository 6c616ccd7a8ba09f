// File: cmd/reporter.go
package cmd

import (
	"fmt"
	"io"

	"github.com/xkilldash9x/leoforge/internal/eventbus"
	"github.com/xkilldash9x/leoforge/internal/refinement"
)

// reporter prints run progress from the event bus. Runs in a batch share one
// reporter, so every line carries the project name once it is known.
type reporter struct {
	out  io.Writer
	done chan struct{}
}

func newReporter(out io.Writer, bus *eventbus.Bus) *reporter {
	msgs, _ := bus.Subscribe()
	r := &reporter{out: out, done: make(chan struct{})}
	go func() {
		defer close(r.done)
		for msg := range msgs {
			if line := formatEvent(msg.Event); line != "" {
				fmt.Fprintln(r.out, line)
			}
			bus.Acknowledge(msg)
		}
	}()
	return r
}

// Wait blocks until the bus has shut down and the reporter has drained.
func (r *reporter) Wait() { <-r.done }

func formatEvent(e refinement.Event) string {
	prefix := "[leoforge]"
	if e.ProjectName != "" {
		prefix = fmt.Sprintf("[%s]", e.ProjectName)
	}

	switch e.Kind {
	case refinement.EventRunStart:
		return fmt.Sprintf("%s starting run %s", prefix, e.RunID)
	case refinement.EventDesignStart:
		return prefix + " designing contract..."
	case refinement.EventDesignComplete:
		return fmt.Sprintf("%s design ready: %s", prefix, e.Message)
	case refinement.EventGenerationStart:
		return fmt.Sprintf("%s iteration %d: generating code...", prefix, e.Iteration)
	case refinement.EventEvaluationComplete:
		return fmt.Sprintf("%s iteration %d: score %.1f/10", prefix, e.Iteration, e.Score)
	case refinement.EventBuildStart:
		return fmt.Sprintf("%s iteration %d: building...", prefix, e.Iteration)
	case refinement.EventBuildComplete:
		return fmt.Sprintf("%s iteration %d: build %s", prefix, e.Iteration, e.Message)
	case refinement.EventSuccess:
		return fmt.Sprintf("%s %s", prefix, e.Message)
	case refinement.EventAbandoned:
		return fmt.Sprintf("%s abandoned: %s", prefix, e.Message)
	case refinement.EventError:
		return fmt.Sprintf("%s error: %s", prefix, e.Message)
	}
	return ""
}
