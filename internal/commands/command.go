// Package commands implements the single-consumer command queues that
// serialize window mutations onto one scheduling goroutine, and the bounded
// worker pool used for jobs that may block.
package commands

import (
	"errors"
	"fmt"
	"log/slog"
	"runtime/debug"
)

// Command is a deferred unit of work.
type Command struct {
	// Name identifies the command in logs.
	Name string
	Run  func() error
	// Threaded commands run on the worker pool instead of the scheduler.
	Threaded bool
}

// Func wraps fn as a non-threaded command that cannot fail.
func Func(name string, fn func()) Command {
	return Command{
		Name: name,
		Run: func() error {
			fn()
			return nil
		},
	}
}

// Threaded wraps fn as a command that runs on the worker pool.
func Threaded(name string, fn func() error) Command {
	return Command{Name: name, Run: fn, Threaded: true}
}

func (c Command) label() string {
	if c.Name == "" {
		return "anonymous"
	}
	return c.Name
}

// execute runs the command, converting a panic into an error.
func (c Command) execute() (err error) {
	if c.Run == nil {
		return nil
	}
	defer func() {
		if r := recover(); r != nil {
			err = &PanicError{Value: r, Stack: debug.Stack()}
		}
	}()
	return c.Run()
}

// PanicError is a recovered panic from a command or tick callback.
type PanicError struct {
	Value any
	Stack []byte
}

func (e *PanicError) Error() string {
	return fmt.Sprintf("panic: %v", e.Value)
}

func logFailure(logger *slog.Logger, msg, name string, err error) {
	var pe *PanicError
	if errors.As(err, &pe) {
		logger.Error(msg, "command", name, "panic", pe.Value, "stack", string(pe.Stack))
		return
	}
	logger.Error(msg, "command", name, "error", err)
}
