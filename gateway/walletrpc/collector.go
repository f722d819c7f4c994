package walletrpc

import (
	"errors"
	"fmt"
)

type streamState int

const (
	streamOpen streamState = iota
	streamAccumulating
	streamDone
	streamFailed
)

func (s streamState) String() string {
	switch s {
	case streamOpen:
		return "open"
	case streamAccumulating:
		return "accumulating"
	case streamDone:
		return "done"
	case streamFailed:
		return "failed"
	default:
		return fmt.Sprintf("streamState(%d)", int(s))
	}
}

var (
	errStreamTerminated = errors.New("stream already terminated")
	errStreamPending    = errors.New("stream has not terminated")
)

// collector accumulates stream items in arrival order until exactly one
// terminal event. A failed collector drops everything it accumulated.
type collector[T any] struct {
	state streamState
	items []T
	err   error
}

func (c *collector[T]) terminated() bool {
	return c.state == streamDone || c.state == streamFailed
}

func (c *collector[T]) push(item T) error {
	if c.terminated() {
		return errStreamTerminated
	}
	c.state = streamAccumulating
	c.items = append(c.items, item)
	return nil
}

func (c *collector[T]) finish() error {
	if c.terminated() {
		return errStreamTerminated
	}
	c.state = streamDone
	if c.items == nil {
		c.items = []T{}
	}
	return nil
}

func (c *collector[T]) fail(err error) error {
	if c.terminated() {
		return errStreamTerminated
	}
	if err == nil {
		err = errors.New("stream failed")
	}
	c.state = streamFailed
	c.items = nil
	c.err = err
	return nil
}

func (c *collector[T]) result() ([]T, error) {
	switch c.state {
	case streamDone:
		return c.items, nil
	case streamFailed:
		return nil, c.err
	default:
		return nil, errStreamPending
	}
}
