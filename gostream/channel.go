package gostream

import (
	"sync"

	"go.viam.com/augment/rimage"
	"go.viam.com/augment/utils"
)

// ChannelPolicy selects how a FrameChannel buffers frames the consumer has not taken yet.
type ChannelPolicy string

const (
	// PolicyFIFO keeps every frame in arrival order with no bound. A consumer slower than the
	// producer falls progressively behind.
	PolicyFIFO ChannelPolicy = "fifo"
	// PolicyLatest keeps only the newest frame. Overwritten frames are counted as dropped.
	PolicyLatest ChannelPolicy = "latest"
)

// ParseChannelPolicy validates a policy name. An empty name selects PolicyFIFO.
func ParseChannelPolicy(name string) (ChannelPolicy, error) {
	switch ChannelPolicy(name) {
	case "", PolicyFIFO:
		return PolicyFIFO, nil
	case PolicyLatest:
		return PolicyLatest, nil
	default:
		return "", utils.NewUnknownNameError("channel policy", name, []string{string(PolicyFIFO), string(PolicyLatest)})
	}
}

// FrameChannel hands frames from one producer to one consumer. Neither side ever blocks.
type FrameChannel struct {
	policy ChannelPolicy

	mu      sync.Mutex
	queue   []*rimage.Frame
	head    int
	closed  bool
	dropped uint64
}

// NewFrameChannel returns an empty channel with the given policy.
func NewFrameChannel(policy ChannelPolicy) *FrameChannel {
	if policy == "" {
		policy = PolicyFIFO
	}
	return &FrameChannel{policy: policy}
}

// Policy returns the buffering policy.
func (c *FrameChannel) Policy() ChannelPolicy {
	return c.policy
}

// Send enqueues a frame. It returns ErrChannelClosed once the consumer has closed the channel.
func (c *FrameChannel) Send(frame *rimage.Frame) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return ErrChannelClosed
	}
	if c.policy == PolicyLatest && c.lenLocked() > 0 {
		c.dropped += uint64(c.lenLocked())
		c.queue = c.queue[:0]
		c.head = 0
	}
	c.queue = append(c.queue, frame)
	return nil
}

// TryRecv removes and returns the oldest buffered frame, if any.
func (c *FrameChannel) TryRecv() (*rimage.Frame, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.lenLocked() == 0 {
		return nil, false
	}
	frame := c.queue[c.head]
	c.queue[c.head] = nil
	c.head++
	switch {
	case c.head == len(c.queue):
		c.queue = c.queue[:0]
		c.head = 0
	case c.head > len(c.queue)/2:
		n := copy(c.queue, c.queue[c.head:])
		clear(c.queue[n:])
		c.queue = c.queue[:n]
		c.head = 0
	}
	return frame, true
}

// Len returns the number of buffered frames.
func (c *FrameChannel) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.lenLocked()
}

func (c *FrameChannel) lenLocked() int {
	return len(c.queue) - c.head
}

// Dropped returns how many frames were overwritten before the consumer received them.
func (c *FrameChannel) Dropped() uint64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.dropped
}

// Close releases buffered frames and makes later sends fail with ErrChannelClosed.
func (c *FrameChannel) Close() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.closed = true
	c.queue = nil
	c.head = 0
}

// Closed reports whether Close has been called.
func (c *FrameChannel) Closed() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.closed
}
