package emulator

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"sync"
)

// WriterFrame is a headless frame that reports the handshake as JSON lines.
// The shell counts as loaded as soon as Load is called.
type WriterFrame struct {
	mu sync.Mutex
	w  io.Writer
}

func NewWriterFrame(w io.Writer) *WriterFrame {
	return &WriterFrame{w: w}
}

type frameEvent struct {
	Event   string   `json:"event"`
	Shell   string   `json:"shell,omitempty"`
	Message *Message `json:"message,omitempty"`
}

func (f *WriterFrame) Load(ctx context.Context, shell string) (<-chan struct{}, error) {
	if err := f.write(frameEvent{Event: "load", Shell: shell}); err != nil {
		return nil, err
	}
	loaded := make(chan struct{})
	close(loaded)
	return loaded, nil
}

func (f *WriterFrame) Post(ctx context.Context, msg Message) error {
	return f.write(frameEvent{Event: "message", Message: &msg})
}

func (f *WriterFrame) write(ev frameEvent) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := json.NewEncoder(f.w).Encode(ev); err != nil {
		return fmt.Errorf("write frame event: %w", err)
	}
	return nil
}
