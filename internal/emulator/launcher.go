// Package emulator runs the launch handshake between a catalog game and an
// emulator shell loaded into a frame.
package emulator

import (
	"context"
	"log/slog"
	"sync"
)

// DefaultShell is the emulator shell document loaded into the frame.
const DefaultShell = "emulator/index.html"

type State int

const (
	AwaitingFrameLoad State = iota
	Running
)

func (s State) String() string {
	switch s {
	case AwaitingFrameLoad:
		return "awaiting_frame_load"
	case Running:
		return "running"
	default:
		return "unknown"
	}
}

// Message is posted into the frame once the ROM is available locally.
type Message struct {
	ROMURL string `json:"romUrl"`
	System string `json:"system"`
}

// Target identifies what to launch.
type Target struct {
	GameURL string
	System  string
}

// Frame hosts the emulator shell.
type Frame interface {
	// Load starts loading shell and returns a channel that is closed once
	// the document has finished loading.
	Load(ctx context.Context, shell string) (<-chan struct{}, error)
	Post(ctx context.Context, msg Message) error
}

// ROMSource downloads ROM bytes for a game URL.
type ROMSource interface {
	FetchROM(ctx context.Context, gameURL string) ([]byte, error)
}

// BlobStore turns bytes into a locally addressable handle.
type BlobStore interface {
	Create(data []byte) (string, error)
	Revoke(handle string) error
}

type Launcher struct {
	frame Frame
	roms  ROMSource
	blobs BlobStore
	shell string

	mu      sync.Mutex
	state   State
	target  Target
	handle  string
	attempt int
	cancel  context.CancelFunc
	done    chan struct{}
}

func NewLauncher(frame Frame, roms ROMSource, blobs BlobStore, shell string) *Launcher {
	if shell == "" {
		shell = DefaultShell
	}
	return &Launcher{frame: frame, roms: roms, blobs: blobs, shell: shell}
}

func (l *Launcher) State() State {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.state
}

// Handle returns the blob handle posted to the frame, empty unless Running.
func (l *Launcher) Handle() string {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.handle
}

// Done returns a channel closed when the current attempt has either reached
// Running or given up. It is nil before the first Start.
func (l *Launcher) Done() <-chan struct{} {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.done
}

// Start loads the shell and, once the frame reports it loaded, runs the
// handshake in the background. A blob from an earlier session is revoked
// first. Failures are logged and leave the launcher
// in AwaitingFrameLoad. There is no retry.
func (l *Launcher) Start(ctx context.Context, target Target) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.cancel != nil {
		l.cancel()
	}
	if l.handle != "" {
		l.revokeLocked(l.handle)
		l.handle = ""
	}
	ctx, cancel := context.WithCancel(ctx)
	done := make(chan struct{})
	l.attempt++
	attempt := l.attempt
	l.state = AwaitingFrameLoad
	l.target = target
	l.cancel = cancel
	l.done = done

	go func() {
		defer close(done)
		l.handshake(ctx, attempt, target)
	}()
}

// Restart tears the current session down and starts over for target.
func (l *Launcher) Restart(ctx context.Context, target Target) {
	l.teardown()
	l.Start(ctx, target)
}

// Update restarts only when target differs from the one last started.
func (l *Launcher) Update(ctx context.Context, target Target) {
	l.mu.Lock()
	same := l.done != nil && l.target == target
	l.mu.Unlock()
	if same {
		return
	}
	l.Restart(ctx, target)
}

// Close stops any attempt in flight and revokes the blob handle.
func (l *Launcher) Close() {
	l.teardown()
}

func (l *Launcher) teardown() {
	l.mu.Lock()
	cancel, done := l.cancel, l.done
	l.attempt++
	l.mu.Unlock()

	if cancel != nil {
		cancel()
		<-done
	}

	l.mu.Lock()
	defer l.mu.Unlock()
	if l.handle != "" {
		if err := l.blobs.Revoke(l.handle); err != nil {
			slog.Warn("failed to revoke rom blob", "handle", l.handle, "error", err)
		}
		l.handle = ""
	}
	l.state = AwaitingFrameLoad
	l.target = Target{}
	l.cancel = nil
}

func (l *Launcher) handshake(ctx context.Context, attempt int, target Target) {
	logger := slog.With("game_url", target.GameURL, "system", target.System)

	loaded, err := l.frame.Load(ctx, l.shell)
	if err != nil {
		logger.Error("emulator frame failed to load", "error", err)
		return
	}
	select {
	case <-ctx.Done():
		return
	case <-loaded:
	}

	data, err := l.roms.FetchROM(ctx, target.GameURL)
	if err != nil {
		logger.Error("failed to fetch rom", "error", err)
		return
	}

	handle, err := l.blobs.Create(data)
	if err != nil {
		logger.Error("failed to store rom", "error", err)
		return
	}

	if err := l.frame.Post(ctx, Message{ROMURL: handle, System: target.System}); err != nil {
		logger.Error("failed to post launch message", "error", err)
		l.revoke(handle)
		return
	}

	l.mu.Lock()
	defer l.mu.Unlock()
	if attempt != l.attempt {
		l.revokeLocked(handle)
		return
	}
	l.handle = handle
	l.state = Running
	logger.Info("emulator running", "bytes", len(data))
}

func (l *Launcher) revoke(handle string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.revokeLocked(handle)
}

func (l *Launcher) revokeLocked(handle string) {
	if err := l.blobs.Revoke(handle); err != nil {
		slog.Warn("failed to revoke rom blob", "handle", handle, "error", err)
	}
}
