package emulator

import (
	"bytes"
	"context"
	"errors"
	"os"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

type MockROMSource struct {
	mock.Mock
}

func (m *MockROMSource) FetchROM(ctx context.Context, gameURL string) ([]byte, error) {
	args := m.Called(ctx, gameURL)
	data, _ := args.Get(0).([]byte)
	return data, args.Error(1)
}

type fakeFrame struct {
	mu      sync.Mutex
	loads   []string
	posts   []Message
	loaded  chan struct{}
	loadErr error
	postErr error
}

func newFakeFrame() *fakeFrame {
	return &fakeFrame{loaded: make(chan struct{})}
}

func (f *fakeFrame) Load(ctx context.Context, shell string) (<-chan struct{}, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.loads = append(f.loads, shell)
	if f.loadErr != nil {
		return nil, f.loadErr
	}
	return f.loaded, nil
}

func (f *fakeFrame) Post(ctx context.Context, msg Message) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.postErr != nil {
		return f.postErr
	}
	f.posts = append(f.posts, msg)
	return nil
}

func (f *fakeFrame) Posts() []Message {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]Message(nil), f.posts...)
}

func newTestBlobs(t *testing.T) *TempDirBlobs {
	t.Helper()
	blobs, err := NewTempDirBlobs(t.TempDir())
	require.NoError(t, err)
	return blobs
}

func blobCount(t *testing.T, blobs *TempDirBlobs) int {
	t.Helper()
	entries, err := os.ReadDir(blobs.Dir())
	require.NoError(t, err)
	return len(entries)
}

func waitDone(t *testing.T, l *Launcher) {
	t.Helper()
	select {
	case <-l.Done():
	case <-time.After(2 * time.Second):
		t.Fatal("handshake did not finish")
	}
}

var snes = Target{GameURL: "https://storage.example/v0/b/roms/o/mario.zip?alt=media", System: "snes"}

func TestLauncherHandshake(t *testing.T) {
	frame := newFakeFrame()
	roms := new(MockROMSource)
	roms.On("FetchROM", mock.Anything, snes.GameURL).Return([]byte("rom-bytes"), nil).Once()
	blobs := newTestBlobs(t)

	l := NewLauncher(frame, roms, blobs, "")
	assert.Equal(t, AwaitingFrameLoad, l.State())
	assert.Nil(t, l.Done())

	l.Start(context.Background(), snes)

	// Nothing happens until the frame reports it loaded.
	time.Sleep(20 * time.Millisecond)
	assert.Equal(t, AwaitingFrameLoad, l.State())
	roms.AssertNotCalled(t, "FetchROM", mock.Anything, mock.Anything)

	close(frame.loaded)
	waitDone(t, l)

	assert.Equal(t, Running, l.State())
	assert.Equal(t, []string{DefaultShell}, frame.loads)

	handle := l.Handle()
	require.True(t, strings.HasPrefix(handle, "file://"), handle)
	assert.Equal(t, []Message{{ROMURL: handle, System: "snes"}}, frame.Posts())
	assert.Equal(t, 1, blobCount(t, blobs))
	roms.AssertExpectations(t)

	l.Close()
	assert.Equal(t, AwaitingFrameLoad, l.State())
	assert.Empty(t, l.Handle())
	assert.Zero(t, blobCount(t, blobs))
}

func TestLauncherFailuresStayAwaiting(t *testing.T) {
	tests := []struct {
		name    string
		setup   func(f *fakeFrame, roms *MockROMSource)
		fetched bool
	}{
		{
			name: "frame load fails",
			setup: func(f *fakeFrame, roms *MockROMSource) {
				f.loadErr = errors.New("shell missing")
			},
		},
		{
			name: "rom fetch fails",
			setup: func(f *fakeFrame, roms *MockROMSource) {
				close(f.loaded)
				roms.On("FetchROM", mock.Anything, snes.GameURL).Return(nil, errors.New("api error: 500 Error proxying file"))
			},
			fetched: true,
		},
		{
			name: "post fails",
			setup: func(f *fakeFrame, roms *MockROMSource) {
				close(f.loaded)
				f.postErr = errors.New("frame gone")
				roms.On("FetchROM", mock.Anything, snes.GameURL).Return([]byte("rom"), nil)
			},
			fetched: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			frame := newFakeFrame()
			roms := new(MockROMSource)
			tt.setup(frame, roms)
			blobs := newTestBlobs(t)

			l := NewLauncher(frame, roms, blobs, "")
			l.Start(context.Background(), snes)
			waitDone(t, l)

			assert.Equal(t, AwaitingFrameLoad, l.State())
			assert.Empty(t, l.Handle())
			assert.Empty(t, frame.Posts())
			assert.Zero(t, blobCount(t, blobs))
			if tt.fetched {
				roms.AssertNumberOfCalls(t, "FetchROM", 1)
			} else {
				roms.AssertNotCalled(t, "FetchROM", mock.Anything, mock.Anything)
			}
		})
	}
}

func TestLauncherRestart(t *testing.T) {
	frame := newFakeFrame()
	close(frame.loaded)
	nes := Target{GameURL: "https://storage.example/v0/b/roms/o/zelda.zip?alt=media", System: "nes"}

	roms := new(MockROMSource)
	roms.On("FetchROM", mock.Anything, snes.GameURL).Return([]byte("mario"), nil)
	roms.On("FetchROM", mock.Anything, nes.GameURL).Return([]byte("zelda"), nil)
	blobs := newTestBlobs(t)

	l := NewLauncher(frame, roms, blobs, "shell.html")
	ctx := context.Background()
	l.Start(ctx, snes)
	waitDone(t, l)
	first := l.Handle()

	// Same target is not restarted.
	l.Update(ctx, snes)
	assert.Len(t, frame.loads, 1)

	l.Update(ctx, nes)
	waitDone(t, l)

	assert.Equal(t, Running, l.State())
	second := l.Handle()
	assert.NotEqual(t, first, second)
	assert.Equal(t, []string{"shell.html", "shell.html"}, frame.loads)
	assert.Equal(t, []Message{{ROMURL: first, System: "snes"}, {ROMURL: second, System: "nes"}}, frame.Posts())
	assert.Equal(t, 1, blobCount(t, blobs))

	l.Close()
}

func TestLauncherStartWhileRunning(t *testing.T) {
	frame := newFakeFrame()
	close(frame.loaded)
	roms := new(MockROMSource)
	roms.On("FetchROM", mock.Anything, snes.GameURL).Return([]byte("mario"), nil)
	blobs := newTestBlobs(t)

	l := NewLauncher(frame, roms, blobs, "")
	ctx := context.Background()
	l.Start(ctx, snes)
	waitDone(t, l)
	first := l.Handle()
	require.NotEmpty(t, first)

	frame.mu.Lock()
	frame.loaded = make(chan struct{})
	frame.mu.Unlock()
	l.Start(ctx, snes)

	assert.Equal(t, AwaitingFrameLoad, l.State())
	assert.Empty(t, l.Handle())
	assert.Zero(t, blobCount(t, blobs))

	l.Close()
}

func TestLauncherRestartWhileWaiting(t *testing.T) {
	frame := newFakeFrame()
	roms := new(MockROMSource)
	blobs := newTestBlobs(t)

	l := NewLauncher(frame, roms, blobs, "")
	l.Start(context.Background(), snes)
	first := l.Done()

	l.Restart(context.Background(), snes)
	select {
	case <-first:
	default:
		t.Fatal("first attempt was not cancelled")
	}
	assert.Equal(t, AwaitingFrameLoad, l.State())
	roms.AssertNotCalled(t, "FetchROM", mock.Anything, mock.Anything)
	l.Close()
}

func TestTempDirBlobs(t *testing.T) {
	blobs, err := NewTempDirBlobs("")
	require.NoError(t, err)
	dir := blobs.Dir()

	handle, err := blobs.Create([]byte("abc"))
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(handle, "file://"))

	assert.Error(t, blobs.Revoke("https://example.com/x.rom"))
	assert.Error(t, blobs.Revoke("file:///etc/passwd"))

	require.NoError(t, blobs.Revoke(handle))
	require.NoError(t, blobs.Revoke(handle))

	require.NoError(t, blobs.Close())
	_, err = os.Stat(dir)
	assert.True(t, os.IsNotExist(err))
}

func TestWriterFrame(t *testing.T) {
	var buf bytes.Buffer
	f := NewWriterFrame(&buf)

	loaded, err := f.Load(context.Background(), DefaultShell)
	require.NoError(t, err)
	select {
	case <-loaded:
	default:
		t.Fatal("writer frame should load immediately")
	}
	require.NoError(t, f.Post(context.Background(), Message{ROMURL: "file:///tmp/a.rom", System: "gba"}))

	assert.Equal(t,
		`{"event":"load","shell":"emulator/index.html"}`+"\n"+
			`{"event":"message","message":{"romUrl":"file:///tmp/a.rom","system":"gba"}}`+"\n",
		buf.String())
}
