package actuator

import (
	"errors"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type recordingOutput struct {
	mu    sync.Mutex
	calls []bool
	err   error
}

func (o *recordingOutput) Apply(on bool) error {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.calls = append(o.calls, on)
	return o.err
}

func (o *recordingOutput) count() int {
	o.mu.Lock()
	defer o.mu.Unlock()
	return len(o.calls)
}

func newController(out Output) *Controller {
	return New(out, slog.New(slog.NewTextHandler(io.Discard, nil)), nil)
}

func TestInitAppliesOnce(t *testing.T) {
	out := &recordingOutput{}
	c := newController(out)

	require.NoError(t, c.Init(false))
	assert.Equal(t, []bool{false}, out.calls)
	assert.False(t, c.Get())
}

func TestSetIsIdempotent(t *testing.T) {
	out := &recordingOutput{}
	c := newController(out)
	require.NoError(t, c.Init(false))

	require.NoError(t, c.Set(true))
	require.NoError(t, c.Set(true))
	assert.Equal(t, []bool{false, true}, out.calls, "second Set(true) must not touch the hardware")

	require.NoError(t, c.Set(false))
	require.NoError(t, c.Set(false))
	assert.Equal(t, []bool{false, true, false}, out.calls)
}

func TestSetThenGet(t *testing.T) {
	c := newController(&recordingOutput{})
	require.NoError(t, c.Init(false))

	require.NoError(t, c.Set(true))
	assert.True(t, c.Get())
}

func TestSetWriteFailureRestoresState(t *testing.T) {
	out := &recordingOutput{}
	c := newController(out)
	require.NoError(t, c.Init(false))

	out.err = errors.New("bus error")
	assert.Error(t, c.Set(true))
	assert.False(t, c.Get(), "state must match the hardware after a failed write")

	out.mu.Lock()
	out.err = nil
	out.mu.Unlock()
	require.NoError(t, c.Set(true), "retry must reach the hardware")
	assert.True(t, c.Get())
	assert.Equal(t, []bool{false, true, true}, out.calls)
}

func TestConcurrentSetGet(t *testing.T) {
	out := &recordingOutput{}
	c := newController(out)
	require.NoError(t, c.Init(false))

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func(target bool) {
			defer wg.Done()
			for j := 0; j < 200; j++ {
				_ = c.Set(target)
				_ = c.Get()
			}
		}(i%2 == 0)
	}
	wg.Wait()

	// every hardware write alternates with the previous one
	out.mu.Lock()
	defer out.mu.Unlock()
	for i := 1; i < len(out.calls); i++ {
		assert.NotEqual(t, out.calls[i-1], out.calls[i], "redundant write at %d", i)
	}
	assert.Equal(t, c.Get(), out.calls[len(out.calls)-1])
}

func TestGPIOOutputActiveLow(t *testing.T) {
	root := t.TempDir()
	dir := filepath.Join(root, "gpio3")
	require.NoError(t, os.MkdirAll(dir, 0755))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "direction"), []byte("in"), 0644))

	g, err := OpenGPIO(root, 3, true)
	require.NoError(t, err)

	dirVal, _ := os.ReadFile(filepath.Join(dir, "direction"))
	assert.Equal(t, "out", string(dirVal))

	require.NoError(t, g.Apply(true))
	v, _ := os.ReadFile(filepath.Join(dir, "value"))
	assert.Equal(t, "0", string(v), "active-low: on drives the line low")

	require.NoError(t, g.Apply(false))
	v, _ = os.ReadFile(filepath.Join(dir, "value"))
	assert.Equal(t, "1", string(v))
}

func TestGPIOOutputActiveHigh(t *testing.T) {
	g := &GPIOOutput{activeLow: false}
	assert.Equal(t, 1, g.Level(true))
	assert.Equal(t, 0, g.Level(false))
}

func TestOpenGPIOUnavailable(t *testing.T) {
	_, err := OpenGPIO(filepath.Join(t.TempDir(), "missing"), 3, true)
	assert.True(t, errors.Is(err, ErrGPIOUnavailable))
}
