package adb

import (
	"bytes"
	"context"
	"errors"
	"image"
	"image/png"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/nathanieltooley/pocketbot/engine"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeRunner struct {
	mu sync.Mutex
	// keyed by the joined arguments, the last output repeats
	outputs map[string][]string
	errs    map[string]error
	calls   []string
}

func newFakeRunner() *fakeRunner {
	return &fakeRunner{outputs: map[string][]string{}, errs: map[string]error{}}
}

func (r *fakeRunner) on(command string, outputs ...string) {
	r.outputs[command] = outputs
}

func (r *fakeRunner) Run(ctx context.Context, name string, args ...string) ([]byte, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	command := strings.Join(args, " ")
	r.calls = append(r.calls, command)

	if err := r.errs[command]; err != nil {
		return nil, err
	}
	outputs := r.outputs[command]
	if len(outputs) == 0 {
		return nil, nil
	}
	out := outputs[0]
	if len(outputs) > 1 {
		r.outputs[command] = outputs[1:]
	}
	return []byte(out), nil
}

func (r *fakeRunner) called(command string) int {
	r.mu.Lock()
	defer r.mu.Unlock()

	n := 0
	for _, call := range r.calls {
		if call == command {
			n++
		}
	}
	return n
}

type sleeps struct {
	mu    sync.Mutex
	slept []time.Duration
}

func (s *sleeps) Sleep(ctx context.Context, d time.Duration) error {
	s.mu.Lock()
	s.slept = append(s.slept, d)
	s.mu.Unlock()
	return ctx.Err()
}

func newTestSession(serial string, runner *fakeRunner) (*Session, *sleeps) {
	s := NewSession("adb", serial, runner)
	slept := &sleeps{}
	s.sleep = slept.Sleep
	return s, slept
}

const devicesOutput = `List of devices attached
emulator-5554          device product:sdk_gphone64 model:sdk_gphone64 device:emu64 transport_id:1
127.0.0.1:5555         offline
R58M123ABC             unauthorized usb:1-1 transport_id:3

`

func TestParseDevices(t *testing.T) {
	devices := ParseDevices(devicesOutput)

	require.Len(t, devices, 3)
	assert.Equal(t, "emulator-5554", devices[0].ID)
	assert.Equal(t, engine.DEVICE_STATE_ONLINE, devices[0].State)
	assert.Equal(t, "phone", devices[0].Type)
	assert.Equal(t, "offline", devices[1].State)
	assert.Equal(t, "unknown", devices[1].Type)
	assert.Equal(t, "unauthorized", devices[2].State)
	assert.Contains(t, devices[2].Details, "usb:1-1")
}

func TestParseDevicesSkipsDaemonChatter(t *testing.T) {
	out := "* daemon not running; starting now at tcp:5037\r\n* daemon started successfully\r\nList of devices attached\r\nemulator-5556\tdevice\r\n"

	devices := ParseDevices(out)

	require.Len(t, devices, 1)
	assert.Equal(t, "emulator-5556", devices[0].ID)
	assert.Equal(t, "emulator", devices[0].Type)
}

func TestInputCommands(t *testing.T) {
	runner := newFakeRunner()
	s, _ := newTestSession("emulator-5554", runner)
	ctx := context.Background()

	require.NoError(t, s.Tap(ctx, engine.Point{X: 400, Y: 900}))
	require.NoError(t, s.Drag(ctx, engine.Point{X: 525, Y: 1470}, engine.Point{X: 400, Y: 850}, 500*time.Millisecond))

	assert.Equal(t, []string{
		"-s emulator-5554 shell input tap 400 900",
		"-s emulator-5554 shell input swipe 525 1470 400 850 500",
	}, runner.calls)
}

func encodedScreen(t *testing.T) string {
	t.Helper()
	var buf bytes.Buffer
	require.NoError(t, png.Encode(&buf, image.NewRGBA(image.Rect(0, 0, 9, 16))))
	return buf.String()
}

func TestLongPressCapturesMidPress(t *testing.T) {
	runner := newFakeRunner()
	runner.on("exec-out screencap -p", encodedScreen(t))
	s, slept := newTestSession("", runner)

	img, err := s.LongPress(context.Background(), engine.Point{X: 200, Y: 1250}, 700*time.Millisecond)

	require.NoError(t, err)
	assert.Equal(t, image.Rect(0, 0, 9, 16), img.Bounds())
	assert.Equal(t, 1, runner.called("shell input swipe 200 1250 200 1250 700"))
	assert.Equal(t, []time.Duration{350 * time.Millisecond}, slept.slept)
}

func TestScreenshotDecodeError(t *testing.T) {
	runner := newFakeRunner()
	runner.on("exec-out screencap -p", "not a png")
	s, _ := newTestSession("", runner)

	_, err := s.Screenshot(context.Background())

	assert.ErrorContains(t, err, "decoding screencap")
}

func TestConnectGivesUpAfterThreeAttempts(t *testing.T) {
	runner := newFakeRunner()
	runner.on("devices -l", "List of devices attached\nemulator-5554 unauthorized\n")
	s, slept := newTestSession("", runner)

	ok := s.ConnectAndEnsureReady(context.Background())

	assert.False(t, ok)
	assert.Equal(t, 3, runner.called("devices -l"))
	assert.Equal(t, []time.Duration{5 * time.Second, 5 * time.Second}, slept.slept)
}

func TestConnectPicksFirstOnlineDevice(t *testing.T) {
	runner := newFakeRunner()
	runner.on("devices -l", "List of devices attached\nR58M123ABC unauthorized\nemulator-5556 device\n")
	s, _ := newTestSession("", runner)

	require.True(t, s.ConnectAndEnsureReady(context.Background()))
	assert.Equal(t, "emulator-5556", s.Serial())
}

func TestConnectRecoversOfflineEmulator(t *testing.T) {
	runner := newFakeRunner()
	runner.on("devices -l", "List of devices attached\nemulator-5554 offline\n")
	runner.on("connect 127.0.0.1:5554", "connected to 127.0.0.1:5554")
	runner.on("-s emulator-5554 shell getprop sys.boot_completed", "\n", "1\n")
	s, slept := newTestSession("emulator-5554", runner)

	require.True(t, s.ConnectAndEnsureReady(context.Background()))

	for _, step := range []string{"kill-server", "start-server", "disconnect emulator-5554", "connect emulator-5554", "connect 127.0.0.1:5554"} {
		assert.Equal(t, 1, runner.called(step), step)
	}
	assert.Equal(t, 2, runner.called("-s emulator-5554 wait-for-device"))
	assert.Equal(t, []time.Duration{2 * time.Second, 2 * time.Second, time.Second, 2 * time.Second}, slept.slept)
}

func TestConnectRefused(t *testing.T) {
	runner := newFakeRunner()
	runner.on("devices -l", "List of devices attached\n127.0.0.1:5555 offline\n")
	runner.on("connect 127.0.0.1:5555", "failed to connect to '127.0.0.1:5555': Connection refused")
	s, _ := newTestSession("127.0.0.1:5555", runner)
	s.Attempts = 1

	assert.False(t, s.ConnectAndEnsureReady(context.Background()))
	assert.Zero(t, runner.called("-s 127.0.0.1:5555 wait-for-device"))
}

func TestListDevicesError(t *testing.T) {
	runner := newFakeRunner()
	runner.errs["devices -l"] = errors.New("adb: not found")
	s, _ := newTestSession("", runner)
	s.Attempts = 1

	_, err := s.ListDevices(context.Background())
	assert.ErrorContains(t, err, "adb devices -l")
	assert.False(t, s.ConnectAndEnsureReady(context.Background()))
}
