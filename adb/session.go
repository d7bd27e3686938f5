package adb

import (
	"bytes"
	"context"
	"fmt"
	"image"
	"image/png"
	"os/exec"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/nathanieltooley/pocketbot/engine"
	"github.com/rs/zerolog/log"
	"github.com/samber/lo"
	"golang.org/x/sync/errgroup"
)

const (
	shortTimeout = 5 * time.Second
	longTimeout  = 10 * time.Second
)

// Runner executes one adb invocation and returns its stdout
type Runner interface {
	Run(ctx context.Context, name string, args ...string) ([]byte, error)
}

type execRunner struct{}

func (execRunner) Run(ctx context.Context, name string, args ...string) ([]byte, error) {
	cmd := exec.CommandContext(ctx, name, args...)
	var stderr bytes.Buffer
	cmd.Stderr = &stderr

	out, err := cmd.Output()
	if err != nil && stderr.Len() > 0 {
		return out, fmt.Errorf("%w: %s", err, strings.TrimSpace(stderr.String()))
	}
	return out, err
}

// Session talks to one device through the adb binary
type Session struct {
	adb    string
	runner Runner
	sleep  engine.Sleeper

	// Connection attempts made by ConnectAndEnsureReady and the gap between them
	Attempts    int
	RetryDelay  time.Duration
	BootTimeout time.Duration

	mu     sync.RWMutex
	serial string
}

// NewSession targets serial, or the first online device when serial is empty.
// A nil runner runs the real adb binary.
func NewSession(adbPath string, serial string, runner Runner) *Session {
	if runner == nil {
		runner = execRunner{}
	}

	return &Session{
		adb:         adbPath,
		runner:      runner,
		sleep:       engine.Sleep,
		Attempts:    3,
		RetryDelay:  5 * time.Second,
		BootTimeout: 60 * time.Second,
		serial:      serial,
	}
}

func (s *Session) Serial() string {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return s.serial
}

func (s *Session) setSerial(serial string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.serial = serial
}

func (s *Session) run(ctx context.Context, timeout time.Duration, args ...string) ([]byte, error) {
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	out, err := s.runner.Run(ctx, s.adb, args...)
	if err != nil {
		return out, fmt.Errorf("adb %s: %w", strings.Join(args, " "), err)
	}

	return out, nil
}

// onDevice runs a command against the session's device
func (s *Session) onDevice(ctx context.Context, timeout time.Duration, args ...string) ([]byte, error) {
	if serial := s.Serial(); serial != "" {
		args = append([]string{"-s", serial}, args...)
	}

	return s.run(ctx, timeout, args...)
}

func (s *Session) Screenshot(ctx context.Context) (image.Image, error) {
	out, err := s.onDevice(ctx, longTimeout, "exec-out", "screencap", "-p")
	if err != nil {
		return nil, err
	}

	img, err := png.Decode(bytes.NewReader(out))
	if err != nil {
		return nil, fmt.Errorf("decoding screencap: %w", err)
	}

	return img, nil
}

func (s *Session) Tap(ctx context.Context, p engine.Point) error {
	_, err := s.onDevice(ctx, shortTimeout, "shell", "input", "tap", strconv.Itoa(p.X), strconv.Itoa(p.Y))
	return err
}

func (s *Session) swipe(ctx context.Context, from, to engine.Point, duration time.Duration) error {
	_, err := s.onDevice(ctx, duration+shortTimeout,
		"shell", "input", "swipe",
		strconv.Itoa(from.X), strconv.Itoa(from.Y),
		strconv.Itoa(to.X), strconv.Itoa(to.Y),
		strconv.FormatInt(duration.Milliseconds(), 10),
	)
	return err
}

func (s *Session) Drag(ctx context.Context, from, to engine.Point, duration time.Duration) error {
	return s.swipe(ctx, from, to, duration)
}

// LongPress holds p for duration and returns a screenshot taken halfway
// through, while the zoomed card is still showing.
func (s *Session) LongPress(ctx context.Context, p engine.Point, duration time.Duration) (image.Image, error) {
	var screenshot image.Image

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return s.swipe(gctx, p, p, duration)
	})
	g.Go(func() error {
		if err := s.sleep(gctx, duration/2); err != nil {
			return err
		}
		shot, err := s.Screenshot(gctx)
		screenshot = shot
		return err
	})

	if err := g.Wait(); err != nil {
		return nil, err
	}

	return screenshot, nil
}

func (s *Session) ListDevices(ctx context.Context) ([]engine.DeviceInfo, error) {
	out, err := s.run(ctx, longTimeout, "devices", "-l")
	if err != nil {
		return nil, err
	}

	return ParseDevices(string(out)), nil
}

// ParseDevices reads the output of `adb devices -l`
func ParseDevices(output string) []engine.DeviceInfo {
	devices := []engine.DeviceInfo{}

	lines := strings.Split(strings.ReplaceAll(output, "\r\n", "\n"), "\n")
	for _, line := range lines {
		line = strings.TrimSpace(line)
		if line == "" || strings.HasPrefix(line, "List of devices") || strings.HasPrefix(line, "*") {
			continue
		}

		fields := strings.Fields(line)
		if len(fields) < 2 {
			continue
		}

		deviceType := "unknown"
		if strings.Contains(line, "model:") {
			deviceType = "phone"
		} else if strings.Contains(strings.ToLower(line), "emulator") {
			deviceType = "emulator"
		}

		devices = append(devices, engine.DeviceInfo{
			ID:      fields[0],
			State:   fields[1],
			Type:    deviceType,
			Details: line,
		})
	}

	return devices
}

// connectAddress maps emulator-N serials to the loopback address adb connect expects
func connectAddress(id string) string {
	if port, found := strings.CutPrefix(id, "emulator-"); found {
		return "127.0.0.1:" + port
	}
	return id
}

// ConnectAndEnsureReady connects to the preferred device, or the first online
// one, and waits for it to finish booting. It gives up after Attempts tries.
func (s *Session) ConnectAndEnsureReady(ctx context.Context) bool {
	for attempt := 1; attempt <= s.Attempts; attempt++ {
		if s.tryConnect(ctx) {
			return true
		}
		if ctx.Err() != nil {
			return false
		}

		log.Warn().Int("attempt", attempt).Int("of", s.Attempts).Msg("could not connect to a device")
		if attempt < s.Attempts {
			if err := s.sleep(ctx, s.RetryDelay); err != nil {
				return false
			}
		}
	}

	log.Error().Msg("failed to connect after maximum attempts")
	return false
}

func (s *Session) tryConnect(ctx context.Context) bool {
	devices, err := s.ListDevices(ctx)
	if err != nil {
		log.Err(err).Msg("error getting devices")
		return false
	}
	if len(devices) == 0 {
		log.Warn().Msg("no devices found")
		return false
	}

	offline := lo.FilterMap(devices, func(device engine.DeviceInfo, _ int) (string, bool) {
		return device.ID, device.State == "offline"
	})
	if len(offline) > 0 {
		s.RecoverOffline(ctx, offline)
	}

	if preferred := s.Serial(); preferred != "" {
		for _, device := range devices {
			if device.ID == preferred {
				if s.connectTo(ctx, device) {
					return true
				}
				break
			}
		}
	}

	for _, device := range devices {
		if device.State == engine.DEVICE_STATE_ONLINE {
			return s.connectTo(ctx, device)
		}
	}

	log.Warn().Msg("no available devices to connect to")
	return false
}

func (s *Session) connectTo(ctx context.Context, device engine.DeviceInfo) bool {
	if device.State == engine.DEVICE_STATE_ONLINE {
		log.Info().Str("serial", device.ID).Msg("device already connected")
		s.setSerial(device.ID)
		return true
	}

	address := connectAddress(device.ID)
	log.Info().Str("serial", device.ID).Str("address", address).Msg("connecting")

	out, err := s.run(ctx, longTimeout, "connect", address)
	if err != nil {
		log.Err(err).Str("serial", device.ID).Msg("error connecting to device")
		return false
	}
	// "failed to connect" and "unable to connect" never contain "connected"
	if !strings.Contains(strings.ToLower(string(out)), "connected") {
		log.Warn().Str("serial", device.ID).Str("output", strings.TrimSpace(string(out))).Msg("failed to connect")
		return false
	}

	s.setSerial(device.ID)
	if !s.waitForDevice(ctx) {
		log.Warn().Str("serial", device.ID).Msg("device connection timed out")
		return false
	}

	log.Info().Str("serial", device.ID).Msg("connected")
	return true
}

// waitForDevice blocks until the device reports it finished booting
func (s *Session) waitForDevice(ctx context.Context) bool {
	deadline := time.Now().Add(s.BootTimeout)

	for time.Now().Before(deadline) {
		if _, err := s.onDevice(ctx, longTimeout, "wait-for-device"); err != nil {
			log.Debug().Err(err).Msg("waiting for device")
		}

		out, err := s.onDevice(ctx, shortTimeout, "shell", "getprop", "sys.boot_completed")
		if err == nil && strings.TrimSpace(string(out)) == "1" {
			return true
		}

		if err := s.sleep(ctx, 2*time.Second); err != nil {
			return false
		}
	}

	return false
}

type recoveryStep struct {
	args  []string
	pause time.Duration
}

// RecoverOffline restarts the adb server and reconnects every offline device
func (s *Session) RecoverOffline(ctx context.Context, ids []string) {
	log.Info().Strs("devices", ids).Msg("recovering offline devices")

	steps := []recoveryStep{
		{[]string{"kill-server"}, 2 * time.Second},
		{[]string{"start-server"}, 2 * time.Second},
	}
	for _, id := range ids {
		steps = append(steps,
			recoveryStep{[]string{"disconnect", id}, time.Second},
			recoveryStep{[]string{"connect", id}, 0},
		)
	}

	for _, step := range steps {
		if _, err := s.run(ctx, shortTimeout, step.args...); err != nil {
			log.Err(err).Msg("recovery step failed")
		}
		if step.pause > 0 {
			if err := s.sleep(ctx, step.pause); err != nil {
				return
			}
		}
	}
}

func (s *Session) DisconnectAll(ctx context.Context) error {
	if _, err := s.run(ctx, shortTimeout, "disconnect"); err != nil {
		return err
	}

	log.Info().Msg("disconnected all devices")
	return nil
}
