package adb

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"github.com/rs/zerolog"
	"golang.org/x/sync/singleflight"

	"homecontrol/models"
)

// ConnManager owns the per-device control-link lifecycle. A link counts as
// live only after a get-state probe answered "device"; a verified link stays
// cached until Invalidate drops it. Reconnection is single-flight per device
// so concurrent callers share one attempt instead of storming the device.
type ConnManager struct {
	adbPath string
	log     zerolog.Logger
	run     runFunc
	group   singleflight.Group

	mu   sync.Mutex
	live map[string]bool
}

func NewConnManager(adbPath string, log zerolog.Logger) *ConnManager {
	return &ConnManager{
		adbPath: adbPath,
		log:     log.With().Str("component", "conn").Logger(),
		run:     runADB,
		live:    make(map[string]bool),
	}
}

// Ensure returns once a live, probe-verified connection to the device
// exists. Concurrent callers for the same device await a single attempt.
func (m *ConnManager) Ensure(ctx context.Context, device *models.Device) error {
	m.mu.Lock()
	if m.live[device.ID] {
		m.mu.Unlock()
		return nil
	}
	m.mu.Unlock()

	_, err, _ := m.group.Do(device.ID, func() (interface{}, error) {
		return nil, m.connect(ctx, device)
	})
	return err
}

func (m *ConnManager) connect(ctx context.Context, device *models.Device) error {
	addr := device.Addr()

	cctx, cancel := context.WithTimeout(ctx, models.DefaultCommandTimeout)
	defer cancel()
	stdout, stderr, err := m.run(cctx, m.adbPath, "connect", addr)
	if err != nil {
		return models.NewOpError(models.ErrKindConnection, device.ID, "connect",
			fmt.Errorf("adb connect %s: %w", addr, err))
	}

	// adb connect exits 0 even when the device refused; the failure shows
	// up in the output text instead.
	combined := strings.ToLower(string(stdout) + stderr)
	if strings.Contains(combined, "cannot connect") || strings.Contains(combined, "failed to connect") {
		return models.NewOpError(models.ErrKindConnection, device.ID, "connect",
			fmt.Errorf("adb connect %s: %s", addr, strings.TrimSpace(string(stdout))))
	}

	pctx, pcancel := context.WithTimeout(ctx, models.ProbeTimeout)
	defer pcancel()
	stdout, _, err = m.run(pctx, m.adbPath, "-s", addr, "get-state")
	if err != nil || !strings.Contains(string(stdout), "device") {
		if err == nil {
			err = fmt.Errorf("get-state: %s", strings.TrimSpace(string(stdout)))
		}
		return models.NewOpError(models.ErrKindConnection, device.ID, "get-state", err)
	}

	m.mu.Lock()
	m.live[device.ID] = true
	m.mu.Unlock()
	m.log.Info().Str("device", device.ID).Str("addr", addr).Msg("connection established")
	return nil
}

// Invalidate drops the cached link so the next Ensure re-establishes from
// scratch. Safe to call repeatedly; only the first call after a verified
// connection does work.
func (m *ConnManager) Invalidate(device *models.Device) {
	m.mu.Lock()
	was := m.live[device.ID]
	delete(m.live, device.ID)
	m.mu.Unlock()

	if !was {
		return
	}
	m.log.Warn().Str("device", device.ID).Msg("connection invalidated")

	// Best-effort teardown; a dead link makes this fail harmlessly.
	ctx, cancel := context.WithTimeout(context.Background(), models.ProbeTimeout)
	defer cancel()
	_, _, _ = m.run(ctx, m.adbPath, "disconnect", device.Addr())
}

// Probe reports whether the device currently answers the control link,
// without touching the cached connection state.
func (m *ConnManager) Probe(ctx context.Context, device *models.Device) bool {
	pctx, cancel := context.WithTimeout(ctx, models.ProbeTimeout)
	defer cancel()
	stdout, _, err := m.run(pctx, m.adbPath, "-s", device.Addr(), "get-state")
	return err == nil && strings.Contains(string(stdout), "device")
}
