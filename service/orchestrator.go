package service

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"homecontrol/adb"
	"homecontrol/dumpsys"
	"homecontrol/metrics"
	"homecontrol/models"
	"homecontrol/resolver"
)

// ConnectionManager owns the per-device control link. *adb.ConnManager
// satisfies this; tests substitute fakes.
type ConnectionManager interface {
	Ensure(ctx context.Context, device *models.Device) error
	Invalidate(device *models.Device)
	Probe(ctx context.Context, device *models.Device) bool
}

// CommandRunner executes one low-level command. *adb.Executor satisfies this.
type CommandRunner interface {
	Run(ctx context.Context, device *models.Device, cmd models.Command) (models.CommandResult, error)
}

// Options tunes retry and queue behavior. Zero values get defaults.
type Options struct {
	RetryAttempts int
	RetryBackoff  time.Duration
	MaxQueueWait  time.Duration
	StatusTTL     time.Duration
}

func (o *Options) applyDefaults() {
	if o.RetryAttempts <= 0 {
		o.RetryAttempts = 3
	}
	if o.RetryBackoff <= 0 {
		o.RetryBackoff = 500 * time.Millisecond
	}
	if o.MaxQueueWait <= 0 {
		o.MaxQueueWait = 30 * time.Second
	}
	if o.StatusTTL <= 0 {
		o.StatusTTL = 2 * time.Second
	}
}

// Orchestrator exposes the intent-level operation set over a pool of TV
// devices. Operations against the same device queue FIFO behind a per-device
// semaphore; operations against different devices run fully in parallel.
// Waiting is bounded by MaxQueueWait, after which the caller gets a busy
// error instead of hanging.
type Orchestrator struct {
	log     zerolog.Logger
	devices *DeviceManager
	conns   ConnectionManager
	exec    CommandRunner
	apps    *AppCache
	metrics *metrics.Metrics
	opts    Options

	// Injected for tests.
	now   func() time.Time
	sleep func(ctx context.Context, d time.Duration) error

	mu    sync.Mutex
	locks map[string]chan struct{}

	statusMu sync.Mutex
	status   map[string]models.PlaybackState
}

func NewOrchestrator(devices *DeviceManager, conns ConnectionManager, exec CommandRunner,
	apps *AppCache, m *metrics.Metrics, opts Options, log zerolog.Logger) *Orchestrator {
	opts.applyDefaults()
	return &Orchestrator{
		log:     log.With().Str("component", "orchestrator").Logger(),
		devices: devices,
		conns:   conns,
		exec:    exec,
		apps:    apps,
		metrics: m,
		opts:    opts,
		now:     time.Now,
		sleep:   sleepCtx,
		locks:   make(map[string]chan struct{}),
		status:  make(map[string]models.PlaybackState),
	}
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

// acquire takes the per-device operation slot. Callers queue FIFO; the wait
// is bounded so an interactive caller eventually gets a distinct busy signal.
func (o *Orchestrator) acquire(ctx context.Context, deviceID string) (func(), error) {
	o.mu.Lock()
	sem, ok := o.locks[deviceID]
	if !ok {
		sem = make(chan struct{}, 1)
		o.locks[deviceID] = sem
	}
	o.mu.Unlock()

	wait := time.NewTimer(o.opts.MaxQueueWait)
	defer wait.Stop()
	select {
	case sem <- struct{}{}:
		return func() { <-sem }, nil
	case <-ctx.Done():
		return nil, ctx.Err()
	case <-wait.C:
		return nil, models.NewOpError(models.ErrKindBusy, deviceID, "",
			fmt.Errorf("another operation still in flight after %s", o.opts.MaxQueueWait))
	}
}

// runCommand executes one command with the reconnect-and-retry policy:
// connection-level failures and timeouts invalidate the link and retry with
// backoff up to the attempt bound; rejections surface immediately.
func (o *Orchestrator) runCommand(ctx context.Context, device *models.Device, cmd models.Command) (models.CommandResult, error) {
	var lastErr error
	for attempt := 1; attempt <= o.opts.RetryAttempts; attempt++ {
		if attempt > 1 {
			if err := o.sleep(ctx, time.Duration(attempt-1)*o.opts.RetryBackoff); err != nil {
				return models.CommandResult{}, err
			}
		}

		if err := o.conns.Ensure(ctx, device); err != nil {
			lastErr = err
			if ctx.Err() != nil {
				break
			}
			continue
		}

		start := o.now()
		res, err := o.exec.Run(ctx, device, cmd)
		o.metrics.ObserveCommand(device.ID, string(cmd.Type), resultLabel(err), o.now().Sub(start))
		if err == nil {
			return res, nil
		}
		if errors.Is(err, context.Canceled) {
			return res, err
		}
		if !models.IsRetryable(err) {
			return res, err
		}

		lastErr = err
		o.conns.Invalidate(device)
		o.metrics.ObserveReconnect(device.ID)
		o.log.Warn().Str("device", device.ID).Str("command", cmd.Describe()).
			Int("attempt", attempt).Err(err).Msg("retryable command failure")
		if ctx.Err() != nil {
			break
		}
	}
	return models.CommandResult{}, lastErr
}

func resultLabel(err error) string {
	if err == nil {
		return "ok"
	}
	if errors.Is(err, context.Canceled) {
		return "canceled"
	}
	return string(models.KindOf(err))
}

// PlayResult reports what a play operation achieved.
type PlayResult struct {
	Intent  models.LaunchIntent  `json:"intent"`
	Started bool                 `json:"started"` // playback verified against the media session
	State   models.PlaybackState `json:"state"`
}

// Play resolves the (app, query-or-URL) pair and drives the full launch
// sequence on the device: wake, deep link (or generic launch), and for
// details-page apps a bounded select-and-verify loop. The whole sequence
// holds the device slot; cancellation is honored at every command boundary.
func (o *Orchestrator) Play(ctx context.Context, deviceID, app, queryOrURL string) (result PlayResult, err error) {
	start := o.now()
	defer func() { o.observe("play", start, err) }()

	device, err := o.devices.Get(deviceID)
	if err != nil {
		return PlayResult{}, err
	}
	intent, err := resolver.Resolve(app, queryOrURL)
	if err != nil {
		return PlayResult{}, err
	}

	release, err := o.acquire(ctx, deviceID)
	if err != nil {
		return PlayResult{}, err
	}
	defer release()

	o.log.Info().Str("device", deviceID).Str("app", intent.App).
		Str("uri", intent.URI).Bool("deep_link", intent.DeepLink).Msg("play")

	// Wake the screen first so the launch does not land on a sleeping
	// device. Best effort: a failure here only means it was already awake
	// or the wake will ride along with the launch intent.
	_, _ = o.runCommand(ctx, device, models.KeyEvent(adb.KeyWakeup).WithTimeout(models.ProbeTimeout))

	if !intent.DeepLink {
		return o.genericLaunch(ctx, device, intent)
	}

	entry, _ := resolver.Lookup(intent.App)
	if _, err = o.runCommand(ctx, device, o.launchCommand(ctx, device, entry, intent)); err != nil {
		return PlayResult{}, err
	}

	if intent.NeedsSelect {
		return o.confirmSelection(ctx, device, intent)
	}

	// Direct-play apps (YouTube watch links) just need a settle before
	// verification.
	if err = o.sleep(ctx, 2*time.Second); err != nil {
		return PlayResult{}, err
	}
	started, err := o.waitForPlaying(ctx, device, 10*time.Second)
	if err != nil {
		return PlayResult{}, err
	}
	state, err := o.statusFresh(ctx, device)
	if err != nil {
		return PlayResult{}, err
	}
	return PlayResult{Intent: intent, Started: started, State: state}, nil
}

// confirmSelection handles apps whose deep links land on a details or search
// page: press select, verify against the media session, up to three rounds.
// A profile-selection gate gets one grace wait instead of blind key presses.
func (o *Orchestrator) confirmSelection(ctx context.Context, device *models.Device, intent models.LaunchIntent) (PlayResult, error) {
	if err := o.sleep(ctx, 3*time.Second); err != nil {
		return PlayResult{}, err
	}

	started := false
	for attempt := 0; attempt < 3 && !started; attempt++ {
		if err := ctx.Err(); err != nil {
			return PlayResult{}, err
		}

		state, err := o.statusFresh(ctx, device)
		if err != nil {
			return PlayResult{}, err
		}
		if state.Phase == models.PhasePlaying {
			started = true
			break
		}
		if strings.Contains(state.Context, "profile") {
			if attempt == 0 {
				if err := o.sleep(ctx, 5*time.Second); err != nil {
					return PlayResult{}, err
				}
			}
			continue
		}

		if _, err := o.runCommand(ctx, device, models.KeyEvent(adb.KeyDpadCenter)); err != nil {
			return PlayResult{}, err
		}
		if err := o.sleep(ctx, 2*time.Second); err != nil {
			return PlayResult{}, err
		}
		started, err = o.waitForPlaying(ctx, device, 3*time.Second)
		if err != nil {
			return PlayResult{}, err
		}
	}

	state, err := o.statusFresh(ctx, device)
	if err != nil {
		return PlayResult{}, err
	}
	return PlayResult{Intent: intent, Started: started, State: state}, nil
}

// launchCommand builds the app-specific `am start` invocation. Some app
// builds need an explicit component to dodge the platform's intent
// intercepts; those are looked up against the installed package.
func (o *Orchestrator) launchCommand(ctx context.Context, device *models.Device, entry *resolver.App, intent models.LaunchIntent) models.Command {
	args := []string{"am", "start"}
	if entry != nil {
		if entry.Component != nil {
			if pkg := o.packageFor(ctx, device, entry); pkg != "" {
				if comp := entry.Component(pkg); comp != "" {
					args = append(args, "-n", comp)
				}
			}
		}
		args = append(args, "-a", "android.intent.action.VIEW")
		args = append(args, entry.LaunchFlags...)
	} else {
		args = append(args, "-a", "android.intent.action.VIEW")
	}
	args = append(args, "-d", intent.URI)
	return models.Shell(args...)
}

// genericLaunch opens an app with no deep content, the fallback when the
// resolver could not build a deep link.
func (o *Orchestrator) genericLaunch(ctx context.Context, device *models.Device, intent models.LaunchIntent) (PlayResult, error) {
	pkg := ""
	if entry, ok := resolver.Lookup(intent.App); ok {
		pkg = o.packageFor(ctx, device, entry)
	}
	if pkg == "" {
		// Last resort: match the raw app name against the inventory.
		apps, err := o.apps.Apps(ctx, device.ID, false, o.scanner(device))
		if err != nil {
			return PlayResult{}, err
		}
		needle := strings.ReplaceAll(intent.App, " ", "")
		for _, a := range apps {
			if strings.Contains(strings.ToLower(a.Package), needle) {
				pkg = a.Package
				break
			}
		}
	}
	if pkg == "" {
		return PlayResult{}, models.NewOpError(models.ErrKindResolution, device.ID, "",
			fmt.Errorf("app %q not installed and no generic launch path", intent.App))
	}

	cmd := models.Shell("monkey", "-p", pkg, "-c", "android.intent.category.LAUNCHER", "1")
	if _, err := o.runCommand(ctx, device, cmd); err != nil {
		return PlayResult{}, err
	}
	state, err := o.statusFresh(ctx, device)
	if err != nil {
		return PlayResult{}, err
	}
	return PlayResult{Intent: intent, Started: false, State: state}, nil
}

// packageFor resolves the installed package for an app via the cached
// inventory. Returns "" when the app is not installed.
func (o *Orchestrator) packageFor(ctx context.Context, device *models.Device, entry *resolver.App) string {
	apps, err := o.apps.Apps(ctx, device.ID, false, o.scanner(device))
	if err != nil {
		return ""
	}
	pkgs := make([]string, 0, len(apps))
	for _, a := range apps {
		pkgs = append(pkgs, a.Package)
	}
	return entry.MatchPackage(pkgs)
}

// waitForPlaying polls the media session until playback is active with an
// advancing position, or the window elapses.
func (o *Orchestrator) waitForPlaying(ctx context.Context, device *models.Device, window time.Duration) (bool, error) {
	deadline := o.now().Add(window)
	var lastPos int64 = -1
	for o.now().Before(deadline) {
		res, err := o.runCommand(ctx, device,
			models.Shell("dumpsys media_session | grep -E 'state=PlaybackState'"))
		if err != nil {
			return false, err
		}
		playing, pos := dumpsys.PlayingAndAdvancing(res.Text())
		if playing {
			// No reported position counts as playing; otherwise require
			// the position to move between polls.
			if pos == 0 || (lastPos >= 0 && pos > lastPos) {
				return true, nil
			}
			lastPos = pos
		}
		if err := o.sleep(ctx, time.Second); err != nil {
			return false, err
		}
	}
	return false, nil
}

// Navigate issues exactly one key event for a direction in
// {up, down, left, right, select, back, home} (enter/ok/menu accepted).
func (o *Orchestrator) Navigate(ctx context.Context, deviceID, direction string) (err error) {
	start := o.now()
	defer func() { o.observe("navigate", start, err) }()

	device, err := o.devices.Get(deviceID)
	if err != nil {
		return err
	}
	key, ok := adb.NavigationKeys[strings.ToLower(strings.TrimSpace(direction))]
	if !ok {
		return fmt.Errorf("%w: direction %q", models.ErrUnknownAction, direction)
	}

	release, err := o.acquire(ctx, deviceID)
	if err != nil {
		return err
	}
	defer release()

	_, err = o.runCommand(ctx, device, models.KeyEvent(key))
	return err
}

// Volume issues exactly one key event for an action in {up, down, mute}.
func (o *Orchestrator) Volume(ctx context.Context, deviceID, action string) (err error) {
	start := o.now()
	defer func() { o.observe("volume", start, err) }()

	device, err := o.devices.Get(deviceID)
	if err != nil {
		return err
	}
	key, ok := adb.VolumeKeys[strings.ToLower(strings.TrimSpace(action))]
	if !ok {
		return fmt.Errorf("%w: volume action %q", models.ErrUnknownAction, action)
	}

	release, err := o.acquire(ctx, deviceID)
	if err != nil {
		return err
	}
	defer release()

	_, err = o.runCommand(ctx, device, models.KeyEvent(key))
	return err
}

// TypeText sends literal text through the device's input pipeline, for
// search boxes and login forms. Escaping happens at the executor.
func (o *Orchestrator) TypeText(ctx context.Context, deviceID, text string) (err error) {
	start := o.now()
	defer func() { o.observe("type_text", start, err) }()

	device, err := o.devices.Get(deviceID)
	if err != nil {
		return err
	}

	release, err := o.acquire(ctx, deviceID)
	if err != nil {
		return err
	}
	defer release()

	_, err = o.runCommand(ctx, device, models.TextInput(text))
	return err
}

// PowerResult reports a power transition.
type PowerResult struct {
	Power   models.PowerState `json:"power"`
	Changed bool              `json:"changed"`
}

// TurnOn wakes the device. Idempotent: an already-awake device is a no-op
// success. The transition is verified with up to three 1s probes.
func (o *Orchestrator) TurnOn(ctx context.Context, deviceID string) (PowerResult, error) {
	return o.power(ctx, deviceID, "turn_on", models.PowerOn, adb.KeyWakeup)
}

// TurnOff sleeps the device. Idempotent the same way as TurnOn.
func (o *Orchestrator) TurnOff(ctx context.Context, deviceID string) (PowerResult, error) {
	return o.power(ctx, deviceID, "turn_off", models.PowerOff, adb.KeySleep)
}

func (o *Orchestrator) power(ctx context.Context, deviceID, op string, want models.PowerState, key string) (result PowerResult, err error) {
	start := o.now()
	defer func() { o.observe(op, start, err) }()

	device, err := o.devices.Get(deviceID)
	if err != nil {
		return PowerResult{}, err
	}
	release, err := o.acquire(ctx, deviceID)
	if err != nil {
		return PowerResult{}, err
	}
	defer release()

	current, err := o.powerState(ctx, device)
	if err != nil {
		return PowerResult{}, err
	}
	if current == want {
		return PowerResult{Power: current, Changed: false}, nil
	}

	if _, err = o.runCommand(ctx, device, models.KeyEvent(key)); err != nil {
		return PowerResult{}, err
	}

	for attempt := 0; attempt < 3; attempt++ {
		if err = o.sleep(ctx, time.Second); err != nil {
			return PowerResult{}, err
		}
		current, err = o.powerState(ctx, device)
		if err != nil {
			return PowerResult{}, err
		}
		if current == want {
			return PowerResult{Power: current, Changed: true}, nil
		}
	}
	return PowerResult{}, models.NewOpError(models.ErrKindRejected, deviceID, "keyevent "+key,
		fmt.Errorf("power state is %s, wanted %s", current, want))
}

func (o *Orchestrator) powerState(ctx context.Context, device *models.Device) (models.PowerState, error) {
	res, err := o.runCommand(ctx, device, models.Shell("dumpsys power | grep mWakefulness"))
	if err != nil {
		return models.PowerUnknown, err
	}
	return dumpsys.ParseStatus(res.Text(), o.now()).Power, nil
}

// PlayPauseResult reports a play/pause toggle with before/after phases.
type PlayPauseResult struct {
	Before  models.PlaybackPhase `json:"before"`
	After   models.PlaybackPhase `json:"after"`
	Changed bool                 `json:"changed"`
}

// PlayPause toggles playback and verifies the session state moved. A device
// with no active media session rejects the toggle.
func (o *Orchestrator) PlayPause(ctx context.Context, deviceID string) (result PlayPauseResult, err error) {
	start := o.now()
	defer func() { o.observe("play_pause", start, err) }()

	device, err := o.devices.Get(deviceID)
	if err != nil {
		return PlayPauseResult{}, err
	}
	release, err := o.acquire(ctx, deviceID)
	if err != nil {
		return PlayPauseResult{}, err
	}
	defer release()

	before, err := o.mediaPhase(ctx, device)
	if err != nil {
		return PlayPauseResult{}, err
	}
	if _, err = o.runCommand(ctx, device, models.KeyEvent(adb.KeyMediaPlayPause)); err != nil {
		return PlayPauseResult{}, err
	}
	if err = o.sleep(ctx, 500*time.Millisecond); err != nil {
		return PlayPauseResult{}, err
	}
	after, err := o.mediaPhase(ctx, device)
	if err != nil {
		return PlayPauseResult{}, err
	}

	if after == models.PhaseUnknown {
		return PlayPauseResult{}, models.NewOpError(models.ErrKindRejected, deviceID,
			"keyevent "+adb.KeyMediaPlayPause, fmt.Errorf("no active media session"))
	}
	return PlayPauseResult{Before: before, After: after, Changed: before != after}, nil
}

func (o *Orchestrator) mediaPhase(ctx context.Context, device *models.Device) (models.PlaybackPhase, error) {
	res, err := o.runCommand(ctx, device,
		models.Shell("dumpsys media_session | grep -E 'state=PlaybackState'"))
	if err != nil {
		return models.PhaseUnknown, err
	}
	return dumpsys.ParseStatus(res.Text(), o.now()).Phase, nil
}

var pngMagic = []byte{0x89, 'P', 'N', 'G', '\r', '\n', 0x1a, '\n'}

// Screenshot captures the screen as PNG bytes. DRM-protected surfaces make
// the device return empty or junk output, which reports as a rejection.
func (o *Orchestrator) Screenshot(ctx context.Context, deviceID string) (data []byte, err error) {
	start := o.now()
	defer func() { o.observe("screenshot", start, err) }()

	device, err := o.devices.Get(deviceID)
	if err != nil {
		return nil, err
	}
	release, err := o.acquire(ctx, deviceID)
	if err != nil {
		return nil, err
	}
	defer release()

	res, err := o.runCommand(ctx, device, models.Screencap())
	if err != nil {
		return nil, err
	}
	if !bytes.HasPrefix(res.Output, pngMagic) {
		return nil, models.NewOpError(models.ErrKindRejected, deviceID, "screencap",
			fmt.Errorf("capture returned %d bytes of non-PNG data (secure surface?)", len(res.Output)))
	}
	return res.Output, nil
}

// Status reads the structured device state. Reads within the status TTL are
// served from cache to keep chat-style polling off the device.
func (o *Orchestrator) Status(ctx context.Context, deviceID string) (state models.PlaybackState, err error) {
	start := o.now()
	defer func() { o.observe("status", start, err) }()

	device, err := o.devices.Get(deviceID)
	if err != nil {
		return models.UnknownState(o.now()), err
	}
	if st, ok := o.cachedStatus(deviceID); ok {
		return st, nil
	}

	release, err := o.acquire(ctx, deviceID)
	if err != nil {
		return models.UnknownState(o.now()), err
	}
	defer release()

	// An operation that just released the slot may have refreshed it.
	if st, ok := o.cachedStatus(deviceID); ok {
		return st, nil
	}
	return o.statusFresh(ctx, device)
}

func (o *Orchestrator) cachedStatus(deviceID string) (models.PlaybackState, bool) {
	o.statusMu.Lock()
	defer o.statusMu.Unlock()
	st, ok := o.status[deviceID]
	if !ok || o.now().Sub(st.ObservedAt) >= o.opts.StatusTTL {
		return models.PlaybackState{}, false
	}
	return st, true
}

// statusFresh issues the combined dump and parses it. Callers must hold the
// device slot.
func (o *Orchestrator) statusFresh(ctx context.Context, device *models.Device) (models.PlaybackState, error) {
	res, err := o.runCommand(ctx, device, models.Shell(dumpsys.StatusShellCommand))
	if err != nil {
		return models.UnknownState(o.now()), err
	}
	st := dumpsys.ParseStatus(res.Text(), o.now())
	o.statusMu.Lock()
	o.status[device.ID] = st
	o.statusMu.Unlock()
	return st, nil
}

// ListApps returns the device's streaming-app inventory, cached per device
// with a TTL and single-flight refresh. force bypasses the TTL.
func (o *Orchestrator) ListApps(ctx context.Context, deviceID string, force bool) (apps []models.AppEntry, err error) {
	start := o.now()
	defer func() { o.observe("list_apps", start, err) }()

	device, err := o.devices.Get(deviceID)
	if err != nil {
		return nil, err
	}
	release, err := o.acquire(ctx, deviceID)
	if err != nil {
		return nil, err
	}
	defer release()

	return o.apps.Apps(ctx, deviceID, force, o.scanner(device))
}

// scanner builds the inventory scan for a device: list packages, keep the
// streaming ones, attach display metadata.
func (o *Orchestrator) scanner(device *models.Device) ScanFunc {
	return func(ctx context.Context) ([]models.AppEntry, error) {
		res, err := o.runCommand(ctx, device, models.Shell("pm", "list", "packages"))
		if err != nil {
			return nil, err
		}
		var entries []models.AppEntry
		for _, pkg := range dumpsys.ParsePackages(res.Text()) {
			if resolver.IsStreamingPackage(pkg) {
				entries = append(entries, resolver.Entry(pkg))
			}
		}
		sort.Slice(entries, func(i, j int) bool { return entries[i].Name < entries[j].Name })
		return entries, nil
	}
}

// ListDevices reports every configured device with a liveness probe. Probes
// run in parallel; a slow device does not hold up the rest.
func (o *Orchestrator) ListDevices(ctx context.Context) []models.DeviceStatus {
	devices := o.devices.All()
	out := make([]models.DeviceStatus, len(devices))
	var wg sync.WaitGroup
	for i, d := range devices {
		wg.Add(1)
		go func(i int, d *models.Device) {
			defer wg.Done()
			out[i] = models.DeviceStatus{Device: *d, Online: o.conns.Probe(ctx, d)}
		}(i, d)
	}
	wg.Wait()
	return out
}

func (o *Orchestrator) observe(op string, start time.Time, err error) {
	o.metrics.ObserveOperation(op, resultLabel(err), o.now().Sub(start))
}
