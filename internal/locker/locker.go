// Package locker ties the pieces together: it captures the outputs, locks
// the session, keeps a lock surface on every display and runs the password
// prompt until authentication succeeds.
package locker

import (
	"context"
	"errors"
	"fmt"
	"image"
	_ "image/png"
	"os"
	"time"

	"github.com/bnema/shaderlock/internal/auth"
	"github.com/bnema/shaderlock/internal/capture"
	"github.com/bnema/shaderlock/internal/config"
	"github.com/bnema/shaderlock/internal/keymap"
	"github.com/bnema/shaderlock/internal/lock"
	"github.com/bnema/shaderlock/internal/logger"
	"github.com/bnema/shaderlock/internal/protocols"
	"github.com/bnema/shaderlock/internal/render"
	"github.com/bnema/shaderlock/internal/session"
	"github.com/bnema/shaderlock/internal/shm"
	"github.com/bnema/shaderlock/internal/wayland"
)

// receiveTimeout bounds the wait for a single protocol response, such as one
// screencopy completing. A compositor that takes longer is treated as gone.
const receiveTimeout = time.Second

// frozenBrightness is where the idle fade bottoms out before redraws stop.
const frozenBrightness = 0.5

// modShift is the XKB modifier bit for shift in wl_keyboard modifier masks.
const modShift = 1 << 0

// view is one output's lock surface and how to draw it. Geometry lives on
// the surface itself, stamped there by the configure handler.
type view struct {
	surface  *lock.Surface
	renderer render.Renderer

	frameScheduled bool
}

// lockerState is the mutable state shared between dispatch callbacks and
// the application handler, accessed only through the guard.
type lockerState struct {
	shift     bool
	lastInput time.Time
}

// Locker runs one lock of the session from capture to unlock.
type Locker struct {
	cfg *config.Config

	conn    *wayland.Conn
	queue   *wayland.EventQueue
	pool    *shm.Pool
	grabber *capture.Grabber
	session *lock.Session
	authn   *auth.Authenticator
	logind  *session.Logind
	guard   *wayland.Guard[lockerState]

	icon     image.Image
	outputs  []*protocols.Output
	shots    map[*protocols.Output]*capture.Buffer
	views    []*view
	keyboard *protocols.Keyboard

	ready     bool
	unlocking bool
}

// New creates a locker from the given configuration.
func New(cfg *config.Config) *Locker {
	return &Locker{
		cfg:   cfg,
		shots: make(map[*protocols.Output]*capture.Buffer),
		guard: wayland.NewGuard(&lockerState{lastInput: time.Now()}),
	}
}

// poolSource adapts the shm pool to the capture layer's buffer allocation.
type poolSource struct {
	pool *shm.Pool
}

func (s poolSource) CreateBuffer(info capture.BufferInfo) (capture.BufferHandle, error) {
	return s.pool.CreateBuffer(int32(info.Width), int32(info.Height), int32(info.Stride), info.Format)
}

// Run locks the session and blocks until it is unlocked again. A nil return
// means authentication succeeded and the compositor confirmed the unlock.
func (l *Locker) Run(ctx context.Context) error {
	if path := l.cfg.Lock.ShaderPath; path != "" {
		shader, err := l.cfg.ResolveShader()
		if err != nil {
			logger.Warn("resolving shader", "err", err)
		} else {
			logger.Info("background shader selected", "path", shader)
		}
	}
	if path := l.cfg.Lock.IconPath; path != "" {
		icon, err := loadIcon(path)
		if err != nil {
			logger.Warn("loading icon", "err", err)
		} else {
			l.icon = icon
		}
	}

	backend, err := l.backend()
	if err != nil {
		return err
	}
	l.authn = auth.New(backend)

	l.queue = wayland.NewEventQueue()
	conn, err := wayland.Connect(l.queue)
	if err != nil {
		return err
	}
	l.conn = conn
	defer conn.Close()

	l.pool = shm.NewPool(conn.Shm())
	l.grabber = capture.NewGrabber(conn.Screencopy(), poolSource{l.pool}, conn)
	l.session = lock.NewSession(l.queue, conn.Compositor(), conn.LockManager())

	if logind, err := session.ConnectLogind(); err != nil {
		logger.Warn("logind unavailable", "err", err)
	} else {
		l.logind = logind
		defer logind.Close()
	}

	reactor := wayland.NewReactor(conn, l.cfg.Lock.PollTimeout)
	return reactor.Run(ctx, l.handle)
}

func (l *Locker) backend() (auth.Backend, error) {
	if l.cfg.Lock.SkipAuth {
		return auth.NewNullBackend(), nil
	}
	backend, err := auth.NewPamBackend(l.cfg.Lock.PamService)
	if err != nil {
		return nil, fmt.Errorf("setting up authentication: %w", err)
	}
	return backend, nil
}

// handle is the application handler run under the reactor.
func (l *Locker) handle(ctx context.Context) error {
	// The registry roundtrips queued the initial outputs and seat
	// capabilities before the reactor started.
	if err := l.drainStartupEvents(ctx); err != nil {
		return err
	}

	l.captureOutputs(ctx)

	if err := l.session.Lock(); err != nil {
		return err
	}
	logger.Debug("session lock requested")

	for {
		ev, err := l.queue.Next(ctx)
		if err != nil {
			return err
		}
		done, err := l.handleEvent(ev)
		if err != nil || done {
			return err
		}
	}
}

func (l *Locker) drainStartupEvents(ctx context.Context) error {
	for l.queue.Len() > 0 {
		ev, err := l.queue.Next(ctx)
		if err != nil {
			return err
		}
		if _, err := l.handleEvent(ev); err != nil {
			return err
		}
	}
	return nil
}

// captureOutputs screenshots every known output before the lock hides them.
// Failures degrade that output to a solid background instead of aborting:
// locking matters more than the picture.
func (l *Locker) captureOutputs(ctx context.Context) {
	pendings := make(map[*protocols.Output]*capture.Pending, len(l.outputs))
	for _, output := range l.outputs {
		p, err := l.grabber.Capture(output)
		if err != nil {
			logger.Warn("starting capture", "output", output.Name, "err", err)
			continue
		}
		pendings[output] = p
	}

	for output, p := range pendings {
		awaitCtx, cancel := context.WithTimeout(ctx, receiveTimeout)
		shot, err := p.Await(awaitCtx)
		cancel()
		if err != nil {
			logger.Warn("capturing output", "output", output.Name, "err", err)
			continue
		}
		l.shots[output] = shot
	}
	logger.Info("captured outputs", "total", len(l.outputs), "ok", len(l.shots))
}

// handleEvent processes one event. done reports the lock lifecycle is over
// and the handler should return success.
func (l *Locker) handleEvent(ev wayland.Event) (done bool, err error) {
	switch ev := ev.(type) {
	case wayland.NewOutput:
		return false, l.onNewOutput(ev.Output)

	case wayland.NewSeatCapability:
		if ev.Capability&protocols.SeatCapabilityKeyboard != 0 {
			return false, l.attachKeyboard(ev.Seat)
		}

	case wayland.RemoveSeatCapability:
		if ev.Capability&protocols.SeatCapabilityKeyboard != 0 && l.keyboard != nil {
			if err := l.keyboard.Release(); err != nil {
				logger.Warn("releasing keyboard", "err", err)
			}
			l.keyboard = nil
		}

	case wayland.SessionLocked:
		logger.Info("session locked")
		for _, output := range l.outputs {
			if err := l.createView(output); err != nil {
				return false, err
			}
		}

	case wayland.ConfigureLockSurface:
		return false, l.onConfigure(ev)

	case wayland.RedrawRequested:
		return false, l.onRedraw(ev.Surface)

	case wayland.KeyPressed:
		return l.onKey(ev)

	case wayland.SessionLockFinished:
		if l.unlocking {
			// Expected tail of our own unlock; ExitSync ends the run.
			return false, nil
		}
		if l.session.State() == lock.StateFailed {
			return false, fmt.Errorf("%w: lock request refused", lock.ErrSessionFinished)
		}
		return false, fmt.Errorf("%w: lock revoked while held", lock.ErrSessionFinished)

	case wayland.ExitSync:
		if !l.unlocking {
			logger.Warn("unexpected exit sync")
			return false, nil
		}
		logger.Info("session unlocked")
		return true, nil
	}
	return false, nil
}

func (l *Locker) onNewOutput(output *protocols.Output) error {
	l.outputs = append(l.outputs, output)
	if l.session.State() != lock.StateLocked {
		return nil
	}
	// Hotplugged while locked: it must be covered immediately, and there is
	// no pre-lock content to show for it.
	return l.createView(output)
}

func (l *Locker) attachKeyboard(seat *protocols.Seat) error {
	if l.keyboard != nil {
		return nil
	}
	kb, err := seat.GetKeyboard()
	if err != nil {
		return fmt.Errorf("acquiring keyboard: %w", err)
	}
	l.keyboard = kb

	kb.SetModifiersHandler(func(depressed, latched, locked, group uint32) {
		shift := (depressed|latched)&modShift != 0
		l.guard.Access(func(st *lockerState) {
			st.shift = shift
		})
	})
	kb.SetKeyHandler(func(serial, t, key, state uint32) {
		if state != protocols.KeyStatePressed {
			return
		}
		var shift bool
		l.guard.Access(func(st *lockerState) {
			shift = st.shift
			st.lastInput = time.Now()
		})
		l.queue.Push(wayland.KeyPressed{Code: key, Shift: shift})
	})
	return nil
}

func (l *Locker) createView(output *protocols.Output) error {
	surface, err := l.session.CreateSurface(output)
	if err != nil {
		return fmt.Errorf("covering output %d: %w", output.Name, err)
	}

	var renderer render.Renderer
	if shot, ok := l.shots[output]; ok {
		renderer = render.NewScreenshot(shot, l.icon)
	} else {
		renderer = &render.Solid{B: 0x20, G: 0x20, R: 0x20}
	}
	l.views = append(l.views, &view{surface: surface, renderer: renderer})
	return nil
}

func (l *Locker) onConfigure(ev wayland.ConfigureLockSurface) error {
	v := l.viewByLockSurface(ev.Surface)
	if v == nil {
		logger.Warn("configure for unknown lock surface")
		return nil
	}
	if err := l.renderView(v); err != nil {
		return err
	}

	if !l.ready {
		l.ready = true
		session.NotifyReady()
		if l.logind != nil {
			if err := l.logind.SetLockedHint(true); err != nil {
				logger.Warn("setting locked hint", "err", err)
			}
		}
	}
	return nil
}

func (l *Locker) onRedraw(surface *protocols.Surface) error {
	v := l.viewByWlSurface(surface)
	if v == nil {
		return nil
	}
	v.frameScheduled = false
	return l.renderView(v)
}

// renderView draws one frame for the view and, while the fade is still
// progressing, schedules the next one.
func (l *Locker) renderView(v *view) error {
	if !v.surface.Configured() {
		return nil
	}
	width, height := v.surface.Size()
	if width == 0 || height == 0 {
		return nil
	}

	var idle time.Duration
	l.guard.Access(func(st *lockerState) {
		idle = time.Since(st.lastInput)
	})
	brightness, frozen := l.fade(idle)

	stride := width * 4
	buf, err := l.pool.CreateBuffer(int32(width), int32(height), int32(stride), protocols.FormatXrgb8888)
	if err != nil {
		return fmt.Errorf("allocating frame buffer: %w", err)
	}
	if err := v.renderer.Render(buf.Bytes(), width, height, stride, brightness); err != nil {
		buf.Destroy()
		return fmt.Errorf("rendering frame: %w", err)
	}

	// The compositor owns the buffer until it signals release.
	wlBuf := buf.WlBuffer()
	wlBuf.SetReleaseHandler(func() {
		if err := buf.Destroy(); err != nil {
			logger.Warn("destroying frame buffer", "err", err)
		}
	})

	wl := v.surface.Wl()
	if err := wl.Attach(wlBuf, 0, 0); err != nil {
		return fmt.Errorf("attaching buffer: %w", err)
	}
	if err := wl.Damage(0, 0, int32(width), int32(height)); err != nil {
		return fmt.Errorf("damaging surface: %w", err)
	}
	if !frozen && !v.frameScheduled {
		if err := l.scheduleFrame(v); err != nil {
			return err
		}
	}
	if err := wl.Commit(); err != nil {
		return fmt.Errorf("committing surface: %w", err)
	}
	return l.conn.Flush()
}

func (l *Locker) scheduleFrame(v *view) error {
	cb, err := v.surface.Wl().Frame()
	if err != nil {
		return fmt.Errorf("requesting frame callback: %w", err)
	}
	wl := v.surface.Wl()
	cb.SetDoneHandler(func(uint32) {
		l.queue.Push(wayland.RedrawRequested{Surface: wl})
	})
	v.frameScheduled = true
	return nil
}

// fade maps idle time to brightness. Full brightness until the fade window
// opens, a linear slide down to frozenBrightness across it, then redraws
// stop entirely until the next keypress.
func (l *Locker) fade(idle time.Duration) (brightness float64, frozen bool) {
	freezeAfter := l.cfg.Lock.FreezeAfter
	fadeBefore := l.cfg.Lock.FadeBefore
	if freezeAfter <= 0 {
		return 1, false
	}
	if idle >= freezeAfter {
		return frozenBrightness, true
	}
	fadeStart := freezeAfter - fadeBefore
	if fadeBefore <= 0 || idle <= fadeStart {
		return 1, false
	}
	progress := float64(idle-fadeStart) / float64(fadeBefore)
	return 1 - (1-frozenBrightness)*progress, false
}

func (l *Locker) onKey(ev wayland.KeyPressed) (done bool, err error) {
	// Any key wakes frozen views back up.
	for _, v := range l.views {
		if !v.frameScheduled && v.surface.Configured() {
			if err := l.scheduleFrame(v); err != nil {
				return false, err
			}
			if err := v.surface.Wl().Commit(); err != nil {
				return false, fmt.Errorf("committing surface: %w", err)
			}
		}
	}

	key := keymap.Decode(ev.Code, ev.Shift)
	switch key.Action {
	case keymap.ActionChar:
		l.authn.Push(key.Rune)
	case keymap.ActionBackspace:
		l.authn.Pop()
	case keymap.ActionEscape:
		l.authn.Clear()
	case keymap.ActionSubmit:
		if err := l.authn.Authenticate(); err != nil {
			if errors.Is(err, auth.ErrAuthFailed) {
				logger.Info("authentication failed")
				return false, nil
			}
			logger.Error("authentication error", "err", err)
			return false, nil
		}
		return false, l.unlock()
	}
	return false, nil
}

func (l *Locker) unlock() error {
	if l.logind != nil {
		if err := l.logind.SetLockedHint(false); err != nil {
			logger.Warn("clearing locked hint", "err", err)
		}
	}
	if err := l.session.Unlock(l.conn.ExitSync); err != nil {
		return err
	}
	l.unlocking = true
	return nil
}

func (l *Locker) viewByLockSurface(s *protocols.SessionLockSurface) *view {
	for _, v := range l.views {
		if v.surface.LockSurface() == s {
			return v
		}
	}
	return nil
}

func (l *Locker) viewByWlSurface(s *protocols.Surface) *view {
	for _, v := range l.views {
		if v.surface.Wl() == s {
			return v
		}
	}
	return nil
}

func loadIcon(path string) (image.Image, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	img, _, err := image.Decode(f)
	if err != nil {
		return nil, fmt.Errorf("decoding %q: %w", path, err)
	}
	return img, nil
}
