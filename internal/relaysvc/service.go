// Package relaysvc implements the event relay: it mirrors the source
// device's capability set onto a virtual device, then copies event
// records one at a time, surviving source disconnection.
package relaysvc

import (
	"context"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/PhaethonH/scxrelay/internal/evdev"
	"github.com/PhaethonH/scxrelay/internal/uinput"
	"go.uber.org/atomic"
	"go.uber.org/zap"
	"golang.org/x/sys/unix"
)

// Identity is what the virtual device advertises in place of the
// source's identity.
type Identity struct {
	Name    string
	Vendor  uint16
	Product uint16
	Version uint16
}

var defaultOptions = serviceOptions{
	pollTimeout:   100 * time.Millisecond,
	retryInterval: 100 * time.Millisecond,
	idleInterval:  time.Second,
	identity: Identity{
		Name:    "Xpad Relay (SteamController)",
		Vendor:  0xf055, // unofficial FOSS vendor id
		Product: 0x11fc,
		Version: 1,
	},
}

type serviceOptions struct {
	pollTimeout    time.Duration
	retryInterval  time.Duration
	idleInterval   time.Duration
	identity       Identity
	dropHomeButton bool
	sourcePath     string
	openSource     SourceOpener
}

type Option func(*serviceOptions)

// SourceOpener reopens the source device during recovery.
type SourceOpener func(path string) (Source, error)

func WithPollTimeout(d time.Duration) Option {
	return func(o *serviceOptions) {
		o.pollTimeout = d
	}
}

func WithRetryInterval(d time.Duration) Option {
	return func(o *serviceOptions) {
		o.retryInterval = d
	}
}

func WithIdleInterval(d time.Duration) Option {
	return func(o *serviceOptions) {
		o.idleInterval = d
	}
}

func WithIdentity(id Identity) Option {
	return func(o *serviceOptions) {
		if id.Name != "" {
			o.identity.Name = id.Name
		}
		if id.Vendor != 0 {
			o.identity.Vendor = id.Vendor
		}
		if id.Product != 0 {
			o.identity.Product = id.Product
		}
		if id.Version != 0 {
			o.identity.Version = id.Version
		}
	}
}

func WithHomeButtonFilter(on bool) Option {
	return func(o *serviceOptions) {
		o.dropHomeButton = on
	}
}

// WithReopen enables recovery: after a source failure the service
// reopens path with open instead of halting. A source supplied as an
// inherited descriptor has no path and idles in the failed state.
func WithReopen(path string, open SourceOpener) Option {
	return func(o *serviceOptions) {
		o.sourcePath = path
		o.openSource = open
	}
}

// Service owns the relay state machine. All methods except Halt and
// SetHomeButtonFilter must be called from the single relay goroutine.
type Service struct {
	log     *zap.Logger
	options serviceOptions

	state      atomic.Int32
	filterHome atomic.Bool

	src Source
	out Output

	caps    CapabilitySet
	created bool
	closed  bool
}

func New(log *zap.Logger, src Source, out Output, opts ...Option) *Service {
	options := defaultOptions
	for _, opt := range opts {
		opt(&options)
	}
	s := &Service{
		log:     log,
		options: options,
		src:     src,
		out:     out,
	}
	s.filterHome.Store(options.dropHomeButton)
	return s
}

func (s *Service) State() State {
	return State(s.state.Load())
}

// Halt requests shutdown. It is the only transition callable from
// outside the relay goroutine (the signal path) and touches nothing but
// the state cell.
func (s *Service) Halt() {
	s.state.Store(int32(StateHalt))
}

// SetHomeButtonFilter toggles dropping of the system/home button. Safe
// to call while the relay runs.
func (s *Service) SetHomeButtonFilter(on bool) {
	s.filterHome.Store(on)
}

// Capabilities returns the capability set mirrored at connect time.
func (s *Service) Capabilities() CapabilitySet {
	return s.caps
}

// Connect mirrors the source capabilities, builds the descriptor with
// the source's axis calibration, and creates the virtual device. Any
// error is fatal; the caller releases handles via Shutdown.
func (s *Service) Connect(ctx context.Context) error {
	if s.State() != StateInit {
		return errors.New("relay already connected")
	}
	caps, err := MirrorCapabilities(s.src, s.out)
	if err != nil {
		return err
	}
	s.caps = caps

	desc := &uinput.Descriptor{
		ID: evdev.InputID{
			BusType: evdev.BusVirtual,
			Vendor:  s.options.identity.Vendor,
			Product: s.options.identity.Product,
			Version: s.options.identity.Version,
		},
	}
	desc.SetName(s.options.identity.Name)
	if err := readCalibration(s.src, caps.Axes, desc); err != nil {
		return err
	}

	if err := s.out.Create(desc); err != nil {
		return err
	}
	s.created = true
	s.state.CompareAndSwap(int32(StateInit), int32(StateSteady))
	s.log.Info("virtual device created",
		zap.String("name", s.options.identity.Name),
		zap.Uint16("vendor", s.options.identity.Vendor),
		zap.Uint16("product", s.options.identity.Product),
		zap.Int("events", caps.Events.CountSet()),
		zap.Int("axes", caps.Axes.CountSet()),
		zap.Int("keys", caps.Keys.CountSet()))
	return nil
}

// Run drives the relay loop until halt or a fatal driver failure. The
// virtual device is destroyed on every exit path.
func (s *Service) Run(ctx context.Context) error {
	if s.State() == StateInit {
		return errors.New("relay not connected")
	}
	defer s.Shutdown()
	for {
		if s.observeHalt(ctx) {
			return nil
		}
		switch s.State() {
		case StateSteady:
			if err := s.relayOne(ctx); err != nil {
				return err
			}
		case StateFailed:
			s.reconnect(ctx)
		default:
			return nil
		}
	}
}

// observeHalt folds context cancellation into the state cell and
// reports whether the loop should exit. Checked at the top of every
// iteration and after every suspension point.
func (s *Service) observeHalt(ctx context.Context) bool {
	if ctx.Err() != nil {
		s.state.Store(int32(StateHalt))
	}
	return s.State() == StateHalt
}

// relayOne performs one bounded wait and at most one record copy.
// Source-side failures transition to StateFailed; only a driver write
// failure is returned, and it is fatal: a virtual device that no longer
// accepts events is unsafe to leave visible.
func (s *Service) relayOne(ctx context.Context) error {
	readiness, err := s.src.Wait(s.options.pollTimeout)
	if err != nil {
		s.log.Warn("failed to poll source device", zap.Error(err))
		s.failSource()
		return nil
	}
	if s.observeHalt(ctx) {
		return nil
	}
	switch readiness {
	case evdev.WaitTimeout:
		return nil
	case evdev.WaitHangUp:
		s.log.Info("source device hung up")
		s.failSource()
		return nil
	}

	ev, err := s.src.ReadEvent()
	switch {
	case err == nil:
	case errors.Is(err, io.EOF):
		s.log.Info("source device closed")
		s.failSource()
		return nil
	case errors.Is(err, evdev.ErrPartialRead):
		s.log.Warn("partial read from source device", zap.Error(err))
		s.failSource()
		return nil
	case errors.Is(err, unix.EINTR):
		// Interrupted read; the halt flag is observed on the next
		// iteration.
		return nil
	default:
		s.log.Warn("failed to read from source device", zap.Error(err))
		s.failSource()
		return nil
	}

	if s.dropEvent(ev) {
		return nil
	}
	if err := s.out.WriteEvent(ev); err != nil {
		return fmt.Errorf("virtual device rejected event: %w", err)
	}
	return nil
}

func (s *Service) dropEvent(ev evdev.Event) bool {
	return s.filterHome.Load() && ev.Type == evdev.EvKey && ev.Code == evdev.BtnMode
}

// failSource releases the source handle and enters StateFailed. The
// virtual device and its capability set stay valid across the outage.
func (s *Service) failSource() {
	if s.src != nil {
		s.src.Close()
		s.src = nil
	}
	s.state.CompareAndSwap(int32(StateSteady), int32(StateFailed))
}

// reconnect attempts one bounded-delay reopen of the source at its
// original path. Without a path it idles at a coarser interval, keeping
// the process responsive to halt.
func (s *Service) reconnect(ctx context.Context) {
	if s.options.openSource == nil || s.options.sourcePath == "" {
		s.sleep(ctx, s.options.idleInterval)
		return
	}
	s.sleep(ctx, s.options.retryInterval)
	if s.observeHalt(ctx) {
		return
	}
	src, err := s.options.openSource(s.options.sourcePath)
	if err != nil {
		s.log.Debug("source reopen failed",
			zap.String("path", s.options.sourcePath), zap.Error(err))
		return
	}
	s.src = src
	s.state.CompareAndSwap(int32(StateFailed), int32(StateSteady))
	s.log.Info("source device reconnected", zap.String("path", s.options.sourcePath))
}

func (s *Service) sleep(ctx context.Context, d time.Duration) {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
	case <-t.C:
	}
}

// Shutdown destroys the virtual device, if created, and releases both
// handles. Safe to call more than once and after a failed connect.
func (s *Service) Shutdown() {
	if s.closed {
		return
	}
	s.closed = true
	if s.created {
		s.created = false
		if err := s.out.Destroy(); err != nil {
			s.log.Warn("failed to destroy virtual device", zap.Error(err))
		} else {
			s.log.Info("virtual device destroyed")
		}
	}
	if s.src != nil {
		s.src.Close()
		s.src = nil
	}
	if s.out != nil {
		s.out.Close()
	}
}
