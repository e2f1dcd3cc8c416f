// Package scan locates candidate source devices among the event nodes
// of the input subsystem.
package scan

import (
	"errors"
	"fmt"
	"path/filepath"
	"sort"
	"strings"

	"github.com/jochenvg/go-udev"
	"github.com/puzpuzpuz/xsync/v3"
	"go.uber.org/zap"

	"github.com/PhaethonH/scxrelay/internal/evdev"
)

// USBID is a vendor:product pair as printed by lsusb.
type USBID struct {
	Vendor  uint16 `json:"vendor"`
	Product uint16 `json:"product"`
}

// DefaultUSBID matches the gamepad half of the Steam Controller.
var DefaultUSBID = USBID{Vendor: 0x28de, Product: 0x11fc}

func (id USBID) String() string {
	return fmt.Sprintf("%04x:%04x", id.Vendor, id.Product)
}

// ParseUSBID parses "vvvv:pppp" with hexadecimal components.
func ParseUSBID(s string) (USBID, error) {
	var vendor, product uint16
	n, err := fmt.Sscanf(s, "%04x:%04x", &vendor, &product)
	if err != nil || n != 2 || len(s) != 9 {
		return USBID{}, fmt.Errorf("malformed USB id %q, want vvvv:pppp", s)
	}
	return USBID{Vendor: vendor, Product: product}, nil
}

// DeviceInfo describes one probed event node.
type DeviceInfo struct {
	Path string        `json:"path"`
	Name string        `json:"name"`
	ID   evdev.InputID `json:"id"`
}

// Matches reports whether the node carries the wanted USB identity.
func (d DeviceInfo) Matches(id USBID) bool {
	return d.ID.Vendor == id.Vendor && d.ID.Product == id.Product
}

// ErrNoMatch is returned when no enumerated node carries the wanted
// identity.
var ErrNoMatch = errors.New("no matching input device")

// Prober is the subset of the event-device handle the scanner needs to
// identify a node.
type Prober interface {
	Name() string
	ID() (evdev.InputID, error)
	Close() error
}

// Enumerator lists candidate event node paths.
type Enumerator func() ([]string, error)

// Opener opens one node for probing.
type Opener func(path string) (Prober, error)

type scannerOptions struct {
	enumerate Enumerator
	open      Opener
}

type Option func(*scannerOptions)

func WithEnumerator(e Enumerator) Option {
	return func(o *scannerOptions) {
		o.enumerate = e
	}
}

func WithOpener(open Opener) Option {
	return func(o *scannerOptions) {
		o.open = open
	}
}

// Scanner enumerates event nodes and probes their identity. Probe
// results are cached per path so repeated scans do not reopen nodes
// that already answered.
type Scanner struct {
	log   *zap.Logger
	opts  scannerOptions
	cache *xsync.MapOf[string, DeviceInfo]
}

func New(log *zap.Logger, opts ...Option) *Scanner {
	options := scannerOptions{
		enumerate: udevEnumerate,
		open: func(path string) (Prober, error) {
			return evdev.Open(path)
		},
	}
	for _, opt := range opts {
		opt(&options)
	}
	return &Scanner{
		log:   log,
		opts:  options,
		cache: xsync.NewMapOf[string, DeviceInfo](),
	}
}

// udevEnumerate lists the event nodes of the input subsystem.
func udevEnumerate() ([]string, error) {
	u := &udev.Udev{}
	e := u.NewEnumerate()
	e.AddMatchSubsystem("input")
	devices, err := e.Devices()
	if err != nil {
		return nil, fmt.Errorf("failed to enumerate input devices: %w", err)
	}
	var paths []string
	for _, dev := range devices {
		node := dev.Devnode()
		if node == "" || !strings.HasPrefix(filepath.Base(node), "event") {
			continue
		}
		paths = append(paths, node)
	}
	return paths, nil
}

// List probes every enumerated node and returns the results sorted by
// path. Nodes that cannot be opened or identified are skipped; stale
// cache entries for vanished nodes are dropped.
func (s *Scanner) List() ([]DeviceInfo, error) {
	paths, err := s.opts.enumerate()
	if err != nil {
		return nil, err
	}
	present := make(map[string]struct{}, len(paths))
	var infos []DeviceInfo
	for _, path := range paths {
		present[path] = struct{}{}
		info, ok := s.probe(path)
		if !ok {
			continue
		}
		infos = append(infos, info)
	}
	s.cache.Range(func(path string, _ DeviceInfo) bool {
		if _, ok := present[path]; !ok {
			s.cache.Delete(path)
		}
		return true
	})
	sort.Slice(infos, func(i, j int) bool {
		return infos[i].Path < infos[j].Path
	})
	return infos, nil
}

func (s *Scanner) probe(path string) (DeviceInfo, bool) {
	if info, ok := s.cache.Load(path); ok {
		return info, true
	}
	dev, err := s.opts.open(path)
	if err != nil {
		s.log.Debug("failed to open input device", zap.String("path", path), zap.Error(err))
		return DeviceInfo{}, false
	}
	defer dev.Close()
	id, err := dev.ID()
	if err != nil {
		s.log.Debug("failed to identify input device", zap.String("path", path), zap.Error(err))
		return DeviceInfo{}, false
	}
	info := DeviceInfo{Path: path, Name: dev.Name(), ID: id}
	s.cache.Store(path, info)
	return info, true
}

// FindFirst returns the lowest-path node carrying the wanted identity.
// A miss drops the probe cache and scans once more: a replugged device
// may have reused an event node that answered with another identity
// before.
func (s *Scanner) FindFirst(id USBID) (DeviceInfo, error) {
	for attempt := 0; attempt < 2; attempt++ {
		infos, err := s.List()
		if err != nil {
			return DeviceInfo{}, err
		}
		for _, info := range infos {
			if info.Matches(id) {
				return info, nil
			}
		}
		s.cache.Clear()
	}
	return DeviceInfo{}, fmt.Errorf("%w: %s", ErrNoMatch, id)
}
