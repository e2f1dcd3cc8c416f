// Package relay wires the scanner, the config watcher, and the relay
// state machine into one runnable unit.
package relay

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"golang.org/x/sync/errgroup"

	"github.com/PhaethonH/scxrelay/internal/configsvc"
	"github.com/PhaethonH/scxrelay/internal/evdev"
	"github.com/PhaethonH/scxrelay/internal/relaysvc"
	"github.com/PhaethonH/scxrelay/internal/scan"
	"github.com/PhaethonH/scxrelay/internal/uinput"
)

type Relay struct {
	config Config
	log    *zap.Logger

	configSvc *configsvc.Service
	scanner   *scan.Scanner

	mu  sync.Mutex
	svc *relaysvc.Service
}

func New(config Config) (*Relay, error) {
	loggerConfig := zap.NewDevelopmentConfig()
	loggerConfig.EncoderConfig.EncodeTime = zapcore.TimeEncoderOfLayout("15:04:05.000000000")
	loggerConfig.EncoderConfig.EncodeLevel = zapcore.CapitalColorLevelEncoder
	if !config.Debug {
		loggerConfig.Level = zap.NewAtomicLevelAt(zap.InfoLevel)
	}
	logger, err := loggerConfig.Build()
	if err != nil {
		return nil, fmt.Errorf("failed to create logger: %w", err)
	}

	if config.UinputPath == "" {
		config.UinputPath = DefaultUinputPath
	}
	if config.USBID == (scan.USBID{}) {
		config.USBID = scan.DefaultUSBID
	}

	return &Relay{
		config:    config,
		log:       logger,
		configSvc: configsvc.New(logger.Named("config")),
		scanner:   scan.New(logger.Named("scan")),
	}, nil
}

func (r *Relay) Close() error {
	r.log.Sync()
	return nil
}

// ListDevices probes the event nodes visible to the scanner.
func (r *Relay) ListDevices() ([]scan.DeviceInfo, error) {
	return r.scanner.List()
}

// Run resolves the source and driver handles, creates the virtual
// device, and relays events until the context is cancelled or the
// driver fails.
func (r *Relay) Run(ctx context.Context) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	group, groupCtx := errgroup.WithContext(ctx)
	group.Go(func() error {
		return r.configSvc.Start(groupCtx)
	})
	select {
	case <-groupCtx.Done():
		return group.Wait()
	case <-r.configSvc.Ready():
	}

	fileConfig, err := r.registerFileConfig()
	if err != nil {
		return err
	}

	src, sourcePath, err := r.openSource(fileConfig)
	if err != nil {
		return err
	}
	out, err := r.openOutput()
	if err != nil {
		src.Close()
		return err
	}

	opts := []relaysvc.Option{
		relaysvc.WithIdentity(fileConfig.identity()),
		relaysvc.WithIdentity(r.config.Identity),
		relaysvc.WithHomeButtonFilter(r.filterEnabled(fileConfig)),
	}
	if sourcePath != "" {
		opts = append(opts, relaysvc.WithReopen(sourcePath, func(path string) (relaysvc.Source, error) {
			return evdev.Open(path)
		}))
	}

	svc := relaysvc.New(r.log.Named("relay"), src, out, opts...)
	if err := svc.Connect(groupCtx); err != nil {
		svc.Shutdown()
		cancel()
		group.Wait()
		return fmt.Errorf("failed to connect relay: %w", err)
	}
	r.mu.Lock()
	r.svc = svc
	r.mu.Unlock()

	group.Go(func() error {
		defer cancel() // the watcher has nothing left to serve
		return svc.Run(groupCtx)
	})
	if err := group.Wait(); err != nil {
		return fmt.Errorf("relay failed: %w", err)
	}
	return nil
}

// registerFileConfig loads relay.yml, if configured, and arranges for
// the filter toggle to apply live on rewrite. Identity changes need a
// restart: the virtual device is created once.
func (r *Relay) registerFileConfig() (FileConfig, error) {
	if r.config.ConfigFile == "" {
		return FileConfig{}, nil
	}
	fileConfig, err := configsvc.Register(r.configSvc, r.config.ConfigFile, FileConfig{},
		func(fc FileConfig, err error) {
			if err != nil {
				r.log.Error("failed to reload config", zap.Error(err))
				return
			}
			r.mu.Lock()
			defer r.mu.Unlock()
			if r.svc != nil && fc.FilterHomeButton != nil {
				r.svc.SetHomeButtonFilter(*fc.FilterHomeButton)
				r.log.Info("home button filter updated", zap.Bool("enabled", *fc.FilterHomeButton))
			}
		})
	if err != nil {
		return FileConfig{}, fmt.Errorf("failed to register relay config: %w", err)
	}
	return fileConfig, nil
}

func (r *Relay) filterEnabled(fc FileConfig) bool {
	if fc.FilterHomeButton != nil {
		return *fc.FilterHomeButton
	}
	return r.config.FilterHomeButton
}

// openSource resolves the relay input in order of preference: an
// inherited descriptor, an explicit path, then a scan by USB identity.
func (r *Relay) openSource(fc FileConfig) (relaysvc.Source, string, error) {
	if r.config.SourceFile != nil {
		r.log.Info("using inherited source descriptor")
		return evdev.FromFile(r.config.SourceFile), "", nil
	}
	if r.config.SourcePath != "" {
		dev, err := evdev.Open(r.config.SourcePath)
		if err != nil {
			return nil, "", fmt.Errorf("failed to open source device: %w", err)
		}
		return dev, r.config.SourcePath, nil
	}
	if !r.config.AutoScan {
		return nil, "", errors.New("no source device given and scanning disabled")
	}
	id := r.config.USBID
	if fc.USBID != "" {
		parsed, err := scan.ParseUSBID(fc.USBID)
		if err != nil {
			return nil, "", err
		}
		id = parsed
	}
	info, err := r.scanner.FindFirst(id)
	if err != nil {
		return nil, "", err
	}
	r.log.Info("scanned source device",
		zap.String("path", info.Path), zap.String("name", info.Name))
	dev, err := evdev.Open(info.Path)
	if err != nil {
		return nil, "", fmt.Errorf("failed to open source device: %w", err)
	}
	return dev, info.Path, nil
}

func (r *Relay) openOutput() (relaysvc.Output, error) {
	if r.config.UinputFile != nil {
		r.log.Info("using inherited uinput descriptor")
		return uinput.FromFile(r.config.UinputFile), nil
	}
	h, err := uinput.Open(r.config.UinputPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open uinput: %w", err)
	}
	return h, nil
}

// AxisCaps is one row of a capability dump.
type AxisCaps struct {
	Code int           `json:"code"`
	Info evdev.AbsInfo `json:"info"`
}

// DeviceCaps is the JSON shape of a capability dump.
type DeviceCaps struct {
	Path   string        `json:"path"`
	Name   string        `json:"name"`
	ID     evdev.InputID `json:"id"`
	Events []int         `json:"events"`
	Keys   []int         `json:"keys"`
	Axes   []AxisCaps    `json:"axes"`
}

// DescribeDevice opens one event node and dumps its identity,
// capability sets, and axis calibration.
func (r *Relay) DescribeDevice(path string) (DeviceCaps, error) {
	dev, err := evdev.Open(path)
	if err != nil {
		return DeviceCaps{}, err
	}
	defer dev.Close()

	caps := DeviceCaps{Path: path, Name: dev.Name()}
	if caps.ID, err = dev.ID(); err != nil {
		return DeviceCaps{}, err
	}
	events, err := dev.EventBits()
	if err != nil {
		return DeviceCaps{}, err
	}
	events.EachSet(func(code int) bool {
		caps.Events = append(caps.Events, code)
		return true
	})
	keys, err := dev.KeyBits()
	if err != nil {
		return DeviceCaps{}, err
	}
	keys.EachSet(func(code int) bool {
		caps.Keys = append(caps.Keys, code)
		return true
	})
	axes, err := dev.AbsBits()
	if err != nil {
		return DeviceCaps{}, err
	}
	var infoErr error
	axes.EachSet(func(code int) bool {
		info, err := dev.AbsInfo(code)
		if err != nil {
			infoErr = err
			return false
		}
		caps.Axes = append(caps.Axes, AxisCaps{Code: code, Info: info})
		return true
	})
	if infoErr != nil {
		return DeviceCaps{}, infoErr
	}
	return caps, nil
}
