// Package pktgen configures hardware packet generator applications.
//
// A Bank owns the packet generator of one switch. Each configured application occupies a disjoint
// packet buffer region and a distinct port, so that several applications can be enabled at once.
package pktgen

import (
	"context"
	"errors"
	"fmt"

	"github.com/dyso-testbed/dyso/core/logging"
	"github.com/dyso-testbed/dyso/pktgen/pktgendef"
	"go.uber.org/multierr"
	"go.uber.org/zap"
)

var logger = logging.New("pktgen")

// ErrConfigConflict indicates an application would collide with another application.
var ErrConfigConflict = errors.New("packet generator config conflict")

// Bank manages packet generator applications on a device.
type Bank struct {
	dev  pktgendef.Device
	apps []*App
}

// NewBank creates a Bank.
func NewBank(dev pktgendef.Device) *Bank {
	return &Bank{dev: dev}
}

// Apps returns configured applications in configuration order.
func (b *Bank) Apps() []*App {
	return append([]*App(nil), b.apps...)
}

// App returns configured application by ID, or nil.
func (b *Bank) App(id pktgendef.AppID) *App {
	for _, app := range b.apps {
		if app.cfg.AppID == id {
			return app
		}
	}
	return nil
}

// CheckConflict determines whether cfg can coexist with configured applications.
// An application may be reconfigured under its own ID only while it is disabled.
func (b *Bank) CheckConflict(cfg Config) error {
	for _, app := range b.apps {
		if app.cfg.AppID == cfg.AppID {
			if app.enabled {
				return fmt.Errorf("%w: %s is enabled", ErrConfigConflict, cfg.AppID)
			}
			continue
		}
		if app.cfg.Port() == cfg.Port() {
			return fmt.Errorf("%w: %s and %s both use port %s", ErrConfigConflict, cfg.AppID, app.cfg.AppID, cfg.Port())
		}
		if r, o := cfg.Region(), app.cfg.Region(); r.Overlaps(o) {
			return fmt.Errorf("%w: %s buffer %s overlaps %s buffer %s", ErrConfigConflict, cfg.AppID, r, app.cfg.AppID, o)
		}
	}
	return nil
}

// ValidateSet checks that a list of applications is valid and can be configured together.
func ValidateSet(list []Config) error {
	b := NewBank(nil)
	for _, cfg := range list {
		cfg.applyDefaults()
		if e := cfg.Validate(); e != nil {
			return fmt.Errorf("%s: %w", cfg.AppID, e)
		}
		if b.App(cfg.AppID) != nil {
			return fmt.Errorf("%w: %s appears twice", ErrConfigConflict, cfg.AppID)
		}
		if e := b.CheckConflict(cfg); e != nil {
			return e
		}
		b.apps = append(b.apps, &App{bank: b, cfg: cfg})
	}
	return nil
}

// Configure validates cfg, checks for conflicts, then writes the application to the device.
// No device operation is performed if validation or conflict checking fails.
func (b *Bank) Configure(ctx context.Context, cfg Config) (app *App, e error) {
	cfg.applyDefaults()
	if e = cfg.Validate(); e != nil {
		return nil, fmt.Errorf("%s: %w", cfg.AppID, e)
	}
	if e = b.CheckConflict(cfg); e != nil {
		return nil, e
	}
	data, e := cfg.BufferData()
	if e != nil {
		return nil, e
	}

	logEntry := logger.With(
		zap.Stringer("app", cfg.AppID),
		zap.Stringer("port", cfg.Port()),
		zap.Stringer("buffer", cfg.Region()),
	)
	if e = b.dev.WritePktBuffer(ctx, cfg.BufferOffset, data); e != nil {
		return nil, e
	}
	if e = b.dev.EnablePort(ctx, cfg.Port()); e != nil {
		return nil, e
	}
	if e = b.dev.ConfigureApp(ctx, cfg.AppID, cfg.AppConfig()); e != nil {
		return nil, e
	}
	if e = b.dev.CompleteOperations(ctx); e != nil {
		return nil, e
	}
	logEntry.Info("app configured", zap.Duration("timer", cfg.TimerPeriod.Duration()), zap.Int("length", cfg.PacketLength))

	app = &App{bank: b, cfg: cfg}
	for i, old := range b.apps {
		if old.cfg.AppID == cfg.AppID {
			b.apps[i] = app
			return app, nil
		}
	}
	b.apps = append(b.apps, app)
	return app, nil
}

// DisableAll disables every enabled application.
// It attempts all applications even if some fail.
func (b *Bank) DisableAll(ctx context.Context) error {
	errs := []error{}
	for _, app := range b.apps {
		errs = append(errs, app.Disable(ctx))
	}
	return multierr.Combine(errs...)
}

// App is a configured packet generator application.
type App struct {
	bank    *Bank
	cfg     Config
	enabled bool
}

// ID returns application ID.
func (app *App) ID() pktgendef.AppID {
	return app.cfg.AppID
}

// Config returns application config.
func (app *App) Config() Config {
	return app.cfg
}

// Enabled returns true if the application is, or may be, generating packets.
func (app *App) Enabled() bool {
	return app.enabled
}

// Enable starts packet generation.
// Enabling an enabled application is a no-op.
//
// If the device reports an error, the hardware state is unknown and the application is considered enabled,
// so that a later Disable still reaches the device.
func (app *App) Enable(ctx context.Context) error {
	if app.enabled {
		return nil
	}
	app.enabled = true
	if e := app.bank.dev.EnableApp(ctx, app.cfg.AppID); e != nil {
		return fmt.Errorf("enable %s: %w", app.cfg.AppID, e)
	}
	logger.Info("app enabled", zap.Stringer("app", app.cfg.AppID))
	return nil
}

// Disable stops packet generation.
// Disabling a disabled application is a no-op.
func (app *App) Disable(ctx context.Context) error {
	if !app.enabled {
		return nil
	}
	if e := app.bank.dev.DisableApp(ctx, app.cfg.AppID); e != nil {
		return fmt.Errorf("disable %s: %w", app.cfg.AppID, e)
	}
	app.enabled = false
	logger.Info("app disabled", zap.Stringer("app", app.cfg.AppID))
	return nil
}
