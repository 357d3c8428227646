// ABOUTME: Bot runtime: wires protocol adapter, backends, supervisor and directory
// ABOUTME: Run walks the startup stages and owns the ordered shutdown

package bot

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"sync"

	"github.com/2389/coven-bot/internal/config"
	"github.com/2389/coven-bot/internal/contact"
	"github.com/2389/coven-bot/internal/protocol"
	"github.com/2389/coven-bot/internal/supervisor"
	"github.com/2389/coven-bot/internal/transport"
)

// ErrUnsupportedProtocol is returned when the configured protocol has no factory.
var ErrUnsupportedProtocol = errors.New("unsupported protocol")

// Stage identifies where startup failed. Its code doubles as the process exit status.
type Stage int

const (
	StageUnsupportedProtocol Stage = -1
	StageBackendSetup        Stage = -2
	StageProtocolSetup       Stage = -3
	StageProbe               Stage = -4
)

// Code returns the numeric status for the stage.
func (s Stage) Code() int { return int(s) }

func (s Stage) String() string {
	switch s {
	case StageUnsupportedProtocol:
		return "unsupported protocol"
	case StageBackendSetup:
		return "backend setup"
	case StageProtocolSetup:
		return "protocol setup"
	case StageProbe:
		return "probe"
	default:
		return "stage " + strconv.Itoa(int(s))
	}
}

// StageError reports a failed startup stage.
type StageError struct {
	Stage Stage
	Err   error
}

func (e *StageError) Error() string {
	return fmt.Sprintf("%s failed (%d): %v", e.Stage, e.Stage.Code(), e.Err)
}

func (e *StageError) Unwrap() error { return e.Err }

// Handlers are the user callbacks. Each runs as an external unit and is
// cancelled when the bot shuts down. Nil handlers are skipped.
type Handlers struct {
	OnReady          func(ctx context.Context, b *Bot) error
	OnPrivateMessage func(ctx context.Context, b *Bot, msg *contact.PrivateMessage) error
	OnGroupMessage   func(ctx context.Context, b *Bot, msg *contact.GroupMessage) error
	OnPrivateRevoke  func(ctx context.Context, b *Bot, rv *PrivateRevoke) error
	OnGroupRevoke    func(ctx context.Context, b *Bot, rv *GroupRevoke) error
	OnNotice         func(ctx context.Context, b *Bot, n *Notice) error
}

// Bot is one run of the client runtime.
type Bot struct {
	cfg      *config.Config
	registry protocol.Registry
	handlers Handlers
	root     *slog.Logger // handed to subsystems, which scope it themselves
	logger   *slog.Logger

	mu            sync.Mutex
	stop          context.CancelFunc
	stopRequested bool

	// Set during Run before any unit starts.
	sup     *supervisor.Supervisor
	adapter protocol.Protocol
	dir     *contact.Directory
}

var _ protocol.Runtime = (*Bot)(nil)

// New creates a bot. Pass nil logger for default.
func New(cfg *config.Config, registry protocol.Registry, handlers Handlers, logger *slog.Logger) *Bot {
	if logger == nil {
		logger = slog.Default()
	}
	return &Bot{
		cfg:      cfg,
		registry: registry,
		handlers: handlers,
		root:     logger,
		logger:   logger.With("component", "bot"),
	}
}

// Directory returns the contact directory. It is nil before Run.
func (b *Bot) Directory() *contact.Directory { return b.dir }

// Protocol returns the active adapter. It is nil before Run.
func (b *Bot) Protocol() protocol.Protocol { return b.adapter }

// RequestStop asks a running bot to shut down. Safe from any goroutine.
// A stop requested before Run makes Run return nil without starting.
func (b *Bot) RequestStop() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.stopRequested = true
	if b.stop != nil {
		b.stop()
	}
}

// setStop installs cancel for RequestStop. It reports false if a stop was
// already requested.
func (b *Bot) setStop(cancel context.CancelFunc) bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.stop = cancel
	return !b.stopRequested
}

// Go runs work as an external unit, cancelled at shutdown.
func (b *Bot) Go(name string, work supervisor.Work) error {
	_, err := b.sup.Spawn(name, supervisor.External, work)
	return err
}

// Spawn runs work as a silent unit. Part of protocol.Runtime.
func (b *Bot) Spawn(name string, work supervisor.Work) error {
	_, err := b.sup.Spawn(name, supervisor.Silent, work)
	return err
}

// Run starts the bot and blocks until it stops. It returns nil after a
// clean stop, a *StageError when startup failed, or the shutdown errors.
func (b *Bot) Run(ctx context.Context) error {
	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()
	if !b.setStop(cancel) {
		b.logger.Info("stop requested before start")
		return nil
	}

	name := b.cfg.Bot.Protocol
	factory, ok := b.registry.Lookup(name)
	if !ok {
		err := &StageError{Stage: StageUnsupportedProtocol, Err: fmt.Errorf("%w: %q", ErrUnsupportedProtocol, name)}
		b.logger.Error("startup failed", "error", err)
		return err
	}

	b.sup = supervisor.New(runCtx, b.root)
	b.adapter = factory(b, b.root)
	b.dir = contact.NewDirectory(b.adapter, b.root)

	ware, err := transport.NewWare(b.adapter.RequiredBackends(), b.cfg.TransportSettings(), b.root)
	if err == nil {
		err = ware.Setup(runCtx)
	}
	if err != nil {
		serr := &StageError{Stage: StageBackendSetup, Err: err}
		b.logger.Error("startup failed", "error", serr)
		return serr
	}

	if err := b.adapter.Setup(runCtx, ware); err != nil {
		if cerr := ware.Cleanup(); cerr != nil {
			b.logger.Error("backend cleanup failed", "error", cerr)
		}
		serr := &StageError{Stage: StageProtocolSetup, Err: err}
		b.logger.Error("startup failed", "error", serr)
		return serr
	}

	commu, err := b.sup.Spawn("commu", supervisor.Silent, func(ctx context.Context, _ supervisor.Spawner) error {
		return ware.Run(ctx)
	})
	if err != nil {
		// Only possible if the supervisor is already draining.
		return errors.Join(err, b.shutdown(ware))
	}

	var stageErr *StageError
	if err := b.adapter.Probe(runCtx); err != nil {
		stageErr = &StageError{Stage: StageProbe, Err: err}
		b.logger.Error("probe failed", "error", err)
		b.RequestStop()
	} else {
		b.logger.Info("bot ready", "protocol", name)
		if b.handlers.OnReady != nil {
			if err := b.Go("on_ready", func(ctx context.Context, _ supervisor.Spawner) error {
				return b.handlers.OnReady(ctx, b)
			}); err != nil {
				b.logger.Warn("ready handler not started", "error", err)
			}
		}
	}

	<-commu.Done()
	b.logger.Info("shutting down")

	if err := b.shutdown(ware); err != nil {
		if stageErr != nil {
			b.logger.Error("shutdown failed", "error", err)
			return stageErr
		}
		return err
	}
	if stageErr != nil {
		return stageErr
	}
	return nil
}

// shutdown drains units, then tears down the adapter and the backends.
func (b *Bot) shutdown(ware *transport.Ware) error {
	var errs []error

	timeout := b.cfg.Runtime.DrainTimeout
	if timeout <= 0 {
		timeout = config.DefaultDrainTimeout
	}
	dctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()
	if err := b.sup.Drain(dctx); err != nil {
		errs = append(errs, fmt.Errorf("draining units: %w", err))
	}
	if err := b.adapter.Cleanup(dctx); err != nil {
		errs = append(errs, fmt.Errorf("protocol cleanup: %w", err))
	}
	if err := ware.Cleanup(); err != nil {
		errs = append(errs, fmt.Errorf("backend cleanup: %w", err))
	}
	return errors.Join(errs...)
}
