// ABOUTME: oicq-webapi protocol adapter: setup, probe and push frame dispatch
// ABOUTME: Inbound frames are deduplicated and handed to the runtime as silent units

package webapi

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/samber/lo"

	"github.com/2389/coven-bot/internal/contact"
	"github.com/2389/coven-bot/internal/dedupe"
	"github.com/2389/coven-bot/internal/protocol"
	"github.com/2389/coven-bot/internal/supervisor"
	"github.com/2389/coven-bot/internal/transport"
)

// Name is the protocol name used in configuration.
const Name = "oicq-webapi"

const (
	workerName    = "push_event_worker"
	sweepInterval = time.Minute
)

var (
	// ErrUnexpectedResponse is returned when the gateway answers with
	// something other than the expected JSON document.
	ErrUnexpectedResponse = errors.New("unexpected response from gateway")
	// ErrRemoteStatus is returned when the gateway reports a non-zero status.
	ErrRemoteStatus = errors.New("gateway returned error status")
	// ErrNotSetUp is returned by calls made before Setup or after Cleanup.
	ErrNotSetUp = errors.New("adapter not set up")
)

// Adapter speaks the oicq-webapi protocol.
type Adapter struct {
	rt     protocol.Runtime
	logger *slog.Logger
	seen   *dedupe.Window

	mu          sync.RWMutex
	http        *transport.HTTPClient
	stopJanitor context.CancelFunc
	janitorDone chan struct{}
}

var _ protocol.Protocol = (*Adapter)(nil)

// New creates an adapter bound to rt.
func New(rt protocol.Runtime, logger *slog.Logger) *Adapter {
	if logger == nil {
		logger = slog.Default()
	}
	return &Adapter{
		rt:     rt,
		logger: logger.With("component", "webapi"),
		seen:   dedupe.New(dedupe.DefaultTTL, dedupe.DefaultMaxSize),
	}
}

// Factory builds adapters for a protocol.Registry.
func Factory(rt protocol.Runtime, logger *slog.Logger) protocol.Protocol {
	return New(rt, logger)
}

// Register adds the adapter to reg under Name.
func Register(reg protocol.Registry) {
	reg[Name] = Factory
}

func (a *Adapter) Name() string { return Name }

func (a *Adapter) RequiredBackends() []transport.Kind {
	return []transport.Kind{transport.KindHTTPClient, transport.KindWSClient}
}

// Setup takes the HTTP client from ware and subscribes to the push channel.
func (a *Adapter) Setup(_ context.Context, ware *transport.Ware) error {
	if ware.HTTP() == nil || ware.WS() == nil {
		return fmt.Errorf("%w: need %v", transport.ErrUnsupportedBackend, a.RequiredBackends())
	}
	ware.WS().OnText(a.handleFrame)

	jctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		defer close(done)
		a.seen.Janitor(jctx, sweepInterval)
	}()

	a.mu.Lock()
	a.http = ware.HTTP()
	a.stopJanitor = cancel
	a.janitorDone = done
	a.mu.Unlock()
	return nil
}

// Cleanup detaches from the HTTP client and stops the dedupe janitor.
func (a *Adapter) Cleanup(_ context.Context) error {
	a.mu.Lock()
	a.http = nil
	stop, done := a.stopJanitor, a.janitorDone
	a.stopJanitor, a.janitorDone = nil, nil
	a.mu.Unlock()

	if stop != nil {
		stop()
		<-done
	}
	return nil
}

func (a *Adapter) client() (*transport.HTTPClient, error) {
	a.mu.RLock()
	defer a.mu.RUnlock()
	if a.http == nil {
		return nil, ErrNotSetUp
	}
	return a.http, nil
}

// Probe checks that the gateway identifies itself as oicq-webapi.
func (a *Adapter) Probe(ctx context.Context) error {
	c, err := a.client()
	if err != nil {
		return err
	}
	resp, err := c.Get(ctx, "/", nil)
	if err != nil {
		return fmt.Errorf("probing gateway: %w", err)
	}
	if !resp.IsJSON() {
		return fmt.Errorf("%w: probe content type %q", ErrUnexpectedResponse, resp.ContentType)
	}
	var info probeInfo
	if err := resp.JSON(&info); err != nil {
		return fmt.Errorf("%w: %w", ErrUnexpectedResponse, err)
	}
	if info.Name != Name {
		return fmt.Errorf("%w: gateway name %q", ErrUnexpectedResponse, info.Name)
	}
	a.logger.Info("remote version", "version", info.Version)
	return nil
}

// handleFrame runs on the push channel reader and must not block.
func (a *Adapter) handleFrame(text string) {
	var f frame
	if err := json.Unmarshal([]byte(text), &f); err != nil {
		a.logger.Error("malformed frame", "error", err)
		return
	}

	var work supervisor.Work
	switch f.Type {
	case frameMessage:
		var d messageData
		if err := json.Unmarshal(f.Data, &d); err != nil {
			a.logger.Error("malformed msg frame", "error", err)
			return
		}
		if a.duplicate(frameMessage, d.MsgID) {
			return
		}
		work = func(ctx context.Context, _ supervisor.Spawner) error {
			return a.deliverMessage(ctx, d)
		}
	case frameRevoke:
		var d revokeData
		if err := json.Unmarshal(f.Data, &d); err != nil {
			a.logger.Error("malformed revoke frame", "error", err)
			return
		}
		if a.duplicate(frameRevoke, d.MsgID) {
			return
		}
		work = func(ctx context.Context, _ supervisor.Spawner) error {
			return a.deliverRevoke(ctx, d)
		}
	case frameEvent:
		var d eventData
		if err := json.Unmarshal(f.Data, &d); err != nil {
			a.logger.Error("malformed event frame", "error", err)
			return
		}
		ev := d.toEvent()
		if !ev.Kind.Known() {
			a.logger.Warn("unsupported event type", "type", d.Type)
			return
		}
		work = func(ctx context.Context, _ supervisor.Spawner) error {
			a.rt.DeliverEvent(ctx, ev)
			return nil
		}
	default:
		a.logger.Debug("ignoring frame", "type", f.Type)
		return
	}

	if err := a.rt.Spawn(workerName, work); err != nil {
		a.logger.Debug("frame not delivered", "type", f.Type, "error", err)
	}
}

// duplicate reports whether a frame with msgID was already handled. Frames
// without an id cannot be matched and are never treated as duplicates.
func (a *Adapter) duplicate(kind, msgID string) bool {
	if msgID == "" {
		return false
	}
	if a.seen.Seen(dedupe.Key(kind, msgID)) {
		a.logger.Debug("dropping duplicate frame", "type", kind, "msg_id", msgID)
		return true
	}
	return false
}

func (a *Adapter) content(segs []wireSegment) contact.Content {
	return lo.FilterMap(segs, func(s wireSegment, _ int) (contact.Segment, bool) {
		seg, ok := s.toSegment()
		if !ok {
			a.logger.Error("unsupported msg segment", "type", s.Type)
		}
		return seg, ok
	})
}

func (a *Adapter) deliverMessage(ctx context.Context, d messageData) error {
	switch d.Type {
	case channelPrivate:
		a.rt.DeliverPrivateMessage(ctx, protocol.PrivateMessageContext{
			Time:        unixTime(d.Time),
			SenderID:    d.Sender,
			SenderNick:  d.SenderNick,
			MessageID:   d.MsgID,
			Content:     a.content(d.MsgContent),
			Reply:       d.Reply.toReply(),
			Known:       d.Known,
			ChannelID:   d.Channel,
			ChannelName: d.ChannelName,
		})
	case channelGroup:
		a.rt.DeliverGroupMessage(ctx, protocol.GroupMessageContext{
			Time:       unixTime(d.Time),
			SenderID:   d.Sender,
			SenderNick: d.SenderNick,
			GroupID:    d.Channel,
			GroupName:  d.ChannelName,
			MessageID:  d.MsgID,
			Content:    a.content(d.MsgContent),
			Reply:      d.Reply.toReply(),
			Anonymous:  !d.Known,
		})
	default:
		return fmt.Errorf("%w: msg.type %q", ErrUnexpectedResponse, d.Type)
	}
	return nil
}

func (a *Adapter) deliverRevoke(ctx context.Context, d revokeData) error {
	switch d.Type {
	case channelPrivate:
		a.rt.DeliverPrivateRevoke(ctx, protocol.PrivateRevokeContext{
			Time:      unixTime(d.Time),
			RevokerID: d.Revoker,
			ChannelID: d.Channel,
			MessageID: d.MsgID,
			Known:     d.Known,
		})
	case channelGroup:
		a.rt.DeliverGroupRevoke(ctx, protocol.GroupRevokeContext{
			Time:      unixTime(d.Time),
			RevokerID: d.Revoker,
			GroupID:   d.Channel,
			MessageID: d.MsgID,
			Anonymous: !d.Known,
		})
	default:
		return fmt.Errorf("%w: revoke.type %q", ErrUnexpectedResponse, d.Type)
	}
	return nil
}
