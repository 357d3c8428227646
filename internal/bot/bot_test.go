// ABOUTME: Tests for the bot runtime's startup stages, delivery and shutdown.
// ABOUTME: Runs the real webapi adapter against the in-process fake gateway.

package bot

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"github.com/2389/coven-bot/internal/config"
	"github.com/2389/coven-bot/internal/contact"
	"github.com/2389/coven-bot/internal/gatewaytest"
	"github.com/2389/coven-bot/internal/protocol"
	"github.com/2389/coven-bot/internal/protocol/webapi"
	"github.com/2389/coven-bot/internal/transport"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

func testConfig(gw *gatewaytest.Server) *config.Config {
	ep := gw.Endpoint()
	return &config.Config{
		Bot:     config.BotConfig{Protocol: webapi.Name},
		HTTP:    config.HTTPConfig{Host: ep.Host, Port: ep.Port, RequestTimeout: 2 * time.Second},
		WS:      config.WSConfig{Host: ep.Host, Port: ep.Port, ReconnectInterval: 5 * time.Millisecond},
		Runtime: config.RuntimeConfig{DrainTimeout: 2 * time.Second},
	}
}

func testRegistry() protocol.Registry {
	reg := protocol.Registry{}
	webapi.Register(reg)
	return reg
}

// running is a bot started in the background that signals readiness.
type running struct {
	bot  *Bot
	done chan error
}

func startBot(t *testing.T, gw *gatewaytest.Server, h Handlers) *running {
	t.Helper()
	ready := make(chan struct{})
	userReady := h.OnReady
	h.OnReady = func(ctx context.Context, b *Bot) error {
		close(ready)
		if userReady != nil {
			return userReady(ctx, b)
		}
		return nil
	}

	r := &running{bot: New(testConfig(gw), testRegistry(), h, nil), done: make(chan error, 1)}
	go func() { r.done <- r.bot.Run(context.Background()) }()

	select {
	case <-ready:
	case err := <-r.done:
		t.Fatalf("bot stopped during startup: %v", err)
	case <-time.After(2 * time.Second):
		t.Fatal("bot did not become ready")
	}
	require.Eventually(t, func() bool { return gw.Connected() == 1 }, time.Second, time.Millisecond)
	return r
}

func (r *running) stop(t *testing.T) {
	t.Helper()
	r.bot.RequestStop()
	select {
	case err := <-r.done:
		require.NoError(t, err)
	case <-time.After(3 * time.Second):
		t.Fatal("bot did not stop")
	}
}

func TestBot_Run_UnsupportedProtocol(t *testing.T) {
	gw := gatewaytest.New(t)
	cfg := testConfig(gw)
	cfg.Bot.Protocol = "carrier-pigeon"

	err := New(cfg, testRegistry(), Handlers{}, nil).Run(context.Background())

	var serr *StageError
	require.ErrorAs(t, err, &serr)
	assert.Equal(t, -1, serr.Stage.Code())
	assert.ErrorIs(t, err, ErrUnsupportedProtocol)
}

func TestBot_Run_BackendSetupFailure(t *testing.T) {
	gw := gatewaytest.New(t)
	gw.RejectUpgrades(1)

	err := New(testConfig(gw), testRegistry(), Handlers{}, nil).Run(context.Background())

	var serr *StageError
	require.ErrorAs(t, err, &serr)
	assert.Equal(t, StageBackendSetup, serr.Stage)
	assert.Equal(t, -2, serr.Stage.Code())
	assert.ErrorIs(t, err, transport.ErrSetupFailed)
}

var errBrokenAdapter = errors.New("adapter refuses to start")

type brokenSetup struct{ *webapi.Adapter }

func (brokenSetup) Setup(context.Context, *transport.Ware) error { return errBrokenAdapter }

func TestBot_Run_ProtocolSetupFailure(t *testing.T) {
	gw := gatewaytest.New(t)
	reg := protocol.Registry{
		webapi.Name: func(rt protocol.Runtime, _ *slog.Logger) protocol.Protocol {
			return brokenSetup{webapi.New(rt, nil)}
		},
	}

	err := New(testConfig(gw), reg, Handlers{}, nil).Run(context.Background())

	var serr *StageError
	require.ErrorAs(t, err, &serr)
	assert.Equal(t, -3, serr.Stage.Code())
	assert.ErrorIs(t, err, errBrokenAdapter)
	assert.Eventually(t, func() bool { return gw.Connected() == 0 }, time.Second, time.Millisecond,
		"push channel must be closed after a failed protocol setup")
}

func TestBot_Run_ProbeFailure(t *testing.T) {
	gw := gatewaytest.New(t)
	gw.SetProbe("some-other-gateway", "9.9")

	readyCalled := make(chan struct{}, 1)
	b := New(testConfig(gw), testRegistry(), Handlers{
		OnReady: func(context.Context, *Bot) error {
			readyCalled <- struct{}{}
			return nil
		},
	}, nil)

	done := make(chan error, 1)
	go func() { done <- b.Run(context.Background()) }()

	select {
	case err := <-done:
		var serr *StageError
		require.ErrorAs(t, err, &serr)
		assert.Equal(t, StageProbe, serr.Stage)
		assert.Equal(t, -4, serr.Stage.Code())
		assert.ErrorIs(t, err, webapi.ErrUnexpectedResponse)
	case <-time.After(3 * time.Second):
		t.Fatal("bot did not stop after a failed probe")
	}
	assert.Empty(t, readyCalled, "ready handler must not run after a failed probe")
	assert.Eventually(t, func() bool { return gw.Connected() == 0 }, time.Second, time.Millisecond)
}

func TestBot_RequestStop_BeforeRun(t *testing.T) {
	gw := gatewaytest.New(t)
	b := New(testConfig(gw), testRegistry(), Handlers{}, nil)
	b.RequestStop()

	require.NoError(t, b.Run(context.Background()))
	assert.Equal(t, 0, gw.Connections())
}

func TestBot_Run_ParentContextStops(t *testing.T) {
	gw := gatewaytest.New(t)
	ready := make(chan struct{})
	b := New(testConfig(gw), testRegistry(), Handlers{
		OnReady: func(ctx context.Context, _ *Bot) error {
			close(ready)
			<-ctx.Done()
			return ctx.Err()
		},
	}, nil)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- b.Run(ctx) }()

	<-ready
	cancel()
	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(3 * time.Second):
		t.Fatal("bot ignored parent cancellation")
	}
}

func echo(ctx context.Context, _ *Bot, msg *contact.PrivateMessage) error {
	_, err := msg.Respond(ctx, contact.Text("echo: "+msg.Content.PlainText()))
	return err
}

func TestBot_PrivateMessage_EchoRoundTrip(t *testing.T) {
	gw := gatewaytest.New(t)
	r := startBot(t, gw, Handlers{OnPrivateMessage: echo})

	require.NoError(t, gw.PushMessage(gatewaytest.Message{
		Type: "private", Time: 1700000000, Sender: 7, SenderNick: "dora",
		MsgID: "m-1", MsgContent: gatewaytest.Text("hi"),
		Known: true, Channel: 7, ChannelName: "dora",
	}))

	require.Eventually(t, func() bool { return len(gw.Calls("/user/sendMsg")) == 1 }, 2*time.Second, 5*time.Millisecond)
	body := gw.Calls("/user/sendMsg")[0].Body
	assert.Equal(t, float64(7), body["dest"])
	assert.NotContains(t, body, "via")
	seg := body["content"].([]any)[0].(map[string]any)
	assert.Equal(t, "echo: hi", seg["text"])
	assert.Equal(t, "m-1", body["reply"].(map[string]any)["id"])

	r.stop(t)
}

func TestBot_PrivateMessage_StrangerRepliesViaGroup(t *testing.T) {
	gw := gatewaytest.New(t)

	got := make(chan *contact.PrivateMessage, 1)
	r := startBot(t, gw, Handlers{
		OnPrivateMessage: func(ctx context.Context, b *Bot, msg *contact.PrivateMessage) error {
			got <- msg
			return echo(ctx, b, msg)
		},
	})

	require.NoError(t, gw.PushMessage(gatewaytest.Message{
		Type: "private", Sender: 9, SenderNick: "ivan", MsgID: "s-1",
		MsgContent: gatewaytest.Text("psst"), Known: false, Channel: 100, ChannelName: "gophers",
	}))

	msg := <-got
	assert.Equal(t, contact.KindStranger, msg.Channel.Kind())
	assert.Equal(t, "ivan", msg.Sender.Name())

	require.Eventually(t, func() bool { return len(gw.Calls("/user/sendMsg")) == 1 }, 2*time.Second, 5*time.Millisecond)
	body := gw.Calls("/user/sendMsg")[0].Body
	assert.Equal(t, float64(9), body["dest"])
	assert.Equal(t, float64(100), body["via"])

	r.stop(t)
}

func TestBot_GroupMessage_AnonymousAndEcho(t *testing.T) {
	gw := gatewaytest.New(t)

	senders := make(chan contact.Identity, 2)
	r := startBot(t, gw, Handlers{
		OnGroupMessage: func(ctx context.Context, _ *Bot, msg *contact.GroupMessage) error {
			senders <- msg.Sender
			if msg.Sender.Kind() == contact.KindGroupAnonymous {
				return nil
			}
			_, err := msg.Respond(ctx, contact.Text("seen"))
			return err
		},
	})

	require.NoError(t, gw.PushMessage(gatewaytest.Message{
		Type: "group", Sender: 3, SenderNick: "carol", MsgID: "g-1",
		MsgContent: gatewaytest.Text("hello all"), Known: true, Channel: 100, ChannelName: "gophers",
	}))
	require.NoError(t, gw.PushMessage(gatewaytest.Message{
		Type: "group", Sender: 80000000, SenderNick: "owl", MsgID: "g-2",
		MsgContent: gatewaytest.Text("boo"), Known: false, Channel: 100, ChannelName: "gophers",
	}))

	kinds := map[contact.Kind]bool{}
	for range 2 {
		select {
		case s := <-senders:
			kinds[s.Kind()] = true
		case <-time.After(2 * time.Second):
			t.Fatal("group message not delivered")
		}
	}
	assert.True(t, kinds[contact.KindGroupMember])
	assert.True(t, kinds[contact.KindGroupAnonymous])

	require.Eventually(t, func() bool { return len(gw.Calls("/group/sendMsg")) == 1 }, 2*time.Second, 5*time.Millisecond)
	assert.Equal(t, float64(100), gw.Calls("/group/sendMsg")[0].Body["dest"])

	r.stop(t)
}

func TestBot_Group_WaitMessage(t *testing.T) {
	gw := gatewaytest.New(t)
	r := startBot(t, gw, Handlers{})
	ctx := context.Background()

	g, err := r.bot.Directory().ObserveGroup(ctx, 100, "gophers")
	require.NoError(t, err)
	require.NotNil(t, g)

	got := make(chan *contact.GroupMessage, 1)
	go func() {
		msg, _ := g.WaitMessage(ctx, 3*time.Second)
		got <- msg
	}()

	var msg *contact.GroupMessage
	i := 0
	require.Eventually(t, func() bool {
		select {
		case msg = <-got:
			return true
		default:
		}
		i++
		_ = gw.PushMessage(gatewaytest.Message{
			Type: "group", Sender: 3, SenderNick: "carol", MsgID: fmt.Sprintf("w-%d", i),
			MsgContent: gatewaytest.Text("ping"), Known: true, Channel: 100, ChannelName: "gophers",
		})
		return false
	}, 3*time.Second, 20*time.Millisecond)

	require.NotNil(t, msg)
	assert.Same(t, g, msg.Group)
	assert.Equal(t, "ping", msg.Content.PlainText())

	r.stop(t)
}

func TestBot_Notice_RespondToRequest(t *testing.T) {
	gw := gatewaytest.New(t)
	answered := make(chan error, 1)
	r := startBot(t, gw, Handlers{
		OnNotice: func(ctx context.Context, _ *Bot, n *Notice) error {
			if !n.IsRequest() {
				return nil
			}
			err := n.Respond(ctx, true)
			answered <- err
			return err
		},
	})

	require.NoError(t, gw.PushEvent(gatewaytest.Event{Type: "friend_request", UserID: 5, UserName: "frank", EventID: "ev-1", Comment: "hi"}))

	select {
	case err := <-answered:
		require.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("request notice not delivered")
	}
	calls := gw.Calls("/user/dealFriendRequest")
	require.Len(t, calls, 1)
	assert.Equal(t, "ev-1", calls[0].Body["eventID"])
	assert.Equal(t, true, calls[0].Body["accept"])

	r.stop(t)
}

func TestNotice_Respond_NotARequest(t *testing.T) {
	n := &Notice{Event: protocol.Event{Kind: protocol.EventOnline}}
	assert.False(t, n.IsRequest())
	assert.ErrorIs(t, n.Respond(context.Background(), true), ErrNotARequest)
}

func TestBot_Notice_RosterMutationBeforeHandler(t *testing.T) {
	gw := gatewaytest.New(t)
	gw.SetFriends(map[int64]string{7: "dora"})

	notices := make(chan *Notice, 4)
	r := startBot(t, gw, Handlers{
		OnNotice: func(_ context.Context, _ *Bot, n *Notice) error {
			notices <- n
			return nil
		},
	})
	ctx := context.Background()
	dir := r.bot.Directory()

	friends, err := dir.Friends(ctx)
	require.NoError(t, err)
	require.Len(t, friends, 1)

	require.NoError(t, gw.PushEvent(gatewaytest.Event{Type: "friend_added", UserID: 8, UserName: "erin"}))
	n := <-notices
	assert.Equal(t, protocol.EventFriendAdded, n.Kind)
	require.NotNil(t, n.Friend)
	assert.Equal(t, "erin", n.Friend.Name())

	f, err := dir.Friend(ctx, 8)
	require.NoError(t, err)
	assert.Same(t, n.Friend, f)

	require.NoError(t, gw.PushEvent(gatewaytest.Event{Type: "friend_removed", UserID: 7}))
	<-notices
	f, err = dir.Friend(ctx, 7)
	require.NoError(t, err)
	assert.Nil(t, f)

	assert.Equal(t, 1, gw.Fetches("/user/getFriendList"), "events must not trigger a refetch")

	r.stop(t)
}

func TestBot_UnresolvableMessageDropped(t *testing.T) {
	gw := gatewaytest.New(t)
	gw.SetFriends(map[int64]string{7: "dora"})

	var mu sync.Mutex
	var seen []int64
	r := startBot(t, gw, Handlers{
		OnPrivateMessage: func(_ context.Context, _ *Bot, msg *contact.PrivateMessage) error {
			mu.Lock()
			defer mu.Unlock()
			seen = append(seen, msg.Sender.ID())
			return nil
		},
	})
	_, err := r.bot.Directory().Friends(context.Background())
	require.NoError(t, err)

	require.NoError(t, gw.PushMessage(gatewaytest.Message{
		Type: "private", Sender: 99, MsgID: "x-1", MsgContent: gatewaytest.Text("who am i"), Known: true, Channel: 99,
	}))
	require.NoError(t, gw.PushMessage(gatewaytest.Message{
		Type: "private", Sender: 7, MsgID: "x-2", MsgContent: gatewaytest.Text("hi"), Known: true, Channel: 7,
	}))

	require.Eventually(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return len(seen) >= 1
	}, 2*time.Second, 5*time.Millisecond)
	time.Sleep(20 * time.Millisecond)

	mu.Lock()
	assert.Equal(t, []int64{7}, seen)
	mu.Unlock()

	r.stop(t)
}

func TestBot_PrivateRevoke_ResolvesThroughFriendList(t *testing.T) {
	gw := gatewaytest.New(t)
	gw.SetFriends(map[int64]string{7: "dora"})

	got := make(chan *PrivateRevoke, 2)
	r := startBot(t, gw, Handlers{
		OnPrivateRevoke: func(_ context.Context, _ *Bot, rv *PrivateRevoke) error {
			got <- rv
			return nil
		},
	})

	require.NoError(t, gw.PushRevoke(gatewaytest.Revoke{Type: "private", Revoker: 99, Channel: 99, MsgID: "m-4", Known: true}))
	require.NoError(t, gw.PushRevoke(gatewaytest.Revoke{Type: "private", Revoker: 7, Channel: 7, MsgID: "m-5", Known: true}))

	select {
	case rv := <-got:
		assert.Equal(t, "m-5", rv.MessageID)
		assert.Equal(t, contact.KindFriend, rv.Channel.Kind())
		assert.Equal(t, int64(7), rv.Revoker.ID())
		assert.Equal(t, "dora", rv.Revoker.Name())
	case <-time.After(2 * time.Second):
		t.Fatal("revoke not delivered")
	}
	time.Sleep(20 * time.Millisecond)
	assert.Empty(t, got, "revoke from a non-friend must be dropped")
	assert.Equal(t, 1, gw.Fetches("/user/getFriendList"), "nameless lookups enumerate once")

	r.stop(t)
}

func TestBot_GroupRevoke_ResolvesThroughMemberList(t *testing.T) {
	gw := gatewaytest.New(t)
	gw.SetGroups(map[int64]string{100: "gophers"})
	gw.SetMembers(100, []gatewaytest.Member{{ID: 3, Nickname: "carol"}})

	got := make(chan *GroupRevoke, 2)
	r := startBot(t, gw, Handlers{
		OnGroupRevoke: func(_ context.Context, _ *Bot, rv *GroupRevoke) error {
			got <- rv
			return nil
		},
	})

	require.NoError(t, gw.PushRevoke(gatewaytest.Revoke{Type: "group", Revoker: 55, Channel: 100, MsgID: "g-8", Known: true}))
	require.NoError(t, gw.PushRevoke(gatewaytest.Revoke{Type: "group", Revoker: 3, Channel: 100, MsgID: "g-9", Known: true}))

	select {
	case rv := <-got:
		assert.Equal(t, "g-9", rv.MessageID)
		assert.Equal(t, "gophers", rv.Group.Name())
		assert.Equal(t, contact.KindGroupMember, rv.Revoker.Kind())
		assert.Equal(t, "carol", rv.Revoker.Name())
	case <-time.After(2 * time.Second):
		t.Fatal("revoke not delivered")
	}
	time.Sleep(20 * time.Millisecond)
	assert.Empty(t, got, "revoke from a non-member must be dropped")

	r.stop(t)
}

func TestStage_String(t *testing.T) {
	assert.Equal(t, "probe", StageProbe.String())
	assert.Equal(t, "stage 5", Stage(5).String())

	err := &StageError{Stage: StageBackendSetup, Err: errors.New("boom")}
	assert.Equal(t, "backend setup failed (-2): boom", err.Error())
}

// componentCounter records, for every log line, how many component
// attributes it carries.
type componentCounter struct {
	mu     *sync.Mutex
	counts *[]int
	attrs  []slog.Attr
}

func newComponentCounter() *componentCounter {
	return &componentCounter{mu: &sync.Mutex{}, counts: &[]int{}}
}

func (h *componentCounter) Enabled(context.Context, slog.Level) bool { return true }

func (h *componentCounter) Handle(_ context.Context, r slog.Record) error {
	n := 0
	for _, a := range h.attrs {
		if a.Key == "component" {
			n++
		}
	}
	r.Attrs(func(a slog.Attr) bool {
		if a.Key == "component" {
			n++
		}
		return true
	})
	h.mu.Lock()
	defer h.mu.Unlock()
	*h.counts = append(*h.counts, n)
	return nil
}

func (h *componentCounter) WithAttrs(attrs []slog.Attr) slog.Handler {
	c := *h
	c.attrs = append(append([]slog.Attr(nil), h.attrs...), attrs...)
	return &c
}

func (h *componentCounter) WithGroup(string) slog.Handler { return h }

func TestBot_Run_OneComponentPerLogLine(t *testing.T) {
	gw := gatewaytest.New(t)
	gw.SetFriends(map[int64]string{7: "dora"})
	counter := newComponentCounter()

	b := New(testConfig(gw), testRegistry(), Handlers{
		OnReady: func(ctx context.Context, b *Bot) error {
			_, err := b.Directory().Friends(ctx)
			b.RequestStop()
			return err
		},
	}, slog.New(counter))

	require.NoError(t, b.Run(context.Background()))

	counter.mu.Lock()
	defer counter.mu.Unlock()
	require.NotEmpty(t, *counter.counts)
	for i, n := range *counter.counts {
		assert.LessOrEqual(t, n, 1, "log line %d carries %d component attributes", i, n)
	}
}
