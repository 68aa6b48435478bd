package notify

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"PPGateway/service/chat"
	errs "PPGateway/tools/errs"
	"PPGateway/tools/security"
)

type fakeRecipients struct {
	conversations map[string][]string
	groups        map[string][]string
}

func (f *fakeRecipients) ConversationParticipants(_ context.Context, id string) ([]string, error) {
	m, ok := f.conversations[id]
	if !ok {
		return nil, errs.ErrRecordNotFound.WrapMsg("conversation not found", "conversationId", id)
	}
	return m, nil
}

func (f *fakeRecipients) GroupMembers(_ context.Context, id string) ([]string, error) {
	m, ok := f.groups[id]
	if !ok {
		return nil, errs.ErrRecordNotFound.WrapMsg("group not found", "groupId", id)
	}
	return m, nil
}

type fakeProfiles struct {
	profile Profile
	err     error
	block   bool
}

func (f *fakeProfiles) Profile(ctx context.Context, _ string) (Profile, error) {
	if f.block {
		<-ctx.Done()
		return Profile{}, ctx.Err()
	}
	return f.profile, f.err
}

type published struct {
	eventType, routingKey string
	event                 OutboundEvent
}

type fakePublisher struct {
	mu   sync.Mutex
	got  []published
	fail bool
}

func (f *fakePublisher) Publish(_ context.Context, eventType string, payload []byte, routingKey string) error {
	if f.fail {
		return errors.New("broker unavailable")
	}
	var ev OutboundEvent
	if err := json.Unmarshal(payload, &ev); err != nil {
		return err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.got = append(f.got, published{eventType: eventType, routingKey: routingKey, event: ev})
	return nil
}

func (f *fakePublisher) events() []published {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]published(nil), f.got...)
}

type liveSetup struct {
	reg   *chat.ConnRegistry
	rooms *chat.Rooms
	out   *chat.Fanout
}

func newLive() liveSetup {
	reg := chat.NewRegistry()
	rooms := chat.NewRooms(nil, chat.RoomsConf{})
	return liveSetup{reg: reg, rooms: rooms, out: chat.NewFanout(reg, rooms)}
}

func (l liveSetup) connect(id, user string, keys ...chat.ChannelKey) *chat.Conn {
	c := chat.NewConn(id, security.Identity{UserID: user}, nil, 8)
	l.reg.Add(user, c)
	for _, k := range keys {
		l.rooms.Join(c, k)
	}
	return c
}

func TestGroupMessageScenario(t *testing.T) {
	live := newLive()
	g := chat.GroupChannel("G-ext")
	live.connect("a1", "A", g)
	live.connect("a2", "A", g)
	live.connect("b1", "B", g)

	pub := &fakePublisher{}
	co := NewCoordinator(live.out,
		&fakeRecipients{groups: map[string][]string{"G-int": {"A", "B"}}},
		&fakeProfiles{profile: Profile{DisplayName: "Alice", AvatarURL: "https://cdn/a.png"}},
		pub, Options{})

	res, err := co.Notify(context.Background(), Message{
		ID: "m1", SenderID: "A", GroupID: "G-int", GroupExternalID: "G-ext", Content: "hello group",
	})
	if err != nil {
		t.Fatal(err)
	}
	if res.Delivered != 3 || res.Channel != "group:G-ext" {
		t.Fatalf("result %+v", res)
	}
	co.Wait()

	got := pub.events()
	if len(got) != 1 {
		t.Fatalf("published %d events", len(got))
	}
	ev := got[0]
	if ev.eventType != EventMessageReceived || ev.routingKey != RoutingKeyMessageReceived {
		t.Fatalf("envelope %+v", ev)
	}
	if ev.event.RecipientUserID != "B" || ev.event.SenderUserID != "A" {
		t.Fatalf("event %+v", ev.event)
	}
	if ev.event.GroupID == nil || *ev.event.GroupID != "G-ext" || ev.event.ConversationID != nil {
		t.Fatalf("target ids %+v", ev.event)
	}
	if ev.event.SenderDisplayName != "Alice" || ev.event.SenderAvatarURL != "https://cdn/a.png" {
		t.Fatalf("profile %+v", ev.event)
	}
}

func TestConversationRecipientOffline(t *testing.T) {
	live := newLive()
	pub := &fakePublisher{}
	co := NewCoordinator(live.out,
		&fakeRecipients{conversations: map[string][]string{"c1": {"A", "B"}}},
		nil, pub, Options{})

	res, err := co.Notify(context.Background(), Message{ID: "m2", SenderID: "A", ConversationID: "c1", Content: "hi"})
	if err != nil {
		t.Fatal(err)
	}
	if res.Delivered != 0 {
		t.Fatalf("delivered %d", res.Delivered)
	}
	co.Wait()
	got := pub.events()
	if len(got) != 1 || got[0].event.RecipientUserID != "B" {
		t.Fatalf("events %+v", got)
	}
	if got[0].event.ConversationID == nil || *got[0].event.ConversationID != "c1" || got[0].event.GroupID != nil {
		t.Fatalf("target ids %+v", got[0].event)
	}
}

func TestProfileTimeoutFallsBack(t *testing.T) {
	pub := &fakePublisher{}
	co := NewCoordinator(newLive().out,
		&fakeRecipients{conversations: map[string][]string{"c1": {"A", "B"}}},
		&fakeProfiles{block: true},
		pub, Options{ProfileTimeout: 20 * time.Millisecond})

	_, err := co.Notify(context.Background(), Message{
		ID: "m3", SenderID: "A", SenderFallbackName: "alice@example.com", ConversationID: "c1", Content: "hi",
	})
	if err != nil {
		t.Fatalf("profile timeout must not fail delivery: %v", err)
	}
	co.Wait()
	got := pub.events()
	if len(got) != 1 {
		t.Fatalf("events %d", len(got))
	}
	if got[0].event.SenderDisplayName != "alice@example.com" || got[0].event.SenderAvatarURL != "" {
		t.Fatalf("fallback %+v", got[0].event)
	}
}

func TestProfileErrorFallsBackToSenderID(t *testing.T) {
	pub := &fakePublisher{}
	co := NewCoordinator(newLive().out,
		&fakeRecipients{conversations: map[string][]string{"c1": {"A", "B"}}},
		&fakeProfiles{err: errors.New("pg down")},
		pub, Options{})
	if _, err := co.Notify(context.Background(), Message{ID: "m", SenderID: "A", ConversationID: "c1"}); err != nil {
		t.Fatal(err)
	}
	co.Wait()
	if got := pub.events(); len(got) != 1 || got[0].event.SenderDisplayName != "A" {
		t.Fatalf("events %+v", got)
	}
}

func TestTargetValidation(t *testing.T) {
	co := NewCoordinator(newLive().out, &fakeRecipients{}, nil, &fakePublisher{}, Options{})
	for name, msg := range map[string]Message{
		"both":            {ID: "m", SenderID: "A", ConversationID: "c", GroupID: "g", GroupExternalID: "G"},
		"neither":         {ID: "m", SenderID: "A"},
		"group no ext id": {ID: "m", SenderID: "A", GroupID: "g"},
		"no sender":       {ID: "m", ConversationID: "c"},
	} {
		if _, err := co.Notify(context.Background(), msg); errs.Code(err) != errs.ArgsError {
			t.Fatalf("%s: got %v", name, err)
		}
	}
}

type countingEmitter struct{ calls int }

func (e *countingEmitter) Emit(chat.ChannelKey, string, any) int {
	e.calls++
	return 0
}

func TestNotFoundAndForbiddenAreDistinct(t *testing.T) {
	emitter := &countingEmitter{}
	pub := &fakePublisher{}
	co := NewCoordinator(emitter,
		&fakeRecipients{conversations: map[string][]string{"c1": {"B", "C"}}},
		nil, pub, Options{})

	_, err := co.Notify(context.Background(), Message{ID: "m", SenderID: "A", ConversationID: "missing"})
	if errs.Code(err) != errs.NotFoundError {
		t.Fatalf("missing conversation: %v", err)
	}
	_, err = co.Notify(context.Background(), Message{ID: "m", SenderID: "A", ConversationID: "c1"})
	if errs.Code(err) != errs.AuthorizationFailure {
		t.Fatalf("non member: %v", err)
	}
	co.Wait()
	if len(pub.events()) != 0 || emitter.calls != 0 {
		t.Fatalf("rejected message delivered: emits=%d events=%d", emitter.calls, len(pub.events()))
	}
}

func TestEmitsOncePerMessage(t *testing.T) {
	emitter := &countingEmitter{}
	co := NewCoordinator(emitter,
		&fakeRecipients{groups: map[string][]string{"g": {"A", "B", "C", "D"}}},
		nil, &fakePublisher{}, Options{})
	if _, err := co.Notify(context.Background(), Message{ID: "m", SenderID: "A", GroupID: "g", GroupExternalID: "G"}); err != nil {
		t.Fatal(err)
	}
	co.Wait()
	if emitter.calls != 1 {
		t.Fatalf("emits %d", emitter.calls)
	}
}

func TestBlankConversationIDRoutesToGroup(t *testing.T) {
	pub := &fakePublisher{}
	co := NewCoordinator(newLive().out,
		&fakeRecipients{groups: map[string][]string{"G": {"A", "B"}}},
		nil, pub, Options{})
	res, err := co.Notify(context.Background(), Message{
		ID: " m1 ", SenderID: "A", ConversationID: "  ", GroupID: " G ", GroupExternalID: "Gx",
	})
	if err != nil {
		t.Fatalf("notify: %v", err)
	}
	if res.Channel != chat.GroupChannel("Gx").String() {
		t.Fatalf("channel %s", res.Channel)
	}
	co.Wait()
	evs := pub.events()
	if len(evs) != 1 || evs[0].event.RecipientUserID != "B" || evs[0].event.MessageID != "m1" {
		t.Fatalf("events %+v", evs)
	}
	if evs[0].event.ConversationID != nil {
		t.Fatalf("blank conversation id leaked: %q", *evs[0].event.ConversationID)
	}
}

func TestRecipientsDedupedAndSenderExcluded(t *testing.T) {
	live := newLive()
	// the sender is subscribed too; membership of the channel is irrelevant
	live.connect("a1", "A", chat.GroupChannel("X"))
	pub := &fakePublisher{}
	co := NewCoordinator(live.out,
		&fakeRecipients{groups: map[string][]string{"x": {"A", "B", "C", "B", "", "A"}}},
		nil, pub, Options{})

	res, err := co.Notify(context.Background(), Message{ID: "m", SenderID: "A", GroupID: "x", GroupExternalID: "X",
		Content: strings.Repeat("é", 80)})
	if err != nil {
		t.Fatal(err)
	}
	if len(res.Recipients) != 2 {
		t.Fatalf("recipients %v", res.Recipients)
	}
	co.Wait()
	got := pub.events()
	if len(got) != 2 {
		t.Fatalf("events %d", len(got))
	}
	ids := map[string]bool{}
	for _, p := range got {
		if p.event.RecipientUserID == "A" {
			t.Fatal("sender must never get an event")
		}
		if ids[p.event.EventID] {
			t.Fatal("event ids must be unique")
		}
		ids[p.event.EventID] = true
		if n := len([]rune(p.event.Preview)); n != 50 {
			t.Fatalf("preview runes %d", n)
		}
	}
}

func TestPublishFailureIsNotSurfaced(t *testing.T) {
	co := NewCoordinator(newLive().out,
		&fakeRecipients{conversations: map[string][]string{"c1": {"A", "B"}}},
		nil, &fakePublisher{fail: true}, Options{})
	if _, err := co.Notify(context.Background(), Message{ID: "m", SenderID: "A", ConversationID: "c1"}); err != nil {
		t.Fatalf("broker failure surfaced: %v", err)
	}
	co.Wait()
}

func TestPreview(t *testing.T) {
	if Preview("short") != "short" {
		t.Fatal("short content kept")
	}
	if got := Preview(strings.Repeat("a", 51)); len(got) != 50 {
		t.Fatalf("len %d", len(got))
	}
}
