package chat

import (
	"context"
	"sync"
	"testing"
)

type recordingMirror struct {
	mu    sync.Mutex
	calls []string
}

func (m *recordingMirror) SetOnline(_ context.Context, userID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls = append(m.calls, "on:"+userID)
	return nil
}

func (m *recordingMirror) SetOffline(_ context.Context, userID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls = append(m.calls, "off:"+userID)
	return nil
}

func newTestPresence(mirror PresenceMirror) (*Presence, *ConnRegistry) {
	reg := NewRegistry()
	return NewPresence(reg, NewFanout(reg, NewRooms(nil, RoomsConf{})), mirror), reg
}

func TestPresenceFiresOncePerTransition(t *testing.T) {
	mirror := &recordingMirror{}
	p, _ := newTestPresence(mirror)
	watcher := newTestConn("w", "W")
	p.Connected(watcher)
	drain(t, watcher)

	a1, a2, a3 := newTestConn("a1", "A"), newTestConn("a2", "A"), newTestConn("a3", "A")
	if !p.Connected(a1) || p.Connected(a2) || p.Connected(a3) {
		t.Fatal("only the first connection is a transition")
	}
	if !p.StatusOf("A") {
		t.Fatal("A online")
	}
	if p.Disconnected(a2) || p.Disconnected(a2) || p.Disconnected(a1) {
		t.Fatal("not the last connection yet")
	}
	if !p.Disconnected(a3) {
		t.Fatal("last connection must go offline")
	}
	if p.StatusOf("A") {
		t.Fatal("A offline")
	}

	var online, offline int
	for _, e := range drain(t, watcher) {
		if e.Event != EventUserStatusChanged {
			continue
		}
		m := e.Data.(map[string]any)
		if m["profileId"] != "A" {
			continue
		}
		if m["isOnline"] == true {
			online++
		} else {
			offline++
		}
	}
	if online != 1 || offline != 1 {
		t.Fatalf("online=%d offline=%d", online, offline)
	}

	p.Close()
	mirror.mu.Lock()
	defer mirror.mu.Unlock()
	want := []string{"on:W", "on:A", "off:A"}
	if len(mirror.calls) != len(want) {
		t.Fatalf("mirror calls %v", mirror.calls)
	}
	for i := range want {
		if mirror.calls[i] != want[i] {
			t.Fatalf("mirror calls %v", mirror.calls)
		}
	}
}

// The status broadcast goes to every connected client, contacts or not.
// Kept as is; scoping it to contacts is an open product question.
func TestPresenceBroadcastIsUnscoped(t *testing.T) {
	p, _ := newTestPresence(nil)
	stranger := newTestConn("s", "Stranger")
	p.Connected(stranger)
	drain(t, stranger)

	p.Connected(newTestConn("a", "A"))
	if got := countEvent(drain(t, stranger), EventUserStatusChanged); got != 1 {
		t.Fatalf("stranger got %d status events", got)
	}
	p.Close()
}

func TestStatusOfTracksRegistry(t *testing.T) {
	p, reg := newTestPresence(nil)
	reg.Add("A", newTestConn("a", "A"))
	if !p.StatusOf("A") {
		t.Fatal("must read the registry directly")
	}
	reg.Remove("A", "a")
	if p.StatusOf("A") {
		t.Fatal("must not be cached")
	}
	p.Close()
}
