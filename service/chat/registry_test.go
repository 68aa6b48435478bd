package chat

import (
	"fmt"
	"sync"
	"testing"
)

func TestRegistryTransitions(t *testing.T) {
	r := NewRegistry()
	c1, c2 := newTestConn("c1", "u1"), newTestConn("c2", "u1")

	if !r.Add("u1", c1) {
		t.Fatal("first add must report first")
	}
	if r.Add("u1", c1) {
		t.Fatal("re-adding the same handle is a no-op")
	}
	if r.Add("u1", c2) {
		t.Fatal("second device is not a transition")
	}
	if got := len(r.HandlesFor("u1")); got != 2 {
		t.Fatalf("handles %d", got)
	}

	if r.Remove("u1", "nope") {
		t.Fatal("removing an absent handle is a no-op")
	}
	if r.Remove("u1", "c1") {
		t.Fatal("not the last handle")
	}
	if !r.IsOnline("u1") {
		t.Fatal("still one handle left")
	}
	if !r.Remove("u1", "c2") {
		t.Fatal("last handle must report last")
	}
	if r.Remove("u1", "c2") {
		t.Fatal("double remove must not report last twice")
	}
	if r.IsOnline("u1") || r.HandlesFor("u1") != nil {
		t.Fatal("user must be offline")
	}
	if r.OnlineUsers() != 0 {
		t.Fatalf("entry must be dropped, have %d users", r.OnlineUsers())
	}
}

func TestRegistrySnapshotIsStable(t *testing.T) {
	r := NewRegistry()
	r.Add("u1", newTestConn("c1", "u1"))
	handles := r.HandlesFor("u1")
	r.Add("u1", newTestConn("c2", "u1"))
	if len(handles) != 1 {
		t.Fatalf("earlier snapshot changed: %d", len(handles))
	}
	r.Add("u2", newTestConn("c3", "u2"))
	if got := len(r.Snapshot()); got != 3 {
		t.Fatalf("snapshot %d", got)
	}
}

func TestRegistryConcurrentSingleUser(t *testing.T) {
	r := NewRegistry()
	const n = 64
	var (
		wg            sync.WaitGroup
		mu            sync.Mutex
		firsts, lasts int
	)
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			c := newTestConn(fmt.Sprintf("c%d", i), "u1")
			if r.Add("u1", c) {
				mu.Lock()
				firsts++
				mu.Unlock()
			}
		}(i)
	}
	wg.Wait()
	if got := len(r.HandlesFor("u1")); got != n {
		t.Fatalf("lost handles: %d", got)
	}
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			if r.Remove("u1", fmt.Sprintf("c%d", i)) {
				mu.Lock()
				lasts++
				mu.Unlock()
			}
		}(i)
	}
	wg.Wait()
	if firsts != 1 || lasts != 1 {
		t.Fatalf("firsts=%d lasts=%d", firsts, lasts)
	}
	if r.IsOnline("u1") {
		t.Fatal("must be offline")
	}
}
