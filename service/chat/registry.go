package chat

import (
	"sync/atomic"

	cmap "github.com/orcaman/concurrent-map"
)

// Registry maps a user to the set of connections currently open for it.
// Add and Remove report the online/offline transitions so presence fires
// once per user, not once per device.
type Registry interface {
	Add(userID string, c *Conn) (first bool)
	Remove(userID, connID string) (last bool)
	IsOnline(userID string) bool
	HandlesFor(userID string) []*Conn
	Snapshot() []*Conn
	OnlineUsers() int
}

// handleSet is never mutated once published; writers swap in a copy.
type handleSet map[string]*Conn

type handleEntry struct {
	set atomic.Pointer[handleSet]
}

func (e *handleEntry) load() handleSet {
	if p := e.set.Load(); p != nil {
		return *p
	}
	return nil
}

// ConnRegistry is the in-process Registry. Mutations to one user run under
// that user's shard lock; readers only load the published set.
type ConnRegistry struct {
	users cmap.ConcurrentMap // userID -> *handleEntry
}

func NewRegistry() *ConnRegistry {
	return &ConnRegistry{users: cmap.New()}
}

var _ Registry = (*ConnRegistry)(nil)

func (r *ConnRegistry) Add(userID string, c *Conn) (first bool) {
	if userID == "" || c == nil {
		return false
	}
	return addHandle(r.users, userID, c)
}

func (r *ConnRegistry) Remove(userID, connID string) (last bool) {
	if userID == "" || connID == "" {
		return false
	}
	return removeHandle(r.users, userID, connID)
}

func (r *ConnRegistry) IsOnline(userID string) bool {
	return len(r.set(userID)) > 0
}

func (r *ConnRegistry) HandlesFor(userID string) []*Conn {
	s := r.set(userID)
	if len(s) == 0 {
		return nil
	}
	out := make([]*Conn, 0, len(s))
	for _, c := range s {
		out = append(out, c)
	}
	return out
}

func (r *ConnRegistry) Snapshot() []*Conn {
	out := make([]*Conn, 0, r.users.Count())
	r.users.IterCb(func(_ string, v interface{}) {
		for _, c := range v.(*handleEntry).load() {
			out = append(out, c)
		}
	})
	return out
}

func (r *ConnRegistry) OnlineUsers() int { return r.users.Count() }

func (r *ConnRegistry) set(userID string) handleSet {
	return loadHandles(r.users, userID)
}

// addHandle puts c into the set stored under key and reports whether the
// set was created by this call.
func addHandle(m cmap.ConcurrentMap, key string, c *Conn) (created bool) {
	m.Upsert(key, c, func(exist bool, valueInMap interface{}, _ interface{}) interface{} {
		if !exist {
			created = true
			e := &handleEntry{}
			s := handleSet{c.ID: c}
			e.set.Store(&s)
			return e
		}
		e := valueInMap.(*handleEntry)
		old := e.load()
		if _, ok := old[c.ID]; ok {
			return e
		}
		next := make(handleSet, len(old)+1)
		for k, v := range old {
			next[k] = v
		}
		next[c.ID] = c
		e.set.Store(&next)
		return e
	})
	return created
}

// removeHandle drops connID from the set under key; the key itself goes
// away with its last handle, and emptied reports that case.
func removeHandle(m cmap.ConcurrentMap, key, connID string) (emptied bool) {
	m.RemoveCb(key, func(_ string, v interface{}, exists bool) bool {
		if !exists {
			return false
		}
		e := v.(*handleEntry)
		old := e.load()
		if _, ok := old[connID]; !ok {
			return false
		}
		// 最后一个连接：整条记录删除，不保留空集合
		if len(old) == 1 {
			emptied = true
			return true
		}
		next := make(handleSet, len(old)-1)
		for k, c := range old {
			if k != connID {
				next[k] = c
			}
		}
		e.set.Store(&next)
		return false
	})
	return emptied
}

func loadHandles(m cmap.ConcurrentMap, key string) handleSet {
	v, ok := m.Get(key)
	if !ok {
		return nil
	}
	return v.(*handleEntry).load()
}
