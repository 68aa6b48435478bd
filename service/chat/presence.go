package chat

import (
	"context"
	"hash/fnv"
	"sync"
	"time"

	"PPGateway/logger"
	"PPGateway/tools/safe"
)

// PresenceMirror records online state for other services. It may lag the
// registry and is never read back by the gateway.
type PresenceMirror interface {
	SetOnline(ctx context.Context, userID string) error
	SetOffline(ctx context.Context, userID string) error
}

const presenceStripes = 64

type mirrorUpdate struct {
	userID string
	online bool
}

// Presence turns registry changes into online/offline announcements. It
// fires once per real transition of a user, not per connection.
type Presence struct {
	reg   Registry
	out   *Fanout
	locks [presenceStripes]sync.Mutex

	mirror        PresenceMirror
	mirrorTimeout time.Duration
	updates       chan mirrorUpdate
	done          chan struct{}

	mirrorMu     sync.RWMutex
	mirrorClosed bool
}

func NewPresence(reg Registry, out *Fanout, mirror PresenceMirror) *Presence {
	p := &Presence{
		reg:           reg,
		out:           out,
		mirror:        mirror,
		mirrorTimeout: 2 * time.Second,
		done:          make(chan struct{}),
	}
	if mirror != nil {
		p.updates = make(chan mirrorUpdate, 1024)
		safe.Go("presence-mirror", p.mirrorLoop)
	} else {
		close(p.done)
	}
	return p
}

// Connected registers c and announces the user online if c is its first
// connection.
func (p *Presence) Connected(c *Conn) (first bool) {
	mu := p.lock(c.UserID())
	mu.Lock()
	defer mu.Unlock()
	first = p.reg.Add(c.UserID(), c)
	if first {
		p.Announce(c.UserID(), true)
	}
	return first
}

// Disconnected drops c and announces the user offline if it was the last one.
func (p *Presence) Disconnected(c *Conn) (last bool) {
	mu := p.lock(c.UserID())
	mu.Lock()
	defer mu.Unlock()
	last = p.reg.Remove(c.UserID(), c.ID)
	if last {
		p.Announce(c.UserID(), false)
	}
	return last
}

// Announce tells every connected client about the change, including
// clients that share no conversation with the user.
func (p *Presence) Announce(userID string, online bool) int {
	n := p.out.Broadcast(EventUserStatusChanged, StatusPayload{ProfileID: userID, IsOnline: online})
	logger.Infof("[Presence] user=%s online=%v notified=%d", userID, online, n)
	p.mirrorMu.RLock()
	if p.updates != nil && !p.mirrorClosed {
		select {
		case p.updates <- mirrorUpdate{userID: userID, online: online}:
		default:
			logger.Warnf("[Presence] mirror queue full, drop user=%s online=%v", userID, online)
		}
	}
	p.mirrorMu.RUnlock()
	return n
}

// StatusOf reads the registry; there is no separate cache to drift.
func (p *Presence) StatusOf(userID string) bool {
	return p.reg.IsOnline(userID)
}

// Close stops the mirror worker after it drains queued updates.
func (p *Presence) Close() {
	p.mirrorMu.Lock()
	if p.updates != nil && !p.mirrorClosed {
		close(p.updates)
	}
	p.mirrorClosed = true
	p.mirrorMu.Unlock()
	<-p.done
}

func (p *Presence) mirrorLoop() {
	defer close(p.done)
	for u := range p.updates {
		ctx, cancel := context.WithTimeout(context.Background(), p.mirrorTimeout)
		var err error
		if u.online {
			err = p.mirror.SetOnline(ctx, u.userID)
		} else {
			err = p.mirror.SetOffline(ctx, u.userID)
		}
		cancel()
		if err != nil {
			logger.Warnf("[Presence] mirror user=%s online=%v err=%v", u.userID, u.online, err)
		}
	}
}

func (p *Presence) lock(userID string) *sync.Mutex {
	h := fnv.New32a()
	_, _ = h.Write([]byte(userID))
	return &p.locks[h.Sum32()%presenceStripes]
}
