package chat

import (
	"context"
	"time"

	"PPGateway/logger"

	cmap "github.com/orcaman/concurrent-map"
)

type ChannelKind string

const (
	KindConversation ChannelKind = "conversation"
	KindGroup        ChannelKind = "group"
)

// ChannelKey names a broadcast channel. The kind is part of the key so a
// conversation and a group sharing an id never collide.
type ChannelKey struct {
	Kind ChannelKind
	ID   string
}

func (k ChannelKey) String() string { return string(k.Kind) + ":" + k.ID }

func (k ChannelKey) Valid() bool {
	return (k.Kind == KindConversation || k.Kind == KindGroup) && k.ID != ""
}

func ConversationChannel(conversationID string) ChannelKey {
	return ChannelKey{Kind: KindConversation, ID: conversationID}
}

// GroupChannel takes the externally visible group id, the one clients join with.
func GroupChannel(externalID string) ChannelKey {
	return ChannelKey{Kind: KindGroup, ID: externalID}
}

// GroupRef is one active membership as the store sees it.
type GroupRef struct {
	ID         string // internal id
	ExternalID string
}

// MembershipStore returns at most limit of a user's active group memberships.
type MembershipStore interface {
	GroupsOf(ctx context.Context, userID string, limit int) ([]GroupRef, error)
}

type RoomsConf struct {
	GroupPageSize  int
	PreJoinTimeout time.Duration
}

// Rooms tracks channel membership. The channel side lives in a sharded map
// keyed by ChannelKey.String(); each Conn keeps the reverse index so a
// disconnect can leave everything it joined.
type Rooms struct {
	channels cmap.ConcurrentMap // "kind:id" -> *handleEntry
	store    MembershipStore
	conf     RoomsConf
}

func NewRooms(store MembershipStore, conf RoomsConf) *Rooms {
	if conf.GroupPageSize <= 0 {
		conf.GroupPageSize = 100
	}
	if conf.PreJoinTimeout <= 0 {
		conf.PreJoinTimeout = 3 * time.Second
	}
	return &Rooms{channels: cmap.New(), store: store, conf: conf}
}

// Join subscribes c to key. Joining twice is a no-op; a closed connection
// is refused so a late join cannot outlive LeaveAll.
func (r *Rooms) Join(c *Conn, key ChannelKey) bool {
	if c == nil || !key.Valid() {
		return false
	}
	c.roomsMu.Lock()
	defer c.roomsMu.Unlock()
	if c.IsClosed() {
		return false
	}
	if _, ok := c.rooms[key]; ok {
		return true
	}
	c.rooms[key] = struct{}{}
	addHandle(r.channels, key.String(), c)
	return true
}

func (r *Rooms) Leave(c *Conn, key ChannelKey) {
	if c == nil {
		return
	}
	c.roomsMu.Lock()
	defer c.roomsMu.Unlock()
	if _, ok := c.rooms[key]; !ok {
		return
	}
	delete(c.rooms, key)
	removeHandle(r.channels, key.String(), c.ID)
}

// LeaveAll drops c from every channel it joined.
func (r *Rooms) LeaveAll(c *Conn) {
	if c == nil {
		return
	}
	c.roomsMu.Lock()
	defer c.roomsMu.Unlock()
	for key := range c.rooms {
		removeHandle(r.channels, key.String(), c.ID)
	}
	c.rooms = make(map[ChannelKey]struct{})
}

// Members returns a snapshot of the connections joined to key.
func (r *Rooms) Members(key ChannelKey) []*Conn {
	s := loadHandles(r.channels, key.String())
	if len(s) == 0 {
		return nil
	}
	out := make([]*Conn, 0, len(s))
	for _, c := range s {
		out = append(out, c)
	}
	return out
}

func (r *Rooms) Size(key ChannelKey) int {
	return len(loadHandles(r.channels, key.String()))
}

// Channels is the number of non-empty channels.
func (r *Rooms) Channels() int { return r.channels.Count() }

// PreJoinGroups joins c to the group channels of the user's first page of
// active memberships. Groups past that page are not joined until the client
// asks for them explicitly. A store failure is logged and the connection
// stays up with no group channels.
func (r *Rooms) PreJoinGroups(ctx context.Context, c *Conn) int {
	if r.store == nil || c == nil {
		return 0
	}
	ctx, cancel := context.WithTimeout(ctx, r.conf.PreJoinTimeout)
	defer cancel()

	groups, err := r.store.GroupsOf(ctx, c.UserID(), r.conf.GroupPageSize)
	if err != nil {
		logger.Warnf("[Rooms] load groups failed user=%s conn=%s err=%v", c.UserID(), c.ID, err)
		return 0
	}
	if len(groups) >= r.conf.GroupPageSize {
		logger.Infof("[Rooms] user=%s reached group page size %d, later groups not pre-joined", c.UserID(), r.conf.GroupPageSize)
	}
	n := 0
	for i, g := range groups {
		if i >= r.conf.GroupPageSize {
			break
		}
		if g.ExternalID == "" {
			continue
		}
		if r.Join(c, GroupChannel(g.ExternalID)) {
			n++
		}
	}
	return n
}
