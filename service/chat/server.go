package chat

import (
	"context"
	"sync"
	"sync/atomic"

	"PPGateway/logger"
	"PPGateway/tools/ids"
	"PPGateway/tools/safe"
	"PPGateway/tools/security"

	"github.com/gorilla/websocket"
)

type ServerConf struct {
	GatewayID      string
	SendQueue      int
	Pump           PumpConf
	Rooms          RoomsConf
	AllowedOrigins []string
}

// Options carries the collaborators of a Server. Registry, Store, Mirror
// and IDs are optional.
type Options struct {
	Conf     ServerConf
	Auth     *security.Authenticator
	Registry Registry
	Store    MembershipStore
	Mirror   PresenceMirror
	IDs      *ids.Generator
}

// Server owns the live state of one gateway process: registry, rooms,
// fan-out and presence, plus the websocket sessions feeding them.
type Server struct {
	conf     ServerConf
	auth     *security.Authenticator
	reg      Registry
	rooms    *Rooms
	fanout   *Fanout
	presence *Presence
	disp     *Dispatcher
	ids      *ids.Generator
	upgrader websocket.Upgrader

	sessMu   sync.Mutex // 保护 closing 置位与 sessions.Add 的先后
	sessions sync.WaitGroup
	closing  atomic.Bool
}

func NewServer(opts Options) *Server {
	safe.MustNotNil(opts.Auth, "authenticator")
	if opts.Registry == nil {
		opts.Registry = NewRegistry()
	}
	if opts.IDs == nil {
		opts.IDs = ids.NewGenerator(1)
	}
	opts.Conf.Pump.norm()

	s := &Server{
		conf: opts.Conf,
		auth: opts.Auth,
		reg:  opts.Registry,
		disp: NewDispatcher(),
		ids:  opts.IDs,
	}
	s.rooms = NewRooms(opts.Store, opts.Conf.Rooms)
	s.fanout = NewFanout(s.reg, s.rooms)
	s.presence = NewPresence(s.reg, s.fanout, opts.Mirror)
	s.upgrader = websocket.Upgrader{
		ReadBufferSize:  4096,
		WriteBufferSize: 4096,
		CheckOrigin:     originChecker(opts.Conf.AllowedOrigins),
	}
	return s
}

func (s *Server) Registry() Registry { return s.reg }
func (s *Server) Rooms() *Rooms { return s.rooms }
func (s *Server) Fanout() *Fanout { return s.fanout }
func (s *Server) Presence() *Presence { return s.presence }
func (s *Server) Disp() *Dispatcher { return s.disp }
func (s *Server) Conf() ServerConf { return s.conf }
func (s *Server) NewConnID() string { return s.ids.NextString() }
func (s *Server) Context() *ChatContext { return &ChatContext{S: s} }
func (s *Server) Closing() bool { return s.closing.Load() }
func (s *Server) Auth() *security.Authenticator { return s.auth }

// Attach makes an authenticated connection live: group channels first,
// then the registry, so the user's first "online" announcement goes out
// with its rooms already in place.
func (s *Server) Attach(ctx context.Context, c *Conn) (first bool) {
	joined := s.rooms.PreJoinGroups(ctx, c)
	first = s.presence.Connected(c)
	logger.Infof("[Gateway] attach conn=%s user=%s groups=%d first=%v", c.ID, c.UserID(), joined, first)
	return first
}

// Detach undoes Attach for this connection only. The user goes offline
// when it was the last one.
func (s *Server) Detach(c *Conn) (last bool) {
	c.Close()
	s.rooms.LeaveAll(c)
	last = s.presence.Disconnected(c)
	logger.Infof("[Gateway] detach conn=%s user=%s last=%v", c.ID, c.UserID(), last)
	return last
}

// beginSession reserves a session slot unless Shutdown has started.
func (s *Server) beginSession() bool {
	s.sessMu.Lock()
	defer s.sessMu.Unlock()
	if s.closing.Load() {
		return false
	}
	s.sessions.Add(1)
	return true
}

// Shutdown closes every connection and waits for their sessions to end.
// Sessions still attaching when it starts close themselves once attached.
func (s *Server) Shutdown(ctx context.Context) error {
	s.sessMu.Lock()
	s.closing.Store(true)
	s.sessMu.Unlock()
	for _, c := range s.reg.Snapshot() {
		c.Close()
	}
	done := make(chan struct{})
	go func() {
		s.sessions.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-ctx.Done():
		logger.Warnf("[Gateway] shutdown timed out, %d users still registered", s.reg.OnlineUsers())
		return ctx.Err()
	}
	s.presence.Close()
	return nil
}
