package chat

import (
	"PPGateway/logger"
)

// Fanout pushes one encoded frame to a set of connections. Delivery is
// best effort: a connection that is closed or whose queue is full is
// skipped and never retried. Frames are handed over on the caller's
// goroutine so one connection sees emits in the order they were made.
type Fanout struct {
	reg   Registry
	rooms *Rooms
}

func NewFanout(reg Registry, rooms *Rooms) *Fanout {
	return &Fanout{reg: reg, rooms: rooms}
}

// Emit delivers to every connection joined to key and returns how many
// accepted the frame.
func (f *Fanout) Emit(key ChannelKey, event string, payload any) int {
	return f.EmitExcept(key, event, payload, "")
}

// EmitExcept is Emit minus the connection excludeConnID (typing signals).
func (f *Fanout) EmitExcept(key ChannelKey, event string, payload any, excludeConnID string) int {
	members := f.rooms.Members(key)
	if len(members) == 0 {
		return 0
	}
	frame, ok := encode(event, payload)
	if !ok {
		return 0
	}
	n := 0
	for _, c := range members {
		if c.ID == excludeConnID {
			continue
		}
		if deliver(c, frame, event) {
			n++
		}
	}
	return n
}

// EmitToUser delivers to every connection of userID, whatever it joined.
func (f *Fanout) EmitToUser(userID, event string, payload any) int {
	return f.send(f.reg.HandlesFor(userID), event, payload)
}

// Broadcast delivers to every registered connection.
func (f *Fanout) Broadcast(event string, payload any) int {
	return f.send(f.reg.Snapshot(), event, payload)
}

// Reply answers on a single connection.
func (f *Fanout) Reply(c *Conn, event string, payload any) bool {
	frame, ok := encode(event, payload)
	if !ok {
		return false
	}
	return deliver(c, frame, event)
}

func (f *Fanout) send(conns []*Conn, event string, payload any) int {
	if len(conns) == 0 {
		return 0
	}
	frame, ok := encode(event, payload)
	if !ok {
		return 0
	}
	n := 0
	for _, c := range conns {
		if deliver(c, frame, event) {
			n++
		}
	}
	return n
}

func encode(event string, payload any) ([]byte, bool) {
	frame, err := EncodeFrame(event, payload)
	if err != nil {
		logger.Errorf("[Fanout] encode event=%s err=%v", event, err)
		return nil, false
	}
	return frame, true
}

func deliver(c *Conn, frame []byte, event string) bool {
	if c.Enqueue(frame) {
		return true
	}
	if !c.IsClosed() {
		// 慢客户端：丢弃本帧，不阻塞其他连接
		logger.Warnf("[Fanout] send queue full, drop event=%s conn=%s user=%s", event, c.ID, c.UserID())
	}
	return false
}
