package handlers

import (
	"PPGateway/logger"
	"PPGateway/service/chat"
	decode "PPGateway/tools/decode"
	errs "PPGateway/tools/errs"
)

// RoomHandler serves join/leave for one channel kind. Conversations are
// joined on demand; groups are also pre-joined at connect time.
type RoomHandler struct {
	kind    chat.ChannelKind
	join    string
	leave   string
	idField string
}

func NewConversationRooms() *RoomHandler {
	return &RoomHandler{
		kind:    chat.KindConversation,
		join:    chat.EventJoinConversation,
		leave:   chat.EventLeaveConversation,
		idField: "conversationId",
	}
}

// NewGroupRooms takes the external group id, the same one PreJoinGroups uses.
// Membership is not re-checked here.
func NewGroupRooms() *RoomHandler {
	return &RoomHandler{
		kind:    chat.KindGroup,
		join:    chat.EventJoinGroup,
		leave:   chat.EventLeaveGroup,
		idField: "groupId",
	}
}

func (h *RoomHandler) Events() []string { return []string{h.join, h.leave} }

func (h *RoomHandler) Handle(ctx *chat.ChatContext, c *chat.Conn, f *chat.Frame) error {
	id, err := decode.ReadID(f.Data, h.idField, "id")
	if err != nil {
		return errs.ErrArgs.WrapMsg(err.Error(), "event", f.Event)
	}
	key := chat.ChannelKey{Kind: h.kind, ID: id}
	rooms := ctx.S.Rooms()

	switch f.Event {
	case h.join:
		if !rooms.Join(c, key) {
			return nil // 连接已关闭
		}
		logger.Debugf("[Rooms] conn=%s user=%s join %s", c.ID, c.UserID(), key)
	case h.leave:
		rooms.Leave(c, key)
		logger.Debugf("[Rooms] conn=%s user=%s leave %s", c.ID, c.UserID(), key)
	}
	return nil
}
