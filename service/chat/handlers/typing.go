package handlers

import (
	"strings"

	"PPGateway/service/chat"
	decode "PPGateway/tools/decode"
	errs "PPGateway/tools/errs"
)

type typingTarget struct {
	ConversationID string `json:"conversationId"`
	GroupID        string `json:"groupId"`
}

// TypingHandler relays typing_start/typing_stop to the room, never back to
// the connection that sent it. A conversation id wins over a group id.
type TypingHandler struct{}

func (TypingHandler) Events() []string {
	return []string{chat.EventTypingStart, chat.EventTypingStop}
}

func (TypingHandler) Handle(ctx *chat.ChatContext, c *chat.Conn, f *chat.Frame) error {
	if f.Data == nil {
		return errs.ErrArgs.WrapMsg("typing needs conversationId or groupId", "event", f.Event)
	}
	t, err := decode.Decode[typingTarget](f.Data)
	if err != nil {
		return errs.ErrArgs.WrapMsg(err.Error(), "event", f.Event)
	}
	var key chat.ChannelKey
	switch {
	case strings.TrimSpace(t.ConversationID) != "":
		key = chat.ConversationChannel(strings.TrimSpace(t.ConversationID))
	case strings.TrimSpace(t.GroupID) != "":
		key = chat.GroupChannel(strings.TrimSpace(t.GroupID))
	default:
		return errs.ErrArgs.WrapMsg("typing needs conversationId or groupId", "event", f.Event)
	}

	ctx.S.Fanout().EmitExcept(key, chat.EventUserTyping, chat.TypingPayload{
		ProfileID: c.UserID(),
		IsTyping:  f.Event == chat.EventTypingStart,
	}, c.ID)
	return nil
}
