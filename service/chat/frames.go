package chat

import (
	"encoding/json"
	"strings"

	decode "PPGateway/tools/decode"
	errs "PPGateway/tools/errs"
)

// 入站事件（客户端 -> 网关）
const (
	EventJoinConversation  = "join_conversation"
	EventLeaveConversation = "leave_conversation"
	EventJoinGroup         = "join_group"
	EventLeaveGroup        = "leave_group"
	EventTypingStart       = "typing_start"
	EventTypingStop        = "typing_stop"
	EventCheckUserStatus   = "check_user_status"
)

// 出站事件（网关 -> 客户端）
const (
	EventNewMessage         = "new_message"
	EventUserStatusChanged  = "user_status_changed"
	EventUserTyping         = "user_typing"
	EventUserStatusResponse = "user_status_response"
	EventError              = "error"
)

// Envelope is the text frame shape in both directions.
type Envelope struct {
	Event string `json:"event"`
	Data  any    `json:"data,omitempty"`
}

// Frame is a parsed inbound envelope. Data is the decoded JSON value
// (json.Number for numbers) and may be nil.
type Frame struct {
	Event string
	Data  any
}

type StatusPayload struct {
	ProfileID string `json:"profileId"`
	IsOnline  bool   `json:"isOnline"`
}

type TypingPayload struct {
	ProfileID string `json:"profileId"`
	IsTyping  bool   `json:"isTyping"`
}

type ErrorPayload struct {
	Code  int    `json:"code"`
	Msg   string `json:"msg"`
	Event string `json:"event,omitempty"`
}

func EncodeFrame(event string, data any) ([]byte, error) {
	b, err := json.Marshal(Envelope{Event: event, Data: data})
	if err != nil {
		return nil, errs.WrapMsg(err, "encode frame", "event", event)
	}
	return b, nil
}

func ParseFrame(raw []byte) (*Frame, error) {
	var env struct {
		Event string          `json:"event"`
		Data  json.RawMessage `json:"data"`
	}
	if err := json.Unmarshal(raw, &env); err != nil {
		return nil, errs.ErrArgs.WrapMsg("frame is not a json envelope", "err", err.Error())
	}
	env.Event = strings.TrimSpace(env.Event)
	if env.Event == "" {
		return nil, errs.ErrArgs.WrapMsg("frame has no event name")
	}
	data, err := decode.Raw(env.Data)
	if err != nil {
		return nil, errs.ErrArgs.WrapMsg("frame data is not valid json", "event", env.Event)
	}
	return &Frame{Event: env.Event, Data: data}, nil
}
