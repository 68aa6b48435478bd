package handlers

import (
	"PPGateway/service/chat"
	decode "PPGateway/tools/decode"
	errs "PPGateway/tools/errs"
)

// StatusHandler answers check_user_status on the asking connection only.
type StatusHandler struct{}

func (StatusHandler) Events() []string { return []string{chat.EventCheckUserStatus} }

func (StatusHandler) Handle(ctx *chat.ChatContext, c *chat.Conn, f *chat.Frame) error {
	target, err := decode.ReadID(f.Data, "targetProfileId", "profileId", "userId")
	if err != nil {
		return errs.ErrArgs.WrapMsg(err.Error(), "event", f.Event)
	}
	ctx.S.Fanout().Reply(c, chat.EventUserStatusResponse, chat.StatusPayload{
		ProfileID: target,
		IsOnline:  ctx.S.Presence().StatusOf(target),
	})
	return nil
}
