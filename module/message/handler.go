package message

import (
	"context"
	"net/http"
	"strings"

	"PPGateway/logger"
	"PPGateway/middleware"
	"PPGateway/service/notify"
	errs "PPGateway/tools/errs"

	"github.com/gin-gonic/gin"
)

type notifier interface {
	Notify(ctx context.Context, msg notify.Message) (notify.Result, error)
}

type userPusher interface {
	EmitToUser(userID, event string, payload any) int
}

type statusReader interface {
	StatusOf(userID string) bool
}

// Handler is the internal surface the REST layer calls after it has
// persisted a message or wants to reach a user directly.
type Handler struct {
	notifier notifier
	pusher   userPusher
	status   statusReader
}

func NewHandler(n notifier, p userPusher, s statusReader) *Handler {
	return &Handler{notifier: n, pusher: p, status: s}
}

// Register 挂载内部路由
func (h *Handler) Register(r gin.IRoutes, opt middleware.RouteOpt) {
	middleware.POST(r, "/internal/messages", h.MessageCreated, opt)
	middleware.POST(r, "/internal/users/:userId/events", h.PushToUser, opt)
	middleware.GET(r, "/internal/users/:userId/status", h.UserStatus, opt)
}

func (h *Handler) MessageCreated(c *gin.Context) {
	var msg notify.Message
	if err := c.ShouldBindJSON(&msg); err != nil {
		fail(c, errs.ErrArgs.WrapMsg("bad message body", "err", err.Error()))
		return
	}
	res, err := h.notifier.Notify(c.Request.Context(), msg)
	if err != nil {
		logger.Infof("[Internal] notify message=%s err=%v", msg.ID, err)
		fail(c, err)
		return
	}
	ok(c, res)
}

type pushBody struct {
	Event string `json:"event" binding:"required"`
	Data  any    `json:"data"`
}

func (h *Handler) PushToUser(c *gin.Context) {
	userID := strings.TrimSpace(c.Param("userId"))
	var body pushBody
	if err := c.ShouldBindJSON(&body); err != nil {
		fail(c, errs.ErrArgs.WrapMsg("bad event body", "err", err.Error()))
		return
	}
	if userID == "" {
		fail(c, errs.ErrArgs.WrapMsg("userId is required"))
		return
	}
	n := h.pusher.EmitToUser(userID, body.Event, body.Data)
	ok(c, gin.H{"delivered": n})
}

func (h *Handler) UserStatus(c *gin.Context) {
	userID := strings.TrimSpace(c.Param("userId"))
	if userID == "" {
		fail(c, errs.ErrArgs.WrapMsg("userId is required"))
		return
	}
	ok(c, gin.H{"profileId": userID, "isOnline": h.status.StatusOf(userID)})
}

func ok(c *gin.Context, data any) {
	c.JSON(http.StatusOK, gin.H{"code": 0, "msg": "ok", "data": data})
}

func fail(c *gin.Context, err error) {
	code := errs.Code(err)
	msg := "internal error"
	if ce, ok := errs.As(err); ok {
		msg = ce.Msg
		if ce.Detail != "" {
			msg += ": " + ce.Detail
		}
	} else {
		logger.Errorf("[Internal] %s %s err=%+v", c.Request.Method, c.FullPath(), err)
	}
	c.AbortWithStatusJSON(errs.HTTPStatus(code), gin.H{"code": code, "msg": msg})
}
