package chat

import (
	"context"
	"net/http"

	"PPGateway/logger"
	errs "PPGateway/tools/errs"
	"PPGateway/tools/safe"
	"PPGateway/tools/security"

	"github.com/gin-gonic/gin"
)

func originChecker(allowed []string) func(r *http.Request) bool {
	if len(allowed) == 0 {
		return func(*http.Request) bool { return true }
	}
	set := make(map[string]struct{}, len(allowed))
	for _, o := range allowed {
		set[o] = struct{}{}
	}
	return func(r *http.Request) bool {
		origin := r.Header.Get("Origin")
		if origin == "" {
			return true // 非浏览器客户端
		}
		_, ok := set[origin]
		return ok
	}
}

// HandleWS ===== WebSocket 会话 =====
// 握手前先鉴权，失败直接 401，不创建任何状态。
func (s *Server) HandleWS(gc *gin.Context) {
	if s.Closing() {
		gc.AbortWithStatusJSON(http.StatusServiceUnavailable, gin.H{"code": errs.ServerInternalError, "msg": "gateway shutting down"})
		return
	}

	identity, err := s.auth.Authenticate(security.TokenFromRequest(gc.Request))
	if err != nil {
		logger.Infof("[HandleWS] reject handshake remote=%s err=%v", gc.ClientIP(), err)
		gc.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"code": errs.Code(err), "msg": "authentication failed"})
		return
	}

	if !s.beginSession() {
		gc.AbortWithStatusJSON(http.StatusServiceUnavailable, gin.H{"code": errs.ServerInternalError, "msg": "gateway shutting down"})
		return
	}
	defer s.sessions.Done()

	ws, err := s.upgrader.Upgrade(gc.Writer, gc.Request, nil)
	if err != nil {
		// 常见：非 WebSocket 请求/握手失败，upgrader 已写回错误响应
		logger.Infof("[HandleWS] upgrade websocket error: %v", err)
		return
	}

	c := NewConn(s.NewConnID(), identity, ws, s.conf.SendQueue)
	done := make(chan struct{})
	go func() {
		defer close(done)
		c.writePump(s.conf.Pump)
	}()

	s.Attach(context.Background(), c)
	if s.Closing() {
		// Shutdown 的快照可能早于本次注册
		s.Detach(c)
		<-done
		return
	}

	// ---- 读循环：同一连接内按到达顺序逐帧处理 ----
	c.readPump(s.conf.Pump, func(data []byte) {
		safe.Run("ws-frame", func() { s.onFrame(c, data) })
	})

	// ---- 退出阶段：退房、下线、等待写协程收尾 ----
	s.Detach(c)
	<-done
}

func (s *Server) onFrame(c *Conn, data []byte) {
	f, err := ParseFrame(data)
	if err != nil {
		sample := data
		if len(sample) > 256 {
			sample = sample[:256]
		}
		logger.Infof("[WS] bad frame conn=%s err=%v sample=%q", c.ID, err, sample)
		s.replyError(c, "", err)
		return
	}
	if err := s.disp.Dispatch(s.Context(), c, f); err != nil {
		logger.Infof("[WS] handle event=%s conn=%s user=%s err=%v", f.Event, c.ID, c.UserID(), err)
		s.replyError(c, f.Event, err)
	}
}

func (s *Server) replyError(c *Conn, event string, err error) {
	p := ErrorPayload{Code: errs.Code(err), Msg: "internal error", Event: event}
	if ce, ok := errs.As(err); ok {
		p.Msg = ce.Msg
		if ce.Detail != "" {
			p.Msg += ": " + ce.Detail
		}
	}
	s.fanout.Reply(c, EventError, p)
}
