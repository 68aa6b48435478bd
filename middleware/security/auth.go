package security

import (
	"crypto/subtle"
	"net/http"
	"strings"

	"PPGateway/logger"
	errs "PPGateway/tools/errs"

	"github.com/gin-gonic/gin"
)

// 内部接口凭证，REST 层调用时带上
const (
	HeaderInternalToken = "X-Internal-Token"
	CtxCallerKey        = "internalCaller"
)

type Options struct {
	Token                     string
	HeaderToken               string // 默认 X-Internal-Token
	EnableAuthorizationBearer bool   // 默认 true
}

func DefaultOptions(token string) *Options {
	return &Options{
		Token:                     token,
		HeaderToken:               HeaderInternalToken,
		EnableAuthorizationBearer: true,
	}
}

// Middleware rejects requests that do not carry the shared internal token.
// An empty configured token rejects everything.
func Middleware(opts *Options) gin.HandlerFunc {
	if opts == nil {
		opts = DefaultOptions("")
	}
	want := []byte(opts.Token)
	return func(c *gin.Context) {
		token := strings.TrimSpace(c.GetHeader(opts.HeaderToken))

		// 兼容 Authorization: Bearer xxx
		if token == "" && opts.EnableAuthorizationBearer {
			if authz := strings.TrimSpace(c.GetHeader("Authorization")); len(authz) > 7 &&
				strings.EqualFold(authz[:7], "bearer ") {
				token = strings.TrimSpace(authz[7:])
			}
		}

		if len(want) == 0 || subtle.ConstantTimeCompare([]byte(token), want) != 1 {
			logger.Infof("[InternalAuth] reject %s %s from %s", c.Request.Method, c.FullPath(), c.ClientIP())
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{
				"code": errs.AuthenticationFailure,
				"msg":  "invalid internal token",
			})
			return
		}
		c.Set(CtxCallerKey, c.ClientIP())
		c.Next()
	}
}
