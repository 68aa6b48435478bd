package errs

import (
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"

	pkgerrs "github.com/pkg/errors"
)

// Stable machine-readable codes returned to callers.
const (
	ServerInternalError   = 500
	ArgsError             = 1001
	AuthenticationFailure = 1101
	NotFoundError         = 1201
	AuthorizationFailure  = 1301
)

var (
	ErrArgs           = NewCodeError(ArgsError, "ArgsError")
	ErrAuthFailed     = NewCodeError(AuthenticationFailure, "AuthenticationFailure")
	ErrRecordNotFound = NewCodeError(NotFoundError, "NotFound")
	ErrNoPermission   = NewCodeError(AuthorizationFailure, "AuthorizationFailure")
	ErrInternalServer = NewCodeError(ServerInternalError, "ServerInternalError")
)

func NewCodeError(code int, msg string) CodeError {
	return CodeError{
		Code: code,
		Msg:  msg,
	}
}

type CodeError struct {
	Code   int    `json:"code"`
	Msg    string `json:"msg"`
	Detail string `json:"detail,omitempty"`
}

func (e *CodeError) WithDetail(detail string) CodeError {
	var d string
	if e.Detail == "" {
		d = detail
	} else {
		d = e.Detail + ", " + detail
	}
	return CodeError{
		Code:   e.Code,
		Msg:    e.Msg,
		Detail: d,
	}
}

// Wrap returns a copy of e carrying a stack trace.
func (e *CodeError) Wrap() error {
	return pkgerrors(e.clone())
}

func (e *CodeError) clone() *CodeError {
	return &CodeError{
		Code:   e.Code,
		Msg:    e.Msg,
		Detail: e.Detail,
	}
}

// WrapMsg returns a copy of e with msg and key/value pairs appended to the detail.
func (e *CodeError) WrapMsg(msg string, kv ...any) error {
	retErr := e.clone()
	if msg != "" || len(kv) > 0 {
		detail := toString(msg, kv)
		if retErr.Detail == "" {
			retErr.Detail = detail
		} else {
			retErr.Detail += ", " + detail
		}
	}
	return pkgerrors(retErr)
}

// Is reports whether err carries the same code as e.
func (e *CodeError) Is(err error) bool {
	codeErr, ok := As(err)
	if !ok {
		return err == nil && e == nil
	}
	if e == nil {
		return false
	}
	return e.Code == codeErr.Code
}

const initialCapacity = 3

func (e *CodeError) Error() string {
	v := make([]string, 0, initialCapacity)
	v = append(v, strconv.Itoa(e.Code), e.Msg)

	if e.Detail != "" {
		v = append(v, e.Detail)
	}

	return strings.Join(v, " ")
}

// As extracts the CodeError carried anywhere in err's chain.
func As(err error) (*CodeError, bool) {
	var codeErr *CodeError
	if errors.As(err, &codeErr) && codeErr != nil {
		return codeErr, true
	}
	return nil, false
}

// Code returns err's code, ServerInternalError for foreign errors and 0 for nil.
func Code(err error) int {
	if err == nil {
		return 0
	}
	if codeErr, ok := As(err); ok {
		return codeErr.Code
	}
	return ServerInternalError
}

// HTTPStatus maps a code to the status the REST surface answers with.
func HTTPStatus(code int) int {
	switch code {
	case 0:
		return http.StatusOK
	case ArgsError:
		return http.StatusBadRequest
	case AuthenticationFailure:
		return http.StatusUnauthorized
	case NotFoundError:
		return http.StatusNotFound
	case AuthorizationFailure:
		return http.StatusForbidden
	default:
		return http.StatusInternalServerError
	}
}

func Wrap(err error) error {
	if err == nil {
		return nil
	}
	return pkgerrs.WithStack(err)
}

func WrapMsg(err error, msg string, kv ...any) error {
	if err == nil {
		return nil
	}
	return pkgerrs.Wrap(err, toString(msg, kv))
}

func New(msg string, kv ...any) error {
	return pkgerrs.New(toString(msg, kv))
}

func pkgerrors(e *CodeError) error {
	return pkgerrs.WithStack(e)
}

func toString(msg string, kv []any) string {
	if len(kv) == 0 {
		return msg
	}
	var sb strings.Builder
	sb.WriteString(msg)
	for i := 0; i < len(kv); i += 2 {
		if sb.Len() > 0 {
			sb.WriteString(", ")
		}
		sb.WriteString(fmt.Sprint(kv[i]))
		sb.WriteString("=")
		if i+1 < len(kv) {
			sb.WriteString(fmt.Sprint(kv[i+1]))
		} else {
			sb.WriteString("MISSING")
		}
	}
	return sb.String()
}
