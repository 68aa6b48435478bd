package safe

import (
	"fmt"
	"reflect"
	"runtime/debug"

	"PPGateway/logger"
	errs "PPGateway/tools/errs"

	"go.uber.org/zap"
)

// MustNotNil panics if the given value is nil.
// Useful for enforcing required dependencies during construction.
func MustNotNil(v any, name string) {
	if v == nil {
		panic(fmt.Sprintf("%s must not be nil", name))
	}
	rv := reflect.ValueOf(v)
	switch rv.Kind() {
	case reflect.Ptr, reflect.Interface, reflect.Map, reflect.Slice, reflect.Func, reflect.Chan:
		if rv.IsNil() {
			panic(fmt.Sprintf("%s must not be nil", name))
		}
	}
}

// Go starts f in a new goroutine that recovers from panic,
// so that one bad side effect cannot crash the gateway.
func Go(name string, f func()) {
	go Run(name, f)
}

// Run calls f and logs instead of propagating a panic.
func Run(name string, f func()) {
	defer func() {
		if r := recover(); r != nil {
			logger.Error("[SafeGo] panic recovered",
				zap.String("task", name),
				zap.Error(errs.ErrPanic(r)),
				zap.ByteString("stack", debug.Stack()))
		}
	}()
	f()
}
