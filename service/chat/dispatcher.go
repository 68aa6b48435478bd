package chat

import (
	errs "PPGateway/tools/errs"
)

type Dispatcher struct {
	handlers map[string]Handler
}

func NewDispatcher() *Dispatcher {
	return &Dispatcher{handlers: make(map[string]Handler)}
}

// Register binds h to each of its events; a later registration wins.
func (d *Dispatcher) Register(hs ...Handler) {
	for _, h := range hs {
		for _, ev := range h.Events() {
			d.handlers[ev] = h
		}
	}
}

func (d *Dispatcher) Dispatch(ctx *ChatContext, c *Conn, f *Frame) error {
	h, ok := d.handlers[f.Event]
	if !ok {
		return errs.ErrArgs.WrapMsg("no handler for event", "event", f.Event)
	}
	return h.Handle(ctx, c, f)
}

func (d *Dispatcher) GetHandler(event string) Handler {
	return d.handlers[event]
}
