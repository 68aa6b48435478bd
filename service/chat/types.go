package chat

// Handler serves one or more inbound event names.
type Handler interface {
	Events() []string
	Handle(ctx *ChatContext, c *Conn, f *Frame) error
}

type ChatContext struct {
	S *Server
}

// HandlerFunc adapts a function to a single-event Handler.
type HandlerFunc struct {
	Event string
	Fn    func(ctx *ChatContext, c *Conn, f *Frame) error
}

func (h HandlerFunc) Events() []string { return []string{h.Event} }

func (h HandlerFunc) Handle(ctx *ChatContext, c *Conn, f *Frame) error {
	return h.Fn(ctx, c, f)
}
