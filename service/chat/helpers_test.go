package chat

import (
	"encoding/json"
	"testing"

	"PPGateway/tools/security"
)

func newTestConn(id, user string) *Conn {
	return NewConn(id, security.Identity{UserID: user, DisplayNameFallback: user}, nil, 16)
}

// drain returns every frame queued on c so far.
func drain(t *testing.T, c *Conn) []Envelope {
	t.Helper()
	var out []Envelope
	for {
		select {
		case b, ok := <-c.send:
			if !ok {
				return out
			}
			var env Envelope
			if err := json.Unmarshal(b, &env); err != nil {
				t.Fatalf("bad frame %q: %v", b, err)
			}
			out = append(out, env)
		default:
			return out
		}
	}
}

func countEvent(envs []Envelope, event string) int {
	n := 0
	for _, e := range envs {
		if e.Event == event {
			n++
		}
	}
	return n
}
