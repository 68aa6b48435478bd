package message

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"PPGateway/middleware"
	"PPGateway/middleware/security"
	"PPGateway/service/notify"
	errs "PPGateway/tools/errs"

	"github.com/gin-gonic/gin"
)

type fakeNotifier struct {
	got notify.Message
	err error
}

func (f *fakeNotifier) Notify(_ context.Context, msg notify.Message) (notify.Result, error) {
	f.got = msg
	if f.err != nil {
		return notify.Result{}, f.err
	}
	return notify.Result{Channel: "conversation:" + msg.ConversationID, Delivered: 2, Recipients: []string{"b"}}, nil
}

type fakePusher struct {
	user, event string
}

func (f *fakePusher) EmitToUser(userID, event string, _ any) int {
	f.user, f.event = userID, event
	return 3
}

type fakeStatus map[string]bool

func (f fakeStatus) StatusOf(userID string) bool { return f[userID] }

type reply struct {
	Code int             `json:"code"`
	Msg  string          `json:"msg"`
	Data json.RawMessage `json:"data"`
}

func setup(n *fakeNotifier, p *fakePusher, s fakeStatus) *gin.Engine {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	NewHandler(n, p, s).Register(r, middleware.RouteOpt{
		IsAuth: true,
		Auth:   security.Middleware(security.DefaultOptions("s3cret")),
	})
	return r
}

func do(r *gin.Engine, method, path, body, token string) (*httptest.ResponseRecorder, reply) {
	req := httptest.NewRequest(method, path, bytes.NewBufferString(body))
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	var rep reply
	_ = json.Unmarshal(w.Body.Bytes(), &rep)
	return w, rep
}

func TestMessageCreated(t *testing.T) {
	n := &fakeNotifier{}
	r := setup(n, &fakePusher{}, nil)
	w, rep := do(r, http.MethodPost, "/internal/messages",
		`{"id":"m1","senderId":"a","conversationId":"c1","content":"hi"}`, "s3cret")
	if w.Code != http.StatusOK || rep.Code != 0 {
		t.Fatalf("status=%d body=%s", w.Code, w.Body.String())
	}
	if n.got.ID != "m1" || n.got.ConversationID != "c1" {
		t.Fatalf("notifier got %+v", n.got)
	}
	var res notify.Result
	if err := json.Unmarshal(rep.Data, &res); err != nil || res.Delivered != 2 {
		t.Fatalf("data %s", rep.Data)
	}
}

func TestMessageCreatedErrorCodes(t *testing.T) {
	cases := []struct {
		err    error
		status int
		code   int
	}{
		{errs.ErrArgs.WrapMsg("groupExternalId required"), http.StatusBadRequest, errs.ArgsError},
		{errs.ErrRecordNotFound.WrapMsg("conversation"), http.StatusNotFound, errs.NotFoundError},
		{errs.ErrNoPermission.WrapMsg("sender not a member"), http.StatusForbidden, errs.AuthorizationFailure},
	}
	for _, tc := range cases {
		r := setup(&fakeNotifier{err: tc.err}, &fakePusher{}, nil)
		w, rep := do(r, http.MethodPost, "/internal/messages", `{"id":"m1","senderId":"a","groupId":"g"}`, "s3cret")
		if w.Code != tc.status || rep.Code != tc.code {
			t.Errorf("%v: status=%d code=%d", tc.err, w.Code, rep.Code)
		}
	}
}

func TestBadBody(t *testing.T) {
	r := setup(&fakeNotifier{}, &fakePusher{}, nil)
	w, rep := do(r, http.MethodPost, "/internal/messages", `{not json`, "s3cret")
	if w.Code != http.StatusBadRequest || rep.Code != errs.ArgsError {
		t.Fatalf("status=%d code=%d", w.Code, rep.Code)
	}
}

func TestInternalTokenRequired(t *testing.T) {
	r := setup(&fakeNotifier{}, &fakePusher{}, nil)
	for _, tok := range []string{"", "wrong"} {
		w, rep := do(r, http.MethodGet, "/internal/users/u1/status", "", tok)
		if w.Code != http.StatusUnauthorized || rep.Code != errs.AuthenticationFailure {
			t.Errorf("token %q: status=%d", tok, w.Code)
		}
	}
}

func TestPushAndStatus(t *testing.T) {
	p := &fakePusher{}
	r := setup(&fakeNotifier{}, p, fakeStatus{"u1": true})

	w, rep := do(r, http.MethodPost, "/internal/users/u1/events", `{"event":"friend_request","data":{"from":"u2"}}`, "s3cret")
	if w.Code != http.StatusOK || p.user != "u1" || p.event != "friend_request" {
		t.Fatalf("push status=%d pusher=%+v", w.Code, p)
	}
	if string(rep.Data) != `{"delivered":3}` {
		t.Fatalf("push data %s", rep.Data)
	}

	w, rep = do(r, http.MethodPost, "/internal/users/u1/events", `{"data":{}}`, "s3cret")
	if w.Code != http.StatusBadRequest {
		t.Fatalf("missing event accepted: %d", w.Code)
	}

	_, rep = do(r, http.MethodGet, "/internal/users/u1/status", "", "s3cret")
	if string(rep.Data) != `{"isOnline":true,"profileId":"u1"}` {
		t.Fatalf("status data %s", rep.Data)
	}
	_, rep = do(r, http.MethodGet, "/internal/users/u9/status", "", "s3cret")
	if string(rep.Data) != `{"isOnline":false,"profileId":"u9"}` {
		t.Fatalf("status data %s", rep.Data)
	}
}
