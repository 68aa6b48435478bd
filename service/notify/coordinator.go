package notify

import (
	"context"
	"encoding/json"
	"strings"
	"sync"
	"time"

	"PPGateway/logger"
	"PPGateway/service/chat"
	errs "PPGateway/tools/errs"
	"PPGateway/tools/safe"

	"github.com/google/uuid"
)

// Recipients resolves who a message is for. Both lookups return the full
// member list, sender included, and a NotFound CodeError for unknown ids.
type Recipients interface {
	ConversationParticipants(ctx context.Context, conversationID string) ([]string, error)
	GroupMembers(ctx context.Context, groupID string) ([]string, error)
}

type ProfileLookup interface {
	Profile(ctx context.Context, userID string) (Profile, error)
}

// Publisher hands an event to the durable broker. Retries, if any, happen
// behind it; a returned error only means the request was not accepted.
type Publisher interface {
	Publish(ctx context.Context, eventType string, payload []byte, routingKey string) error
}

// Emitter is the live fan-out side, satisfied by *chat.Fanout.
type Emitter interface {
	Emit(key chat.ChannelKey, event string, payload any) int
}

type Options struct {
	ResolveTimeout time.Duration
	ProfileTimeout time.Duration
	PublishTimeout time.Duration
}

// Result reports what Notify did synchronously; durable publishing is
// still in flight when it returns.
type Result struct {
	Channel    string   `json:"channel"`
	Delivered  int      `json:"delivered"`
	Recipients []string `json:"recipients"`
}

type Coordinator struct {
	emitter    Emitter
	recipients Recipients
	profiles   ProfileLookup
	publisher  Publisher
	opts       Options

	now   func() time.Time
	newID func() string

	inflight sync.WaitGroup
}

func NewCoordinator(emitter Emitter, recipients Recipients, profiles ProfileLookup, publisher Publisher, opts Options) *Coordinator {
	safe.MustNotNil(emitter, "emitter")
	safe.MustNotNil(recipients, "recipients")
	safe.MustNotNil(publisher, "publisher")
	if opts.ResolveTimeout <= 0 {
		opts.ResolveTimeout = 3 * time.Second
	}
	if opts.ProfileTimeout <= 0 {
		opts.ProfileTimeout = 2 * time.Second
	}
	if opts.PublishTimeout <= 0 {
		opts.PublishTimeout = 5 * time.Second
	}
	return &Coordinator{
		emitter:    emitter,
		recipients: recipients,
		profiles:   profiles,
		publisher:  publisher,
		opts:       opts,
		now:        time.Now,
		newID:      func() string { return uuid.NewString() },
	}
}

// Notify delivers msg: recipients are resolved first, then the message is
// emitted once on its channel, then one durable event per recipient is
// published in the background. Only target and recipient errors are
// returned; delivery problems are logged.
func (co *Coordinator) Notify(ctx context.Context, msg Message) (Result, error) {
	msg = trimIDs(msg)
	key, err := target(msg)
	if err != nil {
		return Result{}, err
	}

	recipients, err := co.resolve(ctx, msg)
	if err != nil {
		return Result{}, err
	}

	payload := msg.Payload
	if payload == nil {
		payload = msg
	}
	delivered := co.emitter.Emit(key, chat.EventNewMessage, payload)

	if len(recipients) > 0 {
		co.inflight.Add(1)
		bg := context.WithoutCancel(ctx)
		safe.Go("notify-durable", func() {
			defer co.inflight.Done()
			co.publishAll(bg, msg, recipients)
		})
	}

	return Result{Channel: key.String(), Delivered: delivered, Recipients: recipients}, nil
}

// Wait blocks until every durable step started so far has finished.
func (co *Coordinator) Wait() { co.inflight.Wait() }

// trimIDs 统一去掉 id 两端空白，之后只比较空串
func trimIDs(msg Message) Message {
	msg.ID = strings.TrimSpace(msg.ID)
	msg.SenderID = strings.TrimSpace(msg.SenderID)
	msg.ConversationID = strings.TrimSpace(msg.ConversationID)
	msg.GroupID = strings.TrimSpace(msg.GroupID)
	msg.GroupExternalID = strings.TrimSpace(msg.GroupExternalID)
	return msg
}

// target expects ids already trimmed.
func target(msg Message) (chat.ChannelKey, error) {
	if msg.ID == "" || msg.SenderID == "" {
		return chat.ChannelKey{}, errs.ErrArgs.WrapMsg("message id and sender are required")
	}
	hasConv := msg.ConversationID != ""
	hasGroup := msg.GroupID != ""
	switch {
	case hasConv && hasGroup:
		return chat.ChannelKey{}, errs.ErrArgs.WrapMsg("conversationId and groupId are mutually exclusive", "messageId", msg.ID)
	case hasConv:
		return chat.ConversationChannel(msg.ConversationID), nil
	case hasGroup:
		if msg.GroupExternalID == "" {
			return chat.ChannelKey{}, errs.ErrArgs.WrapMsg("group message needs the external group id", "messageId", msg.ID)
		}
		return chat.GroupChannel(msg.GroupExternalID), nil
	default:
		return chat.ChannelKey{}, errs.ErrArgs.WrapMsg("one of conversationId or groupId is required", "messageId", msg.ID)
	}
}

// resolve returns the members other than the sender, deduplicated. The
// sender must itself be a member.
func (co *Coordinator) resolve(ctx context.Context, msg Message) ([]string, error) {
	ctx, cancel := context.WithTimeout(ctx, co.opts.ResolveTimeout)
	defer cancel()

	var (
		members []string
		err     error
	)
	if msg.ConversationID != "" {
		members, err = co.recipients.ConversationParticipants(ctx, msg.ConversationID)
	} else {
		// 成员查询用内部群 ID
		members, err = co.recipients.GroupMembers(ctx, msg.GroupID)
	}
	if err != nil {
		if _, ok := errs.As(err); ok {
			return nil, err
		}
		return nil, errs.ErrInternalServer.WrapMsg("resolve recipients", "messageId", msg.ID, "err", err.Error())
	}

	seen := make(map[string]struct{}, len(members))
	out := make([]string, 0, len(members))
	senderIsMember := false
	for _, m := range members {
		if m == "" {
			continue
		}
		if m == msg.SenderID {
			senderIsMember = true
			continue
		}
		if _, dup := seen[m]; dup {
			continue
		}
		seen[m] = struct{}{}
		out = append(out, m)
	}
	if !senderIsMember {
		return nil, errs.ErrNoPermission.WrapMsg("sender is not a member", "sender", msg.SenderID, "messageId", msg.ID)
	}
	return out, nil
}

func (co *Coordinator) publishAll(ctx context.Context, msg Message, recipients []string) {
	profile := co.senderProfile(ctx, msg)
	preview := Preview(msg.Content)
	createdAt := co.now().UTC()

	for _, rcpt := range recipients {
		ev := OutboundEvent{
			EventID:           co.newID(),
			MessageID:         msg.ID,
			SenderUserID:      msg.SenderID,
			RecipientUserID:   rcpt,
			ConversationID:    strPtr(msg.ConversationID),
			GroupID:           strPtr(msg.GroupExternalID),
			Preview:           preview,
			SenderDisplayName: profile.DisplayName,
			SenderAvatarURL:   profile.AvatarURL,
			RoutingKey:        RoutingKeyMessageReceived,
			CreatedAt:         createdAt,
		}
		body, err := json.Marshal(ev)
		if err != nil {
			logger.Errorf("[Notify] encode event message=%s recipient=%s err=%v", msg.ID, rcpt, err)
			continue
		}
		pctx, cancel := context.WithTimeout(ctx, co.opts.PublishTimeout)
		err = co.publisher.Publish(pctx, EventMessageReceived, body, RoutingKeyMessageReceived)
		cancel()
		if err != nil {
			logger.Warnf("[Notify] publish failed message=%s recipient=%s err=%v", msg.ID, rcpt, err)
			continue
		}
		logger.Debugf("[Notify] published message=%s recipient=%s event=%s", msg.ID, rcpt, ev.EventID)
	}
}

// senderProfile never fails: on error, timeout or a blank name it falls
// back to the sender's own identity and an empty avatar.
func (co *Coordinator) senderProfile(ctx context.Context, msg Message) Profile {
	fallback := msg.SenderFallbackName
	if fallback == "" {
		fallback = msg.SenderID
	}
	if co.profiles == nil {
		return Profile{DisplayName: fallback}
	}

	ctx, cancel := context.WithTimeout(ctx, co.opts.ProfileTimeout)
	defer cancel()

	type result struct {
		p   Profile
		err error
	}
	ch := make(chan result, 1)
	safe.Go("notify-profile", func() {
		p, err := co.profiles.Profile(ctx, msg.SenderID)
		ch <- result{p, err}
	})

	select {
	case r := <-ch:
		if r.err != nil {
			logger.Warnf("[Notify] profile lookup sender=%s err=%v, using fallback", msg.SenderID, r.err)
			return Profile{DisplayName: fallback}
		}
		if strings.TrimSpace(r.p.DisplayName) == "" {
			r.p.DisplayName = fallback
		}
		return r.p
	case <-ctx.Done():
		logger.Warnf("[Notify] profile lookup sender=%s timed out, using fallback", msg.SenderID)
		return Profile{DisplayName: fallback}
	}
}
