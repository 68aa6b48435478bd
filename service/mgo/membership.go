package mgo

import (
	"context"
	"errors"
	"time"

	"PPGateway/service/chat"
	errs "PPGateway/tools/errs"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

const memberStatusActive = "active"

// Group 群资料；GroupID 为内部 ID，ExternalID 为客户端可见 ID
type Group struct {
	GroupID    string     `bson:"group_id"`
	ExternalID string     `bson:"external_id"`
	Name       string     `bson:"name,omitempty"`
	DeletedAt  *time.Time `bson:"deleted_at,omitempty"`
}

func (Group) GetTableName() string { return "groups" }
func (g Group) Collection(db *mongo.Database) *mongo.Collection {
	return db.Collection(g.GetTableName())
}

type GroupMember struct {
	GroupID  string    `bson:"group_id"`
	UserID   string    `bson:"user_id"`
	Status   string    `bson:"status"`
	JoinedAt time.Time `bson:"joined_at"`
}

func (GroupMember) GetTableName() string { return "group_members" }
func (m GroupMember) Collection(db *mongo.Database) *mongo.Collection {
	return db.Collection(m.GetTableName())
}

type Conversation struct {
	ConversationID string   `bson:"conversation_id"`
	Participants   []string `bson:"participants"`
}

func (Conversation) GetTableName() string { return "conversations" }
func (c Conversation) Collection(db *mongo.Database) *mongo.Collection {
	return db.Collection(c.GetTableName())
}

// MembershipStore reads group and conversation membership. It serves both
// the room pre-join on connect and recipient resolution for messages.
type MembershipStore struct {
	db func() (*mongo.Database, bool)
}

// NewMembershipStore uses the shared connection started by StartAsync.
func NewMembershipStore() *MembershipStore {
	return &MembershipStore{db: TryGetDB}
}

func NewMembershipStoreWith(db *mongo.Database) *MembershipStore {
	return &MembershipStore{db: func() (*mongo.Database, bool) { return db, db != nil }}
}

func (s *MembershipStore) database() (*mongo.Database, error) {
	db, ok := s.db()
	if !ok {
		return nil, errs.ErrInternalServer.WrapMsg("mongo not ready", "err", errString(Err()))
	}
	return db, nil
}

// GroupsOf returns up to limit active memberships, oldest first.
func (s *MembershipStore) GroupsOf(ctx context.Context, userID string, limit int) ([]chat.GroupRef, error) {
	db, err := s.database()
	if err != nil {
		return nil, err
	}
	opts := options.Find().
		SetSort(bson.D{{Key: "joined_at", Value: 1}}).
		SetLimit(int64(limit)).
		SetProjection(bson.M{"group_id": 1})
	cur, err := GroupMember{}.Collection(db).Find(ctx, bson.M{"user_id": userID, "status": memberStatusActive}, opts)
	if err != nil {
		return nil, errs.WrapMsg(err, "find memberships", "userId", userID)
	}
	var members []GroupMember
	if err := cur.All(ctx, &members); err != nil {
		return nil, errs.WrapMsg(err, "decode memberships", "userId", userID)
	}
	if len(members) == 0 {
		return nil, nil
	}

	ids := make([]string, 0, len(members))
	for _, m := range members {
		ids = append(ids, m.GroupID)
	}
	cur, err = Group{}.Collection(db).Find(ctx, bson.M{
		"group_id":   bson.M{"$in": ids},
		"deleted_at": bson.M{"$exists": false},
	})
	if err != nil {
		return nil, errs.WrapMsg(err, "find groups", "userId", userID)
	}
	var groups []Group
	if err := cur.All(ctx, &groups); err != nil {
		return nil, errs.WrapMsg(err, "decode groups", "userId", userID)
	}
	external := make(map[string]string, len(groups))
	for _, g := range groups {
		external[g.GroupID] = g.ExternalID
	}

	out := make([]chat.GroupRef, 0, len(ids))
	for _, id := range ids {
		if ext, ok := external[id]; ok && ext != "" {
			out = append(out, chat.GroupRef{ID: id, ExternalID: ext})
		}
	}
	return out, nil
}

// GroupMembers takes the internal group id.
func (s *MembershipStore) GroupMembers(ctx context.Context, groupID string) ([]string, error) {
	db, err := s.database()
	if err != nil {
		return nil, err
	}
	var g Group
	err = Group{}.Collection(db).FindOne(ctx, bson.M{"group_id": groupID, "deleted_at": bson.M{"$exists": false}}).Decode(&g)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, errs.ErrRecordNotFound.WrapMsg("group not found", "groupId", groupID)
	}
	if err != nil {
		return nil, errs.WrapMsg(err, "find group", "groupId", groupID)
	}

	cur, err := GroupMember{}.Collection(db).Find(ctx,
		bson.M{"group_id": groupID, "status": memberStatusActive},
		options.Find().SetProjection(bson.M{"user_id": 1}))
	if err != nil {
		return nil, errs.WrapMsg(err, "find members", "groupId", groupID)
	}
	var members []GroupMember
	if err := cur.All(ctx, &members); err != nil {
		return nil, errs.WrapMsg(err, "decode members", "groupId", groupID)
	}
	out := make([]string, 0, len(members))
	for _, m := range members {
		out = append(out, m.UserID)
	}
	return out, nil
}

func (s *MembershipStore) ConversationParticipants(ctx context.Context, conversationID string) ([]string, error) {
	db, err := s.database()
	if err != nil {
		return nil, err
	}
	var c Conversation
	err = Conversation{}.Collection(db).FindOne(ctx, bson.M{"conversation_id": conversationID}).Decode(&c)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, errs.ErrRecordNotFound.WrapMsg("conversation not found", "conversationId", conversationID)
	}
	if err != nil {
		return nil, errs.WrapMsg(err, "find conversation", "conversationId", conversationID)
	}
	return c.Participants, nil
}

func errString(err error) string {
	if err == nil {
		return ""
	}
	return err.Error()
}
