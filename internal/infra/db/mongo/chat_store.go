package mongo

import (
	"context"
	"errors"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
	"go.mongodb.org/mongo-driver/mongo/readconcern"
	"go.mongodb.org/mongo-driver/mongo/writeconcern"

	appoutbox "marketchat/internal/app/outbox"
	"marketchat/internal/domain/chat"
)

const (
	roleBuyer  = "buyer"
	roleSeller = "seller"
)

// ChatStore keeps conversations and messages in Mongo. Appends run in a transaction
// that also writes the outbox record; the conversation update is a compare-and-swap
// on seq and the recipient counter is incremented in place.
type ChatStore struct {
	client   *mongo.Client
	convs    *mongo.Collection
	messages *mongo.Collection
	outbox   appoutbox.Outbox
	encoder  appoutbox.EventEncoder
}

func NewChatStore(ctx context.Context, db *mongo.Database, box appoutbox.Outbox, encoder appoutbox.EventEncoder) (*ChatStore, error) {
	if encoder == nil {
		encoder = appoutbox.JSONEventEncoder{}
	}
	s := &ChatStore{
		client:   db.Client(),
		convs:    db.Collection("conversations"),
		messages: db.Collection("messages"),
		outbox:   box,
		encoder:  encoder,
	}
	if _, err := s.convs.Indexes().CreateMany(ctx, []mongo.IndexModel{
		{Keys: bson.D{{Key: "listing_id", Value: 1}, {Key: "buyer_id", Value: 1}}, Options: options.Index().SetUnique(true)},
		{Keys: bson.D{{Key: "participant_ids", Value: 1}, {Key: "activity_at", Value: -1}}},
	}); err != nil {
		return nil, err
	}
	if _, err := s.messages.Indexes().CreateOne(ctx, mongo.IndexModel{
		Keys:    bson.D{{Key: "conversation_id", Value: 1}, {Key: "seq", Value: 1}},
		Options: options.Index().SetUnique(true),
	}); err != nil {
		return nil, err
	}
	return s, nil
}

func (s *ChatStore) CreateOrGet(ctx context.Context, conv *chat.Conversation) (*chat.Conversation, bool, error) {
	doc := toConversationDocument(conv)
	filter := bson.M{"listing_id": doc.ListingID, "buyer_id": doc.BuyerID}
	update := bson.M{"$setOnInsert": bson.M{
		"_id":                  doc.ID,
		"listing_title":        doc.ListingTitle,
		"listing_image":        doc.ListingImage,
		"seller_id":            doc.SellerID,
		"participant_ids":      doc.ParticipantIDs,
		"participants":         doc.Participants,
		"last_message_preview": "",
		"last_sender_id":       "",
		"activity_at":          doc.CreatedAt,
		"seq":                  int64(0),
		"version":              int64(0),
		"created_at":           doc.CreatedAt,
	}}
	opts := options.FindOneAndUpdate().SetUpsert(true).SetReturnDocument(options.After)
	var out conversationDocument
	err := s.convs.FindOneAndUpdate(ctx, filter, update, opts).Decode(&out)
	if mongo.IsDuplicateKeyError(err) {
		// a concurrent upsert won; read its document
		err = s.convs.FindOne(ctx, filter).Decode(&out)
	}
	if err != nil {
		return nil, false, err
	}
	return out.toDomain(), out.ID == doc.ID, nil
}

func (s *ChatStore) Conversation(ctx context.Context, id chat.ConversationID) (*chat.Conversation, error) {
	var doc conversationDocument
	if err := s.convs.FindOne(ctx, bson.M{"_id": string(id)}).Decode(&doc); err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, chat.ErrConversationNotFound
		}
		return nil, err
	}
	return doc.toDomain(), nil
}

func (s *ChatStore) ConversationsFor(ctx context.Context, user chat.UserID) ([]*chat.Conversation, error) {
	opts := options.Find().SetSort(bson.D{{Key: "activity_at", Value: -1}, {Key: "_id", Value: -1}})
	cur, err := s.convs.Find(ctx, bson.M{"participant_ids": string(user)}, opts)
	if err != nil {
		return nil, err
	}
	defer cur.Close(ctx)
	out := make([]*chat.Conversation, 0)
	for cur.Next(ctx) {
		var doc conversationDocument
		if err := cur.Decode(&doc); err != nil {
			return nil, err
		}
		out = append(out, doc.toDomain())
	}
	return out, cur.Err()
}

func (s *ChatStore) Append(ctx context.Context, id chat.ConversationID, params chat.AppendParams) (*chat.Conversation, chat.Message, error) {
	session, err := s.client.StartSession()
	if err != nil {
		return nil, chat.Message{}, err
	}
	defer session.EndSession(ctx)

	txnOpts := options.Transaction().
		SetReadConcern(readconcern.Snapshot()).
		SetWriteConcern(writeconcern.Majority())
	var (
		conv *chat.Conversation
		msg  chat.Message
	)
	_, err = session.WithTransaction(ctx, func(sc mongo.SessionContext) (any, error) {
		current, err := s.Conversation(sc, id)
		if err != nil {
			return nil, err
		}
		prevSeq := current.Seq
		appended, err := current.Append(params)
		if err != nil {
			return nil, err
		}
		recipient, _ := current.Peer(params.SenderID)
		filter := bson.M{
			"_id":                  string(id),
			"seq":                  prevSeq,
			"participants.user_id": string(recipient),
		}
		update := bson.M{
			"$set": bson.M{
				"last_message_preview": current.LastMessagePreview,
				"last_message_at":      current.LastMessageAt,
				"last_sender_id":       string(current.LastSenderID),
				"activity_at":          current.LastMessageAt,
			},
			"$inc": bson.M{"seq": int64(1), "version": int64(1), "participants.$.unread": 1},
		}
		res, err := s.convs.UpdateOne(sc, filter, update)
		if err != nil {
			return nil, err
		}
		if res.MatchedCount == 0 {
			return nil, chat.ErrConcurrentUpdate
		}
		if _, err := s.messages.InsertOne(sc, toMessageDocument(appended)); err != nil {
			if mongo.IsDuplicateKeyError(err) {
				return nil, chat.ErrConcurrentUpdate
			}
			return nil, err
		}
		if err := appoutbox.RecordDomainEvents(sc, s.outbox, s.encoder, current.DrainEvents()); err != nil {
			return nil, err
		}
		conv, msg = current, appended
		return nil, nil
	}, txnOpts)
	if err != nil {
		return nil, chat.Message{}, err
	}
	return conv, msg, nil
}

func (s *ChatStore) MarkRead(ctx context.Context, id chat.ConversationID, reader chat.UserID) (*chat.Conversation, error) {
	filter := bson.M{"_id": string(id), "participants.user_id": string(reader)}
	update := bson.M{
		"$set": bson.M{"participants.$.unread": 0},
		"$inc": bson.M{"version": int64(1)},
	}
	opts := options.FindOneAndUpdate().SetReturnDocument(options.After)
	var doc conversationDocument
	err := s.convs.FindOneAndUpdate(ctx, filter, update, opts).Decode(&doc)
	if errors.Is(err, mongo.ErrNoDocuments) {
		if _, lookupErr := s.Conversation(ctx, id); lookupErr != nil {
			return nil, lookupErr
		}
		return nil, chat.ErrNotParticipant
	}
	if err != nil {
		return nil, err
	}
	return doc.toDomain(), nil
}

func (s *ChatStore) Messages(ctx context.Context, id chat.ConversationID, afterSeq int64, limit int) ([]chat.Message, error) {
	if _, err := s.Conversation(ctx, id); err != nil {
		return nil, err
	}
	opts := options.Find().SetSort(bson.D{{Key: "seq", Value: 1}})
	if limit > 0 {
		opts.SetLimit(int64(limit))
	}
	cur, err := s.messages.Find(ctx, bson.M{"conversation_id": string(id), "seq": bson.M{"$gt": afterSeq}}, opts)
	if err != nil {
		return nil, err
	}
	defer cur.Close(ctx)
	out := make([]chat.Message, 0)
	for cur.Next(ctx) {
		var doc messageDocument
		if err := cur.Decode(&doc); err != nil {
			return nil, err
		}
		out = append(out, doc.toDomain())
	}
	return out, cur.Err()
}

type participantDocument struct {
	UserID string `bson:"user_id"`
	Role   string `bson:"role"`
	Unread int    `bson:"unread"`
}

type conversationDocument struct {
	ID                 string                `bson:"_id"`
	ListingID          string                `bson:"listing_id"`
	ListingTitle       string                `bson:"listing_title"`
	ListingImage       string                `bson:"listing_image"`
	BuyerID            string                `bson:"buyer_id"`
	SellerID           string                `bson:"seller_id"`
	ParticipantIDs     []string              `bson:"participant_ids"`
	Participants       []participantDocument `bson:"participants"`
	LastMessagePreview string                `bson:"last_message_preview"`
	LastMessageAt      time.Time             `bson:"last_message_at,omitempty"`
	LastSenderID       string                `bson:"last_sender_id"`
	ActivityAt         time.Time             `bson:"activity_at"`
	Seq                int64                 `bson:"seq"`
	Version            int64                 `bson:"version"`
	CreatedAt          time.Time             `bson:"created_at"`
}

func toConversationDocument(c *chat.Conversation) conversationDocument {
	return conversationDocument{
		ID:             string(c.ID),
		ListingID:      string(c.ListingID),
		ListingTitle:   c.ListingTitle,
		ListingImage:   c.ListingImage,
		BuyerID:        string(c.BuyerID),
		SellerID:       string(c.SellerID),
		ParticipantIDs: []string{string(c.BuyerID), string(c.SellerID)},
		Participants: []participantDocument{
			{UserID: string(c.BuyerID), Role: roleBuyer, Unread: c.UnreadFor(c.BuyerID)},
			{UserID: string(c.SellerID), Role: roleSeller, Unread: c.UnreadFor(c.SellerID)},
		},
		LastMessagePreview: c.LastMessagePreview,
		LastMessageAt:      c.LastMessageAt,
		LastSenderID:       string(c.LastSenderID),
		ActivityAt:         c.ActivityAt(),
		Seq:                c.Seq,
		Version:            c.Version,
		CreatedAt:          c.CreatedAt,
	}
}

func (d conversationDocument) toDomain() *chat.Conversation {
	conv := &chat.Conversation{
		ID:                 chat.ConversationID(d.ID),
		ListingID:          chat.ListingID(d.ListingID),
		ListingTitle:       d.ListingTitle,
		ListingImage:       d.ListingImage,
		BuyerID:            chat.UserID(d.BuyerID),
		SellerID:           chat.UserID(d.SellerID),
		LastMessagePreview: d.LastMessagePreview,
		LastMessageAt:      d.LastMessageAt,
		LastSenderID:       chat.UserID(d.LastSenderID),
		Seq:                d.Seq,
		Version:            d.Version,
		Unread:             map[chat.UserID]int{chat.UserID(d.BuyerID): 0, chat.UserID(d.SellerID): 0},
		CreatedAt:          d.CreatedAt,
	}
	for _, p := range d.Participants {
		if _, ok := conv.Unread[chat.UserID(p.UserID)]; ok {
			conv.Unread[chat.UserID(p.UserID)] = p.Unread
		}
	}
	return conv
}

type messageDocument struct {
	ID             string    `bson:"_id"`
	ConversationID string    `bson:"conversation_id"`
	SenderID       string    `bson:"sender_id"`
	Text           string    `bson:"text"`
	Seq            int64     `bson:"seq"`
	SentAt         time.Time `bson:"sent_at"`
}

func toMessageDocument(m chat.Message) messageDocument {
	return messageDocument{
		ID:             string(m.ID),
		ConversationID: string(m.ConversationID),
		SenderID:       string(m.SenderID),
		Text:           m.Text,
		Seq:            m.Seq,
		SentAt:         m.SentAt,
	}
}

func (d messageDocument) toDomain() chat.Message {
	return chat.Message{
		ID:             chat.MessageID(d.ID),
		ConversationID: chat.ConversationID(d.ConversationID),
		SenderID:       chat.UserID(d.SenderID),
		Text:           d.Text,
		Seq:            d.Seq,
		SentAt:         d.SentAt,
	}
}

var _ chat.Store = (*ChatStore)(nil)
