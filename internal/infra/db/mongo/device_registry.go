package mongo

import (
	"context"
	"errors"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"marketchat/internal/domain/devices"
)

// DeviceRegistry stores one document per user holding the token set. Mutations use
// $addToSet and $pull so concurrent registrations and prunes merge.
type DeviceRegistry struct {
	col *mongo.Collection
}

func NewDeviceRegistry(db *mongo.Database) *DeviceRegistry {
	return &DeviceRegistry{col: db.Collection("user_devices")}
}

type deviceDocument struct {
	ID        string    `bson:"_id"`
	Tokens    []string  `bson:"tokens"`
	UpdatedAt time.Time `bson:"updated_at"`
}

func (r *DeviceRegistry) Tokens(ctx context.Context, userID string) ([]string, error) {
	var doc deviceDocument
	if err := r.col.FindOne(ctx, bson.M{"_id": userID}).Decode(&doc); err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, nil
		}
		return nil, err
	}
	return doc.Tokens, nil
}

func (r *DeviceRegistry) Add(ctx context.Context, userID, token string) error {
	update := bson.M{
		"$addToSet": bson.M{"tokens": token},
		"$set":      bson.M{"updated_at": time.Now().UTC()},
	}
	_, err := r.col.UpdateByID(ctx, userID, update, options.Update().SetUpsert(true))
	return err
}

func (r *DeviceRegistry) Remove(ctx context.Context, userID string, tokens ...string) error {
	if len(tokens) == 0 {
		return nil
	}
	update := bson.M{
		"$pull": bson.M{"tokens": bson.M{"$in": tokens}},
		"$set":  bson.M{"updated_at": time.Now().UTC()},
	}
	_, err := r.col.UpdateByID(ctx, userID, update)
	return err
}

var _ devices.Registry = (*DeviceRegistry)(nil)
