package mongo

import (
	"context"
	"errors"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"marketchat/internal/domain/chat"
)

// ListingDirectory reads the listing service's collection. It only projects the fields
// a conversation snapshots.
type ListingDirectory struct {
	col *mongo.Collection
}

func NewListingDirectory(db *mongo.Database) *ListingDirectory {
	return &ListingDirectory{col: db.Collection("listings")}
}

type listingDocument struct {
	ID       string `bson:"_id"`
	Title    string `bson:"title"`
	ImageURL string `bson:"image_url"`
	SellerID string `bson:"seller_id"`
}

func (d *ListingDirectory) Listing(ctx context.Context, id chat.ListingID) (chat.Listing, error) {
	opts := options.FindOne().SetProjection(bson.M{"title": 1, "image_url": 1, "seller_id": 1})
	var doc listingDocument
	if err := d.col.FindOne(ctx, bson.M{"_id": string(id)}, opts).Decode(&doc); err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return chat.Listing{}, chat.ErrListingNotFound
		}
		return chat.Listing{}, err
	}
	if doc.SellerID == "" {
		return chat.Listing{}, chat.ErrListingNotFound
	}
	return chat.Listing{
		ID:       chat.ListingID(doc.ID),
		Title:    doc.Title,
		ImageURL: doc.ImageURL,
		SellerID: chat.UserID(doc.SellerID),
	}, nil
}

// Upsert writes a listing snapshot; used to import fixtures into a Mongo deployment.
func (d *ListingDirectory) Upsert(ctx context.Context, l chat.Listing) error {
	update := bson.M{"$set": bson.M{"title": l.Title, "image_url": l.ImageURL, "seller_id": string(l.SellerID)}}
	_, err := d.col.UpdateByID(ctx, string(l.ID), update, options.Update().SetUpsert(true))
	return err
}

var _ chat.ListingDirectory = (*ListingDirectory)(nil)
