package repository

import (
	"context"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/kaushikasemwal/vintage-photobooth/internal/model"
)

// GalleryRepo handles MongoDB operations for the personal photo gallery
type GalleryRepo interface {
	SavePhoto(ctx context.Context, item *model.GalleryItem) error
	GetByID(ctx context.Context, id string) (*model.GalleryItem, error)
	ListByUser(ctx context.Context, userID string, limit int64) ([]*model.GalleryItem, error)
	ListBySession(ctx context.Context, sessionCode string) ([]*model.GalleryItem, error)
	Delete(ctx context.Context, id string) error
}

type galleryRepo struct {
	collection *mongo.Collection
}

// NewGalleryRepo creates a new gallery repository
func NewGalleryRepo(db *mongo.Database) GalleryRepo {
	return &galleryRepo{
		collection: db.Collection("gallery"),
	}
}

func (r *galleryRepo) SavePhoto(ctx context.Context, item *model.GalleryItem) error {
	result, err := r.collection.InsertOne(ctx, item)
	if err != nil {
		return err
	}
	if oid, ok := result.InsertedID.(primitive.ObjectID); ok {
		item.ID = oid.Hex()
	}
	return nil
}

func (r *galleryRepo) GetByID(ctx context.Context, id string) (*model.GalleryItem, error) {
	oid, err := primitive.ObjectIDFromHex(id)
	if err != nil {
		return nil, err
	}

	var item model.GalleryItem
	err = r.collection.FindOne(ctx, bson.M{"_id": oid}).Decode(&item)
	if err == mongo.ErrNoDocuments {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	item.ID = id
	return &item, nil
}

func (r *galleryRepo) ListByUser(ctx context.Context, userID string, limit int64) ([]*model.GalleryItem, error) {
	opts := options.Find().SetSort(bson.M{"takenAt": -1})
	if limit > 0 {
		opts = opts.SetLimit(limit)
	}
	cursor, err := r.collection.Find(ctx, bson.M{"userId": userID}, opts)
	if err != nil {
		return nil, err
	}
	defer cursor.Close(ctx)

	var items []*model.GalleryItem
	if err := cursor.All(ctx, &items); err != nil {
		return nil, err
	}
	return items, nil
}

func (r *galleryRepo) ListBySession(ctx context.Context, sessionCode string) ([]*model.GalleryItem, error) {
	cursor, err := r.collection.Find(ctx, bson.M{"sessionCode": sessionCode})
	if err != nil {
		return nil, err
	}
	defer cursor.Close(ctx)

	var items []*model.GalleryItem
	if err := cursor.All(ctx, &items); err != nil {
		return nil, err
	}
	return items, nil
}

func (r *galleryRepo) Delete(ctx context.Context, id string) error {
	oid, err := primitive.ObjectIDFromHex(id)
	if err != nil {
		return err
	}

	_, err = r.collection.DeleteOne(ctx, bson.M{"_id": oid})
	return err
}
