package mongo

import (
	"context"
	"errors"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"voicestream/internal/domain"
)

type listenPositionDoc struct {
	ID        string  `bson:"_id"`
	Position  float64 `bson:"position"`
	Duration  float64 `bson:"duration"`
	Title     string  `bson:"title,omitempty"`
	UpdatedAt int64   `bson:"updatedAt"`
}

// ListenHistoryRepository persists one resume position per journal entry.
type ListenHistoryRepository struct {
	collection *mongo.Collection
}

func NewListenHistoryRepository(client *mongo.Client, dbName string) *ListenHistoryRepository {
	return &ListenHistoryRepository{collection: client.Database(dbName).Collection("listen_history")}
}

func Connect(ctx context.Context, uri string, extra ...*options.ClientOptions) (*mongo.Client, error) {
	opts := append([]*options.ClientOptions{options.Client().ApplyURI(uri)}, extra...)
	client, err := mongo.Connect(ctx, opts...)
	if err != nil {
		return nil, err
	}
	return client, nil
}

func (r *ListenHistoryRepository) EnsureIndexes(ctx context.Context) error {
	if r == nil || r.collection == nil {
		return nil
	}
	models := []mongo.IndexModel{
		{Keys: bson.D{{Key: "updatedAt", Value: -1}}},
	}
	_, err := r.collection.Indexes().CreateMany(ctx, models)
	return err
}

func (r *ListenHistoryRepository) Upsert(ctx context.Context, p domain.ListenPosition) error {
	update := bson.M{
		"$set": bson.M{
			"position":  p.Position,
			"duration":  p.Duration,
			"title":     p.Title,
			"updatedAt": time.Now().UTC().Unix(),
		},
	}
	_, err := r.collection.UpdateOne(
		ctx,
		bson.M{"_id": string(p.EntryID)},
		update,
		options.Update().SetUpsert(true),
	)
	return err
}

func (r *ListenHistoryRepository) Get(ctx context.Context, id domain.EntryID) (domain.ListenPosition, error) {
	var doc listenPositionDoc
	if err := r.collection.FindOne(ctx, bson.M{"_id": string(id)}).Decode(&doc); err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return domain.ListenPosition{}, domain.ErrNotFound
		}
		return domain.ListenPosition{}, err
	}
	return fromListenDoc(doc), nil
}

func (r *ListenHistoryRepository) ListRecent(ctx context.Context, limit int) ([]domain.ListenPosition, error) {
	if limit <= 0 {
		limit = 20
	}
	opts := options.Find().
		SetSort(bson.D{{Key: "updatedAt", Value: -1}}).
		SetLimit(int64(limit))

	cursor, err := r.collection.Find(ctx, bson.M{}, opts)
	if err != nil {
		return nil, err
	}
	defer cursor.Close(ctx)

	var docs []listenPositionDoc
	if err := cursor.All(ctx, &docs); err != nil {
		return nil, err
	}
	positions := make([]domain.ListenPosition, 0, len(docs))
	for _, doc := range docs {
		positions = append(positions, fromListenDoc(doc))
	}
	return positions, nil
}

func (r *ListenHistoryRepository) Delete(ctx context.Context, id domain.EntryID) error {
	res, err := r.collection.DeleteOne(ctx, bson.M{"_id": string(id)})
	if err != nil {
		return err
	}
	if res.DeletedCount == 0 {
		return domain.ErrNotFound
	}
	return nil
}

func fromListenDoc(doc listenPositionDoc) domain.ListenPosition {
	return domain.ListenPosition{
		EntryID:   domain.EntryID(doc.ID),
		Position:  doc.Position,
		Duration:  doc.Duration,
		Title:     doc.Title,
		UpdatedAt: time.Unix(doc.UpdatedAt, 0).UTC(),
	}
}
