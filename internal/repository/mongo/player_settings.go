package mongo

import (
	"context"
	"errors"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

const playerSettingsID = "player"

type playerSettingsDoc struct {
	ID           string  `bson:"_id"`
	PlaybackRate float64 `bson:"playbackRate"`
	UpdatedAt    int64   `bson:"updatedAt"`
}

// PlayerSettingsRepository persists user playback preferences across
// restarts, currently just the playback rate.
type PlayerSettingsRepository struct {
	collection *mongo.Collection
}

func NewPlayerSettingsRepository(client *mongo.Client, dbName string) *PlayerSettingsRepository {
	return &PlayerSettingsRepository{collection: client.Database(dbName).Collection("settings")}
}

func (r *PlayerSettingsRepository) GetPlaybackRate(ctx context.Context) (float64, bool, error) {
	var doc playerSettingsDoc
	err := r.collection.FindOne(ctx, bson.M{"_id": playerSettingsID}).Decode(&doc)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return 0, false, nil
		}
		return 0, false, err
	}
	return doc.PlaybackRate, true, nil
}

func (r *PlayerSettingsRepository) SetPlaybackRate(ctx context.Context, rate float64) error {
	update := bson.M{
		"$set": bson.M{
			"playbackRate": rate,
			"updatedAt":    time.Now().Unix(),
		},
	}
	_, err := r.collection.UpdateOne(
		ctx,
		bson.M{"_id": playerSettingsID},
		update,
		options.Update().SetUpsert(true),
	)
	return err
}
