package repo

import (
	"context"
	"errors"
	"time"

	dmn "github.com/beka-birhanu/vinom-mazesync/domain"
	"github.com/beka-birhanu/vinom-mazesync/service/i"
	"github.com/google/uuid"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

var _ i.LayoutArchive = &LayoutRepo{}

// ErrNilLayout is returned when Save is called without a layout.
var ErrNilLayout = errors.New("nil layout")

// LayoutRepo handles the persistence of layout records.
type LayoutRepo struct {
	collection *mongo.Collection
}

// NewLayoutRepo creates a new LayoutRepo with the given MongoDB client, database name, and collection name.
func NewLayoutRepo(client *mongo.Client, dbName, collectionName string) *LayoutRepo {
	collection := client.Database(dbName).Collection(collectionName)
	return &LayoutRepo{
		collection: collection,
	}
}

// Save inserts or updates a layout in the repository.
// A layout without an id is given one; a zero CreatedAt is stamped with the current time.
func (r *LayoutRepo) Save(ctx context.Context, layout *dmn.Layout) error {
	if layout == nil {
		return ErrNilLayout
	}
	if layout.ID == uuid.Nil {
		layout.ID = uuid.New()
	}
	if layout.CreatedAt.IsZero() {
		layout.CreatedAt = time.Now().UTC()
	}

	ctx, cancel := context.WithTimeout(ctx, time.Second)
	defer cancel()

	filter := bson.M{"_id": layout.ID}
	update := bson.M{
		"$set": bson.M{
			"roomId":       layout.RoomID,
			"seed":         layout.Seed,
			"width":        layout.Width,
			"depth":        layout.Depth,
			"authority":    layout.Authority,
			"entry":        layout.Entry,
			"goal":         layout.Goal,
			"collectibles": layout.Collectibles,
			"createdAt":    layout.CreatedAt,
		},
	}

	opts := options.Update().SetUpsert(true)
	if _, err := r.collection.UpdateOne(ctx, filter, update, opts); err != nil {
		return errors.New("unexpected error: " + err.Error())
	}
	return nil
}

// ByRoom retrieves the layouts recorded for a room, newest first.
func (r *LayoutRepo) ByRoom(ctx context.Context, roomID string) ([]*dmn.Layout, error) {
	ctx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()

	filter := bson.M{"roomId": roomID}
	opts := options.Find().SetSort(bson.D{{Key: "createdAt", Value: -1}})
	cursor, err := r.collection.Find(ctx, filter, opts)
	if err != nil {
		return nil, errors.New("unexpected error: " + err.Error())
	}
	defer cursor.Close(ctx)

	layouts := make([]*dmn.Layout, 0)
	if err := cursor.All(ctx, &layouts); err != nil {
		return nil, errors.New("unexpected error: " + err.Error())
	}
	return layouts, nil
}
