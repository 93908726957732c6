package mongo

import (
	"context"
	"time"

	"github.com/nijaru/videoverse/errors"
	"github.com/nijaru/videoverse/metrics"
	"github.com/nijaru/videoverse/models"
	"github.com/nijaru/videoverse/repository"
	"github.com/sirupsen/logrus"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

// codeUnauthorized is the server error code for a denied operation.
const codeUnauthorized = 13

type Repository struct {
	client *mongo.Client
	col    *mongo.Collection
	logger *logrus.Logger
}

var _ repository.VideoRepository = (*Repository)(nil)

type Options struct {
	URI            string
	Database       string
	Collection     string
	ConnectTimeout time.Duration
	Logger         *logrus.Logger
}

// Connect dials the server, verifies it with a ping and ensures the listing index.
func Connect(ctx context.Context, opts Options) (*Repository, error) {
	const op = "MongoRepository.Connect"

	if opts.ConnectTimeout <= 0 {
		opts.ConnectTimeout = 10 * time.Second
	}
	if opts.Logger == nil {
		opts.Logger = logrus.StandardLogger()
	}

	ctx, cancel := context.WithTimeout(ctx, opts.ConnectTimeout)
	defer cancel()

	client, err := mongo.Connect(ctx, options.Client().ApplyURI(opts.URI))
	if err != nil {
		return nil, errors.Internal(op, err, "Failed to connect to document store")
	}
	if err := client.Ping(ctx, nil); err != nil {
		client.Disconnect(context.Background())
		return nil, errors.Internal(op, err, "Document store unreachable")
	}

	col := client.Database(opts.Database).Collection(opts.Collection)
	_, err = col.Indexes().CreateOne(ctx, mongo.IndexModel{
		Keys: bson.D{{Key: "userId", Value: 1}, {Key: "createdAt", Value: -1}},
	})
	if err != nil {
		client.Disconnect(context.Background())
		return nil, mapError(op, err, "Failed to create index")
	}

	return NewRepository(col, opts.Logger), nil
}

// NewRepository wraps an existing collection. Close disconnects the
// collection's client.
func NewRepository(col *mongo.Collection, logger *logrus.Logger) *Repository {
	if logger == nil {
		logger = logrus.StandardLogger()
	}
	return &Repository{client: col.Database().Client(), col: col, logger: logger}
}

// Create inserts the record with a server-assigned createdAt.
func (r *Repository) Create(ctx context.Context, video *models.Video) error {
	const op = "MongoRepository.Create"

	id := primitive.NewObjectID().Hex()
	_, err := r.col.UpdateOne(ctx,
		bson.M{"_id": id},
		bson.M{
			"$setOnInsert": bson.M{
				"name":         video.Name,
				"thumbnailUrl": video.ThumbnailURL,
				"videoUrl":     video.VideoURL,
				"userId":       video.UserID,
			},
			"$currentDate": bson.M{"createdAt": true},
		},
		options.Update().SetUpsert(true),
	)
	metrics.StoreOperations.WithLabelValues("create", metrics.Status(err)).Inc()
	if err != nil {
		return mapError(op, err, "Failed to save video")
	}

	video.ID = id
	stored, err := r.Get(ctx, id)
	if err != nil {
		// The insert succeeded; leave the timestamp pending.
		r.logger.WithError(err).WithField("video_id", id).Warn("Failed to read back created video")
		return nil
	}
	video.CreatedAt = stored.CreatedAt
	return nil
}

func (r *Repository) Get(ctx context.Context, id string) (*models.Video, error) {
	const op = "MongoRepository.Get"

	var video models.Video
	err := r.col.FindOne(ctx, bson.M{"_id": id}).Decode(&video)
	metrics.StoreOperations.WithLabelValues("get", metrics.Status(err)).Inc()
	if err == mongo.ErrNoDocuments {
		return nil, errors.NotFound(op, nil, "Video not found")
	}
	if err != nil {
		return nil, mapError(op, err, "Failed to query video")
	}
	return &video, nil
}

func (r *Repository) List(ctx context.Context, userID string) ([]*models.Video, error) {
	const op = "MongoRepository.List"

	cursor, err := r.col.Find(ctx,
		bson.M{"userId": userID},
		options.Find().SetSort(bson.D{{Key: "createdAt", Value: -1}}),
	)
	if err != nil {
		metrics.StoreOperations.WithLabelValues("list", "error").Inc()
		return nil, mapError(op, err, "Failed to list videos")
	}
	defer cursor.Close(ctx)

	videos := make([]*models.Video, 0)
	err = cursor.All(ctx, &videos)
	metrics.StoreOperations.WithLabelValues("list", metrics.Status(err)).Inc()
	if err != nil {
		return nil, mapError(op, err, "Failed to read videos")
	}

	repository.SortNewestFirst(videos)
	return videos, nil
}

func (r *Repository) Update(ctx context.Context, id string, update models.VideoUpdate) error {
	const op = "MongoRepository.Update"

	if update.Name == nil {
		return nil
	}

	res, err := r.col.UpdateOne(ctx, bson.M{"_id": id}, bson.M{"$set": update})
	metrics.StoreOperations.WithLabelValues("update", metrics.Status(err)).Inc()
	if err != nil {
		return mapError(op, err, "Failed to update video")
	}
	if res.MatchedCount == 0 {
		return errors.NotFound(op, nil, "Video not found")
	}
	return nil
}

func (r *Repository) Delete(ctx context.Context, id string) error {
	const op = "MongoRepository.Delete"

	res, err := r.col.DeleteOne(ctx, bson.M{"_id": id})
	metrics.StoreOperations.WithLabelValues("delete", metrics.Status(err)).Inc()
	if err != nil {
		return mapError(op, err, "Failed to delete video")
	}
	if res.DeletedCount == 0 {
		return errors.NotFound(op, nil, "Video not found")
	}
	return nil
}

// Watch opens a change stream on the collection and re-queries the user's
// records after each relevant event. Deletes carry no document, so every
// delete triggers a refresh.
func (r *Repository) Watch(ctx context.Context, userID string) (<-chan repository.Snapshot, error) {
	const op = "MongoRepository.Watch"

	pipeline := mongo.Pipeline{
		{{Key: "$match", Value: bson.M{
			"$or": bson.A{
				bson.M{"fullDocument.userId": userID},
				bson.M{"operationType": "delete"},
			},
		}}},
	}
	stream, err := r.col.Watch(ctx, pipeline, options.ChangeStream().SetFullDocument(options.UpdateLookup))
	if err != nil {
		return nil, mapError(op, err, "Failed to subscribe to video changes")
	}

	out := make(chan repository.Snapshot)
	go func() {
		defer close(out)
		defer stream.Close(context.Background())

		emit := func(snap repository.Snapshot) bool {
			select {
			case out <- snap:
				return snap.Err == nil
			case <-ctx.Done():
				return false
			}
		}
		refresh := func() bool {
			videos, err := r.List(ctx, userID)
			if ctx.Err() != nil {
				return false
			}
			return emit(repository.Snapshot{Videos: videos, Err: err})
		}

		if !refresh() {
			return
		}
		for stream.Next(ctx) {
			if !refresh() {
				return
			}
		}
		if ctx.Err() != nil {
			return
		}

		err := mapError(op, stream.Err(), "Video subscription failed")
		r.logger.WithError(err).WithField("user_id", userID).Warn("Change stream ended")
		emit(repository.Snapshot{Err: err})
	}()

	return out, nil
}

func (r *Repository) Close() error {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return r.client.Disconnect(ctx)
}

func mapError(op string, err error, message string) error {
	if err == nil {
		return errors.Internal(op, nil, message)
	}
	if se, ok := err.(mongo.ServerError); ok && se.HasErrorCode(codeUnauthorized) {
		return errors.PermissionDenied(op, err, "Permission denied by the document store")
	}
	return errors.Internal(op, err, message)
}
