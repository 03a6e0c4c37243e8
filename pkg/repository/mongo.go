package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/go-pkgz/lgr"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/umputun/commentscope/pkg/domain"
)

// MongoStore keeps quota records in a mongodb collection. Writes are conditional on
// the version read by the same update, a lost race is retried.
type MongoStore struct {
	client *mongo.Client
	coll   *mongo.Collection
}

// NewMongoStore connects to cfg.MongoURI
func NewMongoStore(ctx context.Context, cfg Config) (*MongoStore, error) {
	connCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	client, err := mongo.Connect(connCtx, options.Client().ApplyURI(cfg.MongoURI))
	if err != nil {
		return nil, fmt.Errorf("connect to mongodb: %w", err)
	}
	if err := client.Ping(connCtx, nil); err != nil {
		_ = client.Disconnect(ctx)
		return nil, fmt.Errorf("ping mongodb: %w", err)
	}

	dbName := cfg.MongoDatabase
	if dbName == "" {
		dbName = "commentscope"
	}
	collection := cfg.Collection
	if collection == "" {
		collection = "users"
	}
	lgr.Printf("[DEBUG] mongodb quota store ready, db %s, collection %s", dbName, collection)
	return &MongoStore{client: client, coll: client.Database(dbName).Collection(collection)}, nil
}

// Update reads the record, runs fn and writes the result only if nobody changed
// the record in between
func (s *MongoStore) Update(ctx context.Context, callerID string, fn func(current *domain.Quota) (*domain.Quota, error)) error {
	return withRetry(ctx, conflictRetry, isConflict, func() error {
		var doc quotaDoc
		var current *domain.Quota
		err := s.coll.FindOne(ctx, bson.M{"_id": callerID}).Decode(&doc)
		switch {
		case errors.Is(err, mongo.ErrNoDocuments):
		case err != nil:
			return fmt.Errorf("find quota record: %w", err)
		default:
			current = doc.toDomain()
		}

		next, err := fn(current)
		if err != nil || next == nil {
			return err
		}

		if current == nil {
			_, err = s.coll.InsertOne(ctx, newQuotaDoc(next, 1))
			if mongo.IsDuplicateKeyError(err) {
				return errConflict
			}
			if err != nil {
				return fmt.Errorf("insert quota record: %w", err)
			}
			return nil
		}

		upd := newQuotaDoc(next, doc.Version+1)
		res, err := s.coll.ReplaceOne(ctx, bson.M{"_id": callerID, "version": doc.Version}, upd)
		if err != nil {
			return fmt.Errorf("replace quota record: %w", err)
		}
		if res.MatchedCount == 0 {
			return errConflict
		}
		return nil
	})
}

// Close disconnects from mongodb
func (s *MongoStore) Close() error {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return s.client.Disconnect(ctx)
}
