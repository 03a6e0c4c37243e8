package repository

import (
	"context"
	"fmt"

	"cloud.google.com/go/firestore"
	"github.com/go-pkgz/lgr"
	"google.golang.org/api/option"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"github.com/umputun/commentscope/pkg/domain"
)

// FirestoreStore keeps quota records as documents keyed by caller id
type FirestoreStore struct {
	client     *firestore.Client
	collection string
}

// NewFirestoreStore makes a firestore client for cfg.ProjectID. Credentials come from
// cfg.CredentialsJSON, cfg.CredentialsFile or the environment, in this order.
// FIRESTORE_EMULATOR_HOST is honored by the client library.
func NewFirestoreStore(ctx context.Context, cfg Config) (*FirestoreStore, error) {
	var opts []option.ClientOption
	switch {
	case len(cfg.CredentialsJSON) > 0:
		opts = append(opts, option.WithCredentialsJSON(cfg.CredentialsJSON))
	case cfg.CredentialsFile != "":
		opts = append(opts, option.WithCredentialsFile(cfg.CredentialsFile))
	}

	client, err := firestore.NewClient(ctx, cfg.ProjectID, opts...)
	if err != nil {
		return nil, fmt.Errorf("make firestore client: %w", err)
	}
	collection := cfg.Collection
	if collection == "" {
		collection = "users"
	}
	lgr.Printf("[DEBUG] firestore quota store ready, project %s, collection %s", cfg.ProjectID, collection)
	return &FirestoreStore{client: client, collection: collection}, nil
}

// Update runs fn in a firestore transaction. The client retries the transaction on
// contention, so fn may be called several times.
func (s *FirestoreStore) Update(ctx context.Context, callerID string, fn func(current *domain.Quota) (*domain.Quota, error)) error {
	ref := s.client.Collection(s.collection).Doc(callerID)
	err := s.client.RunTransaction(ctx, func(ctx context.Context, tx *firestore.Transaction) error {
		var current *domain.Quota
		snap, err := tx.Get(ref)
		switch {
		case status.Code(err) == codes.NotFound:
		case err != nil:
			return fmt.Errorf("get quota document: %w", err)
		default:
			var doc quotaDoc
			if err := snap.DataTo(&doc); err != nil {
				return fmt.Errorf("decode quota document: %w", err)
			}
			doc.ID = callerID
			current = doc.toDomain()
		}

		next, err := fn(current)
		if err != nil || next == nil {
			return err
		}
		return tx.Set(ref, newQuotaDoc(next, 0))
	}, firestore.MaxAttempts(conflictRetry.attempts))
	return err
}

// Close closes the firestore client
func (s *FirestoreStore) Close() error {
	return s.client.Close()
}
