// Package repository keeps per-caller quota records. Every backend runs the ledger's
// read-modify-write step atomically: sqlite and postgres in a locking transaction,
// firestore in a native transaction, mongodb and dynamodb with conditional writes on a
// version field.
package repository

import (
	"time"

	"github.com/umputun/commentscope/pkg/quota"
)

// QuotaStore is a quota.Store holding an open connection
type QuotaStore interface {
	quota.Store
	Close() error
}

// Config represents storage configuration
type Config struct {
	Type            string
	DSN             string
	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime time.Duration

	Collection      string // table or collection name for document stores
	ProjectID       string // firestore
	CredentialsFile string // firestore service account file
	CredentialsJSON []byte // firestore service account, takes precedence over the file
	MongoURI        string
	MongoDatabase   string
	DynamoRegion    string
	DynamoEndpoint  string
}
