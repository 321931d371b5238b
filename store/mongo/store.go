// Package mongo provides a MongoDB storage adapter for Tally.
package mongo

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"go.mongodb.org/mongo-driver/v2/bson"
	"go.mongodb.org/mongo-driver/v2/mongo"
	"go.mongodb.org/mongo-driver/v2/mongo/options"

	tally "github.com/tallyhq/tally"
	"github.com/tallyhq/tally/account"
	"github.com/tallyhq/tally/audit"
	"github.com/tallyhq/tally/event"
	"github.com/tallyhq/tally/id"
	"github.com/tallyhq/tally/store"
)

// Collection name constants.
const (
	colAccounts    = "tally_accounts"
	colEvents      = "tally_events"
	colAuditEvents = "tally_audit_events"
)

// Index name constants. Migrate creates the indexes with these names, and
// duplicate key errors are attributed to a constraint by matching the index
// name in the server message.
const (
	idxAccountsIdentity = "idx_tally_accounts_identity"
	idxEventsIdentity   = "idx_tally_events_identity"
	idxEventsIdem       = "idx_tally_events_idem"
	idxEventsSeq        = "idx_tally_events_seq"
	idxEventsAccount    = "idx_tally_events_account"
	idxAuditTenant      = "idx_tally_audit_tenant"
)

// compile-time interface check
var _ store.Store = (*Store)(nil)

// Store implements store.Store on MongoDB.
type Store struct {
	db *mongo.Database
}

// New creates a store on an existing database handle.
func New(db *mongo.Database) *Store {
	return &Store{db: db}
}

// Open connects to MongoDB with the given URI and returns a store on the
// named database.
func Open(uri, database string) (*Store, error) {
	client, err := mongo.Connect(options.Client().ApplyURI(uri))
	if err != nil {
		return nil, fmt.Errorf("tally/mongo: connect: %w", err)
	}

	return New(client.Database(database)), nil
}

// DB returns the underlying database handle for direct access.
func (s *Store) DB() *mongo.Database { return s.db }

// Migrate creates the unique indexes that enforce the ledger's storage
// constraints.
func (s *Store) Migrate(ctx context.Context) error {
	indexes := map[string][]mongo.IndexModel{
		colAccounts: {
			{
				Keys:    bson.D{{Key: "tenant_id", Value: 1}, {Key: "id", Value: 1}},
				Options: options.Index().SetName(idxAccountsIdentity).SetUnique(true),
			},
		},
		colEvents: {
			{
				Keys:    bson.D{{Key: "tenant_id", Value: 1}, {Key: "id", Value: 1}},
				Options: options.Index().SetName(idxEventsIdentity).SetUnique(true),
			},
			{
				Keys:    bson.D{{Key: "tenant_id", Value: 1}, {Key: "idempotency_key", Value: 1}},
				Options: options.Index().SetName(idxEventsIdem).SetUnique(true),
			},
			{
				Keys: bson.D{
					{Key: "tenant_id", Value: 1},
					{Key: "account_id", Value: 1},
					{Key: "sequence_number", Value: 1},
				},
				Options: options.Index().SetName(idxEventsSeq).SetUnique(true),
			},
			{
				Keys:    bson.D{{Key: "tenant_id", Value: 1}, {Key: "account_id", Value: 1}},
				Options: options.Index().SetName(idxEventsAccount),
			},
		},
		colAuditEvents: {
			{
				Keys:    bson.D{{Key: "tenant_id", Value: 1}, {Key: "created_at", Value: 1}},
				Options: options.Index().SetName(idxAuditTenant),
			},
		},
	}

	for col, models := range indexes {
		if _, err := s.db.Collection(col).Indexes().CreateMany(ctx, models); err != nil {
			return fmt.Errorf("tally/mongo: migrate %s indexes: %w", col, err)
		}
	}

	return nil
}

// mapConstraintErr translates a duplicate key error into the sentinel error
// the engine expects, keyed by which index rejected the write.
func mapConstraintErr(err error, e *event.Event) error {
	if !mongo.IsDuplicateKeyError(err) {
		return nil
	}

	msg := err.Error()
	switch {
	case strings.Contains(msg, idxEventsIdem):
		return fmt.Errorf("%w: %q", tally.ErrDuplicateIdempotencyKey, e.IdempotencyKey)
	case strings.Contains(msg, idxEventsSeq):
		return fmt.Errorf("%w: account %s sequence %d",
			tally.ErrSequenceConflict, e.AccountID, e.SequenceNumber)
	default:
		return fmt.Errorf("%w: event %s", tally.ErrInvalidInput, e.ID)
	}
}

// ==================== Account methods ====================

func (s *Store) CreateAccount(ctx context.Context, a *account.Account) error {
	_, err := s.db.Collection(colAccounts).InsertOne(ctx, toAccountDoc(a))
	if err != nil {
		if mongo.IsDuplicateKeyError(err) {
			return fmt.Errorf("%w: account %s", tally.ErrAccountExists, a.ID)
		}
		return fmt.Errorf("tally/mongo: create account %s: %w", a.ID, err)
	}

	return nil
}

func (s *Store) GetAccount(ctx context.Context, tenantID string, accountID id.AccountID) (*account.Account, error) {
	filter := bson.D{{Key: "tenant_id", Value: tenantID}, {Key: "id", Value: accountID.String()}}

	var doc accountDoc
	err := s.db.Collection(colAccounts).FindOne(ctx, filter).Decode(&doc)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, fmt.Errorf("%w: account %s", tally.ErrAccountNotFound, accountID)
	}
	if err != nil {
		return nil, fmt.Errorf("tally/mongo: get account %s: %w", accountID, err)
	}

	a, err := fromAccountDoc(&doc)
	if err != nil {
		return nil, fmt.Errorf("tally/mongo: decode account: %w", err)
	}

	return a, nil
}

func (s *Store) ListAccounts(ctx context.Context, tenantID string) ([]*account.Account, error) {
	filter := bson.D{{Key: "tenant_id", Value: tenantID}}
	opts := options.Find().SetSort(bson.D{{Key: "created_at", Value: 1}})

	cursor, err := s.db.Collection(colAccounts).Find(ctx, filter, opts)
	if err != nil {
		return nil, fmt.Errorf("tally/mongo: list accounts: %w", err)
	}

	var docs []accountDoc
	if err := cursor.All(ctx, &docs); err != nil {
		return nil, fmt.Errorf("tally/mongo: list accounts: %w", err)
	}

	accounts := make([]*account.Account, 0, len(docs))
	for i := range docs {
		a, err := fromAccountDoc(&docs[i])
		if err != nil {
			return nil, fmt.Errorf("tally/mongo: decode account: %w", err)
		}
		accounts = append(accounts, a)
	}

	return accounts, nil
}

// ==================== Event methods ====================

func (s *Store) CreateEvent(ctx context.Context, e *event.Event) error {
	_, err := s.db.Collection(colEvents).InsertOne(ctx, toEventDoc(e))
	if err != nil {
		if mapped := mapConstraintErr(err, e); mapped != nil {
			return mapped
		}
		return fmt.Errorf("tally/mongo: create event %s: %w", e.ID, err)
	}

	return nil
}

func (s *Store) GetEventByID(ctx context.Context, tenantID string, eventID id.EventID) (*event.Event, error) {
	filter := bson.D{{Key: "tenant_id", Value: tenantID}, {Key: "id", Value: eventID.String()}}

	return s.findOneEvent(ctx, filter, fmt.Sprintf("event %s", eventID))
}

func (s *Store) GetEventByIdempotencyKey(ctx context.Context, tenantID, idemKey string) (*event.Event, error) {
	filter := bson.D{{Key: "tenant_id", Value: tenantID}, {Key: "idempotency_key", Value: idemKey}}

	return s.findOneEvent(ctx, filter, fmt.Sprintf("idempotency key %q", idemKey))
}

func (s *Store) findOneEvent(ctx context.Context, filter bson.D, what string) (*event.Event, error) {
	var doc eventDoc
	err := s.db.Collection(colEvents).FindOne(ctx, filter).Decode(&doc)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, fmt.Errorf("%w: %s", tally.ErrEventNotFound, what)
	}
	if err != nil {
		return nil, fmt.Errorf("tally/mongo: get %s: %w", what, err)
	}

	e, err := fromEventDoc(&doc)
	if err != nil {
		return nil, fmt.Errorf("tally/mongo: decode event: %w", err)
	}

	return e, nil
}

func (s *Store) ListEventsByAccount(ctx context.Context, tenantID string, accountID id.AccountID) ([]*event.Event, error) {
	filter := bson.D{{Key: "tenant_id", Value: tenantID}, {Key: "account_id", Value: accountID.String()}}
	opts := options.Find().SetSort(bson.D{{Key: "sequence_number", Value: 1}})

	cursor, err := s.db.Collection(colEvents).Find(ctx, filter, opts)
	if err != nil {
		return nil, fmt.Errorf("tally/mongo: list events for account %s: %w", accountID, err)
	}

	var docs []eventDoc
	if err := cursor.All(ctx, &docs); err != nil {
		return nil, fmt.Errorf("tally/mongo: list events for account %s: %w", accountID, err)
	}

	events := make([]*event.Event, 0, len(docs))
	for i := range docs {
		e, err := fromEventDoc(&docs[i])
		if err != nil {
			return nil, fmt.Errorf("tally/mongo: decode event: %w", err)
		}
		events = append(events, e)
	}

	return events, nil
}

func (s *Store) NextSequenceNumber(ctx context.Context, tenantID string, accountID id.AccountID) (int64, error) {
	filter := bson.D{{Key: "tenant_id", Value: tenantID}, {Key: "account_id", Value: accountID.String()}}
	opts := options.FindOne().
		SetSort(bson.D{{Key: "sequence_number", Value: -1}}).
		SetProjection(bson.D{{Key: "sequence_number", Value: 1}})

	var doc struct {
		SequenceNumber int64 `bson:"sequence_number"`
	}
	err := s.db.Collection(colEvents).FindOne(ctx, filter, opts).Decode(&doc)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return 1, nil
	}
	if err != nil {
		return 0, fmt.Errorf("tally/mongo: next sequence for account %s: %w", accountID, err)
	}

	return doc.SequenceNumber + 1, nil
}

// ==================== Audit methods ====================

func (s *Store) CreateAuditEvent(ctx context.Context, e *audit.Event) error {
	if _, err := s.db.Collection(colAuditEvents).InsertOne(ctx, toAuditDoc(e)); err != nil {
		return fmt.Errorf("tally/mongo: create audit event %s: %w", e.ID, err)
	}

	return nil
}

// ==================== Lifecycle methods ====================

// Ping checks database connectivity.
func (s *Store) Ping(ctx context.Context) error {
	return s.db.Client().Ping(ctx, nil)
}

// Close disconnects the underlying client.
func (s *Store) Close() error {
	return s.db.Client().Disconnect(context.Background())
}
