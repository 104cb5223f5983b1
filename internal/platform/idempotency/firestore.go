package idempotency

import (
	"context"
	"errors"
	"time"

	"cloud.google.com/go/firestore"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	pfirestore "github.com/hanko-field/storefront/internal/platform/firestore"
)

const (
	defaultCollection = "idempotencyKeys"
	defaultPurgeLimit = 200
)

// FirestoreStore keeps reservations in a Firestore collection so every instance sees them.
type FirestoreStore struct {
	provider   *pfirestore.Provider
	collection string
}

// NewFirestoreStore constructs a store. An empty collection falls back to "idempotencyKeys".
func NewFirestoreStore(provider *pfirestore.Provider, collection string) (*FirestoreStore, error) {
	if provider == nil {
		return nil, errors.New("idempotency: firestore provider is required")
	}
	if collection == "" {
		collection = defaultCollection
	}
	return &FirestoreStore{provider: provider, collection: collection}, nil
}

func (s *FirestoreStore) ref(ctx context.Context, key string) (*firestore.DocumentRef, error) {
	client, err := s.provider.Client(ctx)
	if err != nil {
		return nil, err
	}
	return client.Collection(s.collection).Doc(documentID(key)), nil
}

func (s *FirestoreStore) Reserve(ctx context.Context, key, fingerprint string, now time.Time, ttl time.Duration) (Reservation, error) {
	now = now.UTC()
	ref, err := s.ref(ctx, key)
	if err != nil {
		return Reservation{}, err
	}

	var result Reservation
	err = s.provider.RunTransaction(ctx, func(_ context.Context, tx *firestore.Transaction) error {
		existing, found, err := readRecord(tx, ref)
		if err != nil {
			return err
		}
		if found && !existing.expired(now) {
			result, err = decide(existing, fingerprint)
			return err
		}
		record := newPending(key, fingerprint, now, ttl)
		if err := tx.Set(ref, toDocument(record)); err != nil {
			return err
		}
		result = Reservation{Outcome: OutcomeProceed, Record: record}
		return nil
	})
	if errors.Is(err, ErrFingerprintMismatch) {
		return Reservation{}, ErrFingerprintMismatch
	}
	return result, err
}

func (s *FirestoreStore) Complete(ctx context.Context, key, fingerprint string, resp Response, now time.Time, ttl time.Duration) error {
	now = now.UTC()
	ref, err := s.ref(ctx, key)
	if err != nil {
		return err
	}
	err = s.provider.RunTransaction(ctx, func(_ context.Context, tx *firestore.Transaction) error {
		record, found, err := readRecord(tx, ref)
		if err != nil {
			return err
		}
		if found && record.Fingerprint != fingerprint {
			return ErrFingerprintMismatch
		}
		if !found {
			record = Record{Key: key, Fingerprint: fingerprint}
		}
		return tx.Set(ref, toDocument(complete(record, resp, now, ttl)))
	})
	if errors.Is(err, ErrFingerprintMismatch) {
		return ErrFingerprintMismatch
	}
	return err
}

func (s *FirestoreStore) Release(ctx context.Context, key string) error {
	ref, err := s.ref(ctx, key)
	if err != nil {
		return err
	}
	if _, err := ref.Delete(ctx); err != nil && status.Code(err) != codes.NotFound {
		return pfirestore.WrapError("idempotency.release", err)
	}
	return nil
}

// Purge deletes up to limit expired records in one batch.
func (s *FirestoreStore) Purge(ctx context.Context, now time.Time, limit int) (int, error) {
	if limit <= 0 {
		limit = defaultPurgeLimit
	}
	client, err := s.provider.Client(ctx)
	if err != nil {
		return 0, err
	}
	docs, err := client.Collection(s.collection).
		Where("expiresAt", "<=", now.UTC()).
		Limit(limit).
		Documents(ctx).
		GetAll()
	if err != nil {
		return 0, pfirestore.WrapError("idempotency.purge", err)
	}
	if len(docs) == 0 {
		return 0, nil
	}
	writer := client.BulkWriter(ctx)
	for _, doc := range docs {
		if _, err := writer.Delete(doc.Ref); err != nil {
			writer.End()
			return 0, pfirestore.WrapError("idempotency.purge", err)
		}
	}
	writer.End()
	return len(docs), nil
}

func readRecord(tx *firestore.Transaction, ref *firestore.DocumentRef) (Record, bool, error) {
	snap, err := tx.Get(ref)
	if status.Code(err) == codes.NotFound {
		return Record{}, false, nil
	}
	if err != nil {
		return Record{}, false, err
	}
	var doc recordDocument
	if err := snap.DataTo(&doc); err != nil {
		return Record{}, false, err
	}
	return doc.record(), true, nil
}

type recordDocument struct {
	Key         string              `firestore:"key"`
	Fingerprint string              `firestore:"fingerprint"`
	Status      string              `firestore:"status"`
	StatusCode  int                 `firestore:"statusCode"`
	Headers     map[string][]string `firestore:"headers,omitempty"`
	Body        []byte              `firestore:"body,omitempty"`
	CreatedAt   time.Time           `firestore:"createdAt"`
	ExpiresAt   time.Time           `firestore:"expiresAt"`
}

func toDocument(r Record) recordDocument {
	return recordDocument{
		Key:         r.Key,
		Fingerprint: r.Fingerprint,
		Status:      string(r.Status),
		StatusCode:  r.StatusCode,
		Headers:     r.Headers,
		Body:        r.Body,
		CreatedAt:   r.CreatedAt,
		ExpiresAt:   r.ExpiresAt,
	}
}

func (d recordDocument) record() Record {
	return Record{
		Key:         d.Key,
		Fingerprint: d.Fingerprint,
		Status:      Status(d.Status),
		StatusCode:  d.StatusCode,
		Headers:     d.Headers,
		Body:        d.Body,
		CreatedAt:   d.CreatedAt,
		ExpiresAt:   d.ExpiresAt,
	}
}

var _ Store = (*FirestoreStore)(nil)
