package idempotency

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"net/http"
	"strings"
	"time"
)

// DefaultTTL bounds how long a reservation or completed response is kept.
const DefaultTTL = 24 * time.Hour

// Status is the lifecycle state of a stored key.
type Status string

const (
	StatusPending   Status = "pending"
	StatusCompleted Status = "completed"
)

// Outcome tells the caller what to do after Reserve.
type Outcome int

const (
	// OutcomeProceed means the caller owns the key and must Complete or Release it.
	OutcomeProceed Outcome = iota
	// OutcomeReplay means a completed response exists for the key.
	OutcomeReplay
	// OutcomeInFlight means another request holds the key right now.
	OutcomeInFlight
)

// ErrFingerprintMismatch is returned when a key is reused for a different request.
var ErrFingerprintMismatch = errors.New("idempotency: key already used for a different request")

// Record is the stored state of one key.
type Record struct {
	Key         string
	Fingerprint string
	Status      Status
	StatusCode  int
	Headers     map[string][]string
	Body        []byte
	CreatedAt   time.Time
	ExpiresAt   time.Time
}

func (r Record) expired(now time.Time) bool {
	return !r.ExpiresAt.IsZero() && !now.Before(r.ExpiresAt)
}

// Reservation is the result of Reserve.
type Reservation struct {
	Outcome Outcome
	Record  Record
}

// Response is the payload recorded against a completed key.
type Response struct {
	StatusCode int
	Headers    http.Header
	Body       []byte
}

// Store persists reservations. Keys are opaque to the store; callers scope them.
type Store interface {
	Reserve(ctx context.Context, key, fingerprint string, now time.Time, ttl time.Duration) (Reservation, error)
	Complete(ctx context.Context, key, fingerprint string, resp Response, now time.Time, ttl time.Duration) error
	Release(ctx context.Context, key string) error
	Purge(ctx context.Context, now time.Time, limit int) (int, error)
}

func documentID(key string) string {
	return hashHex([]byte(strings.TrimSpace(key)))
}

func hashHex(data []byte) string {
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:])
}

func newPending(key, fingerprint string, now time.Time, ttl time.Duration) Record {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	return Record{
		Key:         key,
		Fingerprint: fingerprint,
		Status:      StatusPending,
		CreatedAt:   now,
		ExpiresAt:   now.Add(ttl),
	}
}

// decide applies the reservation rules to an existing, unexpired record.
func decide(record Record, fingerprint string) (Reservation, error) {
	if record.Fingerprint != fingerprint {
		return Reservation{}, ErrFingerprintMismatch
	}
	if record.Status == StatusCompleted {
		return Reservation{Outcome: OutcomeReplay, Record: record}, nil
	}
	return Reservation{Outcome: OutcomeInFlight, Record: record}, nil
}

func complete(record Record, resp Response, now time.Time, ttl time.Duration) Record {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	if record.CreatedAt.IsZero() {
		record.CreatedAt = now
	}
	record.Status = StatusCompleted
	record.StatusCode = resp.StatusCode
	record.Headers = storableHeaders(resp.Headers)
	record.Body = nil
	if len(resp.Body) > 0 {
		record.Body = append([]byte(nil), resp.Body...)
	}
	record.ExpiresAt = now.Add(ttl)
	return record
}

var hopHeaders = map[string]struct{}{
	"Connection":          {},
	"Content-Length":      {},
	"Date":                {},
	"Keep-Alive":          {},
	"Proxy-Authenticate":  {},
	"Proxy-Authorization": {},
	"Set-Cookie":          {},
	"Te":                  {},
	"Trailer":             {},
	"Transfer-Encoding":   {},
	"Upgrade":             {},
}

func storableHeaders(header http.Header) map[string][]string {
	out := make(map[string][]string, len(header))
	for name, values := range header {
		canonical := http.CanonicalHeaderKey(name)
		if _, skip := hopHeaders[canonical]; skip {
			continue
		}
		out[canonical] = append([]string(nil), values...)
	}
	if len(out) == 0 {
		return nil
	}
	return out
}
