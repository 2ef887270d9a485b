package store

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"math/big"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"hello-backend/internal/model"
)

// ErrNotFound is returned when a requested snapshot does not exist.
var ErrNotFound = errors.New("not found")

const (
	DefaultListLimit = 20
	MaxListLimit     = 100
)

// Store defines the interface for all database operations.
type Store interface {
	SaveSnapshot(ctx context.Context, fetchedAt time.Time, payload any) (model.Snapshot, error)
	LatestSnapshot(ctx context.Context) (model.Snapshot, error)
	GetSnapshot(ctx context.Context, id string) (model.Snapshot, error)
	ListSnapshots(ctx context.Context, limit int) ([]model.Snapshot, error)
	PruneSnapshots(ctx context.Context, keep int) (int64, error)

	UpsertSubscription(ctx context.Context, sub model.PushSubscription) error
	GetSubscription(ctx context.Context, endpoint string) (model.PushSubscription, error)
	ListSubscriptions(ctx context.Context) ([]model.PushSubscription, error)
	DeleteSubscription(ctx context.Context, endpoint string) error

	DB() *gorm.DB
}

// gormStore implements the Store interface using GORM.
type gormStore struct {
	db *gorm.DB
}

// NewGormStore creates a new GORM-backed store.
func NewGormStore(db *gorm.DB) Store {
	return &gormStore{db: db}
}

func (s *gormStore) DB() *gorm.DB {
	return s.db
}

// Digest returns the JSON encoding of payload and the sha256 digest of its
// canonical form. encoding/json sorts object keys and numbers are compared by
// value, so payloads differing only in layout, key order or number spelling
// ("2.5" and "2.50", "1e2" and "100") share a digest.
func Digest(payload any) ([]byte, string, error) {
	body, err := json.Marshal(payload)
	if err != nil {
		return nil, "", fmt.Errorf("failed to encode payload: %w", err)
	}
	canonical, err := json.Marshal(canonicalize(payload))
	if err != nil {
		return nil, "", fmt.Errorf("failed to encode payload: %w", err)
	}
	sum := sha256.Sum256(canonical)
	return body, hex.EncodeToString(sum[:]), nil
}

func canonicalize(v any) any {
	switch v := v.(type) {
	case map[string]any:
		out := make(map[string]any, len(v))
		for k, e := range v {
			out[k] = canonicalize(e)
		}
		return out
	case []any:
		out := make([]any, len(v))
		for i, e := range v {
			out[i] = canonicalize(e)
		}
		return out
	case json.Number:
		return canonicalNumber(v)
	default:
		return v
	}
}

// canonicalNumber rewrites n as the shortest exact decimal of its value.
func canonicalNumber(n json.Number) json.Number {
	r, ok := new(big.Rat).SetString(n.String())
	if !ok {
		return n
	}
	if r.IsInt() {
		return json.Number(r.Num().String())
	}
	places, ok := decimalPlaces(r.Denom())
	if !ok {
		return n
	}
	return json.Number(r.FloatString(places))
}

// decimalPlaces reports how many fractional digits a reduced fraction with
// denominator d needs. Only denominators of the form 2^a*5^b are finite.
func decimalPlaces(d *big.Int) (int, bool) {
	d = new(big.Int).Set(d)
	var twos, fives int
	for d.Bit(0) == 0 {
		d.Rsh(d, 1)
		twos++
	}
	five, rem := big.NewInt(5), new(big.Int)
	for {
		q, m := new(big.Int).QuoRem(d, five, rem)
		if m.Sign() != 0 {
			break
		}
		d = q
		fives++
	}
	if d.Cmp(big.NewInt(1)) != 0 {
		return 0, false
	}
	return max(twos, fives), true
}

// SaveSnapshot stores payload and marks it Changed when its digest differs from
// the most recent snapshot. The very first snapshot counts as a change.
func (s *gormStore) SaveSnapshot(ctx context.Context, fetchedAt time.Time, payload any) (model.Snapshot, error) {
	body, digest, err := Digest(payload)
	if err != nil {
		return model.Snapshot{}, err
	}

	snap := model.Snapshot{
		ID:        uuid.NewString(),
		FetchedAt: fetchedAt.UTC(),
		Body:      string(body),
		Digest:    digest,
	}

	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var previous model.Snapshot
		err := tx.Select("digest").Order("fetched_at DESC").First(&previous).Error
		switch {
		case errors.Is(err, gorm.ErrRecordNotFound):
			snap.Changed = true
		case err != nil:
			return fmt.Errorf("failed to load previous snapshot: %w", err)
		default:
			snap.Changed = previous.Digest != digest
		}

		if err := tx.Create(&snap).Error; err != nil {
			return fmt.Errorf("failed to create snapshot: %w", err)
		}
		return nil
	})
	if err != nil {
		return model.Snapshot{}, err
	}
	return snap, nil
}

func (s *gormStore) LatestSnapshot(ctx context.Context) (model.Snapshot, error) {
	var snap model.Snapshot
	err := s.db.WithContext(ctx).Order("fetched_at DESC").First(&snap).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return model.Snapshot{}, ErrNotFound
	}
	if err != nil {
		return model.Snapshot{}, fmt.Errorf("failed to load latest snapshot: %w", err)
	}
	return snap, nil
}

func (s *gormStore) GetSnapshot(ctx context.Context, id string) (model.Snapshot, error) {
	var snap model.Snapshot
	err := s.db.WithContext(ctx).First(&snap, "id = ?", id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return model.Snapshot{}, ErrNotFound
	}
	if err != nil {
		return model.Snapshot{}, fmt.Errorf("failed to load snapshot %s: %w", id, err)
	}
	return snap, nil
}

// ListSnapshots returns the newest snapshots first. limit is clamped to
// [1, MaxListLimit]; a non-positive limit selects DefaultListLimit.
func (s *gormStore) ListSnapshots(ctx context.Context, limit int) ([]model.Snapshot, error) {
	limit = ClampLimit(limit)
	var snaps []model.Snapshot
	if err := s.db.WithContext(ctx).Order("fetched_at DESC").Limit(limit).Find(&snaps).Error; err != nil {
		return nil, fmt.Errorf("failed to list snapshots: %w", err)
	}
	return snaps, nil
}

// ClampLimit normalizes a requested page size.
func ClampLimit(limit int) int {
	if limit <= 0 {
		return DefaultListLimit
	}
	if limit > MaxListLimit {
		return MaxListLimit
	}
	return limit
}

// PruneSnapshots deletes everything but the newest keep snapshots.
func (s *gormStore) PruneSnapshots(ctx context.Context, keep int) (int64, error) {
	if keep <= 0 {
		return 0, nil
	}
	db := s.db.WithContext(ctx)
	newest := db.Model(&model.Snapshot{}).Select("id").Order("fetched_at DESC").Limit(keep)
	res := db.Where("id NOT IN (?)", newest).Delete(&model.Snapshot{})
	if res.Error != nil {
		return 0, fmt.Errorf("failed to prune snapshots: %w", res.Error)
	}
	if res.RowsAffected > 0 {
		log.Printf("Pruned %d old snapshots", res.RowsAffected)
	}
	return res.RowsAffected, nil
}

// UpsertSubscription creates a subscription or replaces its keys.
func (s *gormStore) UpsertSubscription(ctx context.Context, sub model.PushSubscription) error {
	return s.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "endpoint"}},
		DoUpdates: clause.AssignmentColumns([]string{"p256dh", "auth"}),
	}).Create(&sub).Error
}

func (s *gormStore) GetSubscription(ctx context.Context, endpoint string) (model.PushSubscription, error) {
	var sub model.PushSubscription
	err := s.db.WithContext(ctx).First(&sub, "endpoint = ?", endpoint).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return model.PushSubscription{}, ErrNotFound
	}
	return sub, err
}

func (s *gormStore) ListSubscriptions(ctx context.Context) ([]model.PushSubscription, error) {
	var subs []model.PushSubscription
	if err := s.db.WithContext(ctx).Find(&subs).Error; err != nil {
		return nil, err
	}
	return subs, nil
}

func (s *gormStore) DeleteSubscription(ctx context.Context, endpoint string) error {
	return s.db.WithContext(ctx).Delete(&model.PushSubscription{Endpoint: endpoint}).Error
}
