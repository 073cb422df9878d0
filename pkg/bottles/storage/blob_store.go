package storage

import (
	"context"
	"errors"
	"net/url"
	"strings"
	"time"

	"github.com/onebottle/onebottle-api/pkg/bottles/models"
	"gorm.io/gorm"
)

// ErrBlobNotFound is returned by Get for unknown keys.
var ErrBlobNotFound = errors.New("blob not found")

// BlobStore holds uploaded media and resolves publicly readable locators.
type BlobStore interface {
	Put(ctx context.Context, key, contentType string, data []byte) error
	Get(ctx context.Context, key string) (*models.Blob, error)
	Delete(ctx context.Context, key string) error
	PublicURL(key string) string
	// ListOlderThan pages through keys created before cutoff in key order,
	// starting after the given key ("" for the first page).
	ListOlderThan(ctx context.Context, cutoff time.Time, after string, limit int) ([]string, error)
	Count(ctx context.Context) (int64, error)
}

// DatabaseBlobStore keeps media bytes in the blobs table. Blobs are served
// back under <publicBaseURL>/media/<key>.
type DatabaseBlobStore struct {
	db            *gorm.DB
	publicBaseURL string
	now           func() time.Time
}

func NewDatabaseBlobStore(db *gorm.DB, publicBaseURL string) *DatabaseBlobStore {
	return &DatabaseBlobStore{
		db:            db,
		publicBaseURL: strings.TrimRight(publicBaseURL, "/"),
		now:           time.Now,
	}
}

func (s *DatabaseBlobStore) Put(ctx context.Context, key, contentType string, data []byte) error {
	blob := &models.Blob{
		Key:         key,
		ContentType: contentType,
		Size:        int64(len(data)),
		Data:        data,
		CreatedAt:   s.now().UTC(),
	}
	return s.db.WithContext(ctx).Create(blob).Error
}

func (s *DatabaseBlobStore) Get(ctx context.Context, key string) (*models.Blob, error) {
	var blob models.Blob
	err := s.db.WithContext(ctx).Where("key = ?", key).First(&blob).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrBlobNotFound
	}
	if err != nil {
		return nil, err
	}
	return &blob, nil
}

// Delete is idempotent: removing an unknown key is not an error.
func (s *DatabaseBlobStore) Delete(ctx context.Context, key string) error {
	return s.db.WithContext(ctx).Where("key = ?", key).Delete(&models.Blob{}).Error
}

func (s *DatabaseBlobStore) PublicURL(key string) string {
	segments := strings.Split(key, "/")
	for i, seg := range segments {
		segments[i] = url.PathEscape(seg)
	}
	return s.publicBaseURL + "/media/" + strings.Join(segments, "/")
}

func (s *DatabaseBlobStore) ListOlderThan(ctx context.Context, cutoff time.Time, after string, limit int) ([]string, error) {
	var keys []string
	err := s.db.WithContext(ctx).Model(&models.Blob{}).
		Where("created_at < ? AND key > ?", cutoff.UTC(), after).
		Order("key").
		Limit(limit).
		Pluck("key", &keys).Error
	return keys, err
}

func (s *DatabaseBlobStore) Count(ctx context.Context) (int64, error) {
	var n int64
	err := s.db.WithContext(ctx).Model(&models.Blob{}).Count(&n).Error
	return n, err
}
