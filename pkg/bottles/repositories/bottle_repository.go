package repositories

import (
	"context"
	"errors"
	"fmt"

	"github.com/onebottle/onebottle-api/pkg/bottles/models"
	"gorm.io/gorm"
)

// ErrOwnerTaken is returned by Create when the owner already has a bottle.
var ErrOwnerTaken = errors.New("owner already has a bottle")

type BottleRepository interface {
	FindByOwner(ctx context.Context, owner string) (*models.Bottle, error)
	// Create inserts the bottle. The unique index on owner_id is the source of
	// truth for the one-shot rule; a duplicate yields ErrOwnerTaken.
	Create(ctx context.Context, bottle *models.Bottle) error
	GetApprovedByID(ctx context.Context, id string) (*models.Bottle, error)
	CountEligible(ctx context.Context, viewer string) (int64, error)
	PickEligible(ctx context.Context, viewer string, offset int) (*models.Bottle, error)
	ReferencedKeys(ctx context.Context, keys []string) (map[string]bool, error)
	Count(ctx context.Context) (int64, error)
}

type bottleRepository struct {
	db *gorm.DB
}

func NewBottleRepository(db *gorm.DB) BottleRepository {
	return &bottleRepository{db: db}
}

func (r *bottleRepository) FindByOwner(ctx context.Context, owner string) (*models.Bottle, error) {
	var bottle models.Bottle
	err := r.db.WithContext(ctx).Where("owner_id = ?", owner).First(&bottle).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &bottle, nil
}

func (r *bottleRepository) Create(ctx context.Context, bottle *models.Bottle) error {
	err := r.db.WithContext(ctx).Create(bottle).Error
	if isUniqueViolation(err) {
		return fmt.Errorf("%w: %s", ErrOwnerTaken, bottle.ID)
	}
	return err
}

func (r *bottleRepository) GetApprovedByID(ctx context.Context, id string) (*models.Bottle, error) {
	var bottle models.Bottle
	err := r.db.WithContext(ctx).
		Where("id = ? AND visibility = ?", id, models.VisibilityApproved).
		First(&bottle).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &bottle, nil
}

// eligible selects approved bottles not owned by viewer and never shown to
// viewer. The exposure lookup is served by idx_exposures_viewer_bottle.
func (r *bottleRepository) eligible(ctx context.Context, viewer string) *gorm.DB {
	return r.db.WithContext(ctx).Model(&models.Bottle{}).
		Where("visibility = ? AND owner_id <> ?", models.VisibilityApproved, viewer).
		Where("NOT EXISTS (SELECT 1 FROM exposures WHERE exposures.viewer_id = ? AND exposures.bottle_id = bottles.id)", viewer)
}

func (r *bottleRepository) CountEligible(ctx context.Context, viewer string) (int64, error) {
	var n int64
	if err := r.eligible(ctx, viewer).Count(&n).Error; err != nil {
		return 0, err
	}
	return n, nil
}

// PickEligible returns the eligible bottle at offset in a stable order, or nil
// when the offset is past the end.
func (r *bottleRepository) PickEligible(ctx context.Context, viewer string, offset int) (*models.Bottle, error) {
	var bottles []models.Bottle
	err := r.eligible(ctx, viewer).
		Order("created_at, id").
		Offset(offset).
		Limit(1).
		Find(&bottles).Error
	if err != nil {
		return nil, err
	}
	if len(bottles) == 0 {
		return nil, nil
	}
	return &bottles[0], nil
}

func (r *bottleRepository) ReferencedKeys(ctx context.Context, keys []string) (map[string]bool, error) {
	out := make(map[string]bool, len(keys))
	if len(keys) == 0 {
		return out, nil
	}
	var found []string
	if err := r.db.WithContext(ctx).Model(&models.Bottle{}).
		Where("media_key IN ?", keys).
		Pluck("media_key", &found).Error; err != nil {
		return nil, err
	}
	for _, k := range found {
		out[k] = true
	}
	return out, nil
}

func (r *bottleRepository) Count(ctx context.Context) (int64, error) {
	var n int64
	err := r.db.WithContext(ctx).Model(&models.Bottle{}).Count(&n).Error
	return n, err
}
