package repositories

import (
	"context"
	"errors"
	"fmt"

	"github.com/onebottle/onebottle-api/pkg/bottles/models"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// ErrAlreadyExposed is returned by Record when the viewer already saw the bottle.
var ErrAlreadyExposed = errors.New("bottle already shown to viewer")

// ExposureRepository is the quota ledger: a derived view over exposures,
// indexed by viewer, plus the optional per-day counter for strict quotas.
type ExposureRepository interface {
	CountForDay(ctx context.Context, viewer, day string) (int64, error)
	// SeenBottleIDs lists every bottle ever shown to viewer. The sampler
	// applies the same exclusion inside its eligibility query.
	SeenBottleIDs(ctx context.Context, viewer string) ([]string, error)
	Record(ctx context.Context, exposure *models.Exposure) error
	// Reserve atomically claims one view for (viewer, day) when fewer than
	// quota were claimed. On success it returns the count this claim produced.
	Reserve(ctx context.Context, viewer, day string, quota int) (int, bool, error)
	Release(ctx context.Context, viewer, day string) error
	CountAllForDay(ctx context.Context, day string) (int64, error)
}

type exposureRepository struct {
	db *gorm.DB
}

func NewExposureRepository(db *gorm.DB) ExposureRepository {
	return &exposureRepository{db: db}
}

func (r *exposureRepository) CountForDay(ctx context.Context, viewer, day string) (int64, error) {
	var n int64
	err := r.db.WithContext(ctx).Model(&models.Exposure{}).
		Where("viewer_id = ? AND shown_on = ?", viewer, day).
		Count(&n).Error
	return n, err
}

func (r *exposureRepository) SeenBottleIDs(ctx context.Context, viewer string) ([]string, error) {
	var ids []string
	err := r.db.WithContext(ctx).Model(&models.Exposure{}).
		Where("viewer_id = ?", viewer).
		Pluck("bottle_id", &ids).Error
	return ids, err
}

func (r *exposureRepository) Record(ctx context.Context, exposure *models.Exposure) error {
	err := r.db.WithContext(ctx).Create(exposure).Error
	if isUniqueViolation(err) {
		return fmt.Errorf("%w: viewer=%s bottle=%s", ErrAlreadyExposed, exposure.ViewerID, exposure.BottleID)
	}
	return err
}

func (r *exposureRepository) Reserve(ctx context.Context, viewer, day string, quota int) (int, bool, error) {
	db := r.db.WithContext(ctx)
	if err := db.Clauses(clause.OnConflict{DoNothing: true}).
		Create(&models.DailyCounter{ViewerID: viewer, Day: day}).Error; err != nil {
		return 0, false, err
	}

	// RETURNING reads the count written by this statement, not a later one.
	var counter models.DailyCounter
	res := db.Model(&counter).
		Clauses(clause.Returning{Columns: []clause.Column{{Name: "shown"}}}).
		Where("viewer_id = ? AND day = ? AND shown < ?", viewer, day, quota).
		UpdateColumn("shown", gorm.Expr("shown + 1"))
	if res.Error != nil {
		return 0, false, res.Error
	}
	if res.RowsAffected == 0 {
		return quota, false, nil
	}
	return counter.Shown, true, nil
}

func (r *exposureRepository) Release(ctx context.Context, viewer, day string) error {
	return r.db.WithContext(ctx).Model(&models.DailyCounter{}).
		Where("viewer_id = ? AND day = ? AND shown > 0", viewer, day).
		UpdateColumn("shown", gorm.Expr("shown - 1")).Error
}

func (r *exposureRepository) CountAllForDay(ctx context.Context, day string) (int64, error) {
	var n int64
	err := r.db.WithContext(ctx).Model(&models.Exposure{}).Where("shown_on = ?", day).Count(&n).Error
	return n, err
}
