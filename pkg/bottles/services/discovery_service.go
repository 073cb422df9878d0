package services

import (
	"context"
	"errors"
	"log"
	"math/rand/v2"
	"time"

	"github.com/google/uuid"
	problem "github.com/onebottle/onebottle-api/pkg/bottles/helpers/problem"
	"github.com/onebottle/onebottle-api/pkg/bottles/models"
	"github.com/onebottle/onebottle-api/pkg/bottles/repositories"
)

const (
	DefaultDailyQuota = 10
	maxPickAttempts   = 3
)

type DiscoveryConfig struct {
	DailyQuota int
	// Strict serialises the quota check per viewer through an atomic counter.
	Strict bool
	Now    func() time.Time
	IntN   func(n int) int
}

// DiscoveryResult carries a nil Bottle when nothing new is left for the viewer.
type DiscoveryResult struct {
	Bottle    *models.BottleView
	Remaining int
}

// DiscoveryService hands out one random unseen bottle per call, within the
// viewer's daily quota.
type DiscoveryService struct {
	bottles repositories.BottleRepository
	ledger  repositories.ExposureRepository
	cfg     DiscoveryConfig
}

func NewDiscoveryService(bottles repositories.BottleRepository, ledger repositories.ExposureRepository, cfg DiscoveryConfig) *DiscoveryService {
	if cfg.DailyQuota < 1 {
		cfg.DailyQuota = DefaultDailyQuota
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	if cfg.IntN == nil {
		cfg.IntN = rand.IntN
	}
	return &DiscoveryService{bottles: bottles, ledger: ledger, cfg: cfg}
}

func (s *DiscoveryService) Next(ctx context.Context, viewer string) (*DiscoveryResult, error) {
	viewer, ok := models.NormalizeIdentity(viewer)
	if !ok {
		return nil, problem.NewBadRequest("Missing viewer identity",
			problem.InvalidParam{Name: "viewer", Reason: "is required"})
	}
	quota := s.cfg.DailyQuota
	day := s.cfg.Now().UTC().Format(models.DayLayout)

	var used int
	if s.cfg.Strict {
		shown, ok, err := s.ledger.Reserve(ctx, viewer, day, quota)
		if err != nil {
			log.Printf("[discovery] reserve failed: %v", err)
			return nil, problem.NewInternalServerError("Server error")
		}
		if !ok {
			return nil, ErrQuotaExceeded
		}
		used = shown - 1
	} else {
		count, err := s.ledger.CountForDay(ctx, viewer, day)
		if err != nil {
			log.Printf("[discovery] count failed: %v", err)
			return nil, problem.NewInternalServerError("Server error")
		}
		if count >= int64(quota) {
			return nil, ErrQuotaExceeded
		}
		used = int(count)
	}

	bottle, err := s.pick(ctx, viewer, day)
	if err != nil || bottle == nil {
		if s.cfg.Strict {
			if rerr := s.ledger.Release(ctx, viewer, day); rerr != nil {
				log.Printf("[discovery] release failed: %v", rerr)
			}
		}
		if err != nil {
			log.Printf("[discovery] pick failed: %v", err)
			return nil, problem.NewInternalServerError("Server error")
		}
		return &DiscoveryResult{Remaining: quota - used}, nil
	}

	return &DiscoveryResult{
		Bottle: &models.BottleView{
			Id:        bottle.ID,
			MediaUrl:  bottle.MediaURL,
			MediaKind: bottle.MediaKind,
		},
		Remaining: quota - used - 1,
	}, nil
}

// pick chooses uniformly among eligible bottles and records the exposure.
// A concurrent call for the same viewer may record the same bottle first;
// the unique (viewer, bottle) index catches that and the pick is redone.
func (s *DiscoveryService) pick(ctx context.Context, viewer, day string) (*models.Bottle, error) {
	for attempt := 0; attempt < maxPickAttempts; attempt++ {
		n, err := s.bottles.CountEligible(ctx, viewer)
		if err != nil {
			return nil, err
		}
		if n == 0 {
			return nil, nil
		}
		bottle, err := s.bottles.PickEligible(ctx, viewer, s.cfg.IntN(int(n)))
		if err != nil {
			return nil, err
		}
		if bottle == nil {
			continue
		}

		err = s.ledger.Record(ctx, &models.Exposure{
			ID:        uuid.NewString(),
			ViewerID:  viewer,
			BottleID:  bottle.ID,
			ShownOn:   day,
			CreatedAt: s.cfg.Now().UTC(),
		})
		if errors.Is(err, repositories.ErrAlreadyExposed) {
			continue
		}
		if err != nil {
			return nil, err
		}
		return bottle, nil
	}
	log.Printf("[discovery] gave up after %d contended picks", maxPickAttempts)
	return nil, nil
}

// RetrieveBottle returns nil when the bottle does not exist or is not approved.
func (s *DiscoveryService) RetrieveBottle(ctx context.Context, id string) (*models.BottleDetail, error) {
	bottle, err := s.bottles.GetApprovedByID(ctx, id)
	if err != nil || bottle == nil {
		return nil, err
	}
	return &models.BottleDetail{
		Id:        bottle.ID,
		MediaUrl:  bottle.MediaURL,
		MediaKind: bottle.MediaKind,
		CreatedAt: bottle.CreatedAt,
	}, nil
}
