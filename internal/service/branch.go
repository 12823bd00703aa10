package service

import (
	"context"
	"fmt"

	"github.com/sirupsen/logrus"

	"appointment-booking-api/internal/logging"
	"appointment-booking-api/internal/model"
)

// BranchCache is an optional read-through layer in front of the store.
// Implementations report ok=false on a miss or on any cache failure.
type BranchCache interface {
	GetBranches(ctx context.Context) ([]model.Branch, bool)
	SetBranches(ctx context.Context, branches []model.Branch) error
}

type BranchService struct {
	store BranchStore
	cache BranchCache
	log   logrus.FieldLogger
}

func NewBranchService(st BranchStore, cache BranchCache, log logrus.FieldLogger) *BranchService {
	if log == nil {
		log = logging.Discard()
	}
	return &BranchService{store: st, cache: cache, log: log}
}

func (s *BranchService) List(ctx context.Context) ([]model.Branch, error) {
	if s.cache != nil {
		if out, ok := s.cache.GetBranches(ctx); ok {
			return out, nil
		}
	}
	out, err := s.store.ListBranches(ctx)
	if err != nil {
		return nil, storeErr(err, "list branches")
	}
	if s.cache != nil {
		if err := s.cache.SetBranches(ctx, out); err != nil {
			logging.WithContext(ctx, s.log).WithError(err).Warn("branch cache write failed")
		}
	}
	return out, nil
}

// Get serves from the cached list when available; branches are
// immutable after seeding.
func (s *BranchService) Get(ctx context.Context, id int64) (*model.Branch, error) {
	if s.cache != nil {
		if all, ok := s.cache.GetBranches(ctx); ok {
			for _, b := range all {
				if b.ID == id {
					return &b, nil
				}
			}
		}
	}
	b, err := s.store.GetBranch(ctx, id)
	if err != nil {
		return nil, storeErr(err, fmt.Sprintf("branch %d", id))
	}
	return b, nil
}
