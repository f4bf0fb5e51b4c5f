package services

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/dmitrijs2005/charasync/internal/client/repositories/favorites"
	"github.com/dmitrijs2005/charasync/internal/models"
)

// FavoriteService keeps bookmarked record codes with user annotations.
type FavoriteService struct {
	repo favorites.Repository
	now  func() time.Time
}

func NewFavoriteService(db *sql.DB) *FavoriteService {
	return &FavoriteService{repo: favorites.NewSQLiteRepository(db), now: time.Now}
}

// Add bookmarks code. The code is parsed first so only well-formed codes
// are stored.
func (s *FavoriteService) Add(ctx context.Context, code string) (models.Code, error) {
	c, err := models.ParseCode(code)
	if err != nil {
		return models.Code{}, err
	}
	if err := s.repo.Add(ctx, c.String(), s.now()); err != nil {
		return models.Code{}, fmt.Errorf("add favorite: %w", err)
	}
	return c, nil
}

func (s *FavoriteService) Annotate(ctx context.Context, code models.Code, annotation string) error {
	return s.repo.Annotate(ctx, code.String(), annotation)
}

func (s *FavoriteService) Remove(ctx context.Context, code models.Code) error {
	return s.repo.Remove(ctx, code.String())
}

func (s *FavoriteService) List(ctx context.Context) ([]favorites.Favorite, error) {
	return s.repo.List(ctx)
}
