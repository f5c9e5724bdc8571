package impl

import (
	"context"
	"errors"
	"fmt"
	"time"

	"gorm.io/gorm"

	"github.com/meepleai/meepleai-api/models"
	"github.com/meepleai/meepleai-api/services"
)

type gameServiceImpl struct {
	db *gorm.DB
}

// NewGameService creates the game registry.
func NewGameService(db *gorm.DB) services.GameService {
	return &gameServiceImpl{db: db}
}

// Ensure registers a game if it does not exist yet and returns the row.
func (s *gameServiceImpl) Ensure(ctx context.Context, id, name string) (*models.Game, error) {
	var game models.Game
	err := s.db.WithContext(ctx).Where("id = ?", id).First(&game).Error
	if err == nil {
		return &game, nil
	}
	if !errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, fmt.Errorf("failed to look up game: %w", err)
	}

	if name == "" {
		name = id
	}
	game = models.Game{
		ID:        id,
		Name:      name,
		CreatedAt: time.Now().UTC(),
	}
	if err := s.db.WithContext(ctx).Create(&game).Error; err != nil {
		return nil, fmt.Errorf("failed to create game: %w", err)
	}
	return &game, nil
}

func (s *gameServiceImpl) List(ctx context.Context) ([]models.Game, error) {
	var games []models.Game
	if err := s.db.WithContext(ctx).Order("name ASC").Find(&games).Error; err != nil {
		return nil, fmt.Errorf("failed to list games: %w", err)
	}
	return games, nil
}
