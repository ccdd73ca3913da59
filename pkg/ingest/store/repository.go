package store

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/mosaic-archive/mosaic/pkg/timeline"
	"gorm.io/gorm"
)

// Repository is the Postgres-backed persistence layer for timeline entities
// and import provenance records.
type Repository struct {
	db *gorm.DB
}

func NewRepository(db *gorm.DB) *Repository {
	return &Repository{db: db}
}

func (r *Repository) AutoMigrate() error {
	return r.db.AutoMigrate(
		&timeline.ImportSource{},
		&timeline.ImportRun{},
		&timeline.Media{},
		&timeline.Email{},
		&timeline.ChatMessage{},
		&timeline.KnowledgeNote{},
		&timeline.SocialPost{},
		&timeline.Transaction{},
	)
}

func entityModel(entityType timeline.EntityType) (interface{}, error) {
	switch entityType {
	case timeline.EntityMedia:
		return &timeline.Media{}, nil
	case timeline.EntityEmail:
		return &timeline.Email{}, nil
	case timeline.EntityChatMessage:
		return &timeline.ChatMessage{}, nil
	case timeline.EntityKnowledgeNote:
		return &timeline.KnowledgeNote{}, nil
	case timeline.EntitySocialPost:
		return &timeline.SocialPost{}, nil
	case timeline.EntityTransaction:
		return &timeline.Transaction{}, nil
	default:
		return nil, fmt.Errorf("no table for entity type %q", entityType)
	}
}

func (r *Repository) ExistsByContentHash(ctx context.Context, entityType timeline.EntityType, contentHash string) (bool, error) {
	model, err := entityModel(entityType)
	if err != nil {
		return false, err
	}

	var count int64
	result := r.db.WithContext(ctx).Model(model).
		Where("content_hash = ?", contentHash).
		Limit(1).
		Count(&count)
	return count > 0, result.Error
}

func (r *Repository) CreateEntities(ctx context.Context, entities []timeline.Entity) error {
	if len(entities) == 0 {
		return nil
	}
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		for _, entity := range entities {
			if err := tx.Create(entity).Error; err != nil {
				return err
			}
		}
		return nil
	})
}

func (r *Repository) CreateImportSource(ctx context.Context, source *timeline.ImportSource) error {
	return r.db.WithContext(ctx).Create(source).Error
}

func (r *Repository) CreateImportRun(ctx context.Context, run *timeline.ImportRun) error {
	return r.db.WithContext(ctx).Create(run).Error
}

func (r *Repository) SaveImportRun(ctx context.Context, run *timeline.ImportRun) error {
	return r.db.WithContext(ctx).Save(run).Error
}

// GetImportRun returns nil when no run exists with the given id.
func (r *Repository) GetImportRun(ctx context.Context, id uuid.UUID) (*timeline.ImportRun, error) {
	var run timeline.ImportRun
	result := r.db.WithContext(ctx).First(&run, "id = ?", id)
	if errors.Is(result.Error, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if result.Error != nil {
		return nil, result.Error
	}
	return &run, nil
}

func (r *Repository) FindCompletedRunByFileHash(ctx context.Context, fileHash string) (*timeline.ImportRun, error) {
	if fileHash == "" {
		return nil, nil
	}
	var run timeline.ImportRun
	result := r.db.WithContext(ctx).
		Where("status = ? AND file_hash = ?", timeline.ImportCompleted, fileHash).
		Order("started_at DESC").
		First(&run)
	if errors.Is(result.Error, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if result.Error != nil {
		return nil, result.Error
	}
	return &run, nil
}
