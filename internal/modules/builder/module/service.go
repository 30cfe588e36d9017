package module

import (
	"context"
	"errors"
	"strings"

	"github.com/formdeck/core/internal/models"
	"github.com/formdeck/core/internal/modules/lookup"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

var (
	ErrNameRequired   = errors.New("name is required")
	ErrParentNotFound = errors.New("parent module not found")
	ErrParentCycle    = errors.New("module cannot be nested under itself")
	ErrModuleNotEmpty = errors.New("module still contains forms or modules")
)

type CreateModuleDTO struct {
	Name        string  `json:"name" binding:"required"`
	Description string  `json:"description"`
	Icon        string  `json:"icon"`
	ParentID    *string `json:"parent_id"`
}

type UpdateModuleDTO struct {
	Name        *string `json:"name"`
	Description *string `json:"description"`
	Icon        *string `json:"icon"`
	ParentID    *string `json:"parent_id"`
}

// Catalog is told to reconcile lookup sources after modules change.
type Catalog interface {
	Reconcile(ctx context.Context) (lookup.ReconcileReport, error)
}

type Service struct {
	db      *gorm.DB
	catalog Catalog
	logger  *zap.Logger
}

type ServiceOption func(*Service)

func WithLogger(l *zap.Logger) ServiceOption {
	return func(s *Service) {
		if l != nil {
			s.logger = l.Named("ModuleService")
		}
	}
}

func WithCatalog(c Catalog) ServiceOption {
	return func(s *Service) { s.catalog = c }
}

func NewService(db *gorm.DB, opts ...ServiceOption) *Service {
	s := &Service{db: db, logger: zap.NewNop()}
	for _, o := range opts {
		o(s)
	}
	return s
}

func (s *Service) reconcile(ctx context.Context) {
	if s.catalog == nil {
		return
	}
	if _, err := s.catalog.Reconcile(ctx); err != nil {
		s.logger.Warn("reconcile lookup sources", zap.Error(err))
	}
}

func (s *Service) List(ctx context.Context) ([]models.ModuleModel, error) {
	var mods []models.ModuleModel
	return mods, s.db.WithContext(ctx).Order("name ASC").Find(&mods).Error
}

// Get returns the module with its forms, or nil.
func (s *Service) Get(ctx context.Context, id string) (*models.ModuleModel, error) {
	var m models.ModuleModel
	err := s.db.WithContext(ctx).
		Preload("Forms", func(db *gorm.DB) *gorm.DB { return db.Order("created_at ASC") }).
		First(&m, "id = ?", id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &m, nil
}

func (s *Service) Create(ctx context.Context, dto *CreateModuleDTO) (*models.ModuleModel, error) {
	name := strings.TrimSpace(dto.Name)
	if name == "" {
		return nil, ErrNameRequired
	}
	parent := normalizeParent(dto.ParentID)
	if parent != nil {
		if err := s.checkParent(ctx, "", *parent); err != nil {
			return nil, err
		}
	}
	m := models.ModuleModel{Name: name, Description: dto.Description, Icon: dto.Icon, ParentID: parent}
	if err := s.db.WithContext(ctx).Create(&m).Error; err != nil {
		return nil, err
	}
	s.reconcile(ctx)
	return &m, nil
}

func (s *Service) Update(ctx context.Context, id string, dto *UpdateModuleDTO) (*models.ModuleModel, error) {
	m, err := s.Get(ctx, id)
	if err != nil || m == nil {
		return m, err
	}
	updates := map[string]interface{}{}
	if dto.Name != nil {
		name := strings.TrimSpace(*dto.Name)
		if name == "" {
			return nil, ErrNameRequired
		}
		updates["name"] = name
	}
	if dto.Description != nil {
		updates["description"] = *dto.Description
	}
	if dto.Icon != nil {
		updates["icon"] = *dto.Icon
	}
	if dto.ParentID != nil {
		parent := normalizeParent(dto.ParentID)
		if parent != nil {
			if err := s.checkParent(ctx, id, *parent); err != nil {
				return nil, err
			}
		}
		updates["parent_id"] = parent
	}
	if len(updates) > 0 {
		if err := s.db.WithContext(ctx).Model(m).Updates(updates).Error; err != nil {
			return nil, err
		}
		s.reconcile(ctx)
	}
	return s.Get(ctx, id)
}

// Delete refuses while the module still holds forms or child modules.
func (s *Service) Delete(ctx context.Context, id string) error {
	db := s.db.WithContext(ctx)
	var forms, children int64
	if err := db.Model(&models.FormModel{}).Where("module_id = ?", id).Count(&forms).Error; err != nil {
		return err
	}
	if err := db.Model(&models.ModuleModel{}).Where("parent_id = ?", id).Count(&children).Error; err != nil {
		return err
	}
	if forms > 0 || children > 0 {
		return ErrModuleNotEmpty
	}
	if err := db.Delete(&models.ModuleModel{}, "id = ?", id).Error; err != nil {
		return err
	}
	s.reconcile(ctx)
	return nil
}

// checkParent verifies parentID exists and is not id or one of its descendants.
func (s *Service) checkParent(ctx context.Context, id, parentID string) error {
	seen := map[string]bool{}
	for cur := parentID; cur != ""; {
		if cur == id || seen[cur] {
			return ErrParentCycle
		}
		seen[cur] = true
		var m models.ModuleModel
		err := s.db.WithContext(ctx).Select("id", "parent_id").First(&m, "id = ?", cur).Error
		if errors.Is(err, gorm.ErrRecordNotFound) {
			if cur == parentID {
				return ErrParentNotFound
			}
			return nil
		}
		if err != nil {
			return err
		}
		if m.ParentID == nil {
			return nil
		}
		cur = *m.ParentID
	}
	return nil
}

func normalizeParent(p *string) *string {
	if p == nil {
		return nil
	}
	v := strings.TrimSpace(*p)
	if v == "" {
		return nil
	}
	return &v
}
