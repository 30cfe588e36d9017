package form

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
	ErrNameRequired    = errors.New("name is required")
	ErrModuleNotFound  = errors.New("module not found")
	ErrFormNotFound    = errors.New("form not found")
	ErrSectionNotFound = errors.New("section not found")
)

type CreateFormDTO struct {
	ModuleID    string `json:"module_id" binding:"required"`
	Name        string `json:"name"      binding:"required"`
	Description string `json:"description"`
	IsPublished bool   `json:"is_published"`
}

type UpdateFormDTO struct {
	ModuleID    *string `json:"module_id"`
	Name        *string `json:"name"`
	Description *string `json:"description"`
	IsPublished *bool   `json:"is_published"`
}

type CreateSectionDTO struct {
	Title string `json:"title"`
	Order int    `json:"order"`
}

type CreateSubformDTO struct {
	Name  string `json:"name" binding:"required"`
	Order int    `json:"order"`
}

// Catalog is told to reconcile lookup sources after forms change.
type Catalog interface {
	Reconcile(ctx context.Context) (lookup.ReconcileReport, error)
}

// Linker drops the lookup relations of a deleted form's fields.
type Linker interface {
	UnlinkForm(ctx context.Context, formID string)
}

type Service struct {
	db      *gorm.DB
	catalog Catalog
	linker  Linker
	logger  *zap.Logger
}

type ServiceOption func(*Service)

func WithLogger(l *zap.Logger) ServiceOption {
	return func(s *Service) {
		if l != nil {
			s.logger = l.Named("FormService")
		}
	}
}

func WithCatalog(c Catalog) ServiceOption {
	return func(s *Service) { s.catalog = c }
}

func WithLinker(l Linker) ServiceOption {
	return func(s *Service) { s.linker = l }
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

// List returns the forms of moduleID, or every form when moduleID is empty.
func (s *Service) List(ctx context.Context, moduleID string) ([]models.FormModel, error) {
	q := s.db.WithContext(ctx).Order("created_at ASC")
	if moduleID != "" {
		q = q.Where("module_id = ?", moduleID)
	}
	var forms []models.FormModel
	return forms, q.Find(&forms).Error
}

func byOrder(db *gorm.DB) *gorm.DB { return db.Order("sort_order ASC").Order("created_at ASC") }

// Get returns the form with its sections, subforms and fields, or nil.
func (s *Service) Get(ctx context.Context, id string) (*models.FormModel, error) {
	var f models.FormModel
	err := s.db.WithContext(ctx).
		Preload("Sections", byOrder).
		Preload("Sections.Fields", byOrder).
		Preload("Sections.Subforms", byOrder).
		Preload("Sections.Subforms.Fields", byOrder).
		First(&f, "id = ?", id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &f, nil
}

func (s *Service) moduleExists(ctx context.Context, id string) error {
	var n int64
	if err := s.db.WithContext(ctx).Model(&models.ModuleModel{}).Where("id = ?", id).Count(&n).Error; err != nil {
		return err
	}
	if n == 0 {
		return ErrModuleNotFound
	}
	return nil
}

func (s *Service) Create(ctx context.Context, dto *CreateFormDTO) (*models.FormModel, error) {
	name := strings.TrimSpace(dto.Name)
	if name == "" {
		return nil, ErrNameRequired
	}
	if err := s.moduleExists(ctx, dto.ModuleID); err != nil {
		return nil, err
	}
	f := models.FormModel{
		ModuleID:    dto.ModuleID,
		Name:        name,
		Description: dto.Description,
		IsPublished: dto.IsPublished,
	}
	if err := s.db.WithContext(ctx).Create(&f).Error; err != nil {
		return nil, err
	}
	s.reconcile(ctx)
	return &f, nil
}

func (s *Service) Update(ctx context.Context, id string, dto *UpdateFormDTO) (*models.FormModel, error) {
	f, err := s.Get(ctx, id)
	if err != nil || f == nil {
		return f, err
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
	if dto.IsPublished != nil {
		updates["is_published"] = *dto.IsPublished
	}
	if dto.ModuleID != nil && *dto.ModuleID != f.ModuleID {
		if err := s.moduleExists(ctx, *dto.ModuleID); err != nil {
			return nil, err
		}
		updates["module_id"] = *dto.ModuleID
	}
	if len(updates) > 0 {
		if err := s.db.WithContext(ctx).Model(&models.FormModel{}).Where("id = ?", id).Updates(updates).Error; err != nil {
			return nil, err
		}
		s.reconcile(ctx)
	}
	return s.Get(ctx, id)
}

// Delete removes the form with its sections, subforms and fields. Records are
// kept and stay reachable by id.
func (s *Service) Delete(ctx context.Context, id string) error {
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var sectionIDs []string
		if err := tx.Model(&models.FormSectionModel{}).Where("form_id = ?", id).Pluck("id", &sectionIDs).Error; err != nil {
			return err
		}
		if len(sectionIDs) > 0 {
			var subformIDs []string
			if err := tx.Model(&models.SubformModel{}).Where("section_id IN ?", sectionIDs).Pluck("id", &subformIDs).Error; err != nil {
				return err
			}
			fields := tx.Where("section_id IN ?", sectionIDs)
			if len(subformIDs) > 0 {
				fields = tx.Where("section_id IN ? OR subform_id IN ?", sectionIDs, subformIDs)
			}
			if err := fields.Delete(&models.FormFieldModel{}).Error; err != nil {
				return err
			}
			if err := tx.Where("section_id IN ?", sectionIDs).Delete(&models.SubformModel{}).Error; err != nil {
				return err
			}
			if err := tx.Where("form_id = ?", id).Delete(&models.FormSectionModel{}).Error; err != nil {
				return err
			}
		}
		return tx.Delete(&models.FormModel{}, "id = ?", id).Error
	})
	if err != nil {
		return err
	}
	if s.linker != nil {
		s.linker.UnlinkForm(ctx, id)
	}
	s.reconcile(ctx)
	return nil
}

func (s *Service) AddSection(ctx context.Context, formID string, dto *CreateSectionDTO) (*models.FormSectionModel, error) {
	var n int64
	if err := s.db.WithContext(ctx).Model(&models.FormModel{}).Where("id = ?", formID).Count(&n).Error; err != nil {
		return nil, err
	}
	if n == 0 {
		return nil, ErrFormNotFound
	}
	sec := models.FormSectionModel{FormID: formID, Title: dto.Title, Order: dto.Order}
	return &sec, s.db.WithContext(ctx).Create(&sec).Error
}

func (s *Service) AddSubform(ctx context.Context, sectionID string, dto *CreateSubformDTO) (*models.SubformModel, error) {
	var n int64
	if err := s.db.WithContext(ctx).Model(&models.FormSectionModel{}).Where("id = ?", sectionID).Count(&n).Error; err != nil {
		return nil, err
	}
	if n == 0 {
		return nil, ErrSectionNotFound
	}
	sub := models.SubformModel{SectionID: sectionID, Name: strings.TrimSpace(dto.Name), Order: dto.Order}
	return &sub, s.db.WithContext(ctx).Create(&sub).Error
}
