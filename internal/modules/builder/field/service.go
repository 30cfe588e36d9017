package field

import (
	"context"
	"encoding/json"
	"errors"
	"strings"

	"github.com/formdeck/core/internal/models"
	"go.uber.org/zap"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

var (
	ErrParentRequired    = errors.New("exactly one of section_id or subform_id is required")
	ErrParentNotFound    = errors.New("section or subform not found")
	ErrTypeRequired      = errors.New("type is required")
	ErrLookupSourceEmpty = errors.New("lookup fields need lookup.sourceId")
)

type CreateFieldDTO struct {
	SectionID   *string                   `json:"section_id"`
	SubformID   *string                   `json:"subform_id"`
	Type        string                    `json:"type" binding:"required"`
	Label       string                    `json:"label"`
	Placeholder string                    `json:"placeholder"`
	Order       int                       `json:"order"`
	Required    bool                      `json:"required"`
	Validation  json.RawMessage           `json:"validation"`
	Options     json.RawMessage           `json:"options"`
	Lookup      *models.LookupFieldConfig `json:"lookup"`
}

type UpdateFieldDTO struct {
	Type        *string                   `json:"type"`
	Label       *string                   `json:"label"`
	Placeholder *string                   `json:"placeholder"`
	Order       *int                      `json:"order"`
	Required    *bool                     `json:"required"`
	Validation  json.RawMessage           `json:"validation"`
	Options     json.RawMessage           `json:"options"`
	Lookup      *models.LookupFieldConfig `json:"lookup"`
}

// Linker keeps the lookup relation index in step with field saves.
type Linker interface {
	Sync(ctx context.Context, field *models.FormFieldModel)
	Unlink(ctx context.Context, fieldID string)
}

type Service struct {
	db     *gorm.DB
	linker Linker
	logger *zap.Logger
}

type ServiceOption func(*Service)

func WithLogger(l *zap.Logger) ServiceOption {
	return func(s *Service) {
		if l != nil {
			s.logger = l.Named("FieldService")
		}
	}
}

func NewService(db *gorm.DB, linker Linker, opts ...ServiceOption) *Service {
	s := &Service{db: db, linker: linker, logger: zap.NewNop()}
	for _, o := range opts {
		o(s)
	}
	return s
}

func (s *Service) Get(ctx context.Context, id string) (*models.FormFieldModel, error) {
	var f models.FormFieldModel
	err := s.db.WithContext(ctx).First(&f, "id = ?", id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &f, nil
}

func nonEmpty(p *string) *string {
	if p == nil || strings.TrimSpace(*p) == "" {
		return nil
	}
	v := strings.TrimSpace(*p)
	return &v
}

func (s *Service) checkParent(ctx context.Context, sectionID, subformID *string) error {
	if (sectionID == nil) == (subformID == nil) {
		return ErrParentRequired
	}
	var n int64
	q := s.db.WithContext(ctx)
	var err error
	if sectionID != nil {
		err = q.Model(&models.FormSectionModel{}).Where("id = ?", *sectionID).Count(&n).Error
	} else {
		err = q.Model(&models.SubformModel{}).Where("id = ?", *subformID).Count(&n).Error
	}
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrParentNotFound
	}
	return nil
}

func checkLookup(typ string, cfg *models.LookupFieldConfig) error {
	if typ != models.FieldTypeLookup {
		return nil
	}
	if cfg == nil || strings.TrimSpace(cfg.SourceID) == "" {
		return ErrLookupSourceEmpty
	}
	return nil
}

func jsonColumn(raw json.RawMessage) datatypes.JSON {
	if len(raw) == 0 || string(raw) == "null" {
		return nil
	}
	return datatypes.JSON(raw)
}

// Create stores the field and records its lookup relation.
func (s *Service) Create(ctx context.Context, dto *CreateFieldDTO) (*models.FormFieldModel, error) {
	typ := strings.TrimSpace(dto.Type)
	if typ == "" {
		return nil, ErrTypeRequired
	}
	sectionID, subformID := nonEmpty(dto.SectionID), nonEmpty(dto.SubformID)
	if err := s.checkParent(ctx, sectionID, subformID); err != nil {
		return nil, err
	}
	if err := checkLookup(typ, dto.Lookup); err != nil {
		return nil, err
	}

	f := models.FormFieldModel{
		SectionID:   sectionID,
		SubformID:   subformID,
		Type:        typ,
		Label:       dto.Label,
		Placeholder: dto.Placeholder,
		Order:       dto.Order,
		Required:    dto.Required,
		Validation:  jsonColumn(dto.Validation),
		Options:     jsonColumn(dto.Options),
		Lookup:      dto.Lookup,
	}
	if err := s.db.WithContext(ctx).Create(&f).Error; err != nil {
		return nil, err
	}
	s.linker.Sync(ctx, &f)
	return &f, nil
}

// Update saves the changed attributes and re-syncs the lookup relation.
func (s *Service) Update(ctx context.Context, id string, dto *UpdateFieldDTO) (*models.FormFieldModel, error) {
	f, err := s.Get(ctx, id)
	if err != nil || f == nil {
		return f, err
	}
	if dto.Type != nil {
		typ := strings.TrimSpace(*dto.Type)
		if typ == "" {
			return nil, ErrTypeRequired
		}
		f.Type = typ
	}
	if dto.Label != nil {
		f.Label = *dto.Label
	}
	if dto.Placeholder != nil {
		f.Placeholder = *dto.Placeholder
	}
	if dto.Order != nil {
		f.Order = *dto.Order
	}
	if dto.Required != nil {
		f.Required = *dto.Required
	}
	if dto.Validation != nil {
		f.Validation = jsonColumn(dto.Validation)
	}
	if dto.Options != nil {
		f.Options = jsonColumn(dto.Options)
	}
	if dto.Lookup != nil {
		f.Lookup = dto.Lookup
	}
	if err := checkLookup(f.Type, f.Lookup); err != nil {
		return nil, err
	}
	if err := s.db.WithContext(ctx).Save(f).Error; err != nil {
		return nil, err
	}
	s.linker.Sync(ctx, f)
	return f, nil
}

func (s *Service) Delete(ctx context.Context, id string) error {
	if err := s.db.WithContext(ctx).Delete(&models.FormFieldModel{}, "id = ?", id).Error; err != nil {
		return err
	}
	s.linker.Unlink(ctx, id)
	return nil
}
