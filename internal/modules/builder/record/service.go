package record

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/formdeck/core/internal/models"
	"github.com/formdeck/core/internal/modules/lookup/normalize"
	"github.com/formdeck/core/internal/pkg/pagination"
	"github.com/formdeck/core/internal/pkg/response"
	"github.com/tidwall/gjson"
	"github.com/tidwall/sjson"
	"go.uber.org/zap"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

var (
	ErrFormNotFound     = errors.New("form not found")
	ErrFormNotPublished = errors.New("form is not published")
	ErrUnknownField     = errors.New("unknown field")
	ErrRequiredField    = errors.New("required field missing")
)

// SubmitDTO carries submitted values keyed by field id.
type SubmitDTO struct {
	Data map[string]any `json:"data" binding:"required"`
}

type storedValue struct {
	Label string `json:"label"`
	Type  string `json:"type"`
	Value any    `json:"value"`
}

// CachePurger drops cached responses under a key prefix.
type CachePurger interface {
	DelPrefix(ctx context.Context, prefix string) (int64, error)
}

type Service struct {
	db       *gorm.DB
	logger   *zap.Logger
	purger   CachePurger
	prefixes []string
}

type ServiceOption func(*Service)

func WithLogger(l *zap.Logger) ServiceOption {
	return func(s *Service) {
		if l != nil {
			s.logger = l.Named("RecordService")
		}
	}
}

// WithCachePurge evicts cached responses under prefixes whenever a record is
// written or deleted.
func WithCachePurge(p CachePurger, prefixes ...string) ServiceOption {
	return func(s *Service) {
		s.purger = p
		s.prefixes = prefixes
	}
}

func NewService(db *gorm.DB, opts ...ServiceOption) *Service {
	s := &Service{db: db, logger: zap.NewNop()}
	for _, o := range opts {
		o(s)
	}
	return s
}

// formFields returns the fields of a form in display order: sections by
// order, each section's own fields before its subforms' fields.
func (s *Service) formFields(ctx context.Context, formID string) ([]models.FormFieldModel, error) {
	byOrder := func(db *gorm.DB) *gorm.DB { return db.Order("sort_order ASC").Order("created_at ASC") }
	var sections []models.FormSectionModel
	err := s.db.WithContext(ctx).
		Preload("Fields", byOrder).
		Preload("Subforms", byOrder).
		Preload("Subforms.Fields", byOrder).
		Where("form_id = ?", formID).
		Scopes(byOrder).
		Find(&sections).Error
	if err != nil {
		return nil, err
	}
	var out []models.FormFieldModel
	for _, sec := range sections {
		out = append(out, sec.Fields...)
		for _, sub := range sec.Subforms {
			out = append(out, sub.Fields...)
		}
	}
	return out, nil
}

func empty(v any) bool {
	switch x := v.(type) {
	case nil:
		return true
	case string:
		return strings.TrimSpace(x) == ""
	case []any:
		return len(x) == 0
	}
	return false
}

// escapePath makes a field id safe to use as a gjson/sjson path component.
func escapePath(key string) string {
	var b strings.Builder
	for _, r := range key {
		switch r {
		case '.', '*', '?', '|', '#', '@', '!', '=', '<', '>', '%', ':', '\\':
			b.WriteByte('\\')
		}
		b.WriteRune(r)
	}
	return b.String()
}

// Submit stores a submission. When a lookup field is configured with
// useIdField, the record whose idFieldName entry holds the same value as the
// lookup is updated in place instead. The bool reports whether a record was
// created.
func (s *Service) Submit(ctx context.Context, formID string, dto *SubmitDTO, allowUnpublished bool) (*models.FormRecordModel, bool, error) {
	var form models.FormModel
	err := s.db.WithContext(ctx).Select("id", "is_published").First(&form, "id = ?", formID).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, false, ErrFormNotFound
	}
	if err != nil {
		return nil, false, err
	}
	if !form.IsPublished && !allowUnpublished {
		return nil, false, ErrFormNotPublished
	}

	fields, err := s.formFields(ctx, formID)
	if err != nil {
		return nil, false, err
	}
	known := make(map[string]bool, len(fields))
	for _, f := range fields {
		known[f.ID] = true
	}
	for key := range dto.Data {
		if !known[key] {
			return nil, false, fmt.Errorf("%w: %s", ErrUnknownField, key)
		}
	}

	data := []byte(`{}`)
	for _, f := range fields {
		v, ok := dto.Data[f.ID]
		if f.Required && (!ok || empty(v)) {
			label := f.Label
			if label == "" {
				label = f.ID
			}
			return nil, false, fmt.Errorf("%w: %s", ErrRequiredField, label)
		}
		if !ok {
			continue
		}
		data, err = sjson.SetBytes(data, escapePath(f.ID), storedValue{Label: f.Label, Type: f.Type, Value: v})
		if err != nil {
			return nil, false, err
		}
	}

	existing, err := s.findKeyed(ctx, formID, fields, dto.Data)
	if err != nil {
		return nil, false, err
	}
	if existing != nil {
		merged := []byte(existing.Data)
		if len(merged) == 0 || !gjson.ValidBytes(merged) {
			merged = []byte(`{}`)
		}
		gjson.ParseBytes(data).ForEach(func(k, v gjson.Result) bool {
			merged, err = sjson.SetRawBytes(merged, escapePath(k.String()), []byte(v.Raw))
			return err == nil
		})
		if err != nil {
			return nil, false, err
		}
		existing.Data = datatypes.JSON(merged)
		if err := s.db.WithContext(ctx).Model(existing).Update("data", existing.Data).Error; err != nil {
			return nil, false, err
		}
		s.logger.Debug("record updated by key", zap.String("form", formID), zap.String("record", existing.ID))
		s.purge(ctx)
		return existing, false, nil
	}

	rec := models.FormRecordModel{FormID: formID, Data: datatypes.JSON(data)}
	if err := s.db.WithContext(ctx).Create(&rec).Error; err != nil {
		return nil, false, err
	}
	s.purge(ctx)
	return &rec, true, nil
}

// purge evicts cached lookup responses; failures only delay visibility until the TTL.
func (s *Service) purge(ctx context.Context) {
	if s.purger == nil {
		return
	}
	for _, prefix := range s.prefixes {
		if _, err := s.purger.DelPrefix(ctx, prefix); err != nil {
			s.logger.Warn("cache purge failed", zap.String("prefix", prefix), zap.Error(err))
		}
	}
}

// findKeyed looks for the record an id-keyed lookup submission should update.
func (s *Service) findKeyed(ctx context.Context, formID string, fields []models.FormFieldModel, values map[string]any) (*models.FormRecordModel, error) {
	for _, f := range fields {
		cfg := f.Lookup
		if !f.IsLookup() || !cfg.UseIDField || strings.TrimSpace(cfg.IDFieldName) == "" {
			continue
		}
		v, ok := values[f.ID]
		if !ok || empty(v) {
			continue
		}
		keyField := ""
		for _, other := range fields {
			if other.ID == cfg.IDFieldName || strings.EqualFold(other.Label, cfg.IDFieldName) {
				keyField = other.ID
				break
			}
		}
		if keyField == "" {
			continue
		}

		want := normalize.Stringify(v)
		var rows []models.FormRecordModel
		err := s.db.WithContext(ctx).
			Where("form_id = ?", formID).
			Order("created_at DESC").
			Find(&rows).Error
		if err != nil {
			return nil, err
		}
		for i := range rows {
			got := gjson.GetBytes(rows[i].Data, escapePath(keyField))
			if got.IsObject() {
				got = got.Get("value")
			}
			if got.Exists() && got.String() == want {
				return &rows[i], nil
			}
		}
	}
	return nil, nil
}

// List pages the records of a form, newest first.
func (s *Service) List(ctx context.Context, formID string, q pagination.Query) ([]models.FormRecordModel, response.Pagination, error) {
	var rows []models.FormRecordModel
	query := s.db.WithContext(ctx).Model(&models.FormRecordModel{}).
		Where("form_id = ?", formID).
		Order("created_at DESC").
		Order("id DESC").
		Session(&gorm.Session{})
	pag, err := pagination.Paginate(query, q, &rows)
	return rows, pag, err
}

func (s *Service) Get(ctx context.Context, id string) (*models.FormRecordModel, error) {
	var rec models.FormRecordModel
	err := s.db.WithContext(ctx).First(&rec, "id = ?", id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &rec, nil
}

func (s *Service) Delete(ctx context.Context, id string) error {
	if err := s.db.WithContext(ctx).Delete(&models.FormRecordModel{}, "id = ?", id).Error; err != nil {
		return err
	}
	s.purge(ctx)
	return nil
}
