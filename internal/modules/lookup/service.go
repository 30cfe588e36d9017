package lookup

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/formdeck/core/internal/models"
	"github.com/formdeck/core/internal/modules/lookup/normalize"
	"github.com/formdeck/core/internal/modules/lookup/option"
	"github.com/tidwall/gjson"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

var (
	ErrMissingSource  = errors.New("sourceId is required")
	ErrFieldNotFound  = errors.New("field not found")
	ErrNotLookupField = errors.New("field is not a lookup field")
)

var implicitFormFields = []string{"id", "name", "title", "description", "createdAt", "updatedAt"}

// moduleShare is the divisor applied to limit and offset per form of a module.
const moduleShare = 10

// DataQuery selects candidate records of one source.
type DataQuery struct {
	SourceID string
	Search   string
	Limit    int
	Offset   int
}

// Service reads candidate records and fields of lookup sources.
type Service struct {
	db           *gorm.DB
	registry     *Registry
	logger       *zap.Logger
	defaultLimit int
	maxLimit     int
	location     *time.Location
}

func NewService(db *gorm.DB, registry *Registry, opts ...Option) *Service {
	s := newSettings(opts)
	return &Service{
		db:           db,
		registry:     registry,
		logger:       s.logger.Named("LookupService"),
		defaultLimit: s.defaultLimit,
		maxLimit:     s.maxLimit,
		location:     s.location,
	}
}

func (s *Service) window(limit, offset int) (int, int) {
	if limit <= 0 {
		limit = s.defaultLimit
	}
	if limit > s.maxLimit {
		limit = s.maxLimit
	}
	if offset < 0 {
		offset = 0
	}
	return limit, offset
}

// GetData returns at most Limit normalized records of the source. Unknown or
// inactive sources yield an empty list.
func (s *Service) GetData(ctx context.Context, q DataQuery) ([]normalize.Record, error) {
	if strings.TrimSpace(q.SourceID) == "" {
		return nil, ErrMissingSource
	}
	src, err := s.registry.Resolve(ctx, q.SourceID)
	if err != nil {
		return nil, err
	}
	if src == nil {
		return []normalize.Record{}, nil
	}
	limit, offset := s.window(q.Limit, q.Offset)

	switch src.Type {
	case models.LookupSourceStatic:
		return staticData(src, q.Search, limit, offset)
	case models.LookupSourceForm:
		if src.SourceFormID == nil {
			return []normalize.Record{}, nil
		}
		return s.formData(ctx, *src.SourceFormID, q.Search, limit, offset)
	case models.LookupSourceModule:
		if src.SourceModuleID == nil {
			return []normalize.Record{}, nil
		}
		return s.moduleData(ctx, *src.SourceModuleID, q.Search, limit, offset)
	}
	return []normalize.Record{}, nil
}

func staticData(src *models.LookupSourceModel, search string, limit, offset int) ([]normalize.Record, error) {
	term := strings.ToLower(strings.TrimSpace(search))
	var matched []gjson.Result
	for _, item := range gjson.ParseBytes(src.Data).Array() {
		if term == "" || itemMatches(item, term) {
			matched = append(matched, item)
		}
	}

	out := []normalize.Record{}
	if offset >= len(matched) {
		return out, nil
	}
	end := offset + limit
	if end > len(matched) {
		end = len(matched)
	}
	for _, item := range matched[offset:end] {
		rec, err := normalize.FromStatic(item)
		if err != nil {
			return nil, err
		}
		out = append(out, rec)
	}
	return out, nil
}

func itemMatches(item gjson.Result, term string) bool {
	found := false
	item.ForEach(func(_, v gjson.Result) bool {
		if strings.Contains(strings.ToLower(v.String()), term) {
			found = true
			return false
		}
		return true
	})
	return found
}

func (s *Service) latestRecords(ctx context.Context, formID string, limit, offset int) ([]models.FormRecordModel, error) {
	var rows []models.FormRecordModel
	err := s.db.WithContext(ctx).
		Where("form_id = ?", formID).
		Order("created_at DESC").
		Order("id DESC").
		Offset(offset).
		Limit(limit).
		Find(&rows).Error
	return rows, err
}

// formData pages first and filters second, so a search narrows the page.
func (s *Service) formData(ctx context.Context, formID, search string, limit, offset int) ([]normalize.Record, error) {
	rows, err := s.latestRecords(ctx, formID, limit, offset)
	if err != nil {
		return nil, err
	}
	out := make([]normalize.Record, 0, len(rows))
	for _, row := range rows {
		rec := normalize.FromStored(row.ID, row.Data, normalize.Origin{FormID: formID, SubmittedAt: row.CreatedAt})
		if rec.Matches(search) {
			out = append(out, rec)
		}
	}
	return out, nil
}

// moduleData takes limit/10 records from each form of the module, skipping
// offset/10 in each, and truncates the aggregate to limit.
func (s *Service) moduleData(ctx context.Context, moduleID, search string, limit, offset int) ([]normalize.Record, error) {
	var forms []models.FormModel
	err := s.db.WithContext(ctx).
		Select("id", "name", "module_id").
		Where("module_id = ?", moduleID).
		Order("created_at ASC").
		Find(&forms).Error
	if err != nil {
		return nil, err
	}

	perForm, skip := limit/moduleShare, offset/moduleShare
	out := []normalize.Record{}
	if perForm == 0 {
		return out, nil
	}
	for _, f := range forms {
		rows, err := s.latestRecords(ctx, f.ID, perForm, skip)
		if err != nil {
			return nil, err
		}
		for _, row := range rows {
			rec := normalize.FromStored(row.ID, row.Data, normalize.Origin{
				FormID:      f.ID,
				FormName:    f.Name,
				ModuleID:    moduleID,
				SubmittedAt: row.CreatedAt,
			})
			if rec.Matches(search) {
				out = append(out, rec)
			}
		}
	}
	if len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

// GetFields lists the field names a mapping can pick from. Form and module
// sources sample only the latest record of each form.
func (s *Service) GetFields(ctx context.Context, sourceID string) ([]string, error) {
	if strings.TrimSpace(sourceID) == "" {
		return nil, ErrMissingSource
	}
	src, err := s.registry.Resolve(ctx, sourceID)
	if err != nil {
		return nil, err
	}
	if src == nil {
		return []string{}, nil
	}

	switch src.Type {
	case models.LookupSourceStatic:
		first := gjson.ParseBytes(src.Data).Get("0")
		if !first.IsObject() {
			return []string{}, nil
		}
		return normalize.Keys(first), nil
	case models.LookupSourceForm:
		if src.SourceFormID == nil {
			return []string{}, nil
		}
		labels, err := s.latestLabels(ctx, *src.SourceFormID)
		if err != nil {
			return nil, err
		}
		return withImplicit(labels), nil
	case models.LookupSourceModule:
		if src.SourceModuleID == nil {
			return []string{}, nil
		}
		var formIDs []string
		err := s.db.WithContext(ctx).Model(&models.FormModel{}).
			Where("module_id = ?", *src.SourceModuleID).
			Order("created_at ASC").
			Pluck("id", &formIDs).Error
		if err != nil {
			return nil, err
		}
		var labels []string
		for _, fid := range formIDs {
			l, err := s.latestLabels(ctx, fid)
			if err != nil {
				return nil, err
			}
			labels = append(labels, l...)
		}
		return withImplicit(labels), nil
	}
	return []string{}, nil
}

func (s *Service) latestLabels(ctx context.Context, formID string) ([]string, error) {
	rows, err := s.latestRecords(ctx, formID, 1, 0)
	if err != nil || len(rows) == 0 {
		return nil, err
	}
	rec := normalize.FromStored(rows[0].ID, rows[0].Data, normalize.Origin{})
	labels := make([]string, 0, len(rec.Entries))
	for _, e := range rec.Entries {
		labels = append(labels, e.Label)
	}
	return labels, nil
}

func withImplicit(labels []string) []string {
	seen := make(map[string]struct{}, len(labels)+len(implicitFormFields))
	out := make([]string, 0, len(labels)+len(implicitFormFields))
	for _, l := range append(labels, implicitFormFields...) {
		if _, ok := seen[l]; ok {
			continue
		}
		seen[l] = struct{}{}
		out = append(out, l)
	}
	return out
}

// OptionsResult is the option list of a lookup field plus the custom value
// affordance for the search text.
type OptionsResult struct {
	Options     []option.Option `json:"options"`
	CanCreate   bool            `json:"canCreate"`
	Create      *option.Option  `json:"create,omitempty"`
	CreateLabel string          `json:"createLabel,omitempty"`
}

// Options applies the field's mapping to the data of its source.
func (s *Service) Options(ctx context.Context, fieldID, search string, limit int) (*OptionsResult, error) {
	var field models.FormFieldModel
	err := s.db.WithContext(ctx).First(&field, "id = ?", fieldID).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrFieldNotFound
	}
	if err != nil {
		return nil, err
	}
	if !field.IsLookup() {
		return nil, ErrNotLookupField
	}

	records, err := s.GetData(ctx, DataQuery{SourceID: field.Lookup.SourceID, Search: search, Limit: limit})
	if err != nil {
		return nil, err
	}
	opts := option.BuildAll(records, field.Lookup.FieldMapping, s.location)
	picker := option.NewPicker(field.Lookup, opts)

	res := &OptionsResult{Options: picker.Options()}
	if text := strings.TrimSpace(search); picker.CanCreate(text) {
		custom := option.Custom(text)
		res.CanCreate = true
		res.Create = &custom
		res.CreateLabel = option.CreateLabel(text)
	}
	return res, nil
}
