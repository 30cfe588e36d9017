package lookup

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/formdeck/core/internal/models"
	"github.com/formdeck/core/internal/modules/lookup/catalogs"
	"github.com/tidwall/gjson"
	"go.uber.org/zap"
	"gorm.io/datatypes"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

const (
	sourcesCacheKey = "formdeck:lookup:sources"
	sourceOrder     = "CASE type WHEN 'static' THEN 0 WHEN 'module' THEN 1 ELSE 2 END"
)

// SourceSummary is one entry of the source listing.
type SourceSummary struct {
	ID          string                  `json:"id"`
	Name        string                  `json:"name"`
	Description string                  `json:"description"`
	Type        models.LookupSourceType `json:"type"`
	RecordCount int64                   `json:"recordCount"`
	Icon        string                  `json:"icon"`
}

// ReconcileReport counts what a reconcile pass touched.
type ReconcileReport struct {
	Modules     int   `json:"modules"`
	Forms       int   `json:"forms"`
	Deactivated int64 `json:"deactivated"`
}

// Registry keeps the lookup_sources table in step with catalogs, modules and forms.
type Registry struct {
	db         *gorm.DB
	logger     *zap.Logger
	cache      Cache
	cacheTTL   time.Duration
	catalogDir string
}

func NewRegistry(db *gorm.DB, opts ...Option) *Registry {
	s := newSettings(opts)
	return &Registry{
		db:         db,
		logger:     s.logger.Named("LookupRegistry"),
		cache:      s.cache,
		cacheTTL:   s.cacheTTL,
		catalogDir: s.catalogDir,
	}
}

// upsertBatchSize keeps each INSERT well below the bind-parameter caps of
// SQLite, Postgres and MySQL.
const upsertBatchSize = 200

var upsertSourceColumns = []string{
	"name", "type", "static_source_name", "description", "icon",
	"data", "source_module_id", "source_form_id", "active", "updated_at",
}

func (r *Registry) upsert(tx *gorm.DB, rows []models.LookupSourceModel) error {
	if len(rows) == 0 {
		return nil
	}
	for i := range rows {
		if err := rows[i].Validate(); err != nil {
			return fmt.Errorf("source %s: %w", rows[i].ID, err)
		}
	}
	return tx.Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "id"}},
		DoUpdates: clause.AssignmentColumns(upsertSourceColumns),
	}).CreateInBatches(&rows, upsertBatchSize).Error
}

// SeedStaticSources upserts the built-in catalogs and those in the catalog dir.
func (r *Registry) SeedStaticSources(ctx context.Context) error {
	all, err := catalogs.Load(r.catalogDir)
	if err != nil {
		return fmt.Errorf("load catalogs: %w", err)
	}
	rows := make([]models.LookupSourceModel, 0, len(all))
	for _, c := range all {
		key := c.Key
		rows = append(rows, models.LookupSourceModel{
			ID:               StaticSourceID(key),
			Name:             c.Name,
			Type:             models.LookupSourceStatic,
			StaticSourceName: &key,
			Description:      c.Description,
			Icon:             c.Icon,
			Data:             datatypes.JSON(c.Items),
			Active:           true,
		})
	}
	if err := r.upsert(r.db.WithContext(ctx), rows); err != nil {
		return fmt.Errorf("seed static sources: %w", err)
	}
	r.logger.Info("static lookup sources seeded", zap.Int("count", len(rows)))
	r.Invalidate(ctx)
	return nil
}

func moduleSource(m *models.ModuleModel) models.LookupSourceModel {
	id := m.ID
	desc := m.Description
	if desc == "" {
		desc = fmt.Sprintf("Records from all forms in %s", m.Name)
	}
	icon := m.Icon
	if icon == "" {
		icon = "folder"
	}
	return models.LookupSourceModel{
		ID:             ModuleSourceID(m.ID),
		Name:           m.Name,
		Type:           models.LookupSourceModule,
		Description:    desc,
		Icon:           icon,
		SourceModuleID: &id,
		Active:         true,
	}
}

func formSource(f *models.FormModel) models.LookupSourceModel {
	id := f.ID
	desc := f.Description
	if desc == "" {
		desc = fmt.Sprintf("Records from %s", f.Name)
	}
	return models.LookupSourceModel{
		ID:           FormSourceID(f.ID),
		Name:         f.Name,
		Type:         models.LookupSourceForm,
		Description:  desc,
		Icon:         "file-text",
		SourceFormID: &id,
		Active:       true,
	}
}

// Reconcile registers a source for every module and form, refreshing names,
// and marks inactive the dynamic sources whose target is gone.
func (r *Registry) Reconcile(ctx context.Context) (ReconcileReport, error) {
	var report ReconcileReport
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var modules []models.ModuleModel
		if err := tx.Select("id", "name", "description", "icon").Find(&modules).Error; err != nil {
			return err
		}
		var forms []models.FormModel
		if err := tx.Select("id", "name", "description", "module_id").Find(&forms).Error; err != nil {
			return err
		}

		rows := make([]models.LookupSourceModel, 0, len(modules)+len(forms))
		for i := range modules {
			rows = append(rows, moduleSource(&modules[i]))
		}
		for i := range forms {
			rows = append(rows, formSource(&forms[i]))
		}
		if err := r.upsert(tx, rows); err != nil {
			return err
		}

		liveModules := tx.Session(&gorm.Session{NewDB: true}).Model(&models.ModuleModel{}).Select("id")
		gone, err := deactivateMissing(tx, models.LookupSourceModule, "source_module_id", liveModules)
		if err != nil {
			return err
		}
		report.Deactivated += gone
		liveForms := tx.Session(&gorm.Session{NewDB: true}).Model(&models.FormModel{}).Select("id")
		gone, err = deactivateMissing(tx, models.LookupSourceForm, "source_form_id", liveForms)
		if err != nil {
			return err
		}
		report.Deactivated += gone

		report.Modules = len(modules)
		report.Forms = len(forms)
		return nil
	})
	if err != nil {
		return report, fmt.Errorf("reconcile lookup sources: %w", err)
	}
	r.Invalidate(ctx)
	return report, nil
}

// deactivateMissing marks inactive the active sources of typ whose target is
// not returned by the live id subquery.
func deactivateMissing(tx *gorm.DB, typ models.LookupSourceType, column string, live *gorm.DB) (int64, error) {
	res := tx.Model(&models.LookupSourceModel{}).
		Where("type = ? AND active = ?", typ, true).
		Where(column+" NOT IN (?)", live).
		Update("active", false)
	return res.RowsAffected, res.Error
}

// List returns the active sources, static first. It never writes.
func (r *Registry) List(ctx context.Context) ([]SourceSummary, error) {
	if cached, ok := r.cached(ctx); ok {
		return cached, nil
	}

	var sources []models.LookupSourceModel
	err := r.db.WithContext(ctx).
		Where("active = ?", true).
		Order(sourceOrder).
		Order("name").
		Find(&sources).Error
	if err != nil {
		return nil, err
	}

	formCounts, err := r.recordCountsByForm(ctx)
	if err != nil {
		return nil, err
	}
	moduleForms, err := r.formsByModule(ctx)
	if err != nil {
		return nil, err
	}

	out := make([]SourceSummary, 0, len(sources))
	for _, s := range sources {
		sum := SourceSummary{ID: s.ID, Name: s.Name, Description: s.Description, Type: s.Type, Icon: s.Icon}
		switch s.Type {
		case models.LookupSourceStatic:
			sum.RecordCount = int64(len(gjson.ParseBytes(s.Data).Array()))
		case models.LookupSourceForm:
			if s.SourceFormID != nil {
				sum.RecordCount = formCounts[*s.SourceFormID]
			}
		case models.LookupSourceModule:
			if s.SourceModuleID != nil {
				for _, fid := range moduleForms[*s.SourceModuleID] {
					sum.RecordCount += formCounts[fid]
				}
			}
		}
		out = append(out, sum)
	}

	r.store(ctx, out)
	return out, nil
}

// Sources is List for handlers: failures are logged and yield an empty list.
func (r *Registry) Sources(ctx context.Context) []SourceSummary {
	out, err := r.List(ctx)
	if err != nil {
		r.logger.Error("list lookup sources", zap.Error(err))
		return []SourceSummary{}
	}
	return out
}

func (r *Registry) recordCountsByForm(ctx context.Context) (map[string]int64, error) {
	var rows []struct {
		FormID string
		Total  int64
	}
	err := r.db.WithContext(ctx).Model(&models.FormRecordModel{}).
		Select("form_id, COUNT(*) AS total").
		Group("form_id").
		Scan(&rows).Error
	if err != nil {
		return nil, err
	}
	out := make(map[string]int64, len(rows))
	for _, row := range rows {
		out[row.FormID] = row.Total
	}
	return out, nil
}

func (r *Registry) formsByModule(ctx context.Context) (map[string][]string, error) {
	var forms []models.FormModel
	if err := r.db.WithContext(ctx).Select("id", "module_id").Find(&forms).Error; err != nil {
		return nil, err
	}
	out := make(map[string][]string)
	for _, f := range forms {
		out[f.ModuleID] = append(out[f.ModuleID], f.ID)
	}
	return out, nil
}

// Get returns the active source with id, or nil.
func (r *Registry) Get(ctx context.Context, id string) (*models.LookupSourceModel, error) {
	var src models.LookupSourceModel
	err := r.db.WithContext(ctx).Where("id = ? AND active = ?", id, true).First(&src).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &src, nil
}

// Resolve returns the active source with id, registering a module or form
// source on first use. Unknown ids yield nil.
func (r *Registry) Resolve(ctx context.Context, id string) (*models.LookupSourceModel, error) {
	src, err := r.Get(ctx, id)
	if err != nil || src != nil {
		return src, err
	}
	return r.EnsureDynamicSource(ctx, id)
}

// EnsureDynamicSource registers the source of a module_ or form_ id when the
// module or form exists. Static and unknown ids yield nil.
func (r *Registry) EnsureDynamicSource(ctx context.Context, id string) (*models.LookupSourceModel, error) {
	typ, target, ok := ParseSourceID(id)
	if !ok {
		return nil, nil
	}
	db := r.db.WithContext(ctx)

	var row models.LookupSourceModel
	switch typ {
	case models.LookupSourceModule:
		var m models.ModuleModel
		err := db.Select("id", "name", "description", "icon").First(&m, "id = ?", target).Error
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		if err != nil {
			return nil, err
		}
		row = moduleSource(&m)
	case models.LookupSourceForm:
		var f models.FormModel
		err := db.Select("id", "name", "description").First(&f, "id = ?", target).Error
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		if err != nil {
			return nil, err
		}
		row = formSource(&f)
	default:
		return nil, nil
	}

	if err := r.upsert(db, []models.LookupSourceModel{row}); err != nil {
		return nil, fmt.Errorf("ensure source %s: %w", id, err)
	}
	r.logger.Debug("lookup source registered on demand", zap.String("source", id))
	r.Invalidate(ctx)
	return &row, nil
}

// Invalidate drops the cached listing.
func (r *Registry) Invalidate(ctx context.Context) {
	if r.cache == nil {
		return
	}
	if err := r.cache.Del(ctx, sourcesCacheKey); err != nil {
		r.logger.Warn("invalidate lookup source cache", zap.Error(err))
	}
}

func (r *Registry) cached(ctx context.Context) ([]SourceSummary, bool) {
	if r.cache == nil {
		return nil, false
	}
	raw, ok, err := r.cache.Get(ctx, sourcesCacheKey)
	if err != nil {
		r.logger.Warn("read lookup source cache", zap.Error(err))
		return nil, false
	}
	if !ok {
		return nil, false
	}
	var out []SourceSummary
	if err := json.Unmarshal(raw, &out); err != nil {
		return nil, false
	}
	return out, true
}

func (r *Registry) store(ctx context.Context, list []SourceSummary) {
	if r.cache == nil {
		return
	}
	raw, err := json.Marshal(list)
	if err != nil {
		return
	}
	if err := r.cache.Set(ctx, sourcesCacheKey, raw, r.cacheTTL); err != nil {
		r.logger.Warn("write lookup source cache", zap.Error(err))
	}
}
