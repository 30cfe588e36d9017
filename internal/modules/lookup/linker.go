package lookup

import (
	"context"
	"errors"
	"fmt"

	"github.com/formdeck/core/internal/models"
	"go.uber.org/zap"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

var errOrphanField = errors.New("field has no owning form")

// Reference is one lookup field pointing at a source.
type Reference struct {
	RelationID string `json:"relationId"`
	FieldID    string `json:"fieldId"`
	FieldLabel string `json:"fieldLabel"`
	FormID     string `json:"formId"`
	FormName   string `json:"formName"`
	ModuleID   string `json:"moduleId"`
}

// Linker maintains lookup_field_relations. Its writes are best effort: failures
// are logged and never reach the field save that triggered them.
type Linker struct {
	db       *gorm.DB
	registry *Registry
	logger   *zap.Logger
}

func NewLinker(db *gorm.DB, registry *Registry, opts ...Option) *Linker {
	s := newSettings(opts)
	return &Linker{db: db, registry: registry, logger: s.logger.Named("LookupLinker")}
}

type owner struct {
	formID   string
	moduleID string
}

// resolveOwner walks field -> section -> form -> module, or
// field -> subform -> section -> form -> module.
func (l *Linker) resolveOwner(ctx context.Context, field *models.FormFieldModel) (owner, error) {
	db := l.db.WithContext(ctx)

	sectionID := ""
	switch {
	case field.SectionID != nil && *field.SectionID != "":
		sectionID = *field.SectionID
	case field.SubformID != nil && *field.SubformID != "":
		var sub models.SubformModel
		if err := db.Select("id", "section_id").First(&sub, "id = ?", *field.SubformID).Error; err != nil {
			return owner{}, err
		}
		sectionID = sub.SectionID
	default:
		return owner{}, errOrphanField
	}

	var section models.FormSectionModel
	if err := db.Select("id", "form_id").First(&section, "id = ?", sectionID).Error; err != nil {
		return owner{}, err
	}
	var form models.FormModel
	if err := db.Select("id", "module_id").First(&form, "id = ?", section.FormID).Error; err != nil {
		return owner{}, err
	}
	var module models.ModuleModel
	if err := db.Select("id").First(&module, "id = ?", form.ModuleID).Error; err != nil {
		return owner{}, err
	}
	return owner{formID: form.ID, moduleID: module.ID}, nil
}

// Sync records the relation of a saved field. Fields that are no longer
// lookups lose their relations.
func (l *Linker) Sync(ctx context.Context, field *models.FormFieldModel) {
	if field == nil || field.ID == "" {
		return
	}
	if !field.IsLookup() {
		l.Unlink(ctx, field.ID)
		return
	}
	log := l.logger.With(zap.String("field", field.ID), zap.String("source", field.Lookup.SourceID))

	own, err := l.resolveOwner(ctx, field)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) || errors.Is(err, errOrphanField) {
			log.Debug("lookup field has no owner, relation skipped")
			return
		}
		log.Warn("resolve lookup field owner", zap.Error(err))
		return
	}

	src, err := l.registry.Resolve(ctx, field.Lookup.SourceID)
	if err != nil {
		log.Warn("resolve lookup source", zap.Error(err))
		return
	}
	if src == nil {
		log.Warn("lookup source does not exist, relation skipped")
		return
	}

	if err := l.upsert(ctx, field, src.ID, own); err != nil {
		log.Warn("upsert lookup relation", zap.Error(err))
	}
}

func (l *Linker) upsert(ctx context.Context, field *models.FormFieldModel, sourceID string, own owner) error {
	cfg := field.Lookup
	rel := models.LookupFieldRelationModel{
		ID:             RelationID(sourceID, field.ID),
		LookupSourceID: sourceID,
		FormFieldID:    field.ID,
		FormID:         own.formID,
		ModuleID:       own.moduleID,
		DisplayField:   cfg.FieldMapping.Display,
		ValueField:     cfg.FieldMapping.Value,
		Multiple:       cfg.Multiple,
		Searchable:     cfg.Searchable,
		Filters:        cfg.Filters,
	}
	return l.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		err := tx.Clauses(clause.OnConflict{
			Columns: []clause.Column{{Name: "id"}},
			DoUpdates: clause.AssignmentColumns([]string{
				"form_id", "module_id", "display_field", "value_field",
				"multiple", "searchable", "filters", "updated_at",
			}),
		}).Create(&rel).Error
		if err != nil {
			return fmt.Errorf("upsert %s: %w", rel.ID, err)
		}
		return tx.Where("form_field_id = ? AND id <> ?", field.ID, rel.ID).
			Delete(&models.LookupFieldRelationModel{}).Error
	})
}

// Unlink removes every relation of a field.
func (l *Linker) Unlink(ctx context.Context, fieldID string) {
	err := l.db.WithContext(ctx).
		Where("form_field_id = ?", fieldID).
		Delete(&models.LookupFieldRelationModel{}).Error
	if err != nil {
		l.logger.Warn("remove lookup relations", zap.String("field", fieldID), zap.Error(err))
	}
}

// UnlinkForm removes the relations of every field owned by formID.
func (l *Linker) UnlinkForm(ctx context.Context, formID string) {
	err := l.db.WithContext(ctx).
		Where("form_id = ?", formID).
		Delete(&models.LookupFieldRelationModel{}).Error
	if err != nil {
		l.logger.Warn("remove form lookup relations", zap.String("form", formID), zap.Error(err))
	}
}

// References lists the fields that look up into sourceID.
func (l *Linker) References(ctx context.Context, sourceID string) ([]Reference, error) {
	db := l.db.WithContext(ctx)

	var rels []models.LookupFieldRelationModel
	if err := db.Where("lookup_source_id = ?", sourceID).Order("created_at ASC").Find(&rels).Error; err != nil {
		return nil, err
	}
	out := make([]Reference, 0, len(rels))
	if len(rels) == 0 {
		return out, nil
	}

	fieldIDs := make([]string, 0, len(rels))
	formIDs := make([]string, 0, len(rels))
	for _, r := range rels {
		fieldIDs = append(fieldIDs, r.FormFieldID)
		formIDs = append(formIDs, r.FormID)
	}
	var fields []models.FormFieldModel
	if err := db.Select("id", "label").Where("id IN ?", fieldIDs).Find(&fields).Error; err != nil {
		return nil, err
	}
	var forms []models.FormModel
	if err := db.Select("id", "name").Where("id IN ?", formIDs).Find(&forms).Error; err != nil {
		return nil, err
	}
	labels := make(map[string]string, len(fields))
	for _, f := range fields {
		labels[f.ID] = f.Label
	}
	names := make(map[string]string, len(forms))
	for _, f := range forms {
		names[f.ID] = f.Name
	}

	for _, r := range rels {
		out = append(out, Reference{
			RelationID: r.ID,
			FieldID:    r.FormFieldID,
			FieldLabel: labels[r.FormFieldID],
			FormID:     r.FormID,
			FormName:   names[r.FormID],
			ModuleID:   r.ModuleID,
		})
	}
	return out, nil
}
