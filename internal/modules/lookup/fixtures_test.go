package lookup

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/formdeck/core/internal/models"
	"github.com/formdeck/core/internal/pkg/dbtest"
	"github.com/stretchr/testify/require"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

type memoryCache struct {
	mu   sync.Mutex
	data map[string][]byte
	sets int
}

func newMemoryCache() *memoryCache { return &memoryCache{data: map[string][]byte{}} }

func (m *memoryCache) Get(_ context.Context, key string) ([]byte, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	v, ok := m.data[key]
	return v, ok, nil
}

func (m *memoryCache) Set(_ context.Context, key string, value []byte, _ time.Duration) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.data[key] = value
	m.sets++
	return nil
}

func (m *memoryCache) Del(_ context.Context, keys ...string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, k := range keys {
		delete(m.data, k)
	}
	return nil
}

type env struct {
	db       *gorm.DB
	registry *Registry
	svc      *Service
	linker   *Linker
}

func newEnv(t *testing.T, opts ...Option) *env {
	t.Helper()
	return newEnvOn(t, dbtest.Open(t), opts...)
}

func newEnvOn(t *testing.T, db *gorm.DB, opts ...Option) *env {
	t.Helper()
	reg := NewRegistry(db, opts...)
	require.NoError(t, reg.SeedStaticSources(context.Background()))
	return &env{
		db:       db,
		registry: reg,
		svc:      NewService(db, reg, opts...),
		linker:   NewLinker(db, reg, opts...),
	}
}

func (e *env) module(t *testing.T, name string) *models.ModuleModel {
	t.Helper()
	m := &models.ModuleModel{Name: name}
	require.NoError(t, e.db.Create(m).Error)
	return m
}

func (e *env) form(t *testing.T, moduleID, name string) *models.FormModel {
	t.Helper()
	f := &models.FormModel{ModuleID: moduleID, Name: name}
	require.NoError(t, e.db.Create(f).Error)
	return f
}

func (e *env) section(t *testing.T, formID string) *models.FormSectionModel {
	t.Helper()
	s := &models.FormSectionModel{FormID: formID, Title: "Main"}
	require.NoError(t, e.db.Create(s).Error)
	return s
}

// record stores data created at the given time.
func (e *env) record(t *testing.T, formID string, at time.Time, data map[string]any) *models.FormRecordModel {
	t.Helper()
	raw, err := json.Marshal(data)
	require.NoError(t, err)
	r := &models.FormRecordModel{FormID: formID, Data: datatypes.JSON(raw), CreatedAt: at}
	require.NoError(t, e.db.Create(r).Error)
	return r
}

func (e *env) bulkRecords(t *testing.T, formID string, n int) {
	t.Helper()
	base := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	rows := make([]models.FormRecordModel, 0, n)
	for i := 0; i < n; i++ {
		raw := fmt.Sprintf(`{"title":{"label":"Title","type":"text","value":"row %d"}}`, i)
		rows = append(rows, models.FormRecordModel{
			FormID:    formID,
			Data:      datatypes.JSON(raw),
			CreatedAt: base.Add(time.Duration(i) * time.Minute),
		})
	}
	require.NoError(t, e.db.CreateInBatches(&rows, 50).Error)
}

func entry(label, typ string, value any) map[string]any {
	return map[string]any{"label": label, "type": typ, "value": value}
}
