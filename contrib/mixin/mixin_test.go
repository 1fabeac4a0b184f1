package mixin_test

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/easyframework/easymodel"
	"github.com/easyframework/easymodel/contrib/mixin"
	"github.com/easyframework/easymodel/dialect/sql"
	"github.com/easyframework/easymodel/entity"
	"github.com/easyframework/easymodel/privacy"
)

func TestCreateTimeMixin(t *testing.T) {
	var m mixin.CreateTime
	m.BeforeSave()
	require.False(t, m.CreatedAt.IsZero())

	created := m.CreatedAt
	m.BeforeSave()
	assert.Equal(t, created, m.CreatedAt, "created_at is set once")
}

func TestUpdateTimeMixin(t *testing.T) {
	m := mixin.UpdateTime{UpdatedAt: time.Date(2020, 1, 1, 0, 0, 0, 0, time.UTC)}
	m.BeforeSave()
	assert.WithinDuration(t, time.Now(), m.UpdatedAt, time.Second)
}

func TestTimeMixin(t *testing.T) {
	var m mixin.Time
	m.BeforeSave()
	assert.Equal(t, m.CreatedAt, m.UpdatedAt)

	before := m.CreatedAt
	time.Sleep(time.Millisecond)
	m.BeforeSave()
	assert.Equal(t, before, m.CreatedAt)
	assert.True(t, m.UpdatedAt.After(before))
}

func TestUUIDMixin(t *testing.T) {
	key, ok := mixin.UUID{}.NewKey().(string)
	require.True(t, ok)
	_, err := uuid.Parse(key)
	assert.NoError(t, err)
	assert.NotEqual(t, key, mixin.UUID{}.NewKey())
}

func TestSoftDeleteMixin(t *testing.T) {
	var m mixin.SoftDelete
	assert.False(t, m.Deleted())
	m.MarkDeleted()
	require.True(t, m.Deleted())
	assert.WithinDuration(t, time.Now(), *m.DeletedAt, time.Second)
	m.Restore()
	assert.False(t, m.Deleted())
}

type Document struct {
	mixin.UUID
	mixin.TimeSoftDelete
	mixin.Tenant
	Title string
}

func TestMixinEntity(t *testing.T) {
	ctx := context.Background()
	drv, err := sql.Open(easymodel.DatasourceConfig{Name: "default", Driver: "sqlite"})
	require.NoError(t, err)
	t.Cleanup(func() { _ = drv.Disconnect() })
	_, err = drv.Execute(ctx, `CREATE TABLE documents (
		id TEXT PRIMARY KEY,
		created_at DATETIME NOT NULL,
		updated_at DATETIME NOT NULL,
		deleted_at DATETIME,
		tenant_id TEXT NOT NULL,
		title TEXT NOT NULL
	)`, nil)
	require.NoError(t, err)
	m := entity.NewManager(drv,
		entity.WithCache(easymodel.NewMemoryCache()),
		entity.WithPolicy(privacy.Policy{
			Query: privacy.QueryPolicy{privacy.FilterSoftDeleted("deleted_at")},
		}),
	)

	r, err := m.Repository(Document{})
	require.NoError(t, err)
	pk, err := r.PrimaryKey(ctx)
	require.NoError(t, err)
	assert.Equal(t, "id", pk)

	draft := &Document{Tenant: mixin.Tenant{TenantID: "acme"}, Title: "draft"}
	_, err = m.Save(ctx, draft)
	require.NoError(t, err)
	_, err = uuid.Parse(draft.ID)
	require.NoError(t, err, "key generated on insert")
	assert.False(t, draft.CreatedAt.IsZero())

	final := &Document{Tenant: mixin.Tenant{TenantID: "acme"}, Title: "final"}
	_, err = m.Save(ctx, final)
	require.NoError(t, err)
	assert.NotEqual(t, draft.ID, final.ID)

	got, err := entity.Find[Document](ctx, m, draft.ID)
	require.NoError(t, err)
	assert.Equal(t, "draft", got.Title)
	assert.Equal(t, "acme", got.TenantID)
	assert.WithinDuration(t, draft.CreatedAt, got.CreatedAt, time.Second)
	assert.Nil(t, got.DeletedAt)

	draft.MarkDeleted()
	_, err = m.Save(ctx, draft)
	require.NoError(t, err)

	docs, err := entity.All[Document](ctx, m, nil)
	require.NoError(t, err)
	require.Len(t, docs, 1)
	assert.Equal(t, final.ID, docs[0].ID)

	_, err = entity.Find[Document](ctx, m, draft.ID)
	assert.True(t, easymodel.IsNotFound(err))
}
