package entity

import (
	"context"
	"errors"
	"slices"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/go-sql-driver/mysql"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/vmihailenco/msgpack/v5"

	"github.com/easyframework/easymodel"
	"github.com/easyframework/easymodel/dialect"
	"github.com/easyframework/easymodel/dialect/sql"
	"github.com/easyframework/easymodel/dialect/sql/schema"
)

type User struct {
	Mapping
	ID     int64   `db:"id"`
	Name   string  `db:"name"`
	Email  *string `db:"email"`
	Age    int
	Status string
	hooks  []string
}

func (u *User) BeforeSave()   { u.hooks = append(u.hooks, "before_save") }
func (u *User) BeforeDelete() { u.hooks = append(u.hooks, "before_delete") }
func (u *User) AfterFind()    { u.hooks = append(u.hooks, "after_find") }

type Post struct {
	ID     int64 `db:"id"`
	UserID int64
	Title  string
}

func (Post) TableName() string { return "blog_posts" }

// Log has no primary key.
type Log struct {
	Message string
	Level   int
}

var testColumns = map[string][]sql.Column{
	"users": {
		{Field: "id", Type: "int(11)", Key: "PRI", Extra: "auto_increment"},
		{Field: "name", Type: "varchar(255)"},
		{Field: "email", Type: "varchar(255)", Null: true},
		{Field: "age", Type: "int(11)"},
		{Field: "status", Type: "varchar(16)"},
	},
	"blog_posts": {
		{Field: "id", Type: "int(11)", Key: "PRI"},
		{Field: "user_id", Type: "int(11)"},
		{Field: "title", Type: "text"},
	},
	"logs": {
		{Field: "message", Type: "text"},
		{Field: "level", Type: "int(11)"},
	},
}

// newTestManager returns a Manager over a sqlmock pool whose table metadata
// is already cached, so tests expect only their own statements.
func newTestManager(t *testing.T, driver string, opts ...Option) (*Manager, sqlmock.Sqlmock) {
	t.Helper()
	ctx := context.Background()
	db, mock, err := sqlmock.New(sqlmock.QueryMatcherOption(sqlmock.QueryMatcherEqual))
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })
	db.SetMaxOpenConns(1)
	drv, err := sql.OpenDB(easymodel.DatasourceConfig{Name: "default", Driver: driver}, db)
	require.NoError(t, err)

	cache := easymodel.NewMemoryCache()
	var tables []string
	for name, columns := range testColumns {
		tables = append(tables, name)
		data, err := msgpack.Marshal(columns)
		require.NoError(t, err)
		require.NoError(t, cache.Write(ctx, schema.DescribeKey("default", name), easymodel.CacheNamespace, data))
	}
	slices.Sort(tables)
	data, err := msgpack.Marshal(tables)
	require.NoError(t, err)
	require.NoError(t, cache.Write(ctx, schema.SourcesKey("default"), easymodel.CacheNamespace, data))
	return NewManager(drv, append([]Option{WithCache(cache)}, opts...)...), mock
}

var userRowColumns = []string{"id", "name", "email", "age", "status"}

func TestManagerRepository(t *testing.T) {
	m, _ := newTestManager(t, dialect.MySQL)
	r, err := m.Repository(&User{})
	require.NoError(t, err)
	assert.Equal(t, "User", r.Name())
	assert.Equal(t, "users", r.TableName())
	assert.NotNil(t, r.Relations())
	col, ok := r.Column("Age")
	require.True(t, ok)
	assert.Equal(t, "age", col)

	same, err := m.Repository(User{})
	require.NoError(t, err)
	assert.Same(t, r, same, "one repository per entity type")

	r, err = m.Repository(Post{})
	require.NoError(t, err)
	assert.Equal(t, "blog_posts", r.TableName())
	assert.Nil(t, r.Relations())
	pk, err := r.PrimaryKey(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "id", pk)

	_, err = m.Repository(42)
	assert.True(t, easymodel.IsInvalidArgument(err))
	_, err = m.Repository(nil)
	assert.True(t, easymodel.IsInvalidArgument(err))
	assert.NotEmpty(t, m.Scope())
	assert.NotEqual(t, m.Scope(), NewManager(m.Driver()).Scope())
}

func TestManagerPrefix(t *testing.T) {
	db, mock, err := sqlmock.New(sqlmock.QueryMatcherOption(sqlmock.QueryMatcherEqual))
	require.NoError(t, err)
	defer db.Close()
	drv, err := sql.OpenDB(easymodel.DatasourceConfig{Name: "shop", Driver: dialect.MySQL, Prefix: "app_"}, db)
	require.NoError(t, err)
	m := NewManager(drv, WithCache(easymodel.NewMemoryCache()))

	mock.ExpectQuery("SHOW TABLES").
		WillReturnRows(sqlmock.NewRows([]string{"Tables_in_shop"}).AddRow("app_users"))
	mock.ExpectQuery("SHOW COLUMNS FROM `app_users`").
		WillReturnRows(sqlmock.NewRows([]string{"Field", "Type", "Null", "Key", "Default", "Extra"}).
			AddRow("id", "int(11)", "NO", "PRI", nil, "auto_increment").
			AddRow("name", "varchar(64)", "NO", "", nil, ""))
	mock.ExpectQuery("SELECT * FROM app_users WHERE id = ? LIMIT 1").
		WithArgs(1).
		WillReturnRows(sqlmock.NewRows([]string{"id", "name"}).AddRow(1, "a8m"))

	u, err := Find[User](context.Background(), m, 1)
	require.NoError(t, err)
	assert.Equal(t, "a8m", u.Name)
	require.NoError(t, mock.ExpectationsWereMet())

	// Tables missing from the datasource are reported before any query.
	mock.ExpectQuery("SHOW TABLES").
		WillReturnRows(sqlmock.NewRows([]string{"Tables_in_shop"}).AddRow("app_users"))
	_, err = All[Post](context.Background(), m, nil)
	require.Error(t, err)
	assert.True(t, easymodel.IsMissingTable(err))
	assert.True(t, easymodel.IsQueryError(err))
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestFind(t *testing.T) {
	ctx := context.Background()
	m, mock := newTestManager(t, dialect.MySQL)
	mock.ExpectQuery("SELECT * FROM users WHERE id = ? LIMIT 1").
		WithArgs(1).
		WillReturnRows(sqlmock.NewRows(userRowColumns).AddRow(1, "alice", nil, 30, "active"))
	u, err := Find[User](ctx, m, 1)
	require.NoError(t, err)
	assert.Equal(t, int64(1), u.ID)
	assert.Equal(t, "alice", u.Name)
	assert.Nil(t, u.Email)
	assert.Equal(t, 30, u.Age)
	assert.Equal(t, []string{"after_find"}, u.hooks)

	mock.ExpectQuery("SELECT * FROM users WHERE id = ? LIMIT 1").
		WithArgs(2).
		WillReturnRows(sqlmock.NewRows(userRowColumns))
	_, err = Find[User](ctx, m, 2)
	require.Error(t, err)
	assert.True(t, easymodel.IsNotFound(err))
	var nf *easymodel.NotFoundError
	require.ErrorAs(t, err, &nf)
	assert.Equal(t, "User", nf.Label())
	assert.Equal(t, 2, nf.ID())

	mock.ExpectQuery("SELECT * FROM users WHERE id = ? LIMIT 1").
		WithArgs(3).
		WillReturnError(errors.New("connection reset"))
	_, err = Find[User](ctx, m, 3)
	require.Error(t, err)
	var qerr *easymodel.QueryError
	require.ErrorAs(t, err, &qerr)
	assert.Equal(t, "User", qerr.Entity)
	assert.Equal(t, "find", qerr.Op)

	_, err = Find[Log](ctx, m, 1)
	require.Error(t, err, "tables without a primary key cannot be found by id")
	assert.True(t, easymodel.IsQueryError(err))

	_, err = Find[int](ctx, m, 1)
	assert.True(t, easymodel.IsInvalidArgument(err))
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestFindPostgres(t *testing.T) {
	m, mock := newTestManager(t, dialect.Postgres)
	mock.ExpectQuery("SELECT * FROM users WHERE id = $1 LIMIT 1").
		WithArgs(5).
		WillReturnRows(sqlmock.NewRows(userRowColumns).AddRow(int64(5), "bob", "bob@example.com", int64(41), "active"))
	u, err := Find[User](context.Background(), m, 5)
	require.NoError(t, err)
	require.NotNil(t, u.Email)
	assert.Equal(t, "bob@example.com", *u.Email)
	assert.Equal(t, 41, u.Age)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestAllAndFirst(t *testing.T) {
	ctx := context.Background()
	m, mock := newTestManager(t, dialect.MySQL)

	mock.ExpectQuery("SELECT * FROM users WHERE status = ? ORDER BY name ASC").
		WithArgs("active").
		WillReturnRows(sqlmock.NewRows(userRowColumns).
			AddRow(1, "alice", nil, 30, "active").
			AddRow(2, "bob", nil, 17, "active"))
	users, err := All[User](ctx, m, sql.NewQuery().
		Where(sql.MustConditions(sql.Map{{Key: "status", Value: "active"}})).
		Order("name", sql.OrderAsc))
	require.NoError(t, err)
	require.Len(t, users, 2)
	assert.Equal(t, "bob", users[1].Name)
	assert.Equal(t, []string{"after_find"}, users[1].hooks)

	mock.ExpectQuery("SELECT id, name FROM users").
		WillReturnRows(sqlmock.NewRows([]string{"id", "name"}))
	users, err = All[User](ctx, m, sql.Select("id", "name"))
	require.NoError(t, err)
	assert.Empty(t, users)

	mock.ExpectQuery("SELECT * FROM users LIMIT 1").
		WillReturnRows(sqlmock.NewRows(userRowColumns).AddRow(1, "alice", nil, 30, "active"))
	u, err := First[User](ctx, m, nil)
	require.NoError(t, err)
	assert.Equal(t, "alice", u.Name)

	mock.ExpectQuery("SELECT * FROM users WHERE age > ? LIMIT 1").
		WithArgs(100).
		WillReturnRows(sqlmock.NewRows(userRowColumns))
	_, err = First[User](ctx, m, sql.NewQuery().Where(sql.Build(sql.Field("age").GT(100))))
	assert.True(t, easymodel.IsNotFound(err))
	require.NoError(t, mock.ExpectationsWereMet())
}

// statusPolicy narrows every finder to active rows.
type statusPolicy struct{}

func (statusPolicy) EvalQuery(_ context.Context, r *Read) error {
	r.Query.AndWhere(sql.Build(sql.Field("status").EQ("active")))
	return nil
}

func (statusPolicy) EvalMutation(context.Context, *Mutation) error { return nil }

func TestFindersLeaveQueryUntouched(t *testing.T) {
	ctx := context.Background()
	m, mock := newTestManager(t, dialect.MySQL, WithPolicy(statusPolicy{}))
	q := sql.NewQuery().Where(sql.Build(sql.Field("age").GT(18)))

	mock.ExpectQuery("SELECT * FROM users WHERE age > ? AND status = ? LIMIT 1").
		WithArgs(18, "active").
		WillReturnRows(sqlmock.NewRows(userRowColumns).AddRow(1, "alice", nil, 30, "active"))
	_, err := First[User](ctx, m, q)
	require.NoError(t, err)

	mock.ExpectQuery("SELECT * FROM users WHERE age > ? AND status = ?").
		WithArgs(18, "active").
		WillReturnRows(sqlmock.NewRows(userRowColumns))
	_, err = All[User](ctx, m, q)
	require.NoError(t, err)

	mock.ExpectQuery("SELECT COUNT(*) AS count FROM users WHERE age > ? AND status = ?").
		WithArgs(18, "active").
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(0))
	_, err = Count[User](ctx, m, q)
	require.NoError(t, err)

	assert.Equal(t, "SELECT * WHERE age > ?", q.SQL())
	assert.Equal(t, []any{18}, q.Args())
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestFindBy(t *testing.T) {
	ctx := context.Background()
	m, mock := newTestManager(t, dialect.MySQL)
	criteria := sql.Map{{Key: "status", Value: "active"}, {Key: "age >=", Value: 18}}

	mock.ExpectQuery("SELECT * FROM users WHERE status = ? AND age >= ?").
		WithArgs("active", 18).
		WillReturnRows(sqlmock.NewRows(userRowColumns).AddRow(1, "alice", nil, 30, "active"))
	users, err := FindBy[User](ctx, m, criteria)
	require.NoError(t, err)
	require.Len(t, users, 1)

	mock.ExpectQuery("SELECT * FROM users WHERE status = ? AND age >= ? LIMIT 1").
		WithArgs("active", 18).
		WillReturnRows(sqlmock.NewRows(userRowColumns).AddRow(1, "alice", nil, 30, "active"))
	u, err := FindOneBy[User](ctx, m, criteria)
	require.NoError(t, err)
	assert.Equal(t, int64(1), u.ID)

	mock.ExpectQuery("SELECT COUNT(*) AS count FROM users WHERE status = ? AND age >= ?").
		WithArgs("active", 18).
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(3))
	n, err := CountBy[User](ctx, m, criteria)
	require.NoError(t, err)
	assert.EqualValues(t, 3, n)

	mock.ExpectQuery("SELECT COUNT(*) AS count FROM users").
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(7))
	n, err = Count[User](ctx, m, nil)
	require.NoError(t, err)
	assert.EqualValues(t, 7, n)

	_, err = FindBy[User](ctx, m, sql.Map{{Key: "age", Value: sql.Map{{Key: "~", Value: 1}}}})
	require.Error(t, err, "malformed criteria fail before any query")
	assert.True(t, easymodel.IsQueryError(err))
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestFindByIDs(t *testing.T) {
	ctx := context.Background()
	m, mock := newTestManager(t, dialect.MySQL)
	mock.ExpectQuery("SELECT * FROM users WHERE id IN (?, ?, ?)").
		WithArgs(3, 1, 2).
		WillReturnRows(sqlmock.NewRows(userRowColumns).
			AddRow(1, "alice", nil, 30, "active").
			AddRow(3, "carol", nil, 52, "blocked"))
	users, err := FindByIDs[User](ctx, m, []int{3, 1, 2})
	require.NoError(t, err)
	require.Len(t, users, 3)
	assert.Equal(t, "carol", users[0].Name)
	assert.Equal(t, "alice", users[1].Name)
	assert.Nil(t, users[2])

	users, err = FindByIDs[User](ctx, m, []int{})
	require.NoError(t, err)
	assert.Empty(t, users)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestFindGroupedBy(t *testing.T) {
	ctx := context.Background()
	m, mock := newTestManager(t, dialect.MySQL)
	mock.ExpectQuery("SELECT * FROM blog_posts WHERE user_id IN (?, ?, ?)").
		WithArgs(1, 2, 3).
		WillReturnRows(sqlmock.NewRows([]string{"id", "user_id", "title"}).
			AddRow(10, 1, "a").
			AddRow(11, 2, "b").
			AddRow(12, 1, "c"))
	posts, err := FindGroupedBy[Post](ctx, m, "user_id", []int64{1, 2, 3})
	require.NoError(t, err)
	require.Len(t, posts, 3)
	require.Len(t, posts[0], 2)
	assert.Equal(t, []string{"a", "c"}, []string{posts[0][0].Title, posts[0][1].Title})
	require.Len(t, posts[1], 1)
	assert.Equal(t, int64(11), posts[1][0].ID)
	assert.Empty(t, posts[2])

	_, err = FindGroupedBy[Post](ctx, m, "author_id", []int64{1})
	assert.True(t, easymodel.IsQueryError(err))
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestSave(t *testing.T) {
	ctx := context.Background()

	t.Run("Insert", func(t *testing.T) {
		m, mock := newTestManager(t, dialect.MySQL)
		mock.ExpectExec("INSERT INTO users (name,email,age,status) VALUES(?,?,?,?)").
			WithArgs("bob", nil, 20, "active").
			WillReturnResult(sqlmock.NewResult(5, 1))
		u := &User{Name: "bob", Age: 20, Status: "active"}
		var saved any
		ok, err := m.Save(ctx, u, OnSuccess(func(e any) { saved = e }))
		require.NoError(t, err)
		assert.True(t, ok)
		assert.Equal(t, int64(5), u.ID, "the generated key is set")
		assert.Same(t, u, saved)
		assert.Equal(t, []string{"before_save"}, u.hooks)
		require.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("InsertPostgres", func(t *testing.T) {
		m, mock := newTestManager(t, dialect.Postgres)
		mock.ExpectQuery("INSERT INTO users (name,email,age,status) VALUES($1,$2,$3,$4) RETURNING id").
			WithArgs("bob", "b@example.com", 20, "").
			WillReturnRows(sqlmock.NewRows([]string{"id"}).AddRow(int64(9)))
		email := "b@example.com"
		u := &User{Name: "bob", Email: &email, Age: 20}
		ok, err := m.Save(ctx, u)
		require.NoError(t, err)
		assert.True(t, ok)
		assert.Equal(t, int64(9), u.ID)
		require.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("Update", func(t *testing.T) {
		m, mock := newTestManager(t, dialect.MySQL)
		mock.ExpectExec("UPDATE users SET name = ?, email = ?, age = ?, status = ? WHERE id = ? LIMIT 1").
			WithArgs("alice", nil, 31, "active", 1).
			WillReturnResult(sqlmock.NewResult(0, 1))
		u := &User{ID: 1, Name: "alice", Age: 31, Status: "active"}
		ok, err := m.Save(ctx, u)
		require.NoError(t, err)
		assert.True(t, ok)
		require.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("UpdatePostgres", func(t *testing.T) {
		m, mock := newTestManager(t, dialect.Postgres)
		mock.ExpectExec("UPDATE users SET name = $1, email = $2, age = $3, status = $4 WHERE id = $5").
			WithArgs("alice", nil, 31, "active", 1).
			WillReturnResult(sqlmock.NewResult(0, 1))
		ok, err := m.Save(ctx, &User{ID: 1, Name: "alice", Age: 31, Status: "active"})
		require.NoError(t, err)
		assert.True(t, ok)
		require.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("UpdateNoRowMatched", func(t *testing.T) {
		m, mock := newTestManager(t, dialect.MySQL)
		mock.ExpectExec("UPDATE users SET name = ?, email = ?, age = ?, status = ? WHERE id = ? LIMIT 1").
			WithArgs("ghost", nil, 0, "", 404).
			WillReturnResult(sqlmock.NewResult(0, 0))
		called := false
		ok, err := m.Save(ctx, &User{ID: 404, Name: "ghost"}, OnSuccess(func(any) { called = true }))
		require.NoError(t, err)
		assert.False(t, ok)
		assert.False(t, called)
		require.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("NoPrimaryKey", func(t *testing.T) {
		m, mock := newTestManager(t, dialect.MySQL)
		mock.ExpectExec("INSERT INTO logs (message,level) VALUES(?,?)").
			WithArgs("boot", 1).
			WillReturnResult(sqlmock.NewResult(0, 1))
		ok, err := m.Save(ctx, &Log{Message: "boot", Level: 1})
		require.NoError(t, err)
		assert.True(t, ok)
		require.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("Error", func(t *testing.T) {
		m, mock := newTestManager(t, dialect.MySQL)
		mock.ExpectExec("INSERT INTO users (name,email,age,status) VALUES(?,?,?,?)").
			WithArgs("bob", nil, 0, "").
			WillReturnError(&mysql.MySQLError{Number: 1062, Message: "Duplicate entry 'bob'"})
		var got error
		called := false
		ok, err := m.Save(ctx, &User{Name: "bob"},
			OnSuccess(func(any) { called = true }),
			OnError(func(err error) { got = err }))
		require.Error(t, err)
		assert.False(t, ok)
		assert.False(t, called)
		assert.Equal(t, err, got)
		assert.True(t, easymodel.IsMutationError(err))
		assert.True(t, sql.IsUniqueConstraintError(err))
		require.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("InvalidArgument", func(t *testing.T) {
		m, mock := newTestManager(t, dialect.MySQL)
		for _, e := range []any{nil, User{}, (*User)(nil), new(int), "user"} {
			ok, err := m.Save(ctx, e)
			assert.False(t, ok)
			assert.True(t, easymodel.IsInvalidArgument(err), "%T", e)
		}
		// Hooks do not run on invalid arguments.
		u := User{}
		_, err := m.Save(ctx, u)
		require.Error(t, err)
		assert.Empty(t, u.hooks)
		require.NoError(t, mock.ExpectationsWereMet())
	})
}

func TestDelete(t *testing.T) {
	ctx := context.Background()
	m, mock := newTestManager(t, dialect.MySQL)
	mock.ExpectExec("DELETE FROM users WHERE id = ? LIMIT 1").
		WithArgs(1).
		WillReturnResult(sqlmock.NewResult(0, 1))
	u := &User{ID: 1}
	ok, err := m.Delete(ctx, u)
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, []string{"before_delete"}, u.hooks)

	mock.ExpectExec("DELETE FROM users WHERE id = ? LIMIT 1").
		WithArgs(2).
		WillReturnResult(sqlmock.NewResult(0, 0))
	ok, err = m.Delete(ctx, &User{ID: 2})
	require.NoError(t, err, "deleting a missing row is not an error")
	assert.False(t, ok)

	ok, err = m.Delete(ctx, &User{})
	require.NoError(t, err)
	assert.False(t, ok, "an unsaved entity has no row")

	_, err = m.Delete(ctx, &Log{Message: "x"})
	assert.True(t, easymodel.IsMutationError(err))

	_, err = m.Delete(ctx, Post{ID: 1})
	assert.True(t, easymodel.IsInvalidArgument(err))

	mock.ExpectExec("DELETE FROM users WHERE id = ? LIMIT 1").
		WithArgs(3).
		WillReturnError(errors.New("lock wait timeout"))
	_, err = m.Delete(ctx, &User{ID: 3})
	var merr *easymodel.MutationError
	require.ErrorAs(t, err, &merr)
	assert.Equal(t, "delete", merr.Op)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestManagerTransaction(t *testing.T) {
	ctx := context.Background()
	m, mock := newTestManager(t, dialect.MySQL)
	mock.ExpectBegin()
	mock.ExpectExec("INSERT INTO users (name,email,age,status) VALUES(?,?,?,?)").
		WithArgs("a", nil, 0, "").
		WillReturnResult(sqlmock.NewResult(1, 1))
	mock.ExpectExec("DELETE FROM users WHERE id = ? LIMIT 1").
		WithArgs(1).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	require.NoError(t, m.BeginTransaction(ctx))
	u := &User{Name: "a"}
	_, err := m.Save(ctx, u)
	require.NoError(t, err)
	_, err = m.Delete(ctx, u)
	require.NoError(t, err)
	require.NoError(t, m.Commit())
	assert.ErrorIs(t, m.Rollback(), easymodel.ErrTxNotStarted)
	require.NoError(t, mock.ExpectationsWereMet())
}
