// Package entity maps Go structs to table rows and runs finders and writes
// on them through a dialect/sql Driver.
//
// An entity is a struct whose exported fields map to columns, by their db
// tag or by the snake_case form of their name:
//
//	type User struct {
//		entity.Mapping
//		ID        int64     `db:"id"`
//		Name      string    `db:"name"`
//		CreatedAt time.Time // created_at
//		Password  string    `db:"-"`
//	}
//
// A Manager serves one logical scope, such as a request:
//
//	m := entity.NewManager(drv)
//	u, err := entity.Find[User](ctx, m, 1)
//	if err != nil {
//		return err
//	}
//	u.Name = "a8m"
//	if _, err := m.Save(ctx, u); err != nil {
//		return err
//	}
//
// Table metadata is read through the easymodel.Cache given to the Manager,
// so a table is described once per cache.
package entity
