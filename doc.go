// Package easymodel maps Go structs to rows of MySQL, PostgreSQL and SQLite
// tables.
//
// The root package holds what every layer shares: the datasource
// configuration, the cache of table metadata and the error taxonomy.
//
//	cfg, err := easymodel.LoadConfig("database.yaml")
//	if err != nil {
//	    return err
//	}
//	conns := sql.NewConnections(cfg)
//	defer conns.Close()
//
//	drv, err := conns.Driver(ctx, "default")
//	if err != nil {
//	    return err
//	}
//	m := entity.NewManager(drv)
//	user, err := entity.Find[User](ctx, m, 42)
//	if easymodel.IsNotFound(err) {
//	    ...
//	}
//
// Packages:
//
//   - dialect/sql: drivers, the query builder and conditions
//   - dialect/sql/schema: table metadata
//   - entity: repositories and the entity manager
//   - privacy: rules evaluated by the manager
//   - contrib/mixin: common entity fields
package easymodel
