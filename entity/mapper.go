package entity

// Mapper is implemented by entities that name their table. Entities without
// a Mapper are stored in the pluralized snake_case form of their type name.
type Mapper interface {
	TableName() string
}

// Relation declares an association to another entity.
type Relation struct {
	// Name of the association, as used by the declaring entity.
	Name string
	// Target is the related entity, a zero value or a pointer to one.
	Target any
	// ForeignKey is the joining column. Empty means the default for the kind.
	ForeignKey string
	// JoinTable is the link table of many-to-many associations.
	JoinTable string
}

// Relations is implemented by entities that declare associations.
// Declarations are recorded on the Repository and are not resolved by the
// Manager.
type Relations interface {
	HasOne() []Relation
	HasMany() []Relation
	BelongsTo() []Relation
	HasAndBelongsToMany() []Relation
}

// Mapping can be embedded in entities to implement Relations with no
// declarations.
//
//	type User struct {
//		entity.Mapping
//		ID   int64  `db:"id"`
//		Name string `db:"name"`
//	}
type Mapping struct{}

// HasOne implements Relations.
func (Mapping) HasOne() []Relation { return nil }

// HasMany implements Relations.
func (Mapping) HasMany() []Relation { return nil }

// BelongsTo implements Relations.
func (Mapping) BelongsTo() []Relation { return nil }

// HasAndBelongsToMany implements Relations.
func (Mapping) HasAndBelongsToMany() []Relation { return nil }

var _ Relations = Mapping{}

// Lifecycle hooks.
type (
	// BeforeSaver is called by Manager.Save before the entity is resolved
	// into column values.
	BeforeSaver interface {
		BeforeSave()
	}

	// BeforeDeleter is called by Manager.Delete before the row is removed.
	BeforeDeleter interface {
		BeforeDelete()
	}

	// AfterFinder is called on every entity hydrated by a finder.
	AfterFinder interface {
		AfterFind()
	}

	// KeyGenerator provides the primary key of an entity about to be
	// inserted, for keys the database does not generate.
	KeyGenerator interface {
		NewKey() any
	}
)
