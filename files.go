package library

import (
	"embed"
	"io/fs"
	"path"

	goerrors "github.com/goliatone/go-errors"
	"github.com/uptrace/bun/dialect"
)

const migrationsRoot = "data/sql/migrations"

//go:embed data/sql/migrations
var migrationsFS embed.FS

// GetMigrationsFS returns the migration files for this package
func GetMigrationsFS() embed.FS {
	return migrationsFS
}

// MigrationsFor returns the migration directory for the given dialect,
// rooted so bun can discover the files directly.
func MigrationsFor(name dialect.Name) (fs.FS, error) {
	var dir string
	switch name {
	case dialect.PG:
		dir = "postgres"
	case dialect.SQLite:
		dir = "sqlite"
	default:
		return nil, goerrors.New("no migrations for dialect", goerrors.CategoryBadInput).
			WithMetadata(map[string]any{"dialect": name.String()})
	}

	sub, err := fs.Sub(migrationsFS, path.Join(migrationsRoot, dir))
	if err != nil {
		return nil, goerrors.Wrap(err, goerrors.CategoryInternal, "unable to open migrations")
	}
	return sub, nil
}
