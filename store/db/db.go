package db

import (
	"github.com/pkg/errors"

	"github.com/apexgrid/pitwall/internal/profile"
	"github.com/apexgrid/pitwall/store"
	"github.com/apexgrid/pitwall/store/db/postgres"
	"github.com/apexgrid/pitwall/store/db/sqlite"
)

// NewDriver creates a persistence driver based on the profile.
func NewDriver(profile *profile.Profile) (store.Driver, error) {
	var driver store.Driver
	var err error

	switch profile.Driver {
	case "sqlite":
		driver, err = sqlite.NewDB(profile)
	case "postgres":
		driver, err = postgres.NewDB(profile)
	default:
		return nil, errors.Errorf("unknown db driver %q: only 'sqlite' and 'postgres' are supported", profile.Driver)
	}
	if err != nil {
		return nil, errors.Wrap(err, "failed to create db driver")
	}
	return driver, nil
}
