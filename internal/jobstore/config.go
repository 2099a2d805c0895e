package jobstore

import (
	"context"
	"fmt"

	"jobkernel/internal/config"
)

// OpenPersister opens the backend selected by driver.
func OpenPersister(ctx context.Context, driver, path string) (Persister, error) {
	switch driver {
	case config.StoreDriverFile, "":
		return NewFileStore(path, DefaultCodec()), nil
	case config.StoreDriverSQLite:
		return OpenSQLite(ctx, path)
	default:
		return nil, fmt.Errorf("unknown store driver %q", driver)
	}
}
