package cmdutil

import (
	"context"

	"github.com/spf13/pflag"

	"github.com/quakelab/etasfit/pkg/service"
)

// ConnectDatabase connects the fit-run database given by --db-driver and
// --db-dsn and creates the tables. It returns nil when no driver is set.
func ConnectDatabase(ctx context.Context, flags *pflag.FlagSet) (*service.DatabaseService, error) {
	driver, err := flags.GetString("db-driver")
	if err != nil {
		return nil, err
	}
	if driver == "" {
		return nil, nil
	}

	dsn, err := flags.GetString("db-dsn")
	if err != nil {
		return nil, err
	}

	db, err := service.NewDatabaseService(driver, dsn)
	if err != nil {
		return nil, err
	}
	if err := db.Connect(); err != nil {
		return nil, err
	}
	if err := db.Upgrade(ctx); err != nil {
		_ = db.Close()
		return nil, err
	}
	return db, nil
}
