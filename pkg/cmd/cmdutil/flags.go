package cmdutil

import "github.com/spf13/pflag"

// PersistentFlags defines the flags for the snapshot store and the fit-run
// database
func PersistentFlags(flags *pflag.FlagSet) {
	flags.String("store", "json", "snapshot store: json, redis or memory")
	flags.String("store-dir", "snapshots", "directory of the json snapshot store")
	flags.Duration("store-expiration", 0, "expiration of snapshots kept in redis, zero keeps them")
	flags.String("db-driver", "", "fit-run database driver, empty disables fit-run records")
	flags.String("db-dsn", "", "fit-run database dsn")
}
