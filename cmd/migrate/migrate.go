// Package migrate contains the command to apply the activity-store schema
// migrations.
package migrate

import (
	"database/sql"
	"fmt"

	_ "github.com/go-sql-driver/mysql"
	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/pressly/goose/v3"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	_ "modernc.org/sqlite"

	"github.com/evansims/fgacache/assets"
	"github.com/evansims/fgacache/cmd/util"
)

// NewMigrateCommand returns the command that migrates the activity store to
// the latest schema, or to a targeted version.
func NewMigrateCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "migrate",
		Short: "Run activity-store schema migrations",
		Long:  "Apply the check-activity schema to the configured datastore. Required before running the agent with a SQL activity tracker.",
		RunE:  runMigration,
		Args:  cobra.NoArgs,
	}

	flags := cmd.Flags()

	flags.String("engine", "", "the datastore engine to migrate: 'postgres', 'mysql' or 'sqlite'")
	util.MustBindPFlag("migrate.engine", flags.Lookup("engine"))
	util.MustBindEnv("migrate.engine", "FGACACHE_MIGRATE_ENGINE")

	flags.String("uri", "", "the datastore connection string")
	util.MustBindPFlag("migrate.uri", flags.Lookup("uri"))
	util.MustBindEnv("migrate.uri", "FGACACHE_MIGRATE_URI")

	flags.Int64("version", 0, "the schema version to migrate to, 0 for the latest")
	util.MustBindPFlag("migrate.version", flags.Lookup("version"))
	util.MustBindEnv("migrate.version", "FGACACHE_MIGRATE_VERSION")

	flags.Bool("verbose", false, "enable verbose migration logging")
	util.MustBindPFlag("migrate.verbose", flags.Lookup("verbose"))
	util.MustBindEnv("migrate.verbose", "FGACACHE_MIGRATE_VERBOSE")

	return cmd
}

func runMigration(_ *cobra.Command, _ []string) error {
	engine := viper.GetString("migrate.engine")
	uri := viper.GetString("migrate.uri")
	version := viper.GetInt64("migrate.version")
	verbose := viper.GetBool("migrate.verbose")

	var driver, dialect, migrationDir string
	switch engine {
	case "postgres":
		driver, dialect, migrationDir = "pgx", "postgres", assets.PostgresMigrationDir
	case "mysql":
		driver, dialect, migrationDir = "mysql", "mysql", assets.MySQLMigrationDir
	case "sqlite":
		driver, dialect, migrationDir = "sqlite", "sqlite3", assets.SQLiteMigrationDir
	case "":
		return fmt.Errorf("a datastore engine must be specified")
	default:
		return fmt.Errorf("unsupported datastore engine %q", engine)
	}

	db, err := sql.Open(driver, uri)
	if err != nil {
		return fmt.Errorf("open datastore: %w", err)
	}
	defer func() { _ = db.Close() }()

	if err := db.Ping(); err != nil {
		return fmt.Errorf("ping datastore: %w", err)
	}

	goose.SetLogger(goose.NopLogger())
	if verbose {
		goose.SetVerbose(true)
	}
	goose.SetBaseFS(assets.EmbedMigrations)

	if err := goose.SetDialect(dialect); err != nil {
		return fmt.Errorf("set dialect: %w", err)
	}

	if version > 0 {
		current, err := goose.GetDBVersion(db)
		if err != nil {
			return fmt.Errorf("read schema version: %w", err)
		}

		if version < current {
			return goose.DownTo(db, migrationDir, version)
		}
		return goose.UpTo(db, migrationDir, version)
	}

	return goose.Up(db, migrationDir)
}
