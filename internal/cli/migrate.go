package cli

import (
	"context"
	"fmt"
	"io"

	"github.com/glebarez/sqlite"
	"github.com/spf13/cobra"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/localnerve/proposaldb/internal/app"
	"github.com/localnerve/proposaldb/internal/database"
)

// NewMigrateCommand creates the migrate command.
func NewMigrateCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Create or update the relational tables",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			f := rootOpts.formatter(cmd)
			return rootOpts.withRuntime(cmd, func(ctx context.Context, rt *app.Runtime) error {
				db := rt.Stores.DB.WithContext(ctx)
				if err := database.AutoMigrate(db); err != nil {
					return f.Fail(ExitCommandError, "migration failed", err)
				}
				tables, err := tableNames(db)
				if err != nil {
					return f.Fail(ExitCommandError, "migration failed", err)
				}
				return f.Result("ok", map[string][]string{"tables": tables}, func(w io.Writer) {
					for _, table := range tables {
						fmt.Fprintf(w, "migrated %s\n", table)
					}
				})
			})
		},
	}
}

func tableNames(db *gorm.DB) ([]string, error) {
	var tables []string
	for _, model := range database.Models() {
		stmt := &gorm.Statement{DB: db}
		if err := stmt.Parse(model); err != nil {
			return nil, err
		}
		if !db.Migrator().HasTable(stmt.Schema.Table) {
			return nil, fmt.Errorf("table %s missing after migration", stmt.Schema.Table)
		}
		tables = append(tables, stmt.Schema.Table)
	}
	return tables, nil
}

// NewSchemaCommand creates the schema command. It needs no configured store:
// the tables are created in a private in-memory SQLite database and their DDL
// printed.
func NewSchemaCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "schema",
		Short: "Print the DDL GORM generates for the relational models",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			f := rootOpts.formatter(cmd)
			ddl, err := SchemaDDL()
			if err != nil {
				return f.Fail(ExitCommandError, "schema generation failed", err)
			}
			return f.Result("ok", ddl, func(w io.Writer) {
				for _, t := range ddl {
					fmt.Fprintf(w, "\n=== Table: %s ===\n%s\n", t.Table, t.SQL)
				}
			})
		},
	}
}

// TableDDL is one generated statement.
type TableDDL struct {
	Table string `json:"table"`
	SQL   string `json:"sql"`
}

// SchemaDDL migrates the models into an in-memory SQLite database and reads
// back the generated CREATE statements.
func SchemaDDL() ([]TableDDL, error) {
	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		return nil, err
	}
	sqlDB, err := db.DB()
	if err != nil {
		return nil, err
	}
	defer sqlDB.Close()
	sqlDB.SetMaxOpenConns(1)

	if err := database.AutoMigrate(db); err != nil {
		return nil, err
	}

	var out []TableDDL
	err = db.Raw("SELECT name AS \"table\", sql FROM sqlite_master WHERE type = 'table' AND name NOT LIKE 'sqlite_%' ORDER BY name").
		Scan(&out).Error
	return out, err
}
