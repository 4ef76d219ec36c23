// Package migrations embeds the SQL schema of the appliance bridge and
// installs it as the database package's migration source on import.
package migrations

import (
	"embed"

	"github.com/nerrad567/gray-logic-appliances/internal/infrastructure/database"
)

//go:embed *.sql
var files embed.FS

func init() {
	database.SetMigrations(files)
}
