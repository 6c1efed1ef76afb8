package migration

import (
	"io/fs"
	"testing"

	scrapeddatadomain "github.com/smallbiznis/revenuepulse/internal/scrapeddata/domain"
	"github.com/smallbiznis/revenuepulse/pkg/db"
	"github.com/stretchr/testify/require"
)

func TestEmbeddedMigrationsArePaired(t *testing.T) {
	ups, err := fs.Glob(embeddedMigrations, migrationsDir+"/*.up.sql")
	require.NoError(t, err)
	downs, err := fs.Glob(embeddedMigrations, migrationsDir+"/*.down.sql")
	require.NoError(t, err)
	require.NotEmpty(t, ups)
	require.Len(t, downs, len(ups))
}

func TestMigrateSQLite(t *testing.T) {
	conn, err := db.NewTest()
	require.NoError(t, err)

	require.NoError(t, Migrate(conn))
	require.True(t, conn.Migrator().HasTable(&scrapeddatadomain.ScrapedDataRecord{}))
	require.True(t, conn.Migrator().HasTable("sessions"))
	require.True(t, conn.Migrator().HasIndex(&scrapeddatadomain.ScrapedDataRecord{}, "ux_scraped_data_job_id"))
}

func TestRunMigrationsRequiresHandle(t *testing.T) {
	require.Error(t, RunMigrations(nil))
}
