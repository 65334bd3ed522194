// Package testhelpers starts the integration test database. Tests that use it
// are skipped under -short.
package testhelpers

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/Gobusters/ectologger"
	"github.com/Gobusters/ectologger/zapadapter"
	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"
	"go.uber.org/zap"

	"github.com/Ramsey-B/vine/pkg/database"
	"github.com/Ramsey-B/vine/pkg/models"
)

const (
	postgresImage = "postgres:16-alpine"
	dbName        = "vine_test"
	dbUser        = "vine"
	dbPassword    = "vine"
)

// tables in truncation order.
var tables = []string{
	"mapping_audit_log",
	"review_queue_items",
	"supplier_product_mappings",
	"import_lines",
	"import_jobs",
	"catalog_identifier_index",
	"catalog_match_keys",
	"product_identifiers",
	"master_products",
	"product_families",
}

// Postgres is a migrated database shared by every test in a package.
type Postgres struct {
	Container testcontainers.Container
	SQL       *sqlx.DB
	DB        database.DB
	Config    database.Config
}

var (
	shared     *Postgres
	sharedOnce sync.Once
	sharedErr  error
)

func Logger() ectologger.Logger {
	zapLogger, _ := zap.NewDevelopment()
	return zapadapter.NewZapEctoLogger(zapLogger, nil)
}

// GetPostgres returns the shared database with every table emptied.
func GetPostgres(t *testing.T) *Postgres {
	t.Helper()

	if testing.Short() {
		t.Skip("Skipping integration test in short mode (requires Docker)")
	}

	sharedOnce.Do(func() {
		shared, sharedErr = startPostgres(context.Background())
	})
	require.NoError(t, sharedErr, "failed to start test database")

	_, err := shared.SQL.Exec("TRUNCATE " + strings.Join(tables, ", ") + " CASCADE")
	require.NoError(t, err, "failed to reset test database")
	return shared
}

func startPostgres(ctx context.Context) (*Postgres, error) {
	req := testcontainers.ContainerRequest{
		Image:        postgresImage,
		ExposedPorts: []string{"5432/tcp"},
		Env: map[string]string{
			"POSTGRES_DB":       dbName,
			"POSTGRES_USER":     dbUser,
			"POSTGRES_PASSWORD": dbPassword,
		},
		// postgres logs readiness once for the init server and once for the real one
		WaitingFor: wait.ForLog("database system is ready to accept connections").
			WithOccurrence(2).
			WithStartupTimeout(60 * time.Second),
	}

	container, err := testcontainers.GenericContainer(ctx, testcontainers.GenericContainerRequest{
		ContainerRequest: req,
		Started:          true,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to start postgres container: %w", err)
	}

	host, err := container.Host(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to get container host: %w", err)
	}
	port, err := container.MappedPort(ctx, "5432")
	if err != nil {
		return nil, fmt.Errorf("failed to get container port: %w", err)
	}

	cfg := database.Config{
		Driver:   "postgres",
		Host:     host,
		Port:     port.Port(),
		UserName: dbUser,
		Password: dbPassword,
		Name:     dbName,
		SSLMode:  "disable",
	}

	logger := Logger()
	sqlDB, err := database.Connect(ctx, cfg, logger)
	if err != nil {
		return nil, err
	}

	folder, err := migrationFolder()
	if err != nil {
		return nil, err
	}
	migrations := database.NewMigrationService(logger, &database.MigrationConfig{
		MigrationFolderPath: folder,
		AutoRollback:        true,
	})
	if err := migrations.MigratePostgres(sqlDB.DB, dbName); err != nil {
		return nil, fmt.Errorf("failed to migrate test database: %w", err)
	}

	return &Postgres{
		Container: container,
		SQL:       sqlDB,
		DB:        database.NewDatabaseInstance(sqlDB, logger),
		Config:    cfg,
	}, nil
}

// migrationFolder walks up from the test's package directory to the module
// root.
func migrationFolder() (string, error) {
	dir, err := os.Getwd()
	if err != nil {
		return "", err
	}
	for {
		if _, err := os.Stat(filepath.Join(dir, "go.mod")); err == nil {
			return filepath.Join(dir, "db", "pg"), nil
		}
		parent := filepath.Dir(dir)
		if parent == dir {
			return "", fmt.Errorf("go.mod not found above %s", dir)
		}
		dir = parent
	}
}

// SeedProducts inserts catalog products, their families and GTINs. The match
// index is not rebuilt.
func (p *Postgres) SeedProducts(t *testing.T, products ...models.CatalogProduct) {
	t.Helper()
	ctx := context.Background()

	for _, prod := range products {
		_, err := p.SQL.ExecContext(ctx,
			`INSERT INTO product_families (id, name, vintage_sensitive) VALUES ($1, $2, $3)
			 ON CONFLICT (id) DO NOTHING`,
			prod.FamilyID, prod.Name, prod.VintageSensitive)
		require.NoError(t, err)

		_, err = p.SQL.ExecContext(ctx,
			`INSERT INTO master_products
			 (id, family_id, producer, name, vintage, volume_ml, abv, pack_type, units_per_case, country, region, grapes)
			 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)`,
			prod.ID, prod.FamilyID, prod.Producer, prod.Name, prod.Vintage, prod.VolumeML, prod.ABV,
			string(prod.PackType), prod.UnitsPerCase, prod.Country, prod.Region, pq.Array(nonNil(prod.Grapes)))
		require.NoError(t, err)

		for _, gtin := range prod.GTINs {
			_, err = p.SQL.ExecContext(ctx,
				`INSERT INTO product_identifiers (product_id, kind, value) VALUES ($1, 'gtin', $2)`,
				prod.ID, gtin)
			require.NoError(t, err)
		}
	}
}

func nonNil(s []string) []string {
	if s == nil {
		return []string{}
	}
	return s
}
