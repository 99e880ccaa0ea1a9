// Package postgis implements the store index on PostgreSQL with the PostGIS extension.
package postgis

import (
	"database/sql"
	"embed"
	"fmt"
	"time"

	"github.com/golang-migrate/migrate/v4"
	"github.com/golang-migrate/migrate/v4/database/postgres"
	"github.com/golang-migrate/migrate/v4/source/iofs"
	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"

	"github.com/kass/go-store-locator/pkg/geoerr"
	"github.com/kass/go-store-locator/pkg/logging"
	"github.com/kass/go-store-locator/pkg/models"
)

//go:embed migrations/*.sql
var migrations embed.FS

const batchSize = 10000

type SSLMode string

const (
	SSLModeEnable  SSLMode = "enable"
	SSLModeDisable SSLMode = "disable"
)

// Options holds the connection settings
type Options struct {
	Host     string
	Port     int
	User     string
	Password string
	DBName   string
	SSLMode  SSLMode
}

// DSN renders the options as a lib/pq connection string
func (o Options) DSN() string {
	mode := o.SSLMode
	if mode == "" {
		mode = SSLModeDisable
	}
	return fmt.Sprintf("host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		o.Host, o.Port, o.User, o.Password, o.DBName, mode)
}

// PostGISIndex stores records in a table with a GIST-indexed geography column
type PostGISIndex struct {
	db    *sqlx.DB
	log   *logrus.Entry
	newID func() string
}

// Open connects to the database described by dsn and migrates the schema
func Open(dsn string) (*PostGISIndex, error) {
	db, err := sqlx.Open("postgres", dsn)
	if err != nil {
		return nil, errors.Wrap(geoerr.ErrStorageUnavailable, err.Error())
	}

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, errors.Wrapf(geoerr.ErrStorageUnavailable, "failed to ping database: %v", err)
	}

	db.SetMaxOpenConns(25)
	db.SetMaxIdleConns(25)
	db.SetConnMaxLifetime(5 * time.Minute)

	p := NewPostGISIndex(db)
	if err := p.migrateUp(); err != nil {
		db.Close()
		return nil, err
	}
	return p, nil
}

// NewPostGISIndex wraps an open connection. The schema must already exist.
func NewPostGISIndex(db *sqlx.DB) *PostGISIndex {
	return &PostGISIndex{
		db:    db,
		log:   logging.For("postgis"),
		newID: uuid.NewString,
	}
}

// migrateUp applies the embedded migrations
func (p *PostGISIndex) migrateUp() error {
	src, err := iofs.New(migrations, "migrations")
	if err != nil {
		return errors.Wrap(err, "failed to read migrations")
	}
	drv, err := postgres.WithInstance(p.db.DB, &postgres.Config{})
	if err != nil {
		return errors.Wrapf(geoerr.ErrStorageUnavailable, "failed to create migration driver: %v", err)
	}
	m, err := migrate.NewWithInstance("iofs", src, "postgres", drv)
	if err != nil {
		return errors.Wrap(err, "failed to create migrator")
	}

	start := time.Now()
	if err := m.Up(); err != nil && err != migrate.ErrNoChange {
		return errors.Wrapf(geoerr.ErrIndexUnavailable, "failed to migrate schema: %v", err)
	}
	p.log.WithField("elapsed", time.Since(start)).Info("schema up to date")
	return nil
}

// tx runs fn in a transaction, committing only if fn succeeds
func (p *PostGISIndex) tx(fn func(tx *sqlx.Tx) error) (err error) {
	tx, err := p.db.Beginx()
	if err != nil {
		return errors.Wrap(err, "failed to start a transaction")
	}
	defer func() {
		if err != nil {
			if rbErr := tx.Rollback(); rbErr != nil {
				p.log.Errorf("failed to rollback tx: %s", rbErr)
			}
			return
		}
		if cErr := tx.Commit(); cErr != nil {
			err = errors.Wrap(cErr, "failed to commit tx")
		}
	}()
	return fn(tx)
}

const insertSQL = `
	INSERT INTO stores (id, name, street, city, zip, location)
	VALUES ($1, $2, $3, $4, $5, ST_SetSRID(ST_MakePoint($6, $7), 4326)::geography)`

func validateRecord(s models.Store) error {
	if s.Address.Location == nil || !s.Address.Location.Valid() {
		return fmt.Errorf("%w: store %q has no valid location", geoerr.ErrInvalidRecord, s.Name)
	}
	return nil
}

// Insert assigns a fresh identity to s and stores it
func (p *PostGISIndex) Insert(s models.Store) (models.Store, error) {
	if err := validateRecord(s); err != nil {
		return models.Store{}, err
	}
	s = s.Clone()
	s.ID = p.newID()
	loc := s.Address.Location

	_, err := p.db.Exec(insertSQL, s.ID, s.Name, s.Address.Street, s.Address.City, s.Address.Zip, loc.Lon, loc.Lat)
	if err != nil {
		return models.Store{}, translateError("insert", err)
	}
	return s, nil
}

// BulkInsert stores all records in a single transaction
func (p *PostGISIndex) BulkInsert(stores []models.Store) (int, error) {
	for _, s := range stores {
		if err := validateRecord(s); err != nil {
			return 0, err
		}
	}

	start := time.Now()
	err := p.tx(func(tx *sqlx.Tx) error {
		stmt, err := tx.Preparex(insertSQL)
		if err != nil {
			return err
		}
		defer stmt.Close()

		for i, s := range stores {
			loc := s.Address.Location
			if _, err := stmt.Exec(p.newID(), s.Name, s.Address.Street, s.Address.City, s.Address.Zip, loc.Lon, loc.Lat); err != nil {
				return errors.Wrapf(err, "failed to insert store %q", s.Name)
			}
			if (i+1)%batchSize == 0 {
				p.log.Debugf("inserted %d/%d stores", i+1, len(stores))
			}
		}
		return nil
	})
	if err != nil {
		return 0, translateError("bulk insert", err)
	}

	p.log.WithFields(logrus.Fields{"count": len(stores), "elapsed": time.Since(start)}).Info("bulk insert complete")
	return len(stores), nil
}

type storeRow struct {
	ID       string  `db:"id"`
	Name     string  `db:"name"`
	Street   string  `db:"street"`
	City     string  `db:"city"`
	Zip      string  `db:"zip"`
	Lon      float64 `db:"lon"`
	Lat      float64 `db:"lat"`
	Distance float64 `db:"distance"`
}

func (r storeRow) hit() models.StoreHit {
	return models.StoreHit{
		Store: models.Store{
			ID:   r.ID,
			Name: r.Name,
			Address: models.Address{
				Street:   r.Street,
				City:     r.City,
				Zip:      r.Zip,
				Location: &models.GeoPoint{Lon: r.Lon, Lat: r.Lat},
			},
		},
		Distance: r.Distance,
	}
}

// Distances use the sphere rather than the spheroid so they agree with the
// in-memory index.
const nearSQL = `
	SELECT id, name, street, city, zip,
		ST_X(location::geometry) AS lon,
		ST_Y(location::geometry) AS lat,
		ST_Distance(location, ST_SetSRID(ST_MakePoint($1, $2), 4326)::geography, false) AS distance
	FROM stores
	WHERE ST_DWithin(location, ST_SetSRID(ST_MakePoint($1, $2), 4326)::geography, $3, false)
	ORDER BY distance, id
	OFFSET $4 LIMIT $5`

const nearCountSQL = `
	SELECT count(*)
	FROM stores
	WHERE ST_DWithin(location, ST_SetSRID(ST_MakePoint($1, $2), 4326)::geography, $3, false)`

// QueryNear returns the stores within radius of point, nearest first
func (p *PostGISIndex) QueryNear(point models.GeoPoint, radius models.Distance, page models.PageRequest) (*models.Page, error) {
	if !point.Valid() {
		return nil, fmt.Errorf("%w: point out of bounds", geoerr.ErrInvalidQuery)
	}
	if err := radius.Validate(); err != nil {
		return nil, err
	}
	if err := page.Validate(); err != nil {
		return nil, err
	}
	meters := radius.Meters()

	var total int
	if err := p.db.Get(&total, nearCountSQL, point.Lon, point.Lat, meters); err != nil {
		return nil, translateError("count near", err)
	}

	rows := make([]storeRow, 0)
	if err := p.db.Select(&rows, nearSQL, point.Lon, point.Lat, meters, page.Offset, page.Limit); err != nil {
		return nil, translateError("query near", err)
	}

	items := make([]models.StoreHit, len(rows))
	for i, r := range rows {
		items[i] = r.hit()
	}
	return &models.Page{Items: items, Total: total, Offset: page.Offset, Limit: page.Limit}, nil
}

const nearestSQL = `
	SELECT id, name, street, city, zip,
		ST_X(location::geometry) AS lon,
		ST_Y(location::geometry) AS lat,
		ST_Distance(location, ST_SetSRID(ST_MakePoint($1, $2), 4326)::geography, false) AS distance
	FROM stores
	ORDER BY distance, id
	LIMIT $3`

// Nearest returns the n stores closest to point
func (p *PostGISIndex) Nearest(point models.GeoPoint, n int) ([]models.StoreHit, error) {
	if !point.Valid() {
		return nil, fmt.Errorf("%w: point out of bounds", geoerr.ErrInvalidQuery)
	}
	if n <= 0 {
		return nil, fmt.Errorf("%w: n must be positive, got %d", geoerr.ErrInvalidQuery, n)
	}

	rows := make([]storeRow, 0)
	if err := p.db.Select(&rows, nearestSQL, point.Lon, point.Lat, n); err != nil {
		return nil, translateError("nearest", err)
	}
	hits := make([]models.StoreHit, len(rows))
	for i, r := range rows {
		hits[i] = r.hit()
	}
	return hits, nil
}

// Count returns the number of stored records
func (p *PostGISIndex) Count() (int64, error) {
	var count int64
	if err := p.db.Get(&count, `SELECT count(*) FROM stores`); err != nil {
		return 0, translateError("count", err)
	}
	return count, nil
}

// Stats returns database size and table statistics
func (p *PostGISIndex) Stats() (map[string]interface{}, error) {
	stats := make(map[string]interface{})
	stats["backend"] = "postgis"

	var dbSize string
	if err := p.db.Get(&dbSize, `SELECT pg_size_pretty(pg_database_size(current_database()))`); err != nil {
		return nil, translateError("stats", err)
	}
	stats["database_size"] = dbSize

	var sizes struct {
		Total string `db:"total_size"`
		Index string `db:"index_size"`
	}
	err := p.db.Get(&sizes, `
		SELECT
			pg_size_pretty(pg_total_relation_size('stores')) AS total_size,
			pg_size_pretty(pg_indexes_size('stores')) AS index_size`)
	if err != nil {
		stats["table_size"] = "0 bytes"
		stats["index_size"] = "0 bytes"
	} else {
		stats["table_size"] = sizes.Total
		stats["index_size"] = sizes.Index
	}

	count, _ := p.Count()
	stats["row_count"] = count
	return stats, nil
}

// Close closes the database connection
func (p *PostGISIndex) Close() error {
	return p.db.Close()
}

// translateError maps driver failures onto the error taxonomy
func translateError(op string, err error) error {
	if err == nil {
		return nil
	}

	var pqErr *pq.Error
	if errors.As(err, &pqErr) {
		switch {
		case pqErr.Code.Name() == "undefined_table",
			pqErr.Code.Name() == "undefined_object",
			pqErr.Code.Name() == "undefined_function":
			return errors.Wrapf(geoerr.ErrIndexUnavailable, "%s: %s", op, pqErr.Message)
		case pqErr.Code.Class() == "22":
			return errors.Wrapf(geoerr.ErrInvalidQuery, "%s: %s", op, pqErr.Message)
		}
		return errors.Wrapf(geoerr.ErrStorageUnavailable, "%s: %s", op, pqErr.Message)
	}
	if errors.Is(err, sql.ErrNoRows) {
		return errors.Wrapf(geoerr.ErrNotFound, "%s: %v", op, err)
	}
	return errors.Wrapf(geoerr.ErrStorageUnavailable, "%s: %v", op, err)
}
