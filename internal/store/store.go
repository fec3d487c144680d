// Package store persists the usage log in SQLite.
//
// Every accepted filter request becomes one row in requests, linked to the
// filters it used through used_filters. The day column holds the calendar
// date of the request in the store's location so the trailing-window
// histogram is a single GROUP BY.
package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"sync"
	"time"

	_ "modernc.org/sqlite"
)

// DayLayout is the calendar-date format of histogram keys.
const DayLayout = "2006-01-02"

var (
	// ErrNotFound is returned by Open when the database file does not exist.
	ErrNotFound = errors.New("usage database not found")

	// ErrExists is returned by Create when the database file already exists.
	ErrExists = errors.New("usage database already exists")
)

// UsageRecord is one accepted filter request.
type UsageRecord struct {
	ID            int64
	Timestamp     time.Time
	ClientAddress string
	Filters       []string
}

// Store is the SQLite-backed usage log. Writes are serialized; reads run
// concurrently under WAL.
type Store struct {
	db  *sql.DB
	loc *time.Location

	writeMu sync.Mutex
}

// Option configures a Store.
type Option func(*Store)

// WithLocation sets the time zone used to assign requests to calendar days.
// The default is time.Local.
func WithLocation(loc *time.Location) Option {
	return func(s *Store) { s.loc = loc }
}

// Open opens an existing usage database.
func Open(path string, opts ...Option) (*Store, error) {
	if _, err := os.Stat(path); err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, fmt.Errorf("%w: %s", ErrNotFound, path)
		}
		return nil, fmt.Errorf("stat db: %w", err)
	}
	return open(path, opts...)
}

// Create creates a new usage database at path and seeds the filters table
// with names.
func Create(path string, names []string, opts ...Option) (*Store, error) {
	if _, err := os.Stat(path); err == nil {
		return nil, fmt.Errorf("%w: %s", ErrExists, path)
	} else if !errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("stat db: %w", err)
	}

	s, err := open(path, opts...)
	if err != nil {
		return nil, err
	}
	if err := s.seedFilters(names); err != nil {
		s.Close()
		return nil, fmt.Errorf("seed filters: %w", err)
	}
	return s, nil
}

// Remove deletes the database at path together with its WAL side files.
// A missing database is not an error.
func Remove(path string) error {
	for _, p := range []string{path, path + "-wal", path + "-shm"} {
		if err := os.Remove(p); err != nil && !errors.Is(err, os.ErrNotExist) {
			return fmt.Errorf("remove %s: %w", p, err)
		}
	}
	return nil
}

func open(path string, opts ...Option) (*Store, error) {
	dsn := path + "?_pragma=journal_mode(WAL)&_pragma=busy_timeout(10000)&_pragma=synchronous(NORMAL)&_pragma=foreign_keys(1)"
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open db: %w", err)
	}
	db.SetMaxOpenConns(4)
	db.SetMaxIdleConns(2)
	db.SetConnMaxLifetime(30 * time.Minute)

	s := &Store{db: db, loc: time.Local}
	for _, opt := range opts {
		opt(s)
	}
	if err := s.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("migrate: %w", err)
	}
	return s, nil
}

// Close closes the database connection.
func (s *Store) Close() error { return s.db.Close() }

func (s *Store) migrate() error {
	tables := `
	CREATE TABLE IF NOT EXISTS requests (
		id   INTEGER PRIMARY KEY AUTOINCREMENT,
		date TEXT NOT NULL,
		day  TEXT NOT NULL,
		ip   TEXT NOT NULL
	);

	CREATE TABLE IF NOT EXISTS filters (
		id     INTEGER PRIMARY KEY AUTOINCREMENT,
		filter TEXT NOT NULL UNIQUE
	);

	CREATE TABLE IF NOT EXISTS used_filters (
		request_id INTEGER NOT NULL REFERENCES requests(id) ON DELETE CASCADE,
		position   INTEGER NOT NULL,
		filter_id  INTEGER NOT NULL REFERENCES filters(id),
		PRIMARY KEY (request_id, position)
	);
	`
	indexes := `
	CREATE INDEX IF NOT EXISTS idx_requests_day ON requests(day);
	CREATE INDEX IF NOT EXISTS idx_used_filters_filter ON used_filters(filter_id);
	`

	tx, err := s.db.Begin()
	if err != nil {
		return err
	}
	defer tx.Rollback()

	if _, err := tx.Exec(tables); err != nil {
		return err
	}
	if err := upgradeLegacy(tx); err != nil {
		return fmt.Errorf("upgrade legacy schema: %w", err)
	}
	if _, err := tx.Exec(indexes); err != nil {
		return err
	}
	return tx.Commit()
}

// upgradeLegacy adds the columns missing from databases created before the
// day and position columns existed. The day of old rows is taken from the
// date prefix, positions follow insertion order.
func upgradeLegacy(tx *sql.Tx) error {
	hasDay, err := hasColumn(tx, "requests", "day")
	if err != nil {
		return err
	}
	if !hasDay {
		if _, err := tx.Exec(`ALTER TABLE requests ADD COLUMN day TEXT NOT NULL DEFAULT ''`); err != nil {
			return err
		}
		if _, err := tx.Exec(`UPDATE requests SET day = substr(date, 1, 10) WHERE date IS NOT NULL`); err != nil {
			return err
		}
	}

	hasPosition, err := hasColumn(tx, "used_filters", "position")
	if err != nil {
		return err
	}
	if !hasPosition {
		if _, err := tx.Exec(`ALTER TABLE used_filters ADD COLUMN position INTEGER NOT NULL DEFAULT 0`); err != nil {
			return err
		}
		if _, err := tx.Exec(`UPDATE used_filters SET position = rowid`); err != nil {
			return err
		}
	}
	return nil
}

func hasColumn(tx *sql.Tx, table, column string) (bool, error) {
	rows, err := tx.Query(`SELECT name FROM pragma_table_info(?)`, table)
	if err != nil {
		return false, err
	}
	defer rows.Close()
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return false, err
		}
		if name == column {
			return true, nil
		}
	}
	return false, rows.Err()
}

func (s *Store) seedFilters(names []string) error {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	return retryOnContention(context.Background(), func() error {
		tx, err := s.db.Begin()
		if err != nil {
			return err
		}
		defer tx.Rollback()
		for _, name := range names {
			if _, err := tx.Exec(`INSERT OR IGNORE INTO filters (filter) VALUES (?)`, name); err != nil {
				return err
			}
		}
		return tx.Commit()
	})
}

// Insert appends rec and returns its id. Filter names missing from the
// filters table are added.
func (s *Store) Insert(ctx context.Context, rec UsageRecord) (int64, error) {
	ts := rec.Timestamp
	if ts.IsZero() {
		ts = time.Now()
	}

	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	var id int64
	err := retryOnContention(ctx, func() error {
		var err error
		id, err = s.insertTx(ctx, ts, rec.ClientAddress, rec.Filters)
		return err
	})
	if err != nil {
		return 0, fmt.Errorf("insert usage record: %w", err)
	}
	return id, nil
}

func (s *Store) insertTx(ctx context.Context, ts time.Time, addr string, names []string) (int64, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, err
	}
	defer tx.Rollback()

	res, err := tx.ExecContext(ctx,
		`INSERT INTO requests (date, day, ip) VALUES (?, ?, ?)`,
		ts.UTC().Format(time.RFC3339Nano), ts.In(s.loc).Format(DayLayout), addr,
	)
	if err != nil {
		return 0, err
	}
	id, err := res.LastInsertId()
	if err != nil {
		return 0, err
	}

	for i, name := range names {
		if _, err := tx.ExecContext(ctx, `INSERT OR IGNORE INTO filters (filter) VALUES (?)`, name); err != nil {
			return 0, err
		}
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO used_filters (request_id, position, filter_id)
			 SELECT ?, ?, id FROM filters WHERE filter = ?`,
			id, i, name,
		); err != nil {
			return 0, err
		}
	}
	return id, tx.Commit()
}

// TrailingWindowCount returns the number of requests per calendar day for
// the days-long window ending on from's date. Every day of the window is
// present in the result, with zero when nothing was logged.
func (s *Store) TrailingWindowCount(ctx context.Context, from time.Time, days int) (map[string]int, error) {
	if days <= 0 {
		return nil, fmt.Errorf("window must cover at least one day, got %d", days)
	}

	end := from.In(s.loc)
	start := end.AddDate(0, 0, -(days - 1))

	counts := make(map[string]int, days)
	for i := 0; i < days; i++ {
		counts[end.AddDate(0, 0, -i).Format(DayLayout)] = 0
	}

	rows, err := s.db.QueryContext(ctx,
		`SELECT day, COUNT(*) FROM requests WHERE day BETWEEN ? AND ? GROUP BY day`,
		start.Format(DayLayout), end.Format(DayLayout),
	)
	if err != nil {
		return nil, fmt.Errorf("query window: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var day string
		var n int
		if err := rows.Scan(&day, &n); err != nil {
			return nil, err
		}
		if _, ok := counts[day]; ok {
			counts[day] = n
		}
	}
	return counts, rows.Err()
}

// ListRecords returns the most recent records, newest first. A limit of
// zero or less returns every record.
func (s *Store) ListRecords(ctx context.Context, limit int) ([]UsageRecord, error) {
	if limit <= 0 {
		limit = -1
	}
	rows, err := s.db.QueryContext(ctx,
		`SELECT r.id, r.date, r.ip, f.filter
		 FROM (SELECT id, date, COALESCE(ip, '') AS ip FROM requests ORDER BY id DESC LIMIT ?) r
		 LEFT JOIN used_filters u ON u.request_id = r.id
		 LEFT JOIN filters f ON f.id = u.filter_id
		 ORDER BY r.id DESC, u.position`,
		limit,
	)
	if err != nil {
		return nil, fmt.Errorf("list records: %w", err)
	}
	defer rows.Close()

	var out []UsageRecord
	for rows.Next() {
		var (
			id     int64
			date   string
			ip     string
			filter sql.NullString
		)
		if err := rows.Scan(&id, &date, &ip, &filter); err != nil {
			return nil, err
		}
		if len(out) == 0 || out[len(out)-1].ID != id {
			ts, err := s.parseDate(date)
			if err != nil {
				return nil, fmt.Errorf("record %d: bad date %q: %w", id, date, err)
			}
			out = append(out, UsageRecord{ID: id, Timestamp: ts, ClientAddress: ip, Filters: []string{}})
		}
		if filter.Valid {
			last := &out[len(out)-1]
			last.Filters = append(last.Filters, filter.String)
		}
	}
	return out, rows.Err()
}

// legacyDateLayout matches dates written without a zone offset by older
// versions of the usage log. They are read in the store's location.
const legacyDateLayout = "2006-01-02T15:04:05.999999999"

func (s *Store) parseDate(v string) (time.Time, error) {
	ts, err := time.Parse(time.RFC3339Nano, v)
	if err == nil {
		return ts, nil
	}
	if legacy, lerr := time.ParseInLocation(legacyDateLayout, v, s.loc); lerr == nil {
		return legacy, nil
	}
	return time.Time{}, err
}

// FilterNames returns the contents of the filters table in id order.
func (s *Store) FilterNames(ctx context.Context) ([]string, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT filter FROM filters ORDER BY id`)
	if err != nil {
		return nil, fmt.Errorf("list filters: %w", err)
	}
	defer rows.Close()

	var out []string
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return nil, err
		}
		out = append(out, name)
	}
	return out, rows.Err()
}
