package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var testFilters = []string{"bright", "negative", "white_black", "gray_scale", "sepia", "contrast", "upscale_x2", "upscale_x4"}

func newTestStore(t *testing.T) *Store {
	t.Helper()
	dbPath := filepath.Join(t.TempDir(), "usage.db")
	s, err := Create(dbPath, testFilters, WithLocation(time.UTC))
	require.NoError(t, err, "Create(%q)", dbPath)
	t.Cleanup(func() { s.Close() })
	return s
}

func day(t *testing.T, s string) time.Time {
	t.Helper()
	ts, err := time.ParseInLocation(DayLayout, s, time.UTC)
	require.NoError(t, err)
	return ts.Add(12 * time.Hour)
}

func TestCreate_SeedsFilters(t *testing.T) {
	s := newTestStore(t)
	names, err := s.FilterNames(context.Background())
	require.NoError(t, err)
	assert.Equal(t, testFilters, names)
}

func TestCreate_RefusesExisting(t *testing.T) {
	dbPath := filepath.Join(t.TempDir(), "usage.db")
	s, err := Create(dbPath, testFilters)
	require.NoError(t, err)
	require.NoError(t, s.Close())

	_, err = Create(dbPath, testFilters)
	assert.ErrorIs(t, err, ErrExists)

	require.NoError(t, Remove(dbPath))
	s, err = Create(dbPath, testFilters)
	require.NoError(t, err)
	require.NoError(t, s.Close())
}

func TestOpen_Missing(t *testing.T) {
	_, err := Open(filepath.Join(t.TempDir(), "missing.db"))
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestOpen_Existing(t *testing.T) {
	dbPath := filepath.Join(t.TempDir(), "usage.db")
	s, err := Create(dbPath, testFilters, WithLocation(time.UTC))
	require.NoError(t, err)
	_, err = s.Insert(context.Background(), UsageRecord{Timestamp: day(t, "2021-10-11"), ClientAddress: "10.0.0.1", Filters: []string{"sepia"}})
	require.NoError(t, err)
	require.NoError(t, s.Close())

	s, err = Open(dbPath, WithLocation(time.UTC))
	require.NoError(t, err)
	defer s.Close()

	recs, err := s.ListRecords(context.Background(), 0)
	require.NoError(t, err)
	require.Len(t, recs, 1)
	assert.Equal(t, []string{"sepia"}, recs[0].Filters)
}

// createLegacyDB writes a database with the schema of older usage logs:
// no day column on requests and no position on used_filters.
func createLegacyDB(t *testing.T, path string) {
	t.Helper()
	db, err := sql.Open("sqlite", path)
	require.NoError(t, err)
	defer db.Close()

	_, err = db.Exec(`
	CREATE TABLE requests (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		date TEXT,
		ip TEXT
	);
	CREATE TABLE filters (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		filter TEXT UNIQUE
	);
	CREATE TABLE used_filters (
		request_id INTEGER,
		filter_id INTEGER,
		FOREIGN KEY (request_id) REFERENCES requests (id) ON DELETE CASCADE,
		FOREIGN KEY (filter_id) REFERENCES filters (id) ON DELETE CASCADE
	);
	INSERT INTO filters (filter) VALUES ('bright'), ('negative'), ('sepia');
	INSERT INTO requests (date, ip) VALUES ('2021-10-11T08:30:00.123456', '10.0.0.9');
	INSERT INTO used_filters (request_id, filter_id) VALUES (1, 3), (1, 1);
	`)
	require.NoError(t, err)
}

func TestOpen_UpgradesLegacySchema(t *testing.T) {
	dbPath := filepath.Join(t.TempDir(), "legacy.db")
	createLegacyDB(t, dbPath)

	s, err := Open(dbPath, WithLocation(time.UTC))
	require.NoError(t, err)
	defer s.Close()
	ctx := context.Background()

	_, err = s.Insert(ctx, UsageRecord{Timestamp: day(t, "2021-10-15"), ClientAddress: "10.0.0.1", Filters: []string{"negative"}})
	require.NoError(t, err, "insert into an upgraded database")

	counts, err := s.TrailingWindowCount(ctx, day(t, "2021-10-29"), 30)
	require.NoError(t, err)
	assert.Equal(t, 1, counts["2021-10-11"], "legacy row keeps its day")
	assert.Equal(t, 1, counts["2021-10-15"])

	recs, err := s.ListRecords(ctx, 0)
	require.NoError(t, err)
	require.Len(t, recs, 2)
	assert.Equal(t, []string{"negative"}, recs[0].Filters)
	assert.Equal(t, []string{"sepia", "bright"}, recs[1].Filters)
	assert.Equal(t, "10.0.0.9", recs[1].ClientAddress)
	assert.True(t, recs[1].Timestamp.Equal(time.Date(2021, 10, 11, 8, 30, 0, 123456000, time.UTC)))
}

func TestRemove_Missing(t *testing.T) {
	assert.NoError(t, Remove(filepath.Join(t.TempDir(), "missing.db")))
}

func TestInsert_ListRecords(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	first, err := s.Insert(ctx, UsageRecord{
		Timestamp:     time.Date(2021, 10, 11, 8, 30, 0, 0, time.UTC),
		ClientAddress: "192.168.0.7",
		Filters:       []string{"sepia", "bright", "sepia"},
	})
	require.NoError(t, err)
	second, err := s.Insert(ctx, UsageRecord{
		Timestamp:     time.Date(2021, 10, 12, 9, 0, 0, 0, time.UTC),
		ClientAddress: "192.168.0.8",
	})
	require.NoError(t, err)
	assert.Greater(t, second, first)

	recs, err := s.ListRecords(ctx, 0)
	require.NoError(t, err)
	require.Len(t, recs, 2)

	assert.Equal(t, second, recs[0].ID)
	assert.Empty(t, recs[0].Filters)
	assert.Equal(t, "192.168.0.8", recs[0].ClientAddress)

	assert.Equal(t, first, recs[1].ID)
	assert.Equal(t, []string{"sepia", "bright", "sepia"}, recs[1].Filters)
	assert.True(t, recs[1].Timestamp.Equal(time.Date(2021, 10, 11, 8, 30, 0, 0, time.UTC)))

	limited, err := s.ListRecords(ctx, 1)
	require.NoError(t, err)
	require.Len(t, limited, 1)
	assert.Equal(t, second, limited[0].ID)
}

func TestInsert_UnknownFilterName(t *testing.T) {
	s := newTestStore(t)
	_, err := s.Insert(context.Background(), UsageRecord{ClientAddress: "::1", Filters: []string{"posterize"}})
	require.NoError(t, err)

	names, err := s.FilterNames(context.Background())
	require.NoError(t, err)
	assert.Contains(t, names, "posterize")
}

func TestTrailingWindowCount(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	for _, d := range []string{"2021-10-11", "2021-10-15", "2021-10-15", "2021-09-29", "2021-10-30"} {
		_, err := s.Insert(ctx, UsageRecord{Timestamp: day(t, d), ClientAddress: "127.0.0.1", Filters: []string{"negative"}})
		require.NoError(t, err)
	}

	counts, err := s.TrailingWindowCount(ctx, day(t, "2021-10-29"), 30)
	require.NoError(t, err)
	require.Len(t, counts, 30)

	assert.Equal(t, 1, counts["2021-10-11"])
	assert.Equal(t, 2, counts["2021-10-15"])
	assert.Contains(t, counts, "2021-10-29")
	assert.Contains(t, counts, "2021-09-30")
	assert.NotContains(t, counts, "2021-09-29")
	assert.NotContains(t, counts, "2021-10-30")

	zero := 0
	for d, n := range counts {
		if d != "2021-10-11" && d != "2021-10-15" {
			assert.Equal(t, 0, n, "day %s", d)
			zero++
		}
	}
	assert.Equal(t, 28, zero)
}

func TestTrailingWindowCount_UsesStoreLocation(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	// 23:30 in UTC-5 is the next day in UTC.
	est := time.FixedZone("EST", -5*3600)
	_, err := s.Insert(ctx, UsageRecord{Timestamp: time.Date(2021, 10, 11, 23, 30, 0, 0, est), ClientAddress: "127.0.0.1"})
	require.NoError(t, err)

	counts, err := s.TrailingWindowCount(ctx, day(t, "2021-10-20"), 30)
	require.NoError(t, err)
	assert.Equal(t, 0, counts["2021-10-11"])
	assert.Equal(t, 1, counts["2021-10-12"])
}

func TestTrailingWindowCount_InvalidDays(t *testing.T) {
	s := newTestStore(t)
	_, err := s.TrailingWindowCount(context.Background(), time.Now(), 0)
	assert.Error(t, err)
}

func TestInsert_Concurrent(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	now := day(t, "2021-10-29")

	const workers, perWorker = 8, 10
	var wg sync.WaitGroup
	errs := make(chan error, workers*perWorker)
	for w := 0; w < workers; w++ {
		wg.Add(1)
		go func(w int) {
			defer wg.Done()
			for i := 0; i < perWorker; i++ {
				_, err := s.Insert(ctx, UsageRecord{
					Timestamp:     now,
					ClientAddress: fmt.Sprintf("10.0.0.%d", w),
					Filters:       []string{"gray_scale", "contrast"},
				})
				errs <- err
			}
		}(w)
	}

	// Reads interleave with the writers.
	for i := 0; i < 5; i++ {
		_, err := s.TrailingWindowCount(ctx, now, 30)
		require.NoError(t, err)
	}

	wg.Wait()
	close(errs)
	for err := range errs {
		require.NoError(t, err)
	}

	counts, err := s.TrailingWindowCount(ctx, now, 30)
	require.NoError(t, err)
	assert.Equal(t, workers*perWorker, counts["2021-10-29"])
}

func TestInsert_CancelledContext(t *testing.T) {
	s := newTestStore(t)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := s.Insert(ctx, UsageRecord{ClientAddress: "127.0.0.1"})
	require.Error(t, err)
	assert.True(t, errors.Is(err, context.Canceled))
}
