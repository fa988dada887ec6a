package store

import (
	"context"
	"net/http/httptest"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"cloudimg/internal/core/domain"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/johannesboyne/gofakes3"
	"github.com/johannesboyne/gofakes3/backend/s3mem"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testRecord(identifier string, version int64) domain.UploadRecord {
	return domain.UploadRecord{
		Identifier:     identifier,
		RemoteVersion:  version,
		LastUploadedAt: time.Date(2024, 5, 1, 12, 30, 0, 0, time.UTC),
		Metadata: domain.UploadMetadata{
			PublicID:    "site/hero_9f86d081884c",
			Width:       4032,
			Height:      3024,
			Format:      "jpg",
			SecureURL:   "https://res.cloudinary.com/demo/image/upload/v1/site/hero_9f86d081884c.jpg",
			Version:     version,
			Breakpoints: []int{50, 520, 1000},
		},
	}
}

func assertRecord(t *testing.T, want, got domain.UploadRecord) {
	t.Helper()
	assert.True(t, want.LastUploadedAt.Equal(got.LastUploadedAt), "uploaded at %s != %s",
		want.LastUploadedAt, got.LastUploadedAt)
	want.LastUploadedAt, got.LastUploadedAt = time.Time{}, time.Time{}
	assert.Equal(t, want, got)
}

func runStoreSuite(t *testing.T, open func(t *testing.T) Store) {
	ctx := context.Background()

	t.Run("get missing", func(t *testing.T) {
		s := open(t)
		_, err := s.Get(ctx, "sha256:missing")
		assert.ErrorIs(t, err, domain.ErrRecordNotFound)
	})

	t.Run("create then get", func(t *testing.T) {
		s := open(t)
		rec := testRecord("sha256:9f86d081884c", 1)
		require.NoError(t, s.Create(ctx, rec))

		got, err := s.Get(ctx, rec.Identifier)
		require.NoError(t, err)
		assertRecord(t, rec, got)
	})

	t.Run("create twice keeps the first record", func(t *testing.T) {
		s := open(t)
		require.NoError(t, s.Create(ctx, testRecord("site:https://example.org/a.png?x=1", 1)))

		err := s.Create(ctx, testRecord("site:https://example.org/a.png?x=1", 2))
		assert.ErrorIs(t, err, domain.ErrRecordExists)

		got, err := s.Get(ctx, "site:https://example.org/a.png?x=1")
		require.NoError(t, err)
		assert.Equal(t, int64(1), got.RemoteVersion)
	})

	t.Run("put overwrites", func(t *testing.T) {
		s := open(t)
		require.NoError(t, s.Put(ctx, testRecord("k", 1)))
		require.NoError(t, s.Put(ctx, testRecord("k", 7)))

		got, err := s.Get(ctx, "k")
		require.NoError(t, err)
		assertRecord(t, testRecord("k", 7), got)
	})

	t.Run("close", func(t *testing.T) {
		assert.NoError(t, open(t).Close())
	})
}

func TestMemory(t *testing.T) {
	runStoreSuite(t, func(*testing.T) Store { return NewMemory() })
}

func TestDisk(t *testing.T) {
	runStoreSuite(t, func(t *testing.T) Store {
		s, err := NewDisk(t.TempDir())
		require.NoError(t, err)
		return s
	})
}

func TestDiskSurvivesReopen(t *testing.T) {
	dir := t.TempDir()
	first, err := NewDisk(dir)
	require.NoError(t, err)
	require.NoError(t, first.Create(context.Background(), testRecord("k", 3)))

	second, err := NewDisk(dir)
	require.NoError(t, err)
	got, err := second.Get(context.Background(), "k")
	require.NoError(t, err)
	assert.Equal(t, int64(3), got.RemoteVersion)
}

func TestDiskRequiresPath(t *testing.T) {
	_, err := NewDisk("")
	assert.Error(t, err)
}

func TestConcurrentCreate(t *testing.T) {
	stores := map[string]Store{"memory": NewMemory()}
	disk, err := NewDisk(t.TempDir())
	require.NoError(t, err)
	stores["disk"] = disk

	for name, s := range stores {
		t.Run(name, func(t *testing.T) {
			var created atomic.Int32
			var wg sync.WaitGroup
			for i := 0; i < 16; i++ {
				wg.Add(1)
				go func(version int64) {
					defer wg.Done()
					err := s.Create(context.Background(), testRecord("race", version))
					if err == nil {
						created.Add(1)
						return
					}
					assert.ErrorIs(t, err, domain.ErrRecordExists)
				}(int64(i))
			}
			wg.Wait()
			assert.Equal(t, int32(1), created.Load())
		})
	}
}

func setupFakeS3(t *testing.T) S3Config {
	t.Helper()
	backend := s3mem.New()
	fs := gofakes3.New(backend)
	server := httptest.NewServer(fs.Server())
	t.Cleanup(server.Close)

	bucket := "cloudimg-test"
	require.NoError(t, backend.CreateBucket(bucket))

	return S3Config{
		Endpoint:       strings.TrimPrefix(server.URL, "http://"),
		Region:         "us-east-1",
		Bucket:         bucket,
		Prefix:         "/cache/",
		AccessKey:      "test",
		SecretKey:      "test",
		Insecure:       true,
		ForcePathStyle: true,
	}
}

func TestS3(t *testing.T) {
	runStoreSuite(t, func(t *testing.T) Store {
		s, err := NewS3(context.Background(), setupFakeS3(t))
		require.NoError(t, err)
		return s
	})
}

func TestS3ObjectLayout(t *testing.T) {
	s, err := NewS3(context.Background(), setupFakeS3(t))
	require.NoError(t, err)
	assert.Equal(t, "cache/records/"+recordName("k"), s.object("k"))
}

func TestS3MissingBucket(t *testing.T) {
	cfg := setupFakeS3(t)
	cfg.Bucket = "absent"

	_, err := NewS3(context.Background(), cfg)
	assert.Error(t, err)
}

type fakeRow struct {
	scan func(dest ...any) error
}

func (r fakeRow) Scan(dest ...any) error {
	if r.scan == nil {
		return pgx.ErrNoRows
	}
	return r.scan(dest...)
}

type fakeRecordRow struct {
	version    int64
	uploadedAt time.Time
	metadata   []byte
}

type fakeQuerier struct {
	mutex sync.Mutex
	rows  map[string]fakeRecordRow
	execs []string
}

func newFakeQuerier() *fakeQuerier {
	return &fakeQuerier{rows: make(map[string]fakeRecordRow)}
}

func (q *fakeQuerier) Exec(_ context.Context, sql string, args ...any) (pgconn.CommandTag, error) {
	q.mutex.Lock()
	defer q.mutex.Unlock()
	q.execs = append(q.execs, sql)

	switch sql {
	case schema:
		return pgconn.NewCommandTag("CREATE TABLE"), nil
	case insertRecord, upsertRecord:
		identifier := args[0].(string)
		if _, ok := q.rows[identifier]; ok && sql == insertRecord {
			return pgconn.NewCommandTag("INSERT 0 0"), nil
		}
		q.rows[identifier] = fakeRecordRow{
			version:    args[1].(int64),
			uploadedAt: args[2].(time.Time),
			metadata:   args[3].([]byte),
		}
		return pgconn.NewCommandTag("INSERT 0 1"), nil
	}
	return pgconn.CommandTag{}, nil
}

func (q *fakeQuerier) QueryRow(_ context.Context, _ string, args ...any) pgx.Row {
	q.mutex.Lock()
	defer q.mutex.Unlock()

	row, ok := q.rows[args[0].(string)]
	if !ok {
		return fakeRow{}
	}
	return fakeRow{scan: func(dest ...any) error {
		*dest[0].(*int64) = row.version
		*dest[1].(*time.Time) = row.uploadedAt
		*dest[2].(*[]byte) = row.metadata
		return nil
	}}
}

func TestPostgres(t *testing.T) {
	runStoreSuite(t, func(t *testing.T) Store {
		s, err := newPostgres(context.Background(), newFakeQuerier())
		require.NoError(t, err)
		return s
	})
}

func TestPostgresCreatesSchema(t *testing.T) {
	q := newFakeQuerier()
	_, err := newPostgres(context.Background(), q)
	require.NoError(t, err)
	assert.Equal(t, []string{schema}, q.execs)
}

func TestNewPostgresRequiresURL(t *testing.T) {
	_, err := NewPostgres(context.Background(), "")
	assert.Error(t, err)
}

func TestRegistry(t *testing.T) {
	r := DefaultRegistry()
	assert.Equal(t, []string{"disk", "memory", "postgres", "s3"}, r.Drivers())

	s, err := r.Open(context.Background(), Config{Driver: "memory"})
	require.NoError(t, err)
	assert.IsType(t, &Memory{}, s)

	s, err = r.Open(context.Background(), Config{Driver: "disk", DiskPath: t.TempDir()})
	require.NoError(t, err)
	assert.IsType(t, &Disk{}, s)

	_, err = r.Open(context.Background(), Config{Driver: "redis"})
	assert.ErrorContains(t, err, `unknown record store driver "redis", available: disk, memory, postgres, s3`)

	_, err = (&Registry{}).Open(context.Background(), Config{Driver: "memory"})
	assert.Error(t, err)
}
