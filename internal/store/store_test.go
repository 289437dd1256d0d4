package store

import (
	"bytes"
	"context"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	s3types "github.com/aws/aws-sdk-go-v2/service/s3/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func sampleRecord(name string) Record {
	return Record{
		Name:      name,
		Kind:      KindProfile,
		CreatedAt: time.Date(2025, 3, 1, 12, 30, 0, 0, time.UTC),
		Source:    "/tmp/resume.pdf",
		Model:     "openai/gpt-4o",
		Text:      "full_name: Jane Doe\nemail: jane@example.com",
		Fields: map[string]any{
			"full_name":           "Jane Doe",
			"email":               "jane@example.com",
			"skills":              []any{"Go", "SQL"},
			"years_of_experience": 7,
			"links":               map[string]string{"github": "https://github.com/jane"},
		},
	}
}

// factory returns an opener; every call opens a fresh instance over the same storage.
type factory func(t *testing.T) func() Store

func fileFactory(t *testing.T) func() Store {
	dir := t.TempDir()
	return func() Store {
		s, err := NewFileStore(dir)
		require.NoError(t, err)
		return s
	}
}

func sqliteFactory(t *testing.T) func() Store {
	path := filepath.Join(t.TempDir(), "nested", "results.db")
	return func() Store {
		s, err := NewSQLiteStore(context.Background(), path)
		require.NoError(t, err)
		t.Cleanup(func() { _ = s.Close() })
		return s
	}
}

func s3Factory(t *testing.T) func() Store {
	bucket := newFakeBucket()
	return func() Store {
		return newS3Store(bucket, "bucket", "/results/")
	}
}

func backends() map[string]factory {
	return map[string]factory{
		"file":   fileFactory,
		"sqlite": sqliteFactory,
		"s3":     s3Factory,
	}
}

func TestRoundTripAcrossInstances(t *testing.T) {
	for name, mk := range backends() {
		t.Run(name, func(t *testing.T) {
			open := mk(t)
			ctx := context.Background()

			rec := sampleRecord("jane-doe")
			require.NoError(t, open().Save(ctx, rec))

			got, err := open().Load(ctx, "jane-doe")
			require.NoError(t, err)

			// Fields come back in their JSON shapes whatever the backend.
			assert.Equal(t, float64(7), got.Fields["years_of_experience"])
			assert.Equal(t, map[string]any{"github": "https://github.com/jane"}, got.Fields["links"])
			rec.Fields["years_of_experience"] = float64(7)
			rec.Fields["links"] = map[string]any{"github": "https://github.com/jane"}

			rec.SchemaVersion = SchemaVersion
			assert.True(t, rec.CreatedAt.Equal(got.CreatedAt))
			got.CreatedAt = rec.CreatedAt
			assert.Equal(t, rec, got)
		})
	}
}

func TestSaveReplacesExisting(t *testing.T) {
	for name, mk := range backends() {
		t.Run(name, func(t *testing.T) {
			s := mk(t)()
			ctx := context.Background()

			first := sampleRecord("jane")
			require.NoError(t, s.Save(ctx, first))

			second := sampleRecord("jane")
			second.Text = "updated"
			require.NoError(t, s.Save(ctx, second))

			got, err := s.Load(ctx, "jane")
			require.NoError(t, err)
			assert.Equal(t, "updated", got.Text)

			names, err := s.List(ctx)
			require.NoError(t, err)
			assert.Equal(t, []string{"jane"}, names)
		})
	}
}

func TestLoadUnknownName(t *testing.T) {
	for name, mk := range backends() {
		t.Run(name, func(t *testing.T) {
			_, err := mk(t)().Load(context.Background(), "missing")
			assert.ErrorIs(t, err, ErrNotFound)
		})
	}
}

func TestListSorted(t *testing.T) {
	for name, mk := range backends() {
		t.Run(name, func(t *testing.T) {
			s := mk(t)()
			ctx := context.Background()
			for _, n := range []string{"zeta", "alpha", "mid.v2"} {
				require.NoError(t, s.Save(ctx, sampleRecord(n)))
			}

			names, err := s.List(ctx)
			require.NoError(t, err)
			assert.Equal(t, []string{"alpha", "mid.v2", "zeta"}, names)
		})
	}
}

func TestRejectsInvalidNames(t *testing.T) {
	bad := []string{"", "../etc/passwd", "a/b", ".hidden", "a..b", strings.Repeat("x", 200), "name with space"}

	s, err := NewFileStore(t.TempDir())
	require.NoError(t, err)

	for _, name := range bad {
		t.Run(name, func(t *testing.T) {
			assert.ErrorIs(t, s.Save(context.Background(), sampleRecord(name)), ErrInvalidName)
			_, err := s.Load(context.Background(), name)
			assert.ErrorIs(t, err, ErrInvalidName)
		})
	}
}

func TestSaveDefaults(t *testing.T) {
	s, err := NewFileStore(t.TempDir())
	require.NoError(t, err)

	require.NoError(t, s.Save(context.Background(), Record{Name: "bare", Text: "x"}))

	got, err := s.Load(context.Background(), "bare")
	require.NoError(t, err)
	assert.Equal(t, SchemaVersion, got.SchemaVersion)
	assert.Equal(t, KindProfile, got.Kind)
	assert.False(t, got.CreatedAt.IsZero())
}

func TestSchemaVersionChecks(t *testing.T) {
	dir := t.TempDir()
	s, err := NewFileStore(dir)
	require.NoError(t, err)

	future := sampleRecord("future")
	future.SchemaVersion = SchemaVersion + 1
	assert.ErrorIs(t, s.Save(context.Background(), future), ErrSchemaVersion)

	require.NoError(t, os.WriteFile(filepath.Join(dir, "legacy.json"), []byte(`{"name":"legacy","text":"blob"}`), 0o600))
	_, err = s.Load(context.Background(), "legacy")
	assert.ErrorIs(t, err, ErrSchemaVersion)

	require.NoError(t, os.WriteFile(filepath.Join(dir, "newer.json"), []byte(`{"schema_version":99,"name":"newer"}`), 0o600))
	_, err = s.Load(context.Background(), "newer")
	assert.ErrorIs(t, err, ErrSchemaVersion)
}

func TestFileStoreLeavesNoTempFiles(t *testing.T) {
	dir := t.TempDir()
	s, err := NewFileStore(dir)
	require.NoError(t, err)
	require.NoError(t, s.Save(context.Background(), sampleRecord("jane")))

	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, "jane.json", entries[0].Name())
}

func TestNewSelectsDriver(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()

	s, err := New(ctx, Config{Dir: dir})
	require.NoError(t, err)
	assert.IsType(t, &FileStore{}, s)

	s, err = New(ctx, Config{Driver: "SQLite", Path: filepath.Join(dir, "r.db")})
	require.NoError(t, err)
	assert.IsType(t, &SQLiteStore{}, s)
	require.NoError(t, s.(Closer).Close())

	_, err = New(ctx, Config{Driver: "s3"})
	assert.Error(t, err)

	_, err = New(ctx, Config{Driver: "postgres"})
	assert.Error(t, err)
}

func TestS3ObjectKeys(t *testing.T) {
	bucket := newFakeBucket()
	s := newS3Store(bucket, "bucket", "results")
	require.NoError(t, s.Save(context.Background(), sampleRecord("jane")))

	_, ok := bucket.objects["results/jane.json"]
	assert.True(t, ok, "expected prefixed object key, have %v", bucket.keys())

	bucket.objects["results/nested/other.json"] = []byte("{}")
	bucket.objects["results/readme.txt"] = []byte("x")

	names, err := s.List(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []string{"jane"}, names)
}

type fakeBucket struct {
	mu      sync.Mutex
	objects map[string][]byte
}

func newFakeBucket() *fakeBucket {
	return &fakeBucket{objects: make(map[string][]byte)}
}

func (b *fakeBucket) keys() []string {
	keys := make([]string, 0, len(b.objects))
	for k := range b.objects {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

func (b *fakeBucket) PutObject(_ context.Context, in *s3.PutObjectInput, _ ...func(*s3.Options)) (*s3.PutObjectOutput, error) {
	data, err := io.ReadAll(in.Body)
	if err != nil {
		return nil, err
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	b.objects[aws.ToString(in.Key)] = data
	return &s3.PutObjectOutput{}, nil
}

func (b *fakeBucket) GetObject(_ context.Context, in *s3.GetObjectInput, _ ...func(*s3.Options)) (*s3.GetObjectOutput, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	data, ok := b.objects[aws.ToString(in.Key)]
	if !ok {
		return nil, &s3types.NoSuchKey{}
	}
	return &s3.GetObjectOutput{Body: io.NopCloser(bytes.NewReader(data))}, nil
}

func (b *fakeBucket) ListObjectsV2(_ context.Context, in *s3.ListObjectsV2Input, _ ...func(*s3.Options)) (*s3.ListObjectsV2Output, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	prefix := aws.ToString(in.Prefix)
	out := &s3.ListObjectsV2Output{IsTruncated: aws.Bool(false)}
	for _, k := range b.keys() {
		if strings.HasPrefix(k, prefix) {
			out.Contents = append(out.Contents, s3types.Object{Key: aws.String(k)})
		}
	}
	return out, nil
}
