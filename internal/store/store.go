package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"regexp"
	"strings"
	"time"
)

// SchemaVersion is the record layout written by this build.
const SchemaVersion = 1

var (
	ErrNotFound      = errors.New("record not found")
	ErrSchemaVersion = errors.New("unsupported record schema version")
	ErrInvalidName   = errors.New("invalid record name")
)

type Kind string

const (
	KindProfile     Kind = "profile"
	KindCoverLetter Kind = "cover_letter"
	KindApplication Kind = "application"
)

// Record is one persisted model result.
type Record struct {
	SchemaVersion int            `json:"schema_version"`
	Name          string         `json:"name"`
	Kind          Kind           `json:"kind"`
	CreatedAt     time.Time      `json:"created_at"`
	Source        string         `json:"source,omitempty"`
	Model         string         `json:"model,omitempty"`
	Text          string         `json:"text"`
	Fields        map[string]any `json:"fields,omitempty"`
}

// Store persists records by name. Saving an existing name replaces it.
type Store interface {
	Save(ctx context.Context, rec Record) error
	Load(ctx context.Context, name string) (Record, error)
	List(ctx context.Context) ([]string, error)
}

// Closer is implemented by stores holding resources.
type Closer interface {
	Close() error
}

type S3Config struct {
	Bucket   string `mapstructure:"bucket"`
	Prefix   string `mapstructure:"prefix"`
	Region   string `mapstructure:"region"`
	Endpoint string `mapstructure:"endpoint"`
}

type Config struct {
	Driver string   `mapstructure:"driver"`
	Dir    string   `mapstructure:"dir"`
	Path   string   `mapstructure:"path"`
	S3     S3Config `mapstructure:"s3"`
}

const (
	DriverFile   = "file"
	DriverSQLite = "sqlite"
	DriverS3     = "s3"

	defaultDir        = "./data/results"
	defaultSQLitePath = "./data/results.db"
)

// New builds the store selected by cfg.Driver. The file driver is the default.
func New(ctx context.Context, cfg Config) (Store, error) {
	switch strings.ToLower(strings.TrimSpace(cfg.Driver)) {
	case "", DriverFile:
		dir := strings.TrimSpace(cfg.Dir)
		if dir == "" {
			dir = defaultDir
		}
		return NewFileStore(dir)
	case DriverSQLite:
		path := strings.TrimSpace(cfg.Path)
		if path == "" {
			path = defaultSQLitePath
		}
		return NewSQLiteStore(ctx, path)
	case DriverS3:
		return NewS3Store(ctx, cfg.S3)
	default:
		return nil, fmt.Errorf("unknown store driver %q", cfg.Driver)
	}
}

var namePattern = regexp.MustCompile(`^[A-Za-z0-9][A-Za-z0-9._-]{0,127}$`)

// ValidateName rejects names that could escape the storage root.
func ValidateName(name string) error {
	if !namePattern.MatchString(name) || strings.Contains(name, "..") {
		return fmt.Errorf("%w: %q", ErrInvalidName, name)
	}
	return nil
}

func prepare(rec Record) (Record, error) {
	if err := ValidateName(rec.Name); err != nil {
		return Record{}, err
	}
	if rec.SchemaVersion == 0 {
		rec.SchemaVersion = SchemaVersion
	}
	if rec.SchemaVersion > SchemaVersion {
		return Record{}, fmt.Errorf("%w: %d", ErrSchemaVersion, rec.SchemaVersion)
	}
	if rec.Kind == "" {
		rec.Kind = KindProfile
	}
	if rec.CreatedAt.IsZero() {
		rec.CreatedAt = time.Now().UTC()
	}
	fields, err := canonicalFields(rec.Fields)
	if err != nil {
		return Record{}, fmt.Errorf("record %q fields: %w", rec.Name, err)
	}
	rec.Fields = fields
	return rec, nil
}

// canonicalFields passes fields through JSON so every backend stores the
// shapes Load returns: numbers as float64, nested maps as map[string]any.
func canonicalFields(fields map[string]any) (map[string]any, error) {
	if fields == nil {
		return nil, nil
	}
	data, err := json.Marshal(fields)
	if err != nil {
		return nil, err
	}
	var out map[string]any
	if err := json.Unmarshal(data, &out); err != nil {
		return nil, err
	}
	return out, nil
}

func encode(rec Record) ([]byte, error) {
	data, err := json.MarshalIndent(rec, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("marshal record %q: %w", rec.Name, err)
	}
	return data, nil
}

func decode(name string, data []byte) (Record, error) {
	var rec Record
	if err := json.Unmarshal(data, &rec); err != nil {
		return Record{}, fmt.Errorf("unmarshal record %q: %w", name, err)
	}
	if rec.SchemaVersion < 1 || rec.SchemaVersion > SchemaVersion {
		return Record{}, fmt.Errorf("record %q: %w: %d", name, ErrSchemaVersion, rec.SchemaVersion)
	}
	return rec, nil
}
