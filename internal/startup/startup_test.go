package startup

import (
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/mux"

	"challenge-media/internal/database"
)

func TestGetBuildInfo(t *testing.T) {
	info := GetBuildInfo()

	if info.Version == "" {
		t.Error("Expected Version to be set")
	}
	if info.GoVersion != GoVersion {
		t.Errorf("Expected GoVersion=%s, got %s", GoVersion, info.GoVersion)
	}
	if info.OS == "" || info.Arch == "" {
		t.Errorf("Expected OS and Arch to be set, got %q/%q", info.OS, info.Arch)
	}
}

func TestGetEnv(t *testing.T) {
	tests := []struct {
		name     string
		envValue string
		setEnv   bool
		want     string
	}{
		{name: "unset uses default", want: "default"},
		{name: "set overrides default", envValue: "custom", setEnv: true, want: "custom"},
		{name: "empty uses default", envValue: "", setEnv: true, want: "default"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			const key = "CHALLENGE_MEDIA_TEST_STRING"
			if tt.setEnv {
				t.Setenv(key, tt.envValue)
			} else {
				os.Unsetenv(key)
			}

			if got := getEnv(key, "default"); got != tt.want {
				t.Errorf("getEnv() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestGetEnvBool(t *testing.T) {
	tests := []struct {
		value        string
		defaultValue bool
		want         bool
	}{
		{"", true, true},
		{"", false, false},
		{"true", false, true},
		{"1", false, true},
		{"T", false, true},
		{"false", true, false},
		{"0", true, false},
		{"f", true, false},
		{"yes", true, true},
		{"maybe", false, false},
	}

	for _, tt := range tests {
		t.Run(tt.value, func(t *testing.T) {
			t.Setenv("CHALLENGE_MEDIA_TEST_BOOL", tt.value)
			if got := getEnvBool("CHALLENGE_MEDIA_TEST_BOOL", tt.defaultValue); got != tt.want {
				t.Errorf("getEnvBool(%q, %v) = %v, want %v", tt.value, tt.defaultValue, got, tt.want)
			}
		})
	}
}

func TestGetEnvInt64(t *testing.T) {
	tests := []struct {
		value string
		want  int64
	}{
		{"", 7},
		{"1048576", 1048576},
		{"10MB", 10 << 20},
		{"512kb", 512 << 10},
		{"2 GB", 2 << 30},
		{"lots", 7},
		{"1.5MB", 7},
	}

	for _, tt := range tests {
		t.Run(tt.value, func(t *testing.T) {
			t.Setenv("CHALLENGE_MEDIA_TEST_INT", tt.value)
			if got := getEnvInt64("CHALLENGE_MEDIA_TEST_INT", 7); got != tt.want {
				t.Errorf("getEnvInt64(%q) = %d, want %d", tt.value, got, tt.want)
			}
		})
	}
}

func TestGetEnvDuration(t *testing.T) {
	t.Setenv("CHALLENGE_MEDIA_TEST_DURATION", "90s")
	if got := getEnvDuration("CHALLENGE_MEDIA_TEST_DURATION", time.Minute); got != 90*time.Second {
		t.Errorf("got %v, want 90s", got)
	}

	t.Setenv("CHALLENGE_MEDIA_TEST_DURATION", "soon")
	if got := getEnvDuration("CHALLENGE_MEDIA_TEST_DURATION", time.Minute); got != time.Minute {
		t.Errorf("invalid value: got %v, want default 1m", got)
	}
}

func writeConfigFile(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}
	return path
}

func TestLoadFileOverlaysDefaults(t *testing.T) {
	path := writeConfigFile(t, `
port: "9000"
storage_backend: s3
s3:
  bucket: challenge-images
  use_path_style: true
kafka_brokers:
  - kafka-1:9092
  - kafka-2:9092
session_timeout: 45m
bulk_delete_delay: 250ms
chunk_size: 4194304
`)

	config := DefaultConfig()
	if err := loadFile(path, &config); err != nil {
		t.Fatalf("loadFile: %v", err)
	}

	if config.Port != "9000" || config.StorageBackend != StorageS3 {
		t.Errorf("file values not applied: port=%s backend=%s", config.Port, config.StorageBackend)
	}
	if config.S3.Bucket != "challenge-images" || !config.S3.UsePathStyle {
		t.Errorf("nested s3 block not applied: %+v", config.S3)
	}
	if config.S3.Region != "us-east-1" {
		t.Errorf("unset nested key lost its default: region=%q", config.S3.Region)
	}
	if len(config.KafkaBrokers) != 2 {
		t.Errorf("KafkaBrokers = %v", config.KafkaBrokers)
	}
	if config.SessionTimeout != 45*time.Minute || config.BulkDeleteDelay != 250*time.Millisecond {
		t.Errorf("durations: session=%v bulk=%v", config.SessionTimeout, config.BulkDeleteDelay)
	}
	if config.ChunkSize != 4<<20 {
		t.Errorf("ChunkSize = %d", config.ChunkSize)
	}
	if config.MetricsPort != "9090" || config.MaxFileSize != 50<<20 {
		t.Errorf("keys missing from the file must keep defaults: %+v", config)
	}
}

func TestLoadFileErrors(t *testing.T) {
	config := DefaultConfig()

	if err := loadFile(filepath.Join(t.TempDir(), "missing.yaml"), &config); err == nil {
		t.Error("expected error for missing file")
	}
	if err := loadFile(writeConfigFile(t, "prot: 80\n"), &config); err == nil {
		t.Error("expected error for unknown key")
	}
	if err := loadFile(writeConfigFile(t, "session_timeout: forever\n"), &config); err == nil {
		t.Error("expected error for invalid duration")
	}
}

func TestEnvOverridesFile(t *testing.T) {
	config := DefaultConfig()
	if err := loadFile(writeConfigFile(t, "port: \"9000\"\nkafka_topic: from-file\n"), &config); err != nil {
		t.Fatalf("loadFile: %v", err)
	}

	t.Setenv("PORT", "7000")
	t.Setenv("KAFKA_BROKERS", "a:9092, b:9092,")
	t.Setenv("MAX_FILE_SIZE", "80MB")
	t.Setenv("STORAGE_BACKEND", "MEMORY")
	t.Setenv("MAX_IMAGE_DIMENSION", "8000")
	t.Setenv("MAX_IMAGE_PIXELS", "30000000")
	applyEnv(&config)

	if config.Port != "7000" {
		t.Errorf("Port = %s, want env value", config.Port)
	}
	if config.KafkaTopic != "from-file" {
		t.Errorf("KafkaTopic = %s, want file value", config.KafkaTopic)
	}
	if strings.Join(config.KafkaBrokers, "|") != "a:9092|b:9092" {
		t.Errorf("KafkaBrokers = %v", config.KafkaBrokers)
	}
	if config.MaxFileSize != 80<<20 || config.StorageBackend != StorageMemory {
		t.Errorf("MaxFileSize=%d backend=%s", config.MaxFileSize, config.StorageBackend)
	}
	if config.MaxImageDimension != 8000 || config.MaxImagePixels != 30_000_000 {
		t.Errorf("MaxImageDimension=%d MaxImagePixels=%d", config.MaxImageDimension, config.MaxImagePixels)
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		modify  func(*Config)
		wantErr string
	}{
		{name: "defaults", modify: func(*Config) {}},
		{name: "unknown backend", modify: func(c *Config) { c.StorageBackend = "ftp" }, wantErr: "STORAGE_BACKEND"},
		{name: "s3 without bucket", modify: func(c *Config) { c.StorageBackend = StorageS3 }, wantErr: "S3_BUCKET"},
		{name: "postgres without dsn", modify: func(c *Config) { c.DatabaseDriver = database.DriverPostgres }, wantErr: "DATABASE_DSN"},
		{name: "unknown driver", modify: func(c *Config) { c.DatabaseDriver = "mysql" }, wantErr: "DATABASE_DRIVER"},
		{name: "threshold above max", modify: func(c *Config) { c.ProgressiveThreshold = c.MaxFileSize + 1 }, wantErr: "PROGRESSIVE_UPLOAD_THRESHOLD"},
		{name: "chunks cannot cover max", modify: func(c *Config) { c.MaxChunks = 2 }, wantErr: "MAX_CHUNKS"},
		{name: "zero image dimension", modify: func(c *Config) { c.MaxImageDimension = 0 }, wantErr: "MAX_IMAGE_DIMENSION"},
		{name: "negative image pixels", modify: func(c *Config) { c.MaxImagePixels = -1 }, wantErr: "MAX_IMAGE_PIXELS"},
		{name: "negative delay", modify: func(c *Config) { c.BulkDeleteDelay = -time.Second }, wantErr: "BULK_DELETE_DELAY"},
		{name: "plain text password", modify: func(c *Config) { c.AdminPasswordHash = "hunter2" }, wantErr: "bcrypt"},
		{
			name:   "bcrypt hash",
			modify: func(c *Config) { c.AdminPasswordHash = "$2a$10$N9qo8uLOickgx2ZMRZoMyeIjZAgcfl7p92ldGxad68LJZdL17lhWy" },
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			config := DefaultConfig()
			tt.modify(&config)

			err := config.Validate()
			if tt.wantErr == "" {
				if err != nil {
					t.Errorf("Validate() = %v, want nil", err)
				}
				return
			}
			if err == nil || !strings.Contains(err.Error(), tt.wantErr) {
				t.Errorf("Validate() = %v, want error mentioning %s", err, tt.wantErr)
			}
		})
	}
}

func TestPrepareDirectories(t *testing.T) {
	root := t.TempDir()
	config := DefaultConfig()
	config.StorageDir = filepath.Join(root, "images")
	config.StagingDir = filepath.Join(root, "staging")
	config.DatabaseDir = filepath.Join(root, "db")

	if err := prepareDirectories(&config); err != nil {
		t.Fatalf("prepareDirectories: %v", err)
	}

	for _, dir := range []string{config.StorageDir, config.StagingDir, config.DatabaseDir} {
		if info, err := os.Stat(dir); err != nil || !info.IsDir() {
			t.Errorf("%s not created: %v", dir, err)
		}
	}
	if config.DatabaseDSN != filepath.Join(root, "db", "challenge-media.db") {
		t.Errorf("DatabaseDSN = %s", config.DatabaseDSN)
	}
	if !config.StagingOnDisk {
		t.Error("writable staging dir should be used")
	}
}

func TestPrepareDirectoriesRejectsFileAsStorageDir(t *testing.T) {
	file := filepath.Join(t.TempDir(), "not-a-dir")
	if err := os.WriteFile(file, nil, 0o644); err != nil {
		t.Fatal(err)
	}

	config := DefaultConfig()
	config.StorageDir = file
	if err := prepareDirectories(&config); err == nil {
		t.Error("expected error when STORAGE_DIR is a file")
	}
}

func TestGetRoutes(t *testing.T) {
	r := mux.NewRouter()
	noop := func(http.ResponseWriter, *http.Request) {}
	r.HandleFunc("/health", noop).Methods("GET")
	r.HandleFunc("/images/{path:.+}", noop).Methods("GET", "HEAD")
	admin := r.PathPrefix("/api/admin").Subrouter()
	admin.HandleFunc("/images", noop).Methods("GET")

	routes, err := GetRoutes(r)
	if err != nil {
		t.Fatalf("GetRoutes: %v", err)
	}

	got := make(map[string]bool)
	for _, route := range routes {
		got[route.Method+" "+route.Path] = true
	}
	for _, want := range []string{"GET /health", "GET /images/{path:.+}", "HEAD /images/{path:.+}", "GET /api/admin/images"} {
		if !got[want] {
			t.Errorf("missing route %s in %v", want, routes)
		}
	}
	if len(routes) != 4 {
		t.Errorf("got %d routes, want 4 (subrouter prefix excluded)", len(routes))
	}
}

func TestGetRouteGroup(t *testing.T) {
	tests := map[string]string{
		"/health":                     "health",
		"/images/{path:.+}":           "images",
		"/api/uploads/{id}":           "api/uploads",
		"/api/admin/images/{path:.+}": "api/admin",
		"/":                           "",
	}
	for path, want := range tests {
		if got := getRouteGroup(path); got != want {
			t.Errorf("getRouteGroup(%q) = %q, want %q", path, got, want)
		}
	}
}
