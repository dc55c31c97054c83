package startup

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/gorilla/mux"
	"golang.org/x/crypto/bcrypt"
	"gopkg.in/yaml.v2"

	"challenge-media/internal/database"
	"challenge-media/internal/logging"
)

// Build-time variables (injected via -ldflags)
var (
	Version   = "dev"
	Commit    = "unknown"
	BuildTime = "unknown"
	GoVersion = runtime.Version()
)

// BuildInfo contains version and build information
type BuildInfo struct {
	Version   string `json:"version"`
	Commit    string `json:"commit"`
	BuildTime string `json:"buildTime"`
	GoVersion string `json:"goVersion"`
	OS        string `json:"os"`
	Arch      string `json:"arch"`
}

// GetBuildInfo returns the current build information
func GetBuildInfo() BuildInfo {
	return BuildInfo{
		Version:   Version,
		Commit:    Commit,
		BuildTime: BuildTime,
		GoVersion: GoVersion,
		OS:        runtime.GOOS,
		Arch:      runtime.GOARCH,
	}
}

// RouteInfo contains information about a registered route
type RouteInfo struct {
	Method string
	Path   string
	Name   string
}

// Storage backends.
const (
	StorageLocal  = "local"
	StorageS3     = "s3"
	StorageMemory = "memory"
)

// S3Config holds the object storage settings.
type S3Config struct {
	Bucket          string `yaml:"bucket"`
	Prefix          string `yaml:"prefix"`
	Region          string `yaml:"region"`
	Endpoint        string `yaml:"endpoint"`
	AccessKeyID     string `yaml:"access_key_id"`
	SecretAccessKey string `yaml:"secret_access_key"`
	UsePathStyle    bool   `yaml:"use_path_style"`
}

// Config holds all application configuration. Every field can be set in
// the YAML file named by CONFIG_FILE; environment variables take precedence.
type Config struct {
	Port            string `yaml:"port"`
	MetricsPort     string `yaml:"metrics_port"`
	MetricsEnabled  bool   `yaml:"metrics_enabled"`
	LogHealthChecks bool   `yaml:"log_health_checks"`
	LogImageHits    bool   `yaml:"log_image_hits"`
	TracingEnabled  bool   `yaml:"tracing_enabled"`

	StorageBackend string   `yaml:"storage_backend"`
	StorageDir     string   `yaml:"storage_dir"`
	StagingDir     string   `yaml:"staging_dir"`
	S3             S3Config `yaml:"s3"`

	DatabaseDriver string `yaml:"database_driver"`
	DatabaseDSN    string `yaml:"database_dsn"`
	DatabaseDir    string `yaml:"database_dir"`

	KafkaBrokers []string `yaml:"kafka_brokers"`
	KafkaTopic   string   `yaml:"kafka_topic"`

	MaxFileSize          int64         `yaml:"max_file_size"`
	ChunkSize            int64         `yaml:"chunk_size"`
	MaxChunks            int           `yaml:"max_chunks"`
	UploadTimeout        time.Duration `yaml:"upload_timeout"`
	RetryAttempts        int           `yaml:"retry_attempts"`
	RetryDelay           time.Duration `yaml:"retry_delay"`
	ProgressiveThreshold int64         `yaml:"progressive_upload_threshold"`
	SessionTimeout       time.Duration `yaml:"session_timeout"`

	CodecCacheMemory    int64         `yaml:"codec_cache_memory"`
	CodecConcurrency    int           `yaml:"codec_concurrency"`
	MaxImageDimension   int           `yaml:"max_image_dimension"`
	MaxImagePixels      int64         `yaml:"max_image_pixels"`
	MemoryCheckInterval time.Duration `yaml:"memory_check_interval"`

	BulkDeleteDelay   time.Duration `yaml:"bulk_delete_delay"`
	AdminUsername     string        `yaml:"admin_username"`
	AdminPasswordHash string        `yaml:"admin_password_hash"`

	// StagingOnDisk is false when the staging directory is not writable and
	// chunks are staged in memory instead.
	StagingOnDisk bool `yaml:"-"`
}

// DefaultConfig returns the configuration used when nothing is set.
func DefaultConfig() Config {
	return Config{
		Port:            "8080",
		MetricsPort:     "9090",
		MetricsEnabled:  true,
		LogHealthChecks: false,
		LogImageHits:    true,

		StorageBackend: StorageLocal,
		StorageDir:     "/data/images",
		StagingDir:     "/data/staging",
		S3:             S3Config{Region: "us-east-1"},

		DatabaseDriver: database.DriverSQLite,
		DatabaseDir:    "/database",

		KafkaTopic: "challenge-media.images",

		MaxFileSize:          50 * 1024 * 1024,
		ChunkSize:            2 * 1024 * 1024,
		MaxChunks:            100,
		UploadTimeout:        5 * time.Minute,
		RetryAttempts:        3,
		RetryDelay:           time.Second,
		ProgressiveThreshold: 25 * 1024 * 1024,
		SessionTimeout:       30 * time.Minute,

		CodecCacheMemory:    256 * 1024 * 1024,
		MaxImageDimension:   12000,
		MaxImagePixels:      50_000_000,
		MemoryCheckInterval: 30 * time.Second,

		BulkDeleteDelay: 100 * time.Millisecond,
		AdminUsername:   "admin",
	}
}

// LoadConfig builds the configuration from defaults, the optional YAML file
// and the environment, validates it and prepares the directories it names.
func LoadConfig() (*Config, error) {
	printBanner()
	logSystemInfo()

	logging.Info("------------------------------------------------------------")
	logging.Info("CONFIGURATION")
	logging.Info("------------------------------------------------------------")

	config := DefaultConfig()
	if path := os.Getenv("CONFIG_FILE"); path != "" {
		if err := loadFile(path, &config); err != nil {
			return nil, err
		}
		logging.Info("  CONFIG_FILE:                   %s", path)
	}
	applyEnv(&config)
	logConfig(&config)

	if err := config.Validate(); err != nil {
		return nil, err
	}

	logging.Info("")
	logging.Info("------------------------------------------------------------")
	logging.Info("DIRECTORY SETUP")
	logging.Info("------------------------------------------------------------")

	if err := prepareDirectories(&config); err != nil {
		return nil, err
	}

	logging.Info("")
	logging.Info("  Feature availability:")
	logging.Info("    Storage:       %s", strings.ToUpper(config.StorageBackend))
	logging.Info("    Chunk staging: %s", stagingString(config.StagingOnDisk))
	logging.Info("    Events:        %s", enabledString(len(config.KafkaBrokers) > 0))
	logging.Info("    Admin API:     %s", enabledString(config.AdminPasswordHash != ""))
	logging.Info("    Metrics:       %s", enabledString(config.MetricsEnabled))
	logging.Info("    Tracing:       %s", enabledString(config.TracingEnabled))

	return &config, nil
}

// loadFile overlays the YAML file at path onto config. Keys missing from
// the file keep their current values.
func loadFile(path string, config *Config) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("failed to read config file: %w", err)
	}
	if err := yaml.UnmarshalStrict(data, config); err != nil {
		return fmt.Errorf("failed to parse config file %s: %w", path, err)
	}
	return nil
}

func applyEnv(c *Config) {
	c.Port = getEnv("PORT", c.Port)
	c.MetricsPort = getEnv("METRICS_PORT", c.MetricsPort)
	c.MetricsEnabled = getEnvBool("METRICS_ENABLED", c.MetricsEnabled)
	c.LogHealthChecks = getEnvBool("LOG_HEALTH_CHECKS", c.LogHealthChecks)
	c.LogImageHits = getEnvBool("LOG_IMAGE_HITS", c.LogImageHits)
	c.TracingEnabled = getEnvBool("TRACING_ENABLED", c.TracingEnabled)

	c.StorageBackend = strings.ToLower(getEnv("STORAGE_BACKEND", c.StorageBackend))
	c.StorageDir = getEnv("STORAGE_DIR", c.StorageDir)
	c.StagingDir = getEnv("STAGING_DIR", c.StagingDir)
	c.S3.Bucket = getEnv("S3_BUCKET", c.S3.Bucket)
	c.S3.Prefix = getEnv("S3_PREFIX", c.S3.Prefix)
	c.S3.Region = getEnv("S3_REGION", c.S3.Region)
	c.S3.Endpoint = getEnv("S3_ENDPOINT", c.S3.Endpoint)
	c.S3.AccessKeyID = getEnv("S3_ACCESS_KEY_ID", c.S3.AccessKeyID)
	c.S3.SecretAccessKey = getEnv("S3_SECRET_ACCESS_KEY", c.S3.SecretAccessKey)
	c.S3.UsePathStyle = getEnvBool("S3_USE_PATH_STYLE", c.S3.UsePathStyle)

	c.DatabaseDriver = getEnv("DATABASE_DRIVER", c.DatabaseDriver)
	c.DatabaseDSN = getEnv("DATABASE_DSN", c.DatabaseDSN)
	c.DatabaseDir = getEnv("DATABASE_DIR", c.DatabaseDir)

	if brokers := os.Getenv("KAFKA_BROKERS"); brokers != "" {
		c.KafkaBrokers = splitList(brokers)
	}
	c.KafkaTopic = getEnv("KAFKA_TOPIC", c.KafkaTopic)

	c.MaxFileSize = getEnvInt64("MAX_FILE_SIZE", c.MaxFileSize)
	c.ChunkSize = getEnvInt64("CHUNK_SIZE", c.ChunkSize)
	c.MaxChunks = int(getEnvInt64("MAX_CHUNKS", int64(c.MaxChunks)))
	c.UploadTimeout = getEnvDuration("UPLOAD_TIMEOUT", c.UploadTimeout)
	c.RetryAttempts = int(getEnvInt64("RETRY_ATTEMPTS", int64(c.RetryAttempts)))
	c.RetryDelay = getEnvDuration("RETRY_DELAY", c.RetryDelay)
	c.ProgressiveThreshold = getEnvInt64("PROGRESSIVE_UPLOAD_THRESHOLD", c.ProgressiveThreshold)
	c.SessionTimeout = getEnvDuration("SESSION_TIMEOUT", c.SessionTimeout)

	c.CodecCacheMemory = getEnvInt64("CODEC_CACHE_MEMORY", c.CodecCacheMemory)
	c.CodecConcurrency = int(getEnvInt64("CODEC_CONCURRENCY", int64(c.CodecConcurrency)))
	c.MaxImageDimension = int(getEnvInt64("MAX_IMAGE_DIMENSION", int64(c.MaxImageDimension)))
	c.MaxImagePixels = getEnvInt64("MAX_IMAGE_PIXELS", c.MaxImagePixels)
	c.MemoryCheckInterval = getEnvDuration("MEMORY_CHECK_INTERVAL", c.MemoryCheckInterval)

	c.BulkDeleteDelay = getEnvDuration("BULK_DELETE_DELAY", c.BulkDeleteDelay)
	c.AdminUsername = getEnv("ADMIN_USERNAME", c.AdminUsername)
	c.AdminPasswordHash = getEnv("ADMIN_PASSWORD_HASH", c.AdminPasswordHash)
}

// Validate reports the first inconsistent setting.
func (c *Config) Validate() error {
	switch c.StorageBackend {
	case StorageLocal, StorageMemory:
	case StorageS3:
		if c.S3.Bucket == "" {
			return errors.New("S3_BUCKET is required when STORAGE_BACKEND=s3")
		}
	default:
		return fmt.Errorf("unknown STORAGE_BACKEND %q (want local, s3 or memory)", c.StorageBackend)
	}

	switch c.DatabaseDriver {
	case database.DriverSQLite:
	case database.DriverPostgres:
		if c.DatabaseDSN == "" {
			return errors.New("DATABASE_DSN is required when DATABASE_DRIVER=pgx")
		}
	default:
		return fmt.Errorf("unknown DATABASE_DRIVER %q (want %s or %s)", c.DatabaseDriver, database.DriverSQLite, database.DriverPostgres)
	}

	if c.MaxFileSize <= 0 || c.ChunkSize <= 0 || c.MaxChunks <= 0 {
		return errors.New("MAX_FILE_SIZE, CHUNK_SIZE and MAX_CHUNKS must be positive")
	}
	if c.ProgressiveThreshold > c.MaxFileSize {
		return fmt.Errorf("PROGRESSIVE_UPLOAD_THRESHOLD (%d) exceeds MAX_FILE_SIZE (%d)", c.ProgressiveThreshold, c.MaxFileSize)
	}
	if int64(c.MaxChunks)*c.ChunkSize < c.MaxFileSize {
		return fmt.Errorf("MAX_CHUNKS x CHUNK_SIZE (%d) cannot cover MAX_FILE_SIZE (%d)", int64(c.MaxChunks)*c.ChunkSize, c.MaxFileSize)
	}
	if c.MaxImageDimension <= 0 || c.MaxImagePixels <= 0 {
		return errors.New("MAX_IMAGE_DIMENSION and MAX_IMAGE_PIXELS must be positive")
	}
	if c.RetryAttempts < 0 {
		return errors.New("RETRY_ATTEMPTS must not be negative")
	}
	if c.BulkDeleteDelay < 0 {
		return errors.New("BULK_DELETE_DELAY must not be negative")
	}

	if c.AdminPasswordHash != "" {
		if _, err := bcrypt.Cost([]byte(c.AdminPasswordHash)); err != nil {
			return fmt.Errorf("ADMIN_PASSWORD_HASH is not a bcrypt hash: %w", err)
		}
	}
	return nil
}

func logConfig(c *Config) {
	logging.Info("  PORT:                          %s", c.Port)
	logging.Info("  METRICS_PORT:                  %s", c.MetricsPort)
	logging.Info("  METRICS_ENABLED:               %v", c.MetricsEnabled)
	logging.Info("  TRACING_ENABLED:               %v", c.TracingEnabled)
	logging.Info("  LOG_HEALTH_CHECKS:             %v", c.LogHealthChecks)
	logging.Info("  LOG_IMAGE_HITS:                %v", c.LogImageHits)
	logging.Info("  LOG_LEVEL:                     %s", logging.GetLevel())
	logging.Info("  STORAGE_BACKEND:               %s", c.StorageBackend)
	switch c.StorageBackend {
	case StorageLocal:
		logging.Info("  STORAGE_DIR:                   %s", c.StorageDir)
	case StorageS3:
		logging.Info("  S3_BUCKET:                     %s", c.S3.Bucket)
		logging.Info("  S3_PREFIX:                     %s", c.S3.Prefix)
		logging.Info("  S3_REGION:                     %s", c.S3.Region)
		if c.S3.Endpoint != "" {
			logging.Info("  S3_ENDPOINT:                   %s", c.S3.Endpoint)
		}
	}
	logging.Info("  STAGING_DIR:                   %s", c.StagingDir)
	logging.Info("  DATABASE_DRIVER:               %s", c.DatabaseDriver)
	if c.DatabaseDriver == database.DriverSQLite {
		logging.Info("  DATABASE_DIR:                  %s", c.DatabaseDir)
	}
	if len(c.KafkaBrokers) > 0 {
		logging.Info("  KAFKA_BROKERS:                 %s", strings.Join(c.KafkaBrokers, ","))
		logging.Info("  KAFKA_TOPIC:                   %s", c.KafkaTopic)
	}
	logging.Info("  MAX_FILE_SIZE:                 %d", c.MaxFileSize)
	logging.Info("  CHUNK_SIZE:                    %d", c.ChunkSize)
	logging.Info("  MAX_CHUNKS:                    %d", c.MaxChunks)
	logging.Info("  UPLOAD_TIMEOUT:                %s", c.UploadTimeout)
	logging.Info("  RETRY_ATTEMPTS:                %d", c.RetryAttempts)
	logging.Info("  RETRY_DELAY:                   %s", c.RetryDelay)
	logging.Info("  PROGRESSIVE_UPLOAD_THRESHOLD:  %d", c.ProgressiveThreshold)
	logging.Info("  SESSION_TIMEOUT:               %s", c.SessionTimeout)
	logging.Info("  CODEC_CACHE_MEMORY:            %d", c.CodecCacheMemory)
	if c.CodecConcurrency > 0 {
		logging.Info("  CODEC_CONCURRENCY:             %d", c.CodecConcurrency)
	} else {
		logging.Info("  CODEC_CONCURRENCY:             auto")
	}
	logging.Info("  MAX_IMAGE_DIMENSION:           %d", c.MaxImageDimension)
	logging.Info("  MAX_IMAGE_PIXELS:              %d", c.MaxImagePixels)
	logging.Info("  MEMORY_CHECK_INTERVAL:         %s", c.MemoryCheckInterval)
	logging.Info("  BULK_DELETE_DELAY:             %s", c.BulkDeleteDelay)
	logging.Info("  ADMIN_USERNAME:                %s", c.AdminUsername)
	if c.AdminPasswordHash != "" {
		logging.Info("  ADMIN_PASSWORD_HASH:           (set)")
	} else {
		logging.Warn("  ADMIN_PASSWORD_HASH:           (not set, admin API closed)")
	}
}

func prepareDirectories(c *Config) error {
	if c.StorageBackend == StorageLocal {
		dir, err := filepath.Abs(c.StorageDir)
		if err != nil {
			return fmt.Errorf("failed to resolve storage directory path: %w", err)
		}
		c.StorageDir = dir
		logging.Info("  Storage directory (absolute): %s", dir)

		if err := ensureDirectory(dir, "storage"); err != nil {
			return fmt.Errorf("storage directory error: %w", err)
		}
		if err := testWriteAccess(dir); err != nil {
			return fmt.Errorf("storage directory is not writable: %w", err)
		}
		logging.Info("  [OK] Storage directory is writable")
	}

	if c.DatabaseDriver == database.DriverSQLite && c.DatabaseDSN == "" {
		dir, err := filepath.Abs(c.DatabaseDir)
		if err != nil {
			return fmt.Errorf("failed to resolve database directory path: %w", err)
		}
		c.DatabaseDir = dir
		logging.Info("  Database directory (absolute): %s", dir)

		if err := ensureDirectory(dir, "database"); err != nil {
			return fmt.Errorf("database directory error: %w", err)
		}
		if err := testWriteAccess(dir); err != nil {
			return fmt.Errorf("database directory is not writable (required for database): %w", err)
		}
		logging.Info("  [OK] Database directory is writable")
		c.DatabaseDSN = filepath.Join(dir, "challenge-media.db")
	}

	if c.StorageBackend == StorageMemory {
		logging.Warn("  STORAGE_BACKEND=memory: images are lost on restart")
		return nil
	}

	if dir, err := filepath.Abs(c.StagingDir); err == nil {
		c.StagingDir = dir
	}
	c.StagingOnDisk = setupOptionalDir(c.StagingDir, "staging")
	return nil
}

func setupOptionalDir(path, name string) bool {
	logging.Debug("  Setting up %s directory: %s", name, path)

	if err := os.MkdirAll(path, 0o755); err != nil {
		logging.Warn("    Failed to create %s directory: %v", name, err)
		logging.Warn("    %s will fall back to memory", name)
		return false
	}

	if err := testWriteAccess(path); err != nil {
		logging.Warn("    %s directory is not writable: %v", name, err)
		logging.Warn("    %s will fall back to memory", name)
		return false
	}

	logging.Debug("    [OK] %s directory ready", name)
	return true
}

func enabledString(enabled bool) string {
	if enabled {
		return "ENABLED"
	}
	return "DISABLED"
}

func stagingString(onDisk bool) string {
	if onDisk {
		return "DISK"
	}
	return "MEMORY"
}

// LogDatabaseInit logs database initialization
func LogDatabaseInit(driver string, duration time.Duration) {
	logging.Info("")
	logging.Info("------------------------------------------------------------")
	logging.Info("DATABASE INITIALIZATION")
	logging.Info("------------------------------------------------------------")
	logging.Info("  [OK] Database (%s) migrated and ready in %v", driver, duration)
}

// LogCodecInit logs the decoder setup.
func LogCodecInit(vipsAvailable bool, concurrency int, cacheBytes int64) {
	logging.Info("")
	logging.Info("------------------------------------------------------------")
	logging.Info("CODEC INITIALIZATION")
	logging.Info("------------------------------------------------------------")
	logging.Info("  Concurrent codec operations: %d", concurrency)
	logging.Info("  Decoded bitmap cache:        %d bytes", cacheBytes)
	if vipsAvailable {
		logging.Info("  [OK] libvips available for HEIF/AVIF")
	} else {
		logging.Warn("  libvips unavailable, HEIF/AVIF uploads will be rejected")
	}
}

// GetRoutes extracts all registered routes from a mux.Router
func GetRoutes(router *mux.Router) ([]RouteInfo, error) {
	var routes []RouteInfo

	err := router.Walk(func(route *mux.Route, _ *mux.Router, _ []*mux.Route) error {
		pathTemplate, err := route.GetPathTemplate()
		if err != nil {
			return err
		}

		methods, err := route.GetMethods()
		if err != nil {
			// Subrouter prefixes carry no methods
			return nil
		}

		for _, method := range methods {
			routes = append(routes, RouteInfo{
				Method: method,
				Path:   pathTemplate,
				Name:   route.GetName(),
			})
		}

		return nil
	})

	return routes, err
}

// LogHTTPRoutes logs all registered HTTP routes dynamically
func LogHTTPRoutes(router *mux.Router, logHealthChecks, logImageHits bool) {
	logging.Info("")
	logging.Info("------------------------------------------------------------")
	logging.Info("HTTP SERVER SETUP")
	logging.Info("------------------------------------------------------------")

	if logging.IsDebugEnabled() {
		routes, err := GetRoutes(router)
		if err != nil {
			logging.Warn("error walking routes: %v", err)
		}

		logging.Debug("  Registered routes (%d total):", len(routes))
		logging.Debug("")

		groups := make(map[string][]RouteInfo)
		for _, route := range routes {
			prefix := getRouteGroup(route.Path)
			groups[prefix] = append(groups[prefix], route)
		}

		groupKeys := make([]string, 0, len(groups))
		for k := range groups {
			groupKeys = append(groupKeys, k)
		}
		sort.Strings(groupKeys)

		for _, group := range groupKeys {
			if group != "" {
				logging.Debug("  [%s]", group)
			} else {
				logging.Debug("  [root]")
			}

			for _, route := range groups[group] {
				logging.Debug("    %-6s %s", route.Method, route.Path)
			}
			logging.Debug("")
		}
	}

	logging.Info("  HTTP logging enabled")
	if logImageHits {
		logging.Info("    Image hit logging: ON")
	} else {
		logging.Info("    Image hit logging: OFF (set LOG_IMAGE_HITS=true to enable)")
	}
	if logHealthChecks {
		logging.Info("    Health check logging: ON")
	} else {
		logging.Info("    Health check logging: OFF (set LOG_HEALTH_CHECKS=true to enable)")
	}
}

// getRouteGroup extracts a group name from a route path
func getRouteGroup(path string) string {
	path = strings.TrimPrefix(path, "/")

	parts := strings.SplitN(path, "/", 2)
	first := parts[0]

	if first == "api" && len(parts) > 1 {
		subParts := strings.SplitN(parts[1], "/", 2)
		return "api/" + subParts[0]
	}

	return first
}

// ServerConfig holds configuration for the server startup log
type ServerConfig struct {
	Port            string
	MetricsPort     string
	MetricsEnabled  bool
	StartupDuration time.Duration
}

// LogServerStarted logs successful server start with all endpoint information
func LogServerStarted(config ServerConfig) {
	logging.Info("")
	logging.Info("------------------------------------------------------------")
	logging.Info("SERVER STARTED")
	logging.Info("------------------------------------------------------------")
	logging.Info("  Startup time:    %v", config.StartupDuration)
	logging.Info("")
	logging.Info("  Endpoints:")
	logging.Info("    Application:   http://0.0.0.0:%s", config.Port)
	if config.MetricsEnabled {
		logging.Info("    Metrics:       http://0.0.0.0:%s/metrics", config.MetricsPort)
	} else {
		logging.Info("    Metrics:       DISABLED")
	}
	logging.Info("")
	logging.Info("  Press Ctrl+C to stop the server")
	logging.Info("------------------------------------------------------------")
	logging.Info("")
}

// LogShutdownInitiated logs shutdown start
func LogShutdownInitiated(signal string) {
	logging.Info("")
	logging.Info("------------------------------------------------------------")
	logging.Info("SHUTDOWN INITIATED (received %s)", signal)
	logging.Info("------------------------------------------------------------")
}

// LogShutdownStep logs a shutdown step
func LogShutdownStep(step string) {
	logging.Debug("  %s...", step)
}

// LogShutdownStepComplete logs a completed shutdown step
func LogShutdownStepComplete(step string) {
	logging.Info("  [OK] %s", step)
}

// LogShutdownComplete logs shutdown completion
func LogShutdownComplete() {
	logging.Info("  [OK] Shutdown complete")
}

// LogFatal logs a fatal error and exits
func LogFatal(format string, args ...interface{}) {
	logging.Fatal(format, args...)
}

// Helper functions

func printBanner() {
	banner := `
------------------------------------------------------------
       __          ____                              ___
  ____/ /_  ____ _/ / /__  ____  ____ ____     ____ ___  ___  ____/ (_)___ _
 / ___/ __ \/ __ '/ / / _ \/ __ \/ __ '/ _ \   / __ '__ \/ _ \/ __  / / __ '/
/ /__/ / / / /_/ / / /  __/ / / / /_/ /  __/  / / / / / /  __/ /_/ / / /_/ /
\___/_/ /_/\__,_/_/_/\___/_/ /_/\__, /\___/  /_/ /_/ /_/\___/\__,_/_/\__,_/
                               /____/
------------------------------------------------------------`
	fmt.Println(banner)
	logging.Info("  Version:    %s", Version)
	logging.Info("  Commit:     %s", Commit)
	logging.Info("  Build Time: %s", BuildTime)
	logging.Info("  Started:    %s", time.Now().Format(time.RFC1123))
	logging.Info("")
}

func logSystemInfo() {
	logging.Info("------------------------------------------------------------")
	logging.Info("SYSTEM INFORMATION")
	logging.Info("------------------------------------------------------------")
	logging.Info("  Go version:      %s", runtime.Version())
	logging.Info("  OS/Arch:         %s/%s", runtime.GOOS, runtime.GOARCH)
	logging.Info("  CPUs available:  %d", runtime.NumCPU())
	logging.Info("  GOMAXPROCS:      %d", runtime.GOMAXPROCS(0))

	if runtime.GOMAXPROCS(0) < runtime.NumCPU() {
		logging.Info("  (Container CPU limit detected)")
	}

	if logging.IsDebugEnabled() {
		logging.Debug("  Goroutines:      %d", runtime.NumGoroutine())

		if wd, err := os.Getwd(); err == nil {
			logging.Debug("  Working dir:     %s", wd)
		}

		if hostname, err := os.Hostname(); err == nil {
			logging.Debug("  Hostname:        %s", hostname)
		}
	}

	logging.Info("")
}

func ensureDirectory(path, name string) error {
	logging.Debug("  Checking %s directory: %s", name, path)

	info, err := os.Stat(path)
	if os.IsNotExist(err) {
		logging.Debug("    Directory does not exist, creating...")
		if err := os.MkdirAll(path, 0o755); err != nil {
			return fmt.Errorf("failed to create directory: %w", err)
		}
		logging.Debug("    [OK] Created directory: %s", path)
		return nil
	}

	if err != nil {
		return fmt.Errorf("failed to stat directory: %w", err)
	}

	if !info.IsDir() {
		return fmt.Errorf("path exists but is not a directory")
	}

	logging.Debug("    [OK] Directory exists")
	return nil
}

func testWriteAccess(dir string) error {
	testFile := filepath.Join(dir, ".write-test")
	if err := os.WriteFile(testFile, []byte("test"), 0o644); err != nil {
		return err
	}
	if err := os.Remove(testFile); err != nil {
		logging.Warn("failed to remove write test file %s: %v", testFile, err)
	}
	return nil
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvBool(key string, defaultValue bool) bool {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	parsed, err := strconv.ParseBool(value)
	if err != nil {
		logging.Warn("Invalid boolean value for %s: %q, using default: %v", key, value, defaultValue)
		return defaultValue
	}
	return parsed
}

// getEnvInt64 parses a plain integer or one with a KB/MB/GB suffix
// (powers of 1024).
func getEnvInt64(key string, defaultValue int64) int64 {
	value := strings.TrimSpace(os.Getenv(key))
	if value == "" {
		return defaultValue
	}
	parsed, err := parseSize(value)
	if err != nil {
		logging.Warn("Invalid integer value for %s: %q, using default: %d", key, value, defaultValue)
		return defaultValue
	}
	return parsed
}

func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	parsed, err := time.ParseDuration(value)
	if err != nil {
		logging.Warn("Invalid duration for %s: %q, using default: %s", key, value, defaultValue)
		return defaultValue
	}
	return parsed
}

func parseSize(s string) (int64, error) {
	upper := strings.ToUpper(s)
	multiplier := int64(1)
	for _, unit := range []struct {
		suffix string
		factor int64
	}{
		{"GB", 1 << 30},
		{"MB", 1 << 20},
		{"KB", 1 << 10},
	} {
		if strings.HasSuffix(upper, unit.suffix) {
			multiplier = unit.factor
			upper = strings.TrimSpace(strings.TrimSuffix(upper, unit.suffix))
			break
		}
	}
	n, err := strconv.ParseInt(upper, 10, 64)
	if err != nil {
		return 0, err
	}
	return n * multiplier, nil
}

func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
