package codec

import (
	"bytes"
	"fmt"
	"image"
	"sync"

	"github.com/davidbyttow/govips/v2/vips"

	"challenge-media/internal/logging"
)

var (
	vipsInitialized bool
	vipsInitMutex   sync.Mutex
)

// VipsConfig bounds libvips' own worker threads and operation cache.
type VipsConfig struct {
	Concurrency  int
	MaxCacheMem  int
	MaxCacheSize int
}

// InitVips starts libvips for decoding formats the Go decoders cannot read.
// Call once at startup; later calls are no-ops.
func InitVips(config VipsConfig) {
	vipsInitMutex.Lock()
	defer vipsInitMutex.Unlock()

	if vipsInitialized {
		return
	}

	vipsLogLevel, logHandler := vipsLogging(logging.GetLevel())
	vips.LoggingSettings(logHandler, vipsLogLevel)

	if config.Concurrency <= 0 {
		config.Concurrency = 1
	}
	vips.Startup(&vips.Config{
		ConcurrencyLevel: config.Concurrency,
		MaxCacheMem:      config.MaxCacheMem,
		MaxCacheSize:     config.MaxCacheSize,
		ReportLeaks:      false,
		CacheTrace:       false,
		CollectStats:     false,
	})

	vipsInitialized = true
	logging.Info("libvips initialized (version: %s, concurrency: %d, cache: %d bytes)",
		vips.Version, config.Concurrency, config.MaxCacheMem)
}

// ShutdownVips releases libvips resources
func ShutdownVips() {
	vipsInitMutex.Lock()
	defer vipsInitMutex.Unlock()

	if vipsInitialized {
		vips.Shutdown()
		vipsInitialized = false
		logging.Info("libvips shutdown complete")
	}
}

// IsVipsAvailable returns whether libvips is initialized
func IsVipsAvailable() bool {
	vipsInitMutex.Lock()
	defer vipsInitMutex.Unlock()
	return vipsInitialized
}

func clearVipsCache() {
	if IsVipsAvailable() {
		vips.ClearCache()
	}
}

// vipsLogging maps the service log level onto libvips messages.
func vipsLogging(level logging.LogLevel) (vips.LogLevel, func(string, vips.LogLevel, string)) {
	switch level {
	case logging.LevelDebug:
		return vips.LogLevelInfo, func(domain string, level vips.LogLevel, msg string) {
			switch level {
			case vips.LogLevelError, vips.LogLevelCritical:
				logging.Error("[%s] %s", domain, msg)
			case vips.LogLevelWarning:
				logging.Warn("[%s] %s", domain, msg)
			default:
				logging.Debug("[%s] %s", domain, msg)
			}
		}
	case logging.LevelError:
		return vips.LogLevelCritical, func(domain string, level vips.LogLevel, msg string) {
			if level >= vips.LogLevelCritical {
				logging.Error("[%s] %s", domain, msg)
			}
		}
	default:
		return vips.LogLevelWarning, func(domain string, level vips.LogLevel, msg string) {
			switch level {
			case vips.LogLevelError, vips.LogLevelCritical:
				logging.Error("[%s] %s", domain, msg)
			case vips.LogLevelWarning:
				logging.Warn("[%s] %s", domain, msg)
			}
		}
	}
}

// probeWithVips reads dimensions of formats only libvips understands.
func probeWithVips(data []byte) (int, int, error) {
	ref, err := vips.NewImageFromBuffer(data)
	if err != nil {
		return 0, 0, err
	}
	defer ref.Close()
	return ref.Width(), ref.Height(), nil
}

// decodeWithVips decodes through libvips and hands back an image.Image by
// round-tripping through lossless PNG.
func decodeWithVips(data []byte) (image.Image, error) {
	ref, err := vips.NewImageFromBuffer(data)
	if err != nil {
		return nil, fmt.Errorf("vips failed to load image: %w", err)
	}
	defer ref.Close()

	if err := ref.AutoRotate(); err != nil {
		return nil, fmt.Errorf("vips auto-rotate failed: %w", err)
	}

	pngBytes, _, err := ref.ExportPng(vips.NewPngExportParams())
	if err != nil {
		return nil, fmt.Errorf("vips export failed: %w", err)
	}

	img, _, err := image.Decode(bytes.NewReader(pngBytes))
	if err != nil {
		return nil, fmt.Errorf("failed to decode vips output: %w", err)
	}
	return img, nil
}
