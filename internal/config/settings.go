package config

import (
	"strings"
	"time"
)

// DefaultLevelOrder is the progression used when a promotion has to be
// inferred from signatures.
var DefaultLevelOrder = []string{"TPS", "PS", "MS", "GS", "EB1", "EB2", "EB3", "EB4", "EB5", "EB6", "EB7", "EB8", "EB9", "EB10"}

// RenderSettings groups everything the export pipeline reads from the environment.
type RenderSettings struct {
	PublicBaseURL string
	UploadsDir    string

	Backend       string // vector or raster
	RasterMode    string // screenshot or print
	RasterFormat  string // jpeg or png
	RasterQuality int
	RasterScale   float64
	ReadyTimeout  time.Duration

	BatchConcurrency   int
	BrowserMaxTabs     int
	BrowserMaxLifetime time.Duration
	ChromePath         string

	QRServiceURL    string
	QRLocalFallback bool
	EmojiCDNURL     string
	FlagCDNURL      string

	FontPath     string
	FontBoldPath string

	ImageFetchTimeout time.Duration
	ImageCacheTTL     time.Duration
	RedisURL          string
	GCSBucket         string
	GCSCredentials    string

	LevelOrder []string
}

// LoadRenderSettings reads RenderSettings from the environment.
func LoadRenderSettings() RenderSettings {
	return RenderSettings{
		PublicBaseURL: strings.TrimSuffix(Get("PUBLIC_BASE_URL", "http://localhost:"+Get("PORT", "8000")), "/"),
		UploadsDir:    Get("UPLOADS_DIR", "/data/uploads"),

		Backend:       strings.ToLower(Get("RENDER_BACKEND", "vector")),
		RasterMode:    strings.ToLower(Get("RASTER_MODE", "screenshot")),
		RasterFormat:  strings.ToLower(Get("RASTER_FORMAT", "jpeg")),
		RasterQuality: GetInt("RASTER_QUALITY", 92),
		RasterScale:   GetFloat("RASTER_SCALE", 2),
		ReadyTimeout:  GetDuration("RENDER_READY_TIMEOUT", 15*time.Second),

		BatchConcurrency:   GetInt("BATCH_CONCURRENCY", 3),
		BrowserMaxTabs:     GetInt("BROWSER_MAX_TABS", 6),
		BrowserMaxLifetime: GetDuration("BROWSER_MAX_LIFETIME", 6*time.Hour),
		ChromePath:         ChromiumBinary(),

		QRServiceURL:    Get("QR_SERVICE_URL", "https://api.qrserver.com/v1/create-qr-code/"),
		QRLocalFallback: GetBool("QR_LOCAL_FALLBACK", true),
		EmojiCDNURL:     strings.TrimSuffix(Get("EMOJI_CDN_URL", "https://cdn.jsdelivr.net/gh/twitter/twemoji@14.0.2/assets/72x72"), "/"),
		FlagCDNURL:      strings.TrimSuffix(Get("FLAG_CDN_URL", "https://flagcdn.com/w80"), "/"),

		FontPath:     Get("FONT_PATH", ""),
		FontBoldPath: Get("FONT_BOLD_PATH", ""),

		ImageFetchTimeout: GetDuration("IMAGE_FETCH_TIMEOUT", 10*time.Second),
		ImageCacheTTL:     GetDuration("IMAGE_CACHE_TTL", 24*time.Hour),
		RedisURL:          Get("REDIS_URL", ""),
		GCSBucket:         Get("GCS_BUCKET", ""),
		GCSCredentials:    Get("GCS_CREDENTIALS_FILE", ""),

		LevelOrder: GetList("LEVEL_ORDER", DefaultLevelOrder),
	}
}

// ChromiumBinary returns the browser executable configured through
// CHROME_PATH, CHROMIUM_BIN or CHROME_BIN. An empty result lets chromedp
// search the usual locations.
func ChromiumBinary() string {
	for _, key := range []string{"CHROME_PATH", "CHROMIUM_BIN", "CHROME_BIN"} {
		if v := Get(key, ""); v != "" {
			return v
		}
	}
	return ""
}

// ServerSettings groups the HTTP and access settings.
type ServerSettings struct {
	Port        string
	GinMode     string
	CORSOrigins []string

	JWTSecret          string
	RenderTokenTTL     time.Duration
	ExportPasswordRate int // attempts per minute per client IP
	ExportRate         int // single exports per minute per client IP, 0 disables
	HealthLogInterval  time.Duration
	DependencyInterval time.Duration

	DBType        string
	MongoURI      string
	MongoDatabase string
}

// LoadServerSettings reads ServerSettings from the environment.
func LoadServerSettings() ServerSettings {
	return ServerSettings{
		Port:        Get("PORT", "8000"),
		GinMode:     Get("GIN_MODE", ""),
		CORSOrigins: GetList("CORS_ALLOWED_ORIGINS", nil),

		JWTSecret:          Get("JWT_SECRET", ""),
		RenderTokenTTL:     GetDuration("RENDER_TOKEN_TTL", 2*time.Minute),
		ExportPasswordRate: GetInt("EXPORT_PASSWORD_RATE", 5),
		ExportRate:         GetInt("EXPORT_RATE_LIMIT", 0),
		HealthLogInterval:  GetDuration("HEALTH_LOG_INTERVAL", 15*time.Minute),
		DependencyInterval: GetDuration("DEPENDENCY_CHECK_INTERVAL", time.Minute),

		DBType:        strings.ToLower(Get("DB_TYPE", "sqlite")),
		MongoURI:      Get("MONGO_URI", "mongodb://localhost:27017"),
		MongoDatabase: Get("MONGO_DATABASE", "livret"),
	}
}
