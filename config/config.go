package config

import (
	"fmt"
	"log"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"
)

const (
	DefaultUploadsSubDir  = "uploads"
	DefaultDetectedSubDir = "detected"

	GalleryBackendFS     = "fs"
	GalleryBackendSQLite = "sqlite"
)

const (
	defaultMatchThreshold        = 0.70
	defaultMatchTopK             = 3
	defaultFaceMargin            = 20
	defaultRecognitionQueueSize  = 16
	defaultNumRecognitionWorkers = 2
	defaultStoreTimeoutMs        = 5000
	defaultStoreRetries          = 3
)

type Config struct {
	// database path (employees, attendance and, for the sqlite backend, face samples)
	DatabasePath string

	// gallery configuration
	GalleryBackend string // "fs" or "sqlite"
	GalleryPath    string // root of the directory-per-person tree for the fs backend

	// media storage configuration
	MediaStoragePath string // root for raw uploads and annotated debug output
	UploadsPath      string // full-calculated path for raw uploads
	DetectedPath     string // full-calculated path for annotated images
	SaveDebugImages  bool

	// cascade classifier files (haarcascade_frontalface_default.xml / _alt.xml)
	CascadePrimaryPath string
	CascadeAltPath     string

	// matching knobs; uncalibrated, tune per deployment
	MatchThreshold float64
	MatchTopK      int
	FaceMargin     int

	// orientation correction applied to every upload ("none", "cw90", "ccw90", "180", "exif")
	Rotation string

	// worker settings
	RecognitionQueueSize  int
	NumRecognitionWorkers int

	// attendance store call policy
	StoreTimeout time.Duration
	StoreRetries int

	// http settings
	Port              string
	AllowedOrigins    []string
	AdminUser         string
	AdminPasswordHash string // bcrypt hash; curation endpoints are open when empty
}

func getEnvOrDefault(key, defaultValue string) string {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	return value
}

func getEnvIntOrDefault(envVar string, defaultVal int) int {
	valStr := os.Getenv(envVar)
	if valStr == "" {
		return defaultVal
	}
	val, err := strconv.Atoi(valStr)
	if err != nil || val <= 0 {
		log.Printf("Warning: Invalid %s '%s'. Using default %d. Error: %v", envVar, valStr, defaultVal, err)
		return defaultVal
	}
	return val
}

func getEnvFloatOrDefault(envVar string, defaultVal float64) float64 {
	valStr := os.Getenv(envVar)
	if valStr == "" {
		return defaultVal
	}
	val, err := strconv.ParseFloat(valStr, 64)
	if err != nil {
		log.Printf("Warning: Invalid %s '%s'. Using default %.2f. Error: %v", envVar, valStr, defaultVal, err)
		return defaultVal
	}
	return val
}

func getEnvBool(envVar string) bool {
	v, err := strconv.ParseBool(os.Getenv(envVar))
	return err == nil && v
}

func LoadConfig() (Config, error) {
	dbPath := getEnvOrDefault("DATABASE_PATH", "attendance.db")

	backend := strings.ToLower(getEnvOrDefault("GALLERY_BACKEND", GalleryBackendFS))
	if backend != GalleryBackendFS && backend != GalleryBackendSQLite {
		return Config{}, fmt.Errorf("invalid GALLERY_BACKEND '%s': expected '%s' or '%s'", backend, GalleryBackendFS, GalleryBackendSQLite)
	}

	galleryPath := getEnvOrDefault("GALLERY_PATH", filepath.Join(".", "known_faces"))
	absGalleryPath, err := filepath.Abs(galleryPath)
	if err != nil {
		return Config{}, fmt.Errorf("failed to get absolute path for gallery '%s': %w", galleryPath, err)
	}

	mediaStorage := getEnvOrDefault("MEDIA_STORAGE_PATH", filepath.Join(".", "media_storage"))
	absMediaStorage, err := filepath.Abs(mediaStorage)
	if err != nil {
		return Config{}, fmt.Errorf("failed to get absolute path for media storage '%s': %w", mediaStorage, err)
	}

	threshold := getEnvFloatOrDefault("MATCH_THRESHOLD", defaultMatchThreshold)
	if threshold <= 0 || threshold > 1 {
		return Config{}, fmt.Errorf("invalid MATCH_THRESHOLD %.3f: must be in (0, 1]", threshold)
	}

	rotation := strings.ToLower(getEnvOrDefault("ROTATION", "ccw90"))
	switch rotation {
	case "none", "cw90", "ccw90", "180", "exif":
	default:
		return Config{}, fmt.Errorf("invalid ROTATION '%s'", rotation)
	}

	var origins []string
	for _, o := range strings.Split(getEnvOrDefault("ALLOWED_ORIGINS", "http://localhost:5173"), ",") {
		if o = strings.TrimSpace(o); o != "" {
			origins = append(origins, o)
		}
	}

	cfg := Config{
		DatabasePath:          dbPath,
		GalleryBackend:        backend,
		GalleryPath:           absGalleryPath,
		MediaStoragePath:      absMediaStorage,
		UploadsPath:           filepath.Join(absMediaStorage, getEnvOrDefault("UPLOADS_SUBDIR", DefaultUploadsSubDir)),
		DetectedPath:          filepath.Join(absMediaStorage, getEnvOrDefault("DETECTED_SUBDIR", DefaultDetectedSubDir)),
		SaveDebugImages:       getEnvBool("SAVE_DEBUG_IMAGES"),
		CascadePrimaryPath:    getEnvOrDefault("CASCADE_PRIMARY_PATH", "./models/haarcascade_frontalface_default.xml"),
		CascadeAltPath:        getEnvOrDefault("CASCADE_ALT_PATH", "./models/haarcascade_frontalface_alt.xml"),
		MatchThreshold:        threshold,
		MatchTopK:             getEnvIntOrDefault("MATCH_TOP_K", defaultMatchTopK),
		FaceMargin:            getEnvIntOrDefault("FACE_MARGIN", defaultFaceMargin),
		Rotation:              rotation,
		RecognitionQueueSize:  getEnvIntOrDefault("RECOGNITION_QUEUE_SIZE", defaultRecognitionQueueSize),
		NumRecognitionWorkers: getEnvIntOrDefault("NUM_RECOGNITION_WORKERS", defaultNumRecognitionWorkers),
		StoreTimeout:          time.Duration(getEnvIntOrDefault("STORE_TIMEOUT_MS", defaultStoreTimeoutMs)) * time.Millisecond,
		StoreRetries:          getEnvIntOrDefault("STORE_RETRIES", defaultStoreRetries),
		Port:                  getEnvOrDefault("PORT", "8080"),
		AllowedOrigins:        origins,
		AdminUser:             getEnvOrDefault("ADMIN_USER", "admin"),
		AdminPasswordHash:     os.Getenv("ADMIN_PASSWORD_HASH"),
	}

	return cfg, nil
}
