package config

import (
	_ "embed"
	"os"
	"strconv"

	"gopkg.in/yaml.v3"
)

//go:embed models.yaml
var modelsYAML []byte

type Config struct {
	Model    ModelConfig
	Detect   DetectConfig
	Match    MatchConfig
	Gallery  GalleryConfig
	Database DatabaseConfig
	Web      WebConfig
	Profiles ProfilesConfig
}

type ModelConfig struct {
	Dir            string // directory containing model files (default "models")
	EmbedModel     string // path to the embedding ONNX model (defaults to <dir>/<profile>.onnx)
	Profile        string // profile name from models.yaml (default "mobilefacenet")
	ClassifierPath string // path to the classifier ONNX model (optional)
	ClassifierMeta string // path to the classifier metadata JSON (defaults to <classifier>.json)
	RuntimeLib     string // path to the onnxruntime shared library (empty = platform default)
}

type DetectConfig struct {
	CascadeFile string  // path to the pigo facefinder cascade binary
	MinFaceSize int     // smallest face in pixels the detector looks for (0 = default)
	MinScore    float64 // minimum cascade quality score (0 = default)
	ClusterIoU  float64 // overlap threshold for clustering duplicate detections (0 = default)
}

type MatchConfig struct {
	Threshold       float64 // maximum cosine distance for a gallery match, lower = stricter (0 = default)
	VerifyThreshold float64 // maximum cosine distance for 1:1 verification (0 = default)
	MinConfidence   float64 // minimum softmax probability to accept a classifier label (0 = default)
}

type GalleryConfig struct {
	File          string // path to the reference embeddings JSON file (file backend)
	HNSWIndexPath string // path to persist the face HNSW index (optional, rebuilt on startup if empty)
}

type DatabaseConfig struct {
	URL          string // PostgreSQL connection URL (empty = file backend)
	MaxOpenConns int    // Maximum open connections (default 25)
	MaxIdleConns int    // Maximum idle connections (default 5)
}

type WebConfig struct {
	APIKey string // optional API key required on all /api/v1 routes
}

// ProfilesConfig is the embedded model profile registry.
type ProfilesConfig struct {
	Profiles map[string]ModelProfile `yaml:"profiles"`
}

// ModelProfile describes the input tensor and output of a bundled model.
type ModelProfile struct {
	Width  int     `yaml:"width"`
	Height int     `yaml:"height"`
	Layout string  `yaml:"layout"` // "nhwc" or "nchw"
	Mean   float32 `yaml:"mean"`
	Scale  float32 `yaml:"scale"`
	Dim    int     `yaml:"dim"`
	Input  string  `yaml:"input"`  // ONNX input tensor name
	Output string  `yaml:"output"` // ONNX output tensor name
}

// envInt reads an environment variable and parses it as a positive integer.
// Returns the default value if the env var is unset, empty, or invalid.
func envInt(key string, defaultVal int) int {
	s := os.Getenv(key)
	if s == "" {
		return defaultVal
	}
	if n, err := strconv.Atoi(s); err == nil && n > 0 {
		return n
	}
	return defaultVal
}

// envFloat reads an environment variable and parses it as a positive float.
// Returns the default value if the env var is unset, empty, or invalid.
func envFloat(key string, defaultVal float64) float64 {
	s := os.Getenv(key)
	if s == "" {
		return defaultVal
	}
	if f, err := strconv.ParseFloat(s, 64); err == nil && f > 0 {
		return f
	}
	return defaultVal
}

// envString reads an environment variable with a default.
func envString(key, defaultVal string) string {
	if s := os.Getenv(key); s != "" {
		return s
	}
	return defaultVal
}

func Load() *Config {
	var profiles ProfilesConfig
	if err := yaml.Unmarshal(modelsYAML, &profiles); err != nil {
		// This is an embedded file so this error should never happen in practice
		panic("failed to unmarshal embedded models.yaml: " + err.Error())
	}

	return &Config{
		Model: ModelConfig{
			Dir:            envString("MODEL_DIR", "models"),
			EmbedModel:     os.Getenv("EMBED_MODEL"),
			Profile:        envString("EMBED_PROFILE", "mobilefacenet"),
			ClassifierPath: os.Getenv("CLASSIFIER_MODEL"),
			ClassifierMeta: os.Getenv("CLASSIFIER_META"),
			RuntimeLib:     os.Getenv("ONNXRUNTIME_LIB"),
		},
		Detect: DetectConfig{
			CascadeFile: os.Getenv("CASCADE_FILE"),
			MinFaceSize: envInt("DETECT_MIN_FACE_SIZE", 0),
			MinScore:    envFloat("DETECT_MIN_SCORE", 0),
			ClusterIoU:  envFloat("DETECT_CLUSTER_IOU", 0),
		},
		Match: MatchConfig{
			Threshold:       envFloat("MATCH_THRESHOLD", 0),
			VerifyThreshold: envFloat("VERIFY_THRESHOLD", 0),
			MinConfidence:   envFloat("CLASSIFIER_MIN_CONFIDENCE", 0),
		},
		Gallery: GalleryConfig{
			File:          envString("GALLERY_FILE", "gallery.json"),
			HNSWIndexPath: os.Getenv("HNSW_INDEX_PATH"),
		},
		Database: DatabaseConfig{
			URL:          os.Getenv("DATABASE_URL"),
			MaxOpenConns: envInt("DATABASE_MAX_OPEN_CONNS", 25),
			MaxIdleConns: envInt("DATABASE_MAX_IDLE_CONNS", 5),
		},
		Web: WebConfig{
			APIKey: os.Getenv("WEB_API_KEY"),
		},
		Profiles: profiles,
	}
}

// GetProfile returns a model profile by name, with ok=false when unknown.
func (c *Config) GetProfile(name string) (ModelProfile, bool) {
	p, ok := c.Profiles.Profiles[name]
	return p, ok
}

// EmbedModelPath resolves the embedding model path, defaulting to
// <MODEL_DIR>/<profile>.onnx when EMBED_MODEL is not set.
func (c *Config) EmbedModelPath() string {
	if c.Model.EmbedModel != "" {
		return c.Model.EmbedModel
	}
	return c.Model.Dir + "/" + c.Model.Profile + ".onnx"
}

// ClassifierMetaPath resolves the classifier metadata JSON path, defaulting
// to the classifier model path with a .json extension appended.
func (c *Config) ClassifierMetaPath() string {
	if c.Model.ClassifierMeta != "" {
		return c.Model.ClassifierMeta
	}
	if c.Model.ClassifierPath == "" {
		return ""
	}
	return c.Model.ClassifierPath + ".json"
}
