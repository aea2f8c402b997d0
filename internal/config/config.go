package config

import (
	"fmt"
	"log"
	"time"

	"github.com/joho/godotenv"
	"github.com/kelseyhightower/envconfig"
)

type Config struct {
	Port  string `envconfig:"PORT" default:"8080"`
	Debug bool   `envconfig:"DEBUG" default:"false"`

	DatabaseURL string `envconfig:"DATABASE_URL" required:"true"`

	S3Endpoint  string `envconfig:"S3_ENDPOINT"`
	S3AccessKey string `envconfig:"S3_ACCESS_KEY_ID"`
	S3SecretKey string `envconfig:"S3_SECRET_ACCESS_KEY"`
	S3Bucket    string `envconfig:"S3_BUCKET" default:"clinidex-documents"`
	S3Region    string `envconfig:"S3_REGION" default:"us-east-1"`

	AWSRegion    string `envconfig:"AWS_REGION" default:"us-east-1"`
	AWSAccessKey string `envconfig:"AWS_ACCESS_KEY_ID"`
	AWSSecretKey string `envconfig:"AWS_SECRET_ACCESS_KEY"`

	OpenAIAPIKey string `envconfig:"OPENAI_API_KEY"`

	// Ingestion pipeline tuning.
	ChunkSize            int           `envconfig:"CHUNK_SIZE" default:"1000"`
	ChunkOverlap         int           `envconfig:"CHUNK_OVERLAP" default:"200"`
	EmbeddingDimension   int           `envconfig:"EMBEDDING_DIMENSION" default:"1536"`
	OCRMinTextLength     int           `envconfig:"OCR_MIN_TEXT_LENGTH" default:"50"`
	EnableVisionAnalysis bool          `envconfig:"ENABLE_VISION_ANALYSIS" default:"true"`
	VisionHighFidelity   bool          `envconfig:"VISION_HIGH_FIDELITY" default:"true"`
	PipelinePollInterval time.Duration `envconfig:"PIPELINE_POLL_INTERVAL" default:"5s"`
	PipelineStageTimeout time.Duration `envconfig:"PIPELINE_STAGE_TIMEOUT" default:"120s"`

	// Retrieval tuning.
	TopKPatientChat int `envconfig:"TOP_K_PATIENT_CHAT" default:"5"`
	TopKDoctorChat  int `envconfig:"TOP_K_DOCTOR_CHAT" default:"10"`
}

func Load() (*Config, error) {
	_ = godotenv.Load()

	var cfg Config
	if err := envconfig.Process("CLINIDEX", &cfg); err != nil {
		return nil, fmt.Errorf("failed to process config: %w", err)
	}

	return &cfg, nil
}

func MustLoad() *Config {
	cfg, err := Load()
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}
	return cfg
}

func (c *Config) HasS3() bool {
	return c.S3Endpoint != "" && c.S3AccessKey != "" && c.S3SecretKey != ""
}

func (c *Config) HasOpenAI() bool {
	return c.OpenAIAPIKey != ""
}

func (c *Config) HasTextract() bool {
	return c.AWSAccessKey != "" && c.AWSSecretKey != ""
}
