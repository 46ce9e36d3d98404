package config

import (
	"errors"
	"fmt"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"
)

type Config struct {
	Port            string        `env:"PORT" envDefault:"8080"`
	LogDev          bool          `env:"LOG_DEV" envDefault:"false"`
	CORSOrigins     []string      `env:"CORS_ORIGINS" envSeparator:"," envDefault:"http://localhost:5173"`
	ShutdownTimeout time.Duration `env:"SHUTDOWN_TIMEOUT" envDefault:"30s"`
	JWTSecret       string        `env:"JWT_SECRET,required,notEmpty"`

	// Accounts allowed on /api/moderator routes
	ModeratorUsernames []string `env:"MODERATOR_USERNAMES" envSeparator:","`

	// Metadata store
	MetadataBackend string `env:"METADATA_BACKEND" envDefault:"postgres"`
	DatabaseURL     string `env:"DATABASE_URL"`
	SslCertPath     string `env:"SSL_CERT_PATH"`

	// Vector index
	VectorBackend   string `env:"VECTOR_BACKEND" envDefault:"pgvector"`
	MongoURI        string `env:"MONGO_URI"`
	MongoDatabase   string `env:"MONGO_DATABASE" envDefault:"mirai"`
	MongoCollection string `env:"MONGO_COLLECTION" envDefault:"data"`

	// Models
	AIAPIKey   string `env:"GEMINI_API_KEY"`
	EmbedModel string `env:"EMBED_MODEL" envDefault:"text-embedding-004"`
	GenModel   string `env:"GEN_MODEL" envDefault:"gemini-1.5-flash"`

	// Answering service
	AnswerBackend    string        `env:"ANSWER_BACKEND" envDefault:"remote"`
	AnswerServiceURL string        `env:"ANSWER_SERVICE_URL"`
	AnswerTimeout    time.Duration `env:"ANSWER_TIMEOUT" envDefault:"60s"`

	// Raw file archive
	ArchiveEnabled bool   `env:"ARCHIVE_ENABLED" envDefault:"false"`
	AwsAccessKey   string `env:"AWS_ACCESS_KEY"`
	AwsSecretKey   string `env:"AWS_SECRET_KEY"`
	AwsRegion      string `env:"AWS_REGION" envDefault:"us-east-2"`
	BucketName     string `env:"BUCKET_NAME" envDefault:"mirai-files"`

	// Ingestion
	IngestWorkers      int           `env:"INGEST_WORKERS" envDefault:"4"`
	IngestQueueSize    int           `env:"INGEST_QUEUE_SIZE" envDefault:"64"`
	IngestJobTimeout   time.Duration `env:"INGEST_JOB_TIMEOUT" envDefault:"5m"`
	ChunkTargetTokens  int           `env:"CHUNK_TARGET_TOKENS" envDefault:"500"`
	ChunkOverlapTokens int           `env:"CHUNK_OVERLAP_TOKENS" envDefault:"50"`
	EmbedBatchSize     int           `env:"EMBED_BATCH_SIZE" envDefault:"16"`
	MaxUploadBytes     int64         `env:"MAX_UPLOAD_BYTES" envDefault:"1073741824"`
	MaxUploadFiles     int           `env:"MAX_UPLOAD_FILES" envDefault:"10"`
}

// LoadConfig loads .env (when present) and the process environment.
func LoadConfig() (*Config, error) {
	_ = godotenv.Load()

	cfg := &Config{}
	if err := env.Parse(cfg); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks combinations env tags cannot express.
func (c *Config) Validate() error {
	switch c.MetadataBackend {
	case "postgres":
		if c.DatabaseURL == "" {
			return errors.New("DATABASE_URL not set")
		}
	case "memory":
	default:
		return fmt.Errorf("METADATA_BACKEND: unknown backend %q", c.MetadataBackend)
	}

	switch c.VectorBackend {
	case "pgvector":
		if c.MetadataBackend != "postgres" {
			return errors.New("VECTOR_BACKEND=pgvector requires METADATA_BACKEND=postgres")
		}
	case "mongo":
		if c.MongoURI == "" {
			return errors.New("MONGO_URI not set")
		}
	case "memory":
	default:
		return fmt.Errorf("VECTOR_BACKEND: unknown backend %q", c.VectorBackend)
	}

	switch c.AnswerBackend {
	case "remote":
		if c.AnswerServiceURL == "" {
			return errors.New("ANSWER_SERVICE_URL not set")
		}
	case "gemini":
	default:
		return fmt.Errorf("ANSWER_BACKEND: unknown backend %q", c.AnswerBackend)
	}

	if c.ArchiveEnabled && (c.AwsAccessKey == "" || c.AwsSecretKey == "") {
		return errors.New("ARCHIVE_ENABLED requires AWS_ACCESS_KEY and AWS_SECRET_KEY")
	}
	if c.IngestWorkers <= 0 {
		return fmt.Errorf("INGEST_WORKERS must be positive, got %d", c.IngestWorkers)
	}
	if c.MaxUploadFiles <= 0 || c.MaxUploadBytes <= 0 {
		return errors.New("upload limits must be positive")
	}
	return nil
}
