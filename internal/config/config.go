package config

import (
	"time"

	"github.com/spf13/viper"
)

type Config struct {
	Env             string        `mapstructure:"ENV"`
	Port            string        `mapstructure:"PORT"`
	DatabaseURL     string        `mapstructure:"DATABASE_URL"`
	RedisAddr       string        `mapstructure:"REDIS_ADDR"`
	QueueName       string        `mapstructure:"QUEUE_NAME"`
	AudioDir        string        `mapstructure:"AUDIO_DIR"`
	TranscriberURL  string        `mapstructure:"TRANSCRIBER_URL"`
	DiarizerURL     string        `mapstructure:"DIARIZER_URL"`
	SentimentURL    string        `mapstructure:"SENTIMENT_URL"`
	CORSAllowed     string        `mapstructure:"CORS_ALLOWED_ORIGINS"`
	LogLevel        string        `mapstructure:"LOG_LEVEL"`
	MaxUploadSizeMB int64         `mapstructure:"MAX_UPLOAD_MB"`
	WorkerCount     int           `mapstructure:"WORKER_COUNT"`
	JobSoftLimit    time.Duration `mapstructure:"JOB_SOFT_LIMIT"`
	JobHardLimit    time.Duration `mapstructure:"JOB_HARD_LIMIT"`
	JobMaxAttempts  int           `mapstructure:"JOB_MAX_ATTEMPTS"`
	StuckThreshold  time.Duration `mapstructure:"STUCK_THRESHOLD"`
	RetentionDays   int           `mapstructure:"RETENTION_DAYS"`
	SweepInterval   time.Duration `mapstructure:"SWEEP_INTERVAL"`
}

func Load() (Config, error) {
	v := viper.New()
	v.SetConfigFile(".env")
	v.SetConfigType("env")
	v.AutomaticEnv()
	_ = v.ReadInConfig()

	v.SetDefault("ENV", "dev")
	v.SetDefault("PORT", "8080")
	v.SetDefault("REDIS_ADDR", "localhost:6379")
	v.SetDefault("QUEUE_NAME", "call-processing")
	v.SetDefault("AUDIO_DIR", "data/audio")
	v.SetDefault("LOG_LEVEL", "info")
	v.SetDefault("CORS_ALLOWED_ORIGINS", "*")
	v.SetDefault("MAX_UPLOAD_MB", 50)
	v.SetDefault("WORKER_COUNT", 4)
	// The soft limit aborts a job gracefully before the queue's visibility
	// timeout (the hard limit) would forcibly redeliver it.
	v.SetDefault("JOB_SOFT_LIMIT", "55m")
	v.SetDefault("JOB_HARD_LIMIT", "1h")
	v.SetDefault("JOB_MAX_ATTEMPTS", 3)
	v.SetDefault("STUCK_THRESHOLD", "2h")
	v.SetDefault("RETENTION_DAYS", 30)
	v.SetDefault("SWEEP_INTERVAL", "12h")

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, err
	}
	return cfg, nil
}
