package config

import (
	"github.com/caarlos0/env/v11"
)

type Config struct {
	Server   ServerConfig
	DB       DBConfig
	Redis    RedisConfig
	RabbitMQ RabbitMQConfig
	Game     GameConfig
}

type ServerConfig struct {
	HTTPPort string `env:"HTTP_PORT" envDefault:"8081"`
	WSPort   string `env:"WS_PORT" envDefault:"8080"`
	WSHost   string `env:"WS_HOST" envDefault:"0.0.0.0"`
}

type DBConfig struct {
	Host     string `env:"DB_HOST" envDefault:"postgres"`
	Port     string `env:"DB_PORT" envDefault:"5432"`
	User     string `env:"DB_USER" envDefault:"quizbattle"`
	Password string `env:"DB_PASSWORD" envDefault:"quizbattle_password"`
	DBName   string `env:"DB_NAME" envDefault:"quizbattle"`
	SSLMode  string `env:"DB_SSLMODE" envDefault:"disable"`
}

type RedisConfig struct {
	Host     string `env:"REDIS_HOST" envDefault:"redis"`
	Port     string `env:"REDIS_PORT" envDefault:"6379"`
	Password string `env:"REDIS_PASSWORD" envDefault:""`
	DB       int    `env:"REDIS_DB" envDefault:"0"`
}

type RabbitMQConfig struct {
	Host     string `env:"RABBITMQ_HOST" envDefault:"rabbitmq"`
	Port     string `env:"RABBITMQ_PORT" envDefault:"5672"`
	User     string `env:"RABBITMQ_USER" envDefault:"guest"`
	Password string `env:"RABBITMQ_PASSWORD" envDefault:"guest"`
	Queue    string `env:"RABBITMQ_RESULTS_QUEUE" envDefault:"quiz.results"`
}

// GameConfig carries every tunable of the game rules. The scoring constants
// and time limits varied across iterations of the product, so none of them
// are hard-coded outside this struct.
type GameConfig struct {
	MaxPlayers       int     `env:"GAME_MAX_PLAYERS" envDefault:"4"`
	MinPlayers       int     `env:"GAME_MIN_PLAYERS" envDefault:"2"`
	QuestionCount    int     `env:"GAME_QUESTION_COUNT" envDefault:"10"`
	SelectionMode    string  `env:"GAME_SELECTION_MODE" envDefault:"random"`
	BaseScore        int     `env:"GAME_BASE_SCORE" envDefault:"100"`
	MaxTimeBonus     int     `env:"GAME_MAX_TIME_BONUS" envDefault:"50"`
	PerfectThreshold float64 `env:"GAME_PERFECT_THRESHOLD" envDefault:"0.3"`
	DefaultTimeLimit int     `env:"GAME_DEFAULT_TIME_LIMIT" envDefault:"20"`
	StartCountdown   int     `env:"GAME_START_COUNTDOWN" envDefault:"3"`
	QuestionPause    int     `env:"GAME_QUESTION_PAUSE" envDefault:"3"`
	TickMillis       int     `env:"GAME_TICK_MILLIS" envDefault:"200"`

	// QuestionsFile switches the question source from postgres to a local
	// JSON file when non-empty.
	QuestionsFile string `env:"GAME_QUESTIONS_FILE" envDefault:""`

	// SnapshotFile switches the snapshot store from redis to a local JSON
	// file when non-empty.
	SnapshotFile string `env:"GAME_SNAPSHOT_FILE" envDefault:""`

	// ResumeTokenSecret enables signed resume tokens on rejoin when set.
	ResumeTokenSecret string `env:"GAME_RESUME_TOKEN_SECRET" envDefault:""`
}

func Load() (*Config, error) {
	cfg := &Config{}
	if err := env.Parse(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}
