package config

import (
	"time"

	"github.com/caarlos0/env/v11"
	_ "github.com/joho/godotenv/autoload"
)

// Config carries every tunable the engine consumes. Payout economics (house
// edges, bet limits) are plain values here; the engine never hard-codes them.
type Config struct {
	Port     int    `env:"PORT" envDefault:"8080"`
	LogLevel string `env:"LOG_LEVEL" envDefault:"info"`

	Redis    Redis
	Postgres Postgres
	Games    Games
}

type Redis struct {
	Addr     string `env:"REDIS_URL" envDefault:"localhost:6379"`
	Password string `env:"REDIS_PASSWORD" envDefault:""`
	DB       int    `env:"REDIS_DB" envDefault:"0"`
}

type Postgres struct {
	Host     string `env:"DB_HOST" envDefault:"localhost"`
	Port     string `env:"DB_PORT" envDefault:"5432"`
	Database string `env:"DB_DATABASE" envDefault:"fairbet"`
	Username string `env:"DB_USERNAME" envDefault:"postgres"`
	Password string `env:"DB_PASSWORD" envDefault:"postgres"`
	Schema   string `env:"DB_SCHEMA" envDefault:"public"`
}

type Games struct {
	MinBet     float64  `env:"GAME_MIN_BET" envDefault:"1.0"`
	MaxBet     float64  `env:"GAME_MAX_BET" envDefault:"10000.0"`
	Currencies []string `env:"GAME_CURRENCIES" envDefault:"USD,EUR" envSeparator:","`

	Crash    Crash
	Mines    Mines
	Tower    Tower
	Coinflip Coinflip
	Hilo     Hilo

	// SessionTTL bounds how long an abandoned stepped session survives in
	// the store before the sweep forfeits it.
	SessionTTL    time.Duration `env:"GAME_SESSION_TTL" envDefault:"1h"`
	SweepInterval time.Duration `env:"GAME_SWEEP_INTERVAL" envDefault:"1m"`
}

type Crash struct {
	HouseEdge      float64       `env:"CRASH_HOUSE_EDGE" envDefault:"0.01"`
	MinMultiplier  float64       `env:"CRASH_MIN_MULTIPLIER" envDefault:"1.0"`
	MaxMultiplier  float64       `env:"CRASH_MAX_MULTIPLIER" envDefault:"1000000.0"`
	GrowthRate     float64       `env:"CRASH_GROWTH_RATE" envDefault:"0.06"`
	BettingWindow  time.Duration `env:"CRASH_BETTING_WINDOW" envDefault:"15s"`
	TickInterval   time.Duration `env:"CRASH_TICK_INTERVAL" envDefault:"50ms"`
	InterRoundWait time.Duration `env:"CRASH_INTER_ROUND_WAIT" envDefault:"3s"`
	ClientSeed     string        `env:"CRASH_CLIENT_SEED" envDefault:"global"`
}

type Mines struct {
	HouseEdge float64 `env:"MINES_HOUSE_EDGE" envDefault:"0.03"`
	GridSize  int     `env:"MINES_GRID_SIZE" envDefault:"25"`
	MinMines  int     `env:"MINES_MIN_MINES" envDefault:"1"`
	MaxMines  int     `env:"MINES_MAX_MINES" envDefault:"24"`
}

type Tower struct {
	HouseEdge     float64 `env:"TOWER_HOUSE_EDGE" envDefault:"0.02"`
	Rows          int     `env:"TOWER_ROWS" envDefault:"8"`
	MinCols       int     `env:"TOWER_MIN_COLS" envDefault:"2"`
	MaxCols       int     `env:"TOWER_MAX_COLS" envDefault:"4"`
	HazardsPerRow int     `env:"TOWER_HAZARDS_PER_ROW" envDefault:"1"`
}

type Coinflip struct {
	HouseEdge float64 `env:"COINFLIP_HOUSE_EDGE" envDefault:"0.02"`
	MaxStreak int     `env:"COINFLIP_MAX_STREAK" envDefault:"10"`
}

type Hilo struct {
	HouseEdge float64 `env:"HILO_HOUSE_EDGE" envDefault:"0.02"`
	MaxSteps  int     `env:"HILO_MAX_STEPS" envDefault:"20"`
}

// Load parses the environment (a .env file is honored via godotenv autoload).
func Load() (Config, error) {
	var cfg Config
	if err := env.Parse(&cfg); err != nil {
		return Config{}, err
	}
	return cfg, nil
}
