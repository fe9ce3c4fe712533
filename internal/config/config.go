package config

import (
	"errors"
	"fmt"
	"io/fs"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config is the runtime configuration, read from an optional .env file and
// overridden by environment variables.
type Config struct {
	Port      string
	JWTSecret string
	Database  DatabaseConfig
	Log       LogConfig
	Schedule  ScheduleConfig
	Accrual   AccrualConfig
}

// DatabaseConfig describes the ledger store. The API and the batch commands
// open differently sized pools.
type DatabaseConfig struct {
	Host     string
	Port     string
	User     string
	Password string
	Name     string
	SSLMode  string

	ConnectTimeout time.Duration
	// LockTimeout bounds the wait for an account row lock.
	LockTimeout time.Duration

	Server PoolConfig
	Batch  PoolConfig
}

type PoolConfig struct {
	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxIdleTime time.Duration
}

type LogConfig struct {
	Level  string
	Format string
}

// ScheduleConfig holds cron specs for the batch jobs. An empty spec disables
// the job.
type ScheduleConfig struct {
	SavingsAccrual string
	FdAccrual      string
	FdMaturity     string
}

type AccrualConfig struct {
	LockTTL              time.Duration
	StrictAccountNumbers bool
}

var envBindings = map[string]string{
	"port": "PORT",

	"database.host":     "DATABASE_HOST",
	"database.port":     "DATABASE_PORT",
	"database.user":     "DATABASE_USER",
	"database.password": "DATABASE_PASSWORD",
	"database.name":     "DATABASE_NAME",
	"database.ssl_mode": "DATABASE_SSL_MODE",

	"database.connect_timeout":       "DATABASE_CONNECT_TIMEOUT",
	"database.lock_timeout":          "DATABASE_LOCK_TIMEOUT",
	"database.server.max_open_conns": "DATABASE_SERVER_MAX_CONNS",
	"database.batch.max_open_conns":  "DATABASE_BATCH_MAX_CONNS",

	"redis.host":     "REDIS_HOST",
	"redis.port":     "REDIS_PORT",
	"redis.password": "REDIS_PASSWORD",
	"redis.db":       "REDIS_DB",

	"jwt.secret_key": "JWT_SECRET_KEY",

	"log.level":  "LOG_LEVEL",
	"log.format": "LOG_FORMAT",

	"schedule.savings_accrual": "SCHEDULE_SAVINGS_ACCRUAL",
	"schedule.fd_accrual":      "SCHEDULE_FD_ACCRUAL",
	"schedule.fd_maturity":     "SCHEDULE_FD_MATURITY",

	"accrual.lock_ttl":               "ACCRUAL_LOCK_TTL",
	"accrual.strict_account_numbers": "STRICT_ACCOUNT_NUMBERS",
}

func setDefaults() {
	viper.SetDefault("port", "8080")

	viper.SetDefault("database.host", "localhost")
	viper.SetDefault("database.port", "5432")
	viper.SetDefault("database.user", "microbank")
	viper.SetDefault("database.name", "microbank")
	viper.SetDefault("database.ssl_mode", "disable")
	viper.SetDefault("database.connect_timeout", 5*time.Second)
	viper.SetDefault("database.lock_timeout", 10*time.Second)

	// the API serves concurrent tellers; batch jobs post one account at a time
	viper.SetDefault("database.server.max_open_conns", 16)
	viper.SetDefault("database.server.max_idle_conns", 8)
	viper.SetDefault("database.server.conn_max_idle_time", 15*time.Minute)
	viper.SetDefault("database.batch.max_open_conns", 2)
	viper.SetDefault("database.batch.max_idle_conns", 1)
	viper.SetDefault("database.batch.conn_max_idle_time", time.Minute)

	viper.SetDefault("log.level", "info")
	viper.SetDefault("log.format", "json")

	// savings on the 1st of every month, FD jobs daily
	viper.SetDefault("schedule.savings_accrual", "0 1 1 * *")
	viper.SetDefault("schedule.fd_accrual", "30 1 * * *")
	viper.SetDefault("schedule.fd_maturity", "0 2 * * *")

	viper.SetDefault("accrual.lock_ttl", 30*time.Minute)
	viper.SetDefault("accrual.strict_account_numbers", false)
}

// Init wires viper to the config file and the environment. A missing file is
// not an error.
func Init(configFile string) error {
	if configFile != "" {
		viper.SetConfigFile(configFile)
	}
	viper.AutomaticEnv()

	for key, env := range envBindings {
		if err := viper.BindEnv(key, env); err != nil {
			return fmt.Errorf("bind %s: %w", env, err)
		}
	}
	setDefaults()

	if configFile != "" {
		if err := viper.ReadInConfig(); err != nil {
			if _, ok := err.(viper.ConfigFileNotFoundError); !ok && !errors.Is(err, fs.ErrNotExist) {
				return fmt.Errorf("read config %s: %w", configFile, err)
			}
		}
		// .env keys arrive flat (LOG_FORMAT -> log_format); lift them onto
		// the nested keys so file values beat defaults.
		for key, env := range envBindings {
			flat := strings.ToLower(env)
			if flat != key && viper.InConfig(flat) {
				viper.SetDefault(key, viper.Get(flat))
			}
		}
	}
	return nil
}

// Load snapshots the current viper state.
func Load() (*Config, error) {
	cfg := &Config{
		Port:      viper.GetString("port"),
		JWTSecret: viper.GetString("jwt.secret_key"),
		Database: DatabaseConfig{
			Host:           viper.GetString("database.host"),
			Port:           viper.GetString("database.port"),
			User:           viper.GetString("database.user"),
			Password:       viper.GetString("database.password"),
			Name:           viper.GetString("database.name"),
			SSLMode:        viper.GetString("database.ssl_mode"),
			ConnectTimeout: viper.GetDuration("database.connect_timeout"),
			LockTimeout:    viper.GetDuration("database.lock_timeout"),
			Server:         loadPool("database.server"),
			Batch:          loadPool("database.batch"),
		},
		Log: LogConfig{
			Level:  viper.GetString("log.level"),
			Format: viper.GetString("log.format"),
		},
		Schedule: ScheduleConfig{
			SavingsAccrual: viper.GetString("schedule.savings_accrual"),
			FdAccrual:      viper.GetString("schedule.fd_accrual"),
			FdMaturity:     viper.GetString("schedule.fd_maturity"),
		},
		Accrual: AccrualConfig{
			LockTTL:              viper.GetDuration("accrual.lock_ttl"),
			StrictAccountNumbers: viper.GetBool("accrual.strict_account_numbers"),
		},
	}

	if cfg.Accrual.LockTTL <= 0 {
		return nil, fmt.Errorf("accrual lock ttl must be positive, got %s", cfg.Accrual.LockTTL)
	}
	for name, pool := range map[string]PoolConfig{"server": cfg.Database.Server, "batch": cfg.Database.Batch} {
		if pool.MaxOpenConns < 1 {
			return nil, fmt.Errorf("database %s pool needs at least one connection, got %d", name, pool.MaxOpenConns)
		}
	}
	return cfg, nil
}

func loadPool(prefix string) PoolConfig {
	return PoolConfig{
		MaxOpenConns:    viper.GetInt(prefix + ".max_open_conns"),
		MaxIdleConns:    viper.GetInt(prefix + ".max_idle_conns"),
		ConnMaxIdleTime: viper.GetDuration(prefix + ".conn_max_idle_time"),
	}
}
