package config

import (
	"strings"
	"time"

	"github.com/spf13/viper"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

var config = viper.New()

type Config struct {
	AppEnv  string `mapstructure:"APP_ENV"`
	AppName string `mapstructure:"APP_NAME"`

	Database struct {
		Type           string `mapstructure:"TYPE"`
		Host           string `mapstructure:"HOST"`
		Port           string `mapstructure:"PORT"`
		DBNAME         string `mapstructure:"DBNAME"`
		User           string `mapstructure:"USER"`
		Password       string `mapstructure:"PASSWORD"`
		SSLMode        string `mapstructure:"SSLMODE"`
		Timezone       string `mapstructure:"TIMEZONE"`
		ConnectionPool struct {
			MaxIdleConn     int           `mapstructure:"MAX_IDLE_CONN"`
			MaxOpenConns    int           `mapstructure:"MAX_OPEN_CONNS"`
			ConnMaxLifetime time.Duration `mapstructure:"CONN_MAX_LIFETIME"`
			ConnMaxIdleTime time.Duration `mapstructure:"CONN_MAX_IDLE_TIME"`
		} `mapstructure:"CONNECTION_POOL"`
	} `mapstructure:"DATABASE"`

	Redis struct {
		Addr        string        `mapstructure:"ADDR"`
		Password    string        `mapstructure:"PASSWORD"`
		DB          int           `mapstructure:"DB"`
		PoolSize    int           `mapstructure:"POOL_SIZE"`
		PoolTimeout time.Duration `mapstructure:"POOL_TIMEOUT"`
	} `mapstructure:"REDIS"`

	Rewards struct {
		// MaxRetries bounds how many times a pending reward is re-attempted
		// before it is parked as failed.
		MaxRetries int `mapstructure:"MAX_RETRIES"`
		// DailyCap / MonthlyCap limit grants per user per reward type.
		// Zero means unlimited.
		DailyCap   int `mapstructure:"DAILY_CAP"`
		MonthlyCap int `mapstructure:"MONTHLY_CAP"`
		// SweepInterval is the period of the background settlement sweep.
		SweepInterval time.Duration `mapstructure:"SWEEP_INTERVAL"`
		// CreditTimeout bounds a single point-credit attempt.
		CreditTimeout time.Duration `mapstructure:"CREDIT_TIMEOUT"`
		// ExpiryMonths is how long earned points live before the expiry
		// sweep reclaims them. Zero disables expiry.
		ExpiryMonths int `mapstructure:"EXPIRY_MONTHS"`
	} `mapstructure:"REWARDS"`
}

var Module = fx.Module("config", fx.Provide(LoadConfig))

func LoadConfig() (*Config, error) {
	config.SetConfigName("config")
	config.SetConfigType("yaml")
	config.AddConfigPath(".")

	config.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	config.AutomaticEnv()

	setDefaults(config)

	if err := config.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, err
		}
		zap.L().Warn("[Config] no config file found, using env and defaults")
	}

	var cfg Config
	if err := config.Unmarshal(&cfg); err != nil {
		return nil, err
	}

	return &cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("APP_ENV", "development")
	v.SetDefault("APP_NAME", "rewardengine")
	v.SetDefault("DATABASE.TYPE", "postgres")
	v.SetDefault("REDIS.ADDR", "127.0.0.1:6379")
	v.SetDefault("REWARDS.MAX_RETRIES", 3)
	v.SetDefault("REWARDS.SWEEP_INTERVAL", 30*time.Second)
	v.SetDefault("REWARDS.CREDIT_TIMEOUT", 5*time.Second)
	v.SetDefault("REWARDS.EXPIRY_MONTHS", 12)
}
