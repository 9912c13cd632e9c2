package config

import (
	"errors"
	"fmt"
	"io/fs"
	"strings"
	"time"
	_ "time/tzdata"

	"github.com/shopspring/decimal"
	"github.com/spf13/viper"
	"github.com/subosito/gotenv"
)

type Config struct {
	App struct {
		Env      string
		Timezone string
	} `mapstructure:"app"`

	Telegram struct {
		Token       string
		AdminChatID int64 `mapstructure:"admin_chat_id"`
	} `mapstructure:"telegram"`

	HTTP struct {
		Addr            string
		ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout"`
	} `mapstructure:"http"`

	Storage struct {
		Driver string // postgres | memory
	} `mapstructure:"storage"`

	Postgres struct {
		DSN          string
		QueryTimeout time.Duration `mapstructure:"query_timeout"`
		TxTimeout    time.Duration `mapstructure:"tx_timeout"`
	} `mapstructure:"postgres"`

	Redis struct {
		Addr     string
		Password string
		DB       int
		TTL      time.Duration
	} `mapstructure:"redis"`

	Metrics struct {
		Enabled bool
	} `mapstructure:"metrics"`

	Pricing struct {
		MarginMinPercent float64 `mapstructure:"margin_min_percent"`
		MarginMaxPercent float64 `mapstructure:"margin_max_percent"`
		Tolerance        string
		DefaultSizes     []int  `mapstructure:"default_sizes"`
		HonorPinned      bool   `mapstructure:"honor_pinned"`
		CostMethod       string `mapstructure:"cost_method"`
		RepairQueue      int    `mapstructure:"repair_queue"`
	} `mapstructure:"pricing"`

	Audit struct {
		Schedule   string
		AutoFix    bool `mapstructure:"autofix"`
		Workers    int
		Timeout    time.Duration
		AttachXLSX bool `mapstructure:"attach_xlsx"`
	} `mapstructure:"audit"`
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("app.env", "prod")
	v.SetDefault("app.timezone", "America/Sao_Paulo")
	// keys without a default are invisible to AutomaticEnv during Unmarshal
	v.SetDefault("telegram.token", "")
	v.SetDefault("telegram.admin_chat_id", 0)
	v.SetDefault("http.addr", ":8080")
	v.SetDefault("http.shutdown_timeout", "5s")
	v.SetDefault("storage.driver", "postgres")
	v.SetDefault("postgres.dsn", "")
	v.SetDefault("postgres.query_timeout", "3s")
	v.SetDefault("postgres.tx_timeout", "10s")
	v.SetDefault("redis.addr", "")
	v.SetDefault("redis.password", "")
	v.SetDefault("redis.db", 0)
	v.SetDefault("redis.ttl", "5m")
	v.SetDefault("metrics.enabled", true)
	v.SetDefault("pricing.margin_min_percent", 50)
	v.SetDefault("pricing.margin_max_percent", 500)
	v.SetDefault("pricing.tolerance", "0.01")
	v.SetDefault("pricing.default_sizes", []int{2, 5, 10})
	v.SetDefault("pricing.honor_pinned", false)
	v.SetDefault("pricing.cost_method", "average")
	v.SetDefault("pricing.repair_queue", 64)
	v.SetDefault("audit.schedule", "0 3 * * *")
	v.SetDefault("audit.autofix", false)
	v.SetDefault("audit.workers", 4)
	v.SetDefault("audit.timeout", "5m")
	v.SetDefault("audit.attach_xlsx", true)
}

// Load reads the YAML file at path; a missing path means defaults plus environment.
// Keys are overridable as APP_<SECTION>_<KEY>, e.g. APP_POSTGRES_DSN. A .env file
// in the working directory is loaded first when present.
func Load(path string) (Config, error) {
	if err := gotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return Config{}, fmt.Errorf("load .env: %w", err)
	}

	v := viper.New()
	setDefaults(v)
	v.SetEnvPrefix("APP")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	var c Config
	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return c, err
		}
	}
	if err := v.Unmarshal(&c); err != nil {
		return c, err
	}
	return c, c.Validate()
}

// Location resolves app.timezone; empty means UTC.
func (c Config) Location() (*time.Location, error) {
	loc, err := time.LoadLocation(c.App.Timezone)
	if err != nil {
		return nil, fmt.Errorf("config: app.timezone %q: %w", c.App.Timezone, err)
	}
	return loc, nil
}

func (c Config) Validate() error {
	if _, err := c.Location(); err != nil {
		return err
	}
	switch c.Storage.Driver {
	case "postgres":
		if c.Postgres.DSN == "" {
			return errors.New("config: postgres.dsn is required for the postgres driver")
		}
	case "memory":
	default:
		return fmt.Errorf("config: unknown storage.driver %q", c.Storage.Driver)
	}
	if c.Pricing.MarginMinPercent <= 0 || c.Pricing.MarginMinPercent >= c.Pricing.MarginMaxPercent {
		return fmt.Errorf("config: margin band %v..%v is invalid", c.Pricing.MarginMinPercent, c.Pricing.MarginMaxPercent)
	}
	switch c.Pricing.CostMethod {
	case "average", "latest":
	default:
		return fmt.Errorf("config: unknown pricing.cost_method %q", c.Pricing.CostMethod)
	}
	if tol, err := decimal.NewFromString(c.Pricing.Tolerance); err != nil || tol.IsNegative() {
		return fmt.Errorf("config: pricing.tolerance %q must be a non-negative decimal", c.Pricing.Tolerance)
	}
	for _, s := range c.Pricing.DefaultSizes {
		if s <= 0 {
			return fmt.Errorf("config: default size %d must be > 0", s)
		}
	}
	return nil
}
