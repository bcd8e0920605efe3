package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Duration acepta "10m", "300s" o segundos enteros en el YAML.
type Duration struct {
	time.Duration
}

func (d *Duration) UnmarshalYAML(n *yaml.Node) error {
	var s string
	if err := n.Decode(&s); err != nil {
		return err
	}
	s = strings.TrimSpace(s)
	if s == "" {
		return nil
	}
	if secs, err := strconv.Atoi(s); err == nil {
		d.Duration = time.Duration(secs) * time.Second
		return nil
	}
	v, err := time.ParseDuration(s)
	if err != nil {
		return fmt.Errorf("duración inválida %q: %w", s, err)
	}
	d.Duration = v
	return nil
}

func (d Duration) MarshalYAML() (any, error) { return d.String(), nil }

type Config struct {
	App struct {
		// dev | prod
		Env     string `yaml:"env"`
		Version string `yaml:"version"`
	} `yaml:"app"`

	Log struct {
		Level string `yaml:"level"`
	} `yaml:"log"`

	Server struct {
		Addr               string   `yaml:"addr"`
		ReadTimeout        Duration `yaml:"read_timeout"`
		WriteTimeout       Duration `yaml:"write_timeout"`
		CORSAllowedOrigins []string `yaml:"cors_allowed_origins"`
	} `yaml:"server"`

	// Auth valida los bearer JWT de los usuarios y firma el state OAuth.
	Auth struct {
		JWTSecret string   `yaml:"jwt_secret"`
		Issuer    string   `yaml:"issuer"`
		TokenTTL  Duration `yaml:"token_ttl"`
		StateTTL  Duration `yaml:"state_ttl"`
	} `yaml:"auth"`

	Vault struct {
		MasterKey string `yaml:"master_key"` // base64 de 32 bytes
		Secret    string `yaml:"secret"`     // fallback: se deriva con HKDF
	} `yaml:"vault"`

	Storage struct {
		Driver   string `yaml:"driver"` // postgres | memory
		DSN      string `yaml:"dsn"`
		Postgres struct {
			MaxConns int32 `yaml:"max_conns"`
			MinConns int32 `yaml:"min_conns"`
		} `yaml:"postgres"`
		LeaseWait Duration `yaml:"lease_wait"`
	} `yaml:"storage"`

	Cache struct {
		Driver string `yaml:"driver"` // memory | redis
		Redis  struct {
			Addr     string `yaml:"addr"`
			Password string `yaml:"password"`
			DB       int    `yaml:"db"`
			Prefix   string `yaml:"prefix"`
		} `yaml:"redis"`
		CleanupInterval Duration `yaml:"cleanup_interval"`
	} `yaml:"cache"`

	Login struct {
		ChallengeTTL  Duration `yaml:"challenge_ttl"`
		SweepInterval Duration `yaml:"sweep_interval"`
	} `yaml:"login"`

	Garmin struct {
		SSOURL         string   `yaml:"sso_url"`
		APIURL         string   `yaml:"api_url"`
		CNSSOURL       string   `yaml:"cn_sso_url"`
		CNAPIURL       string   `yaml:"cn_api_url"`
		RequestTimeout Duration `yaml:"request_timeout"`
	} `yaml:"garmin"`

	Strava struct {
		AuthURL        string   `yaml:"auth_url"`
		TokenURL       string   `yaml:"token_url"`
		APIBase        string   `yaml:"api_base"`
		RedirectURI    string   `yaml:"redirect_uri"`
		RefreshBuffer  Duration `yaml:"refresh_buffer"`
		RequestTimeout Duration `yaml:"request_timeout"`
		PageSize       int      `yaml:"page_size"`
		MaxPages       int      `yaml:"max_pages"`
	} `yaml:"strava"`

	Sync struct {
		DefaultDaysGarmin int      `yaml:"default_days_garmin"`
		DefaultDaysStrava int      `yaml:"default_days_strava"`
		MaxDays           int      `yaml:"max_days"`
		CallTimeout       Duration `yaml:"call_timeout"`
	} `yaml:"sync"`

	Events struct {
		KafkaBrokers []string `yaml:"kafka_brokers"`
		Topic        string   `yaml:"topic"`
	} `yaml:"events"`

	// Notify avisa a un operador cuando una conexión queda en error/expired.
	Notify struct {
		To   string `yaml:"to"`
		SMTP struct {
			Host     string `yaml:"host"`
			Port     int    `yaml:"port"`
			Username string `yaml:"username"`
			Password string `yaml:"password"`
			From     string `yaml:"from"`
			TLSMode  string `yaml:"tls_mode"` // auto | starttls | ssl | none
		} `yaml:"smtp"`
	} `yaml:"notify"`

	Rate struct {
		Login struct {
			Limit  int      `yaml:"limit"`
			Window Duration `yaml:"window"`
		} `yaml:"login"`
		Connect struct {
			Limit  int      `yaml:"limit"`
			Window Duration `yaml:"window"`
		} `yaml:"connect"`
	} `yaml:"rate"`
}

// Load lee el YAML (si path no está vacío), aplica defaults, overrides de
// entorno y valida.
func Load(path string) (*Config, error) {
	var c Config
	if strings.TrimSpace(path) != "" {
		b, err := os.ReadFile(path)
		if err != nil {
			return nil, err
		}
		if err := yaml.Unmarshal(b, &c); err != nil {
			return nil, err
		}
	}

	c.applyDefaults()
	c.applyEnvOverrides()

	if err := c.Validate(); err != nil {
		return nil, err
	}
	return &c, nil
}

func setDur(d *Duration, def time.Duration) {
	if d.Duration <= 0 {
		d.Duration = def
	}
}

func setStr(s *string, def string) {
	if strings.TrimSpace(*s) == "" {
		*s = def
	}
}

func setInt(v *int, def int) {
	if *v == 0 {
		*v = def
	}
}

func (c *Config) applyDefaults() {
	setStr(&c.App.Env, "dev")
	setStr(&c.Log.Level, "info")

	setStr(&c.Server.Addr, ":8080")
	setDur(&c.Server.ReadTimeout, 15*time.Second)
	// sync de 365 días puede tardar; el write timeout acompaña
	setDur(&c.Server.WriteTimeout, 5*time.Minute)

	setStr(&c.Auth.Issuer, "fitlink")
	setDur(&c.Auth.TokenTTL, 24*time.Hour)
	setDur(&c.Auth.StateTTL, 10*time.Minute)

	setStr(&c.Storage.Driver, "memory")
	if c.Storage.Postgres.MaxConns == 0 {
		c.Storage.Postgres.MaxConns = 10
	}
	setDur(&c.Storage.LeaseWait, 5*time.Second)

	setStr(&c.Cache.Driver, "memory")
	setStr(&c.Cache.Redis.Prefix, "fitlink")
	setDur(&c.Cache.CleanupInterval, time.Minute)

	setDur(&c.Login.ChallengeTTL, 10*time.Minute)
	setDur(&c.Login.SweepInterval, time.Minute)

	setStr(&c.Garmin.SSOURL, "https://sso.garmin.com")
	setStr(&c.Garmin.APIURL, "https://connectapi.garmin.com")
	setStr(&c.Garmin.CNSSOURL, "https://sso.garmin.cn")
	setStr(&c.Garmin.CNAPIURL, "https://connectapi.garmin.cn")
	setDur(&c.Garmin.RequestTimeout, 30*time.Second)

	setStr(&c.Strava.AuthURL, "https://www.strava.com/oauth/authorize")
	setStr(&c.Strava.TokenURL, "https://www.strava.com/oauth/token")
	setStr(&c.Strava.APIBase, "https://www.strava.com/api/v3")
	setStr(&c.Strava.RedirectURI, "http://localhost:8080/v1/strava/callback")
	setDur(&c.Strava.RefreshBuffer, 300*time.Second)
	setDur(&c.Strava.RequestTimeout, 30*time.Second)
	setInt(&c.Strava.PageSize, 200)
	setInt(&c.Strava.MaxPages, 10)

	setInt(&c.Sync.DefaultDaysGarmin, 7)
	setInt(&c.Sync.DefaultDaysStrava, 30)
	setInt(&c.Sync.MaxDays, 365)
	setDur(&c.Sync.CallTimeout, 30*time.Second)

	setStr(&c.Events.Topic, "fitlink.sync")

	setInt(&c.Notify.SMTP.Port, 587)
	setStr(&c.Notify.SMTP.TLSMode, "auto")

	setInt(&c.Rate.Login.Limit, 10)
	setDur(&c.Rate.Login.Window, time.Minute)
	setInt(&c.Rate.Connect.Limit, 30)
	setDur(&c.Rate.Connect.Window, time.Minute)
}

// ---- Helpers env ----

func getEnvStr(key string) (string, bool) {
	v := os.Getenv(key)
	return v, v != ""
}

func getEnvInt(key string) (int, bool) {
	if s, ok := getEnvStr(key); ok {
		if i, err := strconv.Atoi(strings.TrimSpace(s)); err == nil {
			return i, true
		}
	}
	return 0, false
}

func getEnvDur(key string) (time.Duration, bool) {
	if s, ok := getEnvStr(key); ok {
		if d, err := time.ParseDuration(strings.TrimSpace(s)); err == nil {
			return d, true
		}
	}
	return 0, false
}

func getEnvCSV(key string) ([]string, bool) {
	s, ok := getEnvStr(key)
	if !ok {
		return nil, false
	}
	parts := strings.Split(s, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out, true
}

// applyEnvOverrides: las variables de entorno pisan el YAML.
func (c *Config) applyEnvOverrides() {
	if v, ok := getEnvStr("APP_ENV"); ok {
		c.App.Env = strings.ToLower(v)
	}
	if v, ok := getEnvStr("LOG_LEVEL"); ok {
		c.Log.Level = v
	}

	// SERVER
	if v, ok := getEnvStr("SERVER_ADDR"); ok {
		c.Server.Addr = v
	}
	if v, ok := getEnvCSV("SERVER_CORS_ALLOWED_ORIGINS"); ok {
		c.Server.CORSAllowedOrigins = v
	}

	// AUTH / VAULT
	if v, ok := getEnvStr("AUTH_JWT_SECRET"); ok {
		c.Auth.JWTSecret = v
	}
	if v, ok := getEnvStr("VAULT_MASTER_KEY"); ok {
		c.Vault.MasterKey = v
	}
	if v, ok := getEnvStr("VAULT_SECRET"); ok {
		c.Vault.Secret = v
	}

	// STORAGE
	if v, ok := getEnvStr("STORAGE_DRIVER"); ok {
		c.Storage.Driver = v
	}
	if v, ok := getEnvStr("STORAGE_DSN"); ok {
		c.Storage.DSN = v
	}

	// CACHE
	if v, ok := getEnvStr("CACHE_DRIVER"); ok {
		c.Cache.Driver = v
	}
	if v, ok := getEnvStr("REDIS_ADDR"); ok {
		c.Cache.Redis.Addr = v
	}
	if v, ok := getEnvStr("REDIS_PASSWORD"); ok {
		c.Cache.Redis.Password = v
	}
	if v, ok := getEnvInt("REDIS_DB"); ok {
		c.Cache.Redis.DB = v
	}

	// LOGIN
	if v, ok := getEnvDur("LOGIN_CHALLENGE_TTL"); ok {
		c.Login.ChallengeTTL.Duration = v
	}

	// STRAVA
	if v, ok := getEnvStr("STRAVA_REDIRECT_URI"); ok {
		c.Strava.RedirectURI = v
	}
	if v, ok := getEnvDur("STRAVA_REFRESH_BUFFER"); ok {
		c.Strava.RefreshBuffer.Duration = v
	}

	// SYNC
	if v, ok := getEnvInt("SYNC_MAX_DAYS"); ok {
		c.Sync.MaxDays = v
	}
	if v, ok := getEnvDur("SYNC_CALL_TIMEOUT"); ok {
		c.Sync.CallTimeout.Duration = v
	}

	// EVENTS / NOTIFY
	if v, ok := getEnvCSV("KAFKA_BROKERS"); ok {
		c.Events.KafkaBrokers = v
	}
	if v, ok := getEnvStr("NOTIFY_TO"); ok {
		c.Notify.To = v
	}
	if v, ok := getEnvStr("SMTP_HOST"); ok {
		c.Notify.SMTP.Host = v
	}
	if v, ok := getEnvInt("SMTP_PORT"); ok {
		c.Notify.SMTP.Port = v
	}
	if v, ok := getEnvStr("SMTP_USERNAME"); ok {
		c.Notify.SMTP.Username = v
	}
	if v, ok := getEnvStr("SMTP_PASSWORD"); ok {
		c.Notify.SMTP.Password = v
	}
	if v, ok := getEnvStr("SMTP_FROM"); ok {
		c.Notify.SMTP.From = v
	}
}

var (
	ErrMissingJWTSecret = errors.New("config: auth.jwt_secret (AUTH_JWT_SECRET) es requerido")
	ErrMissingVaultKey  = errors.New("config: vault.master_key o vault.secret es requerido")
	ErrMissingDSN       = errors.New("config: storage.dsn es requerido con driver postgres")
)

// Validate verifica los valores críticos.
func (c *Config) Validate() error {
	var errs []error

	if strings.TrimSpace(c.Auth.JWTSecret) == "" {
		errs = append(errs, ErrMissingJWTSecret)
	}
	if strings.TrimSpace(c.Vault.MasterKey) == "" && strings.TrimSpace(c.Vault.Secret) == "" {
		errs = append(errs, ErrMissingVaultKey)
	}

	switch c.Storage.Driver {
	case "memory":
	case "postgres":
		if strings.TrimSpace(c.Storage.DSN) == "" {
			errs = append(errs, ErrMissingDSN)
		}
	default:
		errs = append(errs, fmt.Errorf("config: storage.driver %q no soportado (postgres|memory)", c.Storage.Driver))
	}

	switch c.Cache.Driver {
	case "memory", "redis":
	default:
		errs = append(errs, fmt.Errorf("config: cache.driver %q no soportado (memory|redis)", c.Cache.Driver))
	}

	if c.Sync.MaxDays < 1 || c.Sync.MaxDays > 365 {
		errs = append(errs, fmt.Errorf("config: sync.max_days debe estar entre 1 y 365, obtuvo %d", c.Sync.MaxDays))
	}
	for name, d := range map[string]int{
		"sync.default_days_garmin": c.Sync.DefaultDaysGarmin,
		"sync.default_days_strava": c.Sync.DefaultDaysStrava,
	} {
		if d < 1 || d > c.Sync.MaxDays {
			errs = append(errs, fmt.Errorf("config: %s debe estar entre 1 y %d, obtuvo %d", name, c.Sync.MaxDays, d))
		}
	}
	if c.Strava.PageSize < 1 || c.Strava.PageSize > 200 {
		errs = append(errs, fmt.Errorf("config: strava.page_size debe estar entre 1 y 200, obtuvo %d", c.Strava.PageSize))
	}

	return errors.Join(errs...)
}

// NotifyEnabled es true si hay SMTP y destinatario configurados.
func (c *Config) NotifyEnabled() bool {
	return c.Notify.To != "" && c.Notify.SMTP.Host != ""
}
