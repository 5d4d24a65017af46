package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// Config holds all configuration required by the API process.
// Values come from env (optionally seeded from a .env file by cmd/api).
type Config struct {
	App       AppConfig
	DB        DBConfig
	Redis     RedisConfig
	Auth      AuthConfig
	Sheets    SheetsConfig
	Sync      SyncConfig
	Bootstrap BootstrapConfig
	Phone     PhoneConfig
}

type AppConfig struct {
	Env  string
	Port int
}

type DBConfig struct {
	Host     string
	Port     int
	User     string
	Password string
	Name     string

	// Accepts: disable, require, verify-ca, verify-full
	SSLMode string
}

type RedisConfig struct {
	Host string
	Port int
}

type AuthConfig struct {
	JWTSecret       string
	JWTIssuer       string
	JWTAudience     string
	AccessTokenTTL  time.Duration
	RefreshTokenTTL time.Duration
}

// SheetsConfig carries the service-account credentials for the lead spreadsheet.
// Missing credentials disable sync; they are never a startup error.
type SheetsConfig struct {
	ServiceAccountEmail string
	PrivateKey          string
	SpreadsheetID       string
	Range               string
}

func (s SheetsConfig) Enabled() bool {
	return s.ServiceAccountEmail != "" && s.PrivateKey != "" && s.SpreadsheetID != ""
}

type SyncConfig struct {
	Schedule string
	Timeout  time.Duration
}

// BootstrapConfig seeds the first admin account via POST /setup-admin.
type BootstrapConfig struct {
	AdminEmail    string
	AdminName     string
	AdminPhone    string
	AdminPassword string
}

type PhoneConfig struct {
	DefaultRegion string
}

const (
	defaultSheetRange    = "Sheet1!A:S"
	defaultSyncSchedule  = "@hourly"
	defaultSyncTimeout   = 2 * time.Minute
	defaultPhoneRegion   = "IN"
	defaultAdminName     = "Admin"
	defaultAccessTTL     = 15 * time.Minute
	defaultRefreshTTL    = 30 * 24 * time.Hour
	localDefaultSSLMode  = "disable"
)

func Load() (Config, error) {
	c := Config{}
	var parseErrs []error

	c.App.Env = env("APP_ENV")
	{
		n, err := mustInt("APP_PORT")
		n, parseErrs = appendParseErr(parseErrs, n, err)
		c.App.Port = n
	}

	c.DB.Host = env("DB_HOST")
	{
		n, err := mustInt("DB_PORT")
		n, parseErrs = appendParseErr(parseErrs, n, err)
		c.DB.Port = n
	}
	c.DB.User = env("DB_USER")
	c.DB.Password = os.Getenv("DB_PASSWORD")
	c.DB.Name = env("DB_NAME")
	c.DB.SSLMode = env("DB_SSLMODE")

	c.Redis.Host = env("REDIS_HOST")
	{
		n, err := mustInt("REDIS_PORT")
		n, parseErrs = appendParseErr(parseErrs, n, err)
		c.Redis.Port = n
	}

	c.Auth.JWTSecret = os.Getenv("JWT_SECRET")
	c.Auth.JWTIssuer = env("JWT_ISSUER")
	c.Auth.JWTAudience = env("JWT_AUDIENCE")
	{
		d, err := optionalDuration("JWT_ACCESS_TTL")
		parseErrs = appendErr(parseErrs, err)
		c.Auth.AccessTokenTTL = d
	}
	{
		d, err := optionalDuration("JWT_REFRESH_TTL")
		parseErrs = appendErr(parseErrs, err)
		c.Auth.RefreshTokenTTL = d
	}

	c.Sheets.ServiceAccountEmail = env("GOOGLE_SERVICE_ACCOUNT_EMAIL")
	// Keys pasted into env files usually carry escaped newlines.
	c.Sheets.PrivateKey = strings.ReplaceAll(os.Getenv("GOOGLE_PRIVATE_KEY"), `\n`, "\n")
	c.Sheets.SpreadsheetID = env("GOOGLE_SHEET_ID")
	c.Sheets.Range = env("GOOGLE_SHEET_RANGE")

	c.Sync.Schedule = env("SYNC_CRON")
	{
		d, err := optionalDuration("SYNC_TIMEOUT")
		parseErrs = appendErr(parseErrs, err)
		c.Sync.Timeout = d
	}

	c.Bootstrap.AdminEmail = env("ADMIN_EMAIL")
	c.Bootstrap.AdminName = env("ADMIN_NAME")
	c.Bootstrap.AdminPhone = env("ADMIN_PHONE")
	c.Bootstrap.AdminPassword = os.Getenv("ADMIN_PASSWORD")

	c.Phone.DefaultRegion = strings.ToUpper(env("PHONE_DEFAULT_REGION"))

	if err := joinErrors(parseErrs); err != nil {
		return Config{}, err
	}
	if err := c.Validate(); err != nil {
		return Config{}, err
	}
	return c, nil
}

// Validate checks required values and fills environment-dependent defaults.
func (c *Config) Validate() error {
	var errs []error

	if c.App.Env == "" {
		errs = append(errs, errors.New("APP_ENV is required"))
	} else if !isValidEnv(c.App.Env) {
		errs = append(errs, fmt.Errorf("APP_ENV must be one of local, dev, staging, production, got %q", c.App.Env))
	}
	if !validPort(c.App.Port) {
		errs = append(errs, fmt.Errorf("APP_PORT must be a valid port, got %d", c.App.Port))
	}

	if c.DB.Host == "" {
		errs = append(errs, errors.New("DB_HOST is required"))
	}
	if !validPort(c.DB.Port) {
		errs = append(errs, fmt.Errorf("DB_PORT must be a valid port, got %d", c.DB.Port))
	}
	if c.DB.User == "" {
		errs = append(errs, errors.New("DB_USER is required"))
	}
	if c.DB.Name == "" {
		errs = append(errs, errors.New("DB_NAME is required"))
	}
	if c.DB.SSLMode == "" {
		if c.IsProduction() {
			errs = append(errs, errors.New("DB_SSLMODE is required in production"))
		} else {
			c.DB.SSLMode = localDefaultSSLMode
		}
	}
	if c.DB.SSLMode != "" && !isValidSSLMode(c.DB.SSLMode) {
		errs = append(errs, fmt.Errorf("DB_SSLMODE must be one of disable, require, verify-ca, verify-full, got %q", c.DB.SSLMode))
	}

	if c.Redis.Host == "" {
		errs = append(errs, errors.New("REDIS_HOST is required"))
	}
	if !validPort(c.Redis.Port) {
		errs = append(errs, fmt.Errorf("REDIS_PORT must be a valid port, got %d", c.Redis.Port))
	}

	if c.Auth.JWTSecret == "" {
		errs = append(errs, errors.New("JWT_SECRET is required"))
	}
	if c.IsProduction() {
		if c.Auth.JWTIssuer == "" {
			errs = append(errs, errors.New("JWT_ISSUER is required in production"))
		}
		if c.Auth.JWTAudience == "" {
			errs = append(errs, errors.New("JWT_AUDIENCE is required in production"))
		}
	}
	if c.Auth.AccessTokenTTL <= 0 {
		c.Auth.AccessTokenTTL = defaultAccessTTL
	}
	if c.Auth.RefreshTokenTTL <= 0 {
		c.Auth.RefreshTokenTTL = defaultRefreshTTL
	}
	if c.Auth.RefreshTokenTTL <= c.Auth.AccessTokenTTL {
		errs = append(errs, errors.New("JWT_REFRESH_TTL must be greater than JWT_ACCESS_TTL"))
	}

	if c.Sheets.Range == "" {
		c.Sheets.Range = defaultSheetRange
	}
	if c.Sync.Schedule == "" {
		c.Sync.Schedule = defaultSyncSchedule
	}
	if c.Sync.Timeout <= 0 {
		c.Sync.Timeout = defaultSyncTimeout
	}

	if c.Bootstrap.AdminName == "" {
		c.Bootstrap.AdminName = defaultAdminName
	}
	if c.Bootstrap.AdminPassword != "" && len(c.Bootstrap.AdminPassword) < 8 {
		errs = append(errs, errors.New("ADMIN_PASSWORD must be at least 8 characters"))
	}

	if c.Phone.DefaultRegion == "" {
		c.Phone.DefaultRegion = defaultPhoneRegion
	}
	if len(c.Phone.DefaultRegion) != 2 {
		errs = append(errs, fmt.Errorf("PHONE_DEFAULT_REGION must be a two-letter region, got %q", c.Phone.DefaultRegion))
	}

	return joinErrors(errs)
}

func (c Config) IsProduction() bool {
	return c.App.Env == "production"
}

func (c Config) HTTPAddr() string {
	return fmt.Sprintf(":%d", c.App.Port)
}

func (c Config) PostgresDSN() string {
	// Contains secrets; never log it.
	return fmt.Sprintf(
		"host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		c.DB.Host,
		c.DB.Port,
		c.DB.User,
		c.DB.Password,
		c.DB.Name,
		c.DB.SSLMode,
	)
}

func (c Config) RedisAddr() string {
	return fmt.Sprintf("%s:%d", c.Redis.Host, c.Redis.Port)
}

func env(key string) string {
	return strings.TrimSpace(os.Getenv(key))
}

func mustInt(key string) (int, error) {
	v := env(key)
	if v == "" {
		return 0, fmt.Errorf("%s is required", key)
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0, fmt.Errorf("%s must be an integer, got %q", key, v)
	}
	return n, nil
}

// optionalDuration returns 0 when unset so Validate can apply the default.
func optionalDuration(key string) (time.Duration, error) {
	v := env(key)
	if v == "" {
		return 0, nil
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return 0, fmt.Errorf("%s must be a duration, got %q", key, v)
	}
	return d, nil
}

func appendParseErr(errs []error, n int, err error) (int, []error) {
	return n, appendErr(errs, err)
}

func appendErr(errs []error, err error) []error {
	if err != nil {
		errs = append(errs, err)
	}
	return errs
}

func validPort(p int) bool {
	return p > 0 && p <= 65535
}

func isValidEnv(v string) bool {
	switch v {
	case "local", "dev", "staging", "production":
		return true
	default:
		return false
	}
}

func isValidSSLMode(v string) bool {
	switch v {
	case "disable", "require", "verify-ca", "verify-full":
		return true
	default:
		return false
	}
}

func joinErrors(errs []error) error {
	if len(errs) == 0 {
		return nil
	}
	if len(errs) == 1 {
		return errs[0]
	}
	var b strings.Builder
	b.WriteString("config errors:\n")
	for _, e := range errs {
		b.WriteString("- ")
		b.WriteString(e.Error())
		b.WriteString("\n")
	}
	return errors.New(strings.TrimSpace(b.String()))
}
