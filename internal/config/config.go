// Package config reads the service configuration from the environment
// (optionally seeded from dotenv files) and validates it with struct tags.
// The env tag on each field names its variable; validation errors use it.
package config

import (
	"errors"
	"fmt"
	"os"
	"reflect"
	"strconv"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/joho/godotenv"
)

type CORSConfig struct {
	AllowedOrigins []string `env:"CORS_ALLOWED_ORIGINS"` // empty allows any origin
}

type SecurityConfig struct {
	EnableHSTS bool          `env:"ENABLE_HSTS"`
	HSTSMaxAge time.Duration `env:"HSTS_MAX_AGE" validate:"gte=0"`
}

// OTELConfig controls trace export over OTLP/gRPC.
type OTELConfig struct {
	Enabled     bool    `env:"OTEL_ENABLED"`
	Endpoint    string  `env:"OTEL_EXPORTER_OTLP_ENDPOINT" validate:"required_if=Enabled true"`
	Insecure    bool    `env:"OTEL_EXPORTER_OTLP_INSECURE"`
	ServiceName string  `env:"OTEL_SERVICE_NAME"`
	SampleRatio float64 `env:"OTEL_TRACES_SAMPLER_ARG" validate:"gte=0,lte=1"`
}

// AuthConfig covers access tokens and password hashing.
type AuthConfig struct {
	TokenSecret string        `env:"ACCESS_TOKEN_SECRET" validate:"required"`
	TokenTTL    time.Duration `env:"ACCESS_TOKEN_TTL" validate:"gt=0"`
	Issuer      string        `env:"TOKEN_ISSUER"`
	HashCost    int           `env:"HASH_COST" validate:"min=4,max=31"` // bcrypt
}

// ChatConfig tunes the websocket gateway and the message path.
type ChatConfig struct {
	MaxBodyRunes  int           `env:"CHAT_MAX_BODY_RUNES" validate:"min=1"`
	SendBuffer    int           `env:"CHAT_SEND_BUFFER" validate:"min=1"` // outbound events queued per connection
	PingInterval  time.Duration `env:"CHAT_PING_INTERVAL" validate:"gt=0"` // read deadline is twice this
	WriteTimeout  time.Duration `env:"CHAT_WRITE_TIMEOUT" validate:"gt=0"`
	MaxFrameBytes int64         `env:"CHAT_MAX_FRAME_BYTES" validate:"min=512"`
	MsgRPS        float64       `env:"CHAT_MSG_RPS" validate:"gte=0"` // inbound events per second per connection
	MsgBurst      int           `env:"CHAT_MSG_BURST" validate:"min=1"`
	EventTimeout  time.Duration `env:"CHAT_EVENT_TIMEOUT" validate:"gt=0"`
	DedupTTL      time.Duration `env:"CHAT_DEDUP_TTL" validate:"gt=0"` // how long a clientMessageId is remembered
}

// Config is the whole service configuration.
type Config struct {
	Port              string        `env:"PORT" validate:"required"`
	ReadTimeout       time.Duration `env:"READ_TIMEOUT" validate:"gt=0"`
	ReadHeaderTimeout time.Duration `env:"READ_HEADER_TIMEOUT" validate:"gt=0"`
	WriteTimeout      time.Duration `env:"WRITE_TIMEOUT" validate:"gt=0"`
	IdleTimeout       time.Duration `env:"IDLE_TIMEOUT" validate:"gt=0"`
	MaxHeaderBytes    int           `env:"MAX_HEADER_BYTES" validate:"gt=0"`
	GinMode           string        `env:"GIN_MODE" validate:"oneof=debug release test"`
	ShutdownTimeout   time.Duration `env:"SHUTDOWN_TIMEOUT" validate:"gt=0"`

	LogLevel       string `env:"LOG_LEVEL" validate:"oneof=debug info warn error fatal panic"`
	LogPretty      bool   `env:"LOG_PRETTY"`
	SwaggerEnabled bool   `env:"SWAGGER_ENABLED"`
	APIBasePath    string `env:"API_BASE_PATH"`

	DBPath string `env:"DB_PATH" validate:"required"`

	Auth AuthConfig
	Chat ChatConfig

	// HTTP rate limit per client
	RateRPS   float64 `env:"RATE_RPS" validate:"gte=0"`
	RateBurst int     `env:"RATE_BURST" validate:"min=1"`

	CORS     CORSConfig
	Security SecurityConfig
	OTEL     OTELConfig
}

// LoadDotenv loads KEY=VALUE files (".env" when none is given) into the
// environment. Variables already set win and missing files are skipped.
func LoadDotenv(files ...string) {
	if len(files) == 0 {
		files = []string{".env"}
	}
	for _, f := range files {
		if _, err := os.Stat(f); err == nil {
			_ = godotenv.Load(f)
		}
	}
}

// Load reads the environment, applies defaults and validates. Unparseable
// values are errors, not silently replaced by the default.
func Load() (Config, error) {
	var e envReader
	cfg := Config{
		Port:              e.str("PORT", "8080"),
		ReadTimeout:       e.duration("READ_TIMEOUT", 15*time.Second),
		ReadHeaderTimeout: e.duration("READ_HEADER_TIMEOUT", 10*time.Second),
		WriteTimeout:      e.duration("WRITE_TIMEOUT", 20*time.Second),
		IdleTimeout:       e.duration("IDLE_TIMEOUT", 60*time.Second),
		MaxHeaderBytes:    e.integer("MAX_HEADER_BYTES", 1<<20),
		GinMode:           ginMode(e.str("GIN_MODE", "release")),
		ShutdownTimeout:   e.duration("SHUTDOWN_TIMEOUT", 15*time.Second),

		LogLevel:       logLevel(e.str("LOG_LEVEL", "info")),
		LogPretty:      e.flag("LOG_PRETTY", false),
		SwaggerEnabled: e.flag("SWAGGER_ENABLED", false),
		APIBasePath:    normalizeBasePath(e.str("API_BASE_PATH", "/api/v1")),

		DBPath: e.str("DB_PATH", "app.db"),

		Auth: AuthConfig{
			TokenSecret: e.str("ACCESS_TOKEN_SECRET", ""),
			TokenTTL:    e.duration("ACCESS_TOKEN_TTL", time.Hour),
			Issuer:      e.str("TOKEN_ISSUER", "shop-chat"),
			HashCost:    e.integer("HASH_COST", 10),
		},

		Chat: ChatConfig{
			MaxBodyRunes:  e.integer("CHAT_MAX_BODY_RUNES", 2000),
			SendBuffer:    e.integer("CHAT_SEND_BUFFER", 64),
			PingInterval:  e.duration("CHAT_PING_INTERVAL", 30*time.Second),
			WriteTimeout:  e.duration("CHAT_WRITE_TIMEOUT", 10*time.Second),
			MaxFrameBytes: int64(e.integer("CHAT_MAX_FRAME_BYTES", 64<<10)),
			MsgRPS:        e.number("CHAT_MSG_RPS", 10),
			MsgBurst:      e.integer("CHAT_MSG_BURST", 20),
			EventTimeout:  e.duration("CHAT_EVENT_TIMEOUT", 10*time.Second),
			DedupTTL:      e.duration("CHAT_DEDUP_TTL", 10*time.Minute),
		},

		RateRPS:   e.number("RATE_RPS", 5),
		RateBurst: e.integer("RATE_BURST", 10),

		CORS: CORSConfig{AllowedOrigins: splitCSV(e.str("CORS_ALLOWED_ORIGINS", ""))},
		Security: SecurityConfig{
			EnableHSTS: e.flag("ENABLE_HSTS", false),
			HSTSMaxAge: e.duration("HSTS_MAX_AGE", 180*24*time.Hour),
		},

		OTEL: OTELConfig{
			Enabled:     e.flag("OTEL_ENABLED", false),
			Endpoint:    e.str("OTEL_EXPORTER_OTLP_ENDPOINT", "localhost:4317"),
			Insecure:    e.flag("OTEL_EXPORTER_OTLP_INSECURE", true),
			ServiceName: e.str("OTEL_SERVICE_NAME", "shop-chat"),
			SampleRatio: e.number("OTEL_TRACES_SAMPLER_ARG", 1),
		},
	}
	if len(e.errs) > 0 {
		return cfg, errors.Join(e.errs...)
	}
	return cfg, Validate(cfg)
}

var validate = func() *validator.Validate {
	v := validator.New(validator.WithRequiredStructEnabled())
	v.RegisterTagNameFunc(func(f reflect.StructField) string {
		if name := f.Tag.Get("env"); name != "" {
			return name
		}
		return f.Name
	})
	return v
}()

// Validate checks cfg against its struct tags. Each violation becomes one
// error naming the environment variable.
func Validate(cfg Config) error {
	err := validate.Struct(cfg)
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return err
	}
	out := make([]error, 0, len(verrs))
	for _, fe := range verrs {
		out = append(out, fmt.Errorf("%s %s", fe.Field(), rule(fe)))
	}
	return errors.Join(out...)
}

func rule(fe validator.FieldError) string {
	switch fe.Tag() {
	case "required", "required_if":
		return "must be set"
	case "oneof":
		return "must be one of: " + strings.ReplaceAll(fe.Param(), " ", ", ")
	case "gt":
		return "must be > " + fe.Param()
	case "gte", "min":
		return "must be >= " + fe.Param()
	case "lte", "max":
		return "must be <= " + fe.Param()
	}
	return "is invalid (" + fe.Tag() + ")"
}

// envReader reads typed variables and remembers every parse failure.
type envReader struct{ errs []error }

func (e *envReader) lookup(k string) (string, bool) {
	v, ok := os.LookupEnv(k)
	v = strings.TrimSpace(v)
	return v, ok && v != ""
}

func (e *envReader) fail(k, v, kind string) {
	e.errs = append(e.errs, fmt.Errorf("%s: %q is not a valid %s", k, v, kind))
}

func (e *envReader) str(k, def string) string {
	if v, ok := e.lookup(k); ok {
		return v
	}
	return def
}

func (e *envReader) integer(k string, def int) int {
	v, ok := e.lookup(k)
	if !ok {
		return def
	}
	i, err := strconv.Atoi(v)
	if err != nil {
		e.fail(k, v, "integer")
		return def
	}
	return i
}

func (e *envReader) number(k string, def float64) float64 {
	v, ok := e.lookup(k)
	if !ok {
		return def
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil {
		e.fail(k, v, "number")
		return def
	}
	return f
}

func (e *envReader) duration(k string, def time.Duration) time.Duration {
	v, ok := e.lookup(k)
	if !ok {
		return def
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		e.fail(k, v, "duration")
		return def
	}
	return d
}

func (e *envReader) flag(k string, def bool) bool {
	v, ok := e.lookup(k)
	if !ok {
		return def
	}
	switch strings.ToLower(v) {
	case "1", "true", "yes", "y", "on":
		return true
	case "0", "false", "no", "n", "off":
		return false
	}
	e.fail(k, v, "boolean")
	return def
}

func logLevel(s string) string {
	s = strings.ToLower(s)
	if s == "warning" {
		return "warn"
	}
	return s
}

// ginMode falls back to release for anything gin does not know.
func ginMode(s string) string {
	switch s = strings.ToLower(s); s {
	case "debug", "release", "test":
		return s
	}
	return "release"
}

func splitCSV(s string) []string {
	var out []string
	for _, p := range strings.Split(s, ",") {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}

// normalizeBasePath returns p with a leading slash and no trailing slash;
// empty becomes "/".
func normalizeBasePath(p string) string {
	p = strings.Trim(strings.TrimSpace(p), "/")
	return "/" + p
}
