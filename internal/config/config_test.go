package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// TestMain clears variables a developer shell may carry and supplies the one
// setting without a default.
func TestMain(m *testing.M) {
	for _, kv := range os.Environ() {
		k, _, _ := strings.Cut(kv, "=")
		if strings.HasPrefix(k, "CHAT_") || strings.HasPrefix(k, "OTEL_") || k == "PORT" || k == "LOG_LEVEL" {
			os.Unsetenv(k)
		}
	}
	os.Setenv("ACCESS_TOKEN_SECRET", "test-secret")
	os.Exit(m.Run())
}

func TestLoad_Defaults(t *testing.T) {
	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "8080", cfg.Port)
	assert.Equal(t, "release", cfg.GinMode)
	assert.Equal(t, "info", cfg.LogLevel)
	assert.Equal(t, "/api/v1", cfg.APIBasePath)
	assert.Equal(t, 15*time.Second, cfg.ShutdownTimeout)
	assert.Equal(t, AuthConfig{TokenSecret: "test-secret", TokenTTL: time.Hour, Issuer: "shop-chat", HashCost: 10}, cfg.Auth)
	assert.Equal(t, ChatConfig{
		MaxBodyRunes:  2000,
		SendBuffer:    64,
		PingInterval:  30 * time.Second,
		WriteTimeout:  10 * time.Second,
		MaxFrameBytes: 64 << 10,
		MsgRPS:        10,
		MsgBurst:      20,
		EventTimeout:  10 * time.Second,
		DedupTTL:      10 * time.Minute,
	}, cfg.Chat)
	assert.Nil(t, cfg.CORS.AllowedOrigins)
	assert.False(t, cfg.OTEL.Enabled)
}

func TestLoad_Overrides(t *testing.T) {
	env := map[string]string{
		"PORT":                        "9090",
		"READ_TIMEOUT":                "2s",
		"GIN_MODE":                    "Weird",
		"LOG_LEVEL":                   "WARNING",
		"LOG_PRETTY":                  "yes",
		"SWAGGER_ENABLED":             " on ",
		"API_BASE_PATH":               "chat/v2/",
		"DB_PATH":                     "chat.sqlite",
		"ACCESS_TOKEN_TTL":            "2h",
		"HASH_COST":                   "12",
		"CHAT_SEND_BUFFER":            "8",
		"CHAT_MSG_RPS":                "2.5",
		"CHAT_DEDUP_TTL":              "1m",
		"RATE_BURST":                  "3",
		"CORS_ALLOWED_ORIGINS":        " https://a.com , , http://b ",
		"ENABLE_HSTS":                 "TRUE",
		"OTEL_ENABLED":                "1",
		"OTEL_EXPORTER_OTLP_ENDPOINT": "otel:4317",
		"OTEL_EXPORTER_OTLP_INSECURE": "off",
		"OTEL_TRACES_SAMPLER_ARG":     "0.25",
	}
	for k, v := range env {
		t.Setenv(k, v)
	}

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "9090", cfg.Port)
	assert.Equal(t, 2*time.Second, cfg.ReadTimeout)
	assert.Equal(t, "release", cfg.GinMode)
	assert.Equal(t, "warn", cfg.LogLevel)
	assert.True(t, cfg.LogPretty)
	assert.True(t, cfg.SwaggerEnabled)
	assert.Equal(t, "/chat/v2", cfg.APIBasePath)
	assert.Equal(t, "chat.sqlite", cfg.DBPath)
	assert.Equal(t, 2*time.Hour, cfg.Auth.TokenTTL)
	assert.Equal(t, 12, cfg.Auth.HashCost)
	assert.Equal(t, 8, cfg.Chat.SendBuffer)
	assert.Equal(t, 2.5, cfg.Chat.MsgRPS)
	assert.Equal(t, time.Minute, cfg.Chat.DedupTTL)
	assert.Equal(t, 3, cfg.RateBurst)
	assert.Equal(t, []string{"https://a.com", "http://b"}, cfg.CORS.AllowedOrigins)
	assert.True(t, cfg.Security.EnableHSTS)
	assert.Equal(t, OTELConfig{Enabled: true, Endpoint: "otel:4317", ServiceName: "shop-chat", SampleRatio: 0.25}, cfg.OTEL)
}

func TestLoad_ParseErrorsNameTheVariable(t *testing.T) {
	t.Setenv("RATE_RPS", "fast")
	t.Setenv("CHAT_PING_INTERVAL", "soon")
	t.Setenv("LOG_PRETTY", "maybe")

	_, err := Load()
	require.Error(t, err)
	for _, want := range []string{
		`RATE_RPS: "fast" is not a valid number`,
		`CHAT_PING_INTERVAL: "soon" is not a valid duration`,
		`LOG_PRETTY: "maybe" is not a valid boolean`,
	} {
		assert.Contains(t, err.Error(), want)
	}
}

func TestLoad_ValidationErrors(t *testing.T) {
	cases := []struct {
		key, val, want string
	}{
		{"LOG_LEVEL", "verbose", "LOG_LEVEL must be one of: debug, info, warn, error, fatal, panic"},
		{"READ_TIMEOUT", "0s", "READ_TIMEOUT must be > 0"},
		{"MAX_HEADER_BYTES", "0", "MAX_HEADER_BYTES must be > 0"},
		{"ACCESS_TOKEN_SECRET", "", "ACCESS_TOKEN_SECRET must be set"},
		{"ACCESS_TOKEN_SECRET", "   ", "ACCESS_TOKEN_SECRET must be set"},
		{"ACCESS_TOKEN_TTL", "-1m", "ACCESS_TOKEN_TTL must be > 0"},
		{"HASH_COST", "3", "HASH_COST must be >= 4"},
		{"HASH_COST", "32", "HASH_COST must be <= 31"},
		{"CHAT_MAX_BODY_RUNES", "0", "CHAT_MAX_BODY_RUNES must be >= 1"},
		{"CHAT_DEDUP_TTL", "0s", "CHAT_DEDUP_TTL must be > 0"},
		{"CHAT_MAX_FRAME_BYTES", "100", "CHAT_MAX_FRAME_BYTES must be >= 512"},
		{"CHAT_MSG_RPS", "-1", "CHAT_MSG_RPS must be >= 0"},
		{"RATE_BURST", "0", "RATE_BURST must be >= 1"},
		{"HSTS_MAX_AGE", "-1s", "HSTS_MAX_AGE must be >= 0"},
		{"OTEL_TRACES_SAMPLER_ARG", "1.5", "OTEL_TRACES_SAMPLER_ARG must be <= 1"},
	}
	for _, tc := range cases {
		t.Run(tc.key+"="+tc.val, func(t *testing.T) {
			t.Setenv(tc.key, tc.val)
			_, err := Load()
			require.Error(t, err)
			assert.Contains(t, err.Error(), tc.want)
		})
	}
}

func TestValidate_CollectsEveryViolation(t *testing.T) {
	cfg, err := Load()
	require.NoError(t, err)

	cfg.Port = ""
	cfg.DBPath = ""
	cfg.OTEL = OTELConfig{Enabled: true}
	err = Validate(cfg)
	require.Error(t, err)
	for _, want := range []string{"PORT must be set", "DB_PATH must be set", "OTEL_EXPORTER_OTLP_ENDPOINT must be set"} {
		assert.Contains(t, err.Error(), want)
	}
}

func TestLoadDotenv_DoesNotOverrideAndIgnoresMissing(t *testing.T) {
	f := filepath.Join(t.TempDir(), "test.env")
	require.NoError(t, os.WriteFile(f, []byte("DOTENV_ONLY=from-file\nDOTENV_BOTH=from-file\n"), 0o600))
	t.Setenv("DOTENV_BOTH", "from-env")
	t.Setenv("DOTENV_ONLY", "")
	os.Unsetenv("DOTENV_ONLY")

	LoadDotenv(filepath.Join(filepath.Dir(f), "missing.env"), f)

	assert.Equal(t, "from-file", os.Getenv("DOTENV_ONLY"))
	assert.Equal(t, "from-env", os.Getenv("DOTENV_BOTH"))
}

func TestHelpers(t *testing.T) {
	assert.Nil(t, splitCSV(""))
	assert.Equal(t, []string{"a", "b", "c"}, splitCSV(" a, ,b ,  c  ,"))

	for in, want := range map[string]string{"": "/", "v1": "/v1", "/v1/": "/v1", " / ": "/", "a/b": "/a/b"} {
		assert.Equal(t, want, normalizeBasePath(in), "normalizeBasePath(%q)", in)
	}
	for in, want := range map[string]string{"DEBUG": "debug", "test": "test", "prod": "release"} {
		assert.Equal(t, want, ginMode(in), "ginMode(%q)", in)
	}
	assert.Equal(t, "warn", logLevel("Warning"))

	var e envReader
	t.Setenv("X_TRUE", "Y")
	t.Setenv("X_FALSE", "off")
	assert.True(t, e.flag("X_TRUE", false))
	assert.False(t, e.flag("X_FALSE", true))
	assert.True(t, e.flag("X_UNSET", true))
	assert.Equal(t, 7, e.integer("X_UNSET", 7))
	assert.Empty(t, e.errs)
}
