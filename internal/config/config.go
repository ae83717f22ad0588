// Package config contains the loader and strongly typed model for folio.yaml.
package config

import (
	"bytes"
	"errors"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"text/template"
	"time"

	envparse "github.com/caarlos0/env/v11"
	"gopkg.in/yaml.v3"

	"github.com/folio-blog/folioctl/internal/env"
)

// EnvPrefix is the prefix of environment variables that override folio.yaml.
const EnvPrefix = "FOLIO_"

// Config is the client configuration after template rendering, env-file
// loading and environment overrides.
type Config struct {
	// APIBaseURL is the root of the folio REST API (e.g. "https://api.example.dev").
	APIBaseURL string `yaml:"apiBaseURL" env:"API_BASE_URL"`
	// SiteURL is the public URL of the blog front-end, used for sitemaps and redirects.
	SiteURL string `yaml:"siteURL,omitempty" env:"SITE_URL"`
	// EnvFiles lists .env files to load before rendering. Prefix with "?" for optional files.
	EnvFiles []string `yaml:"envFiles,omitempty"`
	// LogLevel is the default log level when --log-level is not given.
	LogLevel string `yaml:"logLevel,omitempty" env:"LOG_LEVEL"`
	// OAuth configures the GitHub login handshake.
	OAuth OAuthConfig `yaml:"oauth,omitempty" envPrefix:"OAUTH_"`
	// State describes where the session is persisted.
	State StateConfig `yaml:"state,omitempty" envPrefix:"STATE_"`
	// HTTP tunes the API client.
	HTTP HTTPConfig `yaml:"http,omitempty" envPrefix:"HTTP_"`
	// Comments holds comment thread limits.
	Comments CommentsConfig `yaml:"comments,omitempty" envPrefix:"COMMENTS_"`
	// Sitemap configures sitemap generation.
	Sitemap SitemapConfig `yaml:"sitemap,omitempty" envPrefix:"SITEMAP_"`
}

// OAuthConfig describes the identity provider and the local callback.
type OAuthConfig struct {
	// ClientID is the public OAuth application ID. The secret stays on the backend.
	ClientID string `yaml:"clientID" env:"CLIENT_ID"`
	// AuthorizeURL is the provider authorization endpoint.
	AuthorizeURL string `yaml:"authorizeURL,omitempty" env:"AUTHORIZE_URL"`
	// TokenURL is the provider token endpoint. Only used to describe the endpoint;
	// the code exchange always goes through the folio backend.
	TokenURL string `yaml:"tokenURL,omitempty" env:"TOKEN_URL"`
	// CallbackURL is the fixed redirect_uri registered with the provider.
	CallbackURL string `yaml:"callbackURL,omitempty" env:"CALLBACK_URL"`
	// Scopes requested from the provider.
	Scopes []string `yaml:"scopes,omitempty" env:"SCOPES"`
	// LoginTimeout bounds how long "auth login" waits for the redirect.
	LoginTimeout time.Duration `yaml:"loginTimeout,omitempty" env:"LOGIN_TIMEOUT"`
	// ErrorRedirectDelay is how long the failure page waits before redirecting home.
	ErrorRedirectDelay time.Duration `yaml:"errorRedirectDelay,omitempty" env:"ERROR_REDIRECT_DELAY"`
}

// StateConfig describes the durable state backend.
type StateConfig struct {
	// Backend is one of sqlite (default), redis or memory.
	Backend string `yaml:"backend,omitempty" env:"BACKEND"`
	// Path is the SQLite database file.
	Path string `yaml:"path,omitempty" env:"PATH"`
	// Namespace isolates several profiles sharing one backend.
	Namespace string `yaml:"namespace,omitempty" env:"NAMESPACE"`
	// RedisAddr is host:port of the Redis server.
	RedisAddr string `yaml:"redisAddr,omitempty" env:"REDIS_ADDR"`
	// RedisPassword authenticates against Redis.
	RedisPassword string `yaml:"redisPassword,omitempty" env:"REDIS_PASSWORD"`
	// RedisDB selects the Redis logical database.
	RedisDB int `yaml:"redisDB,omitempty" env:"REDIS_DB"`
}

// HTTPConfig tunes the REST client.
type HTTPConfig struct {
	// Timeout is the per-request timeout.
	Timeout time.Duration `yaml:"timeout,omitempty" env:"TIMEOUT"`
	// RateLimit is the sustained number of requests per second; a negative value disables limiting.
	RateLimit float64 `yaml:"rateLimit,omitempty" env:"RATE_LIMIT"`
	// Burst is the token bucket size.
	Burst int `yaml:"burst,omitempty" env:"BURST"`
	// UserAgent is sent with every request.
	UserAgent string `yaml:"userAgent,omitempty" env:"USER_AGENT"`
}

// CommentsConfig holds comment thread limits.
type CommentsConfig struct {
	// PageLimit is the number of top-level comments requested per page.
	PageLimit int `yaml:"pageLimit,omitempty" env:"PAGE_LIMIT"`
	// MaxLength is the maximum comment length in characters.
	MaxLength int `yaml:"maxLength,omitempty" env:"MAX_LENGTH"`
}

// SitemapConfig configures sitemap generation.
type SitemapConfig struct {
	// StaticPaths are site paths always listed in the sitemap.
	StaticPaths []string `yaml:"staticPaths,omitempty" env:"STATIC_PATHS"`
	// Output is the default output file; "-" writes to stdout.
	Output string `yaml:"output,omitempty" env:"OUTPUT"`
	// PostsPageSize is the page size used when walking the post listing.
	PostsPageSize int `yaml:"postsPageSize,omitempty" env:"POSTS_PAGE_SIZE"`
}

const (
	DefaultAuthorizeURL       = "https://github.com/login/oauth/authorize"
	DefaultTokenURL           = "https://github.com/login/oauth/access_token"
	DefaultCallbackURL        = "http://127.0.0.1:8765/auth/callback"
	DefaultLoginTimeout       = 5 * time.Minute
	DefaultErrorRedirectDelay = 3 * time.Second
	DefaultHTTPTimeout        = 15 * time.Second
	DefaultRateLimit          = 10
	DefaultBurst              = 5
	DefaultUserAgent          = "folioctl"
	DefaultPageLimit          = 20
	DefaultMaxCommentLength   = 1000
	DefaultPostsPageSize      = 50
	DefaultStateNamespace     = "folio"
)

// DefaultScopes are requested when oauth.scopes is empty.
var DefaultScopes = []string{"read:user", "user:email"}

// DefaultStaticPaths are listed in the sitemap when sitemap.staticPaths is empty.
var DefaultStaticPaths = []string{"/", "/blog", "/about", "/projects"}

// LoadOptions influences how folio.yaml is located and rendered.
type LoadOptions struct {
	// AllowMissing lets Load continue with defaults and environment when the file does not exist.
	AllowMissing bool
	// Environment replaces the process environment (tests). Nil means os.Environ.
	Environment env.Vars
}

// TemplateContext is the data available to folio.yaml templates.
type TemplateContext struct {
	// ConfigDir is the directory containing folio.yaml.
	ConfigDir string
	// EnvMap holds the merged OS and env-file variables.
	EnvMap env.Vars
	// Now is the rendering timestamp (UTC).
	Now time.Time
}

type rawHeader struct {
	EnvFiles []string `yaml:"envFiles"`
}

// Load reads, renders and parses folio.yaml, applies FOLIO_* overrides and
// fills defaults.
func Load(path string, opts LoadOptions) (*Config, error) {
	absPath, err := filepath.Abs(path)
	if err != nil {
		return nil, fmt.Errorf("resolve config path %q: %w", path, err)
	}

	osVars := opts.Environment
	if osVars == nil {
		osVars = env.FromOS()
	}

	rawBytes, err := os.ReadFile(absPath)
	if err != nil {
		if !(opts.AllowMissing && errors.Is(err, os.ErrNotExist)) {
			return nil, fmt.Errorf("read config %q: %w", absPath, err)
		}
		rawBytes = nil
	}

	var header rawHeader
	if err := yaml.Unmarshal(rawBytes, &header); err != nil {
		return nil, fmt.Errorf("parse top-level config fields: %w", err)
	}

	baseDir := filepath.Dir(absPath)
	envFileVars, err := env.LoadEnvFiles(baseDir, header.EnvFiles)
	if err != nil {
		return nil, err
	}
	envMap := env.Merge(osVars, envFileVars)

	ctx := TemplateContext{
		ConfigDir: baseDir,
		EnvMap:    envMap,
		Now:       time.Now().UTC(),
	}

	rendered, err := RenderTemplate("folio.yaml", rawBytes, ctx)
	if err != nil {
		return nil, err
	}

	var cfg Config
	if err := yaml.Unmarshal(rendered, &cfg); err != nil {
		return nil, fmt.Errorf("parse rendered folio.yaml: %w", err)
	}

	if err := envparse.ParseWithOptions(&cfg, envparse.Options{
		Prefix:      EnvPrefix,
		Environment: envMap.WithPrefix(EnvPrefix),
	}); err != nil {
		return nil, fmt.Errorf("apply %s* environment overrides: %w", EnvPrefix, err)
	}

	cfg.applyDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// RenderTemplate renders raw as a Go template with the folio template functions.
func RenderTemplate(name string, raw []byte, ctx TemplateContext) ([]byte, error) {
	tmpl, err := template.New(name).Funcs(buildFuncMap(ctx)).Option("missingkey=error").Parse(string(raw))
	if err != nil {
		return nil, fmt.Errorf("parse template %s: %w", name, err)
	}
	var buf bytes.Buffer
	if err := tmpl.Execute(&buf, ctx); err != nil {
		return nil, fmt.Errorf("render template %s: %w", name, err)
	}
	return buf.Bytes(), nil
}

func buildFuncMap(ctx TemplateContext) template.FuncMap {
	return template.FuncMap{
		"default": funcDef,
		"envOr":   funcEnvOr(ctx.EnvMap),
		"trimSuffix": func(value, suffix string) string {
			return strings.TrimSuffix(value, suffix)
		},
	}
}

// funcDef returns def when value is empty.
func funcDef(value, def string) string {
	if strings.TrimSpace(value) == "" {
		return def
	}
	return value
}

func funcEnvOr(envMap env.Vars) func(key, def string) string {
	return func(key, def string) string {
		if v, ok := envMap[key]; ok && strings.TrimSpace(v) != "" {
			return v
		}
		return def
	}
}

func (c *Config) applyDefaults() {
	c.APIBaseURL = strings.TrimRight(strings.TrimSpace(c.APIBaseURL), "/")
	c.SiteURL = strings.TrimRight(strings.TrimSpace(c.SiteURL), "/")

	if c.OAuth.AuthorizeURL == "" {
		c.OAuth.AuthorizeURL = DefaultAuthorizeURL
	}
	if c.OAuth.TokenURL == "" {
		c.OAuth.TokenURL = DefaultTokenURL
	}
	if c.OAuth.CallbackURL == "" {
		c.OAuth.CallbackURL = DefaultCallbackURL
	}
	if len(c.OAuth.Scopes) == 0 {
		c.OAuth.Scopes = append([]string(nil), DefaultScopes...)
	}
	if c.OAuth.LoginTimeout <= 0 {
		c.OAuth.LoginTimeout = DefaultLoginTimeout
	}
	if c.OAuth.ErrorRedirectDelay <= 0 {
		c.OAuth.ErrorRedirectDelay = DefaultErrorRedirectDelay
	}

	if c.State.Backend == "" {
		c.State.Backend = "sqlite"
	}
	if c.State.Namespace == "" {
		c.State.Namespace = DefaultStateNamespace
	}
	if c.State.Path == "" {
		c.State.Path = defaultStatePath()
	}

	if c.HTTP.Timeout <= 0 {
		c.HTTP.Timeout = DefaultHTTPTimeout
	}
	if c.HTTP.RateLimit < 0 {
		c.HTTP.RateLimit = 0
	} else if c.HTTP.RateLimit == 0 {
		c.HTTP.RateLimit = DefaultRateLimit
	}
	if c.HTTP.Burst <= 0 {
		c.HTTP.Burst = DefaultBurst
	}
	if c.HTTP.UserAgent == "" {
		c.HTTP.UserAgent = DefaultUserAgent
	}

	if c.Comments.PageLimit <= 0 {
		c.Comments.PageLimit = DefaultPageLimit
	}
	if c.Comments.MaxLength <= 0 {
		c.Comments.MaxLength = DefaultMaxCommentLength
	}

	if len(c.Sitemap.StaticPaths) == 0 {
		c.Sitemap.StaticPaths = append([]string(nil), DefaultStaticPaths...)
	}
	if c.Sitemap.Output == "" {
		c.Sitemap.Output = "-"
	}
	if c.Sitemap.PostsPageSize <= 0 {
		c.Sitemap.PostsPageSize = DefaultPostsPageSize
	}
}

// Validate checks required fields and URL shapes.
func (c *Config) Validate() error {
	if c.APIBaseURL == "" {
		return fmt.Errorf("apiBaseURL must be set (or %sAPI_BASE_URL)", EnvPrefix)
	}
	if err := requireAbsURL("apiBaseURL", c.APIBaseURL); err != nil {
		return err
	}
	if c.SiteURL != "" {
		if err := requireAbsURL("siteURL", c.SiteURL); err != nil {
			return err
		}
	}
	if err := requireAbsURL("oauth.callbackURL", c.OAuth.CallbackURL); err != nil {
		return err
	}
	if err := requireAbsURL("oauth.authorizeURL", c.OAuth.AuthorizeURL); err != nil {
		return err
	}
	return nil
}

func requireAbsURL(field, raw string) error {
	u, err := url.Parse(raw)
	if err != nil {
		return fmt.Errorf("%s: %w", field, err)
	}
	if (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return fmt.Errorf("%s must be an absolute http(s) URL, got %q", field, raw)
	}
	return nil
}

func defaultStatePath() string {
	dir, err := os.UserConfigDir()
	if err != nil || dir == "" {
		dir = "."
	}
	return filepath.Join(dir, "folioctl", "state.db")
}
