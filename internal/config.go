package internal

import (
	"errors"
	"fmt"
	"log/slog"
	"net/url"
	"time"

	validation "github.com/go-ozzo/ozzo-validation/v4"

	"github.com/starford/lifeline/internal/index"
	"github.com/starford/lifeline/internal/lifeline"
)

// Auth modes.
const (
	AuthModeDisabled = "disabled"
	AuthModeToken    = "token"
)

// Source kinds.
const (
	SourceKindHTTP = "http"
	SourceKindFS   = "fs"
)

// Config represents the application configuration.
type Config struct {
	App    ApplicationConfig `yaml:"app"`
	Source SourceConfig      `yaml:"source"`
	Render RenderConfig      `yaml:"render"`
	Index  IndexConfig       `yaml:"index"`
	Auth   AuthConfig        `yaml:"auth"`
	SSE    SSEConfig         `yaml:"sse"`
}

// Validate validates the configuration.
func (c *Config) Validate() error {
	if err := c.App.Validate(); err != nil {
		return err
	}
	if err := c.Source.Validate(); err != nil {
		return err
	}
	if err := c.Render.Validate(); err != nil {
		return err
	}
	if err := c.Index.Validate(); err != nil {
		return err
	}
	if err := c.SSE.Validate(); err != nil {
		return err
	}
	return c.Auth.Validate()
}

// ApplicationConfig holds application-level configuration.
type ApplicationConfig struct {
	LogLevel slog.Level `yaml:"log_level"`
	// Timezone is an IANA name; dates without an offset and shortcut windows
	// are interpreted in it.
	Timezone string     `yaml:"timezone"`
	HTTP     HTTPConfig `yaml:"http"`
}

// Validate validates the application configuration.
func (c *ApplicationConfig) Validate() error {
	if _, err := c.Location(); err != nil {
		return fmt.Errorf("app: timezone: %w", err)
	}
	return c.HTTP.Validate()
}

// Location returns the configured time zone, UTC when unset.
func (c *ApplicationConfig) Location() (*time.Location, error) {
	if c.Timezone == "" {
		return time.UTC, nil
	}
	return time.LoadLocation(c.Timezone)
}

// HTTPConfig holds HTTP server configuration.
type HTTPConfig struct {
	Port int `yaml:"port"`
}

// Address returns HTTP server address.
func (c *HTTPConfig) Address() string {
	return fmt.Sprintf(":%d", c.Port)
}

// Validate validates the HTTP configuration.
func (c *HTTPConfig) Validate() error {
	return validation.ValidateStruct(c,
		validation.Field(&c.Port, validation.Required, validation.Min(1), validation.Max(65535)),
	)
}

// SourceConfig selects where timelines are read from.
type SourceConfig struct {
	Kind           string           `yaml:"kind"`
	MaxConcurrency int              `yaml:"max_concurrency"`
	HTTP           HTTPSourceConfig `yaml:"http"`
	FS             FSSourceConfig   `yaml:"fs"`
}

// Validate validates the source configuration.
func (c *SourceConfig) Validate() error {
	if err := validation.ValidateStruct(c,
		validation.Field(&c.Kind, validation.Required, validation.In(SourceKindHTTP, SourceKindFS)),
		validation.Field(&c.MaxConcurrency, validation.Min(0)),
	); err != nil {
		return fmt.Errorf("source: %w", err)
	}
	switch c.Kind {
	case SourceKindHTTP:
		return c.HTTP.Validate()
	default:
		return c.FS.Validate()
	}
}

// HTTPSourceConfig points at the timeline REST API.
type HTTPSourceConfig struct {
	// BaseURL is the API root, e.g. https://life.example.com/api.
	BaseURL               string        `yaml:"base_url"`
	Token                 string        `yaml:"token"`
	Timeout               time.Duration `yaml:"timeout"`
	IncludeCollaborations bool          `yaml:"include_collaborations"`
}

// Validate validates the HTTP source configuration.
func (c *HTTPSourceConfig) Validate() error {
	if err := validation.ValidateStruct(c,
		validation.Field(&c.BaseURL, validation.Required, validation.By(absoluteURL)),
		validation.Field(&c.Timeout, validation.Min(time.Duration(0))),
	); err != nil {
		return fmt.Errorf("source.http: %w", err)
	}
	return nil
}

func absoluteURL(value any) error {
	s, _ := value.(string)
	u, err := url.Parse(s)
	if err != nil {
		return err
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return errors.New("must be an http or https URL")
	}
	if u.Host == "" {
		return errors.New("must include a host")
	}
	return nil
}

// FSSourceConfig points at a local Markdown export.
type FSSourceConfig struct {
	Path     string        `yaml:"path"`
	Watch    bool          `yaml:"watch"`
	Debounce time.Duration `yaml:"debounce"`
}

// Validate validates the file source configuration.
func (c *FSSourceConfig) Validate() error {
	if err := validation.ValidateStruct(c,
		validation.Field(&c.Path, validation.Required),
		validation.Field(&c.Debounce, validation.Min(time.Duration(0))),
	); err != nil {
		return fmt.Errorf("source.fs: %w", err)
	}
	return nil
}

// RenderConfig holds defaults of the SVG surface.
type RenderConfig struct {
	Width      int      `yaml:"width"`
	Height     int      `yaml:"height"`
	LabelWidth int      `yaml:"label_width"`
	RowHeight  int      `yaml:"row_height"`
	Palette    []string `yaml:"palette"`
	Thumbnails bool     `yaml:"thumbnails"`
}

// Validate validates the render configuration.
func (c *RenderConfig) Validate() error {
	if err := validation.ValidateStruct(c,
		validation.Field(&c.Width, validation.Required, validation.Min(1)),
		validation.Field(&c.Height, validation.Required, validation.Min(1)),
		validation.Field(&c.LabelWidth, validation.Min(0)),
		validation.Field(&c.RowHeight, validation.Min(0)),
		validation.Field(&c.Palette, validation.Each(validation.Required)),
	); err != nil {
		return fmt.Errorf("render: %w", err)
	}
	return nil
}

// PaletteOrDefault returns the configured palette or the built-in one.
func (c *RenderConfig) PaletteOrDefault() lifeline.Palette {
	if len(c.Palette) == 0 {
		return lifeline.DefaultPalette
	}
	return lifeline.Palette(c.Palette)
}

// IndexConfig holds the search index location. ":memory:" keeps it in
// process memory.
type IndexConfig struct {
	Path string `yaml:"path"`
}

// Validate validates the index configuration.
func (c *IndexConfig) Validate() error {
	return validation.ValidateStruct(c,
		validation.Field(&c.Path, validation.Required),
	)
}

// SSEConfig holds server-sent events configuration.
type SSEConfig struct {
	// FrameThrottle is the minimum interval between frame.updated events of
	// one session.
	FrameThrottle time.Duration `yaml:"frame_throttle"`
}

// Validate validates the SSE configuration.
func (c *SSEConfig) Validate() error {
	return validation.ValidateStruct(c,
		validation.Field(&c.FrameThrottle, validation.Min(time.Duration(0))),
	)
}

// AuthConfig holds authentication configuration.
//
// Mode controls how authentication is enforced:
//   - "disabled" (default): no authentication required, suitable for local dev.
//   - "token": Bearer token authentication; Token must be non-empty.
type AuthConfig struct {
	Mode  string `yaml:"mode"`
	Token string `yaml:"token"`
}

// Validate validates the auth configuration.
func (c *AuthConfig) Validate() error {
	// Normalise empty mode to "disabled" for backward compatibility.
	if c.Mode == "" {
		c.Mode = AuthModeDisabled
	}
	if err := validation.ValidateStruct(c,
		validation.Field(&c.Mode, validation.Required, validation.In(AuthModeDisabled, AuthModeToken)),
	); err != nil {
		return err
	}
	if c.Mode == AuthModeToken && c.Token == "" {
		return fmt.Errorf("auth: mode is %q but token is empty", AuthModeToken)
	}
	return nil
}

// AuthEnabled returns true when authentication is active.
func (c *AuthConfig) AuthEnabled() bool {
	return c.Mode == AuthModeToken
}

// NewDefaultConfig returns a new Config with sensible default values.
func NewDefaultConfig() *Config {
	return &Config{
		App: ApplicationConfig{
			LogLevel: slog.LevelInfo,
			HTTP: HTTPConfig{
				Port: 8080,
			},
		},
		Source: SourceConfig{
			Kind:           SourceKindHTTP,
			MaxConcurrency: 8,
			HTTP: HTTPSourceConfig{
				BaseURL: "http://localhost:3000/api",
				Timeout: 10 * time.Second,
			},
			FS: FSSourceConfig{
				Path:     "./timelines",
				Watch:    true,
				Debounce: 200 * time.Millisecond,
			},
		},
		Render: RenderConfig{
			Width:  1200,
			Height: 480,
		},
		Index: IndexConfig{
			Path: index.Memory,
		},
		SSE: SSEConfig{
			FrameThrottle: 250 * time.Millisecond,
		},
		Auth: AuthConfig{
			Mode: AuthModeDisabled,
		},
	}
}
