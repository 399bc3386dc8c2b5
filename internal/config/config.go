package config

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"
)

// ErrInvalidConfig is returned by Validate for unusable settings.
var ErrInvalidConfig = errors.New("invalid config")

// Config holds all build configuration. Relative paths are resolved against Root.
type Config struct {
	Root       string `yaml:"-"`
	Projects   string `yaml:"projects"`
	FilterTags string `yaml:"filter_tags"`
	ContentDir string `yaml:"content_dir"`
	Templates  string `yaml:"templates"`
	Layout     string `yaml:"layout"`
	StaticDir  string `yaml:"static_dir"`
	Favicon    string `yaml:"favicon"`
	OutputDir  string `yaml:"output_dir"`

	// BasePath is the prefix for asset links in every generated page. Empty
	// means the site is deployed at a web root.
	BasePath string `yaml:"base_path"`

	ServerAddr string      `yaml:"server_addr"`
	Watch      WatchConfig `yaml:"watch"`
}

// WatchConfig holds watch-mode settings
type WatchConfig struct {
	DebounceMs int `yaml:"debounce_ms"`
}

// DefaultConfig returns the layout the repository ships with
func DefaultConfig(root string) *Config {
	return &Config{
		Root:       root,
		Projects:   "data/projects.json",
		FilterTags: "data/filter-tags.json",
		ContentDir: "data/content",
		Templates:  "web/templates",
		Layout:     "layouts/base.html.tmpl",
		StaticDir:  "web/static",
		Favicon:    "favicon.svg",
		OutputDir:  "dist",
		BasePath:   "",
		ServerAddr: ":8080",
		Watch:      WatchConfig{DebounceMs: 300},
	}
}

// Load reads a site.yaml on top of the defaults. An empty path means no
// file; the defaults are used. A path that is given must exist.
func Load(path, root string) (*Config, error) {
	cfg := DefaultConfig(root)

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("%w: failed to read %s: %w", ErrInvalidConfig, path, err)
		}

		// unknown keys are typos, not extensions
		dec := yaml.NewDecoder(bytes.NewReader(data))
		dec.KnownFields(true)
		if err := dec.Decode(cfg); err != nil && !errors.Is(err, io.EOF) {
			return nil, fmt.Errorf("%w: failed to parse %s: %w", ErrInvalidConfig, path, err)
		}
	}

	cfg.applyEnvOverrides()

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) applyEnvOverrides() {
	if dir := os.Getenv("SITE_OUTPUT_DIR"); dir != "" {
		c.OutputDir = dir
	}
	if base, ok := os.LookupEnv("SITE_BASE_PATH"); ok {
		c.BasePath = base
	}
	if addr := os.Getenv("SERVER_ADDR"); addr != "" {
		c.ServerAddr = addr
	}
}

// Validate checks that every required setting is present
func (c *Config) Validate() error {
	required := []struct{ name, value string }{
		{"projects", c.Projects},
		{"filter_tags", c.FilterTags},
		{"templates", c.Templates},
		{"layout", c.Layout},
		{"static_dir", c.StaticDir},
		{"output_dir", c.OutputDir},
	}
	for _, r := range required {
		if strings.TrimSpace(r.value) == "" {
			return fmt.Errorf("%w: %s must be set", ErrInvalidConfig, r.name)
		}
	}
	if c.BasePath != "" && (!strings.HasPrefix(c.BasePath, "/") || strings.HasSuffix(c.BasePath, "/")) {
		return fmt.Errorf("%w: base_path %q must start with / and not end with /", ErrInvalidConfig, c.BasePath)
	}
	if c.Watch.DebounceMs < 0 {
		return fmt.Errorf("%w: watch.debounce_ms must not be negative", ErrInvalidConfig)
	}
	return nil
}

// Path resolves a configured path against Root
func (c *Config) Path(p string) string {
	if p == "" || filepath.IsAbs(p) {
		return p
	}
	return filepath.Join(c.Root, p)
}

// ProjectsPath returns the resolved projects definition path
func (c *Config) ProjectsPath() string { return c.Path(c.Projects) }

// FilterTagsPath returns the resolved filter-tags definition path
func (c *Config) FilterTagsPath() string { return c.Path(c.FilterTags) }

// ContentPath returns the resolved content fragment directory
func (c *Config) ContentPath() string { return c.Path(c.ContentDir) }

// TemplatesPath returns the resolved template root
func (c *Config) TemplatesPath() string { return c.Path(c.Templates) }

// StaticPath returns the resolved static asset source
func (c *Config) StaticPath() string { return c.Path(c.StaticDir) }

// OutputPath returns the resolved output directory
func (c *Config) OutputPath() string { return c.Path(c.OutputDir) }

// SourceDirs lists every directory the build reads from
func (c *Config) SourceDirs() []string {
	dirs := []string{
		filepath.Dir(c.ProjectsPath()),
		filepath.Dir(c.FilterTagsPath()),
		c.TemplatesPath(),
		c.StaticPath(),
	}
	if c.ContentDir != "" {
		dirs = append(dirs, c.ContentPath())
	}
	return dirs
}
