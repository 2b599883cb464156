package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/kelseyhightower/envconfig"
	"gopkg.in/yaml.v3"

	"calsync/internal/fsutil"
)

// NOTE: the watch section is only read by `calsync watch`.

// SheetConfig locates the input spreadsheet.
type SheetConfig struct {
	// Path is a local .xlsx/.csv file or an http(s) URL.
	Path string `yaml:"path" json:"path" validate:"required"`
	// Name is the worksheet to read from an .xlsx file.
	Name string `yaml:"name" json:"name"`
	// CacheDir stores downloaded copies of remote sheets.
	CacheDir string `yaml:"cache_dir" json:"cache_dir"`
}

// GoogleConfig configures the Google Calendar backend.
type GoogleConfig struct {
	CredentialsFile string `yaml:"credentials_file" json:"credentials_file"`
	// Timezone is an IANA name; start/end wall times are written in and
	// read back from that zone. Empty sends times with the host's UTC offset.
	Timezone string `yaml:"timezone" json:"timezone"`
	// Endpoint overrides the API base URL; used against test servers.
	Endpoint string `yaml:"endpoint,omitempty" json:"endpoint,omitempty"`
}

// CalendarConfig selects and configures the calendar backend.
type CalendarConfig struct {
	// Backend is one of "ics", "sqlite", "google".
	Backend string `yaml:"backend" json:"backend" validate:"oneof=ics sqlite google"`
	// Name selects the calendar within the backend. For Google it is a
	// calendar ID or a calendar summary; "default" means the primary one.
	Name string `yaml:"name" json:"name"`
	// DurationMinutes is applied to every entry written in a run.
	DurationMinutes int `yaml:"duration_minutes" json:"duration_minutes" validate:"min=1"`

	ICSPath    string       `yaml:"ics_path" json:"ics_path" validate:"required_if=Backend ics"`
	SQLitePath string       `yaml:"sqlite_path" json:"sqlite_path" validate:"required_if=Backend sqlite"`
	Google     GoogleConfig `yaml:"google" json:"google"`
}

// LogConfig controls process logging.
type LogConfig struct {
	Dir    string `yaml:"dir" json:"dir"`
	Level  string `yaml:"level" json:"level" validate:"oneof=debug info warn error"`
	Format string `yaml:"format" json:"format" validate:"oneof=console json"`
}

// BasicAuthConfig holds HTTP Basic Auth credentials for the status API.
type BasicAuthConfig struct {
	Username string `yaml:"username" json:"username"`
	Password string `yaml:"password" json:"password"`
}

// WatchConfig configures periodic runs.
type WatchConfig struct {
	// Cron is a standard 5-field schedule, e.g. "*/30 * * * *".
	Cron string `yaml:"cron" json:"cron" validate:"required"`
	// Listen is the HTTP address for /health and /api/status. Empty
	// disables the server.
	Listen    string           `yaml:"listen" json:"listen"`
	BasicAuth *BasicAuthConfig `yaml:"basic_auth,omitempty" json:"basic_auth,omitempty"`
}

// Config is the top-level application configuration.
type Config struct {
	Sheet    SheetConfig    `yaml:"sheet" json:"sheet"`
	Calendar CalendarConfig `yaml:"calendar" json:"calendar"`
	Log      LogConfig      `yaml:"log" json:"log"`
	Watch    WatchConfig    `yaml:"watch" json:"watch"`
}

// envOverrides are read from CALSYNC_* variables after the file is parsed.
// Empty values leave the file setting alone.
type envOverrides struct {
	SheetPath       string `envconfig:"SHEET_PATH"`
	SheetName       string `envconfig:"SHEET_NAME"`
	Backend         string `envconfig:"BACKEND"`
	CalendarName    string `envconfig:"CALENDAR_NAME"`
	DurationMinutes int    `envconfig:"DURATION_MINUTES"`
	ICSPath         string `envconfig:"ICS_PATH"`
	SQLitePath      string `envconfig:"SQLITE_PATH"`
	GoogleCreds     string `envconfig:"GOOGLE_CREDENTIALS_FILE"`
	LogLevel        string `envconfig:"LOG_LEVEL"`
	LogDir          string `envconfig:"LOG_DIR"`
	Listen          string `envconfig:"LISTEN"`
}

// EnvPrefix is the prefix for environment overrides.
const EnvPrefix = "CALSYNC"

// DefaultConfig returns an in-memory default configuration.
func DefaultConfig() *Config {
	return &Config{
		Sheet: SheetConfig{
			Path:     "scadenze.xlsx",
			Name:     "Scadenze",
			CacheDir: "./var/sheet-cache",
		},
		Calendar: CalendarConfig{
			Backend:         "ics",
			Name:            "default",
			DurationMinutes: 60,
			ICSPath:         "./calendar.ics",
			SQLitePath:      "./calendar.db",
		},
		Log: LogConfig{
			Dir:    "logs",
			Level:  "info",
			Format: "console",
		},
		Watch: WatchConfig{
			Cron:   "0 * * * *",
			Listen: "127.0.0.1:8080",
		},
	}
}

// Normalize fills in missing/zero values with defaults so that partially
// filled configs still behave correctly.
func (c *Config) Normalize() {
	def := DefaultConfig()

	if c.Sheet.Name == "" {
		c.Sheet.Name = def.Sheet.Name
	}
	if c.Sheet.CacheDir == "" {
		c.Sheet.CacheDir = def.Sheet.CacheDir
	}

	c.Calendar.Backend = strings.ToLower(strings.TrimSpace(c.Calendar.Backend))
	if c.Calendar.Backend == "" {
		c.Calendar.Backend = def.Calendar.Backend
	}
	if c.Calendar.Name == "" {
		c.Calendar.Name = def.Calendar.Name
	}
	if c.Calendar.DurationMinutes == 0 {
		c.Calendar.DurationMinutes = def.Calendar.DurationMinutes
	}

	c.Log.Level = strings.ToLower(strings.TrimSpace(c.Log.Level))
	if c.Log.Level == "" {
		c.Log.Level = def.Log.Level
	}
	if c.Log.Level == "warning" {
		c.Log.Level = "warn"
	}
	c.Log.Format = strings.ToLower(strings.TrimSpace(c.Log.Format))
	if c.Log.Format == "" {
		c.Log.Format = def.Log.Format
	}

	if c.Watch.Cron == "" {
		c.Watch.Cron = def.Watch.Cron
	}
}

// Validate checks field constraints after Normalize.
func (c *Config) Validate() error {
	v := validator.New(validator.WithRequiredStructEnabled())
	if err := v.Struct(c); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) {
			msgs := make([]string, 0, len(verrs))
			for _, fe := range verrs {
				msgs = append(msgs, fmt.Sprintf("%s failed %q", fe.Namespace(), fe.Tag()))
			}
			return fmt.Errorf("invalid config: %s", strings.Join(msgs, "; "))
		}
		return fmt.Errorf("invalid config: %w", err)
	}
	return nil
}

// ApplyEnv overlays CALSYNC_* environment variables onto c.
func (c *Config) ApplyEnv() error {
	var ov envOverrides
	if err := envconfig.Process(EnvPrefix, &ov); err != nil {
		return fmt.Errorf("read environment: %w", err)
	}
	setIf := func(dst *string, v string) {
		if v != "" {
			*dst = v
		}
	}
	setIf(&c.Sheet.Path, ov.SheetPath)
	setIf(&c.Sheet.Name, ov.SheetName)
	setIf(&c.Calendar.Backend, ov.Backend)
	setIf(&c.Calendar.Name, ov.CalendarName)
	setIf(&c.Calendar.ICSPath, ov.ICSPath)
	setIf(&c.Calendar.SQLitePath, ov.SQLitePath)
	setIf(&c.Calendar.Google.CredentialsFile, ov.GoogleCreds)
	setIf(&c.Log.Level, ov.LogLevel)
	setIf(&c.Log.Dir, ov.LogDir)
	setIf(&c.Watch.Listen, ov.Listen)
	if ov.DurationMinutes != 0 {
		c.Calendar.DurationMinutes = ov.DurationMinutes
	}
	return nil
}

// Load loads configuration from the given YAML path.
//
// Behavior:
//   - If the file does not exist, a default config is written with 0600
//     perms and returned.
//   - Otherwise the YAML is unmarshalled into Config.
//   - In both cases environment overrides are applied, then defaults are
//     normalized and the result validated.
func Load(path string) (*Config, error) {
	if path == "" {
		return nil, errors.New("config path is empty")
	}

	var cfg *Config
	data, err := os.ReadFile(path)
	switch {
	case errors.Is(err, fs.ErrNotExist):
		// First run: create default config file.
		cfg = DefaultConfig()
		if err := Save(path, cfg); err != nil {
			return cfg, err
		}
	case err != nil:
		return nil, err
	default:
		cfg = &Config{}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parse %s: %w", path, err)
		}
	}

	if err := cfg.ApplyEnv(); err != nil {
		return nil, err
	}
	cfg.Normalize()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Save writes cfg to path atomically via a temp file + rename and leaves
// the final file with 0600 permissions.
func Save(path string, cfg *Config) error {
	if path == "" {
		return errors.New("config path is empty")
	}
	if cfg == nil {
		return errors.New("config is nil")
	}

	cfg.Normalize()

	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return err
	}

	data, err := yaml.Marshal(cfg)
	if err != nil {
		return err
	}

	return fsutil.WriteFileAtomic(path, data, 0o600)
}
