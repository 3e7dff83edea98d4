package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

type Config struct {
	App     AppConfig     `json:"app"`
	Browser BrowserConfig `json:"browser"`
	Tour    TourConfig    `json:"tour"`
	Routes  RoutesConfig  `json:"routes"`
	Store   StoreConfig   `json:"store"`
	Server  ServerConfig  `json:"server"`
	Log     LogConfig     `json:"log"`
}

type AppConfig struct {
	Name   string `json:"name"`
	UserID string `json:"user_id"`
}

type BrowserConfig struct {
	BaseURL        string   `json:"base_url"`
	StartPath      string   `json:"start_path"`
	Headless       bool     `json:"headless"`
	ExecPath       string   `json:"exec_path,omitempty"`
	SoftNavigation bool     `json:"soft_navigation"`
	ActionTimeout  Duration `json:"action_timeout"`
}

type TourConfig struct {
	Dir              string   `json:"dir"`
	Watch            bool     `json:"watch"`
	ResolveTimeout   Duration `json:"resolve_timeout"`
	PollInterval     Duration `json:"poll_interval"`
	ScrollSettle     Duration `json:"scroll_settle"`
	AutoAdvanceDelay Duration `json:"auto_advance_delay"`
	MountSettle      Duration `json:"mount_settle"`
	PendingTTL       Duration `json:"pending_ttl"`
}

// RoutesConfig limits where tours may navigate. Allow holds path prefixes,
// Deny holds regular expressions.
type RoutesConfig struct {
	Allow []string `json:"allow"`
	Deny  []string `json:"deny"`
}

type StoreConfig struct {
	Path string `json:"path"`
}

type ServerConfig struct {
	Addr string `json:"addr"`
	// APIURL points the runner at a remote status API instead of the local
	// sqlite file.
	APIURL string `json:"api_url,omitempty"`
}

type LogConfig struct {
	EventFile string `json:"event_file,omitempty"`
}

// Duration reads Go duration strings such as "400ms" from JSON.
type Duration time.Duration

func (d Duration) Std() time.Duration { return time.Duration(d) }

func (d Duration) MarshalJSON() ([]byte, error) {
	return json.Marshal(time.Duration(d).String())
}

func (d *Duration) UnmarshalJSON(b []byte) error {
	var s string
	if err := json.Unmarshal(b, &s); err != nil {
		return fmt.Errorf("duration must be a string like \"400ms\": %w", err)
	}
	v, err := time.ParseDuration(s)
	if err != nil {
		return err
	}
	*d = Duration(v)
	return nil
}

func Default() *Config {
	return &Config{
		App: AppConfig{Name: "trailhead", UserID: "local"},
		Browser: BrowserConfig{
			BaseURL:       "http://localhost:3000",
			StartPath:     "/",
			ActionTimeout: Duration(10 * time.Second),
		},
		Tour: TourConfig{
			Dir:              "tours",
			ResolveTimeout:   Duration(5 * time.Second),
			PollInterval:     Duration(100 * time.Millisecond),
			ScrollSettle:     Duration(400 * time.Millisecond),
			AutoAdvanceDelay: Duration(2 * time.Second),
			MountSettle:      Duration(150 * time.Millisecond),
			PendingTTL:       Duration(30 * time.Second),
		},
		Store:  StoreConfig{Path: "trailhead.db"},
		Server: ServerConfig{Addr: ":8080"},
	}
}

// Load reads path over the defaults, then applies .env and TRAILHEAD_*
// environment overrides. A missing file leaves the defaults in place.
func Load(path string) (*Config, error) {
	cfg := Default()

	if path != "" {
		file, err := os.Open(path)
		switch {
		case errors.Is(err, os.ErrNotExist):
			log.Printf("Warning: config file %s not found, using defaults", path)
		case err != nil:
			return nil, fmt.Errorf("failed to open config file: %w", err)
		default:
			defer file.Close()
			decoder := json.NewDecoder(file)
			decoder.DisallowUnknownFields()
			if err := decoder.Decode(cfg); err != nil {
				return nil, fmt.Errorf("failed to decode config file: %w", err)
			}
		}
	}

	_ = godotenv.Load()
	cfg.applyEnv()

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// LoadConfig is Load that exits the process on failure.
func LoadConfig(path string) *Config {
	cfg, err := Load(path)
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}
	return cfg
}

func (c *Config) applyEnv() {
	c.App.UserID = envStr("TRAILHEAD_USER_ID", c.App.UserID)
	c.Browser.BaseURL = envStr("TRAILHEAD_BASE_URL", c.Browser.BaseURL)
	c.Browser.StartPath = envStr("TRAILHEAD_START_PATH", c.Browser.StartPath)
	c.Browser.Headless = envBool("TRAILHEAD_HEADLESS", c.Browser.Headless)
	c.Browser.ExecPath = envStr("TRAILHEAD_CHROME_PATH", c.Browser.ExecPath)
	c.Tour.Dir = envStr("TRAILHEAD_TOURS_DIR", c.Tour.Dir)
	c.Tour.ResolveTimeout = envDuration("TRAILHEAD_RESOLVE_TIMEOUT", c.Tour.ResolveTimeout)
	c.Tour.AutoAdvanceDelay = envDuration("TRAILHEAD_AUTO_ADVANCE_DELAY", c.Tour.AutoAdvanceDelay)
	c.Store.Path = envStr("TRAILHEAD_DB_PATH", c.Store.Path)
	c.Server.Addr = envStr("TRAILHEAD_ADDR", c.Server.Addr)
	c.Server.APIURL = envStr("TRAILHEAD_API_URL", c.Server.APIURL)
	c.Log.EventFile = envStr("TRAILHEAD_EVENT_LOG", c.Log.EventFile)
}

// Validate reports every setting that cannot work.
func (c *Config) Validate() error {
	var problems []string
	if c.Tour.Dir == "" {
		problems = append(problems, "tour.dir is required")
	}
	if c.Tour.ResolveTimeout <= 0 {
		problems = append(problems, "tour.resolve_timeout must be positive")
	}
	if c.Tour.PollInterval <= 0 || c.Tour.PollInterval > c.Tour.ResolveTimeout {
		problems = append(problems, "tour.poll_interval must be positive and not exceed resolve_timeout")
	}
	for name, d := range map[string]Duration{
		"tour.scroll_settle":      c.Tour.ScrollSettle,
		"tour.auto_advance_delay": c.Tour.AutoAdvanceDelay,
		"tour.mount_settle":       c.Tour.MountSettle,
		"tour.pending_ttl":        c.Tour.PendingTTL,
	} {
		if d < 0 {
			problems = append(problems, name+" must not be negative")
		}
	}
	if !strings.HasPrefix(c.Browser.StartPath, "/") {
		problems = append(problems, "browser.start_path must start with /")
	}
	if len(problems) > 0 {
		return fmt.Errorf("invalid config: %s", strings.Join(problems, "; "))
	}
	return nil
}

func envStr(key, defaultVal string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return defaultVal
}

func envBool(key string, defaultVal bool) bool {
	if v := os.Getenv(key); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			return b
		}
	}
	return defaultVal
}

func envDuration(key string, defaultVal Duration) Duration {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			return Duration(d)
		}
	}
	return defaultVal
}
