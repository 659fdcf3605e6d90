package config

import (
	"encoding/json"
	"fmt"
	"os"
	"strings"
	"time"

	"staypermit/internal/components/configutil"

	"dario.cat/mergo"
	"github.com/joho/godotenv"
	"github.com/titanous/json5"
)

// Duration is a time.Duration that reads as "20s" / "1m30s" in config files.
type Duration time.Duration

func (d Duration) Std() time.Duration {
	return time.Duration(d)
}

func (d Duration) MarshalJSON() ([]byte, error) {
	return json.Marshal(time.Duration(d).String())
}

func (d *Duration) UnmarshalJSON(data []byte) error {
	var raw any
	if err := json5.Unmarshal(data, &raw); err != nil {
		return err
	}
	switch v := raw.(type) {
	case string:
		parsed, err := time.ParseDuration(v)
		if err != nil {
			return fmt.Errorf("parse duration %q: %w", v, err)
		}
		*d = Duration(parsed)
	case float64:
		*d = Duration(time.Duration(v) * time.Millisecond)
	default:
		return fmt.Errorf("invalid duration %s", string(data))
	}
	return nil
}

// Category is one result tab of the listing view. ID is substituted for
// `{id}` in the category selector templates.
type Category struct {
	Name string `json:"name"`
	ID   string `json:"id"`
}

type Portal struct {
	LoginURL   string `json:"login_url"`
	ListingURL string `json:"listing_url"`
}

type Selectors struct {
	Username string `json:"username"`
	Password string `json:"password"`
	Submit   string `json:"submit"`
	// LoggedIn must be present on the listing view once the session is valid.
	LoggedIn string `json:"logged_in"`

	Tab           string `json:"tab"`
	Table         string `json:"table"`
	Rows          string `json:"rows"`
	NextControl   string `json:"next_control"`
	NextContainer string `json:"next_container"`
	PageSize      string `json:"page_size"`

	ActiveClass   string `json:"active_class"`
	DisabledClass string `json:"disabled_class"`
}

type Timeouts struct {
	Auth    Duration `json:"auth"`
	Table   Duration `json:"table"`
	Control Duration `json:"control"`
	Poll    Duration `json:"poll"`
}

type Browser struct {
	Headless     *bool  `json:"headless"`
	ExecPath     string `json:"exec_path"`
	UserAgent    string `json:"user_agent"`
	WindowWidth  int    `json:"window_width"`
	WindowHeight int    `json:"window_height"`
}

type Output struct {
	CSV      string `json:"csv"`
	Database string `json:"database"`
}

type Env struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

type Config struct {
	Portal     Portal     `json:"portal"`
	Selectors  Selectors  `json:"selectors"`
	Categories []Category `json:"categories"`
	Timeouts   Timeouts   `json:"timeouts"`
	PageSize   string     `json:"page_size"`
	MaxPages   int        `json:"max_pages"`
	Browser    Browser    `json:"browser"`
	Output     Output     `json:"output"`
	Env        Env        `json:"env"`
	// Timezone is the zone application dates are interpreted in.
	Timezone string `json:"timezone"`
	// OverdueAfter is the processing age in business days past which an
	// application is flagged.
	OverdueAfter int `json:"overdue_after"`
}

func Default() Config {
	headless := true
	return Config{
		Portal: Portal{
			LoginURL:   "https://admin-molina.imigrasi.go.id/admin/login",
			ListingURL: "https://admin-molina.imigrasi.go.id/admin/verification-staypermit",
		},
		Selectors: Selectors{
			Username: "#username",
			Password: "#password",
			Submit:   "button[type='submit']",
			LoggedIn: "#data-verifikasi-tab",

			Tab:           "#data-{id}-tab",
			Table:         "#data-{id} table",
			Rows:          "#data-{id} table tbody tr",
			NextControl:   "#data-{id} li.next > a",
			NextContainer: "#data-{id} li.next",
			PageSize:      "select[name='{id}-table_length']",

			ActiveClass:   "active",
			DisabledClass: "disabled",
		},
		Categories: []Category{
			{Name: "Verifikasi", ID: "verifikasi"},
			{Name: "Ditolak", ID: "ditolak"},
			{Name: "Dipending", ID: "dipending"},
			{Name: "Disetujui", ID: "disetujui"},
			{Name: "Terbit", ID: "terbit"},
		},
		Timeouts: Timeouts{
			Auth:    Duration(20 * time.Second),
			Table:   Duration(15 * time.Second),
			Control: Duration(5 * time.Second),
			Poll:    Duration(250 * time.Millisecond),
		},
		PageSize: "100",
		MaxPages: 500,
		Browser: Browser{
			Headless:     &headless,
			WindowWidth:  1920,
			WindowHeight: 1080,
			UserAgent:    "Mozilla/5.0 (X11; Linux x86_64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/125.0 Safari/537.36",
		},
		Output: Output{
			CSV: "data_imigrasi.csv",
		},
		Env: Env{
			Username: "MOLINA_USERNAME",
			Password: "MOLINA_PASSWORD",
		},
		Timezone:     "Asia/Jakarta",
		OverdueAfter: 3,
	}
}

// Load returns the defaults overridden by the config file at path (and its
// .local sibling). A missing file is not an error.
func Load(path string) (Config, error) {
	cfg := Default()

	fromFile, err := configutil.ReadConfig[Config](path)
	if os.IsNotExist(err) {
		return cfg, cfg.Validate()
	}
	if err != nil {
		return Config{}, fmt.Errorf("read config: %w", err)
	}

	// without dereferencing, a set *bool overrides even when it is false
	err = mergo.Merge(&cfg, fromFile, mergo.WithOverride, mergo.WithoutDereference)
	if err != nil {
		return Config{}, fmt.Errorf("merge config: %w", err)
	}
	return cfg, cfg.Validate()
}

func (c Config) Validate() error {
	if c.Portal.LoginURL == "" || c.Portal.ListingURL == "" {
		return fmt.Errorf("config: portal urls must be set")
	}
	if len(c.Categories) == 0 {
		return fmt.Errorf("config: at least one category is required")
	}
	seen := map[string]bool{}
	for _, cat := range c.Categories {
		if cat.ID == "" || cat.Name == "" {
			return fmt.Errorf("config: category needs both name and id: %+v", cat)
		}
		if seen[cat.ID] {
			return fmt.Errorf("config: duplicate category id %q", cat.ID)
		}
		seen[cat.ID] = true
	}
	if c.Selectors.Rows == "" || c.Selectors.Table == "" || c.Selectors.Tab == "" {
		return fmt.Errorf("config: tab, table and rows selectors are required")
	}
	if c.Timeouts.Table <= 0 || c.Timeouts.Control <= 0 || c.Timeouts.Auth <= 0 || c.Timeouts.Poll <= 0 {
		return fmt.Errorf("config: timeouts must be positive")
	}
	if c.MaxPages <= 0 {
		return fmt.Errorf("config: max_pages must be positive")
	}
	return nil
}

// ForCategory substitutes the category id into a selector template.
func ForCategory(template string, cat Category) string {
	return strings.ReplaceAll(template, "{id}", cat.ID)
}

// LoadDotenv loads a .env file from the working directory when there is one,
// variables already set in the environment win.
func LoadDotenv(path string) error {
	err := godotenv.Load(path)
	if err != nil && !os.IsNotExist(err) {
		return err
	}
	return nil
}
