package config

import (
	"errors"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/pflag"
	"gopkg.in/yaml.v3"

	"github.com/wurt83ow/tablekeeper/pkg/models"
)

// MemoryDB as DBPath keeps the cache in memory for the lifetime of the process.
const MemoryDB = ":memory:"

type Options struct {
	ServerURL        string        `yaml:"server_url"`
	Resource         string        `yaml:"resource"`
	DataDir          string        `yaml:"data_dir"`
	DBPath           string        `yaml:"db_path"`
	SysInfoPath      string        `yaml:"sync_info_path"`
	SyncWithServer   bool          `yaml:"sync_with_server"`
	LogLevel         string        `yaml:"log_level"`
	Passphrase       string        `yaml:"passphrase"`
	RateLimit        float64       `yaml:"rate_limit"`
	Timeout          time.Duration `yaml:"timeout"`
	SortPolicy       string        `yaml:"sort_policy"`
	PaginateFallback bool          `yaml:"paginate_fallback"`
	Columns          []string      `yaml:"columns"`
	Fields           []FieldRule   `yaml:"fields"`
}

// FieldRule overrides where a column value is read from in upstream records
// and what it defaults to. Only the config file sets these.
type FieldRule struct {
	Key     string   `yaml:"key"`
	Aliases []string `yaml:"aliases"`
	Default string   `yaml:"default"`
}

func Default() *Options {
	return &Options{
		ServerURL:      "https://jsonplaceholder.typicode.com",
		Resource:       "users",
		SyncWithServer: true,
		LogLevel:       "warn",
		Timeout:        10 * time.Second,
		SortPolicy:     "requested",
	}
}

// Load builds the options from defaults, the YAML file at path (if any) and the
// environment, in that order. Flags are applied on top by the caller.
func Load(path string, lookup func(string) (string, bool)) (*Options, error) {
	o := Default()
	if path != "" {
		if err := o.LoadFile(path); err != nil {
			return nil, err
		}
	}
	if lookup == nil {
		lookup = os.LookupEnv
	}
	if err := o.ApplyEnv(lookup); err != nil {
		return nil, err
	}
	return o, nil
}

func (o *Options) LoadFile(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("failed to read config: %w", err)
	}
	if err := yaml.Unmarshal(data, o); err != nil {
		return fmt.Errorf("failed to parse config %s: %w", path, err)
	}
	return nil
}

// ApplyEnv overrides options with the environment variables that are set.
func (o *Options) ApplyEnv(lookup func(string) (string, bool)) error {
	if v, ok := lookup("SERVER_URL"); ok {
		o.ServerURL = v
	}
	if v, ok := lookup("RESOURCE"); ok {
		o.Resource = v
	}
	if v, ok := lookup("DATA_DIR"); ok {
		o.DataDir = v
	}
	if v, ok := lookup("DB_PATH"); ok {
		o.DBPath = v
	}
	if v, ok := lookup("SYNC_INFO_PATH"); ok {
		o.SysInfoPath = v
	}
	if v, ok := lookup("SYNC_WITH_SERVER"); ok {
		b, err := strconv.ParseBool(v)
		if err != nil {
			return fmt.Errorf("SYNC_WITH_SERVER: %w", err)
		}
		o.SyncWithServer = b
	}
	if v, ok := lookup("LOG_LEVEL"); ok {
		o.LogLevel = v
	}
	if v, ok := lookup("CACHE_PASSPHRASE"); ok {
		o.Passphrase = v
	}
	if v, ok := lookup("RATE_LIMIT"); ok {
		f, err := strconv.ParseFloat(v, 64)
		if err != nil {
			return fmt.Errorf("RATE_LIMIT: %w", err)
		}
		o.RateLimit = f
	}
	if v, ok := lookup("REQUEST_TIMEOUT"); ok {
		d, err := time.ParseDuration(v)
		if err != nil {
			return fmt.Errorf("REQUEST_TIMEOUT: %w", err)
		}
		o.Timeout = d
	}
	if v, ok := lookup("SORT_POLICY"); ok {
		o.SortPolicy = v
	}
	if v, ok := lookup("PAGINATE_FALLBACK"); ok {
		b, err := strconv.ParseBool(v)
		if err != nil {
			return fmt.Errorf("PAGINATE_FALLBACK: %w", err)
		}
		o.PaginateFallback = b
	}
	if v, ok := lookup("COLUMNS"); ok {
		o.Columns = splitList(v)
	}
	return nil
}

func (o *Options) Validate() error {
	var errs []error
	if u, err := url.Parse(o.ServerURL); err != nil || u.Scheme == "" || u.Host == "" {
		errs = append(errs, fmt.Errorf("invalid server url %q", o.ServerURL))
	}
	if strings.Trim(o.Resource, "/") == "" {
		errs = append(errs, errors.New("resource must not be empty"))
	}
	if o.RateLimit < 0 {
		errs = append(errs, fmt.Errorf("rate limit must not be negative, got %v", o.RateLimit))
	}
	switch strings.ToLower(o.SortPolicy) {
	case "", "requested", "id":
	default:
		errs = append(errs, fmt.Errorf("unknown sort policy %q", o.SortPolicy))
	}
	for i, f := range o.Fields {
		if strings.TrimSpace(f.Key) == "" {
			errs = append(errs, fmt.Errorf("fields[%d]: key must not be empty", i))
		}
	}
	return errors.Join(errs...)
}

// TableColumns returns the configured columns, or the default schema.
func (o *Options) TableColumns() []models.Column {
	if cols := models.ParseColumns(o.Columns); len(cols) > 0 {
		return cols
	}
	return models.DefaultColumns
}

// ResolvePaths fills DBPath and SysInfoPath under DataDir, which defaults to
// ~/.tablekeeper, and creates DataDir.
func (o *Options) ResolvePaths() error {
	if o.DataDir == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			return fmt.Errorf("failed to locate home directory: %w", err)
		}
		o.DataDir = filepath.Join(home, ".tablekeeper")
	}
	if o.DBPath == "" {
		o.DBPath = filepath.Join(o.DataDir, "cache.db")
	}
	if o.SysInfoPath == "" {
		o.SysInfoPath = filepath.Join(o.DataDir, "syncinfo.json")
	}
	if err := os.MkdirAll(o.DataDir, 0o755); err != nil {
		return fmt.Errorf("failed to create data dir: %w", err)
	}
	return nil
}

// Flags binds command line flags to a shadow copy of the options so that only
// flags given explicitly override file and environment values.
type Flags struct {
	fs      *pflag.FlagSet
	vals    Options
	offline bool
}

func BindFlags(fs *pflag.FlagSet) *Flags {
	d := Default()
	f := &Flags{fs: fs}
	fs.StringVar(&f.vals.ServerURL, "server-url", d.ServerURL, "remote server URL")
	fs.StringVar(&f.vals.Resource, "resource", d.Resource, "remote collection name")
	fs.StringVar(&f.vals.DataDir, "data-dir", "", "directory for the cache and sync info (default ~/.tablekeeper)")
	fs.StringVar(&f.vals.DBPath, "db", "", `cache database path, ":memory:" keeps it in memory`)
	fs.BoolVar(&f.offline, "offline", false, "never contact the server")
	fs.StringVar(&f.vals.LogLevel, "log-level", d.LogLevel, "log level (debug|info|warn|error)")
	fs.StringVar(&f.vals.Passphrase, "passphrase", "", "encrypt the cache at rest with this passphrase")
	fs.Float64Var(&f.vals.RateLimit, "rate-limit", 0, "max requests per second, 0 for unlimited")
	fs.DurationVar(&f.vals.Timeout, "timeout", d.Timeout, "HTTP request timeout")
	fs.StringVar(&f.vals.SortPolicy, "sort-policy", d.SortPolicy, "merged order (requested|id)")
	fs.BoolVar(&f.vals.PaginateFallback, "paginate-fallback", false, "paginate cache-only results")
	fs.StringSliceVar(&f.vals.Columns, "columns", nil, "columns as key:Label, comma separated")
	return f
}

// Apply copies the explicitly set flags into dst. Changed is checked on each
// flag because cobra parses persistent flags through the subcommand's set.
func (f *Flags) Apply(dst *Options) {
	f.fs.VisitAll(func(fl *pflag.Flag) {
		if !fl.Changed {
			return
		}
		switch fl.Name {
		case "server-url":
			dst.ServerURL = f.vals.ServerURL
		case "resource":
			dst.Resource = f.vals.Resource
		case "data-dir":
			dst.DataDir = f.vals.DataDir
		case "db":
			dst.DBPath = f.vals.DBPath
		case "offline":
			dst.SyncWithServer = !f.offline
		case "log-level":
			dst.LogLevel = f.vals.LogLevel
		case "passphrase":
			dst.Passphrase = f.vals.Passphrase
		case "rate-limit":
			dst.RateLimit = f.vals.RateLimit
		case "timeout":
			dst.Timeout = f.vals.Timeout
		case "sort-policy":
			dst.SortPolicy = f.vals.SortPolicy
		case "paginate-fallback":
			dst.PaginateFallback = f.vals.PaginateFallback
		case "columns":
			dst.Columns = f.vals.Columns
		}
	})
}

func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
