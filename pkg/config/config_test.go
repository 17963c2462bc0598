package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/spf13/pflag"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wurt83ow/tablekeeper/pkg/models"
)

func env(vars map[string]string) func(string) (string, bool) {
	return func(k string) (string, bool) {
		v, ok := vars[k]
		return v, ok
	}
}

func TestLoad_Defaults(t *testing.T) {
	o, err := Load("", env(nil))
	require.NoError(t, err)
	assert.Equal(t, Default(), o)
	assert.Equal(t, "https://jsonplaceholder.typicode.com", o.ServerURL)
	assert.True(t, o.SyncWithServer)
	assert.Equal(t, models.DefaultColumns, o.TableColumns())
	assert.NoError(t, o.Validate())
}

func TestLoad_FileThenEnv(t *testing.T) {
	path := filepath.Join(t.TempDir(), "tablekeeper.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
server_url: http://file.example
resource: people
rate_limit: 2.5
timeout: 3s
columns: ["name:Full name", "email"]
fields:
  - key: department
    aliases: [company.name, org]
    default: Unassigned
`), 0o600))

	o, err := Load(path, env(map[string]string{
		"SERVER_URL":        "http://env.example",
		"SYNC_WITH_SERVER":  "false",
		"PAGINATE_FALLBACK": "1",
		"SORT_POLICY":       "id",
	}))
	require.NoError(t, err)
	assert.Equal(t, "http://env.example", o.ServerURL, "env wins over file")
	assert.Equal(t, "people", o.Resource)
	assert.Equal(t, 2.5, o.RateLimit)
	assert.Equal(t, 3*time.Second, o.Timeout)
	assert.False(t, o.SyncWithServer)
	assert.True(t, o.PaginateFallback)
	assert.Equal(t, "id", o.SortPolicy)
	assert.Equal(t, []models.Column{{Key: "name", Label: "Full name"}, {Key: "email", Label: "email"}}, o.TableColumns())
	assert.Equal(t, []FieldRule{{Key: "department", Aliases: []string{"company.name", "org"}, Default: "Unassigned"}}, o.Fields)
}

func TestLoad_Errors(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "missing.yaml"), env(nil))
	assert.Error(t, err)

	bad := filepath.Join(t.TempDir(), "bad.yaml")
	require.NoError(t, os.WriteFile(bad, []byte("rate_limit: [oops"), 0o600))
	_, err = Load(bad, env(nil))
	assert.Error(t, err)

	_, err = Load("", env(map[string]string{"SYNC_WITH_SERVER": "maybe"}))
	assert.ErrorContains(t, err, "SYNC_WITH_SERVER")

	_, err = Load("", env(map[string]string{"RATE_LIMIT": "fast"}))
	assert.ErrorContains(t, err, "RATE_LIMIT")
}

func TestFlags_OnlyExplicitOverride(t *testing.T) {
	o, err := Load("", env(map[string]string{"RESOURCE": "people", "LOG_LEVEL": "debug"}))
	require.NoError(t, err)

	fs := pflag.NewFlagSet("test", pflag.ContinueOnError)
	flags := BindFlags(fs)
	require.NoError(t, fs.Parse([]string{"--server-url", "http://flag.example", "--offline", "--columns", "name,role:Job"}))
	flags.Apply(o)

	assert.Equal(t, "http://flag.example", o.ServerURL)
	assert.Equal(t, "people", o.Resource, "unset flag keeps env value")
	assert.Equal(t, "debug", o.LogLevel)
	assert.False(t, o.SyncWithServer)
	assert.Equal(t, []models.Column{{Key: "name", Label: "name"}, {Key: "role", Label: "Job"}}, o.TableColumns())
}

func TestValidate(t *testing.T) {
	o := Default()
	o.ServerURL = "not a url"
	o.Resource = "/"
	o.RateLimit = -1
	o.SortPolicy = "random"
	o.Fields = []FieldRule{{Default: "x"}}

	err := o.Validate()
	require.Error(t, err)
	assert.ErrorContains(t, err, "invalid server url")
	assert.ErrorContains(t, err, "resource")
	assert.ErrorContains(t, err, "rate limit")
	assert.ErrorContains(t, err, "sort policy")
	assert.ErrorContains(t, err, "fields[0]: key must not be empty")
}

func TestResolvePaths(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "data")
	o := Default()
	o.DataDir = dir

	require.NoError(t, o.ResolvePaths())
	assert.Equal(t, filepath.Join(dir, "cache.db"), o.DBPath)
	assert.Equal(t, filepath.Join(dir, "syncinfo.json"), o.SysInfoPath)
	assert.DirExists(t, dir)
}
