package config

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const sampleYAML = `
version: "1"
engine:
  max_concurrency: 4
  batch_interval: 500ms
actions:
  - id: extract
    category: analytics
    mode: sync
    timeout: 3s
    retry_count: 2
    retry_delay: 250ms
    handler:
      type: log
      params:
        message: extracted
  - id: report
    depends_on: [extract]
    handler:
      type: sleep
      params:
        duration: 1s
    schedule:
      interval: 1m
      max_runs: 3
  - id: nightly
    mode: scheduled
    handler:
      type: log
      params:
        message: nightly
    schedule:
      cron: "0 2 * * *"
`

func TestParse_AppliesDefaults(t *testing.T) {
	cfg, err := Parse([]byte(sampleYAML))
	require.NoError(t, err)

	assert.Equal(t, 4, cfg.Engine.MaxConcurrency)
	assert.Equal(t, 500*time.Millisecond, cfg.Engine.BatchInterval)
	assert.Equal(t, 5, cfg.Engine.BatchSize)
	assert.Equal(t, time.Second, cfg.Engine.SchedulerInterval)
	assert.Equal(t, 10*time.Second, cfg.Engine.MetricsInterval)
	assert.Equal(t, 5*time.Second, cfg.Engine.LoopBackoff)
	assert.Equal(t, cfg.Engine.WorkerPoolSize*8, cfg.Engine.WorkerQueueDepth)

	require.Len(t, cfg.Actions, 3)
	ex := cfg.Actions[0]
	assert.Equal(t, "extract", ex.ID)
	assert.Equal(t, 3*time.Second, ex.Timeout)
	assert.Equal(t, 250*time.Millisecond, ex.RetryDelay)
	assert.Equal(t, "extracted", ex.Handler.Params["message"])

	rep := cfg.Actions[1]
	assert.Equal(t, []string{"extract"}, rep.DependsOn)
	require.NotNil(t, rep.Schedule)
	assert.Equal(t, time.Minute, rep.Schedule.Interval)
	assert.Equal(t, 3, rep.Schedule.MaxRuns)

	require.NoError(t, Validate(cfg))
}

func TestDefaultEngineConf(t *testing.T) {
	c := DefaultEngineConf()
	assert.Equal(t, 10, c.MaxConcurrency)
	assert.Equal(t, 5, c.BatchSize)
	assert.Equal(t, 2*time.Second, c.BatchInterval)
	assert.Equal(t, 256, c.OutcomeBuffer)
}

func TestValidate_Errors(t *testing.T) {
	cases := []struct {
		name string
		cfg  Config
		want string
	}{
		{
			name: "missing version",
			cfg:  Config{Actions: []ActionDef{{ID: "a", Handler: HandlerDef{Type: "log"}}}},
			want: "version",
		},
		{
			name: "bad id",
			cfg:  Config{Version: "1", Actions: []ActionDef{{ID: "has space", Handler: HandlerDef{Type: "log"}}}},
			want: "action_id",
		},
		{
			name: "missing handler type",
			cfg:  Config{Version: "1", Actions: []ActionDef{{ID: "a"}}},
			want: "actions[0].handler.type",
		},
		{
			name: "unknown mode",
			cfg:  Config{Version: "1", Actions: []ActionDef{{ID: "a", Mode: "later", Handler: HandlerDef{Type: "log"}}}},
			want: "oneof",
		},
		{
			name: "duplicate id",
			cfg: Config{Version: "1", Actions: []ActionDef{
				{ID: "a", Handler: HandlerDef{Type: "log"}},
				{ID: "a", Handler: HandlerDef{Type: "log"}},
			}},
			want: "duplicate action id",
		},
		{
			name: "undeclared dependency",
			cfg:  Config{Version: "1", Actions: []ActionDef{{ID: "a", DependsOn: []string{"ghost"}, Handler: HandlerDef{Type: "log"}}}},
			want: `depends_on "ghost" is not declared`,
		},
		{
			name: "self dependency",
			cfg:  Config{Version: "1", Actions: []ActionDef{{ID: "a", DependsOn: []string{"a"}, Handler: HandlerDef{Type: "log"}}}},
			want: "depends on itself",
		},
		{
			name: "bad cron",
			cfg: Config{Version: "1", Actions: []ActionDef{{
				ID: "a", Handler: HandlerDef{Type: "log"}, Schedule: &ScheduleDef{Cron: "every tuesday"},
			}}},
			want: "invalid cron",
		},
		{
			name: "negative retry",
			cfg:  Config{Version: "1", Actions: []ActionDef{{ID: "a", RetryCount: -1, Handler: HandlerDef{Type: "log"}}}},
			want: "actions[0].retry_count",
		},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			tc.cfg.Engine.applyDefaults()
			err := Validate(&tc.cfg)
			require.Error(t, err)
			assert.Contains(t, err.Error(), tc.want)
		})
	}
}

func TestValidate_Nil(t *testing.T) {
	assert.Error(t, Validate(nil))
}

func TestValidate_ReportsYAMLKeys(t *testing.T) {
	cfg := Config{Version: "1", Engine: EngineConf{BatchSize: -1}}
	err := Validate(&cfg)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "engine.max_concurrency failed validation")
	assert.Contains(t, err.Error(), "engine.batch_size failed validation")
	assert.NotContains(t, err.Error(), "maxconcurrency")
}

func TestEngineConf_WithDefaults(t *testing.T) {
	conf := EngineConf{BatchSize: 3}.WithDefaults()
	assert.Equal(t, 3, conf.BatchSize)
	assert.Equal(t, DefaultEngineConf().MaxConcurrency, conf.MaxConcurrency)
	assert.Equal(t, DefaultEngineConf().OutcomeBuffer, conf.OutcomeBuffer)

	cfg := Config{Version: "1", Engine: EngineConf{}.WithDefaults()}
	assert.NoError(t, Validate(&cfg))
}

func writeConfig(t *testing.T, dir, body string) string {
	t.Helper()
	path := filepath.Join(dir, "actions.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o644))
	return path
}

func TestLoader_ReloadRunsCallbacks(t *testing.T) {
	dir := t.TempDir()
	path := writeConfig(t, dir, sampleYAML)

	l, err := NewLoader(path)
	require.NoError(t, err)
	assert.Equal(t, path, l.Path())
	assert.Len(t, l.Config().Actions, 3)

	var seen []*Config
	l.OnChange(func(c *Config) error {
		seen = append(seen, c)
		return nil
	})

	writeConfig(t, dir, "version: \"2\"\nactions: []\n")
	cfg, err := l.Reload()
	require.NoError(t, err)
	assert.Equal(t, "2", cfg.Version)
	require.Len(t, seen, 1)
	assert.Same(t, cfg, seen[0])
	assert.Same(t, cfg, l.Config())
}

func TestLoader_RejectedReloadKeepsPrevious(t *testing.T) {
	dir := t.TempDir()
	path := writeConfig(t, dir, sampleYAML)

	l, err := NewLoader(path)
	require.NoError(t, err)
	before := l.Config()

	rejected := errors.New("not today")
	l.OnChange(func(*Config) error { return rejected })

	writeConfig(t, dir, "version: \"2\"\n")
	_, err = l.Reload()
	assert.ErrorIs(t, err, rejected)
	assert.Same(t, before, l.Config())

	writeConfig(t, dir, "version: [broken")
	_, err = l.Reload()
	assert.Error(t, err)
	assert.Same(t, before, l.Config())
}

func TestLoader_WatchReloadsOnWrite(t *testing.T) {
	dir := t.TempDir()
	path := writeConfig(t, dir, sampleYAML)

	l, err := NewLoader(path)
	require.NoError(t, err)
	changed := make(chan string, 16)
	l.OnChange(func(c *Config) error {
		changed <- c.Version
		return nil
	})

	stop, err := l.Watch()
	require.NoError(t, err)
	defer stop()

	require.NoError(t, os.WriteFile(path, []byte("version: \"3\"\n"), 0o644))
	// Debounce normally folds the write into one reload, but a slow
	// filesystem can still split it and surface a truncated read first.
	timeout := time.After(2 * time.Second)
	for v := ""; v != "3"; {
		select {
		case v = <-changed:
		case <-timeout:
			t.Fatal("watcher did not reload")
		}
	}
	stop()
	stop()
}

func TestLoader_WatchSeesRenameSave(t *testing.T) {
	dir := t.TempDir()
	path := writeConfig(t, dir, sampleYAML)

	l, err := NewLoader(path)
	require.NoError(t, err)
	changed := make(chan string, 16)
	l.OnChange(func(c *Config) error {
		changed <- c.Version
		return nil
	})

	stop, err := l.Watch()
	require.NoError(t, err)
	defer stop()

	tmp := filepath.Join(dir, ".actions.yaml.swp")
	require.NoError(t, os.WriteFile(tmp, []byte("version: \"4\"\n"), 0o644))
	require.NoError(t, os.Rename(tmp, path))

	select {
	case v := <-changed:
		assert.Equal(t, "4", v)
	case <-time.After(2 * time.Second):
		t.Fatal("watcher did not reload after rename")
	}
}

func TestNewLoader_MissingFile(t *testing.T) {
	_, err := NewLoader(filepath.Join(t.TempDir(), "nope.yaml"))
	assert.Error(t, err)
}
