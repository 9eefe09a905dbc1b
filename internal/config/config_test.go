package config

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"
)

// validConfig returns a config that passes validation.
func validConfig() *Config {
	c := NewConfig()
	c.Queries = []string{"golang"}
	c.Proxies = []string{"http://10.0.0.1:8080"}
	return c
}

// TestValidate tests configuration validation.
func TestValidate(t *testing.T) {
	t.Parallel()

	t.Run("valid config passes", func(t *testing.T) {
		t.Parallel()
		if err := validConfig().Validate(); err != nil {
			t.Errorf("unexpected error: %v", err)
		}
	})

	t.Run("source URL satisfies the proxy requirement", func(t *testing.T) {
		t.Parallel()
		c := validConfig()
		c.Proxies = nil
		c.SourceURL = "https://provider.example.com/list.txt"
		if err := c.Validate(); err != nil {
			t.Errorf("unexpected error: %v", err)
		}
	})

	tests := []struct {
		name   string
		mutate func(*Config)
		want   error
	}{
		{
			name:   "missing queries",
			mutate: func(c *Config) { c.Queries = nil },
			want:   ErrNoQuery,
		},
		{
			name:   "missing proxies and source",
			mutate: func(c *Config) { c.Proxies = nil },
			want:   ErrNoProxy,
		},
		{
			name:   "zero timeout",
			mutate: func(c *Config) { c.Timeout = 0 },
			want:   ErrInvalidTimeout,
		},
		{
			name:   "zero limit",
			mutate: func(c *Config) { c.Limit = 0 },
			want:   ErrInvalidLimit,
		},
		{
			name:   "zero concurrency",
			mutate: func(c *Config) { c.Concurrency = 0 },
			want:   ErrInvalidConcurrency,
		},
		{
			name:   "negative delay",
			mutate: func(c *Config) { c.Delay = -time.Second },
			want:   ErrInvalidDelay,
		},
		{
			name:   "conflicting report formats",
			mutate: func(c *Config) { c.JSONReport = true; c.MarkdownReport = true },
			want:   ErrConflictingReportFormats,
		},
		{
			name:   "negative max body size",
			mutate: func(c *Config) { c.MaxBodySize = -1 },
			want:   ErrInvalidMaxBodySize,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			c := validConfig()
			tt.mutate(c)
			if err := c.Validate(); !errors.Is(err, tt.want) {
				t.Errorf("expected %v, got %v", tt.want, err)
			}
		})
	}
}

// TestLoadConfigFile tests .prowl file loading.
func TestLoadConfigFile(t *testing.T) {
	t.Parallel()

	t.Run("loads queries, proxies and overrides", func(t *testing.T) {
		t.Parallel()

		path := filepath.Join(t.TempDir(), DefaultConfigFile)
		content := `queries:
  - golang
  - rustlang
proxies:
  - 10.0.0.1:8080
  - socks5://10.0.0.2:1080
source:
  url: https://provider.example.com/list.txt
  refreshTarget: 3
crawl:
  limit: 50
  delay: 250ms
`
		if err := os.WriteFile(path, []byte(content), 0600); err != nil {
			t.Fatal(err)
		}

		cf, err := LoadConfigFile(path)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if len(cf.Queries) != 2 || cf.Queries[0] != "golang" {
			t.Errorf("unexpected queries: %v", cf.Queries)
		}
		if cf.Source.RefreshTarget != 3 {
			t.Errorf("expected refreshTarget 3, got %d", cf.Source.RefreshTarget)
		}
	})

	t.Run("missing file returns ErrConfigNotFound", func(t *testing.T) {
		t.Parallel()

		_, err := LoadConfigFile(filepath.Join(t.TempDir(), "nope"))
		if !errors.Is(err, ErrConfigNotFound) {
			t.Errorf("expected ErrConfigNotFound, got %v", err)
		}
	})

	t.Run("malformed yaml is an error", func(t *testing.T) {
		t.Parallel()

		path := filepath.Join(t.TempDir(), DefaultConfigFile)
		if err := os.WriteFile(path, []byte("queries: [unclosed"), 0600); err != nil {
			t.Fatal(err)
		}
		if _, err := LoadConfigFile(path); err == nil {
			t.Error("expected a parse error")
		}
	})
}

// TestMerge tests flag-over-file precedence.
func TestMerge(t *testing.T) {
	t.Parallel()

	t.Run("file fills gaps and normalizes proxies", func(t *testing.T) {
		t.Parallel()

		c := NewConfig()
		cf := &File{
			Queries: []string{"golang"},
			Proxies: []string{"10.0.0.1:8080", "10.0.0.1:8080"},
			Source:  SourceFile{URL: "https://provider.example.com/list.txt"},
			Crawl:   CrawlFile{Limit: 50, Delay: "250ms"},
		}
		if err := c.Merge(cf); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}

		if len(c.Proxies) != 1 || c.Proxies[0] != "http://10.0.0.1:8080" {
			t.Errorf("expected normalized deduped proxies, got %v", c.Proxies)
		}
		if c.Limit != 50 {
			t.Errorf("expected file limit applied, got %d", c.Limit)
		}
		if c.Delay != 250*time.Millisecond {
			t.Errorf("expected file delay applied, got %v", c.Delay)
		}
	})

	t.Run("flag values win over file values", func(t *testing.T) {
		t.Parallel()

		c := NewConfig()
		c.Queries = []string{"from-flag"}
		c.Limit = 25 // non-default, set by flag

		cf := &File{
			Queries: []string{"from-file"},
			Crawl:   CrawlFile{Limit: 50},
		}
		if err := c.Merge(cf); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}

		if len(c.Queries) != 1 || c.Queries[0] != "from-flag" {
			t.Errorf("expected flag queries kept, got %v", c.Queries)
		}
		if c.Limit != 25 {
			t.Errorf("expected flag limit kept, got %d", c.Limit)
		}
	})

	t.Run("bad duration surfaces an error", func(t *testing.T) {
		t.Parallel()

		c := NewConfig()
		if err := c.Merge(&File{Crawl: CrawlFile{Timeout: "soon"}}); err == nil {
			t.Error("expected a duration parse error")
		}
	})
}

// TestFindConfigFile tests the search order.
func TestFindConfigFile(t *testing.T) {
	t.Run("explicit path wins when it exists", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "custom.yml")
		if err := os.WriteFile(path, []byte("queries: []\n"), 0600); err != nil {
			t.Fatal(err)
		}
		if got := FindConfigFile(path); got != path {
			t.Errorf("expected %s, got %s", path, got)
		}
	})

	t.Run("missing explicit path returns empty", func(t *testing.T) {
		if got := FindConfigFile(filepath.Join(t.TempDir(), "nope")); got != "" {
			t.Errorf("expected empty, got %s", got)
		}
	})
}
