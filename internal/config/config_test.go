package config

import "testing"

func TestLoadDefaults(t *testing.T) {
	t.Setenv("PRIMARY_DELIMITER", "||")
	t.Setenv("CACHE_SIZE", "not-a-number")
	t.Setenv("NORMALIZE_STRICT", "yes")
	t.Setenv("WATCH_INPUT_TYPE", "")

	cfg, err := Load()
	if err != nil {
		t.Fatal(err)
	}
	if cfg.PrimaryDelimiter != "||" || cfg.SecondaryDelimiter != "::" {
		t.Fatalf("delimiters: %q %q", cfg.PrimaryDelimiter, cfg.SecondaryDelimiter)
	}
	if cfg.CacheSize != 16 {
		t.Fatalf("cache size fallback: %d", cfg.CacheSize)
	}
	if !cfg.NormalizeStrict {
		t.Fatal("strict should be on")
	}
	if cfg.WatchInputType != "" {
		t.Fatalf("watch input type should default to inference, got %q", cfg.WatchInputType)
	}
}

func TestGetEnvBool(t *testing.T) {
	cases := []struct {
		value    string
		fallback bool
		want     bool
	}{
		{"on", false, true},
		{"OFF", true, false},
		{"maybe", true, true},
		{"", false, false},
	}
	for _, tc := range cases {
		t.Run(tc.value, func(t *testing.T) {
			t.Setenv("DASHNORM_TEST_BOOL", tc.value)
			if got := getEnvBool("DASHNORM_TEST_BOOL", tc.fallback); got != tc.want {
				t.Fatalf("got %v want %v", got, tc.want)
			}
		})
	}
}

func TestRequire(t *testing.T) {
	var cfg Config
	if err := cfg.Require("WATCH_INPUT", "  "); err == nil {
		t.Fatal("expected error for blank value")
	}
	if err := cfg.Require("WATCH_INPUT", "data.csv"); err != nil {
		t.Fatal(err)
	}
}
