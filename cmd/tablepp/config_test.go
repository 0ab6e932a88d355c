package main

import (
	"io"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/Zhukowych/tablepp/pkg/tablepp"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), DefaultConfigFile)
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestLoadConfig_Precedence(t *testing.T) {
	t.Setenv("APP_DB", "./from-env-var.db")
	path := writeConfig(t, "database_url: ${APP_DB}\ndialect: sqlite\ntimeout: 5s\n")

	tests := []struct {
		name      string
		tableppDB string
		db        string
		flag      string
		want      string
	}{
		{"file with expansion", "", "", "", "./from-env-var.db"},
		{"DATABASE_URL does not override file", "", "./generic.db", "", "./from-env-var.db"},
		{"TABLEPP_DATABASE_URL overrides file", "./tablepp.db", "./generic.db", "", "./tablepp.db"},
		{"flag wins", "./tablepp.db", "", "./flag.db", "./flag.db"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Setenv("TABLEPP_DATABASE_URL", tt.tableppDB)
			t.Setenv("DATABASE_URL", tt.db)

			cfg, err := loadConfig(&globals{configFile: path, databaseURL: tt.flag})
			if err != nil {
				t.Fatalf("loadConfig: %v", err)
			}
			if cfg.DatabaseURL != tt.want {
				t.Errorf("DatabaseURL = %q, want %q", cfg.DatabaseURL, tt.want)
			}
			if cfg.Dialect != "sqlite" {
				t.Errorf("Dialect = %q, want sqlite", cfg.Dialect)
			}
			if cfg.Timeout != 5*time.Second {
				t.Errorf("Timeout = %v, want 5s", cfg.Timeout)
			}
		})
	}
}

func TestLoadConfig_MissingFile(t *testing.T) {
	t.Setenv("TABLEPP_DATABASE_URL", "")
	t.Setenv("DATABASE_URL", "./env.db")
	missing := filepath.Join(t.TempDir(), "nope.yaml")

	cfg, err := loadConfig(&globals{configFile: missing})
	if err != nil {
		t.Fatalf("implicit config file should be optional: %v", err)
	}
	if cfg.DatabaseURL != "./env.db" {
		t.Errorf("DatabaseURL = %q, want ./env.db", cfg.DatabaseURL)
	}

	if _, err := loadConfig(&globals{configFile: missing, configExplicit: true}); err == nil {
		t.Error("explicit missing config file should fail")
	}
}

func TestLoadConfig_Malformed(t *testing.T) {
	path := writeConfig(t, "database_url: [unclosed\n")
	if _, err := loadConfig(&globals{configFile: path}); err == nil {
		t.Error("expected a parse error")
	}
}

func TestConfig_User(t *testing.T) {
	var cfg Config
	if u := cfg.user(); !u.Superuser {
		t.Errorf("default user should be a superuser, got %+v", u)
	}

	cfg.User = &UserConfig{ID: 7, Username: "eve", Groups: []int64{2}}
	u := cfg.user()
	if u.Superuser || u.ID != 7 || len(u.Groups) != 1 {
		t.Errorf("user() = %+v", u)
	}
}

func TestConfig_GroupPolicy(t *testing.T) {
	tests := []struct {
		in      string
		want    tablepp.GroupPolicy
		wantErr bool
	}{
		{"", tablepp.RejectWins, false},
		{"reject_wins", tablepp.RejectWins, false},
		{"first_found", tablepp.FirstFound, false},
		{"majority", 0, true},
	}
	for _, tt := range tests {
		got, err := (&Config{GroupPolicy: tt.in}).groupPolicy()
		if (err != nil) != tt.wantErr {
			t.Errorf("groupPolicy(%q) err = %v, wantErr %v", tt.in, err, tt.wantErr)
			continue
		}
		if got != tt.want {
			t.Errorf("groupPolicy(%q) = %v, want %v", tt.in, got, tt.want)
		}
	}
}

func TestNewClient_MissingURL(t *testing.T) {
	g := &globals{stderr: io.Discard}
	if _, err := newClient(g, &Config{}); err != tablepp.ErrMissingDatabaseURL {
		t.Errorf("err = %v, want ErrMissingDatabaseURL", err)
	}
}

func TestParseAssignments(t *testing.T) {
	got, err := parseAssignments([]string{"name=Ada Lovelace", "age=", "note=a=b"})
	if err != nil {
		t.Fatal(err)
	}
	if got["name"] != "Ada Lovelace" || got["age"] != nil || got["note"] != "a=b" {
		t.Errorf("parseAssignments = %v", got)
	}
	if _, err := parseAssignments([]string{"novalue"}); err == nil {
		t.Error("expected an error for a pair without =")
	}

	settings, err := parseSettings([]string{"max_length=64", "filters=[exact, contains]"})
	if err != nil {
		t.Fatal(err)
	}
	if settings["max_length"] != 64 {
		t.Errorf("max_length = %#v, want 64", settings["max_length"])
	}
	if l, ok := settings["filters"].([]any); !ok || len(l) != 2 {
		t.Errorf("filters = %#v, want a two item list", settings["filters"])
	}
}
