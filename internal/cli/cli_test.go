package cli

import (
	"testing"
)

func TestOutputMode(t *testing.T) {
	tests := []struct {
		name string
		mode OutputMode
		tty  bool
		json bool
	}{
		{"ModeTTY", ModeTTY, true, false},
		{"ModePlain", ModePlain, false, false},
		{"ModeJSON", ModeJSON, false, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := &Config{Mode: tt.mode}
			if got := cfg.IsTTY(); got != tt.tty {
				t.Errorf("IsTTY() = %v, want %v", got, tt.tty)
			}
			if got := cfg.IsJSON(); got != tt.json {
				t.Errorf("IsJSON() = %v, want %v", got, tt.json)
			}
		})
	}
}

func TestDefaultConfig_Env(t *testing.T) {
	tests := []struct {
		name    string
		noColor string
		term    string
	}{
		{"NO_COLOR", "1", "xterm-256color"},
		{"TERM=dumb", "", "dumb"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Setenv("NO_COLOR", tt.noColor)
			t.Setenv("TERM", tt.term)

			cfg := DefaultConfig()
			if cfg.Mode != ModePlain {
				t.Errorf("Mode = %v, want ModePlain", cfg.Mode)
			}
			if cfg.Writer == nil {
				t.Error("Writer should not be nil")
			}
		})
	}
}

func TestNewConfigWithMode(t *testing.T) {
	if cfg := NewConfigWithMode(ModeJSON); !cfg.IsJSON() {
		t.Errorf("Mode = %v, want ModeJSON", cfg.Mode)
	}
}

func TestEnableColors(t *testing.T) {
	original := defaultCfg
	defer func() { defaultCfg = original }()

	for mode, want := range map[OutputMode]bool{ModeTTY: true, ModePlain: false, ModeJSON: false} {
		SetDefault(&Config{Mode: mode})
		if got := EnableColors(); got != want {
			t.Errorf("EnableColors() in mode %v = %v, want %v", mode, got, want)
		}
	}
}
