// Package userconfig loads GhostVault's user preferences file: the
// viper/YAML settings layer that is distinct from configstore's
// versioned binary vault record. This file carries no secret
// material, only operational knobs, and is safe to read before any
// vault is unlocked.
package userconfig

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/viper"
)

// Config is the full set of user-tunable knobs, plus a couple of CLI
// ergonomics fields.
type Config struct {
	VaultRoot      string `mapstructure:"vault_root"`
	DecoyRoot      string `mapstructure:"decoy_root"`
	AttemptsPath   string `mapstructure:"attempts_path"`
	AttemptsMax    uint32 `mapstructure:"attempts_max"`
	LockoutSeconds int64  `mapstructure:"lockout_seconds"`
	TriageFloorMs  int64  `mapstructure:"triage_floor_ms"`
	TriageJitterMs int64  `mapstructure:"triage_jitter_ms"`
	KdfTargetMs    uint32 `mapstructure:"kdf_target_ms"`
	KdfMemCapMb    uint32 `mapstructure:"kdf_mem_cap_mb"`
	ColorOutput    bool   `mapstructure:"color_output"`
	Editor         string `mapstructure:"editor"`
}

// Defaults returns GhostVault's built-in default knob values.
func Defaults() Config {
	home, _ := os.UserHomeDir()
	return Config{
		VaultRoot:      filepath.Join(home, ".ghostvault", "vault"),
		DecoyRoot:      filepath.Join(home, ".ghostvault", "decoy"),
		AttemptsPath:   filepath.Join(home, ".ghostvault", "attempts"),
		AttemptsMax:    5,
		LockoutSeconds: 300,
		TriageFloorMs:  900,
		TriageJitterMs: 300,
		KdfTargetMs:    500,
		KdfMemCapMb:    128,
		ColorOutput:    true,
	}
}

// Path returns the preferences file location, honoring GHOSTVAULT_CONFIG
// for tests and scripted setups before falling back to the OS config
// directory.
func Path() (string, error) {
	if p := os.Getenv("GHOSTVAULT_CONFIG"); p != "" {
		return p, nil
	}
	dir, err := os.UserConfigDir()
	if err != nil {
		home, herr := os.UserHomeDir()
		if herr != nil {
			return "", fmt.Errorf("userconfig: cannot determine config directory: %w", err)
		}
		dir = filepath.Join(home, ".ghostvault")
	} else {
		dir = filepath.Join(dir, "ghostvault")
	}
	if err := os.MkdirAll(dir, 0700); err != nil {
		return "", fmt.Errorf("userconfig: cannot create config directory: %w", err)
	}
	return filepath.Join(dir, "preferences.yml"), nil
}

// Load reads the preferences file, merging onto Defaults(). A missing
// file is not an error: it is the common case on first run.
func Load() (Config, error) {
	path, err := Path()
	if err != nil {
		return Defaults(), err
	}
	return LoadFromPath(path)
}

// LoadFromPath loads from an explicit path, for tests. A missing file
// yields Defaults() with any environment overrides applied.
func LoadFromPath(path string) (Config, error) {
	defaults := Defaults()

	_, statErr := os.Stat(path)
	fileExists := !os.IsNotExist(statErr)

	v := viper.New()
	v.SetConfigFile(path)
	v.SetConfigType("yaml")
	v.SetDefault("vault_root", defaults.VaultRoot)
	v.SetDefault("decoy_root", defaults.DecoyRoot)
	v.SetDefault("attempts_path", defaults.AttemptsPath)
	v.SetDefault("attempts_max", defaults.AttemptsMax)
	v.SetDefault("lockout_seconds", defaults.LockoutSeconds)
	v.SetDefault("triage_floor_ms", defaults.TriageFloorMs)
	v.SetDefault("triage_jitter_ms", defaults.TriageJitterMs)
	v.SetDefault("kdf_target_ms", defaults.KdfTargetMs)
	v.SetDefault("kdf_mem_cap_mb", defaults.KdfMemCapMb)
	v.SetDefault("color_output", defaults.ColorOutput)
	v.SetDefault("editor", defaults.Editor)

	// Environment variables override the file, e.g. GHOSTVAULT_VAULT_ROOT.
	v.SetEnvPrefix("ghostvault")
	v.AutomaticEnv()

	if fileExists {
		if err := v.ReadInConfig(); err != nil {
			return defaults, fmt.Errorf("userconfig: parse %s: %w", path, err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return defaults, fmt.Errorf("userconfig: unmarshal %s: %w", path, err)
	}
	return cfg, nil
}

// Save writes cfg back to path as YAML, atomically.
func Save(path string, cfg Config) error {
	v := viper.New()
	v.SetConfigType("yaml")
	v.Set("vault_root", cfg.VaultRoot)
	v.Set("decoy_root", cfg.DecoyRoot)
	v.Set("attempts_path", cfg.AttemptsPath)
	v.Set("attempts_max", cfg.AttemptsMax)
	v.Set("lockout_seconds", cfg.LockoutSeconds)
	v.Set("triage_floor_ms", cfg.TriageFloorMs)
	v.Set("triage_jitter_ms", cfg.TriageJitterMs)
	v.Set("kdf_target_ms", cfg.KdfTargetMs)
	v.Set("kdf_mem_cap_mb", cfg.KdfMemCapMb)
	v.Set("color_output", cfg.ColorOutput)
	v.Set("editor", cfg.Editor)

	if err := os.MkdirAll(filepath.Dir(path), 0700); err != nil {
		return err
	}
	tmp := path + ".tmp"
	if err := v.WriteConfigAs(tmp); err != nil {
		return fmt.Errorf("userconfig: write %s: %w", tmp, err)
	}
	return os.Rename(tmp, path)
}
