// Package config resolves the service's runtime configuration from
// flags, environment variables and an optional file, in that order of
// precedence (CLI > env > file > defaults).
package config

import (
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"
)

// Config is the fully resolved set of settings the service runs with.
type Config struct {
	Host      string `mapstructure:"host" json:"host"`
	Port      int    `mapstructure:"port" json:"port"`
	ModelsDir string `mapstructure:"models_dir" json:"models_dir"`
	Token     string `mapstructure:"token" json:"token,omitempty"`
	AutoStart bool   `mapstructure:"auto_start" json:"auto_start"`

	SandboxRoots        []string `mapstructure:"sandbox_roots" json:"sandbox_roots,omitempty"`
	AllowedCmds         []string `mapstructure:"allowed_commands" json:"allowed_commands,omitempty"`
	GGUFCommand         string   `mapstructure:"gguf_command" json:"gguf_command,omitempty"`
	TransformersCommand string   `mapstructure:"transformers_command" json:"transformers_command,omitempty"`
	LogLevel            string   `mapstructure:"log_level" json:"log_level"`
}

func defaults() Config {
	return Config{
		Host:      "0.0.0.0",
		Port:      8000,
		ModelsDir: "./jarvis-data",
		AutoStart: true,
		LogLevel:  "info",
	}
}

// envPrefix matches every JARVIS_CORE_-prefixed environment variable to
// its dotted key, e.g. JARVIS_CORE_MODELS_DIR -> models_dir.
const envPrefix = "JARVIS_CORE"

// BuildRootCommand constructs the cobra command whose flags + RunE
// resolve into a Config and invoke run.
func BuildRootCommand(run func(cfg Config) error) *cobra.Command {
	var configFile string

	cmd := &cobra.Command{
		Use:   "jarvis-core",
		Short: "Local LLM lifecycle and chat service",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := Resolve(cmd.Flags(), configFile)
			if err != nil {
				return err
			}
			return run(cfg)
		},
	}

	flags := cmd.Flags()
	d := defaults()
	flags.String("host", d.Host, "address to bind the HTTP server to")
	flags.Int("port", d.Port, "port to bind the HTTP server to")
	flags.String("models-dir", d.ModelsDir, "directory for the persisted model catalogue and downloads")
	flags.String("token", "", "shared secret required on every request's Authorization header")
	flags.Bool("no-auto-start", false, "resolve the configuration and exit without starting the HTTP server")
	flags.StringSlice("sandbox-roots", nil, "filesystem roots the action surface may read/write under")
	flags.StringSlice("allowed-commands", nil, "executable names the run action may invoke")
	flags.String("gguf-command", "", "executable used to launch a GGUF backend worker")
	flags.String("transformers-command", "", "executable used to launch a transformers backend worker")
	flags.String("log-level", d.LogLevel, "klog verbosity level")
	flags.StringVar(&configFile, "config", "./config.json", "path to a JSON config file")

	return cmd
}

// Resolve computes the final Config from flags (highest precedence),
// then environment variables, then an optional config file, then
// defaults (lowest precedence) — matching resolve_config's layering.
func Resolve(flags *pflag.FlagSet, configFile string) (Config, error) {
	v := viper.New()
	v.SetEnvPrefix(envPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	v.AutomaticEnv()

	d := defaults()
	v.SetDefault("host", d.Host)
	v.SetDefault("port", d.Port)
	v.SetDefault("models_dir", d.ModelsDir)
	v.SetDefault("auto_start", d.AutoStart)
	v.SetDefault("log_level", d.LogLevel)

	if configFile != "" {
		if _, err := os.Stat(configFile); err == nil {
			v.SetConfigFile(configFile)
			if err := v.ReadInConfig(); err != nil {
				return Config{}, fmt.Errorf("read config file %q: %w", configFile, err)
			}
		}
	}

	if err := v.BindPFlag("host", flags.Lookup("host")); err != nil {
		return Config{}, err
	}
	if err := v.BindPFlag("port", flags.Lookup("port")); err != nil {
		return Config{}, err
	}
	if err := v.BindPFlag("models_dir", flags.Lookup("models-dir")); err != nil {
		return Config{}, err
	}
	if err := v.BindPFlag("token", flags.Lookup("token")); err != nil {
		return Config{}, err
	}
	if flag := flags.Lookup("no-auto-start"); flag != nil && flag.Changed {
		noAutoStart := flag.Value.String() == "true"
		v.Set("auto_start", !noAutoStart)
	}
	if err := v.BindPFlag("sandbox_roots", flags.Lookup("sandbox-roots")); err != nil {
		return Config{}, err
	}
	if err := v.BindPFlag("allowed_commands", flags.Lookup("allowed-commands")); err != nil {
		return Config{}, err
	}
	if err := v.BindPFlag("gguf_command", flags.Lookup("gguf-command")); err != nil {
		return Config{}, err
	}
	if err := v.BindPFlag("transformers_command", flags.Lookup("transformers-command")); err != nil {
		return Config{}, err
	}
	if err := v.BindPFlag("log_level", flags.Lookup("log-level")); err != nil {
		return Config{}, err
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, fmt.Errorf("unmarshal config: %w", err)
	}
	if len(cfg.SandboxRoots) == 0 {
		cwd, err := os.Getwd()
		if err != nil {
			return Config{}, fmt.Errorf("resolve working directory: %w", err)
		}
		cfg.SandboxRoots = []string{cwd, cfg.ModelsDir}
	}
	if cfg.ModelsDir == "" {
		return Config{}, fmt.Errorf("models_dir must be set")
	}
	if info, err := os.Stat(cfg.ModelsDir); err != nil || !info.IsDir() {
		return Config{}, fmt.Errorf("models_dir %q must be an existing directory", cfg.ModelsDir)
	}
	return cfg, nil
}

// Masked returns a copy of cfg with Token replaced by "***" when
// non-empty, for safe exposure over GET /config.
func (c Config) Masked() Config {
	masked := c
	if masked.Token != "" {
		masked.Token = "***"
	}
	return masked
}
