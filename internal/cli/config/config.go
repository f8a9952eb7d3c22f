// Package config merges defaults, config files, profiles, the environment
// and command-line flags into the settings of one CLI invocation.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/joho/godotenv"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"

	"github.com/stackvity/stack-linguist/pkg/linguist"
	"github.com/stackvity/stack-linguist/pkg/linguist/cache"
)

const (
	EnvPrefix         = "STACKLINGUIST"
	DefaultConfigName = "stack-linguist"
	DotEnvFile        = ".env"

	// SamplesGitHub selects the public Linguist samples over HTTP.
	SamplesGitHub = "github"

	DefaultWatchDebounce = 300 * time.Millisecond
)

// Settings is everything one invocation needs. Library options are
// embedded so config keys for them live at the top level.
type Settings struct {
	linguist.Options `mapstructure:",squash"`

	// Paths are the positional arguments.
	Paths []string `mapstructure:"-"`

	JSON bool   `mapstructure:"json"`
	Tree string `mapstructure:"tree"`
	// TreeSet reports whether a tree traversal was requested at all; an
	// empty Tree then prints the whole result.
	TreeSet bool `mapstructure:"-"`

	Verbose    bool `mapstructure:"verbose"`
	TUIEnabled bool `mapstructure:"tui"`

	DataDir         string `mapstructure:"dataDir"`
	Samples         string `mapstructure:"samples"`
	SamplesCacheDir string `mapstructure:"samplesCacheDir"`
	GitHubToken     string `mapstructure:"githubToken"`

	CacheFile   string `mapstructure:"cache"`
	CacheFormat string `mapstructure:"cacheFormat" validate:"oneof=gob json"`

	GitMode       string        `mapstructure:"git" validate:"omitempty,oneof=tracked changed"`
	Watch         bool          `mapstructure:"watch"`
	WatchDebounce time.Duration `mapstructure:"watchDebounce" validate:"gte=0"`

	MetricsFile string `mapstructure:"metricsFile"`
	Trace       bool   `mapstructure:"trace"`

	ConfigFilePath string `mapstructure:"-"`
	ProfileName    string `mapstructure:"-"`
}

// Input maps the positional paths onto the engine input. A single path is
// the root; several paths are classified as a file list under the working
// directory.
func (s Settings) Input() linguist.Input {
	switch len(s.Paths) {
	case 0:
		return linguist.Input{Root: "."}
	case 1:
		return linguist.Input{Root: s.Paths[0]}
	default:
		return linguist.Input{Root: ".", Files: s.Paths}
	}
}

// flagKeys maps flag names to config keys. Flags named like their key are
// listed with an identical value.
var flagKeys = map[string]string{
	"ignoredFiles":     "ignoredFiles",
	"ignoredLanguages": "ignoredLanguages",
	"categories":       "categories",
	"childLanguages":   "childLanguages",
	"json":             "json",
	"tree":             "tree",
	"quick":            "quick",
	"keepVendored":     "keepVendored",
	"keepBinary":       "keepBinary",
	"checkAttributes":  "checkAttributes",
	"checkIgnored":     "checkIgnored",
	"checkHeuristics":  "checkHeuristics",
	"checkShebang":     "checkShebang",
	"verbose":          "verbose",
	"concurrency":      "concurrency",
	"data-dir":         "dataDir",
	"samples":          "samples",
	"samples-cache":    "samplesCacheDir",
	"fallback":         "fallback",
	"cache":            "cache",
	"cache-format":     "cacheFormat",
	"git":              "git",
	"watch":            "watch",
	"watch-debounce":   "watchDebounce",
	"metrics-file":     "metricsFile",
	"trace":            "trace",
}

var validate = validator.New()

// LoadAndValidate builds the settings with the precedence defaults, config
// file, profile, environment (including a .env file in the working
// directory), then flags. It also returns the logger for the rest of the
// invocation.
func LoadAndValidate(cfgFile, profileName, appVersion string, flags *pflag.FlagSet, args []string) (Settings, *slog.Logger, error) {
	var s Settings
	v := viper.New()
	tempLogger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelInfo}))

	setDefaults(v)

	if cfgFile != "" {
		v.SetConfigFile(cfgFile)
	} else {
		v.SetConfigName(DefaultConfigName)
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		if home, err := os.UserHomeDir(); err == nil {
			v.AddConfigPath(filepath.Join(home, ".config", DefaultConfigName))
			v.AddConfigPath(filepath.Join(home, "."+DefaultConfigName))
		} else {
			tempLogger.Debug("No home directory, searching the working directory only", slog.String("error", err.Error()))
		}
	}

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) || cfgFile != "" {
			used := cfgFile
			if used == "" {
				used = fmt.Sprintf("searched locations for %s.yaml", DefaultConfigName)
			}
			return s, tempLogger, fmt.Errorf("%w: error reading config file '%s': %v", linguist.ErrConfigValidation, used, err)
		}
		tempLogger.Debug("No configuration file found, using defaults/env/flags")
	} else {
		s.ConfigFilePath = v.ConfigFileUsed()
	}

	s.ProfileName = profileName
	if profileName != "" {
		profileKey := "profiles." + profileName
		profile := v.Sub(profileKey)
		if profile == nil {
			where := v.ConfigFileUsed()
			if where == "" {
				where = "(no config file found)"
			}
			return s, tempLogger, fmt.Errorf("%w: profile '%s' not found in config file '%s'", linguist.ErrConfigValidation, profileName, where)
		}
		if err := v.MergeConfigMap(profile.AllSettings()); err != nil {
			return s, tempLogger, fmt.Errorf("error merging profile '%s': %w", profileName, err)
		}
	}

	if err := godotenv.Load(DotEnvFile); err != nil && !errors.Is(err, fs.ErrNotExist) {
		tempLogger.Warn("Could not read .env file", slog.String("error", err.Error()))
	}
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_", "-", "_"))
	v.AutomaticEnv()
	if err := v.BindEnv("githubToken", EnvPrefix+"_GITHUB_TOKEN", "GITHUB_TOKEN"); err != nil {
		return s, tempLogger, fmt.Errorf("error binding environment: %w", err)
	}

	if flags != nil {
		for name, key := range flagKeys {
			flag := flags.Lookup(name)
			if flag == nil {
				continue
			}
			if err := v.BindPFlag(key, flag); err != nil {
				return s, tempLogger, fmt.Errorf("error binding flag '--%s': %w", name, err)
			}
		}
	}

	if err := v.Unmarshal(&s); err != nil {
		return s, tempLogger, fmt.Errorf("%w: error unmarshalling configuration: %v", linguist.ErrConfigValidation, err)
	}
	s.Paths = args
	s.AppVersion = appVersion
	s.TreeSet = v.IsSet("tree")
	if s.TreeSet {
		s.JSON = true
	}

	// Explicit flags win over anything viper merged for the UI switches.
	if flags != nil {
		if flags.Changed("verbose") {
			s.Verbose, _ = flags.GetBool("verbose")
		}
		if flags.Changed("no-tui") {
			if noTUI, _ := flags.GetBool("no-tui"); noTUI {
				s.TUIEnabled = false
			}
		}
	}
	if s.Verbose {
		s.TUIEnabled = false
	}

	logLevel := slog.LevelInfo
	if s.Verbose {
		logLevel = slog.LevelDebug
	}
	handler := slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: logLevel})
	logger := slog.New(handler)
	s.Logger = handler

	if err := validateSettings(&s); err != nil {
		logger.Error("Invalid configuration", slog.String("error", err.Error()))
		return s, logger, err
	}

	logger.Debug("Configuration loaded",
		slog.String("configFile", s.ConfigFilePath),
		slog.String("profile", s.ProfileName),
		slog.Bool("verbose", s.Verbose),
		slog.String("logLevel", logLevel.String()))
	return s, logger, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("ignoredFiles", []string{})
	v.SetDefault("ignoredLanguages", []string{})
	v.SetDefault("categories", []string{})
	v.SetDefault("childLanguages", linguist.DefaultChildLanguages)
	v.SetDefault("keepVendored", linguist.DefaultKeepVendored)
	v.SetDefault("keepBinary", linguist.DefaultKeepBinary)
	v.SetDefault("checkAttributes", linguist.DefaultCheckAttributes)
	v.SetDefault("checkIgnored", linguist.DefaultCheckIgnored)
	v.SetDefault("checkHeuristics", linguist.DefaultCheckHeuristics)
	v.SetDefault("checkShebang", linguist.DefaultCheckShebang)
	v.SetDefault("quick", linguist.DefaultQuick)
	v.SetDefault("concurrency", linguist.DefaultConcurrency)
	v.SetDefault("fallback", string(linguist.DefaultFallback))
	v.SetDefault("maxFileBytes", linguist.DefaultMaxFileBytes)
	v.SetDefault("defaultEncoding", "")

	v.SetDefault("json", false)
	v.SetDefault("verbose", false)
	v.SetDefault("tui", true)
	v.SetDefault("dataDir", "")
	v.SetDefault("samples", "")
	v.SetDefault("samplesCacheDir", "")
	v.SetDefault("githubToken", "")
	v.SetDefault("cache", "")
	v.SetDefault("cacheFormat", cache.DefaultFormat)
	v.SetDefault("git", "")
	v.SetDefault("watch", false)
	v.SetDefault("watchDebounce", DefaultWatchDebounce)
	v.SetDefault("metricsFile", "")
	v.SetDefault("trace", false)
}

// validateSettings checks field tags, then the paths the settings name.
// Every error wraps linguist.ErrConfigValidation.
func validateSettings(s *Settings) error {
	if err := validate.Struct(s); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) && len(verrs) > 0 {
			fe := verrs[0]
			return fmt.Errorf("%w: invalid value '%v' for key '%s' (%s)", linguist.ErrConfigValidation, fe.Value(), fe.Field(), fe.Tag())
		}
		return fmt.Errorf("%w: %v", linguist.ErrConfigValidation, err)
	}
	if s.DataDir != "" {
		if err := requireDir(s.DataDir, "dataDir"); err != nil {
			return err
		}
	}
	if s.Samples != "" && s.Samples != SamplesGitHub {
		if err := requireDir(s.Samples, "samples"); err != nil {
			return err
		}
	}
	for _, p := range s.Paths {
		if _, err := os.Stat(p); err != nil {
			return fmt.Errorf("%w: input path '%s' cannot be accessed: %v", linguist.ErrConfigValidation, p, err)
		}
	}
	if s.GitMode != "" && len(s.Paths) > 1 {
		return fmt.Errorf("%w: --git takes at most one path", linguist.ErrConfigValidation)
	}
	if s.Watch && s.TreeSet {
		return fmt.Errorf("%w: --watch cannot be combined with --tree", linguist.ErrConfigValidation)
	}
	return nil
}

func requireDir(path, key string) error {
	info, err := os.Stat(path)
	if err != nil {
		return fmt.Errorf("%w: %s path '%s' cannot be accessed: %v", linguist.ErrConfigValidation, key, path, err)
	}
	if !info.IsDir() {
		return fmt.Errorf("%w: %s path '%s' is not a directory", linguist.ErrConfigValidation, key, path)
	}
	return nil
}
