package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/joho/godotenv"
	"github.com/mitchellh/mapstructure"
	toml "github.com/pelletier/go-toml/v2"
	"gopkg.in/yaml.v3"

	"github.com/uniplat/mpresolve/internal/logger"
	"github.com/uniplat/mpresolve/internal/resolver"
)

// Options are the construction-time settings of the multi-platform resolver
// as read from a project's config file. Zero values mean "use the default".
type Options struct {
	Include     []string
	Extensions  []string
	Platform    string
	PlatformEnv string
	SourceHook  string
	TargetHook  string
	LogLevel    logger.LogLevel
}

// The scalar keys. "include" and "extensions" are decoded separately because
// a malformed list must not fail the whole file.
type fileOptions struct {
	Platform    string `mapstructure:"platform"`
	PlatformEnv string `mapstructure:"platformEnv"`
	SourceHook  string `mapstructure:"sourceHook"`
	TargetHook  string `mapstructure:"targetHook"`
	LogLevel    string `mapstructure:"logLevel"`
}

type Format uint8

const (
	FormatYAML Format = iota
	FormatTOML
	FormatJSON
)

// Searched in this order by Find
var FileNames = []string{
	"mpresolve.yaml",
	"mpresolve.yml",
	"mpresolve.toml",
	"mpresolve.json",
}

func FormatForPath(path string) (Format, bool) {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		return FormatYAML, true
	case ".toml":
		return FormatTOML, true
	case ".json":
		return FormatJSON, true
	}
	return 0, false
}

// Find returns the first config file present in "dir"
func Find(dir string) (string, bool) {
	for _, name := range FileNames {
		path := filepath.Join(dir, name)
		if info, err := os.Stat(path); err == nil && !info.IsDir() {
			return path, true
		}
	}
	return "", false
}

func Load(path string, log logger.Log) (Options, error) {
	format, ok := FormatForPath(path)
	if !ok {
		return Options{}, fmt.Errorf("unsupported config file extension %q (expected .yaml, .yml, .toml or .json)", filepath.Ext(path))
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return Options{}, fmt.Errorf("read config: %w", err)
	}
	options, err := Parse(data, format, log)
	if err != nil {
		return Options{}, fmt.Errorf("%s: %w", path, err)
	}
	return options, nil
}

func Parse(data []byte, format Format, log logger.Log) (Options, error) {
	raw := make(map[string]interface{})

	var err error
	switch format {
	case FormatYAML:
		err = yaml.Unmarshal(data, &raw)
	case FormatTOML:
		err = toml.Unmarshal(data, &raw)
	case FormatJSON:
		err = json.Unmarshal(data, &raw)
	default:
		panic("Internal error")
	}
	if err != nil {
		return Options{}, fmt.Errorf("parse config: %w", err)
	}

	return FromMap(raw, log)
}

// FromMap decodes already-parsed config data. A malformed "include" is
// treated as no inclusion and a malformed "extensions" as the default order.
// Both only produce warnings.
func FromMap(raw map[string]interface{}, log logger.Log) (Options, error) {
	var options Options
	rest := make(map[string]interface{}, len(raw))
	for k, v := range raw {
		rest[k] = v
	}

	if value, ok := rest["include"]; ok {
		delete(rest, "include")
		if err := mapstructure.Decode(value, &options.Include); err != nil {
			options.Include = nil
			log.AddMsg(logger.Msg{
				Kind:  logger.Warning,
				Text:  "Ignoring \"include\" because it is not a list of strings",
				Notes: []string{"No path inside \"node_modules\" will be rewritten"},
			})
		}
	}

	if value, ok := rest["extensions"]; ok {
		delete(rest, "extensions")
		var exts []string
		if err := weakDecode(value, &exts, nil); err != nil || !validExtensions(exts) {
			log.AddMsg(logger.Msg{
				Kind:  logger.Warning,
				Text:  "Ignoring \"extensions\" because it is not a list of extensions starting with \".\"",
				Notes: []string{fmt.Sprintf("Using the default order %s", strings.Join(resolver.DefaultExtensionOrder, ","))},
			})
		} else {
			options.Extensions = exts
		}
	}

	var file fileOptions
	var metadata mapstructure.Metadata
	if err := weakDecode(rest, &file, &metadata); err != nil {
		return Options{}, fmt.Errorf("decode config: %w", err)
	}
	for _, key := range metadata.Unused {
		log.AddWarning(fmt.Sprintf("Unknown config key %q", key))
	}

	options.Platform = file.Platform
	options.PlatformEnv = file.PlatformEnv
	options.SourceHook = file.SourceHook
	options.TargetHook = file.TargetHook

	if file.LogLevel != "" {
		level, ok := logger.ParseLogLevel(file.LogLevel)
		if !ok {
			return Options{}, fmt.Errorf("invalid log level %q", file.LogLevel)
		}
		options.LogLevel = level
	}

	return options, nil
}

func weakDecode(input interface{}, output interface{}, metadata *mapstructure.Metadata) error {
	decoder, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		WeaklyTypedInput: true,
		Metadata:         metadata,
		Result:           output,
	})
	if err != nil {
		return err
	}
	return decoder.Decode(input)
}

func validExtensions(exts []string) bool {
	if len(exts) == 0 {
		return false
	}
	for _, ext := range exts {
		if len(ext) < 2 || ext[0] != '.' {
			return false
		}
	}
	return true
}

// ResolvePlatform picks the platform identifier: an explicit flag value wins,
// then the config file, then the environment variable named by PlatformEnv.
func (o Options) ResolvePlatform(flag string) string {
	if flag != "" {
		return flag
	}
	if o.Platform != "" {
		return o.Platform
	}
	return os.Getenv(o.PlatformEnvName())
}

func (o Options) PlatformEnvName() string {
	if o.PlatformEnv != "" {
		return o.PlatformEnv
	}
	return resolver.DefaultPlatformEnv
}

// LoadDotEnv loads "dir/.env" into the process environment without
// overriding variables that are already set. A missing file is not an error.
func LoadDotEnv(dir string) error {
	err := godotenv.Load(filepath.Join(dir, ".env"))
	if err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("load .env: %w", err)
	}
	return nil
}
