package config

import (
	"fmt"
	"os"
	"reflect"
	"strconv"
	"strings"
	"time"
	"unicode"

	"github.com/pelletier/go-toml/v2"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"github.com/tektite-io/voicebox/internal/logging"
)

// EnvPrefix is prepended to every `env` tag when reading the environment.
const EnvPrefix = "VOICEBOX_"

var durationType = reflect.TypeOf(time.Duration(0))

// binding ties one options field to the places its value may come from.
type binding struct {
	field reflect.Value
	flag  string
	toml  string
	env   string
}

// LoadConfig fills opts from the config file and the environment.
// Precedence is CLI flags, then VOICEBOX_* variables, then the TOML file.
//
// opts must point to a flat struct whose Config field holds the TOML path.
// Flags the user set on cmd are left untouched.
func LoadConfig(opts any, cmd *cobra.Command) error {
	rv := reflect.ValueOf(opts)
	if rv.Kind() != reflect.Pointer || rv.Elem().Kind() != reflect.Struct {
		return fmt.Errorf("config options must be a pointer to a struct, got %T", opts)
	}

	bindings, configPath := collectBindings(rv.Elem(), changedFlags(cmd))

	if configPath != "" {
		doc, err := readDocument(configPath)
		if err != nil {
			return err
		}
		for _, b := range bindings {
			if b.toml == "" {
				continue
			}
			if value := lookup(doc, b.toml); value != nil {
				assign(b.field, value)
			}
		}
	}

	for _, b := range bindings {
		if b.env == "" {
			continue
		}
		if value := os.Getenv(EnvPrefix + b.env); value != "" {
			assignString(b.field, value)
		}
	}
	return nil
}

func changedFlags(cmd *cobra.Command) map[string]bool {
	changed := make(map[string]bool)
	if cmd == nil {
		return changed
	}
	cmd.Flags().Visit(func(f *pflag.Flag) {
		changed[f.Name] = true
	})
	return changed
}

// collectBindings returns the settable fields not overridden on the command
// line, plus the value of the Config field.
func collectBindings(v reflect.Value, skip map[string]bool) ([]binding, string) {
	var (
		out        []binding
		configPath string
	)
	t := v.Type()
	for i := range t.NumField() {
		sf := t.Field(i)
		if sf.Name == "Config" && sf.Type.Kind() == reflect.String {
			configPath = v.Field(i).String()
			continue
		}
		field := v.Field(i)
		if !field.CanSet() {
			continue
		}
		flag := flagName(sf.Name)
		if skip[flag] {
			continue
		}
		out = append(out, binding{
			field: field,
			flag:  flag,
			toml:  sf.Tag.Get("toml"),
			env:   sf.Tag.Get("env"),
		})
	}
	return out, configPath
}

// readDocument parses the TOML file at path. A missing file is an empty document.
func readDocument(path string) (map[string]any, error) {
	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read config %s: %w", path, err)
	}
	var doc map[string]any
	if err := toml.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("failed to parse TOML config: %w", err)
	}
	return doc, nil
}

// flagName converts a field name to its kebab-case flag, e.g.
// "LoggingLevel" -> "logging-level".
func flagName(field string) string {
	var b strings.Builder
	for i, r := range field {
		if unicode.IsUpper(r) {
			if i > 0 {
				b.WriteByte('-')
			}
			r = unicode.ToLower(r)
		}
		b.WriteRune(r)
	}
	return b.String()
}

// lookup resolves a dotted path such as "sidecar.binary" in a TOML document.
func lookup(doc map[string]any, path string) any {
	table := doc
	keys := strings.Split(path, ".")
	for _, key := range keys[:len(keys)-1] {
		next, ok := table[key].(map[string]any)
		if !ok {
			return nil
		}
		table = next
	}
	return table[keys[len(keys)-1]]
}

// assign stores a decoded TOML value. Mismatched types are ignored and the
// field keeps its default.
func assign(field reflect.Value, value any) {
	if s, ok := value.(string); ok {
		if field.Kind() == reflect.String || field.Type() == durationType {
			assignString(field, s)
		}
		return
	}

	switch field.Kind() {
	case reflect.Bool:
		if b, ok := value.(bool); ok {
			field.SetBool(b)
		}
	case reflect.Int, reflect.Int64:
		if field.Type() == durationType {
			return
		}
		switch n := value.(type) {
		case int64:
			field.SetInt(n)
		case int:
			field.SetInt(int64(n))
		}
	case reflect.Slice:
		items, ok := value.([]any)
		if !ok || field.Type().Elem().Kind() != reflect.String {
			return
		}
		list := make([]string, 0, len(items))
		for _, item := range items {
			if s, isStr := item.(string); isStr {
				list = append(list, s)
			}
		}
		field.Set(reflect.ValueOf(list))
	}
}

// assignString parses an environment value into the field's type.
// Slices are comma separated.
func assignString(field reflect.Value, value string) {
	switch field.Kind() {
	case reflect.String:
		field.SetString(value)
	case reflect.Bool:
		if b, err := strconv.ParseBool(value); err == nil {
			field.SetBool(b)
		}
	case reflect.Int, reflect.Int64:
		if field.Type() == durationType {
			if d, err := time.ParseDuration(value); err == nil {
				field.SetInt(int64(d))
			}
		} else if n, err := strconv.ParseInt(value, 10, 64); err == nil {
			field.SetInt(n)
		}
	case reflect.Slice:
		if field.Type().Elem().Kind() != reflect.String {
			return
		}
		var list []string
		for _, part := range strings.Split(value, ",") {
			if part = strings.TrimSpace(part); part != "" {
				list = append(list, part)
			}
		}
		field.Set(reflect.ValueOf(list))
	}
}

// LoadLoggingConfig loads logging configuration from a TOML config file.
// Returns default config if file doesn't exist or can't be parsed.
//
// Module levels may be given in a [logging.modules] table or, for
// compatibility with older files, as extra keys of [logging].
func LoadLoggingConfig(configPath string) logging.Config {
	cfg := logging.Config{
		Level:   "info",
		Format:  "text",
		Modules: make(map[string]string),
	}

	if configPath == "" {
		return cfg
	}

	data, err := os.ReadFile(configPath)
	if err != nil {
		return cfg
	}

	var rawConfig struct {
		Logging map[string]any `toml:"logging"`
	}
	if err := toml.Unmarshal(data, &rawConfig); err != nil {
		return cfg
	}

	for key, value := range rawConfig.Logging {
		switch key {
		case "level":
			if s, ok := value.(string); ok {
				cfg.Level = s
			}
		case "format":
			if s, ok := value.(string); ok {
				cfg.Format = s
			}
		case "buffer_size":
			if n, ok := value.(int64); ok {
				cfg.BufferSize = int(n)
			}
		case "modules":
			if modules, ok := value.(map[string]any); ok {
				for module, level := range modules {
					if s, isStr := level.(string); isStr {
						cfg.Modules[module] = s
					}
				}
			}
		default:
			if s, ok := value.(string); ok {
				cfg.Modules[key] = s
			}
		}
	}

	return cfg
}
