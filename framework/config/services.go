package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/BurntSushi/toml"
	"gopkg.in/ini.v1"
	"gopkg.in/yaml.v3"

	"github.com/km-arc/cubex/framework/container"
)

// ErrUnsupportedFormat is returned for service files that are not INI, TOML
// or YAML.
var ErrUnsupportedFormat = errors.New("unsupported config format")

// LoadServices reads a services file and returns one ServiceConfig per
// top-level section, in file order. The format follows the extension:
// .ini, .toml, or .yaml/.yml. ${VAR} references in string values are expanded
// from the environment.
//
//	[cache]
//	service_provider = "cache.redis"
//	addr = "${REDIS_ADDR}"
func LoadServices(path string) ([]*container.ServiceConfig, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("config: read services: %w", err)
	}
	switch strings.ToLower(filepath.Ext(path)) {
	case ".ini":
		return ParseServicesINI(data)
	case ".toml":
		return ParseServicesTOML(data)
	case ".yaml", ".yml":
		return ParseServicesYAML(data)
	default:
		return nil, fmt.Errorf("%w: %s", ErrUnsupportedFormat, path)
	}
}

// ParseServicesINI parses INI sections into service configs. Values stay
// strings; a key written as name[] may repeat and becomes a list.
//
//	[jobs]
//	service_provider = queue.sharded
//	shards[] = jobs_a
//	shards[] = jobs_b
func ParseServicesINI(data []byte) ([]*container.ServiceConfig, error) {
	f, err := ini.LoadSources(ini.LoadOptions{
		AllowShadows:       true,
		IgnoreContinuation: true,
	}, data)
	if err != nil {
		return nil, fmt.Errorf("config: parse ini: %w", err)
	}

	var out []*container.ServiceConfig
	for _, sec := range f.Sections() {
		if sec.Name() == ini.DefaultSection {
			if len(sec.Keys()) > 0 {
				return nil, fmt.Errorf("config: ini keys outside a section: %v", sec.KeyStrings())
			}
			continue
		}
		section := make(map[string]any, len(sec.Keys()))
		for _, key := range sec.Keys() {
			if name, ok := strings.CutSuffix(key.Name(), "[]"); ok {
				values := key.ValueWithShadows()
				list := make([]any, 0, len(values))
				for _, v := range values {
					list = append(list, v)
				}
				section[name] = list
				continue
			}
			section[key.Name()] = key.String()
		}
		out = append(out, container.NewServiceConfig(sec.Name(), expand(section)))
	}
	return out, nil
}

// ParseServicesTOML parses TOML tables into service configs.
func ParseServicesTOML(data []byte) ([]*container.ServiceConfig, error) {
	var raw map[string]any
	md, err := toml.Decode(string(data), &raw)
	if err != nil {
		return nil, fmt.Errorf("config: parse toml: %w", err)
	}

	var out []*container.ServiceConfig
	for _, key := range md.Keys() {
		if len(key) != 1 {
			continue
		}
		name := key[0]
		section, ok := raw[name].(map[string]any)
		if !ok {
			return nil, fmt.Errorf("config: %s is not a table", name)
		}
		out = append(out, container.NewServiceConfig(name, expand(section)))
	}
	return out, nil
}

// ParseServicesYAML parses top-level YAML mappings into service configs.
func ParseServicesYAML(data []byte) ([]*container.ServiceConfig, error) {
	var doc yaml.Node
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("config: parse yaml: %w", err)
	}
	if len(doc.Content) == 0 {
		return nil, nil
	}
	root := doc.Content[0]
	if root.Kind != yaml.MappingNode {
		return nil, fmt.Errorf("config: services file must be a mapping")
	}

	out := make([]*container.ServiceConfig, 0, len(root.Content)/2)
	for i := 0; i+1 < len(root.Content); i += 2 {
		name := root.Content[i].Value
		var section map[string]any
		if err := root.Content[i+1].Decode(&section); err != nil {
			return nil, fmt.Errorf("config: section %s: %w", name, err)
		}
		if section == nil {
			section = map[string]any{}
		}
		out = append(out, container.NewServiceConfig(name, expand(section)))
	}
	return out, nil
}

func expand(section map[string]any) map[string]any {
	for k, v := range section {
		switch t := v.(type) {
		case string:
			section[k] = os.ExpandEnv(t)
		case []any:
			for i, item := range t {
				if s, ok := item.(string); ok {
					t[i] = os.ExpandEnv(s)
				}
			}
		}
	}
	return section
}
