package cfg

import (
	"encoding/json"
	"strconv"
	"strings"

	"github.com/BurntSushi/toml"
	"github.com/pkg/errors"
	"gopkg.in/ini.v1"
	"gopkg.in/yaml.v3"
)

func decode(data []byte, format Format) (map[string]any, error) {
	result := map[string]any{}
	switch format {
	case YAML:
		if err := yaml.Unmarshal(data, &result); err != nil {
			return nil, errors.Wrap(err, "decode yaml")
		}
	case JSON:
		if len(strings.TrimSpace(string(data))) == 0 {
			return result, nil
		}
		if err := json.Unmarshal(data, &result); err != nil {
			return nil, errors.Wrap(err, "decode json")
		}
	case TOML:
		if err := toml.Unmarshal(data, &result); err != nil {
			return nil, errors.Wrap(err, "decode toml")
		}
	case INI:
		return decodeINI(data)
	default:
		return nil, errors.Errorf("unsupported config format %q", format)
	}
	return result, nil
}

// decodeINI 默认 section 的键放在顶层，其余 section 作为嵌套 map；
// 名为 a.b 的 section 展开为两层
func decodeINI(data []byte) (map[string]any, error) {
	file, err := ini.LoadSources(ini.LoadOptions{
		AllowBooleanKeys:         true,
		AllowShadows:             true,
		SpaceBeforeInlineComment: true,
	}, data)
	if err != nil {
		return nil, errors.Wrap(err, "decode ini")
	}

	result := map[string]any{}
	for _, section := range file.Sections() {
		target := result
		if name := section.Name(); name != ini.DefaultSection {
			for _, part := range strings.Split(name, ".") {
				sub, ok := target[part].(map[string]any)
				if !ok {
					sub = map[string]any{}
					target[part] = sub
				}
				target = sub
			}
		}
		for _, key := range section.Keys() {
			target[key.Name()] = iniValue(key)
		}
	}
	return result, nil
}

func iniValue(key *ini.Key) any {
	if shadows := key.ValueWithShadows(); len(shadows) > 1 {
		values := make([]any, len(shadows))
		for i, s := range shadows {
			values[i] = iniScalar(s)
		}
		return values
	}
	return iniScalar(key.String())
}

func iniScalar(s string) any {
	switch strings.ToLower(s) {
	case "true":
		return true
	case "false":
		return false
	}
	if i, err := strconv.ParseInt(s, 10, 64); err == nil {
		return i
	}
	if f, err := strconv.ParseFloat(s, 64); err == nil {
		return f
	}
	return s
}
