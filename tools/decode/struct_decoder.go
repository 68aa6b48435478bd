package decode

import (
	"bytes"
	"encoding/json"
	"fmt"
	"reflect"
	"strings"

	"github.com/mitchellh/mapstructure"
)

// Options 用于定制 Decode 行为。
type Options struct {
	// 是否启用宽松解码（默认 true）：
	// 例如 "123" -> int、123 -> "123" 等。
	WeaklyTypedInput bool
}

// DefaultOptions 返回默认选项。
func DefaultOptions() Options {
	return Options{
		WeaklyTypedInput: true,
	}
}

// Raw parses a JSON document keeping numbers as json.Number, so ids never
// pass through float64.
func Raw(data []byte) (any, error) {
	if len(bytes.TrimSpace(data)) == 0 {
		return nil, nil
	}
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()
	var out any
	if err := dec.Decode(&out); err != nil {
		return nil, fmt.Errorf("parse json: %w", err)
	}
	return out, nil
}

// Decode 将动态负载（通常是 map[string]any）解码到任意结构体 T。
// 结构体字段读取使用 `json` tag。
func Decode[T any](in any, opts ...Options) (*T, error) {
	if in == nil {
		return nil, fmt.Errorf("payload is nil")
	}

	cfg := DefaultOptions()
	if len(opts) > 0 {
		cfg = opts[0]
	}

	var out T
	decCfg := &mapstructure.DecoderConfig{
		TagName:          "json",
		Result:           &out,
		WeaklyTypedInput: cfg.WeaklyTypedInput,
		DecodeHook: mapstructure.ComposeDecodeHookFunc(
			numberToStringHook(),
			jsonRawStringToMapHook(),
		),
	}

	dec, err := mapstructure.NewDecoder(decCfg)
	if err != nil {
		return nil, fmt.Errorf("new decoder: %w", err)
	}

	if err := dec.Decode(in); err != nil {
		return nil, fmt.Errorf("decode payload: %w", err)
	}
	return &out, nil
}

// ReadID reads an identifier that clients send either bare ("c1", 42) or
// wrapped in an object; for objects the first non-empty key wins.
func ReadID(in any, keys ...string) (string, error) {
	if in == nil {
		return "", fmt.Errorf("missing id")
	}
	if m, ok := in.(map[string]any); ok {
		for _, k := range keys {
			v, ok := m[k]
			if !ok || v == nil {
				continue
			}
			s, err := scalarString(v)
			if err != nil {
				return "", fmt.Errorf("field %q: %w", k, err)
			}
			if s != "" {
				return s, nil
			}
		}
		return "", fmt.Errorf("missing field %v", keys)
	}
	s, err := scalarString(in)
	if err != nil {
		return "", err
	}
	if s == "" {
		return "", fmt.Errorf("empty id")
	}
	return s, nil
}

func scalarString(v any) (string, error) {
	switch reflect.ValueOf(v).Kind() {
	case reflect.Map, reflect.Slice, reflect.Array, reflect.Struct:
		return "", fmt.Errorf("id type %T not scalar", v)
	}
	if f, ok := v.(float64); ok {
		v = formatFloat(f)
	}
	var s string
	if err := mapstructure.WeakDecode(v, &s); err != nil {
		return "", fmt.Errorf("id type %T: %w", v, err)
	}
	return strings.TrimSpace(s), nil
}

// -----------------------------
// Decode Hooks
// -----------------------------

// numberToStringHook：把整数值的 float64 转为不带指数的字符串。
func numberToStringHook() mapstructure.DecodeHookFunc {
	return func(from, to reflect.Kind, data any) (any, error) {
		if from != reflect.Float64 || to != reflect.String {
			return data, nil
		}
		return formatFloat(data.(float64)), nil
	}
}

func formatFloat(f float64) string {
	if f == float64(int64(f)) {
		return fmt.Sprintf("%d", int64(f))
	}
	return fmt.Sprintf("%v", f)
}

// jsonRawStringToMapHook：把 JSON 字符串自动转为 map[string]any（用于某些嵌套字符串 JSON 字段）。
func jsonRawStringToMapHook() mapstructure.DecodeHookFunc {
	return func(from, to reflect.Kind, data any) (any, error) {
		if from != reflect.String || to != reflect.Map {
			return data, nil
		}
		var m map[string]any
		if err := json.Unmarshal([]byte(data.(string)), &m); err == nil {
			return m, nil
		}
		return data, nil
	}
}
