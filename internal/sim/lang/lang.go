package lang

import (
	"embed"
	"fmt"
	"strings"

	"gopkg.in/yaml.v3"
)

//go:embed bundles/*.yaml
var bundleFS embed.FS

const fallbackLanguage = "en"

// Bundle holds one language's messages with English as the fallback for missing keys.
type Bundle struct {
	lang     string
	msgs     map[string]string
	fallback map[string]string
}

func Load(language string) (*Bundle, error) {
	language = strings.ToLower(strings.TrimSpace(language))
	if language == "" {
		language = fallbackLanguage
	}
	fb, err := readBundle(fallbackLanguage)
	if err != nil {
		return nil, err
	}
	if language == fallbackLanguage {
		return &Bundle{lang: language, msgs: fb, fallback: fb}, nil
	}
	msgs, err := readBundle(language)
	if err != nil {
		return nil, err
	}
	return &Bundle{lang: language, msgs: msgs, fallback: fb}, nil
}

// MustLoad is Load for languages already validated by tuning.
func MustLoad(language string) *Bundle {
	b, err := Load(language)
	if err != nil {
		panic(err)
	}
	return b
}

func readBundle(language string) (map[string]string, error) {
	raw, err := bundleFS.ReadFile("bundles/" + language + ".yaml")
	if err != nil {
		return nil, fmt.Errorf("lang %s: %w", language, err)
	}
	out := map[string]string{}
	if err := yaml.Unmarshal(raw, &out); err != nil {
		return nil, fmt.Errorf("lang/%s.yaml: %w", language, err)
	}
	return out, nil
}

func (b *Bundle) Language() string { return b.lang }

func (b *Bundle) Get(key string) string {
	if v, ok := b.msgs[key]; ok {
		return v
	}
	if v, ok := b.fallback[key]; ok {
		return v
	}
	return "missing message: " + key
}

// Format substitutes %name% placeholders given as name/value pairs.
func (b *Bundle) Format(key string, kv ...string) string {
	return replace(b.Get(key), kv)
}

func (b *Bundle) Prefixed(key string, kv ...string) string {
	return b.Get("prefix") + b.Format(key, kv...)
}

func (b *Bundle) Debug(key string, kv ...string) string {
	return b.Get("debug-prefix") + b.Format(key, kv...)
}

func replace(s string, kv []string) string {
	for i := 0; i+1 < len(kv); i += 2 {
		s = strings.ReplaceAll(s, "%"+kv[i]+"%", kv[i+1])
	}
	return s
}
