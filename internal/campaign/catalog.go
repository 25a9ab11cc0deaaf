package campaign

import (
	_ "embed"
	"fmt"
	"strings"

	"gopkg.in/yaml.v3"
)

// Complexity はキャンペーンの規模です。
type Complexity string

const (
	ComplexitySimple  Complexity = "simple"
	ComplexityMedium  Complexity = "medium"
	ComplexityComplex Complexity = "complex"
)

//go:embed catalog.yaml
var catalogYAML []byte

// ComplexityInfo は規模ごとの説明と生成時のガイドラインです。
type ComplexityInfo struct {
	Name        string `yaml:"name" json:"name"`
	Sessions    string `yaml:"sessions" json:"sessions"`
	Duration    string `yaml:"duration" json:"duration"`
	Description string `yaml:"description" json:"description"`
	Focus       string `yaml:"focus" json:"focus"`
	Guidelines  string `yaml:"guidelines" json:"-"`
}

// Language は対応言語です。
type Language struct {
	Code string `yaml:"code" json:"code"`
	Name string `yaml:"name" json:"name"`
}

// Fallback は生成サービスが使えないときに返す定型キャンペーンです。
type Fallback struct {
	Title    string `yaml:"title"`
	Sessions int    `yaml:"sessions"`
	Overview string `yaml:"overview"`
	Content  string `yaml:"content"`
}

type catalog struct {
	DefaultComplexity Complexity                    `yaml:"default_complexity"`
	Complexities      map[Complexity]ComplexityInfo `yaml:"complexities"`
	Languages         []Language                    `yaml:"languages"`
	Fallbacks         map[Complexity]Fallback       `yaml:"fallbacks"`
}

var builtin = mustLoadCatalog(catalogYAML)

func mustLoadCatalog(data []byte) *catalog {
	var c catalog
	if err := yaml.Unmarshal(data, &c); err != nil {
		panic(fmt.Sprintf("campaign: invalid catalog: %v", err))
	}
	if _, ok := c.Complexities[c.DefaultComplexity]; !ok {
		panic("campaign: default complexity missing from catalog")
	}
	if _, ok := c.Fallbacks[c.DefaultComplexity]; !ok {
		panic("campaign: default fallback missing from catalog")
	}
	return &c
}

// ParseComplexity は入力値を Complexity に変換します。空文字は既定値です。
func ParseComplexity(s string) (Complexity, error) {
	s = strings.ToLower(strings.TrimSpace(s))
	if s == "" {
		return builtin.DefaultComplexity, nil
	}
	c := Complexity(s)
	if _, ok := builtin.Complexities[c]; !ok {
		return "", newError(CodeInvalidInput,
			"complexity must be one of: simple, medium, complex", nil)
	}
	return c, nil
}

// Complexities は全ての規模の説明を返します。
func Complexities() map[Complexity]ComplexityInfo {
	out := make(map[Complexity]ComplexityInfo, len(builtin.Complexities))
	for k, v := range builtin.Complexities {
		out[k] = v
	}
	return out
}

// Info は規模の説明を返します。未知の値は既定値の説明です。
func Info(c Complexity) ComplexityInfo {
	if info, ok := builtin.Complexities[c]; ok {
		return info
	}
	return builtin.Complexities[builtin.DefaultComplexity]
}

// Guidelines は生成時に渡すガイドラインを返します。
func Guidelines(c Complexity) string {
	return Info(c).Guidelines
}

// SessionCount は表示用のセッション数（例: "3-4"）を返します。
func SessionCount(c Complexity) string {
	return Info(c).Sessions
}

// FallbackFor は定型キャンペーンを返します。専用のものが無い規模は既定値のものを使います。
func FallbackFor(c Complexity) Fallback {
	if f, ok := builtin.Fallbacks[c]; ok {
		return f
	}
	return builtin.Fallbacks[builtin.DefaultComplexity]
}

// SupportedLanguages は対応言語の一覧を返します。
func SupportedLanguages() []Language {
	return append([]Language(nil), builtin.Languages...)
}

// IsSupportedLanguage は言語コードが対応しているかを返します。
func IsSupportedLanguage(code string) bool {
	for _, l := range builtin.Languages {
		if l.Code == code {
			return true
		}
	}
	return false
}
