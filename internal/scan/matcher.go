package scan

import (
	"strings"
	"unicode"
	"unicode/utf8"
)

// DefaultNamespace добавляется к именам без пространства имён
const DefaultNamespace = "minecraft"

// Block блок с точки зрения сканера: нужно только имя
type Block interface {
	Name() string
}

// Matcher проверяет, является ли блок искомым
type Matcher interface {
	Matches(b Block) bool
}

// NameMatcher совпадение по точному имени блока
type NameMatcher string

// NewNameMatcher создаёт NameMatcher, дополняя имя пространством имён
func NewNameMatcher(target string) NameMatcher {
	return NameMatcher(Qualify(target))
}

func (m NameMatcher) Matches(b Block) bool {
	return b.Name() == string(m)
}

// anyOf совпадение с любым из имён
type anyOf map[string]struct{}

// AnyOf создаёт Matcher для нескольких искомых блоков
func AnyOf(targets ...string) Matcher {
	if len(targets) == 1 {
		return NewNameMatcher(targets[0])
	}
	m := make(anyOf, len(targets))
	for _, t := range targets {
		m[Qualify(t)] = struct{}{}
	}
	return m
}

func (m anyOf) Matches(b Block) bool {
	_, ok := m[b.Name()]
	return ok
}

// Qualify дополняет имя пространством имён minecraft:
func Qualify(name string) string {
	name = strings.TrimSpace(name)
	if name == "" || strings.Contains(name, ":") {
		return name
	}
	return DefaultNamespace + ":" + name
}

// Label человекочитаемое имя: "minecraft:dragon_egg" -> "Dragon egg"
func Label(name string) string {
	if i := strings.LastIndexByte(name, ':'); i >= 0 {
		name = name[i+1:]
	}
	name = strings.ReplaceAll(name, "_", " ")
	r, size := utf8.DecodeRuneInString(name)
	if r == utf8.RuneError {
		return name
	}
	return string(unicode.ToUpper(r)) + name[size:]
}
