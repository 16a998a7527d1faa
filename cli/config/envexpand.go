// Package config handles YAML config file loading for osm.
package config

import (
	"os"
	"regexp"
	"strings"
)

// envRef matches $${...} escapes and ${NAME}, ${NAME:-fallback} and
// ${NAME-fallback} references.
var envRef = regexp.MustCompile(`\$\$\{|\$\{([A-Za-z_][A-Za-z0-9_]*)(?:(:?-)([^}]*))?\}`)

// ExpandEnv substitutes environment references in a config document.
//
//	${NAME}            value of NAME, empty if unset
//	${NAME:-fallback}  fallback if NAME is unset or empty
//	${NAME-fallback}   fallback only if NAME is unset
//	$${                literal "${"
//
// Bare $NAME is left alone. An unset reference is not an error; the field it
// feeds is validated where it is used.
func ExpandEnv(doc string) string {
	matches := envRef.FindAllStringSubmatchIndex(doc, -1)
	if matches == nil {
		return doc
	}

	var b strings.Builder
	b.Grow(len(doc))
	last := 0
	for _, m := range matches {
		b.WriteString(doc[last:m[0]])
		last = m[1]
		if doc[m[0]:m[1]] == "$${" {
			b.WriteString("${")
			continue
		}

		name := doc[m[2]:m[3]]
		value, set := os.LookupEnv(name)
		if m[4] >= 0 {
			op, fallback := doc[m[4]:m[5]], doc[m[6]:m[7]]
			if !set || (op == ":-" && value == "") {
				value = fallback
			}
		}
		b.WriteString(value)
	}
	b.WriteString(doc[last:])
	return b.String()
}
