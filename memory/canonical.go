package memory

import (
	"regexp"
	"strings"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"

	"github.com/becomeliminal/nim-memory/core"
)

// canonicalKeys maps slot-name variants onto the key facts are stored under.
var canonicalKeys = map[string]string{
	"programming_language": "favorite_language",
	"destination_city":     "destination",
	"study_session":        "study_time",
	"city":                 "location",
	"hometown":             "location",
	"occupation":           "job",
	"profession":           "job",
	"full_name":            "name",
	"favourite_language":   "favorite_language",
}

// synonyms are keys that are always stored together.
var synonyms = map[string]string{
	"certificate":   "certification",
	"certification": "certificate",
}

// identityKeys are routed to the identity category.
var identityKeys = map[string]bool{
	"name":     true,
	"age":      true,
	"location": true,
	"job":      true,
}

var keySeparators = regexp.MustCompile(`[\s\-]+`)

// CanonicalKey normalizes a slot name: lower-case, runs of whitespace and
// hyphens become one underscore, then the canonical key table is applied.
func CanonicalKey(key string) string {
	k := strings.ToLower(strings.TrimSpace(key))
	k = keySeparators.ReplaceAllString(k, "_")
	k = strings.Trim(k, "_.?!,")
	if strings.HasPrefix(k, "favourite_") {
		k = "favorite_" + strings.TrimPrefix(k, "favourite_")
	}
	if c, ok := canonicalKeys[k]; ok {
		return c
	}
	return k
}

// Synonym returns the key a canonical key is mirrored to, if any.
func Synonym(key string) (string, bool) {
	s, ok := synonyms[key]
	return s, ok
}

// CategoryFor returns the category a canonical key belongs to.
func CategoryFor(key string) core.Category {
	switch {
	case identityKeys[key]:
		return core.CategoryIdentity
	case strings.HasPrefix(key, "favorite_"), strings.HasPrefix(key, "preferred_"):
		return core.CategoryPreferences
	default:
		return core.CategoryFacts
	}
}

// Label turns a key into display text: "favorite_food" -> "favorite food".
func Label(key string) string {
	return strings.ReplaceAll(key, "_", " ")
}

var titleCaser = cases.Title(language.Und)

// Title capitalizes every word: "parv gaur" -> "Parv Gaur".
func Title(s string) string {
	return titleCaser.String(strings.TrimSpace(s))
}
