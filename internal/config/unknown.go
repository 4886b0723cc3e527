package config

import (
	"errors"
	"fmt"
	"reflect"
	"sort"
	"strings"

	"github.com/BurntSushi/toml"
)

// maxLevenshteinDistance is the maximum edit distance for "did you mean?"
// suggestions when unknown config keys are detected.
const maxLevenshteinDistance = 3

// knownKeys maps each table name ("" for the top level) to the sorted list
// of keys valid inside it. It is derived from the toml tags on Config, so
// new backend settings are recognized without touching this file.
var knownKeys = func() map[string][]string {
	keys := map[string][]string{}
	collectKeys(reflect.TypeOf(Config{}), "", keys)

	for table := range keys {
		sort.Strings(keys[table])
	}

	return keys
}()

func collectKeys(t reflect.Type, table string, keys map[string][]string) {
	for i := range t.NumField() {
		f := t.Field(i)

		name, _, _ := strings.Cut(f.Tag.Get("toml"), ",")
		if name == "" || name == "-" {
			continue
		}

		keys[table] = append(keys[table], name)

		if f.Type.Kind() == reflect.Struct {
			collectKeys(f.Type, joinKey(table, name), keys)
		}
	}
}

func joinKey(table, key string) string {
	if table == "" {
		return key
	}

	return table + "." + key
}

// checkUnknownKeys inspects TOML metadata for undecoded keys and returns
// an error with "did you mean?" suggestions for each unknown key.
func checkUnknownKeys(md *toml.MetaData) error {
	undecoded := md.Undecoded()
	if len(undecoded) == 0 {
		return nil
	}

	var errs []error

	seen := map[string]bool{}

	for _, key := range undecoded {
		err := unknownKeyError(key)
		if seen[err.Error()] {
			continue
		}

		seen[err.Error()] = true
		errs = append(errs, err)
	}

	return errors.Join(errs...)
}

// unknownKeyError reports the first unknown component of key. Children of
// an unknown table are reported through the table itself.
func unknownKeyError(key toml.Key) error {
	table := ""

	for _, part := range key {
		known := knownKeys[table]
		if !contains(known, part) {
			full := joinKey(table, part)

			if suggestion := closestMatch(part, known); suggestion != "" {
				return fmt.Errorf("unknown config key %q, did you mean %q?", full, joinKey(table, suggestion))
			}

			return fmt.Errorf("unknown config key %q", full)
		}

		table = joinKey(table, part)
	}

	return fmt.Errorf("unknown config key %q", key.String())
}

func contains(list []string, s string) bool {
	i := sort.SearchStrings(list, s)
	return i < len(list) && list[i] == s
}

// closestMatch finds the closest known key by Levenshtein distance.
// Returns empty string if no match is within maxLevenshteinDistance.
func closestMatch(unknown string, known []string) string {
	best := ""
	bestDist := maxLevenshteinDistance + 1

	for _, k := range known {
		d := levenshtein(unknown, k)
		if d < bestDist {
			bestDist = d
			best = k
		}
	}

	if bestDist <= maxLevenshteinDistance {
		return best
	}

	return ""
}

// levenshtein computes the edit distance between two strings.
func levenshtein(a, b string) int {
	if a == "" {
		return len(b)
	}

	if b == "" {
		return len(a)
	}

	prev := make([]int, len(b)+1)
	curr := make([]int, len(b)+1)

	for j := range prev {
		prev[j] = j
	}

	for i := range len(a) {
		curr[0] = i + 1

		for j := range len(b) {
			cost := 1
			if a[i] == b[j] {
				cost = 0
			}

			curr[j+1] = min(curr[j]+1, prev[j+1]+1, prev[j]+cost)
		}

		prev, curr = curr, prev
	}

	return prev[len(b)]
}
