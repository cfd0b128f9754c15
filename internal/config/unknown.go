package config

import (
	"errors"
	"fmt"
	"sort"
	"strings"

	"github.com/BurntSushi/toml"
)

// maxLevenshteinDistance is the maximum edit distance for "did you mean?"
// suggestions when unknown config keys are detected.
const maxLevenshteinDistance = 3

// accountSection is the table holding [account.<name>] sections.
const accountSection = "account"

// knownTopLevelKeys are the valid top-level keys and tables.
var knownTopLevelKeys = []string{"account", "default_account", "logging", "network", "transfers"}

// knownSectionKeys are the valid keys inside each global section.
var knownSectionKeys = map[string][]string{
	"logging":   {"log_format", "log_level"},
	"network":   {"connect_timeout", "data_timeout", "user_agent"},
	"transfers": {"chunk_size"},
}

// knownAccountKeys are the valid keys inside an [account.<name>] section,
// sorted for deterministic suggestions.
var knownAccountKeys = func() []string {
	keys := []string{
		"kind", "access_token", "token_file", "client_id", "client_secret",
		"bucket", "region", "endpoint", "path_style", "drive_id",
		"force_resumable_upload", "base_url",
	}

	sort.Strings(keys)

	return keys
}()

// checkUnknownKeys inspects TOML metadata for undecoded keys and returns
// an error with "did you mean?" suggestions for each unknown key.
func checkUnknownKeys(md *toml.MetaData) error {
	var errs []error

	for _, key := range md.Undecoded() {
		if err := unknownKeyError(key); err != nil {
			errs = append(errs, err)
		}
	}

	return errors.Join(errs...)
}

// unknownKeyError describes one undecoded key, suggesting the closest known
// key in the same scope.
func unknownKeyError(key toml.Key) error {
	switch {
	case len(key) >= 3 && key[0] == accountSection:
		return keyError(key[2], fmt.Sprintf(" in account %q", key[1]), knownAccountKeys)
	case len(key) == 2 && key[0] == accountSection:
		return fmt.Errorf("account %q must be a table, e.g. [account.%s]", key[1], key[1])
	case len(key) >= 2 && knownSectionKeys[key[0]] != nil:
		return keyError(key[1], fmt.Sprintf(" in [%s]", key[0]), knownSectionKeys[key[0]])
	default:
		return keyError(key[0], "", knownTopLevelKeys)
	}
}

func keyError(name, scope string, known []string) error {
	if suggestion := closestMatch(name, known); suggestion != "" {
		return fmt.Errorf("unknown config key %q%s, did you mean %q?", name, scope, suggestion)
	}

	return fmt.Errorf("unknown config key %q%s", name, scope)
}

// closestMatch finds the closest known key by Levenshtein distance.
// Returns empty string if no match is within maxLevenshteinDistance.
func closestMatch(unknown string, known []string) string {
	best := ""
	bestDist := maxLevenshteinDistance + 1

	for _, k := range known {
		d := levenshtein(strings.ToLower(unknown), k)
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

	// Single-row optimization avoids allocating a full matrix.
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
