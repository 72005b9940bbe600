// Package quality picks one rendition out of the list the backend returns.
package quality

import (
	"errors"
	"strings"

	"animewatch/internal/media"
)

// Preference keywords. Any other non-empty value is treated as a label.
const (
	Best  = "best"
	Worst = "worst"
)

// ErrNoRenditions is returned when there is nothing to choose from.
var ErrNoRenditions = errors.New("no renditions to choose from")

// Select applies the selection policy: an exact label match wins; otherwise
// "best" (or no preference) takes the last entry and "worst" the first. An
// unmatched label falls back to the last entry. The backend is assumed to list
// renditions in ascending quality.
func Select(renditions []media.Rendition, preference string) (media.Rendition, error) {
	if len(renditions) == 0 {
		return media.Rendition{}, ErrNoRenditions
	}

	pref := strings.ToLower(strings.TrimSpace(preference))
	if pref != "" && pref != Best && pref != Worst {
		want := normalizeLabel(pref)
		for _, r := range renditions {
			if normalizeLabel(r.Label) == want {
				return r, nil
			}
		}
	}

	if pref == Worst {
		return renditions[0], nil
	}
	return renditions[len(renditions)-1], nil
}

// IsNumeric reports whether preference names a concrete label such as "720".
func IsNumeric(preference string) bool {
	p := normalizeLabel(preference)
	if p == "" {
		return false
	}
	for _, c := range p {
		if c < '0' || c > '9' {
			return false
		}
	}
	return true
}

// normalizeLabel maps "720 P", "720p" and "720" to the same key.
func normalizeLabel(label string) string {
	l := strings.ToLower(strings.TrimSpace(label))
	l = strings.TrimSuffix(l, "p")
	return strings.TrimSpace(l)
}
