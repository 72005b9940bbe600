package extract

import (
	"fmt"
	"regexp"
)

// keyPattern finds the numeric secrets hidden in the embed page's class names.
var keyPattern = regexp.MustCompile(`(?:container|videocontent)-(\d+)`)

// KeySet holds the secrets for one resolution. It is never persisted.
type KeySet struct {
	PrimaryKey   []byte
	IV           []byte
	SecondaryKey []byte
}

// ExtractKeys pulls the primary key, iv and secondary key, in that order of
// appearance, out of the raw embed page.
func ExtractKeys(page []byte) (KeySet, error) {
	matches := keyPattern.FindAllSubmatch(page, 3)
	if len(matches) < 3 {
		return KeySet{}, fmt.Errorf("%w: found %d of 3 key markers", ErrKeyNotFound, len(matches))
	}
	return KeySet{
		PrimaryKey:   clone(matches[0][1]),
		IV:           clone(matches[1][1]),
		SecondaryKey: clone(matches[2][1]),
	}, nil
}

func clone(b []byte) []byte {
	out := make([]byte, len(b))
	copy(out, b)
	return out
}
