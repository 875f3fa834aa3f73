package lobby

import (
	"crypto/rand"
	"fmt"
	"strings"
)

// Game ids are short enough to read over voice chat and type by hand. Ids are
// stored and compared in their uppercase form.
const (
	gameIDLength   = 4
	gameIDAlphabet = "ABCDEFGHIJKLMNOPQRSTUVWXYZ0123456789"
)

func newGameID() (string, error) {
	var buf [gameIDLength]byte
	if _, err := rand.Read(buf[:]); err != nil {
		return "", fmt.Errorf("generate game id: %w", err)
	}
	for i, b := range buf {
		buf[i] = gameIDAlphabet[int(b)%len(gameIDAlphabet)]
	}
	return string(buf[:]), nil
}

// NormalizeGameID canonicalizes an id for storage and lookup.
func NormalizeGameID(id string) string {
	return strings.ToUpper(strings.TrimSpace(id))
}
