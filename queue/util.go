package queue

import (
	"math/rand"
	"strings"
)

const randASCII = "abcdefghijklmnopqrstuvwxyzABCDEFGHIJKLMNOPQRSTUVWXYZ0123456789"

func randomString(i int) string {
	b := make([]byte, i)
	for i := range b {
		b[i] = randASCII[rand.Intn(len(randASCII))]
	}
	return string(b)
}

// objectID makes an entity id usable as a single MQTT topic level.
func objectID(uniqueID string) string {
	return strings.Map(func(r rune) rune {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '-':
			return r
		}
		return '_'
	}, uniqueID)
}
