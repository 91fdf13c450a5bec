package stringutils

import (
	"math/rand"
	"time"
)

const (
	runIDLetters  = "0123456789abcdefghijklmnopqrstuvwxyz"
	letterIdxBits = 6                    // bits to represent a letter index
	letterIdxMask = 1<<letterIdxBits - 1 // all 1-bits, as many as letterIdxBits
	letterIdxMax  = 63 / letterIdxBits   // # of letter indices fitting in 63 bits
)

// GetRunID generates a 6-char DNS-safe suffix used to keep concurrently
// submitted engine names collision-free
func GetRunID() string {
	return RandStringBytesMask(6, rand.NewSource(time.Now().UnixNano()))
}

// RandStringBytesMask draws n characters from runIDLetters using src
func RandStringBytesMask(n int, src rand.Source) string {
	b := make([]byte, n)
	// A src.Int63() generates 63 random bits, enough for letterIdxMax characters
	for i, cache, remain := n-1, src.Int63(), letterIdxMax; i >= 0; {
		if remain == 0 {
			cache, remain = src.Int63(), letterIdxMax
		}
		if idx := int(cache & letterIdxMask); idx < len(runIDLetters) {
			b[i] = runIDLetters[idx]
			i--
		}
		cache >>= letterIdxBits
		remain--
	}
	return string(b)
}
