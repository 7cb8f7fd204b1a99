// Package stringutil carries small formatting helpers for log output.
package stringutil

const shortenKeep = 8

// ShortenLog elides the middle of long hashes and keys so log lines stay
// scannable. Anything at most twice the kept length passes through untouched.
func ShortenLog(s string) string {
	if len(s) <= 2*shortenKeep {
		return s
	}
	return s[:shortenKeep] + "..." + s[len(s)-shortenKeep:]
}
