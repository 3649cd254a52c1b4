package engine

import "strings"

// transientPatterns are error causes worth another attempt: network
// hiccups, rate limiting, upstream gateway and proxy blocks. Anything
// else is fatal and fails the job immediately.
var transientPatterns = []string{
	"timeout",
	"timed out",
	"connection error",
	"connection refused",
	"connection reset",
	"network",
	"temporary failure",
	"server error",
	"service unavailable",
	"too many requests",
	"rate limit",
	"429",
	"502",
	"503",
	"gateway",
	"cloudflare",
	"captcha",
}

// Transient classifies captured error text. Empty text is not
// transient, an attempt that said nothing has nothing to retry for.
func Transient(errText string) bool {
	if errText == "" {
		return false
	}
	lower := strings.ToLower(errText)
	for _, pattern := range transientPatterns {
		if strings.Contains(lower, pattern) {
			return true
		}
	}
	return false
}
