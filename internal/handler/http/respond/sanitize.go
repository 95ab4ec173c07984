package respond

import (
	"regexp"
)

var (
	bearerPattern = regexp.MustCompile(`(?i)bearer\s+[A-Za-z0-9\-_.~+/]+=*`)

	// compact JWS: header.payload.signature, header always starts with eyJ
	jwtPattern = regexp.MustCompile(`eyJ[A-Za-z0-9_-]*\.[A-Za-z0-9_-]+\.[A-Za-z0-9_-]*`)

	// password inside a DSN, including redis://:password@host
	dsnPasswordPattern = regexp.MustCompile(`://([^:/@]*):([^@]+)@`)

	secretParamPattern = regexp.MustCompile(`(?i)(password|secret|token)=([^&\s]+)`)
)

// SanitizeError returns err's message with credentials masked.
func SanitizeError(err error) string {
	if err == nil {
		return ""
	}

	msg := err.Error()
	msg = bearerPattern.ReplaceAllString(msg, "Bearer ****")
	msg = jwtPattern.ReplaceAllString(msg, "****")
	msg = dsnPasswordPattern.ReplaceAllString(msg, "://$1:****@")
	msg = secretParamPattern.ReplaceAllString(msg, "$1=****")
	return msg
}
