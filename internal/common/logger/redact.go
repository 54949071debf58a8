package logger

import "strings"

var addressFields = map[string]struct{}{
	"email":     {},
	"recipient": {},
	"to":        {},
	"from":      {},
	"username":  {},
}

// IsAddressField reports whether values logged under key are mail addresses.
func IsAddressField(key string) bool {
	_, ok := addressFields[strings.ToLower(key)]
	return ok
}

// RedactEmail masks an email address for safe logging.
// "john.doe@example.com" → "jo***@example.com"
// Short local parts (≤2 chars) are fully masked: "ab@example.com" → "***@example.com"
func RedactEmail(email string) string {
	at := strings.LastIndex(email, "@")
	if at < 0 || at == len(email)-1 {
		return "***@***"
	}
	name := email[:at]
	if len(name) > 2 {
		return name[:2] + "***@" + email[at+1:]
	}
	return "***@" + email[at+1:]
}
