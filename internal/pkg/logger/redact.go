package logger

// RedactToken masks a credential for safe logging.
// "a1b2c3d4e5f6" → "a1b2***"
// Short values (≤4 chars) are fully masked: "abc" → "***"
func RedactToken(token string) string {
	if token == "" {
		return ""
	}
	if len(token) <= 4 {
		return "***"
	}
	return token[:4] + "***"
}
