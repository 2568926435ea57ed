package main

import (
	"fmt"
	"os"
	"regexp"
	"strings"
)

var (
	ipPattern       = regexp.MustCompile(`\b\d{1,3}\.\d{1,3}\.\d{1,3}\.\d{1,3}\b`)
	phonePattern    = regexp.MustCompile(`\+?\b\d{7,15}\b`)
	secretPattern   = regexp.MustCompile(`(?i)^(Secret:[ \t]*)[^\r]+`)
	passwordPattern = regexp.MustCompile(`(?i)^(Password:[ \t]*)[^\r]+`)
)

// phoneFields carry subscriber numbers. Exten is included since outbound
// legs dial the remote number directly.
var phoneFields = []string{"CallerIDNum", "ConnectedLineNum", "Exten", "DestCallerIDNum", "DestConnectedLineNum"}

func sanitizeFile(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return err
	}

	bakPath := path + ".bak"
	if err := os.WriteFile(bakPath, data, 0o644); err != nil {
		return fmt.Errorf("creating backup: %w", err)
	}

	return os.WriteFile(path, []byte(sanitize(string(data))), 0o644)
}

// sanitize redacts credentials, addresses and phone numbers, keeping the
// line structure (and CRLF endings) intact.
func sanitize(data string) string {
	lines := strings.Split(data, "\n")
	for i, line := range lines {
		line = secretPattern.ReplaceAllString(line, "${1}REDACTED")
		line = passwordPattern.ReplaceAllString(line, "${1}REDACTED")

		// Loopback stays readable.
		line = ipPattern.ReplaceAllStringFunc(line, func(ip string) string {
			if ip == "127.0.0.1" {
				return ip
			}
			return "10.0.0.1"
		})

		if isPhoneField(line) {
			line = phonePattern.ReplaceAllStringFunc(line, func(num string) string {
				if strings.HasPrefix(num, "+") {
					return "+15550001234"
				}
				return "15550001234"
			})
		}

		lines[i] = line
	}
	return strings.Join(lines, "\n")
}

func isPhoneField(line string) bool {
	key, _, ok := strings.Cut(line, ":")
	if !ok {
		return false
	}
	for _, f := range phoneFields {
		if strings.HasSuffix(key, f) {
			return true
		}
	}
	return false
}
