// Package ghoutput publishes step outputs when folioctl runs inside a GitHub
// Actions job, so later steps can pick up e.g. the generated sitemap path.
package ghoutput

import (
	"fmt"
	"os"
	"sort"
	"strings"

	"github.com/google/uuid"
)

// EnvVar names the file GitHub Actions reads step outputs from.
const EnvVar = "GITHUB_OUTPUT"

// Write appends values to the file named by GITHUB_OUTPUT. It is a no-op
// outside of Actions.
func Write(values map[string]string) error {
	return WriteFile(strings.TrimSpace(os.Getenv(EnvVar)), values)
}

// WriteFile appends values to path in the Actions output format. Multi-line
// values use the heredoc form with a random delimiter.
func WriteFile(path string, values map[string]string) error {
	if path == "" || len(values) == 0 {
		return nil
	}

	keys := make([]string, 0, len(values))
	for k := range values {
		if strings.TrimSpace(k) == "" {
			continue
		}
		keys = append(keys, k)
	}
	sort.Strings(keys)

	var b strings.Builder
	for _, key := range keys {
		value := values[key]
		if !strings.ContainsAny(value, "\r\n") {
			fmt.Fprintf(&b, "%s=%s\n", key, value)
			continue
		}
		delim := "folio_" + strings.ReplaceAll(uuid.NewString(), "-", "")
		fmt.Fprintf(&b, "%s<<%s\n%s\n%s\n", key, delim, value, delim)
	}

	f, err := os.OpenFile(path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o600)
	if err != nil {
		return fmt.Errorf("open %s file: %w", EnvVar, err)
	}
	defer func() { _ = f.Close() }()

	if _, err := f.WriteString(b.String()); err != nil {
		return fmt.Errorf("write %s file: %w", EnvVar, err)
	}
	return nil
}
