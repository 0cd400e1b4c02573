package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"regexp"
	"strings"
)

var (
	envReference  = regexp.MustCompile(`^\$\{([A-Za-z_][A-Za-z0-9_]*)\}$`)
	fileReference = regexp.MustCompile(`^\$\{FILE:([A-Za-z0-9_-][A-Za-z0-9_.-]*)\}$`)
)

// resolveReferences replaces values that are exactly ${VAR} or ${FILE:name}.
// Only credential and endpoint fields are resolved; action commands keep their
// '$' untouched for the shell.
func (c *Config) resolveReferences(secretsDir string) error {
	fields := []struct {
		name  string
		value *string
	}{
		{"webhook.secret", &c.Webhook.Secret},
		{"webhook.expected_sender", &c.Webhook.ExpectedSender},
		{"revalidate.url", &c.Revalidate.URL},
		{"revalidate.token", &c.Revalidate.Token},
	}

	for _, f := range fields {
		resolved, err := resolveReference(*f.value, secretsDir)
		if err != nil {
			return fmt.Errorf("%s: %w", f.name, err)
		}
		*f.value = resolved
	}

	return nil
}

// resolveReference returns value unchanged unless the whole value is a reference
func resolveReference(value, secretsDir string) (string, error) {
	if m := envReference.FindStringSubmatch(value); m != nil {
		return os.Getenv(m[1]), nil
	}
	if m := fileReference.FindStringSubmatch(value); m != nil {
		return readSecretFile(secretsDir, m[1])
	}
	return value, nil
}

// readSecretFile reads one mounted secret, trimming surrounding whitespace.
// A missing file is an error naming it.
func readSecretFile(secretsDir, name string) (string, error) {
	content, err := os.ReadFile(filepath.Join(secretsDir, name))
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return "", fmt.Errorf("secret file %q not found in %s", name, secretsDir)
		}
		return "", fmt.Errorf("failed to read secret file %q: %w", name, err)
	}

	secret := strings.TrimSpace(string(content))
	if secret == "" {
		return "", fmt.Errorf("secret file %q is empty", name)
	}
	return secret, nil
}
