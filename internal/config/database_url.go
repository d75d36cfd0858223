package config

import (
	"errors"
	"fmt"
	"net/url"
	"os"
	"strings"
)

var (
	// ErrDatabaseURLEmpty is returned when the database URL is an empty string.
	ErrDatabaseURLEmpty = errors.New("database URL cannot be empty")

	// ErrPasswordNotAllowed is returned when a password cannot be set on the
	// parsed database URL (opaque URLs without a host component).
	ErrPasswordNotAllowed = errors.New("cannot set password on database URL")
)

// ConstructDatabaseURL builds the final database connection URL. When
// passwordFile is non-empty the file content is read, trimmed and injected as
// the password of the URL's userinfo section. Deployments keep the password
// out of the environment this way (e.g. docker secrets).
func ConstructDatabaseURL(baseURL, passwordFile string) (string, error) {
	if strings.TrimSpace(baseURL) == "" {
		return "", ErrDatabaseURLEmpty
	}

	if passwordFile == "" {
		return baseURL, nil
	}

	raw, err := os.ReadFile(passwordFile)
	if err != nil {
		return "", fmt.Errorf("failed to read password file: %w", err)
	}

	password := strings.TrimSpace(string(raw))

	parsed, err := url.Parse(baseURL)
	if err != nil {
		return "", fmt.Errorf("failed to parse database URL: %w", err)
	}

	if parsed.User == nil {
		return "", ErrPasswordNotAllowed
	}

	parsed.User = url.UserPassword(parsed.User.Username(), password)

	return parsed.String(), nil
}

// MaskDatabaseURL returns a database URL safe for logging: any password in the
// userinfo section is replaced with "***". The input is parsed manually rather
// than through net/url so that unparseable URLs (unix socket forms like
// postgresql://user@/db?host=/run/postgresql) still come back masked.
func MaskDatabaseURL(databaseURL string) string {
	if databaseURL == "" {
		return ""
	}

	schemeEnd := strings.Index(databaseURL, "://")
	if schemeEnd == -1 {
		return databaseURL
	}

	afterScheme := databaseURL[schemeEnd+3:]

	lastAtIndex := strings.LastIndex(afterScheme, "@")
	if lastAtIndex == -1 {
		// No userinfo at all.
		return databaseURL
	}

	userInfo := afterScheme[:lastAtIndex]

	colonIndex := strings.Index(userInfo, ":")
	if colonIndex == -1 {
		// Username only, nothing to hide.
		return databaseURL
	}

	username := userInfo[:colonIndex]
	password := userInfo[colonIndex+1:]

	if password == "" {
		return databaseURL
	}

	scheme := databaseURL[:schemeEnd]
	hostAndRest := afterScheme[lastAtIndex:]

	return scheme + "://" + username + ":***" + hostAndRest
}
