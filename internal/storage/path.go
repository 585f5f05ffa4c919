package storage

import (
	"fmt"
	"path"
	"regexp"
	"strings"
	"time"
)

const uploadIDLength = 36

var (
	pathComponentPattern = regexp.MustCompile(`^[a-zA-Z0-9][a-zA-Z0-9._-]{0,127}$`)
	unsafeRunePattern    = regexp.MustCompile(`[^a-zA-Z0-9._-]+`)
)

// BuildUploadPath returns the archive key for an uploaded source file:
// <user>/uploads/date=YYYY-MM-DD/<id>-<file>.
func BuildUploadPath(username, filename string, at time.Time, id string) (string, error) {
	prefix, err := UserUploadPrefix(username)
	if err != nil {
		return "", err
	}
	if err := validatePathComponent(id, "upload id"); err != nil {
		return "", err
	}
	name := SanitizeComponent(path.Base(strings.ReplaceAll(filename, `\`, "/")))
	if err := validatePathComponent(name, "file name"); err != nil {
		return "", err
	}

	ts := at.UTC()
	return path.Join(
		prefix,
		fmt.Sprintf("date=%04d-%02d-%02d", ts.Year(), ts.Month(), ts.Day()),
		id+"-"+name,
	), nil
}

// UserUploadPrefix is the key prefix, with trailing slash, under which all
// uploads of username are archived.
func UserUploadPrefix(username string) (string, error) {
	user := SanitizeComponent(username)
	if err := validatePathComponent(user, "username"); err != nil {
		return "", err
	}
	return user + "/uploads/", nil
}

// UploadFilename recovers the sanitized file name from an upload key. Keys
// written with a UUID id drop the "<id>-" part.
func UploadFilename(key string) string {
	base := path.Base(key)
	if len(base) > uploadIDLength+1 && base[uploadIDLength] == '-' {
		return base[uploadIDLength+1:]
	}
	return base
}

// SanitizeComponent maps a free-form name onto the key alphabet.
func SanitizeComponent(value string) string {
	cleaned := unsafeRunePattern.ReplaceAllString(strings.TrimSpace(value), "_")
	cleaned = strings.TrimLeft(cleaned, "._-")
	if len(cleaned) > 128 {
		cleaned = cleaned[:128]
	}
	return cleaned
}

func validatePathComponent(value, field string) error {
	if !pathComponentPattern.MatchString(value) {
		return fmt.Errorf("invalid %s: %q", field, value)
	}
	return nil
}
