package utils

import (
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"net/url"
	"path"
	"strings"
	"unicode/utf8"
)

// ShortenString cuts s after l runes and marks the cut with "...". A
// length of 0 or less leaves s unchanged.
func ShortenString(s string, l int) string {
	if l <= 0 || utf8.RuneCountInString(s) <= l {
		return s
	}
	return string([]rune(s)[:l]) + "..."
}

// RandomString appends a random 16 character hex suffix to base.
func RandomString(base string) (string, error) {
	b := make([]byte, 8)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}
	return fmt.Sprintf("%s-%s", base, hex.EncodeToString(b)), nil
}

// FileExtFromURL returns the lower case extension of the last path segment
// of rawURL without the dot, ignoring query and fragment. def is returned
// if there is none.
func FileExtFromURL(rawURL, def string) string {
	u, err := url.Parse(rawURL)
	if err != nil {
		return def
	}
	ext := strings.TrimPrefix(strings.ToLower(path.Ext(u.Path)), ".")
	if ext == "" || strings.ContainsAny(ext, "/") {
		return def
	}
	return ext
}

// LastPathSegment returns the last non empty segment of the path of rawURL.
func LastPathSegment(rawURL string) (string, error) {
	u, err := url.Parse(rawURL)
	if err != nil {
		return "", err
	}
	segments := strings.Split(strings.Trim(u.Path, "/"), "/")
	last := segments[len(segments)-1]
	if last == "" {
		return "", fmt.Errorf("url %s has no path segment", rawURL)
	}
	return last, nil
}

// FolderName turns a search term into a folder name, eg. "chicken pie"
// becomes "chicken-pie".
func FolderName(term string) string {
	return strings.Join(strings.Fields(strings.ToLower(term)), "-")
}
