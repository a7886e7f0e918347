package utils

import (
	"net/url"
	"path/filepath"
	"strings"
)

// ConvertFilename percent-encodes the base name of s so it can be used
// as a relative href.
func ConvertFilename(s string) string {
	out := url.QueryEscape(filepath.Base(s))
	out = strings.ReplaceAll(out, "+", "%20")
	return out
}
