package extraction

import (
	"errors"
	"fmt"
	"os"
	"unicode/utf8"

	"golang.org/x/text/encoding/charmap"
)

var errUndecodable = errors.New("text is neither utf-8 nor windows-1251")

// extractText reads plain text and HTML files as-is. Lab exports from older
// Windows systems are often Windows-1251, which is tried when the bytes are
// not valid UTF-8.
func extractText(path string) (string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return "", err
	}
	if utf8.Valid(data) {
		return string(data), nil
	}

	decoded, err := charmap.Windows1251.NewDecoder().Bytes(data)
	if err != nil || !utf8.Valid(decoded) {
		return "", fmt.Errorf("%w: %v", errUndecodable, err)
	}
	return string(decoded), nil
}
