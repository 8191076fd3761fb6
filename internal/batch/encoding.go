package batch

import (
	"fmt"
	"regexp"
	"strings"
	"unicode/utf8"

	"golang.org/x/text/encoding"
	"golang.org/x/text/encoding/htmlindex"
)

// declRe matches an XML declaration that names its own encoding.
var declRe = regexp.MustCompile(`^\s*<\?xml[^>]*\bencoding\s*=`)

// lookupEncoding resolves a charset label such as "windows-1252" or
// "latin1". An empty label means no fallback.
func lookupEncoding(label string) (encoding.Encoding, error) {
	label = strings.TrimSpace(label)
	if label == "" {
		return nil, nil
	}
	enc, err := htmlindex.Get(label)
	if err != nil {
		return nil, fmt.Errorf("batch: unknown encoding %q: %w", label, err)
	}
	return enc, nil
}

// decodeFallback converts b to UTF-8 with enc when b is not valid UTF-8 and
// does not declare an encoding. Declared encodings are left to the XML
// parser. ok reports whether a conversion happened.
func decodeFallback(b []byte, enc encoding.Encoding) (out []byte, ok bool, err error) {
	if enc == nil || utf8.Valid(b) || declRe.Match(b) {
		return b, false, nil
	}
	out, err = enc.NewDecoder().Bytes(b)
	if err != nil {
		return b, false, err
	}
	return out, true, nil
}
