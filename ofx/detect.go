package ofx

import (
	"bufio"
	"bytes"
	"strings"

	"github.com/pkg/errors"
	"golang.org/x/text/encoding"
	"golang.org/x/text/encoding/charmap"
	"golang.org/x/text/encoding/ianaindex"
	"golang.org/x/text/encoding/unicode"
)

// FileType identifies the OFX dialect of a byte stream.
type FileType int

const (
	TypeUnknown FileType = iota
	TypeV1               // SGML with a colon-delimited header block
	TypeV2               // well-formed XML
)

// DetectFileType inspects the first non-blank line of the stream. An
// OFXHEADER key marks a version 1 file; an XML declaration, an <?OFX?>
// processing instruction, or a bare <OFX> root marks version 2.
func DetectFileType(data []byte) FileType {
	scanner := bufio.NewScanner(bytes.NewReader(data))
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		switch {
		case strings.HasPrefix(line, "OFXHEADER:"):
			return TypeV1
		case strings.HasPrefix(line, "<?xml"), strings.HasPrefix(line, "<?OFX"), strings.HasPrefix(line, "<OFX>"):
			return TypeV2
		}
		return TypeUnknown
	}
	return TypeUnknown
}

const defaultV1Encoding = "windows-1252"

// V1Encoding reads the version 1 header block and returns the canonical
// name of the declared character encoding. The ENCODING and CHARSET keys
// are combined the way real-world files use them; windows-1252 is the
// default when the header is silent or inconsistent.
func V1Encoding(data []byte) string {
	var enc, charset string

	scanner := bufio.NewScanner(bytes.NewReader(data))
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		if strings.HasPrefix(line, "<") { // start of aggregate content, header is done
			break
		}
		if key, value, ok := strings.Cut(line, ":"); ok {
			switch key {
			case "ENCODING":
				enc = strings.TrimSpace(value)
			case "CHARSET":
				charset = strings.TrimSpace(value)
			}
		}
		if enc != "" && charset != "" {
			break
		}
	}

	switch {
	case enc == "UTF-8" && charset == "CSUNICODE":
		// seen in the wild; the body is really Latin-1
		return "ISO-8859-1"
	case enc == "UTF-8":
		return "UTF-8"
	case enc == "USASCII" && charset == "1252":
		return defaultV1Encoding
	case enc == "USASCII" && strings.Contains(charset, "8859-1"):
		return "ISO-8859-1"
	case enc == "USASCII":
		return defaultV1Encoding
	case enc != "":
		return enc
	}
	return defaultV1Encoding
}

// encodingByName resolves a declared encoding to a decoder. Unknown names
// fall back to windows-1252, which decodes any byte sequence.
func encodingByName(name string) encoding.Encoding {
	switch strings.ToUpper(name) {
	case "UTF-8", "UTF8":
		return unicode.UTF8
	case "WINDOWS-1252", "CP1252", "1252":
		return charmap.Windows1252
	case "ISO-8859-1", "LATIN1", "LATIN-1", "USASCII", "US-ASCII":
		return charmap.ISO8859_1
	}
	if enc, err := ianaindex.IANA.Encoding(name); err == nil && enc != nil {
		return enc
	}
	return charmap.Windows1252
}

// decodeText converts the raw statement bytes from the declared encoding
// to UTF-8.
func decodeText(data []byte, encodingName string) (string, error) {
	decoded, err := encodingByName(encodingName).NewDecoder().Bytes(data)
	if err != nil {
		return "", errors.Wrapf(err, "ofx: cannot decode %s text", encodingName)
	}
	return string(decoded), nil
}
