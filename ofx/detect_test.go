package ofx

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"golang.org/x/text/encoding/charmap"
)

func TestDetectFileType(t *testing.T) {
	cases := []struct {
		name string
		data string
		want FileType
	}{
		{"v1 header", "OFXHEADER:100\nDATA:OFXSGML\n", TypeV1},
		{"v1 header after blank lines", "\n\n  \nOFXHEADER:100\n", TypeV1},
		{"v2 xml declaration", `<?xml version="1.0" encoding="UTF-8"?>` + "\n<OFX></OFX>", TypeV2},
		{"v2 processing instruction", `<?OFX OFXHEADER="200" VERSION="211"?>` + "\n<OFX></OFX>", TypeV2},
		{"v2 bare root", "<OFX>\n</OFX>", TypeV2},
		{"csv is not ofx", "date,amount\n2026/01/01,5.00\n", TypeUnknown},
		{"empty", "", TypeUnknown},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.want, DetectFileType([]byte(tc.data)))
		})
	}
}

func TestV1Encoding(t *testing.T) {
	header := func(enc, charset string) string {
		s := "OFXHEADER:100\nDATA:OFXSGML\n"
		if enc != "" {
			s += "ENCODING:" + enc + "\n"
		}
		if charset != "" {
			s += "CHARSET:" + charset + "\n"
		}
		return s + "\n<OFX>\n"
	}

	cases := []struct {
		enc, charset string
		want         string
	}{
		{"USASCII", "1252", "windows-1252"},
		{"USASCII", "ISO-8859-1", "ISO-8859-1"},
		{"USASCII", "", "windows-1252"},
		{"UTF-8", "", "UTF-8"},
		{"UTF-8", "CSUNICODE", "ISO-8859-1"},
		{"", "", "windows-1252"},
		{"ISO-8859-15", "", "ISO-8859-15"},
	}
	for _, tc := range cases {
		t.Run(tc.enc+"/"+tc.charset, func(t *testing.T) {
			assert.Equal(t, tc.want, V1Encoding([]byte(header(tc.enc, tc.charset))))
		})
	}
}

func TestDecodeTextWindows1252(t *testing.T) {
	raw, err := charmap.Windows1252.NewEncoder().Bytes([]byte("Müller Straße €"))
	assert.NoError(t, err)

	decoded, err := decodeText(raw, "windows-1252")
	assert.NoError(t, err)
	assert.Equal(t, "Müller Straße €", decoded)
}

func TestEncodingByNameFallsBackForUnknownNames(t *testing.T) {
	enc := encodingByName("NO-SUCH-ENCODING")
	assert.Equal(t, charmap.Windows1252, enc)
}
