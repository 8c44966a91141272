package importer

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestApplyFiltersTransformsPayeeAndMemo(t *testing.T) {
	tn := NewTransaction()
	tn.Payee = "POS 1234 SUPERMARKET"
	tn.Memo = "POS 1234 weekly"

	strip := Filter{
		Description: "strip POS prefix",
		Fn: func(s string) string {
			return strings.TrimPrefix(s, "POS 1234 ")
		},
	}

	ApplyFilters([]*Transaction{tn}, []Filter{strip})

	assert.Equal(t, "SUPERMARKET", tn.Payee)
	assert.Equal(t, "weekly", tn.Memo)
}

func TestApplyFiltersChainInOrder(t *testing.T) {
	tn := NewTransaction()
	tn.Payee = "abc"

	upper := Filter{Description: "upper", Fn: strings.ToUpper}
	first := Filter{Description: "first letter", Fn: func(s string) string { return s[:1] }}

	ApplyFilters([]*Transaction{tn}, []Filter{upper, first})
	assert.Equal(t, "A", tn.Payee)
}

func TestApplyFiltersFailOpenOnPanic(t *testing.T) {
	tn := NewTransaction()
	tn.Payee = "KEEP ME"

	bomb := Filter{
		Description: "broken filter",
		Fn:          func(s string) string { panic("boom") },
	}

	ApplyFilters([]*Transaction{tn}, []Filter{bomb})
	assert.Equal(t, "KEEP ME", tn.Payee)
}

func TestApplyFiltersKeepsOriginalWhenResultEmpty(t *testing.T) {
	tn := NewTransaction()
	tn.Payee = "KEEP ME"
	tn.Memo = ""

	blank := Filter{Description: "blanks everything", Fn: func(string) string { return "" }}

	ApplyFilters([]*Transaction{tn}, []Filter{blank})
	assert.Equal(t, "KEEP ME", tn.Payee)
	assert.Equal(t, "", tn.Memo)
}
