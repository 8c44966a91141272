package importer

import "log"

// Filter is a user-supplied text transform applied to payee and memo text
// before matching and classification. The function is opaque; only the
// description is shown to the user.
type Filter struct {
	Description string
	Fn          func(string) string
}

// ApplyFilters runs every filter over the payee and memo of every line.
// Filters fail open: a panic or an empty result leaves the original text
// unchanged, and the failure is logged.
func ApplyFilters(txns []*Transaction, filters []Filter) {
	if len(filters) == 0 {
		return
	}
	for _, t := range txns {
		for _, f := range filters {
			t.Payee = applyFilter(f, t.Payee)
			t.Memo = applyFilter(f, t.Memo)
		}
	}
}

func applyFilter(f Filter, text string) (out string) {
	out = text
	if f.Fn == nil {
		return
	}
	defer func() {
		if r := recover(); r != nil {
			log.Printf("importer: filter %q failed: %v", f.Description, r)
			out = text
		}
	}()
	if filtered := f.Fn(text); filtered != "" || text == "" {
		out = filtered
	}
	return
}
