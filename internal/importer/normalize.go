package importer

import "strings"

// sheetHeaderAliases maps raw spreadsheet headers (lowercased) that do not
// survive the generic rule to their canonical key.
var sheetHeaderAliases = map[string]string{
	"full name": "full_name",
	"aap_product_kahan_sell_karna_chahte_ho?": "product_interest",
	"dropshipping_experience_kitna_hai?":      "dropshipping_experience",
}

// csvHeaderAliases folds common spellings of CSV upload headers onto lead fields.
var csvHeaderAliases = map[string]string{
	"full_name":     "name",
	"fullname":      "name",
	"lead_name":     "name",
	"mobile":        "phone",
	"mobile_number": "phone",
	"phone_number":  "phone",
	"contact":       "phone",
	"e_mail":        "email",
	"email_address": "email",
	"location":      "city",
	"product":       "interest",
	"comments":      "notes",
	"remarks":       "notes",
}

// NormalizeHeader canonicalizes a spreadsheet header: known aliases first,
// otherwise lowercase with every non-alphanumeric rune replaced by '_'.
func NormalizeHeader(h string) string {
	lower := strings.ToLower(strings.TrimSpace(h))
	if v, ok := sheetHeaderAliases[lower]; ok {
		return v
	}
	return underscore(lower)
}

// normalizeCSVHeader is NormalizeHeader plus the CSV alias table, with runs of
// separators collapsed so "Phone  Number" and "phone-number" agree.
func normalizeCSVHeader(h string) string {
	key := collapse(NormalizeHeader(strings.TrimPrefix(h, "\ufeff")))
	if v, ok := csvHeaderAliases[key]; ok {
		return v
	}
	return key
}

func underscore(s string) string {
	b := []rune(s)
	for i, r := range b {
		if !(r >= 'a' && r <= 'z') && !(r >= '0' && r <= '9') {
			b[i] = '_'
		}
	}
	return string(b)
}

func collapse(s string) string {
	var b strings.Builder
	prev := false
	for _, r := range s {
		if r == '_' {
			if prev {
				continue
			}
			prev = true
		} else {
			prev = false
		}
		b.WriteRune(r)
	}
	return strings.Trim(b.String(), "_")
}
