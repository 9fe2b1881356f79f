package ocr

import (
	"errors"
	"fmt"
	"regexp"
	"strings"
	"time"
	"unicode"

	"github.com/shopspring/decimal"
)

// ErrUnparseable is returned when a detected value cannot be normalized.
var ErrUnparseable = errors.New("unparseable value")

var (
	invoiceIDPattern = regexp.MustCompile(`\b(\d{4,5})\s*-\s*(\d{8})\b`)
	letterLine       = regexp.MustCompile(`(?i)^(?:factura\s+)?([ABCEM])$`)
	letterInline     = regexp.MustCompile(`(?i)\bfactura\s+([ABCEM])\b`)
	cuitPattern      = regexp.MustCompile(`\b(\d{2})-(\d{8})-(\d)\b`)
	nonDigits        = regexp.MustCompile(`\D`)
)

var cuitWeights = [10]int{5, 4, 3, 2, 7, 6, 5, 4, 3, 2}

// Parse maps an analysis onto typed fields. ownTaxID is the tenant's CUIT;
// it is never reported as the vendor's.
func Parse(a *Analysis, ownTaxID string) Extraction {
	ext := Extraction{Type: defaultDocType, Currency: defaultCurrency, Pages: a.Pages}
	own := nonDigits.ReplaceAllString(ownTaxID, "")

	var confSum float64
	var confN int
	for _, f := range a.Summary {
		text := strings.TrimSpace(f.Text)
		if text == "" {
			continue
		}
		confSum += f.Confidence
		confN++
		switch f.Type {
		case TypeVendorName:
			if !ext.VendorName.Present {
				ext.VendorName = Some(text, f.Confidence)
			}
		case TypeInvoiceID:
			if !ext.InvoiceID.Present {
				ext.InvoiceID = Some(text, f.Confidence)
			}
		case TypeInvoiceDate:
			if t, err := ParseDate(text); err == nil && !ext.IssueDate.Present {
				ext.IssueDate = Some(t, f.Confidence)
			}
		case TypeDueDate:
			if t, err := ParseDate(text); err == nil && !ext.DueDate.Present {
				ext.DueDate = Some(t, f.Confidence)
			}
		case TypeSubtotal:
			if d, err := ParseAmount(text); err == nil && !ext.Subtotal.Present {
				ext.Subtotal = Some(d, f.Confidence)
			}
		case TypeTax:
			if d, err := ParseAmount(text); err == nil && !ext.Tax.Present {
				ext.Tax = Some(d, f.Confidence)
			}
		case TypeTotal:
			if d, err := ParseAmount(text); err == nil && !ext.Total.Present {
				ext.Total = Some(d, f.Confidence)
				if f.Currency != "" {
					ext.Currency = strings.ToUpper(f.Currency)
				}
			}
		case TypeVendorVAT, TypeTaxPayerID:
			if cuit, ok := NormalizeCUIT(text); ok && cuit != formatCUIT(own) && !ext.VendorTaxID.Present {
				ext.VendorTaxID = Some(cuit, f.Confidence)
			}
		}
	}

	if id, ok := ext.InvoiceID.Get(); ok {
		if m := invoiceIDPattern.FindStringSubmatch(id); m != nil {
			ext.Series = Some(m[1], ext.InvoiceID.Confidence)
			ext.Number = Some(m[2], ext.InvoiceID.Confidence)
		}
	} else if m, line := findInLines(a.Lines, invoiceIDPattern); m != nil {
		ext.InvoiceID = Some(line, 0)
		ext.Series = Some(m[1], 0)
		ext.Number = Some(m[2], 0)
	}

	if letter, ok := findLetter(a.Lines); ok {
		ext.Letter = Some(letter, 0)
	}
	if !ext.VendorTaxID.Present {
		if cuit, ok := findVendorCUIT(a.Lines, own); ok {
			ext.VendorTaxID = Some(cuit, 0)
		}
	}
	ext.Type = detectType(a.Lines)
	if ext.Currency == defaultCurrency {
		ext.Currency = detectCurrency(a.Lines, defaultCurrency)
	}

	if confN > 0 {
		ext.Confidence = decimal.NewFromFloat(confSum / float64(confN)).Round(2).InexactFloat64()
	}
	return ext
}

// ParseAmount reads a money amount written with either decimal convention.
// When both separators appear the last one is the decimal mark. A single
// separator of either kind followed by exactly three digits is a thousands
// separator unless the integer part is zero; otherwise it is the decimal mark.
func ParseAmount(s string) (decimal.Decimal, error) {
	var b strings.Builder
	negative := false
	for _, r := range s {
		switch {
		case unicode.IsDigit(r), r == '.', r == ',':
			b.WriteRune(r)
		case r == '-', r == '(':
			negative = true
		}
	}
	clean := strings.Trim(b.String(), ".,")
	if clean == "" || strings.IndexFunc(clean, unicode.IsDigit) < 0 {
		return decimal.Decimal{}, fmt.Errorf("%w: amount %q", ErrUnparseable, s)
	}

	lastDot := strings.LastIndex(clean, ".")
	lastComma := strings.LastIndex(clean, ",")
	switch {
	case lastDot >= 0 && lastComma >= 0:
		if lastComma > lastDot {
			clean = strings.ReplaceAll(clean, ".", "")
			clean = strings.Replace(clean, ",", ".", 1)
		} else {
			clean = strings.ReplaceAll(clean, ",", "")
		}
	case lastComma >= 0:
		if strings.Count(clean, ",") > 1 || groupsThousands(clean, lastComma) {
			clean = strings.ReplaceAll(clean, ",", "")
		} else {
			clean = strings.Replace(clean, ",", ".", 1)
		}
	case lastDot >= 0:
		if strings.Count(clean, ".") > 1 || groupsThousands(clean, lastDot) {
			clean = strings.ReplaceAll(clean, ".", "")
		}
	}

	d, err := decimal.NewFromString(clean)
	if err != nil {
		return decimal.Decimal{}, fmt.Errorf("%w: amount %q: %v", ErrUnparseable, s, err)
	}
	if negative {
		d = d.Neg()
	}
	return d, nil
}

// groupsThousands reports whether the lone separator at i splits off a
// three-digit group ("1,000", "25.000") rather than decimals ("0,500").
func groupsThousands(clean string, i int) bool {
	return len(clean)-i-1 == 3 && strings.TrimLeft(clean[:i], "0") != ""
}

var dateLayouts = []string{
	"2006-1-2",
	"2-1-2006",
	"2-1-06",
	"2 January 2006",
	"2 Jan 2006",
	"January 2 2006",
	"Jan 2 2006",
	"2-January-2006",
	"2-Jan-2006",
	"2-Jan-06",
}

var spanishMonths = map[string]string{
	"enero": "january", "ene": "jan",
	"febrero": "february",
	"marzo": "march",
	"abril": "april", "abr": "apr",
	"mayo":  "may",
	"junio": "june",
	"julio": "july",
	"agosto": "august", "ago": "aug",
	"septiembre": "september", "setiembre": "september", "set": "sep", "sept": "sep",
	"octubre":   "october",
	"noviembre": "november",
	"diciembre": "december", "dic": "dec",
}

// ParseDate reads a date in day-first numeric form, ISO form, or with an
// English or Spanish month name.
func ParseDate(s string) (time.Time, error) {
	norm := normalizeDate(s)
	for _, layout := range dateLayouts {
		if t, err := time.Parse(layout, norm); err == nil {
			return t, nil
		}
	}
	return time.Time{}, fmt.Errorf("%w: date %q", ErrUnparseable, s)
}

func normalizeDate(s string) string {
	s = strings.ToLower(strings.TrimSpace(s))
	s = strings.NewReplacer("/", "-", ",", " ").Replace(s)

	fields := strings.Fields(s)
	out := fields[:0]
	for _, f := range fields {
		f = strings.TrimSuffix(f, ".")
		if f == "de" || f == "del" {
			continue
		}
		if en, ok := spanishMonths[f]; ok {
			f = en
		}
		out = append(out, f)
	}
	joined := strings.Join(out, " ")
	if !strings.ContainsFunc(joined, unicode.IsLetter) {
		joined = strings.ReplaceAll(joined, ".", "-")
	}
	return joined
}

// ValidCUIT checks the length and check digit of an 11-digit tax id.
func ValidCUIT(digits string) bool {
	if len(digits) != 11 {
		return false
	}
	sum := 0
	for i, w := range cuitWeights {
		c := digits[i]
		if c < '0' || c > '9' {
			return false
		}
		sum += int(c-'0') * w
	}
	check := 11 - sum%11
	switch check {
	case 11:
		check = 0
	case 10:
		return false
	}
	return int(digits[10]-'0') == check
}

// NormalizeCUIT returns the tax id as NN-NNNNNNNN-N when it is valid.
func NormalizeCUIT(s string) (string, bool) {
	digits := nonDigits.ReplaceAllString(s, "")
	if !ValidCUIT(digits) {
		return "", false
	}
	return formatCUIT(digits), true
}

func formatCUIT(digits string) string {
	if len(digits) != 11 {
		return ""
	}
	return digits[:2] + "-" + digits[2:10] + "-" + digits[10:]
}

// findVendorCUIT looks for a valid tax id in the header lines first, then in
// the rest of the document, skipping ownDigits.
func findVendorCUIT(lines []string, ownDigits string) (string, bool) {
	head := lines
	var tail []string
	if len(lines) > headerLinesToScan {
		head, tail = lines[:headerLinesToScan], lines[headerLinesToScan:]
	}
	for _, block := range [][]string{head, tail} {
		for _, line := range block {
			for _, m := range cuitPattern.FindAllStringSubmatch(line, -1) {
				digits := m[1] + m[2] + m[3]
				if digits == ownDigits || !ValidCUIT(digits) {
					continue
				}
				return formatCUIT(digits), true
			}
		}
	}
	return "", false
}

func findLetter(lines []string) (string, bool) {
	for _, line := range lines {
		line = strings.TrimSpace(line)
		if m := letterLine.FindStringSubmatch(line); m != nil {
			return strings.ToUpper(m[1]), true
		}
		if m := letterInline.FindStringSubmatch(line); m != nil {
			return strings.ToUpper(m[1]), true
		}
	}
	return "", false
}

func findInLines(lines []string, re *regexp.Regexp) ([]string, string) {
	for _, line := range lines {
		if m := re.FindStringSubmatch(line); m != nil {
			return m, m[1] + "-" + m[2]
		}
	}
	return nil, ""
}

func detectType(lines []string) string {
	for _, line := range lines {
		l := strings.ToLower(line)
		switch {
		case strings.Contains(l, "nota de credito"), strings.Contains(l, "nota de crédito"):
			return "NOTA_CREDITO"
		case strings.Contains(l, "nota de debito"), strings.Contains(l, "nota de débito"):
			return "NOTA_DEBITO"
		}
	}
	return defaultDocType
}

func detectCurrency(lines []string, fallback string) string {
	for _, line := range lines {
		l := strings.ToUpper(line)
		if strings.Contains(l, "USD") || strings.Contains(l, "U$S") || strings.Contains(l, "DÓLARES") || strings.Contains(l, "DOLARES") {
			return "USD"
		}
	}
	return fallback
}
