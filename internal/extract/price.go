package extract

import (
	"regexp"
	"strconv"
	"strings"
	"unicode/utf8"

	"golang.org/x/text/width"
)

const (
	// MinPrice and MaxPrice bound plausible menu prices, inclusive.
	MinPrice int64 = 800
	MaxPrice int64 = 100000

	// NegativeWindow is the number of runes inspected on each side of a match.
	NegativeWindow = 18
)

// pricePattern matches a 3-6 digit amount followed by 円, optionally preceded by a
// yen sign. Full-width digits and thousands separators are accepted.
var pricePattern = regexp.MustCompile(`(?:[¥￥][\s\x{3000}]*)?([1-9１-９][0-9０-９]{0,2}(?:[,，][0-9０-９]{3})+|[1-9１-９][0-9０-９]{2,5})[\s\x{3000}]*円`)

// DefaultNegativeKeywords flags amounts that describe discounts, surcharges,
// options or loyalty points rather than a menu price.
var DefaultNegativeKeywords = []string{
	"割引", "引き", "OFF", "オフ", "+", "追加", "延長", "オプション",
	"学割", "回数券", "ポイント", "g", "Ｇ", "ｇ",
}

// PriceScanner finds price mentions in free text.
type PriceScanner struct {
	negatives []string
}

// NewPriceScanner returns a scanner using the given negative keywords. A nil
// slice selects DefaultNegativeKeywords.
func NewPriceScanner(negatives []string) *PriceScanner {
	if negatives == nil {
		negatives = DefaultNegativeKeywords
	}
	cp := make([]string, 0, len(negatives))
	for _, n := range negatives {
		if n != "" {
			cp = append(cp, n)
		}
	}
	return &PriceScanner{negatives: cp}
}

// Candidates returns every plausible price in text, in document order.
func (p *PriceScanner) Candidates(text string) []int64 {
	matches := pricePattern.FindAllStringSubmatchIndex(text, -1)
	if len(matches) == 0 {
		return nil
	}

	runes := []rune(text)
	var out []int64
	for _, m := range matches {
		price, ok := parseAmount(text[m[2]:m[3]])
		if !ok || price < MinPrice || price > MaxPrice {
			continue
		}

		start := utf8.RuneCountInString(text[:m[0]])
		end := start + utf8.RuneCountInString(text[m[0]:m[1]])
		if p.nearNegative(runes, start, end) {
			continue
		}
		out = append(out, price)
	}
	return out
}

func (p *PriceScanner) nearNegative(runes []rune, start, end int) bool {
	lo := start - NegativeWindow
	if lo < 0 {
		lo = 0
	}
	hi := end + NegativeWindow
	if hi > len(runes) {
		hi = len(runes)
	}
	around := string(runes[lo:hi])
	for _, ng := range p.negatives {
		if strings.Contains(around, ng) {
			return true
		}
	}
	return false
}

func parseAmount(s string) (int64, bool) {
	digits := strings.ReplaceAll(width.Narrow.String(s), ",", "")
	v, err := strconv.ParseInt(digits, 10, 64)
	if err != nil {
		return 0, false
	}
	return v, true
}
