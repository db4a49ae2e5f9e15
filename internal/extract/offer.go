package extract

import (
	"strings"

	"github.com/PuerkitoBio/goquery"
	"golang.org/x/net/html"

	"price-floor-alerts/internal/category"
)

const (
	// MaxLabelRunes caps offer labels.
	MaxLabelRunes = 60
	// MaxTitleRunes caps source names derived from page titles.
	MaxTitleRunes = 40
	// offerProbeRunes limits the offer-likeness check to the head of a block so
	// footers and unrelated boilerplate do not qualify it.
	offerProbeRunes = 800

	blockSelector = "article, section, li, div"
	labelSelector = "h1, h2, h3, h4, strong, a"
)

// DefaultOfferKeywords mark a block as describing a bookable offer.
var DefaultOfferKeywords = []string{"クーポン", "メニュー", "コース", "予約", "特別", "新規", "再来", "限定"}

// Offer is a single priced service found on a source.
type Offer struct {
	Source   string
	Category category.Category
	Label    string
	Price    int64
	Locator  string
	IsSelf   bool
}

// Page is the extraction result for one fetched document.
type Page struct {
	Title  string
	Offers []Offer
}

// Extractor turns markup into offers.
type Extractor struct {
	classifier *category.Classifier
	prices     *PriceScanner
	keywords   []string
}

// Options tune an Extractor. Zero values select the defaults.
type Options struct {
	Classifier       *category.Classifier
	NegativeKeywords []string
	OfferKeywords    []string
}

// New constructs an Extractor.
func New(opts Options) *Extractor {
	classifier := opts.Classifier
	if classifier == nil {
		classifier = category.Default()
	}
	keywords := opts.OfferKeywords
	if len(keywords) == 0 {
		keywords = DefaultOfferKeywords
	}
	return &Extractor{
		classifier: classifier,
		prices:     NewPriceScanner(opts.NegativeKeywords),
		keywords:   keywords,
	}
}

// Page parses raw markup. Empty or unparsable markup yields an empty Page.
func (e *Extractor) Page(markup string) Page {
	if strings.TrimSpace(markup) == "" {
		return Page{}
	}
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(markup))
	if err != nil {
		return Page{}
	}
	return Page{Title: PageTitle(doc), Offers: e.Offers(doc)}
}

// Offers scans every block element of doc, in document order, and returns one
// offer per offer-like block that mentions at least one valid price.
func (e *Extractor) Offers(doc *goquery.Document) []Offer {
	var out []Offer
	doc.Find(blockSelector).Each(func(_ int, block *goquery.Selection) {
		text := visibleText(block.Get(0), " ")
		if !e.offerLike(text) {
			return
		}

		candidates := e.prices.Candidates(text)
		if len(candidates) == 0 {
			return
		}
		price := candidates[0]
		for _, c := range candidates[1:] {
			if c < price {
				price = c
			}
		}

		out = append(out, Offer{
			Category: e.classifier.Classify(text),
			Label:    blockLabel(block, text),
			Price:    price,
		})
	})
	return out
}

func (e *Extractor) offerLike(text string) bool {
	head := truncateRunes(text, offerProbeRunes)
	for _, kw := range e.keywords {
		if strings.Contains(head, kw) {
			return true
		}
	}
	return false
}

func blockLabel(block *goquery.Selection, text string) string {
	if heading := block.Find(labelSelector).First(); heading.Length() > 0 {
		if label := visibleText(heading.Get(0), ""); label != "" {
			return truncateRunes(label, MaxLabelRunes)
		}
	}
	return strings.TrimSpace(truncateRunes(text, MaxLabelRunes))
}

// PageTitle returns the document title trimmed to MaxTitleRunes, or "".
func PageTitle(doc *goquery.Document) string {
	title := strings.TrimSpace(doc.Find("title").First().Text())
	return truncateRunes(title, MaxTitleRunes)
}

// visibleText joins the trimmed, non-empty text nodes under n with sep.
func visibleText(n *html.Node, sep string) string {
	if n == nil {
		return ""
	}
	var parts []string
	var walk func(*html.Node)
	walk = func(node *html.Node) {
		switch node.Type {
		case html.TextNode:
			if s := strings.TrimSpace(node.Data); s != "" {
				parts = append(parts, s)
			}
			return
		case html.ElementNode:
			switch node.Data {
			case "script", "style", "noscript", "template":
				return
			}
		case html.CommentNode:
			return
		}
		for c := node.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
	}
	walk(n)
	return strings.Join(parts, sep)
}

func truncateRunes(s string, n int) string {
	if n <= 0 {
		return ""
	}
	count := 0
	for i := range s {
		if count == n {
			return s[:i]
		}
		count++
	}
	return s
}
