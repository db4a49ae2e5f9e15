package category

import "strings"

// Rule associates a category with the keywords that select it.
type Rule struct {
	Category Category
	Keywords []string
}

// Classifier maps free text to a category using ordered keyword rules. The first
// rule with a keyword contained in the text wins, so overlapping keyword sets are
// resolved by rule order alone.
type Classifier struct {
	rules []Rule
}

// NewClassifier builds a classifier over rules in the given priority order.
func NewClassifier(rules []Rule) *Classifier {
	cp := make([]Rule, len(rules))
	copy(cp, rules)
	return &Classifier{rules: cp}
}

// DefaultRules returns the built-in keyword table.
func DefaultRules() []Rule {
	return []Rule{
		{Category: Facial, Keywords: []string{"フェイシャル", "小顔", "毛穴", "美肌", "顔"}},
		{Category: SlimBody, Keywords: []string{"痩身", "スリム", "リンパ", "デトックス", "ボディ"}},
		{Category: HairRemoval, Keywords: []string{"脱毛"}},
		{Category: Bridal, Keywords: []string{"ブライダル", "花嫁"}},
		{Category: BustCare, Keywords: []string{"バスト", "胸"}},
		{Category: Shaving, Keywords: []string{"シェービング", "顔そり", "ブライダルシェーブ"}},
		{Category: MindBody, Keywords: []string{"ヨガ", "ピラティス", "加圧"}},
		{Category: Other},
	}
}

// Default returns a classifier using DefaultRules.
func Default() *Classifier {
	return NewClassifier(DefaultRules())
}

// Classify returns the category of text, or Other when no rule matches.
func (c *Classifier) Classify(text string) Category {
	for _, rule := range c.rules {
		for _, kw := range rule.Keywords {
			if kw != "" && strings.Contains(text, kw) {
				return rule.Category
			}
		}
	}
	return Other
}
