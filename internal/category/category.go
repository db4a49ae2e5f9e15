package category

import (
	"strings"

	"golang.org/x/text/width"
)

// Category identifies a service category offered by a salon.
type Category string

const (
	Facial      Category = "facial"
	SlimBody    Category = "slim_body"
	HairRemoval Category = "hair_removal"
	Bridal      Category = "bridal"
	BustCare    Category = "bust_care"
	Shaving     Category = "shaving"
	MindBody    Category = "mind_body"
	Other       Category = "other"
)

// LowestPriority is the rank assigned to every category without an explicit rank.
const LowestPriority = 4

// All lists every known category in declaration order.
var All = []Category{Facial, SlimBody, HairRemoval, Bridal, BustCare, Shaving, MindBody, Other}

var labels = map[Category]string{
	Facial:      "フェイシャル",
	SlimBody:    "痩身",
	HairRemoval: "脱毛",
	Bridal:      "ブライダル",
	BustCare:    "バストケア",
	Shaving:     "シェービング",
	MindBody:    "ヨガ・ピラティス・加圧",
	Other:       "その他",
}

var priorities = map[Category]int{
	Facial:      0,
	SlimBody:    1,
	Bridal:      2,
	HairRemoval: 3,
}

var aliases = map[string]Category{
	"facial":       Facial,
	"face":         Facial,
	"フェイシャル":       Facial,
	"フェイシャルエステ":    Facial,
	"slim_body":    SlimBody,
	"slimbody":     SlimBody,
	"slim":         SlimBody,
	"body":         SlimBody,
	"痩身":           SlimBody,
	"痩身エステ":        SlimBody,
	"ボディ":          SlimBody,
	"hair_removal": HairRemoval,
	"hairremoval":  HairRemoval,
	"epilation":    HairRemoval,
	"脱毛":           HairRemoval,
	"bridal":       Bridal,
	"ブライダル":        Bridal,
	"ブライダルエステ":     Bridal,
	"bust_care":    BustCare,
	"bustcare":     BustCare,
	"bust":         BustCare,
	"バストケア":        BustCare,
	"バスト":          BustCare,
	"shaving":      Shaving,
	"シェービング":      Shaving,
	"顔そり":          Shaving,
	"mind_body":    MindBody,
	"mindbody":     MindBody,
	"yoga":         MindBody,
	"pilates":      MindBody,
	"ヨガ・ピラティス・加圧":  MindBody,
	"ヨガ":           MindBody,
	"ピラティス":        MindBody,
	"加圧":           MindBody,
	"other":        Other,
	"その他":          Other,
}

// Label returns the display name used in operator-facing output.
func (c Category) Label() string {
	if l, ok := labels[c]; ok {
		return l
	}
	return labels[Other]
}

// Valid reports whether c is one of the fixed categories.
func (c Category) Valid() bool {
	_, ok := labels[c]
	return ok
}

// PriorityRank returns 0 for the most important category and LowestPriority for
// categories without an explicit rank.
func PriorityRank(c Category) int {
	if p, ok := priorities[c]; ok {
		return p
	}
	return LowestPriority
}

// Normalize maps a free-form category name onto the fixed set. Matching ignores
// case, surrounding whitespace and full-width/half-width differences. Unknown
// names become Other.
func Normalize(s string) Category {
	if c, ok := Lookup(s); ok {
		return c
	}
	return Other
}

// Lookup is Normalize without the fallback: ok is false for unknown names.
func Lookup(s string) (Category, bool) {
	key := strings.ToLower(strings.TrimSpace(width.Fold.String(s)))
	key = strings.ReplaceAll(key, " ", "_")
	if c, ok := aliases[key]; ok {
		return c, true
	}
	if c := Category(key); c.Valid() {
		return c, true
	}
	return "", false
}
