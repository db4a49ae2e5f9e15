package category

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestClassify_FirstRuleWins(t *testing.T) {
	c := Default()

	tests := []struct {
		name string
		text string
		want Category
	}{
		{name: "facial keyword", text: "初回限定フェイシャル60分", want: Facial},
		{name: "facial beats body", text: "フェイシャル＋ボディ全身コース", want: Facial},
		{name: "slim body", text: "痩身キャビテーション", want: SlimBody},
		{name: "hair removal", text: "VIO脱毛 新規", want: HairRemoval},
		{name: "bridal shave resolves to bridal by order", text: "ブライダルシェーブ", want: Bridal},
		{name: "shaving", text: "シェービング単品", want: Shaving},
		{name: "mind body", text: "加圧トレーニング", want: MindBody},
		{name: "no match", text: "ヘッドスパ", want: Other},
		{name: "empty", text: "", want: Other},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, c.Classify(tt.text))
		})
	}
}

func TestClassify_OrderIsTheContract(t *testing.T) {
	rules := []Rule{
		{Category: Facial, Keywords: []string{"フェイシャル"}},
		{Category: SlimBody, Keywords: []string{"フェイシャル", "ボディ"}},
		{Category: Other},
	}
	c := NewClassifier(rules)
	assert.Equal(t, Facial, c.Classify("ボディとフェイシャル"))

	reversed := NewClassifier([]Rule{rules[1], rules[0], rules[2]})
	assert.Equal(t, SlimBody, reversed.Classify("ボディとフェイシャル"))
}

func TestNormalize(t *testing.T) {
	tests := map[string]Category{
		"facial":        Facial,
		" Facial ":      Facial,
		"ＦＡＣＩＡＬ":        Facial,
		"痩身":            SlimBody,
		"hair removal":  HairRemoval,
		"ブライダル":         Bridal,
		"バストケア":         BustCare,
		"ヨガ・ピラティス・加圧":   MindBody,
		"mind_body":     MindBody,
		"ネイル":           Other,
		"":              Other,
	}
	for in, want := range tests {
		assert.Equal(t, want, Normalize(in), "input %q", in)
	}
}

func TestPriorityRank(t *testing.T) {
	assert.Equal(t, 0, PriorityRank(Facial))
	assert.Equal(t, 1, PriorityRank(SlimBody))
	assert.Equal(t, 2, PriorityRank(Bridal))
	assert.Equal(t, 3, PriorityRank(HairRemoval))
	assert.Equal(t, LowestPriority, PriorityRank(BustCare))
	assert.Equal(t, LowestPriority, PriorityRank(Other))
	assert.Equal(t, LowestPriority, PriorityRank(Category("unknown")))
}

func TestLabel(t *testing.T) {
	assert.Equal(t, "痩身", SlimBody.Label())
	assert.Equal(t, "その他", Category("bogus").Label())
}

func TestLookup(t *testing.T) {
	c, ok := Lookup("フェイシャル")
	assert.True(t, ok)
	assert.Equal(t, Facial, c)

	c, ok = Lookup("other")
	assert.True(t, ok)
	assert.Equal(t, Other, c)

	_, ok = Lookup("ネイル")
	assert.False(t, ok)
}
