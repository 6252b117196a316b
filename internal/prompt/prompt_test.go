package prompt

import (
	"math/rand/v2"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kkkkikiki/surveyreview/internal/model"
)

func TestBuild(t *testing.T) {
	in := Input{
		Answers:          model.Answers{"q1": model.Text("good"), "q2": model.Text("clean")},
		QuestionTextByID: map[string]string{"q1": "味は?", "q2": "清潔さは?"},
		Template:         "{tone}で書いてください。キーワード:{keywords}",
		Tones:            []string{"丁寧"},
		DefaultTone:      "丁寧",
		Keywords:         []string{"駅近", "個室", "ランチ"},
	}

	for seed := uint64(0); seed < 20; seed++ {
		p := NewBuilder(rand.New(rand.NewPCG(seed, seed))).Build(in)
		assert.Contains(t, p.Text, "丁寧で書いてください")
		assert.Contains(t, p.Text, "・味は?\n  - good")
		assert.Contains(t, p.Text, "・清潔さは?\n  - clean")
		assert.Contains(t, p.Text, "キーワードはランダムで3つは必ず含めてください。")
		assert.Contains(t, p.Text, "キーワード:"+strings.Join(p.Keywords, "、"))
		assert.ElementsMatch(t, in.Keywords, p.Keywords)
		assert.Equal(t, "丁寧", p.Tone)
	}
}

func TestBuildShufflesOrder(t *testing.T) {
	answers := model.Answers{}
	text := map[string]string{}
	for _, id := range []string{"a", "b", "c", "d", "e"} {
		answers[id] = model.Text("answer-" + id)
		text[id] = "question-" + id
	}
	b := NewBuilder(rand.New(rand.NewPCG(1, 2)))

	orders := map[string]bool{}
	for i := 0; i < 50; i++ {
		p := b.Build(Input{Answers: answers, QuestionTextByID: text, Template: "{tone}"})
		var order strings.Builder
		for _, line := range strings.Split(p.Text, "\n") {
			if strings.HasPrefix(line, "・") {
				order.WriteString(line)
			}
		}
		orders[order.String()] = true
	}
	assert.Greater(t, len(orders), 1, "answer order must vary between calls")
}

func TestTone(t *testing.T) {
	tests := []struct {
		name string
		in   Input
		want []string
	}{
		{"default tone", Input{Tones: []string{"a", "b"}, DefaultTone: "b"}, []string{"b"}},
		{"first configured when unset", Input{Tones: []string{"a", "b"}}, []string{"a"}},
		{"built-in fallback", Input{}, []string{DefaultTones[0]}},
		{"random from configured", Input{Tones: []string{"x", "y"}, UseRandomTone: true}, []string{"x", "y"}},
		{"random from built-in", Input{UseRandomTone: true}, DefaultTones},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			b := NewBuilder(rand.New(rand.NewPCG(7, 7)))
			for i := 0; i < 10; i++ {
				assert.Contains(t, tt.want, b.Build(tt.in).Tone)
			}
		})
	}
}

func TestPairsKeepUnknownQuestions(t *testing.T) {
	pairs := Pairs(
		model.Answers{"known": model.Choice("はい"), "gone": model.Text("残った回答")},
		map[string]string{"known": "また来たいですか?"},
	)
	require.Len(t, pairs, 2)
	assert.Contains(t, pairs, QA{Question: UnknownQuestion, Answer: "残った回答"})
	assert.Contains(t, pairs, QA{Question: "また来たいですか?", Answer: "はい"})
}

func TestBuildFillsShopFields(t *testing.T) {
	p := NewBuilder(nil).Build(Input{Template: "{shopName}({businessType})の口コミ", ShopName: "さくら亭"})
	assert.True(t, strings.HasPrefix(p.Text, "さくら亭(飲食店)の口コミ\n\nアンケート回答：\n"))
}

func TestCountKeywordUsage(t *testing.T) {
	used := CountKeywordUsage("駅近で個室もあり便利でした", []string{"駅近", "個室", "ランチ", ""})
	assert.Equal(t, []string{"駅近", "個室"}, used)
}
