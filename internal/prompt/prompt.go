// Package prompt assembles the text sent to the generation service from a
// survey response and its definition.
package prompt

import (
	"fmt"
	"math/rand/v2"
	"sort"
	"strings"
	"sync"

	"github.com/kkkkikiki/surveyreview/internal/model"
)

// UnknownQuestion labels answers whose question id is not in the definition.
const UnknownQuestion = "不明な質問"

// MinKeywords is how many keywords a review is asked to contain.
const MinKeywords = 3

// SystemInstruction is the fixed persona given to the generation service.
const SystemInstruction = "あなたは経験豊富な口コミライターです。簡潔で信頼性の高い口コミを書くのが得意です。" +
	"キーワードを3つ程度使用し、指定された文字数制限を厳守してください。" +
	"過去の口コミは参照せず、提供された情報のみを使用してください。" +
	"口コミの冒頭に店舗名を含めないでください。"

const closing = "アンケート回答：\n%s\n\nこの情報を基に、魅力的な口コミを生成してください。キーワードはランダムで3つは必ず含めてください。"

// DefaultTones is used when a definition has no tones configured.
var DefaultTones = []string{
	"敬体（です・ます調）",
	"カジュアルな口語体",
	"親しみやすいフレンドリーな口調",
	"情緒的で感情豊かな表現",
}

// Input is everything Build needs.
type Input struct {
	Answers          model.Answers
	QuestionTextByID map[string]string
	ShopName         string
	BusinessType     string
	Keywords         []string
	Template         string
	Tones            []string
	DefaultTone      string
	UseRandomTone    bool
}

// Prompt is the assembled user prompt plus the choices made while building it.
type Prompt struct {
	Text     string
	Tone     string
	Keywords []string // shuffled order used in Text
}

// QA is one formatted question/answer pair.
type QA struct {
	Question string
	Answer   string
}

// Builder builds prompts. The zero value uses the global random source.
type Builder struct {
	mu  sync.Mutex
	rng *rand.Rand
}

// NewBuilder returns a Builder drawing from rng. A nil rng uses the global source.
func NewBuilder(rng *rand.Rand) *Builder {
	return &Builder{rng: rng}
}

// Build assembles the prompt text. Answer pairs and keywords are shuffled
// independently on every call.
func (b *Builder) Build(in Input) Prompt {
	pairs := Pairs(in.Answers, in.QuestionTextByID)
	keywords := append([]string(nil), in.Keywords...)

	b.mu.Lock()
	b.shuffle(len(pairs), func(i, j int) { pairs[i], pairs[j] = pairs[j], pairs[i] })
	b.shuffle(len(keywords), func(i, j int) { keywords[i], keywords[j] = keywords[j], keywords[i] })
	tone := b.tone(in)
	b.mu.Unlock()

	businessType := in.BusinessType
	if businessType == "" {
		businessType = model.DefaultBusinessType
	}

	editable := strings.NewReplacer(
		"{tone}", tone,
		"{keywords}", strings.Join(keywords, "、"),
		"{shopName}", in.ShopName,
		"{businessType}", businessType,
	).Replace(in.Template)

	text := editable + "\n\n" + fmt.Sprintf(closing, Format(pairs))
	return Prompt{Text: text, Tone: tone, Keywords: keywords}
}

func (b *Builder) shuffle(n int, swap func(i, j int)) {
	if b.rng != nil {
		b.rng.Shuffle(n, swap)
		return
	}
	rand.Shuffle(n, swap)
}

func (b *Builder) intN(n int) int {
	if b.rng != nil {
		return b.rng.IntN(n)
	}
	return rand.IntN(n)
}

func (b *Builder) tone(in Input) string {
	available := in.Tones
	if len(available) == 0 {
		available = DefaultTones
	}
	if in.UseRandomTone {
		return available[b.intN(len(available))]
	}
	if in.DefaultTone != "" {
		return in.DefaultTone
	}
	return available[0]
}

// Pairs resolves every answer to its question text, in question-id order.
// Unknown ids keep their answer under the UnknownQuestion label.
func Pairs(answers model.Answers, textByID map[string]string) []QA {
	ids := make([]string, 0, len(answers))
	for id := range answers {
		ids = append(ids, id)
	}
	sort.Strings(ids)

	pairs := make([]QA, 0, len(ids))
	for _, id := range ids {
		question, ok := textByID[id]
		if !ok || question == "" {
			question = UnknownQuestion
		}
		pairs = append(pairs, QA{Question: question, Answer: answers[id].Value})
	}
	return pairs
}

// Format renders pairs as the bulleted answer block.
func Format(pairs []QA) string {
	parts := make([]string, len(pairs))
	for i, p := range pairs {
		parts[i] = "・" + p.Question + "\n  - " + p.Answer
	}
	return strings.Join(parts, "\n\n")
}

// CountKeywordUsage returns the keywords that appear in content.
func CountKeywordUsage(content string, keywords []string) []string {
	var used []string
	for _, k := range keywords {
		if k != "" && strings.Contains(content, k) {
			used = append(used, k)
		}
	}
	return used
}
