package service

import (
	"strings"
	"unicode"

	"golang.org/x/text/cases"
	"golang.org/x/text/unicode/norm"

	"mystery_web/internal/models"
)

// SolutionVerifier 判斷玩家提交的答案是否正確
type SolutionVerifier interface {
	Verify(c *models.Case, guess string) bool
}

// VerifierFunc 讓普通函式實作 SolutionVerifier
type VerifierFunc func(c *models.Case, guess string) bool

func (f VerifierFunc) Verify(c *models.Case, guess string) bool { return f(c, guess) }

// SolutionVerdict 是提交答案的結果。Solution 只在答對時填入。
type SolutionVerdict struct {
	Correct       bool   `json:"correct"`
	AlreadySolved bool   `json:"already_solved"`
	SolvedBy      string `json:"solved_by,omitempty"`
	Solution      string `json:"solution,omitempty"`
}

// normalizeWords 做 NFKC 正規化與大小寫折疊後，去除標點並切成單字
func normalizeWords(s string) []string {
	s = cases.Fold().String(norm.NFKC.String(s))
	return strings.FieldsFunc(s, func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsNumber(r)
	})
}

// ExactVerifier 要求正規化後的單字序列完全相同
var ExactVerifier = VerifierFunc(func(c *models.Case, guess string) bool {
	want := normalizeWords(c.Solution)
	got := normalizeWords(guess)
	if len(want) == 0 || len(want) != len(got) {
		return false
	}
	for i := range want {
		if want[i] != got[i] {
			return false
		}
	}
	return true
})

// KeywordVerifier 要求答案包含每一個關鍵字。Keywords 為空時使用案件設定的關鍵字。
type KeywordVerifier struct {
	Keywords []string
}

func (v KeywordVerifier) Verify(c *models.Case, guess string) bool {
	keywords := v.Keywords
	if len(keywords) == 0 {
		keywords = c.Keywords
	}
	if len(keywords) == 0 {
		return false
	}
	words := normalizeWords(guess)
	for _, kw := range keywords {
		if !containsRun(words, normalizeWords(kw)) {
			return false
		}
	}
	return true
}

// DefaultVerifier 案件有關鍵字時比對關鍵字，否則要求完全相同
var DefaultVerifier = VerifierFunc(func(c *models.Case, guess string) bool {
	if len(c.Keywords) > 0 {
		return KeywordVerifier{}.Verify(c, guess)
	}
	return ExactVerifier.Verify(c, guess)
})

// containsRun 回報 needle 是否以連續的方式出現在 words 中
func containsRun(words, needle []string) bool {
	if len(needle) == 0 {
		return false
	}
outer:
	for i := 0; i+len(needle) <= len(words); i++ {
		for j := range needle {
			if words[i+j] != needle[j] {
				continue outer
			}
		}
		return true
	}
	return false
}
