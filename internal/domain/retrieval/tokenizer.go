package retrieval

import (
	"strings"
	"unicode"
)

// Tokenize 确定性分词：小写化、去标点、去停用词。
// 规则语言中立，同一输入永远产生同一 token 序列。
func Tokenize(text string) []string {
	words := splitWords(text)
	tokens := make([]string, 0, len(words))
	for _, word := range words {
		word = strings.ToLower(word)
		if len(word) < 2 {
			continue
		}
		if _, stop := stopwords[word]; stop {
			continue
		}
		tokens = append(tokens, word)
	}
	return tokens
}

// splitWords 按字母/数字边界切词，其余字符均视为分隔符。
func splitWords(text string) []string {
	var words []string
	var current strings.Builder
	for _, r := range text {
		if unicode.IsLetter(r) || unicode.IsDigit(r) {
			current.WriteRune(r)
			continue
		}
		if current.Len() > 0 {
			words = append(words, current.String())
			current.Reset()
		}
	}
	if current.Len() > 0 {
		words = append(words, current.String())
	}
	return words
}

// stopwords 常见虚词表。刻意保持短小：简历里的技术名词不能被误杀。
var stopwords = map[string]struct{}{
	"a": {}, "an": {}, "and": {}, "are": {}, "as": {}, "at": {},
	"be": {}, "but": {}, "by": {}, "for": {}, "from": {}, "has": {},
	"have": {}, "he": {}, "her": {}, "his": {}, "in": {}, "is": {},
	"it": {}, "its": {}, "of": {}, "on": {}, "or": {}, "she": {},
	"that": {}, "the": {}, "their": {}, "then": {}, "there": {},
	"these": {}, "they": {}, "this": {}, "to": {}, "was": {},
	"were": {}, "which": {}, "who": {}, "will": {}, "with": {},
}
