// Package textutil 提供检索与对话相关的文本处理工具函数。
package textutil

import (
	"crypto/md5"
	"encoding/hex"
	"regexp"
	"strings"
	"unicode/utf8"
)

// HashString 计算字符串的 MD5 哈希值。
func HashString(s string) string {
	hash := md5.Sum([]byte(s))
	return hex.EncodeToString(hash[:])
}

// TruncateString 截断字符串到指定的最大 Unicode 字符数。
func TruncateString(s string, maxLen int) string {
	if maxLen <= 0 {
		return ""
	}
	if utf8.RuneCountInString(s) <= maxLen {
		return s
	}
	runes := []rune(s)
	return string(runes[:maxLen])
}

// MatchTerms 返回 terms 中作为子串出现在 s 中的词，保持 terms 的顺序。
// s 应已转换为小写。
func MatchTerms(s string, terms []string) []string {
	var out []string
	for _, term := range terms {
		if strings.Contains(s, term) {
			out = append(out, term)
		}
	}
	return out
}

var (
	mdCodeFence = regexp.MustCompile("(?m)^[ \t]*```.*$")
	mdHeader    = regexp.MustCompile(`(?m)^[ \t]{0,3}#{1,6}[ \t]+`)
	mdQuote     = regexp.MustCompile(`(?m)^[ \t]{0,3}>[ \t]?`)
	mdListItem  = regexp.MustCompile(`(?m)^([ \t]*)(?:[-*+]|\d+[.)])[ \t]+`)
	mdRule      = regexp.MustCompile(`(?m)^[ \t]{0,3}(?:[-*_][ \t]*){3,}$`)
	mdImage     = regexp.MustCompile(`!\[([^\]]*)\]\([^)]*\)`)
	mdLink      = regexp.MustCompile(`\[([^\]]+)\]\([^)]*\)`)
	mdEmphasis  = regexp.MustCompile(`(\*\*|__|\*|_|~~)([^*_~\n]+)(\*\*|__|\*|_|~~)`)
	mdInline    = regexp.MustCompile("`([^`]*)`")
	mdHTMLTag   = regexp.MustCompile(`<[^>]+>`)
	blankRuns   = regexp.MustCompile(`\n{3,}`)
)

// StripMarkdown 将 Markdown 转换为纯文本，保留文字内容并移除标记语法。
func StripMarkdown(content string) string {
	s := strings.ReplaceAll(content, "\r\n", "\n")
	s = mdCodeFence.ReplaceAllString(s, "")
	s = mdRule.ReplaceAllString(s, "")
	s = mdHeader.ReplaceAllString(s, "")
	s = mdQuote.ReplaceAllString(s, "")
	s = mdListItem.ReplaceAllString(s, "$1")
	s = mdImage.ReplaceAllString(s, "$1")
	s = mdLink.ReplaceAllString(s, "$1")
	s = mdEmphasis.ReplaceAllString(s, "$2")
	s = mdInline.ReplaceAllString(s, "$1")
	s = mdHTMLTag.ReplaceAllString(s, "")
	s = blankRuns.ReplaceAllString(s, "\n\n")
	return strings.TrimSpace(s)
}
