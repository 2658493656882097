// internal/service/template_service.go
package service

import (
	"regexp"
	"strings"

	"github.com/unclebandit/targetup-dispatch/internal/model"
)

// TokenMap maps a %token% literal to the recipient field it reads.
type TokenMap map[string]string

var (
	// TargetedTokens serves targeted and AI sends.
	TargetedTokens = TokenMap{
		"%이름%":   "name",
		"%등급%":   "grade",
		"%지역%":   "region",
		"%구매금액%": "total_purchase_amount",
		"%회신번호%": "callback",
	}

	DirectTokens = TokenMap{
		"%이름%":   "name",
		"%기타1%":  "extra1",
		"%기타2%":  "extra2",
		"%기타3%":  "extra3",
		"%회신번호%": "callback",
	}

	// placeholders stand in for the longest value before targets are known.
	placeholders = map[string]string{
		"%이름%":   "홍길동어머니",
		"%등급%":   "VVIP",
		"%지역%":   "경기도 성남시",
		"%구매금액%": "99,999,999원",
		"%기타1%":  "가나다라마바사",
		"%기타2%":  "가나다라마바사",
		"%기타3%":  "가나다라마바사",
		"%회신번호%": "07012345678",
	}
	defaultPlaceholder = "가나다라마바"

	tokenPattern = regexp.MustCompile(`%[^%\s]{1,20}%`)
)

// TokensFor picks the token set of a send mode.
func TokensFor(st model.SendType) TokenMap {
	if st == model.SendTypeDirect {
		return DirectTokens
	}
	return TargetedTokens
}

// RenderTemplate replaces {key} placeholders, used for campaign names.
func RenderTemplate(template string, data map[string]string) string {
	result := template
	for k, v := range data {
		result = strings.ReplaceAll(result, "{"+k+"}", v)
	}
	return result
}

// StripUnknownTokens removes %token% literals the token map does not know.
func StripUnknownTokens(template string, tokens TokenMap) string {
	return tokenPattern.ReplaceAllStringFunc(template, func(tok string) string {
		if _, ok := tokens[tok]; ok {
			return tok
		}
		return ""
	})
}

// RenderForRecipient substitutes every known token with the recipient's
// value, or nothing when the recipient has none.
func RenderForRecipient(template string, r model.Recipient, tokens TokenMap) string {
	result := StripUnknownTokens(template, tokens)
	var pairs []string
	for _, tok := range presentTokens(result, tokens) {
		pairs = append(pairs, tok, r.Value(tokens[tok]))
	}
	return replaceAll(result, pairs)
}

// RenderWorstCase substitutes each token with the costliest value observed
// across all recipients, falling back to a fixed placeholder. The result is
// the upper bound used for every channel-fit decision.
func RenderWorstCase(template string, recipients []model.Recipient, tokens TokenMap) string {
	result := StripUnknownTokens(template, tokens)
	var pairs []string
	for _, tok := range presentTokens(result, tokens) {
		field := tokens[tok]
		longest, cost := "", 0
		for _, r := range recipients {
			v := r.Value(field)
			if c := ComputeBytes(v); c > cost {
				longest, cost = v, c
			}
		}
		if longest == "" {
			longest = placeholderFor(tok)
		}
		pairs = append(pairs, tok, longest)
	}
	return replaceAll(result, pairs)
}

// replaceAll substitutes in a single pass so inserted values are never
// scanned for tokens again.
func replaceAll(s string, pairs []string) string {
	if len(pairs) == 0 {
		return s
	}
	return strings.NewReplacer(pairs...).Replace(s)
}

func placeholderFor(tok string) string {
	if p, ok := placeholders[tok]; ok {
		return p
	}
	return defaultPlaceholder
}

// presentTokens lists the known tokens used by template, in order.
func presentTokens(template string, tokens TokenMap) []string {
	var out []string
	seen := map[string]bool{}
	for _, tok := range tokenPattern.FindAllString(template, -1) {
		if _, ok := tokens[tok]; ok && !seen[tok] {
			seen[tok] = true
			out = append(out, tok)
		}
	}
	return out
}
