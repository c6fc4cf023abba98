package rules

import (
	"log/slog"
	"path/filepath"
	"regexp"
	"strings"
	"unicode"
	"unicode/utf8"

	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"

	"github.com/kirillkom/dossier-summarizer/internal/core/domain"
)

const (
	contentWindow = 8000
	phraseWeight  = 100
	tokenWeight   = 10
)

var (
	separatorRun  = regexp.MustCompile(`[_\-.]+`)
	whitespaceRun = regexp.MustCompile(`\s+`)
)

type keyword struct {
	raw      string
	prepared string
	score    int
}

type compiledRule struct {
	phrases []keyword
	tokens  []keyword
}

// Classifier is a deterministic keyword classifier. It is safe for
// concurrent use once constructed.
type Classifier struct {
	allowed  map[string]struct{}
	priority []string
	rules    map[string]compiledRule
	logger   *slog.Logger
}

func New(allowed []string, extra RuleSet, logger *slog.Logger) *Classifier {
	if len(allowed) == 0 {
		allowed = domain.DefaultAllowedTypes
	}
	if logger == nil {
		logger = slog.Default()
	}
	merged := Merge(DefaultRules(), extra, allowed)

	c := &Classifier{
		allowed:  make(map[string]struct{}, len(allowed)),
		priority: domain.TypePriority(allowed),
		rules:    make(map[string]compiledRule, len(merged)),
		logger:   logger,
	}
	for _, code := range c.priority {
		c.allowed[code] = struct{}{}
	}
	for code, rule := range merged {
		c.rules[code] = compiledRule{
			phrases: compileKeywords(rule.Phrases, phraseWeight),
			tokens:  compileKeywords(rule.Tokens, tokenWeight),
		}
	}
	return c
}

// NewWithRuleFile loads optional extensions from rulesFile. A missing or
// broken file is logged and the built-in rules are used alone.
func NewWithRuleFile(allowed []string, rulesFile string, logger *slog.Logger) *Classifier {
	if logger == nil {
		logger = slog.Default()
	}
	var extra RuleSet
	if strings.TrimSpace(rulesFile) != "" {
		loaded, err := LoadFile(rulesFile)
		if err != nil {
			logger.Warn("classifier_rules_load_failed", "path", rulesFile, "error", err)
		} else {
			extra = loaded
			logger.Info("classifier_rules_loaded", "path", rulesFile, "types", len(loaded))
		}
	}
	return New(allowed, extra, logger)
}

func (c *Classifier) Classify(filename, text string) domain.Classification {
	base := filepath.Base(filename)
	stem := strings.TrimSuffix(base, filepath.Ext(base))

	if code, ok := c.prefixType(stem); ok {
		return c.result(filename, domain.Classification{
			Type:      code,
			Detection: domain.Detection{Source: domain.DetectionFilenamePrefix, Keyword: code},
		})
	}

	if match, ok := c.bestMatch(Prepare(base)); ok {
		match.Source = domain.DetectionFilename
		return c.result(filename, match)
	}

	if match, ok := c.bestMatch(Prepare(truncateRunes(text, contentWindow))); ok {
		match.Source = domain.DetectionContent
		return c.result(filename, match)
	}

	return c.result(filename, domain.Classification{
		Type:      domain.TypeUnknown,
		Detection: domain.Detection{Source: domain.DetectionNone},
	})
}

func (c *Classifier) prefixType(stem string) (string, bool) {
	fields := strings.Fields(Prepare(stem))
	if len(fields) == 0 {
		return "", false
	}
	code := strings.ToUpper(fields[0])
	_, ok := c.allowed[code]
	return code, ok
}

// bestMatch walks types in priority order and only replaces the current best
// on a strictly higher score, so ties go to the higher-priority type.
func (c *Classifier) bestMatch(haystack string) (domain.Classification, bool) {
	if haystack == "" {
		return domain.Classification{}, false
	}
	var best domain.Classification
	for _, code := range c.priority {
		rule := c.rules[code]
		for _, kw := range rule.phrases {
			if kw.score > best.Score && strings.Contains(haystack, kw.prepared) {
				best = domain.Classification{Type: code, Detection: domain.Detection{Keyword: kw.raw, Score: kw.score}}
			}
		}
		for _, kw := range rule.tokens {
			if kw.score > best.Score && containsToken(haystack, kw.prepared) {
				best = domain.Classification{Type: code, Detection: domain.Detection{Keyword: kw.raw, Score: kw.score}}
			}
		}
	}
	return best, best.Score > 0
}

func (c *Classifier) result(filename string, cls domain.Classification) domain.Classification {
	c.logger.Debug("document_classified",
		"filename", filename,
		"type", cls.Type,
		"source", cls.Source,
		"keyword", cls.Keyword,
		"score", cls.Score,
	)
	return cls
}

// Prepare lower-cases, strips diacritics and collapses separator and
// whitespace runs to single spaces.
func Prepare(s string) string {
	s = stripDiacritics(strings.ToLower(s))
	s = separatorRun.ReplaceAllString(s, " ")
	s = whitespaceRun.ReplaceAllString(s, " ")
	return strings.TrimSpace(s)
}

func stripDiacritics(s string) string {
	t := transform.Chain(norm.NFKD, runes.Remove(runes.In(unicode.Mn)))
	out, _, err := transform.String(t, s)
	if err != nil {
		return s
	}
	return out
}

func compileKeywords(items []string, weight int) []keyword {
	out := make([]keyword, 0, len(items))
	for _, item := range items {
		prepared := Prepare(item)
		if prepared == "" {
			continue
		}
		out = append(out, keyword{
			raw:      item,
			prepared: prepared,
			score:    weight + utf8.RuneCountInString(prepared),
		})
	}
	return out
}

// containsToken reports whether token occurs with no [a-z0-9] neighbour on either side.
func containsToken(haystack, token string) bool {
	if token == "" {
		return false
	}
	offset := 0
	for {
		idx := strings.Index(haystack[offset:], token)
		if idx < 0 {
			return false
		}
		start := offset + idx
		end := start + len(token)
		before, _ := utf8.DecodeLastRuneInString(haystack[:start])
		after, _ := utf8.DecodeRuneInString(haystack[end:])
		if !isWordRune(before) && !isWordRune(after) {
			return true
		}
		offset = start + 1
	}
}

func isWordRune(r rune) bool {
	return (r >= 'a' && r <= 'z') || (r >= '0' && r <= '9')
}

func truncateRunes(s string, limit int) string {
	if utf8.RuneCountInString(s) <= limit {
		return s
	}
	return string([]rune(s)[:limit])
}
