package sanitize

import (
	"html"
	"regexp"
	"strings"
	"unicode"
	"unicode/utf8"

	"github.com/microcosm-cc/bluemonday"
)

var (
	codeBlockRe  = regexp.MustCompile("(?s)```.*?```|~~~.*?~~~")
	inlineCodeRe = regexp.MustCompile("`([^`]+)`")

	emphasisRe   = regexp.MustCompile(`[*_~]{1,2}`)
	headingRe    = regexp.MustCompile(`(?m)^#{1,6}[ \t]*`)
	blockquoteRe = regexp.MustCompile(`(?m)^>[ \t]?`)

	numberedItemRe  = regexp.MustCompile(`(?m)^[ \t]*\d+[.)][ \t]+`)
	bracketedItemRe = regexp.MustCompile(`(?m)^[ \t]*\(\d+\)[ \t]+`)
	bulletItemRe    = regexp.MustCompile(`(?m)^[ \t]*[-*•·][ \t]+`)

	bulletDashRe = regexp.MustCompile(`(?m)^[ \t\x{00A0}]*[\-–—‒−][ \t\x{00A0}]+`)
	dashPauseRe  = regexp.MustCompile(`[ \t\x{00A0}]+[\-–—‒−][ \t\x{00A0}]+`)

	urlRe = regexp.MustCompile(`(https?://|www\.)\S+`)

	ellipsisRe        = regexp.MustCompile(`\.{3,}`)
	repeatedMarkRe    = regexp.MustCompile(`!{2,}|\?{2,}|\.{2,}|,{2,}|;{2,}|:{2,}`)
	doubleHyphenRe    = regexp.MustCompile(`[ \t\x{00A0}]*-{2,}[ \t\x{00A0}]*`)
	spaceBeforeMarkRe = regexp.MustCompile(`[ \t\x{00A0}]+([!?.,;:])`)
	markNoSpaceRe     = regexp.MustCompile(`([!?.,;:])([^\s!?.,;:…)\]}»"'])`)
	openParenSpaceRe  = regexp.MustCompile(`\([ \t\x{00A0}]+`)
	closeParenSpaceRe = regexp.MustCompile(`[ \t\x{00A0}]+\)`)

	multiSpaceRe    = regexp.MustCompile(` {2,}`)
	horizontalRunRe = regexp.MustCompile(`[ \t\x{00A0}]{2,}`)
	leadingSpaceRe  = regexp.MustCompile(`(?m)^[ \t\x{00A0}]+`)
	trailingSpaceRe = regexp.MustCompile(`(?m)[ \t\x{00A0}]+$`)
	blankLinesRe    = regexp.MustCompile(`\n{3,}`)
)

// htmlPolicy strips every tag, leaving a space where one stood so adjacent
// words do not run together. bluemonday policies are safe for concurrent use
// once built.
var htmlPolicy = bluemonday.StrictPolicy().AddSpaceWhenStrippingTag(true)

// bullet is the list marker kept in display text.
const bullet = "— "

// speechPunctuation is what RemoveSymbols lets through besides letters and
// digits.
const speechPunctuation = " .,!?:;()-«»\""

// sentenceEnders terminate speech text.
const sentenceEnders = ".!?…"

// droppedGlyphs are backticks, primes, apostrophe-like modifiers, curly and
// straight double quotes, and star glyphs. Synthesizers either read them out
// loud or stumble over them.
var droppedGlyphs = map[rune]bool{
	'`': true, '｀': true,
	'′': true, '″': true, '‴': true, '‵': true, '‶': true,
	'´': true, 'ˋ': true, 'ˊ': true, 'ʼ': true, 'ʹ': true,
	'ʻ': true, 'ʽ': true, 'ʾ': true, 'ʿ': true, 'ˈ': true,
	'‘': true, '’': true, '‚': true, '‛': true,
	'“': true, '”': true, '„': true, '‟': true, '"': true,
	'*': true, '＊': true, '⁎': true, '∗': true, '⋆': true,
	'✩': true, '✪': true, '✭': true, '✯': true, '✰': true,
	'✱': true, '✲': true, '✳': true, '✴': true, '✵': true,
	'✶': true, '✷': true, '✸': true, '✹': true, '✺': true,
	'✻': true, '✼': true, '★': true, '☆': true,
}

// RemoveCodeBlocks replaces fenced ``` and ~~~ blocks with a single space.
func RemoveCodeBlocks(s string) string {
	return codeBlockRe.ReplaceAllString(s, " ")
}

// StripHTML drops HTML tags (and script/style bodies) and decodes entities.
func StripHTML(s string) string {
	if !strings.ContainsAny(s, "<&") {
		return s
	}
	return html.UnescapeString(htmlPolicy.Sanitize(s))
}

// RemoveInlineCode unwraps `code` spans, keeping their text.
func RemoveInlineCode(s string) string {
	return inlineCodeRe.ReplaceAllString(s, "${1}")
}

// StripMarkdownDecor removes emphasis markers, heading hashes and blockquote
// markers.
func StripMarkdownDecor(s string) string {
	s = emphasisRe.ReplaceAllString(s, "")
	s = headingRe.ReplaceAllString(s, "")
	return blockquoteRe.ReplaceAllString(s, "")
}

// NormalizeLists rewrites numbered ("1.", "1)", "(1)") and bulleted ("-", "*",
// "•", "·") list markers at line start. With keepBullets they become "— ",
// otherwise they are dropped.
func NormalizeLists(s string, keepBullets bool) string {
	marker := ""
	if keepBullets {
		marker = bullet
	}
	s = numberedItemRe.ReplaceAllLiteralString(s, marker)
	s = bracketedItemRe.ReplaceAllLiteralString(s, marker)
	return bulletItemRe.ReplaceAllLiteralString(s, marker)
}

// BulletDashes handles any dash variant (-, –, —, ‒, −) still used as a bullet
// at line start. Display text keeps it as the "— " bullet; speech drops it.
func BulletDashes(s string, keepBullets bool) string {
	marker := ""
	if keepBullets {
		marker = bullet
	}
	return bulletDashRe.ReplaceAllLiteralString(s, marker)
}

// RemoveBackticksAndStars replaces every dropped glyph with a space and
// collapses the space runs that leaves behind.
func RemoveBackticksAndStars(s string) string {
	s = strings.Map(func(r rune) rune {
		if droppedGlyphs[r] {
			return ' '
		}
		return r
	}, s)
	return multiSpaceRe.ReplaceAllString(s, " ")
}

// RemoveURLs blanks out http://, https:// and www. tokens.
func RemoveURLs(s string) string {
	return urlRe.ReplaceAllString(s, " ")
}

// RemoveSymbols keeps letters, digits and basic punctuation; everything else
// (emoji, pictographs, technical symbols, line breaks) becomes a space.
func RemoveSymbols(s string) string {
	return strings.Map(func(r rune) rune {
		if unicode.IsLetter(r) || unicode.IsDigit(r) || strings.ContainsRune(speechPunctuation, r) {
			return r
		}
		return ' '
	}, s)
}

// RemoveInlineDashPauses turns " - " and " — " between words into a plain
// space. Hyphenated words are left alone.
func RemoveInlineDashPauses(s string) string {
	return dashPauseRe.ReplaceAllLiteralString(s, " ")
}

// NormalizePunctuation tidies up runs and spacing of punctuation marks.
func NormalizePunctuation(s string) string {
	s = ellipsisRe.ReplaceAllLiteralString(s, "…")
	s = repeatedMarkRe.ReplaceAllStringFunc(s, func(m string) string { return m[:1] })
	s = doubleHyphenRe.ReplaceAllLiteralString(s, " — ")
	s = spaceBeforeMarkRe.ReplaceAllString(s, "${1}")
	s = markNoSpaceRe.ReplaceAllString(s, "${1} ${2}")
	s = openParenSpaceRe.ReplaceAllLiteralString(s, "(")
	return closeParenSpaceRe.ReplaceAllLiteralString(s, ")")
}

// NormalizeQuotes maps curly and low-9 double quotes to guillemets and
// deletes straight double quotes.
func NormalizeQuotes(s string) string {
	return quoteReplacer.Replace(s)
}

var quoteReplacer = strings.NewReplacer(
	"“", "«",
	"”", "»",
	"„", "«",
	"\"", "",
)

// CollapseSpaces squeezes horizontal whitespace, trims every line and keeps
// at most one blank line between paragraphs.
func CollapseSpaces(s string) string {
	s = strings.ReplaceAll(s, "\r\n", "\n")
	s = strings.ReplaceAll(s, "\r", "\n")
	s = horizontalRunRe.ReplaceAllLiteralString(s, " ")
	s = leadingSpaceRe.ReplaceAllLiteralString(s, "")
	s = trailingSpaceRe.ReplaceAllLiteralString(s, "")
	return blankLinesRe.ReplaceAllLiteralString(s, "\n\n")
}

// EnsureSentenceEnding appends a period to non-blank text that does not
// already end in a sentence terminator.
func EnsureSentenceEnding(s string) string {
	t := strings.TrimRightFunc(s, unicode.IsSpace)
	if strings.TrimSpace(t) == "" {
		return s
	}
	last, _ := utf8.DecodeLastRuneInString(t)
	if strings.ContainsRune(sentenceEnders, last) {
		return t
	}
	return t + "."
}
