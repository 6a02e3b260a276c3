// Package sanitize turns raw, markdown-laden model output into text that is
// fit to show on screen or to hand to a speech synthesizer.
//
// Both profiles are ordered pipelines of small string transforms. Order
// matters: code and markup are stripped before punctuation is normalized,
// and quotes are normalized before whitespace is collapsed.
package sanitize

import "strings"

// maxPasses bounds the re-run loop in Pipeline.Settle. Model output settles
// in two or three passes.
const maxPasses = 8

// Step is a single named transform in a pipeline.
type Step struct {
	Name  string
	Apply func(string) string
}

// Pipeline is an ordered list of steps applied left to right.
type Pipeline []Step

// Run applies every step once, in order.
func (p Pipeline) Run(s string) string {
	for _, step := range p {
		s = step.Apply(s)
	}
	return s
}

// Settle runs the pipeline until its output stops changing. A later step can
// expose a marker an earlier step would have removed (a quote in front of a
// heading hash, say); re-running makes the result a fixed point, so feeding
// it back in returns it unchanged.
func (p Pipeline) Settle(s string) string {
	out := p.Run(s)
	for i := 1; i < maxPasses; i++ {
		next := p.Run(out)
		if next == out {
			break
		}
		out = next
	}
	return out
}

// Display is the on-screen profile: markup removed, list bullets kept as "— ".
var Display = Pipeline{
	{"code-blocks", RemoveCodeBlocks},
	{"html", StripHTML},
	{"inline-code", RemoveInlineCode},
	{"markdown", StripMarkdownDecor},
	{"lists", func(s string) string { return NormalizeLists(s, true) }},
	{"bullet-dashes", func(s string) string { return BulletDashes(s, true) }},
	{"backticks-stars", RemoveBackticksAndStars},
	{"punctuation", NormalizePunctuation},
	{"quotes", NormalizeQuotes},
	{"spaces", CollapseSpaces},
	{"trim", strings.TrimSpace},
}

// Speech is the synthesizer profile: no bullets, no links, no symbols a
// voice would read out, and always a sentence terminator at the end.
var Speech = Pipeline{
	{"code-blocks", RemoveCodeBlocks},
	{"html", StripHTML},
	{"inline-code", RemoveInlineCode},
	{"markdown", StripMarkdownDecor},
	{"lists", func(s string) string { return NormalizeLists(s, false) }},
	{"urls", RemoveURLs},
	{"symbols", RemoveSymbols},
	{"bullet-dashes", func(s string) string { return BulletDashes(s, false) }},
	{"backticks-stars", RemoveBackticksAndStars},
	{"dash-pauses", RemoveInlineDashPauses},
	{"punctuation", NormalizePunctuation},
	{"quotes", NormalizeQuotes},
	{"spaces", CollapseSpaces},
	{"trim", strings.TrimSpace},
	{"sentence-ending", EnsureSentenceEnding},
}

// ForDisplay cleans raw model output for the conversation screen.
func ForDisplay(raw string) string {
	return Display.Settle(raw)
}

// ForSpeech cleans raw model output for text-to-speech. The result is either
// empty or ends in one of ".!?…".
func ForSpeech(raw string) string {
	return Speech.Settle(raw)
}

// Truncate cuts s to at most n runes.
func Truncate(s string, n int) string {
	if n < 0 {
		return ""
	}
	i := 0
	for pos := range s {
		if i == n {
			return s[:pos]
		}
		i++
	}
	return s
}
