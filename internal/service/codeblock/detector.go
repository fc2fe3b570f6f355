// Package codeblock finds code snippets in free text such as transcript
// segments and video descriptions.
package codeblock

import "strings"

// Fence is the marker that opens and closes a fenced code span
const Fence = "```"

// Detect returns the code snippets found in text, in order of appearance.
//
// Text between a pair of fences is code regardless of its content and is never
// scanned for indentation. Fences do not nest, and an unterminated fence runs to
// the end of text. Outside fences, consecutive lines starting with four spaces or
// a tab form one snippet; each line is trimmed and the lines are joined with "\n".
func Detect(text string) []string {
	blocks := []string{}
	if text == "" {
		return blocks
	}

	for i, part := range strings.Split(text, Fence) {
		if i%2 == 1 {
			blocks = append(blocks, strings.TrimSpace(part))
			continue
		}
		blocks = append(blocks, indentedRuns(part)...)
	}
	return blocks
}

func indentedRuns(text string) []string {
	var (
		runs    []string
		current []string
	)
	flush := func() {
		if len(current) > 0 {
			runs = append(runs, strings.Join(current, "\n"))
			current = nil
		}
	}

	for _, line := range strings.Split(text, "\n") {
		if isIndented(line) {
			current = append(current, strings.TrimSpace(line))
			continue
		}
		flush()
	}
	flush()
	return runs
}

func isIndented(line string) bool {
	return strings.HasPrefix(line, "    ") || strings.HasPrefix(line, "\t")
}
