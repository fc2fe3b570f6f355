package codeblock

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestDetect(t *testing.T) {
	tests := []struct {
		name string
		text string
		want []string
	}{
		{
			name: "empty input",
			text: "",
			want: []string{},
		},
		{
			name: "plain prose",
			text: "no code here\njust talking",
			want: []string{},
		},
		{
			name: "inline fence",
			text: "```x=1```",
			want: []string{"x=1"},
		},
		{
			name: "fence takes precedence over indentation",
			text: "text\n```\n    code\n```\nmore",
			want: []string{"code"},
		},
		{
			name: "indented run closed by blank line",
			text: "intro\n    a := 1\n    b := 2\n    c := a + b\n\noutro",
			want: []string{"a := 1\nb := 2\nc := a + b"},
		},
		{
			name: "tab and space indentation mix in one run",
			text: "\tfoo()\n    bar()\nend",
			want: []string{"foo()\nbar()"},
		},
		{
			name: "three spaces is not indentation",
			text: "   almost\nnot code",
			want: []string{},
		},
		{
			name: "run at end of text is kept",
			text: "see:\n    make build",
			want: []string{"make build"},
		},
		{
			name: "two separate runs",
			text: "    one\nbreak\n    two",
			want: []string{"one", "two"},
		},
		{
			name: "fenced and indented in order",
			text: "    first\n```go\nfmt.Println()\n```\n    last\n",
			want: []string{"first", "go\nfmt.Println()", "last"},
		},
		{
			name: "unterminated fence runs to end",
			text: "before ```open code",
			want: []string{"open code"},
		},
		{
			name: "empty fence is still a block",
			text: "a``````b",
			want: []string{""},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Detect(tt.text))
		})
	}
}

func TestDetect_IdempotentOnRewrappedOutput(t *testing.T) {
	inputs := []string{
		"intro ```x = 1\ny = 2``` and ```print(x)```",
		"text\n```\n    code\n```\nmore",
	}

	for _, input := range inputs {
		first := Detect(input)
		for _, block := range first {
			assert.Equal(t, []string{block}, Detect(Fence+block+Fence))
		}
	}
}
