package chunk

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const javaSample = `package com.example;

import java.util.List;

public class Inventory {
    private List<String> items;

    public int count() {
        return items.size();
    }
}

public static void main(String[] args) {
    run();
}
`

func TestBraceChunker_JavaClassAndFunction(t *testing.T) {
	chunker := NewBraceChunker()
	drafts := chunker.Chunk([]byte(javaSample), Options{})
	require.NotEmpty(t, drafts)

	var class, fn *Draft
	for i := range drafts {
		switch drafts[i].Kind {
		case KindCodeClass:
			class = &drafts[i]
		case KindCodeFunction:
			fn = &drafts[i]
		}
	}
	require.NotNil(t, class)
	require.Len(t, class.Symbols, 1)
	assert.Equal(t, "Inventory", class.Symbols[0].Name)
	assert.Contains(t, class.Text, "items.size()", "nested braces stay inside the class block")

	require.NotNil(t, fn)
	assert.Equal(t, "main", fn.Symbols[0].Name)
}

func TestBraceChunker_RustFn(t *testing.T) {
	source := `use std::io;

fn read_all(path: &str) -> io::Result<String> {
    std::fs::read_to_string(path)
}

struct Config {
    root: String,
}
`
	chunker := NewBraceChunker()
	drafts := chunker.Chunk([]byte(source), Options{})

	var names []string
	for _, d := range drafts {
		for _, s := range d.Symbols {
			names = append(names, s.Name)
		}
	}
	assert.Contains(t, names, "read_all")
	assert.Contains(t, names, "Config")
}

func TestBraceChunker_IgnoresBracesInCommentsAndStrings(t *testing.T) {
	source := `// a stray { in a comment
const char *tpl = "{not a block}";

void handler() {
    /* another } inside */
    emit("{");
}
`
	chunker := NewBraceChunker()
	drafts := chunker.Chunk([]byte(source), Options{})

	var fns int
	for _, d := range drafts {
		if d.Kind == KindCodeFunction {
			fns++
			assert.Contains(t, d.Text, `emit("{")`)
		}
	}
	assert.Equal(t, 1, fns)
}

func TestBraceChunker_Coverage(t *testing.T) {
	chunker := NewBraceChunker()
	drafts := chunker.Chunk([]byte(javaSample), Options{})

	var rebuilt strings.Builder
	for _, d := range drafts {
		rebuilt.WriteString(d.Text)
	}
	assert.Equal(t,
		strings.Join(strings.Fields(javaSample), " "),
		strings.Join(strings.Fields(rebuilt.String()), " "))
}
