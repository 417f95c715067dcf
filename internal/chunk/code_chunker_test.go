package chunk

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const goSample = `package sample

import "fmt"

// Greet says hello.
func Greet(name string) string {
	return "hello " + name
}

func internalHelper() {
	fmt.Println("helping")
}
`

func TestCodeChunker_GoFunctions(t *testing.T) {
	chunker := NewCodeChunker()
	defer chunker.Close()

	chunks, err := chunker.Chunk(context.Background(), []byte(goSample), "go", Options{})
	require.NoError(t, err)
	require.NotEmpty(t, chunks)

	var functions []Draft
	for _, ch := range chunks {
		if ch.Kind == KindCodeFunction {
			functions = append(functions, ch)
		}
	}
	require.Len(t, functions, 2)
	assert.Contains(t, functions[0].Text, "func Greet")
	require.Len(t, functions[0].Symbols, 1)
	assert.Equal(t, "Greet", functions[0].Symbols[0].Name)
	assert.Equal(t, SymbolFunction, functions[0].Symbols[0].Kind)
	assert.Equal(t, "internalHelper", functions[1].Symbols[0].Name)
}

func TestCodeChunker_FullCoverage(t *testing.T) {
	chunker := NewCodeChunker()
	defer chunker.Close()

	chunks, err := chunker.Chunk(context.Background(), []byte(goSample), "go", Options{})
	require.NoError(t, err)

	// The package clause and imports land in CODE_BLOCK chunks; the
	// concatenated spans must reconstruct all non-whitespace content.
	var rebuilt strings.Builder
	for _, ch := range chunks {
		rebuilt.WriteString(ch.Text)
	}
	assert.Equal(t,
		strings.Join(strings.Fields(goSample), " "),
		strings.Join(strings.Fields(rebuilt.String()), " "))
}

func TestCodeChunker_OrdinalsAndLines(t *testing.T) {
	chunker := NewCodeChunker()
	defer chunker.Close()

	chunks, err := chunker.Chunk(context.Background(), []byte(goSample), "go", Options{})
	require.NoError(t, err)

	for i, ch := range chunks {
		assert.Equal(t, i, ch.Ordinal)
		assert.GreaterOrEqual(t, ch.EndLine, ch.StartLine)
		assert.GreaterOrEqual(t, ch.StartLine, 1)
	}
}

func TestCodeChunker_PythonDefAndClass(t *testing.T) {
	chunker := NewCodeChunker()
	defer chunker.Close()

	source := `import os

def top_level(x):
    """Docstring stays with the function."""
    return x * 2

class Widget:
    def render(self):
        return "<div>"
`
	chunks, err := chunker.Chunk(context.Background(), []byte(source), "python", Options{})
	require.NoError(t, err)

	var names []string
	for _, ch := range chunks {
		for _, s := range ch.Symbols {
			names = append(names, s.Name)
		}
		if strings.Contains(ch.Text, "def top_level") {
			assert.Contains(t, ch.Text, "Docstring stays", "docstring must stay with its function")
		}
	}
	assert.Contains(t, names, "top_level")
	assert.Contains(t, names, "Widget")
}

func TestCodeChunker_TypeScriptClass(t *testing.T) {
	chunker := NewCodeChunker()
	defer chunker.Close()

	source := `export class Parser {
  parse(input: string): Ast {
    return build(input);
  }
}

const handler = (req: Request) => process(req);
`
	chunks, err := chunker.Chunk(context.Background(), []byte(source), "typescript", Options{})
	require.NoError(t, err)

	var kinds []Kind
	var names []string
	for _, ch := range chunks {
		kinds = append(kinds, ch.Kind)
		for _, s := range ch.Symbols {
			names = append(names, s.Name)
		}
	}
	assert.Contains(t, kinds, KindCodeClass)
	assert.Contains(t, names, "Parser")
	assert.Contains(t, kinds, KindCodeFunction, "arrow-function const counts as a function")
}

func TestCodeChunker_OversizeClassSplitsIntoMethods(t *testing.T) {
	chunker := NewCodeChunker()
	defer chunker.Close()

	var body strings.Builder
	body.WriteString("class Huge {\n")
	for i := 0; i < 6; i++ {
		body.WriteString("  method")
		body.WriteString(string(rune('A' + i)))
		body.WriteString("() {\n")
		for j := 0; j < 12; j++ {
			body.WriteString("    doSomethingUseful(with, many, arguments);\n")
		}
		body.WriteString("  }\n")
	}
	body.WriteString("}\n")

	chunks, err := chunker.Chunk(context.Background(), []byte(body.String()), "javascript", Options{MaxTokens: 256})
	require.NoError(t, err)
	require.Greater(t, len(chunks), 1, "oversize class must split")

	var methodChunks, declChunks int
	for _, ch := range chunks {
		switch ch.Kind {
		case KindCodeFunction:
			methodChunks++
		case KindCodeClass:
			declChunks++
			assert.Contains(t, ch.Text, "class Huge")
		}
	}
	assert.Equal(t, 6, methodChunks)
	assert.Equal(t, 1, declChunks, "class declaration stays as its own chunk")
}

func TestCodeChunker_TokenBoundEnforced(t *testing.T) {
	chunker := NewCodeChunker()
	defer chunker.Close()

	var sb strings.Builder
	sb.WriteString("func enormous() {\n")
	for i := 0; i < 500; i++ {
		sb.WriteString("\tcallSite(alpha, beta, gamma, delta)\n")
	}
	sb.WriteString("}\n")

	chunks, err := chunker.Chunk(context.Background(), []byte("package p\n\n"+sb.String()), "go", Options{MaxTokens: 128})
	require.NoError(t, err)
	for _, ch := range chunks {
		assert.LessOrEqual(t, ch.TokenCount, 128, "no chunk may exceed the token bound")
	}
}

func TestCodeChunker_EmptySource(t *testing.T) {
	chunker := NewCodeChunker()
	defer chunker.Close()

	chunks, err := chunker.Chunk(context.Background(), []byte("  \n"), "go", Options{})
	require.NoError(t, err)
	assert.Empty(t, chunks)
}

// Many workers chunk through one Chunker at once during batch indexing;
// each parse must get its own tree-sitter parser or the C runtime aborts.
func TestCodeChunker_ConcurrentParsing(t *testing.T) {
	chunker := NewCodeChunker()
	defer chunker.Close()

	jsSample := `import { render } from "./render";

function draw(items) {
	return items.map(render);
}
`
	var wg sync.WaitGroup
	errs := make(chan error, 16)
	for g := 0; g < 16; g++ {
		wg.Add(1)
		go func(g int) {
			defer wg.Done()
			for i := 0; i < 50; i++ {
				src, lang := []byte(goSample), "go"
				if (g+i)%2 == 0 {
					src, lang = []byte(jsSample), "javascript"
				}
				chunks, err := chunker.Chunk(context.Background(), src, lang, Options{})
				if err != nil {
					errs <- err
					return
				}
				if len(chunks) == 0 {
					errs <- fmt.Errorf("no chunks for %s", lang)
					return
				}
			}
		}(g)
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		require.NoError(t, err)
	}
}
