package ingest

import (
	"context"
	"fmt"
	"strings"

	"github.com/cloudwego/eino-ext/components/document/loader/file"
	"github.com/cloudwego/eino/components/document"
	"github.com/cloudwego/eino/components/document/parser"
)

// TextLoader reads a source file into plain text.
type TextLoader interface {
	LoadText(ctx context.Context, path string) (string, error)
}

// FileLoader reads local text files through the eino file loader.
type FileLoader struct {
	loader *file.FileLoader
}

func NewFileLoader(ctx context.Context) (*FileLoader, error) {
	parserExt, err := parser.NewExtParser(ctx, &parser.ExtParserConfig{
		FallbackParser: parser.TextParser{},
	})
	if err != nil {
		return nil, fmt.Errorf("init file parser: %w", err)
	}
	loader, err := file.NewFileLoader(ctx, &file.FileLoaderConfig{
		UseNameAsID: true,
		Parser:      parserExt,
	})
	if err != nil {
		return nil, fmt.Errorf("init file loader: %w", err)
	}
	return &FileLoader{loader: loader}, nil
}

func (l *FileLoader) LoadText(ctx context.Context, path string) (string, error) {
	docs, err := l.loader.Load(ctx, document.Source{URI: path})
	if err != nil {
		return "", fmt.Errorf("load %s: %w", path, err)
	}
	parts := make([]string, 0, len(docs))
	for _, d := range docs {
		if d == nil {
			continue
		}
		parts = append(parts, d.Content)
	}
	return strings.Join(parts, "\n"), nil
}
