// Package pdf はPDFのページ数取得とテキスト抽出を提供します。
package pdf

import (
	"context"
	"fmt"
	"os"
	"strings"

	textpdf "github.com/ledongthuc/pdf"
	pdfapi "github.com/pdfcpu/pdfcpu/pkg/api"
	"github.com/pdfcpu/pdfcpu/pkg/pdfcpu/model"
)

// Extractor はページ数の検証に pdfcpu を、テキスト抽出に ledongthuc/pdf を使います。
type Extractor struct {
	conf *model.Configuration
}

// NewExtractor は Extractor を作成します。
func NewExtractor() *Extractor {
	conf := model.NewDefaultConfiguration()
	conf.ValidationMode = model.ValidationRelaxed
	return &Extractor{conf: conf}
}

// PageCount はページ数を返します。読み取れないファイルはエラーです。
func (e *Extractor) PageCount(ctx context.Context, path string) (int, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	f, err := os.Open(path)
	if err != nil {
		return 0, err
	}
	defer f.Close()

	pages, err := pdfapi.PageCount(f, e.conf)
	if err != nil {
		return 0, fmt.Errorf("read pdf: %w", err)
	}
	return pages, nil
}

// ExtractText は全ページのテキストを "--- Page N ---" 区切りで連結して返します。
// 文字を含まないページは出力しません。
func (e *Extractor) ExtractText(ctx context.Context, path string) (text string, err error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}

	// 壊れたオブジェクトを読むと panic するためエラーに変換する
	defer func() {
		if rec := recover(); rec != nil {
			text = ""
			err = fmt.Errorf("extract text: %v", rec)
		}
	}()

	f, reader, err := textpdf.Open(path)
	if err != nil {
		return "", fmt.Errorf("open pdf: %w", err)
	}
	defer f.Close()

	fonts := make(map[string]*textpdf.Font)
	var b strings.Builder
	for i := 1; i <= reader.NumPage(); i++ {
		if err := ctx.Err(); err != nil {
			return "", err
		}
		page := reader.Page(i)
		if page.V.IsNull() {
			continue
		}
		for _, name := range page.Fonts() {
			if _, ok := fonts[name]; !ok {
				font := page.Font(name)
				fonts[name] = &font
			}
		}

		content, err := page.GetPlainText(fonts)
		if err != nil {
			return "", fmt.Errorf("page %d: %w", i, err)
		}
		content = strings.TrimSpace(content)
		if content == "" {
			continue
		}
		fmt.Fprintf(&b, "\n--- Page %d ---\n%s\n", i, content)
	}
	return b.String(), nil
}
