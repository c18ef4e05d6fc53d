package hostapi

import (
	"fmt"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"github.com/antchfx/htmlquery"
	"github.com/microcosm-cc/bluemonday"

	"github.com/GriffinCanCode/scriptbridge/internal/script/proxy"
	"github.com/GriffinCanCode/scriptbridge/internal/script/value"
)

// HTML exposes sanitizing and querying of HTML documents as host.HTML
func HTML() *proxy.Definition {
	policy := bluemonday.UGCPolicy()

	return proxy.New([]string{"host"}, "HTML").
		AddMethod("sanitize", func(call *proxy.Call) (value.Value, error) {
			doc, err := htmlArg(call, 0)
			if err != nil {
				return value.Undefined, err
			}
			return value.String(policy.Sanitize(doc)), nil
		}).
		AddMethod("select", func(call *proxy.Call) (value.Value, error) {
			texts, err := selectTexts(call)
			if err != nil {
				return value.Undefined, err
			}
			return value.Object(texts), nil
		}).
		AddMethod("xpath", func(call *proxy.Call) (value.Value, error) {
			texts, err := xpathTexts(call)
			if err != nil {
				return value.Undefined, err
			}
			return value.Object(texts), nil
		})
}

func selectTexts(call *proxy.Call) ([]any, error) {
	doc, err := htmlArg(call, 0)
	if err != nil {
		return nil, err
	}
	selector, err := stringArg(call, 1)
	if err != nil {
		return nil, err
	}

	parsed, err := goquery.NewDocumentFromReader(strings.NewReader(doc))
	if err != nil {
		return nil, fmt.Errorf("parse html: %w", err)
	}

	texts := []any{}
	parsed.Find(selector).Each(func(_ int, s *goquery.Selection) {
		texts = append(texts, strings.TrimSpace(s.Text()))
	})
	return texts, nil
}

func xpathTexts(call *proxy.Call) ([]any, error) {
	doc, err := htmlArg(call, 0)
	if err != nil {
		return nil, err
	}
	expr, err := stringArg(call, 1)
	if err != nil {
		return nil, err
	}

	root, err := htmlquery.Parse(strings.NewReader(doc))
	if err != nil {
		return nil, fmt.Errorf("parse html: %w", err)
	}
	nodes, err := htmlquery.QueryAll(root, expr)
	if err != nil {
		return nil, fmt.Errorf("xpath %q: %w", expr, err)
	}

	texts := make([]any, 0, len(nodes))
	for _, n := range nodes {
		texts = append(texts, strings.TrimSpace(htmlquery.InnerText(n)))
	}
	return texts, nil
}
