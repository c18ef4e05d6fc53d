package resolver

import (
	"unicode/utf8"

	"github.com/gabriel-vasile/mimetype"
	"github.com/saintfish/chardet"
)

// checkText accepts only UTF-8 text that is not an HTML document.
// An HTML body usually means a login or error page was served instead of
// the module.
func checkText(body []byte) error {
	if !utf8.Valid(body) {
		charset := "unknown"
		if res, err := chardet.NewTextDetector().DetectBest(body); err == nil && res != nil {
			charset = res.Charset
		}
		return failf("source is not valid UTF-8 (looks like %s)", charset)
	}

	mt := mimetype.Detect(body)
	if mt.Is("text/html") {
		return failf("source is an HTML document")
	}
	for m := mt; m != nil; m = m.Parent() {
		if m.Is("text/plain") {
			return nil
		}
	}
	return failf("source is not text (%s)", mt.String())
}
