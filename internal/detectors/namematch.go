// Package detectors tags cross-references that match known patterns, such as
// classes from cipher libraries referenced by a method.
package detectors

import (
	"fmt"
	"regexp"
	"strings"

	"avmdis/internal/analysis"
)

// NameMatch tags resolved cross-references whose name matches any pattern.
type NameMatch struct {
	Tag      string
	Patterns []*regexp.Regexp
}

// NewNameMatch compiles patterns into a detector that attaches tag.
func NewNameMatch(tag string, patterns ...string) (*NameMatch, error) {
	d := &NameMatch{Tag: tag}
	for _, p := range patterns {
		re, err := regexp.Compile(p)
		if err != nil {
			return nil, fmt.Errorf("pattern %q: %w", p, err)
		}
		d.Patterns = append(d.Patterns, re)
	}
	return d, nil
}

var cryptoNames = []string{
	`(?i)xxtea`,
	`(?i)\b(aes|rc4|des|blowfish)\b`,
	`(?i)(en|de)crypt`,
	`(?i)cipher`,
	`(?i)::(md5|sha1|sha256|base64)`,
}

// NewCryptoDetector returns a NameMatch for names typical of cipher and hash
// helpers, the usual place to start when recovering asset keys.
func NewCryptoDetector() *NameMatch {
	d, err := NewNameMatch("crypto", cryptoNames...)
	if err != nil {
		panic(err)
	}
	return d
}

func (d *NameMatch) Detect(xrefs []analysis.Xref) []analysis.Xref {
	result := make([]analysis.Xref, 0, len(xrefs))
	for _, x := range xrefs {
		if x.Resolved && !x.HasTag(d.Tag) {
			for _, re := range d.Patterns {
				if re.MatchString(x.Name) {
					x.Tags = append(append([]string(nil), x.Tags...), d.Tag)
					x.Comment = joinComment(x.Comment, fmt.Sprintf("%s: %s", d.Tag, re.String()))
					break
				}
			}
		}
		result = append(result, x)
	}
	return result
}

func joinComment(prev, next string) string {
	if prev == "" {
		return next
	}
	if strings.Contains(prev, next) {
		return prev
	}
	return prev + "; " + next
}
