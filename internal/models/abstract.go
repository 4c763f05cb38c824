package models

import (
	"strings"

	md "github.com/JohannesKaufmann/html-to-markdown"
)

// Markdown converts the abstract's markup fragment to Markdown.
func (a RawPatentAbstract) Markdown() (string, error) {
	converter := md.NewConverter("", true, nil)
	converted, err := converter.ConvertString(a.MarkupFragment)
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(converted), nil
}
