package classifier

import (
	"strings"

	"github.com/PuerkitoBio/goquery"
)

// SiteMetadata is the extracted site summary handed to the LLM, serialized
// into the prompt in place of {{INPUT_JSON}}. Empty fields are omitted so the
// prompt stays small.
type SiteMetadata struct {
	Domain        string `json:"domain"`
	Title         string `json:"title,omitempty"`
	Description   string `json:"description,omitempty"`
	OGTitle       string `json:"og_title,omitempty"`
	OGDescription string `json:"og_description,omitempty"`
	OGSiteName    string `json:"og_site_name,omitempty"`
	Language      string `json:"language,omitempty"`
	HTTPStatus    int    `json:"http_status"`
	FetchError    string `json:"fetch_error,omitempty"`
}

// MetadataFromFetchError creates minimal metadata for a domain whose site
// could not be fetched; the LLM then judges on the domain name alone.
func MetadataFromFetchError(domain, fetchError string) SiteMetadata {
	return SiteMetadata{
		Domain:     domain,
		FetchError: fetchError,
	}
}

// ExtractMetadata pulls the classification-relevant fields out of an HTML
// page: title, meta description, OpenGraph tags, and document language.
func ExtractMetadata(domain, html string, status int) (SiteMetadata, error) {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	if err != nil {
		return SiteMetadata{}, newClassifyError(ErrorTypeHTMLParse, err)
	}

	return SiteMetadata{
		Domain:        domain,
		Title:         firstText(doc, "title"),
		Description:   firstAttr(doc, "meta[name='description']", "content"),
		OGTitle:       firstAttr(doc, "meta[property='og:title']", "content"),
		OGDescription: firstAttr(doc, "meta[property='og:description']", "content"),
		OGSiteName:    firstAttr(doc, "meta[property='og:site_name']", "content"),
		Language:      firstAttr(doc, "html", "lang"),
		HTTPStatus:    status,
	}, nil
}

// firstText returns the trimmed text of the first element matching the
// selector, or "" when absent or blank.
func firstText(doc *goquery.Document, selector string) string {
	return strings.TrimSpace(doc.Find(selector).First().Text())
}

// firstAttr returns the trimmed attribute of the first element matching the
// selector, or "" when absent or blank.
func firstAttr(doc *goquery.Document, selector, attr string) string {
	value, _ := doc.Find(selector).First().Attr(attr)

	return strings.TrimSpace(value)
}
