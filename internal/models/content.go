package models

// DocumentContent is what the content extractor hands to the detector.
type DocumentContent struct {
	Pages    []PageContent `json:"pages"`
	Language *string       `json:"language"`
	Title    *string       `json:"title"`
}

type PageContent struct {
	Number     int                 `json:"number"` // 1-indexed
	Text       string              `json:"text"`
	Tables     [][][]string        `json:"tables"`
	Images     []ImageDescriptor   `json:"images"`
	Headings   []HeadingDescriptor `json:"headings"`
	FormFields []FormField         `json:"form_fields"`
	Links      []LinkDescriptor    `json:"links"`
}

type ImageDescriptor struct {
	HasAltText bool    `json:"has_alt_text"`
	Caption    *string `json:"caption"`
	// Coverage is the fraction of the page area the image occupies, 0 when unknown.
	Coverage float64 `json:"coverage,omitempty"`
}

type HeadingDescriptor struct {
	Level int    `json:"level"`
	Text  string `json:"text"`
}

type FormField struct {
	HasLabel bool   `json:"has_label"`
	Name     string `json:"name,omitempty"`
}

type LinkDescriptor struct {
	Text   string `json:"text"`
	Target string `json:"target"`
}

// Page returns the page with the given 1-indexed number.
func (c *DocumentContent) Page(number int) (*PageContent, bool) {
	if c == nil {
		return nil, false
	}
	for i := range c.Pages {
		if c.Pages[i].Number == number {
			return &c.Pages[i], true
		}
	}
	return nil, false
}
