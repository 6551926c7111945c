package models

// IssueType is a closed category of accessibility defect.
type IssueType string

const (
	IssueMissingText      IssueType = "missing_text"
	IssueTableHeaders     IssueType = "table_headers"
	IssueMissingAltText   IssueType = "missing_alt_text"
	IssueHeadingStructure IssueType = "heading_structure"
	IssueMissingLanguage  IssueType = "missing_language"
	IssueFormLabels       IssueType = "form_labels"
	IssueLinkText         IssueType = "link_text"
	IssueMissingTitle     IssueType = "missing_title"
)

// IssueTypeInfo is one row of the taxonomy table. Adding a check means adding
// a row here and a Check in the detector.
type IssueTypeInfo struct {
	Type     IssueType
	Severity Severity
	WCAG     string
	Title    string
}

var taxonomy = map[IssueType]IssueTypeInfo{
	IssueMissingText:      {IssueMissingText, SeverityCritical, "1.1.1", "Insufficient text on page"},
	IssueTableHeaders:     {IssueTableHeaders, SeverityHigh, "1.3.1", "Table without header row"},
	IssueMissingAltText:   {IssueMissingAltText, SeverityHigh, "1.1.1", "Image without alternative text"},
	IssueHeadingStructure: {IssueHeadingStructure, SeverityMedium, "1.3.1", "Malformed heading hierarchy"},
	IssueMissingLanguage:  {IssueMissingLanguage, SeverityMedium, "3.1.1", "Missing document language"},
	IssueFormLabels:       {IssueFormLabels, SeverityHigh, "3.3.2", "Unlabeled form field"},
	IssueLinkText:         {IssueLinkText, SeverityMedium, "2.4.4", "Non-descriptive link text"},
	IssueMissingTitle:     {IssueMissingTitle, SeverityMedium, "2.4.2", "Missing document title"},
}

// Info returns the taxonomy row for t. Unknown types get medium severity so
// scoring stays total as the taxonomy grows.
func (t IssueType) Info() IssueTypeInfo {
	if info, ok := taxonomy[t]; ok {
		return info
	}
	return IssueTypeInfo{Type: t, Severity: SeverityMedium, Title: string(t)}
}

func (t IssueType) Known() bool {
	_, ok := taxonomy[t]
	return ok
}

// IssueTypes lists the known types in a stable order.
func IssueTypes() []IssueType {
	return []IssueType{
		IssueMissingText,
		IssueTableHeaders,
		IssueMissingAltText,
		IssueHeadingStructure,
		IssueMissingLanguage,
		IssueFormLabels,
		IssueLinkText,
		IssueMissingTitle,
	}
}
