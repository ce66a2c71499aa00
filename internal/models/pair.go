package models

import "time"

// XslEntry is the current stylesheet for a basename. A later arrival with
// the same basename overwrites the earlier one (last-write-wins).
type XslEntry struct {
	Basename string
	Name     string
	Title    string
	Data     []byte
}

// PendingXML is an XML document waiting for its XSL counterpart. Multiple
// pending documents may share a basename; they are kept in arrival order.
type PendingXML struct {
	Basename     string
	Name         string
	Organization string
	Data         []byte
	Source       SourceInfo
}

// FilePair is a matched (XML, XSL) combination ready for transformation and
// display. Immutable once created; the pair collection supports only append
// and delete-by-key.
type FilePair struct {
	Key          string     `json:"key"`
	Basename     string     `json:"basename"`
	Title        string     `json:"title"`
	Organization string     `json:"organization"`
	XMLName      string     `json:"xmlName"`
	XSLName      string     `json:"xslName"`
	XMLData      []byte     `json:"-"`
	XSLData      []byte     `json:"-"`
	Source       SourceInfo `json:"source"`
	CreatedAt    time.Time  `json:"createdAt"`
}
