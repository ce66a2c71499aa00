package models

// SourceType identifies where a classified file originally came from.
type SourceType string

const (
	SourceTypeDirect SourceType = "direct"
	SourceTypeFolder SourceType = "folder"
	SourceTypeZip    SourceType = "zip"
)

// RawSource is one dropped blob as delivered by the front end, before
// classification. Immutable once created.
type RawSource struct {
	Name         string `json:"name"`
	RelativePath string `json:"relativePath,omitempty"` // set when picked from a folder tree
	LastModified int64  `json:"lastModified"`           // Unix ms
	ContentType  string `json:"contentType,omitempty"`
	Data         []byte `json:"-"`
}

// Size returns the byte size of the blob.
func (s *RawSource) Size() int64 {
	return int64(len(s.Data))
}

// SourceInfo records the origin of a classified file: its position within
// the drop batch, whether it came from a ZIP archive, a folder tree or a
// direct drop, and the archive/file name it originated from.
type SourceInfo struct {
	SourceIndex int        `json:"sourceIndex"`
	SourceType  SourceType `json:"sourceType"`
	SourceName  string     `json:"sourceName"`
	FolderName  string     `json:"folderName,omitempty"`
}

// ClassifiedFile is a file after classification and (if applicable) archive
// expansion, ready for the pair matcher.
type ClassifiedFile struct {
	Name   string
	Data   []byte
	Source SourceInfo
}
