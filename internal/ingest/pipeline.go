package ingest

import (
	"errors"
	"fmt"
	"strings"

	"github.com/formpair/backend/internal/models"
	"github.com/formpair/backend/internal/pairing"
	"github.com/formpair/backend/internal/zipreader"
)

// Pipeline orchestrates one pairing session's ingestion: it classifies each
// dropped source (direct file, folder member, ZIP archive), expands
// archives, deduplicates, and hands the resulting flat file list to the
// pair matcher. Extension filtering happens here, not inside the archive
// reader, which stays format-agnostic.
type Pipeline struct {
	tracker *KeyTracker
	matcher *pairing.Matcher
	session *pairing.Session
	allowed map[string]bool
}

// ProgressFunc receives staged status updates while a batch is processed.
type ProgressFunc func(status Status, progress float64)

// BatchResult summarizes one drop batch.
type BatchResult struct {
	NewPairs         []*models.FilePair
	Accepted         int
	Duplicates       int
	ArchivesExpanded int
	MemberErrors     []string
	SelectedKey      string
	SelectionChanged bool
}

// NewPipeline creates a pipeline bound to a session and its matcher.
// allowedTypes is the set of file extensions admitted into processing
// (e.g. ".xml", ".xsl", ".zip"); nil means that default set.
func NewPipeline(session *pairing.Session, matcher *pairing.Matcher, allowedTypes []string) *Pipeline {
	allowed := make(map[string]bool, len(allowedTypes))
	for _, t := range allowedTypes {
		t = strings.ToLower(strings.TrimSpace(t))
		if t == "" {
			continue
		}
		if !strings.HasPrefix(t, ".") {
			t = "." + t
		}
		allowed[t] = true
	}
	if len(allowed) == 0 {
		allowed = map[string]bool{".xml": true, ".xsl": true, ".zip": true}
	}
	return &Pipeline{
		tracker: NewKeyTracker(),
		matcher: matcher,
		session: session,
		allowed: allowed,
	}
}

// Ingest processes one drop/selection event. Side effect: when no pair is
// selected yet and new pairs were produced, the first new pair becomes the
// implicit selection.
func (p *Pipeline) Ingest(sources []models.RawSource) *BatchResult {
	return p.IngestWithProgress(sources, nil)
}

// IngestWithProgress is Ingest with staged status reporting: classifying
// while sources are keyed and sorted, extracting while archives expand,
// pairing once the flat list goes to the matcher. progress may be nil.
func (p *Pipeline) IngestWithProgress(sources []models.RawSource, progress ProgressFunc) *BatchResult {
	report := progress
	if report == nil {
		report = func(Status, float64) {}
	}

	report(StatusClassifying, 10)

	result := &BatchResult{}
	var classified []models.ClassifiedFile

	for i := range sources {
		src := &sources[i]

		pathOrName := src.RelativePath
		if pathOrName == "" {
			pathOrName = src.Name
		}

		// Dedup happens before archive expansion: the top-level archive is
		// keyed, extracted members are not (they carry no relative path or
		// modified time of their own).
		if !p.tracker.Accept(pathOrName, src.Size(), src.LastModified) {
			result.Duplicates++
			continue
		}
		result.Accepted++

		if isArchive(src) && p.allowed[".zip"] {
			report(StatusExtracting, 40)
			p.expandArchive(i, src, &classified, result)
			continue
		}

		if !p.isDocument(src.Name) {
			continue
		}
		classified = append(classified, models.ClassifiedFile{
			Name:   src.Name,
			Data:   src.Data,
			Source: classify(i, src),
		})
	}

	report(StatusPairing, 70)
	result.NewPairs = p.matcher.Submit(classified)

	if len(result.NewPairs) > 0 {
		first := result.NewPairs[0].Key
		result.SelectionChanged = p.session.SelectIfNone(first)
	}
	result.SelectedKey = p.session.Selected()
	return result
}

// expandArchive runs one ZIP source through the local-header reader and
// classifies its document members. Zero members from a recognized archive
// is a caller-visible signal, not an empty success.
func (p *Pipeline) expandArchive(index int, src *models.RawSource, classified *[]models.ClassifiedFile, result *BatchResult) {
	members, memberErrs, err := zipreader.Extract(src.Data)
	if err != nil {
		if errors.Is(err, zipreader.ErrTruncatedHeader) {
			fmt.Printf("[Ingest] Archive %s: truncated header, extracted %d members before failure\n",
				src.Name, len(members))
		}
		result.MemberErrors = append(result.MemberErrors, fmt.Sprintf("%s: %v", src.Name, err))
	}
	for _, me := range memberErrs {
		result.MemberErrors = append(result.MemberErrors, fmt.Sprintf("%s: %v", src.Name, me))
	}
	if len(members) == 0 && err == nil && len(memberErrs) == 0 {
		fmt.Printf("[Ingest] Archive %s yielded no members\n", src.Name)
	}

	result.ArchivesExpanded++

	info := models.SourceInfo{
		SourceIndex: index,
		SourceType:  models.SourceTypeZip,
		SourceName:  src.Name,
	}
	for _, m := range members {
		if !p.isDocument(m.Name) {
			continue
		}
		*classified = append(*classified, models.ClassifiedFile{
			Name:   m.Name,
			Data:   m.Data,
			Source: info,
		})
	}
}

// classify derives the SourceInfo for a non-archive source. Folder
// membership is inferred from the presence of a relative path prefix.
func classify(index int, src *models.RawSource) models.SourceInfo {
	info := models.SourceInfo{
		SourceIndex: index,
		SourceType:  models.SourceTypeDirect,
		SourceName:  src.Name,
	}
	if folder := topFolder(src.RelativePath); folder != "" {
		info.SourceType = models.SourceTypeFolder
		info.FolderName = folder
	}
	return info
}

// topFolder returns the first traversed directory name of a synthesized
// relative path, or "" when the path carries no directory prefix.
func topFolder(relPath string) string {
	i := strings.IndexByte(relPath, '/')
	if i <= 0 {
		return ""
	}
	return relPath[:i]
}

func isArchive(src *models.RawSource) bool {
	if strings.EqualFold(ext(src.Name), ".zip") {
		return true
	}
	return strings.Contains(strings.ToLower(src.ContentType), "zip")
}

// isDocument keeps only the admitted document extensions; the archive
// extension never classifies as a document. Comparison is case-insensitive.
func (p *Pipeline) isDocument(name string) bool {
	e := strings.ToLower(ext(name))
	return e != ".zip" && p.allowed[e]
}

func ext(name string) string {
	if i := strings.LastIndexByte(name, '.'); i >= 0 {
		return name[i:]
	}
	return ""
}
