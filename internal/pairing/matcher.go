package pairing

import (
	"fmt"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/formpair/backend/internal/extract"
	"github.com/formpair/backend/internal/models"
)

// Matcher applies classified-file batches to a Session. It runs as a
// single-threaded actor: one goroutine consumes batches from a queue and
// applies each fully before reading the next, which makes the
// last-write-wins ordering on the XSL cache mechanical rather than
// incidental. Concurrent submitters are serialized, never interleaved.
type Matcher struct {
	session  *Session
	keywords []string

	requests  chan matchRequest
	done      chan struct{}
	closeOnce sync.Once
}

type matchRequest struct {
	files []models.ClassifiedFile
	reply chan []*models.FilePair
}

// NewMatcher creates a matcher bound to a session and starts its actor
// loop. Call Close when the session is discarded.
func NewMatcher(session *Session, keywords []string) *Matcher {
	m := &Matcher{
		session:  session,
		keywords: keywords,
		requests: make(chan matchRequest),
		done:     make(chan struct{}),
	}
	go m.run()
	return m
}

// Submit applies one batch and returns the pairs newly completed by it.
// Blocks until the batch has been fully applied; batches from concurrent
// callers are processed one at a time in submission order.
func (m *Matcher) Submit(files []models.ClassifiedFile) []*models.FilePair {
	req := matchRequest{files: files, reply: make(chan []*models.FilePair, 1)}
	select {
	case m.requests <- req:
		return <-req.reply
	case <-m.done:
		return nil
	}
}

// Close stops the actor loop. Safe to call more than once.
func (m *Matcher) Close() {
	m.closeOnce.Do(func() { close(m.done) })
}

func (m *Matcher) run() {
	for {
		select {
		case req := <-m.requests:
			req.reply <- m.apply(req.files)
		case <-m.done:
			return
		}
	}
}

// apply processes one batch: stylesheets first (last arrival wins, even
// within the batch), then XML documents, then a drain of the pending pool
// for every basename that received a new stylesheet. Emission order: all
// immediately completed pairs in XML arrival order, then pool-drained pairs
// grouped by the stylesheet that triggered them.
func (m *Matcher) apply(files []models.ClassifiedFile) []*models.FilePair {
	s := m.session
	s.mu.Lock()
	defer s.mu.Unlock()

	var newXslOrder []string
	seenXsl := make(map[string]bool)

	for _, f := range files {
		if !hasExt(f.Name, ".xsl") {
			continue
		}
		base := basename(f.Name)
		s.xslCache[base] = &models.XslEntry{
			Basename: base,
			Name:     f.Name,
			Title:    extract.Title(f.Data),
			Data:     f.Data,
		}
		if !seenXsl[base] {
			seenXsl[base] = true
			newXslOrder = append(newXslOrder, base)
		}
	}

	var newPairs []*models.FilePair

	for _, f := range files {
		if !hasExt(f.Name, ".xml") {
			continue
		}
		base := basename(f.Name)
		org := extract.Organization(f.Data, m.keywords)

		if xsl, ok := s.xslCache[base]; ok {
			newPairs = append(newPairs, s.appendPairLocked(base, f.Name, f.Data, org, f.Source, xsl))
			continue
		}
		s.pending[base] = append(s.pending[base], &models.PendingXML{
			Basename:     base,
			Name:         f.Name,
			Organization: org,
			Data:         f.Data,
			Source:       f.Source,
		})
	}

	// Drain the pool for every basename whose stylesheet arrived in this
	// batch, preserving the original XML queue order within each group.
	for _, base := range newXslOrder {
		queue := s.pending[base]
		if len(queue) == 0 {
			continue
		}
		xsl := s.xslCache[base]
		for _, px := range queue {
			newPairs = append(newPairs, s.appendPairLocked(base, px.Name, px.Data, px.Organization, px.Source, xsl))
		}
		delete(s.pending, base)
	}

	return newPairs
}

// appendPairLocked creates a pair and appends it to the session. The key
// combines basename, a per-session counter and a timestamp; the counter
// disambiguates pairs sharing a basename within the same millisecond.
func (s *Session) appendPairLocked(base, xmlName string, xmlData []byte, org string, src models.SourceInfo, xsl *models.XslEntry) *models.FilePair {
	s.counter++
	pair := &models.FilePair{
		Key:          pairKey(base, s.counter),
		Basename:     base,
		Title:        xsl.Title,
		Organization: org,
		XMLName:      xmlName,
		XSLName:      xsl.Name,
		XMLData:      xmlData,
		XSLData:      xsl.Data,
		Source:       src,
		CreatedAt:    time.Now(),
	}
	s.pairs = append(s.pairs, pair)
	return pair
}

func pairKey(base string, counter uint64) string {
	return fmt.Sprintf("%s_%d_%d", base, counter, time.Now().UnixMilli())
}

// hasExt reports whether name carries the given extension. The extension
// comparison is case-insensitive; the basename itself is never folded.
func hasExt(name, ext string) bool {
	return strings.EqualFold(filepath.Ext(name), ext)
}

// basename strips the extension, preserving case. Pairing is byte-exact on
// the remainder: "a.xml" and "A.xsl" do not pair.
func basename(name string) string {
	return strings.TrimSuffix(name, filepath.Ext(name))
}
