package ingest

import (
	"bytes"
	"encoding/binary"
	"testing"
	"time"

	"github.com/formpair/backend/internal/models"
	"github.com/formpair/backend/internal/pairing"
	"github.com/klauspost/compress/flate"
)

func newTestPipeline(t *testing.T) (*pairing.Session, *Pipeline) {
	t.Helper()
	return newTestPipelineWithTypes(t, nil)
}

func newTestPipelineWithTypes(t *testing.T, allowedTypes []string) (*pairing.Session, *Pipeline) {
	t.Helper()
	session := pairing.NewSession()
	matcher := pairing.NewMatcher(session, nil)
	t.Cleanup(matcher.Close)
	return session, NewPipeline(session, matcher, allowedTypes)
}

func rawSource(name, relPath string, lastModified int64, data string) models.RawSource {
	return models.RawSource{
		Name:         name,
		RelativePath: relPath,
		LastModified: lastModified,
		Data:         []byte(data),
	}
}

// buildZip assembles a minimal local-header archive from name/content pairs.
func buildZip(t *testing.T, entries map[string]string, order []string) []byte {
	t.Helper()

	var archive bytes.Buffer
	for _, name := range order {
		content := []byte(entries[name])

		var comp bytes.Buffer
		w, err := flate.NewWriter(&comp, flate.DefaultCompression)
		if err != nil {
			t.Fatalf("Failed to create flate writer: %v", err)
		}
		if _, err := w.Write(content); err != nil {
			t.Fatalf("Failed to compress: %v", err)
		}
		if err := w.Close(); err != nil {
			t.Fatalf("Failed to close writer: %v", err)
		}

		var hdr [30]byte
		binary.LittleEndian.PutUint32(hdr[0:], 0x04034b50)
		binary.LittleEndian.PutUint16(hdr[4:], 20)
		binary.LittleEndian.PutUint16(hdr[8:], 8)
		binary.LittleEndian.PutUint32(hdr[18:], uint32(comp.Len()))
		binary.LittleEndian.PutUint32(hdr[22:], uint32(len(content)))
		binary.LittleEndian.PutUint16(hdr[26:], uint16(len(name)))
		archive.Write(hdr[:])
		archive.WriteString(name)
		archive.Write(comp.Bytes())
	}
	return archive.Bytes()
}

func TestKeyTracker(t *testing.T) {
	tracker := NewKeyTracker()

	if !tracker.Accept("dir/a.xml", 120, 1700000000000) {
		t.Error("Expected first occurrence accepted")
	}
	if tracker.Accept("dir/a.xml", 120, 1700000000000) {
		t.Error("Expected duplicate key dropped")
	}
	if !tracker.Accept("dir/a.xml", 121, 1700000000000) {
		t.Error("Expected different size to be a new key")
	}
	if !tracker.Accept("dir/a.xml", 120, 1700000000001) {
		t.Error("Expected different timestamp to be a new key")
	}
	if tracker.Len() != 3 {
		t.Errorf("Expected 3 recorded keys, got %d", tracker.Len())
	}
}

func TestPipeline_DuplicateDropIsNoOp(t *testing.T) {
	session, p := newTestPipeline(t)

	batch := []models.RawSource{
		rawSource("A.xml", "", 1000, `<r><事業者名>甲</事業者名></r>`),
		rawSource("A.xsl", "", 1000, `<s><title>t</title></s>`),
	}

	first := p.Ingest(batch)
	if len(first.NewPairs) != 1 {
		t.Fatalf("Expected 1 pair from first drop, got %d", len(first.NewPairs))
	}

	// Same files again, in one batch and across batches.
	second := p.Ingest(batch)
	if second.Duplicates != 2 {
		t.Errorf("Expected 2 duplicates, got %d", second.Duplicates)
	}
	if len(second.NewPairs) != 0 {
		t.Errorf("Expected no new pairs from re-drop, got %d", len(second.NewPairs))
	}
	if len(session.Pairs()) != 1 {
		t.Errorf("Expected exactly one ingested copy, got %d pairs", len(session.Pairs()))
	}
}

func TestPipeline_FolderClassification(t *testing.T) {
	session, p := newTestPipeline(t)

	result := p.Ingest([]models.RawSource{
		rawSource("B.xml", "forms/2024/B.xml", 1000, `<r/>`),
		rawSource("B.xsl", "forms/2024/B.xsl", 1000, `<s><title>帳票B</title></s>`),
	})

	if len(result.NewPairs) != 1 {
		t.Fatalf("Expected 1 pair, got %d", len(result.NewPairs))
	}
	src := result.NewPairs[0].Source
	if src.SourceType != models.SourceTypeFolder {
		t.Errorf("Expected folder source type, got %q", src.SourceType)
	}
	if src.FolderName != "forms" {
		t.Errorf("Expected top folder 'forms', got %q", src.FolderName)
	}
	if len(session.Pairs()) != 1 {
		t.Errorf("Expected 1 stored pair, got %d", len(session.Pairs()))
	}
}

func TestPipeline_ZipExpansion(t *testing.T) {
	_, p := newTestPipeline(t)

	archive := buildZip(t, map[string]string{
		"nested/C.xml": `<r><会社名>乙社</会社名></r>`,
		"nested/C.xsl": `<s><title>帳票C</title></s>`,
		"readme.txt":   "not a document",
	}, []string{"nested/C.xml", "nested/C.xsl", "readme.txt"})

	result := p.Ingest([]models.RawSource{
		{Name: "batch.zip", LastModified: 1000, Data: archive},
	})

	if result.ArchivesExpanded != 1 {
		t.Fatalf("Expected 1 archive expanded, got %d", result.ArchivesExpanded)
	}
	if len(result.MemberErrors) != 0 {
		t.Fatalf("Expected no member errors, got %v", result.MemberErrors)
	}
	if len(result.NewPairs) != 1 {
		t.Fatalf("Expected 1 pair from archive, got %d", len(result.NewPairs))
	}
	pair := result.NewPairs[0]
	if pair.Source.SourceType != models.SourceTypeZip {
		t.Errorf("Expected zip source type, got %q", pair.Source.SourceType)
	}
	if pair.Source.SourceName != "batch.zip" {
		t.Errorf("Expected source name 'batch.zip', got %q", pair.Source.SourceName)
	}
	if pair.Organization != "乙社" {
		t.Errorf("Expected organization from member XML, got %q", pair.Organization)
	}
}

func TestPipeline_ArchiveByContentType(t *testing.T) {
	_, p := newTestPipeline(t)

	archive := buildZip(t, map[string]string{"D.xml": `<r/>`}, []string{"D.xml"})

	result := p.Ingest([]models.RawSource{
		{Name: "upload.bin", ContentType: "application/zip", LastModified: 1, Data: archive},
	})

	if result.ArchivesExpanded != 1 {
		t.Errorf("Expected MIME-typed archive to expand, got %d", result.ArchivesExpanded)
	}
}

func TestPipeline_MalformedArchive(t *testing.T) {
	session, p := newTestPipeline(t)

	result := p.Ingest([]models.RawSource{
		{Name: "broken.zip", LastModified: 1, Data: []byte("definitely not a zip")},
	})

	if result.ArchivesExpanded != 1 {
		t.Errorf("Expected archive counted despite zero members, got %d", result.ArchivesExpanded)
	}
	if len(result.NewPairs) != 0 {
		t.Errorf("Expected no pairs, got %d", len(result.NewPairs))
	}
	if len(session.Pairs()) != 0 {
		t.Errorf("Expected no stored pairs, got %d", len(session.Pairs()))
	}
}

func TestPipeline_ImplicitSelection(t *testing.T) {
	session, p := newTestPipeline(t)

	first := p.Ingest([]models.RawSource{
		rawSource("A.xml", "", 1, `<r/>`),
		rawSource("A.xsl", "", 1, `<s/>`),
		rawSource("B.xml", "", 1, `<r/>`),
		rawSource("B.xsl", "", 1, `<s/>`),
	})
	if !first.SelectionChanged {
		t.Error("Expected first batch to set the implicit selection")
	}
	if first.SelectedKey != first.NewPairs[0].Key {
		t.Errorf("Expected first new pair selected, got %q", first.SelectedKey)
	}

	second := p.Ingest([]models.RawSource{
		rawSource("C.xml", "", 2, `<r/>`),
		rawSource("C.xsl", "", 2, `<s/>`),
	})
	if second.SelectionChanged {
		t.Error("Expected existing selection to be preserved")
	}
	if session.Selected() != first.NewPairs[0].Key {
		t.Errorf("Selection drifted to %q", session.Selected())
	}
}

func TestPipeline_NonDocumentFilesIgnored(t *testing.T) {
	session, p := newTestPipeline(t)

	result := p.Ingest([]models.RawSource{
		rawSource("notes.txt", "", 1, "plain text"),
		rawSource("image.png", "", 1, "\x89PNG"),
	})

	if result.Accepted != 2 {
		t.Errorf("Expected both sources accepted by the tracker, got %d", result.Accepted)
	}
	if len(result.NewPairs) != 0 || session.PendingCount() != 0 {
		t.Error("Expected non-document files to be filtered before pairing")
	}
}

func TestPipeline_AllowedFileTypes(t *testing.T) {
	t.Run("document extension excluded", func(t *testing.T) {
		session, p := newTestPipelineWithTypes(t, []string{".xml"})

		result := p.Ingest([]models.RawSource{
			rawSource("A.xml", "", 1, `<r/>`),
			rawSource("A.xsl", "", 1, `<s/>`),
		})

		if len(result.NewPairs) != 0 {
			t.Errorf("Expected no pairs with .xsl excluded, got %d", len(result.NewPairs))
		}
		if session.PendingCount() != 1 {
			t.Errorf("Expected only A.xml admitted (pending), got %d", session.PendingCount())
		}
	})

	t.Run("archives excluded", func(t *testing.T) {
		_, p := newTestPipelineWithTypes(t, []string{".xml", ".xsl"})

		archive := buildZip(t, map[string]string{"E.xml": `<r/>`}, []string{"E.xml"})
		result := p.Ingest([]models.RawSource{
			{Name: "batch.zip", LastModified: 1, Data: archive},
		})

		if result.ArchivesExpanded != 0 {
			t.Errorf("Expected archive ignored with .zip excluded, got %d expanded", result.ArchivesExpanded)
		}
	})

	t.Run("entries normalized", func(t *testing.T) {
		_, p := newTestPipelineWithTypes(t, []string{" XML ", "xsl"})

		result := p.Ingest([]models.RawSource{
			rawSource("A.xml", "", 1, `<r/>`),
			rawSource("A.xsl", "", 1, `<s/>`),
		})
		if len(result.NewPairs) != 1 {
			t.Errorf("Expected dotless/spaced entries to normalize, got %d pairs", len(result.NewPairs))
		}
	})
}

func TestPipeline_StagedProgress(t *testing.T) {
	_, p := newTestPipeline(t)

	archive := buildZip(t, map[string]string{"A.xml": `<r/>`}, []string{"A.xml"})

	var stages []Status
	p.IngestWithProgress([]models.RawSource{
		{Name: "batch.zip", LastModified: 1, Data: archive},
		rawSource("A.xsl", "", 1, `<s/>`),
	}, func(status Status, progress float64) {
		stages = append(stages, status)
	})

	want := []Status{StatusClassifying, StatusExtracting, StatusPairing}
	if len(stages) != len(want) {
		t.Fatalf("Expected stages %v, got %v", want, stages)
	}
	for i := range want {
		if stages[i] != want[i] {
			t.Fatalf("Expected stage %d to be %q, got %q", i, want[i], stages[i])
		}
	}
}

func TestManager_JobLifecycle(t *testing.T) {
	_, p := newTestPipeline(t)
	mgr := NewManager(nil)

	job := mgr.StartJob("session-1", p, []models.RawSource{
		rawSource("A.xml", "", 1, `<r/>`),
		rawSource("A.xsl", "", 1, `<s><title>t</title></s>`),
	})

	deadline := time.After(2 * time.Second)
	for {
		got, ok := mgr.GetJob(job.ID)
		if !ok {
			t.Fatal("Job disappeared")
		}
		if got.Status == StatusComplete {
			if len(got.NewPairKeys) != 1 {
				t.Errorf("Expected 1 new pair key, got %v", got.NewPairKeys)
			}
			if got.SelectedKey != got.NewPairKeys[0] {
				t.Errorf("Expected implicit selection reported, got %q", got.SelectedKey)
			}
			break
		}
		if got.Status == StatusError {
			t.Fatalf("Job failed: %s", got.Error)
		}
		select {
		case <-deadline:
			t.Fatal("Timed out waiting for job completion")
		case <-time.After(10 * time.Millisecond):
		}
	}

	// Finished jobs older than the cutoff are garbage collected.
	mgr.CleanupOldJobs(0)
	if _, ok := mgr.GetJob(job.ID); ok {
		t.Error("Expected completed job to be cleaned up")
	}
}

func TestManager_GetJobReturnsSnapshot(t *testing.T) {
	_, p := newTestPipeline(t)
	mgr := NewManager(nil)

	job := mgr.StartJob("session-1", p, []models.RawSource{
		rawSource("A.xml", "", 1, `<r/>`),
		rawSource("A.xsl", "", 1, `<s/>`),
	})

	deadline := time.After(2 * time.Second)
	var snap *Job
	for {
		got, ok := mgr.GetJob(job.ID)
		if !ok {
			t.Fatal("Job disappeared")
		}
		if got.Status == StatusComplete {
			snap = got
			break
		}
		select {
		case <-deadline:
			t.Fatal("Timed out waiting for job completion")
		case <-time.After(10 * time.Millisecond):
		}
	}

	// The returned job is detached from the manager's copy: mutating it (as
	// a poll loop or JSON encoder might while the worker still runs) never
	// touches the stored state.
	snap.Status = StatusError
	snap.NewPairKeys = append(snap.NewPairKeys, "clobbered")

	again, ok := mgr.GetJob(job.ID)
	if !ok {
		t.Fatal("Job disappeared")
	}
	if again.Status != StatusComplete {
		t.Errorf("Expected stored job untouched, got status %q", again.Status)
	}
	if len(again.NewPairKeys) != 1 {
		t.Errorf("Expected 1 stored pair key, got %v", again.NewPairKeys)
	}
}
