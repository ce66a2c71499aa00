// Package zipreader extracts member files from an in-memory ZIP archive by
// walking local file header records directly. The central directory is never
// read; this is valid only when headers are immediately followed by their
// data, the common case for freshly created archives. Only raw-deflate
// members are supported.
package zipreader

import (
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/klauspost/compress/flate"
)

const (
	localHeaderSig    = 0x04034b50
	dataDescriptorSig = 0x08074b50

	localHeaderLen    = 30
	dataDescriptorLen = 16

	// General-purpose flag bit 3: sizes unknown at header time, a data
	// descriptor trails the compressed payload.
	flagDataDescriptor = 0x0008
)

// ErrTruncatedHeader is returned when a local file header (or its name and
// extra fields) would extend past the end of the buffer.
var ErrTruncatedHeader = errors.New("zipreader: truncated local file header")

// MemberFile is one decompressed, non-directory archive member. Name is the
// final path segment of the stored filename; leading directories are
// stripped.
type MemberFile struct {
	Name string
	Data []byte
}

// MemberError records a member that could not be decompressed. Extraction
// of sibling members continues (best-effort batch policy).
type MemberError struct {
	Name string
	Err  error
}

func (e *MemberError) Error() string {
	return fmt.Sprintf("member %q: %v", e.Name, e.Err)
}

func (e *MemberError) Unwrap() error { return e.Err }

// Extract walks buf from offset 0 and returns the decompressed non-directory
// members in archive order, plus per-member decompression failures.
//
// A buffer that does not begin with a local-file-header signature yields an
// empty member list and a nil error; callers treating the input as a
// recognized .zip should take zero members as a potential error signal, not
// as "empty archive". A header that runs past the buffer end yields
// ErrTruncatedHeader along with whatever members were extracted before it.
func Extract(buf []byte) ([]MemberFile, []*MemberError, error) {
	var (
		files      []MemberFile
		memberErrs []*MemberError
	)

	offset := 0
	for {
		if offset+4 > len(buf) || binary.LittleEndian.Uint32(buf[offset:]) != localHeaderSig {
			break
		}
		if offset+localHeaderLen > len(buf) {
			return files, memberErrs, ErrTruncatedHeader
		}

		flags := binary.LittleEndian.Uint16(buf[offset+6:])
		compSize := int(binary.LittleEndian.Uint32(buf[offset+18:]))
		nameLen := int(binary.LittleEndian.Uint16(buf[offset+26:]))
		extraLen := int(binary.LittleEndian.Uint16(buf[offset+28:]))

		nameStart := offset + localHeaderLen
		dataStart := nameStart + nameLen + extraLen
		if dataStart > len(buf) {
			return files, memberErrs, ErrTruncatedHeader
		}
		rawName := string(buf[nameStart : nameStart+nameLen])

		if flags&flagDataDescriptor != 0 {
			// Streaming mode: the header size fields are zero. Scan forward
			// for the descriptor and re-read the true compressed size from it.
			sigPos := scanDescriptor(buf, dataStart)
			if sigPos < 0 {
				// Descriptor never appears; the buffer is exhausted and the
				// outer loop terminates without emitting this member.
				break
			}
			if sigPos+12 > len(buf) {
				return files, memberErrs, ErrTruncatedHeader
			}
			compSize = int(binary.LittleEndian.Uint32(buf[sigPos+8:]))
			if dataStart+compSize > sigPos {
				compSize = sigPos - dataStart
			}
			emitMember(rawName, buf[dataStart:dataStart+compSize], &files, &memberErrs)
			offset = sigPos + dataDescriptorLen
			continue
		}

		// Size known in the header; it is authoritative.
		end := dataStart + compSize
		if end > len(buf) {
			end = len(buf)
		}
		emitMember(rawName, buf[dataStart:end], &files, &memberErrs)
		offset = dataStart + compSize
	}

	return files, memberErrs, nil
}

// scanDescriptor searches byte-by-byte from start for the data-descriptor
// signature and returns its position, or -1 if it never appears.
func scanDescriptor(buf []byte, start int) int {
	for i := start; i+4 <= len(buf); i++ {
		if binary.LittleEndian.Uint32(buf[i:]) == dataDescriptorSig {
			return i
		}
	}
	return -1
}

// emitMember inflates one member payload. Directory placeholders (name ends
// in "/") are parsed for stream positioning but produce no output file.
func emitMember(rawName string, payload []byte, files *[]MemberFile, memberErrs *[]*MemberError) {
	if strings.HasSuffix(rawName, "/") {
		return
	}

	data, err := inflate(payload)
	if err != nil {
		*memberErrs = append(*memberErrs, &MemberError{Name: rawName, Err: err})
		return
	}
	*files = append(*files, MemberFile{Name: stripDirs(rawName), Data: data})
}

// inflate decodes a raw-deflate payload. Members stored with any other
// compression method fail here; that failure is per-member.
func inflate(payload []byte) ([]byte, error) {
	r := flate.NewReader(bytes.NewReader(payload))
	defer r.Close()

	data, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("inflate: %w", err)
	}
	return data, nil
}

// stripDirs returns the final path segment of an archive member name.
func stripDirs(name string) string {
	if i := strings.LastIndexByte(name, '/'); i >= 0 {
		return name[i+1:]
	}
	return name
}
