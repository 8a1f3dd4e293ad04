package archive

import (
	"archive/zip"
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"iter"
	"path"
	"strings"
)

// ErrArchiveFormat means the container itself could not be read. The whole
// archive fails as one unit.
var ErrArchiveFormat = errors.New("archive format error")

// ErrMemberTooLarge is yielded for a member whose decompressed size exceeds
// the archive's per-member limit. Other members are still read.
var ErrMemberTooLarge = errors.New("archive member too large")

// DefaultMaxMemberBytes caps a single decompressed member.
const DefaultMaxMemberBytes int64 = 64 << 20

var (
	localHeaderSig  = []byte("PK\x03\x04")
	emptyArchiveSig = []byte("PK\x05\x06")
)

var memberExtensions = map[string]struct{}{
	"jpg": {}, "jpeg": {}, "png": {}, "webp": {}, "gif": {}, "bmp": {},
}

type Member struct {
	Name string // base name, directories stripped
	Path string // full path inside the archive
	Data []byte
}

// ProgressFunc observes extraction progress. processed never decreases.
type ProgressFunc func(processed, total int)

type Archive struct {
	files     []*zip.File
	progress  ProgressFunc
	maxMember int64
}

// LooksLikeArchive checks the leading signature bytes.
func LooksLikeArchive(data []byte) bool {
	return bytes.HasPrefix(data, localHeaderSig) || bytes.HasPrefix(data, emptyArchiveSig)
}

// Open validates the signature and parses the central directory. Members
// are not decompressed until iterated.
func Open(data []byte) (*Archive, error) {
	const op = "archive.Open"

	if !LooksLikeArchive(data) {
		return nil, fmt.Errorf("%s: %w: missing zip signature", op, ErrArchiveFormat)
	}
	zr, err := zip.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return nil, fmt.Errorf("%s: %w: %v", op, ErrArchiveFormat, err)
	}

	a := &Archive{maxMember: DefaultMaxMemberBytes}
	for _, f := range zr.File {
		if accept(f) {
			a.files = append(a.files, f)
		}
	}
	return a, nil
}

// OnProgress registers fn and returns the archive for chaining.
func (a *Archive) OnProgress(fn ProgressFunc) *Archive {
	a.progress = fn
	return a
}

// LimitMemberSize sets the per-member decompressed size cap. Non-positive
// values keep the default.
func (a *Archive) LimitMemberSize(n int64) *Archive {
	if n > 0 {
		a.maxMember = n
	}
	return a
}

// Total is the number of image members the archive will yield.
func (a *Archive) Total() int { return len(a.files) }

// Members yields image members lazily, in archive order. The sequence is
// single pass; iterate a fresh Open to restart. A member that fails to
// decompress is yielded with its error and iteration continues. Iteration
// stops after yielding ctx.Err() once ctx is done.
func (a *Archive) Members(ctx context.Context) iter.Seq2[Member, error] {
	return func(yield func(Member, error) bool) {
		total := len(a.files)
		for i, f := range a.files {
			if err := ctx.Err(); err != nil {
				yield(Member{Name: path.Base(f.Name), Path: f.Name}, err)
				return
			}
			m, err := read(f, a.maxMember)
			if a.progress != nil {
				a.progress(i+1, total)
			}
			if !yield(m, err) {
				return
			}
		}
	}
}

// read decompresses one member. The declared size is checked first, and
// the stream itself is capped, since headers can lie.
func read(f *zip.File, limit int64) (Member, error) {
	const op = "archive.read"

	m := Member{Name: path.Base(f.Name), Path: f.Name}
	if f.UncompressedSize64 > uint64(limit) {
		return m, fmt.Errorf("%s: %s: %w: declared %d bytes, limit %d", op, f.Name, ErrMemberTooLarge, f.UncompressedSize64, limit)
	}
	rc, err := f.Open()
	if err != nil {
		return m, fmt.Errorf("%s: %s: %v", op, f.Name, err)
	}
	defer rc.Close()

	data, err := io.ReadAll(io.LimitReader(rc, limit+1))
	if err != nil {
		return m, fmt.Errorf("%s: %s: %v", op, f.Name, err)
	}
	if int64(len(data)) > limit {
		return m, fmt.Errorf("%s: %s: %w: limit %d", op, f.Name, ErrMemberTooLarge, limit)
	}
	m.Data = data
	return m, nil
}

func accept(f *zip.File) bool {
	name := f.Name
	if f.FileInfo().IsDir() || strings.HasSuffix(name, "/") {
		return false
	}
	// macOS resource forks carry image extensions but no image data.
	if strings.HasPrefix(name, "__MACOSX/") || strings.HasPrefix(path.Base(name), "._") {
		return false
	}
	ext := strings.ToLower(strings.TrimPrefix(path.Ext(name), "."))
	_, ok := memberExtensions[ext]
	return ok
}
