package filesync

import (
	"encoding/hex"
	"errors"
	"io"
	"mime"
	"os"
	"path/filepath"

	"github.com/adwski/watchparty/client/model"
	"github.com/gabriel-vasile/mimetype"
	"github.com/zeebo/blake3"
)

const defaultMediaType = "application/octet-stream"

var (
	ErrNoName  = errors.New("file has no name")
	ErrNotFile = errors.New("not a regular file")
)

type (
	// FileHandle is whatever the user picked. Only the name is mandatory;
	// the optional interfaces below refine the descriptor.
	FileHandle interface {
		Name() string
	}

	// Typer exposes a declared media type, e.g. from a file picker.
	Typer interface {
		MediaType() string
	}

	Sizer interface {
		Size() int64
	}

	Opener interface {
		Open() (io.ReadCloser, error)
	}
)

// LocalFile is a handle for a file on disk.
type LocalFile struct {
	path string
	size int64
}

func OpenLocalFile(path string) (*LocalFile, error) {
	fi, err := os.Stat(path)
	if err != nil {
		return nil, errors.Join(model.ErrDescriptorCompute, err)
	}
	if !fi.Mode().IsRegular() {
		return nil, errors.Join(model.ErrDescriptorCompute, ErrNotFile)
	}
	return &LocalFile{path: path, size: fi.Size()}, nil
}

func (f *LocalFile) Name() string { return filepath.Base(f.path) }
func (f *LocalFile) Size() int64 { return f.size }

func (f *LocalFile) Open() (io.ReadCloser, error) {
	return os.Open(f.path)
}

// Describe computes the descriptor of h. The content hash is BLAKE3-256
// over the whole content and is only present when h can be opened.
func Describe(h FileHandle) (model.FileDescriptor, error) {
	d := model.FileDescriptor{Name: h.Name()}
	if d.Name == "" {
		return d, errors.Join(model.ErrDescriptorCompute, ErrNoName)
	}
	if t, ok := h.(Typer); ok {
		d.MediaType = t.MediaType()
	}
	if s, ok := h.(Sizer); ok {
		size := s.Size()
		d.SizeBytes = &size
	}

	if o, ok := h.(Opener); ok {
		mediaType, hash, err := sniffAndHash(o)
		if err != nil {
			return d, errors.Join(model.ErrDescriptorCompute, err)
		}
		d.ContentHash = hash
		if d.MediaType == "" {
			d.MediaType = mediaType
		}
	}

	if d.MediaType == "" || d.MediaType == defaultMediaType {
		if byExt := mime.TypeByExtension(filepath.Ext(d.Name)); byExt != "" {
			d.MediaType = byExt
		}
	}
	if d.MediaType == "" {
		d.MediaType = defaultMediaType
	}
	return d, nil
}

func sniffAndHash(o Opener) (string, string, error) {
	rc, err := o.Open()
	if err != nil {
		return "", "", err
	}
	defer func() {
		_ = rc.Close()
	}()

	hasher := blake3.New()
	// bytes consumed by the sniffer still reach the hasher
	mt, err := mimetype.DetectReader(io.TeeReader(rc, hasher))
	if err != nil {
		return "", "", err
	}
	if _, err = io.Copy(hasher, rc); err != nil {
		return "", "", err
	}
	mediaType, _, err := mime.ParseMediaType(mt.String())
	if err != nil {
		mediaType = mt.String()
	}
	return mediaType, hex.EncodeToString(hasher.Sum(nil)), nil
}
