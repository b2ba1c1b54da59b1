// Package blob stores uploaded project images and documents on local disk.
package blob

import (
	"bytes"
	"crypto/rand"
	stderrors "errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/gabriel-vasile/mimetype"
	"github.com/oklog/ulid/v2"

	"github.com/Zachkp/stats-consult/internal/errors"
)

// Kind restricts what an upload slot accepts.
type Kind int

const (
	Image Kind = iota + 1
	Document
)

func (k Kind) String() string {
	switch k {
	case Image:
		return "image"
	case Document:
		return "document"
	}
	return "file"
}

var accepted = map[Kind][]string{
	Image: {"image/png", "image/jpeg", "image/gif", "image/webp"},
	Document: {
		"application/pdf",
		"application/msword",
		"application/vnd.openxmlformats-officedocument.wordprocessingml.document",
	},
}

// Object describes a stored upload.
type Object struct {
	Key  string `json:"key"`
	URL  string `json:"url"`
	MIME string `json:"mime"`
	Size int64  `json:"size"`
}

// Store is the upload contract used by the admin handlers.
type Store interface {
	Put(r io.Reader, kind Kind) (*Object, error)
	Delete(key string) error
	URL(key string) string
	KeyFromURL(url string) (string, bool)
}

// Local keeps uploads in a directory served under URLPrefix.
type Local struct {
	dir      string
	prefix   string
	maxBytes int64
}

// NewLocal creates dir if needed.
func NewLocal(dir, urlPrefix string, maxBytes int64) (*Local, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create upload directory: %w", err)
	}
	return &Local{
		dir:      dir,
		prefix:   "/" + strings.Trim(urlPrefix, "/"),
		maxBytes: maxBytes,
	}, nil
}

func (l *Local) Dir() string { return l.dir }

// Put sniffs r, rejects content that kind does not accept or that exceeds the
// size cap, and writes it as <ulid><ext>.
func (l *Local) Put(r io.Reader, kind Kind) (*Object, error) {
	data, err := io.ReadAll(io.LimitReader(r, l.maxBytes+1))
	if err != nil {
		return nil, fmt.Errorf("failed to read upload: %w", err)
	}
	if int64(len(data)) > l.maxBytes {
		return nil, errors.NewTooLarge(l.maxBytes, int64(len(data)))
	}
	if len(data) == 0 {
		return nil, errors.NewInvalidRequest("empty upload")
	}

	mtype := mimetype.Detect(data)
	if !acceptable(mtype, kind) {
		return nil, errors.NewUnsupported(mtype.String())
	}

	id, err := ulid.New(ulid.Timestamp(time.Now()), rand.Reader)
	if err != nil {
		return nil, fmt.Errorf("failed to generate upload key: %w", err)
	}
	key := strings.ToLower(id.String()) + mtype.Extension()

	tmp, err := os.CreateTemp(l.dir, ".upload-*")
	if err != nil {
		return nil, fmt.Errorf("failed to create upload: %w", err)
	}
	defer os.Remove(tmp.Name())
	if _, err := io.Copy(tmp, bytes.NewReader(data)); err != nil {
		tmp.Close()
		return nil, fmt.Errorf("failed to write upload: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return nil, fmt.Errorf("failed to write upload: %w", err)
	}
	if err := os.Chmod(tmp.Name(), 0o644); err != nil {
		return nil, fmt.Errorf("failed to write upload: %w", err)
	}
	if err := os.Rename(tmp.Name(), filepath.Join(l.dir, key)); err != nil {
		return nil, fmt.Errorf("failed to store upload: %w", err)
	}

	return &Object{
		Key:  key,
		URL:  l.URL(key),
		MIME: mtype.String(),
		Size: int64(len(data)),
	}, nil
}

func acceptable(mtype *mimetype.MIME, kind Kind) bool {
	for _, m := range accepted[kind] {
		if mtype.Is(m) {
			return true
		}
	}
	return false
}

// Delete removes the upload with key.
func (l *Local) Delete(key string) error {
	if !validKey(key) {
		return errors.NewInvalidRequest("invalid upload key")
	}
	err := os.Remove(filepath.Join(l.dir, key))
	if stderrors.Is(err, fs.ErrNotExist) {
		return errors.NewNotFound("upload", key)
	}
	if err != nil {
		return fmt.Errorf("failed to delete upload: %w", err)
	}
	return nil
}

func (l *Local) URL(key string) string {
	return l.prefix + "/" + key
}

// KeyFromURL reports the key of a URL this store handed out. URLs pointing
// elsewhere return false.
func (l *Local) KeyFromURL(url string) (string, bool) {
	key, ok := strings.CutPrefix(url, l.prefix+"/")
	if !ok || !validKey(key) {
		return "", false
	}
	return key, true
}

func validKey(key string) bool {
	return key != "" && !strings.HasPrefix(key, ".") && !strings.ContainsAny(key, `/\`) && key == filepath.Base(key)
}
