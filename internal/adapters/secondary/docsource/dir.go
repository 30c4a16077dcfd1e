// Package docsource provides the document sources of the agent role: where
// a deployment's own trust document and its subjects' documents live before
// they are signed for serving.
package docsource

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/sufield/fan/internal/core/domain"
	coreerrors "github.com/sufield/fan/internal/core/errors"
	"github.com/sufield/fan/internal/core/ports"
)

// AgentFileName is the file holding the deployment's own trust document.
const AgentFileName = "fan.did"

// SubjectDirName is the directory holding subject documents, one
// <name>.did file per subject.
const SubjectDirName = "user"

// DirConfig holds the settings of a Dir source.
type DirConfig struct {
	// Root is the directory holding fan.did and user/<name>.did.
	Root string
	// ContentType is the encoding of the stored files. Defaults to
	// MIMEJSONDID. One directory holds one encoding.
	ContentType string
}

// Dir implements ports.DocumentSource over a directory whose layout
// mirrors the serving endpoints. File modification times become the
// documents' Last-Modified timestamps.
type Dir struct {
	root        string
	contentType string
}

// NewDir creates a Dir source.
func NewDir(cfg DirConfig) (*Dir, error) {
	if cfg.Root == "" {
		return nil, &coreerrors.ValidationError{Field: "root", Value: cfg.Root, Message: "document root cannot be empty"}
	}
	info, err := os.Stat(cfg.Root)
	if err != nil {
		return nil, fmt.Errorf("document root %s is not usable: %w", cfg.Root, err)
	}
	if !info.IsDir() {
		return nil, &coreerrors.ValidationError{Field: "root", Value: cfg.Root, Message: "document root must be a directory"}
	}
	if cfg.ContentType == "" {
		cfg.ContentType = domain.MIMEJSONDID
	}
	if _, err := domain.CodecFor(cfg.ContentType); err != nil {
		return nil, &coreerrors.ValidationError{Field: "content_type", Value: cfg.ContentType, Message: "no codec can decode this encoding"}
	}
	return &Dir{root: cfg.Root, contentType: cfg.ContentType}, nil
}

var _ ports.DocumentSource = (*Dir)(nil)

// Agent returns this deployment's own trust document.
func (d *Dir) Agent(ctx context.Context) (*ports.SourceDocument, error) {
	return d.load(filepath.Join(d.root, AgentFileName))
}

// Subject returns the document of the named local subject, or ErrNotFound.
// Names that cannot be a plain file name are treated as absent rather than
// allowed anywhere near the filesystem.
func (d *Dir) Subject(ctx context.Context, name string) (*ports.SourceDocument, error) {
	if !validSubjectName(name) {
		return nil, ports.ErrNotFound
	}
	return d.load(filepath.Join(d.root, SubjectDirName, name+".did"))
}

func (d *Dir) load(path string) (*ports.SourceDocument, error) {
	info, err := os.Stat(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, ports.ErrNotFound
		}
		return nil, fmt.Errorf("failed to stat document %s: %w", path, err)
	}
	body, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read document %s: %w", path, err)
	}
	return &ports.SourceDocument{
		Body:         body,
		ContentType:  d.contentType,
		LastModified: info.ModTime(),
	}, nil
}

func validSubjectName(name string) bool {
	if name == "" || name == "." || name == ".." {
		return false
	}
	if strings.ContainsAny(name, "/\\\x00") {
		return false
	}
	return true
}
