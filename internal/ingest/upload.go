package ingest

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/coopfin/bankintake/internal/domain"
	"github.com/coopfin/bankintake/internal/store"
)

// ErrDuplicateUpload is returned when a file with identical content has
// already been uploaded.
var ErrDuplicateUpload = errors.New("statement file already uploaded")

// Uploader registers statement files for ingestion.
type Uploader struct {
	store *store.Store
}

// NewUploader creates an uploader backed by the given store.
func NewUploader(st *store.Store) *Uploader {
	return &Uploader{store: st}
}

// Upload hashes the file content and registers a new statement in uploaded
// status. A file whose content hash matches a previous upload is rejected
// with ErrDuplicateUpload regardless of its filename.
func (u *Uploader) Upload(ctx context.Context, path string) (*domain.BankStatement, error) {
	hash, err := HashFile(path)
	if err != nil {
		return nil, err
	}

	existing, err := u.store.StatementByFileHash(ctx, hash)
	if err != nil && !errors.Is(err, store.ErrNotFound) {
		return nil, fmt.Errorf("failed to check for duplicate upload: %w", err)
	}
	if existing != nil {
		return nil, fmt.Errorf("%w: %s matches statement %d (%s)",
			ErrDuplicateUpload, filepath.Base(path), existing.ID, existing.Filename)
	}

	stmt := &domain.BankStatement{
		Filename: filepath.Base(path),
		FilePath: path,
		FileHash: hash,
		Status:   domain.StatementUploaded,
	}
	if err := u.store.CreateStatement(ctx, stmt); err != nil {
		return nil, err
	}
	return stmt, nil
}

// HashFile returns the hex SHA-256 of the file's content.
func HashFile(path string) (string, error) {
	f, err := os.Open(path)
	if err != nil {
		return "", fmt.Errorf("failed to open file: %w", err)
	}
	defer f.Close()

	h := sha256.New()
	if _, err := io.Copy(h, f); err != nil {
		return "", fmt.Errorf("failed to hash file %s: %w", path, err)
	}
	return hex.EncodeToString(h.Sum(nil)), nil
}
