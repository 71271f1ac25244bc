// Package engine implements the vault storage and concurrency engine.
package engine

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"
)

const documentExt = ".yml"

// Persistence handles the disk I/O for owner record documents.
// Callers serialize writes per owner; Persistence itself holds no locks.
type Persistence struct {
	DataDir   string
	BackupDir string
	Backups   bool
}

// NewPersistence initializes a persistence handler. The backup directory is
// only created when backups are enabled.
func NewPersistence(dataDir, backupDir string, backups bool) (*Persistence, error) {
	if err := os.MkdirAll(dataDir, 0755); err != nil {
		return nil, err
	}
	if backups {
		if backupDir == "" {
			return nil, errors.New("backups enabled without a backup directory")
		}
		if err := os.MkdirAll(backupDir, 0755); err != nil {
			return nil, err
		}
	}
	return &Persistence{DataDir: dataDir, BackupDir: backupDir, Backups: backups}, nil
}

// Path returns the document path for an owner key.
func (p *Persistence) Path(owner string) string {
	return filepath.Join(p.DataDir, owner+documentExt)
}

// BackupPath returns where the previous generation of an owner's document lives.
func (p *Persistence) BackupPath(owner string) string {
	return filepath.Join(p.BackupDir, owner+documentExt)
}

// Exists reports whether a document is filed under the literal owner key.
// The answer is advisory; a concurrent create may race with it.
func (p *Persistence) Exists(owner string) bool {
	if !ValidOwnerToken(owner) {
		return false
	}
	info, err := os.Stat(p.Path(owner))
	return err == nil && !info.IsDir()
}

// Load reads an owner's document. found is false when no document exists.
func (p *Persistence) Load(owner string) (data []byte, found bool, err error) {
	data, err = os.ReadFile(p.Path(owner))
	if errors.Is(err, fs.ErrNotExist) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}
	return data, true, nil
}

// Create makes an empty document unless one already exists.
func (p *Persistence) Create(owner string) error {
	f, err := os.OpenFile(p.Path(owner), os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0644)
	if errors.Is(err, fs.ErrExist) {
		return nil
	}
	if err != nil {
		return err
	}
	return f.Close()
}

// Save writes an owner's document atomically. With backups enabled the
// current document is first moved into the backup directory, replacing the
// previous backup.
func (p *Persistence) Save(owner string, data []byte) error {
	filePath := p.Path(owner)
	tempPath := filePath + ".tmp"

	if p.Backups {
		if err := os.Rename(filePath, p.BackupPath(owner)); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return fmt.Errorf("backup %s: %w", owner, err)
		}
	}

	// Write to a temporary file first, then swap it in.
	if err := os.WriteFile(tempPath, data, 0644); err != nil {
		return err
	}
	return os.Rename(tempPath, filePath)
}

// Delete removes an owner's document. A missing document is not an error.
func (p *Persistence) Delete(owner string) error {
	err := os.Remove(p.Path(owner))
	if err != nil && !errors.Is(err, fs.ErrNotExist) {
		return err
	}
	return nil
}

// Owners lists every owner key with a document, sorted.
func (p *Persistence) Owners() ([]string, error) {
	files, err := os.ReadDir(p.DataDir)
	if err != nil {
		return nil, err
	}

	var owners []string
	for _, file := range files {
		if file.IsDir() || filepath.Ext(file.Name()) != documentExt {
			continue
		}
		owners = append(owners, strings.TrimSuffix(file.Name(), documentExt))
	}
	sort.Strings(owners)
	return owners, nil
}
