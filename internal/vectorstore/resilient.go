package vectorstore

import (
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strings"

	chromem "github.com/philippgille/chromem-go"
	"go.uber.org/zap"
)

// chromem stores each collection under the first 8 hex chars of its name hash.
var collectionDirPattern = regexp.MustCompile(`^[a-f0-9]{8}$`)

// chromem writes collection metadata to this file name.
const collectionMetadataFile = "00000000.gob"

const quarantineDir = ".quarantine"

// openResilientDB opens a persistent chromem DB. A namespace directory that
// holds documents but lost its metadata file makes chromem refuse to load
// the whole DB; such directories are moved to .quarantine and the load is
// retried once.
func openResilientDB(path string, compress bool, logger *zap.Logger) (*chromem.DB, []string, error) {
	db, err := chromem.NewPersistentDB(path, compress)
	if err == nil {
		return db, nil, nil
	}
	if !strings.Contains(err.Error(), "collection metadata file not found") {
		return nil, nil, err
	}

	corrupt, findErr := findCorruptNamespaces(path, logger)
	if findErr != nil {
		logger.Error("scanning for corrupt namespaces failed", zap.Error(findErr))
		return nil, nil, err
	}
	if len(corrupt) == 0 {
		return nil, nil, err
	}

	quarantined, qErr := quarantine(path, corrupt, logger)
	if qErr != nil {
		return nil, nil, qErr
	}

	db, err = chromem.NewPersistentDB(path, compress)
	if err != nil {
		return nil, quarantined, fmt.Errorf("loading after quarantine: %w", err)
	}
	logger.Warn("chromem loaded after quarantine", zap.Strings("quarantined", quarantined))
	return db, quarantined, nil
}

func quarantine(path string, dirs []string, logger *zap.Logger) ([]string, error) {
	dst := filepath.Join(path, quarantineDir)
	if err := os.MkdirAll(dst, 0o755); err != nil {
		return nil, fmt.Errorf("creating quarantine directory: %w", err)
	}

	moved := make([]string, 0, len(dirs))
	for _, dir := range dirs {
		// Guards the rename against path traversal.
		if !collectionDirPattern.MatchString(dir) {
			logger.Error("skipping unexpected collection directory", zap.String("dir", dir))
			continue
		}
		if err := os.Rename(filepath.Join(path, dir), filepath.Join(dst, dir)); err != nil {
			logger.Error("quarantine failed", zap.String("dir", dir), zap.Error(err))
			continue
		}
		logger.Warn("namespace quarantined", zap.String("dir", dir), zap.String("to", dst))
		moved = append(moved, dir)
	}
	return moved, nil
}

// findCorruptNamespaces lists collection directories with document files
// but no metadata file.
func findCorruptNamespaces(path string, logger *zap.Logger) ([]string, error) {
	entries, err := os.ReadDir(path)
	if err != nil {
		return nil, fmt.Errorf("reading directory: %w", err)
	}

	var corrupt []string
	for _, entry := range entries {
		if !entry.IsDir() || strings.HasPrefix(entry.Name(), ".") {
			continue
		}
		dir := filepath.Join(path, entry.Name())
		if _, err := os.Stat(filepath.Join(dir, collectionMetadataFile)); !os.IsNotExist(err) {
			continue
		}
		files, err := os.ReadDir(dir)
		if err != nil {
			logger.Warn("cannot read collection directory", zap.String("dir", entry.Name()), zap.Error(err))
			continue
		}
		for _, f := range files {
			if !f.IsDir() && strings.HasSuffix(f.Name(), ".gob") {
				corrupt = append(corrupt, entry.Name())
				break
			}
		}
	}
	return corrupt, nil
}
