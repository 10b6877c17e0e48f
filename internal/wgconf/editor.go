// Package wgconf edits the wg-quick style configuration file: an
// [Interface] section followed by repeated [Peer] sections. Edits are
// backup-protected and atomic; untouched sections survive byte-for-byte.
//
// Concurrent edits of the same file are not safe. Callers must make
// sure collection and peer-mutation commands do not overlap.
package wgconf

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
)

// ErrConfigNotFound reports a missing or unreadable configuration file.
var ErrConfigNotFound = errors.New("wgconf: config file not found")

// Editor mutates one configuration file.
type Editor struct {
	path   string
	logger *slog.Logger

	// writeFile commits new content to a path; swapped out in tests to
	// exercise the rollback path.
	writeFile func(path string, data []byte, mode os.FileMode) error
}

func NewEditor(path string, logger *slog.Logger) *Editor {
	return &Editor{path: path, logger: logger, writeFile: atomicWrite}
}

// BackupPath is the fixed location of the pre-edit copy.
func (e *Editor) BackupPath() string {
	return e.path + ".bak"
}

// Content returns the current file content.
func (e *Editor) Content() (string, error) {
	data, err := os.ReadFile(e.path)
	if err != nil {
		return "", fmt.Errorf("%w: %s", ErrConfigNotFound, e.path)
	}
	return string(data), nil
}

// block is one section of the file, header line included, verbatim.
type block struct {
	name string // "[Peer]", "[Interface]", or "" for the preamble
	text string
}

// RemovePeer deletes the [Peer] block whose PublicKey equals pubKey.
// The file is copied to the backup path before any mutation; a failed
// write restores the original content. found is false when no block
// matched; the file is already in the desired state, so that is
// success with a warning, not an error.
func (e *Editor) RemovePeer(pubKey string) (found bool, err error) {
	info, err := os.Stat(e.path)
	if err != nil {
		return false, fmt.Errorf("%w: %s", ErrConfigNotFound, e.path)
	}

	orig, err := os.ReadFile(e.path)
	if err != nil {
		return false, fmt.Errorf("%w: %s", ErrConfigNotFound, e.path)
	}

	if err := os.WriteFile(e.BackupPath(), orig, info.Mode().Perm()); err != nil {
		// Nothing has been mutated yet; abort outright.
		return false, fmt.Errorf("wgconf: create backup %s: %w", e.BackupPath(), err)
	}
	e.logger.Debug("config backed up", "path", e.path, "backup", e.BackupPath())

	var kept []string
	for _, b := range splitBlocks(string(orig)) {
		if b.name == "[Peer]" && peerBlockMatches(b.text, pubKey) {
			found = true
			continue
		}
		kept = append(kept, b.text)
	}

	if !found {
		e.logger.Warn("public key not present in config", "path", e.path, "public_key", pubKey)
	}

	if err := e.writeFile(e.path, []byte(strings.Join(kept, "")), info.Mode().Perm()); err != nil {
		e.restoreBackup(orig, info.Mode().Perm())
		return found, fmt.Errorf("wgconf: write config %s: %w", e.path, err)
	}

	e.logger.Info("peer removed from config", "path", e.path, "public_key", pubKey, "found", found)
	return found, nil
}

// AddPeer appends a [Peer] block for pubKey. A pure append needs no
// backup, but the write is still atomic so concurrent readers never see
// a torn file.
func (e *Editor) AddPeer(pubKey, allowedIPs string) error {
	info, err := os.Stat(e.path)
	if err != nil {
		return fmt.Errorf("%w: %s", ErrConfigNotFound, e.path)
	}
	orig, err := os.ReadFile(e.path)
	if err != nil {
		return fmt.Errorf("%w: %s", ErrConfigNotFound, e.path)
	}

	entry := fmt.Sprintf("\n[Peer]\nPublicKey = %s\nAllowedIPs = %s\n", pubKey, allowedIPs)
	if err := e.writeFile(e.path, append(orig, entry...), info.Mode().Perm()); err != nil {
		return fmt.Errorf("wgconf: append peer to %s: %w", e.path, err)
	}

	e.logger.Info("peer appended to config", "path", e.path, "public_key", pubKey, "allowed_ips", allowedIPs)
	return nil
}

func (e *Editor) restoreBackup(orig []byte, mode os.FileMode) {
	if err := os.WriteFile(e.path, orig, mode); err != nil {
		e.logger.Error("restoring config from backup failed", "path", e.path, "backup", e.BackupPath(), "err", err)
		return
	}
	e.logger.Warn("config restored from pre-edit content", "path", e.path)
}

// splitBlocks cuts the file at section header lines. Every byte of the
// input ends up in exactly one block, so rejoining the kept blocks
// reproduces untouched sections exactly.
func splitBlocks(content string) []block {
	lines := strings.SplitAfter(content, "\n")
	var blocks []block
	cur := block{}
	flush := func() {
		if cur.text != "" {
			blocks = append(blocks, cur)
		}
	}
	for _, line := range lines {
		if strings.HasPrefix(strings.TrimSpace(line), "[") {
			flush()
			cur = block{name: strings.TrimSpace(line)}
		}
		cur.text += line
	}
	flush()
	return blocks
}

// peerBlockMatches reports whether a [Peer] block's PublicKey line
// carries exactly pubKey.
func peerBlockMatches(text, pubKey string) bool {
	for _, line := range strings.Split(text, "\n") {
		trimmed := strings.TrimSpace(line)
		if !strings.HasPrefix(trimmed, "PublicKey") {
			continue
		}
		_, value, ok := strings.Cut(trimmed, "=")
		if ok && strings.TrimSpace(value) == pubKey {
			return true
		}
	}
	return false
}

// atomicWrite commits data via a temp file and rename in the target's
// directory.
func atomicWrite(path string, data []byte, mode os.FileMode) error {
	tmp, err := os.CreateTemp(filepath.Dir(path), "."+filepath.Base(path)+".tmp-*")
	if err != nil {
		return err
	}
	tmpName := tmp.Name()
	defer os.Remove(tmpName)

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Chmod(mode); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Close(); err != nil {
		return err
	}
	return os.Rename(tmpName, path)
}
