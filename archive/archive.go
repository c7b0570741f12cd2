// Package archive maintains one zip bundle per (dataset kind, year): daily
// JSON files under <typeDir>/<year>/ are compacted into
// <typeDir>/<label>_<year>.zip and expanded back before a run. Staleness is
// decided on modification times, so Expand restores each member's original
// mtime — without that, every run would recompact everything.
package archive

import (
	"archive/zip"
	"fmt"
	"io"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"
)

// Manager compacts and expands per-year bundles.
type Manager struct {
	logger *slog.Logger
}

// Option configures a Manager.
type Option func(*Manager)

// WithLogger sets a custom logger.
func WithLogger(l *slog.Logger) Option { return func(m *Manager) { m.logger = l } }

// NewManager creates a Manager.
func NewManager(opts ...Option) *Manager {
	m := &Manager{logger: slog.Default()}
	for _, o := range opts {
		o(m)
	}
	return m
}

// NeedsRecompaction reports whether the bundle at bundlePath is missing or
// older than any JSON file under sourceDir.
func NeedsRecompaction(bundlePath, sourceDir string) (bool, error) {
	info, err := os.Stat(bundlePath)
	if os.IsNotExist(err) {
		return true, nil
	}
	if err != nil {
		return false, fmt.Errorf("archive: stat %s: %w", bundlePath, err)
	}
	bundleTime := info.ModTime()

	stale := false
	err = filepath.WalkDir(sourceDir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() || !strings.HasSuffix(d.Name(), ".json") {
			return nil
		}
		fi, err := d.Info()
		if err != nil {
			return err
		}
		if fi.ModTime().After(bundleTime) {
			stale = true
			return fs.SkipAll
		}
		return nil
	})
	if err != nil {
		return false, fmt.Errorf("archive: scan %s: %w", sourceDir, err)
	}
	return stale, nil
}

// Compact rewrites the bundle of every year subdirectory of typeDir whose
// members are newer than the bundle (or whose bundle is missing). label
// names the bundles, e.g. label "WindForecast" gives WindForecast_2024.zip.
// Up-to-date bundles are left untouched.
func (m *Manager) Compact(typeDir, label string) error {
	entries, err := os.ReadDir(typeDir)
	if os.IsNotExist(err) {
		m.logger.Warn("archive: directory missing, nothing to compact", "dir", typeDir)
		return nil
	}
	if err != nil {
		return fmt.Errorf("archive: read %s: %w", typeDir, err)
	}

	for _, e := range entries {
		if !e.IsDir() || !isYear(e.Name()) {
			continue
		}
		yearDir := filepath.Join(typeDir, e.Name())
		bundle := filepath.Join(typeDir, fmt.Sprintf("%s_%s.zip", label, e.Name()))

		stale, err := NeedsRecompaction(bundle, yearDir)
		if err != nil {
			return err
		}
		if !stale {
			m.logger.Info("archive: bundle up to date", "bundle", filepath.Base(bundle))
			continue
		}

		m.logger.Info("archive: compacting year", "dir", yearDir, "bundle", filepath.Base(bundle))
		if err := m.writeBundle(bundle, typeDir, yearDir); err != nil {
			return err
		}
	}
	return nil
}

// writeBundle builds the zip in a temporary file and renames it over the
// bundle, so a crash never leaves a half-written archive behind.
func (m *Manager) writeBundle(bundle, typeDir, yearDir string) error {
	tmp, err := os.CreateTemp(typeDir, ".bundle-*")
	if err != nil {
		return fmt.Errorf("archive: temp bundle: %w", err)
	}
	defer os.Remove(tmp.Name())

	zw := zip.NewWriter(tmp)
	err = filepath.WalkDir(yearDir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() || !strings.HasSuffix(d.Name(), ".json") {
			return nil
		}
		return addMember(zw, typeDir, path)
	})
	if err == nil {
		err = zw.Close()
	}
	if cerr := tmp.Close(); err == nil {
		err = cerr
	}
	if err != nil {
		return fmt.Errorf("archive: write %s: %w", bundle, err)
	}

	if err := os.Rename(tmp.Name(), bundle); err != nil {
		return fmt.Errorf("archive: replace %s: %w", bundle, err)
	}
	return nil
}

// addMember stores path under its path relative to typeDir, carrying the
// file's modification time in the member header.
func addMember(zw *zip.Writer, typeDir, path string) error {
	rel, err := filepath.Rel(typeDir, path)
	if err != nil {
		return err
	}
	info, err := os.Stat(path)
	if err != nil {
		return err
	}

	hdr := &zip.FileHeader{
		Name:     filepath.ToSlash(rel),
		Method:   zip.Deflate,
		Modified: info.ModTime(),
	}
	w, err := zw.CreateHeader(hdr)
	if err != nil {
		return err
	}
	f, err := os.Open(path)
	if err != nil {
		return err
	}
	defer f.Close()
	_, err = io.Copy(w, f)
	return err
}

// Expand extracts the bundle into destDir, skipping files that already
// exist (never overwriting) and restoring each extracted file's original
// modification time from the member header.
func (m *Manager) Expand(bundlePath, destDir string) error {
	r, err := zip.OpenReader(bundlePath)
	if err != nil {
		return fmt.Errorf("archive: open %s: %w", bundlePath, err)
	}
	defer r.Close()

	for _, member := range r.File {
		target := filepath.Join(destDir, filepath.FromSlash(member.Name))
		if !strings.HasPrefix(target, filepath.Clean(destDir)+string(os.PathSeparator)) {
			return fmt.Errorf("archive: member %q escapes %s", member.Name, destDir)
		}
		if _, err := os.Stat(target); err == nil {
			continue
		}
		if err := extractMember(member, target); err != nil {
			return fmt.Errorf("archive: extract %s: %w", member.Name, err)
		}
		m.logger.Debug("archive: extracted", "member", member.Name)
	}
	return nil
}

// ExpandAll expands every bundle directly under typeDir into typeDir.
func (m *Manager) ExpandAll(typeDir string) error {
	entries, err := os.ReadDir(typeDir)
	if os.IsNotExist(err) {
		m.logger.Warn("archive: directory missing, nothing to expand", "dir", typeDir)
		return nil
	}
	if err != nil {
		return fmt.Errorf("archive: read %s: %w", typeDir, err)
	}

	names := make([]string, 0, len(entries))
	for _, e := range entries {
		if !e.IsDir() && strings.HasSuffix(e.Name(), ".zip") {
			names = append(names, e.Name())
		}
	}
	sort.Strings(names)

	for _, name := range names {
		m.logger.Info("archive: expanding bundle", "bundle", name)
		if err := m.Expand(filepath.Join(typeDir, name), typeDir); err != nil {
			return err
		}
	}
	return nil
}

func extractMember(member *zip.File, target string) error {
	if err := os.MkdirAll(filepath.Dir(target), 0o755); err != nil {
		return err
	}
	src, err := member.Open()
	if err != nil {
		return err
	}
	defer src.Close()

	dst, err := os.OpenFile(target, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0o644)
	if err != nil {
		return err
	}
	if _, err := io.Copy(dst, src); err != nil {
		dst.Close()
		return err
	}
	if err := dst.Close(); err != nil {
		return err
	}
	return os.Chtimes(target, member.Modified, member.Modified)
}

func isYear(name string) bool {
	if len(name) != 4 {
		return false
	}
	for i := range name {
		if name[i] < '0' || name[i] > '9' {
			return false
		}
	}
	return true
}
