package reap

import (
	"archive/tar"
	"os"
	"path/filepath"
	"testing"

	"github.com/klauspost/compress/zstd"
)

// writePkgArchive builds a minimal .pkg.tar.zst with the given entries.
func writePkgArchive(t *testing.T, path string, entries map[string]string) {
	t.Helper()
	f, err := os.Create(path)
	if err != nil {
		t.Fatal(err)
	}
	defer f.Close()
	zw, err := zstd.NewWriter(f)
	if err != nil {
		t.Fatal(err)
	}
	tw := tar.NewWriter(zw)
	for name, body := range entries {
		hdr := &tar.Header{Name: name, Mode: 0o644, Size: int64(len(body))}
		if err := tw.WriteHeader(hdr); err != nil {
			t.Fatal(err)
		}
		if _, err := tw.Write([]byte(body)); err != nil {
			t.Fatal(err)
		}
	}
	if err := tw.Close(); err != nil {
		t.Fatal(err)
	}
	if err := zw.Close(); err != nil {
		t.Fatal(err)
	}
}

const testPkginfo = `# Generated by makepkg
pkgname = demo
pkgver = 1.2-1
pkgdesc = a demo
`

func TestInspectPackageArchive(t *testing.T) {
	dir := t.TempDir()
	good := filepath.Join(dir, "demo-1.2-1-x86_64.pkg.tar.zst")
	writePkgArchive(t, good, map[string]string{
		".PKGINFO":     testPkginfo,
		"usr/bin/demo": "#!/bin/sh\n",
	})
	if err := inspectPackageArchive(good, NewLogPane(nil)); err != nil {
		t.Errorf("valid archive rejected: %v", err)
	}

	bad := filepath.Join(dir, "junk.pkg.tar.zst")
	writePkgArchive(t, bad, map[string]string{"README": "not a package"})
	if err := inspectPackageArchive(bad, NewLogPane(nil)); err == nil {
		t.Error("archive without .PKGINFO accepted")
	}

	corrupt := filepath.Join(dir, "corrupt.pkg.tar.zst")
	if err := os.WriteFile(corrupt, []byte("garbage bytes"), 0o644); err != nil {
		t.Fatal(err)
	}
	if err := inspectPackageArchive(corrupt, NewLogPane(nil)); err == nil {
		t.Error("corrupt archive accepted")
	}

	rar := filepath.Join(dir, "file.rar")
	if err := os.WriteFile(rar, []byte("x"), 0o644); err != nil {
		t.Fatal(err)
	}
	if err := inspectPackageArchive(rar, NewLogPane(nil)); err == nil {
		t.Error("unsupported format accepted")
	}
}

func TestReadPkginfo(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "demo-1.2-1-x86_64.pkg.tar.zst")
	writePkgArchive(t, path, map[string]string{".PKGINFO": testPkginfo})

	name, version, err := readPkginfo(path)
	if err != nil {
		t.Fatalf("readPkginfo: %v", err)
	}
	if name != "demo" || version != "1.2-1" {
		t.Errorf("readPkginfo = %q %q", name, version)
	}

	empty := filepath.Join(dir, "empty.pkg.tar.zst")
	writePkgArchive(t, empty, map[string]string{"other": "x"})
	if _, _, err := readPkginfo(empty); err == nil {
		t.Error("missing .PKGINFO accepted")
	}
}

func TestExtractArchive(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "data.tar.zst")
	writePkgArchive(t, path, map[string]string{
		"a.txt":     "alpha",
		"sub/b.txt": "beta",
	})

	dest := filepath.Join(dir, "out")
	if err := extractArchive(path, dest, NewLogPane(nil)); err != nil {
		t.Fatalf("extractArchive: %v", err)
	}
	b, err := os.ReadFile(filepath.Join(dest, "sub", "b.txt"))
	if err != nil || string(b) != "beta" {
		t.Errorf("extracted content = %q, %v", b, err)
	}
}

func TestExtractArchiveRejectsEscape(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "evil.tar.zst")
	writePkgArchive(t, path, map[string]string{"../escape.txt": "evil"})

	dest := filepath.Join(dir, "out")
	if err := extractArchive(path, dest, NewLogPane(nil)); err == nil {
		t.Error("path escape not rejected")
	}
	if fileExists(filepath.Join(dir, "escape.txt")) {
		t.Error("escaping entry was written")
	}
}
