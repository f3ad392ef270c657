package reap

import (
	"archive/tar"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/klauspost/compress/zstd"
	"github.com/klauspost/pgzip"
	"github.com/ulikunitz/xz"
)

// decompressReader wraps r with the decoder matching the archive name.
// The returned close func releases decoder resources.
func decompressReader(name string, r io.Reader) (io.Reader, func(), error) {
	switch {
	case strings.HasSuffix(name, ".zst"):
		dec, err := zstd.NewReader(r)
		if err != nil {
			return nil, nil, err
		}
		return dec, dec.Close, nil
	case strings.HasSuffix(name, ".xz"):
		xr, err := xz.NewReader(r)
		if err != nil {
			return nil, nil, err
		}
		return xr, func() {}, nil
	case strings.HasSuffix(name, ".gz"):
		gr, err := pgzip.NewReader(r)
		if err != nil {
			return nil, nil, err
		}
		return gr, func() { gr.Close() }, nil
	case strings.HasSuffix(name, ".tar"):
		return r, func() {}, nil
	default:
		return nil, nil, fmt.Errorf("unsupported archive format: %s", filepath.Base(name))
	}
}

// inspectPackageArchive walks a .pkg.tar.* archive far enough to confirm
// it is a well-formed package (tar readable, .PKGINFO present) before it
// is handed to the installer.
func inspectPackageArchive(path string, log *LogPane) error {
	f, err := os.Open(path)
	if err != nil {
		return err
	}
	defer f.Close()

	r, closeDec, err := decompressReader(path, f)
	if err != nil {
		return fmt.Errorf("open %s: %w", filepath.Base(path), err)
	}
	defer closeDec()

	tr := tar.NewReader(r)
	sawPkginfo := false
	files := 0
	for {
		hdr, err := tr.Next()
		if err == io.EOF {
			break
		}
		if err != nil {
			return fmt.Errorf("corrupt archive %s: %w", filepath.Base(path), err)
		}
		files++
		if hdr.Name == ".PKGINFO" {
			sawPkginfo = true
		}
	}
	if !sawPkginfo {
		return fmt.Errorf("%s is not a package archive (no .PKGINFO)", filepath.Base(path))
	}
	log.Infof("", StepInstall, "archive %s OK (%d entries)", filepath.Base(path), files)
	return nil
}

// readPkginfo extracts name and version from an archive's .PKGINFO.
func readPkginfo(path string) (name, version string, err error) {
	f, err := os.Open(path)
	if err != nil {
		return "", "", err
	}
	defer f.Close()

	r, closeDec, err := decompressReader(path, f)
	if err != nil {
		return "", "", err
	}
	defer closeDec()

	tr := tar.NewReader(r)
	for {
		hdr, err := tr.Next()
		if err == io.EOF {
			break
		}
		if err != nil {
			return "", "", err
		}
		if hdr.Name != ".PKGINFO" {
			continue
		}
		b, err := io.ReadAll(io.LimitReader(tr, 1<<20))
		if err != nil {
			return "", "", err
		}
		for _, line := range strings.Split(string(b), "\n") {
			k, v, ok := strings.Cut(line, "=")
			if !ok {
				continue
			}
			switch strings.TrimSpace(k) {
			case "pkgname":
				name = strings.TrimSpace(v)
			case "pkgver":
				version = strings.TrimSpace(v)
			}
		}
		return name, version, nil
	}
	return "", "", fmt.Errorf("no .PKGINFO in %s", filepath.Base(path))
}

// extractArchive unpacks an archive under destDir, rejecting entries
// that would escape it.
func extractArchive(path, destDir string, log *LogPane) error {
	f, err := os.Open(path)
	if err != nil {
		return err
	}
	defer f.Close()

	r, closeDec, err := decompressReader(path, f)
	if err != nil {
		return err
	}
	defer closeDec()

	tr := tar.NewReader(r)
	for {
		hdr, err := tr.Next()
		if err == io.EOF {
			return nil
		}
		if err != nil {
			return err
		}
		target := filepath.Join(destDir, hdr.Name)
		if !strings.HasPrefix(target, filepath.Clean(destDir)+string(os.PathSeparator)) {
			return fmt.Errorf("archive entry escapes destination: %s", hdr.Name)
		}
		switch hdr.Typeflag {
		case tar.TypeDir:
			if err := os.MkdirAll(target, hdr.FileInfo().Mode()); err != nil {
				return err
			}
		case tar.TypeReg:
			if err := os.MkdirAll(filepath.Dir(target), 0o755); err != nil {
				return err
			}
			out, err := os.OpenFile(target, os.O_CREATE|os.O_TRUNC|os.O_WRONLY, hdr.FileInfo().Mode())
			if err != nil {
				return err
			}
			if _, err := io.Copy(out, tr); err != nil {
				out.Close()
				return err
			}
			if err := out.Close(); err != nil {
				return err
			}
		case tar.TypeSymlink:
			if err := os.MkdirAll(filepath.Dir(target), 0o755); err != nil {
				return err
			}
			os.Remove(target)
			if err := os.Symlink(hdr.Linkname, target); err != nil {
				return err
			}
		}
	}
}

// InstallLocal installs a package archive from disk: validate, read its
// identity, snapshot, then pacman -U.
func InstallLocal(ex *Executor, log *LogPane, path string) error {
	if !fileExists(path) {
		return stepError(KindNotFound, StepInstall, "", fmt.Errorf("no such file: %s", path))
	}
	if err := inspectPackageArchive(path, log); err != nil {
		return stepError(KindInstallFailed, StepInstall, "", err)
	}
	name, version, err := readPkginfo(path)
	if err != nil {
		return stepError(KindInstallFailed, StepInstall, "", err)
	}
	colInfo.Printf("Installing %s %s from %s\n", name, version, path)
	snap, err := TakeSnapshot(ex, name, "install", Source{Kind: SourceBinaryRepo, Name: "local"})
	if err != nil {
		log.Warnf(name, StepInstall, "snapshot failed: %v", err)
	}
	if err := pacmanU(ex, log, name, path); err != nil {
		return err
	}
	if snap != nil {
		FinishSnapshot(snap, version)
	}
	colSuccess.Printf("Installed %s %s\n", name, version)
	return nil
}
