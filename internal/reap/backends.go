package reap

import (
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
)

// pacmanInstalled reports whether pkg is present in the local pacman db.
func pacmanInstalled(ex *Executor, pkg string) bool {
	out, err := ex.Output(exec.Command("pacman", "-Q", pkg))
	return err == nil && strings.HasPrefix(strings.TrimSpace(string(out)), pkg+" ")
}

// pacmanVersion returns the installed version of pkg, or "".
func pacmanVersion(ex *Executor, pkg string) string {
	out, err := ex.Output(exec.Command("pacman", "-Q", pkg))
	if err != nil {
		return ""
	}
	fields := strings.Fields(string(out))
	if len(fields) == 2 && fields[0] == pkg {
		return fields[1]
	}
	return ""
}

// pacmanForeign lists installed packages absent from the sync dbs
// (pacman -Qm): the upgrade driver's candidate set.
func pacmanForeign(ex *Executor) (map[string]string, error) {
	out, err := ex.Output(exec.Command("pacman", "-Qm"))
	if err != nil {
		return nil, stepError(KindIO, "upgrade", "", err)
	}
	pkgs := make(map[string]string)
	for _, line := range strings.Split(string(out), "\n") {
		fields := strings.Fields(line)
		if len(fields) == 2 {
			pkgs[fields[0]] = fields[1]
		}
	}
	return pkgs, nil
}

// pacmanOwnedFiles returns pacman -Ql output paths for an installed
// package.
func pacmanOwnedFiles(ex *Executor, pkg string) []string {
	out, err := ex.Output(exec.Command("pacman", "-Ql", pkg))
	if err != nil {
		return nil
	}
	var files []string
	for _, line := range strings.Split(string(out), "\n") {
		if _, path, ok := strings.Cut(line, " "); ok && path != "" {
			files = append(files, path)
		}
	}
	return files
}

// pacmanFileOwner returns the package owning path, or "".
func pacmanFileOwner(ex *Executor, path string) string {
	out, err := ex.Output(exec.Command("pacman", "-Qo", path))
	if err != nil {
		return ""
	}
	// "/usr/bin/x is owned by pkg 1.0-1"
	fields := strings.Fields(string(out))
	if len(fields) >= 2 {
		return fields[len(fields)-2]
	}
	return ""
}

// pacmanDeclaredDeps reads "Depends On" from pacman -Qi.
func pacmanDeclaredDeps(ex *Executor, pkg string) []string {
	out, err := ex.Output(exec.Command("pacman", "-Qi", pkg))
	if err != nil {
		return nil
	}
	for _, line := range strings.Split(string(out), "\n") {
		if strings.HasPrefix(line, "Depends On") {
			_, v, _ := strings.Cut(line, ":")
			var deps []string
			for _, d := range strings.Fields(v) {
				if d != "None" {
					deps = append(deps, d)
				}
			}
			return deps
		}
	}
	return nil
}

// pacmanSyncDeps reads "Depends On" from pacman -Si for a repo package
// that ships no PKGBUILD.
func pacmanSyncDeps(ex *Executor, pkg string) []string {
	out, err := ex.Output(exec.Command("pacman", "-Si", pkg))
	if err != nil {
		return nil
	}
	for _, line := range strings.Split(string(out), "\n") {
		if strings.HasPrefix(line, "Depends On") {
			_, v, _ := strings.Cut(line, ":")
			var deps []string
			for _, d := range strings.Fields(v) {
				if d != "None" {
					deps = append(deps, d)
				}
			}
			return deps
		}
	}
	return nil
}

// installPacman runs the native binary-repo install path.
func installPacman(ex *Executor, log *LogPane, pkg string) error {
	log.Infof(pkg, StepInstall, "sudo pacman -S --noconfirm %s", pkg)
	cmd := exec.Command("pacman", "-S", "--noconfirm", pkg)
	if err := ex.RunStreamed(cmd, log, pkg, StepInstall); err != nil {
		return installErr(pkg, err)
	}
	return nil
}

// installFlatpak installs from the sandboxed application store.
func installFlatpak(ex *Executor, log *LogPane, pkg string) error {
	log.Infof(pkg, StepInstall, "flatpak install -y %s", pkg)
	cmd := exec.Command("flatpak", "install", "-y", pkg)
	if err := ex.RunStreamed(cmd, log, pkg, StepInstall); err != nil {
		return installErr(pkg, err)
	}
	return nil
}

// installApt installs from a Debian-style repository.
func installApt(ex *Executor, log *LogPane, pkg string) error {
	log.Infof(pkg, StepInstall, "sudo apt install -y %s", pkg)
	cmd := exec.Command("apt", "install", "-y", pkg)
	if err := ex.RunStreamed(cmd, log, pkg, StepInstall); err != nil {
		return installErr(pkg, err)
	}
	return nil
}

// installBinaryRepo downloads <base>/<pkg>-latest-<arch>.pkg.tar.zst and
// installs it with pacman -U, falling back to pacman -S when the package
// is already published in the repo's sync db.
func installBinaryRepo(ex *Executor, log *LogPane, cfg *GlobalConfig, repoName, pkg string) error {
	base := cfg.BinaryRepos[repoName]
	if base == "" {
		return stepError(KindNotFound, StepInstall, pkg, fmt.Errorf("binary repo %q has no base URL configured", repoName))
	}
	fileName := fmt.Sprintf("%s-latest-%s.pkg.tar.zst", pkg, arch)
	url := strings.TrimSuffix(base, "/") + "/" + fileName
	dest := filepath.Join(CacheDir(), "bin", fileName)

	if err := downloadFile(url, dest, log); err != nil {
		log.Warnf(pkg, StepFetch, "binary download failed (%v); trying repo sync db", err)
		cmd := exec.Command("pacman", "-S", "--noconfirm", pkg)
		if err := ex.RunStreamed(cmd, log, pkg, StepInstall); err != nil {
			return installErr(pkg, err)
		}
		return nil
	}
	if err := inspectPackageArchive(dest, log); err != nil {
		return stepError(KindInstallFailed, StepInstall, pkg, err)
	}
	log.Infof(pkg, StepInstall, "sudo pacman -U --noconfirm %s", dest)
	cmd := exec.Command("pacman", "-U", "--noconfirm", dest)
	if err := ex.RunStreamed(cmd, log, pkg, StepInstall); err != nil {
		return installErr(pkg, err)
	}
	return nil
}

// pacmanU installs a local package archive with pacman -U.
func pacmanU(ex *Executor, log *LogPane, pkg, archivePath string) error {
	log.Infof(pkg, StepInstall, "sudo pacman -U --noconfirm %s", archivePath)
	cmd := exec.Command("pacman", "-U", "--noconfirm", archivePath)
	if err := ex.RunStreamed(cmd, log, pkg, StepInstall); err != nil {
		return installErr(pkg, err)
	}
	return nil
}

// removePackage drives the per-source removal paths.
func removePackage(ex *Executor, log *LogPane, pkg string, src Source) error {
	var cmd *exec.Cmd
	switch src.Kind {
	case SourceFlatpak:
		cmd = exec.Command("flatpak", "uninstall", "-y", pkg)
	case SourceApt:
		cmd = exec.Command("apt", "remove", "-y", pkg)
	default:
		cmd = exec.Command("pacman", "-R", "--noconfirm", pkg)
	}
	log.Infof(pkg, StepInstall, "removing %s via %s", pkg, src.Label())
	if err := ex.RunStreamed(cmd, log, pkg, StepInstall); err != nil {
		return installErr(pkg, err)
	}
	return nil
}

// flatpakInstalled lists installed flatpak application IDs.
func flatpakInstalled(ex *Executor) []string {
	if !commandOnPath("flatpak") {
		return nil
	}
	out, err := ex.Output(exec.Command("flatpak", "list", "--app", "--columns=application"))
	if err != nil {
		return nil
	}
	var apps []string
	for _, line := range strings.Split(string(out), "\n") {
		line = strings.TrimSpace(line)
		if line != "" {
			apps = append(apps, line)
		}
	}
	return apps
}

// upgradeFlatpak runs a full flatpak update.
func upgradeFlatpak(ex *Executor, log *LogPane) error {
	cmd := exec.Command("flatpak", "update", "-y")
	if err := ex.RunStreamed(cmd, log, "", StepInstall); err != nil {
		return installErr("", err)
	}
	return nil
}

func installErr(pkg string, err error) error {
	if strings.Contains(err.Error(), "unable to lock database") {
		return stepError(KindDatabaseLocked, StepInstall, pkg, err)
	}
	if ek := ErrKind(err); ek == KindCancelled {
		return err
	}
	return stepError(KindInstallFailed, StepInstall, pkg, err)
}

// orphanPackages lists packages installed as dependencies that nothing
// requires anymore (pacman -Qdtq).
func orphanPackages(ex *Executor) []string {
	out, err := ex.Output(exec.Command("pacman", "-Qdtq"))
	if err != nil {
		return nil
	}
	var orphans []string
	for _, line := range strings.Split(string(out), "\n") {
		line = strings.TrimSpace(line)
		if line != "" {
			orphans = append(orphans, line)
		}
	}
	return orphans
}

// localDBPaths globs the pacman local-db entries for pkg.
func localDBPaths(pkg string) []string {
	matches, _ := filepath.Glob("/var/lib/pacman/local/" + pkg + "-*")
	var out []string
	for _, m := range matches {
		if st, err := os.Stat(m); err == nil && st.IsDir() {
			out = append(out, m)
		}
	}
	return out
}
