package reap

import (
	"encoding/hex"
	"fmt"
	"io"
	"net/http"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"time"

	"github.com/schollz/progressbar/v3"
	"golang.org/x/sys/unix"
	"lukechampine.com/blake3"
)

// hashKey returns a short blake3 digest of s, used for cache file names.
func hashKey(s string) string {
	sum := blake3.Sum256([]byte(s))
	return hex.EncodeToString(sum[:8])
}

// fileDigest hashes a file's contents for snapshot records.
func fileDigest(path string) (string, error) {
	f, err := os.Open(path)
	if err != nil {
		return "", err
	}
	defer f.Close()
	h := blake3.New(32, nil)
	if _, err := io.Copy(h, f); err != nil {
		return "", err
	}
	return hex.EncodeToString(h.Sum(nil)), nil
}

var fetchClient = &http.Client{Timeout: 10 * time.Minute}

// downloadFile fetches url into dest atomically. A per-destination flock
// keeps concurrent batch workers from clobbering each other's partial
// downloads; the second locker finds the finished file and returns.
func downloadFile(url, dest string, log *LogPane) error {
	if err := os.MkdirAll(filepath.Dir(dest), 0o755); err != nil {
		return stepError(KindIO, StepFetch, "", err)
	}
	lock, err := os.OpenFile(dest+".lock", os.O_CREATE|os.O_RDWR, 0o644)
	if err != nil {
		return stepError(KindIO, StepFetch, "", err)
	}
	defer lock.Close()
	if err := unix.Flock(int(lock.Fd()), unix.LOCK_EX); err != nil {
		return stepError(KindIO, StepFetch, "", err)
	}
	defer unix.Flock(int(lock.Fd()), unix.LOCK_UN)

	if st, err := os.Stat(dest); err == nil && st.Size() > 0 {
		log.Infof("", StepFetch, "using cached %s", filepath.Base(dest))
		return nil
	}

	log.Infof("", StepFetch, "downloading %s", url)
	resp, err := fetchClient.Get(url)
	if err != nil {
		return stepError(KindFetchFailed, StepFetch, "", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return stepError(KindFetchFailed, StepFetch, "", fmt.Errorf("GET %s: %s", url, resp.Status))
	}

	tmp := dest + ".part"
	out, err := os.Create(tmp)
	if err != nil {
		return stepError(KindIO, StepFetch, "", err)
	}

	bar := progressbar.DefaultBytes(resp.ContentLength, filepath.Base(dest))
	_, err = io.Copy(io.MultiWriter(out, bar), resp.Body)
	closeErr := out.Close()
	if err == nil {
		err = closeErr
	}
	if err != nil {
		os.Remove(tmp)
		return stepError(KindFetchFailed, StepFetch, "", err)
	}
	if err := os.Rename(tmp, dest); err != nil {
		return stepError(KindIO, StepFetch, "", err)
	}
	return nil
}

// fetchString GETs a small text resource with a size cap.
func fetchString(url string, limit int64) (string, error) {
	resp, err := fetchClient.Get(url)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()
	if resp.StatusCode == http.StatusNotFound {
		return "", errPackageNotFound
	}
	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("GET %s: %s", url, resp.Status)
	}
	b, err := io.ReadAll(io.LimitReader(resp.Body, limit))
	if err != nil {
		return "", err
	}
	return string(b), nil
}

// cloneRepo shallow-clones url into dest under an flock, pulling instead
// when the clone already exists.
func cloneRepo(ex *Executor, log *LogPane, url, dest string) error {
	if err := os.MkdirAll(filepath.Dir(dest), 0o755); err != nil {
		return stepError(KindIO, StepClone, "", err)
	}
	lockPath := filepath.Join(filepath.Dir(dest), "."+filepath.Base(dest)+".lock")
	lock, err := os.OpenFile(lockPath, os.O_CREATE|os.O_RDWR, 0o644)
	if err != nil {
		return stepError(KindIO, StepClone, "", err)
	}
	defer lock.Close()
	if err := unix.Flock(int(lock.Fd()), unix.LOCK_EX); err != nil {
		return stepError(KindIO, StepClone, "", err)
	}
	defer unix.Flock(int(lock.Fd()), unix.LOCK_UN)

	if dirExists(filepath.Join(dest, ".git")) {
		log.Infof("", StepClone, "refreshing %s", dest)
		return runGit(ex, log, "-C", dest, "pull", "--ff-only")
	}
	log.Infof("", StepClone, "cloning %s", url)
	return runGit(ex, log, "clone", "--depth=1", url, dest)
}

func runGit(ex *Executor, log *LogPane, args ...string) error {
	cmd := exec.Command("git", args...)
	if err := ex.RunStreamed(cmd, log, "", StepClone); err != nil {
		if ErrKind(err) == KindCancelled {
			return err
		}
		return stepError(KindFetchFailed, StepClone, "", fmt.Errorf("git %s: %w", strings.Join(args, " "), err))
	}
	return nil
}
