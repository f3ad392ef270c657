package reap

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/klauspost/compress/zstd"
)

// BackupClient wraps an S3-compatible bucket holding offsite copies of
// reap's config, pin list, profiles, and install history.
type BackupClient struct {
	Client *s3.Client
	Bucket string
}

// NewBackupClient builds a client from the backup_* config keys. Any
// S3-compatible endpoint works (R2, MinIO, AWS itself).
func NewBackupClient(cfg *GlobalConfig) (*BackupClient, error) {
	if cfg.BackupBucket == "" || cfg.BackupEndpoint == "" || cfg.BackupAccessKey == "" || cfg.BackupSecretKey == "" {
		return nil, stepError(KindConfigError, StepBackup, "",
			fmt.Errorf("backup requires backup_bucket, backup_endpoint, backup_access_key and backup_secret_key in reap.toml"))
	}

	resolver := aws.EndpointResolverWithOptionsFunc(func(service, region string, options ...interface{}) (aws.Endpoint, error) {
		return aws.Endpoint{URL: cfg.BackupEndpoint}, nil
	})

	awsCfg, err := awsconfig.LoadDefaultConfig(context.TODO(),
		awsconfig.WithEndpointResolverWithOptions(resolver),
		awsconfig.WithCredentialsProvider(credentials.NewStaticCredentialsProvider(cfg.BackupAccessKey, cfg.BackupSecretKey, "")),
		awsconfig.WithRegion("auto"),
	)
	if err != nil {
		return nil, stepError(KindConfigError, StepBackup, "", fmt.Errorf("backup client config: %w", err))
	}

	client := s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		o.UsePathStyle = true
	})
	return &BackupClient{Client: client, Bucket: cfg.BackupBucket}, nil
}

func (b *BackupClient) upload(ctx context.Context, key string, body []byte) error {
	contentType := "application/octet-stream"
	if strings.HasSuffix(key, ".json") {
		contentType = "application/json"
	} else if strings.HasSuffix(key, ".zst") {
		contentType = "application/zstd"
	}
	_, err := b.Client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:        aws.String(b.Bucket),
		Key:           aws.String(key),
		Body:          bytes.NewReader(body),
		ContentLength: aws.Int64(int64(len(body))),
		ContentType:   aws.String(contentType),
	})
	return err
}

func (b *BackupClient) download(ctx context.Context, key string) ([]byte, error) {
	out, err := b.Client.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(b.Bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		return nil, err
	}
	defer out.Body.Close()
	var buf bytes.Buffer
	if _, err := buf.ReadFrom(out.Body); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// backupFiles are the local state worth keeping offsite, keyed by their
// name inside the backup set.
func backupFiles() map[string]string {
	files := map[string]string{
		"reap.toml":   configPath(),
		"pinned.toml": pinnedPath(),
	}
	if entries, err := os.ReadDir(profilesDir()); err == nil {
		for _, e := range entries {
			if !e.IsDir() {
				files["profiles/"+e.Name()] = filepath.Join(profilesDir(), e.Name())
			}
		}
	}
	if entries, err := os.ReadDir(historyDir()); err == nil {
		for _, e := range entries {
			files["history/"+e.Name()] = filepath.Join(historyDir(), e.Name())
		}
	}
	return files
}

// Push uploads a zstd-compressed snapshot of local state under a
// timestamped prefix.
func (b *BackupClient) Push(ctx context.Context, log *LogPane) error {
	prefix := "reap-backup/" + time.Now().Format("20060102-150405")
	count := 0
	for name, path := range backupFiles() {
		data, err := os.ReadFile(path)
		if err != nil {
			continue
		}
		var buf bytes.Buffer
		enc, err := zstd.NewWriter(&buf)
		if err != nil {
			return stepError(KindIO, StepBackup, "", err)
		}
		if _, err := enc.Write(data); err != nil {
			enc.Close()
			return stepError(KindIO, StepBackup, "", err)
		}
		if err := enc.Close(); err != nil {
			return stepError(KindIO, StepBackup, "", err)
		}
		key := prefix + "/" + name + ".zst"
		if err := b.upload(ctx, key, buf.Bytes()); err != nil {
			return stepError(KindFetchFailed, StepBackup, "", fmt.Errorf("upload %s: %w", key, err))
		}
		log.Infof("", StepBackup, "uploaded %s (%d bytes)", key, buf.Len())
		count++
	}
	if count == 0 {
		return stepError(KindNotFound, StepBackup, "", fmt.Errorf("nothing to back up"))
	}
	colSuccess.Printf("Backed up %d file(s) to %s/%s\n", count, b.Bucket, prefix)
	return nil
}

// List prints the available backup sets, newest last.
func (b *BackupClient) List(ctx context.Context) error {
	prefixes := make(map[string]int)
	paginator := s3.NewListObjectsV2Paginator(b.Client, &s3.ListObjectsV2Input{
		Bucket: aws.String(b.Bucket),
		Prefix: aws.String("reap-backup/"),
	})
	for paginator.HasMorePages() {
		page, err := paginator.NextPage(ctx)
		if err != nil {
			return stepError(KindFetchFailed, StepBackup, "", err)
		}
		for _, obj := range page.Contents {
			parts := strings.SplitN(*obj.Key, "/", 3)
			if len(parts) >= 2 {
				prefixes[parts[1]]++
			}
		}
	}
	if len(prefixes) == 0 {
		fmt.Println("no backups found")
		return nil
	}
	for _, set := range sortedKeys(prefixes) {
		fmt.Printf("%s  %d file(s)\n", set, prefixes[set])
	}
	return nil
}

// Restore downloads a backup set into the live config and data dirs.
// Existing files are overwritten.
func (b *BackupClient) Restore(ctx context.Context, log *LogPane, set string) error {
	prefix := "reap-backup/" + set + "/"
	paginator := s3.NewListObjectsV2Paginator(b.Client, &s3.ListObjectsV2Input{
		Bucket: aws.String(b.Bucket),
		Prefix: aws.String(prefix),
	})
	count := 0
	for paginator.HasMorePages() {
		page, err := paginator.NextPage(ctx)
		if err != nil {
			return stepError(KindFetchFailed, StepBackup, "", err)
		}
		for _, obj := range page.Contents {
			data, err := b.download(ctx, *obj.Key)
			if err != nil {
				return stepError(KindFetchFailed, StepBackup, "", fmt.Errorf("download %s: %w", *obj.Key, err))
			}
			dec, err := zstd.NewReader(bytes.NewReader(data))
			if err != nil {
				return stepError(KindIO, StepBackup, "", err)
			}
			var plain bytes.Buffer
			_, err = plain.ReadFrom(dec)
			dec.Close()
			if err != nil {
				return stepError(KindIO, StepBackup, "", err)
			}

			name := strings.TrimSuffix(strings.TrimPrefix(*obj.Key, prefix), ".zst")
			dest := restorePathFor(name)
			if dest == "" {
				log.Warnf("", StepBackup, "skipping unknown backup entry %s", name)
				continue
			}
			if err := os.MkdirAll(filepath.Dir(dest), 0o755); err != nil {
				return stepError(KindIO, StepBackup, "", err)
			}
			if err := os.WriteFile(dest, plain.Bytes(), 0o644); err != nil {
				return stepError(KindIO, StepBackup, "", err)
			}
			log.Infof("", StepBackup, "restored %s", dest)
			count++
		}
	}
	if count == 0 {
		return stepError(KindNotFound, StepBackup, "", fmt.Errorf("backup set %q not found", set))
	}
	colSuccess.Printf("Restored %d file(s) from %s\n", count, set)
	return nil
}

func restorePathFor(name string) string {
	switch {
	case name == "reap.toml":
		return configPath()
	case name == "pinned.toml":
		return pinnedPath()
	case strings.HasPrefix(name, "profiles/"):
		return filepath.Join(profilesDir(), strings.TrimPrefix(name, "profiles/"))
	case strings.HasPrefix(name, "history/"):
		return filepath.Join(historyDir(), strings.TrimPrefix(name, "history/"))
	}
	return ""
}

func sortedKeys(m map[string]int) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
