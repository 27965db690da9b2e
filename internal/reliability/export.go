package reliability

import (
	"archive/tar"
	"compress/gzip"
	"context"
	"crypto/sha256"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/pranavkh/fundsage/internal/database"
)

const exportPrefix = "fundsage-export-"

// ExportService archives the databases after a successful build and
// uploads the archive. Satisfies the pipeline's Exporter interface.
type ExportService struct {
	client      *S3Client
	dataDir     string
	keyPrefix   string
	retainCount int
	databases   []*database.DB
	log         zerolog.Logger
}

// ExportMetadata describes one export archive.
type ExportMetadata struct {
	BuildID   string             `json:"build_id"`
	Timestamp time.Time          `json:"timestamp"`
	Databases []DatabaseMetadata `json:"databases"`
}

// DatabaseMetadata describes one database file inside an archive.
type DatabaseMetadata struct {
	Name      string `json:"name"`
	Filename  string `json:"filename"`
	SizeBytes int64  `json:"size_bytes"`
	Checksum  string `json:"checksum"`
}

// NewExportService creates an export service over the given databases.
func NewExportService(client *S3Client, dataDir, keyPrefix string, retainCount int, databases []*database.DB, log zerolog.Logger) *ExportService {
	return &ExportService{
		client:      client,
		dataDir:     dataDir,
		keyPrefix:   keyPrefix,
		retainCount: retainCount,
		databases:   databases,
		log:         log.With().Str("component", "export_service").Logger(),
	}
}

// Export archives the databases, uploads the archive, and rotates old
// exports. Called after the build is fully persisted, so a failure
// here never loses a build.
func (s *ExportService) Export(ctx context.Context, buildID string) error {
	started := time.Now()

	stagingDir := filepath.Join(s.dataDir, "export-staging")
	if err := os.MkdirAll(stagingDir, 0755); err != nil {
		return fmt.Errorf("failed to create staging directory: %w", err)
	}
	defer os.RemoveAll(stagingDir)

	metadata := ExportMetadata{
		BuildID:   buildID,
		Timestamp: time.Now().UTC(),
	}

	var files []string
	for _, db := range s.databases {
		// Fold the WAL into the main file so the copy is complete
		if err := db.WALCheckpoint("TRUNCATE"); err != nil {
			return err
		}

		dest := filepath.Join(stagingDir, db.Name()+".db")
		if err := copyFile(db.Path(), dest); err != nil {
			return fmt.Errorf("failed to stage %s: %w", db.Name(), err)
		}

		info, err := os.Stat(dest)
		if err != nil {
			return fmt.Errorf("failed to stat staged %s: %w", db.Name(), err)
		}
		checksum, err := checksumFile(dest)
		if err != nil {
			return fmt.Errorf("failed to checksum %s: %w", db.Name(), err)
		}

		metadata.Databases = append(metadata.Databases, DatabaseMetadata{
			Name:      db.Name(),
			Filename:  db.Name() + ".db",
			SizeBytes: info.Size(),
			Checksum:  checksum,
		})
		files = append(files, dest)
	}

	metadataPath := filepath.Join(stagingDir, "export-metadata.json")
	if err := writeMetadata(metadataPath, metadata); err != nil {
		return fmt.Errorf("failed to write metadata: %w", err)
	}
	files = append(files, metadataPath)

	archiveName := fmt.Sprintf("%s%s.tar.gz", exportPrefix, time.Now().Format("2006-01-02-150405"))
	archivePath := filepath.Join(stagingDir, archiveName)
	if err := createArchive(archivePath, files); err != nil {
		return fmt.Errorf("failed to create archive: %w", err)
	}

	archive, err := os.Open(archivePath)
	if err != nil {
		return fmt.Errorf("failed to open archive: %w", err)
	}
	defer archive.Close()

	key := s.keyPrefix + "/" + archiveName
	if err := s.client.Upload(ctx, key, archive); err != nil {
		return err
	}

	if err := s.rotate(ctx); err != nil {
		s.log.Warn().Err(err).Msg("export rotation failed")
	}

	s.log.Info().
		Str("build_id", buildID).
		Str("key", key).
		Dur("elapsed", time.Since(started)).
		Msg("build export uploaded")
	return nil
}

// rotate deletes the oldest exports beyond the retain count.
func (s *ExportService) rotate(ctx context.Context) error {
	objects, err := s.client.List(ctx, s.keyPrefix+"/"+exportPrefix)
	if err != nil {
		return err
	}

	type export struct {
		key       string
		timestamp time.Time
	}
	var exports []export
	for _, obj := range objects {
		if obj.Key == nil {
			continue
		}
		name := filepath.Base(*obj.Key)
		stamp := strings.TrimSuffix(strings.TrimPrefix(name, exportPrefix), ".tar.gz")
		t, err := time.Parse("2006-01-02-150405", stamp)
		if err != nil {
			continue
		}
		exports = append(exports, export{key: *obj.Key, timestamp: t})
	}

	sort.Slice(exports, func(i, j int) bool { return exports[i].timestamp.After(exports[j].timestamp) })

	deleted := 0
	for i := s.retainCount; i < len(exports); i++ {
		if err := s.client.Delete(ctx, exports[i].key); err != nil {
			s.log.Error().Err(err).Str("key", exports[i].key).Msg("failed to delete old export")
			continue
		}
		deleted++
	}
	if deleted > 0 {
		s.log.Info().Int("deleted", deleted).Msg("old exports rotated")
	}
	return nil
}

func copyFile(src, dest string) error {
	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer in.Close()

	out, err := os.Create(dest)
	if err != nil {
		return err
	}
	defer out.Close()

	if _, err := io.Copy(out, in); err != nil {
		return err
	}
	return out.Sync()
}

func checksumFile(path string) (string, error) {
	f, err := os.Open(path)
	if err != nil {
		return "", err
	}
	defer f.Close()

	hash := sha256.New()
	if _, err := io.Copy(hash, f); err != nil {
		return "", err
	}
	return fmt.Sprintf("sha256:%x", hash.Sum(nil)), nil
}

func writeMetadata(path string, metadata ExportMetadata) error {
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	defer f.Close()

	encoder := json.NewEncoder(f)
	encoder.SetIndent("", "  ")
	return encoder.Encode(metadata)
}

func createArchive(archivePath string, files []string) error {
	archive, err := os.Create(archivePath)
	if err != nil {
		return fmt.Errorf("failed to create archive file: %w", err)
	}
	defer archive.Close()

	gzipWriter := gzip.NewWriter(archive)
	defer gzipWriter.Close()

	tarWriter := tar.NewWriter(gzipWriter)
	defer tarWriter.Close()

	for _, path := range files {
		if err := addToArchive(tarWriter, path); err != nil {
			return err
		}
	}
	return nil
}

func addToArchive(tw *tar.Writer, path string) error {
	f, err := os.Open(path)
	if err != nil {
		return err
	}
	defer f.Close()

	info, err := f.Stat()
	if err != nil {
		return err
	}

	header, err := tar.FileInfoHeader(info, "")
	if err != nil {
		return err
	}
	header.Name = filepath.Base(path)

	if err := tw.WriteHeader(header); err != nil {
		return err
	}
	_, err = io.Copy(tw, f)
	return err
}
