package risktier

import (
	"bytes"
	"crypto/sha256"
	"database/sql"
	"encoding/hex"
	"fmt"
	"time"

	"github.com/rs/zerolog"
	"github.com/vmihailenco/msgpack/v5"

	"github.com/pranavkh/fundsage/internal/domain"
)

// ArtifactRepository persists fitted models in the features database.
type ArtifactRepository struct {
	db  *sql.DB
	log zerolog.Logger
}

// NewArtifactRepository creates an artifact repository.
func NewArtifactRepository(db *sql.DB, log zerolog.Logger) *ArtifactRepository {
	return &ArtifactRepository{
		db:  db,
		log: log.With().Str("component", "model_artifacts").Logger(),
	}
}

// contentHash binds the classifier to the normalization parameters it
// was trained with. Recomputed at load time; a mismatch means the
// artifact was assembled from incompatible builds. The encoding must
// be canonical, so map keys are sorted before hashing.
func contentHash(m *Model) (string, error) {
	cutPointsBytes, err := canonicalMarshal(m.CutPoints)
	if err != nil {
		return "", fmt.Errorf("failed to encode cut points: %w", err)
	}
	scalerBytes, err := canonicalMarshal(m.Scaler)
	if err != nil {
		return "", fmt.Errorf("failed to encode scaler: %w", err)
	}

	h := sha256.New()
	h.Write(cutPointsBytes)
	h.Write(scalerBytes)
	return hex.EncodeToString(h.Sum(nil)), nil
}

func canonicalMarshal(v interface{}) ([]byte, error) {
	var buf bytes.Buffer
	enc := msgpack.NewEncoder(&buf)
	enc.SetSortMapKeys(true)
	if err := enc.Encode(v); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// Save serializes the model under its build id.
func (r *ArtifactRepository) Save(buildID string, m *Model) error {
	payload, err := msgpack.Marshal(m)
	if err != nil {
		return fmt.Errorf("failed to encode model: %w", err)
	}
	hash, err := contentHash(m)
	if err != nil {
		return err
	}

	_, err = r.db.Exec(
		"INSERT OR REPLACE INTO model_artifacts (build_id, created_at, content_hash, payload) VALUES (?, ?, ?, ?)",
		buildID, time.Now().UTC().Format(time.RFC3339), hash, payload)
	if err != nil {
		return fmt.Errorf("failed to save model artifact: %w", err)
	}

	// One build, one artifact
	if _, err := r.db.Exec("DELETE FROM model_artifacts WHERE build_id != ?", buildID); err != nil {
		return fmt.Errorf("failed to prune old artifacts: %w", err)
	}

	r.log.Info().Str("build_id", buildID).Str("content_hash", hash[:12]).Msg("model artifact saved")
	return nil
}

// Load reads the model for a build id and verifies its content hash.
// A hash mismatch is fatal: the classifier no longer matches the
// normalization parameters and serving it would silently mis-tier.
func (r *ArtifactRepository) Load(buildID string) (*Model, error) {
	var storedHash string
	var payload []byte
	err := r.db.QueryRow(
		"SELECT content_hash, payload FROM model_artifacts WHERE build_id = ?", buildID).
		Scan(&storedHash, &payload)
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("no model artifact for build %s", buildID)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read model artifact: %w", err)
	}

	var m Model
	if err := msgpack.Unmarshal(payload, &m); err != nil {
		return nil, fmt.Errorf("failed to decode model artifact: %w", err)
	}

	hash, err := contentHash(&m)
	if err != nil {
		return nil, err
	}
	if hash != storedHash {
		return nil, fmt.Errorf("%w: artifact hash %s does not match stored %s for build %s",
			domain.ErrModelStaleness, hash[:12], storedHash[:12], buildID)
	}

	return &m, nil
}
