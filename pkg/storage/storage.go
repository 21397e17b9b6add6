// Package storage is the Template Store: per-user face templates persisted
// as JSON, with legacy-shape normalization, atomic writes, a system-directory
// mirror, and an optional central obfuscated database read at auth time.
package storage

import (
	"crypto/sha256"
	"encoding/base64"
	"encoding/binary"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/glance-auth/glance/pkg/logging"
	"github.com/glance-auth/glance/pkg/recognition"
)

// ErrUserNotFound is returned when no template exists for a username.
var ErrUserNotFound = errors.New("storage: user not found")

// FaceEncodingRecord is one captured pose, persisted.
type FaceEncodingRecord struct {
	Embedding  recognition.FaceEmbedding `json:"encoding"`
	PoseLabel  string                    `json:"pose"`
	CameraType string                    `json:"camera_type"`
}

// UserTemplate is the per-user collection of enrolled embeddings, bucketed
// by the camera kind that captured them, with a flat "encodings" bucket kept
// as a legacy mirror for tooling that only understands the old shape.
type UserTemplate struct {
	Username     string               `json:"username"`
	Encodings    []FaceEncodingRecord `json:"encodings"`
	IREncodings  []FaceEncodingRecord `json:"ir_encodings"`
	RGBEncodings []FaceEncodingRecord `json:"rgb_encodings"`
	IRCaptured   bool                 `json:"ir_captured"`
	RGBCaptured  bool                 `json:"rgb_captured"`
	CreatedAt    time.Time            `json:"created_at"`
	UpdatedAt    time.Time            `json:"updated_at"`
}

// AllEncodings returns every embedding across all three buckets.
func (t *UserTemplate) AllEncodings() []FaceEncodingRecord {
	all := make([]FaceEncodingRecord, 0, len(t.Encodings)+len(t.IREncodings)+len(t.RGBEncodings))
	all = append(all, t.Encodings...)
	all = append(all, t.IREncodings...)
	all = append(all, t.RGBEncodings...)
	return all
}

// AllEmbeddings returns just the embedding vectors, for matching.
func (t *UserTemplate) AllEmbeddings() []recognition.FaceEmbedding {
	records := t.AllEncodings()
	out := make([]recognition.FaceEmbedding, len(records))
	for i, r := range records {
		out[i] = r.Embedding
	}
	return out
}

// AddEncoding appends to the legacy bucket, used when the camera kind is
// unknown.
func (t *UserTemplate) AddEncoding(embedding recognition.FaceEmbedding, pose string) {
	t.Encodings = append(t.Encodings, FaceEncodingRecord{Embedding: embedding, PoseLabel: pose})
	t.UpdatedAt = time.Now()
}

// AddIREncoding appends to the IR bucket and marks ir_captured, mirroring
// the same embedding into the flat legacy bucket (camera_type "") so tooling
// that only understands the old shape still sees the capture.
func (t *UserTemplate) AddIREncoding(embedding recognition.FaceEmbedding, pose string) {
	t.IREncodings = append(t.IREncodings, FaceEncodingRecord{Embedding: embedding, PoseLabel: pose, CameraType: "ir"})
	t.Encodings = append(t.Encodings, FaceEncodingRecord{Embedding: embedding, PoseLabel: pose})
	t.IRCaptured = true
	t.UpdatedAt = time.Now()
}

// AddRGBEncoding appends to the RGB bucket and marks rgb_captured, mirroring
// the same embedding into the flat legacy bucket (camera_type "") so tooling
// that only understands the old shape still sees the capture.
func (t *UserTemplate) AddRGBEncoding(embedding recognition.FaceEmbedding, pose string) {
	t.RGBEncodings = append(t.RGBEncodings, FaceEncodingRecord{Embedding: embedding, PoseLabel: pose, CameraType: "rgb"})
	t.Encodings = append(t.Encodings, FaceEncodingRecord{Embedding: embedding, PoseLabel: pose})
	t.RGBCaptured = true
	t.UpdatedAt = time.Now()
}

// Store resolves, loads, normalizes, and atomically persists UserTemplates
// across a user data directory and a mirrored system data directory.
type Store struct {
	userDir   string
	systemDir string
}

// NewStore scopes a Store to the given user and system data directories.
// Neither directory needs to exist yet; Save creates userDir on demand.
func NewStore(userDir, systemDir string) *Store {
	return &Store{userDir: userDir, systemDir: systemDir}
}

func legacyDir(dir string) string {
	return filepath.Join(filepath.Dir(dir), "facerec")
}

// Load resolves a username's template following the read path: user
// directory, system directory, then legacy "facerec" directories under
// either root, migrating a legacy hit back to the user directory.
func (s *Store) Load(username string) (*UserTemplate, error) {
	userPath := filepath.Join(s.userDir, username+".json")
	if tmpl, err := readTemplate(userPath); err == nil {
		return tmpl, nil
	}

	systemPath := filepath.Join(s.systemDir, username+".json")
	if tmpl, err := readTemplate(systemPath); err == nil {
		return tmpl, nil
	}

	for _, root := range []string{s.userDir, s.systemDir} {
		legacyPath := filepath.Join(legacyDir(root), username+".json")
		tmpl, err := readTemplate(legacyPath)
		if err != nil {
			continue
		}
		if saveErr := s.Save(tmpl); saveErr != nil {
			logging.Warnf("storage: migrating %s failed, leaving legacy file in place: %v", username, saveErr)
			return tmpl, nil
		}
		if rmErr := os.Remove(legacyPath); rmErr != nil {
			logging.Debugf("storage: could not remove migrated legacy file %s: %v", legacyPath, rmErr)
		}
		return tmpl, nil
	}

	return nil, ErrUserNotFound
}

// ListUsers returns the usernames with a template file in the user
// directory. It does not consult the system directory or the central DB.
func (s *Store) ListUsers() ([]string, error) {
	entries, err := os.ReadDir(s.userDir)
	if err != nil {
		if os.IsNotExist(err) {
			return []string{}, nil
		}
		return nil, fmt.Errorf("storage: list users: %w", err)
	}

	var users []string
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		if name := entry.Name(); strings.HasSuffix(name, ".json") {
			users = append(users, strings.TrimSuffix(name, ".json"))
		}
	}
	return users, nil
}

// Delete removes a user's template from the user directory and, if
// present, its system-directory mirror. Returns ErrUserNotFound if
// neither copy exists.
func (s *Store) Delete(username string) error {
	userPath := filepath.Join(s.userDir, username+".json")
	systemPath := filepath.Join(s.systemDir, username+".json")

	userErr := os.Remove(userPath)
	systemErr := os.Remove(systemPath)

	if userErr != nil && !os.IsNotExist(userErr) {
		return fmt.Errorf("storage: delete user data: %w", userErr)
	}
	if systemErr != nil && !os.IsNotExist(systemErr) {
		logging.Warnf("storage: could not remove system mirror for %s: %v", username, systemErr)
	}
	if os.IsNotExist(userErr) && os.IsNotExist(systemErr) {
		return ErrUserNotFound
	}

	logging.Infof("storage: deleted user data for %s", username)
	return nil
}

func readTemplate(path string) (*UserTemplate, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	return parseTemplate(data)
}

// wireEncoding is the nested on-disk shape: {"encoding": [...], "pose": "...", "camera_type": "..."}.
type wireEncoding struct {
	Encoding   []float64 `json:"encoding"`
	Pose       string    `json:"pose"`
	CameraType string    `json:"camera_type"`
}

type wireTemplate struct {
	Username     string            `json:"username"`
	Encodings    json.RawMessage   `json:"encodings"`
	PoseLabels   []string          `json:"pose_labels"`
	IREncodings  []wireEncoding    `json:"ir_encodings"`
	RGBEncodings []wireEncoding    `json:"rgb_encodings"`
	IRCaptured   bool              `json:"ir_captured"`
	RGBCaptured  bool              `json:"rgb_captured"`
	CreatedAt    time.Time         `json:"created_at"`
	UpdatedAt    time.Time         `json:"updated_at"`
}

// parseTemplate normalizes both historical "encodings" shapes (flat arrays
// with a parallel pose_labels list, and nested {encoding,pose} objects) to
// the current FaceEncodingRecord bucket.
func parseTemplate(data []byte) (*UserTemplate, error) {
	var wire wireTemplate
	if err := json.Unmarshal(data, &wire); err != nil {
		return nil, fmt.Errorf("storage: parse template: %w", err)
	}

	encodings, err := normalizeEncodings(wire.Encodings, wire.PoseLabels)
	if err != nil {
		return nil, err
	}

	return &UserTemplate{
		Username:     wire.Username,
		Encodings:    encodings,
		IREncodings:  fromWire(wire.IREncodings),
		RGBEncodings: fromWire(wire.RGBEncodings),
		IRCaptured:   wire.IRCaptured,
		RGBCaptured:  wire.RGBCaptured,
		CreatedAt:    wire.CreatedAt,
		UpdatedAt:    wire.UpdatedAt,
	}, nil
}

func fromWire(in []wireEncoding) []FaceEncodingRecord {
	out := make([]FaceEncodingRecord, len(in))
	for i, w := range in {
		out[i] = FaceEncodingRecord{
			Embedding:  recognition.FaceEmbedding(w.Encoding),
			PoseLabel:  w.Pose,
			CameraType: w.CameraType,
		}
	}
	return out
}

func normalizeEncodings(raw json.RawMessage, poseLabels []string) ([]FaceEncodingRecord, error) {
	if len(raw) == 0 {
		return nil, nil
	}

	var nested []wireEncoding
	if err := json.Unmarshal(raw, &nested); err == nil {
		return fromWire(nested), nil
	}

	var flat [][]float64
	if err := json.Unmarshal(raw, &flat); err != nil {
		return nil, fmt.Errorf("storage: unrecognized encodings shape: %w", err)
	}

	labels := poseLabels
	if len(labels) < len(flat) {
		labels = make([]string, len(flat))
		for i := range labels {
			labels[i] = "center"
		}
	}

	out := make([]FaceEncodingRecord, len(flat))
	for i, vec := range flat {
		out[i] = FaceEncodingRecord{Embedding: recognition.FaceEmbedding(vec), PoseLabel: labels[i]}
	}
	return out, nil
}

// Save writes the user directory copy atomically (temp file + rename), then
// mirrors the exact bytes to the system directory if it's writable. Failure
// to mirror is non-fatal.
func (s *Store) Save(tmpl *UserTemplate) error {
	if err := os.MkdirAll(s.userDir, 0700); err != nil {
		return fmt.Errorf("storage: create user dir: %w", err)
	}

	data, err := json.MarshalIndent(toWire(tmpl), "", "  ")
	if err != nil {
		return fmt.Errorf("storage: marshal template: %w", err)
	}

	userPath := filepath.Join(s.userDir, tmpl.Username+".json")
	if err := atomicWrite(userPath, data); err != nil {
		return fmt.Errorf("storage: write template: %w", err)
	}

	if s.systemDir != "" {
		if err := os.MkdirAll(s.systemDir, 0700); err == nil {
			systemPath := filepath.Join(s.systemDir, tmpl.Username+".json")
			if err := atomicWrite(systemPath, data); err != nil {
				logging.Debugf("storage: could not mirror template to system dir: %v", err)
			}
		}
	}

	return nil
}

func toWire(tmpl *UserTemplate) wireTemplate {
	return wireTemplate{
		Username:     tmpl.Username,
		Encodings:    mustMarshalEncodings(tmpl.Encodings),
		IREncodings:  toWireSlice(tmpl.IREncodings),
		RGBEncodings: toWireSlice(tmpl.RGBEncodings),
		IRCaptured:   tmpl.IRCaptured,
		RGBCaptured:  tmpl.RGBCaptured,
		CreatedAt:    tmpl.CreatedAt,
		UpdatedAt:    tmpl.UpdatedAt,
	}
}

func toWireSlice(in []FaceEncodingRecord) []wireEncoding {
	out := make([]wireEncoding, len(in))
	for i, r := range in {
		out[i] = wireEncoding{Encoding: []float64(r.Embedding), Pose: r.PoseLabel, CameraType: r.CameraType}
	}
	return out
}

func mustMarshalEncodings(in []FaceEncodingRecord) json.RawMessage {
	raw, err := json.Marshal(toWireSlice(in))
	if err != nil {
		// Encodings are plain float64 slices; marshaling cannot fail.
		return json.RawMessage("[]")
	}
	return raw
}

// atomicWrite writes data to a temp file in the same directory as path, then
// renames it into place so a concurrent reader never observes a partial
// write.
func atomicWrite(path string, data []byte) error {
	dir := filepath.Dir(path)
	tmp, err := os.CreateTemp(dir, ".tmp-*")
	if err != nil {
		return err
	}
	tmpPath := tmp.Name()
	defer os.Remove(tmpPath)

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Close(); err != nil {
		return err
	}
	if err := os.Chmod(tmpPath, 0600); err != nil {
		return err
	}
	return os.Rename(tmpPath, path)
}

// NewTemplate builds an empty template, stamping both timestamps.
func NewTemplate(username string) *UserTemplate {
	now := time.Now()
	return &UserTemplate{Username: username, CreatedAt: now, UpdatedAt: now}
}

// --- Central obfuscated database (auth-side read path) ---

const centralDBPath = "/var/lib/glance/faces.json"

// secureFaceRecord is one user's entry in the central database: embeddings
// are base64-encoded, XOR-obfuscated byte strings, not cryptographically
// protected — this is opacity against casual file copying, not secrecy.
type secureFaceRecord struct {
	Username   string   `json:"username"`
	Encodings  []string `json:"encodings"`
	PoseLabels []string `json:"pose_labels"`
	IRCaptured bool     `json:"ir_captured"`
	CreatedAt  string   `json:"created_at"`
	UpdatedAt  string   `json:"updated_at"`
	Checksum   string   `json:"checksum"`
}

type centralDatabase struct {
	Version int                          `json:"version"`
	Faces   map[string]secureFaceRecord `json:"faces"`
}

// machineKey reads /etc/machine-id, falling back to a fixed string when
// unavailable (containers, some minimal installs) so the scheme degrades
// rather than breaking.
func machineKey() []byte {
	data, err := os.ReadFile("/etc/machine-id")
	if err != nil {
		return []byte("glance-default-key-12345")
	}
	return []byte(strings.TrimSpace(string(data)))
}

// deobfuscateEncoding reverses the repeating-XOR-then-base64 scheme: decode
// base64, XOR every byte against SHA256(key) cycled as a keystream, then
// read the result as little-endian float64s.
func deobfuscateEncoding(obfuscated string, key []byte) (recognition.FaceEmbedding, error) {
	keyHash := sha256.Sum256(key)

	data, err := base64.StdEncoding.DecodeString(obfuscated)
	if err != nil {
		return nil, fmt.Errorf("storage: decode obfuscated encoding: %w", err)
	}

	plain := make([]byte, len(data))
	for i, b := range data {
		plain[i] = b ^ keyHash[i%len(keyHash)]
	}

	if len(plain)%8 != 0 {
		return nil, errors.New("storage: obfuscated encoding length not a multiple of 8")
	}

	out := make(recognition.FaceEmbedding, len(plain)/8)
	for i := range out {
		bits := binary.LittleEndian.Uint64(plain[i*8 : i*8+8])
		out[i] = math.Float64frombits(bits)
	}
	return out, nil
}

// loadCentralDatabase reads and parses the optional system-wide obfuscated
// database. A missing file returns the read error; LoadAllUsers treats any
// error as "no central database" and goes on to the per-user JSON templates.
func loadCentralDatabase(path string) (*centralDatabase, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var db centralDatabase
	if err := json.Unmarshal(data, &db); err != nil {
		return nil, fmt.Errorf("storage: parse central database: %w", err)
	}
	return &db, nil
}

// LoadAllUsers loads every user's embeddings for auth-time matching: the
// central obfuscated database first (if present), then every per-user JSON
// template in userDir and systemDir not already covered by the central DB.
func LoadAllUsers(userDir, systemDir string) (map[string][]recognition.FaceEmbedding, error) {
	result := make(map[string][]recognition.FaceEmbedding)

	if db, err := loadCentralDatabase(centralDBPath); err == nil {
		key := machineKey()
		for username, record := range db.Faces {
			var embeddings []recognition.FaceEmbedding
			for _, enc := range record.Encodings {
				emb, err := deobfuscateEncoding(enc, key)
				if err != nil {
					logging.Errorf("storage: failed to deobfuscate encoding for %s: %v", username, err)
					continue
				}
				embeddings = append(embeddings, emb)
			}
			if len(embeddings) > 0 {
				result[username] = embeddings
			}
		}
	}

	store := NewStore(userDir, systemDir)
	for _, dir := range []string{userDir, systemDir} {
		entries, err := os.ReadDir(dir)
		if err != nil {
			continue
		}
		for _, entry := range entries {
			if entry.IsDir() || !strings.HasSuffix(entry.Name(), ".json") {
				continue
			}
			username := strings.TrimSuffix(entry.Name(), ".json")
			if _, already := result[username]; already {
				continue
			}
			tmpl, err := store.Load(username)
			if err != nil {
				continue
			}
			result[username] = tmpl.AllEmbeddings()
		}
	}

	return result, nil
}
