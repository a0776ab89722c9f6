package detection

import (
	"encoding/binary"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog/log"
	bolt "go.etcd.io/bbolt"

	"github.com/sohell-ranaa/ssh-guardian-2.0-sub001/internal/domain"
)

var (
	supervisedBucket   = []byte("supervised")
	unsupervisedBucket = []byte("unsupervised")
)

type RegistryConfig struct {
	DBPath string
}

func DefaultRegistryConfig() RegistryConfig {
	return RegistryConfig{
		DBPath: "./data/models.db",
	}
}

// ModelRegistry persists versioned model artifacts in BoltDB and serves
// the active pair as an immutable snapshot behind an atomic pointer.
// Keys are big-endian encoded versions, so the bucket cursor's last entry
// is always the latest artifact of a kind.
//
// Reload validates before swapping: a bad artifact leaves the previous
// snapshot serving and returns the error.
type ModelRegistry struct {
	db     *bolt.DB
	dbPath string

	snapshot atomic.Pointer[ModelSnapshot]
	loadMu   sync.Mutex
	count    atomic.Int64
}

func NewModelRegistry(config RegistryConfig) (*ModelRegistry, error) {
	if config.DBPath == "" {
		config.DBPath = DefaultRegistryConfig().DBPath
	}

	dir := filepath.Dir(config.DBPath)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create registry directory: %w", err)
	}

	db, err := bolt.Open(config.DBPath, 0600, &bolt.Options{
		Timeout:    time.Second,
		NoGrowSync: true,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to open model registry: %w", err)
	}

	var count int64
	err = db.Update(func(tx *bolt.Tx) error {
		for _, name := range [][]byte{supervisedBucket, unsupervisedBucket} {
			b, err := tx.CreateBucketIfNotExists(name)
			if err != nil {
				return err
			}
			count += int64(b.Stats().KeyN)
		}
		return nil
	})
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to create registry buckets: %w", err)
	}

	r := &ModelRegistry{db: db, dbPath: config.DBPath}
	r.count.Store(count)

	if err := r.Reload(); err != nil {
		db.Close()
		return nil, err
	}

	log.Info().
		Str("db_path", config.DBPath).
		Int64("artifacts", count).
		Bool("ml_enabled", r.MLEnabled()).
		Msg("Model registry initialized")

	return r, nil
}

func versionKey(version uint64) []byte {
	key := make([]byte, 8)
	binary.BigEndian.PutUint64(key, version)
	return key
}

func kindBucket(kind ModelKind) []byte {
	if kind == ModelSupervised {
		return supervisedBucket
	}
	return unsupervisedBucket
}

// Install validates and stores an artifact. Duplicate versions are
// rejected; versions older than the current latest are stored but will
// not be selected. Install does not activate anything; call Reload to
// swap the active snapshot.
func (r *ModelRegistry) Install(artifact *ModelArtifact) error {
	if err := ValidateArtifact(artifact); err != nil {
		return fmt.Errorf("artifact rejected: %w", err)
	}

	data, err := json.Marshal(artifact)
	if err != nil {
		return fmt.Errorf("failed to encode artifact: %w", err)
	}

	err = r.db.Update(func(tx *bolt.Tx) error {
		b := tx.Bucket(kindBucket(artifact.Kind))
		if b == nil {
			return fmt.Errorf("bucket not found")
		}

		key := versionKey(artifact.Version)
		if b.Get(key) != nil {
			return fmt.Errorf("%s model version %d already installed", artifact.Kind, artifact.Version)
		}

		if latest, _ := b.Cursor().Last(); latest != nil {
			if current := binary.BigEndian.Uint64(latest); artifact.Version < current {
				log.Warn().
					Str("kind", string(artifact.Kind)).
					Uint64("version", artifact.Version).
					Uint64("latest", current).
					Msg("Installing artifact older than latest; it will not be selected")
			}
		}

		return b.Put(key, data)
	})
	if err != nil {
		return err
	}

	r.count.Add(1)
	log.Info().
		Str("kind", string(artifact.Kind)).
		Str("algorithm", artifact.Algorithm).
		Uint64("version", artifact.Version).
		Msg("Model artifact installed")
	return nil
}

// InstallFromFile reads a JSON artifact from disk and installs it.
func (r *ModelRegistry) InstallFromFile(path string) (*ModelArtifact, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read artifact file: %w", err)
	}

	var artifact ModelArtifact
	if err := json.Unmarshal(data, &artifact); err != nil {
		return nil, fmt.Errorf("failed to decode artifact file: %w", err)
	}

	if err := r.Install(&artifact); err != nil {
		return nil, err
	}
	return &artifact, nil
}

func (r *ModelRegistry) latest(tx *bolt.Tx, kind ModelKind) (*ModelArtifact, error) {
	b := tx.Bucket(kindBucket(kind))
	if b == nil {
		return nil, nil
	}

	_, value := b.Cursor().Last()
	if value == nil {
		return nil, nil
	}

	// bolt values are only valid inside the transaction
	data := make([]byte, len(value))
	copy(data, value)

	var artifact ModelArtifact
	if err := json.Unmarshal(data, &artifact); err != nil {
		return nil, fmt.Errorf("corrupt %s artifact: %w", kind, err)
	}
	if err := ValidateArtifact(&artifact); err != nil {
		return nil, fmt.Errorf("stored %s artifact no longer valid: %w", kind, err)
	}
	return &artifact, nil
}

// Reload selects the latest artifact of each kind, rebuilds the model
// snapshot and swaps it atomically. Scoring calls holding the previous
// snapshot finish on it; new calls see the new one. On error the active
// snapshot is left untouched.
func (r *ModelRegistry) Reload() error {
	r.loadMu.Lock()
	defer r.loadMu.Unlock()

	var supervised, unsupervised *ModelArtifact
	err := r.db.View(func(tx *bolt.Tx) error {
		var err error
		if supervised, err = r.latest(tx, ModelSupervised); err != nil {
			return err
		}
		unsupervised, err = r.latest(tx, ModelUnsupervised)
		return err
	})
	if err != nil {
		return fmt.Errorf("model reload refused: %w", err)
	}

	snap := &ModelSnapshot{loadedAt: time.Now()}
	if supervised != nil {
		snap.supervised = newLogisticModel(supervised)
		snap.supervisedVersion = supervised.Version
	}
	if unsupervised != nil {
		snap.unsupervised = newZScoreModel(unsupervised)
		snap.unsupervisedVersion = unsupervised.Version
	}

	r.snapshot.Store(snap)

	log.Info().
		Bool("ml_enabled", snap.MLEnabled()).
		Uint64("supervised_version", snap.supervisedVersion).
		Uint64("unsupervised_version", snap.unsupervisedVersion).
		Msg("Model snapshot activated")
	return nil
}

// Active returns the current snapshot. May report MLEnabled()==false when
// no supervised artifact has been installed yet.
func (r *ModelRegistry) Active() *ModelSnapshot {
	return r.snapshot.Load()
}

func (r *ModelRegistry) MLEnabled() bool {
	return r.Active().MLEnabled()
}

// Stats fills the model-related fields of an EngineStats value.
func (r *ModelRegistry) Stats(stats *domain.EngineStats) {
	snap := r.Active()
	stats.SchemaVersion = domain.FeatureSchemaVersion
	stats.MLEnabled = snap.MLEnabled()
	stats.SupervisedLoaded = snap.MLEnabled()
	stats.UnsupervisedLoaded = snap.HasUnsupervised()
	stats.SupervisedVersion = snap.SupervisedVersion()
	stats.UnsupervisedVersion = snap.UnsupervisedVersion()
}

// List returns every stored artifact of a kind in version order.
func (r *ModelRegistry) List(kind ModelKind) ([]ModelArtifact, error) {
	var artifacts []ModelArtifact
	err := r.db.View(func(tx *bolt.Tx) error {
		b := tx.Bucket(kindBucket(kind))
		if b == nil {
			return nil
		}
		return b.ForEach(func(_, value []byte) error {
			var artifact ModelArtifact
			if err := json.Unmarshal(value, &artifact); err != nil {
				return fmt.Errorf("corrupt %s artifact: %w", kind, err)
			}
			artifacts = append(artifacts, artifact)
			return nil
		})
	})
	if err != nil {
		return nil, err
	}
	return artifacts, nil
}

func (r *ModelRegistry) Count() int64 {
	return r.count.Load()
}

func (r *ModelRegistry) Close() error {
	if r.db != nil {
		log.Info().Int64("artifacts", r.count.Load()).Msg("Closing model registry")
		return r.db.Close()
	}
	return nil
}
