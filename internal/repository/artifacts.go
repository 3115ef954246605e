package repository

import (
	"time"

	bolt "go.etcd.io/bbolt"

	"github.com/mgxlabs/orchestrator/internal/mgxerr"
	"github.com/mgxlabs/orchestrator/internal/types"
)

// artifactBucket is the single bbolt bucket artifact blobs live in,
// keyed by "<run_id>/<artifact_name>". Only this key and the blob's
// metadata (type, size) are mirrored into the SQL artifacts table;
// content never touches the relational store. Adapted from
// evalgo-org-eve's db/bolt.DB.PutJSON/GetJSON bucket pattern, repurposed
// for binary blobs via a raw Put/Get instead of a JSON envelope.
const artifactBucket = "artifacts"

// ArtifactBlobStore is the bbolt-backed blob store for artifact bodies
// (diffs, manifests, review text), keyed by run id and artifact name.
type ArtifactBlobStore struct {
	db *bolt.DB
}

// OpenArtifactBlobStore opens (creating if absent) the bbolt database at
// path and ensures the artifact bucket exists.
func OpenArtifactBlobStore(path string) (*ArtifactBlobStore, error) {
	db, err := bolt.Open(path, 0o600, &bolt.Options{Timeout: 1 * time.Second})
	if err != nil {
		return nil, mgxerr.Wrap(types.ErrInternal, "open artifact blob store", err)
	}
	err = db.Update(func(tx *bolt.Tx) error {
		_, err := tx.CreateBucketIfNotExists([]byte(artifactBucket))
		return err
	})
	if err != nil {
		db.Close()
		return nil, mgxerr.Wrap(types.ErrInternal, "create artifact bucket", err)
	}
	return &ArtifactBlobStore{db: db}, nil
}

func blobKey(runID, name string) []byte {
	return []byte(runID + "/" + name)
}

// Put stores content under runID/name, overwriting any existing blob at
// that key.
func (s *ArtifactBlobStore) Put(runID, name string, content []byte) error {
	return s.db.Update(func(tx *bolt.Tx) error {
		b := tx.Bucket([]byte(artifactBucket))
		return b.Put(blobKey(runID, name), content)
	})
}

// Get returns the blob stored under runID/name, or an ErrInvalidInput
// error if absent.
func (s *ArtifactBlobStore) Get(runID, name string) ([]byte, error) {
	var content []byte
	err := s.db.View(func(tx *bolt.Tx) error {
		b := tx.Bucket([]byte(artifactBucket))
		data := b.Get(blobKey(runID, name))
		if data == nil {
			return mgxerr.New(types.ErrInvalidInput, "artifact blob not found: "+runID+"/"+name)
		}
		content = make([]byte, len(data))
		copy(content, data)
		return nil
	})
	if err != nil {
		return nil, err
	}
	return content, nil
}

// DeleteRun removes the blob stored under runID for each of names.
func (s *ArtifactBlobStore) DeleteRun(runID string, names []string) error {
	return s.db.Update(func(tx *bolt.Tx) error {
		b := tx.Bucket([]byte(artifactBucket))
		for _, name := range names {
			if err := b.Delete(blobKey(runID, name)); err != nil {
				return err
			}
		}
		return nil
	})
}

func (s *ArtifactBlobStore) Close() error { return s.db.Close() }
