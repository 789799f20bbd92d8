package resolve

import (
	"bytes"
	"encoding/binary"
	"encoding/json"
	"os"
	"path/filepath"
	"time"

	"github.com/boltdb/bolt"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
)

// metadataCache is a persistent BoltDB cache of package metadata fetched
// from repositories. Stored values are timestamped, and the `epoch` field
// limits the age of returned values. Database access methods are safe for
// concurrent use with each other (excluding close).
//
// Layout: one top-level bucket per package and owning repository:
//
//	Bucket: "pkg:<repo>:<id>"
//
// holding timestamped sub-buckets for properties and declared relations:
//
//	Sub-Bucket: "props:<timestamp>"
//	Sub-Bucket: "rels:<timestamp>"
//	Key: "json"
//	Value: PackageProperties / cachedRelations as JSON
type metadataCache struct {
	db     *bolt.DB
	epoch  int64 // getters will not return values older than this unix timestamp
	logger *logrus.Logger
}

// cachedRelations is the stored shape of one package's declared relations.
type cachedRelations struct {
	Relations   PackageRelations       `json:"relations,omitempty"`
	Conditional []ConditionalRelations `json:"conditional,omitempty"`
}

// newMetadataCache opens (creating if necessary) the BoltDB file under the
// cache directory.
func newMetadataCache(cachedir string, epoch int64, logger *logrus.Logger) (*metadataCache, error) {
	if fi, err := os.Stat(cachedir); os.IsNotExist(err) {
		if err := os.MkdirAll(cachedir, os.ModeDir|os.ModePerm); err != nil {
			return nil, errors.Wrapf(err, "failed to create cache directory: %s", cachedir)
		}
	} else if err != nil {
		return nil, errors.Wrapf(err, "failed to check cache directory: %s", cachedir)
	} else if !fi.IsDir() {
		return nil, errors.Errorf("cache path is not a directory: %s", cachedir)
	}
	path := filepath.Join(cachedir, "metadata.db")
	db, err := bolt.Open(path, 0600, &bolt.Options{Timeout: 1 * time.Second})
	if err != nil {
		return nil, err
	}
	return &metadataCache{
		db:     db,
		epoch:  epoch,
		logger: logger,
	}, nil
}

// close releases all database resources.
// Must not be called concurrently with any other methods.
func (c *metadataCache) close() error {
	return errors.Wrapf(c.db.Close(), "error closing Bolt database %q", c.db.Path())
}

// setEntry caches the properties and relations of the entry repo serves for
// id. Failures are logged, never fatal; the cache is best-effort.
func (c *metadataCache) setEntry(repo, id string, e IndexEntry) {
	err := c.updateBucket(pkgBucketName(repo, id), func(b *bolt.Bucket) error {
		if err := prefixDelete(b, "props:"); err != nil {
			return err
		}
		props, err := b.CreateBucket(timestampedKey("props:", time.Now()))
		if err != nil {
			return err
		}
		v, err := json.Marshal(e.Properties)
		if err != nil {
			return errors.Wrap(err, "failed to encode properties")
		}
		if err := props.Put([]byte("json"), v); err != nil {
			return errors.Wrap(err, "failed to put properties")
		}

		if err := prefixDelete(b, "rels:"); err != nil {
			return err
		}
		rels, err := b.CreateBucket(timestampedKey("rels:", time.Now()))
		if err != nil {
			return err
		}
		v, err = json.Marshal(cachedRelations{
			Relations:   e.Relations,
			Conditional: e.ConditionalRelations,
		})
		if err != nil {
			return errors.Wrap(err, "failed to encode relations")
		}
		return errors.Wrap(rels.Put([]byte("json"), v), "failed to put relations")
	})
	if err != nil {
		c.logger.WithError(err).Warnf("failed to cache metadata for package %q", id)
	}
}

// getProperties returns the cached properties for id as served by repo, if
// a fresh enough entry exists.
func (c *metadataCache) getProperties(repo, id string) (props PackageProperties, ok bool) {
	err := c.viewBucket(pkgBucketName(repo, id), func(b *bolt.Bucket) error {
		pb := findLatestValid(b, "props:", c.epoch)
		if pb == nil {
			return nil
		}
		v := pb.Get([]byte("json"))
		if len(v) == 0 {
			return nil
		}
		if err := json.Unmarshal(v, &props); err != nil {
			return errors.Wrap(err, "failed to decode properties")
		}
		ok = true
		return nil
	})
	if err != nil {
		c.logger.WithError(err).Warnf("failed to get cached properties for package %q", id)
		return PackageProperties{}, false
	}
	return
}

// getRelations returns the cached declared relations for id as served by
// repo, if a fresh enough entry exists.
func (c *metadataCache) getRelations(repo, id string) (rels PackageRelations, cond []ConditionalRelations, ok bool) {
	err := c.viewBucket(pkgBucketName(repo, id), func(b *bolt.Bucket) error {
		rb := findLatestValid(b, "rels:", c.epoch)
		if rb == nil {
			return nil
		}
		v := rb.Get([]byte("json"))
		if len(v) == 0 {
			return nil
		}
		var stored cachedRelations
		if err := json.Unmarshal(v, &stored); err != nil {
			return errors.Wrap(err, "failed to decode relations")
		}
		rels = stored.Relations
		cond = stored.Conditional
		ok = true
		return nil
	})
	if err != nil {
		c.logger.WithError(err).Warnf("failed to get cached relations for package %q", id)
		return PackageRelations{}, nil, false
	}
	return
}

func pkgBucketName(repo, id string) string {
	return "pkg:" + repo + ":" + id
}

// viewBucket executes view with the named bucket, if it exists.
func (c *metadataCache) viewBucket(name string, view func(b *bolt.Bucket) error) error {
	return c.db.View(func(tx *bolt.Tx) error {
		b := tx.Bucket([]byte(name))
		if b == nil {
			return nil
		}
		return view(b)
	})
}

// updateBucket executes update with the named bucket, creating it first if
// necessary.
func (c *metadataCache) updateBucket(name string, update func(b *bolt.Bucket) error) error {
	return c.db.Update(func(tx *bolt.Tx) error {
		b, err := tx.CreateBucketIfNotExists([]byte(name))
		if err != nil {
			return errors.Wrapf(err, "failed to create bucket: %s", name)
		}
		return update(b)
	})
}

// timestampedKey returns a prefixed key with a trailing timestamp.
func timestampedKey(pre string, t time.Time) []byte {
	b := make([]byte, len(pre)+8)
	copy(b, pre)
	binary.BigEndian.PutUint64(b[len(pre):], uint64(t.Unix()))
	return b
}

// boltTxOrBucket is a minimal interface satisfied by bolt.Tx and bolt.Bucket.
type boltTxOrBucket interface {
	Cursor() *bolt.Cursor
	DeleteBucket([]byte) error
	Bucket([]byte) *bolt.Bucket
}

// prefixDelete prefix scans and deletes each bucket.
func prefixDelete(tob boltTxOrBucket, pre string) error {
	c := tob.Cursor()
	p := []byte(pre)
	for k, _ := c.Seek(p); bytes.HasPrefix(k, p); k, _ = c.Next() {
		if err := tob.DeleteBucket(k); err != nil {
			return errors.Wrapf(err, "failed to delete bucket: %s", k)
		}
	}
	return nil
}

// findLatestValid prefix scans for the latest bucket which is timestamped
// >= epoch, or returns nil if none exists.
func findLatestValid(tob boltTxOrBucket, pre string, epoch int64) *bolt.Bucket {
	c := tob.Cursor()
	p := []byte(pre)
	var latest []byte
	for k, _ := c.Seek(p); bytes.HasPrefix(k, p); k, _ = c.Next() {
		latest = k
	}
	if latest == nil {
		return nil
	}
	ts := bytes.TrimPrefix(latest, p)
	if len(ts) != 8 {
		return nil
	}
	if int64(binary.BigEndian.Uint64(ts)) < epoch {
		return nil
	}
	return tob.Bucket(latest)
}
