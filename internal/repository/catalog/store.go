// Package catalog stores podcast and episode records in a bbolt file.
package catalog

import (
	"context"
	"encoding/binary"
	"encoding/json"
	"fmt"
	"time"

	"go.etcd.io/bbolt"
	"go.uber.org/zap"

	"github.com/becutandavid/podcasts-backend/internal/domain"
	"github.com/becutandavid/podcasts-backend/internal/domain/podcast"
)

var (
	bucketPodcasts = []byte("podcasts")
	bucketEpisodes = []byte("episodes")
)

// Store is the bbolt-backed podcast catalog.
type Store struct {
	db     *bbolt.DB
	logger *zap.Logger
}

// Open opens or creates the catalog file at path.
func Open(path string, logger *zap.Logger) (*Store, error) {
	db, err := bbolt.Open(path, 0o600, &bbolt.Options{Timeout: 2 * time.Second})
	if err != nil {
		return nil, fmt.Errorf("open catalog %s: %w", path, err)
	}

	err = db.Update(func(tx *bbolt.Tx) error {
		for _, b := range [][]byte{bucketPodcasts, bucketEpisodes} {
			if _, err := tx.CreateBucketIfNotExists(b); err != nil {
				return fmt.Errorf("create bucket %s: %w", b, err)
			}
		}
		return nil
	})
	if err != nil {
		_ = db.Close()
		return nil, err
	}

	return &Store{db: db, logger: logger}, nil
}

// Close releases the catalog file.
func (s *Store) Close() error {
	return s.db.Close()
}

// PutPodcasts validates and stores podcasts in one transaction.
func (s *Store) PutPodcasts(_ context.Context, podcasts []podcast.Podcast) error {
	for _, p := range podcasts {
		if err := p.Validate(); err != nil {
			return err
		}
	}
	return s.db.Update(func(tx *bbolt.Tx) error {
		b := tx.Bucket(bucketPodcasts)
		for _, p := range podcasts {
			if err := putJSON(b, p.ID, p); err != nil {
				return fmt.Errorf("put podcast %d: %w", p.ID, err)
			}
		}
		return nil
	})
}

// PutEpisodes validates and stores episodes in one transaction.
func (s *Store) PutEpisodes(_ context.Context, episodes []podcast.Episode) error {
	for _, e := range episodes {
		if err := e.Validate(); err != nil {
			return err
		}
	}
	return s.db.Update(func(tx *bbolt.Tx) error {
		b := tx.Bucket(bucketEpisodes)
		for _, e := range episodes {
			if err := putJSON(b, e.ID, e); err != nil {
				return fmt.Errorf("put episode %d: %w", e.ID, err)
			}
		}
		return nil
	})
}

// Podcast returns a podcast by id.
func (s *Store) Podcast(_ context.Context, id int64) (podcast.Podcast, error) {
	var p podcast.Podcast
	err := s.db.View(func(tx *bbolt.Tx) error {
		return getJSON(tx.Bucket(bucketPodcasts), id, &p)
	})
	if err != nil {
		return podcast.Podcast{}, fmt.Errorf("podcast %d: %w", id, err)
	}
	return p, nil
}

// Episode returns an episode by id.
func (s *Store) Episode(_ context.Context, id int64) (podcast.Episode, error) {
	var e podcast.Episode
	err := s.db.View(func(tx *bbolt.Tx) error {
		return getJSON(tx.Bucket(bucketEpisodes), id, &e)
	})
	if err != nil {
		return podcast.Episode{}, fmt.Errorf("episode %d: %w", id, err)
	}
	return e, nil
}

// PodcastFromEpisode returns the podcast an episode belongs to.
func (s *Store) PodcastFromEpisode(_ context.Context, episodeID int64) (podcast.Podcast, error) {
	var p podcast.Podcast
	err := s.db.View(func(tx *bbolt.Tx) error {
		var e podcast.Episode
		if err := getJSON(tx.Bucket(bucketEpisodes), episodeID, &e); err != nil {
			return fmt.Errorf("episode %d: %w", episodeID, err)
		}
		if err := getJSON(tx.Bucket(bucketPodcasts), e.PodcastID, &p); err != nil {
			return fmt.Errorf("podcast %d of episode %d: %w", e.PodcastID, episodeID, err)
		}
		return nil
	})
	if err != nil {
		return podcast.Podcast{}, err
	}
	return p, nil
}

// Episodes returns every episode ordered by id.
func (s *Store) Episodes(_ context.Context) ([]podcast.Episode, error) {
	var out []podcast.Episode
	err := s.db.View(func(tx *bbolt.Tx) error {
		return tx.Bucket(bucketEpisodes).ForEach(func(k, v []byte) error {
			var e podcast.Episode
			if err := json.Unmarshal(v, &e); err != nil {
				return fmt.Errorf("decode episode %d: %w", decodeKey(k), err)
			}
			out = append(out, e)
			return nil
		})
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

// Count returns the number of stored podcasts and episodes.
func (s *Store) Count() (podcasts, episodes int, err error) {
	err = s.db.View(func(tx *bbolt.Tx) error {
		podcasts = tx.Bucket(bucketPodcasts).Stats().KeyN
		episodes = tx.Bucket(bucketEpisodes).Stats().KeyN
		return nil
	})
	return podcasts, episodes, err
}

func putJSON(b *bbolt.Bucket, id int64, v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		return err
	}
	return b.Put(encodeKey(id), data)
}

func getJSON(b *bbolt.Bucket, id int64, v any) error {
	data := b.Get(encodeKey(id))
	if data == nil {
		return domain.ErrNotFound
	}
	return json.Unmarshal(data, v)
}

// big-endian keys keep bucket iteration in id order
func encodeKey(id int64) []byte {
	k := make([]byte, 8)
	binary.BigEndian.PutUint64(k, uint64(id))
	return k
}

func decodeKey(k []byte) int64 {
	return int64(binary.BigEndian.Uint64(k))
}
