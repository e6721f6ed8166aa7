package catalog

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"

	"go.uber.org/zap"
	"gopkg.in/yaml.v3"

	"github.com/becutandavid/podcasts-backend/internal/domain/podcast"
)

// File is the YAML layout of a catalog import file.
type File struct {
	Podcasts []podcast.Podcast `yaml:"podcasts"`
	Episodes []podcast.Episode `yaml:"episodes"`
}

// Import decodes a YAML catalog file from r and stores its records.
// It returns the episodes it stored.
func (s *Store) Import(ctx context.Context, r io.Reader) ([]podcast.Episode, error) {
	var f File
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(&f); err != nil {
		if errors.Is(err, io.EOF) {
			return []podcast.Episode{}, nil
		}
		return nil, fmt.Errorf("decode catalog: %w", err)
	}

	if err := s.PutPodcasts(ctx, f.Podcasts); err != nil {
		return nil, err
	}
	if err := s.PutEpisodes(ctx, f.Episodes); err != nil {
		return nil, err
	}

	s.logger.Debug("Imported catalog",
		zap.Int("podcasts", len(f.Podcasts)),
		zap.Int("episodes", len(f.Episodes)),
	)
	if f.Episodes == nil {
		return []podcast.Episode{}, nil
	}
	return f.Episodes, nil
}

// ImportFile imports the YAML catalog file at path.
func (s *Store) ImportFile(ctx context.Context, path string) ([]podcast.Episode, error) {
	fh, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", path, err)
	}
	defer fh.Close()

	eps, err := s.Import(ctx, fh)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return eps, nil
}
