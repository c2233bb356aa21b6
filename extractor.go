package reviewloader

import (
	"context"
	"io"

	"cloud.google.com/go/storage"
	"github.com/rs/zerolog/log"
	"golang.org/x/xerrors"
)

// extractor extracts data from source such as Cloud Storage.
type extractor interface {
	extract(context.Context, Event) (io.Reader, func(), error)
}

type defaultExtractor struct {
	storage *storage.Client
}

func newDefaultExtractor(s *storage.Client) extractor {
	return &defaultExtractor{storage: s}
}

func (e *defaultExtractor) extract(ctx context.Context, ev Event) (io.Reader, func(), error) {
	l := log.Ctx(ctx)

	obj := e.storage.Bucket(ev.Bucket).Object(ev.Name)
	r, err := obj.NewReader(ctx)
	if err != nil {
		return nil, nil, xerrors.Errorf("failed to get reader of %s: %w", ev.FullPath(), err)
	}
	l.Debug().Str("object", ev.FullPath()).Int64("size", r.Attrs.Size).Msg("object opened")

	return r, func() { r.Close() }, nil
}
