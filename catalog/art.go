package catalog

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"image"
	"image/png"
	"io/fs"
	"os"
	"path/filepath"

	_ "image/jpeg"

	"github.com/rs/zerolog/log"
	"github.com/samber/lo"
	"golang.org/x/sync/errgroup"
)

const prefetchWorkers = 4

// Decoder turns encoded image bytes into an image
type Decoder func(data []byte) (image.Image, error)

func decodeStd(data []byte) (image.Image, error) {
	img, _, err := image.Decode(bytes.NewReader(data))
	return img, err
}

func (c *Catalog) artPath(id string) string {
	return filepath.Join(c.opts.ArtDir, id+".png")
}

// CardArt returns the card's official art. It is downloaded once and kept as
// PNG in the art directory. Concurrent requests for one id share a download.
func (c *Catalog) CardArt(ctx context.Context, id string) (image.Image, error) {
	art, err, _ := c.art.Do(id, func() (any, error) {
		return c.loadArt(ctx, id)
	})
	if err != nil {
		return nil, err
	}

	return art.(image.Image), nil
}

func (c *Catalog) loadArt(ctx context.Context, id string) (image.Image, error) {
	path := c.artPath(id)

	contents, err := os.ReadFile(path)
	if err == nil {
		img, _, err := image.Decode(bytes.NewReader(contents))
		if err == nil {
			return img, nil
		}
		log.Warn().Err(err).Str("path", path).Msg("cached card art unreadable, downloading again")
	} else if !errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("reading card art %s: %w", id, err)
	}

	data, err := c.get(ctx, fmt.Sprintf(c.opts.ImageURL, id), "image/*")
	if err != nil {
		return nil, fmt.Errorf("downloading card art %s: %w", id, err)
	}

	img, err := c.opts.Decode(data)
	if err != nil {
		return nil, fmt.Errorf("decoding card art %s: %w", id, err)
	}

	var encoded bytes.Buffer
	if err := png.Encode(&encoded, img); err != nil {
		return nil, err
	}
	if err := writeFile(path, encoded.Bytes()); err != nil {
		log.Warn().Err(err).Str("path", path).Msg("could not cache card art")
	}

	log.Debug().Str("id", id).Msg("card art downloaded")
	return img, nil
}

// PrefetchArt fetches the art of every id with a few parallel downloads
func (c *Catalog) PrefetchArt(ctx context.Context, ids []string) error {
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(prefetchWorkers)

	for _, id := range lo.Uniq(ids) {
		g.Go(func() error {
			_, err := c.CardArt(gctx, id)
			return err
		})
	}

	return g.Wait()
}
