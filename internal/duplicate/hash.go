package duplicate

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"io"

	"golang.org/x/sync/errgroup"

	"videoanalyzer/internal/model"
)

// fanOutHash runs fn over every record with bounded concurrency, stopping
// early and propagating the first error via errgroup.WithContext.
func fanOutHash(ctx context.Context, limit int, records []model.VideoRecord, fn func(ctx context.Context, rec model.VideoRecord) error) error {
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(limit)
	for _, rec := range records {
		rec := rec
		g.Go(func() error {
			return fn(gctx, rec)
		})
	}
	return g.Wait()
}

// partialHash hashes the leading window plus, for files larger than two
// windows, the midpoint and trailing windows — spec §4.5's three-window
// scheme. Files of at most 2*windowSize are hashed from their leading
// window alone, since midpoint/trailing windows would overlap it.
func (d *Detector) partialHash(path string) (string, error) {
	f, err := d.fs.Open(path)
	if err != nil {
		return "", err
	}
	defer f.Close()

	info, err := f.Stat()
	if err != nil {
		return "", err
	}
	size := info.Size()

	h := sha256.New()
	if size <= 2*d.windowSize {
		n := size
		if n > d.windowSize {
			n = d.windowSize
		}
		if _, err := io.CopyN(h, f, n); err != nil && err != io.EOF {
			return "", err
		}
		return hex.EncodeToString(h.Sum(nil)), nil
	}

	if err := hashWindow(h, f, 0, d.windowSize); err != nil {
		return "", err
	}
	if err := hashWindow(h, f, size/2, d.windowSize); err != nil {
		return "", err
	}
	if err := hashWindow(h, f, size-d.windowSize, d.windowSize); err != nil {
		return "", err
	}
	return hex.EncodeToString(h.Sum(nil)), nil
}

func hashWindow(h io.Writer, f io.ReadSeeker, offset, size int64) error {
	if _, err := f.Seek(offset, io.SeekStart); err != nil {
		return err
	}
	_, err := io.CopyN(h, f, size)
	return err
}

// fullHash hashes an entire file in 1MiB chunks, honoring ctx cancellation
// between chunks so a cancelled detection run doesn't keep reading.
func (d *Detector) fullHash(ctx context.Context, path string) (string, error) {
	f, err := d.fs.Open(path)
	if err != nil {
		return "", err
	}
	defer f.Close()

	h := sha256.New()
	buf := make([]byte, 1<<20)
	for {
		select {
		case <-ctx.Done():
			return "", ctx.Err()
		default:
		}
		n, readErr := f.Read(buf)
		if n > 0 {
			h.Write(buf[:n])
		}
		if readErr == io.EOF {
			break
		}
		if readErr != nil {
			return "", readErr
		}
	}
	return hex.EncodeToString(h.Sum(nil)), nil
}
