package soundcloud

import (
	"bufio"
	"bytes"
	"context"
	"io"
	"net/http"
	"os"
	"path/filepath"

	"github.com/cockroachdb/errors"
	zlog "github.com/rs/zerolog/log"
)

// chunkSize is the number of bytes copied between cancellation checks.
const chunkSize = 1024

var pngSignature = []byte("\x89PNG\r\n\x1a\n")

// ErrNotPNG is returned when a soundwave payload is not a PNG image.
var ErrNotPNG = errors.New("payload is not a PNG image")

// ProgressFunc receives the bytes written so far and the expected total (-1 if unknown).
type ProgressFunc func(written, total int64)

// DownloadFile streams url into dest. The body is written to a sibling
// ".part" file and renamed into place only after a complete, successful copy,
// so dest never holds a truncated image. Cancellation of ctx is checked between
// chunks. progress may be nil.
func (c *Client) DownloadFile(ctx context.Context, rawURL, dest string, progress ProgressFunc) (int64, error) {
	if rawURL == "" || dest == "" {
		return 0, errors.New("url and destination are required")
	}

	resp, body, err := c.get(ctx, rawURL)
	if err != nil {
		return 0, errors.Wrap(err, "failed to download soundwave")
	}
	defer body.Close()

	if resp.StatusCode != http.StatusOK {
		zlog.Error().Msgf("HTTP status %d downloading soundwave: url=%s", resp.StatusCode, redact(rawURL))
		return 0, errors.Mark(&StatusError{Code: resp.StatusCode, URL: redact(rawURL)}, ErrHTTPStatus)
	}

	if err := os.MkdirAll(filepath.Dir(dest), 0755); err != nil {
		return 0, errors.Wrap(err, "failed to create soundwave directory")
	}

	part := dest + ".part"
	out, err := os.OpenFile(part, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0644)
	if err != nil {
		return 0, errors.Wrap(err, "failed to create soundwave file")
	}

	written, err := copyChunks(ctx, out, bufio.NewReaderSize(body, chunkSize), resp.ContentLength, progress)
	if err == nil {
		err = out.Sync()
	}
	if closeErr := out.Close(); err == nil && closeErr != nil {
		err = errors.Wrap(closeErr, "failed to close soundwave file")
	}
	if err == nil {
		if renameErr := os.Rename(part, dest); renameErr != nil {
			err = errors.Wrap(renameErr, "failed to move soundwave into place")
		}
	}
	if err != nil {
		if rmErr := os.Remove(part); rmErr != nil && !os.IsNotExist(rmErr) {
			zlog.Warn().Err(rmErr).Msgf("failed to remove partial soundwave: path=%s", part)
		}
		return 0, body.mapErr(err)
	}

	zlog.Info().Msgf("downloaded soundwave: path=%s size=%d", dest, written)
	return written, nil
}

// copyChunks copies r to w in chunkSize pieces, checking ctx before each chunk.
func copyChunks(ctx context.Context, w io.Writer, r *bufio.Reader, total int64, progress ProgressFunc) (int64, error) {
	head, err := r.Peek(len(pngSignature))
	if err != nil || !bytes.Equal(head, pngSignature) {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return 0, ctxErr
		}
		return 0, ErrNotPNG
	}

	buf := make([]byte, chunkSize)
	var written int64
	for {
		if err := ctx.Err(); err != nil {
			return written, errors.Wrap(err, "download canceled")
		}

		n, readErr := r.Read(buf)
		if n > 0 {
			if _, err := w.Write(buf[:n]); err != nil {
				return written, errors.Wrap(err, "failed to write soundwave file")
			}
			written += int64(n)
			if progress != nil {
				progress(written, total)
			}
		}
		if readErr != nil {
			if errors.Is(readErr, io.EOF) {
				break
			}
			if err := ctx.Err(); err != nil {
				return written, errors.Wrap(err, "download canceled")
			}
			return written, errors.Wrap(readErr, "failed to read soundwave body")
		}
	}

	if total >= 0 && written != total {
		return written, errors.Newf("soundwave truncated: got %d of %d bytes", written, total)
	}
	return written, nil
}
