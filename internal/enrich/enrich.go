package enrich

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"image"
	_ "image/gif"
	"image/jpeg"
	_ "image/png"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/rwcarlsen/goexif/exif"
	"github.com/rwcarlsen/goexif/tiff"
	_ "golang.org/x/image/bmp"
	"golang.org/x/image/draw"
	_ "golang.org/x/image/tiff"
	_ "golang.org/x/image/webp"

	"exhume/internal/fileutil"
	"exhume/internal/fingerprint"
)

// ThumbnailDir is the directory under the output root holding thumbnails.
const ThumbnailDir = "thumbnails"

const thumbnailQuality = 85

// Enrich analyses one file. It never panics on malformed input that the
// decoders report as errors; callers isolating it in a worker process also
// survive decoders that crash outright.
func Enrich(ctx context.Context, path string, opts Options) Result {
	res := Result{
		Path:     path,
		RelPath:  relativeTo(opts.OutputDir, path),
		Filename: filepath.Base(path),
	}

	f, err := os.Open(path)
	if err != nil {
		res.Error = fmt.Sprintf("open: %v", err)
		return res
	}
	defer f.Close()

	if info, err := f.Stat(); err == nil {
		res.SizeBytes = info.Size()
	}

	cfg, format, headerErr := image.DecodeConfig(f)
	if headerErr == nil {
		pixels := int64(cfg.Width) * int64(cfg.Height)
		if opts.MaxPixels > 0 && pixels > opts.MaxPixels {
			res.Error = fmt.Sprintf("%v: image pixels %d exceeds limit of %d", ErrDecompressionBomb, pixels, opts.MaxPixels)
			return res
		}
		res.Width, res.Height, res.Format = cfg.Width, cfg.Height, format
	}

	if _, err := f.Seek(0, io.SeekStart); err != nil {
		res.Error = fmt.Sprintf("seek: %v", err)
		return res
	}
	digest, err := fingerprint.HashReader(ctx, f)
	if err != nil {
		res.Error = fmt.Sprintf("hash: %v", err)
		return res
	}
	res.MD5, res.SHA256 = digest.MD5, digest.SHA256

	if headerErr != nil {
		res.Notes = fmt.Sprintf("decode failed: %v", headerErr)
		return res
	}

	if _, err := f.Seek(0, io.SeekStart); err != nil {
		res.Notes = fmt.Sprintf("decode failed: %v", err)
		return res
	}
	img, _, err := image.Decode(f)
	if err != nil {
		res.Notes = fmt.Sprintf("decode error: %v", err)
		return res
	}

	var notes []string
	if phash, err := fingerprint.Perceptual(img); err != nil {
		notes = append(notes, fmt.Sprintf("perceptual hash failed: %v", err))
	} else {
		res.PHash = phash
	}

	if _, err := f.Seek(0, io.SeekStart); err == nil {
		res.ExifJSON = exifJSON(f)
	}

	if opts.ThumbnailSize > 0 && opts.OutputDir != "" {
		thumb, err := writeThumbnail(img, opts.OutputDir, res.SHA256, opts.ThumbnailSize)
		if err != nil {
			notes = append(notes, fmt.Sprintf("thumbnail failed: %v", err))
		} else {
			res.ThumbnailPath = thumb
		}
	}
	res.Notes = strings.Join(notes, "; ")
	return res
}

// exifJSON returns the EXIF tags of r as a JSON object, or "{}".
func exifJSON(r io.Reader) string {
	x, err := exif.Decode(r)
	if err != nil {
		return "{}"
	}
	tags := exifTags{}
	if err := x.Walk(tags); err != nil {
		return "{}"
	}
	data, err := json.Marshal(tags)
	if err != nil {
		return "{}"
	}
	return string(data)
}

type exifTags map[string]string

func (t exifTags) Walk(name exif.FieldName, tag *tiff.Tag) error {
	if tag == nil {
		return nil
	}
	if tag.Format() == tiff.StringVal {
		if s, err := tag.StringVal(); err == nil {
			t[string(name)] = strings.TrimRight(s, "\x00 ")
			return nil
		}
	}
	t[string(name)] = tag.String()
	return nil
}

// writeThumbnail scales img to fit within size x size and writes it as JPEG
// under outputDir/thumbnails. The returned path is relative to outputDir.
func writeThumbnail(img image.Image, outputDir, sha256 string, size int) (string, error) {
	if len(sha256) < 16 {
		return "", errors.New("missing content digest")
	}
	dir := filepath.Join(outputDir, ThumbnailDir)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", err
	}
	name := "thumb_" + sha256[:16] + ".jpg"
	target := filepath.Join(dir, name)
	rel := ThumbnailDir + "/" + name
	if _, err := os.Stat(target); err == nil {
		return rel, nil
	}

	src := img.Bounds()
	w, h := fitWithin(src.Dx(), src.Dy(), size)
	dst := image.NewRGBA(image.Rect(0, 0, w, h))
	draw.ApproxBiLinear.Scale(dst, dst.Bounds(), img, src, draw.Src, nil)

	err := fileutil.WriteAtomic(target, 0o644, func(w io.Writer) error {
		return jpeg.Encode(w, dst, &jpeg.Options{Quality: thumbnailQuality})
	})
	if err != nil {
		return "", err
	}
	return rel, nil
}

// fitWithin returns w x h scaled down to fit a size x size box, keeping the
// aspect ratio. Images already inside the box keep their dimensions.
func fitWithin(w, h, size int) (int, int) {
	if w <= 0 || h <= 0 {
		return 1, 1
	}
	if w <= size && h <= size {
		return w, h
	}
	if w >= h {
		return size, max(1, h*size/w)
	}
	return max(1, w*size/h), size
}

func relativeTo(base, path string) string {
	if base != "" {
		if rel, err := filepath.Rel(base, path); err == nil && !strings.HasPrefix(rel, "..") {
			return filepath.ToSlash(rel)
		}
	}
	return filepath.ToSlash(path)
}
