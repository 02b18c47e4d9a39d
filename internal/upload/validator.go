// Package upload screens incoming image files and decides how a batch of
// accepted files joins a capture's image collection.
package upload

import (
	"bytes"
	"fmt"
	"image"
	"io"
	"mime/multipart"
	"net/http"
	"path/filepath"
	"strings"

	_ "image/gif"
	_ "image/jpeg"
	_ "image/png"

	_ "golang.org/x/image/webp"
)

const (
	// MaxFileSize is the upload size ceiling per file: 10 MiB.
	MaxFileSize = 10 * 1024 * 1024

	// MaxPixels rejects decompression-bomb images that decode fine but are
	// absurdly large: 50 megapixels.
	MaxPixels = 50_000_000

	// sniffLen is how much of the file content is inspected for MIME detection.
	sniffLen = 1024
)

var allowedExtensions = []string{".jpg", ".jpeg", ".png", ".gif", ".webp"}

var allowedMIMETypes = map[string]bool{
	"image/jpeg": true,
	"image/png":  true,
	"image/gif":  true,
	"image/webp": true,
}

// File is a candidate upload held fully in memory, so validation never
// consumes anything: Reader always starts from the first byte.
type File struct {
	Name string
	Size int64
	data []byte
}

// FromFileHeader reads one part of a multipart form into a File.
func FromFileHeader(fh *multipart.FileHeader) (*File, error) {
	f, err := fh.Open()
	if err != nil {
		return nil, err
	}
	defer f.Close()

	data, err := io.ReadAll(f)
	if err != nil {
		return nil, err
	}
	return NewFile(fh.Filename, data), nil
}

func NewFile(name string, data []byte) *File {
	return &File{Name: name, Size: int64(len(data)), data: data}
}

func (f *File) Reader() *bytes.Reader {
	return bytes.NewReader(f.data)
}

// Limits holds the tunable validation ceilings.
type Limits struct {
	MaxFileSize int64
	MaxPixels   int
}

func DefaultLimits() Limits {
	return Limits{MaxFileSize: MaxFileSize, MaxPixels: MaxPixels}
}

type check func(Limits, *File) error

// The layers run in this fixed order, stopping at the first failure:
// size, extension, MIME sniff, full-decode integrity, pixel ceiling.
var checks = []check{
	checkSize,
	checkExtension,
	checkMIME,
	checkIntegrity,
	checkDimensions,
}

// Validate runs the full validation chain with the default limits.
func Validate(f *File) error {
	return ValidateWithLimits(DefaultLimits(), f)
}

func ValidateWithLimits(l Limits, f *File) error {
	for _, c := range checks {
		if err := c(l, f); err != nil {
			return err
		}
	}
	return nil
}

func checkSize(l Limits, f *File) error {
	if f.Size > l.MaxFileSize {
		return fmt.Errorf("image file too large: maximum size is %d bytes, your file is %d bytes", l.MaxFileSize, f.Size)
	}
	return nil
}

func checkExtension(_ Limits, f *File) error {
	ext := strings.ToLower(filepath.Ext(f.Name))
	for _, allowed := range allowedExtensions {
		if ext == allowed {
			return nil
		}
	}
	return fmt.Errorf("unsupported file extension %q, allowed extensions: %s", ext, strings.Join(allowedExtensions, ", "))
}

// checkMIME sniffs the leading bytes of the actual content, so a .txt file
// renamed to .jpg is caught here regardless of its extension.
func checkMIME(_ Limits, f *File) error {
	head := f.data
	if len(head) > sniffLen {
		head = head[:sniffLen]
	}
	mimeType := http.DetectContentType(head)
	if !allowedMIMETypes[mimeType] {
		return fmt.Errorf("invalid file type: content appears to be %s, but only image files are allowed", mimeType)
	}
	return nil
}

// checkIntegrity fully decodes the payload, rejecting truncated or corrupt
// data that carries a valid header.
func checkIntegrity(_ Limits, f *File) error {
	if _, _, err := image.Decode(f.Reader()); err != nil {
		return fmt.Errorf("invalid or corrupted image file: %v", err)
	}
	return nil
}

func checkDimensions(l Limits, f *File) error {
	cfg, _, err := image.DecodeConfig(f.Reader())
	if err != nil {
		return fmt.Errorf("cannot read image dimensions: %v", err)
	}
	pixels := cfg.Width * cfg.Height
	if pixels > l.MaxPixels {
		return fmt.Errorf("image dimensions too large (%dx%d = %d pixels), maximum is %d pixels", cfg.Width, cfg.Height, pixels, l.MaxPixels)
	}
	return nil
}
