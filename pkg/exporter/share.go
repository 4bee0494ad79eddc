package exporter

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/menta2k/doc-scanner/internal/utils"
)

// MIMETypePDF is the content type of exported documents
const MIMETypePDF = "application/pdf"

var (
	// ErrShareCancelled is returned by a ShareSurface when the user dismisses it
	ErrShareCancelled = errors.New("share cancelled")

	// ErrShareUnavailable is returned when text cannot be shared or copied
	ErrShareUnavailable = errors.New("no share surface or clipboard available")
)

// File is an attachment handed to a share surface
type File struct {
	Name     string
	MIMEType string
	Data     []byte
}

// Payload is what a share surface receives
type Payload struct {
	Title string
	Text  string
	Files []File
}

// ShareSurface is a system share sheet
type ShareSurface interface {
	Share(ctx context.Context, p Payload) error
}

// Downloader saves a file locally and reports where it went
type Downloader interface {
	Download(ctx context.Context, filename string, data []byte) (string, error)
}

// Clipboard receives copied text
type Clipboard interface {
	WriteText(ctx context.Context, text string) error
}

// DirDownloader writes downloads into a directory without overwriting
type DirDownloader struct {
	Dir string
}

// Download writes data to Dir/filename, adding a numeric suffix on collision
func (d DirDownloader) Download(ctx context.Context, filename string, data []byte) (string, error) {
	dir := d.Dir
	if dir == "" {
		dir = "."
	}
	if err := utils.EnsureDir(dir); err != nil {
		return "", fmt.Errorf("failed to create output directory: %w", err)
	}
	path := utils.UniquePath(dir, utils.SanitizeFilename(filename))
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return "", fmt.Errorf("failed to write %s: %w", path, err)
	}
	return path, nil
}

// WriterClipboard "copies" text by writing it to W
type WriterClipboard struct {
	W io.Writer
}

func (c WriterClipboard) WriteText(ctx context.Context, text string) error {
	_, err := io.WriteString(c.W, text+"\n")
	return err
}
