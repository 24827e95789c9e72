package vision

import (
	"context"
	"fmt"
	"image"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"

	"github.com/disintegration/imaging"

	"safe-eye-console/internal/domain/entity"
	"safe-eye-console/internal/domain/port"
)

var frameExtensions = map[string]bool{
	".jpg":  true,
	".jpeg": true,
	".png":  true,
	".bmp":  true,
	".gif":  true,
}

// DirectoryCamera проигрывает снимки из каталога по кругу.
// Используется на стендах без камеры и для записанных сцен.
type DirectoryCamera struct {
	Dir string
}

func NewDirectoryCamera(dir string) *DirectoryCamera {
	return &DirectoryCamera{Dir: dir}
}

func (c *DirectoryCamera) Open(ctx context.Context) (port.CaptureDevice, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	entries, err := os.ReadDir(c.Dir)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", entity.ErrCameraUnavailable, err)
	}

	var files []string
	for _, e := range entries {
		if e.IsDir() || !frameExtensions[strings.ToLower(filepath.Ext(e.Name()))] {
			continue
		}
		files = append(files, filepath.Join(c.Dir, e.Name()))
	}
	if len(files) == 0 {
		return nil, fmt.Errorf("%w: no frames in %s", entity.ErrCameraUnavailable, c.Dir)
	}
	sort.Strings(files)

	return &sequenceDevice{files: files}, nil
}

type sequenceDevice struct {
	mu     sync.Mutex
	files  []string
	next   int
	closed bool
}

func (d *sequenceDevice) Frame() (image.Image, error) {
	d.mu.Lock()
	if d.closed {
		d.mu.Unlock()
		return nil, fmt.Errorf("camera released")
	}
	path := d.files[d.next]
	d.next = (d.next + 1) % len(d.files)
	d.mu.Unlock()

	img, err := imaging.Open(path, imaging.AutoOrientation(true))
	if err != nil {
		return nil, fmt.Errorf("read frame %s: %w", filepath.Base(path), err)
	}
	return img, nil
}

func (d *sequenceDevice) Close() error {
	d.mu.Lock()
	d.closed = true
	d.mu.Unlock()
	return nil
}
