package engine

import (
	"errors"
	"io"
	"io/fs"
	"os"

	"binpatch/internal/integrity"
)

// Image is the in-memory copy of a target file for the duration of one run.
type Image struct {
	Path           string
	Data           []byte
	Mode           fs.FileMode
	OriginalDigest integrity.Digest
	CurrentDigest  integrity.Digest
}

// LoadImage reads the whole file at path.
func LoadImage(path string) (*Image, error) {
	f, err := os.Open(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, &MissingTargetError{Path: path}
		}
		return nil, &IOError{Op: "read", Path: path, Err: err}
	}
	defer f.Close()

	info, err := f.Stat()
	if err != nil {
		return nil, &IOError{Op: "read", Path: path, Err: err}
	}
	if info.IsDir() {
		return nil, &IOError{Op: "read", Path: path, Err: errors.New("is a directory")}
	}

	data, err := io.ReadAll(f)
	if err != nil {
		return nil, &IOError{Op: "read", Path: path, Err: err}
	}

	sum := integrity.Sum(data)
	return &Image{
		Path:           path,
		Data:           data,
		Mode:           info.Mode().Perm(),
		OriginalDigest: sum,
		CurrentDigest:  sum,
	}, nil
}

// WriteBack persists Data to Path in a single atomic replace.
func (im *Image) WriteBack() error {
	if err := integrity.WriteFileAtomic(im.Path, im.Data, im.Mode); err != nil {
		return &IOError{Op: "write", Path: im.Path, Err: err}
	}
	return nil
}
