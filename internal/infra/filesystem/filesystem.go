package filesystem

import "errors"

var (
	// ErrNotExist is returned by readers when the requested file is absent.
	ErrNotExist = errors.New("file does not exist")
	// ErrDecode is returned by readers when the file content cannot be decoded into the target.
	ErrDecode = errors.New("failed to decode file")
)

type (
	Reader interface {
		ReadJSON(path string, target any) error
		Exists(path string) (bool, error)
	}
	Writer interface {
		WriteJSON(path string, data any) error
		WriteBytes(path string, data []byte) error
		Remove(path string) error
	}
)
