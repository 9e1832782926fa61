package fatcore

import (
	"syscall"

	fatcoreerrors "github.com/dargueta/fatcore/errors"
)

// DriverError is the error type every exported fatcore operation returns. It
// is an alias for the errors package's interface so driver implementations
// and callers share a single vocabulary without an extra import.
type DriverError = fatcoreerrors.DriverError

// DiskoError is the concrete named-constant error type backing DriverError.
type DiskoError = fatcoreerrors.DiskoError

// ErrnoError adapts a DiskoError to a POSIX syscall.Errno for callers that
// need numeric interop (e.g. a FUSE binding). It is not the primary error
// type -- most of the ~50 kinds in this package have no POSIX equivalent.
type ErrnoError struct {
	ErrnoCode syscall.Errno
	message   string
}

func (e ErrnoError) Error() string {
	if e.message != "" {
		return e.message
	}
	return e.ErrnoCode.Error()
}

// NewErrnoError creates an ErrnoError with a default message derived from the
// system's error code.
func NewErrnoError(errnoCode syscall.Errno) *ErrnoError {
	return &ErrnoError{ErrnoCode: errnoCode, message: errnoCode.Error()}
}

// NewErrnoErrorWithMessage creates an ErrnoError from a system error code with
// a custom message.
func NewErrnoErrorWithMessage(errnoCode syscall.Errno, message string) *ErrnoError {
	return &ErrnoError{ErrnoCode: errnoCode, message: errnoCode.Error() + ": " + message}
}

// errnoByDiskoError maps the subset of DiskoError values that have a
// reasonable POSIX analogue to a syscall.Errno.
var errnoByDiskoError = map[DiskoError]syscall.Errno{
	fatcoreerrors.ErrExists:               syscall.EEXIST,
	fatcoreerrors.ErrNotFound:             syscall.ENOENT,
	fatcoreerrors.ErrNotADirectory:        syscall.ENOTDIR,
	fatcoreerrors.ErrIsADirectory:         syscall.EISDIR,
	fatcoreerrors.ErrDirectoryNotEmpty:    syscall.ENOTEMPTY,
	fatcoreerrors.ErrPermissionDenied:     syscall.EACCES,
	fatcoreerrors.ErrNotPermitted:         syscall.EPERM,
	fatcoreerrors.ErrReadOnlyFileSystem:   syscall.EROFS,
	fatcoreerrors.ErrIOFailed:             syscall.EIO,
	fatcoreerrors.ErrNoSpaceOnDevice:      syscall.ENOSPC,
	fatcoreerrors.ErrNameTooLong:          syscall.ENAMETOOLONG,
	fatcoreerrors.ErrInvalidArgument:      syscall.EINVAL,
	fatcoreerrors.ErrNotImplemented:       syscall.ENOSYS,
	fatcoreerrors.ErrTooManyOpenFiles:     syscall.EMFILE,
	fatcoreerrors.ErrBlockDeviceRequired:  syscall.ENOTBLK,
	fatcoreerrors.ErrBusy:                 syscall.EBUSY,
	fatcoreerrors.ErrInvalidFileDescriptor: syscall.EBADF,
	fatcoreerrors.ErrFileSystemCorrupted:  syscall.EUCLEAN,
	fatcoreerrors.ErrCrossDeviceLink:      syscall.EXDEV,
}

// ToErrno converts a DiskoError to the nearest POSIX syscall.Errno. Domain
// kinds with no POSIX analogue (NoBufferAvailable, JournalFileInvalid, ...)
// map to EIO, signalling "something about the underlying storage failed"
// without inventing a fictitious errno value.
func ToErrno(e DiskoError) syscall.Errno {
	if code, ok := errnoByDiskoError[e]; ok {
		return code
	}
	return syscall.EIO
}
