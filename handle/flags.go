package handle

// IOFlags is the mode-flag set an Open call is parsed into, mirroring the
// teacher's disko.IOFlags usage (driver.OpenFile, File.ioFlags) but kept
// local to this module since the retrieved pack didn't carry the type
// definition itself, only its call sites.
type IOFlags uint32

const (
	O_RDONLY IOFlags = 0
	O_WRONLY IOFlags = 1 << iota
	O_RDWR
	O_CREATE
	O_EXCL
	O_TRUNC
	O_APPEND
	// O_CACHED_METADATA defers directory-entry size/timestamp updates to
	// close or explicit Flush instead of writing them back on every
	// mutating call, per spec §4.7's "cached-metadata" mode flag.
	O_CACHED_METADATA
)

// RequiresWritePerm reports whether flags need the volume mounted read-write.
func (f IOFlags) RequiresWritePerm() bool {
	return f&(O_WRONLY|O_RDWR|O_CREATE|O_TRUNC|O_APPEND) != 0
}

// Create reports whether the file should be created if it doesn't exist.
func (f IOFlags) Create() bool { return f&O_CREATE != 0 }

// Exclusive reports whether Open must fail if the file already exists.
func (f IOFlags) Exclusive() bool { return f&O_EXCL != 0 }

// Truncate reports whether an existing file's contents should be discarded
// on open.
func (f IOFlags) Truncate() bool { return f&O_TRUNC != 0 }

// Append reports whether every write should be forced to the current end
// of file, regardless of the handle's seek position.
func (f IOFlags) Append() bool { return f&O_APPEND != 0 }

// CachedMetadata reports whether directory-entry metadata writeback should
// be deferred to Close/Flush.
func (f IOFlags) CachedMetadata() bool { return f&O_CACHED_METADATA != 0 }

// Readable reports whether the handle permits Read calls.
func (f IOFlags) Readable() bool {
	return f&O_WRONLY == 0
}

// Writable reports whether the handle permits Write calls.
func (f IOFlags) Writable() bool {
	return f&(O_WRONLY|O_RDWR) != 0
}
