package fatcore

import fatcoreerrors "github.com/dargueta/fatcore/errors"

// Re-exported so callers can write fatcore.ErrExists instead of reaching into
// the errors subpackage directly. Definitions and semantics live there.
const (
	ErrAlreadyInProgress  = fatcoreerrors.ErrAlreadyInProgress
	ErrArgumentOutOfRange = fatcoreerrors.ErrArgumentOutOfRange
	ErrBlockDeviceRequired = fatcoreerrors.ErrBlockDeviceRequired
	ErrBusy                = fatcoreerrors.ErrBusy
	ErrCrossDeviceLink     = fatcoreerrors.ErrCrossDeviceLink
	ErrDirectoryNotEmpty   = fatcoreerrors.ErrDirectoryNotEmpty
	ErrDiskQuotaExceeded   = fatcoreerrors.ErrDiskQuotaExceeded
	ErrExists              = fatcoreerrors.ErrExists
	ErrFileDescriptorBadState = fatcoreerrors.ErrFileDescriptorBadState
	ErrFileSystemCorrupted    = fatcoreerrors.ErrFileSystemCorrupted
	ErrFileTooLarge           = fatcoreerrors.ErrFileTooLarge
	ErrInvalidArgument        = fatcoreerrors.ErrInvalidArgument
	ErrInvalidFileDescriptor  = fatcoreerrors.ErrInvalidFileDescriptor
	ErrInvalidFileSystem      = fatcoreerrors.ErrInvalidFileSystem
	ErrIOFailed               = fatcoreerrors.ErrIOFailed
	ErrIsADirectory           = fatcoreerrors.ErrIsADirectory
	ErrLinkCycleDetected      = fatcoreerrors.ErrLinkCycleDetected
	ErrNameTooLong            = fatcoreerrors.ErrNameTooLong
	ErrNoDevice               = fatcoreerrors.ErrNoDevice
	ErrNoSpaceOnDevice        = fatcoreerrors.ErrNoSpaceOnDevice
	ErrNotADirectory          = fatcoreerrors.ErrNotADirectory
	ErrNotFound               = fatcoreerrors.ErrNotFound
	ErrNotImplemented         = fatcoreerrors.ErrNotImplemented
	ErrNotPermitted           = fatcoreerrors.ErrNotPermitted
	ErrNotSupported           = fatcoreerrors.ErrNotSupported
	ErrPermissionDenied       = fatcoreerrors.ErrPermissionDenied
	ErrReadOnlyFileSystem     = fatcoreerrors.ErrReadOnlyFileSystem
	ErrResultOutOfRange       = fatcoreerrors.ErrResultOutOfRange
	ErrTooManyLinks           = fatcoreerrors.ErrTooManyLinks
	ErrTooManyOpenFiles       = fatcoreerrors.ErrTooManyOpenFiles
	ErrTooManyUsers           = fatcoreerrors.ErrTooManyUsers
	ErrUnexpectedEOF          = fatcoreerrors.ErrUnexpectedEOF

	ErrNoBufferAvailable = fatcoreerrors.ErrNoBufferAvailable

	ErrDeviceIO            = fatcoreerrors.ErrDeviceIO
	ErrDeviceTimeout       = fatcoreerrors.ErrDeviceTimeout
	ErrDeviceNotPresent    = fatcoreerrors.ErrDeviceNotPresent
	ErrDeviceChanged       = fatcoreerrors.ErrDeviceChanged
	ErrDeviceFull          = fatcoreerrors.ErrDeviceFull
	ErrDeviceInvalidSector = fatcoreerrors.ErrDeviceInvalidSector
	ErrDeviceInvalidConfig = fatcoreerrors.ErrDeviceInvalidConfig

	ErrNotAFile        = fatcoreerrors.ErrNotAFile
	ErrTypeDiffers     = fatcoreerrors.ErrTypeDiffers
	ErrVolumesDiffer   = fatcoreerrors.ErrVolumesDiffer
	ErrIsRootDirectory = fatcoreerrors.ErrIsRootDirectory
	ErrEntryOpen       = fatcoreerrors.ErrEntryOpen

	ErrInvalidName        = fatcoreerrors.ErrInvalidName
	ErrBaseNameTooLong    = fatcoreerrors.ErrBaseNameTooLong
	ErrNameBufferTooShort = fatcoreerrors.ErrNameBufferTooShort

	ErrVolumeNotOpen             = fatcoreerrors.ErrVolumeNotOpen
	ErrVolumeNotMounted          = fatcoreerrors.ErrVolumeNotMounted
	ErrInvalidFileSystemOnVolume = fatcoreerrors.ErrInvalidFileSystemOnVolume
	ErrLabelInvalid              = fatcoreerrors.ErrLabelInvalid
	ErrFilesOpen                 = fatcoreerrors.ErrFilesOpen
	ErrDirsOpen                  = fatcoreerrors.ErrDirsOpen
	ErrInvalidOperation          = fatcoreerrors.ErrInvalidOperation

	ErrJournalConfigChanged = fatcoreerrors.ErrJournalConfigChanged
	ErrJournalFull          = fatcoreerrors.ErrJournalFull
	ErrJournalFileInvalid   = fatcoreerrors.ErrJournalFileInvalid
	ErrJournalAlreadyOpen   = fatcoreerrors.ErrJournalAlreadyOpen
	ErrJournalNotStarted    = fatcoreerrors.ErrJournalNotStarted
	ErrJournalReplayFailed  = fatcoreerrors.ErrJournalReplayFailed

	ErrFATEntryOutOfRange = fatcoreerrors.ErrFATEntryOutOfRange
	ErrInvalidCluster     = fatcoreerrors.ErrInvalidCluster
	ErrVolumeCorrupt      = fatcoreerrors.ErrVolumeCorrupt
	ErrVolumeFull         = fatcoreerrors.ErrVolumeFull
	ErrDirectoryFull      = fatcoreerrors.ErrDirectoryFull

	ErrNullPointer      = fatcoreerrors.ErrNullPointer
	ErrInvalidConfig    = fatcoreerrors.ErrInvalidConfig
	ErrOSLockFailure    = fatcoreerrors.ErrOSLockFailure
	ErrMemoryAllocation = fatcoreerrors.ErrMemoryAllocation
)
