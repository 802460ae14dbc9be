package errors

// Exit statuses reported by the CLI
const (
	ExitFailure   = 1
	ExitInput     = 2
	ExitConfig    = 3
	ExitInvariant = 70
)

// Common error codes used across domains
const (
	CodeNotFound     Code = "not_found"
	CodeInvalidValue Code = "invalid_value"
	CodeUnsupported  Code = "unsupported"
	CodeFailed       Code = "failed"
	CodeInternal     Code = "internal_error"
	CodeUnavailable  Code = "unavailable"
)

// ============================================================================
// Input Errors
// ============================================================================

var (
	// ErrMultipleDistributions is returned when a changelog targets more than one distribution
	ErrMultipleDistributions = New(DomainInput, "multiple_distributions", ExitInput,
		"Cannot build for multiple distributions at once")

	// ErrSourcelessChanges is returned when a .changes file does not list "source"
	ErrSourcelessChanges = New(DomainInput, "sourceless_changes", ExitInput,
		"Changes file must be sourceful")

	// ErrMultipleDsc is returned when a .changes file references more than one .dsc
	ErrMultipleDsc = New(DomainInput, "multiple_dsc", ExitInput,
		"Changes file contained more than one .dsc file")

	// ErrMissingDsc is returned when a .changes file references no .dsc
	ErrMissingDsc = New(DomainInput, "missing_dsc", ExitInput,
		"Changes file did not contain a .dsc file")

	// ErrUnsupportedInput is returned for inputs that are not a directory, .changes or .dsc
	ErrUnsupportedInput = New(DomainInput, CodeUnsupported, ExitInput,
		"Buildable must be .changes, .dsc or directory")

	// ErrUnreadableInput is returned when an input file cannot be parsed
	ErrUnreadableInput = New(DomainInput, "unreadable", ExitInput,
		"Cannot read buildable")

	// ErrSuiteRequired is returned when neither the input nor the caller names a suite
	ErrSuiteRequired = New(DomainInput, "suite_required", ExitInput,
		"Must specify --suite")
)

// ============================================================================
// Configuration Errors
// ============================================================================

var (
	// ErrNoMirror is returned when no mirror resolves for a suite
	ErrNoMirror = New(DomainConfig, "no_mirror", ExitConfig,
		"No mirror configured")

	// ErrInvalidValue is returned when a configured literal does not fit the attribute type
	ErrInvalidValue = New(DomainConfig, CodeInvalidValue, ExitConfig,
		"Invalid configuration value")

	// ErrUnknownAttribute is returned when an unknown attribute is requested or overridden
	ErrUnknownAttribute = New(DomainConfig, "unknown_attribute", ExitConfig,
		"Unknown configuration attribute")

	// ErrSuiteCycle is returned when suite bases form a cycle
	ErrSuiteCycle = New(DomainConfig, "suite_cycle", ExitConfig,
		"Suite hierarchy contains a cycle")

	// ErrLayerLoad is returned when a configuration layer file cannot be read
	ErrLayerLoad = New(DomainConfig, "layer_load", ExitConfig,
		"Cannot load configuration layer")

	// ErrConfigLoad is returned when the process configuration file is unreadable
	ErrConfigLoad = New(DomainConfig, "config_load", ExitConfig,
		"Cannot load configuration file")

	// ErrNoWorker is returned when the worker command line is empty or unknown
	ErrNoWorker = New(DomainConfig, "no_worker", ExitConfig,
		"No usable worker configured")
)

// ============================================================================
// Invariant Errors
// ============================================================================

var (
	// ErrInvariant is returned when a tool reports success but its outputs are inconsistent
	ErrInvariant = New(DomainInvariant, "cannot_happen", ExitInvariant,
		"Internal consistency failure")
)

// ============================================================================
// Build Errors
// ============================================================================

var (
	// ErrBuildFailed is returned when the build tool exits non-zero
	ErrBuildFailed = New(DomainBuild, CodeFailed, ExitFailure,
		"Build failed")

	// ErrMergeFailed is returned when merging changes files fails
	ErrMergeFailed = New(DomainBuild, "merge_failed", ExitFailure,
		"Merging changes files failed")

	// ErrCopyBack is returned when an expected product cannot be copied back from the worker
	ErrCopyBack = New(DomainBuild, "copy_back_failed", ExitFailure,
		"Copying build product back failed")
)

// ============================================================================
// Worker Errors
// ============================================================================

var (
	// ErrWorkerStart is returned when a worker session cannot be created
	ErrWorkerStart = New(DomainWorker, "start_failed", ExitFailure,
		"Failed to start worker")

	// ErrWorkerCommand is returned when a command inside the worker exits non-zero
	ErrWorkerCommand = New(DomainWorker, "command_failed", ExitFailure,
		"Worker command failed")

	// ErrWorkerTransfer is returned when a file transfer to or from the worker fails
	ErrWorkerTransfer = New(DomainWorker, "transfer_failed", ExitFailure,
		"Worker file transfer failed")
)

// ============================================================================
// Storage Errors
// ============================================================================

var (
	// ErrStorageNotFound is returned when a storage object cannot be found
	ErrStorageNotFound = New(DomainStorage, CodeNotFound, ExitFailure,
		"Object not found in storage")

	// ErrStorageUploadFailed is returned when a storage upload fails
	ErrStorageUploadFailed = New(DomainStorage, "upload_failed", ExitFailure,
		"Failed to upload object to storage")

	// ErrStorageDownloadFailed is returned when a storage download fails
	ErrStorageDownloadFailed = New(DomainStorage, "download_failed", ExitFailure,
		"Failed to download object from storage")
)

// ============================================================================
// Publish and Database Errors
// ============================================================================

var (
	// ErrPublishFailed is returned when the repository tool rejects an upload
	ErrPublishFailed = New(DomainPublish, CodeFailed, ExitFailure,
		"Publishing to repository failed")

	// ErrDatabaseQuery is returned when a history query fails
	ErrDatabaseQuery = New(DomainDatabase, "query_failed", ExitFailure,
		"Database query failed")
)

// ============================================================================
// Internal Errors
// ============================================================================

var (
	// ErrInternal is a generic internal error
	ErrInternal = New(DomainInternal, CodeInternal, ExitFailure,
		"Internal error")
)
