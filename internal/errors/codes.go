package errors

// Code is a machine-readable error code.
type Code string

const (
	// Configuration errors abort the run.
	CodeConfigInvalid      Code = "CONFIG_INVALID"
	CodeMissingSpec        Code = "MISSING_SPEC"
	CodeSpecMalformed      Code = "SPEC_MALFORMED"
	CodeCyclicDependency   Code = "CYCLIC_DEPENDENCY"
	CodeUnknownTokenizer   Code = "UNKNOWN_TOKENIZER"
	CodeNameCollision      Code = "NAME_COLLISION"
	CodeTemplateUnboundVar Code = "TEMPLATE_UNBOUND_VAR"

	// Source errors abort the run.
	CodeSourceMissing    Code = "SOURCE_MISSING"
	CodeSourceUnreadable Code = "SOURCE_UNREADABLE"
	CodeSourceMalformed  Code = "SOURCE_MALFORMED"

	// Per-request errors are recorded and the grid continues.
	CodeTransport      Code = "TRANSPORT"
	CodeParse          Code = "PARSE"
	CodeValidation     Code = "VALIDATION"
	CodeTimeout        Code = "TIMEOUT"
	CodeBudgetExceeded Code = "BUDGET_EXCEEDED"
	CodeDependency     Code = "DEPENDENCY_FAILED"
	CodeNoProvider     Code = "NO_PROVIDER"

	// Asset acquisition errors are per track.
	CodeSoundSearch Code = "SOUND_SEARCH"
	CodeDownload    Code = "DOWNLOAD"

	// CodeIO covers filesystem failures.
	CodeIO Code = "IO"

	CodeUnknown Code = "UNKNOWN"
)

// Kind groups codes by how the pipeline reacts to them.
type Kind string

const (
	KindConfiguration Kind = "configuration"
	KindSource        Kind = "source"
	KindRequest       Kind = "request"
	KindAcquisition   Kind = "acquisition"
	KindIO            Kind = "io"
	KindUnknown       Kind = "unknown"
)

// Kind returns the error kind for the code.
func (c Code) Kind() Kind {
	switch c {
	case CodeConfigInvalid, CodeMissingSpec, CodeSpecMalformed, CodeCyclicDependency,
		CodeUnknownTokenizer, CodeNameCollision, CodeTemplateUnboundVar:
		return KindConfiguration
	case CodeSourceMissing, CodeSourceUnreadable, CodeSourceMalformed:
		return KindSource
	case CodeTransport, CodeParse, CodeValidation, CodeTimeout, CodeBudgetExceeded,
		CodeDependency, CodeNoProvider:
		return KindRequest
	case CodeSoundSearch, CodeDownload:
		return KindAcquisition
	case CodeIO:
		return KindIO
	default:
		return KindUnknown
	}
}

// Process exit codes.
const (
	ExitOK       = 0
	ExitCritical = 1
	ExitConfig   = 2
	ExitSource   = 3
)
