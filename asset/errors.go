package asset

import (
	"errors"
	"fmt"

	"github.com/eichs/unitypack/internal/binio"
	"github.com/eichs/unitypack/internal/compress"
)

var (
	// ErrMalformedSignature indicates an unrecognized or truncated magic.
	ErrMalformedSignature = errors.New("asset: malformed signature")

	// ErrTruncated is matched by every read or seek past the available bytes.
	ErrTruncated = binio.ErrOutOfData

	// ErrUnsupportedCompression indicates a block or stream compression flag
	// with no codec.
	ErrUnsupportedCompression = compress.ErrUnsupported

	// ErrScratchConflict indicates a scratch buffer name already used by a
	// container that is not a scratch buffer.
	ErrScratchConflict = errors.New("asset: scratch buffer name taken by another container")

	// ErrNameTaken indicates a dependency whose name is already used by a
	// member of the archive, compared case-insensitively.
	ErrNameTaken = errors.New("asset: container name already taken")

	// ErrWrongKind indicates an operation applied to a container of the wrong
	// kind, e.g. object access on a bundle.
	ErrWrongKind = errors.New("asset: wrong container kind")

	// ErrNoTypeTree indicates an object whose type carries no field layout.
	ErrNoTypeTree = errors.New("asset: object has no type tree")
)

// ErrUnresolvedPointer is matched by every pointer resolution failure.
var ErrUnresolvedPointer = errors.New("asset: unresolved pointer")

var (
	ErrNullPointer     = fmt.Errorf("%w: null object id", ErrUnresolvedPointer)
	ErrExternalIndex   = fmt.Errorf("%w: external index out of range", ErrUnresolvedPointer)
	ErrNoParent        = fmt.Errorf("%w: container has no parent", ErrUnresolvedPointer)
	ErrParentGone      = fmt.Errorf("%w: parent container was dropped", ErrUnresolvedPointer)
	ErrSiblingNotFound = fmt.Errorf("%w: sibling not found", ErrUnresolvedPointer)
	ErrSiblingKind     = fmt.Errorf("%w: sibling is not a serialized file", ErrUnresolvedPointer)
	ErrObjectNotFound  = fmt.Errorf("%w: object not found", ErrUnresolvedPointer)
)
