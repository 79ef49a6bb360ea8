package escrow

import "errors"

// Protocol failure reasons. All failures are local and non-retryable by the
// protocol itself: a failed operation leaves state unchanged and callers
// decide whether to resubmit with corrected parameters or wait for a later
// window.
var (
	// ErrInvalidCaller rejects a caller outside the party allowed to act in
	// the current window.
	ErrInvalidCaller = errors.New("escrow: invalid caller")

	// ErrInvalidTime rejects an operation outside its required stage window.
	ErrInvalidTime = errors.New("escrow: invalid time")

	// ErrInvalidSecret rejects a secret that does not open the hashlock.
	ErrInvalidSecret = errors.New("escrow: invalid secret")

	// ErrInvalidImmutables rejects a supplied record whose hash does not match
	// the instance's bound identity, guarding against parameter substitution.
	ErrInvalidImmutables = errors.New("escrow: invalid immutables")

	// ErrInvalidCreationTime rejects a destination escrow whose cancellation
	// start would outlive the source escrow's cancellation point.
	ErrInvalidCreationTime = errors.New("escrow: invalid creation time")

	// ErrInvalidFillProof rejects a Merkle inclusion proof that does not
	// resolve to the committed root.
	ErrInvalidFillProof = errors.New("escrow: invalid fill proof")

	// ErrNativeTokenSendingFailure marks a rejected safety-deposit transfer.
	ErrNativeTokenSendingFailure = errors.New("escrow: native token sending failure")

	// ErrEscrowNotFound marks a lookup for an address with no registered
	// escrow instance.
	ErrEscrowNotFound = errors.New("escrow: escrow not found")

	// ErrEscrowCompleted rejects a second terminal transition once withdraw
	// or cancel has fired.
	ErrEscrowCompleted = errors.New("escrow: escrow already completed")

	// ErrEscrowExists rejects re-registration of an address already bound to
	// an instance.
	ErrEscrowExists = errors.New("escrow: escrow already exists")

	// ErrInsufficientEscrowBalance rejects source-side creation when the
	// precomputed address has not been funded with principal plus deposit.
	ErrInsufficientEscrowBalance = errors.New("escrow: insufficient escrow balance")

	// ErrLengthMismatch rejects paired slices of different lengths.
	ErrLengthMismatch = errors.New("escrow: length mismatch")

	// ErrEmptyFillTree rejects building a multi-fill commitment with no leaves.
	ErrEmptyFillTree = errors.New("escrow: empty fill tree")

	// ErrLeafOutOfRange rejects a proof request for a leaf beyond the tree.
	ErrLeafOutOfRange = errors.New("escrow: leaf index out of range")
)
