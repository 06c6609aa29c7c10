package domain

// PipelineState enumerates the strictly sequential generation pipeline. A run
// advances forward only; failed and done are terminal.
type PipelineState string

const (
	PipelineIdle               PipelineState = "idle"
	PipelineGeneratingMetadata PipelineState = "generating-metadata"
	PipelineResolvingImage     PipelineState = "resolving-image"
	PipelinePersisting         PipelineState = "persisting"
	PipelineDone               PipelineState = "done"
	PipelineFailed             PipelineState = "failed"
)

// UnlockState enumerates the payment/unlock flow.
type UnlockState string

const (
	UnlockLocked             UnlockState = "locked"
	UnlockVerifying          UnlockState = "verifying"
	UnlockUnlocked           UnlockState = "unlocked"
	UnlockVerificationFailed UnlockState = "verification-failed"
)
