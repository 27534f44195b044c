package chat

// Outcome classifies how a turn ended. Failure outcomes are conversational
// results, never errors.
type Outcome string

const (
	OutcomeAnswered          Outcome = "answered"
	OutcomeUploadRequired    Outcome = "upload_required"
	OutcomeIdentityRequested Outcome = "identity_requested"
	OutcomeChallengeIssued   Outcome = "challenge_issued"
	OutcomeExtractionFailure Outcome = "extraction_failure"
	OutcomeLookupMiss        Outcome = "lookup_miss"
	OutcomeRetry             Outcome = "retry"
	OutcomeValidated         Outcome = "validated"
	OutcomeLockedOut         Outcome = "locked_out"
	OutcomeRouterFailure     Outcome = "router_failure"
	OutcomeResponderFailure  Outcome = "responder_failure"
)
