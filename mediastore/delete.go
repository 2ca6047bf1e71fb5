package mediastore

// PermissionWriteAudioFiles names the capability a caller has to acquire
// before deletes can proceed.
const PermissionWriteAudioFiles = "write-audio-files"

// DeleteResult is the outcome of a delete request. Exactly one of Deleted,
// RequiresPermission, or RequiresUserConsent is returned.
type DeleteResult interface {
	deleteResult()
}

// Deleted reports how many tracks were actually removed.
type Deleted struct {
	Count int
}

// RequiresPermission means the delete could not start because the named
// permission is missing.
type RequiresPermission struct {
	Permission string
}

// RequiresUserConsent means the caller has to confirm the request and then
// call CompleteDelete with its ID.
type RequiresUserConsent struct {
	Request ConsentRequest
}

type ConsentRequest struct {
	ID       string
	TrackIDs []int
}

func (Deleted) deleteResult()             {}
func (RequiresPermission) deleteResult()  {}
func (RequiresUserConsent) deleteResult() {}
