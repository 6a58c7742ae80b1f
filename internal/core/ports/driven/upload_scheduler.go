package driven

// UploadScheduler enqueues cloud upload work. Work identity derives from
// the content hash, so scheduling the same hash repeatedly while one
// attempt is pending collapses to a single work item.
type UploadScheduler interface {
	ScheduleUpload(contentHash string)
}
