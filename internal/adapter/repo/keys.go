package repo

// Key layout in the keyed store. Everything a job owns hangs off job:{id}
// except the pick set, which churns independently.

const jobQueue = "queue:build-previews"

func jobKey(id string) string { return "job:" + id }

func previewsKey(id string) string { return "job:" + id + ":previews" }

func finalKey(id string) string { return "job:" + id + ":final" }

func finalizeLockKey(id string) string { return "job:" + id + ":finalize_lock" }

func picksKey(id string) string { return "picks:" + id }

// BuildPreviewsQueue is the queue name the API pushes new job ids onto.
func BuildPreviewsQueue() string { return jobQueue }

// FinalizeLockKey returns the lock key guarding render dispatch for a job.
func FinalizeLockKey(jobID string) string { return finalizeLockKey(jobID) }
