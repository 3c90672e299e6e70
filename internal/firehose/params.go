package firehose

import "github.com/google/uuid"

// Job type tags. The tag is the "type" field of a job's params payload and
// selects the handler at dispatch time. Unknown tags are a terminal job
// failure, not a crash.
const (
	JobTypeHydrantFetch = "hydrant_fetch"
	JobTypeHydrateAll   = "hydrate_all"
)

// HydrantFetchParams is the payload of a hydrant_fetch job: poll one
// hydrant's feed and save any new entries as drops.
type HydrantFetchParams struct {
	Type      string    `json:"type"`
	HydrantID uuid.UUID `json:"hydrant_id"`
}

// HydrantFetch builds the params for a hydrant_fetch job.
func HydrantFetch(hydrantID uuid.UUID) HydrantFetchParams {
	return HydrantFetchParams{Type: JobTypeHydrantFetch, HydrantID: hydrantID}
}

// HydrateAllParams is the payload of a hydrate_all job: enqueue one
// hydrant_fetch job per stale hydrant. It carries no arguments beyond the
// type tag.
type HydrateAllParams struct {
	Type string `json:"type"`
}

// HydrateAll builds the params for a hydrate_all job.
func HydrateAll() HydrateAllParams {
	return HydrateAllParams{Type: JobTypeHydrateAll}
}
