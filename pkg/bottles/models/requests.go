package models

// CheckRequest asks whether an identity already left a bottle.
type CheckRequest struct {
	Owner string `json:"owner"`
}

// CheckResponse never says more than whether a bottle exists.
type CheckResponse struct {
	HasBottle bool    `json:"hasBottle"`
	Status    *string `json:"status"`
}

type DiscoveryRequest struct {
	Viewer string `json:"viewer" binding:"required"`
}

// DiscoveryResponse carries a nil artifact when nothing new is left to show.
type DiscoveryResponse struct {
	Artifact  *BottleView `json:"artifact"`
	Remaining int         `json:"remaining"`
}

type SubmissionResponse struct {
	Success bool `json:"success"`
}

// Stats is the operator view served under /admin/stats.
type Stats struct {
	Bottles        int64  `json:"bottles"`
	ExposuresToday int64  `json:"exposuresToday"`
	Blobs          int64  `json:"blobs"`
	Day            string `json:"day"`
}

type SweepResponse struct {
	Deleted int `json:"deleted"`
}
