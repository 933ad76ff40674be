package webinars

import "github.com/nexstream/backend/internal/models"

// transitions lists the allowed status edges. live and rejected are terminal apart from
// the idempotent live → live re-entry of GoLive.
var transitions = map[models.WebinarStatus][]models.WebinarStatus{
	models.WebinarPending:  {models.WebinarApproved, models.WebinarRejected, models.WebinarLive},
	models.WebinarApproved: {models.WebinarLive},
	models.WebinarLive:     {models.WebinarLive},
}

// CanTransition reports whether a webinar may move from one status to another.
func CanTransition(from, to models.WebinarStatus) bool {
	for _, s := range transitions[from] {
		if s == to {
			return true
		}
	}
	return false
}

// sourcesOf returns every status that may move to `to`.
func sourcesOf(to models.WebinarStatus) []models.WebinarStatus {
	var out []models.WebinarStatus
	for _, from := range []models.WebinarStatus{models.WebinarPending, models.WebinarApproved, models.WebinarRejected, models.WebinarLive} {
		if CanTransition(from, to) {
			out = append(out, from)
		}
	}
	return out
}

// StudentVisible reports whether webinars in status appear in student listings.
func StudentVisible(status models.WebinarStatus) bool {
	return status == models.WebinarApproved || status == models.WebinarLive
}
