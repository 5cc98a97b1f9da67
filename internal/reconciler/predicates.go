package reconciler

import (
	"sigs.k8s.io/controller-runtime/pkg/predicate"
)

// WorkloadChangedPredicate filters workload events down to the changes the
// index cares about: spec changes (generation) and annotation changes.
// Status-only updates are noise here; the health monitor observes status on
// its own schedule.
func WorkloadChangedPredicate() predicate.Predicate {
	return predicate.Or(
		predicate.GenerationChangedPredicate{},
		predicate.AnnotationChangedPredicate{},
	)
}
