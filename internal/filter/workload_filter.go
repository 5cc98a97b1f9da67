package filter

import (
	"path/filepath"
	"strings"
)

// Config holds namespace and label filtering for managed workloads. A
// workload outside the filter is never registered with the dispatcher even
// if it carries policy annotations.
type Config struct {
	// Glob patterns for namespaces to manage (e.g. "production-*"). Empty
	// means every namespace not excluded.
	WatchNamespaces []string
	// Glob patterns for namespaces to exclude (e.g. "kube-system").
	ExcludeNamespaces []string

	// Label keys that must be present on the workload.
	RequireLabels []string
	// Label key=value pairs that cause exclusion.
	ExcludeLabels []string
}

// WorkloadFilter implements namespace and label-based workload filtering.
type WorkloadFilter struct {
	config Config
}

// New creates a workload filter.
func New(config Config) *WorkloadFilter {
	return &WorkloadFilter{config: config}
}

// Allows reports whether a workload in the namespace with the given labels
// may be managed.
func (f *WorkloadFilter) Allows(namespace string, labels map[string]string) bool {
	return f.allowsNamespace(namespace) && f.allowsLabels(labels)
}

func (f *WorkloadFilter) allowsNamespace(namespace string) bool {
	for _, pattern := range f.config.ExcludeNamespaces {
		if matchGlob(pattern, namespace) {
			return false
		}
	}
	if len(f.config.WatchNamespaces) == 0 {
		return true
	}
	for _, pattern := range f.config.WatchNamespaces {
		if matchGlob(pattern, namespace) {
			return true
		}
	}
	return false
}

func (f *WorkloadFilter) allowsLabels(labels map[string]string) bool {
	for _, requiredKey := range f.config.RequireLabels {
		if _, exists := labels[requiredKey]; !exists {
			return false
		}
	}
	for _, exclusion := range f.config.ExcludeLabels {
		key, value := parseKeyValue(exclusion)
		if labelValue, exists := labels[key]; exists {
			if value == "" || labelValue == value {
				return false
			}
		}
	}
	return true
}

func matchGlob(pattern, s string) bool {
	matched, err := filepath.Match(pattern, s)
	if err != nil {
		return false
	}
	return matched
}

// parseKeyValue parses a "key=value" or "key" string.
func parseKeyValue(s string) (key, value string) {
	parts := strings.SplitN(s, "=", 2)
	key = parts[0]
	if len(parts) > 1 {
		value = parts[1]
	}
	return
}

// DefaultExcludedNamespaces returns the namespaces excluded by default.
func DefaultExcludedNamespaces() []string {
	return []string{
		"kube-system",
		"kube-public",
		"kube-node-lease",
	}
}
