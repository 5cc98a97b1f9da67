package model

import "strings"

// SplitImage splits an image reference into repository and tag. A colon
// inside the registry host (port) is not a tag separator. References
// without a tag return an empty tag.
func SplitImage(image string) (repo, tag string) {
	if i := strings.LastIndex(image, ":"); i > strings.LastIndex(image, "/") {
		return image[:i], image[i+1:]
	}
	return image, ""
}

// JoinImage renders a repository and tag back into a reference.
func JoinImage(repo, tag string) string {
	if tag == "" {
		return repo
	}
	return repo + ":" + tag
}
