// Copyright (c) Microsoft Corporation.
// Licensed under the MIT License.
package mqtt

import "strings"

// IsTopicFilterMatch checks if a topic name matches a topic filter, honoring
// the + and # wildcards.
func IsTopicFilterMatch(topicFilter, topicName string) bool {
	filters := strings.Split(topicFilter, "/")
	names := strings.Split(topicName, "/")

	for i, filter := range filters {
		switch {
		case filter == "#":
			return i == len(filters)-1
		case filter == "+" && i < len(names):
			continue
		case i >= len(names) || filter != names[i]:
			return false
		}
	}
	return len(filters) == len(names)
}
