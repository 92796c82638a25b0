// Copyright © 2026 Groups.io, Inc.
// SPDX-License-Identifier: Apache-2.0

// Package ids generates and validates the identifiers used across orc:
// job ids, dedup keys, and project names.
package ids

import (
	"fmt"
	"regexp"

	"github.com/google/uuid"
)

var projectNameRe = regexp.MustCompile(`^[a-z0-9_-]{1,40}$`)

// ValidProjectName reports whether name matches the project-name grammar:
// lowercase letters, digits, underscore, and hyphen, 1-40 characters.
func ValidProjectName(name string) bool {
	return projectNameRe.MatchString(name)
}

// NewJobID returns a fresh, globally unique job identifier.
func NewJobID() string {
	return uuid.New().String()
}

// RetryJobID builds the synthetic dedup key "retry:<old_job>:<new_job>"
// for a retried job, which carries no real discord_message_id of its own.
func RetryJobID(oldJobID, newJobID string) string {
	return fmt.Sprintf("retry:%s:%s", oldJobID, newJobID)
}

// DedupKey builds the dedup-index key for a (thread, message) pair.
func DedupKey(threadID, messageID string) string {
	return threadID + ":" + messageID
}
