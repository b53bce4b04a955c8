// Package timeouts defines the per-call deadlines used by external calls.
package timeouts

import "time"

// Completion caps a single completion-provider request.
const Completion = 120 * time.Second

// SoundSearch caps a single sound-service text search.
const SoundSearch = 30 * time.Second

// Download caps a single preview download.
const Download = 60 * time.Second

// SourceOpen caps opening and probing the campaign database.
const SourceOpen = 30 * time.Second

// ReadHeader limits how long the report server waits for request headers.
const ReadHeader = 5 * time.Second

// Shutdown limits how long the report server waits for in-flight requests.
const Shutdown = 5 * time.Second
