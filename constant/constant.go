package constant

import (
	"path/filepath"
	"strings"
)

type JobState string

const (
	JobStateQueued           JobState = "QUEUED"
	JobStateStabilityCheck   JobState = "STABILITY_CHECK"
	JobStateValidatingSource JobState = "VALIDATING_SOURCE"
	JobStateEncoding         JobState = "ENCODING"
	JobStateValidatingOutput JobState = "VALIDATING_OUTPUT"
	JobStatePersisting       JobState = "PERSISTING_POINTER"
	JobStateCompleted        JobState = "COMPLETED"
	JobStateFailed           JobState = "FAILED"
)

type TriggerSource string

const (
	TriggerWatcher TriggerSource = "watcher"
	TriggerScanner TriggerSource = "scanner"
	TriggerBroker  TriggerSource = "broker"
	TriggerCLI     TriggerSource = "cli"
)

type Environment string

const (
	EnvironmentProduction Environment = "production"
	EnvironmentStaging    Environment = "staging"
	EnvironmentDevelop    Environment = "develop"
)

func (e Environment) String() string {
	return string(e)
}

// VideoExtensions are the upload extensions the pipeline picks up.
var VideoExtensions = []string{".mp4", ".mov", ".avi", ".mkv", ".webm"}

func IsVideoFile(name string) bool {
	ext := strings.ToLower(filepath.Ext(name))
	for _, allowed := range VideoExtensions {
		if ext == allowed {
			return true
		}
	}
	return false
}

// NormalizeName is the key used for dedup and the processed-state store.
func NormalizeName(name string) string {
	return strings.ToLower(filepath.Base(name))
}

// BaseName strips directory and extension: "/uploads/Clip.MP4" -> "Clip".
func BaseName(name string) string {
	base := filepath.Base(name)
	return strings.TrimSuffix(base, filepath.Ext(base))
}
