// Package model loads the pre-trained apnea classifier exported by the offline
// trainer. Artifacts are JSON documents pinned to the feature schema version.
package model
