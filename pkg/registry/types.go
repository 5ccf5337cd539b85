// Package registry implements the Model Registry: persistent per-model
// metadata, concurrent downloads with at-most-one-in-flight-per-model
// semantics, and the single-active-model invariant across the catalogue.
package registry

import "strings"

// State is the lifecycle state of a catalogue entry.
type State string

const (
	NotInstalled State = "not_installed"
	Downloading  State = "downloading"
	Ready        State = "ready"
	Active       State = "active"
)

// ModelMetadata is the persisted record for one catalogue entry.
type ModelMetadata struct {
	ModelID    string   `json:"model_id"`
	RepoID     string   `json:"repo_id,omitempty"`
	Filename   string   `json:"filename,omitempty"`
	Checksum   string   `json:"checksum,omitempty"`
	Tags       []string `json:"tags"`
	State      State    `json:"state"`
	LocalPath  string   `json:"local_path,omitempty"`
	ActivePath string   `json:"active_path,omitempty"`
}

func (m ModelMetadata) clone() ModelMetadata {
	tags := make([]string, len(m.Tags))
	copy(tags, m.Tags)
	m.Tags = tags
	return m
}

// HasTag reports whether tag (case-insensitive) is present.
func (m ModelMetadata) HasTag(tag string) bool {
	for _, t := range m.Tags {
		if strings.EqualFold(t, tag) {
			return true
		}
	}
	return false
}

// ProgressStatus is the lifecycle status of a download.
type ProgressStatus string

const (
	Queued      ProgressStatus = "queued"
	DownloadingStatus ProgressStatus = "downloading"
	Completed   ProgressStatus = "completed"
	Errored     ProgressStatus = "error"
	Cancelled   ProgressStatus = "cancelled"
)

// ProgressRecord tracks one model's download progress.
type ProgressRecord struct {
	Status     ProgressStatus `json:"status"`
	Downloaded int64          `json:"downloaded"`
	Total      *int64         `json:"total"`
	Percent    *float64       `json:"percent"`
	Error      *string        `json:"error"`
	ErrorCode  *int           `json:"error_code"`
}

func (p ProgressRecord) clone() ProgressRecord {
	if p.Total != nil {
		v := *p.Total
		p.Total = &v
	}
	if p.Percent != nil {
		v := *p.Percent
		p.Percent = &v
	}
	if p.Error != nil {
		v := *p.Error
		p.Error = &v
	}
	if p.ErrorCode != nil {
		v := *p.ErrorCode
		p.ErrorCode = &v
	}
	return p
}

func int64Ptr(v int64) *int64 { return &v }

// recomputePercent derives percent from downloaded/total:
// percent = round(100*downloaded/total, 2) when total is a positive int.
func (p *ProgressRecord) recomputePercent() {
	if p.Total == nil || *p.Total <= 0 {
		p.Percent = nil
		return
	}
	pct := float64(p.Downloaded) / float64(*p.Total) * 100
	pct = roundTo2(pct)
	p.Percent = &pct
}

func roundTo2(v float64) float64 {
	return float64(int64(v*100+0.5)) / 100
}

// StartDownloadOptions carries the optional fields for start_download.
type StartDownloadOptions struct {
	HFToken  string
	Checksum string
	Tags     []string
}
