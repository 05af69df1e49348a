// Package types defines shared types used across the application.
package types

import "time"

// Interaction represents a simple user interaction with a webpage, eg.
// accepting a consent banner. Only the dynamic fetcher executes them.
type Interaction struct {
	Type     string `yaml:"type,omitempty"`
	Selector string `yaml:"selector,omitempty"`
	// Frame is the selector of an iframe Selector is evaluated in.
	Frame   string `yaml:"frame,omitempty"`
	Count   int    `yaml:"count,omitempty"`
	Delay   int    `yaml:"delay,omitempty"`
	Timeout int    `yaml:"timeout,omitempty"`
}

const (
	InteractionTypeClick  = "click"
	InteractionTypeScroll = "scroll"
	InteractionTypeWait   = "wait"
)

// RunStatus represents the outcome of one pipeline run.
type RunStatus struct {
	SearchTerm      string    `json:"searchTerm"`
	NrPages         int       `json:"nrPages"`
	NrItems         int       `json:"nrItems"`
	NrSkipped       int       `json:"nrSkipped"`
	NrErrors        int       `json:"nrErrors"`
	NrDropped       int       `json:"nrDroppedSections"`
	NrImages        int       `json:"nrImages"`
	LastScrapeStart time.Time `json:"lastScrapeStart"`
	LastScrapeEnd   time.Time `json:"lastScrapeEnd"`
}

// Add accumulates the counters of o into s.
func (s *RunStatus) Add(o RunStatus) {
	s.NrPages += o.NrPages
	s.NrItems += o.NrItems
	s.NrSkipped += o.NrSkipped
	s.NrErrors += o.NrErrors
	s.NrDropped += o.NrDropped
	s.NrImages += o.NrImages
}
