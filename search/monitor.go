package search

import "github.com/poiesic/mailkb/core"

// SearchMonitor provides hooks to observe the search process.
// Implement this interface to trace intermediate steps of a search.
type SearchMonitor interface {
	Start(query string, opts Options)
	AfterEmbedding(dimension int, zero bool)
	AfterVectorSearch(matches []*core.SearchResult)
	Finish(results []*Result)
}

// noopMonitor is a no-op implementation of SearchMonitor
type noopMonitor struct{}

var _ SearchMonitor = (*noopMonitor)(nil)

func (n *noopMonitor) Start(_ string, _ Options)                {}
func (n *noopMonitor) AfterEmbedding(_ int, _ bool)             {}
func (n *noopMonitor) AfterVectorSearch(_ []*core.SearchResult) {}
func (n *noopMonitor) Finish(_ []*Result)                       {}
