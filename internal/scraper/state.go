package scraper

// State is a step of a search.
type State int

const (
	Idle State = iota
	SearchSubmitted
	NoResults
	ResultsFound
	PaginationLoop
	DetailPageVisit
	Extracted
	ExtractionFailed
	Done
)

var stateNames = map[State]string{
	Idle:             "idle",
	SearchSubmitted:  "search_submitted",
	NoResults:        "no_results",
	ResultsFound:     "results_found",
	PaginationLoop:   "pagination_loop",
	DetailPageVisit:  "detail_page_visit",
	Extracted:        "extracted",
	ExtractionFailed: "extraction_failed",
	Done:             "done",
}

func (s State) String() string {
	if n, ok := stateNames[s]; ok {
		return n
	}
	return "unknown"
}

// SearchSession is the state of the search for one term. It is discarded
// once the term is done.
type SearchSession struct {
	Term string
	// Page is the current result page, starting at 1.
	Page int
	// URLs are the detail page urls of the current result page in the
	// order they appeared.
	URLs       []string
	TotalPages int
	State      State
}
