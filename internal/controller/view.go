package controller

// View is the page the controller drives.
type View interface {
	// ShowSearch shows or hides the search panel. Hiding also clears any
	// result focus marker.
	ShowSearch(visible bool)
	// FocusInput focuses and selects the search input.
	FocusInput()
	SetInput(value string)
	// SetBusy toggles the "searching" indicator.
	SetBusy(busy bool)
	ShowResults(visible bool)
	// RenderResults replaces the header line and the result list items.
	RenderResults(header string, items []string)
	// FocusResult moves the focus marker to result i.
	FocusResult(i int)
	Navigate(url string)
	// Mark highlights words in the page's main content.
	Mark(words []string)
	FadeMarks()
	Unmark()
}

// PanelState is derived from the controller's state after each event.
type PanelState int32

const (
	Closed PanelState = iota
	OpenEmpty
	OpenWithResults
)

func (s PanelState) String() string {
	switch s {
	case Closed:
		return "closed"
	case OpenEmpty:
		return "open-empty"
	case OpenWithResults:
		return "open-with-results"
	default:
		return "unknown"
	}
}
