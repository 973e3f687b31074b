package controller

// Event is an input to the controller loop.
type Event interface {
	event()
}

// Target is the element that had focus when a key was pressed.
type Target int

const (
	TargetBody Target = iota
	TargetSearchInput
	TargetOtherInput
)

type IconClicked struct{}

type KeyPressed struct {
	Key    string
	Alt    bool
	Ctrl   bool
	Meta   bool
	Target Target
}

// InputChanged carries the full current value of the search input.
type InputChanged struct {
	Value string
}

type ResultClicked struct {
	Index int
}

// LocationChanged is sent on page load and on every history navigation.
type LocationChanged struct {
	URL string
}

type MarkClicked struct{}

// searchReady is posted when the assets for query generation gen are ready.
type searchReady struct {
	gen  uint64
	term string
}

type marksFaded struct{}

func (IconClicked) event()     {}
func (KeyPressed) event()      {}
func (InputChanged) event()    {}
func (ResultClicked) event()   {}
func (LocationChanged) event() {}
func (MarkClicked) event()     {}
func (searchReady) event()     {}
func (marksFaded) event()      {}
