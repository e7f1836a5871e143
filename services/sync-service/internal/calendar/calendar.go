// Package calendar holds the raw, unparsed values read off the rendered
// calendar grid.
package calendar

// Event is a handle to one visible appointment element. Index is its position
// in document order; NodeID is the browser's DOM node id and is only
// meaningful to the page that produced it.
type Event struct {
	Index  int
	NodeID int64
}

// CardFields are the always-visible lines of an appointment card, in the
// order the card renders them.
type CardFields struct {
	Client     string // "Ana María Pérez"
	Service    string // "Manicure semipermanente"
	Specialist string // "con Leslie"
	TimeRange  string // "8:45 am - 9:00 am"
	Background string // "rgb(76, 175, 80)"
}

// Overlay is what the hover menu showed for an element. Both fields are empty
// when no menu was open at read time.
type Overlay struct {
	Text  string
	Lines []string
}

func (o Overlay) Empty() bool {
	return o.Text == "" && len(o.Lines) == 0
}
