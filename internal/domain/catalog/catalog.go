// Package catalog provides the raw records returned by catalog providers
// before they are normalized into tracks and entities.
package catalog

// DurationUnit is the unit a provider reports durations in.
type DurationUnit int

const (
	Seconds DurationUnit = iota
	Milliseconds
	Minutes
)

// String returns the string representation of the unit.
func (u DurationUnit) String() string {
	switch u {
	case Seconds:
		return "seconds"
	case Milliseconds:
		return "milliseconds"
	case Minutes:
		return "minutes"
	default:
		return "unknown"
	}
}

// Link is one entry of a ranked list of images or encodings.
// Lists are ordered from lowest to highest quality.
type Link struct {
	Quality string
	URL     string
	Link    string // Older payloads use "link" instead of "url"
}

// Href returns the usable address of the link.
func (l Link) Href() string {
	if l.URL != "" {
		return l.URL
	}
	return l.Link
}

// Song is a raw song record.
type Song struct {
	ID             string
	Name           string
	Title          string
	PrimaryArtists []string
	Label          string
	Album          string
	Images         []Link
	Downloads      []Link
	Duration       float64
	Unit           DurationUnit
	Explicit       bool
}

// Album is a raw album record.
type Album struct {
	ID             string
	Name           string
	Title          string
	PrimaryArtists []string
	Label          string
	Year           string
	Images         []Link
	SongCount      int
	Songs          []Song
}

// Artist is a raw artist record.
type Artist struct {
	ID       string
	Name     string
	Title    string
	Images   []Link
	Songs    []Song
	TopSongs []Song
}

// Playlist is a raw playlist record.
type Playlist struct {
	ID          string
	Name        string
	Title       string
	Description string
	Owner       string
	Images      []Link
	SongCount   int
	Songs       []Song
}

// Page is one page of search results.
type Page[T any] struct {
	Results []T
	Total   int
	Start   int
}
