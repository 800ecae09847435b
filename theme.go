package tether

// Theme defines semantic color mappings using ANSI color indices (0-15).
// The user's terminal theme determines the actual RGB values, so CLI output
// automatically matches any color scheme.
type Theme struct {
	Tool    int // tool names
	Error   int // error messages
	Success int // success indicators
	Muted   int // secondary text, gutters
	Accent  int // headings, links
}

// DefaultTheme returns the default ANSI color mapping.
func DefaultTheme() Theme {
	return Theme{
		Tool:    3,
		Error:   1,
		Success: 2,
		Muted:   8,
		Accent:  5,
	}
}
