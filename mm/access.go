package mm

// Access is a bit set of page access rights.
type Access uint8

const (
	// Read allows loads from the range.
	Read Access = 1 << iota
	// Write allows stores to the range.
	Write
	// Exec allows instruction fetches from the range.
	Exec
)

// String renders the rights in ls -l style: "rw-", "r-x", "---".
func (a Access) String() string {
	b := [3]byte{'-', '-', '-'}
	if a&Read != 0 {
		b[0] = 'r'
	}
	if a&Write != 0 {
		b[1] = 'w'
	}
	if a&Exec != 0 {
		b[2] = 'x'
	}
	return string(b[:])
}
