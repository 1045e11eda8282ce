package goeg4

// Option adjusts how a frame is analyzed.
type Option func(*options)

type options struct {
	start      *uint16
	noHeader   bool
	maxRecords int
}

func newOptions(opts []Option) options {
	var o options
	for _, opt := range opts {
		opt(&o)
	}
	return o
}

// WithStartRegister overrides the start register, including the one a portal
// file declares.
func WithStartRegister(reg uint16) Option {
	return func(o *options) {
		r := reg
		o.start = &r
	}
}

// WithoutSerialHeader treats the frame as bare register data with no leading
// ASCII serial block to strip.
func WithoutSerialHeader() Option {
	return func(o *options) { o.noHeader = true }
}

// WithMaxRegisters caps how many registers one pass decodes, as a guard
// against oversized frames. Zero means no cap.
func WithMaxRegisters(n int) Option {
	return func(o *options) { o.maxRecords = n }
}
