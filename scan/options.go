package scan

import "errors"

// DefaultBatchSize is the number of rows decoded into each record when no
// override is given.
const DefaultBatchSize = 32768

var ErrBatchSize = errors.New("batch size must be a positive integer")

type config struct {
	batchSize           int64
	convertLogicalTypes bool
	glob                bool
	singleColName       string
}

func defaultConfig() config {
	return config{batchSize: DefaultBatchSize, glob: true}
}

// Option configures a Scanner.
type Option func(*config)

// WithBatchSize sets how many rows to decode into each record. Validated
// eagerly by NewScanner; must be positive.
func WithBatchSize(n int64) Option {
	return func(c *config) { c.batchSize = n }
}

// WithConvertLogicalTypes downgrades unrecognized logical types backed by a
// supported physical type to that physical type instead of failing.
func WithConvertLogicalTypes() Option {
	return func(c *config) { c.convertLogicalTypes = true }
}

// WithoutGlob disables glob expansion of path sources; paths are opened
// verbatim.
func WithoutGlob() Option {
	return func(c *config) { c.glob = false }
}

// WithSingleColName wraps non-record top-level schemas into a one-field
// record under the given name. Without it such schemas are an error.
func WithSingleColName(name string) Option {
	return func(c *config) { c.singleColName = name }
}
