package config

import "time"

// Dataset defaults
const (
	// DefaultCutoff marks the start of normal operation. Only records
	// strictly after this instant are accepted into a dataset.
	DefaultCutoff = "2019-03-01"

	// CutoffLayout is the layout used for dataset.cutoff values.
	CutoffLayout = "2006-01-02"

	// SourcePrefix and SourceSuffix are stripped from a source filename
	// to obtain its tenant id: sgh0201a8c87da4.csv -> 0201a8c87da4.
	SourcePrefix = "sgh"
	SourceSuffix = ".csv"
)

// DefaultSources lists the expected per-tenant source files.
var DefaultSources = []string{
	"sgh0201a8c87da4.csv",
	"sgh0201a17a7a16.csv",
	"sgh0201b9b7d045.csv",
	"sgh0201e9248493.csv",
	"sgh0201f6cb55ed.csv",
	"sgh02015d5c61cc.csv",
	"sgh02018fe9be2c.csv",
	"sgh02019d93db3f.csv",
	"sgh020102d29c86.csv",
	"sgh020114a6a800.csv",
	"sgh020125bce03a.csv",
	"sgh020149c615c5.csv",
	"sgh020177a7a91d.csv",
}

// Server defaults
const (
	DefaultPort           = "8080"
	DefaultReloadInterval = 1 * time.Hour
	ServerReadTimeout     = 10 * time.Second
	ServerWriteTimeout    = 30 * time.Second
	ShutdownTimeout       = 30 * time.Second
)

// Rebuild retry policy
const (
	RebuildMaxRetries = 3
	RebuildBaseDelay  = 30 * time.Second
)

// Storage defaults
const (
	DefaultStoragePath = "./data/tenantobs"
	DefaultMaxMemoryMB = 48
)

// Aggregation limits
const (
	// MaxParallelViews bounds how many aggregate views are computed at once.
	MaxParallelViews = 4
)

// Logging defaults
const (
	DefaultLogLevel  = "info"
	DefaultLogFormat = "console"
)
