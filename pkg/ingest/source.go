package ingest

import "strings"

// Source is one tenant's log file.
type Source struct {
	File   string // filename relative to the dataset directory
	Tenant string
}

// Naming derives tenant ids from source filenames.
type Naming struct {
	Prefix string
	Suffix string
}

// TenantID strips the extension (everything from the first dot) and then
// the prefix: sgh0201a8c87da4.csv -> 0201a8c87da4.
func (n Naming) TenantID(file string) string {
	base := file
	if n.Suffix != "" {
		if i := strings.Index(base, "."); i >= 0 {
			base = base[:i]
		}
	}
	return strings.TrimPrefix(base, n.Prefix)
}

// Sources maps configured filenames to sources.
func (n Naming) Sources(files []string) []Source {
	sources := make([]Source, 0, len(files))
	for _, f := range files {
		sources = append(sources, Source{File: f, Tenant: n.TenantID(f)})
	}
	return sources
}
