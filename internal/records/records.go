// Package records holds mdnsd's in-memory record database: the
// read-only snapshot of domains and resource records the query
// processor answers questions from. Building and refreshing that
// snapshot is internal/registry's job; this package only models it and
// offers efficient lookup by name.
package records

import "github.com/gmondada/mdnsd/internal/protocol"

// Record is one resource record owned by a Domain. Exactly one of the
// type-specific fields is populated, selected by Type.
type Record struct {
	Type       protocol.RRType
	CacheFlush bool
	TTL        uint32
	Owner      *Domain // set by NewDomain

	Address []byte // A, AAAA: 4 or 16 raw address bytes

	Name []byte // PTR, NS, CNAME: target name, canonical wire form

	TXT []byte // TXT: already wire-encoded character strings

	SRV SRVData
}

// SRVData is the rdata payload of an SRV record.
type SRVData struct {
	Priority uint16
	Weight   uint16
	Port     uint16
	Target   []byte // canonical wire-form name
}

// Domain is the set of resource records sharing one owner name.
type Domain struct {
	Name    []byte // canonical wire-form name; also the database's lookup key
	Records []*Record
}

// NewDomain builds a Domain owning recs, wiring each record's Owner
// back-reference so the emitter can write each record's owner name and
// walk from an NSEC record to its siblings for the type bitmap.
func NewDomain(name []byte, recs ...*Record) *Domain {
	d := &Domain{Name: name, Records: recs}
	for _, r := range recs {
		r.Owner = d
	}
	return d
}

// HasType reports whether the domain carries at least one record of
// the given type.
func (d *Domain) HasType(t protocol.RRType) bool {
	for _, r := range d.Records {
		if r.Type == t {
			return true
		}
	}
	return false
}

// Database is an immutable, point-in-time snapshot of every domain
// mdnsd can answer for on one network interface. It is rebuilt (never
// mutated in place) whenever registration changes or a new interface
// appears, so a query being processed always sees a consistent view.
type Database struct {
	domains []*Domain
	byName  map[string]*Domain
}

// NewDatabase builds a Database from a set of domains. Domain names
// must be unique; NewDatabase panics otherwise, since a colliding name
// can only come from a bug in the caller that built the domain set.
func NewDatabase(domains []*Domain) *Database {
	db := &Database{
		domains: domains,
		byName:  make(map[string]*Domain, len(domains)),
	}
	for _, d := range domains {
		key := string(d.Name)
		if _, exists := db.byName[key]; exists {
			panic("mdnsd: duplicate domain name in database")
		}
		db.byName[key] = d
	}
	return db
}

// Domains returns every domain in the database, in the order supplied
// to NewDatabase.
func (db *Database) Domains() []*Domain {
	return db.domains
}

// Lookup returns the domain with the given canonical wire-form name, or
// nil if there is none. This is the database's only name-matching
// primitive: it replaces the original implementation's linear scan
// comparing either name pointers or raw bytes with a single hash
// lookup, since a Go map keyed by the name's bytes gives exact,
// content-addressed matching for the cost of a single lookup — there is
// no separate "fast identity path" and "slow byte-compare fallback" to
// keep in sync.
func (db *Database) Lookup(name []byte) *Domain {
	return db.byName[string(name)]
}
