// Package registry builds the record database a Processor answers
// questions from, out of a host's name and addresses plus the set of
// services currently registered with mdnsd. Building the database is
// the one place mdnsd's own policy choices live — which records a
// service gets, which TTLs and cache-flush bits they carry — as opposed
// to internal/message and internal/query, which only ever implement the
// wire protocol and know nothing about services or hosts.
package registry

import (
	"fmt"
	"net"
	"sort"
	"strings"

	"github.com/gmondada/mdnsd/internal/errors"
	"github.com/gmondada/mdnsd/internal/message"
	"github.com/gmondada/mdnsd/internal/protocol"
	"github.com/gmondada/mdnsd/internal/records"
)

// EnumerationDomain is the well-known DNS-SD service enumeration name
// (RFC 6763 §9) mdnsd always publishes a PTR record under, one per
// registered service type, so "dns-sd -B" style browsers can discover
// which service types a host advertises at all.
const EnumerationDomain = "_services._dns-sd._udp.local"

// Instance describes one registered service instance: an HTTP server,
// a printer, anything a DNS-SD client might browse for.
type Instance struct {
	Name        string // e.g. "Gabriele's Printer"
	ServiceType string // e.g. "_ipp._tcp"
	Port        uint16
	TXT         map[string]string
}

// Build assembles a record database for one network interface out of
// a host name, the interface's addresses, and the full set of currently
// registered service instances. The returned database is immutable; a
// new one must be built (and swapped in by the caller) whenever
// registration or addressing changes.
func Build(hostName string, addresses []net.IP, instances []Instance) (*records.Database, error) {
	const domainSuffix = "local"

	hostDomainName, err := message.EncodeName(hostName + "." + domainSuffix)
	if err != nil {
		return nil, fmt.Errorf("host name: %w", err)
	}

	var domains []*records.Domain

	hostDomain, err := buildHostDomain(hostDomainName, addresses)
	if err != nil {
		return nil, err
	}
	domains = append(domains, hostDomain)

	serviceTypePTRs := make(map[string][]*records.Record) // service type domain name -> PTR records to instances

	for _, inst := range instances {
		if err := validateServiceType(inst.ServiceType); err != nil {
			return nil, err
		}
		instDomainName, err := message.EncodeName(inst.Name + "." + inst.ServiceType + "." + domainSuffix)
		if err != nil {
			return nil, fmt.Errorf("service instance %q: %w", inst.Name, err)
		}
		instDomain, err := buildInstanceDomain(instDomainName, hostDomainName, inst)
		if err != nil {
			return nil, err
		}
		domains = append(domains, instDomain)

		serviceTypeDomainName, err := message.EncodeName(inst.ServiceType + "." + domainSuffix)
		if err != nil {
			return nil, fmt.Errorf("service type %q: %w", inst.ServiceType, err)
		}
		ptr := &records.Record{
			Type:       protocol.TypePTR,
			CacheFlush: false,
			TTL:        protocol.TTLServicePTR,
			Name:       instDomainName,
		}
		key := string(serviceTypeDomainName)
		serviceTypePTRs[key] = append(serviceTypePTRs[key], ptr)
	}

	serviceTypeNames := make([]string, 0, len(serviceTypePTRs))
	for key := range serviceTypePTRs {
		serviceTypeNames = append(serviceTypeNames, key)
	}
	sort.Strings(serviceTypeNames) // deterministic domain order, easier to reason about and to test

	var enumPTRs []*records.Record
	for _, key := range serviceTypeNames {
		domains = append(domains, records.NewDomain([]byte(key), serviceTypePTRs[key]...))
		enumPTRs = append(enumPTRs, &records.Record{
			Type:       protocol.TypePTR,
			CacheFlush: false,
			TTL:        protocol.TTLServicePTR,
			Name:       []byte(key),
		})
	}

	if len(enumPTRs) > 0 {
		enumDomainName, err := message.EncodeName(EnumerationDomain)
		if err != nil {
			errors.Fatal("invalid built-in enumeration domain name: %v", err)
		}
		domains = append(domains, records.NewDomain(enumDomainName, enumPTRs...))
	}

	return records.NewDatabase(domains), nil
}

func buildHostDomain(name []byte, addresses []net.IP) (*records.Domain, error) {
	var recs []*records.Record
	for _, addr := range addresses {
		if v4 := addr.To4(); v4 != nil {
			recs = append(recs, &records.Record{
				Type:       protocol.TypeA,
				CacheFlush: true,
				TTL:        protocol.TTLHostAddress,
				Address:    append([]byte(nil), v4...),
			})
		} else if v6 := addr.To16(); v6 != nil {
			recs = append(recs, &records.Record{
				Type:       protocol.TypeAAAA,
				CacheFlush: true,
				TTL:        protocol.TTLHostAddress,
				Address:    append([]byte(nil), v6...),
			})
		}
	}
	recs = append(recs, &records.Record{
		Type:       protocol.TypeNSEC,
		CacheFlush: true,
		TTL:        protocol.TTLNSEC,
	})
	return records.NewDomain(name, recs...), nil
}

func buildInstanceDomain(instDomainName, hostDomainName []byte, inst Instance) (*records.Domain, error) {
	if inst.Port == 0 {
		return nil, &errors.ValidationError{Field: "port", Value: "0", Reason: "service instance must have a non-zero port"}
	}
	txt := buildTXT(inst.TXT)
	recs := []*records.Record{
		{
			Type:       protocol.TypeSRV,
			CacheFlush: true,
			TTL:        protocol.TTLServiceSRV,
			SRV: records.SRVData{
				Priority: 0,
				Weight:   0,
				Port:     inst.Port,
				Target:   hostDomainName,
			},
		},
		{
			Type:       protocol.TypeTXT,
			CacheFlush: true,
			TTL:        protocol.TTLServiceTXT,
			TXT:        txt,
		},
		{
			Type:       protocol.TypeNSEC,
			CacheFlush: true,
			TTL:        protocol.TTLNSEC,
		},
	}
	return records.NewDomain(instDomainName, recs...), nil
}

// buildTXT encodes a set of key/value attributes into TXT record rdata:
// each pair becomes one length-prefixed "key=value" character string.
// An empty (or nil) attribute set still produces one zero-length
// character string, per RFC 6763 §6.1 — some clients, the macOS dns-sd
// command among them, expect a TXT record to be present even when a
// service advertises no attributes at all.
func buildTXT(attrs map[string]string) []byte {
	if len(attrs) == 0 {
		return []byte{0}
	}
	keys := make([]string, 0, len(attrs))
	for k := range attrs {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	var out []byte
	for _, k := range keys {
		pair := k
		if v := attrs[k]; v != "" {
			pair = k + "=" + v
		}
		for len(pair) > 255 {
			out = append(out, 255)
			out = append(out, pair[:255]...)
			pair = pair[255:]
		}
		out = append(out, byte(len(pair)))
		out = append(out, pair...)
	}
	return out
}

// validateServiceType does a light sanity check that a service type
// looks like "_service._proto" (RFC 6763 §4.1.2), rather than an
// arbitrary string that would otherwise be accepted silently by
// EncodeName.
func validateServiceType(serviceType string) error {
	parts := strings.Split(serviceType, ".")
	if len(parts) != 2 || !strings.HasPrefix(parts[0], "_") || !strings.HasPrefix(parts[1], "_") {
		return &errors.ValidationError{Field: "service type", Value: serviceType, Reason: `must look like "_service._proto"`}
	}
	return nil
}
