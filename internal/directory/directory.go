package directory

import (
	"log"
	"strings"

	"laundry-fleet-backend/config"
)

// DeviceType distinguishes washers from dryers.
type DeviceType string

const (
	TypeWasher DeviceType = "washer"
	TypeDryer  DeviceType = "dryer"
)

// Mapping ties one vendor machine to its internal identity. Immutable after
// the directory is built.
type Mapping struct {
	VendorDeviceID string
	SiteID         string
	LocalID        string
	Label          string
	DeviceType     DeviceType
	Model          string
	AgentID        string
}

// Directory is a read-only lookup table between vendor and internal machine
// identifiers, built once from configuration.
type Directory struct {
	byAgentLocal map[string]map[string]*Mapping
	byVendorID   map[string]*Mapping
	siteByAgent  map[string]string
	agentOrder   []string
}

// New builds a directory from the locations string and the configured sites.
// The locations string is a comma-separated list of siteId[:agentOverride]
// entries; entries naming a site that is not configured are skipped.
func New(locations string, sites []config.SiteConfig) *Directory {
	siteIndex := make(map[string]config.SiteConfig, len(sites))
	for _, s := range sites {
		siteIndex[s.ID] = s
	}

	d := &Directory{
		byAgentLocal: make(map[string]map[string]*Mapping),
		byVendorID:   make(map[string]*Mapping),
		siteByAgent:  make(map[string]string),
	}

	for _, entry := range strings.Split(locations, ",") {
		entry = strings.TrimSpace(entry)
		if entry == "" {
			continue
		}

		siteID := entry
		agentOverride := ""
		if idx := strings.Index(entry, ":"); idx >= 0 {
			siteID = strings.TrimSpace(entry[:idx])
			agentOverride = strings.TrimSpace(entry[idx+1:])
		}

		site, ok := siteIndex[siteID]
		if !ok {
			log.Printf("directory: skipping unknown site %q in locations", siteID)
			continue
		}

		agentID := site.Agent
		if agentOverride != "" {
			agentID = agentOverride
		}
		if agentID == "" {
			log.Printf("directory: skipping site %q: no agent id configured or overridden", siteID)
			continue
		}

		if _, exists := d.siteByAgent[agentID]; !exists {
			d.siteByAgent[agentID] = siteID
			d.byAgentLocal[agentID] = make(map[string]*Mapping)
			d.agentOrder = append(d.agentOrder, agentID)
		}

		for _, mc := range site.Machines {
			m := &Mapping{
				VendorDeviceID: mc.VendorID,
				SiteID:         siteID,
				LocalID:        mc.LocalID,
				Label:          mc.Label,
				DeviceType:     DeviceType(mc.Type),
				Model:          mc.Model,
				AgentID:        agentID,
			}
			d.byAgentLocal[agentID][mc.LocalID] = m
			d.byVendorID[mc.VendorID] = m
		}
	}

	return d
}

// ByAgentLocal returns the mapping for a (agentId, localId) pair.
func (d *Directory) ByAgentLocal(agentID, localID string) (*Mapping, bool) {
	locals, ok := d.byAgentLocal[agentID]
	if !ok {
		return nil, false
	}
	m, ok := locals[localID]
	return m, ok
}

// ByVendorID returns the mapping for a vendor device id.
func (d *Directory) ByVendorID(vendorDeviceID string) (*Mapping, bool) {
	m, ok := d.byVendorID[vendorDeviceID]
	return m, ok
}

// SiteForAgent returns the vendor site id served by the given agent.
func (d *Directory) SiteForAgent(agentID string) (string, bool) {
	siteID, ok := d.siteByAgent[agentID]
	return siteID, ok
}

// MappingsForAgent returns all machine mappings behind the given agent.
func (d *Directory) MappingsForAgent(agentID string) []*Mapping {
	locals, ok := d.byAgentLocal[agentID]
	if !ok {
		return nil
	}
	mappings := make([]*Mapping, 0, len(locals))
	for _, m := range locals {
		mappings = append(mappings, m)
	}
	return mappings
}

// Agents returns the configured agent ids in locations-string order.
func (d *Directory) Agents() []string {
	agents := make([]string, len(d.agentOrder))
	copy(agents, d.agentOrder)
	return agents
}

// AllMappings returns every configured machine mapping.
func (d *Directory) AllMappings() []*Mapping {
	mappings := make([]*Mapping, 0, len(d.byVendorID))
	for _, m := range d.byVendorID {
		mappings = append(mappings, m)
	}
	return mappings
}
