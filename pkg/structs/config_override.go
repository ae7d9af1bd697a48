package structs

import "time"

// ConfigOverride pins per-routing-group node resources (and optionally a
// specific image) in place of the provider defaults. The supervisor outdates
// any RUNNING node whose config no longer matches its group's override, the
// same way it outdates nodes on a superseded deployment.
type ConfigOverride struct {
	// RoutingID is the group the override applies to. One override per group.
	RoutingID string `json:"routing_id"`

	// Image, if set, replaces the active deployment's image for this group.
	Image string `json:"image,omitempty"`

	// Zero means "no override"; the provider default applies.
	CPUMilli  int64 `json:"cpu_milli,omitempty"`
	MemoryMB  int64 `json:"memory_mb,omitempty"`
	StorageMB int64 `json:"storage_mb,omitempty"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Outdates returns true if the node's config diverges from the override,
// meaning the node must be replaced. A nil override never outdates anything.
func (o *ConfigOverride) Outdates(n *Node) bool {
	if o == nil {
		return false
	}
	if o.Image != "" && o.Image != n.Image {
		return true
	}
	if o.CPUMilli != 0 && o.CPUMilli != n.CPUMilli {
		return true
	}
	if o.MemoryMB != 0 && o.MemoryMB != n.MemoryMB {
		return true
	}
	if o.StorageMB != 0 && o.StorageMB != n.StorageMB {
		return true
	}
	return false
}
