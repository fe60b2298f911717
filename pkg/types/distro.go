package types

// DistroEntry maps a short distro name to its base image.
type DistroEntry struct {
	Name  string `json:"name" yaml:"name"`
	Image string `json:"image" yaml:"image"`
}

// DistroListing is a registry entry annotated with the active marker.
type DistroListing struct {
	Name   string `json:"name"`
	Image  string `json:"image"`
	Active bool   `json:"active"`
}

// DistroRequest is the request body for switching distros.
type DistroRequest struct {
	Name string `json:"name"`
}

// DistroSwitchResponse is returned after a distro switch.
type DistroSwitchResponse struct {
	Previous string        `json:"previous"`
	Current  string        `json:"current"`
	Changed  bool          `json:"changed"`
	Repaired bool          `json:"repaired,omitempty"`
	Status   SandboxStatus `json:"status"`
	Message  string        `json:"message"`
}
