package relay

import (
	"os"

	"github.com/PhaethonH/scxrelay/internal/relaysvc"
	"github.com/PhaethonH/scxrelay/internal/scan"
)

// DefaultUinputPath is where the uinput driver exposes its control
// node on modern kernels.
const DefaultUinputPath = "/dev/uinput"

// Config selects the source device, the driver node, and the advertised
// identity. Inherited descriptors take precedence over paths; a relay
// running on inherited descriptors cannot reopen its source after a
// failure.
type Config struct {
	SourcePath string
	SourceFile *os.File
	UinputPath string
	UinputFile *os.File

	// AutoScan locates the source by USB identity when no path or
	// descriptor is given.
	AutoScan bool
	USBID    scan.USBID

	Identity         relaysvc.Identity
	FilterHomeButton bool

	// ConfigFile points to an optional relay.yml; missing file means
	// defaults. The file is watched and the filter toggle applies live.
	ConfigFile string

	Debug bool
}

// FileConfig is the on-disk shape of relay.yml.
type FileConfig struct {
	Name             string `json:"name"`
	Vendor           uint16 `json:"vendor"`
	Product          uint16 `json:"product"`
	Version          uint16 `json:"version"`
	FilterHomeButton *bool  `json:"filterHomeButton"`
	USBID            string `json:"usbid"`
}

func (fc FileConfig) identity() relaysvc.Identity {
	return relaysvc.Identity{
		Name:    fc.Name,
		Vendor:  fc.Vendor,
		Product: fc.Product,
		Version: fc.Version,
	}
}
