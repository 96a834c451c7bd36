package protocol

// Addressing constants shared with the driver package and its INF.
const (
	// AdapterGUID is the device interface class the driver registers.
	AdapterGUID = "{00b41627-04c4-429e-a26e-0265cf50c8fa}"
	// DisplayClassGUID is the Windows display adapter setup class.
	DisplayClassGUID = "{4d36e968-e325-11ce-bfc1-08002be10318}"
	HardwareID       = `Root\Parsec\VDA`
	// ServiceName is the UMDF host service of the driver.
	ServiceName = "ParsecVDA"

	// DisplayID is the PnP model token of monitors the adapter creates.
	DisplayID = "PSCCDD0"
	// AdapterName is the device description the driver's INF installs.
	AdapterName = "Parsec Virtual Display Adapter"
)
