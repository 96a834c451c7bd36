package privilege

// Operations that write machine-wide driver settings.
const (
	OpSetModes       = "set_modes"
	OpSetGPUAffinity = "set_gpu_affinity"
)

var elevatedOps = map[string]bool{
	OpSetModes:       true,
	OpSetGPUAffinity: true,
}

// RequiresElevation returns true if the operation needs admin/root rights.
func RequiresElevation(op string) bool {
	return elevatedOps[op]
}
