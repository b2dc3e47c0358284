package config

// ResolveStatePath implements the persisted-state location priority
// order from spec.md §6: explicit config path -> environment override
// -> <data-dir>/devices.json -> fallback path.
func ResolveStatePath(explicit, envOverride, dataDir, fallback string) string {
	switch {
	case explicit != "":
		return explicit
	case envOverride != "":
		return envOverride
	case dataDir != "":
		return dataDir + "/" + defaultStateFileName
	default:
		return fallback
	}
}
