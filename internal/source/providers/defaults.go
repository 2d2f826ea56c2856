package providers

// Provider names as used in configuration, logs and metrics.
const (
	NameFMI             = "fmi"
	NameDigitrafficRoad = "digitraffic-road"
	NameDigitrafficRail = "digitraffic-rail"
	NameFoli            = "foli"
	NameSYKE            = "syke"
	NameFingrid         = "fingrid"
	NameStatFinGeo      = "statfin-geo"
	NameStatFinData     = "statfin-data"
)

// DefaultSettings returns the built-in settings of every provider keyed by
// name. Timeout, user agent and keys are filled in from configuration.
// Fingrid allows ten requests per minute per key.
func DefaultSettings() map[string]Settings {
	settings := map[string]Settings{
		NameFMI:             {BaseURL: FMIBaseURL, RatePerSecond: 5, Burst: 2},
		NameDigitrafficRoad: {BaseURL: DigitrafficRoadBaseURL, RatePerSecond: 5, Burst: 2},
		NameDigitrafficRail: {BaseURL: DigitrafficRailBaseURL, RatePerSecond: 5, Burst: 2},
		NameFoli:            {BaseURL: FoliBaseURL, RatePerSecond: 2, Burst: 1},
		NameSYKE:            {BaseURL: SYKEBaseURL, RatePerSecond: 2, Burst: 1},
		NameFingrid:         {BaseURL: FingridBaseURL, RatePerSecond: 10.0 / 60, Burst: 3, RequireKey: true},
		NameStatFinGeo:      {BaseURL: StatFinGeoBaseURL, RatePerSecond: 2, Burst: 1},
		NameStatFinData:     {BaseURL: StatFinDataBaseURL, RatePerSecond: 2, Burst: 1},
	}
	for name, s := range settings {
		s.Name = name
		s.Backoff = DefaultBackoff()
		settings[name] = s
	}
	return settings
}
