package profiles

// Synonym tables map lowercased spreadsheet labels to internal codes.
// Internal codes match themselves and need not be listed.

// NatureLabels covers the project nature column.
var NatureLabels = map[string]string{
	"all":         "all",
	"end to end":  "end_to_end",
	"end-to-end":  "end_to_end",
	"e2e":         "end_to_end",
	"livraison":   "livraison",
	"delivery":    "livraison",
	"service pro": "service_pro",
}

// BusinessUnitLabels covers the BU column.
var BusinessUnitLabels = map[string]string{
	"ict":            "ict",
	"cloud":          "cloud",
	"cybersecurity":  "cybersecurity",
	"cyber security": "cybersecurity",
	"cyber":          "cybersecurity",
	"formation":      "formation",
	"training":       "formation",
	"security":       "security",
	"sécurité":       "security",
}

// DomainLabels accepts the full display names, their abbreviations and the
// names without the abbreviation.
var DomainLabels = map[string]string{
	"others":                             "others",
	"other":                              "others",
	"datacenter facilities (dcf)":        "datacenter_facilities",
	"datacenter facilities":              "datacenter_facilities",
	"dcf":                                "datacenter_facilities",
	"modern network integration (mni)":   "modern_network_integration",
	"modern network integration":         "modern_network_integration",
	"mni":                                "modern_network_integration",
	"agile infrastructure & cloud (aic)": "agile_infrastructure_cloud",
	"agile infrastructure & cloud":       "agile_infrastructure_cloud",
	"aic":                                "agile_infrastructure_cloud",
	"business data integration (bdi)":    "business_data_integration",
	"business data integration":          "business_data_integration",
	"bdi":                                "business_data_integration",
	"digital workspace (dws)":            "digital_workspace",
	"digital workspace":                  "digital_workspace",
	"dws":                                "digital_workspace",
	"secured it (sec)":                   "secured_it",
	"secured it":                         "secured_it",
	"sec":                                "secured_it",
	"expert & managed services - think":  "expert_managed_services_think",
	"expert & managed services - build":  "expert_managed_services_build",
	"expert & managed services - train":  "expert_managed_services_train",
	"expert & managed services - run":    "expert_managed_services_run",
	"none":                               "none",
}

// RevenueLabels covers the revenue type column.
var RevenueLabels = map[string]string{
	"one shot":  "oneshot",
	"one-shot":  "oneshot",
	"oneshot":   "oneshot",
	"recurrent": "recurrent",
	"récurrent": "recurrent",
	"recurring": "recurrent",
}

// CircuitLabels covers the delivery circuit column.
var CircuitLabels = map[string]string{
	"fast":       "fast",
	"fast track": "fast",
	"fast-track": "fast",
	"normal":     "normal",
}

// RiskLabels covers the risk column. Risk has no default.
var RiskLabels = map[string]string{
	"delai":     "delay",
	"délai":     "delay",
	"delay":     "delay",
	"cout":      "cost",
	"coût":      "cost",
	"cost":      "cost",
	"qualite":   "quality",
	"qualité":   "quality",
	"quality":   "quality",
	"perimetre": "scope",
	"périmètre": "scope",
	"scope":     "scope",
}

// PriorityLabels covers the priority column.
var PriorityLabels = map[string]string{
	"urgent": "urgent",
	"high":   "urgent",
	"haute":  "urgent",
	"normal": "normal",
	"basse":  "basse",
	"low":    "basse",
}
