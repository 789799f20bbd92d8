package resolve

// ResolutionResult is the successful outcome of resolution: the complete
// package set, one request per distinct package id in deterministic order,
// plus the soft recommendations that went unmet.
type ResolutionResult struct {
	Packages                   []*PackageRequest
	UnfulfilledRecommendations []UnfulfilledRecommendation
}

// UnfulfilledRecommendation is a recommendation whose positive target never
// became required, or whose inverted target did.
type UnfulfilledRecommendation struct {
	Req    *PackageRequest
	Invert bool
}
