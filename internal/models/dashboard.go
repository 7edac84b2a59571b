package models

// DashboardMetrics aggregates portfolio-wide compliance posture.
type DashboardMetrics struct {
	TotalProperties   int `json:"totalProperties"`
	TotalUnits        int `json:"totalUnits"`
	VerifiedUnits     int `json:"verifiedUnits"`
	InProgressUnits   int `json:"inProgressUnits"`
	NeedsReviewUnits  int `json:"needsReviewUnits"`
	VacantUnits       int `json:"vacantUnits"`
	OpenMatches       int `json:"openMatches"`
	OpenDiscrepancies int `json:"openDiscrepancies"`
}

// PropertyStatusCount is one row of a property's status breakdown.
type PropertyStatusCount struct {
	Status string `json:"status"`
	Count  int    `json:"count"`
}
