package domain

// Stats holds aggregate counts over an incident collection.
type Stats struct {
	Total    int                    `json:"total"`
	Active   int                    `json:"active"`
	P1       int                    `json:"p1"`
	P2       int                    `json:"p2"`
	P3       int                    `json:"p3"`
	P4       int                    `json:"p4"`
	ByStatus map[IncidentStatus]int `json:"by_status"`
}

// ComputeStats derives counts from incidents.
func ComputeStats(incidents []Incident) Stats {
	stats := Stats{
		Total:    len(incidents),
		ByStatus: make(map[IncidentStatus]int, len(IncidentStatuses)),
	}

	for _, inc := range incidents {
		if inc.IsActive() {
			stats.Active++
		}
		stats.ByStatus[inc.Status]++

		switch inc.Severity {
		case SeverityP1:
			stats.P1++
		case SeverityP2:
			stats.P2++
		case SeverityP3:
			stats.P3++
		case SeverityP4:
			stats.P4++
		}
	}

	return stats
}
