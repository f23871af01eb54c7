package core

// Score weights. The tier step is larger than every other contribution
// combined, so neither the reprint boost nor a ticket type can lift a job
// over a higher tier. The reprint boost is larger than the spread between
// ticket types.
const (
	tierWeight   = 1000
	reprintBoost = 100
)

var tierValues = map[Priority]int{
	PriorityLow:    0,
	PriorityNormal: 1,
	PriorityHigh:   2,
	PriorityUrgent: 3,
}

var ticketWeights = map[TicketType]int{
	TicketStandard:  0,
	TicketDuplicate: 10,
	TicketThermal:   20,
}

// Score maps a job's category, reprint flag and tier to its queue score.
// An unspecified priority scores as normal; unknown ticket types weigh 0.
func Score(ticketType TicketType, isReprint bool, priority Priority) int {
	tier, ok := tierValues[priority]
	if !ok {
		tier = tierValues[PriorityNormal]
	}

	score := tier*tierWeight + ticketWeights[ticketType]
	if isReprint {
		score += reprintBoost
	}
	return score
}

// ValidPriority reports whether p is empty or a known tier.
func ValidPriority(p Priority) bool {
	if p == "" {
		return true
	}
	_, ok := tierValues[p]
	return ok
}
