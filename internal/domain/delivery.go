package domain

// DeliveryAttemptResult is the final outcome for one channel within a single
// dispatch call. Attempts is the number of provider calls actually made;
// zero means the channel was excluded during resolution.
type DeliveryAttemptResult struct {
	Channel  Channel
	Attempts int
	Success  bool
	Err      error
}

// DeliverySummary aggregates all per-channel outcomes of one dispatch call.
// It is only handed to callers once every resolved channel has been attempted
// to completion; dispatch never surfaces a partial summary.
type DeliverySummary struct {
	Results map[Channel]DeliveryAttemptResult
	Errors  []error
}

func NewDeliverySummary() *DeliverySummary {
	return &DeliverySummary{
		Results: make(map[Channel]DeliveryAttemptResult),
	}
}

// Add records one channel outcome and folds its error into the summary error list.
func (s *DeliverySummary) Add(result DeliveryAttemptResult) {
	s.Results[result.Channel] = result
	if result.Err != nil {
		s.Errors = append(s.Errors, result.Err)
	}
}

// Succeeded reports whether the given channel delivered.
func (s *DeliverySummary) Succeeded(ch Channel) bool {
	result, ok := s.Results[ch]
	return ok && result.Success
}

// AnySuccess reports whether at least one channel delivered. A subscriber who
// received one notification is considered notified regardless of other failures.
func (s *DeliverySummary) AnySuccess() bool {
	for _, result := range s.Results {
		if result.Success {
			return true
		}
	}
	return false
}
