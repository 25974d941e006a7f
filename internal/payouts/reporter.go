package payouts

// Stats summarize the queue for the status endpoint.
type Stats struct {
	QueueLength    int  `json:"queueLength"`
	TotalCompleted int  `json:"totalCompleted"`
	TotalFailed    int  `json:"totalFailed"`
	TotalPayouts   int  `json:"totalPayouts"`
	IsProcessing   bool `json:"isProcessing"`
}

// Snapshot is a point-in-time projection of queue state. Completed and failed
// are capped to the most recent window; totals in Stats cover everything.
type Snapshot struct {
	Pending   []Record `json:"pending"`
	Current   *Record  `json:"current"`
	Completed []Record `json:"completed"`
	Failed    []Record `json:"failed"`
	Stats     Stats    `json:"stats"`
}

// Get returns a copy of the record with the given ID. Queue positions are
// recomputed at read time so a record enqueued behind others reports where it
// stands now, not where it started.
func (q *Queue) Get(id string) (Record, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()

	record, ok := q.records[id]
	if !ok {
		return Record{}, false
	}

	snapshot := record.clone()
	if record.Status == StatusQueued {
		snapshot.QueuePosition = q.positionLocked(id)
	}
	return snapshot, true
}

// Status projects the whole queue: pending records with live positions, the
// in-flight record if any, and the recent completion and failure history.
func (q *Queue) Status() Snapshot {
	q.mu.Lock()
	defer q.mu.Unlock()

	snapshot := Snapshot{
		Pending:   make([]Record, 0, len(q.pending)),
		Completed: cloneWindow(q.completed, q.historyLimit),
		Failed:    cloneWindow(q.failed, q.historyLimit),
		Stats: Stats{
			QueueLength:    len(q.pending),
			TotalCompleted: len(q.completed),
			TotalFailed:    len(q.failed),
			TotalPayouts:   len(q.records),
			IsProcessing:   q.processing.Load(),
		},
	}

	for i, record := range q.pending {
		entry := record.clone()
		entry.QueuePosition = i + 1
		snapshot.Pending = append(snapshot.Pending, entry)
	}
	if q.current != nil {
		entry := q.current.clone()
		snapshot.Current = &entry
	}
	return snapshot
}

func (q *Queue) positionLocked(id string) int {
	for i, record := range q.pending {
		if record.ID == id {
			return i + 1
		}
	}
	return 0
}

// cloneWindow copies the last limit records, oldest first.
func cloneWindow(records []*Record, limit int) []Record {
	start := 0
	if len(records) > limit {
		start = len(records) - limit
	}
	window := make([]Record, 0, len(records)-start)
	for _, record := range records[start:] {
		window = append(window, record.clone())
	}
	return window
}
