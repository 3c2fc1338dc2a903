package indexdb

type TickRow struct {
	Tick     uint64 `json:"tick"`
	Checksum string `json:"checksum"`
	Intents  int    `json:"intents"`
}

type SnapshotRow struct {
	Tick       uint64 `json:"tick"`
	Path       string `json:"path"`
	Entities   int    `json:"entities"`
	Checksum   string `json:"checksum"`
	RecordedAt string `json:"recorded_at"`
}

// RecentTicks returns the newest indexed ticks, newest first. Reads share
// the single connection with the writer, so a large limit can wait on the
// current batch commit.
func (s *SQLiteIndex) RecentTicks(limit int) ([]TickRow, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := s.db.Query(`SELECT tick,checksum,intents FROM ticks ORDER BY tick DESC LIMIT ?`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := make([]TickRow, 0, limit)
	for rows.Next() {
		var r TickRow
		if err := rows.Scan(&r.Tick, &r.Checksum, &r.Intents); err != nil {
			return nil, err
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

// RecentSnapshots returns the newest archived snapshots, newest first.
func (s *SQLiteIndex) RecentSnapshots(limit int) ([]SnapshotRow, error) {
	if limit <= 0 {
		limit = 20
	}
	rows, err := s.db.Query(`SELECT tick,path,entities,checksum,recorded_at FROM snapshots ORDER BY tick DESC LIMIT ?`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := make([]SnapshotRow, 0, limit)
	for rows.Next() {
		var r SnapshotRow
		if err := rows.Scan(&r.Tick, &r.Path, &r.Entities, &r.Checksum, &r.RecordedAt); err != nil {
			return nil, err
		}
		out = append(out, r)
	}
	return out, rows.Err()
}
