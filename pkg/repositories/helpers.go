package repositories

// nullString returns nil if the string is empty, otherwise returns the string pointer.
func nullString(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}

// commentPlaceholders mirrors the values the comment parser collapses to absent.
// Keep in sync with get_unenriched_batch.
const commentPlaceholders = `('', 'n.v.t.', 'nvt', 'n/a', 'na', 'none')`
