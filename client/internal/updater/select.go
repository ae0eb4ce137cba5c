package updater

// SelectLatest returns the unique selection candidate, the head of the
// fetcher's sorted and filtered sequence. The downgrade policy against the
// running version is layered on top by the coordinator, not applied here.
func SelectLatest(records []ReleaseRecord) (ReleaseRecord, error) {
	if len(records) == 0 {
		return ReleaseRecord{}, ErrNoSuitableRelease
	}
	return records[0], nil
}
