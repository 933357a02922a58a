package stock

// Aggregate merges per-product result lists into the nested
// province -> location -> SKU snapshot. Products are visited in input order
// and rows in list order, so a duplicate (province, location, sku) key
// resolves last-write-wins with no conflict error. Empty input yields an
// empty snapshot; "no stock" is the caller's log line, not an error.
func Aggregate(allResults [][]Result) Snapshot {
	snapshot := Snapshot{}

	for _, results := range allResults {
		for _, result := range results {
			locations, ok := snapshot[result.Province]
			if !ok {
				locations = make(map[string]map[string]Result)
				snapshot[result.Province] = locations
			}
			skus, ok := locations[result.Location]
			if !ok {
				skus = make(map[string]Result)
				locations[result.Location] = skus
			}
			skus[result.SKU] = result
		}
	}

	return snapshot
}

// Empty reports whether the snapshot holds no results at all.
func (s Snapshot) Empty() bool {
	for _, locations := range s {
		for _, skus := range locations {
			if len(skus) > 0 {
				return false
			}
		}
	}
	return true
}
