package datastore

import "github.com/Masterminds/semver/v3"

// FilterFunc narrows a slice of address refs. Filters compose, for example:
//
//	refs, err := store.Filter(ctx,
//		AddressRefByChainSelector(selector),
//		AddressRefByType("TimeLockedWithdrawal"),
//	)
type FilterFunc func([]AddressRef) []AddressRef

func addressRefFilter(predicate func(AddressRef) bool) FilterFunc {
	return func(records []AddressRef) []AddressRef {
		filtered := make([]AddressRef, 0, len(records))
		for _, record := range records {
			if predicate(record) {
				filtered = append(filtered, record)
			}
		}

		return filtered
	}
}

// AddressRefByAddress keeps records with the given address.
func AddressRefByAddress(address string) FilterFunc {
	return addressRefFilter(func(r AddressRef) bool {
		return r.Address == address
	})
}

// AddressRefByChainSelector keeps records on the given chain.
func AddressRefByChainSelector(chainSelector uint64) FilterFunc {
	return addressRefFilter(func(r AddressRef) bool {
		return r.ChainSelector == chainSelector
	})
}

// AddressRefByType keeps records of the given contract type.
func AddressRefByType(contractType ContractType) FilterFunc {
	return addressRefFilter(func(r AddressRef) bool {
		return r.Type == contractType
	})
}

// AddressRefByVersion keeps records of the given version.
func AddressRefByVersion(version *semver.Version) FilterFunc {
	return addressRefFilter(func(r AddressRef) bool {
		return r.Version != nil && version != nil && r.Version.Equal(version)
	})
}

// AddressRefByQualifier keeps records with the given qualifier.
func AddressRefByQualifier(qualifier string) FilterFunc {
	return addressRefFilter(func(r AddressRef) bool {
		return r.Qualifier == qualifier
	})
}

// AddressRefByLabel keeps records carrying label.
func AddressRefByLabel(label string) FilterFunc {
	return addressRefFilter(func(r AddressRef) bool {
		return r.Labels.Contains(label)
	})
}

// ApplyFilters runs filters over records in order.
func ApplyFilters(records []AddressRef, filters ...FilterFunc) []AddressRef {
	for _, filter := range filters {
		records = filter(records)
	}

	return records
}
