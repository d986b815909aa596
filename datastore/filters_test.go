package datastore

import (
	"testing"

	"github.com/Masterminds/semver/v3"
	"github.com/stretchr/testify/assert"
)

func Test_Filters(t *testing.T) {
	t.Parallel()

	other := newTestRef(testAddr2, "b", "dry-run")
	other.ChainSelector = 1
	other.Version = semver.MustParse("1.1.0")
	other.Type = "Other"

	records := []AddressRef{newTestRef(testAddr1, "a", "unlock:1"), other}

	tests := []struct {
		name        string
		giveFilters []FilterFunc
		wantAddrs   []string
	}{
		{name: "none", wantAddrs: []string{testAddr1, testAddr2}},
		{name: "by address", giveFilters: []FilterFunc{AddressRefByAddress(testAddr2)}, wantAddrs: []string{testAddr2}},
		{name: "by chain", giveFilters: []FilterFunc{AddressRefByChainSelector(testChain)}, wantAddrs: []string{testAddr1}},
		{name: "by type", giveFilters: []FilterFunc{AddressRefByType("Other")}, wantAddrs: []string{testAddr2}},
		{name: "by version", giveFilters: []FilterFunc{AddressRefByVersion(semver.MustParse("1.0.0"))}, wantAddrs: []string{testAddr1}},
		{name: "by nil version", giveFilters: []FilterFunc{AddressRefByVersion(nil)}, wantAddrs: []string{}},
		{name: "by qualifier", giveFilters: []FilterFunc{AddressRefByQualifier("b")}, wantAddrs: []string{testAddr2}},
		{name: "by label", giveFilters: []FilterFunc{AddressRefByLabel("unlock:1")}, wantAddrs: []string{testAddr1}},
		{
			name:        "composed",
			giveFilters: []FilterFunc{AddressRefByChainSelector(testChain), AddressRefByQualifier("b")},
			wantAddrs:   []string{},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			got := ApplyFilters(records, tt.giveFilters...)

			addrs := make([]string, 0, len(got))
			for _, r := range got {
				addrs = append(addrs, r.Address)
			}
			assert.Equal(t, tt.wantAddrs, addrs)
		})
	}
}
