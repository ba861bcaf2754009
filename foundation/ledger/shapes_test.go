package ledger

import (
	"encoding/json"
	"testing"
)

// Success and failure markers.
const (
	success = "\u2713"
	failed  = "\u2717"
)

// =============================================================================

func Test_ParseBlockShapes(t *testing.T) {
	type table struct {
		name string
		raw  string
		ids  []string
		hash string
	}

	tt := []table{
		{
			name: "verbose ids",
			raw:  `{"hash":"b1","verboseData":{"blockHeight":42,"transactionIds":["tx1","tx2"]}}`,
			ids:  []string{"tx1", "tx2"},
			hash: "b1",
		},
		{
			name: "top level ids",
			raw:  `{"hash":"b2","transactionIds":["tx3"]}`,
			ids:  []string{"tx3"},
			hash: "b2",
		},
		{
			name: "transaction list verbose",
			raw:  `{"hash":"b3","transactions":[{"verboseData":{"transactionId":"tx4"}},{"transactionId":"tx5"}]}`,
			ids:  []string{"tx4", "tx5"},
			hash: "b3",
		},
		{
			name: "verbose wins over transaction list",
			raw:  `{"hash":"b4","verboseData":{"transactionIds":["tx6"]},"transactions":[{"transactionId":"tx7"}]}`,
			ids:  []string{"tx6"},
			hash: "b4",
		},
		{
			name: "no ids",
			raw:  `{"hash":"b5"}`,
			ids:  nil,
			hash: "b5",
		},
	}

	t.Log("Given the need to decode the block shapes upstream nodes produce.")
	{
		for testID, tst := range tt {
			t.Logf("\tTest %d:\tWhen parsing the %s shape.", testID, tst.name)
			{
				f := func(t *testing.T) {
					blk := parseBlock(json.RawMessage(tst.raw))

					if blk.Hash != tst.hash {
						t.Fatalf("\t%s\tTest %d:\tShould decode the hash: got %q", failed, testID, blk.Hash)
					}
					t.Logf("\t%s\tTest %d:\tShould decode the hash.", success, testID)

					if len(blk.TransactionIDs) != len(tst.ids) {
						t.Fatalf("\t%s\tTest %d:\tShould extract %d ids: got %v", failed, testID, len(tst.ids), blk.TransactionIDs)
					}
					for i := range tst.ids {
						if blk.TransactionIDs[i] != tst.ids[i] {
							t.Fatalf("\t%s\tTest %d:\tShould extract id %q: got %q", failed, testID, tst.ids[i], blk.TransactionIDs[i])
						}
					}
					t.Logf("\t%s\tTest %d:\tShould extract the right ids.", success, testID)
				}

				t.Run(tst.name, f)
			}
		}
	}
}

func Test_MatchID(t *testing.T) {
	type table struct {
		name   string
		ids    []string
		target string
		match  bool
	}

	tt := []table{
		{name: "exact", ids: []string{"abc123"}, target: "abc123", match: true},
		{name: "case insensitive", ids: []string{"ABC123"}, target: "abc123", match: true},
		{name: "substring", ids: []string{"prefix-abc123-suffix"}, target: "abc123", match: true},
		{name: "no match", ids: []string{"def456"}, target: "abc123", match: false},
		{name: "empty list", ids: nil, target: "abc123", match: false},
	}

	t.Log("Given the need to match transaction ids across format variations.")
	{
		for testID, tst := range tt {
			t.Logf("\tTest %d:\tWhen matching the %s case.", testID, tst.name)
			{
				f := func(t *testing.T) {
					if matchID(tst.ids, tst.target) != tst.match {
						t.Fatalf("\t%s\tTest %d:\tShould report match %v.", failed, testID, tst.match)
					}
					t.Logf("\t%s\tTest %d:\tShould report match %v.", success, testID, tst.match)
				}

				t.Run(tst.name, f)
			}
		}
	}
}

func Test_NormalizeID(t *testing.T) {
	type table struct {
		name string
		raw  string
		want string
	}

	tt := []table{
		{name: "clean", raw: "abc123", want: "abc123"},
		{name: "whitespace", raw: "  abc123  ", want: "abc123"},
		{name: "quoted", raw: `"abc123"`, want: "abc123"},
		{name: "quoted with space", raw: ` 'abc123' `, want: "abc123"},
		{name: "id object", raw: `{"id":"abc123"}`, want: "abc123"},
		{name: "transactionId object", raw: `{"transactionId":"abc123"}`, want: "abc123"},
		{name: "nested object", raw: `{"id":{"transactionId":"abc123"}}`, want: "abc123"},
		{name: "broken json passes through", raw: `{"id":`, want: `{"id":`},
	}

	t.Log("Given the need to canonicalize transaction ids at the boundary.")
	{
		for testID, tst := range tt {
			t.Logf("\tTest %d:\tWhen normalizing the %s form.", testID, tst.name)
			{
				f := func(t *testing.T) {
					if got := NormalizeID(tst.raw); got != tst.want {
						t.Fatalf("\t%s\tTest %d:\tShould normalize to %q: got %q", failed, testID, tst.want, got)
					}
					t.Logf("\t%s\tTest %d:\tShould normalize to %q.", success, testID, tst.want)
				}

				t.Run(tst.name, f)
			}
		}
	}
}
