package ledger_test

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"

	"github.com/kaspixel/kaspixel/foundation/ledger"
	"go.uber.org/zap"
)

// Success and failure markers.
const (
	success = "✓"
	failed  = "✗"
)

// =============================================================================

// ledgerNode is a scriptable stand-in for a public ledger API node.
type ledgerNode struct {
	mu     sync.Mutex
	tip    string
	rounds []string
	round  int
}

func (n *ledgerNode) handler() http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("/info/blockdag", func(w http.ResponseWriter, r *http.Request) {
		n.mu.Lock()
		defer n.mu.Unlock()
		fmt.Fprintf(w, `{"tipHashes":[%q]}`, n.tip)
	})

	mux.HandleFunc("/blocks", func(w http.ResponseWriter, r *http.Request) {
		n.mu.Lock()
		defer n.mu.Unlock()

		if n.round >= len(n.rounds) {
			fmt.Fprint(w, `{"blockHashes":[],"blocks":[]}`)
			return
		}

		fmt.Fprint(w, n.rounds[n.round])
		n.round++
	})

	return mux
}

func Test_Verify(t *testing.T) {
	t.Log("Given the need to verify a transaction against the ledger.")
	{
		t.Logf("\tTest 0:\tWhen the transaction lands in a block on the second poll.")
		{
			node := ledgerNode{
				tip: "h0",
				rounds: []string{
					`{"blockHashes":["h1"],"blocks":[{"hash":"h1","verboseData":{"blockHeight":10,"transactionIds":["other"]}}]}`,
					`{"blockHashes":["h2"],"blocks":[{"hash":"h2","verboseData":{"blockHeight":11,"transactionIds":["tx1"]}}]}`,
				},
			}

			srv := httptest.NewServer(node.handler())
			defer srv.Close()

			log := zap.NewNop().Sugar()
			client, err := ledger.NewClient(log, []string{srv.URL})
			if err != nil {
				t.Fatalf("\t%s\tTest 0:\tShould be able to construct a client: %v", failed, err)
			}
			t.Logf("\t%s\tTest 0:\tShould be able to construct a client.", success)

			v := ledger.NewVerifier(log, client)
			ctx := context.Background()

			result := v.Verify(ctx, "tx1")
			if result.Verified {
				t.Fatalf("\t%s\tTest 0:\tShould not verify on the first poll.", failed)
			}
			if result.ScanCursor != "h1" {
				t.Fatalf("\t%s\tTest 0:\tShould advance the cursor to h1: got %q", failed, result.ScanCursor)
			}
			t.Logf("\t%s\tTest 0:\tShould advance the cursor without verifying.", success)

			result = v.Verify(ctx, "tx1")
			if !result.Verified {
				t.Fatalf("\t%s\tTest 0:\tShould verify on the second poll: %+v", failed, result)
			}
			if result.BlockHash != "h2" || result.BlockHeight != 11 {
				t.Fatalf("\t%s\tTest 0:\tShould report the confirming block: %+v", failed, result)
			}
			t.Logf("\t%s\tTest 0:\tShould verify with the confirming block.", success)

			m := v.Metrics()
			if m.Total != 1 || m.Confirmed != 1 || m.Fastest == 0 {
				t.Fatalf("\t%s\tTest 0:\tShould track the confirmation in the metrics: %+v", failed, m)
			}
			t.Logf("\t%s\tTest 0:\tShould track the confirmation in the metrics.", success)

			tm, exists := v.TransactionMetrics("tx1")
			if !exists || !tm.Confirmed {
				t.Fatalf("\t%s\tTest 0:\tShould expose per-transaction metrics: %+v", failed, tm)
			}
			t.Logf("\t%s\tTest 0:\tShould expose per-transaction metrics.", success)
		}
	}
}

func Test_EndpointFallback(t *testing.T) {
	t.Log("Given the need to survive a flaky primary endpoint.")
	{
		t.Logf("\tTest 0:\tWhen the primary returns errors and the fallback works.")
		{
			broken := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(http.StatusInternalServerError)
			}))
			defer broken.Close()

			node := ledgerNode{tip: "h0"}
			good := httptest.NewServer(node.handler())
			defer good.Close()

			client, err := ledger.NewClient(zap.NewNop().Sugar(), []string{broken.URL, good.URL})
			if err != nil {
				t.Fatalf("\t%s\tTest 0:\tShould be able to construct a client: %v", failed, err)
			}

			tip, err := client.Tip(context.Background())
			if err != nil {
				t.Fatalf("\t%s\tTest 0:\tShould fall back to the healthy endpoint: %v", failed, err)
			}
			if tip != "h0" {
				t.Fatalf("\t%s\tTest 0:\tShould return the tip from the fallback: got %q", failed, tip)
			}
			t.Logf("\t%s\tTest 0:\tShould fall back to the healthy endpoint.", success)
		}
	}
}

func Test_UpstreamFailure(t *testing.T) {
	t.Log("Given the need to keep a transaction recorded through upstream outages.")
	{
		t.Logf("\tTest 0:\tWhen every endpoint is failing.")
		{
			broken := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(http.StatusBadGateway)
			}))
			defer broken.Close()

			log := zap.NewNop().Sugar()
			client, err := ledger.NewClient(log, []string{broken.URL})
			if err != nil {
				t.Fatalf("\t%s\tTest 0:\tShould be able to construct a client: %v", failed, err)
			}

			v := ledger.NewVerifier(log, client)

			result := v.Verify(context.Background(), "tx1")
			if result.Verified {
				t.Fatalf("\t%s\tTest 0:\tShould not verify through an outage.", failed)
			}
			if !result.Recorded {
				t.Fatalf("\t%s\tTest 0:\tShould keep the transaction recorded: %+v", failed, result)
			}
			if result.Error == "" {
				t.Fatalf("\t%s\tTest 0:\tShould report the upstream error.", failed)
			}
			t.Logf("\t%s\tTest 0:\tShould report a recorded, unverified result.", success)
		}
	}
}

func Test_NoEndpoints(t *testing.T) {
	t.Log("Given the need to reject a client without endpoints.")
	{
		t.Logf("\tTest 0:\tWhen constructing with an empty endpoint list.")
		{
			if _, err := ledger.NewClient(zap.NewNop().Sugar(), nil); err == nil {
				t.Fatalf("\t%s\tTest 0:\tShould refuse construction.", failed)
			}
			t.Logf("\t%s\tTest 0:\tShould refuse construction.", success)
		}
	}
}
