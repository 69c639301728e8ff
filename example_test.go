package flowgate_test

import (
	"context"
	"fmt"
	"log"

	"github.com/petrijr/flowgate"
)

// Example_advance moves a new workflow one stage along the default
// reconciliation path.
func Example_advance() {
	ctx := context.Background()
	eng := flowgate.NewInMemoryEngine()

	if _, err := eng.CreateWorkflow(ctx, "wf1", "ingestion", "alice", nil); err != nil {
		log.Fatal(err)
	}

	res, err := eng.Advance(ctx, "wf1", "mapping", "alice", map[string]any{"file": "ledger.csv"}, flowgate.AdvanceOptions{})
	if err != nil {
		log.Fatal(err)
	}

	wf, _ := eng.GetWorkflow(ctx, "wf1")
	fmt.Println(res.Success, wf.Stage, wf.Metadata.Version, wf.Progress)
	// Output: true mapping 2 20
}

// Example_conflict shows a second user being turned away from a stage that
// is still reserved.
func Example_conflict() {
	ctx := context.Background()
	eng := flowgate.NewInMemoryEngine()

	_, _ = eng.CreateWorkflow(ctx, "wf1", "ingestion", "alice", nil)
	_, _ = eng.Advance(ctx, "wf1", "mapping", "alice", nil, flowgate.AdvanceOptions{})

	res, err := eng.Advance(ctx, "wf1", "mapping", "bob", nil, flowgate.AdvanceOptions{})
	if err != nil {
		log.Fatal(err)
	}
	fmt.Println(res.Success, res.Conflict.Reason, res.Conflict.Holder.UserID)
	// Output: false locked alice
}
