package main

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"os"

	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/zap"

	"github.com/meikuraledutech/workflow"
	"github.com/meikuraledutech/workflow/postgres"
	"github.com/meikuraledutech/workflow/session"
)

func main() {
	ctx := context.Background()

	dbURL := os.Getenv("DATABASE_URL")
	if dbURL == "" {
		log.Fatal("DATABASE_URL is not set")
	}

	pool, err := pgxpool.New(ctx, dbURL)
	if err != nil {
		log.Fatalf("connect: %v", err)
	}
	defer pool.Close()

	// Wire up the postgres implementation behind the Store interface.
	var store workflow.Store = postgres.New(pool)

	// 1. Create tables
	if err := store.CreateSchema(ctx); err != nil {
		log.Fatalf("schema: %v", err)
	}
	fmt.Println("schema created")

	// 2. An action the steps can attach
	refundID, err := store.SaveAction(ctx, &workflow.Action{
		ProjectID:   "demo-project",
		Name:        "Issue refund",
		Description: "Refund the last order",
		Active:      true,
	})
	if err != nil {
		log.Fatalf("save action: %v", err)
	}

	// ── Open a session (no stored workflow yet: starts from "Start") ──
	logger, _ := zap.NewDevelopment()
	sess, err := session.Open(ctx, store, session.Options{
		AgentID:   "support-agent",
		ProjectID: "demo-project",
		CanSave:   true,
		Logger:    logger,
	})
	if err != nil {
		log.Fatalf("open session: %v", err)
	}
	defer sess.Close()

	start := sess.Layout().Nodes[0].ID
	fmt.Printf("opened session, start node %s, unsaved=%v\n",
		start, sess.HasUnsavedChanges())

	// ── Build the graph ───────────────────────────────────────────────
	greet := sess.CreateNode("Greet customer", start, workflow.VariantDefault)
	arms, _ := sess.CreateBranch(greet, "Wants refund", "Has question")
	refund := sess.CreateNode("Process refund", arms.Left, workflow.VariantDefault)
	done := sess.CreateNode("Goodbye", refund, workflow.VariantEnd)
	jump := sess.CreateNode("Back to greeting", arms.Right, workflow.VariantJump)
	sess.SetJumpTarget(jump, greet)

	instructions := "<p>Confirm the <b>order number</b> first.</p>"
	actions := []workflow.Ref{{ID: refundID, Name: "Issue refund"}}
	sess.UpdateNode(refund, workflow.NodeUpdate{
		Instructions: &instructions,
		Actions:      &actions,
	})

	// Splice a verification step in front of the goodbye.
	verify, _ := sess.InsertNode(refund, done, "Verify identity", workflow.VariantDefault)
	fmt.Printf("inserted %s, unsaved=%v\n", verify, sess.HasUnsavedChanges())

	// ── Save ──────────────────────────────────────────────────────────
	if err := sess.Save(ctx); err != nil {
		log.Fatalf("save: %v", err)
	}
	fmt.Printf("saved, unsaved=%v\n", sess.HasUnsavedChanges())

	stored, err := store.GetWorkflow(ctx, "support-agent")
	if err != nil {
		log.Fatalf("get workflow: %v", err)
	}
	fmt.Printf("\nstored nodes (%d):\n", len(stored.Nodes))
	printJSON(stored.Nodes)

	fmt.Println("\nlayout:")
	printJSON(sess.Layout())

	// ── Cascade delete ────────────────────────────────────────────────
	sess.DeleteNode(arms.Left)
	fmt.Printf("\nafter deleting %s: %d nodes\n", arms.Left, len(sess.Layout().Nodes))

	// ── Cleanup ───────────────────────────────────────────────────────
	if err := store.DeleteWorkflow(ctx, "support-agent"); err != nil {
		log.Fatalf("delete: %v", err)
	}
	if err := store.DeleteAction(ctx, refundID); err != nil {
		log.Fatalf("delete action: %v", err)
	}
	fmt.Println("\nworkflow deleted")
}

func printJSON(v any) {
	out, _ := json.MarshalIndent(v, "", "  ")
	fmt.Println(string(out))
}
