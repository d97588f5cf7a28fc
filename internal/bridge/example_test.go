package bridge_test

import (
	"context"
	"fmt"

	"github.com/JakeFAU/stagebridge/internal/bridge"
)

// Example drives a bridge through both stages and cleanup, submitting each
// action in response to the event that precedes it.
func Example() {
	stream, _ := bridge.Start(context.Background(), bridge.Config{})
	defer stream.Close()

	var handle *bridge.Handle
	for evt := range stream.All() {
		fmt.Println(evt.Seq, evt.Kind)
		var next bridge.Action
		switch evt.Kind {
		case bridge.EventReady:
			handle = evt.Handle
			next = bridge.ActionStartStageA
		case bridge.EventStageADone:
			next = bridge.ActionStartStageB
		case bridge.EventStageBDone:
			next = bridge.ActionCleanup
		default:
			continue
		}
		if err := handle.Submit(next); err != nil {
			fmt.Println("submit:", err)
		}
	}
	fmt.Println("err:", stream.Err())
	// Output:
	// 1 ready
	// 2 stage_a_started
	// 3 stage_a_done
	// 4 stage_b_started
	// 5 stage_b_done
	// 6 cleanup_started
	// err: <nil>
}
