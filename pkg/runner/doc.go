/*
Package runner implements the conversation loop that drives one editing
session: ask the decider for the next step, dispatch the tool calls it
proposes, append the results, repeat until the decider answers without
requesting tools.

A Loop is constructed per session or test and passed by reference; there
is no global registration. Tool calls from one decision run as bounded
parallel tasks and their results are appended in request order, so the
decider always sees a deterministic history. Edits against the same
document are serialized through the session manager; reads run
concurrently.

	loop, err := runner.New(decider, dispatcher, sessions)
	if err != nil {
		log.Fatal(err)
	}
	state, err := loop.Run(ctx, "user-1", "/decks/q3.pptx", "retitle slide 2")
*/
package runner
