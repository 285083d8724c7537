// Package workflow validates and executes conversational workflow graphs.
//
// A graph is a set of typed nodes (start, agent, branch, wait, end, note)
// joined by handle-to-handle edges. Validate checks a graph for structural
// problems and reports every violation. An Executor validates a graph and
// then walks it along a single path from the start node:
//
//   - start passes the latest user message on
//   - agent calls the Model capability and extends the conversation
//   - branch evaluates conditions against the previous node's result
//   - wait pauses, publishing a countdown
//   - end signals completion
//
// Every status transition and node snapshot is delivered to a Sink as an
// Event. Runs are capped at a fixed number of node executions so that
// graphs which loop at run time terminate.
package workflow
