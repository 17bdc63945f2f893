// Package execution is the root of colstore's query evaluation.
//
// Evaluation works directly on column storage. A query compiles into a tree
// of condition nodes; the scan loop asks the cheapest node for its next
// candidate row and lets the other nodes confirm it, so only the columns a
// condition names are ever read.
//
// # Sub-packages
//
//   - [colstore/pkg/execution/query]       – The condition nodes, the
//     cost-based scan loop and the fluent Query builder.
//   - [colstore/pkg/execution/aggregation] – The QueryState accumulator
//     shared by column aggregates and query scans (count, sum, min, max,
//     average, find-all).
//
// # Execution flow
//
// A caller builds a Query over a table accessor. Build errors are recorded
// on the query and surface from Validate or from the first evaluation. On
// evaluation the tree is bound to the current column accessors, scanned
// over the requested row range, and the matches are either fed into a
// QueryState or collected into a TableView that re-runs the query when the
// table changes.
package execution
