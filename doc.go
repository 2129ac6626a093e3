// Package ace implements a feedback-driven self-improving playbook for an AI
// assistant: user ratings of chat responses are distilled into reusable
// strategy snippets ("bullets") that are semantically retrieved and injected
// into future prompts.
//
// The engine is built around a vector-indexed bullet store and a
// deterministic merge pipeline:
//
//   - playbook: the bullet store. Insert, semantic search over normalized
//     embeddings, helpful/harmful counter reinforcement, similarity-based
//     deduplication, and durable persistence (JSON metadata, binary index,
//     Markdown export).
//
//   - reflection: turns a chat turn plus its feedback into a structured
//     insight. Ships a heuristic reflector for offline use and an
//     Anthropic-backed one.
//
//   - curator: converts an insight into a delta of ADD/UPDATE operations
//     against the playbook, with confidence gating, keyword-based section
//     routing and content normalization. The merger applies deltas in order
//     and writes an audit record per merge.
//
//   - pipeline: the per-feedback flow (fetch feedback, fetch chat turn,
//     reflect, curate, merge, update usage counters) plus a bounded-worker
//     batch runner.
//
//   - feedback, chats: the surrounding stores. Feedback records live as one
//     JSON file each; chat turns (including which bullets were surfaced to
//     the user) live in SQLite.
//
// The cmd/acectl CLI wires these together from a YAML config for
// operational use.
package ace
