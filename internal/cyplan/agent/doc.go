// Package agent implements the CyPlanAI conversational agents: the
// tool-calling graph streamed on chat threads and the intent-based fallback
// agent used by sessions.
package agent
