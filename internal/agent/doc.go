// ABOUTME: Package agent orchestrates per-user CLI agent processes across providers.
// ABOUTME: Contains the provider adapters, the shared process engine, and the Manager.

// Package agent manages long-lived, stateful command-line agent processes
// on behalf of many users.
//
// Each user has at most one live agent process at a time. The Manager owns
// the per-user runtime map and enforces that invariant structurally: a prior
// runtime is always stopped and removed before a new one is installed.
//
// Agent CLIs expose no structured response framing. The engine infers
// response boundaries heuristically: an idle timer that resets on every
// output chunk signals completion, while a hard ceiling guarantees forward
// progress against slow-but-never-idle chatter.
//
// Callers must invoke Manager operations for a given user strictly
// sequentially. The surrounding message loop delivers one inbound event at a
// time; concurrent SwitchAgent/SendToActive calls for the same user are
// undefined behavior by contract.
package agent
