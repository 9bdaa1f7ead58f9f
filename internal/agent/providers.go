// ABOUTME: The two provider adapters, each supplying only its CLI resume convention.
// ABOUTME: All shared process behavior lives in the embedded engine.

package agent

// claudeAdapter drives the claude CLI. Resume convention: a named --resume
// flag with an explicit token, or --continue when no token is known.
type claudeAdapter struct {
	*engine
	base []string
}

func newClaudeAdapter(cmd CommandConfig, eng EngineConfig) *claudeAdapter {
	a := &claudeAdapter{base: cmd.BaseArgs}
	a.engine = newEngine(ProviderClaude, cmd, eng, "/exit", a)
	return a
}

func (a *claudeAdapter) launchArgs(opts StartOptions) []string {
	args := append([]string(nil), a.base...)
	if opts.Fresh {
		return args
	}
	if opts.SessionRef != "" {
		return append(args, "--resume", opts.SessionRef)
	}
	return append(args, "--continue")
}

// codexAdapter drives the codex CLI. Resume convention: a resume subcommand
// with an explicit token, or "resume --last" when no token is known.
type codexAdapter struct {
	*engine
	base []string
}

func newCodexAdapter(cmd CommandConfig, eng EngineConfig) *codexAdapter {
	a := &codexAdapter{base: cmd.BaseArgs}
	a.engine = newEngine(ProviderCodex, cmd, eng, "/quit", a)
	return a
}

func (a *codexAdapter) launchArgs(opts StartOptions) []string {
	args := append([]string(nil), a.base...)
	if opts.Fresh {
		return args
	}
	if opts.SessionRef != "" {
		return append(args, "resume", opts.SessionRef)
	}
	return append(args, "resume", "--last")
}
