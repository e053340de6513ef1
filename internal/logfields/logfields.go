package logfields

import "log/slog"

// Canonical log field name constants to avoid drift across packages.
const (
	KeyBatchID     = "batch_id"
	KeyDoc         = "doc"
	KeyFilter      = "filter"
	KeyStep        = "step"
	KeyFingerprint = "fingerprint"
	KeyCache       = "cache"
	KeyStage       = "stage"
	KeyDurationMS  = "duration_ms"
	KeySection     = "section"
	KeyLevel       = "level"
	KeyCommand     = "command"
	KeyExitCode    = "exit_code"
	KeyState       = "state"
	KeyPath        = "path"
	KeyFile        = "file"
	KeyWorker      = "worker"
	KeyName        = "name"
	KeyURL         = "url"
	KeyError       = "error"
	KeyReporter    = "reporter"
)

// Simple helpers returning slog.Attr. Keeping each granular means callers can compose.
func BatchID(id string) slog.Attr     { return slog.String(KeyBatchID, id) }
func Doc(key string) slog.Attr        { return slog.String(KeyDoc, key) }
func Filter(alias string) slog.Attr   { return slog.String(KeyFilter, alias) }
func Step(i int) slog.Attr            { return slog.Int(KeyStep, i) }
func Fingerprint(fp string) slog.Attr { return slog.String(KeyFingerprint, fp) }
func Cache(outcome string) slog.Attr  { return slog.String(KeyCache, outcome) }
func Stage(name string) slog.Attr     { return slog.String(KeyStage, name) }
func DurationMS(ms float64) slog.Attr { return slog.Float64(KeyDurationMS, ms) }
func Section(s string) slog.Attr      { return slog.String(KeySection, s) }
func Level(l int) slog.Attr           { return slog.Int(KeyLevel, l) }
func Command(c string) slog.Attr      { return slog.String(KeyCommand, c) }
func ExitCode(c int) slog.Attr        { return slog.Int(KeyExitCode, c) }
func State(s string) slog.Attr        { return slog.String(KeyState, s) }
func Path(p string) slog.Attr         { return slog.String(KeyPath, p) }
func File(f string) slog.Attr         { return slog.String(KeyFile, f) }
func Worker(w string) slog.Attr       { return slog.String(KeyWorker, w) }
func Name(n string) slog.Attr         { return slog.String(KeyName, n) }
func URL(u string) slog.Attr          { return slog.String(KeyURL, u) }
func Reporter(n string) slog.Attr     { return slog.String(KeyReporter, n) }
func Error(err error) slog.Attr {
	if err == nil {
		return slog.String(KeyError, "")
	}
	return slog.String(KeyError, err.Error())
}
