// Package logging provides structured logging for mergepipe.
//
// The package wraps Go's log/slog. A merge driver is invoked once per
// conflicting file, so logs either go to a JSON file that accumulates across
// invocations or to stderr, where git shows them to the user.
//
// # Basic Usage
//
//	logger, err := logging.NewLogger(dir, "INFO")
//	if err != nil {
//	    return err
//	}
//	defer logger.Close()
//
//	logger.Info("pipeline selected", "pipeline", "java")
//
// # Context Propagation
//
// Child loggers carry persistent attributes:
//
//	fileLogger := logger.WithFile("src/Main.java").WithBranch("feature-a")
//	fileLogger.WithOperation("git-merge").Warn("merge produced conflicts")
//
// Output:
//
//	{"time":"...","level":"WARN","msg":"merge produced conflicts","file":"src/Main.java","branch":"feature-a","operation":"git-merge"}
//
// # Console Output
//
// With an empty directory the logger writes to stderr. When stderr is a
// terminal the github.com/lmittmann/tint handler renders compact coloured
// lines; otherwise JSON is written so that wrapping tools can parse it.
package logging
